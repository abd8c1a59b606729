package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ACBRI/veritas.ia/internal/model"
)

const reportID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

type fakeConn struct {
	msgs   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{msgs: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// fakeDialer hands every new connection to the test, so each dial attempt
// is observed exactly once.
type fakeDialer struct {
	conns chan *fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	c := newFakeConn()
	select {
	case d.conns <- c:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type manualTimer struct {
	delays chan time.Duration
	ticks  chan time.Time
}

func (m *manualTimer) after(d time.Duration) <-chan time.Time {
	m.delays <- d
	return m.ticks
}

func newTestPushClient(d Dialer) (*PushClient, *manualTimer) {
	timer := &manualTimer{delays: make(chan time.Duration), ticks: make(chan time.Time)}
	pc := NewPushClient(d, nil, 3*time.Second)
	pc.after = timer.after
	return pc, timer
}

func recvConn(t *testing.T, ch <-chan *fakeConn) *fakeConn {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a dial")
		return nil
	}
}

func expectNoDial(t *testing.T, ch <-chan *fakeConn) {
	t.Helper()
	select {
	case <-ch:
		t.Fatalf("unexpected dial attempt")
	case <-time.After(50 * time.Millisecond):
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestPushClientReconnectsAfterFixedDelayUntilClosed(t *testing.T) {
	dialer := &fakeDialer{conns: make(chan *fakeConn)}
	pc, timer := newTestPushClient(dialer)

	if err := pc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	conn := recvConn(t, dialer.conns)
	eventually(t, pc.IsConnected)

	for i := 0; i < 3; i++ {
		conn.Close()

		select {
		case d := <-timer.delays:
			if d != 3*time.Second {
				t.Fatalf("expected 3s backoff, got %v", d)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no backoff requested after connection loss")
		}
		if pc.State() != StateDisconnected {
			t.Fatalf("expected disconnected during backoff, got %s", pc.State())
		}
		expectNoDial(t, dialer.conns)

		timer.ticks <- time.Now()
		conn = recvConn(t, dialer.conns)
		eventually(t, pc.IsConnected)
	}

	pc.Close()
	if pc.State() != StateDisconnected {
		t.Fatalf("expected disconnected after close, got %s", pc.State())
	}
	expectNoDial(t, dialer.conns)
}

func TestPushClientCloseDuringBackoff(t *testing.T) {
	dialer := &fakeDialer{conns: make(chan *fakeConn)}
	pc, timer := newTestPushClient(dialer)
	if err := pc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	conn := recvConn(t, dialer.conns)
	conn.Close()
	<-timer.delays

	pc.Close()
	expectNoDial(t, dialer.conns)

	if err := pc.Start(context.Background()); err == nil {
		t.Fatalf("expected second start to fail")
	}
}

func TestPushClientDeliversDecodedEvents(t *testing.T) {
	dialer := &fakeDialer{conns: make(chan *fakeConn)}
	pc, _ := newTestPushClient(dialer)
	received := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	pc.now = func() time.Time { return received }

	events := make(chan model.PushEvent, 4)
	pc.SetHandler(func(ev model.PushEvent) { events <- ev })

	var mu sync.Mutex
	var states []State
	pc.SetStateListener(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	if err := pc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer pc.Close()

	conn := recvConn(t, dialer.conns)
	conn.msgs <- []byte(`{not json`)
	conn.msgs <- []byte(`{"type":"poll_closed","data":{}}`)
	conn.msgs <- []byte(`{"type":"heartbeat"}`)
	conn.msgs <- []byte(`{"type":"report_expired","data":{"report_id":"` + reportID + `"}}`)

	select {
	case ev := <-events:
		if ev.Kind != model.PushReportExpired || ev.ReportID.String() != reportID {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event not delivered")
	}

	select {
	case ev := <-events:
		t.Fatalf("only one event should be delivered, got %+v", ev)
	default:
	}

	if !pc.LastHeartbeat().Equal(received) {
		t.Fatalf("heartbeat not recorded: %v", pc.LastHeartbeat())
	}
	if !pc.IsConnected() {
		t.Fatalf("malformed messages must not drop the connection")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) < 2 || states[0] != StateConnecting || states[1] != StateConnected {
		t.Fatalf("unexpected state sequence %v", states)
	}
}
