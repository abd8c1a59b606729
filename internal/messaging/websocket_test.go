package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ACBRI/veritas.ia/internal/model"

	"github.com/gorilla/websocket"
)

func TestWebSocketDialerStreamsEventsWithBoundingBox(t *testing.T) {
	bboxes := make(chan model.ViewBounds, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b model.ViewBounds
		if err := json.Unmarshal([]byte(r.URL.Query().Get("bbox")), &b); err != nil {
			t.Errorf("bad bbox query %q: %v", r.URL.Query().Get("bbox"), err)
		}
		bboxes <- b

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		msg := `{"type":"confirmation_update","data":{"report_id":"` + reportID + `","confirmation_count":4}}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Errorf("write: %v", err)
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	dialer := NewWebSocketDialer("ws" + strings.TrimPrefix(srv.URL, "http") + "/ws")
	want := model.ViewBounds{MinLat: 4.5, MinLon: -74.2, MaxLat: 4.8, MaxLon: -74.0}
	dialer.SetBounds(want)

	pc := NewPushClient(dialer, nil, time.Second)
	events := make(chan model.PushEvent, 1)
	pc.SetHandler(func(ev model.PushEvent) { events <- ev })
	if err := pc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer pc.Close()

	select {
	case got := <-bboxes:
		if got != want {
			t.Fatalf("expected bbox %+v, got %+v", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never dialled")
	}

	select {
	case ev := <-events:
		if ev.Kind != model.PushConfirmationUpdate || ev.ConfirmationCount != 4 {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestWebSocketDialerWithoutBounds(t *testing.T) {
	d := NewWebSocketDialer("ws://localhost:8000/ws")
	target, err := d.endpoint()
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	if target != "ws://localhost:8000/ws" {
		t.Fatalf("unexpected endpoint %q", target)
	}
}
