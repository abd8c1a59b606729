package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ACBRI/veritas.ia/internal/model"
	"github.com/ACBRI/veritas.ia/internal/offense"
	"github.com/ACBRI/veritas.ia/internal/wire"
)

const DefaultReconnectDelay = 3 * time.Second

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Conn is one established push connection. ReadMessage blocks until a whole
// message arrives or the connection fails.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

type EventHandler func(model.PushEvent)

type StateListener func(State)

type PushClient struct {
	dialer         Dialer
	translator     *offense.Translator
	reconnectDelay time.Duration

	// after and now are replaced in tests.
	after func(time.Duration) <-chan time.Time
	now   func() time.Time

	mu            sync.RWMutex
	state         State
	handler       EventHandler
	listener      StateListener
	lastHeartbeat time.Time
	cancel        context.CancelFunc
	done          chan struct{}
}

func NewPushClient(dialer Dialer, translator *offense.Translator, reconnectDelay time.Duration) *PushClient {
	if translator == nil {
		translator = offense.Default
	}
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &PushClient{
		dialer:         dialer,
		translator:     translator,
		reconnectDelay: reconnectDelay,
		after:          time.After,
		now:            time.Now,
		state:          StateDisconnected,
	}
}

// SetHandler registers the receiver of decoded events. Heartbeats are not
// delivered.
func (c *PushClient) SetHandler(h EventHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *PushClient) SetStateListener(l StateListener) {
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
}

func (c *PushClient) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *PushClient) IsConnected() bool {
	return c.State() == StateConnected
}

func (c *PushClient) LastHeartbeat() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHeartbeat
}

// Start launches the connect loop. It keeps reconnecting until ctx is
// cancelled or Close is called.
func (c *PushClient) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return errors.New("push client already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.run(ctx, done)
	log.Println("push: started")
	return nil
}

// Close tears the loop down. No reconnect is attempted and no event is
// delivered once Close returns.
func (c *PushClient) Close() {
	c.mu.RLock()
	cancel, done := c.cancel, c.done
	c.mu.RUnlock()
	if cancel == nil {
		return
	}

	cancel()
	<-done
	log.Println("push: stopped")
}

func (c *PushClient) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.setState(StateDisconnected)

	for {
		c.setState(StateConnecting)
		conn, err := c.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("push: dial failed: %v. Retrying in %v...", err, c.reconnectDelay)
		} else {
			c.setState(StateConnected)
			log.Println("push: connected")

			err = c.readLoop(ctx, conn)
			if ctx.Err() != nil {
				return
			}
			log.Printf("push: %v. Reconnecting in %v...", err, c.reconnectDelay)
		}

		c.setState(StateDisconnected)
		select {
		case <-ctx.Done():
			return
		case <-c.after(c.reconnectDelay):
		}
	}
}

func (c *PushClient) readLoop(ctx context.Context, conn Conn) error {
	var once sync.Once
	closeConn := func() { once.Do(func() { conn.Close() }) }
	defer closeConn()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-stop:
		}
	}()

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrConnectionLost, err)
		}
		c.dispatch(ctx, raw)
	}
}

func (c *PushClient) dispatch(ctx context.Context, raw []byte) {
	ev, err := Decode(raw, c.translator, c.now())
	if err != nil {
		if errors.Is(err, wire.ErrUnknownType) {
			return
		}
		log.Printf("push: dropping malformed message: %v", err)
		return
	}

	if ev.Kind == model.PushHeartbeat {
		c.mu.Lock()
		c.lastHeartbeat = ev.ReceivedAt
		c.mu.Unlock()
		return
	}

	if ctx.Err() != nil {
		return
	}
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h != nil {
		h(ev)
	}
}

func (c *PushClient) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	l := c.listener
	c.mu.Unlock()

	if l != nil {
		l(s)
	}
}
