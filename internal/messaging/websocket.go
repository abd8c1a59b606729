package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/ACBRI/veritas.ia/internal/model"

	"github.com/gorilla/websocket"
)

const handshakeTimeout = 10 * time.Second

// WebSocketDialer connects to the backend push endpoint. When bounds are set
// the URL carries them as ?bbox=<json>.
type WebSocketDialer struct {
	url    string
	dialer *websocket.Dialer

	mu     sync.RWMutex
	bounds *model.ViewBounds
}

func NewWebSocketDialer(rawURL string) *WebSocketDialer {
	return &WebSocketDialer{
		url: rawURL,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// SetBounds changes the bounding box sent on the next dial.
func (d *WebSocketDialer) SetBounds(b model.ViewBounds) {
	d.mu.Lock()
	d.bounds = &b
	d.mu.Unlock()
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	target, err := d.endpoint()
	if err != nil {
		return nil, err
	}

	conn, resp, err := d.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: status %d: %w", target, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", target, err)
	}
	return &wsConn{conn: conn}, nil
}

func (d *WebSocketDialer) endpoint() (string, error) {
	u, err := url.Parse(d.url)
	if err != nil {
		return "", fmt.Errorf("push url: %w", err)
	}

	d.mu.RLock()
	bounds := d.bounds
	d.mu.RUnlock()
	if bounds == nil {
		return u.String(), nil
	}

	bbox, err := json.Marshal(bounds)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("bbox", string(bbox))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
