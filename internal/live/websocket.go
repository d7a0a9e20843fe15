package live

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
)

// WebSocketTransport opens live channels over a websocket endpoint.
// Frames travel as JSON text messages.
type WebSocketTransport struct {
	// Endpoint is the ws:// or wss:// URL of the tutoring backend.
	Endpoint string

	dialer *websocket.Dialer
}

// NewWebSocketTransport creates a transport dialing the given endpoint.
func NewWebSocketTransport(endpoint string) *WebSocketTransport {
	return &WebSocketTransport{
		Endpoint: endpoint,
		dialer:   websocket.DefaultDialer,
	}
}

// Open dials the endpoint with the learner id as a query parameter. The
// context bounds the handshake; cancellation after Open has returned does
// not affect the connection.
func (t *WebSocketTransport) Open(ctx context.Context, learnerID string) (Conn, error) {
	u, err := url.Parse(t.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("learner", learnerID)
	u.RawQuery = q.Encode()

	ws, _, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Send(f Frame) error {
	return c.ws.WriteJSON(f)
}

func (c *wsConn) Receive() (Frame, error) {
	var f Frame
	if err := c.ws.ReadJSON(&f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
