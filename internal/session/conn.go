package session

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rotisserie/eris"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Conn is the transport a Session runs over.
type Conn interface {
	// Read blocks for the next text frame.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	// Ping sends a ping and waits for the pong.
	Ping(ctx context.Context) error
	Close(reason string) error
}

// wsConn adapts a coder/websocket connection.
type wsConn struct {
	c *websocket.Conn
}

// Accept upgrades an HTTP request to a websocket Conn. originPatterns
// follows websocket.AcceptOptions; "*" allows any origin.
func Accept(w http.ResponseWriter, r *http.Request, originPatterns []string) (Conn, error) {
	opts := &websocket.AcceptOptions{OriginPatterns: originPatterns}
	for _, p := range originPatterns {
		if p == "*" {
			opts.InsecureSkipVerify = true
		}
	}
	c, err := websocket.Accept(w, r, opts)
	if err != nil {
		return nil, eris.Wrap(err, "session: accept")
	}
	c.SetReadLimit(maxMessageSize)
	return &wsConn{c: c}, nil
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := w.c.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ == websocket.MessageText {
			return data, nil
		}
	}
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Ping(ctx context.Context) error {
	return w.c.Ping(ctx)
}

func (w *wsConn) Close(reason string) error {
	return w.c.Close(websocket.StatusNormalClosure, reason)
}

// normalClose reports whether err is the peer going away cleanly.
func normalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
