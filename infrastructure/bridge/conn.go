package bridge

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the subset of a WebSocket connection the bridge drives.
// *websocket.Conn satisfies it; tests substitute scripted connections.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer establishes WebSocket connections. The production implementation
// wraps gorilla's dialer; tests substitute scripted outcomes.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

// Clock abstracts time so reconnect backoff is testable without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type gorillaDialer struct {
	dialer *websocket.Dialer
}

// NewGorillaDialer returns the production dialer with a handshake timeout.
func NewGorillaDialer(handshakeTimeout time.Duration) Dialer {
	return &gorillaDialer{
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (g *gorillaDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := g.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type systemClock struct{}

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
