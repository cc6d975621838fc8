package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"canvas-engine/application/store"
	"canvas-engine/domain/core/valueobjects"
	"canvas-engine/domain/events"
	pkgerrors "canvas-engine/pkg/errors"
	"canvas-engine/pkg/observability"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB
)

// Reconnect defaults. Backoff is linear: attempt * base.
const (
	DefaultBackoffBase      = time.Second
	DefaultMaxAttempts      = 5
	DefaultHandshakeTimeout = 10 * time.Second
)

// State is the bridge's connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

func (s State) gaugeValue() float64 {
	switch s {
	case StateConnecting:
		return 1
	case StateConnected:
		return 2
	case StateReconnecting:
		return 3
	default:
		return 0
	}
}

// Config holds the bridge's connection parameters.
type Config struct {
	// BaseURL is the server root, e.g. ws://localhost:8000.
	BaseURL string
	// ProjectID scopes the stream to one project's canvas.
	ProjectID valueobjects.ProjectID
	// BackoffBase is the linear backoff unit between reconnect attempts.
	BackoffBase time.Duration
	// MaxAttempts is the number of consecutive failed attempts tolerated
	// before the bridge gives up with a terminal connectivity error.
	MaxAttempts int
}

// Option customizes a Bridge at construction.
type Option func(*Bridge)

// WithDialer substitutes the connection dialer.
func WithDialer(d Dialer) Option {
	return func(b *Bridge) { b.dialer = d }
}

// WithClock substitutes the clock used for backoff and deadlines.
func WithClock(c Clock) Option {
	return func(b *Bridge) { b.clock = c }
}

// WithStateHandler registers a callback invoked on every state change.
// The terminal connectivity error is delivered through it exactly once,
// attached to the failed state.
func WithStateHandler(fn func(State, error)) Option {
	return func(b *Bridge) { b.onState = fn }
}

// WithResyncHandler registers a callback invoked after every successful
// reconnect (not the first connect) so the owner can reload snapshots
// for events missed while disconnected.
func WithResyncHandler(fn func(context.Context)) Option {
	return func(b *Bridge) { b.onResync = fn }
}

// Bridge maintains a WebSocket subscription to the canvas event stream
// and applies decoded events to the store. It owns the reconnect policy:
// linear backoff, a bounded attempt budget, and a terminal connectivity
// error once the budget is exhausted. A bridge that has been closed or
// has failed stays down; recovery means constructing a new one.
type Bridge struct {
	cfg     Config
	canvas  *store.CanvasStore
	decoder *events.Decoder
	dialer  Dialer
	clock   Clock
	logger  *zap.Logger
	metrics *observability.Metrics

	onState  func(State, error)
	onResync func(context.Context)

	mu     sync.Mutex
	state  State
	conn   Conn
	closed bool
	done   chan struct{}
}

// NewBridge creates a bridge bound to one project's stream.
func NewBridge(cfg Config, canvas *store.CanvasStore, logger *zap.Logger, metrics *observability.Metrics, opts ...Option) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	b := &Bridge{
		cfg:     cfg,
		canvas:  canvas,
		decoder: events.NewDecoder(),
		dialer:  NewGorillaDialer(DefaultHandshakeTimeout),
		clock:   SystemClock(),
		logger:  logger.With(zap.String("projectID", cfg.ProjectID.String())),
		metrics: metrics,
		state:   StateDisconnected,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Endpoint returns the stream URL the bridge connects to.
func (b *Bridge) Endpoint() string {
	return strings.TrimRight(b.cfg.BaseURL, "/") + "/ws/canvas/" + b.cfg.ProjectID.String()
}

// State returns the current connection state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Close stops the bridge and suppresses any further reconnects. Safe to
// call more than once.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	return nil
}

// Run connects and pumps events until the context is canceled, Close is
// called, or the reconnect budget is exhausted. Exhaustion returns the
// terminal connectivity error; orderly shutdown returns nil.
func (b *Bridge) Run(ctx context.Context) error {
	attempt := 0
	everConnected := false

	for {
		if b.stopping(ctx) {
			b.setState(StateDisconnected, nil)
			return nil
		}
		if attempt > 0 || everConnected {
			b.setState(StateReconnecting, nil)
		} else {
			b.setState(StateConnecting, nil)
		}

		conn, err := b.dialer.DialContext(ctx, b.Endpoint())
		if err != nil {
			attempt++
			if attempt >= b.cfg.MaxAttempts {
				termErr := pkgerrors.NewConnectivityError(
					fmt.Sprintf("giving up after %d connection attempts to %s", attempt, b.Endpoint()), err)
				b.logger.Error("reconnect attempts exhausted",
					zap.Int("attempts", attempt),
					zap.Error(err),
				)
				b.setState(StateFailed, termErr)
				return termErr
			}
			delay := time.Duration(attempt) * b.cfg.BackoffBase
			b.logger.Warn("connection attempt failed",
				zap.Int("attempt", attempt),
				zap.Duration("retryIn", delay),
				zap.Error(err),
			)
			b.metrics.RecordReconnect()
			if !b.sleep(ctx, delay) {
				b.setState(StateDisconnected, nil)
				return nil
			}
			continue
		}

		attempt = 0
		b.setConn(conn)
		b.setState(StateConnected, nil)
		b.logger.Info("connected", zap.String("url", b.Endpoint()))
		if everConnected && b.onResync != nil {
			b.onResync(ctx)
		}
		everConnected = true

		b.readLoop(ctx, conn)
		b.setConn(nil)
		conn.Close()

		if b.stopping(ctx) {
			b.setState(StateDisconnected, nil)
			return nil
		}

		// Dropped connection: the first retry waits one base interval.
		attempt = 1
		b.setState(StateReconnecting, nil)
		b.metrics.RecordReconnect()
		if !b.sleep(ctx, b.cfg.BackoffBase) {
			b.setState(StateDisconnected, nil)
			return nil
		}
	}
}

// readLoop pumps inbound frames until the connection breaks. A malformed
// frame is dropped; the loop keeps reading.
func (b *Bridge) readLoop(ctx context.Context, conn Conn) {
	stop := make(chan struct{})
	defer close(stop)
	go b.pingLoop(ctx, conn, stop)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(b.clock.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(b.clock.Now().Add(pongWait))
	})

	for {
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			if !b.stopping(ctx) && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Warn("stream read error", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		b.handleFrame(raw)
	}
}

// pingLoop keeps the connection alive until the read loop exits.
func (b *Bridge) pingLoop(ctx context.Context, conn Conn, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-b.clock.After(pingPeriod):
			conn.SetWriteDeadline(b.clock.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (b *Bridge) handleFrame(raw []byte) {
	event, err := b.decoder.Decode(raw)
	if err != nil {
		b.logger.Warn("dropping malformed frame", zap.Error(err))
		b.metrics.RecordDropped("malformed")
		return
	}
	b.metrics.RecordEvent(string(event.Kind()))
	b.dispatch(event)
}

func (b *Bridge) setConn(conn Conn) {
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
}

func (b *Bridge) setState(state State, err error) {
	b.mu.Lock()
	changed := b.state != state
	b.state = state
	onState := b.onState
	b.mu.Unlock()

	if !changed {
		return
	}
	b.metrics.SetConnectionState(state.gaugeValue())
	if onState != nil {
		onState(state, err)
	}
}

func (b *Bridge) stopping(ctx context.Context) bool {
	select {
	case <-b.done:
		return true
	default:
	}
	return ctx.Err() != nil
}

// sleep waits for the given delay; false means shutdown interrupted it.
func (b *Bridge) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	case <-b.clock.After(d):
		return true
	}
}
