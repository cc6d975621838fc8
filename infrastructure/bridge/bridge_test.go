package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"canvas-engine/application/store"
	"canvas-engine/domain/core/entities"
	"canvas-engine/domain/core/valueobjects"
	"canvas-engine/domain/events"
	pkgerrors "canvas-engine/pkg/errors"
)

// fakeClock delivers After channels only when the test advances it.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []fakeWaiter
}

type fakeWaiter struct {
	at time.Time
	ch chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	c.waiters = append(c.waiters, fakeWaiter{at: c.now.Add(d), ch: ch})
	c.mu.Unlock()
	return ch
}

// pendingWithin counts waiters due within d of the current fake time.
func (c *fakeClock) pendingWithin(d time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.waiters {
		if !w.at.After(c.now.Add(d)) {
			n++
		}
	}
	return n
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var remaining []fakeWaiter
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			w.ch <- c.now
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
	c.mu.Unlock()
}

// fakeConn serves scripted frames; closing the frames channel simulates
// the peer dropping the connection.
type fakeConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case frame, ok := <-c.frames:
		if !ok {
			return 0, nil, errors.New("connection reset by peer")
		}
		return websocket.TextMessage, frame, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(int, []byte) error    { return nil }
func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) drop() {
	close(c.frames)
}

// fakeDialer hands out scripted outcomes; the last one repeats.
type fakeDialer struct {
	mu      sync.Mutex
	conns   []*fakeConn
	errs    []error
	calls   int
	lastURL string
}

func (d *fakeDialer) script(conn *fakeConn, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns = append(d.conns, conn)
	d.errs = append(d.errs, err)
}

func (d *fakeDialer) DialContext(_ context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastURL = url

	idx := d.calls
	d.calls++
	if idx >= len(d.errs) {
		idx = len(d.errs) - 1
	}
	if idx < 0 {
		return nil, errors.New("no scripted outcome")
	}
	if d.errs[idx] != nil {
		return nil, d.errs[idx]
	}
	return d.conns[idx], nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// stateRecorder captures state transitions and their errors.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
	errs   []error
}

func (r *stateRecorder) record(state State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	r.errs = append(r.errs, err)
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *stateRecorder) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return ""
	}
	return r.states[len(r.states)-1]
}

func (r *stateRecorder) failures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []error
	for i, state := range r.states {
		if state == StateFailed {
			out = append(out, r.errs[i])
		}
	}
	return out
}

func newTestBridge(t *testing.T, dialer *fakeDialer, clock *fakeClock, canvas *store.CanvasStore, opts ...Option) (*Bridge, *stateRecorder) {
	t.Helper()
	rec := &stateRecorder{}
	opts = append([]Option{
		WithDialer(dialer),
		WithClock(clock),
		WithStateHandler(rec.record),
	}, opts...)
	b := NewBridge(Config{
		BaseURL:     "ws://stream.test",
		ProjectID:   "proj-1",
		BackoffBase: time.Second,
		MaxAttempts: 5,
	}, canvas, zaptest.NewLogger(t), nil, opts...)
	return b, rec
}

func nodeCreatedFrame(t *testing.T, node *entities.VisualNode) []byte {
	t.Helper()
	frame, err := events.EncodeEnvelope(events.KindNodeCreated, map[string]interface{}{
		"layer": "documentation",
		"node":  node,
	})
	require.NoError(t, err)
	return frame
}

func testDocNode(t *testing.T) *entities.VisualNode {
	t.Helper()
	node, err := entities.NewVisualNode(entities.NodeTypeDocument, "Spec",
		valueobjects.NewPosition(0, 0, 0), &entities.DocumentData{
			DocumentID: valueobjects.NewDocumentID(),
			Title:      "Spec",
			DocType:    "architecture",
			Format:     "markdown",
			Version:    1,
			IsLatest:   true,
		})
	require.NoError(t, err)
	return node
}

func TestBridge_Endpoint(t *testing.T) {
	canvas := store.NewCanvasStore(zaptest.NewLogger(t), nil)
	b := NewBridge(Config{BaseURL: "ws://host:8000/", ProjectID: "p-9"}, canvas, zaptest.NewLogger(t), nil)

	assert.Equal(t, "ws://host:8000/ws/canvas/p-9", b.Endpoint())
}

func TestBridge_AppliesStreamedEvents(t *testing.T) {
	canvas := store.NewCanvasStore(zaptest.NewLogger(t), nil)
	conn := newFakeConn()
	dialer := &fakeDialer{}
	dialer.script(conn, nil)
	clock := newFakeClock()

	b, rec := newTestBridge(t, dialer, clock, canvas)
	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	node := testDocNode(t)
	conn.frames <- nodeCreatedFrame(t, node)

	require.Eventually(t, func() bool {
		_, ok := canvas.GetNode(valueobjects.LayerDocumentation, node.ID)
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateConnected, rec.last())
	assert.Equal(t, "ws://stream.test/ws/canvas/proj-1", dialer.lastURL)

	require.NoError(t, b.Close())
	require.NoError(t, <-done)
	assert.Equal(t, StateDisconnected, b.State())
}

func TestBridge_MalformedFrameIsSkipped(t *testing.T) {
	canvas := store.NewCanvasStore(zaptest.NewLogger(t), nil)
	conn := newFakeConn()
	dialer := &fakeDialer{}
	dialer.script(conn, nil)
	clock := newFakeClock()

	b, _ := newTestBridge(t, dialer, clock, canvas)
	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	node := testDocNode(t)
	conn.frames <- []byte(`{"event": "node_exploded", "data": {}}`)
	conn.frames <- []byte(`not even json`)
	conn.frames <- nodeCreatedFrame(t, node)

	require.Eventually(t, func() bool {
		_, ok := canvas.GetNode(valueobjects.LayerDocumentation, node.ID)
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateConnected, b.State())

	require.NoError(t, b.Close())
	<-done
}

func TestBridge_ReconnectsAfterBaseDelay(t *testing.T) {
	canvas := store.NewCanvasStore(zaptest.NewLogger(t), nil)
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	dialer := &fakeDialer{}
	dialer.script(conn1, nil)
	dialer.script(conn2, nil)
	clock := newFakeClock()

	resyncs := 0
	var resyncMu sync.Mutex
	b, rec := newTestBridge(t, dialer, clock, canvas, WithResyncHandler(func(context.Context) {
		resyncMu.Lock()
		resyncs++
		resyncMu.Unlock()
	}))

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	require.Eventually(t, func() bool { return b.State() == StateConnected }, time.Second, 5*time.Millisecond)

	conn1.drop()

	// The bridge must wait out one base interval before redialing.
	require.Eventually(t, func() bool {
		return b.State() == StateReconnecting && clock.pendingWithin(time.Second) >= 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, dialer.callCount())

	clock.advance(time.Second)

	require.Eventually(t, func() bool { return b.State() == StateConnected }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, dialer.callCount())
	assert.Contains(t, rec.all(), StateReconnecting)

	resyncMu.Lock()
	assert.Equal(t, 1, resyncs)
	resyncMu.Unlock()

	require.NoError(t, b.Close())
	<-done
}

func TestBridge_TerminalErrorAfterMaxAttempts(t *testing.T) {
	canvas := store.NewCanvasStore(zaptest.NewLogger(t), nil)
	dialer := &fakeDialer{}
	dialer.script(nil, errors.New("connection refused"))
	clock := newFakeClock()

	b, rec := newTestBridge(t, dialer, clock, canvas)

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	// Each failed attempt schedules a linear backoff; ride out four of
	// them, the fifth failure is terminal.
	for i := 0; i < 4; i++ {
		require.Eventually(t, func() bool {
			return clock.pendingWithin(10*time.Second) >= 1
		}, time.Second, 5*time.Millisecond)
		clock.advance(10 * time.Second)
	}

	err := <-done
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConnectivity(err))
	assert.Equal(t, 5, dialer.callCount())

	failures := rec.failures()
	require.Len(t, failures, 1)
	assert.True(t, pkgerrors.IsConnectivity(failures[0]))
	assert.Equal(t, StateFailed, b.State())
}

func TestBridge_CloseSuppressesReconnect(t *testing.T) {
	canvas := store.NewCanvasStore(zaptest.NewLogger(t), nil)
	conn := newFakeConn()
	dialer := &fakeDialer{}
	dialer.script(conn, nil)
	clock := newFakeClock()

	b, _ := newTestBridge(t, dialer, clock, canvas)

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	require.Eventually(t, func() bool { return b.State() == StateConnected }, time.Second, 5*time.Millisecond)

	conn.drop()
	require.Eventually(t, func() bool { return b.State() == StateReconnecting }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close()) // idempotent

	require.NoError(t, <-done)
	assert.Equal(t, 1, dialer.callCount())
	assert.Equal(t, StateDisconnected, b.State())
}

func TestDispatch_ToleratesGraphRaces(t *testing.T) {
	canvas := store.NewCanvasStore(zaptest.NewLogger(t), nil)
	dialer := &fakeDialer{}
	clock := newFakeClock()
	b, _ := newTestBridge(t, dialer, clock, canvas)

	// Update ahead of creation: dropped.
	label := "renamed"
	b.dispatch(events.NodeUpdate{
		Layer:  valueobjects.LayerDocumentation,
		NodeID: valueobjects.NewNodeID(),
		Patch:  entities.NodePatch{Label: &label},
	})

	// Edge ahead of its nodes: dropped.
	b.dispatch(events.EdgeCreated{
		Layer: valueobjects.LayerDocumentation,
		Edge:  entities.NewVisualEdge(valueobjects.NewNodeID(), valueobjects.NewNodeID(), entities.EdgeTypeRelatedTo),
	})
	assert.Empty(t, canvas.Edges(valueobjects.LayerDocumentation))

	// Redelivered creation: applied as replacement.
	node := testDocNode(t)
	b.dispatch(events.NodeCreated{Layer: valueobjects.LayerDocumentation, Node: node})
	renamed := node.Clone()
	renamed.Label = "Spec (redelivered)"
	b.dispatch(events.NodeCreated{Layer: valueobjects.LayerDocumentation, Node: renamed})

	got, ok := canvas.GetNode(valueobjects.LayerDocumentation, node.ID)
	require.True(t, ok)
	assert.Equal(t, "Spec (redelivered)", got.Label)
	assert.Len(t, canvas.Nodes(valueobjects.LayerDocumentation), 1)

	// Chunks route by document id; collapse removes historical nodes.
	docID := node.Document().DocumentID
	b.dispatch(events.ContentChunk{DocumentID: docID, Chunk: "body", Progress: 1})
	got, _ = canvas.GetNode(valueobjects.LayerDocumentation, node.ID)
	assert.Equal(t, "body", got.Document().Content)

	b.dispatch(events.StackCollapsed{
		DeletedDocumentIDs:  []valueobjects.DocumentID{docID},
		RemainingDocumentID: valueobjects.NewDocumentID(),
	})
	assert.Empty(t, canvas.Nodes(valueobjects.LayerDocumentation))
}

func TestDispatch_VersionCreatedLinksPredecessor(t *testing.T) {
	canvas := store.NewCanvasStore(zaptest.NewLogger(t), nil)
	b, _ := newTestBridge(t, &fakeDialer{}, newFakeClock(), canvas)

	v1 := testDocNode(t)
	b.dispatch(events.NodeCreated{Layer: valueobjects.LayerDocumentation, Node: v1})

	v2, err := entities.NewVisualNode(entities.NodeTypeDocument, "Spec v2",
		v1.Position.Translate(0, -20).Raise(1), &entities.DocumentData{
			DocumentID:      valueobjects.NewDocumentID(),
			Title:           "Spec",
			DocType:         "architecture",
			Format:          "markdown",
			Version:         2,
			ParentVersionID: v1.Document().DocumentID,
			IsLatest:        true,
		})
	require.NoError(t, err)

	created := events.VersionCreated{
		DocumentID: v2.Document().DocumentID,
		Version:    2,
		Node:       v2,
	}
	b.dispatch(created)

	edges := canvas.Edges(valueobjects.LayerDocumentation)
	require.Len(t, edges, 1)
	assert.Equal(t, entities.EdgeTypeSupersedes, edges[0].Type)
	assert.Equal(t, v2.ID, edges[0].Source)
	assert.Equal(t, v1.ID, edges[0].Target)

	// Redelivery replaces the node without duplicating the link.
	b.dispatch(created)
	assert.Len(t, canvas.Edges(valueobjects.LayerDocumentation), 1)

	// The streamed version participates in local stacking: chain depth
	// and the stored version field agree.
	v3, err := canvas.SupersedeDocument(v2.ID, "revised body", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Document().Version)

	chain, err := canvas.VersionChain(v1.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, v3.ID, chain[0].ID)
	assert.Equal(t, v1.ID, chain[2].ID)
}

func TestDispatch_VersionCreatedToleratesUnknownPredecessor(t *testing.T) {
	canvas := store.NewCanvasStore(zaptest.NewLogger(t), nil)
	b, _ := newTestBridge(t, &fakeDialer{}, newFakeClock(), canvas)

	orphan, err := entities.NewVisualNode(entities.NodeTypeDocument, "Spec v2",
		valueobjects.NewPosition(0, -20, 1), &entities.DocumentData{
			DocumentID:      valueobjects.NewDocumentID(),
			Title:           "Spec",
			Version:         2,
			ParentVersionID: valueobjects.NewDocumentID(),
			IsLatest:        true,
		})
	require.NoError(t, err)

	b.dispatch(events.VersionCreated{
		DocumentID: orphan.Document().DocumentID,
		Version:    2,
		Node:       orphan,
	})

	_, ok := canvas.GetNode(valueobjects.LayerDocumentation, orphan.ID)
	assert.True(t, ok, "node lands even when the link cannot")
	assert.Empty(t, canvas.Edges(valueobjects.LayerDocumentation))
}
