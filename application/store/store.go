package store

import (
	"sync"

	"go.uber.org/zap"

	"canvas-engine/domain/core/aggregates"
	"canvas-engine/domain/core/entities"
	"canvas-engine/domain/core/valueobjects"
	pkgerrors "canvas-engine/pkg/errors"
	"canvas-engine/pkg/observability"
)

// ChangeKind labels a state transition observable by subscribers.
type ChangeKind string

const (
	ChangeNodeAdded          ChangeKind = "node_added"
	ChangeNodeUpdated        ChangeKind = "node_updated"
	ChangeNodeDeleted        ChangeKind = "node_deleted"
	ChangeNodesReplaced      ChangeKind = "nodes_replaced"
	ChangeEdgeAdded          ChangeKind = "edge_added"
	ChangeEdgeDeleted        ChangeKind = "edge_deleted"
	ChangeEdgesReplaced      ChangeKind = "edges_replaced"
	ChangeSelection          ChangeKind = "selection_changed"
	ChangeContentAppended    ChangeKind = "content_appended"
	ChangeGenerationComplete ChangeKind = "generation_complete"
	ChangeVersionCreated     ChangeKind = "version_created"
)

// Change describes one applied mutation.
type Change struct {
	Layer  valueobjects.Layer
	Kind   ChangeKind
	NodeID valueobjects.NodeID
	EdgeID valueobjects.EdgeID
}

// CanvasStore owns the three layer states and is the single mutation
// choke point: local user actions, the ingestion bridge and completion
// handlers of asynchronous requests all mutate through it. Every mutation
// runs to completion under one mutex before the next begins, so a read
// observes either the old state or the fully-applied new state, never an
// edge without its node.
//
// Reads hand out clones; nothing outside the store ever holds a live
// reference to owned node or edge instances.
type CanvasStore struct {
	mu      sync.Mutex
	layers  map[valueobjects.Layer]*aggregates.LayerState
	logger  *zap.Logger
	metrics *observability.Metrics

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int

	outMu     sync.Mutex
	outbox    []Change
	deliverMu sync.Mutex
}

// NewCanvasStore creates a store with the three empty layers.
func NewCanvasStore(logger *zap.Logger, metrics *observability.Metrics) *CanvasStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	layers := make(map[valueobjects.Layer]*aggregates.LayerState, 3)
	for _, layer := range valueobjects.Layers() {
		layers[layer] = aggregates.NewLayerState(layer)
	}
	return &CanvasStore{
		layers:  layers,
		logger:  logger,
		metrics: metrics,
		subs:    make(map[int]func(Change)),
	}
}

// Subscribe registers a change callback and returns its unsubscribe
// function. Callbacks run after the mutation has been applied, in
// mutation order, and must not synchronously mutate the store.
func (s *CanvasStore) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// enqueueLocked appends changes to the outbox. Callers hold s.mu, so the
// outbox order is the mutation order.
func (s *CanvasStore) enqueueLocked(changes ...Change) {
	s.outMu.Lock()
	s.outbox = append(s.outbox, changes...)
	s.outMu.Unlock()
}

// deliver drains the outbox to subscribers. A single delivery lock keeps
// notifications in outbox order even when mutations race on different
// goroutines; a slow subscriber makes concurrent mutators wait here, not
// inside the state mutex.
func (s *CanvasStore) deliver() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	for {
		s.outMu.Lock()
		batch := s.outbox
		s.outbox = nil
		s.outMu.Unlock()
		if len(batch) == 0 {
			return
		}

		s.subMu.Lock()
		fns := make([]func(Change), 0, len(s.subs))
		for _, fn := range s.subs {
			fns = append(fns, fn)
		}
		s.subMu.Unlock()

		for _, change := range batch {
			for _, fn := range fns {
				fn(change)
			}
		}
	}
}

func (s *CanvasStore) layerState(layer valueobjects.Layer) (*aggregates.LayerState, error) {
	state, ok := s.layers[layer]
	if !ok {
		return nil, pkgerrors.NewValidationError("unknown layer " + layer.String())
	}
	return state, nil
}

func (s *CanvasStore) recordSize(state *aggregates.LayerState) {
	s.metrics.SetLayerSize(state.Layer().String(), state.NodeCount(), state.EdgeCount())
}

// AddNode inserts a node into a layer. Fails with a duplicate-id error if
// the id already exists.
func (s *CanvasStore) AddNode(layer valueobjects.Layer, node *entities.VisualNode) error {
	if node == nil {
		return pkgerrors.NewValidationError("node cannot be nil")
	}

	s.mu.Lock()
	state, err := s.layerState(layer)
	if err == nil {
		err = state.AddNode(node.Clone())
		if err == nil {
			s.recordSize(state)
			s.enqueueLocked(Change{Layer: layer, Kind: ChangeNodeAdded, NodeID: node.ID})
		}
	}
	s.mu.Unlock()

	s.metrics.RecordMutation(layer.String(), "add_node", err)
	if err != nil {
		return err
	}
	s.deliver()
	return nil
}

// PutNode inserts a node, or fully replaces an existing one with the same
// id while preserving its creation time. The ingestion path uses it to
// recover duplicate-id races as updates.
func (s *CanvasStore) PutNode(layer valueobjects.Layer, node *entities.VisualNode) error {
	if node == nil {
		return pkgerrors.NewValidationError("node cannot be nil")
	}

	s.mu.Lock()
	state, err := s.layerState(layer)
	if err == nil {
		clone := node.Clone()
		kind := ChangeNodeAdded
		if existing, ok := state.GetNode(node.ID); ok {
			clone.CreatedAt = existing.CreatedAt
			err = state.ReplaceNode(clone)
			kind = ChangeNodeUpdated
		} else {
			err = state.AddNode(clone)
		}
		if err == nil {
			s.recordSize(state)
			s.enqueueLocked(Change{Layer: layer, Kind: kind, NodeID: node.ID})
		}
	}
	s.mu.Unlock()

	s.metrics.RecordMutation(layer.String(), "put_node", err)
	if err != nil {
		return err
	}
	s.deliver()
	return nil
}

// UpdateNode merges a partial patch into an existing node. Not-found is
// surfaced as an error; streaming callers tolerate it, user-facing
// callers report it.
func (s *CanvasStore) UpdateNode(layer valueobjects.Layer, id valueobjects.NodeID, patch entities.NodePatch) error {
	s.mu.Lock()
	state, err := s.layerState(layer)
	if err == nil {
		err = state.UpdateNode(id, patch)
		if err == nil {
			s.enqueueLocked(Change{Layer: layer, Kind: ChangeNodeUpdated, NodeID: id})
		}
	}
	s.mu.Unlock()

	s.metrics.RecordMutation(layer.String(), "update_node", err)
	if err != nil {
		return err
	}
	s.deliver()
	return nil
}

// MoveNode applies an optimistic position change, e.g. a local drag.
// Last write wins against concurrent server-pushed updates.
func (s *CanvasStore) MoveNode(layer valueobjects.Layer, id valueobjects.NodeID, pos valueobjects.Position) error {
	return s.UpdateNode(layer, id, entities.NodePatch{Position: &pos})
}

// DeleteNode removes a node and cascades deletion of its edges.
func (s *CanvasStore) DeleteNode(layer valueobjects.Layer, id valueobjects.NodeID) error {
	s.mu.Lock()
	state, err := s.layerState(layer)
	if err == nil {
		var removedEdges []valueobjects.EdgeID
		removedEdges, err = state.DeleteNode(id)
		if err == nil {
			s.recordSize(state)
			changes := make([]Change, 0, len(removedEdges)+1)
			for _, edgeID := range removedEdges {
				changes = append(changes, Change{Layer: layer, Kind: ChangeEdgeDeleted, EdgeID: edgeID})
			}
			changes = append(changes, Change{Layer: layer, Kind: ChangeNodeDeleted, NodeID: id})
			s.enqueueLocked(changes...)
		}
	}
	s.mu.Unlock()

	s.metrics.RecordMutation(layer.String(), "delete_node", err)
	if err != nil {
		return err
	}
	s.deliver()
	return nil
}

// SetNodes replaces a layer's node collection (initial load or
// post-reconnect resync). Selection survives when still valid.
func (s *CanvasStore) SetNodes(layer valueobjects.Layer, nodes []*entities.VisualNode) error {
	s.mu.Lock()
	state, err := s.layerState(layer)
	if err == nil {
		clones := make([]*entities.VisualNode, 0, len(nodes))
		for _, node := range nodes {
			if node != nil {
				clones = append(clones, node.Clone())
			}
		}
		state.SetNodes(clones)
		s.recordSize(state)
		s.enqueueLocked(Change{Layer: layer, Kind: ChangeNodesReplaced})
	}
	s.mu.Unlock()

	s.metrics.RecordMutation(layer.String(), "set_nodes", err)
	if err != nil {
		return err
	}
	s.deliver()
	return nil
}

// SetEdges replaces a layer's edge collection. Edges referencing missing
// nodes are skipped and logged, never inserted.
func (s *CanvasStore) SetEdges(layer valueobjects.Layer, edges []*entities.VisualEdge) error {
	s.mu.Lock()
	state, err := s.layerState(layer)
	var skipped []*entities.VisualEdge
	if err == nil {
		clones := make([]*entities.VisualEdge, 0, len(edges))
		for _, edge := range edges {
			if edge != nil {
				clones = append(clones, edge.Clone())
			}
		}
		skipped = state.SetEdges(clones)
		s.recordSize(state)
		s.enqueueLocked(Change{Layer: layer, Kind: ChangeEdgesReplaced})
	}
	s.mu.Unlock()

	s.metrics.RecordMutation(layer.String(), "set_edges", err)
	if err != nil {
		return err
	}
	for _, edge := range skipped {
		s.logger.Warn("skipped edge with missing endpoint during replace",
			zap.String("layer", layer.String()),
			zap.String("edgeID", edge.ID.String()),
		)
	}
	s.deliver()
	return nil
}

// AddEdge inserts an edge; both endpoints must already exist in the layer.
func (s *CanvasStore) AddEdge(layer valueobjects.Layer, edge *entities.VisualEdge) error {
	if edge == nil {
		return pkgerrors.NewValidationError("edge cannot be nil")
	}

	s.mu.Lock()
	state, err := s.layerState(layer)
	if err == nil {
		err = state.AddEdge(edge.Clone())
		if err == nil {
			s.recordSize(state)
			s.enqueueLocked(Change{Layer: layer, Kind: ChangeEdgeAdded, EdgeID: edge.ID})
		}
	}
	s.mu.Unlock()

	s.metrics.RecordMutation(layer.String(), "add_edge", err)
	if err != nil {
		return err
	}
	s.deliver()
	return nil
}

// DeleteEdge removes an edge by id. No-op if absent.
func (s *CanvasStore) DeleteEdge(layer valueobjects.Layer, id valueobjects.EdgeID) error {
	s.mu.Lock()
	state, err := s.layerState(layer)
	if err == nil {
		if _, existed := state.GetEdge(id); existed {
			state.DeleteEdge(id)
			s.recordSize(state)
			s.enqueueLocked(Change{Layer: layer, Kind: ChangeEdgeDeleted, EdgeID: id})
		}
	}
	s.mu.Unlock()

	s.metrics.RecordMutation(layer.String(), "delete_edge", err)
	if err != nil {
		return err
	}
	s.deliver()
	return nil
}

// SelectNode sets a layer's selection pointer. The zero id clears the
// selection; existence is deliberately not validated.
func (s *CanvasStore) SelectNode(layer valueobjects.Layer, id valueobjects.NodeID) error {
	s.mu.Lock()
	state, err := s.layerState(layer)
	if err == nil {
		state.Select(id)
		s.enqueueLocked(Change{Layer: layer, Kind: ChangeSelection, NodeID: id})
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.deliver()
	return nil
}

// Nodes returns clones of a layer's nodes in insertion order.
func (s *CanvasStore) Nodes(layer valueobjects.Layer) []*entities.VisualNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.layerState(layer)
	if err != nil {
		return nil
	}
	nodes := state.Nodes()
	out := make([]*entities.VisualNode, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, node.Clone())
	}
	return out
}

// Edges returns clones of a layer's edges in insertion order.
func (s *CanvasStore) Edges(layer valueobjects.Layer) []*entities.VisualEdge {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.layerState(layer)
	if err != nil {
		return nil
	}
	edges := state.Edges()
	out := make([]*entities.VisualEdge, 0, len(edges))
	for _, edge := range edges {
		out = append(out, edge.Clone())
	}
	return out
}

// GetNode returns a clone of one node, if present.
func (s *CanvasStore) GetNode(layer valueobjects.Layer, id valueobjects.NodeID) (*entities.VisualNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.layerState(layer)
	if err != nil {
		return nil, false
	}
	node, ok := state.GetNode(id)
	if !ok {
		return nil, false
	}
	return node.Clone(), true
}

// NodeByDocument returns a clone of the node rendering the given
// document, if present.
func (s *CanvasStore) NodeByDocument(layer valueobjects.Layer, docID valueobjects.DocumentID) (*entities.VisualNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.layerState(layer)
	if err != nil {
		return nil, false
	}
	node, ok := state.NodeByDocument(docID)
	if !ok {
		return nil, false
	}
	return node.Clone(), true
}

// Selected returns a layer's selection pointer; the zero id means none.
func (s *CanvasStore) Selected(layer valueobjects.Layer) valueobjects.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.layerState(layer)
	if err != nil {
		return ""
	}
	return state.Selected()
}

// Snapshot returns a consistent copy of one layer: nodes, edges and
// selection captured under a single critical section.
func (s *CanvasStore) Snapshot(layer valueobjects.Layer) ([]*entities.VisualNode, []*entities.VisualEdge, valueobjects.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.layerState(layer)
	if err != nil {
		return nil, nil, ""
	}
	nodes := state.Nodes()
	nodeClones := make([]*entities.VisualNode, 0, len(nodes))
	for _, node := range nodes {
		nodeClones = append(nodeClones, node.Clone())
	}
	edges := state.Edges()
	edgeClones := make([]*entities.VisualEdge, 0, len(edges))
	for _, edge := range edges {
		edgeClones = append(edgeClones, edge.Clone())
	}
	return nodeClones, edgeClones, state.Selected()
}

// Validate asserts every layer's invariants. Exposed for tests and
// post-resync sanity checks.
func (s *CanvasStore) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, state := range s.layers {
		if err := state.Validate(); err != nil {
			return err
		}
	}
	return nil
}
