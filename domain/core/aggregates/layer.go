package aggregates

import (
	"canvas-engine/domain/core/entities"
	"canvas-engine/domain/core/valueobjects"
	pkgerrors "canvas-engine/pkg/errors"
)

// LayerState is the aggregate root for one visualization layer's canvas.
// It owns the layer's node and edge collections and enforces their
// consistency boundary: every edge endpoint resolves to a present node,
// and deleting a node cascades to every edge referencing it.
//
// Nodes and edges keep insertion order for rendering while id lookups
// stay O(1); content-chunk routing uses a document-id index maintained
// on every mutation. LayerState itself is not goroutine-safe: the owning
// store serializes all access.
type LayerState struct {
	layer valueobjects.Layer

	nodeOrder []valueobjects.NodeID
	nodes     map[valueobjects.NodeID]*entities.VisualNode

	edgeOrder []valueobjects.EdgeID
	edges     map[valueobjects.EdgeID]*entities.VisualEdge

	// document id -> node id, documentation layer routing
	docIndex map[valueobjects.DocumentID]valueobjects.NodeID

	selected valueobjects.NodeID
}

// NewLayerState creates an empty layer.
func NewLayerState(layer valueobjects.Layer) *LayerState {
	return &LayerState{
		layer:    layer,
		nodes:    make(map[valueobjects.NodeID]*entities.VisualNode),
		edges:    make(map[valueobjects.EdgeID]*entities.VisualEdge),
		docIndex: make(map[valueobjects.DocumentID]valueobjects.NodeID),
	}
}

// Layer returns the layer this state belongs to.
func (s *LayerState) Layer() valueobjects.Layer {
	return s.layer
}

// AddNode inserts a node. Fails with a duplicate-id error if the id is
// already present; callers that want upsert semantics resolve the
// conflict themselves (the ingestion path treats duplicates as updates).
func (s *LayerState) AddNode(node *entities.VisualNode) error {
	if node == nil {
		return pkgerrors.NewValidationError("node cannot be nil")
	}
	if node.ID.IsZero() {
		return pkgerrors.NewValidationError("node id cannot be empty")
	}
	if _, exists := s.nodes[node.ID]; exists {
		return pkgerrors.NewDuplicateIDError("node", node.ID.String())
	}

	s.nodes[node.ID] = node
	s.nodeOrder = append(s.nodeOrder, node.ID)
	s.indexDocument(node)
	return nil
}

// UpdateNode merges a partial patch into an existing node. Returns a
// not-found error if the id is absent; callers on the streaming path
// tolerate it since updates may race ahead of creation.
func (s *LayerState) UpdateNode(id valueobjects.NodeID, patch entities.NodePatch) error {
	node, exists := s.nodes[id]
	if !exists {
		return pkgerrors.NewNotFoundError("node", id.String())
	}
	node.Apply(patch)
	return nil
}

// DeleteNode removes a node and cascades deletion of every edge that
// references it. Returns the ids of the removed edges.
func (s *LayerState) DeleteNode(id valueobjects.NodeID) ([]valueobjects.EdgeID, error) {
	node, exists := s.nodes[id]
	if !exists {
		return nil, pkgerrors.NewNotFoundError("node", id.String())
	}

	var removed []valueobjects.EdgeID
	for _, edgeID := range s.edgeOrder {
		if s.edges[edgeID].References(id) {
			removed = append(removed, edgeID)
		}
	}
	for _, edgeID := range removed {
		s.removeEdge(edgeID)
	}

	if doc := node.Document(); doc != nil {
		delete(s.docIndex, doc.DocumentID)
	}
	delete(s.nodes, id)
	s.nodeOrder = removeID(s.nodeOrder, id)

	if s.selected.Equals(id) {
		s.selected = ""
	}
	return removed, nil
}

// ReplaceNode swaps an existing node for a new instance with the same id,
// keeping insertion order and edges intact. Used to recover duplicate-id
// insertions from the stream as full updates.
func (s *LayerState) ReplaceNode(node *entities.VisualNode) error {
	if node == nil {
		return pkgerrors.NewValidationError("node cannot be nil")
	}
	existing, exists := s.nodes[node.ID]
	if !exists {
		return pkgerrors.NewNotFoundError("node", node.ID.String())
	}
	if doc := existing.Document(); doc != nil {
		delete(s.docIndex, doc.DocumentID)
	}
	s.nodes[node.ID] = node
	s.indexDocument(node)
	return nil
}

// AddEdge inserts an edge after verifying both endpoints exist. A missing
// endpoint yields a dangling-edge error; the caller may retry once the
// node arrives, or drop the edge.
func (s *LayerState) AddEdge(edge *entities.VisualEdge) error {
	if edge == nil {
		return pkgerrors.NewValidationError("edge cannot be nil")
	}
	if edge.ID.IsZero() {
		return pkgerrors.NewValidationError("edge id cannot be empty")
	}
	if _, exists := s.edges[edge.ID]; exists {
		return pkgerrors.NewDuplicateIDError("edge", edge.ID.String())
	}
	if _, ok := s.nodes[edge.Source]; !ok {
		return pkgerrors.NewDanglingEdgeError(edge.ID.String(), edge.Source.String())
	}
	if _, ok := s.nodes[edge.Target]; !ok {
		return pkgerrors.NewDanglingEdgeError(edge.ID.String(), edge.Target.String())
	}

	s.edges[edge.ID] = edge
	s.edgeOrder = append(s.edgeOrder, edge.ID)
	return nil
}

// DeleteEdge removes an edge by id. No-op if absent.
func (s *LayerState) DeleteEdge(id valueobjects.EdgeID) {
	if _, exists := s.edges[id]; !exists {
		return
	}
	s.removeEdge(id)
}

// SetNodes replaces the node collection, used for initial load and
// post-reconnect resynchronization. Selection survives if the selected
// node is still present; otherwise it is cleared. Edges referencing nodes
// absent from the new collection are dropped to keep the invariant.
func (s *LayerState) SetNodes(nodes []*entities.VisualNode) {
	s.nodes = make(map[valueobjects.NodeID]*entities.VisualNode, len(nodes))
	s.nodeOrder = s.nodeOrder[:0]
	s.docIndex = make(map[valueobjects.DocumentID]valueobjects.NodeID)

	for _, node := range nodes {
		if node == nil || node.ID.IsZero() {
			continue
		}
		if _, dup := s.nodes[node.ID]; dup {
			continue
		}
		s.nodes[node.ID] = node
		s.nodeOrder = append(s.nodeOrder, node.ID)
		s.indexDocument(node)
	}

	var orphaned []valueobjects.EdgeID
	for _, edgeID := range s.edgeOrder {
		edge := s.edges[edgeID]
		if _, ok := s.nodes[edge.Source]; !ok {
			orphaned = append(orphaned, edgeID)
			continue
		}
		if _, ok := s.nodes[edge.Target]; !ok {
			orphaned = append(orphaned, edgeID)
		}
	}
	for _, edgeID := range orphaned {
		s.removeEdge(edgeID)
	}

	if !s.selected.IsZero() {
		if _, ok := s.nodes[s.selected]; !ok {
			s.selected = ""
		}
	}
}

// SetEdges replaces the edge collection. Edges with a missing endpoint or
// a duplicate id are skipped, never inserted, so a stale initial load can
// not break the no-dangling-edges invariant.
func (s *LayerState) SetEdges(edges []*entities.VisualEdge) []*entities.VisualEdge {
	s.edges = make(map[valueobjects.EdgeID]*entities.VisualEdge, len(edges))
	s.edgeOrder = s.edgeOrder[:0]

	var skipped []*entities.VisualEdge
	for _, edge := range edges {
		if edge == nil || edge.ID.IsZero() {
			continue
		}
		if _, dup := s.edges[edge.ID]; dup {
			skipped = append(skipped, edge)
			continue
		}
		if _, ok := s.nodes[edge.Source]; !ok {
			skipped = append(skipped, edge)
			continue
		}
		if _, ok := s.nodes[edge.Target]; !ok {
			skipped = append(skipped, edge)
			continue
		}
		s.edges[edge.ID] = edge
		s.edgeOrder = append(s.edgeOrder, edge.ID)
	}
	return skipped
}

// Select sets the selection pointer. The id is not validated: selecting a
// since-deleted node is permitted and renders as no selection.
func (s *LayerState) Select(id valueobjects.NodeID) {
	s.selected = id
}

// Selected returns the selected node id, or the zero id if none.
func (s *LayerState) Selected() valueobjects.NodeID {
	return s.selected
}

// GetNode returns the node with the given id, if present.
func (s *LayerState) GetNode(id valueobjects.NodeID) (*entities.VisualNode, bool) {
	node, ok := s.nodes[id]
	return node, ok
}

// HasNode reports whether a node id is present.
func (s *LayerState) HasNode(id valueobjects.NodeID) bool {
	_, ok := s.nodes[id]
	return ok
}

// GetEdge returns the edge with the given id, if present.
func (s *LayerState) GetEdge(id valueobjects.EdgeID) (*entities.VisualEdge, bool) {
	edge, ok := s.edges[id]
	return edge, ok
}

// NodeByDocument resolves the node rendering a document id via the index.
func (s *LayerState) NodeByDocument(docID valueobjects.DocumentID) (*entities.VisualNode, bool) {
	nodeID, ok := s.docIndex[docID]
	if !ok {
		return nil, false
	}
	node, ok := s.nodes[nodeID]
	return node, ok
}

// EdgesFrom returns the edges of a given type whose source is the node.
func (s *LayerState) EdgesFrom(id valueobjects.NodeID, edgeType entities.EdgeType) []*entities.VisualEdge {
	var out []*entities.VisualEdge
	for _, edgeID := range s.edgeOrder {
		edge := s.edges[edgeID]
		if edge.Source.Equals(id) && edge.Type == edgeType {
			out = append(out, edge)
		}
	}
	return out
}

// Nodes returns the node collection in insertion order.
func (s *LayerState) Nodes() []*entities.VisualNode {
	out := make([]*entities.VisualNode, 0, len(s.nodeOrder))
	for _, id := range s.nodeOrder {
		out = append(out, s.nodes[id])
	}
	return out
}

// Edges returns the edge collection in insertion order.
func (s *LayerState) Edges() []*entities.VisualEdge {
	out := make([]*entities.VisualEdge, 0, len(s.edgeOrder))
	for _, id := range s.edgeOrder {
		out = append(out, s.edges[id])
	}
	return out
}

// NodeCount returns the number of nodes.
func (s *LayerState) NodeCount() int {
	return len(s.nodes)
}

// EdgeCount returns the number of edges.
func (s *LayerState) EdgeCount() int {
	return len(s.edges)
}

// Validate asserts the layer's invariants: no dangling edges, order
// slices consistent with the maps, document index entries resolvable.
func (s *LayerState) Validate() error {
	if len(s.nodeOrder) != len(s.nodes) {
		return pkgerrors.NewInternalError("node order out of sync with node map")
	}
	if len(s.edgeOrder) != len(s.edges) {
		return pkgerrors.NewInternalError("edge order out of sync with edge map")
	}
	for _, edge := range s.edges {
		if _, ok := s.nodes[edge.Source]; !ok {
			return pkgerrors.NewDanglingEdgeError(edge.ID.String(), edge.Source.String())
		}
		if _, ok := s.nodes[edge.Target]; !ok {
			return pkgerrors.NewDanglingEdgeError(edge.ID.String(), edge.Target.String())
		}
	}
	for docID, nodeID := range s.docIndex {
		node, ok := s.nodes[nodeID]
		if !ok {
			return pkgerrors.NewInternalError("document index references missing node " + nodeID.String())
		}
		doc := node.Document()
		if doc == nil || doc.DocumentID != docID {
			return pkgerrors.NewInternalError("document index entry does not match node payload")
		}
	}
	return nil
}

func (s *LayerState) indexDocument(node *entities.VisualNode) {
	if doc := node.Document(); doc != nil && !doc.DocumentID.IsZero() {
		s.docIndex[doc.DocumentID] = node.ID
	}
}

func (s *LayerState) removeEdge(id valueobjects.EdgeID) {
	delete(s.edges, id)
	s.edgeOrder = removeEdgeID(s.edgeOrder, id)
}

func removeID(ids []valueobjects.NodeID, id valueobjects.NodeID) []valueobjects.NodeID {
	for i, candidate := range ids {
		if candidate.Equals(id) {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func removeEdgeID(ids []valueobjects.EdgeID, id valueobjects.EdgeID) []valueobjects.EdgeID {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
