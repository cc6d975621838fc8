package store

import (
	"fmt"
	"time"

	"canvas-engine/domain/core/entities"
	"canvas-engine/domain/core/valueobjects"
	pkgerrors "canvas-engine/pkg/errors"
)

// Visual stacking offsets applied per document version.
const (
	stackZOffset = 1
	stackYOffset = 20.0
)

// SupersedeDocument creates a new version of the document rendered by the
// given node: a fresh node stacked above the old one (y-20, z+1) linked
// by a supersedes edge from new to old. The historical node keeps its
// content untouched; only its latest flag flips.
//
// The new version number is derived from the supersedes chain depth, so
// the numeric field and the edge chain cannot drift apart.
func (s *CanvasStore) SupersedeDocument(nodeID valueobjects.NodeID, newContent string, tags []string) (*entities.VisualNode, error) {
	layer := valueobjects.LayerDocumentation

	s.mu.Lock()
	state := s.layers[layer]

	current, ok := state.GetNode(nodeID)
	if !ok {
		s.mu.Unlock()
		return nil, pkgerrors.NewNotFoundError("node", nodeID.String())
	}
	currentDoc := current.Document()
	if currentDoc == nil {
		s.mu.Unlock()
		return nil, pkgerrors.NewValidationError("node is not a document")
	}
	if succ := s.successorLocked(state, nodeID); !succ.IsZero() {
		// Only the top of the stack may be superseded; anything else
		// would fork the chain.
		s.mu.Unlock()
		return nil, pkgerrors.NewValidationError("document version is already superseded")
	}

	// Version is authoritative from the chain; the stored field must agree.
	depth := s.chainDepthLocked(state, nodeID)
	if currentDoc.Version != depth {
		s.mu.Unlock()
		return nil, pkgerrors.NewInternalError(fmt.Sprintf(
			"version field %d disagrees with supersedes chain depth %d for node %s",
			currentDoc.Version, depth, nodeID.String()))
	}
	newVersion := depth + 1

	now := time.Now()
	newNode := current.Clone()
	newNode.ID = valueobjects.NewNodeID()
	newNode.Type = entities.NodeTypeDocument
	newNode.Label = fmt.Sprintf("%s v%d", currentDoc.Title, newVersion)
	newNode.Position = current.Position.Translate(0, -stackYOffset).Raise(stackZOffset)
	newNode.ParentID = current.ID
	newNode.CreatedAt = now
	newNode.UpdatedAt = now

	newDoc := newNode.Document()
	newDoc.DocumentID = valueobjects.NewDocumentID()
	newDoc.Content = newContent
	newDoc.Version = newVersion
	newDoc.ParentVersionID = currentDoc.DocumentID
	newDoc.IsLatest = true
	newDoc.IsGenerating = false
	newDoc.GenerationProgress = 1
	if tags != nil {
		newDoc.Tags = append([]string(nil), tags...)
	}

	if err := state.AddNode(newNode); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	edge := entities.NewVisualEdge(newNode.ID, current.ID, entities.EdgeTypeSupersedes)
	edge.Label = fmt.Sprintf("v%d", newVersion)
	if err := state.AddEdge(edge); err != nil {
		// Roll the node back; the layer must never hold half a version.
		state.DeleteNode(newNode.ID)
		s.mu.Unlock()
		return nil, err
	}

	currentDoc.IsLatest = false
	s.recordSize(state)
	result := newNode.Clone()
	s.enqueueLocked(
		Change{Layer: layer, Kind: ChangeNodeAdded, NodeID: result.ID},
		Change{Layer: layer, Kind: ChangeEdgeAdded, EdgeID: edge.ID},
		Change{Layer: layer, Kind: ChangeVersionCreated, NodeID: result.ID},
	)
	s.mu.Unlock()

	s.metrics.RecordMutation(layer.String(), "supersede", nil)
	s.deliver()
	return result, nil
}

// VersionChain returns the version nodes reachable from the given node,
// newest first: first the successors stacked above it, then the node
// itself, then its predecessors down to the root.
func (s *CanvasStore) VersionChain(nodeID valueobjects.NodeID) ([]*entities.VisualNode, error) {
	layer := valueobjects.LayerDocumentation

	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.layers[layer]

	if _, ok := state.GetNode(nodeID); !ok {
		return nil, pkgerrors.NewNotFoundError("node", nodeID.String())
	}

	latest := s.latestInChainLocked(state, nodeID)

	var chain []*entities.VisualNode
	seen := make(map[valueobjects.NodeID]bool)
	current := latest
	for !current.IsZero() && !seen[current] {
		seen[current] = true
		node, ok := state.GetNode(current)
		if !ok {
			break
		}
		chain = append(chain, node.Clone())
		current = s.predecessorLocked(state, current)
	}
	return chain, nil
}

// CollapseStack deletes every version node in the chain except the
// latest, cascading away the supersedes edges. Returns the deleted ids.
func (s *CanvasStore) CollapseStack(nodeID valueobjects.NodeID) ([]valueobjects.NodeID, error) {
	layer := valueobjects.LayerDocumentation

	s.mu.Lock()
	state := s.layers[layer]

	if _, ok := state.GetNode(nodeID); !ok {
		s.mu.Unlock()
		return nil, pkgerrors.NewNotFoundError("node", nodeID.String())
	}

	latest := s.latestInChainLocked(state, nodeID)
	var deleted []valueobjects.NodeID
	var changes []Change

	current := s.predecessorLocked(state, latest)
	for !current.IsZero() {
		next := s.predecessorLocked(state, current)
		removedEdges, err := state.DeleteNode(current)
		if err != nil {
			break
		}
		for _, edgeID := range removedEdges {
			changes = append(changes, Change{Layer: layer, Kind: ChangeEdgeDeleted, EdgeID: edgeID})
		}
		changes = append(changes, Change{Layer: layer, Kind: ChangeNodeDeleted, NodeID: current})
		deleted = append(deleted, current)
		current = next
	}
	s.recordSize(state)
	s.enqueueLocked(changes...)
	s.mu.Unlock()

	s.metrics.RecordMutation(layer.String(), "collapse_stack", nil)
	s.deliver()
	return deleted, nil
}

// RevertToVersion creates a new latest version carrying the content of a
// historical version. History is never rewritten: reverting is another
// supersede.
func (s *CanvasStore) RevertToVersion(nodeID valueobjects.NodeID, version int) (*entities.VisualNode, error) {
	chain, err := s.VersionChain(nodeID)
	if err != nil {
		return nil, err
	}

	var target *entities.VisualNode
	for _, node := range chain {
		if doc := node.Document(); doc != nil && doc.Version == version {
			target = node
			break
		}
	}
	if target == nil {
		return nil, pkgerrors.NewNotFoundError("document version", fmt.Sprintf("%d", version))
	}

	latest := chain[0]
	return s.SupersedeDocument(latest.ID, target.Document().Content, nil)
}

// chainDepthLocked counts the supersedes hops from the node down to the
// chain root, plus one. Equals the node's version when field and chain
// agree.
func (s *CanvasStore) chainDepthLocked(state layerReader, nodeID valueobjects.NodeID) int {
	depth := 1
	seen := map[valueobjects.NodeID]bool{nodeID: true}
	current := s.predecessorLocked(state, nodeID)
	for !current.IsZero() && !seen[current] {
		seen[current] = true
		depth++
		current = s.predecessorLocked(state, current)
	}
	return depth
}

// latestInChainLocked walks incoming supersedes edges to the top of the
// stack.
func (s *CanvasStore) latestInChainLocked(state layerReader, nodeID valueobjects.NodeID) valueobjects.NodeID {
	seen := map[valueobjects.NodeID]bool{nodeID: true}
	current := nodeID
	for {
		successor := s.successorLocked(state, current)
		if successor.IsZero() || seen[successor] {
			return current
		}
		seen[successor] = true
		current = successor
	}
}

// predecessorLocked resolves the node this one supersedes, if any.
func (s *CanvasStore) predecessorLocked(state layerReader, nodeID valueobjects.NodeID) valueobjects.NodeID {
	for _, edge := range state.EdgesFrom(nodeID, entities.EdgeTypeSupersedes) {
		return edge.Target
	}
	return ""
}

// successorLocked resolves the node that supersedes this one, if any.
func (s *CanvasStore) successorLocked(state layerReader, nodeID valueobjects.NodeID) valueobjects.NodeID {
	for _, edge := range state.Edges() {
		if edge.Type == entities.EdgeTypeSupersedes && edge.Target.Equals(nodeID) {
			return edge.Source
		}
	}
	return ""
}

// layerReader is the read surface the version walkers need.
type layerReader interface {
	GetNode(valueobjects.NodeID) (*entities.VisualNode, bool)
	EdgesFrom(valueobjects.NodeID, entities.EdgeType) []*entities.VisualEdge
	Edges() []*entities.VisualEdge
}
