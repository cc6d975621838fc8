package entities

import (
	"time"

	"canvas-engine/domain/core/valueobjects"
)

// EdgeType is the structural relation an edge expresses.
type EdgeType string

const (
	// Cross-project relationships
	EdgeTypeDependsOn EdgeType = "depends_on"
	EdgeTypeRelatedTo EdgeType = "related_to"
	EdgeTypeBlocks    EdgeType = "blocks"

	// Component relationships
	EdgeTypeContains   EdgeType = "contains"
	EdgeTypeReferences EdgeType = "references"
	EdgeTypeImplements EdgeType = "implements"
	EdgeTypeSyncsWith  EdgeType = "syncs_with"

	// Document relationships
	EdgeTypeDerivedFrom EdgeType = "derived_from"
	EdgeTypeSupersedes  EdgeType = "supersedes"
	EdgeTypeLinksTo     EdgeType = "links_to"
)

// VisualEdge is a directed relationship between two nodes on the same layer.
// Supersedes edges point from the newer document version to the older one.
type VisualEdge struct {
	ID        valueobjects.EdgeID   `json:"id"`
	Source    valueobjects.NodeID   `json:"source_id"`
	Target    valueobjects.NodeID   `json:"target_id"`
	Type      EdgeType              `json:"edge_type"`
	Label     string                `json:"label,omitempty"`
	Color     string                `json:"color,omitempty"`
	Animated  bool                  `json:"is_animated,omitempty"`
	CreatedAt time.Time             `json:"created_at,omitempty"`
}

// NewVisualEdge creates an edge with a fresh id.
func NewVisualEdge(source, target valueobjects.NodeID, edgeType EdgeType) *VisualEdge {
	return &VisualEdge{
		ID:        valueobjects.NewEdgeID(),
		Source:    source,
		Target:    target,
		Type:      edgeType,
		CreatedAt: time.Now(),
	}
}

// Clone returns a copy of the edge.
func (e *VisualEdge) Clone() *VisualEdge {
	c := *e
	return &c
}

// References reports whether the edge touches the given node.
func (e *VisualEdge) References(id valueobjects.NodeID) bool {
	return e.Source.Equals(id) || e.Target.Equals(id)
}
