package valueobjects

import (
	"github.com/google/uuid"

	pkgerrors "canvas-engine/pkg/errors"
)

// NodeID uniquely identifies a visual node within a layer.
type NodeID string

// NewNodeID creates a new random NodeID.
func NewNodeID() NodeID {
	return NodeID(uuid.New().String())
}

// ParseNodeID validates and converts a raw string into a NodeID.
func ParseNodeID(raw string) (NodeID, error) {
	if raw == "" {
		return "", pkgerrors.NewValidationError("node id cannot be empty")
	}
	return NodeID(raw), nil
}

// String returns the string representation.
func (id NodeID) String() string {
	return string(id)
}

// Equals compares two node ids.
func (id NodeID) Equals(other NodeID) bool {
	return id == other
}

// IsZero reports whether the id is unset.
func (id NodeID) IsZero() bool {
	return id == ""
}

// EdgeID uniquely identifies a visual edge within a layer.
type EdgeID string

// NewEdgeID creates a new random EdgeID.
func NewEdgeID() EdgeID {
	return EdgeID(uuid.New().String())
}

// ParseEdgeID validates and converts a raw string into an EdgeID.
func ParseEdgeID(raw string) (EdgeID, error) {
	if raw == "" {
		return "", pkgerrors.NewValidationError("edge id cannot be empty")
	}
	return EdgeID(raw), nil
}

// String returns the string representation.
func (id EdgeID) String() string {
	return string(id)
}

// IsZero reports whether the id is unset.
func (id EdgeID) IsZero() bool {
	return id == ""
}

// DocumentID identifies the logical document a document node renders.
// Distinct from NodeID: every version of a document is a separate node
// carrying its own DocumentID, and content-chunk events are keyed by it.
type DocumentID string

// NewDocumentID creates a new random DocumentID.
func NewDocumentID() DocumentID {
	return DocumentID(uuid.New().String())
}

// String returns the string representation.
func (id DocumentID) String() string {
	return string(id)
}

// IsZero reports whether the id is unset.
func (id DocumentID) IsZero() bool {
	return id == ""
}

// ProjectID identifies the project a node or navigation entry belongs to.
type ProjectID string

// NewProjectID creates a new random ProjectID.
func NewProjectID() ProjectID {
	return ProjectID(uuid.New().String())
}

// String returns the string representation.
func (id ProjectID) String() string {
	return string(id)
}

// IsZero reports whether the id is unset.
func (id ProjectID) IsZero() bool {
	return id == ""
}
