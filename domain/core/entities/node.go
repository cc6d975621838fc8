package entities

import (
	"encoding/json"
	"fmt"
	"time"

	"canvas-engine/domain/core/valueobjects"
	pkgerrors "canvas-engine/pkg/errors"
)

// NodeType discriminates rendering and payload shape of a visual node.
type NodeType string

const (
	// Portfolio layer
	NodeTypeProject NodeType = "project"

	// Project layer components
	NodeTypeDocsSubgraph NodeType = "docs_subgraph"
	NodeTypeResources    NodeType = "resources"
	NodeTypeGitHubRepo   NodeType = "github_repo"
	NodeTypeTasksEpics   NodeType = "tasks_epics"

	// Documentation layer
	NodeTypeDocument        NodeType = "document"
	NodeTypeDocumentVersion NodeType = "document_version"
)

// Default node dimensions on the canvas.
const (
	DefaultNodeWidth  = 300.0
	DefaultNodeHeight = 200.0
)

// NodeData is the type-specific payload of a visual node. Each node type
// carries exactly one variant; consumers switch exhaustively on it.
type NodeData interface {
	NodeKind() NodeType
	clone() NodeData
}

// ProjectData is the payload of portfolio-layer project nodes.
type ProjectData struct {
	Status         string `json:"status"`
	GitHubOrg      string `json:"github_org,omitempty"`
	ComponentCount int    `json:"component_count"`
	DocumentCount  int    `json:"document_count"`
}

// NodeKind implements NodeData.
func (d *ProjectData) NodeKind() NodeType { return NodeTypeProject }

func (d *ProjectData) clone() NodeData {
	c := *d
	return &c
}

// ComponentData is the payload of project-layer component nodes
// (docs subgraph, resources, github repo, tasks/epics).
type ComponentData struct {
	Component NodeType `json:"component"`
	ItemCount int      `json:"item_count"`
	Summary   string   `json:"summary,omitempty"`
	URL       string   `json:"url,omitempty"`
}

// NodeKind implements NodeData.
func (d *ComponentData) NodeKind() NodeType { return d.Component }

func (d *ComponentData) clone() NodeData {
	c := *d
	return &c
}

// DocumentData is the payload of documentation-layer nodes. One node per
// document version: content streams into it chunk by chunk while
// IsGenerating is set.
type DocumentData struct {
	DocumentID         valueobjects.DocumentID `json:"document_id"`
	Title              string                  `json:"title"`
	DocType            string                  `json:"doc_type"`
	Content            string                  `json:"content"`
	Format             string                  `json:"content_format"`
	Version            int                     `json:"version"`
	ParentVersionID    valueobjects.DocumentID `json:"parent_version_id,omitempty"`
	IsLatest           bool                    `json:"is_latest"`
	IsGenerating       bool                    `json:"is_generating"`
	GenerationProgress float64                 `json:"generation_progress"`
	Tags               []string                `json:"tags,omitempty"`
}

// NodeKind implements NodeData.
func (d *DocumentData) NodeKind() NodeType { return NodeTypeDocument }

func (d *DocumentData) clone() NodeData {
	c := *d
	c.Tags = append([]string(nil), d.Tags...)
	return &c
}

// VisualNode is a single entity on a layer's canvas.
type VisualNode struct {
	ID          valueobjects.NodeID
	Type        NodeType
	Label       string
	Description string
	Position    valueobjects.Position
	Width       float64
	Height      float64
	Color       string
	Expanded    bool
	ParentID    valueobjects.NodeID
	ProjectID   valueobjects.ProjectID
	Data        NodeData
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewVisualNode creates a node with a fresh id and default dimensions.
// The payload must match the node type.
func NewVisualNode(nodeType NodeType, label string, pos valueobjects.Position, data NodeData) (*VisualNode, error) {
	if label == "" {
		return nil, pkgerrors.NewValidationError("node label cannot be empty")
	}
	if err := checkPayload(nodeType, data); err != nil {
		return nil, err
	}
	now := time.Now()
	return &VisualNode{
		ID:        valueobjects.NewNodeID(),
		Type:      nodeType,
		Label:     label,
		Position:  pos,
		Width:     DefaultNodeWidth,
		Height:    DefaultNodeHeight,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// checkPayload verifies the payload variant matches the node type.
func checkPayload(nodeType NodeType, data NodeData) error {
	switch nodeType {
	case NodeTypeProject:
		if _, ok := data.(*ProjectData); !ok {
			return pkgerrors.NewValidationError("project node requires project payload")
		}
	case NodeTypeDocsSubgraph, NodeTypeResources, NodeTypeGitHubRepo, NodeTypeTasksEpics:
		if _, ok := data.(*ComponentData); !ok {
			return pkgerrors.NewValidationError("component node requires component payload")
		}
	case NodeTypeDocument, NodeTypeDocumentVersion:
		if _, ok := data.(*DocumentData); !ok {
			return pkgerrors.NewValidationError("document node requires document payload")
		}
	default:
		return pkgerrors.NewValidationError(fmt.Sprintf("unknown node type %q", nodeType))
	}
	return nil
}

// Document returns the document payload, or nil for non-document nodes.
func (n *VisualNode) Document() *DocumentData {
	if d, ok := n.Data.(*DocumentData); ok {
		return d
	}
	return nil
}

// Clone returns a deep copy. The store hands out clones so consumers can
// never mutate owned state behind its back.
func (n *VisualNode) Clone() *VisualNode {
	c := *n
	if n.Data != nil {
		c.Data = n.Data.clone()
	}
	return &c
}

// visualNodeJSON is the wire shape shared by stream events and the REST
// collaborators. The data payload is decoded according to node_type.
type visualNodeJSON struct {
	ID          string                `json:"id"`
	Type        NodeType              `json:"node_type"`
	Label       string                `json:"label"`
	Description string                `json:"description,omitempty"`
	Position    valueobjects.Position `json:"position"`
	Width       float64               `json:"width,omitempty"`
	Height      float64               `json:"height,omitempty"`
	Color       string                `json:"color,omitempty"`
	Expanded    bool                  `json:"is_expanded,omitempty"`
	ParentID    string                `json:"parent_id,omitempty"`
	ProjectID   string                `json:"project_id,omitempty"`
	Data        json.RawMessage       `json:"data,omitempty"`
	CreatedAt   time.Time             `json:"created_at,omitempty"`
	UpdatedAt   time.Time             `json:"updated_at,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (n *VisualNode) MarshalJSON() ([]byte, error) {
	raw := visualNodeJSON{
		ID:          n.ID.String(),
		Type:        n.Type,
		Label:       n.Label,
		Description: n.Description,
		Position:    n.Position,
		Width:       n.Width,
		Height:      n.Height,
		Color:       n.Color,
		Expanded:    n.Expanded,
		ParentID:    n.ParentID.String(),
		ProjectID:   n.ProjectID.String(),
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}
	if n.Data != nil {
		data, err := json.Marshal(n.Data)
		if err != nil {
			return nil, err
		}
		raw.Data = data
	}
	return json.Marshal(raw)
}

// UnmarshalJSON implements json.Unmarshaler, decoding the payload variant
// selected by node_type.
func (n *VisualNode) UnmarshalJSON(b []byte) error {
	var raw visualNodeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	data, err := decodeNodeData(raw.Type, raw.Data)
	if err != nil {
		return err
	}

	n.ID = valueobjects.NodeID(raw.ID)
	n.Type = raw.Type
	n.Label = raw.Label
	n.Description = raw.Description
	n.Position = raw.Position
	n.Width = raw.Width
	n.Height = raw.Height
	n.Color = raw.Color
	n.Expanded = raw.Expanded
	n.ParentID = valueobjects.NodeID(raw.ParentID)
	n.ProjectID = valueobjects.ProjectID(raw.ProjectID)
	n.Data = data
	n.CreatedAt = raw.CreatedAt
	n.UpdatedAt = raw.UpdatedAt
	return nil
}

// decodeNodeData builds the payload variant for a node type. An absent
// payload yields the zero variant so partially-populated creation events
// still produce consistent nodes.
func decodeNodeData(nodeType NodeType, raw json.RawMessage) (NodeData, error) {
	var target NodeData
	switch nodeType {
	case NodeTypeProject:
		target = &ProjectData{}
	case NodeTypeDocsSubgraph, NodeTypeResources, NodeTypeGitHubRepo, NodeTypeTasksEpics:
		target = &ComponentData{Component: nodeType}
	case NodeTypeDocument, NodeTypeDocumentVersion:
		target = &DocumentData{Format: "markdown"}
	default:
		return nil, pkgerrors.NewValidationError(fmt.Sprintf("unknown node type %q", nodeType))
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, pkgerrors.NewValidationError("node data does not match node type").WithCause(err)
		}
	}
	if c, ok := target.(*ComponentData); ok && c.Component == "" {
		c.Component = nodeType
	}
	return target, nil
}
