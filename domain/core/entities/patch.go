package entities

import (
	"time"

	"canvas-engine/domain/core/valueobjects"
)

// NodePatch is a partial update merged into an existing node. Nil fields
// are left untouched. Payload fields apply only to the matching payload
// variant; a patch carrying document fields against a project node simply
// ignores them, because streaming updates may race against local edits
// and must never fail the mutation.
type NodePatch struct {
	Label       *string                `json:"label,omitempty"`
	Description *string                `json:"description,omitempty"`
	Position    *valueobjects.Position `json:"position,omitempty"`
	Width       *float64               `json:"width,omitempty"`
	Height      *float64               `json:"height,omitempty"`
	Color       *string                `json:"color,omitempty"`
	Expanded    *bool                  `json:"is_expanded,omitempty"`

	// Project payload fields
	Status         *string `json:"status,omitempty"`
	ComponentCount *int    `json:"component_count,omitempty"`
	DocumentCount  *int    `json:"document_count,omitempty"`

	// Component payload fields
	ItemCount *int    `json:"item_count,omitempty"`
	Summary   *string `json:"summary,omitempty"`

	// Document payload fields
	Content            *string  `json:"content,omitempty"`
	Version            *int     `json:"version,omitempty"`
	IsLatest           *bool    `json:"is_latest,omitempty"`
	IsGenerating       *bool    `json:"is_generating,omitempty"`
	GenerationProgress *float64 `json:"generation_progress,omitempty"`
	Tags               []string `json:"tags,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p NodePatch) IsEmpty() bool {
	return p.Label == nil && p.Description == nil && p.Position == nil &&
		p.Width == nil && p.Height == nil && p.Color == nil && p.Expanded == nil &&
		p.Status == nil && p.ComponentCount == nil && p.DocumentCount == nil &&
		p.ItemCount == nil && p.Summary == nil &&
		p.Content == nil && p.Version == nil && p.IsLatest == nil &&
		p.IsGenerating == nil && p.GenerationProgress == nil && p.Tags == nil
}

// Apply merges the patch into the node in place. Last write wins: a patch
// arriving from the event stream overwrites concurrent local edits of the
// same fields, matching arrival-order semantics.
func (n *VisualNode) Apply(p NodePatch) {
	if p.Label != nil {
		n.Label = *p.Label
	}
	if p.Description != nil {
		n.Description = *p.Description
	}
	if p.Position != nil {
		n.Position = *p.Position
	}
	if p.Width != nil {
		n.Width = *p.Width
	}
	if p.Height != nil {
		n.Height = *p.Height
	}
	if p.Color != nil {
		n.Color = *p.Color
	}
	if p.Expanded != nil {
		n.Expanded = *p.Expanded
	}

	switch data := n.Data.(type) {
	case *ProjectData:
		if p.Status != nil {
			data.Status = *p.Status
		}
		if p.ComponentCount != nil {
			data.ComponentCount = *p.ComponentCount
		}
		if p.DocumentCount != nil {
			data.DocumentCount = *p.DocumentCount
		}
	case *ComponentData:
		if p.ItemCount != nil {
			data.ItemCount = *p.ItemCount
		}
		if p.Summary != nil {
			data.Summary = *p.Summary
		}
	case *DocumentData:
		if p.Content != nil {
			data.Content = *p.Content
		}
		if p.Version != nil {
			data.Version = *p.Version
		}
		if p.IsLatest != nil {
			data.IsLatest = *p.IsLatest
		}
		if p.IsGenerating != nil {
			data.IsGenerating = *p.IsGenerating
		}
		if p.GenerationProgress != nil {
			data.GenerationProgress = *p.GenerationProgress
		}
		if p.Tags != nil {
			data.Tags = append([]string(nil), p.Tags...)
		}
	}

	n.UpdatedAt = time.Now()
}
