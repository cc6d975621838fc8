package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"canvas-engine/domain/core/entities"
	"canvas-engine/domain/core/valueobjects"
	pkgerrors "canvas-engine/pkg/errors"
)

// Kind identifies an inbound stream event.
type Kind string

const (
	KindNodeCreated        Kind = "node_created"
	KindNodeUpdate         Kind = "node_update"
	KindEdgeCreated        Kind = "edge_created"
	KindContentChunk       Kind = "content_chunk"
	KindGenerationComplete Kind = "generation_complete"
	KindVersionCreated     Kind = "version_created"
	KindStackCollapsed     Kind = "stack_collapsed"
)

// Envelope is the wire shape of every inbound message:
// {"event": <kind>, "data": <payload>, "timestamp": <rfc3339>}.
type Envelope struct {
	Event     Kind            `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// StreamEvent is a decoded, validated inbound event.
type StreamEvent interface {
	Kind() Kind
}

// NodeCreated carries a full node descriptor for insertion into a layer.
type NodeCreated struct {
	Layer valueobjects.Layer
	Node  *entities.VisualNode
}

// Kind implements StreamEvent.
func (NodeCreated) Kind() Kind { return KindNodeCreated }

// NodeUpdate carries a partial patch for an existing node.
type NodeUpdate struct {
	Layer  valueobjects.Layer
	NodeID valueobjects.NodeID
	Patch  entities.NodePatch
}

// Kind implements StreamEvent.
func (NodeUpdate) Kind() Kind { return KindNodeUpdate }

// EdgeCreated carries a full edge descriptor.
type EdgeCreated struct {
	Layer valueobjects.Layer
	Edge  *entities.VisualEdge
}

// Kind implements StreamEvent.
func (EdgeCreated) Kind() Kind { return KindEdgeCreated }

// ContentChunk carries an incremental fragment of generated document text.
// Progress below 1 means generation is still running.
type ContentChunk struct {
	DocumentID valueobjects.DocumentID
	Chunk      string
	Progress   float64
}

// Kind implements StreamEvent.
func (ContentChunk) Kind() Kind { return KindContentChunk }

// GenerationComplete finalizes a document's generation state. Equivalent
// to a content chunk with empty text and progress 1.
type GenerationComplete struct {
	DocumentID valueobjects.DocumentID
}

// Kind implements StreamEvent.
func (GenerationComplete) Kind() Kind { return KindGenerationComplete }

// VersionCreated announces a new document version node stacked on top of
// its predecessor.
type VersionCreated struct {
	DocumentID valueobjects.DocumentID
	Version    int
	Node       *entities.VisualNode
}

// Kind implements StreamEvent.
func (VersionCreated) Kind() Kind { return KindVersionCreated }

// StackCollapsed announces that a version stack was collapsed to its
// latest version; the listed documents' nodes are gone.
type StackCollapsed struct {
	DeletedDocumentIDs  []valueobjects.DocumentID
	RemainingDocumentID valueobjects.DocumentID
}

// Kind implements StreamEvent.
func (StackCollapsed) Kind() Kind { return KindStackCollapsed }

// Wire payload shapes. Validation tags guard required fields so a
// malformed message is rejected whole rather than applied partially.

type nodeCreatedPayload struct {
	Layer string              `json:"layer" validate:"required,oneof=portfolio project documentation"`
	Node  entities.VisualNode `json:"node"`
}

type nodeUpdatePayload struct {
	Layer    string             `json:"layer" validate:"omitempty,oneof=portfolio project documentation"`
	NodeID   string             `json:"node_id" validate:"required"`
	NodeData entities.NodePatch `json:"node_data"`
}

type edgeCreatedPayload struct {
	Layer string              `json:"layer" validate:"required,oneof=portfolio project documentation"`
	Edge  entities.VisualEdge `json:"edge"`
}

type contentChunkPayload struct {
	DocumentID string  `json:"document_id" validate:"required"`
	Chunk      string  `json:"chunk"`
	Progress   float64 `json:"progress" validate:"gte=0,lte=1"`
}

type generationCompletePayload struct {
	DocumentID string `json:"document_id" validate:"required"`
}

type versionCreatedPayload struct {
	DocumentID string              `json:"document_id" validate:"required"`
	Version    int                 `json:"version" validate:"gte=1"`
	Node       entities.VisualNode `json:"node"`
}

type stackCollapsedPayload struct {
	DeletedDocumentIDs  []string `json:"deleted_document_ids" validate:"required,min=1"`
	RemainingDocumentID string   `json:"remaining_document_id" validate:"required"`
}

// Decoder turns raw inbound frames into typed stream events.
type Decoder struct {
	validate *validator.Validate
}

// NewDecoder creates a decoder with payload validation.
func NewDecoder() *Decoder {
	return &Decoder{validate: validator.New()}
}

// Decode parses and validates a raw frame. Any failure yields a
// malformed-event error; the caller drops the frame and keeps reading.
func (d *Decoder) Decode(raw []byte) (StreamEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, pkgerrors.NewMalformedEventError("undecodable envelope", err)
	}

	switch env.Event {
	case KindNodeCreated:
		var p nodeCreatedPayload
		if err := d.decodePayload(env.Data, &p); err != nil {
			return nil, err
		}
		if p.Node.ID.IsZero() {
			return nil, pkgerrors.NewMalformedEventError("node_created without node id", nil)
		}
		return NodeCreated{Layer: valueobjects.Layer(p.Layer), Node: &p.Node}, nil

	case KindNodeUpdate:
		var p nodeUpdatePayload
		if err := d.decodePayload(env.Data, &p); err != nil {
			return nil, err
		}
		layer := valueobjects.Layer(p.Layer)
		if p.Layer == "" {
			// Canvas-scoped connections omit the layer on position-only
			// updates; documentation is the streaming default.
			layer = valueobjects.LayerDocumentation
		}
		return NodeUpdate{
			Layer:  layer,
			NodeID: valueobjects.NodeID(p.NodeID),
			Patch:  p.NodeData,
		}, nil

	case KindEdgeCreated:
		var p edgeCreatedPayload
		if err := d.decodePayload(env.Data, &p); err != nil {
			return nil, err
		}
		if p.Edge.ID.IsZero() || p.Edge.Source.IsZero() || p.Edge.Target.IsZero() {
			return nil, pkgerrors.NewMalformedEventError("edge_created missing id or endpoint", nil)
		}
		return EdgeCreated{Layer: valueobjects.Layer(p.Layer), Edge: &p.Edge}, nil

	case KindContentChunk:
		var p contentChunkPayload
		if err := d.decodePayload(env.Data, &p); err != nil {
			return nil, err
		}
		return ContentChunk{
			DocumentID: valueobjects.DocumentID(p.DocumentID),
			Chunk:      p.Chunk,
			Progress:   p.Progress,
		}, nil

	case KindGenerationComplete:
		var p generationCompletePayload
		if err := d.decodePayload(env.Data, &p); err != nil {
			return nil, err
		}
		return GenerationComplete{DocumentID: valueobjects.DocumentID(p.DocumentID)}, nil

	case KindVersionCreated:
		var p versionCreatedPayload
		if err := d.decodePayload(env.Data, &p); err != nil {
			return nil, err
		}
		if p.Node.ID.IsZero() {
			return nil, pkgerrors.NewMalformedEventError("version_created without node id", nil)
		}
		return VersionCreated{
			DocumentID: valueobjects.DocumentID(p.DocumentID),
			Version:    p.Version,
			Node:       &p.Node,
		}, nil

	case KindStackCollapsed:
		var p stackCollapsedPayload
		if err := d.decodePayload(env.Data, &p); err != nil {
			return nil, err
		}
		deleted := make([]valueobjects.DocumentID, 0, len(p.DeletedDocumentIDs))
		for _, id := range p.DeletedDocumentIDs {
			deleted = append(deleted, valueobjects.DocumentID(id))
		}
		return StackCollapsed{
			DeletedDocumentIDs:  deleted,
			RemainingDocumentID: valueobjects.DocumentID(p.RemainingDocumentID),
		}, nil

	default:
		return nil, pkgerrors.NewMalformedEventError(
			fmt.Sprintf("unknown event kind %q", env.Event), nil)
	}
}

func (d *Decoder) decodePayload(raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 {
		return pkgerrors.NewMalformedEventError("missing event payload", nil)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return pkgerrors.NewMalformedEventError("undecodable event payload", err)
	}
	if err := d.validate.Struct(target); err != nil {
		return pkgerrors.NewMalformedEventError("event payload failed validation", err)
	}
	return nil
}

// EncodeEnvelope marshals an event kind and payload into the wire
// envelope. Used by the simulator and by tests.
func EncodeEnvelope(kind Kind, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Event:     kind,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}
