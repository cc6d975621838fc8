package bridge

import (
	"fmt"

	"go.uber.org/zap"

	"canvas-engine/domain/core/entities"
	"canvas-engine/domain/core/valueobjects"
	"canvas-engine/domain/events"
	pkgerrors "canvas-engine/pkg/errors"
)

// dispatch applies one decoded event to the store. Per-event failures
// never stop the stream: redelivered creations land as replacements,
// updates and edges racing ahead of their nodes are dropped, everything
// else is logged and counted.
func (b *Bridge) dispatch(event events.StreamEvent) {
	switch ev := event.(type) {
	case events.NodeCreated:
		if err := b.canvas.PutNode(ev.Layer, ev.Node); err != nil {
			b.logger.Warn("node_created rejected",
				zap.String("nodeID", ev.Node.ID.String()),
				zap.Error(err),
			)
			b.metrics.RecordDropped("rejected_node")
		}

	case events.NodeUpdate:
		if err := b.canvas.UpdateNode(ev.Layer, ev.NodeID, ev.Patch); err != nil {
			if pkgerrors.IsNotFound(err) {
				// The update raced ahead of its node's creation event.
				b.logger.Debug("node_update for unknown node dropped",
					zap.String("nodeID", ev.NodeID.String()),
				)
				b.metrics.RecordDropped("unknown_node")
				return
			}
			b.logger.Warn("node_update rejected",
				zap.String("nodeID", ev.NodeID.String()),
				zap.Error(err),
			)
			b.metrics.RecordDropped("rejected_update")
		}

	case events.EdgeCreated:
		if err := b.canvas.AddEdge(ev.Layer, ev.Edge); err != nil {
			switch {
			case pkgerrors.IsDanglingEdge(err):
				b.logger.Debug("edge_created with missing endpoint dropped",
					zap.String("edgeID", ev.Edge.ID.String()),
				)
				b.metrics.RecordDropped("dangling_edge")
			case pkgerrors.IsDuplicateID(err):
				b.metrics.RecordDropped("duplicate_edge")
			default:
				b.logger.Warn("edge_created rejected",
					zap.String("edgeID", ev.Edge.ID.String()),
					zap.Error(err),
				)
				b.metrics.RecordDropped("rejected_edge")
			}
		}

	case events.ContentChunk:
		b.canvas.ApplyContentChunk(ev.DocumentID, ev.Chunk, ev.Progress)

	case events.GenerationComplete:
		b.canvas.CompleteGeneration(ev.DocumentID)

	case events.VersionCreated:
		if err := b.canvas.PutNode(valueobjects.LayerDocumentation, ev.Node); err != nil {
			b.logger.Warn("version_created rejected",
				zap.String("documentID", ev.DocumentID.String()),
				zap.Int("version", ev.Version),
				zap.Error(err),
			)
			b.metrics.RecordDropped("rejected_version")
			return
		}
		b.linkPredecessor(ev)

	case events.StackCollapsed:
		layer := valueobjects.LayerDocumentation
		for _, docID := range ev.DeletedDocumentIDs {
			node, ok := b.canvas.NodeByDocument(layer, docID)
			if !ok {
				b.metrics.RecordDropped("unknown_document")
				continue
			}
			if err := b.canvas.DeleteNode(layer, node.ID); err != nil {
				b.logger.Warn("stack_collapsed delete failed",
					zap.String("documentID", docID.String()),
					zap.Error(err),
				)
			}
		}

	default:
		b.logger.Warn("unhandled event kind", zap.String("kind", string(event.Kind())))
		b.metrics.RecordDropped("unhandled")
	}
}

// linkPredecessor stacks a streamed version node onto the one it
// supersedes, keeping the local chain walkable. An unresolvable
// predecessor is tolerated like a dangling edge_created: its node may
// already be collapsed away.
func (b *Bridge) linkPredecessor(ev events.VersionCreated) {
	doc := ev.Node.Document()
	if doc == nil || doc.ParentVersionID.IsZero() {
		return
	}
	layer := valueobjects.LayerDocumentation

	// Redelivered version events replace the node; the link already holds.
	for _, existing := range b.canvas.Edges(layer) {
		if existing.Type == entities.EdgeTypeSupersedes && existing.Source.Equals(ev.Node.ID) {
			return
		}
	}

	parent, ok := b.canvas.NodeByDocument(layer, doc.ParentVersionID)
	if !ok {
		b.logger.Debug("version_created with unknown predecessor left unlinked",
			zap.String("documentID", ev.DocumentID.String()),
			zap.String("parentDocumentID", doc.ParentVersionID.String()),
		)
		b.metrics.RecordDropped("unknown_predecessor")
		return
	}

	edge := entities.NewVisualEdge(ev.Node.ID, parent.ID, entities.EdgeTypeSupersedes)
	edge.Label = fmt.Sprintf("v%d", ev.Version)
	if err := b.canvas.AddEdge(layer, edge); err != nil {
		b.logger.Warn("version_created supersedes link rejected",
			zap.String("documentID", ev.DocumentID.String()),
			zap.Error(err),
		)
		b.metrics.RecordDropped("rejected_edge")
	}
}
