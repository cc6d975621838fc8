package store

import (
	"time"

	"go.uber.org/zap"

	"canvas-engine/domain/core/valueobjects"
)

// ApplyContentChunk appends a streamed fragment to the document node that
// renders the given document id, updating generation progress. A chunk
// for an unknown document is dropped silently: its creation event has not
// arrived yet, which is a tolerated race on the stream, not an error.
//
// Progress is not required to be monotonic; delivery order is reliable
// per connection but not across reconnects, so a later smaller value
// simply overwrites.
func (s *CanvasStore) ApplyContentChunk(docID valueobjects.DocumentID, chunk string, progress float64) {
	layer := valueobjects.LayerDocumentation

	s.mu.Lock()
	state := s.layers[layer]
	node, ok := state.NodeByDocument(docID)
	if ok {
		doc := node.Document()
		doc.Content += chunk
		doc.GenerationProgress = progress
		doc.IsGenerating = progress < 1
		node.UpdatedAt = time.Now()

		kind := ChangeContentAppended
		if !doc.IsGenerating {
			kind = ChangeGenerationComplete
		}
		s.enqueueLocked(Change{Layer: layer, Kind: kind, NodeID: node.ID})
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Debug("content chunk for unknown document dropped",
			zap.String("documentID", docID.String()),
		)
		s.metrics.RecordDropped("unknown_document")
		return
	}

	s.metrics.AddContentBytes(len(chunk))
	s.metrics.RecordMutation(layer.String(), "content_chunk", nil)
	s.deliver()
}

// CompleteGeneration finalizes a document's generation state regardless
// of the last observed progress value. Equivalent to an empty chunk with
// progress 1.
func (s *CanvasStore) CompleteGeneration(docID valueobjects.DocumentID) {
	s.ApplyContentChunk(docID, "", 1)
}
