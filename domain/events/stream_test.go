package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvas-engine/domain/core/entities"
	"canvas-engine/domain/core/valueobjects"
	pkgerrors "canvas-engine/pkg/errors"
)

func TestDecode_NodeCreated(t *testing.T) {
	d := NewDecoder()
	raw := []byte(`{
		"event": "node_created",
		"data": {
			"layer": "documentation",
			"node": {
				"id": "node-1",
				"node_type": "document",
				"label": "Spec",
				"position": {"x": 10, "y": 20, "z": 0},
				"data": {"document_id": "doc-1", "title": "Spec", "doc_type": "architecture", "version": 1, "is_latest": true}
			}
		},
		"timestamp": "2025-06-01T12:00:00Z"
	}`)

	event, err := d.Decode(raw)
	require.NoError(t, err)

	created, ok := event.(NodeCreated)
	require.True(t, ok)
	assert.Equal(t, valueobjects.LayerDocumentation, created.Layer)
	assert.Equal(t, valueobjects.NodeID("node-1"), created.Node.ID)

	doc := created.Node.Document()
	require.NotNil(t, doc)
	assert.Equal(t, valueobjects.DocumentID("doc-1"), doc.DocumentID)
	assert.Equal(t, "markdown", doc.Format)
}

func TestDecode_NodeUpdateDefaultsToDocumentationLayer(t *testing.T) {
	d := NewDecoder()
	raw := []byte(`{
		"event": "node_update",
		"data": {"node_id": "node-1", "node_data": {"label": "Renamed"}}
	}`)

	event, err := d.Decode(raw)
	require.NoError(t, err)

	update, ok := event.(NodeUpdate)
	require.True(t, ok)
	assert.Equal(t, valueobjects.LayerDocumentation, update.Layer)
	assert.Equal(t, valueobjects.NodeID("node-1"), update.NodeID)
	require.NotNil(t, update.Patch.Label)
	assert.Equal(t, "Renamed", *update.Patch.Label)
}

func TestDecode_EdgeCreated(t *testing.T) {
	d := NewDecoder()
	raw := []byte(`{
		"event": "edge_created",
		"data": {
			"layer": "project",
			"edge": {"id": "edge-1", "source_id": "a", "target_id": "b", "edge_type": "depends_on"}
		}
	}`)

	event, err := d.Decode(raw)
	require.NoError(t, err)

	created, ok := event.(EdgeCreated)
	require.True(t, ok)
	assert.Equal(t, valueobjects.LayerProject, created.Layer)
	assert.Equal(t, entities.EdgeTypeDependsOn, created.Edge.Type)
}

func TestDecode_ContentChunk(t *testing.T) {
	d := NewDecoder()
	raw := []byte(`{
		"event": "content_chunk",
		"data": {"document_id": "doc-1", "chunk": "Hello", "progress": 0.4}
	}`)

	event, err := d.Decode(raw)
	require.NoError(t, err)

	chunk, ok := event.(ContentChunk)
	require.True(t, ok)
	assert.Equal(t, valueobjects.DocumentID("doc-1"), chunk.DocumentID)
	assert.Equal(t, "Hello", chunk.Chunk)
	assert.Equal(t, 0.4, chunk.Progress)
}

func TestDecode_Malformed(t *testing.T) {
	d := NewDecoder()

	tests := []struct {
		name string
		raw  string
	}{
		{"garbage", `{{{`},
		{"unknown kind", `{"event": "node_exploded", "data": {}}`},
		{"missing payload", `{"event": "content_chunk"}`},
		{"missing document id", `{"event": "content_chunk", "data": {"chunk": "x", "progress": 0.1}}`},
		{"progress out of range", `{"event": "content_chunk", "data": {"document_id": "d", "chunk": "x", "progress": 1.5}}`},
		{"bad layer", `{"event": "node_created", "data": {"layer": "basement", "node": {"id": "n", "node_type": "document", "label": "x"}}}`},
		{"node without id", `{"event": "node_created", "data": {"layer": "project", "node": {"node_type": "project", "label": "x"}}}`},
		{"edge without endpoints", `{"event": "edge_created", "data": {"layer": "project", "edge": {"id": "e", "edge_type": "blocks"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, pkgerrors.IsMalformedEvent(err))
		})
	}
}

func TestDecode_GenerationCompleteAndVersionEvents(t *testing.T) {
	d := NewDecoder()

	event, err := d.Decode([]byte(`{"event": "generation_complete", "data": {"document_id": "doc-1"}}`))
	require.NoError(t, err)
	complete, ok := event.(GenerationComplete)
	require.True(t, ok)
	assert.Equal(t, valueobjects.DocumentID("doc-1"), complete.DocumentID)

	event, err = d.Decode([]byte(`{
		"event": "version_created",
		"data": {
			"document_id": "doc-2",
			"version": 2,
			"node": {"id": "node-2", "node_type": "document", "label": "Spec v2", "data": {"document_id": "doc-2", "version": 2}}
		}
	}`))
	require.NoError(t, err)
	version, ok := event.(VersionCreated)
	require.True(t, ok)
	assert.Equal(t, 2, version.Version)
	assert.Equal(t, valueobjects.NodeID("node-2"), version.Node.ID)

	event, err = d.Decode([]byte(`{
		"event": "stack_collapsed",
		"data": {"deleted_document_ids": ["doc-1"], "remaining_document_id": "doc-2"}
	}`))
	require.NoError(t, err)
	collapsed, ok := event.(StackCollapsed)
	require.True(t, ok)
	assert.Equal(t, []valueobjects.DocumentID{"doc-1"}, collapsed.DeletedDocumentIDs)
	assert.Equal(t, valueobjects.DocumentID("doc-2"), collapsed.RemainingDocumentID)
}

func TestEncodeEnvelope_RoundTrips(t *testing.T) {
	frame, err := EncodeEnvelope(KindContentChunk, map[string]interface{}{
		"document_id": "doc-1",
		"chunk":       "text",
		"progress":    0.7,
	})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, KindContentChunk, env.Event)
	assert.False(t, env.Timestamp.IsZero())

	event, err := NewDecoder().Decode(frame)
	require.NoError(t, err)
	chunk, ok := event.(ContentChunk)
	require.True(t, ok)
	assert.Equal(t, "text", chunk.Chunk)
}
