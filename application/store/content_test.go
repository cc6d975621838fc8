package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvas-engine/domain/core/valueobjects"
)

func TestApplyContentChunk_Accumulates(t *testing.T) {
	s := newTestStore(t)
	node := newDocNode(t, "Guide")
	node.Document().IsGenerating = true
	docID := node.Document().DocumentID
	require.NoError(t, s.AddNode(valueobjects.LayerDocumentation, node))

	s.ApplyContentChunk(docID, "Hel", 0.3)
	s.ApplyContentChunk(docID, "lo ", 0.6)
	s.ApplyContentChunk(docID, "world", 1.0)

	got, ok := s.GetNode(valueobjects.LayerDocumentation, node.ID)
	require.True(t, ok)
	doc := got.Document()
	require.NotNil(t, doc)
	assert.Equal(t, "Hello world", doc.Content)
	assert.Equal(t, 1.0, doc.GenerationProgress)
	assert.False(t, doc.IsGenerating)
}

func TestApplyContentChunk_UnknownDocumentIsSilent(t *testing.T) {
	s := newTestStore(t)

	var notified []Change
	unsub := s.Subscribe(func(c Change) { notified = append(notified, c) })
	defer unsub()

	s.ApplyContentChunk(valueobjects.NewDocumentID(), "orphan text", 0.5)

	assert.Empty(t, notified)
	require.NoError(t, s.Validate())
}

func TestApplyContentChunk_ChangeKinds(t *testing.T) {
	s := newTestStore(t)
	node := newDocNode(t, "Guide")
	node.Document().IsGenerating = true
	docID := node.Document().DocumentID
	require.NoError(t, s.AddNode(valueobjects.LayerDocumentation, node))

	var notified []Change
	unsub := s.Subscribe(func(c Change) { notified = append(notified, c) })
	defer unsub()

	s.ApplyContentChunk(docID, "partial", 0.4)
	s.ApplyContentChunk(docID, " done", 1.0)

	require.Len(t, notified, 2)
	assert.Equal(t, ChangeContentAppended, notified[0].Kind)
	assert.Equal(t, ChangeGenerationComplete, notified[1].Kind)
	assert.Equal(t, node.ID, notified[1].NodeID)
}

func TestCompleteGeneration(t *testing.T) {
	s := newTestStore(t)
	node := newDocNode(t, "Guide")
	node.Document().IsGenerating = true
	node.Document().Content = "existing"
	docID := node.Document().DocumentID
	require.NoError(t, s.AddNode(valueobjects.LayerDocumentation, node))

	s.CompleteGeneration(docID)

	got, ok := s.GetNode(valueobjects.LayerDocumentation, node.ID)
	require.True(t, ok)
	doc := got.Document()
	assert.Equal(t, "existing", doc.Content)
	assert.False(t, doc.IsGenerating)
	assert.Equal(t, 1.0, doc.GenerationProgress)
}
