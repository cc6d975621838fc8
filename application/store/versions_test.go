package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvas-engine/domain/core/entities"
	"canvas-engine/domain/core/valueobjects"
	pkgerrors "canvas-engine/pkg/errors"
)

func TestSupersedeDocument_StacksNewVersion(t *testing.T) {
	s := newTestStore(t)
	v1 := newDocNode(t, "Spec")
	v1.Document().Content = "first draft"
	require.NoError(t, s.AddNode(valueobjects.LayerDocumentation, v1))

	v2, err := s.SupersedeDocument(v1.ID, "second draft", []string{"reviewed"})
	require.NoError(t, err)

	doc := v2.Document()
	require.NotNil(t, doc)
	assert.Equal(t, 2, doc.Version)
	assert.Equal(t, "second draft", doc.Content)
	assert.True(t, doc.IsLatest)
	assert.Equal(t, v1.Document().DocumentID, doc.ParentVersionID)
	assert.Equal(t, []string{"reviewed"}, doc.Tags)

	// Stacked above the predecessor: y-20, z+1.
	assert.Equal(t, v1.Position.X, v2.Position.X)
	assert.Equal(t, v1.Position.Y-20, v2.Position.Y)
	assert.Equal(t, v1.Position.Z+1, v2.Position.Z)

	// The historical version keeps its content; only the latest flag flips.
	old, ok := s.GetNode(valueobjects.LayerDocumentation, v1.ID)
	require.True(t, ok)
	assert.Equal(t, "first draft", old.Document().Content)
	assert.False(t, old.Document().IsLatest)

	edges := s.Edges(valueobjects.LayerDocumentation)
	require.Len(t, edges, 1)
	assert.Equal(t, entities.EdgeTypeSupersedes, edges[0].Type)
	assert.Equal(t, v2.ID, edges[0].Source)
	assert.Equal(t, v1.ID, edges[0].Target)

	require.NoError(t, s.Validate())
}

func TestSupersedeDocument_ChainedVersions(t *testing.T) {
	s := newTestStore(t)
	v1 := newDocNode(t, "Spec")
	require.NoError(t, s.AddNode(valueobjects.LayerDocumentation, v1))

	v2, err := s.SupersedeDocument(v1.ID, "v2", nil)
	require.NoError(t, err)
	v3, err := s.SupersedeDocument(v2.ID, "v3", nil)
	require.NoError(t, err)

	assert.Equal(t, 3, v3.Document().Version)

	chain, err := s.VersionChain(v1.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, v3.ID, chain[0].ID)
	assert.Equal(t, v2.ID, chain[1].ID)
	assert.Equal(t, v1.ID, chain[2].ID)

	// Only the newest version is latest.
	assert.True(t, chain[0].Document().IsLatest)
	assert.False(t, chain[1].Document().IsLatest)
	assert.False(t, chain[2].Document().IsLatest)
}

func TestSupersedeDocument_RejectsHistoricVersion(t *testing.T) {
	s := newTestStore(t)
	v1 := newDocNode(t, "Spec")
	require.NoError(t, s.AddNode(valueobjects.LayerDocumentation, v1))
	_, err := s.SupersedeDocument(v1.ID, "v2", nil)
	require.NoError(t, err)

	// Superseding the historic v1 again would fork the chain.
	_, err = s.SupersedeDocument(v1.ID, "fork", nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestSupersedeDocument_RejectsNonDocuments(t *testing.T) {
	s := newTestStore(t)
	node := newComponentNode(t, "Resources")
	require.NoError(t, s.AddNode(valueobjects.LayerDocumentation, node))

	_, err := s.SupersedeDocument(node.ID, "content", nil)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestCollapseStack_KeepsOnlyLatest(t *testing.T) {
	s := newTestStore(t)
	v1 := newDocNode(t, "Spec")
	require.NoError(t, s.AddNode(valueobjects.LayerDocumentation, v1))
	v2, err := s.SupersedeDocument(v1.ID, "v2", nil)
	require.NoError(t, err)
	v3, err := s.SupersedeDocument(v2.ID, "v3", nil)
	require.NoError(t, err)

	deleted, err := s.CollapseStack(v1.ID)
	require.NoError(t, err)

	assert.ElementsMatch(t, []valueobjects.NodeID{v1.ID, v2.ID}, deleted)
	assert.Len(t, s.Nodes(valueobjects.LayerDocumentation), 1)
	assert.Empty(t, s.Edges(valueobjects.LayerDocumentation))

	remaining, ok := s.GetNode(valueobjects.LayerDocumentation, v3.ID)
	require.True(t, ok)
	assert.Equal(t, "v3", remaining.Document().Content)
	require.NoError(t, s.Validate())
}

func TestRevertToVersion_CreatesNewLatest(t *testing.T) {
	s := newTestStore(t)
	v1 := newDocNode(t, "Spec")
	v1.Document().Content = "original"
	require.NoError(t, s.AddNode(valueobjects.LayerDocumentation, v1))
	v2, err := s.SupersedeDocument(v1.ID, "rewritten", nil)
	require.NoError(t, err)

	v3, err := s.RevertToVersion(v2.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, 3, v3.Document().Version)
	assert.Equal(t, "original", v3.Document().Content)
	assert.True(t, v3.Document().IsLatest)

	// History is untouched: v2 still holds its own content.
	middle, ok := s.GetNode(valueobjects.LayerDocumentation, v2.ID)
	require.True(t, ok)
	assert.Equal(t, "rewritten", middle.Document().Content)
	assert.False(t, middle.Document().IsLatest)
}

func TestRevertToVersion_UnknownVersion(t *testing.T) {
	s := newTestStore(t)
	v1 := newDocNode(t, "Spec")
	require.NoError(t, s.AddNode(valueobjects.LayerDocumentation, v1))

	_, err := s.RevertToVersion(v1.ID, 7)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestVersionChain_SingleNode(t *testing.T) {
	s := newTestStore(t)
	v1 := newDocNode(t, "Spec")
	require.NoError(t, s.AddNode(valueobjects.LayerDocumentation, v1))

	chain, err := s.VersionChain(v1.ID)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, v1.ID, chain[0].ID)
}
