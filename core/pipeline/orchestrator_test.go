package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/marensch/lorekeep/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnnotator struct {
	doc *model.ParsedDocument
	err error
}

func (f *fakeAnnotator) Parse(ctx context.Context, documentID string, text string) (*model.ParsedDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

type fakeRecognizer struct {
	candidates []model.EntityCandidate
	err        error
}

func (f *fakeRecognizer) Recognize(documentID string, text string) ([]model.EntityCandidate, error) {
	return f.candidates, f.err
}

type fakeHinter struct {
	hint model.EntityType
}

func (f *fakeHinter) HintType(ctx context.Context, name string, context string) (model.EntityType, error) {
	return f.hint, nil
}

func TestRunRejectsMalformedInput(t *testing.T) {
	orchestrator := NewOrchestrator(&fakeAnnotator{})
	index := model.NewAliasIndex()

	cases := []struct {
		name string
		text string
	}{
		{"Empty document", ""},
		{"Document over the size limit", strings.Repeat("a", orchestrator.Config.MaxTextLength+1)},
		{"Invalid UTF-8", "broken \xff\xfe text"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			result, err := orchestrator.Run(context.Background(), "project-1", "doc-1", c.text, index, nil)
			assert.Nil(t, result)
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrMalformedInput)

			var pipelineErr *model.PipelineError
			require.ErrorAs(t, err, &pipelineErr)
			assert.Equal(t, StageParsed, pipelineErr.Stage)
			assert.Equal(t, "project-1", pipelineErr.Project)
			assert.Equal(t, "doc-1", pipelineErr.DocumentID)
		})
	}
}

func TestRunHappyPath(t *testing.T) {
	doc := sarahChenParse(t)
	orchestrator := NewOrchestrator(&fakeAnnotator{doc: doc})

	result, err := orchestrator.Run(context.Background(), "project-1", "doc-1", doc.Text, model.NewAliasIndex(), nil)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "project-1", result.Project)
	assert.Equal(t, "doc-1", result.DocumentID)
	assert.False(t, result.Stats.Degraded)
	assert.Positive(t, result.Stats.Elapsed)

	t.Run("Coreferent mentions merge into one person", func(t *testing.T) {
		require.Len(t, result.Entities, 4)
		sarah := entityByName(t, result.Entities, "Sarah Chen")
		assert.Contains(t, sarah.Aliases, "Sarah")
	})

	t.Run("Statistics mirror the output", func(t *testing.T) {
		assert.Equal(t, len(result.Entities), result.Stats.EntityCount)
		assert.Equal(t, len(result.Relations), result.Stats.RelationCount)
		assert.Zero(t, result.Stats.ConflictCount)
	})
}

func TestRunCountsGuardRejections(t *testing.T) {
	// "Sarah lives in Marcus" is a location relation with a person object;
	// the guard must reject it and the rejection must surface in the stats.
	doc := buildParse(t, "doc-1",
		"Sarah lives in Marcus.",
		[]tok{
			{text: "Sarah", pos: "PROPN", dep: "nsubj", head: 1, ent: "PERSON"},
			{text: "lives", lemma: "live", pos: "VERB", dep: "ROOT", head: 1},
			{text: "in", pos: "ADP", dep: "prep", head: 1},
			{text: "Marcus", pos: "PROPN", dep: "pobj", head: 2, ent: "PERSON"},
			{text: ".", pos: "PUNCT", dep: "punct", head: 1},
		},
	)
	orchestrator := NewOrchestrator(&fakeAnnotator{doc: doc})

	result, err := orchestrator.Run(context.Background(), "project-1", "doc-1", doc.Text, model.NewAliasIndex(), nil)
	require.NoError(t, err)

	assert.Empty(t, result.Relations)
	assert.Equal(t, 1, result.Stats.ConflictCount)
}

func TestRunDegradedMode(t *testing.T) {
	entityID := uuid.New()
	index := model.NewAliasIndex()
	index.Upsert(model.AliasEntry{EntityID: entityID, EntityName: "Sarah Chen", Alias: "Sarah Chen", Type: model.EntityTypePerson, Confidence: 1.0})

	t.Run("Unavailable collaborator falls back to the dictionary", func(t *testing.T) {
		orchestrator := NewOrchestrator(&fakeAnnotator{err: model.ErrCollaboratorUnavailable})

		result, err := orchestrator.Run(context.Background(), "project-1", "doc-1", "Sarah Chen arrived.", index, nil)
		require.NoError(t, err)
		assert.True(t, result.Stats.Degraded, "Expected degradation to be flagged, never silent")
		require.Len(t, result.Entities, 1)
		assert.Equal(t, entityID, result.Entities[0].ID)
	})

	t.Run("Fallback recognizer contributes candidates", func(t *testing.T) {
		orchestrator := NewOrchestrator(&fakeAnnotator{err: model.ErrCollaboratorUnavailable})
		orchestrator.Fallback = &fakeRecognizer{candidates: []model.EntityCandidate{
			{Name: "Marcus", DeclaredType: model.EntityTypePerson, Confidence: 0.8, Span: model.Span{DocumentID: "doc-1", Start: 24, End: 30}},
		}}

		result, err := orchestrator.Run(context.Background(), "project-1", "doc-1", "Sarah Chen arrived with Marcus.", index, nil)
		require.NoError(t, err)
		assert.True(t, result.Stats.Degraded)
		assert.Len(t, result.Entities, 2)
	})

	t.Run("Degradation disabled surfaces the collaborator error", func(t *testing.T) {
		orchestrator := NewOrchestrator(&fakeAnnotator{err: model.ErrCollaboratorUnavailable})
		orchestrator.Config.AllowDegraded = false

		result, err := orchestrator.Run(context.Background(), "project-1", "doc-1", "Sarah Chen arrived.", index, nil)
		assert.Nil(t, result)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrCollaboratorUnavailable)
	})

	t.Run("Missing annotator counts as unavailable", func(t *testing.T) {
		orchestrator := NewOrchestrator(nil)

		result, err := orchestrator.Run(context.Background(), "project-1", "doc-1", "Sarah Chen arrived.", index, nil)
		require.NoError(t, err)
		assert.True(t, result.Stats.Degraded)
	})
}

func TestRunAppliesTypeHints(t *testing.T) {
	doc := buildParse(t, "doc-1",
		"Veloria prospered.",
		[]tok{
			{text: "Veloria", pos: "PROPN", dep: "nsubj", head: 1},
			{text: "prospered", lemma: "prosper", pos: "VERB", dep: "ROOT", head: 1},
			{text: ".", pos: "PUNCT", dep: "punct", head: 1},
		},
	)
	orchestrator := NewOrchestrator(&fakeAnnotator{doc: doc})
	orchestrator.Hinter = &fakeHinter{hint: model.EntityTypeGPE}

	result, err := orchestrator.Run(context.Background(), "project-1", "doc-1", doc.Text, model.NewAliasIndex(), nil)
	require.NoError(t, err)
	require.Len(t, result.Entities, 1)
	assert.Equal(t, model.EntityTypeGPE, result.Entities[0].Type)
}

func TestRunNeverReturnsNilSlices(t *testing.T) {
	doc := buildParse(t, "doc-1", "nothing here", []tok{
		{text: "nothing", pos: "NOUN", dep: "ROOT", head: 0},
		{text: "here", pos: "ADV", dep: "advmod", head: 0},
	})
	orchestrator := NewOrchestrator(&fakeAnnotator{doc: doc})

	result, err := orchestrator.Run(context.Background(), "project-1", "doc-1", doc.Text, model.NewAliasIndex(), nil)
	require.NoError(t, err)
	assert.NotNil(t, result.Entities)
	assert.NotNil(t, result.Relations)
	assert.Empty(t, result.Entities)
}

func TestRunUnexpectedAnnotatorError(t *testing.T) {
	orchestrator := NewOrchestrator(&fakeAnnotator{err: errors.New("boom")})

	result, err := orchestrator.Run(context.Background(), "project-1", "doc-1", "Sarah Chen arrived.", model.NewAliasIndex(), nil)
	assert.Nil(t, result)
	require.Error(t, err)

	var pipelineErr *model.PipelineError
	require.ErrorAs(t, err, &pipelineErr)
	assert.Equal(t, StageParsed, pipelineErr.Stage)
}
