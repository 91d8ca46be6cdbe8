package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/marensch/lorekeep/model"
)

// Stage names of the document state machine, reported in structured errors
const (
	StageParsed           = "parsed"
	StageAliasMatched     = "alias-matched"
	StagePatternExtracted = "pattern-extracted"
	StageGuarded          = "guarded"
	StageMerged           = "merged"
	StageFinalized        = "finalized"
)

// Annotator is the linguistic-annotation collaborator: raw text in,
// validated parse out. Unreachable or timed-out collaborators surface
// model.ErrCollaboratorUnavailable.
type Annotator interface {
	Parse(ctx context.Context, documentID string, text string) (*model.ParsedDocument, error)
}

// Recognizer produces entity candidates without a parse; used for degraded
// extraction when the annotation collaborator is down
type Recognizer interface {
	Recognize(documentID string, text string) ([]model.EntityCandidate, error)
}

// TypeHinter optionally proposes a type for an entity the patterns could
// not classify. Replaceable without changing extraction semantics; the
// pipeline never depends on it for correctness.
type TypeHinter interface {
	HintType(ctx context.Context, name string, context string) (model.EntityType, error)
}

// Orchestrator sequences the stages over one document:
// parsed → alias-matched → pattern-extracted → guarded → merged → finalized.
// Stages are strictly sequential and each consumes the previous stage's
// output; no stage mutates input it does not own. Failure at any stage
// aborts the run for that document with a structured error, never partial
// silent output.
type Orchestrator struct {
	Annotator Annotator
	Fallback  Recognizer // optional
	Hinter    TypeHinter // optional
	Guard     *Guard
	Config    *model.ExtractionConfig
}

// NewOrchestrator creates an orchestrator with default guard and config
func NewOrchestrator(annotator Annotator) *Orchestrator {
	return &Orchestrator{
		Annotator: annotator,
		Guard:     NewGuard(),
		Config:    model.DefaultExtractionConfig(),
	}
}

// Run executes the full pipeline for one document against the project's
// alias index. External coreference links may be supplied (nil is fine);
// heuristic links are derived either way.
func (o *Orchestrator) Run(ctx context.Context, project string, documentID string, text string, index *model.AliasIndex, externalCoref []model.CorefLink) (*model.PipelineResult, error) {
	started := time.Now()

	if err := o.validate(text); err != nil {
		return nil, o.fail(StageParsed, project, documentID, err)
	}

	parseCtx, cancel := context.WithTimeout(ctx, o.Config.CollaboratorTimeout)
	defer cancel()

	var parsed *model.ParsedDocument
	var err error
	if o.Annotator != nil {
		parsed, err = o.Annotator.Parse(parseCtx, documentID, text)
	} else {
		err = model.ErrCollaboratorUnavailable
	}
	if err != nil {
		if errors.Is(err, model.ErrCollaboratorUnavailable) && o.Config.AllowDegraded {
			return o.runDegraded(project, documentID, text, index, started)
		}
		return nil, o.fail(StageParsed, project, documentID, err)
	}

	stats := BuildTokenStatistics(OccurrencesFromParse(parsed))

	matches := AliasPass(text, index)

	extractor := NewPatternExtractor(stats)
	entityCandidates, relationCandidates := extractor.Extract(parsed)
	o.hintTypes(ctx, entityCandidates)

	guarded := make([]model.RelationCandidate, 0, len(relationCandidates))
	rejected := 0
	for _, candidate := range relationCandidates {
		if o.Guard.AcceptRelation(&candidate) {
			guarded = append(guarded, candidate)
		} else {
			rejected++
		}
	}

	coref := DeriveCorefLinks(parsed, entityCandidates)
	coref = append(coref, externalCoref...)

	merger := NewMerger(documentID, o.Config.MinConfidence)
	entities, relations := merger.Merge(&MergeInput{
		AliasMatches: matches,
		Entities:     entityCandidates,
		Relations:    guarded,
		Coref:        coref,
		Rejected:     rejected,
	})

	return o.finalize(project, documentID, entities, relations, rejected, false, started), nil
}

// runDegraded performs reduced, non-crashing extraction from the alias
// dictionary alone (plus the fallback recognizer when configured). The
// degradation is flagged in the run statistics, never silent.
func (o *Orchestrator) runDegraded(project string, documentID string, text string, index *model.AliasIndex, started time.Time) (*model.PipelineResult, error) {
	matches := AliasPass(text, index)

	var candidates []model.EntityCandidate
	if o.Fallback != nil {
		recognized, err := o.Fallback.Recognize(documentID, text)
		if err == nil {
			candidates = recognized
		}
	}

	merger := NewMerger(documentID, o.Config.MinConfidence)
	entities, relations := merger.Merge(&MergeInput{
		AliasMatches: matches,
		Entities:     candidates,
	})

	return o.finalize(project, documentID, entities, relations, 0, true, started), nil
}

// hintTypes asks the optional type hinter about untyped candidates
func (o *Orchestrator) hintTypes(ctx context.Context, candidates []model.EntityCandidate) {
	if o.Hinter == nil {
		return
	}
	for n := range candidates {
		c := &candidates[n]
		if c.EffectiveType() != model.EntityTypeUnknown {
			continue
		}
		hinted, err := o.Hinter.HintType(ctx, c.Name, c.Span.Text)
		if err != nil || hinted == "" {
			continue // advisory only, never aborts a run
		}
		c.NearestType = hinted
	}
}

func (o *Orchestrator) validate(text string) error {
	if text == "" {
		return fmt.Errorf("%w: empty document", model.ErrMalformedInput)
	}
	if len(text) > o.Config.MaxTextLength {
		return fmt.Errorf("%w: document of %d bytes exceeds limit %d", model.ErrMalformedInput, len(text), o.Config.MaxTextLength)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: document is not valid UTF-8", model.ErrMalformedInput)
	}
	return nil
}

func (o *Orchestrator) finalize(project string, documentID string, entities []*model.Entity, relations []*model.Relation, rejected int, degraded bool, started time.Time) *model.PipelineResult {
	if entities == nil {
		entities = []*model.Entity{}
	}
	if relations == nil {
		relations = []*model.Relation{}
	}
	return &model.PipelineResult{
		Project:    project,
		DocumentID: documentID,
		Entities:   entities,
		Relations:  relations,
		Stats: model.RunStats{
			EntityCount:   len(entities),
			RelationCount: len(relations),
			ConflictCount: rejected,
			Degraded:      degraded,
			Elapsed:       time.Since(started),
		},
	}
}

func (o *Orchestrator) fail(stage string, project string, documentID string, err error) error {
	return &model.PipelineError{
		Stage:      stage,
		Project:    project,
		DocumentID: documentID,
		Err:        err,
	}
}
