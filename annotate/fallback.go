package annotate

import (
	"fmt"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/marensch/lorekeep/helper"
	"github.com/marensch/lorekeep/model"
)

// fallbackTypeMap translates NER labels of the fallback model into the
// fixed entity type vocabulary
var fallbackTypeMap = map[string]model.EntityType{
	"PER":  model.EntityTypePerson,
	"ORG":  model.EntityTypeOrg,
	"LOC":  model.EntityTypePlace,
	"MISC": model.EntityTypeUnknown,
}

// fallbackConfidence caps what an aggregated NER score can claim; the
// fallback never outranks an exact dictionary hit
const fallbackConfidence = 0.7

// FallbackRecognizer produces entity candidates without a full parse, used
// for degraded extraction when the annotation service is down. It is a
// recognizer only; no relations come out of it.
type FallbackRecognizer struct {
	recognize func(text string) ([]model.EntityCandidate, error)
	close     func() error
}

// NewFallbackRecognizer creates a recognizer using a NER model
// Uses distilbert-NER for named entity recognition
// Detects: PER, ORG, LOC, MISC entities
func NewFallbackRecognizer() (*FallbackRecognizer, error) {
	// Prepare model (download if needed)
	modelName := "KnightsAnalytics/distilbert-NER"
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, err
	}

	// Initialize hugot session with Go backend
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	// Create token classification pipeline for NER
	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-fallback",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}), // Ignore non-entity tokens
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}

	recognizer := &FallbackRecognizer{close: session.Destroy}
	recognizer.recognize = func(text string) ([]model.EntityCandidate, error) {
		result, err := nerPipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to run NER: %w", err)
		}

		if len(result.Entities) == 0 {
			return nil, nil
		}

		var candidates []model.EntityCandidate
		for _, entity := range result.Entities[0] {
			declared, ok := fallbackTypeMap[normalizeLabel(entity.Entity)]
			if !ok {
				declared = model.EntityTypeUnknown
			}
			confidence := float64(entity.Score)
			if confidence > fallbackConfidence {
				confidence = fallbackConfidence
			}

			candidates = append(candidates, model.EntityCandidate{
				Name:         strings.TrimSpace(entity.Word),
				DeclaredType: declared,
				Confidence:   confidence,
				Span: model.Span{
					Start: int(entity.Start),
					End:   int(entity.End),
					Text:  entity.Word,
				},
				Source: "fallback",
			})
		}

		return candidates, nil
	}

	return recognizer, nil
}

// Recognize runs NER over the text and returns raw entity candidates
func (r *FallbackRecognizer) Recognize(documentID string, text string) ([]model.EntityCandidate, error) {
	candidates, err := r.recognize(text)
	if err != nil {
		return nil, err
	}
	for n := range candidates {
		candidates[n].Span.DocumentID = documentID
	}
	return candidates, nil
}

// Close releases the model session
func (r *FallbackRecognizer) Close() error {
	return r.close()
}

// normalizeLabel removes B- and I- prefixes from NER labels
func normalizeLabel(label string) string {
	// Remove BIO tagging prefixes (B- for beginning, I- for inside)
	if strings.HasPrefix(label, "B-") {
		return label[2:]
	}
	if strings.HasPrefix(label, "I-") {
		return label[2:]
	}
	return label
}
