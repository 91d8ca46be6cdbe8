package annotate

import (
	"fmt"

	"github.com/knights-analytics/hugot"
	"github.com/marensch/lorekeep/helper"
)

// NameEmbedder turns entity names into vectors for cross-document
// similarity suggestions
type NameEmbedder struct {
	embed func(text string) ([]float32, error)
	close func() error
}

// NewNameEmbedder creates an embedder using a real sentence transformer model
// Uses the all-MiniLM-L6-v2 model which produces 384-dimensional embeddings
func NewNameEmbedder() (*NameEmbedder, error) {
	// Prepare model (download if needed)
	modelName := "sentence-transformers/all-MiniLM-L6-v2"
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, err
	}

	// Initialize hugot session with Go backend
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	// Create sentence transformers pipeline configuration
	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "name-embedder",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	embedder := &NameEmbedder{close: session.Destroy}
	embedder.embed = func(text string) ([]float32, error) {
		result, err := sentencePipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, fmt.Errorf("failed to generate embedding: %w", err)
		}

		if len(result.Embeddings) == 0 {
			return nil, fmt.Errorf("no embedding generated")
		}

		return result.Embeddings[0], nil
	}

	return embedder, nil
}

// Embed returns the vector of one name
func (e *NameEmbedder) Embed(text string) ([]float32, error) {
	return e.embed(text)
}

// Close releases the model session
func (e *NameEmbedder) Close() error {
	return e.close()
}
