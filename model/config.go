package model

import "time"

// ExtractionConfig bounds one pipeline run
type ExtractionConfig struct {
	// MaxTextLength rejects oversized documents before any stage runs
	MaxTextLength int `json:"max_text_length"`
	// MaxPathLength is the guard's dependency-path distance cap
	MaxPathLength int `json:"max_path_length"`
	// MinConfidence drops candidates below this before merging
	MinConfidence float64 `json:"min_confidence"`
	// CollaboratorTimeout bounds each call out to an external collaborator
	CollaboratorTimeout time.Duration `json:"collaborator_timeout"`
	// AllowDegraded permits alias-only extraction when the
	// linguistic-annotation collaborator is unavailable
	AllowDegraded bool `json:"allow_degraded"`
}

// DefaultExtractionConfig returns the default extraction limits
func DefaultExtractionConfig() *ExtractionConfig {
	return &ExtractionConfig{
		MaxTextLength:       50000,
		MaxPathLength:       4,
		MinConfidence:       0.3,
		CollaboratorTimeout: 30 * time.Second,
		AllowDegraded:       true,
	}
}
