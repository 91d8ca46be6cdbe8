package model

import "time"

// RunStats are the aggregate statistics of one pipeline run
type RunStats struct {
	EntityCount   int           `json:"entity_count"`
	RelationCount int           `json:"relation_count"`
	ConflictCount int           `json:"conflict_count"` // guard rejections, kept for diagnostics
	Degraded      bool          `json:"degraded"`
	Elapsed       time.Duration `json:"elapsed"`
}

// PipelineResult is the finalized payload of one document run.
// The caller always receives either a complete result or a structured
// error, never a partially merged set presented as complete.
type PipelineResult struct {
	Project    string      `json:"project"`
	DocumentID string      `json:"document_id"`
	Entities   []*Entity   `json:"entities"`
	Relations  []*Relation `json:"relations"`
	Stats      RunStats    `json:"stats"`
}
