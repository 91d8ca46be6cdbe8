package model

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the pipeline and registries. Guard rejections are
// not errors; they are normal filtering outcomes counted in run statistics.
var (
	// ErrCollaboratorUnavailable means the linguistic-annotation or
	// generative-text service could not be reached or timed out.
	// Recoverable by degraded alias-only matching or by retrying.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrMalformedInput means the text exceeds the configured size limit
	// or is not valid text. Rejected before any stage runs.
	ErrMalformedInput = errors.New("malformed input")

	// ErrRegistryConflict means a concurrent mutation to the alias
	// dictionary or entity registry was detected at write time. The caller
	// must retry the load-modify-write cycle, never overwrite silently.
	ErrRegistryConflict = errors.New("registry conflict")
)

// PipelineError reports a stage-local failure with enough context to
// reproduce the run
type PipelineError struct {
	Stage      string
	Project    string
	DocumentID string
	Err        error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("stage %s failed (project %s, document %s): %v", e.Stage, e.Project, e.DocumentID, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
