package narration

import "errors"

// Error definitions for the narration package.
var (
	ErrNoSegments      = errors.New("narration: no segments to synthesize")
	ErrClosed          = errors.New("narration: orchestrator is closed")
	ErrSynthesisFailed = errors.New("narration: synthesis failed")
)
