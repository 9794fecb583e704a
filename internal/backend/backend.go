package backend

import (
	"context"
	"time"
)

// BackendProvider is a string identifier for a backend provider.
type BackendProvider string

const (
	BackendProviderCommand BackendProvider = "command"
	BackendProviderOpenAI  BackendProvider = "openai"
)

// Backend defines the contract for speech synthesis providers.
// Providers are black boxes: they may fail, and they may hang until the
// context passed to Synthesize is done.
type Backend interface {
	// Provider returns the backend identifier.
	Provider() BackendProvider

	// Synthesize renders req as an MP3 file written to outputPath.
	// On error the file at outputPath may be missing or partial.
	Synthesize(ctx context.Context, req *Request, outputPath string) (*ResponseMetadata, error)

	// Close cleans up resources.
	Close() error
}

// Request encapsulates all parameters for a synthesis call.
type Request struct {
	// Text is the segment text to speak.
	Text string

	// Voice is the provider-specific voice identifier.
	Voice string

	// Parameters contains backend-specific parameters.
	Parameters map[string]any
}

// ResponseMetadata contains metadata about a synthesis call.
type ResponseMetadata struct {
	Provider        BackendProvider `json:"provider"`
	Voice           string          `json:"voice"`
	Timestamp       time.Time       `json:"timestamp"`
	Elapsed         time.Duration   `json:"elapsed"`
	OutputBytes     int64           `json:"output_bytes"`
	BackendSpecific map[string]any  `json:"backend_specific,omitempty"`
}
