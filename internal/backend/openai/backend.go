package openai

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ekisa-team/lector/internal/backend"
	"github.com/ekisa-team/lector/mapsafe"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "tts-1"

// Config holds the OpenAI speech settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string

	// Options are appended after the ones derived from the fields above.
	Options []option.RequestOption
}

// Backend implements backend.Backend over the OpenAI speech endpoint.
type Backend struct {
	client openai.Client
	model  string
}

// NewBackend creates a new OpenAI speech backend.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, cfg.Options...)

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Backend{client: openai.NewClient(opts...), model: model}, nil
}

// Provider returns the backend identifier.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderOpenAI
}

// Synthesize requests MP3 speech for req.Text and streams it to outputPath.
// Recognized parameters: "speed" (0.25 to 4.0) and "instructions".
func (b *Backend) Synthesize(ctx context.Context, req *backend.Request, outputPath string) (*backend.ResponseMetadata, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, backend.ErrEmptyText
	}

	start := time.Now()

	params := openai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          openai.SpeechModel(b.model),
		Voice:          openai.AudioSpeechNewParamsVoice(req.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if speed := mapsafe.Get(req.Parameters, "speed", 0.0); speed > 0 {
		params.Speed = openai.Float(speed)
	}
	if instructions := mapsafe.Get(req.Parameters, "instructions", ""); instructions != "" {
		params.Instructions = openai.String(instructions)
	}

	res, err := b.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai speech request failed: %w", err)
	}
	defer res.Body.Close()

	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio file: %w", err)
	}

	n, err := io.Copy(f, res.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write audio file: %w", err)
	}
	if n == 0 {
		return nil, backend.ErrEmptyOutput
	}

	return &backend.ResponseMetadata{
		Provider:    b.Provider(),
		Voice:       req.Voice,
		Timestamp:   time.Now(),
		Elapsed:     time.Since(start),
		OutputBytes: n,
		BackendSpecific: map[string]any{
			"model":        b.model,
			"content_type": res.Header.Get("Content-Type"),
		},
	}, nil
}

// Close cleans up resources.
func (b *Backend) Close() error {
	return nil
}
