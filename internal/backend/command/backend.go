package command

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ekisa-team/lector/internal/backend"
	"github.com/ekisa-team/lector/mapsafe"
	"github.com/mattn/go-shellwords"
)

// Template placeholders substituted per call.
const (
	PlaceholderVoice    = "{voice}"
	PlaceholderText     = "{text}"
	PlaceholderTextFile = "{text_file}"
	PlaceholderOutput   = "{output}"
)

// Backend implements backend.Backend by running a text-to-speech CLI such as
// edge-tts. The command writes the MP3 itself; text is passed inline, via a
// temporary file, or on stdin when the template names neither.
type Backend struct {
	executor *backend.Executor
	args     []string
	tempDir  string
}

// NewBackend parses template and resolves its binary through PATH.
func NewBackend(template string, timeout time.Duration) (*Backend, error) {
	args, err := parseTemplate(template)
	if err != nil {
		return nil, err
	}

	executor, err := backend.NewExecutor(args[0], timeout)
	if err != nil {
		return nil, err
	}

	return &Backend{executor: executor, args: args[1:], tempDir: os.TempDir()}, nil
}

// NewBackendWithRunner builds a backend around a custom command runner.
func NewBackendWithRunner(template string, timeout time.Duration, runner backend.CommandRunner) (*Backend, error) {
	args, err := parseTemplate(template)
	if err != nil {
		return nil, err
	}

	return &Backend{
		executor: backend.NewExecutorWithRunner(args[0], timeout, runner),
		args:     args[1:],
		tempDir:  os.TempDir(),
	}, nil
}

func parseTemplate(template string) ([]string, error) {
	args, err := shellwords.NewParser().Parse(template)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return args, nil
}

// Provider returns the backend identifier.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderCommand
}

// Synthesize runs the command for one segment.
func (b *Backend) Synthesize(ctx context.Context, req *backend.Request, outputPath string) (*backend.ResponseMetadata, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, backend.ErrEmptyText
	}

	start := time.Now()

	textFile := ""
	if b.uses(PlaceholderTextFile) {
		f, err := os.CreateTemp(b.tempDir, "lector-*.txt")
		if err != nil {
			return nil, fmt.Errorf("failed to create text file: %w", err)
		}
		textFile = f.Name()
		defer os.Remove(textFile)

		_, werr := f.WriteString(req.Text)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return nil, fmt.Errorf("failed to write text file: %w", werr)
		}
	}

	args := b.buildArgs(req, outputPath, textFile)

	var stdin io.Reader
	if !b.uses(PlaceholderText) && !b.uses(PlaceholderTextFile) {
		stdin = strings.NewReader(req.Text)
	}

	stdout, stderr, err := b.executor.Execute(ctx, args, stdin)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w\nstderr: %s", err, stderr)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat audio file: %w", err)
	}
	if info.Size() == 0 {
		return nil, backend.ErrEmptyOutput
	}

	return &backend.ResponseMetadata{
		Provider:    b.Provider(),
		Voice:       req.Voice,
		Timestamp:   time.Now(),
		Elapsed:     time.Since(start),
		OutputBytes: info.Size(),
		BackendSpecific: map[string]any{
			"binary": filepath.Base(b.executor.BinaryPath()),
			"stdout": string(stdout),
			"stderr": string(stderr),
		},
	}, nil
}

// buildArgs substitutes placeholders in every template argument. Extra
// request parameters are available as {name}.
func (b *Backend) buildArgs(req *backend.Request, outputPath, textFile string) []string {
	pairs := []string{
		PlaceholderVoice, req.Voice,
		PlaceholderText, req.Text,
		PlaceholderTextFile, textFile,
		PlaceholderOutput, outputPath,
	}
	for _, k := range slices.Sorted(maps.Keys(req.Parameters)) {
		pairs = append(pairs, "{"+k+"}", mapsafe.String(req.Parameters, k))
	}
	replacer := strings.NewReplacer(pairs...)

	args := make([]string, len(b.args))
	for i, a := range b.args {
		args[i] = replacer.Replace(a)
	}

	return args
}

func (b *Backend) uses(placeholder string) bool {
	for _, a := range b.args {
		if strings.Contains(a, placeholder) {
			return true
		}
	}
	return false
}

// Close cleans up resources. The command backend holds none.
func (b *Backend) Close() error {
	return nil
}
