// Package export merges the cached segments into one document-length file.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ekisa-team/lector/internal/audio"
	"github.com/ekisa-team/lector/internal/cache"
	"github.com/ekisa-team/lector/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultWaitTimeout bounds how long an export waits for pending segments.
const DefaultWaitTimeout = 60 * time.Second

// Result describes a finished export.
type Result struct {
	Artifact cache.Artifact

	// Included are the merged segment ids in document order.
	Included []string

	// Skipped are segments that failed or were still pending at the
	// deadline. Their audio is missing from the export.
	Skipped []string
}

// ConcatFunc encodes the audio files at paths, in order, into dst.
type ConcatFunc func(dst string, paths ...string) (audio.Info, error)

// Merger builds exports from the segments in a cache store.
type Merger struct {
	store   *cache.Store
	concat  ConcatFunc
	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer

	mu          sync.RWMutex
	waitTimeout time.Duration
}

// Option configures a Merger.
type Option func(*Merger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Merger) {
		m.logger = logger
	}
}

// WithMetrics records export outcomes on metrics.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Merger) {
		m.metrics = metrics
	}
}

// WithConcat replaces the encoder, audio.Concat by default.
func WithConcat(fn ConcatFunc) Option {
	return func(m *Merger) {
		m.concat = fn
	}
}

// New creates a merger. A non-positive waitTimeout uses DefaultWaitTimeout.
func New(store *cache.Store, waitTimeout time.Duration, opts ...Option) *Merger {
	m := &Merger{
		store:  store,
		concat: audio.Concat,
		logger: slog.Default(),
		tracer: otel.Tracer(telemetry.InstrumentationName),
	}
	m.SetWaitTimeout(waitTimeout)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetWaitTimeout changes the ceiling for subsequent exports.
func (m *Merger) SetWaitTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultWaitTimeout
	}
	m.mu.Lock()
	m.waitTimeout = d
	m.mu.Unlock()
}

// WaitTimeout returns the current ceiling.
func (m *Merger) WaitTimeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.waitTimeout
}

// ExportAll merges every pending or ready segment, in document order, into
// a new WAV artifact. Pending segments are awaited up to the wait timeout.
func (m *Merger) ExportAll(ctx context.Context) (res Result, err error) {
	ctx, span := m.tracer.Start(ctx, "export.ExportAll")
	defer func() {
		outcome := telemetry.OutcomeExported
		switch {
		case errors.Is(err, ErrNoContent):
			outcome = telemetry.OutcomeNoContent
		case err != nil:
			outcome = telemetry.OutcomeError
			span.RecordError(err)
		}
		m.metrics.Export(ctx, outcome)
		span.SetAttributes(
			attribute.String("export.outcome", outcome),
			attribute.Int("export.included", len(res.Included)),
			attribute.Int("export.skipped", len(res.Skipped)),
		)
		span.End()
	}()

	candidates := m.candidates()
	if len(candidates) == 0 {
		return Result{}, ErrNoContent
	}

	if err := m.await(ctx, candidates); err != nil {
		return Result{}, err
	}

	var paths []string
	for _, a := range candidates {
		if m.eligible(a.ID) {
			res.Included = append(res.Included, a.ID)
			paths = append(paths, a.Path)
		} else {
			res.Skipped = append(res.Skipped, a.ID)
		}
	}
	if len(paths) == 0 {
		return Result{Skipped: res.Skipped}, ErrNoContent
	}

	art := m.store.Allocate(cache.KindExport)
	staging, err := m.store.StagingPath(art.ID)
	if err != nil {
		return Result{}, err
	}

	info, err := m.concat(staging, paths...)
	if err != nil {
		m.store.Fail(art.ID, err)
		return Result{}, fmt.Errorf("export: merge failed: %w", err)
	}

	res.Artifact, err = m.store.Commit(art.ID)
	if err != nil {
		return Result{}, fmt.Errorf("export: %w", err)
	}

	m.logger.Info("Export created",
		"id", res.Artifact.ID,
		"segments", len(res.Included),
		"skipped", len(res.Skipped),
		"duration", info.Duration().Round(time.Millisecond),
		"size", humanize.Bytes(uint64(res.Artifact.Size)),
	)

	return res, nil
}

// candidates returns segments that are pending, or ready and large enough,
// in sequence order.
func (m *Merger) candidates() []cache.Artifact {
	var out []cache.Artifact
	for _, a := range m.store.Snapshot(cache.KindSegment) {
		switch a.State {
		case cache.StatePending:
			out = append(out, a)
		case cache.StateReady:
			if m.eligible(a.ID) {
				out = append(out, a)
			}
		}
	}
	return out
}

func (m *Merger) eligible(id string) bool {
	a, ok := m.store.Get(id)
	if !ok || a.State != cache.StateReady {
		return false
	}
	size, err := m.store.SizeOf(id)
	return err == nil && size > m.store.MinBytes()
}

// await blocks until every pending candidate finishes or the wait timeout
// passes. Only ctx cancellation is an error.
func (m *Merger) await(ctx context.Context, candidates []cache.Artifact) error {
	timer := time.NewTimer(m.WaitTimeout())
	defer timer.Stop()

	waiting := 0
	for _, a := range candidates {
		if a.State != cache.StatePending {
			continue
		}
		waiting++
		select {
		case <-m.store.Done(a.ID):
		case <-timer.C:
			m.logger.Warn("Export wait timed out", "timeout", m.WaitTimeout(), "waited_for", waiting)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
