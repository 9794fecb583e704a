package service

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"sync/atomic"
	"time"

	"github.com/ekisa-team/lector/internal/cache"
	"github.com/ekisa-team/lector/internal/config"
	"github.com/ekisa-team/lector/internal/document"
	"github.com/ekisa-team/lector/internal/export"
	"github.com/ekisa-team/lector/internal/narration"
	"github.com/ekisa-team/lector/internal/segment"
	"github.com/ekisa-team/lector/internal/telemetry"
)

// Narrator is a service abstraction over segmentation, synthesis, the
// audio cache and exports.
type Narrator struct {
	segmenter    *segment.Segmenter
	orchestrator *narration.Orchestrator
	store        *cache.Store
	merger       *export.Merger
	metrics      *telemetry.Metrics
	logger       *slog.Logger

	maxAge atomic.Int64
}

// NarratorOption configures a Narrator.
type NarratorOption func(*Narrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) NarratorOption {
	return func(n *Narrator) {
		n.logger = logger
	}
}

// WithMetrics records eviction counts on m.
func WithMetrics(m *telemetry.Metrics) NarratorOption {
	return func(n *Narrator) {
		n.metrics = m
	}
}

// NewNarrator creates a new Narrator service.
func NewNarrator(
	segmenter *segment.Segmenter,
	orchestrator *narration.Orchestrator,
	store *cache.Store,
	merger *export.Merger,
	maxAge time.Duration,
	opts ...NarratorOption,
) *Narrator {
	n := &Narrator{
		segmenter:    segmenter,
		orchestrator: orchestrator,
		store:        store,
		merger:       merger,
		logger:       slog.Default(),
	}
	n.maxAge.Store(int64(maxAge))
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Split returns the parts text would be synthesized as.
func (n *Narrator) Split(text string) []string {
	return n.segmenter.Parts(text)
}

// Synthesize segments text and starts synthesis. The first part is ready
// when it returns.
func (n *Narrator) Synthesize(ctx context.Context, text string) (*narration.Batch, error) {
	return n.orchestrator.Synthesize(ctx, n.segmenter.Segment(text))
}

// RepeatPart re-synthesizes the part at idx of text's segmentation.
func (n *Narrator) RepeatPart(ctx context.Context, idx int, text string) (cache.Artifact, error) {
	segments := n.segmenter.Segment(text)
	if idx < 0 || idx >= len(segments) {
		return cache.Artifact{}, ErrIndexOutOfRange
	}
	return n.orchestrator.SynthesizeOne(ctx, segments[idx])
}

// Open opens a ready audio file by name.
func (n *Narrator) Open(name string) (*os.File, cache.Artifact, error) {
	id, _, err := cache.ParseName(name)
	if err != nil {
		return nil, cache.Artifact{}, cache.ErrNotFound
	}
	return n.store.Open(id)
}

// Delete schedules removal of the audio file an URL points at. It reports
// whether a known artifact was found; unknown URLs are ignored.
func (n *Narrator) Delete(rawURL string) bool {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}

	id, _, err := cache.ParseName(path.Base(p))
	if err != nil {
		n.logger.Debug("Ignoring delete for unknown audio", "url", rawURL)
		return false
	}
	return n.store.Delete(id)
}

// Clear removes every cached audio file.
func (n *Narrator) Clear() int {
	removed := n.store.ClearAll()
	n.logger.Info("Audio cache cleared", "removed", removed)
	return removed
}

// Export merges the cached segments into one file.
func (n *Narrator) Export(ctx context.Context) (export.Result, error) {
	return n.merger.ExportAll(ctx)
}

// ExtractText returns the text of an uploaded document.
func (n *Narrator) ExtractText(filename string, r io.ReaderAt, size int64) (string, error) {
	return document.ExtractText(filename, r, size)
}

// Evict removes audio older than the configured maximum age.
func (n *Narrator) Evict(ctx context.Context) int {
	removed := n.store.EvictOlderThan(n.MaxAge())
	if removed > 0 {
		n.metrics.Evicted(ctx, removed)
		n.logger.Debug("Evicted stale audio", "removed", removed)
	}
	return removed
}

// MaxAge returns the eviction age.
func (n *Narrator) MaxAge() time.Duration {
	return time.Duration(n.maxAge.Load())
}

// ApplyConfig applies the settings that can change without a restart.
func (n *Narrator) ApplyConfig(cfg *config.Config) {
	n.maxAge.Store(int64(cfg.Cache.MaxAge))
	n.merger.SetWaitTimeout(cfg.Export.WaitTimeout)
	n.logger.Info("Applied config", "max_age", cfg.Cache.MaxAge, "export_wait_timeout", cfg.Export.WaitTimeout)
}
