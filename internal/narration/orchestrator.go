// Package narration turns segments into cached audio. The first segment of a
// request is synthesized before the call returns; the rest run in the
// background under a process-wide concurrency limit.
package narration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ekisa-team/lector/internal/backend"
	"github.com/ekisa-team/lector/internal/cache"
	"github.com/ekisa-team/lector/internal/segment"
	"github.com/ekisa-team/lector/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Config controls synthesis calls.
type Config struct {
	Voice          string
	Parameters     map[string]any
	MaxConcurrency int
	Timeout        time.Duration
}

// Orchestrator schedules segment synthesis against one backend and commits
// the results to the cache store.
type Orchestrator struct {
	backend backend.Backend
	store   *cache.Store
	cfg     Config
	sem     *semaphore.Weighted

	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer

	// ctx parents all background work and is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	batches map[string]*Batch
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics records synthesis instruments on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// New creates an orchestrator. A MaxConcurrency below one is treated as one.
func New(b backend.Backend, store *cache.Store, cfg Config, opts ...Option) *Orchestrator {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		backend: b,
		store:   store,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		logger:  slog.Default(),
		tracer:  otel.Tracer(telemetry.InstrumentationName),
		ctx:     ctx,
		cancel:  cancel,
		batches: make(map[string]*Batch),
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Batch tracks the artifacts of one synthesis request.
type Batch struct {
	ID string

	// Artifacts are in document order.
	Artifacts []cache.Artifact

	done chan struct{}

	mu     sync.Mutex
	failed []string
	err    error
}

func (b *Batch) fail(id string) {
	b.mu.Lock()
	b.failed = append(b.failed, id)
	b.mu.Unlock()
}

// Failed returns the ids of artifacts whose synthesis failed so far.
func (b *Batch) Failed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.failed...)
}

// Err returns the first background segment failure, once Done is closed.
// The first segment's outcome is reported through Failed only.
func (b *Batch) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Done is closed once every segment of the batch has finished.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until the batch finishes or ctx is done.
func (b *Batch) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Synthesize allocates one artifact per segment, synthesizes the first one
// before returning and schedules the rest. Failures are recorded on the
// batch, not returned.
func (o *Orchestrator) Synthesize(ctx context.Context, segments []segment.Segment) (*Batch, error) {
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	batch := &Batch{
		ID:        uuid.NewString(),
		Artifacts: make([]cache.Artifact, len(segments)),
		done:      make(chan struct{}),
	}
	o.batches[batch.ID] = batch
	o.wg.Add(1)
	o.mu.Unlock()

	// Allocation order is document order.
	for i := range segments {
		batch.Artifacts[i] = o.store.Allocate(cache.KindSegment)
	}

	ctx, span := o.tracer.Start(ctx, "narration.Synthesize",
		trace.WithAttributes(
			attribute.String("batch.id", batch.ID),
			attribute.Int("batch.segments", len(segments)),
		))
	defer span.End()

	if err := o.synthesize(ctx, batch.Artifacts[0], segments[0], false); err != nil {
		batch.fail(batch.Artifacts[0].ID)
	}

	// Background work outlives the request but stays in its trace.
	bg := trace.ContextWithSpanContext(o.ctx, span.SpanContext())

	// Slots come from the process-wide semaphore, not g.SetLimit, so Go
	// never blocks the caller. A failed segment does not cancel its siblings.
	var g errgroup.Group
	for i := 1; i < len(segments); i++ {
		art, seg := batch.Artifacts[i], segments[i]
		g.Go(func() error {
			if err := o.synthesize(bg, art, seg, true); err != nil {
				batch.fail(art.ID)
				return fmt.Errorf("segment %d: %w", seg.Index, err)
			}
			return nil
		})
	}

	go func() {
		defer o.wg.Done()
		err := g.Wait()

		batch.mu.Lock()
		batch.err = err
		batch.mu.Unlock()

		o.mu.Lock()
		delete(o.batches, batch.ID)
		o.mu.Unlock()
		close(batch.done)

		if failed := batch.Failed(); len(failed) > 0 {
			o.logger.Warn("Batch finished with failures", "batch", batch.ID, "segments", len(segments), "failed", len(failed), "error", err)
		} else {
			o.logger.Debug("Batch finished", "batch", batch.ID, "segments", len(segments))
		}
	}()

	o.logger.Info("Synthesis scheduled", "batch", batch.ID, "segments", len(segments))
	return batch, nil
}

// SynthesizeOne synthesizes seg synchronously into a new artifact.
func (o *Orchestrator) SynthesizeOne(ctx context.Context, seg segment.Segment) (cache.Artifact, error) {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return cache.Artifact{}, ErrClosed
	}

	art := o.store.Allocate(cache.KindSegment)
	if err := o.synthesize(ctx, art, seg, false); err != nil {
		return cache.Artifact{}, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}

	committed, ok := o.store.Get(art.ID)
	if !ok {
		return cache.Artifact{}, fmt.Errorf("%w: %s was removed", ErrSynthesisFailed, art.ID)
	}
	return committed, nil
}

// synthesize runs one unit of work. Limited units wait for a slot on the
// process-wide semaphore first.
func (o *Orchestrator) synthesize(ctx context.Context, art cache.Artifact, seg segment.Segment, limited bool) (err error) {
	ctx, span := o.tracer.Start(ctx, "narration.segment",
		trace.WithAttributes(
			attribute.String("artifact.id", art.ID),
			attribute.Int("segment.index", seg.Index),
			attribute.Int("segment.length", len(seg.Content)),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if limited {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			o.store.Fail(art.ID, err)
			return err
		}
		defer o.sem.Release(1)
	}

	staging, err := o.store.StagingPath(art.ID)
	if err != nil {
		return err
	}

	callCtx := ctx
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	o.metrics.SynthesisStarted(ctx)
	start := time.Now()

	req := &backend.Request{
		Text:       seg.Content,
		Voice:      o.cfg.Voice,
		Parameters: o.cfg.Parameters,
	}
	if _, err = o.backend.Synthesize(callCtx, req, staging); err != nil {
		o.store.Fail(art.ID, err)
	} else {
		_, err = o.store.Commit(art.ID)
	}

	elapsed := time.Since(start)
	status := telemetry.StatusOK
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = telemetry.StatusTimeout
	case err != nil:
		status = telemetry.StatusFailed
	}
	o.metrics.SynthesisFinished(ctx, status, elapsed)

	if err != nil {
		o.logger.Warn("Segment synthesis failed", "artifact", art.ID, "index", seg.Index, "status", status, "error", err)
		return err
	}

	o.logger.Debug("Segment synthesized", "artifact", art.ID, "index", seg.Index, "elapsed", elapsed)
	return nil
}

// Pending returns the batches still running in the background.
func (o *Orchestrator) Pending() []*Batch {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*Batch, 0, len(o.batches))
	for _, b := range o.batches {
		out = append(out, b)
	}
	return out
}

// Close rejects new work, cancels outstanding synthesis and waits for it to
// wind down or for ctx to end.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
