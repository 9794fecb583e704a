package cache

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
)

// Deleter removes files in the background on a single goroutine. Enqueue
// never blocks; the queue is unbounded.
type Deleter struct {
	logger    *slog.Logger
	onRemoved func(path string, err error)

	mu     sync.Mutex
	queue  []string
	closed bool

	wake    chan struct{}
	closing chan struct{}
	done    chan struct{}
	once    sync.Once
}

// DeleterOption configures a Deleter.
type DeleterOption func(*Deleter)

// WithDeleterLogger sets the logger.
func WithDeleterLogger(logger *slog.Logger) DeleterOption {
	return func(d *Deleter) {
		d.logger = logger
	}
}

// WithRemovedHook registers fn to run after every removal attempt. err is
// nil for files that were removed or already gone.
func WithRemovedHook(fn func(path string, err error)) DeleterOption {
	return func(d *Deleter) {
		d.onRemoved = fn
	}
}

// NewDeleter starts a deletion worker.
func NewDeleter(opts ...DeleterOption) *Deleter {
	d := &Deleter{
		logger:  slog.Default(),
		wake:    make(chan struct{}, 1),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	go d.run()
	return d
}

// Enqueue schedules path for removal. After Close the file is removed on
// the calling goroutine.
func (d *Deleter) Enqueue(path string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.remove(path)
		return
	}
	d.queue = append(d.queue, path)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued paths.
func (d *Deleter) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Close stops accepting work and waits for the queue to drain or ctx to end.
func (d *Deleter) Close(ctx context.Context) error {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.closing)
	})

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Deleter) run() {
	defer close(d.done)

	for {
		for {
			path, ok := d.pop()
			if !ok {
				break
			}
			d.remove(path)
		}

		select {
		case <-d.wake:
		case <-d.closing:
			// Drain whatever arrived before Close flipped the flag.
			for {
				path, ok := d.pop()
				if !ok {
					return
				}
				d.remove(path)
			}
		}
	}
}

func (d *Deleter) pop() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) == 0 {
		return "", false
	}
	path := d.queue[0]
	d.queue[0] = ""
	d.queue = d.queue[1:]
	return path, true
}

func (d *Deleter) remove(path string) {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		err = nil
	}
	if err != nil {
		d.logger.Debug("Failed to delete audio file", "path", path, "error", err)
	} else {
		d.logger.Debug("Deleted audio file", "path", path)
	}

	if d.onRemoved != nil {
		d.onRemoved(path, err)
	}
}
