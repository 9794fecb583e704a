// Package cache owns the audio working directory: allocation of artifact
// paths, staged writes, age-based eviction and deferred deletion.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ekisa-team/lector/internal/audio"
	"github.com/ekisa-team/lector/internal/xfs"
	"github.com/google/uuid"
)

// DefaultMinBytes is the size an audio file must exceed to count as content.
const DefaultMinBytes = 1024

// Validator checks a staged file before it is committed.
type Validator func(path string, minBytes int64) error

// Store is a directory of audio artifacts plus an in-memory index. Each
// artifact is guarded by its own mutex; the store lock only protects the
// index map and is always taken before an entry lock.
type Store struct {
	dir        string
	minBytes   int64
	logger     *slog.Logger
	deleter    *Deleter
	ownDeleter bool
	validators map[Kind]Validator
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
	seq     uint64
}

type entry struct {
	mu     sync.Mutex
	art    Artifact
	doomed bool
	done   chan struct{}
}

func (e *entry) finish() {
	select {
	case <-e.done:
	default:
		close(e.done)
	}
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMinBytes sets the minimum committed file size.
func WithMinBytes(n int64) Option {
	return func(s *Store) {
		s.minBytes = n
	}
}

// WithDeleter uses d for deferred removals. The caller keeps ownership.
func WithDeleter(d *Deleter) Option {
	return func(s *Store) {
		s.deleter = d
	}
}

// WithValidator replaces the commit check for artifacts of kind.
func WithValidator(kind Kind, v Validator) Option {
	return func(s *Store) {
		s.validators[kind] = v
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open creates dir if needed, removes orphaned staging files and indexes the
// audio files already present as ready artifacts, sequenced by mtime.
func Open(dir string, opts ...Option) (*Store, error) {
	dir = xfs.ExpandTilde(dir)
	if err := xfs.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	s := &Store{
		dir:      dir,
		minBytes: DefaultMinBytes,
		logger:   slog.Default(),
		validators: map[Kind]Validator{
			KindSegment: validateMP3,
			KindExport:  validateSize,
		},
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.deleter == nil {
		s.deleter = NewDeleter(WithDeleterLogger(s.logger))
		s.ownDeleter = true
	}

	if err := s.reindex(); err != nil {
		return nil, err
	}

	return s, nil
}

func validateMP3(path string, minBytes int64) error {
	_, err := audio.Validate(path, minBytes)
	return err
}

func validateSize(path string, minBytes int64) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	if st.Size() <= minBytes {
		return fmt.Errorf("%w: %d bytes", audio.ErrTooSmall, st.Size())
	}
	return nil
}

func (s *Store) reindex() error {
	des, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache dir: %w", err)
	}

	var found []Artifact
	for _, de := range des {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		path := filepath.Join(s.dir, name)

		if strings.HasSuffix(name, StagingSuffix) {
			if err := os.Remove(path); err == nil {
				s.logger.Debug("Removed orphaned staging file", "path", path)
			}
			continue
		}

		id, kind, err := ParseName(name)
		if err != nil {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		found = append(found, Artifact{
			ID:        id,
			Path:      path,
			Kind:      kind,
			CreatedAt: info.ModTime(),
			Size:      info.Size(),
			State:     StateReady,
		})
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].CreatedAt.Before(found[j].CreatedAt)
	})

	for _, a := range found {
		s.seq++
		a.Sequence = s.seq
		done := make(chan struct{})
		close(done)
		s.entries[a.ID] = &entry{art: a, done: done}
	}

	if len(found) > 0 {
		s.logger.Info("Indexed cached audio", "dir", s.dir, "files", len(found))
	}
	return nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// MinBytes returns the minimum committed file size.
func (s *Store) MinBytes() int64 {
	return s.minBytes
}

// Allocate reserves a fresh artifact of kind in the pending state. Sequence
// numbers increase with every call.
func (s *Store) Allocate(kind Kind) Artifact {
	id := uuid.NewString()
	if kind == KindExport {
		id = ExportPrefix + id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	a := Artifact{
		ID:        id,
		Path:      filepath.Join(s.dir, id+kind.Ext()),
		Kind:      kind,
		Sequence:  s.seq,
		CreatedAt: s.now(),
		State:     StatePending,
	}
	s.entries[id] = &entry{art: a, done: make(chan struct{})}

	return a
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	return e, ok
}

func (s *Store) drop(id string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[id] == e {
		delete(s.entries, id)
	}
}

// StagingPath returns the path the writer of a pending artifact writes to.
func (s *Store) StagingPath(id string) (string, error) {
	e, ok := s.lookup(id)
	if !ok {
		return "", ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.art.State != StatePending {
		return "", ErrNotPending
	}
	return e.art.Path + StagingSuffix, nil
}

// Commit validates the staged file and renames it onto the artifact path.
// A failed validation fails the artifact. If the artifact was deleted while
// pending, the committed file is handed to the deleter instead.
func (s *Store) Commit(id string) (Artifact, error) {
	e, ok := s.lookup(id)
	if !ok {
		return Artifact{}, ErrNotFound
	}

	e.mu.Lock()
	if e.art.State != StatePending {
		e.mu.Unlock()
		return Artifact{}, ErrNotPending
	}

	staging := e.art.Path + StagingSuffix
	err := s.validators[e.art.Kind](staging, s.minBytes)
	if err == nil {
		err = os.Rename(staging, e.art.Path)
	}
	if err != nil {
		e.mu.Unlock()
		s.Fail(id, err)
		return Artifact{}, fmt.Errorf("commit %s: %w", id, err)
	}

	if st, serr := os.Stat(e.art.Path); serr == nil {
		e.art.Size = st.Size()
	}
	e.art.State = StateReady
	a := e.art
	doomed := e.doomed
	e.finish()
	e.mu.Unlock()

	if doomed {
		s.drop(id, e)
		s.deleter.Enqueue(a.Path)
		return a, nil
	}

	s.logger.Debug("Committed audio", "id", id, "size", humanize.Bytes(uint64(a.Size)))
	return a, nil
}

// Fail discards a pending artifact's staged and final files.
func (s *Store) Fail(id string, cause error) {
	e, ok := s.lookup(id)
	if !ok {
		return
	}

	e.mu.Lock()
	if e.art.State != StatePending {
		e.mu.Unlock()
		return
	}
	removeQuiet(e.art.Path + StagingSuffix)
	removeQuiet(e.art.Path)
	e.art.State = StateFailed
	doomed := e.doomed
	e.finish()
	e.mu.Unlock()

	if doomed {
		s.drop(id, e)
	}

	s.logger.Warn("Audio artifact failed", "id", id, "error", cause)
}

func removeQuiet(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Debug("Failed to remove file", "path", path, "error", err)
	}
}

// Get returns the artifact recorded under id.
func (s *Store) Get(id string) (Artifact, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return Artifact{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.doomed {
		return Artifact{}, false
	}
	return e.art, true
}

// Exists reports whether id is ready and its file is on disk.
func (s *Store) Exists(id string) bool {
	_, err := s.SizeOf(id)
	return err == nil
}

// SizeOf returns the on-disk size of a ready artifact.
func (s *Store) SizeOf(id string) (int64, error) {
	a, ok := s.Get(id)
	if !ok {
		return 0, ErrNotFound
	}
	if a.State != StateReady {
		return 0, ErrNotReady
	}

	st, err := os.Stat(a.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return st.Size(), nil
}

// Open opens a ready artifact for reading.
func (s *Store) Open(id string) (*os.File, Artifact, error) {
	a, ok := s.Get(id)
	if !ok {
		return nil, Artifact{}, ErrNotFound
	}
	if a.State != StateReady {
		return nil, Artifact{}, ErrNotReady
	}

	f, err := os.Open(a.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Artifact{}, ErrNotFound
		}
		return nil, Artifact{}, err
	}
	return f, a, nil
}

// Done returns a channel closed once id leaves the pending state. Unknown
// ids yield a closed channel.
func (s *Store) Done(id string) <-chan struct{} {
	e, ok := s.lookup(id)
	if !ok {
		done := make(chan struct{})
		close(done)
		return done
	}
	return e.done
}

// Snapshot returns the live artifacts of kind ordered by sequence number.
func (s *Store) Snapshot(kind Kind) []Artifact {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Artifact, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.doomed && e.art.Kind == kind {
			out = append(out, e.art)
		}
		e.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

// EvictOlderThan removes every audio file, and every staging file no writer
// owns, whose modification time is older than maxAge. Pending artifacts are
// skipped. It returns the number of audio files removed.
func (s *Store) EvictOlderThan(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)
	removed := s.sweep(func(info fs.FileInfo) bool {
		return info.ModTime().Before(cutoff)
	}, false)

	// Failed artifacts and ready ones whose file vanished have nothing left
	// on disk for the scan to find.
	s.forget(func(e *entry) bool {
		if e.art.State == StatePending || !e.art.CreatedAt.Before(cutoff) {
			return false
		}
		if e.art.State == StateFailed {
			return true
		}
		_, err := os.Stat(e.art.Path)
		return errors.Is(err, fs.ErrNotExist)
	})

	return removed
}

// ClearAll removes every audio file in the directory. Pending artifacts are
// marked for removal once their writer finishes. It returns the number of
// files removed now.
func (s *Store) ClearAll() int {
	return s.sweep(func(fs.FileInfo) bool { return true }, true)
}

func (s *Store) sweep(match func(fs.FileInfo) bool, doomPending bool) int {
	des, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("Failed to scan cache dir", "dir", s.dir, "error", err)
		return 0
	}

	removed := 0
	for _, de := range des {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil || !match(info) {
			continue
		}

		name := de.Name()
		path := filepath.Join(s.dir, name)
		staging := strings.HasSuffix(name, StagingSuffix)

		id, _, err := ParseName(strings.TrimSuffix(name, StagingSuffix))
		if err != nil {
			continue
		}

		e, ok := s.lookup(id)
		if !ok {
			if err := os.Remove(path); err == nil && !staging {
				removed++
			}
			continue
		}

		e.mu.Lock()
		if e.art.State == StatePending {
			if doomPending {
				e.doomed = true
			}
			e.mu.Unlock()
			continue
		}
		// The listing may predate a commit that renamed the staged file, so
		// remove the entry's own files rather than the listed name.
		e.doomed = true
		removeQuiet(e.art.Path + StagingSuffix)
		if err := os.Remove(e.art.Path); err == nil {
			removed++
		} else if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("Failed to remove audio file", "path", e.art.Path, "error", err)
		}
		e.mu.Unlock()
		s.drop(id, e)
	}

	if doomPending {
		s.forget(func(*entry) bool { return true })
	}

	return removed
}

// forget drops every non-pending entry matching fn and dooms pending ones
// when fn matches them too.
func (s *Store) forget(fn func(*entry) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		e.mu.Lock()
		if fn(e) {
			e.doomed = true
			if e.art.State != StatePending {
				delete(s.entries, id)
			}
		}
		e.mu.Unlock()
	}
}

// Delete forgets id and schedules its file for removal. A pending artifact
// is removed when its writer commits or fails.
func (s *Store) Delete(id string) bool {
	e, ok := s.lookup(id)
	if !ok {
		return false
	}

	e.mu.Lock()
	if e.doomed {
		e.mu.Unlock()
		return false
	}
	e.doomed = true
	pending := e.art.State == StatePending
	path := e.art.Path
	e.mu.Unlock()

	if pending {
		return true
	}

	s.drop(id, e)
	s.deleter.Enqueue(path)
	return true
}

// Close drains the deleter when the store owns it.
func (s *Store) Close(ctx context.Context) error {
	if !s.ownDeleter {
		return nil
	}
	return s.deleter.Close(ctx)
}
