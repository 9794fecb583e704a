package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ekisa-team/lector/internal/audio/audiotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acceptAll(string, int64) error { return nil }

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	opts = append([]Option{
		WithValidator(KindSegment, acceptAll),
		WithValidator(KindExport, acceptAll),
	}, opts...)

	s, err := Open(t.TempDir(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func writeStaged(t *testing.T, s *Store, id string, data []byte) {
	t.Helper()
	p, err := s.StagingPath(id)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestAllocate(t *testing.T) {
	s := newTestStore(t)

	a := s.Allocate(KindSegment)
	b := s.Allocate(KindSegment)
	e := s.Allocate(KindExport)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Less(t, a.Sequence, b.Sequence)
	assert.Less(t, b.Sequence, e.Sequence)
	assert.Equal(t, StatePending, a.State)

	assert.Equal(t, filepath.Join(s.Dir(), a.ID+".mp3"), a.Path)
	assert.True(t, strings.HasPrefix(e.Name(), "export_"))
	assert.True(t, strings.HasSuffix(e.Name(), ".wav"))

	p, err := s.StagingPath(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Path+".part", p)
}

func TestCommit(t *testing.T) {
	s := newTestStore(t)
	a := s.Allocate(KindSegment)
	done := s.Done(a.ID)

	assert.False(t, s.Exists(a.ID))
	writeStaged(t, s, a.ID, []byte("audio"))

	got, err := s.Commit(a.ID)
	require.NoError(t, err)

	assert.Equal(t, StateReady, got.State)
	assert.Equal(t, int64(5), got.Size)
	assert.True(t, isClosed(done))
	assert.True(t, s.Exists(a.ID))
	assert.NoFileExists(t, a.Path+".part")

	size, err := s.SizeOf(a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	_, err = s.Commit(a.ID)
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestCommit_ValidationFailureFailsArtifact(t *testing.T) {
	bad := errors.New("not audio")
	s := newTestStore(t, WithValidator(KindSegment, func(string, int64) error { return bad }))

	a := s.Allocate(KindSegment)
	writeStaged(t, s, a.ID, []byte("junk"))

	_, err := s.Commit(a.ID)
	assert.ErrorIs(t, err, bad)

	got, ok := s.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, StateFailed, got.State)
	assert.True(t, isClosed(s.Done(a.ID)))
	assert.NoFileExists(t, a.Path+".part")
	assert.NoFileExists(t, a.Path)
}

func TestCommit_ValidatesMP3ByDefault(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close(context.Background())

	good := s.Allocate(KindSegment)
	writeStaged(t, s, good.ID, audiotest.SilentMP3(10, 44100))
	_, err = s.Commit(good.ID)
	require.NoError(t, err)

	tiny := s.Allocate(KindSegment)
	writeStaged(t, s, tiny.ID, []byte("ID3"))
	_, err = s.Commit(tiny.ID)
	assert.Error(t, err)
}

func TestFail(t *testing.T) {
	s := newTestStore(t)
	a := s.Allocate(KindSegment)
	writeStaged(t, s, a.ID, []byte("partial"))

	s.Fail(a.ID, errors.New("provider timed out"))

	got, ok := s.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, StateFailed, got.State)
	assert.NoFileExists(t, a.Path+".part")
	assert.True(t, isClosed(s.Done(a.ID)))

	_, err := s.SizeOf(a.ID)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestOpen_ReadyOnly(t *testing.T) {
	s := newTestStore(t)
	a := s.Allocate(KindSegment)

	_, _, err := s.Open(a.ID)
	assert.ErrorIs(t, err, ErrNotReady)

	writeStaged(t, s, a.ID, []byte("audio"))
	_, err = s.Commit(a.ID)
	require.NoError(t, err)

	f, got, err := s.Open(a.ID)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, a.ID, got.ID)

	_, _, err = s.Open("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDone_UnknownIsClosed(t *testing.T) {
	s := newTestStore(t)
	assert.True(t, isClosed(s.Done("nope")))
}

func TestSnapshot_OrderedAndFilteredByKind(t *testing.T) {
	s := newTestStore(t)

	var ids []string
	for range 5 {
		ids = append(ids, s.Allocate(KindSegment).ID)
	}
	s.Allocate(KindExport)

	// Commit out of order; sequence still reflects allocation order.
	for _, i := range []int{3, 0, 4} {
		writeStaged(t, s, ids[i], []byte("audio"))
		_, err := s.Commit(ids[i])
		require.NoError(t, err)
	}

	snap := s.Snapshot(KindSegment)
	require.Len(t, snap, 5)
	for i, a := range snap {
		assert.Equal(t, ids[i], a.ID)
		assert.Equal(t, KindSegment, a.Kind)
	}

	assert.Len(t, s.Snapshot(KindExport), 1)
}

func TestDelete_Ready(t *testing.T) {
	s := newTestStore(t)
	a := s.Allocate(KindSegment)
	writeStaged(t, s, a.ID, []byte("audio"))
	_, err := s.Commit(a.ID)
	require.NoError(t, err)

	assert.True(t, s.Delete(a.ID))
	assert.False(t, s.Exists(a.ID))
	assert.False(t, s.Delete(a.ID))

	require.NoError(t, s.Close(context.Background()))
	assert.NoFileExists(t, a.Path)
}

func TestDelete_PendingIsDeferredUntilCommit(t *testing.T) {
	s := newTestStore(t)
	a := s.Allocate(KindSegment)

	assert.True(t, s.Delete(a.ID))
	_, ok := s.Get(a.ID)
	assert.False(t, ok)

	// The writer still owns its staging path.
	writeStaged(t, s, a.ID, []byte("audio"))
	_, err := s.Commit(a.ID)
	require.NoError(t, err)

	require.NoError(t, s.Close(context.Background()))
	assert.NoFileExists(t, a.Path)
	assert.NoFileExists(t, a.Path+".part")
	assert.Empty(t, s.Snapshot(KindSegment))
}

func TestEvictOlderThan(t *testing.T) {
	now := time.Now()
	s := newTestStore(t, WithClock(func() time.Time { return now }))

	oldArt := s.Allocate(KindSegment)
	writeStaged(t, s, oldArt.ID, []byte("old"))
	_, err := s.Commit(oldArt.ID)
	require.NoError(t, err)
	past := now.Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(oldArt.Path, past, past))

	fresh := s.Allocate(KindSegment)
	writeStaged(t, s, fresh.ID, []byte("new"))
	_, err = s.Commit(fresh.ID)
	require.NoError(t, err)

	pending := s.Allocate(KindSegment)
	writeStaged(t, s, pending.ID, []byte("in progress"))
	staging := pending.Path + ".part"
	require.NoError(t, os.Chtimes(staging, past, past))

	stray := filepath.Join(s.Dir(), "stray.mp3")
	require.NoError(t, os.WriteFile(stray, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(stray, past, past))

	notes := filepath.Join(s.Dir(), "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(notes, past, past))

	assert.Equal(t, 2, s.EvictOlderThan(time.Hour))

	assert.NoFileExists(t, oldArt.Path)
	assert.NoFileExists(t, stray)
	assert.FileExists(t, fresh.Path)
	assert.FileExists(t, staging)
	assert.FileExists(t, notes)

	_, ok := s.Get(oldArt.ID)
	assert.False(t, ok)

	// Idempotent.
	assert.Equal(t, 0, s.EvictOlderThan(time.Hour))

	_, err = s.Commit(pending.ID)
	require.NoError(t, err)
	assert.True(t, s.Exists(pending.ID))
}

func TestEvictOlderThan_ForgetsOldFailures(t *testing.T) {
	now := time.Now()
	s := newTestStore(t, WithClock(func() time.Time { return now }))

	a := s.Allocate(KindSegment)
	s.Fail(a.ID, errors.New("boom"))

	now = now.Add(2 * time.Hour)
	s.EvictOlderThan(time.Hour)

	_, ok := s.Get(a.ID)
	assert.False(t, ok)
}

func TestClearAll(t *testing.T) {
	s := newTestStore(t)

	var ready []Artifact
	for range 3 {
		a := s.Allocate(KindSegment)
		writeStaged(t, s, a.ID, []byte("audio"))
		_, err := s.Commit(a.ID)
		require.NoError(t, err)
		ready = append(ready, a)
	}
	pending := s.Allocate(KindSegment)
	writeStaged(t, s, pending.ID, []byte("half"))

	assert.Equal(t, 3, s.ClearAll())
	for _, a := range ready {
		assert.NoFileExists(t, a.Path)
	}
	assert.FileExists(t, pending.Path+".part")
	assert.Empty(t, s.Snapshot(KindSegment))

	// The pending writer finishing removes its file.
	_, err := s.Commit(pending.ID)
	require.NoError(t, err)
	require.NoError(t, s.Close(context.Background()))
	assert.NoFileExists(t, pending.Path)

	assert.Equal(t, 0, s.ClearAll())
}

// commitDuringSweep starts a commit that stalls in validation, runs sweep
// while the staged file is still listed, then lets the commit finish.
func commitDuringSweep(t *testing.T, sweep func(*Store) int, opts ...Option) (*Store, Artifact, int) {
	t.Helper()

	entered := make(chan struct{})
	release := make(chan struct{})
	opts = append(opts, WithValidator(KindSegment, func(string, int64) error {
		close(entered)
		<-release
		return nil
	}))
	s := newTestStore(t, opts...)

	a := s.Allocate(KindSegment)
	writeStaged(t, s, a.ID, []byte("audio"))

	commitErr := make(chan error, 1)
	go func() {
		_, err := s.Commit(a.ID)
		commitErr <- err
	}()
	<-entered

	swept := make(chan int, 1)
	go func() { swept <- sweep(s) }()

	// Let the sweep list the staged file and queue up on the artifact.
	time.Sleep(50 * time.Millisecond)
	close(release)

	require.NoError(t, <-commitErr)
	return s, a, <-swept
}

func TestClearAll_RemovesFileCommittedMidSweep(t *testing.T) {
	s, a, removed := commitDuringSweep(t, (*Store).ClearAll)

	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, a.Path)
	assert.NoFileExists(t, a.Path+StagingSuffix)
	_, ok := s.Get(a.ID)
	assert.False(t, ok)
}

func TestEvictOlderThan_RemovesFileCommittedMidSweep(t *testing.T) {
	later := func() time.Time { return time.Now().Add(time.Hour) }
	s, a, removed := commitDuringSweep(t, func(s *Store) int {
		return s.EvictOlderThan(time.Minute)
	}, WithClock(later))

	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, a.Path)
	_, ok := s.Get(a.ID)
	assert.False(t, ok)
}

func TestOpen_ReindexesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Minute)

	names := []string{"b.mp3", "a.mp3", "export_x.wav"}
	for i, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte("audio"), 0o644))
		ts := base.Add(time.Duration(i) * time.Second)
		require.NoError(t, os.Chtimes(p, ts, ts))
	}
	orphan := filepath.Join(dir, "c.mp3.part")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o644))

	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close(context.Background())

	assert.NoFileExists(t, orphan)

	snap := s.Snapshot(KindSegment)
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].ID)
	assert.Equal(t, "a", snap[1].ID)
	assert.Equal(t, StateReady, snap[0].State)

	exports := s.Snapshot(KindExport)
	require.Len(t, exports, 1)
	assert.Equal(t, "export_x", exports[0].ID)

	next := s.Allocate(KindSegment)
	assert.Greater(t, next.Sequence, exports[0].Sequence)
}

func TestParseName(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		kind    Kind
		wantErr bool
	}{
		{name: "abc.mp3", id: "abc", kind: KindSegment},
		{name: "export_abc.wav", id: "export_abc", kind: KindExport},
		{name: "../etc/passwd.mp3", wantErr: true},
		{name: "abc.txt", wantErr: true},
		{name: ".mp3", wantErr: true},
		{name: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, kind, err := ParseName(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.kind, kind)
		})
	}
}
