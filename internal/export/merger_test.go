package export

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ekisa-team/lector/internal/audio"
	"github.com/ekisa-team/lector/internal/audio/audiotest"
	"github.com/ekisa-team/lector/internal/cache"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frames = 8

func newStore(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// stage writes a silent MP3 with n frames to a's staging path.
func stage(t *testing.T, s *cache.Store, a cache.Artifact, n int) {
	t.Helper()
	p, err := s.StagingPath(a.ID)
	require.NoError(t, err)
	require.NoError(t, audiotest.WriteSilentMP3(p, n, 44100))
}

func readySegment(t *testing.T, s *cache.Store, n int) cache.Artifact {
	t.Helper()
	a := s.Allocate(cache.KindSegment)
	stage(t, s, a, n)
	committed, err := s.Commit(a.ID)
	require.NoError(t, err)
	return committed
}

func wavFrames(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	require.NoError(t, err)
	return len(buf.Data) / int(d.NumChans)
}

func TestExportAll_NoSegments(t *testing.T) {
	m := New(newStore(t), time.Second)

	_, err := m.ExportAll(context.Background())
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestExportAll_MergesInDocumentOrder(t *testing.T) {
	s := newStore(t)

	// Allocate in document order, commit in reverse. Each position has a
	// distinct length.
	arts := []cache.Artifact{
		s.Allocate(cache.KindSegment),
		s.Allocate(cache.KindSegment),
		s.Allocate(cache.KindSegment),
	}
	for i := len(arts) - 1; i >= 0; i-- {
		stage(t, s, arts[i], frames*(i+1))
		_, err := s.Commit(arts[i].ID)
		require.NoError(t, err)
	}

	// Samples each input contributes, in the order the encoder reads them.
	var lengths []int64
	record := func(dst string, paths ...string) (audio.Info, error) {
		for _, p := range paths {
			info, err := audio.Validate(p, 0)
			if err != nil {
				return audio.Info{}, err
			}
			lengths = append(lengths, info.Frames)
		}
		return audio.Concat(dst, paths...)
	}

	res, err := New(s, time.Second, WithConcat(record)).ExportAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{arts[0].ID, arts[1].ID, arts[2].ID}, res.Included)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, cache.KindExport, res.Artifact.Kind)
	assert.True(t, s.Exists(res.Artifact.ID))

	// Segment i is the (i+1)-th shortest, so the encoder saw them in
	// document order and the export ends where the last one does.
	require.Len(t, lengths, 3)
	assert.Less(t, lengths[0], lengths[1])
	assert.Less(t, lengths[1], lengths[2])
	assert.Equal(t, int(lengths[0]+lengths[1]+lengths[2]), wavFrames(t, res.Artifact.Path))
}

func TestExportAll_ExcludesPreviousExports(t *testing.T) {
	s := newStore(t)
	seg := readySegment(t, s, frames)

	first, err := New(s, time.Second).ExportAll(context.Background())
	require.NoError(t, err)

	second, err := New(s, time.Second).ExportAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{seg.ID}, second.Included)
	assert.NotEqual(t, first.Artifact.ID, second.Artifact.ID)
}

func TestExportAll_WaitsForPending(t *testing.T) {
	s := newStore(t)
	ready := readySegment(t, s, frames)
	pending := s.Allocate(cache.KindSegment)

	go func() {
		time.Sleep(30 * time.Millisecond)
		if p, err := s.StagingPath(pending.ID); err == nil {
			_ = audiotest.WriteSilentMP3(p, frames, 44100)
		}
		_, _ = s.Commit(pending.ID)
	}()

	res, err := New(s, 5*time.Second).ExportAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{ready.ID, pending.ID}, res.Included)
	assert.Empty(t, res.Skipped)
}

func TestExportAll_SkipsPendingPastDeadline(t *testing.T) {
	s := newStore(t)
	first := readySegment(t, s, frames)
	stuck := s.Allocate(cache.KindSegment)
	last := readySegment(t, s, frames)

	start := time.Now()
	res, err := New(s, 40*time.Millisecond).ExportAll(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []string{first.ID, last.ID}, res.Included)
	assert.Equal(t, []string{stuck.ID}, res.Skipped)
}

func TestExportAll_SkipsFailedWhileWaiting(t *testing.T) {
	s := newStore(t)
	ready := readySegment(t, s, frames)
	doomed := s.Allocate(cache.KindSegment)

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Fail(doomed.ID, errors.New("provider down"))
	}()

	res, err := New(s, 5*time.Second).ExportAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{ready.ID}, res.Included)
	assert.Equal(t, []string{doomed.ID}, res.Skipped)
}

func TestExportAll_OnlyPendingPastDeadline(t *testing.T) {
	s := newStore(t)
	stuck := s.Allocate(cache.KindSegment)

	res, err := New(s, 20*time.Millisecond).ExportAll(context.Background())
	assert.ErrorIs(t, err, ErrNoContent)
	assert.Equal(t, []string{stuck.ID}, res.Skipped)
	assert.Empty(t, s.Snapshot(cache.KindExport))
}

func TestExportAll_ContextCancelled(t *testing.T) {
	s := newStore(t)
	s.Allocate(cache.KindSegment)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(s, time.Minute).ExportAll(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSetWaitTimeout(t *testing.T) {
	m := New(newStore(t), 0)
	assert.Equal(t, DefaultWaitTimeout, m.WaitTimeout())

	m.SetWaitTimeout(5 * time.Second)
	assert.Equal(t, 5*time.Second, m.WaitTimeout())
}
