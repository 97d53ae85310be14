package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/radiocast/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	testURL  = "http://x/stream"
	waitFor  = 2 * time.Second
	pollStep = 5 * time.Millisecond
)

func newTestManager(t *testing.T, retries int) (*Manager, *fakeSpawner, *fakeClock) {
	t.Helper()
	sp := newFakeSpawner()
	clk := newFakeClock()
	m := NewManager(Config{
		BinaryPath:     "/usr/bin/ffmpeg",
		HLSRoot:        t.TempDir(),
		PublicBaseURL:  "http://cdn.test/streams",
		MaxRetries:     retries,
		RestartBackoff: 90 * time.Second,
	}, WithSpawner(sp), WithClock(clk))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, m.Shutdown(ctx))
	})
	return m, sp, clk
}

func recordFor(m *Manager, url string) (domain.ActiveRecord, bool) {
	for _, rec := range m.ListActiveRecords() {
		if rec.SourceURL == url {
			return rec, true
		}
	}
	return domain.ActiveRecord{}, false
}

func workerFor(rec domain.ActiveRecord, role domain.WorkerRole) (domain.WorkerInfo, bool) {
	for _, w := range rec.Workers {
		if w.Role == role {
			return w, true
		}
	}
	return domain.WorkerInfo{}, false
}

// hasRoles reports whether url is listed with exactly the given roles
func hasRoles(m *Manager, url string, roles ...domain.WorkerRole) bool {
	rec, ok := recordFor(m, url)
	if !ok || len(rec.Workers) != len(roles) {
		return false
	}
	for _, role := range roles {
		if !rec.HasRole(role) {
			return false
		}
	}
	return true
}

func gone(m *Manager, url string) func() bool {
	return func() bool {
		_, ok := recordFor(m, url)
		return !ok
	}
}

func TestInsertRecord_EndToEnd(t *testing.T) {
	m, sp, clk := newTestManager(t, 0)
	ctx := context.Background()

	info, err := m.InsertRecord(ctx, testURL, true, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.InsertCreated, info.Status)
	assert.True(t, strings.HasSuffix(info.StreamURL, ".m3u8"))
	assert.True(t, strings.HasSuffix(info.RecordURL, ".mp3"))
	assert.Equal(t, "http://cdn.test/streams/58d5b23f4e6c09145767796086b32c61/audio.m3u8", info.StreamURL)
	assert.DirExists(t, m.Layout().WorkDir(testURL))

	clk.Tick(4)
	assert.True(t, hasRoles(m, testURL, domain.WorkerRoleRelay, domain.WorkerRoleRecorder))

	clk.Tick(1)
	require.Eventually(t, func() bool {
		return hasRoles(m, testURL, domain.WorkerRoleRelay)
	}, waitFor, pollStep)

	rec, _ := recordFor(m, testURL)
	assert.Empty(t, rec.RecordURL)
	assert.True(t, sp.latest(domain.WorkerRoleRecorder).killed.Load())
	assert.False(t, sp.latest(domain.WorkerRoleRelay).killed.Load())

	assert.Equal(t, domain.TerminateOk, m.TerminateRecord(testURL))
	clk.Tick(1)
	require.Eventually(t, gone(m, testURL), waitFor, pollStep)
	assert.True(t, sp.latest(domain.WorkerRoleRelay).killed.Load())
	assert.Equal(t, domain.TerminateURLNotExist, m.TerminateRecord(testURL))
}

func TestInsertRecord_Idempotent(t *testing.T) {
	m, sp, _ := newTestManager(t, 0)
	ctx := context.Background()

	first, err := m.InsertRecord(ctx, testURL, true, 60)
	require.NoError(t, err)
	second, err := m.InsertRecord(ctx, testURL, true, 60)
	require.NoError(t, err)

	assert.Equal(t, domain.InsertCreated, first.Status)
	assert.Equal(t, domain.InsertAlreadyExists, second.Status)
	assert.Equal(t, first.StreamURL, second.StreamURL)
	assert.Equal(t, first.RecordURL, second.RecordURL)
	assert.Equal(t, 1, sp.count(domain.WorkerRoleRelay))
	assert.Equal(t, 1, sp.count(domain.WorkerRoleRecorder))
}

func TestInsertRecord_ConcurrentCallersCreateOnce(t *testing.T) {
	m, sp, _ := newTestManager(t, 0)
	sp.gate = make(chan struct{})

	const callers = 16
	results := make([]domain.RecordInfo, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info, err := m.InsertRecord(context.Background(), testURL, false, 0)
			assert.NoError(t, err)
			results[i] = info
		}(i)
	}
	close(sp.gate)
	wg.Wait()

	created := 0
	for _, r := range results {
		if r.Status == domain.InsertCreated {
			created++
		}
		assert.Equal(t, results[0].StreamURL, r.StreamURL)
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, sp.count(domain.WorkerRoleRelay))
}

func TestInsertRecord_ShortIDCollision(t *testing.T) {
	m, sp, _ := newTestManager(t, 0)
	const other = "http://y/stream"

	m.mu.Lock()
	m.owners[ShortID(testURL)] = other
	m.mu.Unlock()

	info, err := m.InsertRecord(context.Background(), testURL, true, 10)
	require.ErrorIs(t, err, ErrIDCollision)
	assert.Equal(t, domain.InsertFailed, info.Status)
	assert.Zero(t, sp.count(domain.WorkerRoleRelay))
	assert.Empty(t, m.ListActiveRecords())

	m.mu.Lock()
	_, tracked := m.jobs[testURL]
	owner := m.owners[ShortID(testURL)]
	m.mu.Unlock()
	assert.False(t, tracked)
	assert.Equal(t, other, owner)
	assert.Equal(t, domain.TerminateURLNotExist, m.TerminateRecord(testURL))
}

func TestTerminateRecord_WhileSpawning(t *testing.T) {
	m, sp, clk := newTestManager(t, 3)
	sp.gate = make(chan struct{})

	type result struct {
		info domain.RecordInfo
		err  error
	}
	done := make(chan result, 1)
	go func() {
		info, err := m.InsertRecord(context.Background(), testURL, false, 0)
		done <- result{info, err}
	}()

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		j, ok := m.jobs[testURL]
		return ok && j.settling != nil
	}, waitFor, pollStep)

	assert.Equal(t, domain.TerminateOk, m.TerminateRecord(testURL))
	close(sp.gate)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, domain.InsertCreated, res.info.Status)

	rec, ok := recordFor(m, testURL)
	require.True(t, ok)
	w, _ := workerFor(rec, domain.WorkerRoleRelay)
	assert.True(t, w.Cancelled)

	clk.Tick(1)
	require.Eventually(t, gone(m, testURL), waitFor, pollStep)
	assert.True(t, sp.latest(domain.WorkerRoleRelay).killed.Load())
	assert.False(t, m.PendingRestart(testURL))
	assert.Zero(t, clk.PendingTimers())
}

func TestInsertRecord_CapabilityUpgrade(t *testing.T) {
	m, sp, _ := newTestManager(t, 0)
	ctx := context.Background()

	info, err := m.InsertRecord(ctx, testURL, false, 0)
	require.NoError(t, err)
	assert.Empty(t, info.RecordURL)
	relay := sp.latest(domain.WorkerRoleRelay)

	info, err = m.InsertRecord(ctx, testURL, true, 60)
	require.NoError(t, err)
	assert.Equal(t, domain.InsertAlreadyExists, info.Status)
	assert.Equal(t, "http://cdn.test/streams/58d5b23f4e6c09145767796086b32c61/audio.mp3", info.RecordURL)

	assert.Equal(t, 1, sp.count(domain.WorkerRoleRelay))
	assert.Equal(t, 1, sp.count(domain.WorkerRoleRecorder))
	assert.Same(t, relay, sp.latest(domain.WorkerRoleRelay))
	assert.False(t, relay.killed.Load())

	rec, ok := recordFor(m, testURL)
	require.True(t, ok)
	w, ok := workerFor(rec, domain.WorkerRoleRecorder)
	require.True(t, ok)
	assert.Equal(t, 60, w.Remaining)
}

func TestInsertRecord_RelaySpawnFailure(t *testing.T) {
	m, sp, _ := newTestManager(t, 0)
	sp.setFail(domain.WorkerRoleRelay, true)

	info, err := m.InsertRecord(context.Background(), testURL, true, 10)
	require.ErrorIs(t, err, ErrSpawnFailure)
	assert.Equal(t, domain.InsertFailed, info.Status)
	assert.Empty(t, m.ListActiveRecords())
	assert.Zero(t, sp.count(domain.WorkerRoleRecorder))
	assert.Equal(t, domain.TerminateURLNotExist, m.TerminateRecord(testURL))

	sp.setFail(domain.WorkerRoleRelay, false)
	info, err = m.InsertRecord(context.Background(), testURL, true, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.InsertCreated, info.Status)
}

func TestInsertRecord_RecorderSpawnFailure(t *testing.T) {
	m, sp, _ := newTestManager(t, 0)
	sp.setFail(domain.WorkerRoleRecorder, true)

	info, err := m.InsertRecord(context.Background(), testURL, true, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.InsertCreated, info.Status)
	assert.Empty(t, info.RecordURL)
	assert.True(t, hasRoles(m, testURL, domain.WorkerRoleRelay))
}

func TestInsertRecord_InvalidParam(t *testing.T) {
	m, sp, _ := newTestManager(t, 0)

	info, err := m.InsertRecord(context.Background(), "", true, 10)
	require.ErrorIs(t, err, ErrInvalidParam)
	assert.Equal(t, domain.InsertFailed, info.Status)
	assert.Zero(t, sp.count(domain.WorkerRoleRelay))
}

func TestInsertRecord_SpawnSpec(t *testing.T) {
	m, sp, _ := newTestManager(t, 0)

	_, err := m.InsertRecord(context.Background(), testURL, true, 10)
	require.NoError(t, err)

	relay := sp.latest(domain.WorkerRoleRelay).spec
	assert.Equal(t, "/usr/bin/ffmpeg", relay.Binary)
	assert.Equal(t, m.Layout().WorkDir(testURL), relay.Dir)
	assert.Contains(t, relay.Args, testURL)
	assert.Contains(t, relay.Args, "hls")
	assert.Equal(t, m.Layout().PlaylistPath(testURL), relay.Args[len(relay.Args)-1])

	recorder := sp.latest(domain.WorkerRoleRecorder).spec
	assert.Contains(t, recorder.Args, "libmp3lame")
	assert.Equal(t, m.Layout().RecordingPath(testURL), recorder.Args[len(recorder.Args)-1])
}

func TestSupervisor_TimeoutKeepsRelay(t *testing.T) {
	m, sp, clk := newTestManager(t, 3)

	_, err := m.InsertRecord(context.Background(), testURL, true, 3)
	require.NoError(t, err)

	clk.Tick(2)
	rec, _ := recordFor(m, testURL)
	w, ok := workerFor(rec, domain.WorkerRoleRecorder)
	require.True(t, ok)
	assert.LessOrEqual(t, w.Remaining, 2)

	clk.Tick(1)
	require.Eventually(t, func() bool {
		return hasRoles(m, testURL, domain.WorkerRoleRelay)
	}, waitFor, pollStep)

	// A timeout is not a failure, nothing is rescheduled.
	assert.False(t, m.PendingRestart(testURL))
	assert.Zero(t, clk.PendingTimers())
	assert.Equal(t, 1, sp.count(domain.WorkerRoleRecorder))
}

func TestSupervisor_RetryBound(t *testing.T) {
	const retries = 2
	m, sp, clk := newTestManager(t, retries)

	_, err := m.InsertRecord(context.Background(), testURL, false, 0)
	require.NoError(t, err)

	for i := 0; i < retries; i++ {
		sp.latest(domain.WorkerRoleRelay).Exit()
		clk.Tick(1)
		require.Eventually(t, func() bool { return clk.PendingTimers() == 1 }, waitFor, pollStep)
		assert.True(t, m.PendingRestart(testURL))

		require.Equal(t, 1, clk.FireTimers())
		require.Eventually(t, func() bool {
			return hasRoles(m, testURL, domain.WorkerRoleRelay)
		}, waitFor, pollStep)
		assert.Equal(t, i+2, sp.count(domain.WorkerRoleRelay))
	}

	rec, _ := recordFor(m, testURL)
	w, _ := workerFor(rec, domain.WorkerRoleRelay)
	assert.Zero(t, w.Retries)

	sp.latest(domain.WorkerRoleRelay).Exit()
	clk.Tick(1)
	require.Eventually(t, gone(m, testURL), waitFor, pollStep)

	assert.Zero(t, clk.PendingTimers())
	assert.False(t, m.PendingRestart(testURL))
	assert.Equal(t, retries+1, sp.count(domain.WorkerRoleRelay))
}

func TestSupervisor_RecorderRestartDroppedWhileJobLive(t *testing.T) {
	m, sp, clk := newTestManager(t, 1)

	_, err := m.InsertRecord(context.Background(), testURL, true, 10)
	require.NoError(t, err)

	sp.latest(domain.WorkerRoleRecorder).Exit()
	clk.Tick(1)
	require.Eventually(t, func() bool { return clk.PendingTimers() == 1 }, waitFor, pollStep)
	assert.True(t, hasRoles(m, testURL, domain.WorkerRoleRelay))
	assert.True(t, m.PendingRestart(testURL))

	require.Equal(t, 1, clk.FireTimers())
	require.Eventually(t, func() bool { return !m.PendingRestart(testURL) }, waitFor, pollStep)
	assert.Never(t, func() bool {
		return sp.count(domain.WorkerRoleRecorder) > 1
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.True(t, hasRoles(m, testURL, domain.WorkerRoleRelay))
	assert.Equal(t, 1, sp.count(domain.WorkerRoleRelay))
}

func TestSupervisor_RelayRestartDroppedWhileJobLive(t *testing.T) {
	m, sp, clk := newTestManager(t, 1)

	_, err := m.InsertRecord(context.Background(), testURL, true, 0)
	require.NoError(t, err)

	sp.latest(domain.WorkerRoleRelay).Exit()
	clk.Tick(1)
	require.Eventually(t, func() bool { return clk.PendingTimers() == 1 }, waitFor, pollStep)
	assert.True(t, hasRoles(m, testURL, domain.WorkerRoleRecorder))

	require.Equal(t, 1, clk.FireTimers())
	require.Eventually(t, func() bool { return !m.PendingRestart(testURL) }, waitFor, pollStep)
	assert.Never(t, func() bool {
		return sp.count(domain.WorkerRoleRelay) > 1
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.True(t, hasRoles(m, testURL, domain.WorkerRoleRecorder))
}

func TestSupervisor_RecorderRestartKeepsCountdownOnceJobGone(t *testing.T) {
	m, sp, clk := newTestManager(t, 1)

	_, err := m.InsertRecord(context.Background(), testURL, true, 10)
	require.NoError(t, err)

	clk.Tick(3)
	require.Eventually(t, func() bool {
		rec, _ := recordFor(m, testURL)
		w, ok := workerFor(rec, domain.WorkerRoleRecorder)
		return ok && w.Remaining == 7
	}, waitFor, pollStep)

	// Recorder dies first and queues the older timer.
	sp.latest(domain.WorkerRoleRecorder).Exit()
	clk.Tick(1)
	require.Eventually(t, func() bool { return clk.PendingTimers() == 1 }, waitFor, pollStep)

	sp.latest(domain.WorkerRoleRelay).Exit()
	clk.Tick(1)
	require.Eventually(t, func() bool { return clk.PendingTimers() == 2 }, waitFor, pollStep)
	require.Eventually(t, gone(m, testURL), waitFor, pollStep)

	require.True(t, clk.FireNext())
	require.Eventually(t, func() bool {
		return hasRoles(m, testURL, domain.WorkerRoleRelay, domain.WorkerRoleRecorder)
	}, waitFor, pollStep)

	rec, _ := recordFor(m, testURL)
	w, _ := workerFor(rec, domain.WorkerRoleRecorder)
	assert.Equal(t, 6, w.Remaining)
	assert.Zero(t, w.Retries)
	assert.NotEmpty(t, rec.RecordURL)

	// The relay restart now finds the job live and does nothing.
	require.True(t, clk.FireNext())
	require.Eventually(t, func() bool { return !m.PendingRestart(testURL) }, waitFor, pollStep)
	assert.Never(t, func() bool {
		return sp.count(domain.WorkerRoleRelay) > 2
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 2, sp.count(domain.WorkerRoleRecorder))
}

func TestSupervisor_RestartDroppedWhenURLInsertedDuringBackoff(t *testing.T) {
	m, sp, clk := newTestManager(t, 1)
	ctx := context.Background()

	_, err := m.InsertRecord(ctx, testURL, false, 0)
	require.NoError(t, err)

	sp.latest(domain.WorkerRoleRelay).Exit()
	clk.Tick(1)
	require.Eventually(t, func() bool { return clk.PendingTimers() == 1 }, waitFor, pollStep)
	require.Eventually(t, gone(m, testURL), waitFor, pollStep)

	info, err := m.InsertRecord(ctx, testURL, false, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.InsertCreated, info.Status)
	require.Equal(t, 2, sp.count(domain.WorkerRoleRelay))

	require.Equal(t, 1, clk.FireTimers())
	require.Eventually(t, func() bool { return !m.PendingRestart(testURL) }, waitFor, pollStep)
	assert.Never(t, func() bool {
		return sp.count(domain.WorkerRoleRelay) > 2
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.True(t, hasRoles(m, testURL, domain.WorkerRoleRelay))
}

func TestTerminateRecord_CancelsPendingRestart(t *testing.T) {
	m, sp, clk := newTestManager(t, 3)

	_, err := m.InsertRecord(context.Background(), testURL, false, 0)
	require.NoError(t, err)

	sp.latest(domain.WorkerRoleRelay).Exit()
	clk.Tick(1)
	require.Eventually(t, func() bool { return clk.PendingTimers() == 1 }, waitFor, pollStep)
	require.Eventually(t, gone(m, testURL), waitFor, pollStep)
	require.True(t, m.PendingRestart(testURL))

	assert.Equal(t, domain.TerminateOk, m.TerminateRecord(testURL))
	assert.False(t, m.PendingRestart(testURL))

	require.Equal(t, 1, clk.FireTimers())
	assert.Never(t, func() bool {
		return sp.count(domain.WorkerRoleRelay) > 1
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.Empty(t, m.ListActiveRecords())
	assert.Equal(t, domain.TerminateURLNotExist, m.TerminateRecord(testURL))
}

func TestTerminateRecord_Params(t *testing.T) {
	m, _, _ := newTestManager(t, 0)

	assert.Equal(t, domain.TerminateInvalidParam, m.TerminateRecord(""))
	assert.Equal(t, domain.TerminateURLNotExist, m.TerminateRecord("http://unknown"))
}

func TestTeardown_CleansTransientFilesOnly(t *testing.T) {
	m, _, clk := newTestManager(t, 0)

	_, err := m.InsertRecord(context.Background(), testURL, true, 0)
	require.NoError(t, err)

	dir := m.Layout().WorkDir(testURL)
	for _, name := range []string{"segment_00001.ts", "segment_00002.ts", "audio.m3u8", "audio.mp3"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("data"), 0o644))
	}

	require.Equal(t, domain.TerminateOk, m.TerminateRecord(testURL))
	clk.Tick(1)
	require.Eventually(t, gone(m, testURL), waitFor, pollStep)

	assert.NoFileExists(t, filepath.Join(dir, "segment_00001.ts"))
	assert.NoFileExists(t, filepath.Join(dir, "segment_00002.ts"))
	assert.NoFileExists(t, filepath.Join(dir, "audio.m3u8"))
	assert.FileExists(t, filepath.Join(dir, "audio.mp3"))
}

func TestTeardown_CleansAfterRetryExhausted(t *testing.T) {
	m, sp, clk := newTestManager(t, 0)

	_, err := m.InsertRecord(context.Background(), testURL, false, 0)
	require.NoError(t, err)

	dir := m.Layout().WorkDir(testURL)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "audio.m3u8"), []byte("#EXTM3U"), 0o644))

	sp.latest(domain.WorkerRoleRelay).Exit()
	clk.Tick(1)
	require.Eventually(t, gone(m, testURL), waitFor, pollStep)
	assert.NoFileExists(t, filepath.Join(dir, "audio.m3u8"))
	assert.Zero(t, clk.PendingTimers())
}

func TestWorkerOutput(t *testing.T) {
	m, _, _ := newTestManager(t, 0)

	_, err := m.InsertRecord(context.Background(), testURL, false, 0)
	require.NoError(t, err)

	lines, err := m.WorkerOutput(testURL, domain.WorkerRoleRelay)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], testURL)

	_, err = m.WorkerOutput(testURL, domain.WorkerRoleRecorder)
	assert.ErrorIs(t, err, ErrWorkerNotFound)

	_, err = m.WorkerOutput("http://unknown", domain.WorkerRoleRelay)
	assert.ErrorIs(t, err, ErrURLNotExist)
}

func TestShutdown_StopsWorkersAndRestarts(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sp := newFakeSpawner()
	clk := newFakeClock()
	m := NewManager(Config{
		HLSRoot:       t.TempDir(),
		PublicBaseURL: "http://cdn.test/streams",
		MaxRetries:    5,
	}, WithSpawner(sp), WithClock(clk))

	ctx := context.Background()
	_, err := m.InsertRecord(ctx, "http://a/stream", true, 0)
	require.NoError(t, err)
	_, err = m.InsertRecord(ctx, "http://b/stream", false, 0)
	require.NoError(t, err)

	sp.latest(domain.WorkerRoleRelay).Exit()
	clk.Tick(1)
	require.Eventually(t, func() bool { return clk.PendingTimers() == 1 }, waitFor, pollStep)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(shutdownCtx))

	assert.Empty(t, m.ListActiveRecords())
	for _, p := range sp.procs {
		assert.True(t, p.Exited())
	}

	_, err = m.InsertRecord(ctx, "http://c/stream", false, 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, m.Shutdown(shutdownCtx))
}
