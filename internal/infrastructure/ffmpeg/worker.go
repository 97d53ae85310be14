package ffmpeg

import (
	"sync/atomic"
	"time"

	"github.com/radiocast/backend/internal/domain"
)

const (
	slotRelay = iota
	slotRecorder
)

func slotOf(role domain.WorkerRole) int {
	if role == domain.WorkerRoleRecorder {
		return slotRecorder
	}
	return slotRelay
}

// worker is the supervision handle of one ffmpeg process. External callers
// only ever set cancel; remaining and retries belong to the supervisor and are
// read or written under Manager.mu.
type worker struct {
	id            string
	role          domain.WorkerRole
	proc          Process
	remaining     int
	retries       int
	cleanupTarget string
	startedAt     time.Time
	ticker        Ticker
	cancel        atomic.Bool
}

func (w *worker) timed() bool {
	return w.remaining != domain.Perpetual
}

// job tracks one source URL. Slot 0 holds the relay, slot 1 the recorder.
type job struct {
	sourceURL string
	shortID   string
	workDir   string
	streamURL string
	recordURL string
	workers   [2]*worker
	// settling is non-nil while spawns for this job run outside the lock;
	// it is closed once their results are committed.
	settling   chan struct{}
	terminated bool
}

func (j *job) empty() bool {
	return j.workers[slotRelay] == nil && j.workers[slotRecorder] == nil
}

func (j *job) info(status domain.InsertStatus) domain.RecordInfo {
	return domain.RecordInfo{
		SourceURL: j.sourceURL,
		StreamURL: j.streamURL,
		RecordURL: j.recordURL,
		Status:    status,
	}
}
