package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/radiocast/backend/internal/domain"
	"github.com/radiocast/backend/internal/pkg/logger"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidParam   = errors.New("invalid parameter")
	ErrURLNotExist    = errors.New("source url is not tracked")
	ErrWorkerNotFound = errors.New("worker not found")
	ErrInternal       = errors.New("internal error")
	ErrSpawnFailure   = errors.New("failed to spawn worker")
	ErrUnexpectedExit = errors.New("worker exited unexpectedly")
	ErrIDCollision    = errors.New("short id already owned by another source url")
	ErrClosed         = errors.New("manager is shut down")
)

// Config holds FFmpeg and supervision configuration
type Config struct {
	BinaryPath     string
	SegmentTime    int
	PlaylistSize   int
	OutputLines    int
	HLSRoot        string
	PublicBaseURL  string
	TickInterval   time.Duration
	KillWait       time.Duration
	MaxRetries     int
	RestartBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.BinaryPath == "" {
		c.BinaryPath = "ffmpeg"
	}
	if c.OutputLines <= 0 {
		c.OutputLines = 200
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.KillWait <= 0 {
		c.KillWait = 500 * time.Millisecond
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
}

// Option customizes a Manager
type Option func(*Manager)

// WithSpawner replaces the os/exec spawner
func WithSpawner(s Spawner) Option {
	return func(m *Manager) { m.spawner = s }
}

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// Manager is the job registry. One mutex guards the job map, the pending
// restart set and every job's worker slots; spawn and kill calls run outside
// it and their results are committed under it.
type Manager struct {
	cfg     Config
	layout  Layout
	spawner Spawner
	clock   Clock
	log     zerolog.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	owners  map[string]string
	pending map[string]map[domain.WorkerRole]struct{}
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewManager creates a new job registry
func NewManager(cfg Config, opts ...Option) *Manager {
	cfg.applyDefaults()
	m := &Manager{
		cfg:     cfg,
		layout:  Layout{Root: cfg.HLSRoot, PublicBaseURL: cfg.PublicBaseURL},
		spawner: ExecSpawner{},
		clock:   RealClock{},
		log:     logger.WithComponent("transcode"),
		jobs:    make(map[string]*job),
		owners:  make(map[string]string),
		pending: make(map[string]map[domain.WorkerRole]struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Layout returns the naming scheme used for outputs
func (m *Manager) Layout() Layout {
	return m.layout
}

type insertRequest struct {
	sourceURL       string
	relay           bool
	relayRetries    int
	recording       bool
	recordRemaining int
	recordRetries   int
}

// InsertRecord ensures a relay, and a recorder when wantsRecording is set, run
// for sourceURL. A timeoutSeconds of zero or less leaves the recorder running
// until it is terminated.
func (m *Manager) InsertRecord(ctx context.Context, sourceURL string, wantsRecording bool, timeoutSeconds int) (domain.RecordInfo, error) {
	if sourceURL == "" {
		return domain.RecordInfo{Status: domain.InsertFailed}, ErrInvalidParam
	}

	remaining := timeoutSeconds
	if remaining <= 0 {
		remaining = domain.Perpetual
	}

	return m.insert(ctx, insertRequest{
		sourceURL:       sourceURL,
		relay:           true,
		relayRetries:    m.cfg.MaxRetries,
		recording:       wantsRecording,
		recordRemaining: remaining,
		recordRetries:   m.cfg.MaxRetries,
	})
}

func (m *Manager) insert(ctx context.Context, req insertRequest) (domain.RecordInfo, error) {
	failed := domain.RecordInfo{SourceURL: req.sourceURL, Status: domain.InsertFailed}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return failed, ErrClosed
		}

		j, exists := m.jobs[req.sourceURL]
		if exists && j.settling != nil {
			settling := j.settling
			m.mu.Unlock()
			select {
			case <-settling:
				continue
			case <-ctx.Done():
				return failed, ctx.Err()
			}
		}

		if !exists {
			id := ShortID(req.sourceURL)
			if owner, taken := m.owners[id]; taken && owner != req.sourceURL {
				m.mu.Unlock()
				m.log.Error().
					Str("source_url", req.sourceURL).
					Str("owner_url", owner).
					Str("short_id", id).
					Msg("Short id collision, refusing job")
				return failed, ErrIDCollision
			}

			j = &job{
				sourceURL: req.sourceURL,
				shortID:   id,
				workDir:   m.layout.WorkDir(req.sourceURL),
				streamURL: m.layout.StreamURL(req.sourceURL),
				settling:  make(chan struct{}),
			}
			m.jobs[req.sourceURL] = j
			m.owners[id] = req.sourceURL
			m.wg.Add(1)
			m.mu.Unlock()

			defer m.wg.Done()
			return m.create(ctx, j, req)
		}

		needRelay := req.relay && j.workers[slotRelay] == nil
		needRecorder := req.recording && j.workers[slotRecorder] == nil
		if !needRelay && !needRecorder {
			info := j.info(domain.InsertAlreadyExists)
			m.mu.Unlock()
			return info, nil
		}

		j.settling = make(chan struct{})
		m.wg.Add(1)
		m.mu.Unlock()

		defer m.wg.Done()
		return m.attach(ctx, j, req, needRelay, needRecorder)
	}
}

// create spawns the workers of a freshly registered job
func (m *Manager) create(ctx context.Context, j *job, req insertRequest) (domain.RecordInfo, error) {
	failed := domain.RecordInfo{SourceURL: j.sourceURL, Status: domain.InsertFailed}

	if err := os.MkdirAll(j.workDir, 0o755); err != nil {
		m.log.Error().
			Err(err).
			Str("source_url", j.sourceURL).
			Str("work_dir", j.workDir).
			Msg("Failed to create job directory")
		m.abandon(j)
		return failed, fmt.Errorf("%w: create work dir: %w", ErrInternal, err)
	}

	relay, err := m.spawnWorker(ctx, j, domain.WorkerRoleRelay, domain.Perpetual, req.relayRetries)
	if err != nil {
		m.abandon(j)
		return failed, fmt.Errorf("%w: %w", ErrSpawnFailure, err)
	}

	spawned := []*worker{relay}
	if req.recording {
		recorder, err := m.spawnWorker(ctx, j, domain.WorkerRoleRecorder, req.recordRemaining, req.recordRetries)
		if err == nil {
			spawned = append(spawned, recorder)
		}
	}

	info := m.commit(j, spawned, domain.InsertCreated)
	m.log.Info().
		Str("source_url", j.sourceURL).
		Str("stream_url", info.StreamURL).
		Str("record_url", info.RecordURL).
		Str("work_dir", j.workDir).
		Msg("Created transcode job")
	return info, nil
}

// attach adds missing capabilities to a live job
func (m *Manager) attach(ctx context.Context, j *job, req insertRequest, needRelay, needRecorder bool) (domain.RecordInfo, error) {
	if err := os.MkdirAll(j.workDir, 0o755); err != nil {
		m.log.Warn().Err(err).Str("work_dir", j.workDir).Msg("Failed to ensure job directory")
	}

	var spawned []*worker
	var relayErr error
	if needRelay {
		relay, err := m.spawnWorker(ctx, j, domain.WorkerRoleRelay, domain.Perpetual, req.relayRetries)
		if err != nil {
			relayErr = err
		} else {
			spawned = append(spawned, relay)
		}
	}
	if needRecorder && relayErr == nil {
		recorder, err := m.spawnWorker(ctx, j, domain.WorkerRoleRecorder, req.recordRemaining, req.recordRetries)
		if err == nil {
			spawned = append(spawned, recorder)
		}
	}

	info := m.commit(j, spawned, domain.InsertAlreadyExists)
	if relayErr != nil {
		info.Status = domain.InsertFailed
		return info, fmt.Errorf("%w: %w", ErrSpawnFailure, relayErr)
	}
	return info, nil
}

// commit publishes spawned workers on j, ends its settling phase and starts
// a supervisor per worker.
func (m *Manager) commit(j *job, spawned []*worker, status domain.InsertStatus) domain.RecordInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range spawned {
		j.workers[slotOf(w.role)] = w
		if j.terminated || m.closed {
			w.cancel.Store(true)
		}
		w.ticker = m.clock.NewTicker(m.cfg.TickInterval)
		m.wg.Add(1)
		go m.supervise(j, w)
	}
	if j.workers[slotRecorder] != nil {
		j.recordURL = m.layout.RecordURL(j.sourceURL)
	}

	close(j.settling)
	j.settling = nil

	info := j.info(status)
	if j.empty() {
		m.removeJobLocked(j)
	}
	activeJobs.Set(float64(len(m.jobs)))
	return info
}

// abandon drops a job whose creation failed before any worker started
func (m *Manager) abandon(j *job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	close(j.settling)
	j.settling = nil
	if j.empty() {
		m.removeJobLocked(j)
	}
}

func (m *Manager) removeJobLocked(j *job) {
	if m.jobs[j.sourceURL] != j {
		return
	}
	delete(m.jobs, j.sourceURL)
	if m.owners[j.shortID] == j.sourceURL {
		delete(m.owners, j.shortID)
	}
	activeJobs.Set(float64(len(m.jobs)))
}

func (m *Manager) spawnWorker(ctx context.Context, j *job, role domain.WorkerRole, remaining, retries int) (*worker, error) {
	proc, err := m.spawner.Spawn(ctx, SpawnSpec{
		Role:        role,
		SourceURL:   j.sourceURL,
		Binary:      m.cfg.BinaryPath,
		Args:        m.buildArgs(role, j.sourceURL),
		Dir:         j.workDir,
		OutputLines: m.cfg.OutputLines,
	})
	if err != nil {
		spawnFailures.WithLabelValues(string(role)).Inc()
		m.log.Error().
			Err(err).
			Str("source_url", j.sourceURL).
			Str("role", string(role)).
			Msg("Failed to spawn worker")
		return nil, err
	}

	w := &worker{
		id:        uuid.NewString(),
		role:      role,
		proc:      proc,
		remaining: remaining,
		retries:   retries,
		startedAt: m.clock.Now(),
	}
	if role == domain.WorkerRoleRelay {
		w.cleanupTarget = j.workDir
	}

	workersSpawned.WithLabelValues(string(role)).Inc()
	m.log.Info().
		Str("source_url", j.sourceURL).
		Str("role", string(role)).
		Str("worker_id", w.id).
		Int("pid", proc.Pid()).
		Int("remaining", remaining).
		Int("retries", retries).
		Msg("Started worker")
	return w, nil
}

// TerminateRecord flags every worker of sourceURL for cancellation and drops
// any queued restart. Teardown happens on the supervisors' next tick.
func (m *Manager) TerminateRecord(sourceURL string) domain.TerminateStatus {
	if sourceURL == "" {
		return domain.TerminateInvalidParam
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	hadPending := m.clearPendingLocked(sourceURL)

	j, ok := m.jobs[sourceURL]
	if !ok {
		if hadPending {
			m.log.Info().Str("source_url", sourceURL).Msg("Cancelled pending restart")
			return domain.TerminateOk
		}
		return domain.TerminateURLNotExist
	}

	j.terminated = true
	delivered := 0
	for _, w := range j.workers {
		if w == nil {
			continue
		}
		w.cancel.Store(true)
		delivered++
	}

	if delivered == 0 && j.settling == nil {
		m.log.Error().
			Str("source_url", sourceURL).
			Msg("Job has no worker to cancel, dropping it")
		m.removeJobLocked(j)
		return domain.TerminateInternalError
	}

	m.log.Info().
		Str("source_url", sourceURL).
		Int("workers", delivered).
		Msg("Termination requested")
	return domain.TerminateOk
}

// ListActiveRecords returns every job with at least one live worker
func (m *Manager) ListActiveRecords() []domain.ActiveRecord {
	now := m.clock.Now()

	m.mu.Lock()
	records := make([]domain.ActiveRecord, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.empty() {
			continue
		}
		rec := domain.ActiveRecord{
			SourceURL: j.sourceURL,
			StreamURL: j.streamURL,
			RecordURL: j.recordURL,
		}
		for _, w := range j.workers {
			if w == nil {
				continue
			}
			rec.Workers = append(rec.Workers, domain.WorkerInfo{
				ID:        w.id,
				Role:      w.role,
				PID:       w.proc.Pid(),
				Remaining: w.remaining,
				Retries:   w.retries,
				StartedAt: w.startedAt,
				Uptime:    int64(now.Sub(w.startedAt).Seconds()),
				Cancelled: w.cancel.Load(),
			})
		}
		records = append(records, rec)
	}
	m.mu.Unlock()

	for i := range records {
		for k := range records[i].Workers {
			records[i].Workers[k].Memory = residentMemory(records[i].Workers[k].PID)
		}
	}

	sort.Slice(records, func(a, b int) bool {
		return records[a].SourceURL < records[b].SourceURL
	})
	return records
}

// WorkerOutput returns the captured output of a live worker
func (m *Manager) WorkerOutput(sourceURL string, role domain.WorkerRole) ([]string, error) {
	m.mu.Lock()
	j, ok := m.jobs[sourceURL]
	if !ok {
		m.mu.Unlock()
		return nil, ErrURLNotExist
	}
	w := j.workers[slotOf(role)]
	m.mu.Unlock()

	if w == nil || w.role != role {
		return nil, ErrWorkerNotFound
	}
	return w.proc.Output(), nil
}

// Shutdown cancels every worker and pending restart, then waits for the
// supervisors to finish their teardown.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.done)
		for _, j := range m.jobs {
			j.terminated = true
			for _, w := range j.workers {
				if w != nil {
					w.cancel.Store(true)
				}
			}
		}
		m.pending = make(map[string]map[domain.WorkerRole]struct{})
	}
	m.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		m.log.Info().Msg("All workers stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) markPendingLocked(sourceURL string, role domain.WorkerRole) {
	roles, ok := m.pending[sourceURL]
	if !ok {
		roles = make(map[domain.WorkerRole]struct{}, 2)
		m.pending[sourceURL] = roles
	}
	roles[role] = struct{}{}
}

// takePendingLocked consumes the restart mark of one role
func (m *Manager) takePendingLocked(sourceURL string, role domain.WorkerRole) bool {
	roles, ok := m.pending[sourceURL]
	if !ok {
		return false
	}
	if _, ok := roles[role]; !ok {
		return false
	}
	delete(roles, role)
	if len(roles) == 0 {
		delete(m.pending, sourceURL)
	}
	return true
}

func (m *Manager) clearPendingLocked(sourceURL string) bool {
	_, ok := m.pending[sourceURL]
	delete(m.pending, sourceURL)
	return ok
}

// PendingRestart reports whether a restart is queued for sourceURL
func (m *Manager) PendingRestart(sourceURL string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[sourceURL]
	return ok
}
