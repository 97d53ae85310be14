package ffmpeg

import (
	"errors"

	"github.com/radiocast/backend/internal/domain"
	"github.com/rs/zerolog"
)

type workerState int

const (
	stateRunning workerState = iota
	stateCancelled
	stateTimedOut
	stateExited
)

func (s workerState) String() string {
	switch s {
	case stateCancelled:
		return "cancelled"
	case stateTimedOut:
		return "timed_out"
	case stateExited:
		return "exited"
	default:
		return "running"
	}
}

// supervise polls one worker once per tick until it is cancelled, times out
// or exits, then tears it down. A cancellation is observed at most one tick
// plus the kill wait after it was requested.
func (m *Manager) supervise(j *job, w *worker) {
	defer m.wg.Done()
	defer w.ticker.Stop()

	log := m.log.With().
		Str("source_url", j.sourceURL).
		Str("role", string(w.role)).
		Str("worker_id", w.id).
		Int("pid", w.proc.Pid()).
		Logger()

	for {
		state := stateRunning
		select {
		case <-w.ticker.C():
			state = m.poll(w)
		case <-m.done:
			state = stateCancelled
		}
		if state == stateRunning {
			continue
		}

		m.finish(j, w, state, log)
		return
	}
}

// poll runs one tick of the worker state machine. Exited never blocks, so
// the whole step stays inside the registry lock and readers see one tick's
// result at a time.
func (m *Manager) poll(w *worker) workerState {
	if w.cancel.Load() {
		return stateCancelled
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if w.timed() {
		w.remaining--
		if w.remaining <= 0 {
			w.remaining = 0
			return stateTimedOut
		}
	}
	if w.proc.Exited() {
		return stateExited
	}
	return stateRunning
}

// finish kills the process, clears transient files, detaches the worker and
// queues a restart when an unexpected exit still has budget left.
func (m *Manager) finish(j *job, w *worker, state workerState, log zerolog.Logger) {
	if state == stateExited {
		err := w.proc.ExitErr()
		if err == nil {
			err = ErrUnexpectedExit
		} else {
			err = errors.Join(ErrUnexpectedExit, err)
		}
		log.Warn().
			Err(err).
			Strs("output", tail(w.proc.Output(), 20)).
			Msg("Worker exited on its own")
	}

	if err := w.proc.Kill(m.cfg.KillWait); err != nil {
		killFailures.Inc()
		log.Warn().Err(err).Dur("kill_wait", m.cfg.KillWait).Msg("Worker did not exit after kill")
	}

	if w.cleanupTarget != "" {
		removed, err := CleanTransientFiles(w.cleanupTarget)
		if err != nil {
			log.Warn().Err(err).Str("work_dir", w.cleanupTarget).Msg("Cleanup incomplete")
		} else {
			log.Debug().Int("removed", removed).Str("work_dir", w.cleanupTarget).Msg("Cleaned transient files")
		}
	}

	m.mu.Lock()
	slot := slotOf(w.role)
	if j.workers[slot] == w {
		j.workers[slot] = nil
	}
	if w.role == domain.WorkerRoleRecorder {
		j.recordURL = ""
	}

	retry := state == stateExited &&
		w.retries > 0 &&
		(!w.timed() || w.remaining > 0) &&
		!w.cancel.Load() &&
		!j.terminated &&
		!m.closed
	if retry {
		m.markPendingLocked(j.sourceURL, w.role)
		m.wg.Add(1)
	}

	if j.empty() && j.settling == nil {
		m.removeJobLocked(j)
	}
	m.mu.Unlock()

	workerExits.WithLabelValues(string(w.role), state.String()).Inc()

	if retry {
		restartsScheduled.WithLabelValues(string(w.role)).Inc()
		log.Info().
			Int("retries", w.retries-1).
			Int("remaining", w.remaining).
			Dur("backoff", m.cfg.RestartBackoff).
			Msg("Scheduling worker restart")
		go m.restartLater(j.sourceURL, w.role, w.remaining, w.retries-1)
		return
	}

	log.Info().Str("reason", state.String()).Msg("Worker removed")
}

func tail(lines []string, n int) []string {
	if len(lines) > n {
		return lines[len(lines)-n:]
	}
	return lines
}
