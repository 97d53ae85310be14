package ffmpeg

import (
	"context"

	"github.com/radiocast/backend/internal/domain"
)

// restartLater waits out the backoff and then re-runs the insert path for a
// worker that died with retry budget left. The restart is dropped when the
// mark was cleared by TerminateRecord or when the source URL has a live job
// again by the time the backoff ends.
func (m *Manager) restartLater(sourceURL string, role domain.WorkerRole, remaining, retries int) {
	defer m.wg.Done()

	log := m.log.With().
		Str("source_url", sourceURL).
		Str("role", string(role)).
		Logger()

	timer := m.clock.NewTimer(m.cfg.RestartBackoff)
	defer timer.Stop()

	select {
	case <-timer.C():
	case <-m.done:
		return
	}

	m.mu.Lock()
	if !m.takePendingLocked(sourceURL, role) {
		m.mu.Unlock()
		log.Info().Msg("Restart cancelled while waiting")
		return
	}
	if _, ok := m.jobs[sourceURL]; ok {
		m.mu.Unlock()
		log.Info().Msg("Source url has a live job, restart abandoned")
		return
	}
	m.mu.Unlock()

	req := insertRequest{
		sourceURL:    sourceURL,
		relay:        true,
		relayRetries: m.cfg.MaxRetries,
	}
	if role == domain.WorkerRoleRelay {
		req.relayRetries = retries
	} else {
		req.recording = true
		req.recordRemaining = remaining
		req.recordRetries = retries
	}

	info, err := m.insert(context.Background(), req)
	if err != nil {
		log.Error().Err(err).Msg("Restart failed")
		return
	}
	log.Info().
		Str("status", string(info.Status)).
		Int("retries", retries).
		Msg("Worker restarted")
}
