package application

import (
	"context"
	"fmt"

	"github.com/radiocast/backend/internal/domain"
	"github.com/radiocast/backend/internal/pkg/logger"
	"github.com/rs/zerolog"
)

// InsertRecordInput is a request to relay, and optionally record, a source URL
type InsertRecordInput struct {
	InputURL      string `json:"input_url"`
	RecordToMP3   bool   `json:"record_to_mp3"`
	RecordTimeSec int    `json:"record_time_sec"`
}

// RecordService validates record requests and maps orchestrator outcomes to errors
type RecordService struct {
	manager domain.RecordManager
	log     zerolog.Logger
}

// NewRecordService creates a new record service
func NewRecordService(manager domain.RecordManager) *RecordService {
	return &RecordService{
		manager: manager,
		log:     logger.WithComponent("records"),
	}
}

// Insert starts the relay for a URL and the recorder when requested.
// A repeated request for an already served URL succeeds with InsertAlreadyExists.
func (s *RecordService) Insert(ctx context.Context, in InsertRecordInput) (domain.RecordInfo, error) {
	if in.InputURL == "" {
		return domain.RecordInfo{}, fmt.Errorf("%w: input_url is required", ErrInvalidRecord)
	}
	if in.RecordToMP3 && in.RecordTimeSec <= 0 {
		return domain.RecordInfo{}, fmt.Errorf("%w: record_time_sec must be positive when recording", ErrInvalidRecord)
	}

	info, err := s.manager.InsertRecord(ctx, in.InputURL, in.RecordToMP3, in.RecordTimeSec)
	if info.Status == domain.InsertFailed || info.StreamURL == "" {
		if err == nil {
			err = fmt.Errorf("insert returned status %q", info.Status)
		}
		s.log.Warn().Err(err).Str("source_url", in.InputURL).Msg("Insert record failed")
		return info, fmt.Errorf("%w: %w", ErrTranscodeFailed, err)
	}
	return info, nil
}

// Terminate cancels every worker of a URL
func (s *RecordService) Terminate(sourceURL string) error {
	switch status := s.manager.TerminateRecord(sourceURL); status {
	case domain.TerminateOk:
		return nil
	case domain.TerminateInvalidParam:
		return fmt.Errorf("%w: url is required", ErrInvalidRecord)
	case domain.TerminateURLNotExist:
		return ErrRecordNotFound
	default:
		return fmt.Errorf("%w: status %q", ErrTerminateFailed, status)
	}
}

// List returns the live jobs
func (s *RecordService) List() []domain.ActiveRecord {
	return s.manager.ListActiveRecords()
}

// Logs returns the buffered output of one worker
func (s *RecordService) Logs(sourceURL string, role domain.WorkerRole) ([]string, error) {
	if sourceURL == "" || !role.Valid() {
		return nil, fmt.Errorf("%w: url and a valid role are required", ErrInvalidRecord)
	}
	lines, err := s.manager.WorkerOutput(sourceURL, role)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRecordNotFound, err)
	}
	return lines, nil
}
