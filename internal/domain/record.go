package domain

import (
	"context"
	"time"
)

// Perpetual is the countdown value of a worker that runs until it is cancelled.
const Perpetual = -1

// WorkerRole identifies what a transcoding worker produces
type WorkerRole string

const (
	WorkerRoleRelay    WorkerRole = "relay"
	WorkerRoleRecorder WorkerRole = "recorder"
)

// Valid reports whether r names a known worker role
func (r WorkerRole) Valid() bool {
	return r == WorkerRoleRelay || r == WorkerRoleRecorder
}

// InsertStatus is the outcome tag of an insert request
type InsertStatus string

const (
	InsertCreated       InsertStatus = "created"
	InsertAlreadyExists InsertStatus = "already_exists"
	InsertFailed        InsertStatus = "failed"
)

// TerminateStatus is the outcome of a terminate request
type TerminateStatus string

const (
	TerminateOk            TerminateStatus = "ok"
	TerminateURLNotExist   TerminateStatus = "url_not_exist"
	TerminateInvalidParam  TerminateStatus = "invalid_param"
	TerminateInternalError TerminateStatus = "internal_error"
)

// RecordInfo describes the public outputs of a tracked source URL
type RecordInfo struct {
	SourceURL string       `json:"source_url"`
	StreamURL string       `json:"stream_url"`
	RecordURL string       `json:"record_url"`
	Status    InsertStatus `json:"status"`
}

// WorkerInfo is a point-in-time view of one supervised worker
type WorkerInfo struct {
	ID        string     `json:"id"`
	Role      WorkerRole `json:"role"`
	PID       int        `json:"pid"`
	Remaining int        `json:"remaining_seconds"`
	Retries   int        `json:"retries_remaining"`
	StartedAt time.Time  `json:"started_at"`
	Uptime    int64      `json:"uptime"`
	Memory    int64      `json:"memory_usage"`
	Cancelled bool       `json:"cancelled"`
}

// ActiveRecord is a live job as reported to callers
type ActiveRecord struct {
	SourceURL string       `json:"source_url"`
	StreamURL string       `json:"stream_url"`
	RecordURL string       `json:"record_url"`
	Workers   []WorkerInfo `json:"workers"`
}

// HasRole reports whether a worker with the given role is attached
func (r ActiveRecord) HasRole(role WorkerRole) bool {
	for _, w := range r.Workers {
		if w.Role == role {
			return true
		}
	}
	return false
}

// RecordManager owns the lifecycle of transcoding jobs
type RecordManager interface {
	InsertRecord(ctx context.Context, sourceURL string, wantsRecording bool, timeoutSeconds int) (RecordInfo, error)
	TerminateRecord(sourceURL string) TerminateStatus
	ListActiveRecords() []ActiveRecord
	WorkerOutput(sourceURL string, role WorkerRole) ([]string, error)
}
