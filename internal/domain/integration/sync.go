package integration

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrSyncCycle marks a whole-cycle failure (transport or format). The cursor
// is left unchanged so the next cycle retries the same window.
var ErrSyncCycle = errors.New("sync cycle failed")

// SyncJobStatus is the lifecycle state of a partner's sync job
type SyncJobStatus string

const (
	SyncJobStatusIdle    SyncJobStatus = "idle"
	SyncJobStatusRunning SyncJobStatus = "running"
	SyncJobStatusError   SyncJobStatus = "error"
)

// SyncState is the per-partner synchronization position. Exactly one sync
// job exists per partner at any time; the scheduler enforces single-writer
// access per partner.
type SyncState struct {
	ID         uuid.UUID
	PartnerID  uuid.UUID `gorm:"uniqueIndex"`
	Status     SyncJobStatus
	LastRunAt  *time.Time
	LastCursor string
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewSyncState creates an idle sync state for a partner
func NewSyncState(partnerID uuid.UUID) *SyncState {
	now := time.Now()
	return &SyncState{
		ID:        uuid.New(),
		PartnerID: partnerID,
		Status:    SyncJobStatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkRunning marks the state as running
func (s *SyncState) MarkRunning() {
	s.Status = SyncJobStatusRunning
	s.UpdatedAt = time.Now()
}

// CompleteCycle records a successful cycle. The cursor is an opaque partner
// token and is stored as-is whenever the cycle produced one; an empty cursor
// keeps the previous position. Failed cycles never touch the cursor, so the
// position only ever moves on success.
func (s *SyncState) CompleteCycle(cursor string) {
	now := time.Now()
	s.Status = SyncJobStatusIdle
	s.LastRunAt = &now
	s.LastError = ""
	if cursor != "" {
		s.LastCursor = cursor
	}
	s.UpdatedAt = now
}

// FailCycle records a failed cycle. The cursor is deliberately untouched.
func (s *SyncState) FailCycle(errMsg string) {
	now := time.Now()
	s.Status = SyncJobStatusError
	s.LastRunAt = &now
	s.LastError = errMsg
	s.UpdatedAt = now
}

// SyncStateRepository persists per-partner sync positions
type SyncStateRepository interface {
	FindByPartner(ctx context.Context, partnerID uuid.UUID) (*SyncState, error)
	Save(ctx context.Context, state *SyncState) error
}

// RecordFailure is one record that could not be mapped during a cycle.
// It is recorded and skipped; it never aborts the cycle.
type RecordFailure struct {
	RecordKey    string `json:"record_key"`
	ErrorMessage string `json:"error_message"`
}

// CycleResult summarizes one sync cycle execution
type CycleResult struct {
	PartnerID      uuid.UUID
	StartedAt      time.Time
	FinishedAt     time.Time
	PulledRecords  int
	PushedRecords  int
	AppliedRecords int
	Failures       []RecordFailure
	NextCursor     string
}
