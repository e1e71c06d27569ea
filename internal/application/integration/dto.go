package integration

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/backend/internal/domain/integration"
)

// InboundEnvelope is the body of an inbound partner webhook. It mirrors
// the outbound envelope shape so both directions share one contract.
type InboundEnvelope struct {
	EventID   string          `json:"eventId" binding:"required"`
	EventType string          `json:"eventType" binding:"required"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload" binding:"required"`
}

// DeliveryRecordResponse represents one finished webhook delivery
type DeliveryRecordResponse struct {
	ID          uuid.UUID `json:"id"`
	PartnerID   uuid.UUID `json:"partner_id"`
	EventID     uuid.UUID `json:"event_id"`
	EventType   string    `json:"event_type"`
	OrderID     uuid.UUID `json:"order_id,omitempty"`
	Outcome     string    `json:"outcome"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// ToDeliveryRecordResponse converts a delivery record to its response shape
func ToDeliveryRecordResponse(r *integration.DeliveryRecord) DeliveryRecordResponse {
	return DeliveryRecordResponse{
		ID:          r.ID,
		PartnerID:   r.PartnerID,
		EventID:     r.EventID,
		EventType:   r.EventType,
		OrderID:     r.OrderID,
		Outcome:     string(r.Outcome),
		Attempts:    r.Attempts,
		LastError:   r.LastError,
		CompletedAt: r.CompletedAt,
	}
}

// SyncStatusResponse represents a partner's sync position
type SyncStatusResponse struct {
	PartnerID  uuid.UUID  `json:"partner_id"`
	Status     string     `json:"status"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastCursor string     `json:"last_cursor,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// ToSyncStatusResponse converts a sync state to its response shape
func ToSyncStatusResponse(s *integration.SyncState) SyncStatusResponse {
	return SyncStatusResponse{
		PartnerID:  s.PartnerID,
		Status:     string(s.Status),
		LastRunAt:  s.LastRunAt,
		LastCursor: s.LastCursor,
		LastError:  s.LastError,
	}
}

// CycleResultResponse summarizes one sync cycle
type CycleResultResponse struct {
	PartnerID      uuid.UUID                   `json:"partner_id"`
	StartedAt      time.Time                   `json:"started_at"`
	FinishedAt     time.Time                   `json:"finished_at"`
	PulledRecords  int                         `json:"pulled_records"`
	PushedRecords  int                         `json:"pushed_records"`
	AppliedRecords int                         `json:"applied_records"`
	Failures       []integration.RecordFailure `json:"failures,omitempty"`
	NextCursor     string                      `json:"next_cursor,omitempty"`
}

// ToCycleResultResponse converts a cycle result to its response shape
func ToCycleResultResponse(r *integration.CycleResult) CycleResultResponse {
	return CycleResultResponse{
		PartnerID:      r.PartnerID,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		PulledRecords:  r.PulledRecords,
		PushedRecords:  r.PushedRecords,
		AppliedRecords: r.AppliedRecords,
		Failures:       r.Failures,
		NextCursor:     r.NextCursor,
	}
}
