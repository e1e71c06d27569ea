package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Delivery failure sentinels. Transient failures are retried per the
// partner's backoff policy; permanent failures stop immediately.
var (
	ErrTransientDelivery = errors.New("transient delivery failure")
	ErrPermanentDelivery = errors.New("permanent delivery failure")
	ErrDeliveryExhausted = errors.New("delivery attempts exhausted")
)

// AttemptResult classifies the outcome of one delivery attempt
type AttemptResult string

const (
	AttemptResultSuccess          AttemptResult = "success"
	AttemptResultTransientFailure AttemptResult = "transient-failure"
	AttemptResultPermanentFailure AttemptResult = "permanent-failure"
)

// DeliveryAttempt is the ephemeral record of one try at delivering an event
// to a partner endpoint. Attempts live only on the in-flight delivery and
// are discarded once the delivery reaches a terminal outcome.
type DeliveryAttempt struct {
	AttemptNumber int
	ScheduledAt   time.Time
	Result        AttemptResult
	Error         string
	NextBackoffMs int64
}

// DeliveryOutcome is the terminal state of a delivery
type DeliveryOutcome string

const (
	DeliveryOutcomeDelivered DeliveryOutcome = "delivered"
	DeliveryOutcomePermanent DeliveryOutcome = "permanent-failure"
	DeliveryOutcomeExhausted DeliveryOutcome = "exhausted"
	DeliveryOutcomeAbandoned DeliveryOutcome = "abandoned"
)

// DeliveryRecord is the persisted trace of a finished delivery. It is the
// observable history of webhook dispatch; the triggering order is never
// touched by it.
type DeliveryRecord struct {
	ID          uuid.UUID
	PartnerID   uuid.UUID
	EventID     uuid.UUID
	EventType   string
	OrderID     uuid.UUID
	Outcome     DeliveryOutcome
	Attempts    int
	LastError   string
	CompletedAt time.Time
	CreatedAt   time.Time
}

// NewDeliveryRecord creates a terminal delivery record
func NewDeliveryRecord(partnerID, eventID, orderID uuid.UUID, eventType string, outcome DeliveryOutcome, attempts int, lastError string) *DeliveryRecord {
	now := time.Now()
	return &DeliveryRecord{
		ID:          uuid.New(),
		PartnerID:   partnerID,
		EventID:     eventID,
		EventType:   eventType,
		OrderID:     orderID,
		Outcome:     outcome,
		Attempts:    attempts,
		LastError:   lastError,
		CompletedAt: now,
		CreatedAt:   now,
	}
}

// DeliveryRecordRepository persists terminal delivery outcomes
type DeliveryRecordRepository interface {
	Save(ctx context.Context, record *DeliveryRecord) error
	FindByPartner(ctx context.Context, partnerID uuid.UUID, limit int) ([]DeliveryRecord, error)
	FindByEvent(ctx context.Context, eventID uuid.UUID) (*DeliveryRecord, error)
}

// ClassifyHTTPStatus maps an HTTP response status to a delivery failure
// class. 2xx is success (nil), 429 and 5xx are transient, other 4xx are
// permanent.
func ClassifyHTTPStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 429 || status >= 500:
		return fmt.Errorf("%w: http status %d", ErrTransientDelivery, status)
	default:
		return fmt.Errorf("%w: http status %d", ErrPermanentDelivery, status)
	}
}
