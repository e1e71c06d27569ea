package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apporder "github.com/carelink/backend/internal/application/order"
	"github.com/carelink/backend/internal/domain/integration"
	"github.com/carelink/backend/internal/domain/order"
	"github.com/carelink/backend/internal/domain/partner"
	"github.com/carelink/backend/internal/domain/shared"
	"github.com/carelink/backend/internal/infrastructure/webhook"
)

// DefaultEventTTL is how long processed inbound event IDs are remembered
const DefaultEventTTL = 24 * time.Hour

// OrderTransitioner applies a status change to an order. The order service
// satisfies this.
type OrderTransitioner interface {
	Transition(ctx context.Context, orderID uuid.UUID, target order.Status, reason string) (*apporder.OrderResponse, error)
}

// InboundResult describes what processing an inbound webhook did
type InboundResult struct {
	EventID   string    `json:"event_id"`
	Duplicate bool      `json:"duplicate"`
	OrderID   uuid.UUID `json:"order_id,omitempty"`
	Status    string    `json:"status,omitempty"`
}

// InboundWebhookService processes status updates pushed by partners. The
// signature is verified against the partner's webhook secret before the body
// is even parsed; a bad signature mutates nothing.
type InboundWebhookService struct {
	partners    partner.Reader
	transformer integration.Transformer
	orders      OrderTransitioner
	idempotency shared.IdempotencyStore
	eventTTL    time.Duration
	logger      *zap.Logger
}

// NewInboundWebhookService creates a new InboundWebhookService
func NewInboundWebhookService(
	partners partner.Reader,
	transformer integration.Transformer,
	orders OrderTransitioner,
	idempotency shared.IdempotencyStore,
	logger *zap.Logger,
) *InboundWebhookService {
	return &InboundWebhookService{
		partners:    partners,
		transformer: transformer,
		orders:      orders,
		idempotency: idempotency,
		eventTTL:    DefaultEventTTL,
		logger:      logger,
	}
}

// SetEventTTL overrides how long processed event IDs are remembered
func (s *InboundWebhookService) SetEventTTL(ttl time.Duration) {
	if ttl > 0 {
		s.eventTTL = ttl
	}
}

// Process verifies, deduplicates, transforms and applies one inbound event
func (s *InboundWebhookService) Process(ctx context.Context, partnerID uuid.UUID, body []byte, signature string) (*InboundResult, error) {
	p, err := s.partners.FindByID(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, shared.NewDomainError("PARTNER_INACTIVE", "Partner is deactivated")
	}
	if p.WebhookConfig == nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Partner has no webhook configuration")
	}

	if !webhook.VerifySignature(body, p.WebhookConfig.Secret, signature) {
		return nil, shared.NewDomainError("INVALID_SIGNATURE", "Webhook signature verification failed")
	}

	var envelope InboundEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Malformed webhook body: %v", err))
	}
	if envelope.EventID == "" || envelope.EventType == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Webhook envelope requires eventId and eventType")
	}

	dedupKey := p.ID.String() + ":" + envelope.EventID
	processed, err := s.idempotency.IsProcessed(ctx, dedupKey)
	if err != nil {
		return nil, fmt.Errorf("idempotency check: %w", err)
	}
	if processed {
		s.logger.Debug("duplicate inbound event acknowledged",
			zap.String("partner_id", p.ID.String()),
			zap.String("event_id", envelope.EventID),
		)
		return &InboundResult{EventID: envelope.EventID, Duplicate: true}, nil
	}

	record, err := flattenPayload(envelope.Payload)
	if err != nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Malformed webhook payload: %v", err))
	}
	if p.SyncConfig != nil && len(p.SyncConfig.Mappings) > 0 {
		record, err = s.transformer.Transform(record, p.SyncConfig.Mappings)
		if err != nil {
			return nil, shared.NewDomainError("VALIDATION_ERROR", err.Error())
		}
	}

	orderID, status, reason, err := extractOrderUpdate(record)
	if err != nil {
		return nil, err
	}

	if _, err := s.orders.Transition(ctx, orderID, status, reason); err != nil {
		return nil, err
	}

	// Marked after apply so a rejected event can be resent unchanged
	if _, err := s.idempotency.MarkProcessed(ctx, dedupKey, s.eventTTL); err != nil {
		s.logger.Warn("failed to record processed event",
			zap.String("event_id", envelope.EventID),
			zap.Error(err),
		)
	}

	s.logger.Info("inbound webhook applied",
		zap.String("partner_id", p.ID.String()),
		zap.String("event_id", envelope.EventID),
		zap.String("order_id", orderID.String()),
		zap.String("status", string(status)),
	)

	return &InboundResult{
		EventID: envelope.EventID,
		OrderID: orderID,
		Status:  string(status),
	}, nil
}

// extractOrderUpdate pulls the order reference, target status and optional
// reason out of a transformed record.
func extractOrderUpdate(record integration.Record) (uuid.UUID, order.Status, string, error) {
	rawID, ok := record["order_id"]
	if !ok || rawID == "" {
		return uuid.Nil, "", "", shared.NewDomainError("VALIDATION_ERROR", "Record is missing order_id")
	}
	orderID, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, "", "", shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Invalid order_id %q", rawID))
	}

	rawStatus, ok := record["status"]
	if !ok || rawStatus == "" {
		return uuid.Nil, "", "", shared.NewDomainError("VALIDATION_ERROR", "Record is missing status")
	}
	status := order.Status(rawStatus)
	if !status.IsValid() {
		return uuid.Nil, "", "", shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Unknown status %q", rawStatus))
	}

	return orderID, status, record["reason"], nil
}

// flattenPayload decodes a JSON object into a flat record. Nested values are
// kept as their JSON text so mappings can still address them.
func flattenPayload(payload json.RawMessage) (integration.Record, error) {
	if len(payload) == 0 {
		return integration.Record{}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}

	record := make(integration.Record, len(raw))
	for key, value := range raw {
		var str string
		if err := json.Unmarshal(value, &str); err == nil {
			record[key] = str
			continue
		}
		if string(value) == "null" {
			record[key] = ""
			continue
		}
		record[key] = string(value)
	}
	return record, nil
}
