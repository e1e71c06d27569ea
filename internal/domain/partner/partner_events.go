package partner

import (
	"github.com/carelink/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constant
const AggregateTypePartner = "Partner"

// Event type constants
const (
	EventTypePartnerRegistered        = "PartnerRegistered"
	EventTypePartnerConfigChanged     = "PartnerConfigChanged"
	EventTypePartnerDeactivated       = "PartnerDeactivated"
	EventTypePartnerServiceRegistered = "PartnerServiceRegistered"
)

// PartnerRegisteredEvent is raised when a new partner is registered
type PartnerRegisteredEvent struct {
	shared.BaseDomainEvent
	PartnerID       uuid.UUID       `json:"partner_id"`
	Name            string          `json:"name"`
	PartnerType     PartnerType     `json:"partner_type"`
	IntegrationType IntegrationType `json:"integration_type"`
}

// NewPartnerRegisteredEvent creates a new PartnerRegisteredEvent
func NewPartnerRegisteredEvent(p *Partner) *PartnerRegisteredEvent {
	return &PartnerRegisteredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePartnerRegistered, AggregateTypePartner, p.ID),
		PartnerID:       p.ID,
		Name:            p.Name,
		PartnerType:     p.Type,
		IntegrationType: p.IntegrationType,
	}
}

// PartnerConfigChangedEvent is raised when webhook or sync configuration
// changes. In-flight deliveries and running cycles keep the old config; the
// scheduler re-reads on the next tick.
type PartnerConfigChangedEvent struct {
	shared.BaseDomainEvent
	PartnerID   uuid.UUID `json:"partner_id"`
	HasWebhook  bool      `json:"has_webhook"`
	RequiresSync bool     `json:"requires_sync"`
}

// NewPartnerConfigChangedEvent creates a new PartnerConfigChangedEvent
func NewPartnerConfigChangedEvent(p *Partner) *PartnerConfigChangedEvent {
	return &PartnerConfigChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePartnerConfigChanged, AggregateTypePartner, p.ID),
		PartnerID:       p.ID,
		HasWebhook:      p.WebhookConfig != nil,
		RequiresSync:    p.RequiresSync(),
	}
}

// PartnerDeactivatedEvent is raised when a partner is deactivated
type PartnerDeactivatedEvent struct {
	shared.BaseDomainEvent
	PartnerID uuid.UUID `json:"partner_id"`
}

// NewPartnerDeactivatedEvent creates a new PartnerDeactivatedEvent
func NewPartnerDeactivatedEvent(p *Partner) *PartnerDeactivatedEvent {
	return &PartnerDeactivatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePartnerDeactivated, AggregateTypePartner, p.ID),
		PartnerID:       p.ID,
	}
}
