package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carelink/backend/internal/domain/order"
	"github.com/carelink/backend/internal/domain/partner"
	"github.com/carelink/backend/internal/domain/shared"
	"github.com/carelink/backend/internal/infrastructure/webhook"
)

// WebhookDispatchHandler fans order lifecycle events out to every active
// partner whose webhook config subscribes to the event type. Delivery itself
// is asynchronous; a full queue or duplicate delivery never fails the
// originating operation.
type WebhookDispatchHandler struct {
	partners   partner.Reader
	dispatcher *webhook.Dispatcher
	logger     *zap.Logger
}

// NewWebhookDispatchHandler creates a new WebhookDispatchHandler
func NewWebhookDispatchHandler(partners partner.Reader, dispatcher *webhook.Dispatcher, logger *zap.Logger) *WebhookDispatchHandler {
	return &WebhookDispatchHandler{
		partners:   partners,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// EventTypes returns the event types this handler subscribes to
func (h *WebhookDispatchHandler) EventTypes() []string {
	return []string{order.EventTypeOrderCreated, order.EventTypeOrderStatusChanged}
}

// Handle enqueues one delivery per subscribed partner
func (h *WebhookDispatchHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	subscribers, err := h.partners.FindWithWebhooks(ctx)
	if err != nil {
		return fmt.Errorf("resolve webhook subscribers: %w", err)
	}

	orderID := eventOrderID(event)
	for i := range subscribers {
		p := &subscribers[i]
		if p.WebhookConfig == nil || !p.WebhookConfig.SubscribesTo(event.EventType()) {
			continue
		}

		delivery := webhook.NewDelivery(p.ID, orderID, event.EventID(), event.EventType(), payload, *p.WebhookConfig)
		switch err := h.dispatcher.Enqueue(delivery); {
		case err == nil:
		case errors.Is(err, webhook.ErrDuplicateDelivery):
			h.logger.Debug("delivery already in flight, skipping",
				zap.String("partner_id", p.ID.String()),
				zap.String("event_id", event.EventID().String()),
			)
		default:
			h.logger.Error("failed to enqueue webhook delivery",
				zap.String("partner_id", p.ID.String()),
				zap.String("event_type", event.EventType()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// eventOrderID extracts the order ID carried by a lifecycle event
func eventOrderID(event shared.DomainEvent) uuid.UUID {
	switch e := event.(type) {
	case *order.OrderCreatedEvent:
		return e.OrderID
	case *order.OrderStatusChangedEvent:
		return e.OrderID
	default:
		return event.AggregateID()
	}
}
