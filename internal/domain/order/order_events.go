package order

import (
	"github.com/carelink/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeOrder = "Order"

// Event type constants
const (
	EventTypeOrderCreated       = "OrderCreated"
	EventTypeOrderStatusChanged = "OrderStatusChanged"
)

// ItemInfo represents line item information for events
type ItemInfo struct {
	ItemID     uuid.UUID       `json:"item_id"`
	ServiceID  uuid.UUID       `json:"service_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// OrderCreatedEvent is raised when a new order is created
type OrderCreatedEvent struct {
	shared.BaseDomainEvent
	OrderID   uuid.UUID       `json:"order_id"`
	PartnerID uuid.UUID       `json:"partner_id"`
	PatientID uuid.UUID       `json:"patient_id"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
	Priority  Priority        `json:"priority"`
	Items     []ItemInfo      `json:"items"`
}

// NewOrderCreatedEvent creates a new OrderCreatedEvent
func NewOrderCreatedEvent(o *Order) *OrderCreatedEvent {
	items := make([]ItemInfo, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, ItemInfo{
			ItemID:     item.ID,
			ServiceID:  item.ServiceID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.TotalPrice,
		})
	}
	return &OrderCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderCreated, AggregateTypeOrder, o.ID),
		OrderID:         o.ID,
		PartnerID:       o.PartnerID,
		PatientID:       o.PatientID,
		Total:           o.Total,
		Currency:        o.Currency,
		Priority:        o.Priority,
		Items:           items,
	}
}

// EventType returns the event type name
func (e *OrderCreatedEvent) EventType() string {
	return EventTypeOrderCreated
}

// OrderStatusChangedEvent is raised on every status transition. Delivery to
// partners is asynchronous; a delivery failure never reverts the transition.
type OrderStatusChangedEvent struct {
	shared.BaseDomainEvent
	OrderID        uuid.UUID       `json:"order_id"`
	PartnerID      uuid.UUID       `json:"partner_id"`
	PreviousStatus Status          `json:"previous_status"`
	NewStatus      Status          `json:"new_status"`
	Reason         string          `json:"reason,omitempty"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
}

// NewOrderStatusChangedEvent creates a new OrderStatusChangedEvent
func NewOrderStatusChangedEvent(o *Order, previous Status, reason string) *OrderStatusChangedEvent {
	return &OrderStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderStatusChanged, AggregateTypeOrder, o.ID),
		OrderID:         o.ID,
		PartnerID:       o.PartnerID,
		PreviousStatus:  previous,
		NewStatus:       o.Status,
		Reason:          reason,
		Total:           o.Total,
		Currency:        o.Currency,
	}
}

// EventType returns the event type name
func (e *OrderStatusChangedEvent) EventType() string {
	return EventTypeOrderStatusChanged
}
