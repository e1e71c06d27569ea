package order

import (
	"fmt"
	"time"

	"github.com/carelink/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the status of an order
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true for states with no outgoing transitions
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo checks if the status can transition to the target status
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusConfirmed || target == StatusCancelled
	case StatusConfirmed:
		return target == StatusProcessing || target == StatusCancelled
	case StatusProcessing:
		return target == StatusCompleted || target == StatusCancelled
	case StatusCompleted:
		return target == StatusRefunded
	}
	return false
}

// Priority represents order urgency
type Priority string

const (
	PriorityRoutine Priority = "routine"
	PriorityUrgent  Priority = "urgent"
	PriorityStat    Priority = "stat"
)

// IsValid checks if the priority is valid
func (p Priority) IsValid() bool {
	switch p {
	case PriorityRoutine, PriorityUrgent, PriorityStat:
		return true
	}
	return false
}

// lineItemTolerance is the maximum accepted discrepancy between a supplied
// item total and quantity*unitPrice
var lineItemTolerance = decimal.NewFromFloat(1e-6)

// Reason length bounds for cancellation and refund
const (
	minReasonLen = 1
	maxReasonLen = 500
)

// Item represents a line item in an order
type Item struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	ServiceID  uuid.UUID
	Quantity   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TotalPrice decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewItem creates a new order item. When totalPrice is non-nil it must
// match quantity*unitPrice within tolerance; when nil it is computed.
func NewItem(orderID, serviceID uuid.UUID, quantity, unitPrice decimal.Decimal, totalPrice *decimal.Decimal) (*Item, error) {
	if serviceID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_LINE_ITEM", "Service ID cannot be empty")
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_LINE_ITEM", "Quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_LINE_ITEM", "Unit price cannot be negative")
	}

	expected := quantity.Mul(unitPrice)
	if totalPrice != nil && totalPrice.Sub(expected).Abs().GreaterThan(lineItemTolerance) {
		return nil, shared.NewDomainError("INVALID_LINE_ITEM",
			fmt.Sprintf("Item total %s does not equal quantity*unit_price %s", totalPrice, expected))
	}

	now := time.Now()
	return &Item{
		ID:         uuid.New(),
		OrderID:    orderID,
		ServiceID:  serviceID,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		TotalPrice: expected,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// DeliveryInfo carries shipping/fulfillment details for an order
type DeliveryInfo struct {
	Address      string `json:"address,omitempty"`
	City         string `json:"city,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	ContactName  string `json:"contact_name,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// Order represents an order placed against a partner. It is the only
// aggregate that owns the order lifecycle; Partner and Service are read-only
// references from its perspective.
type Order struct {
	shared.BaseAggregateRoot
	PartnerID    uuid.UUID
	PatientID    uuid.UUID
	Items        []Item          `gorm:"foreignKey:OrderID"`
	Total        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency     string
	Priority     Priority
	Status       Status
	DeliveryInfo *DeliveryInfo `gorm:"serializer:json"`
	ConfirmedAt  *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
	RefundedAt   *time.Time
	StatusReason string
}

// ItemInput carries the raw line-item values supplied at creation
type ItemInput struct {
	ServiceID  uuid.UUID
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	TotalPrice *decimal.Decimal
}

// NewOrder creates a new order in pending status. Line items are validated
// before anything is persisted; a single bad item rejects the whole order.
func NewOrder(partnerID, patientID uuid.UUID, currency string, priority Priority, items []ItemInput) (*Order, error) {
	if partnerID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Partner ID cannot be empty")
	}
	if patientID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Patient ID cannot be empty")
	}
	if len(items) == 0 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Order requires at least one item")
	}
	if currency == "" {
		currency = "USD"
	}
	if priority == "" {
		priority = PriorityRoutine
	}
	if !priority.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Unknown priority %q", priority))
	}

	o := &Order{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		PartnerID:         partnerID,
		PatientID:         patientID,
		Currency:          currency,
		Priority:          priority,
		Status:            StatusPending,
		Items:             make([]Item, 0, len(items)),
	}

	total := decimal.Zero
	for _, in := range items {
		item, err := NewItem(o.ID, in.ServiceID, in.Quantity, in.UnitPrice, in.TotalPrice)
		if err != nil {
			return nil, err
		}
		o.Items = append(o.Items, *item)
		total = total.Add(item.TotalPrice)
	}
	o.Total = total

	o.AddDomainEvent(NewOrderCreatedEvent(o))

	return o, nil
}

// TransitionTo moves the order to the target status, enforcing the
// transition table. The status is left unchanged on failure.
func (o *Order) TransitionTo(target Status, reason string) error {
	if !target.IsValid() {
		return shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Unknown status %q", target))
	}
	if !o.Status.CanTransitionTo(target) {
		return shared.NewDomainError("INVALID_STATE_TRANSITION",
			fmt.Sprintf("Cannot transition order from %s to %s", o.Status, target))
	}

	switch target {
	case StatusCancelled, StatusRefunded:
		if len(reason) < minReasonLen || len(reason) > maxReasonLen {
			return shared.NewDomainError("VALIDATION_ERROR",
				fmt.Sprintf("Reason must be between %d and %d characters", minReasonLen, maxReasonLen))
		}
	}

	previous := o.Status
	now := time.Now()
	o.Status = target
	o.StatusReason = reason
	o.UpdatedAt = now

	switch target {
	case StatusConfirmed:
		o.ConfirmedAt = &now
	case StatusCompleted:
		o.CompletedAt = &now
	case StatusCancelled:
		o.CancelledAt = &now
	case StatusRefunded:
		o.RefundedAt = &now
	}

	o.AddDomainEvent(NewOrderStatusChangedEvent(o, previous, reason))

	return nil
}

// Cancel cancels the order with a reason
func (o *Order) Cancel(reason string) error {
	return o.TransitionTo(StatusCancelled, reason)
}

// Refund refunds a completed order with a reason
func (o *Order) Refund(reason string) error {
	return o.TransitionTo(StatusRefunded, reason)
}

// IsTerminal returns true if the order is in a terminal state
func (o *Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// IsCancelled returns true if the order is cancelled
func (o *Order) IsCancelled() bool {
	return o.Status == StatusCancelled
}

// ItemCount returns the number of line items
func (o *Order) ItemCount() int {
	return len(o.Items)
}

// SetDeliveryInfo sets the delivery details
func (o *Order) SetDeliveryInfo(info *DeliveryInfo) {
	o.DeliveryInfo = info
	o.UpdatedAt = time.Now()
}
