package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carelink/backend/internal/domain/order"
)

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	PartnerID    uuid.UUID             `json:"partner_id" binding:"required"`
	PatientID    uuid.UUID             `json:"patient_id" binding:"required"`
	Currency     string                `json:"currency" binding:"omitempty,len=3"`
	Priority     string                `json:"priority" binding:"omitempty,oneof=routine urgent stat"`
	Items        []OrderItemInput      `json:"items" binding:"required,min=1"`
	DeliveryInfo *DeliveryInfoRequest  `json:"delivery_info"`
}

// OrderItemInput represents one line item in a create request. TotalPrice
// is optional; when supplied it must equal quantity times unit price.
type OrderItemInput struct {
	ServiceID  uuid.UUID        `json:"service_id" binding:"required"`
	Quantity   decimal.Decimal  `json:"quantity" binding:"required"`
	UnitPrice  decimal.Decimal  `json:"unit_price" binding:"required"`
	TotalPrice *decimal.Decimal `json:"total_price"`
}

// DeliveryInfoRequest carries delivery details on create
type DeliveryInfoRequest struct {
	Address      string `json:"address" binding:"omitempty,max=500"`
	City         string `json:"city" binding:"omitempty,max=100"`
	PostalCode   string `json:"postal_code" binding:"omitempty,max=20"`
	ContactName  string `json:"contact_name" binding:"omitempty,max=200"`
	ContactPhone string `json:"contact_phone" binding:"omitempty,max=50"`
	Instructions string `json:"instructions" binding:"omitempty,max=1000"`
}

// TransitionRequest represents a request to move an order to a new status
type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

// CancelOrderRequest represents a request to cancel an order
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500"`
}

// RefundOrderRequest represents a request to refund a completed order
type RefundOrderRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500"`
}

// ListFilter represents order list filtering options
type ListFilter struct {
	Status    string     `form:"status"`
	PartnerID *uuid.UUID `form:"partner_id"`
	PatientID *uuid.UUID `form:"patient_id"`
	Page      int        `form:"page"`
	PageSize  int        `form:"page_size"`
}

// OrderItemResponse represents a line item in responses
type OrderItemResponse struct {
	ID         uuid.UUID       `json:"id"`
	ServiceID  uuid.UUID       `json:"service_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// OrderResponse represents an order in responses
type OrderResponse struct {
	ID           uuid.UUID           `json:"id"`
	PartnerID    uuid.UUID           `json:"partner_id"`
	PatientID    uuid.UUID           `json:"patient_id"`
	Status       string              `json:"status"`
	Priority     string              `json:"priority"`
	Total        decimal.Decimal     `json:"total"`
	Currency     string              `json:"currency"`
	Items        []OrderItemResponse `json:"items"`
	DeliveryInfo *order.DeliveryInfo `json:"delivery_info,omitempty"`
	StatusReason string              `json:"status_reason,omitempty"`
	ConfirmedAt  *time.Time          `json:"confirmed_at,omitempty"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
	CancelledAt  *time.Time          `json:"cancelled_at,omitempty"`
	RefundedAt   *time.Time          `json:"refunded_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// ToOrderResponse converts an order aggregate to its response shape
func ToOrderResponse(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemResponse{
			ID:         item.ID,
			ServiceID:  item.ServiceID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.TotalPrice,
		})
	}
	return OrderResponse{
		ID:           o.ID,
		PartnerID:    o.PartnerID,
		PatientID:    o.PatientID,
		Status:       string(o.Status),
		Priority:     string(o.Priority),
		Total:        o.Total,
		Currency:     o.Currency,
		Items:        items,
		DeliveryInfo: o.DeliveryInfo,
		StatusReason: o.StatusReason,
		ConfirmedAt:  o.ConfirmedAt,
		CompletedAt:  o.CompletedAt,
		CancelledAt:  o.CancelledAt,
		RefundedAt:   o.RefundedAt,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}
