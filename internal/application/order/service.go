package order

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carelink/backend/internal/domain/order"
	"github.com/carelink/backend/internal/domain/partner"
	"github.com/carelink/backend/internal/domain/shared"
)

// Service handles order lifecycle operations. Mutations on the same order
// are serialized through a per-order lock so concurrent transitions cannot
// interleave between load and save.
type Service struct {
	orders    order.Repository
	partners  partner.Reader
	publisher shared.EventPublisher
	logger    *zap.Logger

	locksMu sync.Mutex
	locks   map[uuid.UUID]*orderLock
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

// NewService creates a new order service
func NewService(orders order.Repository, partners partner.Reader, publisher shared.EventPublisher, logger *zap.Logger) *Service {
	return &Service{
		orders:    orders,
		partners:  partners,
		publisher: publisher,
		logger:    logger,
		locks:     make(map[uuid.UUID]*orderLock),
	}
}

// Create creates a new order in pending status. Every line item is
// validated before anything is persisted.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest) (*OrderResponse, error) {
	p, err := s.partners.FindByID(ctx, req.PartnerID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, shared.NewDomainError("PARTNER_INACTIVE", "Cannot place orders against an inactive partner")
	}

	items := make([]order.ItemInput, 0, len(req.Items))
	for _, in := range req.Items {
		items = append(items, order.ItemInput{
			ServiceID:  in.ServiceID,
			Quantity:   in.Quantity,
			UnitPrice:  in.UnitPrice,
			TotalPrice: in.TotalPrice,
		})
	}

	o, err := order.NewOrder(req.PartnerID, req.PatientID, req.Currency, order.Priority(req.Priority), items)
	if err != nil {
		return nil, err
	}
	if req.DeliveryInfo != nil {
		o.SetDeliveryInfo(&order.DeliveryInfo{
			Address:      req.DeliveryInfo.Address,
			City:         req.DeliveryInfo.City,
			PostalCode:   req.DeliveryInfo.PostalCode,
			ContactName:  req.DeliveryInfo.ContactName,
			ContactPhone: req.DeliveryInfo.ContactPhone,
			Instructions: req.DeliveryInfo.Instructions,
		})
	}

	if err := s.orders.Save(ctx, o); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, o)

	s.logger.Info("order created",
		zap.String("order_id", o.ID.String()),
		zap.String("partner_id", o.PartnerID.String()),
		zap.String("total", o.Total.String()),
	)

	response := ToOrderResponse(o)
	return &response, nil
}

// GetByID retrieves an order by ID
func (s *Service) GetByID(ctx context.Context, orderID uuid.UUID) (*OrderResponse, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	response := ToOrderResponse(o)
	return &response, nil
}

// List retrieves orders with filtering and pagination
func (s *Service) List(ctx context.Context, filter ListFilter) (shared.Paginated[OrderResponse], error) {
	domainFilter := shared.DefaultFilter()
	if filter.Page > 0 {
		domainFilter.Page = filter.Page
	}
	if filter.PageSize > 0 {
		domainFilter.PageSize = filter.PageSize
	}
	if filter.Status != "" {
		domainFilter.Filters["status"] = filter.Status
	}

	var (
		orders []order.Order
		err    error
	)
	switch {
	case filter.PartnerID != nil:
		orders, err = s.orders.FindByPartner(ctx, *filter.PartnerID, domainFilter)
	case filter.PatientID != nil:
		orders, err = s.orders.FindByPatient(ctx, *filter.PatientID, domainFilter)
	default:
		orders, err = s.orders.FindAll(ctx, domainFilter)
	}
	if err != nil {
		return shared.Paginated[OrderResponse]{}, err
	}

	countFilter := domainFilter
	if filter.PartnerID != nil {
		countFilter.Filters["partner_id"] = *filter.PartnerID
	}
	if filter.PatientID != nil {
		countFilter.Filters["patient_id"] = *filter.PatientID
	}
	total, err := s.orders.Count(ctx, countFilter)
	if err != nil {
		return shared.Paginated[OrderResponse]{}, err
	}

	responses := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		responses = append(responses, ToOrderResponse(&orders[i]))
	}
	return shared.NewPaginated(responses, total, domainFilter.Page, domainFilter.PageSize), nil
}

// Transition moves an order to a new status, enforcing the lifecycle
// transition table. The order is untouched when the transition is invalid.
func (s *Service) Transition(ctx context.Context, orderID uuid.UUID, target order.Status, reason string) (*OrderResponse, error) {
	unlock := s.lock(orderID)
	defer unlock()

	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := o.TransitionTo(target, reason); err != nil {
		return nil, err
	}
	if err := s.orders.Save(ctx, o); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, o)

	s.logger.Info("order status changed",
		zap.String("order_id", o.ID.String()),
		zap.String("status", string(o.Status)),
	)

	response := ToOrderResponse(o)
	return &response, nil
}

// Cancel cancels an order with a reason
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*OrderResponse, error) {
	return s.Transition(ctx, orderID, order.StatusCancelled, reason)
}

// Refund refunds a completed order with a reason
func (s *Service) Refund(ctx context.Context, orderID uuid.UUID, reason string) (*OrderResponse, error) {
	return s.Transition(ctx, orderID, order.StatusRefunded, reason)
}

// IsCancelled reports whether an order has been cancelled. The webhook
// dispatcher consults this before each delivery attempt.
func (s *Service) IsCancelled(ctx context.Context, orderID uuid.UUID) (bool, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	return o.IsCancelled(), nil
}

// publishEvents flushes the order's pending domain events
func (s *Service) publishEvents(ctx context.Context, o *order.Order) {
	if s.publisher == nil {
		return
	}
	events := o.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish order events",
			zap.String("order_id", o.ID.String()),
			zap.Error(err),
		)
	}
	o.ClearDomainEvents()
}

// lock acquires the per-order mutex and returns its release func
func (s *Service) lock(orderID uuid.UUID) func() {
	s.locksMu.Lock()
	l, ok := s.locks[orderID]
	if !ok {
		l = &orderLock{}
		s.locks[orderID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, orderID)
		}
		s.locksMu.Unlock()
	}
}
