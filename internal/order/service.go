package order

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/electroshop/internal/events"
)

const defaultAddressTimeout = 3 * time.Second

// Service drives an order through the saga: a checkout event opens it
// PENDING, payment outcome moves it to PAID or PAYMENT_FAILED, and the
// matching order-placed or order-failed event closes the loop for inventory
// and the cart. Every handler tolerates redelivery.
type Service struct {
	store          Store
	addressBook    AddressBook
	publisher      events.Publisher
	nowFn          func() int64
	addressTimeout time.Duration
	logger         *zap.Logger
}

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithAddressTimeout bounds the address book lookup during checkout.
func WithAddressTimeout(timeout time.Duration) ServiceOption {
	return func(service *Service) {
		if timeout > 0 {
			service.addressTimeout = timeout
		}
	}
}

// NewService wires a Service.
func NewService(store Store, addressBook AddressBook, publisher events.Publisher, now func() int64, logger *zap.Logger, options ...ServiceOption) (*Service, error) {
	if store == nil || addressBook == nil || publisher == nil || now == nil {
		return nil, errors.New("order service: nil dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &Service{
		store:          store,
		addressBook:    addressBook,
		publisher:      publisher,
		nowFn:          now,
		addressTimeout: defaultAddressTimeout,
		logger:         logger,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// HandleCheckout opens a PENDING order for the checkout event and asks for
// payment. The checkout event id is the order id: a redelivered event finds
// the existing order and only re-emits order-created, it never duplicates.
// An unresolvable address fails the order immediately so inventory releases
// the holds.
func (service *Service) HandleCheckout(ctx context.Context, event events.CheckoutEvent) error {
	addressCtx, cancel := context.WithTimeout(ctx, service.addressTimeout)
	address, err := service.addressBook.Address(addressCtx, event.UserID, event.AddressID)
	cancel()
	if err != nil {
		service.logger.Warn("address lookup failed, failing order",
			zap.String("orderId", event.EventID),
			zap.String("addressId", event.AddressID),
			zap.Error(err))
		return service.publishOrderFailed(ctx, Order{
			OrderID: event.EventID,
			UserID:  event.UserID,
			Items:   linesFromPayloads(event.Items),
		}, "address unavailable")
	}

	newOrder := Order{
		OrderID:          event.EventID,
		UserID:           event.UserID,
		Email:            event.Email,
		Status:           StatusPending,
		TotalCents:       event.TotalCents,
		Items:            linesFromPayloads(event.Items),
		ShippingAddress:  address,
		CreatedAtUnixUTC: service.nowFn(),
	}
	err = service.store.Create(ctx, newOrder)
	if errors.Is(err, ErrOrderExists) {
		existing, getErr := service.store.Get(ctx, event.EventID)
		if getErr != nil {
			return getErr
		}
		if existing.Status != StatusPending {
			// The saga already moved past payment; nothing left to ask for.
			return nil
		}
		newOrder = existing
	} else if err != nil {
		return err
	}

	created := events.OrderCreatedEvent{
		OrderID:     newOrder.OrderID,
		Email:       newOrder.Email,
		AmountCents: newOrder.TotalCents,
	}
	if err := service.publisher.Publish(ctx, events.TopicOrderCreated, newOrder.OrderID, created); err != nil {
		return err
	}
	service.logger.Info("order created",
		zap.String("orderId", newOrder.OrderID),
		zap.String("userId", newOrder.UserID),
		zap.Int64("amountCents", newOrder.TotalCents))
	return nil
}

// HandlePaymentSucceeded finalizes a paid order and announces order-placed.
// Redelivery re-announces without a second status change.
func (service *Service) HandlePaymentSucceeded(ctx context.Context, event events.PaymentSucceededEvent) error {
	err := service.store.UpdateStatus(ctx, event.OrderID, StatusPending, StatusPaid)
	if err != nil && !errors.Is(err, ErrInvalidStatusTransition) {
		return err
	}
	placed, getErr := service.store.Get(ctx, event.OrderID)
	if getErr != nil {
		return getErr
	}
	if placed.Status != StatusPaid {
		// Payment raced a terminal failure; leave the terminal state alone.
		service.logger.Warn("payment success for non-paid order ignored",
			zap.String("orderId", event.OrderID),
			zap.String("status", string(placed.Status)))
		return nil
	}
	payload := events.OrderPlacedEvent{
		OrderID:         placed.OrderID,
		UserID:          placed.UserID,
		Items:           payloadsFromLines(placed.Items),
		ShippingAddress: addressPayload(placed.ShippingAddress),
	}
	if err := service.publisher.Publish(ctx, events.TopicOrderPlaced, placed.OrderID, payload); err != nil {
		return err
	}
	service.logger.Info("order placed", zap.String("orderId", placed.OrderID))
	return nil
}

// HandlePaymentFailed marks the order failed and emits the compensating
// order-failed event so inventory releases the reserved stock.
func (service *Service) HandlePaymentFailed(ctx context.Context, event events.PaymentFailedEvent) error {
	err := service.store.UpdateStatus(ctx, event.OrderID, StatusPending, StatusPaymentFailed)
	if err != nil && !errors.Is(err, ErrInvalidStatusTransition) {
		return err
	}
	failed, getErr := service.store.Get(ctx, event.OrderID)
	if getErr != nil {
		return getErr
	}
	if failed.Status != StatusPaymentFailed {
		service.logger.Warn("payment failure for settled order ignored",
			zap.String("orderId", event.OrderID),
			zap.String("status", string(failed.Status)))
		return nil
	}
	return service.publishOrderFailed(ctx, failed, event.Reason)
}

// Get returns one order.
func (service *Service) Get(ctx context.Context, orderID string) (Order, error) {
	return service.store.Get(ctx, orderID)
}

// ListByUser returns the user's most recent orders.
func (service *Service) ListByUser(ctx context.Context, userID string, limit int) ([]Order, error) {
	return service.store.ListByUser(ctx, userID, limit)
}

// Registry returns the event bindings the order service consumes.
func (service *Service) Registry() *events.Registry {
	registry := events.NewRegistry()
	registry.Register(events.TopicCartCheckout, events.Typed(service.HandleCheckout))
	registry.Register(events.TopicPaymentSucceeded, events.Typed(service.HandlePaymentSucceeded))
	registry.Register(events.TopicPaymentFailed, events.Typed(service.HandlePaymentFailed))
	return registry
}

func (service *Service) publishOrderFailed(ctx context.Context, failed Order, reason string) error {
	payload := events.OrderFailedEvent{
		OrderID: failed.OrderID,
		UserID:  failed.UserID,
		Items:   payloadsFromLines(failed.Items),
		Reason:  reason,
	}
	if err := service.publisher.Publish(ctx, events.TopicOrderFailed, failed.OrderID, payload); err != nil {
		return err
	}
	service.logger.Info("order failed",
		zap.String("orderId", failed.OrderID),
		zap.String("reason", reason))
	return nil
}

func linesFromPayloads(items []events.ItemPayload) []Line {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, Line{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			PriceCents: item.PriceCents,
		})
	}
	return lines
}

func payloadsFromLines(lines []Line) []events.ItemPayload {
	items := make([]events.ItemPayload, 0, len(lines))
	for _, line := range lines {
		items = append(items, events.ItemPayload{
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			PriceCents: line.PriceCents,
		})
	}
	return items
}

func addressPayload(address AddressSnapshot) events.AddressPayload {
	return events.AddressPayload{
		OriginalAddressID: address.OriginalAddressID,
		Street:            address.Street,
		BuildingName:      address.BuildingName,
		City:              address.City,
		State:             address.State,
		ZipCode:           address.ZipCode,
		Country:           address.Country,
	}
}
