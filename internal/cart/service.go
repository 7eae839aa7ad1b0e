package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/electroshop/internal/events"
)

// Service wires cart storage, the product catalog, the inventory reservation
// client, and the event bus into the cart-facing operations.
type Service struct {
	store        Store
	catalog      Catalog
	reservations Reservations
	publisher    events.Publisher
	nowFn        func() int64
	logger       *zap.Logger
}

// NewService wires a Service.
func NewService(store Store, catalog Catalog, reservations Reservations, publisher events.Publisher, now func() int64, logger *zap.Logger) (*Service, error) {
	if store == nil || catalog == nil || reservations == nil || publisher == nil || now == nil {
		return nil, errors.New("cart service: nil dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        store,
		catalog:      catalog,
		reservations: reservations,
		publisher:    publisher,
		nowFn:        now,
		logger:       logger,
	}, nil
}

// AddItem reserves stock for the line, then records it in the cart with the
// catalog price frozen in. Adding a product already in the cart raises the
// existing line instead of duplicating it.
func (service *Service) AddItem(ctx context.Context, userID string, productID string, quantity int64) (Cart, error) {
	product, err := service.catalog.Product(ctx, productID)
	if err != nil {
		return Cart{}, err
	}
	current, err := service.loadOrEmpty(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	index := current.itemIndex(productID)
	if index >= 0 {
		newQuantity := current.Items[index].Quantity + quantity
		expiresAt, err := service.reservations.Update(ctx, userID, productID, newQuantity)
		if err != nil {
			return Cart{}, err
		}
		current.Items[index].Quantity = newQuantity
		current.Items[index].ReservedUntilUnixUTC = expiresAt
	} else {
		expiresAt, err := service.reservations.Reserve(ctx, productID, userID, quantity)
		if err != nil {
			return Cart{}, err
		}
		current.Items = append(current.Items, Item{
			ProductID:            productID,
			Name:                 product.Name,
			Quantity:             quantity,
			PriceCents:           product.PriceCents,
			ReservedUntilUnixUTC: expiresAt,
		})
	}
	if err := service.store.Save(ctx, current); err != nil {
		return Cart{}, err
	}
	return current, nil
}

// UpdateQuantity resizes a line, mirroring the change into the stock hold.
func (service *Service) UpdateQuantity(ctx context.Context, userID string, productID string, quantity int64) (Cart, error) {
	current, err := service.store.Get(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	index := current.itemIndex(productID)
	if index < 0 {
		return Cart{}, ErrUnknownCartItem
	}
	expiresAt, err := service.reservations.Update(ctx, userID, productID, quantity)
	if err != nil {
		return Cart{}, err
	}
	current.Items[index].Quantity = quantity
	current.Items[index].ReservedUntilUnixUTC = expiresAt
	if err := service.store.Save(ctx, current); err != nil {
		return Cart{}, err
	}
	return current, nil
}

// RemoveItem drops a line and releases its stock hold. A hold that already
// expired on its own is not an error.
func (service *Service) RemoveItem(ctx context.Context, userID string, productID string) (Cart, error) {
	current, err := service.store.Get(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	index := current.itemIndex(productID)
	if index < 0 {
		return Cart{}, ErrUnknownCartItem
	}
	if err := service.reservations.Cancel(ctx, userID, productID); err != nil {
		service.logger.Warn("cancel reservation on remove",
			zap.String("userId", userID),
			zap.String("productId", productID),
			zap.Error(err))
	}
	current.Items = append(current.Items[:index], current.Items[index+1:]...)
	if err := service.store.Save(ctx, current); err != nil {
		return Cart{}, err
	}
	return current, nil
}

// Clear empties the cart, releasing every stock hold it carried.
func (service *Service) Clear(ctx context.Context, userID string) error {
	current, err := service.store.Get(ctx, userID)
	if errors.Is(err, ErrUnknownCart) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, item := range current.Items {
		if err := service.reservations.Cancel(ctx, userID, item.ProductID); err != nil {
			service.logger.Warn("cancel reservation on clear",
				zap.String("userId", userID),
				zap.String("productId", item.ProductID),
				zap.Error(err))
		}
	}
	return service.store.Delete(ctx, userID)
}

// Get returns the user's cart, empty when none exists yet.
func (service *Service) Get(ctx context.Context, userID string) (Cart, error) {
	return service.loadOrEmpty(ctx, userID)
}

// Checkout validates the cart and opens the saga with a checkout event. The
// event id becomes the order id downstream, so a redelivered checkout event
// cannot create a second order. The cart survives until order-placed arrives.
func (service *Service) Checkout(ctx context.Context, userID string, email string, addressID string) (string, error) {
	current, err := service.store.Get(ctx, userID)
	if errors.Is(err, ErrUnknownCart) {
		return "", ErrEmptyCart
	}
	if err != nil {
		return "", err
	}
	if len(current.Items) == 0 {
		return "", ErrEmptyCart
	}
	now := service.nowFn()
	for _, item := range current.Items {
		if item.ReservedUntilUnixUTC <= now {
			return "", fmt.Errorf("%w: product %s", ErrReservationExpired, item.ProductID)
		}
	}
	eventID := uuid.NewString()
	checkout := events.CheckoutEvent{
		EventID:    eventID,
		UserID:     userID,
		Email:      email,
		AddressID:  addressID,
		TotalCents: current.TotalCents(),
		Items:      itemPayloads(current.Items),
		OccurredAt: time.Unix(now, 0).UTC(),
	}
	if err := service.publisher.Publish(ctx, events.TopicCartCheckout, userID, checkout); err != nil {
		return "", err
	}
	service.logger.Info("checkout started",
		zap.String("userId", userID),
		zap.String("eventId", eventID),
		zap.Int64("totalCents", checkout.TotalCents))
	return eventID, nil
}

// HandleOrderPlaced retires the cart whose checkout completed. The stock
// holds were already committed by inventory; only the document goes.
func (service *Service) HandleOrderPlaced(ctx context.Context, event events.OrderPlacedEvent) error {
	if err := service.store.Delete(ctx, event.UserID); err != nil {
		return err
	}
	service.logger.Info("cart cleared after order placed",
		zap.String("userId", event.UserID),
		zap.String("orderId", event.OrderID))
	return nil
}

// Registry returns the event bindings the cart service consumes.
func (service *Service) Registry() *events.Registry {
	registry := events.NewRegistry()
	registry.Register(events.TopicOrderPlaced, events.Typed(service.HandleOrderPlaced))
	return registry
}

func (service *Service) loadOrEmpty(ctx context.Context, userID string) (Cart, error) {
	current, err := service.store.Get(ctx, userID)
	if errors.Is(err, ErrUnknownCart) {
		return Cart{UserID: userID}, nil
	}
	if err != nil {
		return Cart{}, err
	}
	return current, nil
}

func itemPayloads(items []Item) []events.ItemPayload {
	payloads := make([]events.ItemPayload, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, events.ItemPayload{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			PriceCents: item.PriceCents,
		})
	}
	return payloads
}
