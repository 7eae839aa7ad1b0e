package payment

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/electroshop/internal/events"
)

// Service raises one intent per order and settles it exactly once from the
// gateway webhook, emitting the saga's payment outcome events.
type Service struct {
	store     Store
	gateway   Gateway
	verifier  WebhookVerifier
	publisher events.Publisher
	logger    *zap.Logger
}

// NewService wires a Service.
func NewService(store Store, gateway Gateway, verifier WebhookVerifier, publisher events.Publisher, logger *zap.Logger) (*Service, error) {
	if store == nil || gateway == nil || verifier == nil || publisher == nil {
		return nil, errors.New("payment service: nil dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		gateway:   gateway,
		verifier:  verifier,
		publisher: publisher,
		logger:    logger,
	}, nil
}

// HandleOrderCreated raises the payment intent for a new order. A redelivered
// order-created event finds the existing payment and does nothing: the unique
// order constraint in the store is the idempotency barrier.
func (service *Service) HandleOrderCreated(ctx context.Context, event events.OrderCreatedEvent) error {
	if _, err := service.store.GetByOrder(ctx, event.OrderID); err == nil {
		return nil
	} else if !errors.Is(err, ErrUnknownPayment) {
		return err
	}
	intentID, err := service.gateway.CreateIntent(ctx, event.OrderID, event.Email, event.AmountCents)
	if err != nil {
		return err
	}
	err = service.store.Create(ctx, Payment{
		OrderID:     event.OrderID,
		IntentID:    intentID,
		AmountCents: event.AmountCents,
		Status:      StatusPending,
	})
	if errors.Is(err, ErrPaymentExists) {
		// A concurrent redelivery won the race; its intent stands.
		return nil
	}
	if err != nil {
		return err
	}
	service.logger.Info("payment intent created",
		zap.String("orderId", event.OrderID),
		zap.String("intentId", intentID),
		zap.Int64("amountCents", event.AmountCents))
	return nil
}

// HandleWebhook verifies a raw gateway webhook and settles the payment. The
// terminal status is written once: a retried webhook for a settled payment
// is acknowledged without emitting a second outcome event.
func (service *Service) HandleWebhook(ctx context.Context, body []byte) error {
	event, err := service.verifier.Verify(body)
	if err != nil {
		return err
	}
	terminal := StatusFailed
	if event.Succeeded {
		terminal = StatusSucceeded
	}
	err = service.store.UpdateStatus(ctx, event.OrderID, terminal)
	if errors.Is(err, ErrPaymentSettled) {
		service.logger.Info("webhook for settled payment ignored",
			zap.String("orderId", event.OrderID),
			zap.String("intentId", event.IntentID))
		return nil
	}
	if err != nil {
		return err
	}
	if event.Succeeded {
		return service.publisher.Publish(ctx, events.TopicPaymentSucceeded, event.OrderID, events.PaymentSucceededEvent{
			OrderID:  event.OrderID,
			IntentID: event.IntentID,
		})
	}
	return service.publisher.Publish(ctx, events.TopicPaymentFailed, event.OrderID, events.PaymentFailedEvent{
		OrderID:  event.OrderID,
		IntentID: event.IntentID,
		Reason:   event.Reason,
	})
}

// GetByOrder returns the payment raised for an order.
func (service *Service) GetByOrder(ctx context.Context, orderID string) (Payment, error) {
	return service.store.GetByOrder(ctx, orderID)
}

// Registry returns the event bindings the payment service consumes.
func (service *Service) Registry() *events.Registry {
	registry := events.NewRegistry()
	registry.Register(events.TopicOrderCreated, events.Typed(service.HandleOrderCreated))
	return registry
}
