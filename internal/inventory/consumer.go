// Package inventory adapts saga and catalog events onto the stock ledger.
package inventory

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/electroshop/internal/events"
	"github.com/MarkoPoloResearchLab/electroshop/pkg/stockledger"
)

// Consumer turns bus events into ledger operations. The ledger's own
// processed-order bookkeeping makes commit and release safe to replay.
type Consumer struct {
	service *stockledger.Service
	logger  *zap.Logger
}

// NewConsumer wires a Consumer.
func NewConsumer(service *stockledger.Service, logger *zap.Logger) (*Consumer, error) {
	if service == nil {
		return nil, errors.New("inventory consumer: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{service: service, logger: logger}, nil
}

// HandleOrderPlaced commits the reserved quantities of a paid order.
func (consumer *Consumer) HandleOrderPlaced(ctx context.Context, event events.OrderPlacedEvent) error {
	orderID, userID, lines, err := orderEffect(event.OrderID, event.UserID, event.Items)
	if err != nil {
		consumer.logger.Error("order-placed rejected", zap.String("orderId", event.OrderID), zap.Error(err))
		return nil
	}
	return consumer.service.CommitOrder(ctx, orderID, userID, lines)
}

// HandleOrderFailed releases the reserved quantities of a failed order.
func (consumer *Consumer) HandleOrderFailed(ctx context.Context, event events.OrderFailedEvent) error {
	orderID, userID, lines, err := orderEffect(event.OrderID, event.UserID, event.Items)
	if err != nil {
		consumer.logger.Error("order-failed rejected", zap.String("orderId", event.OrderID), zap.Error(err))
		return nil
	}
	return consumer.service.ReleaseOrder(ctx, orderID, userID, lines)
}

// HandleProductAdded seeds or tops up stock when catalog announces a product.
func (consumer *Consumer) HandleProductAdded(ctx context.Context, event events.ProductAddedEvent) error {
	productID, quantity, err := productEffect(event.ProductID, event.Quantity)
	if err != nil {
		consumer.logger.Error("product-add rejected", zap.String("productId", event.ProductID), zap.Error(err))
		return nil
	}
	return consumer.service.AddStock(ctx, productID, quantity)
}

// HandleProductUpdated overwrites available stock after a catalog edit.
func (consumer *Consumer) HandleProductUpdated(ctx context.Context, event events.ProductUpdatedEvent) error {
	productID, quantity, err := productEffect(event.ProductID, event.Quantity)
	if err != nil {
		consumer.logger.Error("product-update rejected", zap.String("productId", event.ProductID), zap.Error(err))
		return nil
	}
	return consumer.service.SetStock(ctx, productID, quantity)
}

// Registry returns the event bindings the inventory service consumes.
func (consumer *Consumer) Registry() *events.Registry {
	registry := events.NewRegistry()
	registry.Register(events.TopicOrderPlaced, events.Typed(consumer.HandleOrderPlaced))
	registry.Register(events.TopicOrderFailed, events.Typed(consumer.HandleOrderFailed))
	registry.Register(events.TopicProductAdded, events.Typed(consumer.HandleProductAdded))
	registry.Register(events.TopicProductUpdated, events.Typed(consumer.HandleProductUpdated))
	return registry
}

// orderEffect validates the event's identifiers. A malformed event can never
// become well-formed, so validation failures are logged and dropped rather
// than redelivered forever.
func orderEffect(rawOrderID string, rawUserID string, items []events.ItemPayload) (stockledger.OrderID, stockledger.UserID, []stockledger.OrderLine, error) {
	orderID, err := stockledger.NewOrderID(rawOrderID)
	if err != nil {
		return stockledger.OrderID{}, stockledger.UserID{}, nil, err
	}
	userID, err := stockledger.NewUserID(rawUserID)
	if err != nil {
		return stockledger.OrderID{}, stockledger.UserID{}, nil, err
	}
	lines := make([]stockledger.OrderLine, 0, len(items))
	for _, item := range items {
		productID, err := stockledger.NewProductID(item.ProductID)
		if err != nil {
			return stockledger.OrderID{}, stockledger.UserID{}, nil, err
		}
		quantity, err := stockledger.NewQuantity(item.Quantity)
		if err != nil {
			return stockledger.OrderID{}, stockledger.UserID{}, nil, err
		}
		lines = append(lines, stockledger.OrderLine{ProductID: productID, Quantity: quantity})
	}
	return orderID, userID, lines, nil
}

func productEffect(rawProductID string, rawQuantity int64) (stockledger.ProductID, stockledger.Quantity, error) {
	productID, err := stockledger.NewProductID(rawProductID)
	if err != nil {
		return stockledger.ProductID{}, 0, err
	}
	quantity, err := stockledger.NewQuantity(rawQuantity)
	if err != nil {
		return stockledger.ProductID{}, 0, err
	}
	return productID, quantity, nil
}
