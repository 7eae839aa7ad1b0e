package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/electroshop/internal/order"
)

const constraintOrderPrimary = "orders_pkey"

// OrderStore implements order.Store using GORM. Items and the address
// snapshot are frozen as JSON columns; they never change after creation.
type OrderStore struct {
	db *gorm.DB
}

// NewOrderStore returns an OrderStore backed by gorm.DB.
func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db}
}

func (store *OrderStore) Create(ctx context.Context, newOrder order.Order) error {
	model, err := orderModel(newOrder)
	if err != nil {
		return err
	}
	err = store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintOrderPrimary) {
		return order.ErrOrderExists
	}
	return err
}

func (store *OrderStore) Get(ctx context.Context, orderID string) (order.Order, error) {
	var model OrderRecord
	err := store.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return order.Order{}, order.ErrUnknownOrder
	}
	if err != nil {
		return order.Order{}, err
	}
	return mapOrderRecord(model)
}

func (store *OrderStore) UpdateStatus(ctx context.Context, orderID string, from order.Status, to order.Status) error {
	result := store.db.WithContext(ctx).
		Model(&OrderRecord{}).
		Where("order_id = ? AND status = ?", orderID, string(from)).
		Update("status", string(to))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return order.ErrInvalidStatusTransition
	}
	return nil
}

func (store *OrderStore) ListByUser(ctx context.Context, userID string, limit int) ([]order.Order, error) {
	var rows []OrderRecord
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	orders := make([]order.Order, 0, len(rows))
	for _, row := range rows {
		mapped, err := mapOrderRecord(row)
		if err != nil {
			return nil, err
		}
		orders = append(orders, mapped)
	}
	return orders, nil
}

func orderModel(newOrder order.Order) (OrderRecord, error) {
	items, err := json.Marshal(newOrder.Items)
	if err != nil {
		return OrderRecord{}, fmt.Errorf("marshal order items: %w", err)
	}
	address, err := json.Marshal(newOrder.ShippingAddress)
	if err != nil {
		return OrderRecord{}, fmt.Errorf("marshal shipping address: %w", err)
	}
	return OrderRecord{
		OrderID:         newOrder.OrderID,
		UserID:          newOrder.UserID,
		Email:           newOrder.Email,
		Status:          string(newOrder.Status),
		TotalCents:      newOrder.TotalCents,
		ShippingAddress: address,
		Items:           items,
		CreatedAt:       time.Unix(newOrder.CreatedAtUnixUTC, 0).UTC(),
	}, nil
}

func mapOrderRecord(model OrderRecord) (order.Order, error) {
	var items []order.Line
	if err := json.Unmarshal(model.Items, &items); err != nil {
		return order.Order{}, fmt.Errorf("decode order items: %w", err)
	}
	var address order.AddressSnapshot
	if err := json.Unmarshal(model.ShippingAddress, &address); err != nil {
		return order.Order{}, fmt.Errorf("decode shipping address: %w", err)
	}
	return order.Order{
		OrderID:          model.OrderID,
		UserID:           model.UserID,
		Email:            model.Email,
		Status:           order.Status(model.Status),
		TotalCents:       model.TotalCents,
		Items:            items,
		ShippingAddress:  address,
		CreatedAtUnixUTC: model.CreatedAt.Unix(),
	}, nil
}
