package gormstore

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/electroshop/internal/payment"
)

const constraintPaymentOrder = "uniq_payments_order"

// PaymentStore implements payment.Store using GORM.
type PaymentStore struct {
	db *gorm.DB
}

// NewPaymentStore returns a PaymentStore backed by gorm.DB.
func NewPaymentStore(db *gorm.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

func (store *PaymentStore) Create(ctx context.Context, newPayment payment.Payment) error {
	model := PaymentRecord{
		PaymentID:   newPayment.PaymentID,
		OrderID:     newPayment.OrderID,
		IntentID:    newPayment.IntentID,
		AmountCents: newPayment.AmountCents,
		Status:      string(newPayment.Status),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintPaymentOrder) {
		return payment.ErrPaymentExists
	}
	return err
}

func (store *PaymentStore) GetByOrder(ctx context.Context, orderID string) (payment.Payment, error) {
	var model PaymentRecord
	err := store.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return payment.Payment{}, payment.ErrUnknownPayment
	}
	if err != nil {
		return payment.Payment{}, err
	}
	return payment.Payment{
		PaymentID:   model.PaymentID,
		OrderID:     model.OrderID,
		IntentID:    model.IntentID,
		AmountCents: model.AmountCents,
		Status:      payment.Status(model.Status),
	}, nil
}

// UpdateStatus writes the terminal status once. The conditional update is
// the settlement barrier: only a PENDING row can move.
func (store *PaymentStore) UpdateStatus(ctx context.Context, orderID string, to payment.Status) error {
	result := store.db.WithContext(ctx).
		Model(&PaymentRecord{}).
		Where("order_id = ? AND status = ?", orderID, string(payment.StatusPending)).
		Update("status", string(to))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := store.db.WithContext(ctx).
			Model(&PaymentRecord{}).
			Where("order_id = ?", orderID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return payment.ErrUnknownPayment
		}
		return payment.ErrPaymentSettled
	}
	return nil
}
