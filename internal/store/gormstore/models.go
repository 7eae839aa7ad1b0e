package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StockItem mirrors the stock_items table: one row per product carrying the
// available/reserved counter pair.
type StockItem struct {
	ProductID    string    `gorm:"primaryKey"`
	AvailableQty int64     `gorm:"not null"`
	ReservedQty  int64     `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (StockItem) TableName() string { return "stock_items" }

// ProcessedOrder mirrors the processed_orders table. The unique (order, action)
// pair is what makes commit and release idempotent under event redelivery.
type ProcessedOrder struct {
	OrderID     string    `gorm:"not null;index:uniq_processed_order_action,unique,priority:1"`
	Action      string    `gorm:"not null;index:uniq_processed_order_action,unique,priority:2"`
	ProcessedAt time.Time `gorm:"not null"`
}

func (ProcessedOrder) TableName() string { return "processed_orders" }

// OrderRecord mirrors the orders table.
type OrderRecord struct {
	OrderID         string         `gorm:"primaryKey"`
	UserID          string         `gorm:"not null;index:idx_orders_user_created,priority:1"`
	Email           string         `gorm:"not null"`
	Status          string         `gorm:"not null"`
	TotalCents      int64          `gorm:"not null"`
	ShippingAddress datatypes.JSON `gorm:"not null"`
	Items           datatypes.JSON `gorm:"not null"`
	CreatedAt       time.Time      `gorm:"not null;index:idx_orders_user_created,priority:2"`
	UpdatedAt       time.Time      `gorm:"not null"`
}

func (OrderRecord) TableName() string { return "orders" }

// PaymentRecord mirrors the payments table. OrderID is unique so the intent
// for an order is only ever created once.
type PaymentRecord struct {
	PaymentID   string    `gorm:"type:uuid;primaryKey"`
	OrderID     string    `gorm:"not null;index:uniq_payments_order,unique"`
	IntentID    string    `gorm:"not null"`
	AmountCents int64     `gorm:"not null"`
	Status      string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (PaymentRecord) TableName() string { return "payments" }

func (payment *PaymentRecord) BeforeCreate(tx *gorm.DB) error {
	if payment.PaymentID == "" {
		payment.PaymentID = uuid.NewString()
	}
	return nil
}
