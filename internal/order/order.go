// Package order tracks checkout orders through the payment saga.
package order

import (
	"context"
	"errors"
)

// Domain-level error values returned by the order service and its store.
var (
	ErrUnknownOrder            = errors.New("unknown order")
	ErrOrderExists             = errors.New("order already exists")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrUnknownAddress          = errors.New("unknown address")
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusPaid          Status = "PAID"
	StatusPaymentFailed Status = "PAYMENT_FAILED"
	StatusCanceled      Status = "CANCELED"
)

// Line is one ordered product at its frozen unit price in cents.
type Line struct {
	ProductID  string `json:"productId"`
	Quantity   int64  `json:"quantity"`
	PriceCents int64  `json:"priceCents"`
}

// AddressSnapshot freezes the shipping address into the order. The address
// book record can change or vanish later without touching placed orders.
type AddressSnapshot struct {
	OriginalAddressID string `json:"originalAddressId"`
	Street            string `json:"street"`
	BuildingName      string `json:"buildingName"`
	City              string `json:"city"`
	State             string `json:"state"`
	ZipCode           string `json:"zipCode"`
	Country           string `json:"country"`
}

// Order is one checkout attempt. The order id equals the checkout event id,
// which is what keeps redelivered checkouts from multiplying orders.
type Order struct {
	OrderID          string
	UserID           string
	Email            string
	Status           Status
	TotalCents       int64
	Items            []Line
	ShippingAddress  AddressSnapshot
	CreatedAtUnixUTC int64
}

// Store persists orders. Create reports ErrOrderExists for a duplicate id;
// UpdateStatus applies only when the current status matches from and reports
// ErrInvalidStatusTransition otherwise.
type Store interface {
	Create(ctx context.Context, order Order) error
	Get(ctx context.Context, orderID string) (Order, error)
	UpdateStatus(ctx context.Context, orderID string, from Status, to Status) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
}

// AddressBook resolves a user's address id into a shippable snapshot.
type AddressBook interface {
	Address(ctx context.Context, userID string, addressID string) (AddressSnapshot, error)
}
