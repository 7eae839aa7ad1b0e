// Package cart owns the per-user shopping cart and the checkout hand-off
// into the order saga.
package cart

import (
	"context"
	"errors"
)

// Domain-level error values returned by the cart service.
var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrUnknownCart        = errors.New("unknown cart")
	ErrUnknownCartItem    = errors.New("unknown cart item")
	ErrUnknownProduct     = errors.New("unknown product")
	ErrReservationExpired = errors.New("reservation expired")
)

// Item is one cart line. Name and PriceCents are frozen at add time so later
// catalog edits do not rewrite carts; ReservedUntilUnixUTC mirrors the stock
// hold backing this line.
type Item struct {
	ProductID            string `json:"productId"`
	Name                 string `json:"name"`
	Quantity             int64  `json:"quantity"`
	PriceCents           int64  `json:"priceCents"`
	ReservedUntilUnixUTC int64  `json:"reservedUntilUnixUtc"`
}

// Cart is the per-user cart document.
type Cart struct {
	UserID string `json:"userId"`
	Items  []Item `json:"items"`
}

// TotalCents sums quantity times unit price over every line.
func (cart Cart) TotalCents() int64 {
	var total int64
	for _, item := range cart.Items {
		total += item.Quantity * item.PriceCents
	}
	return total
}

func (cart Cart) itemIndex(productID string) int {
	for index, item := range cart.Items {
		if item.ProductID == productID {
			return index
		}
	}
	return -1
}

// Store persists cart documents. Get returns ErrUnknownCart for a user with
// no cart; Delete on a missing cart is a no-op.
type Store interface {
	Get(ctx context.Context, userID string) (Cart, error)
	Save(ctx context.Context, cart Cart) error
	Delete(ctx context.Context, userID string) error
}

// Product is the catalog view the cart needs: identity, display name and
// unit price.
type Product struct {
	ProductID  string
	Name       string
	PriceCents int64
}

// Catalog resolves product prices at add-to-cart time.
type Catalog interface {
	Product(ctx context.Context, productID string) (Product, error)
}

// Reservations is the inventory client the cart drives. Every mutation of a
// cart line is mirrored into a stock hold before the cart document changes.
type Reservations interface {
	Reserve(ctx context.Context, productID string, userID string, quantity int64) (expiresAtUnixUTC int64, err error)
	Update(ctx context.Context, userID string, productID string, quantity int64) (expiresAtUnixUTC int64, err error)
	Cancel(ctx context.Context, userID string, productID string) error
}
