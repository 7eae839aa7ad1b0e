package stockledger

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ProductID identifies a product tracked by the ledger.
type ProductID struct {
	value string
}

// UserID identifies the owner of a reservation.
type UserID struct {
	value string
}

// OrderID identifies an order whose commit/release effects are tracked for idempotency.
type OrderID struct {
	value string
}

// Quantity is a strictly positive unit count.
type Quantity int64

// ReservationID is the composite key of a reservation: one live hold per (user, product) pair.
type ReservationID struct {
	userID    string
	productID string
}

// NewProductID validates and normalizes a product id.
func NewProductID(raw string) (ProductID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ProductID{}, fmt.Errorf("%w: empty value", ErrInvalidProductID)
	}
	if strings.Contains(trimmed, reservationIDDelimiter) {
		return ProductID{}, fmt.Errorf("%w: must not contain %q", ErrInvalidProductID, reservationIDDelimiter)
	}
	return ProductID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ProductID) String() string {
	return id.value
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if strings.Contains(trimmed, reservationIDDelimiter) {
		return UserID{}, fmt.Errorf("%w: must not contain %q", ErrInvalidUserID, reservationIDDelimiter)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewOrderID validates and normalizes an order id.
func NewOrderID(raw string) (OrderID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return OrderID{}, fmt.Errorf("%w: empty value", ErrInvalidOrderID)
	}
	return OrderID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id OrderID) String() string {
	return id.value
}

// NewQuantity validates a quantity and ensures it is strictly positive.
func NewQuantity(raw int64) (Quantity, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidQuantity)
	}
	return Quantity(raw), nil
}

// Int64 returns the raw quantity.
func (quantity Quantity) Int64() int64 {
	return int64(quantity)
}

// NewReservationID builds the composite reservation key for a user/product pair.
func NewReservationID(userID UserID, productID ProductID) ReservationID {
	return ReservationID{userID: userID.value, productID: productID.value}
}

// ParseReservationID parses the wire form "userID:productID".
func ParseReservationID(raw string) (ReservationID, error) {
	trimmed := strings.TrimSpace(raw)
	userPart, productPart, found := strings.Cut(trimmed, reservationIDDelimiter)
	if !found {
		return ReservationID{}, fmt.Errorf("%w: want userID%sproductID, got %q", ErrInvalidReservationID, reservationIDDelimiter, raw)
	}
	userID, err := NewUserID(userPart)
	if err != nil {
		return ReservationID{}, fmt.Errorf("%w: bad user segment", ErrInvalidReservationID)
	}
	productID, err := NewProductID(productPart)
	if err != nil {
		return ReservationID{}, fmt.Errorf("%w: bad product segment", ErrInvalidReservationID)
	}
	return NewReservationID(userID, productID), nil
}

// String returns the wire form "userID:productID".
func (id ReservationID) String() string {
	return id.userID + reservationIDDelimiter + id.productID
}

// UserID returns the user segment of the key.
func (id ReservationID) UserID() UserID {
	return UserID{value: id.userID}
}

// ProductID returns the product segment of the key.
func (id ReservationID) ProductID() ProductID {
	return ProductID{value: id.productID}
}

// StockRecord is the authoritative available/reserved counter pair for one product.
// AvailableQty + ReservedQty equals total stock and only changes through explicit
// stock-add or stock-set operations.
type StockRecord struct {
	ProductID    ProductID
	AvailableQty int64
	ReservedQty  int64
}

// Reservation is a short-lived hold on stock. The backing store expires it
// autonomously; holders must tolerate it being gone at any time.
type Reservation struct {
	id               ReservationID
	quantity         Quantity
	expiresAtUnixUTC int64
}

// NewReservation validates and builds a reservation record.
func NewReservation(id ReservationID, quantity Quantity, expiresAtUnixUTC int64) (Reservation, error) {
	if id.userID == "" || id.productID == "" {
		return Reservation{}, fmt.Errorf("%w: empty key", ErrInvalidReservationID)
	}
	if quantity <= 0 {
		return Reservation{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidQuantity)
	}
	return Reservation{id: id, quantity: quantity, expiresAtUnixUTC: expiresAtUnixUTC}, nil
}

// ID returns the composite key.
func (reservation Reservation) ID() ReservationID {
	return reservation.id
}

// Quantity returns the held unit count.
func (reservation Reservation) Quantity() Quantity {
	return reservation.quantity
}

// ExpiresAtUnixUTC returns the expiry recorded at write time. The store's TTL
// is authoritative; this value is informational.
func (reservation Reservation) ExpiresAtUnixUTC() int64 {
	return reservation.expiresAtUnixUTC
}

// OrderLine pairs a product with the quantity committed or released for an order.
type OrderLine struct {
	ProductID ProductID
	Quantity  Quantity
}

// OrderAction distinguishes the two idempotent order-level ledger effects.
type OrderAction string

const (
	OrderActionCommit  OrderAction = "commit"
	OrderActionRelease OrderAction = "release"
)

// Ledger is the persistence contract for stock records. Implementations must
// serialize mutations per product row: GetStockForUpdate takes a row lock that
// is held until the surrounding WithTx closure returns.
type Ledger interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txLedger Ledger) error) error
	GetStock(ctx context.Context, productID ProductID) (StockRecord, error)
	GetStockForUpdate(ctx context.Context, productID ProductID) (StockRecord, error)
	CreateStock(ctx context.Context, record StockRecord) error
	SaveStock(ctx context.Context, record StockRecord) error
	ListReservedProducts(ctx context.Context) ([]ProductID, error)
	MarkOrderProcessed(ctx context.Context, orderID OrderID, action OrderAction) error
}

// ReservationStore is the contract for the TTL-bound reservation records.
// Entries vanish on their own when the TTL elapses; Get and Delete report
// ErrUnknownReservation for entries that are already gone.
type ReservationStore interface {
	Put(ctx context.Context, reservation Reservation, ttl time.Duration) error
	Get(ctx context.Context, id ReservationID) (Reservation, error)
	Delete(ctx context.Context, id ReservationID) error
	ListByProduct(ctx context.Context, productID ProductID) ([]Reservation, error)
}
