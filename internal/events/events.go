// Package events defines the topics and payloads the checkout saga is
// choreographed over. Delivery is at-least-once: every consumer of these
// payloads must tolerate redelivery.
package events

import "time"

// Topic names. One topic per event type keeps consumer groups simple.
const (
	TopicCartCheckout     = "cart-checkout"
	TopicOrderCreated     = "order-created"
	TopicPaymentSucceeded = "payment-succeeded"
	TopicPaymentFailed    = "payment-failed"
	TopicOrderPlaced      = "order-placed"
	TopicOrderFailed      = "order-failed"
	TopicProductAdded     = "product-add"
	TopicProductUpdated   = "product-update"
)

// ItemPayload is one product line carried through the saga. Prices are cents.
type ItemPayload struct {
	ProductID  string `json:"productId"`
	Quantity   int64  `json:"quantity"`
	PriceCents int64  `json:"priceCents"`
}

// CheckoutEvent starts the saga. EventID doubles as the order id downstream,
// which is what makes redelivered checkouts collapse into one order.
type CheckoutEvent struct {
	EventID    string        `json:"eventId"`
	UserID     string        `json:"userId"`
	Email      string        `json:"email"`
	AddressID  string        `json:"addressId"`
	TotalCents int64         `json:"totalCents"`
	Items      []ItemPayload `json:"items"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// OrderCreatedEvent asks the payment service to raise an intent.
type OrderCreatedEvent struct {
	OrderID     string `json:"orderId"`
	Email       string `json:"email"`
	AmountCents int64  `json:"amountCents"`
}

// PaymentSucceededEvent reports a confirmed charge.
type PaymentSucceededEvent struct {
	OrderID  string `json:"orderId"`
	IntentID string `json:"intentId"`
}

// PaymentFailedEvent reports a terminally failed charge.
type PaymentFailedEvent struct {
	OrderID  string `json:"orderId"`
	IntentID string `json:"intentId"`
	Reason   string `json:"reason"`
}

// AddressPayload is the shipping snapshot frozen into a placed order.
type AddressPayload struct {
	OriginalAddressID string `json:"originalAddressId"`
	Street            string `json:"street"`
	BuildingName      string `json:"buildingName"`
	City              string `json:"city"`
	State             string `json:"state"`
	ZipCode           string `json:"zipCode"`
	Country           string `json:"country"`
}

// OrderPlacedEvent closes the saga on the happy path: inventory commits the
// reserved quantities and the cart is cleared.
type OrderPlacedEvent struct {
	OrderID         string         `json:"orderId"`
	UserID          string         `json:"userId"`
	Items           []ItemPayload  `json:"items"`
	ShippingAddress AddressPayload `json:"shippingAddress"`
}

// OrderFailedEvent is the compensating signal: inventory releases the
// reserved quantities back to available.
type OrderFailedEvent struct {
	OrderID string        `json:"orderId"`
	UserID  string        `json:"userId"`
	Items   []ItemPayload `json:"items"`
	Reason  string        `json:"reason"`
}

// ProductAddedEvent seeds a stock record when catalog publishes a product.
type ProductAddedEvent struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

// ProductUpdatedEvent overwrites available stock after a catalog edit.
type ProductUpdatedEvent struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}
