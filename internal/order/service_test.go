package order

import (
	"context"
	"testing"

	"github.com/MarkoPoloResearchLab/electroshop/internal/events"
)

const testNow = int64(1_700_000_000)

var testCheckout = events.CheckoutEvent{
	EventID:    "evt-1",
	UserID:     "user-1",
	Email:      "user@example.com",
	AddressID:  "addr-1",
	TotalCents: 5198,
	Items: []events.ItemPayload{
		{ProductID: "prod-1", Quantity: 2, PriceCents: 2599},
	},
}

func TestHandleCheckoutCreatesPendingOrderAndRequestsPayment(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test)

	if err := fixture.service.HandleCheckout(context.Background(), testCheckout); err != nil {
		test.Fatalf("handle checkout: %v", err)
	}
	created := fixture.store.mustOrder(test, "evt-1")
	if created.Status != StatusPending {
		test.Fatalf("expected PENDING, got %s", created.Status)
	}
	if created.TotalCents != 5198 || len(created.Items) != 1 {
		test.Fatalf("unexpected order %+v", created)
	}
	if created.ShippingAddress.City != "Springfield" {
		test.Fatalf("expected frozen address snapshot, got %+v", created.ShippingAddress)
	}
	event := fixture.publisher.mustOnly(test, events.TopicOrderCreated).(events.OrderCreatedEvent)
	if event.OrderID != "evt-1" || event.AmountCents != 5198 {
		test.Fatalf("unexpected order-created %+v", event)
	}
}

func TestHandleCheckoutRedeliveryDoesNotDuplicateOrders(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test)

	if err := fixture.service.HandleCheckout(context.Background(), testCheckout); err != nil {
		test.Fatalf("first delivery: %v", err)
	}
	if err := fixture.service.HandleCheckout(context.Background(), testCheckout); err != nil {
		test.Fatalf("second delivery: %v", err)
	}
	if fixture.store.createCalls != 2 || len(fixture.store.orders) != 1 {
		test.Fatalf("expected single order after redelivery, got %d", len(fixture.store.orders))
	}
	// order-created is re-emitted; payment absorbs the duplicate.
	if got := fixture.publisher.count(events.TopicOrderCreated); got != 2 {
		test.Fatalf("expected 2 order-created events, got %d", got)
	}
}

func TestHandleCheckoutAddressFailureFailsOrder(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test)
	fixture.addressBook.err = ErrUnknownAddress

	if err := fixture.service.HandleCheckout(context.Background(), testCheckout); err != nil {
		test.Fatalf("handle checkout: %v", err)
	}
	if len(fixture.store.orders) != 0 {
		test.Fatalf("expected no order persisted, got %d", len(fixture.store.orders))
	}
	failed := fixture.publisher.mustOnly(test, events.TopicOrderFailed).(events.OrderFailedEvent)
	if failed.OrderID != "evt-1" || len(failed.Items) != 1 {
		test.Fatalf("unexpected order-failed %+v", failed)
	}
	if fixture.publisher.count(events.TopicOrderCreated) != 0 {
		test.Fatal("payment must not be requested for a failed order")
	}
}

func TestHandlePaymentSucceededPlacesOrder(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test)
	if err := fixture.service.HandleCheckout(context.Background(), testCheckout); err != nil {
		test.Fatalf("checkout: %v", err)
	}

	err := fixture.service.HandlePaymentSucceeded(context.Background(), events.PaymentSucceededEvent{OrderID: "evt-1", IntentID: "pi-1"})
	if err != nil {
		test.Fatalf("payment succeeded: %v", err)
	}
	if fixture.store.mustOrder(test, "evt-1").Status != StatusPaid {
		test.Fatal("expected PAID")
	}
	placed := fixture.publisher.mustOnly(test, events.TopicOrderPlaced).(events.OrderPlacedEvent)
	if placed.OrderID != "evt-1" || placed.UserID != "user-1" {
		test.Fatalf("unexpected order-placed %+v", placed)
	}
	if placed.ShippingAddress.City != "Springfield" {
		test.Fatalf("expected address snapshot on order-placed, got %+v", placed.ShippingAddress)
	}
}

func TestHandlePaymentSucceededRedeliveryRepublishesOnly(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test)
	if err := fixture.service.HandleCheckout(context.Background(), testCheckout); err != nil {
		test.Fatalf("checkout: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := fixture.service.HandlePaymentSucceeded(context.Background(), events.PaymentSucceededEvent{OrderID: "evt-1"}); err != nil {
			test.Fatalf("payment succeeded: %v", err)
		}
	}
	if fixture.store.mustOrder(test, "evt-1").Status != StatusPaid {
		test.Fatal("expected PAID")
	}
	if got := fixture.publisher.count(events.TopicOrderPlaced); got != 2 {
		test.Fatalf("expected order-placed re-emitted, got %d", got)
	}
}

func TestHandlePaymentFailedFailsOrderAndCompensates(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test)
	if err := fixture.service.HandleCheckout(context.Background(), testCheckout); err != nil {
		test.Fatalf("checkout: %v", err)
	}

	err := fixture.service.HandlePaymentFailed(context.Background(), events.PaymentFailedEvent{OrderID: "evt-1", Reason: "card declined"})
	if err != nil {
		test.Fatalf("payment failed: %v", err)
	}
	if fixture.store.mustOrder(test, "evt-1").Status != StatusPaymentFailed {
		test.Fatal("expected PAYMENT_FAILED")
	}
	failed := fixture.publisher.mustOnly(test, events.TopicOrderFailed).(events.OrderFailedEvent)
	if failed.Reason != "card declined" || len(failed.Items) != 1 {
		test.Fatalf("unexpected order-failed %+v", failed)
	}
}

func TestPaymentFailureAfterSuccessIsIgnored(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test)
	if err := fixture.service.HandleCheckout(context.Background(), testCheckout); err != nil {
		test.Fatalf("checkout: %v", err)
	}
	if err := fixture.service.HandlePaymentSucceeded(context.Background(), events.PaymentSucceededEvent{OrderID: "evt-1"}); err != nil {
		test.Fatalf("payment succeeded: %v", err)
	}
	if err := fixture.service.HandlePaymentFailed(context.Background(), events.PaymentFailedEvent{OrderID: "evt-1", Reason: "late failure"}); err != nil {
		test.Fatalf("payment failed: %v", err)
	}
	if fixture.store.mustOrder(test, "evt-1").Status != StatusPaid {
		test.Fatal("terminal PAID status must not be overwritten")
	}
	if fixture.publisher.count(events.TopicOrderFailed) != 0 {
		test.Fatal("no compensation for a paid order")
	}
}

type fixture struct {
	service     *Service
	store       *stubOrderStore
	addressBook *stubAddressBook
	publisher   *capturePublisher
}

func newFixture(test *testing.T) *fixture {
	test.Helper()
	store := &stubOrderStore{orders: make(map[string]Order)}
	addressBook := &stubAddressBook{snapshot: AddressSnapshot{
		OriginalAddressID: "addr-1",
		Street:            "742 Evergreen Terrace",
		City:              "Springfield",
		Country:           "US",
	}}
	publisher := &capturePublisher{}
	service, err := NewService(store, addressBook, publisher, func() int64 { return testNow }, nil)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return &fixture{service: service, store: store, addressBook: addressBook, publisher: publisher}
}

type stubOrderStore struct {
	orders      map[string]Order
	createCalls int
}

func (store *stubOrderStore) Create(ctx context.Context, newOrder Order) error {
	store.createCalls++
	if _, exists := store.orders[newOrder.OrderID]; exists {
		return ErrOrderExists
	}
	store.orders[newOrder.OrderID] = newOrder
	return nil
}

func (store *stubOrderStore) Get(ctx context.Context, orderID string) (Order, error) {
	existing, ok := store.orders[orderID]
	if !ok {
		return Order{}, ErrUnknownOrder
	}
	return existing, nil
}

func (store *stubOrderStore) UpdateStatus(ctx context.Context, orderID string, from Status, to Status) error {
	existing, ok := store.orders[orderID]
	if !ok || existing.Status != from {
		return ErrInvalidStatusTransition
	}
	existing.Status = to
	store.orders[orderID] = existing
	return nil
}

func (store *stubOrderStore) ListByUser(ctx context.Context, userID string, limit int) ([]Order, error) {
	var out []Order
	for _, existing := range store.orders {
		if existing.UserID == userID {
			out = append(out, existing)
		}
	}
	return out, nil
}

func (store *stubOrderStore) mustOrder(test *testing.T, orderID string) Order {
	test.Helper()
	existing, ok := store.orders[orderID]
	if !ok {
		test.Fatalf("order %s not found", orderID)
	}
	return existing
}

type stubAddressBook struct {
	snapshot AddressSnapshot
	err      error
}

func (book *stubAddressBook) Address(ctx context.Context, userID string, addressID string) (AddressSnapshot, error) {
	if book.err != nil {
		return AddressSnapshot{}, book.err
	}
	return book.snapshot, nil
}

type publishedEvent struct {
	topic   string
	payload any
}

type capturePublisher struct {
	published []publishedEvent
}

func (publisher *capturePublisher) Publish(ctx context.Context, topic string, key string, payload any) error {
	publisher.published = append(publisher.published, publishedEvent{topic: topic, payload: payload})
	return nil
}

func (publisher *capturePublisher) count(topic string) int {
	var total int
	for _, record := range publisher.published {
		if record.topic == topic {
			total++
		}
	}
	return total
}

func (publisher *capturePublisher) mustOnly(test *testing.T, topic string) any {
	test.Helper()
	var matches []any
	for _, record := range publisher.published {
		if record.topic == topic {
			matches = append(matches, record.payload)
		}
	}
	if len(matches) != 1 {
		test.Fatalf("expected exactly one %s event, got %d", topic, len(matches))
	}
	return matches[0]
}
