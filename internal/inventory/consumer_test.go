package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/electroshop/internal/events"
	"github.com/MarkoPoloResearchLab/electroshop/pkg/stockledger"
)

func TestOrderPlacedCommitsReservedStock(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test, 10)
	fixture.reserve(test, "user-1", "prod-1", 4)

	event := events.OrderPlacedEvent{
		OrderID: "order-1",
		UserID:  "user-1",
		Items:   []events.ItemPayload{{ProductID: "prod-1", Quantity: 4}},
	}
	if err := fixture.consumer.HandleOrderPlaced(context.Background(), event); err != nil {
		test.Fatalf("order placed: %v", err)
	}
	fixture.expectStock(test, "prod-1", 6, 0)

	if err := fixture.consumer.HandleOrderPlaced(context.Background(), event); err != nil {
		test.Fatalf("order placed redelivery: %v", err)
	}
	fixture.expectStock(test, "prod-1", 6, 0)
}

func TestOrderFailedReleasesReservedStock(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test, 10)
	fixture.reserve(test, "user-1", "prod-1", 4)

	event := events.OrderFailedEvent{
		OrderID: "order-1",
		UserID:  "user-1",
		Items:   []events.ItemPayload{{ProductID: "prod-1", Quantity: 4}},
		Reason:  "card declined",
	}
	if err := fixture.consumer.HandleOrderFailed(context.Background(), event); err != nil {
		test.Fatalf("order failed: %v", err)
	}
	fixture.expectStock(test, "prod-1", 10, 0)
}

func TestMalformedOrderEventIsDroppedNotRetried(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test, 10)

	event := events.OrderPlacedEvent{
		OrderID: "",
		UserID:  "user-1",
		Items:   []events.ItemPayload{{ProductID: "prod-1", Quantity: 4}},
	}
	if err := fixture.consumer.HandleOrderPlaced(context.Background(), event); err != nil {
		test.Fatalf("expected malformed event swallowed, got %v", err)
	}
	fixture.expectStock(test, "prod-1", 10, 0)
}

func TestProductEventsSeedAndOverwriteStock(test *testing.T) {
	test.Parallel()
	fixture := newFixture(test, 10)

	added := events.ProductAddedEvent{ProductID: "prod-2", Quantity: 30}
	if err := fixture.consumer.HandleProductAdded(context.Background(), added); err != nil {
		test.Fatalf("product added: %v", err)
	}
	fixture.expectStock(test, "prod-2", 30, 0)

	updated := events.ProductUpdatedEvent{ProductID: "prod-2", Quantity: 12}
	if err := fixture.consumer.HandleProductUpdated(context.Background(), updated); err != nil {
		test.Fatalf("product updated: %v", err)
	}
	fixture.expectStock(test, "prod-2", 12, 0)
}

type fixture struct {
	consumer *Consumer
	ledger   *memoryLedger
	service  *stockledger.Service
}

func newFixture(test *testing.T, available int64) *fixture {
	test.Helper()
	ledger := newMemoryLedger("prod-1", available)
	reservations := newMemoryReservationStore()
	service, err := stockledger.NewService(ledger, reservations, func() int64 { return 1_700_000_000 })
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	consumer, err := NewConsumer(service, nil)
	if err != nil {
		test.Fatalf("new consumer: %v", err)
	}
	return &fixture{consumer: consumer, ledger: ledger, service: service}
}

func (fixture *fixture) reserve(test *testing.T, userID string, productID string, quantity int64) {
	test.Helper()
	parsedProduct, err := stockledger.NewProductID(productID)
	if err != nil {
		test.Fatalf("product id: %v", err)
	}
	parsedUser, err := stockledger.NewUserID(userID)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	parsedQuantity, err := stockledger.NewQuantity(quantity)
	if err != nil {
		test.Fatalf("quantity: %v", err)
	}
	if _, err := fixture.service.Reserve(context.Background(), parsedProduct, parsedUser, parsedQuantity); err != nil {
		test.Fatalf("reserve: %v", err)
	}
}

func (fixture *fixture) expectStock(test *testing.T, productID string, available int64, reserved int64) {
	test.Helper()
	record, ok := fixture.ledger.records[productID]
	if !ok {
		test.Fatalf("stock record %s not found", productID)
	}
	if record.AvailableQty != available || record.ReservedQty != reserved {
		test.Fatalf("expected %s stock %d/%d, got %d/%d", productID, available, reserved, record.AvailableQty, record.ReservedQty)
	}
}

type memoryLedger struct {
	records   map[string]stockledger.StockRecord
	processed map[string]struct{}
}

func newMemoryLedger(productID string, available int64) *memoryLedger {
	ledger := &memoryLedger{
		records:   make(map[string]stockledger.StockRecord),
		processed: make(map[string]struct{}),
	}
	id, err := stockledger.NewProductID(productID)
	if err == nil {
		ledger.records[id.String()] = stockledger.StockRecord{ProductID: id, AvailableQty: available}
	}
	return ledger
}

func (ledger *memoryLedger) WithTx(ctx context.Context, fn func(ctx context.Context, txLedger stockledger.Ledger) error) error {
	return fn(ctx, ledger)
}

func (ledger *memoryLedger) GetStock(ctx context.Context, productID stockledger.ProductID) (stockledger.StockRecord, error) {
	record, ok := ledger.records[productID.String()]
	if !ok {
		return stockledger.StockRecord{}, stockledger.ErrUnknownProduct
	}
	return record, nil
}

func (ledger *memoryLedger) GetStockForUpdate(ctx context.Context, productID stockledger.ProductID) (stockledger.StockRecord, error) {
	return ledger.GetStock(ctx, productID)
}

func (ledger *memoryLedger) CreateStock(ctx context.Context, record stockledger.StockRecord) error {
	if _, exists := ledger.records[record.ProductID.String()]; exists {
		return stockledger.ErrProductExists
	}
	ledger.records[record.ProductID.String()] = record
	return nil
}

func (ledger *memoryLedger) SaveStock(ctx context.Context, record stockledger.StockRecord) error {
	if _, exists := ledger.records[record.ProductID.String()]; !exists {
		return stockledger.ErrUnknownProduct
	}
	ledger.records[record.ProductID.String()] = record
	return nil
}

func (ledger *memoryLedger) ListReservedProducts(ctx context.Context) ([]stockledger.ProductID, error) {
	var out []stockledger.ProductID
	for _, record := range ledger.records {
		if record.ReservedQty > 0 {
			out = append(out, record.ProductID)
		}
	}
	return out, nil
}

func (ledger *memoryLedger) MarkOrderProcessed(ctx context.Context, orderID stockledger.OrderID, action stockledger.OrderAction) error {
	key := orderID.String() + "/" + string(action)
	if _, exists := ledger.processed[key]; exists {
		return stockledger.ErrOrderAlreadyProcessed
	}
	ledger.processed[key] = struct{}{}
	return nil
}

type memoryReservationStore struct {
	entries map[string]stockledger.Reservation
}

func newMemoryReservationStore() *memoryReservationStore {
	return &memoryReservationStore{entries: make(map[string]stockledger.Reservation)}
}

func (store *memoryReservationStore) Put(ctx context.Context, reservation stockledger.Reservation, ttl time.Duration) error {
	store.entries[reservation.ID().String()] = reservation
	return nil
}

func (store *memoryReservationStore) Get(ctx context.Context, id stockledger.ReservationID) (stockledger.Reservation, error) {
	reservation, ok := store.entries[id.String()]
	if !ok {
		return stockledger.Reservation{}, stockledger.ErrUnknownReservation
	}
	return reservation, nil
}

func (store *memoryReservationStore) Delete(ctx context.Context, id stockledger.ReservationID) error {
	if _, ok := store.entries[id.String()]; !ok {
		return stockledger.ErrUnknownReservation
	}
	delete(store.entries, id.String())
	return nil
}

func (store *memoryReservationStore) ListByProduct(ctx context.Context, productID stockledger.ProductID) ([]stockledger.Reservation, error) {
	var out []stockledger.Reservation
	for _, reservation := range store.entries {
		if reservation.ID().ProductID() == productID {
			out = append(out, reservation)
		}
	}
	return out, nil
}
