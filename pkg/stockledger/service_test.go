package stockledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReserveMovesAvailableToReserved(test *testing.T) {
	test.Parallel()
	ledger, reservations := newStubLedger(test, "prod-1", 10), newStubReservationStore()
	service := mustNewService(test, ledger, reservations)
	productID := mustProductID(test, "prod-1")
	userID := mustUserID(test, "user-1")

	created, err := service.Reserve(context.Background(), productID, userID, mustQuantity(test, 4))
	if err != nil {
		test.Fatalf("reserve: %v", err)
	}
	if got := created.ID().String(); got != "user-1:prod-1" {
		test.Fatalf("unexpected reservation id %q", got)
	}
	ledger.expectStock(test, "prod-1", 6, 4)
	reservation := reservations.mustEntry(test, created.ID())
	if reservation.Quantity() != 4 {
		test.Fatalf("expected held quantity 4, got %d", reservation.Quantity())
	}
	if reservation.ExpiresAtUnixUTC() != 1_700_000_000+int64((15*time.Minute).Seconds()) {
		test.Fatalf("unexpected expiry %d", reservation.ExpiresAtUnixUTC())
	}
}

func TestReserveInsufficientStockLeavesLedgerUntouched(test *testing.T) {
	test.Parallel()
	ledger, reservations := newStubLedger(test, "prod-1", 3), newStubReservationStore()
	service := mustNewService(test, ledger, reservations)

	_, err := service.Reserve(context.Background(), mustProductID(test, "prod-1"), mustUserID(test, "user-1"), mustQuantity(test, 5))
	if !errors.Is(err, ErrInsufficientStock) {
		test.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	ledger.expectStock(test, "prod-1", 3, 0)
	if len(reservations.entries) != 0 {
		test.Fatalf("expected no reservation entries, got %d", len(reservations.entries))
	}
}

func TestReserveUnknownProduct(test *testing.T) {
	test.Parallel()
	ledger, reservations := newStubLedger(test, "prod-1", 3), newStubReservationStore()
	service := mustNewService(test, ledger, reservations)

	_, err := service.Reserve(context.Background(), mustProductID(test, "ghost"), mustUserID(test, "user-1"), mustQuantity(test, 1))
	if !errors.Is(err, ErrUnknownProduct) {
		test.Fatalf("expected ErrUnknownProduct, got %v", err)
	}
}

func TestCancelRestoresPreReserveAvailability(test *testing.T) {
	test.Parallel()
	ledger, reservations := newStubLedger(test, "prod-1", 10), newStubReservationStore()
	service := mustNewService(test, ledger, reservations)
	productID := mustProductID(test, "prod-1")
	userID := mustUserID(test, "user-1")

	created, err := service.Reserve(context.Background(), productID, userID, mustQuantity(test, 7))
	if err != nil {
		test.Fatalf("reserve: %v", err)
	}
	if err := service.Cancel(context.Background(), created.ID()); err != nil {
		test.Fatalf("cancel: %v", err)
	}
	ledger.expectStock(test, "prod-1", 10, 0)
	if _, err := service.reservations.Get(context.Background(), created.ID()); !errors.Is(err, ErrUnknownReservation) {
		test.Fatalf("expected reservation gone, got %v", err)
	}
}

func TestCancelMissingReservationIsNotFound(test *testing.T) {
	test.Parallel()
	ledger, reservations := newStubLedger(test, "prod-1", 10), newStubReservationStore()
	service := mustNewService(test, ledger, reservations)

	reservationID := NewReservationID(mustUserID(test, "user-1"), mustProductID(test, "prod-1"))
	err := service.Cancel(context.Background(), reservationID)
	if !errors.Is(err, ErrUnknownReservation) {
		test.Fatalf("expected ErrUnknownReservation, got %v", err)
	}
	ledger.expectStock(test, "prod-1", 10, 0)
}

func TestUpdateReservationAppliesDeltaAtomically(test *testing.T) {
	test.Parallel()
	ledger, reservations := newStubLedger(test, "prod-1", 10), newStubReservationStore()
	service := mustNewService(test, ledger, reservations)
	productID := mustProductID(test, "prod-1")
	userID := mustUserID(test, "user-1")

	created, err := service.Reserve(context.Background(), productID, userID, mustQuantity(test, 4))
	if err != nil {
		test.Fatalf("reserve: %v", err)
	}
	ledger.expectStock(test, "prod-1", 6, 4)

	updated, err := service.UpdateReservation(context.Background(), created.ID(), mustQuantity(test, 6))
	if err != nil {
		test.Fatalf("update: %v", err)
	}
	if updated.Quantity() != 6 {
		test.Fatalf("expected reserved quantity 6, got %d", updated.Quantity())
	}
	ledger.expectStock(test, "prod-1", 4, 6)

	// Shrinking releases capacity.
	if _, err := service.UpdateReservation(context.Background(), created.ID(), mustQuantity(test, 2)); err != nil {
		test.Fatalf("update shrink: %v", err)
	}
	ledger.expectStock(test, "prod-1", 8, 2)
}

func TestUpdateReservationGrowthRequiresAvailability(test *testing.T) {
	test.Parallel()
	ledger, reservations := newStubLedger(test, "prod-1", 5), newStubReservationStore()
	service := mustNewService(test, ledger, reservations)

	created, err := service.Reserve(context.Background(), mustProductID(test, "prod-1"), mustUserID(test, "user-1"), mustQuantity(test, 4))
	if err != nil {
		test.Fatalf("reserve: %v", err)
	}
	_, err = service.UpdateReservation(context.Background(), created.ID(), mustQuantity(test, 8))
	if !errors.Is(err, ErrInsufficientStock) {
		test.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	ledger.expectStock(test, "prod-1", 1, 4)
	if got := reservations.mustEntry(test, created.ID()).Quantity(); got != 4 {
		test.Fatalf("expected reservation unchanged at 4, got %d", got)
	}
}

func TestUpdateReservationExpiredEntry(test *testing.T) {
	test.Parallel()
	ledger, reservations := newStubLedger(test, "prod-1", 5), newStubReservationStore()
	service := mustNewService(test, ledger, reservations)

	reservationID := NewReservationID(mustUserID(test, "user-1"), mustProductID(test, "prod-1"))
	_, err := service.UpdateReservation(context.Background(), reservationID, mustQuantity(test, 2))
	if !errors.Is(err, ErrUnknownReservation) {
		test.Fatalf("expected ErrUnknownReservation, got %v", err)
	}
}

func TestReserveUpdateCancelTrace(test *testing.T) {
	test.Parallel()
	ledger, reservations := newStubLedger(test, "prod-1", 10), newStubReservationStore()
	service := mustNewService(test, ledger, reservations)
	productID := mustProductID(test, "prod-1")
	userID := mustUserID(test, "user-1")

	created, err := service.Reserve(context.Background(), productID, userID, mustQuantity(test, 4))
	if err != nil {
		test.Fatalf("reserve: %v", err)
	}
	ledger.expectStock(test, "prod-1", 6, 4)

	if _, err := service.UpdateReservation(context.Background(), created.ID(), mustQuantity(test, 6)); err != nil {
		test.Fatalf("update: %v", err)
	}
	ledger.expectStock(test, "prod-1", 4, 6)

	if err := service.Cancel(context.Background(), created.ID()); err != nil {
		test.Fatalf("cancel: %v", err)
	}
	ledger.expectStock(test, "prod-1", 10, 0)
}

func TestTotalStockIsConservedAcrossOperations(test *testing.T) {
	test.Parallel()
	ledger, reservations := newStubLedger(test, "prod-1", 20), newStubReservationStore()
	service := mustNewService(test, ledger, reservations)
	productID := mustProductID(test, "prod-1")

	first, err := service.Reserve(context.Background(), productID, mustUserID(test, "user-1"), mustQuantity(test, 5))
	if err != nil {
		test.Fatalf("reserve first: %v", err)
	}
	second, err := service.Reserve(context.Background(), productID, mustUserID(test, "user-2"), mustQuantity(test, 8))
	if err != nil {
		test.Fatalf("reserve second: %v", err)
	}
	if _, err := service.UpdateReservation(context.Background(), first.ID(), mustQuantity(test, 2)); err != nil {
		test.Fatalf("update: %v", err)
	}
	if err := service.Cancel(context.Background(), second.ID()); err != nil {
		test.Fatalf("cancel: %v", err)
	}

	record := ledger.mustStock(test, "prod-1")
	if total := record.AvailableQty + record.ReservedQty; total != 20 {
		test.Fatalf("expected conserved total 20, got %d (available=%d reserved=%d)", total, record.AvailableQty, record.ReservedQty)
	}
}

func TestAvailableReturnsZeroForUnknownProduct(test *testing.T) {
	test.Parallel()
	ledger, reservations := newStubLedger(test, "prod-1", 10), newStubReservationStore()
	service := mustNewService(test, ledger, reservations)

	available, err := service.Available(context.Background(), mustProductID(test, "ghost"))
	if err != nil {
		test.Fatalf("available: %v", err)
	}
	if available != 0 {
		test.Fatalf("expected 0 for unknown product, got %d", available)
	}
}

func TestAddStockCreatesAndTopsUp(test *testing.T) {
	test.Parallel()
	ledger, reservations := newStubLedger(test, "prod-1", 10), newStubReservationStore()
	service := mustNewService(test, ledger, reservations)

	if err := service.AddStock(context.Background(), mustProductID(test, "prod-2"), mustQuantity(test, 30)); err != nil {
		test.Fatalf("add stock create: %v", err)
	}
	ledger.expectStock(test, "prod-2", 30, 0)

	if err := service.AddStock(context.Background(), mustProductID(test, "prod-2"), mustQuantity(test, 5)); err != nil {
		test.Fatalf("add stock top-up: %v", err)
	}
	ledger.expectStock(test, "prod-2", 35, 0)
}

func TestSetStockOverwritesAvailableOnly(test *testing.T) {
	test.Parallel()
	ledger, reservations := newStubLedger(test, "prod-1", 10), newStubReservationStore()
	service := mustNewService(test, ledger, reservations)
	productID := mustProductID(test, "prod-1")

	if _, err := service.Reserve(context.Background(), productID, mustUserID(test, "user-1"), mustQuantity(test, 4)); err != nil {
		test.Fatalf("reserve: %v", err)
	}
	if err := service.SetStock(context.Background(), productID, mustQuantity(test, 50)); err != nil {
		test.Fatalf("set stock: %v", err)
	}
	ledger.expectStock(test, "prod-1", 50, 4)
}

func TestCommitOrderRetiresReservedExactlyOnce(test *testing.T) {
	test.Parallel()
	ledger, reservations := newStubLedger(test, "prod-1", 10), newStubReservationStore()
	service := mustNewService(test, ledger, reservations)
	productID := mustProductID(test, "prod-1")
	userID := mustUserID(test, "user-1")

	if _, err := service.Reserve(context.Background(), productID, userID, mustQuantity(test, 4)); err != nil {
		test.Fatalf("reserve: %v", err)
	}
	orderID := mustOrderID(test, "order-1")
	lines := []OrderLine{{ProductID: productID, Quantity: mustQuantity(test, 4)}}

	if err := service.CommitOrder(context.Background(), orderID, userID, lines); err != nil {
		test.Fatalf("commit: %v", err)
	}
	ledger.expectStock(test, "prod-1", 6, 0)

	// Redelivery of the same order must not double-decrement.
	if err := service.CommitOrder(context.Background(), orderID, userID, lines); err != nil {
		test.Fatalf("commit redelivery: %v", err)
	}
	ledger.expectStock(test, "prod-1", 6, 0)
}

func TestReleaseOrderRestoresStockExactlyOnce(test *testing.T) {
	test.Parallel()
	ledger, reservations := newStubLedger(test, "prod-1", 10), newStubReservationStore()
	service := mustNewService(test, ledger, reservations)
	productID := mustProductID(test, "prod-1")
	userID := mustUserID(test, "user-1")

	if _, err := service.Reserve(context.Background(), productID, userID, mustQuantity(test, 4)); err != nil {
		test.Fatalf("reserve: %v", err)
	}
	orderID := mustOrderID(test, "order-1")
	lines := []OrderLine{{ProductID: productID, Quantity: mustQuantity(test, 4)}}

	if err := service.ReleaseOrder(context.Background(), orderID, userID, lines); err != nil {
		test.Fatalf("release: %v", err)
	}
	ledger.expectStock(test, "prod-1", 10, 0)

	if err := service.ReleaseOrder(context.Background(), orderID, userID, lines); err != nil {
		test.Fatalf("release redelivery: %v", err)
	}
	ledger.expectStock(test, "prod-1", 10, 0)
}

func TestCommitAndReleaseAreDistinctActions(test *testing.T) {
	test.Parallel()
	ledger, reservations := newStubLedger(test, "prod-1", 10), newStubReservationStore()
	service := mustNewService(test, ledger, reservations)
	productID := mustProductID(test, "prod-1")
	userID := mustUserID(test, "user-1")
	orderID := mustOrderID(test, "order-1")
	lines := []OrderLine{{ProductID: productID, Quantity: mustQuantity(test, 4)}}

	if _, err := service.Reserve(context.Background(), productID, userID, mustQuantity(test, 4)); err != nil {
		test.Fatalf("reserve: %v", err)
	}
	if err := service.CommitOrder(context.Background(), orderID, userID, lines); err != nil {
		test.Fatalf("commit: %v", err)
	}
	// A release for the same order id is a separate action and still applies.
	if err := service.ReleaseOrder(context.Background(), orderID, userID, lines); err != nil {
		test.Fatalf("release: %v", err)
	}
	ledger.expectStock(test, "prod-1", 10, 0)
}

func TestNewServiceRequiresDependencies(test *testing.T) {
	test.Parallel()
	reservations := newStubReservationStore()
	clock := func() int64 { return 0 }
	if _, err := NewService(nil, reservations, clock); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config error, got %v", err)
	}
	ledger := newStubLedger(test, "prod-1", 1)
	if _, err := NewService(ledger, nil, clock); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config error, got %v", err)
	}
	if _, err := NewService(ledger, reservations, nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config error, got %v", err)
	}
}

type stubLedger struct {
	records   map[string]StockRecord
	processed map[string]struct{}
}

func newStubLedger(test *testing.T, productID string, available int64) *stubLedger {
	test.Helper()
	ledger := &stubLedger{
		records:   make(map[string]StockRecord),
		processed: make(map[string]struct{}),
	}
	id := mustProductID(test, productID)
	ledger.records[id.String()] = StockRecord{ProductID: id, AvailableQty: available}
	return ledger
}

func (ledger *stubLedger) WithTx(ctx context.Context, fn func(ctx context.Context, txLedger Ledger) error) error {
	return fn(ctx, ledger)
}

func (ledger *stubLedger) GetStock(ctx context.Context, productID ProductID) (StockRecord, error) {
	record, ok := ledger.records[productID.String()]
	if !ok {
		return StockRecord{}, ErrUnknownProduct
	}
	return record, nil
}

func (ledger *stubLedger) GetStockForUpdate(ctx context.Context, productID ProductID) (StockRecord, error) {
	return ledger.GetStock(ctx, productID)
}

func (ledger *stubLedger) CreateStock(ctx context.Context, record StockRecord) error {
	if _, exists := ledger.records[record.ProductID.String()]; exists {
		return ErrProductExists
	}
	ledger.records[record.ProductID.String()] = record
	return nil
}

func (ledger *stubLedger) SaveStock(ctx context.Context, record StockRecord) error {
	if _, exists := ledger.records[record.ProductID.String()]; !exists {
		return ErrUnknownProduct
	}
	ledger.records[record.ProductID.String()] = record
	return nil
}

func (ledger *stubLedger) ListReservedProducts(ctx context.Context) ([]ProductID, error) {
	var out []ProductID
	for _, record := range ledger.records {
		if record.ReservedQty > 0 {
			out = append(out, record.ProductID)
		}
	}
	return out, nil
}

func (ledger *stubLedger) MarkOrderProcessed(ctx context.Context, orderID OrderID, action OrderAction) error {
	key := orderID.String() + "/" + string(action)
	if _, exists := ledger.processed[key]; exists {
		return ErrOrderAlreadyProcessed
	}
	ledger.processed[key] = struct{}{}
	return nil
}

func (ledger *stubLedger) mustStock(test *testing.T, productID string) StockRecord {
	test.Helper()
	record, ok := ledger.records[productID]
	if !ok {
		test.Fatalf("stock record %s not found", productID)
	}
	return record
}

func (ledger *stubLedger) expectStock(test *testing.T, productID string, available int64, reserved int64) {
	test.Helper()
	record := ledger.mustStock(test, productID)
	if record.AvailableQty != available || record.ReservedQty != reserved {
		test.Fatalf("expected %s stock %d/%d, got %d/%d", productID, available, reserved, record.AvailableQty, record.ReservedQty)
	}
}

type stubReservationStore struct {
	entries map[string]Reservation
}

func newStubReservationStore() *stubReservationStore {
	return &stubReservationStore{entries: make(map[string]Reservation)}
}

func (store *stubReservationStore) Put(ctx context.Context, reservation Reservation, ttl time.Duration) error {
	store.entries[reservation.ID().String()] = reservation
	return nil
}

func (store *stubReservationStore) Get(ctx context.Context, id ReservationID) (Reservation, error) {
	reservation, ok := store.entries[id.String()]
	if !ok {
		return Reservation{}, ErrUnknownReservation
	}
	return reservation, nil
}

func (store *stubReservationStore) Delete(ctx context.Context, id ReservationID) error {
	if _, ok := store.entries[id.String()]; !ok {
		return ErrUnknownReservation
	}
	delete(store.entries, id.String())
	return nil
}

func (store *stubReservationStore) ListByProduct(ctx context.Context, productID ProductID) ([]Reservation, error) {
	var out []Reservation
	for _, reservation := range store.entries {
		if reservation.ID().ProductID() == productID {
			out = append(out, reservation)
		}
	}
	return out, nil
}

func (store *stubReservationStore) expire(id ReservationID) {
	delete(store.entries, id.String())
}

func (store *stubReservationStore) mustEntry(test *testing.T, id ReservationID) Reservation {
	test.Helper()
	reservation, ok := store.entries[id.String()]
	if !ok {
		test.Fatalf("reservation %s not found", id.String())
	}
	return reservation
}

func mustNewService(test *testing.T, ledger Ledger, reservations ReservationStore) *Service {
	test.Helper()
	service, err := NewService(ledger, reservations, func() int64 { return 1_700_000_000 })
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustProductID(test *testing.T, raw string) ProductID {
	test.Helper()
	value, err := NewProductID(raw)
	if err != nil {
		test.Fatalf("product id: %v", err)
	}
	return value
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	value, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return value
}

func mustOrderID(test *testing.T, raw string) OrderID {
	test.Helper()
	value, err := NewOrderID(raw)
	if err != nil {
		test.Fatalf("order id: %v", err)
	}
	return value
}

func mustQuantity(test *testing.T, raw int64) Quantity {
	test.Helper()
	value, err := NewQuantity(raw)
	if err != nil {
		test.Fatalf("quantity: %v", err)
	}
	return value
}
