package stockledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service contains the domain logic over a Ledger and a ReservationStore.
// It is the only writer of either: every other component calls these
// operations or reacts to the events they drive.
type Service struct {
	ledger         Ledger
	reservations   ReservationStore
	nowFn          func() int64
	reservationTTL time.Duration
	logger         OperationLogger
}

// NewService wires a Service.
func NewService(ledger Ledger, reservations ReservationStore, now func() int64, options ...ServiceOption) (*Service, error) {
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if reservations == nil {
		return nil, fmt.Errorf("%w: reservation store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		ledger:         ledger,
		reservations:   reservations,
		nowFn:          now,
		reservationTTL: DefaultReservationTTL,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Reserve moves quantity from available to reserved and writes a TTL-bound
// reservation for the user/product pair. Fails with ErrInsufficientStock and
// no mutation when availableQty is short; concurrent reserves on one product
// serialize on the ledger row lock.
func (service *Service) Reserve(ctx context.Context, productID ProductID, userID UserID, quantity Quantity) (Reservation, error) {
	reservationID := NewReservationID(userID, productID)
	var created Reservation
	operationError := service.ledger.WithTx(ctx, func(ctx context.Context, txLedger Ledger) error {
		record, err := txLedger.GetStockForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if record.AvailableQty < quantity.Int64() {
			return ErrInsufficientStock
		}
		record.AvailableQty -= quantity.Int64()
		record.ReservedQty += quantity.Int64()
		if err := saveChecked(ctx, txLedger, record); err != nil {
			return err
		}
		created, err = NewReservation(reservationID, quantity, service.expiresAt())
		if err != nil {
			return err
		}
		return service.reservations.Put(ctx, created, service.reservationTTL)
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationReserve,
		ProductID:     productID,
		UserID:        userID,
		ReservationID: &reservationID,
		Quantity:      quantity,
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return created, nil
}

// UpdateReservation changes the held quantity to newQuantity, applying only
// the delta to the ledger and refreshing the reservation TTL. A growing
// reservation needs availableQty >= delta or the call fails with no mutation.
func (service *Service) UpdateReservation(ctx context.Context, reservationID ReservationID, newQuantity Quantity) (Reservation, error) {
	var updated Reservation
	operationError := service.ledger.WithTx(ctx, func(ctx context.Context, txLedger Ledger) error {
		current, err := service.reservations.Get(ctx, reservationID)
		if err != nil {
			return err
		}
		delta := newQuantity.Int64() - current.Quantity().Int64()
		if delta != 0 {
			record, err := txLedger.GetStockForUpdate(ctx, reservationID.ProductID())
			if err != nil {
				return err
			}
			if delta > 0 {
				if record.AvailableQty < delta {
					return ErrInsufficientStock
				}
				record.AvailableQty -= delta
				record.ReservedQty += delta
			} else {
				toRelease := -delta
				record.AvailableQty += toRelease
				record.ReservedQty = saturatingSub(record.ReservedQty, toRelease)
			}
			if err := saveChecked(ctx, txLedger, record); err != nil {
				return err
			}
		}
		updated, err = NewReservation(reservationID, newQuantity, service.expiresAt())
		if err != nil {
			return err
		}
		return service.reservations.Put(ctx, updated, service.reservationTTL)
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationUpdate,
		ProductID:     reservationID.ProductID(),
		UserID:        reservationID.UserID(),
		ReservationID: &reservationID,
		Quantity:      newQuantity,
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return updated, nil
}

// Cancel releases a reservation, restoring its quantity to availableQty and
// deleting the store entry. Returns ErrUnknownReservation when the entry has
// already expired or been cancelled; best-effort callers treat that as benign.
func (service *Service) Cancel(ctx context.Context, reservationID ReservationID) error {
	var cancelled Quantity
	operationError := service.ledger.WithTx(ctx, func(ctx context.Context, txLedger Ledger) error {
		current, err := service.reservations.Get(ctx, reservationID)
		if err != nil {
			return err
		}
		cancelled = current.Quantity()
		record, err := txLedger.GetStockForUpdate(ctx, reservationID.ProductID())
		if err != nil {
			return err
		}
		record.AvailableQty += cancelled.Int64()
		record.ReservedQty = saturatingSub(record.ReservedQty, cancelled.Int64())
		if err := saveChecked(ctx, txLedger, record); err != nil {
			return err
		}
		if err := service.reservations.Delete(ctx, reservationID); err != nil && !errors.Is(err, ErrUnknownReservation) {
			return err
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationCancel,
		ProductID:     reservationID.ProductID(),
		UserID:        reservationID.UserID(),
		ReservationID: &reservationID,
		Quantity:      cancelled,
		Error:         operationError,
	})
	return operationError
}

// Available returns the sellable quantity for a product, zero when unknown.
func (service *Service) Available(ctx context.Context, productID ProductID) (int64, error) {
	record, err := service.ledger.GetStock(ctx, productID)
	if errors.Is(err, ErrUnknownProduct) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return record.AvailableQty, nil
}

// AddStock creates the stock record on first sight of a product and tops up
// availableQty on subsequent calls.
func (service *Service) AddStock(ctx context.Context, productID ProductID, quantity Quantity) error {
	operationError := service.ledger.WithTx(ctx, func(ctx context.Context, txLedger Ledger) error {
		record, err := txLedger.GetStockForUpdate(ctx, productID)
		if errors.Is(err, ErrUnknownProduct) {
			return txLedger.CreateStock(ctx, StockRecord{
				ProductID:    productID,
				AvailableQty: quantity.Int64(),
			})
		}
		if err != nil {
			return err
		}
		record.AvailableQty += quantity.Int64()
		return saveChecked(ctx, txLedger, record)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationAddStock,
		ProductID: productID,
		Quantity:  quantity,
		Error:     operationError,
	})
	return operationError
}

// SetStock overwrites availableQty, leaving reserved capacity untouched.
func (service *Service) SetStock(ctx context.Context, productID ProductID, quantity Quantity) error {
	operationError := service.ledger.WithTx(ctx, func(ctx context.Context, txLedger Ledger) error {
		record, err := txLedger.GetStockForUpdate(ctx, productID)
		if errors.Is(err, ErrUnknownProduct) {
			return txLedger.CreateStock(ctx, StockRecord{
				ProductID:    productID,
				AvailableQty: quantity.Int64(),
			})
		}
		if err != nil {
			return err
		}
		record.AvailableQty = quantity.Int64()
		return saveChecked(ctx, txLedger, record)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationSetStock,
		ProductID: productID,
		Quantity:  quantity,
		Error:     operationError,
	})
	return operationError
}

// CommitOrder retires reservation bookkeeping for a paid order: reservedQty
// drops by each ordered quantity (stock already left availableQty at reserve
// time). Exactly-once in effect: redelivery of the same order is a no-op.
func (service *Service) CommitOrder(ctx context.Context, orderID OrderID, userID UserID, lines []OrderLine) error {
	operationError := service.applyOrder(ctx, orderID, OrderActionCommit, lines, func(record *StockRecord, line OrderLine) {
		record.ReservedQty = saturatingSub(record.ReservedQty, line.Quantity.Int64())
	})
	if operationError == nil {
		service.dropOrderReservations(ctx, userID, lines)
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationCommit,
		UserID:    userID,
		OrderID:   &orderID,
		Error:     operationError,
	})
	return operationError
}

// ReleaseOrder is the compensating path for a failed order: each line's
// quantity moves from reserved back to available, exactly once per order.
func (service *Service) ReleaseOrder(ctx context.Context, orderID OrderID, userID UserID, lines []OrderLine) error {
	operationError := service.applyOrder(ctx, orderID, OrderActionRelease, lines, func(record *StockRecord, line OrderLine) {
		record.AvailableQty += line.Quantity.Int64()
		record.ReservedQty = saturatingSub(record.ReservedQty, line.Quantity.Int64())
	})
	if operationError == nil {
		service.dropOrderReservations(ctx, userID, lines)
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationRelease,
		UserID:    userID,
		OrderID:   &orderID,
		Error:     operationError,
	})
	return operationError
}

func (service *Service) applyOrder(ctx context.Context, orderID OrderID, action OrderAction, lines []OrderLine, apply func(*StockRecord, OrderLine)) error {
	return service.ledger.WithTx(ctx, func(ctx context.Context, txLedger Ledger) error {
		if err := txLedger.MarkOrderProcessed(ctx, orderID, action); err != nil {
			if errors.Is(err, ErrOrderAlreadyProcessed) {
				return nil
			}
			return err
		}
		for _, line := range lines {
			record, err := txLedger.GetStockForUpdate(ctx, line.ProductID)
			if err != nil {
				return err
			}
			apply(&record, line)
			if err := saveChecked(ctx, txLedger, record); err != nil {
				return err
			}
		}
		return nil
	})
}

// dropOrderReservations clears the store entries behind a finished order.
// Failures are tolerated: an entry may have expired already, and any stranded
// ledger capacity is the sweeper's job.
func (service *Service) dropOrderReservations(ctx context.Context, userID UserID, lines []OrderLine) {
	for _, line := range lines {
		reservationID := NewReservationID(userID, line.ProductID)
		if err := service.reservations.Delete(ctx, reservationID); err != nil && !errors.Is(err, ErrUnknownReservation) {
			service.logOperation(ctx, OperationLog{
				Operation:     operationCancel,
				ProductID:     line.ProductID,
				UserID:        userID,
				ReservationID: &reservationID,
				Status:        operationStatusError,
				Error:         err,
			})
		}
	}
}

func (service *Service) expiresAt() int64 {
	return service.nowFn() + int64(service.reservationTTL.Seconds())
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

// saveChecked persists a stock record after verifying the write cannot drive
// either counter negative. A violation halts the mutation with ErrLedgerInvariant.
func saveChecked(ctx context.Context, txLedger Ledger, record StockRecord) error {
	if record.AvailableQty < 0 || record.ReservedQty < 0 {
		return WrapError("ledger", "stock", "negative_counter",
			fmt.Errorf("%w: product %s available=%d reserved=%d", ErrLedgerInvariant, record.ProductID.String(), record.AvailableQty, record.ReservedQty))
	}
	return txLedger.SaveStock(ctx, record)
}

func saturatingSub(value int64, sub int64) int64 {
	if sub >= value {
		return 0
	}
	return value - sub
}
