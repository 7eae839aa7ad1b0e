package stockledger

import (
	"context"
	"fmt"
	"time"
)

// Sweeper restores ledger capacity stranded by reservations that expired in
// the store without a cancel or commit ever firing. It recomputes the live
// sum under the product row lock and only ever moves reserved to available,
// so it is safe to run alongside normal traffic.
type Sweeper struct {
	ledger       Ledger
	reservations ReservationStore
	interval     time.Duration
	logger       OperationLogger
}

// SweeperOption configures a Sweeper instance.
type SweeperOption func(*Sweeper)

// WithSweepInterval overrides the reconciliation interval.
func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(sweeper *Sweeper) {
		if interval > 0 {
			sweeper.interval = interval
		}
	}
}

// WithSweepLogger wires a logger that receives a callback per restored product.
func WithSweepLogger(logger OperationLogger) SweeperOption {
	return func(sweeper *Sweeper) {
		sweeper.logger = logger
	}
}

// NewSweeper wires a Sweeper.
func NewSweeper(ledger Ledger, reservations ReservationStore, options ...SweeperOption) (*Sweeper, error) {
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if reservations == nil {
		return nil, fmt.Errorf("%w: reservation store dependency is nil", ErrInvalidServiceConfig)
	}
	sweeper := &Sweeper{
		ledger:       ledger,
		reservations: reservations,
		interval:     DefaultSweepInterval,
	}
	for _, option := range options {
		if option != nil {
			option(sweeper)
		}
	}
	return sweeper, nil
}

// Run sweeps on the configured interval until the context is cancelled.
func (sweeper *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweeper.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := sweeper.RunOnce(ctx); err != nil && ctx.Err() == nil {
				sweeper.logSweep(ctx, ProductID{}, 0, err)
			}
		}
	}
}

// RunOnce reconciles every product currently carrying reserved capacity.
// A failure on one product does not stop the sweep of the others.
func (sweeper *Sweeper) RunOnce(ctx context.Context) error {
	productIDs, err := sweeper.ledger.ListReservedProducts(ctx)
	if err != nil {
		return WrapError(operationSweep, "ledger", "list_reserved", err)
	}
	var firstErr error
	for _, productID := range productIDs {
		if err := sweeper.sweepProduct(ctx, productID); err != nil {
			sweeper.logSweep(ctx, productID, 0, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (sweeper *Sweeper) sweepProduct(ctx context.Context, productID ProductID) error {
	var restored int64
	err := sweeper.ledger.WithTx(ctx, func(ctx context.Context, txLedger Ledger) error {
		record, err := txLedger.GetStockForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if record.ReservedQty <= 0 {
			return nil
		}
		// The live sum is recomputed under the row lock: a reserve or cancel
		// racing this sweep either completes before the lock is taken or
		// waits for it, so the sum cannot go stale between read and write.
		live, err := sweeper.reservations.ListByProduct(ctx, productID)
		if err != nil {
			return err
		}
		var liveSum int64
		for _, reservation := range live {
			liveSum += reservation.Quantity().Int64()
		}
		if liveSum >= record.ReservedQty {
			return nil
		}
		restored = record.ReservedQty - liveSum
		record.AvailableQty += restored
		record.ReservedQty = liveSum
		return saveChecked(ctx, txLedger, record)
	})
	if err != nil {
		return err
	}
	if restored > 0 {
		sweeper.logSweep(ctx, productID, restored, nil)
	}
	return nil
}

func (sweeper *Sweeper) logSweep(ctx context.Context, productID ProductID, restored int64, err error) {
	if sweeper.logger == nil {
		return
	}
	status := operationStatusOK
	if err != nil {
		status = operationStatusError
	}
	sweeper.logger.LogOperation(ctx, OperationLog{
		Operation: operationSweep,
		ProductID: productID,
		Quantity:  Quantity(restored),
		Status:    status,
		Error:     err,
	})
}
