package stockledger

import "time"

const (
	operationReserve  = "reserve"
	operationUpdate   = "update_reservation"
	operationCancel   = "cancel"
	operationCommit   = "commit_order"
	operationRelease  = "release_order"
	operationAddStock = "add_stock"
	operationSetStock = "set_stock"
	operationSweep    = "sweep"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	reservationIDDelimiter = ":"

	// DefaultReservationTTL bounds how long an abandoned cart can hold stock.
	DefaultReservationTTL = 15 * time.Minute

	// DefaultSweepInterval is how often the sweeper reconciles orphaned holds.
	DefaultSweepInterval = 60 * time.Second
)
