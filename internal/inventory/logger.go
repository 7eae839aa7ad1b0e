package inventory

import (
	"context"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/electroshop/pkg/stockledger"
)

// ZapOperationLogger adapts a zap logger onto the ledger's operation callback.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger wraps a zap logger.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	return &ZapOperationLogger{logger: logger}
}

func (operationLogger *ZapOperationLogger) LogOperation(ctx context.Context, entry stockledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if entry.ProductID.String() != "" {
		fields = append(fields, zap.String("productId", entry.ProductID.String()))
	}
	if entry.UserID.String() != "" {
		fields = append(fields, zap.String("userId", entry.UserID.String()))
	}
	if entry.ReservationID != nil {
		fields = append(fields, zap.String("reservationId", entry.ReservationID.String()))
	}
	if entry.OrderID != nil {
		fields = append(fields, zap.String("orderId", entry.OrderID.String()))
	}
	if entry.Quantity > 0 {
		fields = append(fields, zap.Int64("quantity", entry.Quantity.Int64()))
	}
	if entry.Error != nil {
		operationLogger.logger.Warn("ledger operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	operationLogger.logger.Info("ledger operation", fields...)
}
