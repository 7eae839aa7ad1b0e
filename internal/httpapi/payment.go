package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/electroshop/internal/payment"
)

// PaymentHandler exposes the gateway webhook and payment lookups.
type PaymentHandler struct {
	service *payment.Service
	logger  *zap.Logger
}

// NewPaymentHandler wires a PaymentHandler.
func NewPaymentHandler(service *payment.Service, logger *zap.Logger) *PaymentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentHandler{service: service, logger: logger}
}

// Register mounts the payment routes on the router group.
func (handler *PaymentHandler) Register(group *gin.RouterGroup) {
	group.POST("/webhooks/payment", handler.handleWebhook)
	group.GET("/orders/:orderId/payment", handler.handleGetByOrder)
}

// handleWebhook acknowledges only fully processed webhooks: any non-2xx
// response makes the gateway retry, which the settle-once store absorbs.
func (handler *PaymentHandler) handleWebhook(ctx *gin.Context) {
	body, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if err := handler.service.HandleWebhook(ctx.Request.Context(), body); err != nil {
		handler.logger.Warn("webhook rejected", zap.Error(err))
		abortWithError(ctx, err)
		return
	}
	ctx.Status(http.StatusOK)
}

func (handler *PaymentHandler) handleGetByOrder(ctx *gin.Context) {
	found, err := handler.service.GetByOrder(ctx.Request.Context(), ctx.Param("orderId"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"paymentId":   found.PaymentID,
		"orderId":     found.OrderID,
		"intentId":    found.IntentID,
		"amountCents": found.AmountCents,
		"status":      string(found.Status),
	})
}
