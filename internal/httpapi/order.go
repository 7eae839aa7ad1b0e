package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/electroshop/internal/order"
)

const defaultOrderListLimit = 20

// OrderHandler exposes read access to orders.
type OrderHandler struct {
	service *order.Service
	logger  *zap.Logger
}

// NewOrderHandler wires an OrderHandler.
func NewOrderHandler(service *order.Service, logger *zap.Logger) *OrderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderHandler{service: service, logger: logger}
}

// Register mounts the order routes on the router group.
func (handler *OrderHandler) Register(group *gin.RouterGroup) {
	group.GET("/orders/:orderId", handler.handleGet)
	group.GET("/users/:userId/orders", handler.handleList)
}

func (handler *OrderHandler) handleGet(ctx *gin.Context) {
	found, err := handler.service.Get(ctx.Request.Context(), ctx.Param("orderId"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, orderResponse(found))
}

func (handler *OrderHandler) handleList(ctx *gin.Context) {
	limit := defaultOrderListLimit
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	orders, err := handler.service.ListByUser(ctx.Request.Context(), ctx.Param("userId"), limit)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	response := make([]gin.H, 0, len(orders))
	for _, found := range orders {
		response = append(response, orderResponse(found))
	}
	ctx.JSON(http.StatusOK, gin.H{"orders": response})
}

func orderResponse(found order.Order) gin.H {
	return gin.H{
		"orderId":          found.OrderID,
		"userId":           found.UserID,
		"email":            found.Email,
		"status":           string(found.Status),
		"totalCents":       found.TotalCents,
		"items":            found.Items,
		"shippingAddress":  found.ShippingAddress,
		"createdAtUnixUtc": found.CreatedAtUnixUTC,
	}
}
