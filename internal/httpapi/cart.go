package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/electroshop/internal/cart"
)

// CartHandler exposes the cart service over HTTP. The user id travels in the
// path; authentication in front of this API is the deployment's concern.
type CartHandler struct {
	service *cart.Service
	logger  *zap.Logger
}

// NewCartHandler wires a CartHandler.
func NewCartHandler(service *cart.Service, logger *zap.Logger) *CartHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartHandler{service: service, logger: logger}
}

// Register mounts the cart routes on the router group.
func (handler *CartHandler) Register(group *gin.RouterGroup) {
	group.GET("/carts/:userId", handler.handleGet)
	group.POST("/carts/:userId/items", handler.handleAddItem)
	group.PATCH("/carts/:userId/items/:productId", handler.handleUpdateItem)
	group.DELETE("/carts/:userId/items/:productId", handler.handleRemoveItem)
	group.DELETE("/carts/:userId", handler.handleClear)
	group.POST("/carts/:userId/checkout", handler.handleCheckout)
}

func (handler *CartHandler) handleGet(ctx *gin.Context) {
	document, err := handler.service.Get(ctx.Request.Context(), ctx.Param("userId"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, cartResponse(document))
}

type addItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int64  `json:"quantity" binding:"required"`
}

func (handler *CartHandler) handleAddItem(ctx *gin.Context) {
	var request addItemRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	document, err := handler.service.AddItem(ctx.Request.Context(), ctx.Param("userId"), request.ProductID, request.Quantity)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, cartResponse(document))
}

type updateItemRequest struct {
	Quantity int64 `json:"quantity" binding:"required"`
}

func (handler *CartHandler) handleUpdateItem(ctx *gin.Context) {
	var request updateItemRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	document, err := handler.service.UpdateQuantity(ctx.Request.Context(), ctx.Param("userId"), ctx.Param("productId"), request.Quantity)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, cartResponse(document))
}

func (handler *CartHandler) handleRemoveItem(ctx *gin.Context) {
	document, err := handler.service.RemoveItem(ctx.Request.Context(), ctx.Param("userId"), ctx.Param("productId"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, cartResponse(document))
}

func (handler *CartHandler) handleClear(ctx *gin.Context) {
	if err := handler.service.Clear(ctx.Request.Context(), ctx.Param("userId")); err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

type checkoutRequest struct {
	Email     string `json:"email" binding:"required"`
	AddressID string `json:"addressId" binding:"required"`
}

func (handler *CartHandler) handleCheckout(ctx *gin.Context) {
	var request checkoutRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	orderID, err := handler.service.Checkout(ctx.Request.Context(), ctx.Param("userId"), request.Email, request.AddressID)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, gin.H{"orderId": orderID})
}

func cartResponse(document cart.Cart) gin.H {
	return gin.H{
		"userId":     document.UserID,
		"items":      document.Items,
		"totalCents": document.TotalCents(),
	}
}
