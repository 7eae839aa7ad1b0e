package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/electroshop/pkg/stockledger"
)

// InventoryHandler exposes the stock ledger over HTTP.
type InventoryHandler struct {
	service *stockledger.Service
	logger  *zap.Logger
}

// NewInventoryHandler wires an InventoryHandler.
func NewInventoryHandler(service *stockledger.Service, logger *zap.Logger) *InventoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryHandler{service: service, logger: logger}
}

// Register mounts the inventory routes on the router group.
func (handler *InventoryHandler) Register(group *gin.RouterGroup) {
	group.POST("/reservations", handler.handleReserve)
	group.PATCH("/reservations/:userId/:productId", handler.handleUpdateReservation)
	group.DELETE("/reservations/:userId/:productId", handler.handleCancelReservation)
	group.GET("/products/:productId/availability", handler.handleAvailability)
	group.POST("/products/:productId/stock", handler.handleAddStock)
	group.PUT("/products/:productId/stock", handler.handleSetStock)
}

type reserveRequest struct {
	ProductID string `json:"productId" binding:"required"`
	UserID    string `json:"userId" binding:"required"`
	Quantity  int64  `json:"quantity" binding:"required"`
}

type reservationResponse struct {
	ReservationID    string `json:"reservationId"`
	ProductID        string `json:"productId"`
	UserID           string `json:"userId"`
	Quantity         int64  `json:"quantity"`
	ExpiresAtUnixUTC int64  `json:"expiresAtUnixUtc"`
}

func (handler *InventoryHandler) handleReserve(ctx *gin.Context) {
	var request reserveRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	productID, err := stockledger.NewProductID(request.ProductID)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	userID, err := stockledger.NewUserID(request.UserID)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	quantity, err := stockledger.NewQuantity(request.Quantity)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	reservation, err := handler.service.Reserve(ctx.Request.Context(), productID, userID, quantity)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, reservationResponse{
		ReservationID:    reservation.ID().String(),
		ProductID:        productID.String(),
		UserID:           userID.String(),
		Quantity:         reservation.Quantity().Int64(),
		ExpiresAtUnixUTC: reservation.ExpiresAtUnixUTC(),
	})
}

type updateReservationRequest struct {
	Quantity int64 `json:"quantity" binding:"required"`
}

func (handler *InventoryHandler) handleUpdateReservation(ctx *gin.Context) {
	reservationID, ok := handler.reservationIDFromPath(ctx)
	if !ok {
		return
	}
	var request updateReservationRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	quantity, err := stockledger.NewQuantity(request.Quantity)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	reservation, err := handler.service.UpdateReservation(ctx.Request.Context(), reservationID, quantity)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, reservationResponse{
		ReservationID:    reservation.ID().String(),
		ProductID:        reservationID.ProductID().String(),
		UserID:           reservationID.UserID().String(),
		Quantity:         reservation.Quantity().Int64(),
		ExpiresAtUnixUTC: reservation.ExpiresAtUnixUTC(),
	})
}

func (handler *InventoryHandler) handleCancelReservation(ctx *gin.Context) {
	reservationID, ok := handler.reservationIDFromPath(ctx)
	if !ok {
		return
	}
	if err := handler.service.Cancel(ctx.Request.Context(), reservationID); err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *InventoryHandler) handleAvailability(ctx *gin.Context) {
	productID, err := stockledger.NewProductID(ctx.Param("productId"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	available, err := handler.service.Available(ctx.Request.Context(), productID)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"productId": productID.String(), "availableQty": available})
}

type stockRequest struct {
	Quantity int64 `json:"quantity" binding:"required"`
}

func (handler *InventoryHandler) handleAddStock(ctx *gin.Context) {
	handler.handleStockMutation(ctx, handler.service.AddStock)
}

func (handler *InventoryHandler) handleSetStock(ctx *gin.Context) {
	handler.handleStockMutation(ctx, handler.service.SetStock)
}

func (handler *InventoryHandler) handleStockMutation(ctx *gin.Context, mutate func(ctx context.Context, productID stockledger.ProductID, quantity stockledger.Quantity) error) {
	productID, err := stockledger.NewProductID(ctx.Param("productId"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	var request stockRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	quantity, err := stockledger.NewQuantity(request.Quantity)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	if err := mutate(ctx.Request.Context(), productID, quantity); err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *InventoryHandler) reservationIDFromPath(ctx *gin.Context) (stockledger.ReservationID, bool) {
	userID, err := stockledger.NewUserID(ctx.Param("userId"))
	if err != nil {
		abortWithError(ctx, err)
		return stockledger.ReservationID{}, false
	}
	productID, err := stockledger.NewProductID(ctx.Param("productId"))
	if err != nil {
		abortWithError(ctx, err)
		return stockledger.ReservationID{}, false
	}
	return stockledger.NewReservationID(userID, productID), true
}
