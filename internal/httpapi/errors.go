// Package httpapi exposes the services over HTTP and hosts the clients the
// services use to call each other.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MarkoPoloResearchLab/electroshop/internal/cart"
	"github.com/MarkoPoloResearchLab/electroshop/internal/order"
	"github.com/MarkoPoloResearchLab/electroshop/internal/payment"
	"github.com/MarkoPoloResearchLab/electroshop/pkg/stockledger"
)

// statusFromError maps domain errors onto HTTP status codes. Unrecognized
// errors collapse to 500 without leaking their message.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, stockledger.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, stockledger.ErrUnknownProduct),
		errors.Is(err, stockledger.ErrUnknownReservation),
		errors.Is(err, cart.ErrUnknownCart),
		errors.Is(err, cart.ErrUnknownCartItem),
		errors.Is(err, cart.ErrUnknownProduct),
		errors.Is(err, order.ErrUnknownOrder),
		errors.Is(err, payment.ErrUnknownPayment):
		return http.StatusNotFound
	case errors.Is(err, stockledger.ErrInvalidProductID),
		errors.Is(err, stockledger.ErrInvalidUserID),
		errors.Is(err, stockledger.ErrInvalidOrderID),
		errors.Is(err, stockledger.ErrInvalidReservationID),
		errors.Is(err, stockledger.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, cart.ErrReservationExpired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(ctx *gin.Context, err error) {
	status := statusFromError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	ctx.AbortWithStatusJSON(status, gin.H{"error": message})
}
