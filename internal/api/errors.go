package api

import (
	"errors"
	"net/http"
	"strings"

	"travel-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// errorStatus maps service errors to an HTTP status and client message
func errorStatus(err error) (int, string) {
	var declined *service.DeclinedError
	var rejection *service.RejectionError

	switch {
	case errors.As(err, &declined):
		return http.StatusBadRequest, declined.Message
	case errors.As(err, &rejection):
		return http.StatusBadRequest, rejection.Reason
	case errors.Is(err, service.ErrBookingNotFound):
		return http.StatusNotFound, "Booking not found"
	case errors.Is(err, service.ErrPaymentNotFound):
		return http.StatusNotFound, "Transaction not found in system"
	case errors.Is(err, service.ErrListingNotFound):
		return http.StatusNotFound, "Listing not found"
	case errors.Is(err, service.ErrAlreadyPaid):
		return http.StatusBadRequest, "Payment already completed"
	case errors.Is(err, service.ErrPaymentAttemptClosed):
		return http.StatusBadRequest, "Payment attempt already failed"
	case errors.Is(err, service.ErrBookingConfirmed):
		return http.StatusBadRequest, "Cannot delete a confirmed booking."
	case errors.Is(err, service.ErrBookingHasPayment):
		return http.StatusBadRequest, "Cannot delete a booking with payment history."
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, strings.TrimPrefix(err.Error(), service.ErrInvalidRequest.Error()+": ")
	case errors.Is(err, service.ErrInitiationInProgress):
		return http.StatusConflict, "Payment initiation already in progress"
	case errors.Is(err, service.ErrIntegrationFailure):
		return http.StatusInternalServerError, "Payment gateway error"
	}
	return http.StatusInternalServerError, "Internal server error"
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": msg})
}

func (h *Handler) integrationFailure(c *gin.Context, err error, msg string) {
	h.logger.Error("Payment gateway call failed",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
