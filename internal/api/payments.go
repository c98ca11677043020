package api

import (
	"errors"
	"net/http"

	"travel-service/internal/service"

	"github.com/gin-gonic/gin"
)

type initiatePaymentRequest struct {
	BookingID int64 `json:"booking_id"`
}

// initiatePayment opens a gateway checkout for a booking
func (h *Handler) initiatePayment(c *gin.Context) {
	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.BookingID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "booking_id is required"})
		return
	}

	res, err := h.payments.Initiate(c.Request.Context(), req.BookingID)
	if errors.Is(err, service.ErrIntegrationFailure) {
		h.integrationFailure(c, err, "Network error with Chapa")
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// verifyPayment is called by the client after returning from checkout
func (h *Handler) verifyPayment(c *gin.Context) {
	h.verify(c, c.Query("tx_ref"))
}

// paymentCallback is called by the gateway; it sends trx_ref, some clients send tx_ref
func (h *Handler) paymentCallback(c *gin.Context) {
	txRef := c.Query("trx_ref")
	if txRef == "" {
		txRef = c.Query("tx_ref")
	}
	h.verify(c, txRef)
}

func (h *Handler) verify(c *gin.Context, txRef string) {
	if txRef == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tx_ref is required"})
		return
	}

	res, err := h.payments.Verify(c.Request.Context(), txRef)
	if errors.Is(err, service.ErrIntegrationFailure) {
		h.integrationFailure(c, err, "Verification failed due to external error")
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	if res.Pending {
		c.JSON(http.StatusAccepted, gin.H{"status": "Payment pending"})
		return
	}
	if !res.Verified {
		c.JSON(http.StatusBadRequest, gin.H{"status": "Payment verification failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Payment verified and updated"})
}
