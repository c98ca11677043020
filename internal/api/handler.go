package api

import (
	"context"
	"net/http"
	"time"

	"travel-service/internal/models"
	"travel-service/internal/service"
	"travel-service/internal/store"
	"travel-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PaymentService is satisfied by *service.PaymentOrchestrator
type PaymentService interface {
	Initiate(ctx context.Context, bookingID int64) (*service.InitiateResult, error)
	Verify(ctx context.Context, txRef string) (*service.VerifyResult, error)
}

// BookingService is satisfied by *service.BookingService
type BookingService interface {
	Create(ctx context.Context, userID int64, req *service.CreateBookingRequest) (*models.Booking, error)
	List(ctx context.Context, filter store.BookingFilter) ([]models.Booking, error)
	Get(ctx context.Context, id int64) (*models.Booking, error)
	Update(ctx context.Context, id int64, req *service.UpdateBookingRequest, partial bool) (*models.Booking, error)
	Delete(ctx context.Context, id int64) error
}

// ListingService is satisfied by *service.ListingService
type ListingService interface {
	List(ctx context.Context, filter service.ListingFilter) ([]models.Listing, error)
	Get(ctx context.Context, id int64) (*models.Listing, error)
	GetReviews(ctx context.Context, listingID int64) ([]models.Review, error)
}

// Pinger reports whether a backing dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the router beyond its services
type Options struct {
	JWTSecret   string
	FrontendURL string
}

// Handler contains HTTP handlers
type Handler struct {
	payments PaymentService
	bookings BookingService
	listings ListingService
	db       Pinger
	opts     Options
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(payments PaymentService, bookings BookingService, listings ListingService, db Pinger, opts Options) *Handler {
	return &Handler{
		payments: payments,
		bookings: bookings,
		listings: listings,
		db:       db,
		opts:     opts,
		logger:   util.GetLogger().Named("http"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(h.opts.FrontendURL))
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/listings", h.listListings)
		v1.GET("/listings/:id", h.getListing)
		v1.GET("/listings/:id/reviews", h.getListingReviews)

		v1.GET("/payments/verify", h.verifyPayment)
		v1.GET("/payments/callback", h.paymentCallback)

		authed := v1.Group("")
		authed.Use(authMiddleware(h.opts.JWTSecret))
		{
			authed.POST("/payments/initiate", h.initiatePayment)

			authed.POST("/bookings", h.createBooking)
			authed.GET("/bookings", h.listBookings)
			authed.GET("/bookings/:id", h.getBooking)
			authed.PUT("/bookings/:id", h.updateBooking)
			authed.PATCH("/bookings/:id", h.patchBooking)
			authed.DELETE("/bookings/:id", h.deleteBooking)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when the database answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("Readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}
