package api

import (
	"net/http"

	"travel-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (h *Handler) listListings(c *gin.Context) {
	var filter service.ListingFilter
	if raw := c.Query("max_price"); raw != "" {
		maxPrice, err := decimal.NewFromString(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid max_price"})
			return
		}
		filter.MaxPrice = &maxPrice
	}

	listings, err := h.listings.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listings)
}

func (h *Handler) getListing(c *gin.Context) {
	id, ok := parseID(c, "listing")
	if !ok {
		return
	}

	listing, err := h.listings.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

func (h *Handler) getListingReviews(c *gin.Context) {
	id, ok := parseID(c, "listing")
	if !ok {
		return
	}

	reviews, err := h.listings.GetReviews(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, reviews)
}
