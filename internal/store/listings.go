package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"travel-service/internal/models"

	"github.com/shopspring/decimal"
)

// ListListings retrieves listings newest first, optionally capped by nightly price
func (s *Store) ListListings(ctx context.Context, maxPrice *decimal.Decimal) ([]models.Listing, error) {
	listings := []models.Listing{}
	if maxPrice != nil {
		err := s.db.SelectContext(ctx, &listings,
			"SELECT * FROM listings WHERE price_per_night <= $1 ORDER BY created_at DESC", *maxPrice)
		return listings, err
	}
	err := s.db.SelectContext(ctx, &listings, "SELECT * FROM listings ORDER BY created_at DESC")
	return listings, err
}

// GetListingByID retrieves a listing by ID
func (s *Store) GetListingByID(ctx context.Context, id int64) (*models.Listing, error) {
	var listing models.Listing
	err := s.db.GetContext(ctx, &listing, "SELECT * FROM listings WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("listing %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// GetReviewsByListingID retrieves all reviews for a listing
func (s *Store) GetReviewsByListingID(ctx context.Context, listingID int64) ([]models.Review, error) {
	reviews := []models.Review{}
	err := s.db.SelectContext(ctx, &reviews,
		"SELECT * FROM reviews WHERE listing_id = $1 ORDER BY created_at DESC", listingID)
	return reviews, err
}
