package service

import (
	"context"
	"errors"

	"travel-service/internal/models"
	"travel-service/internal/store"

	"github.com/shopspring/decimal"
)

type ListingStore interface {
	ListListings(ctx context.Context, maxPrice *decimal.Decimal) ([]models.Listing, error)
	GetListingByID(ctx context.Context, id int64) (*models.Listing, error)
	GetReviewsByListingID(ctx context.Context, listingID int64) ([]models.Review, error)
}

// ListingFilter narrows List. A nil MaxPrice means no price cap.
type ListingFilter struct {
	MaxPrice *decimal.Decimal
}

type ListingService struct {
	store ListingStore
}

func NewListingService(store ListingStore) *ListingService {
	return &ListingService{store: store}
}

func (s *ListingService) List(ctx context.Context, filter ListingFilter) ([]models.Listing, error) {
	return s.store.ListListings(ctx, filter.MaxPrice)
}

func (s *ListingService) Get(ctx context.Context, id int64) (*models.Listing, error) {
	listing, err := s.store.GetListingByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrListingNotFound
	}
	return listing, err
}

// GetReviews returns the reviews of an existing listing
func (s *ListingService) GetReviews(ctx context.Context, listingID int64) ([]models.Review, error) {
	if _, err := s.Get(ctx, listingID); err != nil {
		return nil, err
	}
	return s.store.GetReviewsByListingID(ctx, listingID)
}
