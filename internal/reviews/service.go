package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bazaar-labs/bazaar-api/internal/catalog"
)

type storeAPI interface {
	Create(ctx context.Context, rv Review) (Review, error)
	ListByProduct(ctx context.Context, productID uuid.UUID, limit, offset int32) ([]Review, error)
	StatsByProduct(ctx context.Context, productID uuid.UUID) (Stats, error)
	Delete(ctx context.Context, userID, reviewID uuid.UUID) error
}

type productGetter interface {
	GetProduct(ctx context.Context, id uuid.UUID) (catalog.Product, error)
}

// Service enforces rating bounds and product existence around the store.
type Service struct {
	Store    storeAPI
	Products productGetter
}

const maxCommentLen = 2000

// Create records a rating after checking the product exists.
func (s Service) Create(ctx context.Context, userID, productID uuid.UUID, rating int32, comment string) (Review, error) {
	if s.Store == nil || s.Products == nil {
		return Review{}, errors.New("reviews service not configured")
	}
	if rating < 1 || rating > 5 {
		return Review{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	comment = strings.TrimSpace(comment)
	if len(comment) > maxCommentLen {
		return Review{}, fmt.Errorf("%w: comment too long", ErrInvalidInput)
	}
	if _, err := s.Products.GetProduct(ctx, productID); err != nil {
		return Review{}, err
	}
	return s.Store.Create(ctx, Review{
		ProductID: productID,
		UserID:    userID,
		Rating:    rating,
		Comment:   comment,
	})
}

// List returns a product's reviews together with its aggregate stats.
func (s Service) List(ctx context.Context, productID uuid.UUID, limit, offset int32) ([]Review, Stats, error) {
	if s.Store == nil {
		return nil, Stats{}, errors.New("reviews service not configured")
	}
	list, err := s.Store.ListByProduct(ctx, productID, limit, offset)
	if err != nil {
		return nil, Stats{}, err
	}
	stats, err := s.Store.StatsByProduct(ctx, productID)
	if err != nil {
		return nil, Stats{}, err
	}
	return list, stats, nil
}

// Delete removes the caller's review.
func (s Service) Delete(ctx context.Context, userID, reviewID uuid.UUID) error {
	if s.Store == nil {
		return errors.New("reviews service not configured")
	}
	return s.Store.Delete(ctx, userID, reviewID)
}
