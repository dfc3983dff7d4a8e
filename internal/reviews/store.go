// Package reviews lets buyers rate products they bought.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bazaar-labs/bazaar-api/internal/db"
)

var (
	ErrNotFound = errors.New("review not found")
	// ErrAlreadyReviewed is returned on a second review for the same
	// product by the same user.
	ErrAlreadyReviewed = errors.New("product already reviewed")
	ErrInvalidInput    = errors.New("review invalid input")
)

// Review is one buyer's rating of a product.
type Review struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	UserID    uuid.UUID
	Rating    int32
	Comment   string
	CreatedAt time.Time
}

// Stats aggregates the ratings of one product.
type Stats struct {
	Count      int64
	AvgRating  float64
	RatingSums [5]int64
}

// Store persists reviews on pgx.
type Store struct {
	DB db.Conn
}

// Create inserts a review. The unique index on product and user turns a
// duplicate into ErrAlreadyReviewed.
func (s Store) Create(ctx context.Context, rv Review) (Review, error) {
	err := s.DB.QueryRow(ctx,
		`INSERT INTO reviews (product_id, user_id, rating, comment)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (product_id, user_id) DO NOTHING
		 RETURNING id, created_at`,
		rv.ProductID, rv.UserID, rv.Rating, rv.Comment).
		Scan(&rv.ID, &rv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Review{}, ErrAlreadyReviewed
	}
	if err != nil {
		return Review{}, fmt.Errorf("create review: %w", err)
	}
	return rv, nil
}

// ListByProduct returns a product's reviews, newest first.
func (s Store) ListByProduct(ctx context.Context, productID uuid.UUID, limit, offset int32) ([]Review, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT id, product_id, user_id, rating, comment, created_at
		 FROM reviews WHERE product_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		productID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()
	var out []Review
	for rows.Next() {
		var rv Review
		if err := rows.Scan(&rv.ID, &rv.ProductID, &rv.UserID, &rv.Rating,
			&rv.Comment, &rv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

// StatsByProduct aggregates count, average and the per-star breakdown.
func (s Store) StatsByProduct(ctx context.Context, productID uuid.UUID) (Stats, error) {
	var st Stats
	err := s.DB.QueryRow(ctx,
		`SELECT COUNT(*),
			COALESCE(AVG(rating), 0),
			COUNT(*) FILTER (WHERE rating = 1),
			COUNT(*) FILTER (WHERE rating = 2),
			COUNT(*) FILTER (WHERE rating = 3),
			COUNT(*) FILTER (WHERE rating = 4),
			COUNT(*) FILTER (WHERE rating = 5)
		 FROM reviews WHERE product_id = $1`, productID).
		Scan(&st.Count, &st.AvgRating, &st.RatingSums[0], &st.RatingSums[1],
			&st.RatingSums[2], &st.RatingSums[3], &st.RatingSums[4])
	if err != nil {
		return Stats{}, fmt.Errorf("review stats: %w", err)
	}
	return st, nil
}

// Delete removes the caller's own review.
func (s Store) Delete(ctx context.Context, userID, reviewID uuid.UUID) error {
	tag, err := s.DB.Exec(ctx,
		`DELETE FROM reviews WHERE id = $1 AND user_id = $2`, reviewID, userID)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
