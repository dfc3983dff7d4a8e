package reviews_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bazaar-labs/bazaar-api/internal/catalog"
	"github.com/bazaar-labs/bazaar-api/internal/reviews"
)

type fakeStore struct {
	byProduct map[uuid.UUID][]reviews.Review
}

func (f *fakeStore) Create(ctx context.Context, rv reviews.Review) (reviews.Review, error) {
	for _, existing := range f.byProduct[rv.ProductID] {
		if existing.UserID == rv.UserID {
			return reviews.Review{}, reviews.ErrAlreadyReviewed
		}
	}
	rv.ID = uuid.New()
	f.byProduct[rv.ProductID] = append(f.byProduct[rv.ProductID], rv)
	return rv, nil
}

func (f *fakeStore) ListByProduct(ctx context.Context, productID uuid.UUID, limit, offset int32) ([]reviews.Review, error) {
	return f.byProduct[productID], nil
}

func (f *fakeStore) StatsByProduct(ctx context.Context, productID uuid.UUID) (reviews.Stats, error) {
	var st reviews.Stats
	var sum int64
	for _, rv := range f.byProduct[productID] {
		st.Count++
		sum += int64(rv.Rating)
		st.RatingSums[rv.Rating-1]++
	}
	if st.Count > 0 {
		st.AvgRating = float64(sum) / float64(st.Count)
	}
	return st, nil
}

func (f *fakeStore) Delete(ctx context.Context, userID, reviewID uuid.UUID) error {
	for pid, list := range f.byProduct {
		for i, rv := range list {
			if rv.ID == reviewID && rv.UserID == userID {
				f.byProduct[pid] = append(list[:i], list[i+1:]...)
				return nil
			}
		}
	}
	return reviews.ErrNotFound
}

type fakeProducts struct {
	known map[uuid.UUID]bool
}

func (f fakeProducts) GetProduct(ctx context.Context, id uuid.UUID) (catalog.Product, error) {
	if !f.known[id] {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return catalog.Product{ID: id, Active: true}, nil
}

func newService(productIDs ...uuid.UUID) (reviews.Service, *fakeStore) {
	store := &fakeStore{byProduct: map[uuid.UUID][]reviews.Review{}}
	known := map[uuid.UUID]bool{}
	for _, id := range productIDs {
		known[id] = true
	}
	return reviews.Service{Store: store, Products: fakeProducts{known: known}}, store
}

func TestCreateReview(t *testing.T) {
	t.Parallel()
	productID := uuid.New()
	svc, _ := newService(productID)
	userID := uuid.New()

	rv, err := svc.Create(context.Background(), userID, productID, 4, "  solid masala  ")
	require.NoError(t, err)
	require.EqualValues(t, 4, rv.Rating)
	require.Equal(t, "solid masala", rv.Comment)

	_, err = svc.Create(context.Background(), userID, productID, 5, "again")
	require.ErrorIs(t, err, reviews.ErrAlreadyReviewed)
}

func TestCreateReviewValidation(t *testing.T) {
	t.Parallel()
	productID := uuid.New()
	svc, _ := newService(productID)

	_, err := svc.Create(context.Background(), uuid.New(), productID, 0, "")
	require.ErrorIs(t, err, reviews.ErrInvalidInput)

	_, err = svc.Create(context.Background(), uuid.New(), productID, 6, "")
	require.ErrorIs(t, err, reviews.ErrInvalidInput)

	_, err = svc.Create(context.Background(), uuid.New(), uuid.New(), 3, "")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestListWithStats(t *testing.T) {
	t.Parallel()
	productID := uuid.New()
	svc, _ := newService(productID)

	for _, rating := range []int32{5, 4, 5} {
		_, err := svc.Create(context.Background(), uuid.New(), productID, rating, "")
		require.NoError(t, err)
	}

	list, stats, err := svc.List(context.Background(), productID, 20, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.EqualValues(t, 3, stats.Count)
	require.InDelta(t, 4.67, stats.AvgRating, 0.01)
	require.EqualValues(t, 2, stats.RatingSums[4])
}

func TestDeleteScopedToAuthor(t *testing.T) {
	t.Parallel()
	productID := uuid.New()
	svc, _ := newService(productID)
	userID := uuid.New()

	rv, err := svc.Create(context.Background(), userID, productID, 3, "ok")
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(context.Background(), uuid.New(), rv.ID), reviews.ErrNotFound)
	require.NoError(t, svc.Delete(context.Background(), userID, rv.ID))
}
