package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/bazaar-labs/bazaar-api/internal/catalog"
)

type fakeStore struct {
	products map[uuid.UUID]catalog.Product
	cats     []catalog.Category
	getCalls int
}

func (s *fakeStore) GetProduct(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	s.getCalls++
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) ListProducts(_ context.Context, _ catalog.ListFilter) ([]catalog.Product, error) {
	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) CreateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	p.ID = uuid.New()
	s.products[p.ID] = p
	return p, nil
}

func (s *fakeStore) UpdateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	if _, ok := s.products[p.ID]; !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	s.products[p.ID] = p
	return p, nil
}

func (s *fakeStore) ListCategories(_ context.Context) ([]catalog.Category, error) {
	return s.cats, nil
}

func (s *fakeStore) CreateCategory(_ context.Context, name, slug string) (catalog.Category, error) {
	c := catalog.Category{ID: uuid.New(), Name: name, Slug: slug}
	s.cats = append(s.cats, c)
	return c, nil
}

func newService(t *testing.T) (catalog.Service, *fakeStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := &fakeStore{products: make(map[uuid.UUID]catalog.Product)}
	return catalog.Service{
		Store: store,
		Cache: catalog.NewCache(client, time.Minute),
	}, store
}

func TestGetProductCachesSecondRead(t *testing.T) {
	svc, store := newService(t)
	p, err := store.CreateProduct(context.Background(), catalog.Product{Title: "Clay kettle", Price: 45000})
	require.NoError(t, err)
	store.getCalls = 0

	got, err := svc.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, p.Title, got.Title)
	require.Equal(t, 1, store.getCalls)

	got, err = svc.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, p.Title, got.Title)
	require.Equal(t, 1, store.getCalls, "second read should come from cache")
}

func TestUpdateProductInvalidatesCache(t *testing.T) {
	svc, store := newService(t)
	p, err := store.CreateProduct(context.Background(), catalog.Product{Title: "Clay kettle", Price: 45000})
	require.NoError(t, err)

	_, err = svc.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)

	p.Title = "Copper kettle"
	_, err = svc.UpdateProduct(context.Background(), p)
	require.NoError(t, err)

	got, err := svc.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, "Copper kettle", got.Title)
}

func TestGetProductUnknown(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.GetProduct(context.Background(), uuid.New())
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestCategoriesCachedAsOneBlob(t *testing.T) {
	svc, store := newService(t)
	_, err := store.CreateCategory(context.Background(), "Kitchen", "kitchen")
	require.NoError(t, err)

	cats, err := svc.Categories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 1)

	// A direct store write does not show up until the cache is dropped.
	_, err = store.CreateCategory(context.Background(), "Garden", "garden")
	require.NoError(t, err)
	cats, err = svc.Categories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 1)

	_, err = svc.CreateCategory(context.Background(), "Decor", "decor")
	require.NoError(t, err)
	cats, err = svc.Categories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 3)
}
