package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type storeAPI interface {
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	ListProducts(ctx context.Context, f ListFilter) ([]Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, p Product) (Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, name, slug string) (Category, error)
}

// Service orchestrates catalog queries, DTO assembly, and caching.
type Service struct {
	Store storeAPI
	Cache *Cache
	Log   zerolog.Logger
}

func productKey(id uuid.UUID) string { return "catalog:product:" + id.String() }
func categoriesKey() string          { return "catalog:categories" }

// GetProduct returns one product, served from cache when possible. Cache
// failures degrade to the database silently.
func (s Service) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	if s.Store == nil {
		return Product{}, errors.New("catalog service not configured")
	}
	var cached Product
	if ok, err := s.Cache.GetJSON(ctx, productKey(id), &cached); err != nil {
		s.Log.Warn().Err(err).Msg("catalog cache read failed")
	} else if ok {
		return cached, nil
	}
	p, err := s.Store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if err := s.Cache.SetJSON(ctx, productKey(id), p); err != nil {
		s.Log.Warn().Err(err).Msg("catalog cache write failed")
	}
	return p, nil
}

// ListProducts returns active products matching the filter.
func (s Service) ListProducts(ctx context.Context, f ListFilter) ([]Product, error) {
	if s.Store == nil {
		return nil, errors.New("catalog service not configured")
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	return s.Store.ListProducts(ctx, f)
}

// CreateProduct inserts a listing owned by the given vendor.
func (s Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if s.Store == nil {
		return Product{}, errors.New("catalog service not configured")
	}
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}
	return s.Store.CreateProduct(ctx, p)
}

// UpdateProduct rewrites a listing and invalidates its cache entry.
func (s Service) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	if s.Store == nil {
		return Product{}, errors.New("catalog service not configured")
	}
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}
	updated, err := s.Store.UpdateProduct(ctx, p)
	if err != nil {
		return Product{}, err
	}
	if err := s.Cache.Invalidate(ctx, productKey(p.ID)); err != nil {
		s.Log.Warn().Err(err).Msg("catalog cache invalidate failed")
	}
	return updated, nil
}

func validateProduct(p Product) error {
	if p.Title == "" {
		return fmt.Errorf("product title is required")
	}
	if p.Price < 0 {
		return fmt.Errorf("product price cannot be negative")
	}
	if p.WeightGrams < 0 {
		return fmt.Errorf("product weight cannot be negative")
	}
	if p.Stock < 0 {
		return fmt.Errorf("product stock cannot be negative")
	}
	return nil
}

// Categories lists all categories, cached as one blob.
func (s Service) Categories(ctx context.Context) ([]Category, error) {
	if s.Store == nil {
		return nil, errors.New("catalog service not configured")
	}
	var cached []Category
	if ok, err := s.Cache.GetJSON(ctx, categoriesKey(), &cached); err != nil {
		s.Log.Warn().Err(err).Msg("catalog cache read failed")
	} else if ok {
		return cached, nil
	}
	cats, err := s.Store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Cache.SetJSON(ctx, categoriesKey(), cats); err != nil {
		s.Log.Warn().Err(err).Msg("catalog cache write failed")
	}
	return cats, nil
}

// CreateCategory inserts a category and drops the cached list.
func (s Service) CreateCategory(ctx context.Context, name, slug string) (Category, error) {
	if s.Store == nil {
		return Category{}, errors.New("catalog service not configured")
	}
	if name == "" || slug == "" {
		return Category{}, fmt.Errorf("category name and slug are required")
	}
	c, err := s.Store.CreateCategory(ctx, name, slug)
	if err != nil {
		return Category{}, err
	}
	if err := s.Cache.Invalidate(ctx, categoriesKey()); err != nil {
		s.Log.Warn().Err(err).Msg("catalog cache invalidate failed")
	}
	return c, nil
}
