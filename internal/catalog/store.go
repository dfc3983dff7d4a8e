package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bazaar-labs/bazaar-api/internal/db"
	"github.com/bazaar-labs/bazaar-api/internal/pricing"
)

var (
	// ErrNotFound is returned when a product or category does not exist.
	ErrNotFound = errors.New("catalog item not found")
	// ErrOutOfStock is returned when a stock reservation cannot be satisfied.
	ErrOutOfStock = errors.New("insufficient stock")
)

// Product is a sellable listing with the physical attributes delivery
// pricing needs.
type Product struct {
	ID          uuid.UUID
	VendorID    uuid.UUID
	CategoryID  uuid.UUID
	Title       string
	Description string
	Price       pricing.Money
	WeightGrams int32
	Stock       int32
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category groups products for browsing and coupon scoping.
type Category struct {
	ID   uuid.UUID
	Name string
	Slug string
}

// ListFilter narrows product listings.
type ListFilter struct {
	CategoryID uuid.UUID
	VendorID   uuid.UUID
	Query      string
	Limit      int32
	Offset     int32
}

// Store persists products and categories.
type Store struct {
	DB db.Conn
}

const productColumns = `id, vendor_id, category_id, title, description, price,
	weight_grams, stock, active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.VendorID, &p.CategoryID, &p.Title, &p.Description,
		&p.Price, &p.WeightGrams, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("scan product: %w", err)
	}
	return p, nil
}

// GetProduct loads one product by id.
func (s Store) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	row := s.DB.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

// ListProducts returns active products matching the filter, newest first.
func (s Store) ListProducts(ctx context.Context, f ListFilter) ([]Product, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE active
		   AND ($1::uuid IS NULL OR category_id = $1)
		   AND ($2::uuid IS NULL OR vendor_id = $2)
		   AND ($3 = '' OR title ILIKE '%' || $3 || '%')
		 ORDER BY created_at DESC LIMIT $4 OFFSET $5`,
		nullableUUID(f.CategoryID), nullableUUID(f.VendorID), f.Query, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// CreateProduct inserts a listing for a vendor.
func (s Store) CreateProduct(ctx context.Context, p Product) (Product, error) {
	row := s.DB.QueryRow(ctx,
		`INSERT INTO products (vendor_id, category_id, title, description, price, weight_grams, stock, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+productColumns,
		p.VendorID, p.CategoryID, p.Title, p.Description, p.Price, p.WeightGrams, p.Stock, p.Active)
	return scanProduct(row)
}

// UpdateProduct rewrites the mutable listing fields.
func (s Store) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	row := s.DB.QueryRow(ctx,
		`UPDATE products SET category_id = $2, title = $3, description = $4,
			price = $5, weight_grams = $6, stock = $7, active = $8, updated_at = now()
		 WHERE id = $1
		 RETURNING `+productColumns,
		p.ID, p.CategoryID, p.Title, p.Description, p.Price, p.WeightGrams, p.Stock, p.Active)
	return scanProduct(row)
}

// ReserveStock decrements stock for a purchase. The guard keeps stock
// non-negative under concurrent checkouts.
func (s Store) ReserveStock(ctx context.Context, productID uuid.UUID, qty int32) error {
	tag, err := s.DB.Exec(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = now()
		 WHERE id = $1 AND active AND stock >= $2`, productID, qty)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOutOfStock
	}
	return nil
}

// RestoreStock gives units back after a cancellation.
func (s Store) RestoreStock(ctx context.Context, productID uuid.UUID, qty int32) error {
	_, err := s.DB.Exec(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`,
		productID, qty)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	return nil
}

// ListCategories returns all categories ordered by name.
func (s Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT id, name, slug FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCategory inserts a category.
func (s Store) CreateCategory(ctx context.Context, name, slug string) (Category, error) {
	var c Category
	err := s.DB.QueryRow(ctx,
		`INSERT INTO categories (name, slug) VALUES ($1, $2) RETURNING id, name, slug`,
		name, slug).Scan(&c.ID, &c.Name, &c.Slug)
	if err != nil {
		return Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}
