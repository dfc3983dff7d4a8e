// Package cart manages the per-user shopping cart and its price summary.
package cart

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
	// ErrNotFound indicates the requested cart or line could not be located.
	ErrNotFound = errors.New("cart not found")
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("cart invalid input")
)

// Cart is one user's open basket. Each user has at most one.
type Cart struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	CouponCode string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Item is a cart line with the product attributes snapshotted at add time
// so later price or weight edits do not change an open basket.
type Item struct {
	CartID      uuid.UUID
	ProductID   uuid.UUID
	VendorID    uuid.UUID
	CategoryID  uuid.UUID
	Title       string
	Qty         int32
	UnitPrice   pricing.Money
	WeightGrams int32
	AddedAt     time.Time
}

// Line converts a stored item to a pricing line.
func (it Item) Line() pricing.LineItem {
	return pricing.LineItem{
		ProductID:   it.ProductID,
		Title:       it.Title,
		Qty:         int(it.Qty),
		UnitPrice:   it.UnitPrice,
		WeightGrams: int(it.WeightGrams),
		VendorID:    it.VendorID,
		CategoryID:  it.CategoryID,
	}
}

// Store persists carts and their lines.
type Store struct {
	DB db.Conn
}

// Ensure loads the user's cart, creating it on first use.
func (s Store) Ensure(ctx context.Context, userID uuid.UUID) (Cart, error) {
	var c Cart
	err := s.DB.QueryRow(ctx,
		`INSERT INTO carts (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO UPDATE SET updated_at = now()
		 RETURNING id, user_id, coupon_code, created_at, updated_at`,
		userID).Scan(&c.ID, &c.UserID, &c.CouponCode, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Cart{}, fmt.Errorf("ensure cart: %w", err)
	}
	return c, nil
}

// Get loads a cart by user.
func (s Store) Get(ctx context.Context, userID uuid.UUID) (Cart, error) {
	var c Cart
	err := s.DB.QueryRow(ctx,
		`SELECT id, user_id, coupon_code, created_at, updated_at
		 FROM carts WHERE user_id = $1`, userID).
		Scan(&c.ID, &c.UserID, &c.CouponCode, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, ErrNotFound
	}
	if err != nil {
		return Cart{}, fmt.Errorf("get cart: %w", err)
	}
	return c, nil
}

// Items lists the lines of a cart in insertion order.
func (s Store) Items(ctx context.Context, cartID uuid.UUID) ([]Item, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT cart_id, product_id, vendor_id, category_id, title, qty,
			unit_price, weight_grams, added_at
		 FROM cart_items WHERE cart_id = $1 ORDER BY added_at`, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.CartID, &it.ProductID, &it.VendorID, &it.CategoryID,
			&it.Title, &it.Qty, &it.UnitPrice, &it.WeightGrams, &it.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpsertItem adds a line or bumps its quantity when the product is
// already in the cart.
func (s Store) UpsertItem(ctx context.Context, it Item) error {
	_, err := s.DB.Exec(ctx,
		`INSERT INTO cart_items (cart_id, product_id, vendor_id, category_id,
			title, qty, unit_price, weight_grams)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (cart_id, product_id) DO UPDATE
		 SET qty = cart_items.qty + EXCLUDED.qty`,
		it.CartID, it.ProductID, it.VendorID, it.CategoryID, it.Title,
		it.Qty, it.UnitPrice, it.WeightGrams)
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return nil
}

// SetItemQty overwrites a line quantity.
func (s Store) SetItemQty(ctx context.Context, cartID, productID uuid.UUID, qty int32) error {
	tag, err := s.DB.Exec(ctx,
		`UPDATE cart_items SET qty = $3 WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID, qty)
	if err != nil {
		return fmt.Errorf("set cart item qty: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveItem deletes a line.
func (s Store) RemoveItem(ctx context.Context, cartID, productID uuid.UUID) error {
	tag, err := s.DB.Exec(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCoupon attaches or clears the cart's coupon code.
func (s Store) SetCoupon(ctx context.Context, cartID uuid.UUID, code string) error {
	tag, err := s.DB.Exec(ctx,
		`UPDATE carts SET coupon_code = $2, updated_at = now() WHERE id = $1`,
		cartID, code)
	if err != nil {
		return fmt.Errorf("set cart coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear removes every line and the coupon, keeping the cart row.
func (s Store) Clear(ctx context.Context, cartID uuid.UUID) error {
	if _, err := s.DB.Exec(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	if _, err := s.DB.Exec(ctx,
		`UPDATE carts SET coupon_code = '', updated_at = now() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart coupon: %w", err)
	}
	return nil
}
