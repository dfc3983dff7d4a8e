// Package order owns checkout, order history and cancellation.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaar-labs/bazaar-api/internal/cart"
	"github.com/bazaar-labs/bazaar-api/internal/catalog"
	"github.com/bazaar-labs/bazaar-api/internal/coupon"
	"github.com/bazaar-labs/bazaar-api/internal/db"
	"github.com/bazaar-labs/bazaar-api/internal/pricing"
)

var (
	// ErrNotFound is returned when the order does not exist or is not
	// visible to the caller.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidInput flags a malformed checkout or status payload.
	ErrInvalidInput = errors.New("order invalid input")
	// ErrEmptyCart is returned when checking out with no lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNotCancelable is returned when the order has progressed too far.
	ErrNotCancelable = errors.New("order can no longer be canceled")
	// ErrInvalidTransition guards the order status state machine.
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// Order lifecycle states.
const (
	StatusPlaced    = "placed"
	StatusConfirmed = "confirmed"
	StatusShipped   = "shipped"
	StatusDelivered = "delivered"
	StatusCanceled  = "canceled"
)

// Fulfillment modes.
const (
	FulfillmentDelivery = "delivery"
	FulfillmentPickup   = "pickup"
)

// Order is a placed purchase with its priced totals frozen at checkout.
type Order struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	VendorID       uuid.UUID
	AddressID      uuid.UUID
	Status         string
	Fulfillment    string
	CouponID       uuid.UUID
	CouponCode     string
	TotalMRP       pricing.Money
	TotalDiscount  pricing.Money
	DeliveryCharge pricing.Money
	DeliveryTier   string
	DistanceKm     float64
	GrandTotal     pricing.Money
	PlacedAt       time.Time
	UpdatedAt      time.Time
}

// Item is one frozen order line.
type Item struct {
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	Title       string
	Qty         int32
	UnitPrice   pricing.Money
	WeightGrams int32
	MRP         pricing.Money
	Discount    pricing.Money
	Total       pricing.Money
}

// Tx is the slice of transactional work checkout and cancellation need.
// Implementations run all calls on one database transaction.
type Tx interface {
	ReserveStock(ctx context.Context, productID uuid.UUID, qty int32) error
	RestoreStock(ctx context.Context, productID uuid.UUID, qty int32) error
	CouponByCode(ctx context.Context, code string) (coupon.Coupon, error)
	CouponUserUsage(ctx context.Context, couponID, userID uuid.UUID) (int32, error)
	RecordCouponUsage(ctx context.Context, c coupon.Coupon, userID uuid.UUID) error
	ReleaseCouponUsage(ctx context.Context, couponID, userID uuid.UUID, now time.Time) error
	InsertOrder(ctx context.Context, o Order, items []Item) (Order, error)
	OrderForUpdate(ctx context.Context, id uuid.UUID) (Order, []Item, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	ClearCart(ctx context.Context, cartID uuid.UUID) error
}

// Store persists orders on pgx and satisfies the service interfaces.
type Store struct {
	Pool *pgxpool.Pool
}

// InTx runs fn inside a transaction, committing on success.
func (s Store) InTx(ctx context.Context, fn func(tx Tx) error) error {
	pgtx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin checkout tx: %w", err)
	}
	defer func() { _ = pgtx.Rollback(ctx) }()
	if err := fn(pgxTx{conn: pgtx}); err != nil {
		return err
	}
	return pgtx.Commit(ctx)
}

const orderColumns = `id, user_id, vendor_id, COALESCE(address_id, '00000000-0000-0000-0000-000000000000'),
	status, fulfillment, COALESCE(coupon_id, '00000000-0000-0000-0000-000000000000'), coupon_code,
	total_mrp, total_discount, delivery_charge, delivery_tier, distance_km,
	grand_total, placed_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.VendorID, &o.AddressID, &o.Status,
		&o.Fulfillment, &o.CouponID, &o.CouponCode, &o.TotalMRP, &o.TotalDiscount,
		&o.DeliveryCharge, &o.DeliveryTier, &o.DistanceKm, &o.GrandTotal,
		&o.PlacedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("scan order: %w", err)
	}
	return o, nil
}

func scanItems(rows pgx.Rows) ([]Item, error) {
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.Title, &it.Qty,
			&it.UnitPrice, &it.WeightGrams, &it.MRP, &it.Discount, &it.Total); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

const itemColumns = `order_id, product_id, title, qty, unit_price, weight_grams, mrp, discount, total`

// Get loads an order with its lines.
func (s Store) Get(ctx context.Context, id uuid.UUID) (Order, []Item, error) {
	o, err := scanOrder(s.Pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return Order{}, nil, err
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT `+itemColumns+` FROM order_items WHERE order_id = $1`, id)
	if err != nil {
		return Order{}, nil, fmt.Errorf("list order items: %w", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return Order{}, nil, err
	}
	return o, items, nil
}

// ListByUser returns a buyer's orders, newest first.
func (s Store) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]Order, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE user_id = $1 ORDER BY placed_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListByVendor returns a vendor's incoming orders, newest first.
func (s Store) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit, offset int32) ([]Order, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE vendor_id = $1 ORDER BY placed_at DESC LIMIT $2 OFFSET $3`,
		vendorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list vendor orders: %w", err)
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// pgxTx implements Tx by delegating to the domain stores bound to one
// transaction connection.
type pgxTx struct {
	conn db.Conn
}

func (t pgxTx) ReserveStock(ctx context.Context, productID uuid.UUID, qty int32) error {
	return catalog.Store{DB: t.conn}.ReserveStock(ctx, productID, qty)
}

func (t pgxTx) RestoreStock(ctx context.Context, productID uuid.UUID, qty int32) error {
	return catalog.Store{DB: t.conn}.RestoreStock(ctx, productID, qty)
}

func (t pgxTx) CouponByCode(ctx context.Context, code string) (coupon.Coupon, error) {
	return coupon.Store{DB: t.conn}.GetByCode(ctx, code)
}

func (t pgxTx) CouponUserUsage(ctx context.Context, couponID, userID uuid.UUID) (int32, error) {
	return coupon.Store{DB: t.conn}.UserUsage(ctx, couponID, userID)
}

func (t pgxTx) RecordCouponUsage(ctx context.Context, c coupon.Coupon, userID uuid.UUID) error {
	return coupon.Store{DB: t.conn}.RecordUsage(ctx, c, userID)
}

func (t pgxTx) ReleaseCouponUsage(ctx context.Context, couponID, userID uuid.UUID, now time.Time) error {
	return coupon.Store{DB: t.conn}.ReleaseUsage(ctx, couponID, userID, now)
}

func (t pgxTx) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	return cart.Store{DB: t.conn}.Clear(ctx, cartID)
}

func (t pgxTx) InsertOrder(ctx context.Context, o Order, items []Item) (Order, error) {
	row := t.conn.QueryRow(ctx,
		`INSERT INTO orders (user_id, vendor_id, address_id, status, fulfillment,
			coupon_id, coupon_code, total_mrp, total_discount, delivery_charge,
			delivery_tier, distance_km, grand_total)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING `+orderColumns,
		o.UserID, o.VendorID, nullableUUID(o.AddressID), o.Status, o.Fulfillment,
		nullableUUID(o.CouponID), o.CouponCode, o.TotalMRP, o.TotalDiscount,
		o.DeliveryCharge, o.DeliveryTier, o.DistanceKm, o.GrandTotal)
	created, err := scanOrder(row)
	if err != nil {
		return Order{}, err
	}
	for _, it := range items {
		_, err := t.conn.Exec(ctx,
			`INSERT INTO order_items (order_id, product_id, title, qty, unit_price,
				weight_grams, mrp, discount, total)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			created.ID, it.ProductID, it.Title, it.Qty, it.UnitPrice,
			it.WeightGrams, it.MRP, it.Discount, it.Total)
		if err != nil {
			return Order{}, fmt.Errorf("insert order item: %w", err)
		}
	}
	return created, nil
}

func (t pgxTx) OrderForUpdate(ctx context.Context, id uuid.UUID) (Order, []Item, error) {
	o, err := scanOrder(t.conn.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Order{}, nil, err
	}
	rows, err := t.conn.Query(ctx,
		`SELECT `+itemColumns+` FROM order_items WHERE order_id = $1`, id)
	if err != nil {
		return Order{}, nil, fmt.Errorf("list order items: %w", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return Order{}, nil, err
	}
	return o, items, nil
}

func (t pgxTx) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := t.conn.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
