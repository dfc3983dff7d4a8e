// Package address manages buyer delivery addresses.
package address

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"

	"github.com/bazaar-labs/bazaar-api/internal/db"
)

// ErrNotFound is returned when the address does not exist or belongs to
// another user.
var ErrNotFound = errors.New("address not found")

// Address is a delivery destination. A zero location means geocoding has
// not succeeded yet; delivery pricing then falls back to a flat charge.
type Address struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Label      string
	Line1      string
	Line2      string
	City       string
	StateCode  string
	PostalCode string
	Country    string
	Location   orb.Point
	IsDefault  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store persists addresses.
type Store struct {
	DB db.Conn
}

const addressColumns = `id, user_id, label, line1, line2, city, state_code,
	postal_code, country, lon, lat, is_default, created_at, updated_at`

func scanAddress(row pgx.Row) (Address, error) {
	var a Address
	var lon, lat float64
	err := row.Scan(&a.ID, &a.UserID, &a.Label, &a.Line1, &a.Line2, &a.City,
		&a.StateCode, &a.PostalCode, &a.Country, &lon, &lat, &a.IsDefault,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Address{}, ErrNotFound
	}
	if err != nil {
		return Address{}, fmt.Errorf("scan address: %w", err)
	}
	a.Location = orb.Point{lon, lat}
	return a, nil
}

// Get loads one address scoped to its owner.
func (s Store) Get(ctx context.Context, userID, id uuid.UUID) (Address, error) {
	row := s.DB.QueryRow(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE id = $1 AND user_id = $2`,
		id, userID)
	return scanAddress(row)
}

// ListByUser returns all addresses of one user, default first.
func (s Store) ListByUser(ctx context.Context, userID uuid.UUID) ([]Address, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT `+addressColumns+` FROM addresses
		 WHERE user_id = $1 ORDER BY is_default DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()
	var out []Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Create inserts an address. Marking it default clears the previous one.
func (s Store) Create(ctx context.Context, a Address) (Address, error) {
	if a.IsDefault {
		if err := s.clearDefault(ctx, a.UserID); err != nil {
			return Address{}, err
		}
	}
	row := s.DB.QueryRow(ctx,
		`INSERT INTO addresses (user_id, label, line1, line2, city, state_code,
			postal_code, country, lon, lat, is_default)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+addressColumns,
		a.UserID, a.Label, a.Line1, a.Line2, a.City, a.StateCode, a.PostalCode,
		a.Country, a.Location.Lon(), a.Location.Lat(), a.IsDefault)
	return scanAddress(row)
}

// Update rewrites the mutable fields of an owned address.
func (s Store) Update(ctx context.Context, a Address) (Address, error) {
	if a.IsDefault {
		if err := s.clearDefault(ctx, a.UserID); err != nil {
			return Address{}, err
		}
	}
	row := s.DB.QueryRow(ctx,
		`UPDATE addresses SET label = $3, line1 = $4, line2 = $5, city = $6,
			state_code = $7, postal_code = $8, country = $9, lon = $10, lat = $11,
			is_default = $12, updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+addressColumns,
		a.ID, a.UserID, a.Label, a.Line1, a.Line2, a.City, a.StateCode,
		a.PostalCode, a.Country, a.Location.Lon(), a.Location.Lat(), a.IsDefault)
	return scanAddress(row)
}

// Delete removes an owned address.
func (s Store) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.DB.Exec(ctx,
		`DELETE FROM addresses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s Store) clearDefault(ctx context.Context, userID uuid.UUID) error {
	_, err := s.DB.Exec(ctx,
		`UPDATE addresses SET is_default = FALSE WHERE user_id = $1 AND is_default`, userID)
	if err != nil {
		return fmt.Errorf("clear default address: %w", err)
	}
	return nil
}

// ListUnlocated returns addresses still missing coordinates; the worker
// retries these in the background.
func (s Store) ListUnlocated(ctx context.Context, limit int32) ([]Address, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT `+addressColumns+` FROM addresses
		 WHERE lon = 0 AND lat = 0 ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unlocated addresses: %w", err)
	}
	defer rows.Close()
	var out []Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetLocation writes resolved coordinates for one address.
func (s Store) SetLocation(ctx context.Context, id uuid.UUID, p orb.Point) error {
	_, err := s.DB.Exec(ctx,
		`UPDATE addresses SET lon = $2, lat = $3, updated_at = now() WHERE id = $1`,
		id, p.Lon(), p.Lat())
	if err != nil {
		return fmt.Errorf("set address location: %w", err)
	}
	return nil
}
