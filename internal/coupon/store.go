package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bazaar-labs/bazaar-api/internal/db"
)

// Store persists coupons and their usage counters.
type Store struct {
	DB db.Conn
}

// WithConn returns a copy bound to the given connection, typically a
// transaction started by the caller.
func (s Store) WithConn(c db.Conn) Store {
	return Store{DB: c}
}

const couponColumns = `id, code, kind, value, percent_bps, min_order_amount,
	per_user_limit, total_limit, used_count, starts_at, expires_at,
	scope, scope_ids, status, created_at, updated_at`

func scanCoupon(row pgx.Row) (Coupon, error) {
	var c Coupon
	err := row.Scan(&c.ID, &c.Code, &c.Kind, &c.Value, &c.PercentBps,
		&c.MinOrderAmount, &c.PerUserLimit, &c.TotalLimit, &c.UsedCount,
		&c.StartsAt, &c.ExpiresAt, &c.Scope, &c.ScopeIDs, &c.Status,
		&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Coupon{}, ErrNotFound
	}
	if err != nil {
		return Coupon{}, fmt.Errorf("scan coupon: %w", err)
	}
	return c, nil
}

// GetByCode looks up a coupon. Codes are stored upper-cased.
func (s Store) GetByCode(ctx context.Context, code string) (Coupon, error) {
	row := s.DB.QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = $1`,
		strings.ToUpper(strings.TrimSpace(code)))
	return scanCoupon(row)
}

// GetByID looks up a coupon by primary key.
func (s Store) GetByID(ctx context.Context, id uuid.UUID) (Coupon, error) {
	row := s.DB.QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id)
	return scanCoupon(row)
}

// List returns coupons ordered by creation time, newest first.
func (s Store) List(ctx context.Context, limit, offset int32) ([]Coupon, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT `+couponColumns+` FROM coupons
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()
	var out []Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Create inserts a new coupon and returns it with generated fields filled.
func (s Store) Create(ctx context.Context, c Coupon) (Coupon, error) {
	row := s.DB.QueryRow(ctx,
		`INSERT INTO coupons (code, kind, value, percent_bps, min_order_amount,
			per_user_limit, total_limit, starts_at, expires_at, scope, scope_ids, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+couponColumns,
		strings.ToUpper(strings.TrimSpace(c.Code)), c.Kind, c.Value, c.PercentBps,
		c.MinOrderAmount, c.PerUserLimit, c.TotalLimit, c.StartsAt, c.ExpiresAt,
		c.Scope, scopeIDsParam(c.ScopeIDs), c.Status)
	return scanCoupon(row)
}

// Update rewrites the mutable fields of a coupon.
func (s Store) Update(ctx context.Context, c Coupon) (Coupon, error) {
	row := s.DB.QueryRow(ctx,
		`UPDATE coupons SET kind = $2, value = $3, percent_bps = $4,
			min_order_amount = $5, per_user_limit = $6, total_limit = $7,
			starts_at = $8, expires_at = $9, scope = $10, scope_ids = $11,
			status = $12, updated_at = now()
		 WHERE id = $1
		 RETURNING `+couponColumns,
		c.ID, c.Kind, c.Value, c.PercentBps, c.MinOrderAmount, c.PerUserLimit,
		c.TotalLimit, c.StartsAt, c.ExpiresAt, c.Scope, scopeIDsParam(c.ScopeIDs), c.Status)
	return scanCoupon(row)
}

// scopeIDsParam keeps all-product coupons storable: scope_ids is NOT NULL
// and a nil slice would encode as SQL NULL.
func scopeIDsParam(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

// UserUsage returns how many times a user has redeemed a coupon.
func (s Store) UserUsage(ctx context.Context, couponID, userID uuid.UUID) (int32, error) {
	var used int32
	err := s.DB.QueryRow(ctx,
		`SELECT used_count FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`,
		couponID, userID).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("user usage: %w", err)
	}
	return used, nil
}

// RecordUsage increments the global and per-user counters for one
// redemption. Both increments are guarded in SQL so concurrent redeemers
// cannot push a counter past its limit. The loser of a race gets the
// corresponding limit error. A coupon that hits its global quota flips to
// expired in the same statement.
func (s Store) RecordUsage(ctx context.Context, c Coupon, userID uuid.UUID) error {
	tag, err := s.DB.Exec(ctx,
		`UPDATE coupons
		 SET used_count = used_count + 1,
		     status = CASE WHEN total_limit > 0 AND used_count + 1 >= total_limit
		                   THEN 'expired' ELSE status END,
		     updated_at = now()
		 WHERE id = $1 AND status = 'active'
		   AND (total_limit = 0 OR used_count < total_limit)`, c.ID)
	if err != nil {
		return fmt.Errorf("record coupon usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGlobalLimitReached
	}

	if c.PerUserLimit > 0 {
		tag, err = s.DB.Exec(ctx,
			`INSERT INTO coupon_usages (coupon_id, user_id, used_count)
			 VALUES ($1, $2, 1)
			 ON CONFLICT (coupon_id, user_id) DO UPDATE
			 SET used_count = coupon_usages.used_count + 1, updated_at = now()
			 WHERE coupon_usages.used_count < $3`, c.ID, userID, c.PerUserLimit)
		if err != nil {
			return fmt.Errorf("record per-user usage: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrUserLimitReached
		}
		return nil
	}

	_, err = s.DB.Exec(ctx,
		`INSERT INTO coupon_usages (coupon_id, user_id, used_count)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (coupon_id, user_id) DO UPDATE
		 SET used_count = coupon_usages.used_count + 1, updated_at = now()`,
		c.ID, userID)
	if err != nil {
		return fmt.Errorf("record per-user usage: %w", err)
	}
	return nil
}

// ReleaseUsage gives back one redemption after an order cancellation. A
// coupon that had expired purely by exhausting its quota becomes active
// again if its window is still open.
func (s Store) ReleaseUsage(ctx context.Context, couponID, userID uuid.UUID, now time.Time) error {
	_, err := s.DB.Exec(ctx,
		`UPDATE coupons
		 SET used_count = GREATEST(used_count - 1, 0),
		     status = CASE WHEN status = 'expired' AND expires_at > $2
		                   THEN 'active' ELSE status END,
		     updated_at = now()
		 WHERE id = $1`, couponID, now)
	if err != nil {
		return fmt.Errorf("release coupon usage: %w", err)
	}
	_, err = s.DB.Exec(ctx,
		`UPDATE coupon_usages
		 SET used_count = GREATEST(used_count - 1, 0), updated_at = now()
		 WHERE coupon_id = $1 AND user_id = $2`, couponID, userID)
	if err != nil {
		return fmt.Errorf("release per-user usage: %w", err)
	}
	return nil
}

// ExpireDue flips every active coupon whose window has closed to expired
// and returns how many changed. The worker sweep calls this periodically.
func (s Store) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.DB.Exec(ctx,
		`UPDATE coupons SET status = 'expired', updated_at = now()
		 WHERE status = 'active' AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("expire coupons: %w", err)
	}
	return tag.RowsAffected(), nil
}
