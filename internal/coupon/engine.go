package coupon

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bazaar-labs/bazaar-api/internal/pricing"
)

var (
	// ErrNotFound is returned when no coupon matches the requested code.
	ErrNotFound = errors.New("coupon not found")
	// ErrInvalidInput flags a malformed coupon payload or lookup argument.
	ErrInvalidInput = errors.New("coupon invalid input")
	// ErrCouponInactive is returned when the coupon has been disabled by an admin.
	ErrCouponInactive = errors.New("coupon not active")
	// ErrCouponNotStarted is returned when the validity window has not opened yet.
	ErrCouponNotStarted = errors.New("coupon not started")
	// ErrCouponExpired is returned when the validity window has closed.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrUserLimitReached indicates the caller has exhausted the per-user allowance.
	ErrUserLimitReached = errors.New("coupon per-user usage limit reached")
	// ErrGlobalLimitReached indicates the coupon has exhausted the global quota.
	ErrGlobalLimitReached = errors.New("coupon usage limit reached")
	// ErrMinimumOrderNotMet indicates the order total did not reach the coupon threshold.
	ErrMinimumOrderNotMet = errors.New("coupon minimum order amount not met")
	// ErrNotEligible is returned when no line in the order falls inside the coupon scope.
	ErrNotEligible = errors.New("coupon not eligible for these items")
)

// Discount kinds.
const (
	KindPercent = "percent"
	KindFixed   = "fixed"
)

// Lifecycle states. Expired is a terminal state reached either by the
// window closing or by the global quota running out.
const (
	StatusActive   = "active"
	StatusExpired  = "expired"
	StatusDisabled = "disabled"
)

// Eligibility scopes.
const (
	ScopeAllProducts = "all"
	ScopeCategories  = "categories"
	ScopeProducts    = "products"
)

// Coupon carries the full redemption rule for a single code.
type Coupon struct {
	ID             uuid.UUID
	Code           string
	Kind           string
	Value          pricing.Money
	PercentBps     int32
	MinOrderAmount pricing.Money
	PerUserLimit   int32
	TotalLimit     int32
	UsedCount      int32
	StartsAt       time.Time
	ExpiresAt      time.Time
	Scope          string
	ScopeIDs       []uuid.UUID
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks whether the coupon can be redeemed at the provided
// instant by a user who has already redeemed it userUsed times. Checks run
// in a fixed order so callers get a stable first reason. A coupon whose
// status is expired reports ErrCouponExpired rather than the generic
// inactive reason: quota exhaustion flips status to expired, and the
// caller-facing message should say so.
func (c Coupon) Validate(now time.Time, userUsed int32) error {
	switch c.Status {
	case StatusDisabled:
		return ErrCouponInactive
	case StatusExpired:
		return ErrCouponExpired
	}
	if !c.StartsAt.IsZero() && now.Before(c.StartsAt) {
		return ErrCouponNotStarted
	}
	if !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt) {
		return ErrCouponExpired
	}
	if c.PerUserLimit > 0 && userUsed >= c.PerUserLimit {
		return ErrUserLimitReached
	}
	if c.TotalLimit > 0 && c.UsedCount >= c.TotalLimit {
		return ErrGlobalLimitReached
	}
	return nil
}

// Discount is the per-order outcome of applying a coupon.
type Discount struct {
	PerItem  map[uuid.UUID]pricing.Money
	Eligible pricing.Money
	Total    pricing.Money
}

// matchesItem reports whether a line falls inside the coupon scope.
func (c Coupon) matchesItem(it pricing.LineItem) bool {
	switch c.Scope {
	case ScopeCategories:
		for _, id := range c.ScopeIDs {
			if id == it.CategoryID {
				return true
			}
		}
		return false
	case ScopeProducts:
		for _, id := range c.ScopeIDs {
			if id == it.ProductID {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// ComputeDiscount splits the coupon value across the eligible lines of an
// order. The minimum-order threshold applies to the full order total, not
// just the eligible portion. A fixed discount is prorated by line subtotal
// and never exceeds the eligible amount; rounding remainders land on the
// last eligible line so the per-item parts always sum to the total.
func (c Coupon) ComputeDiscount(items []pricing.LineItem) (Discount, error) {
	d := Discount{PerItem: make(map[uuid.UUID]pricing.Money, len(items))}
	if pricing.TotalMRP(items) < c.MinOrderAmount {
		return d, ErrMinimumOrderNotMet
	}

	eligible := make([]pricing.LineItem, 0, len(items))
	for _, it := range items {
		if it.MRP() <= 0 {
			continue
		}
		if c.matchesItem(it) {
			eligible = append(eligible, it)
			d.Eligible += it.MRP()
		}
	}
	if len(eligible) == 0 || d.Eligible <= 0 {
		return d, ErrNotEligible
	}

	switch c.Kind {
	case KindPercent:
		if c.PercentBps <= 0 {
			return d, nil
		}
		for _, it := range eligible {
			part := it.MRP() * pricing.Money(c.PercentBps) / 10000
			d.PerItem[it.ProductID] += part
			d.Total += part
		}
	case KindFixed:
		total := c.Value
		if total > d.Eligible {
			total = d.Eligible
		}
		if total <= 0 {
			return d, nil
		}
		var assigned pricing.Money
		for i, it := range eligible {
			part := total * it.MRP() / d.Eligible
			if i == len(eligible)-1 {
				part = total - assigned
			}
			d.PerItem[it.ProductID] += part
			assigned += part
		}
		d.Total = total
	default:
		return d, ErrInvalidInput
	}
	return d, nil
}
