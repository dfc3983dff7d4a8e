package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bazaar-labs/bazaar-api/internal/pricing"
)

// storeAPI is the slice of Store the service depends on.
type storeAPI interface {
	GetByCode(ctx context.Context, code string) (Coupon, error)
	GetByID(ctx context.Context, id uuid.UUID) (Coupon, error)
	List(ctx context.Context, limit, offset int32) ([]Coupon, error)
	Create(ctx context.Context, c Coupon) (Coupon, error)
	Update(ctx context.Context, c Coupon) (Coupon, error)
	UserUsage(ctx context.Context, couponID, userID uuid.UUID) (int32, error)
}

// Service exposes coupon administration and evaluation.
type Service struct {
	Store storeAPI
	Now   func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Evaluate resolves a code for a user against a set of order lines and
// returns the redeemable coupon with its discount breakdown. Errors carry
// the specific rejection reason.
func (s Service) Evaluate(ctx context.Context, userID uuid.UUID, code string, items []pricing.LineItem) (Coupon, Discount, error) {
	if s.Store == nil {
		return Coupon{}, Discount{}, errors.New("coupon service not configured")
	}
	c, err := s.Store.GetByCode(ctx, code)
	if err != nil {
		return Coupon{}, Discount{}, err
	}
	used, err := s.Store.UserUsage(ctx, c.ID, userID)
	if err != nil {
		return Coupon{}, Discount{}, err
	}
	if err := c.Validate(s.now(), used); err != nil {
		return c, Discount{}, err
	}
	d, err := c.ComputeDiscount(items)
	if err != nil {
		return c, Discount{}, err
	}
	return c, d, nil
}

// Get returns a coupon by id.
func (s Service) Get(ctx context.Context, id uuid.UUID) (Coupon, error) {
	if s.Store == nil {
		return Coupon{}, errors.New("coupon service not configured")
	}
	return s.Store.GetByID(ctx, id)
}

// List returns a page of coupons.
func (s Service) List(ctx context.Context, limit, offset int32) ([]Coupon, error) {
	if s.Store == nil {
		return nil, errors.New("coupon service not configured")
	}
	return s.Store.List(ctx, limit, offset)
}

// Create validates and persists a new coupon.
func (s Service) Create(ctx context.Context, c Coupon) (Coupon, error) {
	if s.Store == nil {
		return Coupon{}, errors.New("coupon service not configured")
	}
	if err := normalize(&c); err != nil {
		return Coupon{}, err
	}
	return s.Store.Create(ctx, c)
}

// Update validates and rewrites an existing coupon.
func (s Service) Update(ctx context.Context, c Coupon) (Coupon, error) {
	if s.Store == nil {
		return Coupon{}, errors.New("coupon service not configured")
	}
	if c.ID == uuid.Nil {
		return Coupon{}, fmt.Errorf("%w: missing id", ErrInvalidInput)
	}
	if err := normalize(&c); err != nil {
		return Coupon{}, err
	}
	return s.Store.Update(ctx, c)
}

func normalize(c *Coupon) error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	if c.Code == "" {
		return fmt.Errorf("%w: empty code", ErrInvalidInput)
	}
	switch c.Kind {
	case KindPercent:
		if c.PercentBps <= 0 || c.PercentBps > 10000 {
			return fmt.Errorf("%w: percent out of range", ErrInvalidInput)
		}
	case KindFixed:
		if c.Value <= 0 {
			return fmt.Errorf("%w: fixed value must be positive", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, c.Kind)
	}
	switch c.Scope {
	case "", ScopeAllProducts:
		c.Scope = ScopeAllProducts
		c.ScopeIDs = nil
	case ScopeCategories, ScopeProducts:
		if len(c.ScopeIDs) == 0 {
			return fmt.Errorf("%w: scoped coupon needs scope ids", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, c.Scope)
	}
	if c.StartsAt.IsZero() || c.ExpiresAt.IsZero() || !c.ExpiresAt.After(c.StartsAt) {
		return fmt.Errorf("%w: expiry must follow start", ErrInvalidInput)
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	switch c.Status {
	case StatusActive, StatusExpired, StatusDisabled:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, c.Status)
	}
	if c.MinOrderAmount < 0 || c.PerUserLimit < 0 || c.TotalLimit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidInput)
	}
	return nil
}
