package coupon_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bazaar-labs/bazaar-api/internal/coupon"
	"github.com/bazaar-labs/bazaar-api/internal/pricing"
)

func activeCoupon() coupon.Coupon {
	return coupon.Coupon{
		ID:         uuid.New(),
		Code:       "SAVE20",
		Kind:       coupon.KindPercent,
		PercentBps: 2000,
		Scope:      coupon.ScopeAllProducts,
		Status:     coupon.StatusActive,
		StartsAt:   time.Now().Add(-time.Hour),
		ExpiresAt:  time.Now().Add(time.Hour),
	}
}

func line(price pricing.Money, qty int) pricing.LineItem {
	return pricing.LineItem{
		ProductID:  uuid.New(),
		Qty:        qty,
		UnitPrice:  price,
		CategoryID: uuid.New(),
	}
}

func TestValidateOrder(t *testing.T) {
	t.Parallel()
	now := time.Now()

	t.Run("disabled wins over window", func(t *testing.T) {
		t.Parallel()
		c := activeCoupon()
		c.Status = coupon.StatusDisabled
		c.ExpiresAt = now.Add(-time.Hour)
		require.ErrorIs(t, c.Validate(now, 0), coupon.ErrCouponInactive)
	})
	t.Run("expired status", func(t *testing.T) {
		t.Parallel()
		c := activeCoupon()
		c.Status = coupon.StatusExpired
		require.ErrorIs(t, c.Validate(now, 0), coupon.ErrCouponExpired)
	})
	t.Run("not started", func(t *testing.T) {
		t.Parallel()
		c := activeCoupon()
		c.StartsAt = now.Add(time.Minute)
		require.ErrorIs(t, c.Validate(now, 0), coupon.ErrCouponNotStarted)
	})
	t.Run("window expired", func(t *testing.T) {
		t.Parallel()
		c := activeCoupon()
		c.ExpiresAt = now.Add(-time.Minute)
		require.ErrorIs(t, c.Validate(now, 0), coupon.ErrCouponExpired)
	})
	t.Run("per-user limit", func(t *testing.T) {
		t.Parallel()
		c := activeCoupon()
		c.PerUserLimit = 2
		require.ErrorIs(t, c.Validate(now, 2), coupon.ErrUserLimitReached)
		require.NoError(t, c.Validate(now, 1))
	})
	t.Run("global limit", func(t *testing.T) {
		t.Parallel()
		c := activeCoupon()
		c.TotalLimit = 100
		c.UsedCount = 100
		require.ErrorIs(t, c.Validate(now, 0), coupon.ErrGlobalLimitReached)
	})
	t.Run("zero limits mean unlimited", func(t *testing.T) {
		t.Parallel()
		c := activeCoupon()
		c.UsedCount = 1 << 20
		require.NoError(t, c.Validate(now, 1<<20))
	})
}

func TestComputeDiscountPercentScoped(t *testing.T) {
	t.Parallel()

	inScope := line(100000, 1)
	outScope := line(50000, 1)

	c := activeCoupon()
	c.Scope = coupon.ScopeCategories
	c.ScopeIDs = []uuid.UUID{inScope.CategoryID}

	d, err := c.ComputeDiscount([]pricing.LineItem{inScope, outScope})
	require.NoError(t, err)
	require.Equal(t, pricing.Money(100000), d.Eligible)
	require.Equal(t, pricing.Money(20000), d.Total)
	require.Equal(t, pricing.Money(20000), d.PerItem[inScope.ProductID])
	require.NotContains(t, d.PerItem, outScope.ProductID)
}

func TestComputeDiscountFixedCappedAtEligible(t *testing.T) {
	t.Parallel()

	it := line(5000, 1)
	c := activeCoupon()
	c.Kind = coupon.KindFixed
	c.Value = 10000

	d, err := c.ComputeDiscount([]pricing.LineItem{it})
	require.NoError(t, err)
	require.Equal(t, pricing.Money(5000), d.Total)
	require.Equal(t, pricing.Money(5000), d.PerItem[it.ProductID])
}

func TestComputeDiscountFixedProrationSumsExactly(t *testing.T) {
	t.Parallel()

	a := line(3333, 1)
	b := line(3333, 1)
	cLine := line(3334, 1)

	c := activeCoupon()
	c.Kind = coupon.KindFixed
	c.Value = 1000

	d, err := c.ComputeDiscount([]pricing.LineItem{a, b, cLine})
	require.NoError(t, err)
	require.Equal(t, pricing.Money(1000), d.Total)

	var sum pricing.Money
	for _, part := range d.PerItem {
		sum += part
	}
	require.Equal(t, d.Total, sum)
}

func TestComputeDiscountMinimumOrder(t *testing.T) {
	t.Parallel()

	c := activeCoupon()
	c.MinOrderAmount = 50000
	_, err := c.ComputeDiscount([]pricing.LineItem{line(40000, 1)})
	require.ErrorIs(t, err, coupon.ErrMinimumOrderNotMet)
}

func TestComputeDiscountNoEligibleLines(t *testing.T) {
	t.Parallel()

	c := activeCoupon()
	c.Scope = coupon.ScopeProducts
	c.ScopeIDs = []uuid.UUID{uuid.New()}
	_, err := c.ComputeDiscount([]pricing.LineItem{line(40000, 1)})
	require.ErrorIs(t, err, coupon.ErrNotEligible)
}
