package cart_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/bazaar-labs/bazaar-api/internal/address"
	"github.com/bazaar-labs/bazaar-api/internal/cart"
	"github.com/bazaar-labs/bazaar-api/internal/catalog"
	"github.com/bazaar-labs/bazaar-api/internal/coupon"
	"github.com/bazaar-labs/bazaar-api/internal/delivery"
	"github.com/bazaar-labs/bazaar-api/internal/pricing"
	"github.com/bazaar-labs/bazaar-api/internal/vendor"
)

type fakeStore struct {
	carts map[uuid.UUID]cart.Cart
	items map[uuid.UUID][]cart.Item
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		carts: make(map[uuid.UUID]cart.Cart),
		items: make(map[uuid.UUID][]cart.Item),
	}
}

func (s *fakeStore) Ensure(_ context.Context, userID uuid.UUID) (cart.Cart, error) {
	if c, ok := s.carts[userID]; ok {
		return c, nil
	}
	c := cart.Cart{ID: uuid.New(), UserID: userID}
	s.carts[userID] = c
	return c, nil
}

func (s *fakeStore) Get(_ context.Context, userID uuid.UUID) (cart.Cart, error) {
	c, ok := s.carts[userID]
	if !ok {
		return cart.Cart{}, cart.ErrNotFound
	}
	return c, nil
}

func (s *fakeStore) Items(_ context.Context, cartID uuid.UUID) ([]cart.Item, error) {
	return s.items[cartID], nil
}

func (s *fakeStore) UpsertItem(_ context.Context, it cart.Item) error {
	for i, existing := range s.items[it.CartID] {
		if existing.ProductID == it.ProductID {
			existing.Qty += it.Qty
			s.items[it.CartID][i] = existing
			return nil
		}
	}
	it.AddedAt = time.Now()
	s.items[it.CartID] = append(s.items[it.CartID], it)
	return nil
}

func (s *fakeStore) SetItemQty(_ context.Context, cartID, productID uuid.UUID, qty int32) error {
	for i, it := range s.items[cartID] {
		if it.ProductID == productID {
			it.Qty = qty
			s.items[cartID][i] = it
			return nil
		}
	}
	return cart.ErrNotFound
}

func (s *fakeStore) RemoveItem(_ context.Context, cartID, productID uuid.UUID) error {
	items := s.items[cartID]
	for i, it := range items {
		if it.ProductID == productID {
			s.items[cartID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return cart.ErrNotFound
}

func (s *fakeStore) SetCoupon(_ context.Context, cartID uuid.UUID, code string) error {
	for userID, c := range s.carts {
		if c.ID == cartID {
			c.CouponCode = code
			s.carts[userID] = c
			return nil
		}
	}
	return cart.ErrNotFound
}

func (s *fakeStore) Clear(_ context.Context, cartID uuid.UUID) error {
	delete(s.items, cartID)
	return s.SetCoupon(context.Background(), cartID, "")
}

type fakeProducts struct {
	byID map[uuid.UUID]catalog.Product
}

func (f *fakeProducts) GetProduct(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	p, ok := f.byID[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

type fakeCoupons struct {
	coupons map[string]coupon.Coupon
}

func (f *fakeCoupons) Evaluate(_ context.Context, _ uuid.UUID, code string, items []pricing.LineItem) (coupon.Coupon, coupon.Discount, error) {
	c, ok := f.coupons[code]
	if !ok {
		return coupon.Coupon{}, coupon.Discount{}, coupon.ErrNotFound
	}
	d, err := c.ComputeDiscount(items)
	if err != nil {
		return c, coupon.Discount{}, err
	}
	return c, d, nil
}

type fakeVendors struct {
	byID map[uuid.UUID]vendor.Vendor
}

func (f *fakeVendors) Get(_ context.Context, id uuid.UUID) (vendor.Vendor, error) {
	v, ok := f.byID[id]
	if !ok {
		return vendor.Vendor{}, vendor.ErrNotFound
	}
	return v, nil
}

type fakeAddresses struct {
	byID map[uuid.UUID]address.Address
}

func (f *fakeAddresses) Get(_ context.Context, userID, id uuid.UUID) (address.Address, error) {
	a, ok := f.byID[id]
	if !ok || a.UserID != userID {
		return address.Address{}, address.ErrNotFound
	}
	return a, nil
}

func testCalculator() delivery.Calculator {
	return delivery.Calculator{
		BaseCharge:         5000,
		BaseDistanceKm:     2,
		PerKmCharge:        1000,
		FallbackCharge:     5000,
		LongHaulFallback:   20000,
		DefaultRadiusKm:    5,
		DefaultWeightGrams: 200,
	}
}

type fixture struct {
	svc       cart.Service
	store     *fakeStore
	products  *fakeProducts
	coupons   *fakeCoupons
	vendors   *fakeVendors
	addresses *fakeAddresses
}

func newFixture() fixture {
	f := fixture{
		store:     newFakeStore(),
		products:  &fakeProducts{byID: make(map[uuid.UUID]catalog.Product)},
		coupons:   &fakeCoupons{coupons: make(map[string]coupon.Coupon)},
		vendors:   &fakeVendors{byID: make(map[uuid.UUID]vendor.Vendor)},
		addresses: &fakeAddresses{byID: make(map[uuid.UUID]address.Address)},
	}
	f.svc = cart.Service{
		Store:      f.store,
		Products:   f.products,
		Coupons:    f.coupons,
		Vendors:    f.vendors,
		Addresses:  f.addresses,
		Calculator: testCalculator(),
	}
	return f
}

func (f fixture) addProduct(price pricing.Money, weight int32) catalog.Product {
	p := catalog.Product{
		ID: uuid.New(), VendorID: uuid.New(), CategoryID: uuid.New(),
		Title: "Widget", Price: price, WeightGrams: weight, Stock: 100, Active: true,
	}
	f.products.byID[p.ID] = p
	return p
}

func TestAddItemSnapshotsPrice(t *testing.T) {
	t.Parallel()

	f := newFixture()
	userID := uuid.New()
	p := f.addProduct(10000, 500)

	v, err := f.svc.AddItem(context.Background(), userID, p.ID, 2)
	require.NoError(t, err)
	require.Len(t, v.Items, 1)
	require.Equal(t, pricing.Money(20000), v.Summary.TotalMRP)

	// A later price hike does not touch the open cart.
	p.Price = 99999
	f.products.byID[p.ID] = p
	v, err = f.svc.Get(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, pricing.Money(20000), v.Summary.TotalMRP)
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	t.Parallel()

	f := newFixture()
	p := f.addProduct(10000, 500)
	p.Active = false
	f.products.byID[p.ID] = p

	_, err := f.svc.AddItem(context.Background(), uuid.New(), p.ID, 1)
	require.ErrorIs(t, err, cart.ErrInvalidInput)
}

func TestUpdateQtyZeroRemovesLine(t *testing.T) {
	t.Parallel()

	f := newFixture()
	userID := uuid.New()
	p := f.addProduct(10000, 500)
	_, err := f.svc.AddItem(context.Background(), userID, p.ID, 2)
	require.NoError(t, err)

	v, err := f.svc.UpdateQty(context.Background(), userID, p.ID, 0)
	require.NoError(t, err)
	require.Empty(t, v.Items)
}

func TestApplyCouponReportsReason(t *testing.T) {
	t.Parallel()

	f := newFixture()
	userID := uuid.New()
	p := f.addProduct(10000, 500)
	_, err := f.svc.AddItem(context.Background(), userID, p.ID, 1)
	require.NoError(t, err)

	f.coupons.coupons["BIGSPEND"] = coupon.Coupon{
		ID: uuid.New(), Code: "BIGSPEND", Kind: coupon.KindFixed, Value: 500,
		MinOrderAmount: 50000, Scope: coupon.ScopeAllProducts, Status: coupon.StatusActive,
	}
	_, err = f.svc.ApplyCoupon(context.Background(), userID, "BIGSPEND")
	require.ErrorIs(t, err, coupon.ErrMinimumOrderNotMet)

	_, err = f.svc.ApplyCoupon(context.Background(), userID, "MISSING")
	require.ErrorIs(t, err, coupon.ErrNotFound)
}

func TestApplyCouponDiscountsSummary(t *testing.T) {
	t.Parallel()

	f := newFixture()
	userID := uuid.New()
	p := f.addProduct(10000, 500)
	_, err := f.svc.AddItem(context.Background(), userID, p.ID, 2)
	require.NoError(t, err)

	f.coupons.coupons["SAVE20"] = coupon.Coupon{
		ID: uuid.New(), Code: "SAVE20", Kind: coupon.KindPercent, PercentBps: 2000,
		Scope: coupon.ScopeAllProducts, Status: coupon.StatusActive,
	}
	v, err := f.svc.ApplyCoupon(context.Background(), userID, "SAVE20")
	require.NoError(t, err)
	require.Equal(t, "SAVE20", v.Cart.CouponCode)
	require.Equal(t, pricing.Money(4000), v.Summary.TotalDiscount)
	require.Equal(t, pricing.Money(16000), v.Summary.GrandTotal)
}

func TestQuoteDeliveryUsesCartWeight(t *testing.T) {
	t.Parallel()

	f := newFixture()
	userID := uuid.New()
	p := f.addProduct(10000, 500)
	_, err := f.svc.AddItem(context.Background(), userID, p.ID, 2)
	require.NoError(t, err)

	vendorLoc := orb.Point{77.0, 28.0}
	f.vendors.byID[p.VendorID] = vendor.Vendor{
		ID: p.VendorID, Location: vendorLoc, DeliveryRadiusKm: 5,
	}
	addr := address.Address{ID: uuid.New(), UserID: userID, Location: vendorLoc}
	f.addresses.byID[addr.ID] = addr

	quote, err := f.svc.QuoteDelivery(context.Background(), userID, addr.ID)
	require.NoError(t, err)
	require.Equal(t, delivery.TierLocal, quote.Tier)
	require.Equal(t, pricing.Money(5000), quote.Charge)
}

func TestQuoteDeliveryEmptyCart(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_, err := f.svc.QuoteDelivery(context.Background(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, cart.ErrInvalidInput)
}
