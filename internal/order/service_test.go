package order_test

import (
	"context"
	"sync"
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
	"github.com/bazaar-labs/bazaar-api/internal/events"
	"github.com/bazaar-labs/bazaar-api/internal/order"
	"github.com/bazaar-labs/bazaar-api/internal/vendor"
)

func fixedNow() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

// world is the shared in-memory state the fake store transacts over.
type world struct {
	mu      sync.Mutex
	stock   map[uuid.UUID]int32
	coupons map[string]coupon.Coupon
	usages  map[uuid.UUID]map[uuid.UUID]int32
	orders  map[uuid.UUID]order.Order
	items   map[uuid.UUID][]order.Item
	cleared map[uuid.UUID]bool
}

func newWorld() *world {
	return &world{
		stock:   map[uuid.UUID]int32{},
		coupons: map[string]coupon.Coupon{},
		usages:  map[uuid.UUID]map[uuid.UUID]int32{},
		orders:  map[uuid.UUID]order.Order{},
		items:   map[uuid.UUID][]order.Item{},
		cleared: map[uuid.UUID]bool{},
	}
}

func (w *world) snapshot() *world {
	s := newWorld()
	for k, v := range w.stock {
		s.stock[k] = v
	}
	for k, v := range w.coupons {
		s.coupons[k] = v
	}
	for k, v := range w.usages {
		m := map[uuid.UUID]int32{}
		for uk, uv := range v {
			m[uk] = uv
		}
		s.usages[k] = m
	}
	for k, v := range w.orders {
		s.orders[k] = v
	}
	for k, v := range w.items {
		s.items[k] = append([]order.Item(nil), v...)
	}
	for k, v := range w.cleared {
		s.cleared[k] = v
	}
	return s
}

func (w *world) restore(s *world) {
	w.stock, w.coupons, w.usages = s.stock, s.coupons, s.usages
	w.orders, w.items, w.cleared = s.orders, s.items, s.cleared
}

type fakeStore struct {
	w *world
}

func (f fakeStore) InTx(ctx context.Context, fn func(tx order.Tx) error) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	snap := f.w.snapshot()
	if err := fn(fakeTx{w: f.w}); err != nil {
		f.w.restore(snap)
		return err
	}
	return nil
}

func (f fakeStore) Get(ctx context.Context, id uuid.UUID) (order.Order, []order.Item, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	o, ok := f.w.orders[id]
	if !ok {
		return order.Order{}, nil, order.ErrNotFound
	}
	return o, f.w.items[id], nil
}

func (f fakeStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]order.Order, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []order.Order
	for _, o := range f.w.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f fakeStore) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit, offset int32) ([]order.Order, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []order.Order
	for _, o := range f.w.orders {
		if o.VendorID == vendorID {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakeTx struct {
	w *world
}

func (t fakeTx) ReserveStock(ctx context.Context, productID uuid.UUID, qty int32) error {
	have, ok := t.w.stock[productID]
	if !ok {
		return catalog.ErrNotFound
	}
	if have < qty {
		return catalog.ErrOutOfStock
	}
	t.w.stock[productID] = have - qty
	return nil
}

func (t fakeTx) RestoreStock(ctx context.Context, productID uuid.UUID, qty int32) error {
	t.w.stock[productID] += qty
	return nil
}

func (t fakeTx) CouponByCode(ctx context.Context, code string) (coupon.Coupon, error) {
	c, ok := t.w.coupons[code]
	if !ok {
		return coupon.Coupon{}, coupon.ErrNotFound
	}
	return c, nil
}

func (t fakeTx) CouponUserUsage(ctx context.Context, couponID, userID uuid.UUID) (int32, error) {
	return t.w.usages[couponID][userID], nil
}

func (t fakeTx) RecordCouponUsage(ctx context.Context, c coupon.Coupon, userID uuid.UUID) error {
	stored := t.w.coupons[c.Code]
	if stored.TotalLimit > 0 && stored.UsedCount >= stored.TotalLimit {
		return coupon.ErrGlobalLimitReached
	}
	stored.UsedCount++
	t.w.coupons[c.Code] = stored
	if t.w.usages[c.ID] == nil {
		t.w.usages[c.ID] = map[uuid.UUID]int32{}
	}
	t.w.usages[c.ID][userID]++
	return nil
}

func (t fakeTx) ReleaseCouponUsage(ctx context.Context, couponID, userID uuid.UUID, now time.Time) error {
	for code, c := range t.w.coupons {
		if c.ID == couponID && c.UsedCount > 0 {
			c.UsedCount--
			t.w.coupons[code] = c
		}
	}
	if m := t.w.usages[couponID]; m[userID] > 0 {
		m[userID]--
	}
	return nil
}

func (t fakeTx) InsertOrder(ctx context.Context, o order.Order, items []order.Item) (order.Order, error) {
	o.ID = uuid.New()
	o.PlacedAt = fixedNow()
	o.UpdatedAt = fixedNow()
	t.w.orders[o.ID] = o
	t.w.items[o.ID] = items
	return o, nil
}

func (t fakeTx) OrderForUpdate(ctx context.Context, id uuid.UUID) (order.Order, []order.Item, error) {
	o, ok := t.w.orders[id]
	if !ok {
		return order.Order{}, nil, order.ErrNotFound
	}
	return o, t.w.items[id], nil
}

func (t fakeTx) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	o, ok := t.w.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	t.w.orders[id] = o
	return nil
}

func (t fakeTx) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	t.w.cleared[cartID] = true
	return nil
}

type fakeCarts struct {
	cart  cart.Cart
	items []cart.Item
}

func (f fakeCarts) Get(ctx context.Context, userID uuid.UUID) (cart.Cart, error) {
	if f.cart.UserID != userID {
		return cart.Cart{}, cart.ErrNotFound
	}
	return f.cart, nil
}

func (f fakeCarts) Items(ctx context.Context, cartID uuid.UUID) ([]cart.Item, error) {
	return f.items, nil
}

type fakeVendors struct {
	v vendor.Vendor
}

func (f fakeVendors) Get(ctx context.Context, id uuid.UUID) (vendor.Vendor, error) {
	if f.v.ID != id {
		return vendor.Vendor{}, vendor.ErrNotFound
	}
	return f.v, nil
}

type fakeAddresses struct {
	a address.Address
}

func (f fakeAddresses) Get(ctx context.Context, userID, id uuid.UUID) (address.Address, error) {
	if f.a.ID != id || f.a.UserID != userID {
		return address.Address{}, address.ErrNotFound
	}
	return f.a, nil
}

type fakeBus struct {
	mu     sync.Mutex
	topics []string
}

func (f *fakeBus) Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	return events.Event{ID: int64(len(f.topics)), Topic: topic, AggregateID: aggregateID}, nil
}

type fixture struct {
	svc      order.Service
	w        *world
	bus      *fakeBus
	userID   uuid.UUID
	cartID   uuid.UUID
	vendorID uuid.UUID
	addrID   uuid.UUID
	prodA    uuid.UUID
	prodB    uuid.UUID
}

// newFixture wires a cart with two lines from one shop. Product A costs
// 10000 a unit at 500g, product B 5000 a unit at 300g, buyer at the
// shop's own coordinates so delivery prices as the local flat charge.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		w:        newWorld(),
		bus:      &fakeBus{},
		userID:   uuid.New(),
		cartID:   uuid.New(),
		vendorID: uuid.New(),
		addrID:   uuid.New(),
		prodA:    uuid.New(),
		prodB:    uuid.New(),
	}
	f.w.stock[f.prodA] = 10
	f.w.stock[f.prodB] = 10

	loc := orb.Point{77.20, 28.61}
	carts := fakeCarts{
		cart: cart.Cart{ID: f.cartID, UserID: f.userID},
		items: []cart.Item{
			{CartID: f.cartID, ProductID: f.prodA, VendorID: f.vendorID, Title: "Masala Tin", Qty: 2, UnitPrice: 10000, WeightGrams: 500},
			{CartID: f.cartID, ProductID: f.prodB, VendorID: f.vendorID, Title: "Tea Pack", Qty: 1, UnitPrice: 5000, WeightGrams: 300},
		},
	}
	f.svc = order.Service{
		Store: fakeStore{w: f.w},
		Carts: carts,
		Vendors: fakeVendors{v: vendor.Vendor{
			ID: f.vendorID, Name: "Spice Works", Location: loc, DeliveryRadiusKm: 5,
		}},
		Addresses: fakeAddresses{a: address.Address{
			ID: f.addrID, UserID: f.userID, Location: loc,
		}},
		Calculator: delivery.Calculator{
			BaseCharge:         5000,
			BaseDistanceKm:     2,
			PerKmCharge:        1000,
			FallbackCharge:     5000,
			LongHaulFallback:   20000,
			DefaultRadiusKm:    5,
			DefaultWeightGrams: 200,
		},
		Bus: f.bus,
		Now: fixedNow,
	}
	return f
}

func (f *fixture) withCoupon(c coupon.Coupon) {
	f.w.coupons[c.Code] = c
	carts := f.svc.Carts.(fakeCarts)
	carts.cart.CouponCode = c.Code
	f.svc.Carts = carts
}

func TestPlaceDeliveryOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	o, items, err := f.svc.Place(context.Background(), f.userID, order.CheckoutInput{
		Fulfillment: order.FulfillmentDelivery,
		AddressID:   f.addrID,
	})
	require.NoError(t, err)

	require.Equal(t, order.StatusPlaced, o.Status)
	require.EqualValues(t, 25000, o.TotalMRP)
	require.EqualValues(t, 0, o.TotalDiscount)
	require.EqualValues(t, 5000, o.DeliveryCharge)
	require.Equal(t, string(delivery.TierLocal), o.DeliveryTier)
	require.EqualValues(t, 30000, o.GrandTotal)
	require.Len(t, items, 2)
	require.Equal(t, o.ID, items[0].OrderID)

	require.EqualValues(t, 8, f.w.stock[f.prodA])
	require.EqualValues(t, 9, f.w.stock[f.prodB])
	require.True(t, f.w.cleared[f.cartID])
	require.Equal(t, []string{events.TopicOrderPlaced}, f.bus.topics)
}

func TestPlacePickupSkipsDelivery(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	o, _, err := f.svc.Place(context.Background(), f.userID, order.CheckoutInput{
		Fulfillment: order.FulfillmentPickup,
	})
	require.NoError(t, err)
	require.EqualValues(t, 0, o.DeliveryCharge)
	require.Empty(t, o.DeliveryTier)
	require.EqualValues(t, 25000, o.GrandTotal)
	require.Equal(t, uuid.Nil, o.AddressID)
}

func TestPlaceDeliveryNeedsAddress(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, _, err := f.svc.Place(context.Background(), f.userID, order.CheckoutInput{
		Fulfillment: order.FulfillmentDelivery,
	})
	require.ErrorIs(t, err, order.ErrInvalidInput)
}

func TestPlaceConsumesCoupon(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.withCoupon(coupon.Coupon{
		ID:         uuid.New(),
		Code:       "SAVE20",
		Kind:       coupon.KindPercent,
		PercentBps: 2000,
		Scope:      coupon.ScopeAllProducts,
		Status:     coupon.StatusActive,
	})

	o, _, err := f.svc.Place(context.Background(), f.userID, order.CheckoutInput{
		Fulfillment: order.FulfillmentPickup,
	})
	require.NoError(t, err)
	require.EqualValues(t, 5000, o.TotalDiscount)
	require.EqualValues(t, 20000, o.GrandTotal)
	require.Equal(t, "SAVE20", o.CouponCode)
	require.EqualValues(t, 1, f.w.coupons["SAVE20"].UsedCount)
}

func TestPlaceRollsBackOnOutOfStock(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.withCoupon(coupon.Coupon{
		ID:         uuid.New(),
		Code:       "SAVE20",
		Kind:       coupon.KindPercent,
		PercentBps: 2000,
		Scope:      coupon.ScopeAllProducts,
		Status:     coupon.StatusActive,
	})
	f.w.stock[f.prodB] = 0

	_, _, err := f.svc.Place(context.Background(), f.userID, order.CheckoutInput{
		Fulfillment: order.FulfillmentPickup,
	})
	require.ErrorIs(t, err, catalog.ErrOutOfStock)

	require.EqualValues(t, 10, f.w.stock[f.prodA])
	require.EqualValues(t, 0, f.w.coupons["SAVE20"].UsedCount)
	require.False(t, f.w.cleared[f.cartID])
	require.Empty(t, f.bus.topics)
}

func TestPlaceEmptyCart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	carts := f.svc.Carts.(fakeCarts)
	carts.items = nil
	f.svc.Carts = carts

	_, _, err := f.svc.Place(context.Background(), f.userID, order.CheckoutInput{
		Fulfillment: order.FulfillmentPickup,
	})
	require.ErrorIs(t, err, order.ErrEmptyCart)
}

func TestPreviewDoesNotConsumeCoupon(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.withCoupon(coupon.Coupon{
		ID:         uuid.New(),
		Code:       "SAVE20",
		Kind:       coupon.KindPercent,
		PercentBps: 2000,
		Scope:      coupon.ScopeAllProducts,
		Status:     coupon.StatusActive,
	})

	p, err := f.svc.PreviewCheckout(context.Background(), f.userID, order.CheckoutInput{
		Fulfillment: order.FulfillmentDelivery,
		AddressID:   f.addrID,
	})
	require.NoError(t, err)
	require.EqualValues(t, 5000, p.Summary.TotalDiscount)
	require.EqualValues(t, 25000, p.Summary.GrandTotal)
	require.True(t, p.HasCoupon)

	require.EqualValues(t, 0, f.w.coupons["SAVE20"].UsedCount)
	require.False(t, f.w.cleared[f.cartID])
	require.Empty(t, f.bus.topics)
}

func TestCancelRestoresStockAndCoupon(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.withCoupon(coupon.Coupon{
		ID:         uuid.New(),
		Code:       "SAVE20",
		Kind:       coupon.KindPercent,
		PercentBps: 2000,
		Scope:      coupon.ScopeAllProducts,
		Status:     coupon.StatusActive,
	})

	o, _, err := f.svc.Place(context.Background(), f.userID, order.CheckoutInput{
		Fulfillment: order.FulfillmentPickup,
	})
	require.NoError(t, err)

	canceled, err := f.svc.Cancel(context.Background(), f.userID, o.ID, "changed my mind")
	require.NoError(t, err)
	require.Equal(t, order.StatusCanceled, canceled.Status)

	require.EqualValues(t, 10, f.w.stock[f.prodA])
	require.EqualValues(t, 10, f.w.stock[f.prodB])
	require.EqualValues(t, 0, f.w.coupons["SAVE20"].UsedCount)
	require.Equal(t, []string{events.TopicOrderPlaced, events.TopicOrderCanceled}, f.bus.topics)
}

func TestCancelOnlyWhileEarly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	o, _, err := f.svc.Place(context.Background(), f.userID, order.CheckoutInput{
		Fulfillment: order.FulfillmentPickup,
	})
	require.NoError(t, err)

	_, err = f.svc.SetStatus(context.Background(), f.vendorID, o.ID, order.StatusConfirmed)
	require.NoError(t, err)
	_, err = f.svc.SetStatus(context.Background(), f.vendorID, o.ID, order.StatusShipped)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), f.userID, o.ID, "")
	require.ErrorIs(t, err, order.ErrNotCancelable)
}

func TestCancelScopedToOwner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	o, _, err := f.svc.Place(context.Background(), f.userID, order.CheckoutInput{
		Fulfillment: order.FulfillmentPickup,
	})
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), uuid.New(), o.ID, "")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestVendorStatusTransitions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	o, _, err := f.svc.Place(context.Background(), f.userID, order.CheckoutInput{
		Fulfillment: order.FulfillmentPickup,
	})
	require.NoError(t, err)

	_, err = f.svc.SetStatus(context.Background(), f.vendorID, o.ID, order.StatusDelivered)
	require.ErrorIs(t, err, order.ErrInvalidTransition)

	updated, err := f.svc.SetStatus(context.Background(), f.vendorID, o.ID, order.StatusConfirmed)
	require.NoError(t, err)
	require.Equal(t, order.StatusConfirmed, updated.Status)

	_, err = f.svc.SetStatus(context.Background(), uuid.New(), o.ID, order.StatusShipped)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestVendorCancelReleasesStock(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	o, _, err := f.svc.Place(context.Background(), f.userID, order.CheckoutInput{
		Fulfillment: order.FulfillmentPickup,
	})
	require.NoError(t, err)

	updated, err := f.svc.SetStatus(context.Background(), f.vendorID, o.ID, order.StatusCanceled)
	require.NoError(t, err)
	require.Equal(t, order.StatusCanceled, updated.Status)
	require.EqualValues(t, 10, f.w.stock[f.prodA])
	require.EqualValues(t, 10, f.w.stock[f.prodB])
}
