package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bazaar-labs/bazaar-api/internal/address"
	"github.com/bazaar-labs/bazaar-api/internal/catalog"
	"github.com/bazaar-labs/bazaar-api/internal/coupon"
	"github.com/bazaar-labs/bazaar-api/internal/delivery"
	"github.com/bazaar-labs/bazaar-api/internal/pricing"
	"github.com/bazaar-labs/bazaar-api/internal/vendor"
)

type storeAPI interface {
	Ensure(ctx context.Context, userID uuid.UUID) (Cart, error)
	Get(ctx context.Context, userID uuid.UUID) (Cart, error)
	Items(ctx context.Context, cartID uuid.UUID) ([]Item, error)
	UpsertItem(ctx context.Context, it Item) error
	SetItemQty(ctx context.Context, cartID, productID uuid.UUID, qty int32) error
	RemoveItem(ctx context.Context, cartID, productID uuid.UUID) error
	SetCoupon(ctx context.Context, cartID uuid.UUID, code string) error
	Clear(ctx context.Context, cartID uuid.UUID) error
}

type productGetter interface {
	GetProduct(ctx context.Context, id uuid.UUID) (catalog.Product, error)
}

type couponEvaluator interface {
	Evaluate(ctx context.Context, userID uuid.UUID, code string, items []pricing.LineItem) (coupon.Coupon, coupon.Discount, error)
}

type vendorGetter interface {
	Get(ctx context.Context, id uuid.UUID) (vendor.Vendor, error)
}

type addressGetter interface {
	Get(ctx context.Context, userID, id uuid.UUID) (address.Address, error)
}

// Service encapsulates cart domain operations.
type Service struct {
	Store      storeAPI
	Products   productGetter
	Coupons    couponEvaluator
	Vendors    vendorGetter
	Addresses  addressGetter
	Calculator delivery.Calculator
	Log        zerolog.Logger
}

// View is a cart with its lines and a freshly computed summary.
type View struct {
	Cart    Cart
	Items   []Item
	Summary pricing.Summary
}

// Get returns the user's cart with a summary computed on the fly. An
// attached coupon that no longer validates contributes no discount; the
// code stays on the cart so checkout can report the reason.
func (s Service) Get(ctx context.Context, userID uuid.UUID) (View, error) {
	if s.Store == nil {
		return View{}, errors.New("cart service not configured")
	}
	c, err := s.Store.Ensure(ctx, userID)
	if err != nil {
		return View{}, err
	}
	items, err := s.Store.Items(ctx, c.ID)
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, c, items), nil
}

func (s Service) view(ctx context.Context, c Cart, items []Item) View {
	lines := make([]pricing.LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.Line())
	}
	var discounts map[uuid.UUID]pricing.Money
	if c.CouponCode != "" && s.Coupons != nil {
		_, d, err := s.Coupons.Evaluate(ctx, c.UserID, c.CouponCode, lines)
		if err != nil {
			s.Log.Debug().Err(err).Str("code", c.CouponCode).Msg("cart coupon no longer applies")
		} else {
			discounts = d.PerItem
		}
	}
	return View{Cart: c, Items: items, Summary: pricing.Assemble(lines, discounts, 0)}
}

// AddItem snapshots the product into the cart.
func (s Service) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int32) (View, error) {
	if s.Store == nil || s.Products == nil {
		return View{}, errors.New("cart service not configured")
	}
	if qty <= 0 {
		return View{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	p, err := s.Products.GetProduct(ctx, productID)
	if err != nil {
		return View{}, err
	}
	if !p.Active {
		return View{}, fmt.Errorf("%w: product not available", ErrInvalidInput)
	}
	c, err := s.Store.Ensure(ctx, userID)
	if err != nil {
		return View{}, err
	}
	err = s.Store.UpsertItem(ctx, Item{
		CartID:      c.ID,
		ProductID:   p.ID,
		VendorID:    p.VendorID,
		CategoryID:  p.CategoryID,
		Title:       p.Title,
		Qty:         qty,
		UnitPrice:   p.Price,
		WeightGrams: p.WeightGrams,
	})
	if err != nil {
		return View{}, err
	}
	return s.Get(ctx, userID)
}

// UpdateQty overwrites a line quantity; zero removes the line.
func (s Service) UpdateQty(ctx context.Context, userID, productID uuid.UUID, qty int32) (View, error) {
	if s.Store == nil {
		return View{}, errors.New("cart service not configured")
	}
	if qty < 0 {
		return View{}, fmt.Errorf("%w: quantity cannot be negative", ErrInvalidInput)
	}
	c, err := s.Store.Ensure(ctx, userID)
	if err != nil {
		return View{}, err
	}
	if qty == 0 {
		err = s.Store.RemoveItem(ctx, c.ID, productID)
	} else {
		err = s.Store.SetItemQty(ctx, c.ID, productID, qty)
	}
	if err != nil {
		return View{}, err
	}
	return s.Get(ctx, userID)
}

// RemoveItem deletes a line.
func (s Service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (View, error) {
	if s.Store == nil {
		return View{}, errors.New("cart service not configured")
	}
	c, err := s.Store.Ensure(ctx, userID)
	if err != nil {
		return View{}, err
	}
	if err := s.Store.RemoveItem(ctx, c.ID, productID); err != nil {
		return View{}, err
	}
	return s.Get(ctx, userID)
}

// ApplyCoupon validates the code against the current lines before
// attaching it, so the caller gets the concrete rejection reason.
func (s Service) ApplyCoupon(ctx context.Context, userID uuid.UUID, code string) (View, error) {
	if s.Store == nil || s.Coupons == nil {
		return View{}, errors.New("cart service not configured")
	}
	c, err := s.Store.Ensure(ctx, userID)
	if err != nil {
		return View{}, err
	}
	items, err := s.Store.Items(ctx, c.ID)
	if err != nil {
		return View{}, err
	}
	lines := make([]pricing.LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.Line())
	}
	applied, _, err := s.Coupons.Evaluate(ctx, userID, code, lines)
	if err != nil {
		return View{}, err
	}
	if err := s.Store.SetCoupon(ctx, c.ID, applied.Code); err != nil {
		return View{}, err
	}
	c.CouponCode = applied.Code
	return s.view(ctx, c, items), nil
}

// RemoveCoupon detaches any coupon from the cart.
func (s Service) RemoveCoupon(ctx context.Context, userID uuid.UUID) (View, error) {
	if s.Store == nil {
		return View{}, errors.New("cart service not configured")
	}
	c, err := s.Store.Ensure(ctx, userID)
	if err != nil {
		return View{}, err
	}
	if err := s.Store.SetCoupon(ctx, c.ID, ""); err != nil {
		return View{}, err
	}
	c.CouponCode = ""
	items, err := s.Store.Items(ctx, c.ID)
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, c, items), nil
}

// QuoteDelivery prices delivery of the current cart to one of the user's
// addresses. The vendor of the first line anchors the route; carts are
// single-vendor at checkout.
func (s Service) QuoteDelivery(ctx context.Context, userID, addressID uuid.UUID) (delivery.Quote, error) {
	if s.Store == nil || s.Vendors == nil || s.Addresses == nil {
		return delivery.Quote{}, errors.New("cart service not configured")
	}
	c, err := s.Store.Ensure(ctx, userID)
	if err != nil {
		return delivery.Quote{}, err
	}
	items, err := s.Store.Items(ctx, c.ID)
	if err != nil {
		return delivery.Quote{}, err
	}
	if len(items) == 0 {
		return delivery.Quote{}, fmt.Errorf("%w: cart is empty", ErrInvalidInput)
	}
	v, err := s.Vendors.Get(ctx, items[0].VendorID)
	if err != nil {
		return delivery.Quote{}, err
	}
	a, err := s.Addresses.Get(ctx, userID, addressID)
	if err != nil {
		return delivery.Quote{}, err
	}
	lines := make([]pricing.LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.Line())
	}
	weight := pricing.TotalWeightGrams(lines, s.Calculator.DefaultWeightGrams)
	return s.Calculator.Charge(v.Location, a.Location, v.DeliveryRadiusKm, weight)
}
