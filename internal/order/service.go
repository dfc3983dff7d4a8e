package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bazaar-labs/bazaar-api/internal/address"
	"github.com/bazaar-labs/bazaar-api/internal/cart"
	"github.com/bazaar-labs/bazaar-api/internal/coupon"
	"github.com/bazaar-labs/bazaar-api/internal/delivery"
	"github.com/bazaar-labs/bazaar-api/internal/events"
	"github.com/bazaar-labs/bazaar-api/internal/pricing"
	"github.com/bazaar-labs/bazaar-api/internal/vendor"
)

type storeAPI interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Get(ctx context.Context, id uuid.UUID) (Order, []Item, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]Order, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, limit, offset int32) ([]Order, error)
}

type cartReader interface {
	Get(ctx context.Context, userID uuid.UUID) (cart.Cart, error)
	Items(ctx context.Context, cartID uuid.UUID) ([]cart.Item, error)
}

type vendorGetter interface {
	Get(ctx context.Context, id uuid.UUID) (vendor.Vendor, error)
}

type addressGetter interface {
	Get(ctx context.Context, userID, id uuid.UUID) (address.Address, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.Event, error)
}

type locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service turns carts into orders and walks them through their lifecycle.
type Service struct {
	Store      storeAPI
	Carts      cartReader
	Vendors    vendorGetter
	Addresses  addressGetter
	Calculator delivery.Calculator
	Bus        eventEmitter
	Lock       locker
	LockTTL    time.Duration
	Log        zerolog.Logger
	Now        func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CheckoutInput selects how and where the order should be fulfilled.
type CheckoutInput struct {
	Fulfillment string
	AddressID   uuid.UUID
}

// Preview is the priced outcome of a checkout before it is committed.
type Preview struct {
	Items       []cart.Item
	Summary     pricing.Summary
	Quote       delivery.Quote
	Fulfillment string
	Coupon      coupon.Coupon
	HasCoupon   bool
	VendorID    uuid.UUID
}

// quote resolves the delivery leg for the cart. Pickup orders carry no
// charge; delivery orders anchor the route on the first line's vendor.
func (s Service) quote(ctx context.Context, userID uuid.UUID, items []cart.Item, in CheckoutInput) (delivery.Quote, error) {
	if in.Fulfillment == FulfillmentPickup {
		return delivery.Quote{}, nil
	}
	if in.AddressID == uuid.Nil {
		return delivery.Quote{}, fmt.Errorf("%w: delivery orders need an address", ErrInvalidInput)
	}
	v, err := s.Vendors.Get(ctx, items[0].VendorID)
	if err != nil {
		return delivery.Quote{}, err
	}
	a, err := s.Addresses.Get(ctx, userID, in.AddressID)
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

func normalizeInput(in CheckoutInput) (CheckoutInput, error) {
	switch in.Fulfillment {
	case "":
		in.Fulfillment = FulfillmentDelivery
	case FulfillmentDelivery, FulfillmentPickup:
	default:
		return in, fmt.Errorf("%w: unknown fulfillment %q", ErrInvalidInput, in.Fulfillment)
	}
	return in, nil
}

// PreviewCheckout prices the caller's cart without placing an order. The
// attached coupon is evaluated but its usage is not consumed.
func (s Service) PreviewCheckout(ctx context.Context, userID uuid.UUID, in CheckoutInput) (Preview, error) {
	if s.Store == nil || s.Carts == nil {
		return Preview{}, errors.New("order service not configured")
	}
	in, err := normalizeInput(in)
	if err != nil {
		return Preview{}, err
	}
	c, err := s.Carts.Get(ctx, userID)
	if err != nil {
		return Preview{}, err
	}
	items, err := s.Carts.Items(ctx, c.ID)
	if err != nil {
		return Preview{}, err
	}
	if len(items) == 0 {
		return Preview{}, ErrEmptyCart
	}

	q, err := s.quote(ctx, userID, items, in)
	if err != nil {
		return Preview{}, err
	}

	p := Preview{Items: items, Quote: q, Fulfillment: in.Fulfillment, VendorID: items[0].VendorID}
	lines := make([]pricing.LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.Line())
	}

	var perItem map[uuid.UUID]pricing.Money
	if c.CouponCode != "" {
		err := s.Store.InTx(ctx, func(tx Tx) error {
			var evalErr error
			p.Coupon, perItem, evalErr = s.evaluateCoupon(ctx, tx, userID, c.CouponCode, lines)
			return evalErr
		})
		if err != nil {
			return Preview{}, err
		}
		p.HasCoupon = true
	}
	p.Summary = pricing.Assemble(lines, perItem, q.Charge)
	return p, nil
}

// evaluateCoupon resolves and validates the code, then allocates the
// discount. The lookup runs on the checkout transaction so the usage it
// sees is the usage RecordCouponUsage will guard against.
func (s Service) evaluateCoupon(ctx context.Context, tx Tx, userID uuid.UUID, code string, lines []pricing.LineItem) (coupon.Coupon, map[uuid.UUID]pricing.Money, error) {
	cp, err := tx.CouponByCode(ctx, code)
	if err != nil {
		return coupon.Coupon{}, nil, err
	}
	used, err := tx.CouponUserUsage(ctx, cp.ID, userID)
	if err != nil {
		return coupon.Coupon{}, nil, err
	}
	if err := cp.Validate(s.now(), used); err != nil {
		return coupon.Coupon{}, nil, err
	}
	d, err := cp.ComputeDiscount(lines)
	if err != nil {
		return coupon.Coupon{}, nil, err
	}
	return cp, d.PerItem, nil
}

type placedPayload struct {
	OrderID    uuid.UUID     `json:"orderId"`
	UserID     uuid.UUID     `json:"userId"`
	VendorID   uuid.UUID     `json:"vendorId"`
	GrandTotal pricing.Money `json:"grandTotal"`
	CouponCode string        `json:"couponCode,omitempty"`
}

// Place commits the caller's cart as an order. Stock is reserved, the
// coupon usage is consumed and the cart is cleared, all in one
// transaction. A per-user lock serializes concurrent checkouts.
func (s Service) Place(ctx context.Context, userID uuid.UUID, in CheckoutInput) (Order, []Item, error) {
	if s.Store == nil || s.Carts == nil {
		return Order{}, nil, errors.New("order service not configured")
	}
	in, err := normalizeInput(in)
	if err != nil {
		return Order{}, nil, err
	}

	var (
		placed Order
		lines  []Item
	)
	run := func(ctx context.Context) error {
		placed, lines, err = s.place(ctx, userID, in)
		return err
	}
	if s.Lock != nil {
		ttl := s.LockTTL
		if ttl <= 0 {
			ttl = 10 * time.Second
		}
		if lockErr := s.Lock.WithLock(ctx, "checkout:"+userID.String(), ttl, run); lockErr != nil {
			return Order{}, nil, lockErr
		}
	} else if err := run(ctx); err != nil {
		return Order{}, nil, err
	}

	if s.Bus != nil {
		_, emitErr := s.Bus.Emit(ctx, events.TopicOrderPlaced, placed.ID, placedPayload{
			OrderID:    placed.ID,
			UserID:     placed.UserID,
			VendorID:   placed.VendorID,
			GrandTotal: placed.GrandTotal,
			CouponCode: placed.CouponCode,
		})
		if emitErr != nil {
			s.Log.Warn().Err(emitErr).Stringer("order_id", placed.ID).Msg("order placed event failed")
		}
	}
	return placed, lines, nil
}

func (s Service) place(ctx context.Context, userID uuid.UUID, in CheckoutInput) (Order, []Item, error) {
	c, err := s.Carts.Get(ctx, userID)
	if err != nil {
		return Order{}, nil, err
	}
	items, err := s.Carts.Items(ctx, c.ID)
	if err != nil {
		return Order{}, nil, err
	}
	if len(items) == 0 {
		return Order{}, nil, ErrEmptyCart
	}

	q, err := s.quote(ctx, userID, items, in)
	if err != nil {
		return Order{}, nil, err
	}

	pricingLines := make([]pricing.LineItem, 0, len(items))
	for _, it := range items {
		pricingLines = append(pricingLines, it.Line())
	}

	var (
		placed     Order
		orderLines []Item
	)
	err = s.Store.InTx(ctx, func(tx Tx) error {
		for _, it := range items {
			if err := tx.ReserveStock(ctx, it.ProductID, it.Qty); err != nil {
				return err
			}
		}

		var (
			perItem map[uuid.UUID]pricing.Money
			cp      coupon.Coupon
		)
		if c.CouponCode != "" {
			var evalErr error
			cp, perItem, evalErr = s.evaluateCoupon(ctx, tx, userID, c.CouponCode, pricingLines)
			if evalErr != nil {
				return evalErr
			}
			if err := tx.RecordCouponUsage(ctx, cp, userID); err != nil {
				return err
			}
		}

		sum := pricing.Assemble(pricingLines, perItem, q.Charge)

		o := Order{
			UserID:         userID,
			VendorID:       items[0].VendorID,
			AddressID:      in.AddressID,
			Status:         StatusPlaced,
			Fulfillment:    in.Fulfillment,
			CouponID:       cp.ID,
			CouponCode:     cp.Code,
			TotalMRP:       sum.TotalMRP,
			TotalDiscount:  sum.TotalDiscount,
			DeliveryCharge: sum.DeliveryCharge,
			DeliveryTier:   string(q.Tier),
			DistanceKm:     q.DistanceKm,
			GrandTotal:     sum.GrandTotal,
		}
		if in.Fulfillment == FulfillmentPickup {
			o.AddressID = uuid.Nil
		}

		lines := make([]Item, 0, len(items))
		for i, it := range items {
			lines = append(lines, Item{
				ProductID:   it.ProductID,
				Title:       it.Title,
				Qty:         it.Qty,
				UnitPrice:   it.UnitPrice,
				WeightGrams: it.WeightGrams,
				MRP:         sum.Items[i].MRP,
				Discount:    sum.Items[i].Discount,
				Total:       sum.Items[i].Total,
			})
		}

		placed, err = tx.InsertOrder(ctx, o, lines)
		if err != nil {
			return err
		}
		orderLines = attachOrderID(placed.ID, lines)
		return tx.ClearCart(ctx, c.ID)
	})
	if err != nil {
		return Order{}, nil, err
	}
	return placed, orderLines, nil
}

func attachOrderID(id uuid.UUID, lines []Item) []Item {
	for i := range lines {
		lines[i].OrderID = id
	}
	return lines
}

type canceledPayload struct {
	OrderID uuid.UUID `json:"orderId"`
	UserID  uuid.UUID `json:"userId"`
	Reason  string    `json:"reason,omitempty"`
}

// Cancel voids a buyer's order while it is still placed or confirmed.
// Reserved stock returns to the shelf and any coupon usage is released.
func (s Service) Cancel(ctx context.Context, userID, orderID uuid.UUID, reason string) (Order, error) {
	if s.Store == nil {
		return Order{}, errors.New("order service not configured")
	}
	var canceled Order
	err := s.Store.InTx(ctx, func(tx Tx) error {
		o, items, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return ErrNotFound
		}
		switch o.Status {
		case StatusPlaced, StatusConfirmed:
		default:
			return fmt.Errorf("%w: status %s", ErrNotCancelable, o.Status)
		}
		for _, it := range items {
			if err := tx.RestoreStock(ctx, it.ProductID, it.Qty); err != nil {
				return err
			}
		}
		if o.CouponID != uuid.Nil {
			if err := tx.ReleaseCouponUsage(ctx, o.CouponID, o.UserID, s.now()); err != nil {
				return err
			}
		}
		if err := tx.SetStatus(ctx, o.ID, StatusCanceled); err != nil {
			return err
		}
		o.Status = StatusCanceled
		canceled = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if s.Bus != nil {
		_, emitErr := s.Bus.Emit(ctx, events.TopicOrderCanceled, canceled.ID, canceledPayload{
			OrderID: canceled.ID,
			UserID:  canceled.UserID,
			Reason:  reason,
		})
		if emitErr != nil {
			s.Log.Warn().Err(emitErr).Stringer("order_id", canceled.ID).Msg("order canceled event failed")
		}
	}
	return canceled, nil
}

// transitions maps a status to the states a vendor may move it to.
var transitions = map[string][]string{
	StatusPlaced:    {StatusConfirmed, StatusCanceled},
	StatusConfirmed: {StatusShipped, StatusCanceled},
	StatusShipped:   {StatusDelivered},
}

// SetStatus advances an order through its lifecycle on behalf of the
// vendor that owns it. Cancellation through this path restores stock
// and coupon usage just like a buyer cancel.
func (s Service) SetStatus(ctx context.Context, vendorID, orderID uuid.UUID, status string) (Order, error) {
	if s.Store == nil {
		return Order{}, errors.New("order service not configured")
	}
	var updated Order
	err := s.Store.InTx(ctx, func(tx Tx) error {
		o, items, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.VendorID != vendorID {
			return ErrNotFound
		}
		if !allowed(o.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, status)
		}
		if status == StatusCanceled {
			for _, it := range items {
				if err := tx.RestoreStock(ctx, it.ProductID, it.Qty); err != nil {
					return err
				}
			}
			if o.CouponID != uuid.Nil {
				if err := tx.ReleaseCouponUsage(ctx, o.CouponID, o.UserID, s.now()); err != nil {
					return err
				}
			}
		}
		if err := tx.SetStatus(ctx, o.ID, status); err != nil {
			return err
		}
		o.Status = status
		updated = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if status == StatusCanceled && s.Bus != nil {
		_, emitErr := s.Bus.Emit(ctx, events.TopicOrderCanceled, updated.ID, canceledPayload{
			OrderID: updated.ID,
			UserID:  updated.UserID,
			Reason:  "canceled by vendor",
		})
		if emitErr != nil {
			s.Log.Warn().Err(emitErr).Stringer("order_id", updated.ID).Msg("order canceled event failed")
		}
	}
	return updated, nil
}

func allowed(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Get returns an order visible to the caller: the buyer who placed it
// or the vendor fulfilling it.
func (s Service) Get(ctx context.Context, callerID, orderID uuid.UUID, callerVendorID uuid.UUID) (Order, []Item, error) {
	if s.Store == nil {
		return Order{}, nil, errors.New("order service not configured")
	}
	o, items, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return Order{}, nil, err
	}
	if o.UserID != callerID && (callerVendorID == uuid.Nil || o.VendorID != callerVendorID) {
		return Order{}, nil, ErrNotFound
	}
	return o, items, nil
}

// ListByUser returns the caller's order history.
func (s Service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]Order, error) {
	if s.Store == nil {
		return nil, errors.New("order service not configured")
	}
	return s.Store.ListByUser(ctx, userID, limit, offset)
}

// ListByVendor returns the orders a vendor has to fulfil.
func (s Service) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit, offset int32) ([]Order, error) {
	if s.Store == nil {
		return nil, errors.New("order service not configured")
	}
	return s.Store.ListByVendor(ctx, vendorID, limit, offset)
}
