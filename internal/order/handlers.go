package order

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bazaar-labs/bazaar-api/internal/address"
	"github.com/bazaar-labs/bazaar-api/internal/cart"
	"github.com/bazaar-labs/bazaar-api/internal/catalog"
	"github.com/bazaar-labs/bazaar-api/internal/common"
	"github.com/bazaar-labs/bazaar-api/internal/coupon"
	"github.com/bazaar-labs/bazaar-api/internal/obs"
	"github.com/bazaar-labs/bazaar-api/internal/pricing"
	"github.com/bazaar-labs/bazaar-api/internal/vendor"
)

// Handler exposes checkout and order lifecycle endpoints.
type Handler struct {
	Svc      Service
	Vendors  vendorGetter
	Validate *validator.Validate
}

type checkoutPayload struct {
	Fulfillment string `json:"fulfillment" validate:"omitempty,oneof=delivery pickup"`
	AddressID   string `json:"addressId" validate:"omitempty,uuid4"`
}

func (h Handler) decodeCheckout(r *http.Request) (CheckoutInput, error) {
	var p checkoutPayload
	if err := common.DecodeJSON(r, &p); err != nil {
		return CheckoutInput{}, common.BadRequest("BAD_JSON", "invalid json body", err)
	}
	if err := h.Validate.Struct(p); err != nil {
		return CheckoutInput{}, common.BadRequest("VALIDATION", "payload failed validation", err)
	}
	in := CheckoutInput{Fulfillment: p.Fulfillment}
	if p.AddressID != "" {
		id, err := uuid.Parse(p.AddressID)
		if err != nil {
			return CheckoutInput{}, common.BadRequest("BAD_ADDRESS_ID", "addressId is not a uuid", err)
		}
		in.AddressID = id
	}
	return in, nil
}

type itemView struct {
	ProductID   uuid.UUID     `json:"productId"`
	Title       string        `json:"title"`
	Qty         int32         `json:"qty"`
	UnitPrice   pricing.Money `json:"unitPrice"`
	WeightGrams int32         `json:"weightGrams"`
	MRP         pricing.Money `json:"mrp"`
	Discount    pricing.Money `json:"discount"`
	Total       pricing.Money `json:"total"`
}

type orderView struct {
	ID             uuid.UUID     `json:"id"`
	Status         string        `json:"status"`
	Fulfillment    string        `json:"fulfillment"`
	AddressID      *uuid.UUID    `json:"addressId,omitempty"`
	CouponCode     string        `json:"couponCode,omitempty"`
	TotalMRP       pricing.Money `json:"totalMrp"`
	TotalDiscount  pricing.Money `json:"totalDiscount"`
	DeliveryCharge pricing.Money `json:"deliveryCharge"`
	DeliveryTier   string        `json:"deliveryTier,omitempty"`
	DistanceKm     float64       `json:"distanceKm"`
	GrandTotal     pricing.Money `json:"grandTotal"`
	PlacedAt       time.Time     `json:"placedAt"`
	Items          []itemView    `json:"items,omitempty"`
}

func viewOf(o Order, items []Item) orderView {
	v := orderView{
		ID:             o.ID,
		Status:         o.Status,
		Fulfillment:    o.Fulfillment,
		CouponCode:     o.CouponCode,
		TotalMRP:       o.TotalMRP,
		TotalDiscount:  o.TotalDiscount,
		DeliveryCharge: o.DeliveryCharge,
		DeliveryTier:   o.DeliveryTier,
		DistanceKm:     o.DistanceKm,
		GrandTotal:     o.GrandTotal,
		PlacedAt:       o.PlacedAt,
	}
	if o.AddressID != uuid.Nil {
		id := o.AddressID
		v.AddressID = &id
	}
	for _, it := range items {
		v.Items = append(v.Items, itemView{
			ProductID:   it.ProductID,
			Title:       it.Title,
			Qty:         it.Qty,
			UnitPrice:   it.UnitPrice,
			WeightGrams: it.WeightGrams,
			MRP:         it.MRP,
			Discount:    it.Discount,
			Total:       it.Total,
		})
	}
	return v
}

func respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		common.RespondError(w, common.BadRequest("BAD_CHECKOUT", err.Error(), err))
	case errors.Is(err, ErrEmptyCart), errors.Is(err, cart.ErrNotFound):
		common.RespondError(w, common.Unprocessable("EMPTY_CART", "cart has no items", err))
	case errors.Is(err, ErrNotCancelable):
		common.RespondError(w, common.Conflict("NOT_CANCELABLE", err.Error(), err))
	case errors.Is(err, ErrInvalidTransition):
		common.RespondError(w, common.Conflict("BAD_TRANSITION", err.Error(), err))
	case errors.Is(err, ErrNotFound):
		common.RespondError(w, common.NotFound("ORDER_NOT_FOUND", "order not found", err))
	case errors.Is(err, catalog.ErrOutOfStock):
		common.RespondError(w, common.Conflict("OUT_OF_STOCK", "not enough stock for an item", err))
	case errors.Is(err, catalog.ErrNotFound):
		common.RespondError(w, common.NotFound("PRODUCT_NOT_FOUND", "product not found", err))
	case errors.Is(err, vendor.ErrNotFound):
		common.RespondError(w, common.NotFound("VENDOR_NOT_FOUND", "vendor not found", err))
	case errors.Is(err, address.ErrNotFound):
		common.RespondError(w, common.NotFound("ADDRESS_NOT_FOUND", "address not found", err))
	default:
		common.RespondError(w, coupon.APIError(err))
	}
}

// PreviewCheckout prices the cart with delivery and coupon applied but
// commits nothing.
func (h Handler) PreviewCheckout(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	in, err := h.decodeCheckout(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	p, err := h.Svc.PreviewCheckout(r.Context(), userID, in)
	if err != nil {
		respondErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"summary":     p.Summary,
		"delivery":    p.Quote,
		"fulfillment": p.Fulfillment,
		"couponCode":  p.Coupon.Code,
	})
}

// Checkout places the order from the caller's cart.
func (h Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	in, err := h.decodeCheckout(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	start := time.Now()
	o, items, err := h.Svc.Place(r.Context(), userID, in)
	if obs.CheckoutDuration != nil {
		obs.CheckoutDuration.Observe(obs.DurationMillis(time.Since(start)))
	}
	if err != nil {
		if obs.OrdersPlacedTotal != nil {
			obs.OrdersPlacedTotal.WithLabelValues("rejected").Inc()
		}
		respondErr(w, err)
		return
	}
	if obs.OrdersPlacedTotal != nil {
		obs.OrdersPlacedTotal.WithLabelValues("ok").Inc()
	}
	common.JSON(w, http.StatusCreated, viewOf(o, items))
}

// List returns the caller's order history.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	page, perPage := common.ParsePagination(r, 20)
	p := common.Pagination{Page: page, PerPage: perPage}
	limit, offset := p.LimitOffset()
	orders, err := h.Svc.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		respondErr(w, err)
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, viewOf(o, nil))
	}
	common.JSONList(w, http.StatusOK, views, p)
}

// Get returns one of the caller's orders with its lines.
func (h Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_ORDER_ID", "order id is not a uuid", err))
		return
	}
	o, items, err := h.Svc.Get(r.Context(), userID, orderID, uuid.Nil)
	if err != nil {
		respondErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, viewOf(o, items))
}

// Cancel voids one of the caller's orders.
func (h Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_ORDER_ID", "order id is not a uuid", err))
		return
	}
	var p struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 {
		if err := common.DecodeJSON(r, &p); err != nil {
			common.RespondError(w, common.BadRequest("BAD_JSON", "invalid json body", err))
			return
		}
	}
	o, err := h.Svc.Cancel(r.Context(), userID, orderID, p.Reason)
	if err != nil {
		respondErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, viewOf(o, nil))
}

// ownVendor loads the vendor from the path and checks the caller owns it.
func (h Handler) ownVendor(ctx context.Context, r *http.Request) (vendor.Vendor, error) {
	vendorID, err := uuid.Parse(chi.URLParam(r, "vendorID"))
	if err != nil {
		return vendor.Vendor{}, common.BadRequest("BAD_VENDOR_ID", "vendor id is not a uuid", err)
	}
	v, err := h.Vendors.Get(ctx, vendorID)
	if err != nil {
		return vendor.Vendor{}, err
	}
	userID, _ := common.UserID(ctx)
	if v.OwnerUserID != userID && common.Role(ctx) != common.RoleAdmin {
		return vendor.Vendor{}, common.NewAppError("FORBIDDEN", "not your shop", http.StatusForbidden, nil)
	}
	return v, nil
}

// VendorList returns the orders placed against the caller's shop.
func (h Handler) VendorList(w http.ResponseWriter, r *http.Request) {
	v, err := h.ownVendor(r.Context(), r)
	if err != nil {
		respondErr(w, err)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	p := common.Pagination{Page: page, PerPage: perPage}
	limit, offset := p.LimitOffset()
	orders, err := h.Svc.ListByVendor(r.Context(), v.ID, limit, offset)
	if err != nil {
		respondErr(w, err)
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, viewOf(o, nil))
	}
	common.JSONList(w, http.StatusOK, views, p)
}

// VendorSetStatus advances an order on behalf of the caller's shop.
func (h Handler) VendorSetStatus(w http.ResponseWriter, r *http.Request) {
	v, err := h.ownVendor(r.Context(), r)
	if err != nil {
		respondErr(w, err)
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_ORDER_ID", "order id is not a uuid", err))
		return
	}
	var p struct {
		Status string `json:"status" validate:"required,oneof=confirmed shipped delivered canceled"`
	}
	if err := common.DecodeJSON(r, &p); err != nil {
		common.RespondError(w, common.BadRequest("BAD_JSON", "invalid json body", err))
		return
	}
	if err := h.Validate.Struct(p); err != nil {
		common.RespondError(w, common.BadRequest("VALIDATION", "payload failed validation", err))
		return
	}
	o, err := h.Svc.SetStatus(r.Context(), v.ID, orderID, p.Status)
	if err != nil {
		respondErr(w, err)
		return
	}
	common.JSON(w, http.StatusOK, viewOf(o, nil))
}
