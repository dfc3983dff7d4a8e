package cart

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bazaar-labs/bazaar-api/internal/address"
	"github.com/bazaar-labs/bazaar-api/internal/catalog"
	"github.com/bazaar-labs/bazaar-api/internal/common"
	"github.com/bazaar-labs/bazaar-api/internal/coupon"
	"github.com/bazaar-labs/bazaar-api/internal/obs"
	"github.com/bazaar-labs/bazaar-api/internal/pricing"
	"github.com/bazaar-labs/bazaar-api/internal/vendor"
)

// Handler exposes the cart endpoints. All routes require a user identity.
type Handler struct {
	Svc      Service
	Validate *validator.Validate
}

type itemView struct {
	ProductID   uuid.UUID `json:"productId"`
	Title       string    `json:"title"`
	Qty         int32     `json:"qty"`
	UnitPrice   int64     `json:"unitPrice"`
	WeightGrams int32     `json:"weightGrams"`
	AddedAt     time.Time `json:"addedAt"`
}

type cartView struct {
	ID         uuid.UUID       `json:"id"`
	CouponCode string          `json:"couponCode,omitempty"`
	Items      []itemView      `json:"items"`
	Summary    pricing.Summary `json:"summary"`
}

func viewOf(v View) cartView {
	items := make([]itemView, 0, len(v.Items))
	for _, it := range v.Items {
		items = append(items, itemView{
			ProductID: it.ProductID, Title: it.Title, Qty: it.Qty,
			UnitPrice: it.UnitPrice, WeightGrams: it.WeightGrams, AddedAt: it.AddedAt,
		})
	}
	return cartView{ID: v.Cart.ID, CouponCode: v.Cart.CouponCode, Items: items, Summary: v.Summary}
}

func (h *Handler) respond(w http.ResponseWriter, status int, v View) {
	common.JSON(w, status, map[string]any{"data": viewOf(v)})
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		common.RespondError(w, common.BadRequest("BAD_REQUEST", err.Error(), err))
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, vendor.ErrNotFound), errors.Is(err, address.ErrNotFound):
		common.RespondError(w, common.NotFound("NOT_FOUND", err.Error(), err))
	default:
		common.RespondError(w, coupon.APIError(err))
	}
}

// Get serves GET /cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	v, err := h.Svc.Get(r.Context(), userID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respond(w, http.StatusOK, v)
}

// AddItem serves POST /cart/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	var payload struct {
		ProductID string `json:"productId" validate:"required,uuid"`
		Qty       int32  `json:"qty" validate:"gt=0"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid payload", err))
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.RespondError(w, common.BadRequest("VALIDATION", err.Error(), err))
			return
		}
	}
	productID, err := uuid.Parse(payload.ProductID)
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid product id", err))
		return
	}
	v, err := h.Svc.AddItem(r.Context(), userID, productID, payload.Qty)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respond(w, http.StatusOK, v)
}

// UpdateItem serves PUT /cart/items/{productID}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid product id", err))
		return
	}
	var payload struct {
		Qty int32 `json:"qty" validate:"gte=0"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid payload", err))
		return
	}
	v, err := h.Svc.UpdateQty(r.Context(), userID, productID, payload.Qty)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respond(w, http.StatusOK, v)
}

// RemoveItem serves DELETE /cart/items/{productID}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid product id", err))
		return
	}
	v, err := h.Svc.RemoveItem(r.Context(), userID, productID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respond(w, http.StatusOK, v)
}

// ApplyCoupon serves POST /cart/coupon.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	var payload struct {
		Code string `json:"code" validate:"required,min=3,max=32"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid payload", err))
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.RespondError(w, common.BadRequest("VALIDATION", err.Error(), err))
			return
		}
	}
	v, err := h.Svc.ApplyCoupon(r.Context(), userID, payload.Code)
	if obs.CouponApplyTotal != nil {
		obs.CouponApplyTotal.WithLabelValues(couponOutcome(err)).Inc()
	}
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respond(w, http.StatusOK, v)
}

func couponOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, coupon.ErrNotFound):
		return "not_found"
	case errors.Is(err, coupon.ErrCouponExpired), errors.Is(err, coupon.ErrCouponNotStarted):
		return "window"
	case errors.Is(err, coupon.ErrUserLimitReached), errors.Is(err, coupon.ErrGlobalLimitReached):
		return "limit"
	case errors.Is(err, coupon.ErrMinimumOrderNotMet), errors.Is(err, coupon.ErrNotEligible):
		return "not_eligible"
	default:
		return "error"
	}
}

// RemoveCoupon serves DELETE /cart/coupon.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	v, err := h.Svc.RemoveCoupon(r.Context(), userID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respond(w, http.StatusOK, v)
}

// QuoteDelivery serves POST /cart/quote/delivery.
func (h *Handler) QuoteDelivery(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	var payload struct {
		AddressID string `json:"addressId" validate:"required,uuid"`
	}
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid payload", err))
		return
	}
	addressID, err := uuid.Parse(payload.AddressID)
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid address id", err))
		return
	}
	quote, err := h.Svc.QuoteDelivery(r.Context(), userID, addressID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	if obs.DeliveryQuoteTotal != nil {
		obs.DeliveryQuoteTotal.WithLabelValues(string(quote.Tier)).Inc()
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"charge":     quote.Charge,
		"tier":       quote.Tier,
		"distanceKm": quote.DistanceKm,
	}})
}
