package coupon

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bazaar-labs/bazaar-api/internal/common"
	"github.com/bazaar-labs/bazaar-api/internal/pricing"
)

// Handler exposes administrative coupon endpoints.
type Handler struct {
	Svc      Service
	Validate *validator.Validate
}

type couponPayload struct {
	Code           string    `json:"code" validate:"required,min=3,max=32"`
	Kind           string    `json:"kind" validate:"required,oneof=percent fixed"`
	Value          int64     `json:"value" validate:"gte=0"`
	PercentBps     int32     `json:"percentBps" validate:"gte=0,lte=10000"`
	MinOrderAmount int64     `json:"minOrderAmount" validate:"gte=0"`
	PerUserLimit   int32     `json:"perUserLimit" validate:"gte=0"`
	TotalLimit     int32     `json:"totalLimit" validate:"gte=0"`
	StartsAt       time.Time `json:"startsAt" validate:"required"`
	ExpiresAt      time.Time `json:"expiresAt" validate:"required"`
	Scope          string    `json:"scope" validate:"omitempty,oneof=all categories products"`
	ScopeIDs       []string  `json:"scopeIds" validate:"dive,uuid"`
	Status         string    `json:"status" validate:"omitempty,oneof=active expired disabled"`
}

type couponView struct {
	ID             uuid.UUID   `json:"id"`
	Code           string      `json:"code"`
	Kind           string      `json:"kind"`
	Value          int64       `json:"value"`
	PercentBps     int32       `json:"percentBps"`
	MinOrderAmount int64       `json:"minOrderAmount"`
	PerUserLimit   int32       `json:"perUserLimit"`
	TotalLimit     int32       `json:"totalLimit"`
	UsedCount      int32       `json:"usedCount"`
	StartsAt       time.Time   `json:"startsAt"`
	ExpiresAt      time.Time   `json:"expiresAt"`
	Scope          string      `json:"scope"`
	ScopeIDs       []uuid.UUID `json:"scopeIds,omitempty"`
	Status         string      `json:"status"`
}

func viewOf(c Coupon) couponView {
	return couponView{
		ID: c.ID, Code: c.Code, Kind: c.Kind, Value: c.Value,
		PercentBps: c.PercentBps, MinOrderAmount: c.MinOrderAmount,
		PerUserLimit: c.PerUserLimit, TotalLimit: c.TotalLimit,
		UsedCount: c.UsedCount, StartsAt: c.StartsAt, ExpiresAt: c.ExpiresAt,
		Scope: c.Scope, ScopeIDs: c.ScopeIDs, Status: c.Status,
	}
}

func (h *Handler) decode(r *http.Request) (Coupon, error) {
	var payload couponPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		return Coupon{}, common.BadRequest("BAD_REQUEST", "invalid payload", err)
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			return Coupon{}, common.BadRequest("VALIDATION", err.Error(), err)
		}
	}
	ids := make([]uuid.UUID, 0, len(payload.ScopeIDs))
	for _, raw := range payload.ScopeIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return Coupon{}, common.BadRequest("BAD_REQUEST", "invalid scope id", err)
		}
		ids = append(ids, id)
	}
	return Coupon{
		Code:           payload.Code,
		Kind:           payload.Kind,
		Value:          payload.Value,
		PercentBps:     payload.PercentBps,
		MinOrderAmount: payload.MinOrderAmount,
		PerUserLimit:   payload.PerUserLimit,
		TotalLimit:     payload.TotalLimit,
		StartsAt:       payload.StartsAt,
		ExpiresAt:      payload.ExpiresAt,
		Scope:          payload.Scope,
		ScopeIDs:       ids,
		Status:         payload.Status,
	}, nil
}

// Create inserts a new coupon.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	c, err := h.decode(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	created, err := h.Svc.Create(r.Context(), c)
	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.As(err, &pgErr) && pgErr.Code == "23505":
			common.RespondError(w, common.Conflict("CONFLICT", "coupon code already exists", err))
		case errors.Is(err, ErrInvalidInput):
			common.RespondError(w, common.BadRequest("BAD_REQUEST", err.Error(), err))
		default:
			common.RespondError(w, err)
		}
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": viewOf(created)})
}

// Update rewrites an existing coupon.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "couponID"))
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid coupon id", err))
		return
	}
	c, derr := h.decode(r)
	if derr != nil {
		common.RespondError(w, derr)
		return
	}
	c.ID = id
	updated, err := h.Svc.Update(r.Context(), c)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			common.RespondError(w, common.NotFound("NOT_FOUND", "coupon not found", err))
		case errors.Is(err, ErrInvalidInput):
			common.RespondError(w, common.BadRequest("BAD_REQUEST", err.Error(), err))
		default:
			common.RespondError(w, err)
		}
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": viewOf(updated)})
}

// Get returns one coupon.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "couponID"))
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid coupon id", err))
		return
	}
	c, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.RespondError(w, common.NotFound("NOT_FOUND", "coupon not found", err))
			return
		}
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": viewOf(c)})
}

// List returns a page of coupons.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	p := common.Pagination{Page: page, PerPage: perPage}
	limit, offset := p.LimitOffset()
	coupons, err := h.Svc.List(r.Context(), limit, offset)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	views := make([]couponView, 0, len(coupons))
	for _, c := range coupons {
		views = append(views, viewOf(c))
	}
	p.TotalItems = len(views)
	common.JSONList(w, http.StatusOK, views, p)
}

type previewRequest struct {
	Code  string `json:"code" validate:"required"`
	Items []struct {
		ProductID  string `json:"productId" validate:"required,uuid"`
		CategoryID string `json:"categoryId" validate:"omitempty,uuid"`
		Qty        int32  `json:"qty" validate:"gt=0"`
		UnitPrice  int64  `json:"unitPrice" validate:"gte=0"`
	} `json:"items" validate:"required,min=1,dive"`
}

// Preview evaluates a code against ad-hoc items without touching any cart.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	var payload previewRequest
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
	items := make([]pricing.LineItem, 0, len(payload.Items))
	for _, it := range payload.Items {
		pid, err := uuid.Parse(it.ProductID)
		if err != nil {
			common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid product id", err))
			return
		}
		line := pricing.LineItem{ProductID: pid, Qty: int(it.Qty), UnitPrice: it.UnitPrice}
		if it.CategoryID != "" {
			line.CategoryID, _ = uuid.Parse(it.CategoryID)
		}
		items = append(items, line)
	}
	c, d, err := h.Svc.Evaluate(r.Context(), userID, payload.Code, items)
	if err != nil {
		common.RespondError(w, APIError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"coupon":   viewOf(c),
		"eligible": d.Eligible,
		"discount": d.Total,
		"perItem":  d.PerItem,
	}})
}

// APIError maps evaluation sentinels to API errors with stable codes.
// Cart and order handlers reuse it for apply and checkout failures.
func APIError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return common.NotFound("COUPON_NOT_FOUND", "coupon not found", err)
	case errors.Is(err, ErrCouponInactive):
		return common.Unprocessable("COUPON_INACTIVE", "coupon is disabled", err)
	case errors.Is(err, ErrCouponNotStarted):
		return common.Unprocessable("COUPON_NOT_STARTED", "coupon validity window has not opened", err)
	case errors.Is(err, ErrCouponExpired):
		return common.Unprocessable("COUPON_EXPIRED", "coupon has expired", err)
	case errors.Is(err, ErrUserLimitReached):
		return common.Conflict("COUPON_USER_LIMIT", "per-user usage limit reached", err)
	case errors.Is(err, ErrGlobalLimitReached):
		return common.Conflict("COUPON_GLOBAL_LIMIT", "coupon usage limit reached", err)
	case errors.Is(err, ErrMinimumOrderNotMet):
		return common.Unprocessable("COUPON_MIN_ORDER", "order total below coupon minimum", err)
	case errors.Is(err, ErrNotEligible):
		return common.Unprocessable("COUPON_NOT_ELIGIBLE", "no items are eligible for this coupon", err)
	default:
		return err
	}
}
