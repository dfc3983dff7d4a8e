package catalog

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bazaar-labs/bazaar-api/internal/common"
)

// Handler serves the public catalog plus vendor listing management.
type Handler struct {
	Svc      Service
	Validate *validator.Validate
}

type productView struct {
	ID          uuid.UUID `json:"id"`
	VendorID    uuid.UUID `json:"vendorId"`
	CategoryID  uuid.UUID `json:"categoryId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Price       int64     `json:"price"`
	WeightGrams int32     `json:"weightGrams"`
	Stock       int32     `json:"stock"`
	Active      bool      `json:"active"`
}

func productViewOf(p Product) productView {
	return productView{
		ID: p.ID, VendorID: p.VendorID, CategoryID: p.CategoryID,
		Title: p.Title, Description: p.Description, Price: p.Price,
		WeightGrams: p.WeightGrams, Stock: p.Stock, Active: p.Active,
	}
}

// ListProducts serves GET /products with optional filters.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	p := common.Pagination{Page: page, PerPage: perPage}
	limit, offset := p.LimitOffset()

	f := ListFilter{Query: strings.TrimSpace(r.URL.Query().Get("q")), Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("category"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid category id", err))
			return
		}
		f.CategoryID = id
	}
	if raw := r.URL.Query().Get("vendor"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid vendor id", err))
			return
		}
		f.VendorID = id
	}

	products, err := h.Svc.ListProducts(r.Context(), f)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	views := make([]productView, 0, len(products))
	for _, prod := range products {
		views = append(views, productViewOf(prod))
	}
	p.TotalItems = len(views)
	common.JSONList(w, http.StatusOK, views, p)
}

// GetProduct serves GET /products/{productID}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid product id", err))
		return
	}
	p, err := h.Svc.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.RespondError(w, common.NotFound("NOT_FOUND", "product not found", err))
			return
		}
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": productViewOf(p)})
}

type productPayload struct {
	CategoryID  string `json:"categoryId" validate:"required,uuid"`
	Title       string `json:"title" validate:"required,min=2,max=160"`
	Description string `json:"description" validate:"max=4000"`
	Price       int64  `json:"price" validate:"gte=0"`
	WeightGrams int32  `json:"weightGrams" validate:"gte=0"`
	Stock       int32  `json:"stock" validate:"gte=0"`
	Active      *bool  `json:"active"`
}

func (h *Handler) decodeProduct(r *http.Request) (Product, error) {
	var payload productPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		return Product{}, common.BadRequest("BAD_REQUEST", "invalid payload", err)
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			return Product{}, common.BadRequest("VALIDATION", err.Error(), err)
		}
	}
	catID, err := uuid.Parse(payload.CategoryID)
	if err != nil {
		return Product{}, common.BadRequest("BAD_REQUEST", "invalid category id", err)
	}
	active := true
	if payload.Active != nil {
		active = *payload.Active
	}
	return Product{
		CategoryID:  catID,
		Title:       payload.Title,
		Description: payload.Description,
		Price:       payload.Price,
		WeightGrams: payload.WeightGrams,
		Stock:       payload.Stock,
		Active:      active,
	}, nil
}

// CreateProduct serves POST /vendors/{vendorID}/products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	vendorID, err := uuid.Parse(chi.URLParam(r, "vendorID"))
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid vendor id", err))
		return
	}
	p, derr := h.decodeProduct(r)
	if derr != nil {
		common.RespondError(w, derr)
		return
	}
	p.VendorID = vendorID
	created, err := h.Svc.CreateProduct(r.Context(), p)
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", err.Error(), err))
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": productViewOf(created)})
}

// UpdateProduct serves PUT /vendors/{vendorID}/products/{productID}.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	vendorID, err := uuid.Parse(chi.URLParam(r, "vendorID"))
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid vendor id", err))
		return
	}
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid product id", err))
		return
	}
	existing, err := h.Svc.GetProduct(r.Context(), productID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.RespondError(w, common.NotFound("NOT_FOUND", "product not found", err))
			return
		}
		common.RespondError(w, err)
		return
	}
	if existing.VendorID != vendorID {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "product belongs to another vendor", nil)
		return
	}
	p, derr := h.decodeProduct(r)
	if derr != nil {
		common.RespondError(w, derr)
		return
	}
	p.ID = productID
	p.VendorID = vendorID
	updated, err := h.Svc.UpdateProduct(r.Context(), p)
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", err.Error(), err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": productViewOf(updated)})
}

type categoryView struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

// ListCategories serves GET /categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Svc.Categories(r.Context())
	if err != nil {
		common.RespondError(w, err)
		return
	}
	views := make([]categoryView, 0, len(cats))
	for _, c := range cats {
		views = append(views, categoryView{ID: c.ID, Name: c.Name, Slug: c.Slug})
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views})
}

// CreateCategory serves POST /admin/categories.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name" validate:"required,min=2,max=80"`
		Slug string `json:"slug" validate:"required,min=2,max=80"`
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
	c, err := h.Svc.CreateCategory(r.Context(), payload.Name, payload.Slug)
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", err.Error(), err))
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": categoryView{ID: c.ID, Name: c.Name, Slug: c.Slug}})
}
