package reviews

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bazaar-labs/bazaar-api/internal/catalog"
	"github.com/bazaar-labs/bazaar-api/internal/common"
)

// Handler exposes review endpoints under the product tree.
type Handler struct {
	Svc      Service
	Validate *validator.Validate
}

type reviewView struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"productId"`
	UserID    uuid.UUID `json:"userId"`
	Rating    int32     `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func viewOf(rv Review) reviewView {
	return reviewView{
		ID:        rv.ID,
		ProductID: rv.ProductID,
		UserID:    rv.UserID,
		Rating:    rv.Rating,
		Comment:   rv.Comment,
		CreatedAt: rv.CreatedAt,
	}
}

func respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		common.RespondError(w, common.BadRequest("BAD_REVIEW", err.Error(), err))
	case errors.Is(err, ErrAlreadyReviewed):
		common.RespondError(w, common.Conflict("ALREADY_REVIEWED", "product already reviewed by this user", err))
	case errors.Is(err, ErrNotFound):
		common.RespondError(w, common.NotFound("REVIEW_NOT_FOUND", "review not found", err))
	case errors.Is(err, catalog.ErrNotFound):
		common.RespondError(w, common.NotFound("PRODUCT_NOT_FOUND", "product not found", err))
	default:
		common.RespondError(w, err)
	}
}

func productID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		return uuid.Nil, common.BadRequest("BAD_PRODUCT_ID", "product id is not a uuid", err)
	}
	return id, nil
}

// Create handles POST /products/{productID}/reviews.
func (h Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	pid, err := productID(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	var p struct {
		Rating  int32  `json:"rating" validate:"required,min=1,max=5"`
		Comment string `json:"comment" validate:"omitempty,max=2000"`
	}
	if err := common.DecodeJSON(r, &p); err != nil {
		common.RespondError(w, common.BadRequest("BAD_JSON", "invalid json body", err))
		return
	}
	if err := h.Validate.Struct(p); err != nil {
		common.RespondError(w, common.BadRequest("VALIDATION", "payload failed validation", err))
		return
	}
	rv, err := h.Svc.Create(r.Context(), userID, pid, p.Rating, p.Comment)
	if err != nil {
		respondErr(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, viewOf(rv))
}

// List handles GET /products/{productID}/reviews.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	pid, err := productID(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	p := common.Pagination{Page: page, PerPage: perPage}
	limit, offset := p.LimitOffset()
	list, stats, err := h.Svc.List(r.Context(), pid, limit, offset)
	if err != nil {
		respondErr(w, err)
		return
	}
	views := make([]reviewView, 0, len(list))
	for _, rv := range list {
		views = append(views, viewOf(rv))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": views,
		"stats": map[string]any{
			"count":     stats.Count,
			"avgRating": stats.AvgRating,
			"breakdown": stats.RatingSums,
		},
		"pagination": p,
	})
}

// Delete handles DELETE /reviews/{reviewID}, scoped to the author.
func (h Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	reviewID, err := uuid.Parse(chi.URLParam(r, "reviewID"))
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_REVIEW_ID", "review id is not a uuid", err))
		return
	}
	if err := h.Svc.Delete(r.Context(), userID, reviewID); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
