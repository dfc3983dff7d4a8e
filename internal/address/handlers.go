package address

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/bazaar-labs/bazaar-api/internal/common"
)

// Handler exposes the address book endpoints.
type Handler struct {
	Svc      Service
	Validate *validator.Validate
}

type addressPayload struct {
	Label      string  `json:"label" validate:"max=40"`
	Line1      string  `json:"line1" validate:"required,max=240"`
	Line2      string  `json:"line2" validate:"max=240"`
	City       string  `json:"city" validate:"required,max=120"`
	StateCode  string  `json:"stateCode" validate:"omitempty,len=2"`
	PostalCode string  `json:"postalCode" validate:"required,max=12"`
	Country    string  `json:"country" validate:"omitempty,len=2"`
	Lon        float64 `json:"lon" validate:"gte=-180,lte=180"`
	Lat        float64 `json:"lat" validate:"gte=-90,lte=90"`
	IsDefault  bool    `json:"isDefault"`
}

type addressView struct {
	ID         uuid.UUID `json:"id"`
	Label      string    `json:"label,omitempty"`
	Line1      string    `json:"line1"`
	Line2      string    `json:"line2,omitempty"`
	City       string    `json:"city"`
	StateCode  string    `json:"stateCode,omitempty"`
	PostalCode string    `json:"postalCode"`
	Country    string    `json:"country"`
	Lon        float64   `json:"lon"`
	Lat        float64   `json:"lat"`
	IsDefault  bool      `json:"isDefault"`
}

func viewOf(a Address) addressView {
	return addressView{
		ID: a.ID, Label: a.Label, Line1: a.Line1, Line2: a.Line2, City: a.City,
		StateCode: a.StateCode, PostalCode: a.PostalCode, Country: a.Country,
		Lon: a.Location.Lon(), Lat: a.Location.Lat(), IsDefault: a.IsDefault,
	}
}

func (h *Handler) decode(r *http.Request) (Address, error) {
	var payload addressPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		return Address{}, common.BadRequest("BAD_REQUEST", "invalid payload", err)
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			return Address{}, common.BadRequest("VALIDATION", err.Error(), err)
		}
	}
	return Address{
		Label:      payload.Label,
		Line1:      payload.Line1,
		Line2:      payload.Line2,
		City:       payload.City,
		StateCode:  payload.StateCode,
		PostalCode: payload.PostalCode,
		Country:    payload.Country,
		Location:   orb.Point{payload.Lon, payload.Lat},
		IsDefault:  payload.IsDefault,
	}, nil
}

// List serves GET /addresses.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	addresses, err := h.Svc.List(r.Context(), userID)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	views := make([]addressView, 0, len(addresses))
	for _, a := range addresses {
		views = append(views, viewOf(a))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views})
}

// Create serves POST /addresses.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	a, derr := h.decode(r)
	if derr != nil {
		common.RespondError(w, derr)
		return
	}
	a.UserID = userID
	created, err := h.Svc.Create(r.Context(), a)
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", err.Error(), err))
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": viewOf(created)})
}

// Update serves PUT /addresses/{addressID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "addressID"))
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid address id", err))
		return
	}
	a, derr := h.decode(r)
	if derr != nil {
		common.RespondError(w, derr)
		return
	}
	a.ID = id
	a.UserID = userID
	updated, err := h.Svc.Update(r.Context(), a)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.RespondError(w, common.NotFound("NOT_FOUND", "address not found", err))
			return
		}
		common.RespondError(w, common.BadRequest("BAD_REQUEST", err.Error(), err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": viewOf(updated)})
}

// Delete serves DELETE /addresses/{addressID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "addressID"))
	if err != nil {
		common.RespondError(w, common.BadRequest("BAD_REQUEST", "invalid address id", err))
		return
	}
	if err := h.Svc.Delete(r.Context(), userID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			common.RespondError(w, common.NotFound("NOT_FOUND", "address not found", err))
			return
		}
		common.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
