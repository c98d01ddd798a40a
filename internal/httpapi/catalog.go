package httpapi

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"tosti/internal/models"
	"tosti/internal/store"
)

type createCategoryRequest struct {
	Name string `json:"name"`
}

type productRequest struct {
	Name                    string          `json:"name"`
	Category                *int64          `json:"category"`
	Available               *bool           `json:"available"`
	Orderable               *bool           `json:"orderable"`
	IgnoreShiftRestrictions bool            `json:"ignore_shift_restrictions"`
	MaxAllowedPerShift      *int            `json:"max_allowed_per_shift"`
	CurrentPrice            decimal.Decimal `json:"current_price"`
	Barcode                 *string         `json:"barcode"`
	Venues                  []int64         `json:"venues"`
}

func (req productRequest) input(caller models.User) store.ProductInput {
	available, orderable := true, true
	if req.Available != nil {
		available = *req.Available
	}
	if req.Orderable != nil {
		orderable = *req.Orderable
	}
	return store.ProductInput{
		Caller:                  caller,
		Name:                    strings.TrimSpace(req.Name),
		CategoryID:              req.Category,
		Available:               available,
		Orderable:               orderable,
		IgnoreShiftRestrictions: req.IgnoreShiftRestrictions,
		MaxAllowedPerShift:      req.MaxAllowedPerShift,
		CurrentPrice:            req.CurrentPrice,
		Barcode:                 req.Barcode,
		VenueIDs:                req.Venues,
	}
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	category, err := h.store.CreateCategory(r.Context(), userFromContext(r.Context()), strings.TrimSpace(req.Name))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	venue, ok := queryInt(r, "venue")
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "bad_request", "venue must be an integer")
		return
	}
	products, err := h.store.ListProducts(r.Context(), store.ProductFilter{
		OrderVenueID:  int64(venue),
		OrderableOnly: queryBool(r, "orderable"),
		AvailableOnly: queryBool(r, "available"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	product, err := h.store.CreateProduct(r.Context(), req.input(userFromContext(r.Context())))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	product, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req productRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	product, err := h.store.UpdateProduct(r.Context(), store.UpdateProductInput{
		ProductInput: req.input(userFromContext(r.Context())),
		ProductID:    id,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteProduct(r.Context(), userFromContext(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleProductByBarcode(w http.ResponseWriter, r *http.Request) {
	product, err := h.store.ProductByBarcode(r.Context(), r.PathValue("code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}
