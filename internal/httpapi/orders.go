package httpapi

import (
	"net/http"
	"strings"

	"tosti/internal/models"
	"tosti/internal/store"
)

type createOrderRequest struct {
	Product      int64            `json:"product"`
	User         *int64           `json:"user"`
	Type         models.OrderType `json:"type"`
	Paid         bool             `json:"paid"`
	Ready        bool             `json:"ready"`
	Deprioritize bool             `json:"deprioritize"`
	Prioritize   bool             `json:"prioritize"`
}

type cartRequest struct {
	Cart []int64 `json:"cart"`
}

type scanRequest struct {
	Barcode string `json:"barcode"`
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	shiftID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	orders, err := h.store.ListOrders(r.Context(), userFromContext(r.Context()), shiftID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	shiftID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req createOrderRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.Product <= 0 {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "bad_request", "product is required")
		return
	}
	if req.Type != "" && !req.Type.Valid() {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "bad_request", "unknown order type")
		return
	}
	order, err := h.store.PlaceOrder(r.Context(), store.PlaceOrderInput{
		Caller:       userFromContext(r.Context()),
		ShiftID:      shiftID,
		ProductID:    req.Product,
		UserID:       req.User,
		Type:         req.Type,
		Paid:         req.Paid,
		Ready:        req.Ready,
		Deprioritize: req.Deprioritize,
		Prioritize:   req.Prioritize,
		At:           h.now().UTC(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) handleCart(w http.ResponseWriter, r *http.Request) {
	shiftID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req cartRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	orders, err := h.store.PlaceCart(r.Context(), store.PlaceCartInput{
		Caller:     userFromContext(r.Context()),
		ShiftID:    shiftID,
		ProductIDs: req.Cart,
		At:         h.now().UTC(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, orders)
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	shiftID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req scanRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Barcode = strings.TrimSpace(req.Barcode)
	if req.Barcode == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "bad_request", "barcode is required")
		return
	}
	order, err := h.store.PlaceScanned(r.Context(), store.ScanInput{
		Caller:  userFromContext(r.Context()),
		ShiftID: shiftID,
		Barcode: req.Barcode,
		At:      h.now().UTC(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	shiftID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "oid")
	if !ok {
		return
	}
	var patch models.OrderPatch
	if !decodeRequest(w, r, &patch) {
		return
	}
	order, err := h.store.UpdateOrder(r.Context(), store.UpdateOrderInput{
		Caller:  userFromContext(r.Context()),
		ShiftID: shiftID,
		OrderID: orderID,
		Patch:   patch,
		At:      h.now().UTC(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	shiftID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "oid")
	if !ok {
		return
	}
	if err := h.store.DeleteOrder(r.Context(), userFromContext(r.Context()), shiftID, orderID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
