package httpapi

import (
	"net/http"
	"time"

	"tosti/internal/models"
	"tosti/internal/store"
)

type createShiftRequest struct {
	Venue            int64     `json:"venue"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	MaxOrdersPerUser *int      `json:"max_orders_per_user"`
	MaxOrdersTotal   *int      `json:"max_orders_total"`
	Assignees        []int64   `json:"assignees"`
}

type addTimeRequest struct {
	Minutes int `json:"minutes"`
}

type addCapacityRequest struct {
	Capacity int `json:"capacity"`
}

type assignRequest struct {
	User int64 `json:"user"`
}

func (h *Handler) handleListShifts(w http.ResponseWriter, r *http.Request) {
	venue, ok := queryInt(r, "venue")
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "bad_request", "venue must be an integer")
		return
	}
	shifts, err := h.store.ListShifts(r.Context(), store.ShiftFilter{
		ActiveOnly: queryBool(r, "active"),
		VenueID:    int64(venue),
		At:         h.now().UTC(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shifts)
}

func (h *Handler) handleCreateShift(w http.ResponseWriter, r *http.Request) {
	var req createShiftRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.Venue <= 0 || req.Start.IsZero() || req.End.IsZero() {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "bad_request", "venue, start and end are required")
		return
	}
	shift, err := h.store.CreateShift(r.Context(), store.CreateShiftInput{
		Caller:           userFromContext(r.Context()),
		VenueID:          req.Venue,
		Start:            req.Start,
		End:              req.End,
		MaxOrdersPerUser: req.MaxOrdersPerUser,
		MaxOrdersTotal:   req.MaxOrdersTotal,
		AssigneeIDs:      req.Assignees,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, shift)
}

func (h *Handler) handleGetShift(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	shift, err := h.store.GetShift(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

func (h *Handler) handleUpdateShift(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var patch models.ShiftPatch
	if !decodeRequest(w, r, &patch) {
		return
	}
	shift, err := h.store.UpdateShift(r.Context(), store.UpdateShiftInput{
		Caller:  userFromContext(r.Context()),
		ShiftID: id,
		Patch:   patch,
		At:      h.now().UTC(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

func (h *Handler) shiftAction(w http.ResponseWriter, r *http.Request, input store.ShiftActionInput,
	action func(*Handler, *http.Request, store.ShiftActionInput) (models.Shift, error)) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	input.Caller = userFromContext(r.Context())
	input.ShiftID = id
	input.At = h.now().UTC()
	shift, err := action(h, r, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

func (h *Handler) handleFinalizeShift(w http.ResponseWriter, r *http.Request) {
	h.shiftAction(w, r, store.ShiftActionInput{}, func(h *Handler, r *http.Request, in store.ShiftActionInput) (models.Shift, error) {
		return h.store.FinalizeShift(r.Context(), in)
	})
}

func (h *Handler) handleAddTime(w http.ResponseWriter, r *http.Request) {
	var req addTimeRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	h.shiftAction(w, r, store.ShiftActionInput{Minutes: req.Minutes}, func(h *Handler, r *http.Request, in store.ShiftActionInput) (models.Shift, error) {
		return h.store.ExtendShiftTime(r.Context(), in)
	})
}

func (h *Handler) handleAddCapacity(w http.ResponseWriter, r *http.Request) {
	var req addCapacityRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	h.shiftAction(w, r, store.ShiftActionInput{Capacity: req.Capacity}, func(h *Handler, r *http.Request, in store.ShiftActionInput) (models.Shift, error) {
		return h.store.ExtendShiftCapacity(r.Context(), in)
	})
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	h.shiftAction(w, r, store.ShiftActionInput{UserID: req.User}, func(h *Handler, r *http.Request, in store.ShiftActionInput) (models.Shift, error) {
		return h.store.AssignUser(r.Context(), in)
	})
}

func (h *Handler) handleAllowance(w http.ResponseWriter, r *http.Request) {
	shiftID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	productID, ok := pathID(w, r, "pid")
	if !ok {
		return
	}
	allowance, err := h.store.UserCanStillOrder(r.Context(), userFromContext(r.Context()), shiftID, productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.Allowance{"remaining": allowance})
}
