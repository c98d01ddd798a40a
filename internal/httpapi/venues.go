package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tosti/internal/models"
	"tosti/internal/store"
)

type createVenueRequest struct {
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	Active        *bool  `json:"active"`
	Color         string `json:"color"`
	CanBeReserved bool   `json:"can_be_reserved"`
}

type createOrderVenueRequest struct {
	Venue int64 `json:"venue"`
}

type createReservationRequest struct {
	Venue       int64     `json:"venue"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Association *int64    `json:"association"`
	Comments    string    `json:"comments"`
}

type joinRequest struct {
	JoinCode string `json:"join_code"`
}

type acceptRequest struct {
	Accepted *bool `json:"accepted"`
}

type controlEventRequest struct {
	RespectBlacklist *bool                   `json:"respect_blacklist"`
	Association      models.PermissionTriple `json:"association"`
	Selected         models.PermissionTriple `json:"selected"`
	Everyone         models.PermissionTriple `json:"everyone"`
}

type borrelItemRequest struct {
	Description    string          `json:"description"`
	AmountReserved int             `json:"amount_reserved"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

type createBorrelRequest struct {
	Title       string              `json:"title"`
	Association *int64              `json:"association"`
	Start       time.Time           `json:"start"`
	End         time.Time           `json:"end"`
	Items       []borrelItemRequest `json:"items"`
}

type submitBorrelItem struct {
	ID         int64 `json:"id"`
	AmountUsed int   `json:"amount_used"`
}

type submitBorrelRequest struct {
	Items []submitBorrelItem `json:"items"`
}

func (h *Handler) handleListVenues(w http.ResponseWriter, r *http.Request) {
	venues, err := h.store.ListVenues(r.Context(), queryBool(r, "active"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, venues)
}

func (h *Handler) handleCreateVenue(w http.ResponseWriter, r *http.Request) {
	var req createVenueRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	venue, err := h.store.CreateVenue(r.Context(), store.VenueInput{
		Caller:        userFromContext(r.Context()),
		Name:          strings.TrimSpace(req.Name),
		Slug:          strings.TrimSpace(req.Slug),
		Active:        active,
		Color:         req.Color,
		CanBeReserved: req.CanBeReserved,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, venue)
}

func (h *Handler) handleGetVenue(w http.ResponseWriter, r *http.Request) {
	venue, err := h.store.GetVenue(r.Context(), r.PathValue("slug"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, venue)
}

func (h *Handler) handleListReservations(w http.ResponseWriter, r *http.Request) {
	from, ok := queryTime(r, "from")
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "bad_request", "from must be an RFC3339 timestamp")
		return
	}
	to, ok := queryTime(r, "to")
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "bad_request", "to must be an RFC3339 timestamp")
		return
	}
	venue, err := h.store.GetVenue(r.Context(), r.PathValue("slug"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	reservations, err := h.store.ListReservations(r.Context(), venue.ID, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	// join codes are only handed out to the people managing a reservation
	for i := range reservations {
		reservations[i].JoinCode = ""
	}
	writeJSON(w, http.StatusOK, reservations)
}

func (h *Handler) handleListOrderVenues(w http.ResponseWriter, r *http.Request) {
	venues, err := h.store.ListOrderVenues(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, venues)
}

func (h *Handler) handleCreateOrderVenue(w http.ResponseWriter, r *http.Request) {
	var req createOrderVenueRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	venue, err := h.store.CreateOrderVenue(r.Context(), userFromContext(r.Context()), req.Venue)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, venue)
}

func (h *Handler) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	reservation, err := h.store.CreateReservation(r.Context(), store.CreateReservationInput{
		Caller:        userFromContext(r.Context()),
		VenueID:       req.Venue,
		Title:         strings.TrimSpace(req.Title),
		Start:         req.Start,
		End:           req.End,
		AssociationID: req.Association,
		Comments:      req.Comments,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reservation)
}

func (h *Handler) handleJoinReservation(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	reservation, err := h.store.JoinReservation(r.Context(), userFromContext(r.Context()), strings.TrimSpace(req.JoinCode))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

func (h *Handler) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	reservation, err := h.store.GetReservation(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !canSeeJoinCode(userFromContext(r.Context()), reservation) {
		reservation.JoinCode = ""
	}
	writeJSON(w, http.StatusOK, reservation)
}

func canSeeJoinCode(user models.User, reservation models.VenueReservation) bool {
	if user.IsSuperuser || user.SameAs(reservation.CreatedByID) {
		return true
	}
	for _, id := range reservation.UsersAccess {
		if user.Authenticated() && id == user.ID {
			return true
		}
	}
	return false
}

func (h *Handler) handleDeleteReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteReservation(r.Context(), userFromContext(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAcceptReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req acceptRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	reservation, err := h.store.SetReservationAccepted(r.Context(), store.SetAcceptedInput{
		Caller:        userFromContext(r.Context()),
		ReservationID: id,
		Accepted:      req.Accepted,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

func (h *Handler) handleCreateControlEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req controlEventRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	respect := true
	if req.RespectBlacklist != nil {
		respect = *req.RespectBlacklist
	}
	event, err := h.store.CreateControlEvent(r.Context(), store.CreateControlEventInput{
		Caller:           userFromContext(r.Context()),
		ReservationID:    id,
		RespectBlacklist: respect,
		Association:      req.Association,
		Selected:         req.Selected,
		Everyone:         req.Everyone,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *Handler) handleCreateBorrel(w http.ResponseWriter, r *http.Request) {
	var req createBorrelRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	items := make([]store.BorrelItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, store.BorrelItemInput{
			Description:    strings.TrimSpace(item.Description),
			AmountReserved: item.AmountReserved,
			UnitPrice:      item.UnitPrice,
		})
	}
	reservation, err := h.store.CreateBorrelReservation(r.Context(), store.CreateBorrelInput{
		Caller:        userFromContext(r.Context()),
		Title:         strings.TrimSpace(req.Title),
		AssociationID: req.Association,
		Start:         req.Start,
		End:           req.End,
		Items:         items,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reservation)
}

func (h *Handler) handleGetBorrel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	reservation, err := h.store.GetBorrelReservation(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

func (h *Handler) handleSubmitBorrel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req submitBorrelRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	used := make(map[int64]int, len(req.Items))
	for _, item := range req.Items {
		used[item.ID] = item.AmountUsed
	}
	reservation, err := h.store.SubmitBorrelReservation(r.Context(), store.SubmitBorrelInput{
		Caller:        userFromContext(r.Context()),
		ReservationID: id,
		AmountsUsed:   used,
		At:            h.now().UTC(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}
