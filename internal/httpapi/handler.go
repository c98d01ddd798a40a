package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tosti/internal/models"
	"tosti/internal/music"
	"tosti/internal/store"
)

// MusicService is the player surface the API exposes.
type MusicService interface {
	Players(ctx context.Context) ([]models.Player, error)
	Search(ctx context.Context, slug string, user models.User, query string, max int) ([]models.TrackStub, error)
	Request(ctx context.Context, slug string, user models.User, trackID string) (models.QueueItem, error)
	Queue(ctx context.Context, slug string, limit int) ([]models.QueueItem, error)
	CurrentlyPlaying(ctx context.Context, slug string) (music.Status, error)
	Playback(ctx context.Context, slug string) (music.Status, error)
	Play(ctx context.Context, slug string, user models.User) error
	Pause(ctx context.Context, slug string, user models.User) error
	Next(ctx context.Context, slug string, user models.User) error
	Previous(ctx context.Context, slug string, user models.User) error
	Volume(ctx context.Context, slug string, user models.User, volume int) error
	Shuffle(ctx context.Context, slug string, user models.User, on bool) error
	Repeat(ctx context.Context, slug string, user models.User, on bool) error
	JoinControlEvent(ctx context.Context, user models.User, code string) (models.ControlEvent, error)
}

type Handler struct {
	store store.Store
	music MusicService
	now   func() time.Time
}

func NewHandler(st store.Store, musicService MusicService) *Handler {
	return &Handler{store: st, music: musicService, now: time.Now}
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", tagRoute(h.handleHealth))
	mux.HandleFunc("GET /me", tagRoute(h.handleMe))

	mux.HandleFunc("GET /venues", tagRoute(h.handleListVenues))
	mux.HandleFunc("POST /venues", tagRoute(h.handleCreateVenue))
	mux.HandleFunc("GET /venues/{slug}", tagRoute(h.handleGetVenue))
	mux.HandleFunc("GET /venues/{slug}/reservations", tagRoute(h.handleListReservations))
	mux.HandleFunc("GET /order-venues", tagRoute(h.handleListOrderVenues))
	mux.HandleFunc("POST /order-venues", tagRoute(h.handleCreateOrderVenue))

	mux.HandleFunc("POST /reservations", tagRoute(h.handleCreateReservation))
	mux.HandleFunc("POST /reservations/join", tagRoute(h.handleJoinReservation))
	mux.HandleFunc("GET /reservations/{id}", tagRoute(h.handleGetReservation))
	mux.HandleFunc("DELETE /reservations/{id}", tagRoute(h.handleDeleteReservation))
	mux.HandleFunc("POST /reservations/{id}/accept", tagRoute(h.handleAcceptReservation))
	mux.HandleFunc("POST /reservations/{id}/control-event", tagRoute(h.handleCreateControlEvent))
	mux.HandleFunc("POST /borrel", tagRoute(h.handleCreateBorrel))
	mux.HandleFunc("GET /borrel/{id}", tagRoute(h.handleGetBorrel))
	mux.HandleFunc("POST /borrel/{id}/submit", tagRoute(h.handleSubmitBorrel))

	mux.HandleFunc("POST /categories", tagRoute(h.handleCreateCategory))
	mux.HandleFunc("GET /products", tagRoute(h.handleListProducts))
	mux.HandleFunc("POST /products", tagRoute(h.handleCreateProduct))
	mux.HandleFunc("GET /products/{id}", tagRoute(h.handleGetProduct))
	mux.HandleFunc("PUT /products/{id}", tagRoute(h.handleUpdateProduct))
	mux.HandleFunc("DELETE /products/{id}", tagRoute(h.handleDeleteProduct))
	mux.HandleFunc("GET /products/barcode/{code}", tagRoute(h.handleProductByBarcode))

	mux.HandleFunc("GET /shifts", tagRoute(h.handleListShifts))
	mux.HandleFunc("POST /shifts", tagRoute(h.handleCreateShift))
	mux.HandleFunc("GET /shifts/{id}", tagRoute(h.handleGetShift))
	mux.HandleFunc("PATCH /shifts/{id}", tagRoute(h.handleUpdateShift))
	mux.HandleFunc("POST /shifts/{id}/finalize", tagRoute(h.handleFinalizeShift))
	mux.HandleFunc("POST /shifts/{id}/add-time", tagRoute(h.handleAddTime))
	mux.HandleFunc("POST /shifts/{id}/add-capacity", tagRoute(h.handleAddCapacity))
	mux.HandleFunc("POST /shifts/{id}/assignees", tagRoute(h.handleAssign))
	mux.HandleFunc("GET /shifts/{id}/products/{pid}/allowance", tagRoute(h.handleAllowance))

	mux.HandleFunc("GET /shifts/{id}/orders", tagRoute(h.handleListOrders))
	mux.HandleFunc("POST /shifts/{id}/orders", tagRoute(h.handleCreateOrder))
	mux.HandleFunc("POST /shifts/{id}/orders/cart", tagRoute(h.handleCart))
	mux.HandleFunc("PATCH /shifts/{id}/orders/{oid}", tagRoute(h.handleUpdateOrder))
	mux.HandleFunc("DELETE /shifts/{id}/orders/{oid}", tagRoute(h.handleDeleteOrder))
	mux.HandleFunc("POST /shifts/{id}/scanner", tagRoute(h.handleScan))

	mux.HandleFunc("GET /players", tagRoute(h.handleListPlayers))
	mux.HandleFunc("POST /players", tagRoute(h.handleCreatePlayer))
	mux.HandleFunc("PUT /players/{slug}/credentials", tagRoute(h.handleSetCredentials))
	mux.HandleFunc("GET /players/{slug}/search", tagRoute(h.handleSearch))
	mux.HandleFunc("POST /players/{slug}/add", tagRoute(h.handleRequestTrack))
	mux.HandleFunc("GET /players/{slug}/queue", tagRoute(h.handleQueue))
	mux.HandleFunc("GET /players/{slug}/current", tagRoute(h.handleCurrent))
	mux.HandleFunc("GET /players/{slug}/playback", tagRoute(h.handlePlayback))
	mux.HandleFunc("PATCH /players/{slug}/play", tagRoute(h.playerControl(MusicService.Play)))
	mux.HandleFunc("PATCH /players/{slug}/pause", tagRoute(h.playerControl(MusicService.Pause)))
	mux.HandleFunc("PATCH /players/{slug}/next", tagRoute(h.playerControl(MusicService.Next)))
	mux.HandleFunc("PATCH /players/{slug}/previous", tagRoute(h.playerControl(MusicService.Previous)))
	mux.HandleFunc("PATCH /players/{slug}/volume", tagRoute(h.handleVolume))
	mux.HandleFunc("PATCH /players/{slug}/shuffle", tagRoute(h.handleShuffle))
	mux.HandleFunc("PATCH /players/{slug}/repeat", tagRoute(h.handleRepeat))
	mux.HandleFunc("POST /control-events/join", tagRoute(h.handleJoinControlEvent))

	mux.HandleFunc("POST /users/{id}/groups", tagRoute(h.handleAddToGroup))
	mux.HandleFunc("POST /users/{id}/age-verified", tagRoute(h.handleAgeVerified))
	mux.HandleFunc("POST /permissions", tagRoute(h.handleGrant))
	mux.HandleFunc("POST /object-permissions", tagRoute(h.handleGrantObject))
	mux.HandleFunc("DELETE /object-permissions", tagRoute(h.handleRevokeObject))
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if !user.Authenticated() {
		h.fail(w, r, store.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "bad_request", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}

func queryBool(r *http.Request, name string) bool {
	value, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return value
}

func queryTime(r *http.Request, name string) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, true
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return value, true
}
