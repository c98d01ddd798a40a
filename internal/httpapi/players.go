package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"tosti/internal/models"
	"tosti/internal/music"
	"tosti/internal/store"
)

type createPlayerRequest struct {
	Slug        string `json:"slug"`
	DisplayName string `json:"display_name"`
	Venue       *int64 `json:"venue"`
}

type credentialsRequest struct {
	AccessToken string  `json:"access_token"`
	DeviceID    *string `json:"device_id"`
}

type requestTrackRequest struct {
	ID string `json:"id"`
}

type volumeRequest struct {
	Volume int `json:"volume"`
}

type toggleRequest struct {
	State bool `json:"state"`
}

func (h *Handler) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := h.music.Players(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

func (h *Handler) handleCreatePlayer(w http.ResponseWriter, r *http.Request) {
	var req createPlayerRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	player, err := h.store.CreatePlayer(r.Context(), store.CreatePlayerInput{
		Caller:      userFromContext(r.Context()),
		Slug:        strings.TrimSpace(req.Slug),
		DisplayName: strings.TrimSpace(req.DisplayName),
		VenueID:     req.Venue,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, player)
}

func (h *Handler) handleSetCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "bad_request", "access_token is required")
		return
	}
	player, err := h.store.GetPlayer(r.Context(), r.PathValue("slug"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user := userFromContext(r.Context())
	if err := h.store.SetPlayerCredentials(r.Context(), user, player.ID, []byte(req.AccessToken)); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.DeviceID != nil {
		if err := h.store.SetPlayerDevice(r.Context(), player.ID, req.DeviceID); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	max := music.DefaultSearchMax
	if r.URL.Query().Has("maximum") {
		value, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("maximum")))
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "bad_request", "maximum must be an integer")
			return
		}
		max = value
	}
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "bad_request", "query is required")
		return
	}
	tracks, err := h.music.Search(r.Context(), r.PathValue("slug"), userFromContext(r.Context()), query, max)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (h *Handler) handleRequestTrack(w http.ResponseWriter, r *http.Request) {
	var req requestTrackRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	item, err := h.music.Request(r.Context(), r.PathValue("slug"), userFromContext(r.Context()), strings.TrimSpace(req.ID))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "bad_request", "limit must be an integer")
		return
	}
	items, err := h.music.Queue(r.Context(), r.PathValue("slug"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	status, err := h.music.CurrentlyPlaying(r.Context(), r.PathValue("slug"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handlePlayback(w http.ResponseWriter, r *http.Request) {
	status, err := h.music.Playback(r.Context(), r.PathValue("slug"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) playerControl(op func(MusicService, context.Context, string, models.User) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := op(h.music, r.Context(), r.PathValue("slug"), userFromContext(r.Context())); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	h.playerControl(func(m MusicService, ctx context.Context, slug string, user models.User) error {
		return m.Volume(ctx, slug, user, req.Volume)
	})(w, r)
}

func (h *Handler) handleShuffle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	h.playerControl(func(m MusicService, ctx context.Context, slug string, user models.User) error {
		return m.Shuffle(ctx, slug, user, req.State)
	})(w, r)
}

func (h *Handler) handleRepeat(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	h.playerControl(func(m MusicService, ctx context.Context, slug string, user models.User) error {
		return m.Repeat(ctx, slug, user, req.State)
	})(w, r)
}

func (h *Handler) handleJoinControlEvent(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	event, err := h.music.JoinControlEvent(r.Context(), userFromContext(r.Context()), strings.TrimSpace(req.JoinCode))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	event.JoinCode = ""
	writeJSON(w, http.StatusOK, event)
}
