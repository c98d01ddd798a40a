package httpapi

import (
	"net/http"

	"tosti/internal/store"
)

type addToGroupRequest struct {
	Group int64 `json:"group"`
}

type grantRequest struct {
	User       *int64 `json:"user"`
	Group      *int64 `json:"group"`
	Code       string `json:"code"`
	ObjectType string `json:"object_type"`
	ObjectID   int64  `json:"object_id"`
}

func (req grantRequest) grant() store.Grant {
	return store.Grant{
		UserID:     req.User,
		GroupID:    req.Group,
		Code:       req.Code,
		ObjectType: req.ObjectType,
		ObjectID:   req.ObjectID,
	}
}

func (h *Handler) handleAddToGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req addToGroupRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := h.store.AddUserToGroup(r.Context(), userFromContext(r.Context()), id, req.Group); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAgeVerified(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	user, err := h.store.MarkAgeVerified(r.Context(), userFromContext(r.Context()), id, h.now().UTC())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := h.store.GrantPermission(r.Context(), userFromContext(r.Context()), req.grant()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGrantObject(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := h.store.GrantObjectPermission(r.Context(), userFromContext(r.Context()), req.grant()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevokeObject(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := h.store.RevokeObjectPermission(r.Context(), userFromContext(r.Context()), req.grant()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
