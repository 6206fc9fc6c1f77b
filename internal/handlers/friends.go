package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/amistad/backend/internal/friendship"
	"github.com/amistad/backend/internal/logging"
	"github.com/amistad/backend/internal/models"
	"github.com/amistad/backend/internal/repositories"
)

// FriendHandler exposes the friendship lifecycle over HTTP.
type FriendHandler struct {
	Users    UserStore
	Engine   FriendEngine
	Identity Identity
}

// List handles GET /api/v1/friends requests, optionally filtered by ?status=.
func (h FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	callerUUID, ok := authenticate(w, r, h.Identity)
	if !ok {
		return
	}

	me, ok := h.resolveUser(ctx, w, callerUUID)
	if !ok {
		return
	}

	filter := friendship.Status(strings.TrimSpace(r.URL.Query().Get("status")))

	views, err := h.Engine.List(ctx, me.ID, filter)
	if err != nil {
		logging.FromContext(ctx).Error("list friendships failed", "error", err, "userId", me.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to list friends"})
		return
	}

	items := make([]friendItem, 0, len(views))
	for _, view := range views {
		items = append(items, friendItem{
			UserUUID:      view.Other.UUID,
			FirstName:     view.Other.FirstName,
			LastName:      view.Other.LastName,
			Username:      view.Other.Username,
			Status:        string(view.Status),
			RequestedByMe: view.RequestedByMe,
		})
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"items": items})
}

// Request handles POST /api/v1/friends/request, creating or reopening a
// friend request toward to_user_uuid.
func (h FriendHandler) Request(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	callerUUID, ok := authenticate(w, r, h.Identity)
	if !ok {
		return
	}

	var req friendRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ToUserUUID) == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "to_user_uuid is required"})
		return
	}

	me, other, ok := h.resolvePair(ctx, w, callerUUID, req.ToUserUUID)
	if !ok {
		return
	}

	result, err := h.Engine.Request(ctx, me.ID, other.ID)
	if err != nil {
		if errors.Is(err, friendship.ErrSelfRequest) {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "self request not allowed"})
			return
		}
		logging.FromContext(ctx).Error("friend request failed", "error", err, "caller", me.ID, "target", other.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to send friend request"})
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	respondJSON(ctx, w, status, map[string]string{"status": string(result.Status)})
}

// Accept handles POST /api/v1/friends/accept.
func (h FriendHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.Engine.Accept)
}

// Reject handles POST /api/v1/friends/reject.
func (h FriendHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.Engine.Reject)
}

func (h FriendHandler) respond(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, caller, target int64) (friendship.Status, error)) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	callerUUID, ok := authenticate(w, r, h.Identity)
	if !ok {
		return
	}

	var req friendActionPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.UserUUID) == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "user_uuid is required"})
		return
	}

	me, other, ok := h.resolvePair(ctx, w, callerUUID, req.UserUUID)
	if !ok {
		return
	}

	status, err := op(ctx, me.ID, other.ID)
	if err != nil {
		switch {
		case errors.Is(err, friendship.ErrNoPendingRequest):
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "no pending request"})
		case errors.Is(err, friendship.ErrForbiddenActor):
			respondJSON(ctx, w, http.StatusForbidden, map[string]string{"error": "only the receiving party may respond"})
		default:
			logging.FromContext(ctx).Error("friend response failed", "error", err, "caller", me.ID, "target", other.ID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to update friend request"})
		}
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": string(status)})
}

// Unfriend handles POST /api/v1/friends/unfriend. Unfriending someone who is
// not a friend is not an error.
func (h FriendHandler) Unfriend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	callerUUID, ok := authenticate(w, r, h.Identity)
	if !ok {
		return
	}

	var req friendActionPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.UserUUID) == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "user_uuid is required"})
		return
	}

	me, other, ok := h.resolvePair(ctx, w, callerUUID, req.UserUUID)
	if !ok {
		return
	}

	status, err := h.Engine.Remove(ctx, me.ID, other.ID)
	if err != nil {
		logging.FromContext(ctx).Error("unfriend failed", "error", err, "caller", me.ID, "target", other.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to unfriend"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": string(status)})
}

func (h FriendHandler) resolveUser(ctx context.Context, w http.ResponseWriter, userUUID string) (models.User, bool) {
	user, err := h.Users.FindByUUID(ctx, userUUID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
		} else {
			logging.FromContext(ctx).Error("resolve user failed", "error", err, "userUuid", userUUID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to resolve user"})
		}
		return models.User{}, false
	}
	return user, true
}

func (h FriendHandler) resolvePair(ctx context.Context, w http.ResponseWriter, callerUUID, targetUUID string) (models.User, models.User, bool) {
	me, ok := h.resolveUser(ctx, w, callerUUID)
	if !ok {
		return models.User{}, models.User{}, false
	}
	other, ok := h.resolveUser(ctx, w, strings.TrimSpace(targetUUID))
	if !ok {
		return models.User{}, models.User{}, false
	}
	return me, other, true
}

type friendRequestPayload struct {
	ToUserUUID string `json:"to_user_uuid"`
}

type friendActionPayload struct {
	UserUUID string `json:"user_uuid"`
}

type friendItem struct {
	UserUUID      string `json:"user_uuid"`
	FirstName     string `json:"nombre"`
	LastName      string `json:"apellido"`
	Username      string `json:"username"`
	Status        string `json:"status"`
	RequestedByMe bool   `json:"requested_by_me"`
}
