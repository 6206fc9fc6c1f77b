package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/amistad/backend/internal/auth"
	"github.com/amistad/backend/internal/logging"
	"github.com/amistad/backend/internal/repositories"
)

// allowedAvatarExtensions is the upload extension allowlist.
var allowedAvatarExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
}

// allowedProfileFields are the keys accepted by PATCH /users/me.
var allowedProfileFields = map[string]struct{}{
	"nombre": {}, "apellido": {}, "email": {}, "fecha_nacimiento": {}, "username": {}, "password": {},
}

// UserHandler implements profile endpoints.
type UserHandler struct {
	Users          UserStore
	Identity       Identity
	Avatars        AvatarStorage
	MaxAvatarBytes int64
	NowFunc        func() time.Time
}

// Me dispatches /api/v1/users/me: GET returns the caller's profile, PATCH
// applies a partial update.
func (h UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.me(w, r)
	case http.MethodPatch:
		h.updateMe(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h UserHandler) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	callerUUID, ok := authenticate(w, r, h.Identity)
	if !ok {
		return
	}

	user, err := h.Users.FindByUUID(ctx, callerUUID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		logging.FromContext(ctx).Error("profile lookup failed", "error", err, "userUuid", callerUUID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to load profile"})
		return
	}

	var email *string
	if cred, err := h.Users.FindCredentialByUserID(ctx, user.ID); err == nil {
		email = &cred.Email
	} else if !errors.Is(err, repositories.ErrNotFound) {
		logging.FromContext(ctx).Error("credential lookup failed", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to load profile"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"user_uuid":        user.UUID,
		"nombre":           user.FirstName,
		"apellido":         user.LastName,
		"email":            email,
		"username":         user.Username,
		"avatar_url":       avatarURL(user.AvatarPath),
		"fecha_nacimiento": user.BirthDate.Format(birthDateLayout),
		"created_at":       user.CreatedAt.Format(time.RFC3339),
	})
}

func (h UserHandler) updateMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	callerUUID, ok := authenticate(w, r, h.Identity)
	if !ok {
		return
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		logger.Warn("invalid profile update payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var unknown []string
	for key := range payload {
		if _, ok := allowedProfileFields[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]string{
			"error": "unknown fields: " + strings.Join(unknown, ", "),
		})
		return
	}

	user, err := h.Users.FindByUUID(ctx, callerUUID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		logger.Error("profile lookup failed", "error", err, "userUuid", callerUUID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to load profile"})
		return
	}

	cred, err := h.Users.FindCredentialByUserID(ctx, user.ID)
	hasCred := err == nil
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("credential lookup failed", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to load profile"})
		return
	}

	credChanged := false

	if raw, ok := payload["email"]; ok {
		value, err := stringField(raw)
		if err != nil {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid email"})
			return
		}
		newEmail := strings.TrimSpace(strings.ToLower(value))
		if _, err := mail.ParseAddress(newEmail); err != nil {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid email address"})
			return
		}
		if !hasCred {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "no local credential"})
			return
		}
		if newEmail != cred.Email {
			if _, err := h.Users.FindCredentialByEmail(ctx, newEmail); err == nil {
				respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "email already registered"})
				return
			} else if !errors.Is(err, repositories.ErrNotFound) {
				logger.Error("email lookup failed", "error", err)
				respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to verify email"})
				return
			}
			cred.Email = newEmail
			credChanged = true
		}
	}

	if raw, ok := payload["username"]; ok {
		value, err := stringField(raw)
		if err != nil {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid username"})
			return
		}
		newUsername := strings.TrimSpace(strings.ToLower(value))
		if newUsername == "" {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "username must not be empty"})
			return
		}
		if newUsername != user.Username {
			if _, err := h.Users.FindByUsername(ctx, newUsername); err == nil {
				respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "username already registered"})
				return
			} else if !errors.Is(err, repositories.ErrNotFound) {
				logger.Error("username lookup failed", "error", err)
				respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to verify username"})
				return
			}
			user.Username = newUsername
		}
	}

	if raw, ok := payload["nombre"]; ok {
		value, err := stringField(raw)
		if err != nil || strings.TrimSpace(value) == "" {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid nombre"})
			return
		}
		user.FirstName = strings.TrimSpace(value)
	}

	if raw, ok := payload["apellido"]; ok {
		value, err := stringField(raw)
		if err != nil || strings.TrimSpace(value) == "" {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid apellido"})
			return
		}
		user.LastName = strings.TrimSpace(value)
	}

	if raw, ok := payload["fecha_nacimiento"]; ok {
		value, err := stringField(raw)
		if err != nil {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid fecha_nacimiento"})
			return
		}
		birthDate, err := time.Parse(birthDateLayout, value)
		if err != nil {
			respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid fecha_nacimiento"})
			return
		}
		if !auth.IsAdult(birthDate, h.now()) {
			respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]string{"error": "must be 18 or older"})
			return
		}
		user.BirthDate = birthDate
	}

	if raw, ok := payload["password"]; ok {
		value, err := stringField(raw)
		if err != nil {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid password"})
			return
		}
		if !hasCred {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "no local credential"})
			return
		}
		if !auth.ValidPassword(value) {
			respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]string{"error": "password does not meet policy"})
			return
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(value), bcrypt.DefaultCost)
		if err != nil {
			logger.Error("failed to hash password", "error", err)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to secure password"})
			return
		}
		cred.PasswordHash = string(hashed)
		credChanged = true
	}

	if err := h.Users.UpdateProfile(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "uniqueness conflict"})
			return
		}
		logger.Error("profile update failed", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to update profile"})
		return
	}

	if credChanged {
		if err := h.Users.UpdateCredential(ctx, cred); err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "uniqueness conflict"})
				return
			}
			logger.Error("credential update failed", "error", err, "userId", user.ID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to update credential"})
			return
		}
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

// Avatar handles PATCH /api/v1/users/me/avatar multipart uploads.
func (h UserHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	callerUUID, ok := authenticate(w, r, h.Identity)
	if !ok {
		return
	}

	if h.Avatars == nil {
		logger.Error("avatar storage unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "avatar storage unavailable"})
		return
	}

	maxBytes := h.MaxAvatarBytes
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}
	if r.ContentLength > maxBytes {
		respondJSON(ctx, w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file exceeds maximum size"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid multipart body"})
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "avatar file is required"})
		return
	}
	defer file.Close()

	if mime := header.Header.Get("Content-Type"); !strings.HasPrefix(mime, "image/") {
		respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]string{"error": "unsupported media type"})
		return
	}

	ext := strings.ToLower(path.Ext(header.Filename))
	if _, ok := allowedAvatarExtensions[ext]; !ok {
		respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]string{"error": "unsupported file extension"})
		return
	}

	user, err := h.Users.FindByUUID(ctx, callerUUID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		logger.Error("profile lookup failed", "error", err, "userUuid", callerUUID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to load profile"})
		return
	}

	now := h.now()
	name := fmt.Sprintf("%04d/%02d/%s%s", now.Year(), now.Month(), uuid.NewString(), ext)

	location, err := h.Avatars.Save(ctx, name, file)
	if err != nil {
		logger.Error("avatar upload failed", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to store avatar"})
		return
	}

	user.AvatarPath = location
	if err := h.Users.UpdateProfile(ctx, user); err != nil {
		logger.Error("avatar path update failed", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to update profile"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"avatar_url": avatarURL(location)})
}

// PublicProfile handles GET /api/v1/users/{uuid}, no auth required.
func (h UserHandler) PublicProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	userUUID := strings.TrimPrefix(r.URL.Path, "/api/v1/users/")
	if userUUID == "" || strings.Contains(userUUID, "/") {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	user, err := h.Users.FindByUUID(ctx, userUUID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		logging.FromContext(ctx).Error("public profile lookup failed", "error", err, "userUuid", userUUID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to load profile"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"user_uuid":  user.UUID,
		"nombre":     user.FirstName,
		"apellido":   user.LastName,
		"username":   user.Username,
		"avatar_url": avatarURL(user.AvatarPath),
		"created_at": user.CreatedAt.Format(time.RFC3339),
	})
}

// Search handles GET /api/v1/users/search with offset paging.
func (h UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondJSON(ctx, w, http.StatusOK, searchResponse{Items: []searchItem{}, Paging: searchPaging{}})
		return
	}

	limit, offset, err := searchParams(r)
	if err != nil {
		respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid limit/offset"})
		return
	}

	// Fetch one extra row to detect whether another page exists.
	users, err := h.Users.Search(ctx, q, limit+1, offset)
	if err != nil {
		logging.FromContext(ctx).Error("user search failed", "error", err, "q", q)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "search failed"})
		return
	}

	hasMore := len(users) > limit
	if hasMore {
		users = users[:limit]
	}

	items := make([]searchItem, 0, len(users))
	for _, user := range users {
		items = append(items, searchItem{
			UserUUID:  user.UUID,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Username:  user.Username,
			AvatarURL: avatarURL(user.AvatarPath),
		})
	}

	paging := searchPaging{}
	if hasMore {
		next := offset + limit
		paging.NextCursor = &next
	}

	respondJSON(ctx, w, http.StatusOK, searchResponse{Items: items, Paging: paging})
}

func searchParams(r *http.Request) (limit, offset int, err error) {
	limit = 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, err
		}
	}
	if limit > 50 {
		limit = 50
	}
	if limit < 1 {
		limit = 1
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, err
		}
	}
	if offset < 0 {
		offset = 0
	}

	return limit, offset, nil
}

func stringField(raw json.RawMessage) (string, error) {
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", err
	}
	return value, nil
}

// avatarURL renders the stored avatar location as a client-facing URL. Object
// store locations are already absolute; local paths are served from the root.
func avatarURL(location string) *string {
	if location == "" {
		return nil
	}
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return &location
	}
	url := "/" + strings.TrimLeft(location, "/")
	return &url
}

func (h UserHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

type searchItem struct {
	UserUUID  string  `json:"user_uuid"`
	FirstName string  `json:"nombre"`
	LastName  string  `json:"apellido"`
	Username  string  `json:"username"`
	AvatarURL *string `json:"avatar_url"`
}

type searchPaging struct {
	NextCursor *int `json:"next_cursor"`
}

type searchResponse struct {
	Items  []searchItem `json:"items"`
	Paging searchPaging `json:"paging"`
}
