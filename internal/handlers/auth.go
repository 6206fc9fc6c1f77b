package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/amistad/backend/internal/auth"
	"github.com/amistad/backend/internal/logging"
	"github.com/amistad/backend/internal/models"
	"github.com/amistad/backend/internal/repositories"
)

const birthDateLayout = "2006-01-02"

// AuthHandler implements registration and session endpoints.
type AuthHandler struct {
	Users    UserStore
	Sessions SessionManager
	Limiter  RateLimiter
	NowFunc  func() time.Time
}

// Register handles POST /api/v1/auth/register requests. The user and its
// credential are created atomically; on any conflict neither persists.
func (h AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil {
		logger.Error("registration dependencies unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "registration services unavailable"})
		return
	}

	if !allowRequest(h.Limiter, r, "register") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid register payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Username = strings.TrimSpace(strings.ToLower(req.Username))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	if req.FirstName == "" || req.LastName == "" || req.Email == "" || req.BirthDate == "" || req.Username == "" || req.Password == "" {
		logger.Warn("register missing fields", "email", req.Email)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "missing required fields"})
		return
	}

	if _, err := mail.ParseAddress(req.Email); err != nil {
		logger.Warn("register invalid email", "email", req.Email, "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid email address"})
		return
	}

	birthDate, err := time.Parse(birthDateLayout, req.BirthDate)
	if err != nil {
		logger.Warn("register invalid birthdate", "value", req.BirthDate)
		respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid fecha_nacimiento"})
		return
	}

	now := h.now()
	if !auth.IsAdult(birthDate, now) {
		logger.Warn("register underage", "email", req.Email)
		respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]string{"error": "must be 18 or older"})
		return
	}

	if !auth.ValidPassword(req.Password) {
		logger.Warn("register weak password", "email", req.Email)
		respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]string{"error": "password does not meet policy"})
		return
	}

	if _, err := h.Users.FindCredentialByEmail(ctx, req.Email); err == nil {
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "email already registered"})
		return
	} else if !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("register email lookup failed", "error", err, "email", req.Email)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to verify existing accounts"})
		return
	}

	if _, err := h.Users.FindByUsername(ctx, req.Username); err == nil {
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "username already registered"})
		return
	} else if !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("register username lookup failed", "error", err, "username", req.Username)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to verify existing accounts"})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("register failed to hash password", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to secure password"})
		return
	}

	user := models.User{
		UUID:      uuid.NewString(),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		BirthDate: birthDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	cred := models.Credential{
		Email:        req.Email,
		PasswordHash: string(hashed),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := h.Users.CreateWithCredential(ctx, user, cred)
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			logger.Warn("register conflict", "email", req.Email, "username", req.Username)
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "account already exists"})
			return
		}
		logger.Error("register failed to create account", "error", err, "email", req.Email)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create account"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]string{"user_uuid": created.UUID})
}

// Login handles POST /api/v1/auth/login requests.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Sessions == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "authentication services unavailable"})
		return
	}

	if !allowRequest(h.Limiter, r, "login") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		logger.Warn("login missing credentials", "email", req.Email)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}

	cred, err := h.Users.FindCredentialByEmail(ctx, req.Email)
	if err != nil {
		logger.Warn("login credential lookup failed", "email", req.Email, "error", err)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(req.Password)); err != nil {
		logger.Warn("login password mismatch", "userId", cred.UserID)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	user, err := h.Users.FindByID(ctx, cred.UserID)
	if err != nil {
		logger.Error("login user lookup failed", "error", err, "userId", cred.UserID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to load account"})
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.UUID)
	if err != nil {
		logger.Error("failed to issue session", "error", err, "userUuid", user.UUID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{
		Tokens: tokens,
		User: &profilePayload{
			UserUUID:  user.UUID,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Email:     cred.Email,
			Username:  user.Username,
		},
	})
}

// Refresh exchanges a refresh token for a new session.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Sessions == nil {
		logger.Error("session manager unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "session service unavailable"})
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid refresh payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		logger.Warn("missing refresh token")
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "refresh token is required"})
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrRefreshTokenExpired) || errors.Is(err, auth.ErrSessionNotFound) {
			status = http.StatusUnauthorized
		}
		logger.Warn("refresh failed", "error", err, "status", status)
		respondJSON(ctx, w, status, map[string]string{"error": "unable to refresh session"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens})
}

// Logout handles POST /api/v1/auth/logout, revoking the provided refresh
// token. Logging out an already-revoked session succeeds.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && h.Sessions != nil {
		h.Sessions.Revoke(ctx, strings.TrimSpace(req.RefreshToken))
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	FirstName string `json:"nombre"`
	LastName  string `json:"apellido"`
	Email     string `json:"email"`
	BirthDate string `json:"fecha_nacimiento"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type profilePayload struct {
	UserUUID  string `json:"user_uuid"`
	FirstName string `json:"nombre"`
	LastName  string `json:"apellido"`
	Email     string `json:"email"`
	Username  string `json:"username"`
}

type authResponse struct {
	Tokens models.SessionTokens `json:"tokens"`
	User   *profilePayload      `json:"user,omitempty"`
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
