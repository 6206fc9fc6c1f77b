package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/amistad/backend/internal/models"
)

var (
	// ErrSessionNotFound indicates the provided refresh token does not map to an active session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshTokenExpired indicates the refresh token has expired and cannot be used.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

// SessionStore persists issued refresh tokens so they can survive process restarts.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Find(ctx context.Context, refreshToken string) (Session, error)
	Delete(ctx context.Context, refreshToken string) error
}

// Session represents a refresh token issued to a user, keyed by the user's
// public identifier.
type Session struct {
	RefreshToken string
	UserUUID     string
	ExpiresAt    time.Time
}

// Manager issues JWT access tokens paired with opaque refresh tokens held in
// a persistent store.
type Manager struct {
	tokens     *JWTIssuer
	refreshTTL time.Duration

	store SessionStore
}

// NewManager constructs a Manager around the provided token issuer and
// refresh-token store.
func NewManager(tokens *JWTIssuer, refreshTTL time.Duration, store SessionStore) *Manager {
	if tokens == nil {
		panic("auth: token issuer must not be nil")
	}
	if store == nil {
		panic("auth: session store must not be nil")
	}
	return &Manager{
		tokens:     tokens,
		refreshTTL: refreshTTL,
		store:      store,
	}
}

// Issue creates a new pair of access and refresh tokens for the provided
// public user identifier.
func (m *Manager) Issue(ctx context.Context, userUUID string) (models.SessionTokens, error) {
	if userUUID == "" {
		return models.SessionTokens{}, errors.New("user id must be provided")
	}

	accessToken, accessExpiresAt, err := m.tokens.Issue(userUUID)
	if err != nil {
		return models.SessionTokens{}, err
	}

	refreshToken, err := randomToken()
	if err != nil {
		return models.SessionTokens{}, err
	}

	tokens := models.SessionTokens{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: time.Now().UTC().Add(m.refreshTTL),
	}

	if err := m.store.Save(ctx, Session{
		RefreshToken: refreshToken,
		UserUUID:     userUUID,
		ExpiresAt:    tokens.RefreshExpiresAt,
	}); err != nil {
		return models.SessionTokens{}, err
	}

	return tokens, nil
}

// Refresh exchanges a refresh token for a new session token pair. The spent
// token is always removed.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	if refreshToken == "" {
		return models.SessionTokens{}, ErrSessionNotFound
	}

	session, err := m.store.Find(ctx, refreshToken)
	if err != nil {
		return models.SessionTokens{}, err
	}

	if time.Now().UTC().After(session.ExpiresAt) {
		_ = m.store.Delete(ctx, refreshToken)
		return models.SessionTokens{}, ErrRefreshTokenExpired
	}

	if err := m.store.Delete(ctx, refreshToken); err != nil {
		return models.SessionTokens{}, err
	}

	return m.Issue(ctx, session.UserUUID)
}

// Revoke removes the provided refresh token from the active session store.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	_ = m.store.Delete(ctx, refreshToken)
}

// Resolve maps a bearer access token to the public user identifier it was
// issued for.
func (m *Manager) Resolve(ctx context.Context, accessToken string) (string, error) {
	return m.tokens.Verify(accessToken)
}

func randomToken() (string, error) {
	const size = 32
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
