package handlers

import (
	"context"
	"io"

	"github.com/amistad/backend/internal/friendship"
	"github.com/amistad/backend/internal/models"
)

// UserStore captures the persistence operations required by the HTTP handlers.
type UserStore interface {
	CreateWithCredential(ctx context.Context, user models.User, cred models.Credential) (models.User, error)
	FindByUUID(ctx context.Context, userUUID string) (models.User, error)
	FindByID(ctx context.Context, id int64) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	FindCredentialByEmail(ctx context.Context, email string) (models.Credential, error)
	FindCredentialByUserID(ctx context.Context, userID int64) (models.Credential, error)
	UpdateProfile(ctx context.Context, user models.User) error
	UpdateCredential(ctx context.Context, cred models.Credential) error
	Search(ctx context.Context, term string, limit, offset int) ([]models.User, error)
}

// SessionManager issues, refreshes, revokes, and resolves authentication
// tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userUUID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string)
	Resolve(ctx context.Context, accessToken string) (string, error)
}

// Identity resolves a bearer access token to the public identifier of the
// authenticated user.
type Identity interface {
	Resolve(ctx context.Context, accessToken string) (string, error)
}

// FriendEngine captures the friendship lifecycle operations required by the
// friend handlers. Callers and targets are internal user keys.
type FriendEngine interface {
	Request(ctx context.Context, caller, target int64) (friendship.Result, error)
	Accept(ctx context.Context, caller, target int64) (friendship.Status, error)
	Reject(ctx context.Context, caller, target int64) (friendship.Status, error)
	Remove(ctx context.Context, caller, target int64) (friendship.Status, error)
	List(ctx context.Context, caller int64, filter friendship.Status) ([]friendship.View, error)
}

// AvatarStorage persists uploaded avatar images and returns their location.
type AvatarStorage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}
