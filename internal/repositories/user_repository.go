package repositories

import (
	"context"

	"github.com/amistad/backend/internal/models"
)

// UserRepository defines the data access contract for users and their local
// credentials. CreateWithCredential persists both rows atomically.
type UserRepository interface {
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
