package app

import (
	"context"
	"fmt"
	"time"

	"github.com/amistad/backend/internal/auth"
	"github.com/amistad/backend/internal/config"
	"github.com/amistad/backend/internal/db"
	"github.com/amistad/backend/internal/friendship"
	"github.com/amistad/backend/internal/handlers"
	"github.com/amistad/backend/internal/middleware"
	"github.com/amistad/backend/internal/repositories"
	"github.com/amistad/backend/internal/storage"
)

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, error) {
	users := repositories.NewPostgresUserRepository(pool)
	engine := friendship.NewEngine(repositories.NewPostgresFriendshipStore(pool))

	tokens := auth.NewJWTIssuer(cfg.JWTSecret, cfg.AccessTokenTTL)
	sessions := auth.NewManager(tokens, cfg.RefreshTokenTTL, repositories.NewPostgresSessionStore(pool))

	limiter := middleware.NewIPRateLimiter(cfg.AuthRateRequests, cfg.AuthRateWindow, cfg.AuthRateRequests, 5*time.Minute)

	var avatars handlers.AvatarStorage
	switch cfg.AvatarStorage {
	case "s3":
		s3Store, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, fmt.Errorf("configure avatar storage: %w", err)
		}
		avatars = s3Store
	default:
		avatars = storage.NewLocalStorage(cfg.UploadRoot)
	}

	return handlers.Dependencies{
		Users:          users,
		Sessions:       sessions,
		Friends:        engine,
		Avatars:        avatars,
		AuthLimiter:    limiter,
		MaxAvatarBytes: int64(cfg.MaxAvatarMB) << 20,
	}, nil
}
