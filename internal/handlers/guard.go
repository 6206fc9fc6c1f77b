package handlers

import (
	"net/http"
	"strings"

	"github.com/amistad/backend/internal/logging"
)

// authenticate resolves the request's bearer token to a public user
// identifier, writing a 401 response when the token is missing or invalid.
// Protected handlers call it first and return when ok is false.
func authenticate(w http.ResponseWriter, r *http.Request, identity Identity) (string, bool) {
	ctx := r.Context()

	if identity == nil {
		logging.FromContext(ctx).Error("identity resolver unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "authentication services unavailable"})
		return "", false
	}

	token, ok := bearerToken(r)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return "", false
	}

	userUUID, err := identity.Resolve(ctx, token)
	if err != nil {
		logging.FromContext(ctx).Warn("bearer token rejected", "error", err)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return "", false
	}

	return userUUID, true
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	return parts[1], true
}
