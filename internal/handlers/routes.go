package handlers

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Limiter: deps.AuthLimiter}
	users := UserHandler{Users: deps.Users, Identity: deps.Sessions, Avatars: deps.Avatars, MaxAvatarBytes: deps.MaxAvatarBytes}
	friends := FriendHandler{Users: deps.Users, Engine: deps.Friends, Identity: deps.Sessions}

	mux.HandleFunc("/healthz", health.Handle)

	mux.HandleFunc("/api/v1/auth/register", auth.Register)
	mux.HandleFunc("/api/v1/auth/login", auth.Login)
	mux.HandleFunc("/api/v1/auth/refresh", auth.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", auth.Logout)

	mux.HandleFunc("/api/v1/users/me", users.Me)
	mux.HandleFunc("/api/v1/users/me/avatar", users.Avatar)
	mux.HandleFunc("/api/v1/users/search", users.Search)
	mux.HandleFunc("/api/v1/users/", users.PublicProfile)

	mux.HandleFunc("/api/v1/friends", friends.List)
	mux.HandleFunc("/api/v1/friends/request", friends.Request)
	mux.HandleFunc("/api/v1/friends/accept", friends.Accept)
	mux.HandleFunc("/api/v1/friends/reject", friends.Reject)
	mux.HandleFunc("/api/v1/friends/unfriend", friends.Unfriend)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users          UserStore
	Sessions       SessionManager
	Friends        FriendEngine
	Avatars        AvatarStorage
	AuthLimiter    RateLimiter
	MaxAvatarBytes int64
}
