package models

import "time"

// User represents an account within the Amistad platform. ID is the internal
// numeric key owned by the store; UUID is the public identifier used in every
// external reference.
type User struct {
	ID         int64
	UUID       string
	FirstName  string
	LastName   string
	Username   string
	BirthDate  time.Time
	AvatarPath string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Credential holds the local login secret for a user. Exactly one credential
// exists per user and it is created in the same transaction as the user row.
type Credential struct {
	ID           int64
	UserID       int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Friendship is the single row describing the undirected relation between two
// users. UserLowID < UserHighID always holds and the pair is unique, so both
// argument orders map to the same row.
type Friendship struct {
	ID          int64
	UserLowID   int64
	UserHighID  int64
	Status      string
	RequestedBy *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FriendshipWithUser is a friendship row joined with the profile of the
// member that is not the listing user.
type FriendshipWithUser struct {
	Other       User
	Status      string
	RequestedBy *int64
	UpdatedAt   time.Time
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
