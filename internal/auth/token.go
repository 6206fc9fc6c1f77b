package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates an access token that is malformed, expired, or
// signed with the wrong key.
var ErrInvalidToken = errors.New("invalid access token")

// JWTIssuer mints and verifies HS256 access tokens carrying the user's public
// identifier as subject.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration

	// NowFunc overrides the time source in tests.
	NowFunc func() time.Time
}

// NewJWTIssuer constructs an issuer signing with the provided secret.
func NewJWTIssuer(secret string, ttl time.Duration) *JWTIssuer {
	return &JWTIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue creates a signed access token for the provided user identifier.
func (i *JWTIssuer) Issue(userUUID string) (string, time.Time, error) {
	if userUUID == "" {
		return "", time.Time{}, errors.New("user id must be provided")
	}

	now := i.now()
	expiresAt := now.Add(i.ttl)

	claims := jwt.MapClaims{
		"sub":  userUUID,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
		"type": "access",
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return token, expiresAt, nil
}

// Verify parses the token and returns the subject user identifier.
func (i *JWTIssuer) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", ErrInvalidToken
	}

	return sub, nil
}

func (i *JWTIssuer) now() time.Time {
	if i.NowFunc != nil {
		return i.NowFunc().UTC()
	}
	return time.Now().UTC()
}
