// Package auth defines the token storage contract and a manager that keeps
// tokens fresh.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultProfile is the profile used when none is configured.
const DefaultProfile = "default"

// TokenData is a credential set issued by the backend.
type TokenData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// ExpiresAt is the absolute expiry in Unix milliseconds. Zero means unknown.
	ExpiresAt int64 `json:"expiresAt"`
}

// Expiry returns ExpiresAt as a time. The zero time is returned when the
// expiry is unknown.
func (t TokenData) Expiry() time.Time {
	if t.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(t.ExpiresAt)
}

// ExpiredAt reports whether the access token is expired at now, or will be
// within skew. Tokens with an unknown expiry never expire.
func (t TokenData) ExpiredAt(now time.Time, skew time.Duration) bool {
	if t.ExpiresAt == 0 {
		return false
	}
	return !now.Add(skew).Before(t.Expiry())
}

// Storage persists the token of one client. Implementations must make each
// method atomic with respect to the others.
type Storage interface {
	// GetToken returns the stored token or nil when there is none. It never fails.
	GetToken() *TokenData

	// SetToken replaces the stored token. Persistence failures are reported
	// as *StorageError.
	SetToken(TokenData) error

	// ClearToken removes the stored token. Clearing an empty store succeeds.
	ClearToken() error

	// IsAvailable reports whether the backing medium can be used.
	IsAvailable() bool
}

// StorageError reports a failed storage operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("auth: storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// FromJWT builds TokenData from an access token in JWT form, taking the expiry
// from its exp claim. The signature is not verified; the server remains the
// authority on validity.
func FromJWT(access, refresh string) (TokenData, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, &claims); err != nil {
		return TokenData{}, fmt.Errorf("auth: parse access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return TokenData{}, ErrNoExpiry
	}
	return TokenData{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    claims.ExpiresAt.UnixMilli(),
	}, nil
}
