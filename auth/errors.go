package auth

import "errors"

var (
	// ErrNoToken is returned when no token is stored.
	ErrNoToken = errors.New("auth: no token")

	// ErrNoRefreshToken is returned when a refresh is needed but the stored
	// token has no refresh token.
	ErrNoRefreshToken = errors.New("auth: no refresh token")

	// ErrNoRefresher is returned when a refresh is needed but no RefreshFunc
	// was configured.
	ErrNoRefresher = errors.New("auth: no refresh func configured")

	// ErrNoExpiry is returned by FromJWT when the token has no exp claim.
	ErrNoExpiry = errors.New("auth: token has no expiry")

	// ErrDecrypt is returned when stored data cannot be decrypted.
	ErrDecrypt = errors.New("auth: decrypt failed")
)
