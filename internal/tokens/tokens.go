package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// The gateway never mints or verifies backend session tokens — the backend
// owns them. It only needs the exp claim to size store TTLs and logout
// blacklist windows, so parsing is deliberately unverified.

var ErrNoExpiry = errors.New("token has no exp claim")

// ExpiryOf returns the exp claim of a JWT-shaped token without verifying the
// signature.
func ExpiryOf(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// TTLUntil returns the remaining lifetime of the token, clamped to [min, max].
// Opaque (non-JWT) tokens and tokens without exp fall back to max.
func TTLUntil(raw string, min, max time.Duration) time.Duration {
	exp, err := ExpiryOf(raw)
	if err != nil {
		return max
	}
	ttl := time.Until(exp)
	if ttl < min {
		return min
	}
	if ttl > max {
		return max
	}
	return ttl
}
