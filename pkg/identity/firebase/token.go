package firebase

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// idTokenClaims are the Firebase ID token claims the storefront reads.
type idTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
}

// parseIDToken reads the claims of an ID token without verifying its signature.
// The token is only forwarded to backends, which verify it themselves.
func parseIDToken(token string) (*idTokenClaims, error) {
	claims := &idTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse id token: %w", err)
	}
	return claims, nil
}

// expiry prefers the token's exp claim and falls back to expiresIn seconds.
func expiry(claims *idTokenClaims, expiresIn string, now time.Time) time.Time {
	if claims != nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	if secs, err := strconv.ParseInt(expiresIn, 10, 64); err == nil && secs > 0 {
		return now.Add(time.Duration(secs) * time.Second)
	}
	return time.Time{}
}
