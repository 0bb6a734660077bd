package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// APIKeyInfo is what can be read from a Supabase API key without its
// signing secret.
type APIKeyInfo struct {
	Role      string
	ExpiresAt time.Time
}

// Expired reports whether the key had expired at now. Keys without an
// expiry never expire.
func (i APIKeyInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// Privileged reports whether the key bypasses row-level security.
func (i APIKeyInfo) Privileged() bool {
	return i.Role == "service_role"
}

type apiKeyClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// InspectAPIKey decodes key without verifying its signature. It is meant for
// early warnings only; the remote store remains the authority.
func InspectAPIKey(key string) (APIKeyInfo, error) {
	claims := &apiKeyClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(key, claims); err != nil {
		return APIKeyInfo{}, fmt.Errorf("API key is not a JWT: %w", err)
	}

	info := APIKeyInfo{Role: claims.Role}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
