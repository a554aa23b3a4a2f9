package invu

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// CredentialInfo describes a branch token without exposing it.
type CredentialInfo struct {
	Present   bool
	ExpiresAt *time.Time
}

// Expired reports whether the token carries an exp claim at or before now.
func (c CredentialInfo) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// InspectToken reads the exp claim of JWT-shaped tokens. The signature is not
// verified: the provider is the only party that can, and this is only used to
// report expiry. Opaque tokens yield Present with no expiry.
func InspectToken(token string) CredentialInfo {
	token = strings.TrimSpace(token)
	if token == "" {
		return CredentialInfo{}
	}
	info := CredentialInfo{Present: true}

	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(token, claims); err != nil {
		return info
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return info
	}
	at := exp.Time.UTC()
	info.ExpiresAt = &at
	return info
}
