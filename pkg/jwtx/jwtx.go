// Package jwtx verifies the bearer tokens minted by the platform auth
// service. This service never signs tokens; it only needs to check the
// signature and pull out the actor, tenant, and scopes.
package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed     = errors.New("jwtx: malformed token")
	ErrAlgMismatch   = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig    = errors.New("jwtx: invalid signature")
	ErrExpired       = errors.New("jwtx: token expired")
	ErrMissingTenant = errors.New("jwtx: token carries no tenant")
)

// Claims are the fields this service cares about. Subject is the actor
// id; TenantID scopes every downstream query; Scopes gate the elevated
// endpoints.
type Claims struct {
	jwt.RegisteredClaims

	// TenantID of the organization the actor belongs to.
	TenantID string `json:"tenant,omitempty"`

	// Permission scopes, e.g. "sync:write biometrics:manage".
	Scopes []string `json:"scopes,omitempty"`

	// DisplayName of the actor, for logs and notes.
	DisplayName string `json:"display_name,omitempty"`
}

// ValidateExpiry rejects tokens past their exp claim, with a minute of
// leeway for clock skew.
func (c Claims) ValidateExpiry() error {
	if c.ExpiresAt == nil {
		return nil
	}
	if time.Now().After(c.ExpiresAt.Time.Add(time.Minute)) {
		return ErrExpired
	}
	return nil
}

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// HS256Verifier checks tokens against the shared secret configured
// between this service and the auth layer.
type HS256Verifier struct {
	secret []byte
	issuer string // empty means "don't care"
}

func NewHS256Verifier(secret []byte, issuer string) *HS256Verifier {
	return &HS256Verifier{secret: secret, issuer: issuer}
}

func (v *HS256Verifier) Verify(token string) (Claims, error) {
	var claims Claims

	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrAlgMismatch
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, ErrMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSig
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		default:
			return Claims{}, err
		}
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalidSig
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return Claims{}, ErrMalformed
	}
	if claims.TenantID == "" {
		return Claims{}, ErrMissingTenant
	}

	return claims, nil
}
