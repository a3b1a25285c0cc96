// Package authn implements the trust-boundary tenant authentication stub
// called out in spec §1 as an external collaborator: this core trusts an
// already-verified bearer token and only extracts the tenant claim from it.
// Full IAM verification (signature issuer checks, revocation, mTLS) lives
// outside this core.
package authn

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	applicationerrors "github.com/evplatform/eventplane/internal/errors"
)

// TenantClaims is the minimal claim set this core relies on.
type TenantClaims struct {
	TenantID string `json:"tenant_id"`
	Subject  string `json:"sub"`
	jwt.RegisteredClaims
}

type contextKey string

const tenantContextKey contextKey = "tenant_id"

// Verifier extracts a TenantClaims from a bearer token using a static
// signing key. Production deployments typically front this with a real
// IAM service (§1); this stub exists so the core can be exercised and
// tested without one.
type Verifier struct {
	signingKey []byte
}

// NewVerifier builds a Verifier around a symmetric signing key.
func NewVerifier(signingKey []byte) *Verifier {
	return &Verifier{signingKey: signingKey}
}

// ParseToken validates and decodes a bearer token.
func (v *Verifier) ParseToken(tokenString string) (*TenantClaims, error) {
	claims := &TenantClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, applicationerrors.NewAuthError("unexpected signing method")
		}
		return v.signingKey, nil
	})
	if err != nil {
		return nil, applicationerrors.Wrap(err, applicationerrors.ErrorTypeAuth, "invalid bearer token")
	}
	if !token.Valid {
		return nil, applicationerrors.NewAuthError("bearer token is not valid")
	}
	if claims.TenantID == "" {
		return nil, applicationerrors.NewAuthError("bearer token missing tenant_id claim")
	}
	return claims, nil
}

// Middleware authenticates each request and stores the tenant id in the
// request context, rejecting requests with a missing/invalid bearer token.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := v.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), tenantContextKey, claims.TenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantFromContext returns the authenticated tenant id stored by
// Middleware, and false if none is present.
func TenantFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(tenantContextKey).(string)
	return id, ok
}
