package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/evplatform/eventplane/internal/authn"
	apperrors "github.com/evplatform/eventplane/internal/errors"
)

type contextKey string

const (
	ctxKeyTenantID  contextKey = "tenant_id"
	ctxKeyRequestID contextKey = "request_id"
)

// requestID stamps every response with chi's per-request id so RFC 7807
// bodies can carry it as the request_id extension member.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// traceContext extracts W3C trace-context headers (traceparent/tracestate)
// into the request context so downstream envelope stamping can link emitted
// signals back to the caller's trace.
func traceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// authenticate builds a bearer-token middleware on top of
// authn.Verifier.ParseToken directly rather than authn.Verifier.Middleware,
// so a missing or invalid token produces an RFC 7807 body instead of the
// verifier's plain-text 401.
func authenticate(verifier *authn.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeProblemMessage(w, r, http.StatusUnauthorized, apperrors.ErrorTypeAuth, "missing bearer token")
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")
			claims, err := verifier.ParseToken(token)
			if err != nil {
				writeProblemMessage(w, r, http.StatusUnauthorized, apperrors.ErrorTypeAuth, "invalid bearer token")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyTenantID, claims.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tenantFromContext(ctx context.Context) string {
	tenantID, _ := ctx.Value(ctxKeyTenantID).(string)
	return tenantID
}

// requireTenantMatch returns a *errors.AppError when pathTenant, if
// non-empty, disagrees with the authenticated caller's tenant — the
// cross-tenant guard every tenant-scoped handler applies before touching
// storage.
func requireTenantMatch(ctx context.Context, pathTenant string) error {
	callerTenant := tenantFromContext(ctx)
	if pathTenant != "" && pathTenant != callerTenant {
		return apperrors.NewTenantIsolationViolation(pathTenant)
	}
	return nil
}
