// Package api exposes the event plane's HTTP ingress: signal ingestion,
// integration connection/webhook/action management, and the alerting
// surface, wired on top of pkg/sin, pkg/iaf and pkg/anc. Error responses
// follow RFC 7807, generalizing the teacher's problem+json convention to
// this module's own error type space.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/google/uuid"
)

const problemTypeBase = "https://eventplane.dev/errors/"

// problem is the RFC 7807 "problem+json" body every error response carries.
type problem struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Detail    string `json:"detail"`
	Status    int    `json:"status"`
	Instance  string `json:"instance"`
	RequestID string `json:"request_id,omitempty"`
}

// errorSlugs renames a handful of ErrorTypes whose default (underscored)
// form reads awkwardly as a URI segment; everything else falls back to a
// straight underscore-to-hyphen swap.
var errorSlugs = map[apperrors.ErrorType]string{
	apperrors.ErrorTypeValidation: "validation-error",
	apperrors.ErrorTypeNotFound:   "not-found",
	apperrors.ErrorTypeAuth:       "unauthorized",
	apperrors.ErrorTypeInternal:   "internal-error",
	apperrors.ErrorTypeDatabase:   "internal-error",
	apperrors.ErrorTypeNetwork:    "internal-error",
}

func errorSlug(t apperrors.ErrorType) string {
	if slug, ok := errorSlugs[t]; ok {
		return slug
	}
	return strings.ReplaceAll(string(t), "_", "-")
}

// writeProblem writes err as an RFC 7807 response, deriving status, type
// and a caller-safe detail message from its *errors.AppError classification
// when present.
func writeProblem(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.GetStatusCode(err)
	errType := apperrors.GetType(err)

	body := problem{
		Type:      problemTypeBase + errorSlug(errType),
		Title:     http.StatusText(status),
		Detail:    apperrors.SafeErrorMessage(err),
		Status:    status,
		Instance:  r.URL.Path,
		RequestID: requestIDFromContext(r.Context()),
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeProblemMessage writes an ad-hoc validation problem not backed by an
// *errors.AppError, e.g. malformed request bodies caught at the transport
// boundary before any domain call runs.
func writeProblemMessage(w http.ResponseWriter, r *http.Request, status int, errType apperrors.ErrorType, detail string) {
	body := problem{
		Type:      problemTypeBase + errorSlug(errType),
		Title:     http.StatusText(status),
		Detail:    detail,
		Status:    status,
		Instance:  r.URL.Path,
		RequestID: requestIDFromContext(r.Context()),
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSON writes a 2xx plain JSON success response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// newID generates an identifier for a newly created resource when the
// caller didn't supply one.
func newID() string {
	return uuid.NewString()
}
