package wiring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/iaf"
)

// SecretStore resolves an auth_ref to a live secret value against the KMS
// collaborator (spec §1 scope: secret storage is an external boundary).
// Wrap it in iaf.NewSecretTTLCache to avoid round-tripping on every call.
type SecretStore struct {
	Client  *http.Client
	BaseURL string
}

type kmsResolveResponse struct {
	Secret string `json:"secret"`
}

func (s *SecretStore) Resolve(ctx context.Context, ref string) (string, error) {
	if s.BaseURL == "" {
		return "", apperrors.New(apperrors.ErrorTypeAuth, "kms service url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/secrets/"+ref, nil)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrorTypeAuth, "failed to build kms request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrorTypeUpstreamError, "kms request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.Newf(apperrors.ErrorTypeAuth, "kms returned status %d for ref %s", resp.StatusCode, ref)
	}

	var out kmsResolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrorTypeUpstreamError, "failed to decode kms response")
	}
	return out.Secret, nil
}

// BudgetChecker gates outbound calls against the Budget service. Per spec
// §4.2/§9, budget checks fail open: any transport error is treated as
// "allowed" rather than blocking the call.
type BudgetChecker struct {
	Client  *http.Client
	BaseURL string
	Logger  *logrus.Logger
}

type budgetAllowResponse struct {
	Allowed bool `json:"allowed"`
}

func (b *BudgetChecker) logger() *logrus.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return logrus.StandardLogger()
}

func (b *BudgetChecker) Allow(ctx context.Context, connectionID string) (bool, error) {
	if b.BaseURL == "" {
		return true, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/budget/%s/allow", b.BaseURL, connectionID), nil)
	if err != nil {
		return true, nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		b.logger().WithError(err).WithField("connection_id", connectionID).Debug("budget check failed, failing open")
		return true, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return true, nil
	}

	var out budgetAllowResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return true, nil
	}
	return out.Allowed, nil
}

// ReceiptSink posts evidence receipts to ERIS. Per spec §1, ERIS is an
// external collaborator and receipt delivery is best-effort: a failed POST
// is logged, never surfaced to the caller.
type ReceiptSink struct {
	Client  *http.Client
	BaseURL string
	Logger  *logrus.Logger
}

func (r *ReceiptSink) logger() *logrus.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return logrus.StandardLogger()
}

func (r *ReceiptSink) Record(ctx context.Context, receipt iaf.Receipt) {
	if r.BaseURL == "" {
		return
	}
	body, err := json.Marshal(receipt)
	if err != nil {
		r.logger().WithError(err).Warn("receipt: failed to marshal payload")
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/receipts", bytes.NewReader(body))
	if err != nil {
		r.logger().WithError(err).Warn("receipt: failed to build request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		r.logger().WithError(err).Warn("receipt: delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		r.logger().WithField("status", resp.StatusCode).Warn("receipt: eris rejected receipt")
	}
}

// IdentityResolver expands a logical routing target (group:*, role:*,
// schedule:*) into concrete user ids against the IAM collaborator.
type IdentityResolver struct {
	Client  *http.Client
	BaseURL string
}

type iamExpandResponse struct {
	UserIDs []string `json:"user_ids"`
}

func (r *IdentityResolver) Expand(ctx context.Context, tenantID, logicalTarget string) ([]string, error) {
	if r.BaseURL == "" {
		return []string{logicalTarget}, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/identity/expand?tenant_id=%s&target=%s", r.BaseURL, tenantID, logicalTarget), nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamError, "failed to build iam request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamError, "iam request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Newf(apperrors.ErrorTypeUpstreamError, "iam returned status %d", resp.StatusCode)
	}

	var out iamExpandResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamError, "failed to decode iam response")
	}
	return out.UserIDs, nil
}

// NewHTTPClient builds the shared outbound *http.Client every external
// collaborator stub uses, sized from internal/config.HTTPConfig.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
