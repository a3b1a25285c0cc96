package wiring

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/iaf"
	"github.com/evplatform/eventplane/pkg/storage"
)

// ConnectionStore adapts storage.ConnectionRepo to iaf.ConnectionStore.
type ConnectionStore struct {
	Repo *storage.ConnectionRepo
}

func (s *ConnectionStore) Get(ctx context.Context, connectionID string) (*iaf.ConnectionInfo, error) {
	row, err := s.Repo.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return &iaf.ConnectionInfo{
		ConnectionID: row.ConnectionID,
		TenantID:     row.TenantID,
		ProviderID:   row.ProviderID,
		AuthRef:      row.AuthRef,
		Status:       row.Status,
	}, nil
}

// CursorStore adapts storage.ConnectionRepo's polling cursor methods to
// iaf.CursorStore.
type CursorStore struct {
	Repo *storage.ConnectionRepo
	Now  func() time.Time
}

func (s *CursorStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *CursorStore) GetCursor(ctx context.Context, connectionID string) (string, error) {
	c, err := s.Repo.GetPollingCursor(ctx, connectionID)
	if err != nil {
		return "", err
	}
	return c.CursorPosition, nil
}

func (s *CursorStore) SaveCursor(ctx context.Context, connectionID, cursor string) error {
	return s.Repo.SavePollingCursor(ctx, connectionID, cursor, s.now())
}

// ActiveConnectionLister adapts storage.ConnectionRepo.ListPollable to
// iaf.ActiveConnectionLister.
type ActiveConnectionLister struct {
	Repo *storage.ConnectionRepo
}

func (s *ActiveConnectionLister) ListPollable(ctx context.Context) ([]iaf.PollableConnection, error) {
	rows, err := s.Repo.ListPollable(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]iaf.PollableConnection, 0, len(rows))
	for _, r := range rows {
		out = append(out, iaf.PollableConnection{
			ConnectionID: r.ConnectionID,
			TenantID:     r.TenantID,
			ProviderID:   r.ProviderID,
			PollInterval: time.Duration(r.PollIntervalSeconds) * time.Second,
			LastPolledAt: r.LastPolledAt,
		})
	}
	return out, nil
}

// WebhookStore adapts storage.ConnectionRepo's webhook registration lookup
// to iaf.WebhookStore.
type WebhookStore struct {
	Repo *storage.ConnectionRepo
}

func (s *WebhookStore) GetByRegistrationID(ctx context.Context, registrationID string) (*iaf.WebhookRegistration, error) {
	row, err := s.Repo.GetWebhookRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	return &iaf.WebhookRegistration{
		RegistrationID:   row.RegistrationID,
		ConnectionID:     row.ConnectionID,
		SecretRef:        row.SecretRef,
		EventsSubscribed: []string(row.EventsSubscribed),
		Status:           row.Status,
	}, nil
}

// ActionStore adapts storage.ActionRepo to iaf.ActionStore.
type ActionStore struct {
	Repo *storage.ActionRepo
}

func (s *ActionStore) FindByIdempotencyKey(ctx context.Context, tenantID, idempotencyKey string) (*iaf.StoredAction, error) {
	row, err := s.Repo.FindByIdempotencyKey(ctx, tenantID, idempotencyKey)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toStoredAction(row), nil
}

func (s *ActionStore) Create(ctx context.Context, action iaf.Action) (*iaf.StoredAction, error) {
	target, _ := json.Marshal(action.Target)
	payload, _ := json.Marshal(action.Payload)
	row := &storage.NormalisedAction{
		ActionID:       firstNonEmpty(action.ActionID, uuid.NewString()),
		TenantID:       action.TenantID,
		ConnectionID:   action.ConnectionID,
		CanonicalType:  action.CanonicalType,
		Target:         target,
		Payload:        payload,
		IdempotencyKey: action.IdempotencyKey,
		CorrelationID:  action.CorrelationID,
	}
	if err := s.Repo.Create(ctx, row); err != nil {
		return nil, err
	}
	return &iaf.StoredAction{ActionID: row.ActionID, IdempotencyKey: row.IdempotencyKey, Status: "pending"}, nil
}

func (s *ActionStore) MarkProcessing(ctx context.Context, actionID string) error {
	return s.Repo.MarkProcessing(ctx, actionID)
}

func (s *ActionStore) Complete(ctx context.Context, actionID string, result iaf.ActionResult) error {
	raw, _ := json.Marshal(result.Result)
	status := result.Status
	if status == "completed" {
		status = "succeeded"
	}
	return s.Repo.Complete(ctx, actionID, status, raw)
}

func toStoredAction(row *storage.NormalisedAction) *iaf.StoredAction {
	var result map[string]interface{}
	if len(row.Result) > 0 {
		_ = json.Unmarshal(row.Result, &result)
	}
	return &iaf.StoredAction{
		ActionID:       row.ActionID,
		IdempotencyKey: row.IdempotencyKey,
		Status:         row.Status,
		Result:         result,
	}
}

func firstNonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
