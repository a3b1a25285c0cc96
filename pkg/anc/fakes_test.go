package anc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/gomega"

	"github.com/evplatform/eventplane/internal/config"
)

// newPolicyStore writes yamlBody to a temp file and loads it through the
// real config.LoadPolicyStore, since PolicyStore's fields are unexported
// and only constructible that way.
func newPolicyStore(yamlBody string) *config.PolicyStore {
	dir, err := os.MkdirTemp("", "anc-policy-test")
	Expect(err).NotTo(HaveOccurred())
	path := filepath.Join(dir, "policy-bundle.yaml")
	Expect(os.WriteFile(path, []byte(yamlBody), 0644)).To(Succeed())
	store, err := config.LoadPolicyStore(path, nil)
	Expect(err).NotTo(HaveOccurred())
	return store
}

type fakeAlertStore struct {
	mu        sync.Mutex
	byID      map[string]*Alert
	dedupKeys map[string]string // tenantID|dedupKey -> alertID
}

func newFakeAlertStore() *fakeAlertStore {
	return &fakeAlertStore{byID: map[string]*Alert{}, dedupKeys: map[string]string{}}
}

func (s *fakeAlertStore) FindOpenByDedupKey(ctx context.Context, tenantID, dedupKey string) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.dedupKeys[tenantID+"|"+dedupKey]
	if !ok {
		return nil, nil
	}
	alert := s.byID[id]
	if alert == nil || alert.Status != "open" {
		return nil, nil
	}
	copyAlert := *alert
	return &copyAlert, nil
}

func (s *fakeAlertStore) Create(ctx context.Context, alert *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyAlert := *alert
	s.byID[alert.AlertID] = &copyAlert
	s.dedupKeys[alert.TenantID+"|"+alert.DedupKey] = alert.AlertID
	return nil
}

func (s *fakeAlertStore) Update(ctx context.Context, alert *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyAlert := *alert
	s.byID[alert.AlertID] = &copyAlert
	return nil
}

func (s *fakeAlertStore) Get(ctx context.Context, tenantID, alertID string) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.byID[alertID]
	if !ok {
		return nil, nil
	}
	copyAlert := *alert
	return &copyAlert, nil
}

type fakeIncidentStore struct {
	mu   sync.Mutex
	byID map[string]*Incident
}

func newFakeIncidentStore() *fakeIncidentStore {
	return &fakeIncidentStore{byID: map[string]*Incident{}}
}

func (s *fakeIncidentStore) FindOpenWithinWindow(ctx context.Context, tenantID string, since time.Time) ([]*Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Incident
	for _, inc := range s.byID {
		if inc.TenantID != tenantID || inc.Status != "open" {
			continue
		}
		if inc.OpenedAt.Before(since) {
			continue
		}
		copyInc := *inc
		out = append(out, &copyInc)
	}
	return out, nil
}

func (s *fakeIncidentStore) Create(ctx context.Context, incident *Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyInc := *incident
	s.byID[incident.IncidentID] = &copyInc
	return nil
}

func (s *fakeIncidentStore) Update(ctx context.Context, incident *Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyInc := *incident
	s.byID[incident.IncidentID] = &copyInc
	return nil
}

func (s *fakeIncidentStore) Get(ctx context.Context, tenantID, incidentID string) (*Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.byID[incidentID]
	if !ok {
		return nil, nil
	}
	copyInc := *inc
	return &copyInc, nil
}

func (s *fakeIncidentStore) AllMembersResolved(ctx context.Context, incidentID string) (bool, error) {
	return true, nil
}

type fakeNotificationStore struct {
	mu      sync.Mutex
	byID    map[string]*Notification
	created []*Notification
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{byID: map[string]*Notification{}}
}

func (s *fakeNotificationStore) Create(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyN := *n
	s.byID[n.NotificationID] = &copyN
	s.created = append(s.created, &copyN)
	return nil
}

func (s *fakeNotificationStore) Update(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyN := *n
	s.byID[n.NotificationID] = &copyN
	return nil
}

func (s *fakeNotificationStore) DuePendingRetries(ctx context.Context, now time.Time) ([]*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Notification
	for _, n := range s.byID {
		if n.Status == "pending" && n.NextAttemptAt != nil && !n.NextAttemptAt.After(now) {
			copyN := *n
			out = append(out, &copyN)
		}
	}
	return out, nil
}

func (s *fakeNotificationStore) CountSentSince(ctx context.Context, targetID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.byID {
		if n.TargetID == targetID && n.Status == "sent" && !n.UpdatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *fakeNotificationStore) CountForAlertSince(ctx context.Context, alertID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.byID {
		if n.AlertID == alertID && !n.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *fakeNotificationStore) LatestForIncidentSince(ctx context.Context, incidentID string, since time.Time) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Notification
	for _, n := range s.byID {
		if n.IncidentID != incidentID || n.CreatedAt.Before(since) {
			continue
		}
		if latest == nil || n.CreatedAt.After(latest.CreatedAt) {
			latest = n
		}
	}
	if latest == nil {
		return nil, nil
	}
	copyN := *latest
	return &copyN, nil
}

type fakeEscalationStore struct {
	mu         sync.Mutex
	steps      map[string]*ScheduledStep
	dispatched map[string]bool
}

func newFakeEscalationStore() *fakeEscalationStore {
	return &fakeEscalationStore{steps: map[string]*ScheduledStep{}, dispatched: map[string]bool{}}
}

func (s *fakeEscalationStore) Schedule(ctx context.Context, step *ScheduledStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyStep := *step
	s.steps[step.StepID] = &copyStep
	return nil
}

func (s *fakeEscalationStore) DueSteps(ctx context.Context, now time.Time) ([]*ScheduledStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ScheduledStep
	for id, step := range s.steps {
		if s.dispatched[id] {
			continue
		}
		if !step.NextAttemptAt.After(now) {
			copyStep := *step
			out = append(out, &copyStep)
		}
	}
	return out, nil
}

func (s *fakeEscalationStore) MarkDispatched(ctx context.Context, stepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatched[stepID] = true
	return nil
}

type fakeIdentityResolver struct {
	expansions map[string][]string
}

func (r *fakeIdentityResolver) Expand(ctx context.Context, tenantID, logicalTarget string) ([]string, error) {
	if r.expansions == nil {
		return nil, nil
	}
	return r.expansions[logicalTarget], nil
}

type fakePreferenceStore struct {
	byUser map[string]*UserPreference
}

func (p *fakePreferenceStore) Get(ctx context.Context, tenantID, userID string) (*UserPreference, error) {
	if p.byUser == nil {
		return nil, nil
	}
	return p.byUser[userID], nil
}

type fakeSender struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSender) Send(ctx context.Context, channel, target string, alert *Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type failingThenOKSender struct {
	mu        sync.Mutex
	failFirst int
	calls     int
}

func (f *failingThenOKSender) Send(ctx context.Context, channel, target string, alert *Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst {
		return fmt.Errorf("channel unavailable")
	}
	return nil
}
