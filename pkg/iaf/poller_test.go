package iaf

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/evplatform/eventplane/internal/config"
)

type fakeConnectionLister struct {
	conns []PollableConnection
}

func (f *fakeConnectionLister) ListPollable(ctx context.Context) ([]PollableConnection, error) {
	return f.conns, nil
}

type fakeCursorStore struct {
	cursors map[string]string
}

func newFakeCursorStore() *fakeCursorStore {
	return &fakeCursorStore{cursors: map[string]string{}}
}

func (f *fakeCursorStore) GetCursor(ctx context.Context, connectionID string) (string, error) {
	return f.cursors[connectionID], nil
}

func (f *fakeCursorStore) SaveCursor(ctx context.Context, connectionID, cursor string) error {
	f.cursors[connectionID] = cursor
	return nil
}

type pollAdapter struct {
	events     []ProviderEvent
	nextCursor string
	err        error
}

func (a *pollAdapter) ProcessWebhook(ctx context.Context, payload []byte, headers http.Header) (WebhookEvent, error) {
	return WebhookEvent{}, nil
}
func (a *pollAdapter) PollEvents(ctx context.Context, cursor string) ([]ProviderEvent, string, error) {
	return a.events, a.nextCursor, a.err
}
func (a *pollAdapter) ExecuteAction(ctx context.Context, action Action) (ActionResult, error) {
	return ActionResult{}, nil
}
func (a *pollAdapter) VerifyConnection(ctx context.Context) (bool, error) { return true, nil }
func (a *pollAdapter) Capabilities() Capabilities                        { return Capabilities{PollingSupported: true} }

var _ = Describe("Poller", func() {
	var (
		poller  *Poller
		cursors *fakeCursorStore
		sub     *fakeSubmitter
		adapter *pollAdapter
	)

	BeforeEach(func() {
		adapter = &pollAdapter{
			events: []ProviderEvent{
				{ID: "evt-1", EventType: "issue_updated", OccurredAt: time.Now(), Payload: map[string]interface{}{"issue": map[string]interface{}{"key": "JIRA-1"}}},
			},
			nextCursor: "cursor-2",
		}
		connStore := &fakeConnectionStore{conn: &ConnectionInfo{ConnectionID: "conn-1", TenantID: "tenant-1", ProviderID: "jira"}}
		registry := NewRegistry(connStore, &fakeSecretStore{secret: "shh"}, nil)
		registry.instances["conn-1"] = adapter

		cursors = newFakeCursorStore()
		sub = &fakeSubmitter{}

		poller = &Poller{
			Connections: &fakeConnectionLister{conns: []PollableConnection{
				{ConnectionID: "conn-1", TenantID: "tenant-1", ProviderID: "jira", PollInterval: time.Millisecond},
			}},
			Cursors:   cursors,
			Budget:    &fakeBudgetChecker{allowed: true},
			Registry:  registry,
			Breakers:  NewManager(config.CircuitBreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, Timeout: time.Second}),
			Mapper: NewSignalMapper(map[string]ProviderTypeMapping{
				"jira": {Exact: map[string]CanonicalType{"issue_updated": {SignalType: "jira.issue_updated"}}},
			}),
			Submitter: sub,
		}
	})

	It("polls due connections, submits mapped events and advances the cursor", func() {
		Expect(poller.Tick(context.Background())).To(Succeed())
		Expect(sub.submitted).To(HaveLen(1))
		Expect(sub.submitted[0].SignalType).To(Equal("jira.issue_updated"))
		Expect(cursors.cursors["conn-1"]).To(Equal("cursor-2"))
	})

	It("skips a connection whose poll interval has not elapsed", func() {
		poller.Connections = &fakeConnectionLister{conns: []PollableConnection{
			{ConnectionID: "conn-1", TenantID: "tenant-1", ProviderID: "jira", PollInterval: time.Hour, LastPolledAt: time.Now()},
		}}
		Expect(poller.Tick(context.Background())).To(Succeed())
		Expect(sub.submitted).To(BeEmpty())
	})

	It("skips a connection when the budget is exhausted", func() {
		poller.Budget = &fakeBudgetChecker{allowed: false}
		Expect(poller.Tick(context.Background())).To(Succeed())
		Expect(sub.submitted).To(BeEmpty())
	})
})
