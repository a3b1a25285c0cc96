package iaf

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/evplatform/eventplane/internal/config"
)

type fakeActionStore struct {
	byKey   map[string]*StoredAction
	created []Action
}

func newFakeActionStore() *fakeActionStore {
	return &fakeActionStore{byKey: map[string]*StoredAction{}}
}

func (f *fakeActionStore) FindByIdempotencyKey(ctx context.Context, tenantID, idempotencyKey string) (*StoredAction, error) {
	return f.byKey[tenantID+":"+idempotencyKey], nil
}

func (f *fakeActionStore) Create(ctx context.Context, action Action) (*StoredAction, error) {
	f.created = append(f.created, action)
	stored := &StoredAction{ActionID: action.ActionID, IdempotencyKey: action.IdempotencyKey, Status: "pending"}
	return stored, nil
}

func (f *fakeActionStore) MarkProcessing(ctx context.Context, actionID string) error { return nil }

func (f *fakeActionStore) Complete(ctx context.Context, actionID string, result ActionResult) error {
	return nil
}

type fakeBudgetChecker struct{ allowed bool }

func (f *fakeBudgetChecker) Allow(ctx context.Context, connectionID string) (bool, error) {
	return f.allowed, nil
}

var _ = Describe("ActionExecutor", func() {
	var (
		executor *ActionExecutor
		adapter  *stubAdapter
		store    *fakeActionStore
	)

	BeforeEach(func() {
		adapter = &stubAdapter{}
		connStore := &fakeConnectionStore{conn: &ConnectionInfo{ConnectionID: "conn-1", TenantID: "tenant-1", ProviderID: "github"}}
		registry := NewRegistry(connStore, &fakeSecretStore{secret: "shh"}, nil)
		registry.instances["conn-1"] = adapter

		store = newFakeActionStore()
		executor = &ActionExecutor{
			Registry: registry,
			Breakers: NewManager(config.CircuitBreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, Timeout: time.Second}),
			Budget:   &fakeBudgetChecker{allowed: true},
			Actions:  store,
		}
	})

	It("executes a new action and marks it complete", func() {
		result, err := executor.Execute(context.Background(), Action{
			ActionID: "act-1", ConnectionID: "conn-1", IdempotencyKey: "idem-1", CanonicalType: "create_issue_comment",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Status).NotTo(BeEmpty())
	})

	It("short-circuits a repeated idempotency key without re-invoking the adapter", func() {
		store.byKey["tenant-1:idem-1"] = &StoredAction{ActionID: "act-1", Status: "succeeded", Result: map[string]interface{}{"ok": true}}
		result, err := executor.Execute(context.Background(), Action{
			ActionID: "act-2", TenantID: "tenant-1", ConnectionID: "conn-1", IdempotencyKey: "idem-1", CanonicalType: "create_issue_comment",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.ActionID).To(Equal("act-1"))
		Expect(len(store.created)).To(Equal(0))
	})

	It("refuses to execute when the budget is exhausted", func() {
		executor.Budget = &fakeBudgetChecker{allowed: false}
		_, err := executor.Execute(context.Background(), Action{
			ActionID: "act-3", ConnectionID: "conn-1", IdempotencyKey: "idem-2", CanonicalType: "create_issue_comment",
		})
		Expect(err).To(HaveOccurred())
	})
})
