package iaf

import (
	"context"
	"net/http"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/envelope"
)

type fakeWebhookStore struct {
	reg *WebhookRegistration
	err error
}

func (f *fakeWebhookStore) GetByRegistrationID(ctx context.Context, registrationID string) (*WebhookRegistration, error) {
	return f.reg, f.err
}

type fakeSecretStore struct{ secret string }

func (f *fakeSecretStore) Resolve(ctx context.Context, ref string) (string, error) {
	return f.secret, nil
}

type fakeConnectionStore struct{ conn *ConnectionInfo }

func (f *fakeConnectionStore) Get(ctx context.Context, connectionID string) (*ConnectionInfo, error) {
	return f.conn, nil
}

type fakeSubmitter struct {
	submitted []*envelope.SignalEnvelope
}

func (f *fakeSubmitter) Submit(ctx context.Context, e *envelope.SignalEnvelope) error {
	f.submitted = append(f.submitted, e)
	return nil
}

type stubAdapter struct {
	webhookEvent WebhookEvent
	webhookErr   error
	verifyErr    error
	actionResult ActionResult
	actionErr    error
	actionCalls  int
}

func (s *stubAdapter) ProcessWebhook(ctx context.Context, payload []byte, headers http.Header) (WebhookEvent, error) {
	return s.webhookEvent, s.webhookErr
}
func (s *stubAdapter) PollEvents(ctx context.Context, cursor string) ([]ProviderEvent, string, error) {
	return nil, cursor, nil
}
func (s *stubAdapter) ExecuteAction(ctx context.Context, action Action) (ActionResult, error) {
	s.actionCalls++
	if s.actionResult.Status == "" && s.actionErr == nil {
		return ActionResult{Status: "succeeded"}, nil
	}
	return s.actionResult, s.actionErr
}
func (s *stubAdapter) VerifyConnection(ctx context.Context) (bool, error) { return true, nil }
func (s *stubAdapter) Capabilities() Capabilities                        { return Capabilities{WebhookSupported: true} }
func (s *stubAdapter) VerifySignature(payload []byte, headers http.Header, secret string) error {
	return s.verifyErr
}

var _ = Describe("WebhookHandlerDeps", func() {
	var (
		mr      *miniredis.Miniredis
		client  *redis.Client
		deps    *WebhookHandlerDeps
		adapter *stubAdapter
		mapper  *SignalMapper
		sub     *fakeSubmitter
		fixedNow time.Time
	)

	BeforeEach(func() {
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})

		fixedNow = time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
		adapter = &stubAdapter{webhookEvent: WebhookEvent{
			EventType: "push",
			Payload:   map[string]interface{}{},
		}}
		mapper = NewSignalMapper(map[string]ProviderTypeMapping{
			"github": {Exact: map[string]CanonicalType{
				"push": {SignalType: "github.push", SignalKind: envelope.SignalKindEvent},
			}},
		})
		sub = &fakeSubmitter{}

		connStore := &fakeConnectionStore{conn: &ConnectionInfo{ConnectionID: "conn-1", TenantID: "tenant-1", ProviderID: "github"}}
		registry := NewRegistry(connStore, &fakeSecretStore{secret: "shh"}, nil)
		registry.instances["conn-1"] = adapter

		deps = &WebhookHandlerDeps{
			Webhooks: &fakeWebhookStore{reg: &WebhookRegistration{
				RegistrationID: "reg-1",
				ConnectionID:   "conn-1",
				SecretRef:      "secret-ref",
				Status:         "active",
			}},
			Secrets:    &fakeSecretStore{secret: "shh"},
			Signatures: NewSignatureCache(client, time.Hour),
			Registry:   registry,
			Mapper:     mapper,
			Submitter:  sub,
			Now:        func() time.Time { return fixedNow },
		}
	})

	AfterEach(func() {
		client.Close()
		mr.Close()
	})

	It("maps and submits a valid webhook", func() {
		headers := http.Header{}
		headers.Set("X-Event-Timestamp", "1785499200") // fixedNow's unix seconds
		err := deps.HandleWebhook(context.Background(), "github", "reg-1", []byte(`{}`), headers)
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.submitted).To(HaveLen(1))
		Expect(sub.submitted[0].SignalType).To(Equal("github.push"))
	})

	It("rejects a registration that is not active", func() {
		deps.Webhooks = &fakeWebhookStore{reg: &WebhookRegistration{RegistrationID: "reg-1", ConnectionID: "conn-1", Status: "revoked"}}
		err := deps.HandleWebhook(context.Background(), "github", "reg-1", []byte(`{}`), http.Header{})
		Expect(err).To(HaveOccurred())
	})

	It("rejects an invalid signature", func() {
		adapter.verifyErr = apperrors.NewInvalidSignature("github")
		err := deps.HandleWebhook(context.Background(), "github", "reg-1", []byte(`{}`), http.Header{})
		Expect(err).To(HaveOccurred())
		Expect(apperrors.IsType(err, apperrors.ErrorTypeInvalidSignature)).To(BeTrue())
	})

	It("rejects an event timestamp outside the tolerance window", func() {
		headers := http.Header{}
		headers.Set("X-Event-Timestamp", "1000000000") // far in the past
		err := deps.HandleWebhook(context.Background(), "github", "reg-1", []byte(`{}`), headers)
		Expect(err).To(HaveOccurred())
		Expect(apperrors.IsType(err, apperrors.ErrorTypeTimestampOutOfRange)).To(BeTrue())
	})

	It("rejects a replayed request", func() {
		headers := http.Header{}
		headers.Set("X-Event-Timestamp", "1785499200")
		headers.Set("X-Hub-Signature-256", "sha256=abc")
		Expect(deps.HandleWebhook(context.Background(), "github", "reg-1", []byte(`{}`), headers)).To(Succeed())

		err := deps.HandleWebhook(context.Background(), "github", "reg-1", []byte(`{}`), headers)
		Expect(err).To(HaveOccurred())
		Expect(apperrors.IsType(err, apperrors.ErrorTypeReplayDetected)).To(BeTrue())
	})
})
