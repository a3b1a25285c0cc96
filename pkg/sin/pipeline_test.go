package sin

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/evplatform/eventplane/pkg/envelope"
)

type fakeProducerStore struct {
	producers map[string]*envelope.ProducerRegistration
}

func (f *fakeProducerStore) Get(_ context.Context, producerID string) (*envelope.ProducerRegistration, error) {
	p, ok := f.producers[producerID]
	if !ok {
		return nil, errNotFound
	}
	return p, nil
}

type fakeContractStore struct {
	contracts map[string]*envelope.DataContract
}

func (f *fakeContractStore) Get(_ context.Context, signalType, schemaVersion string) (*envelope.DataContract, error) {
	c, ok := f.contracts[signalType+"@"+schemaVersion]
	if !ok {
		return nil, errNotFound
	}
	return c, nil
}

type fakeDedupe struct {
	seen map[string]bool
}

func (f *fakeDedupe) Seen(_ context.Context, tenantID, signalID string) (bool, error) {
	return f.seen[tenantID+":"+signalID], nil
}

func (f *fakeDedupe) MarkProcessed(_ context.Context, tenantID, signalID string) error {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	f.seen[tenantID+":"+signalID] = true
	return nil
}

type fakeRetryCounter struct {
	counts map[string]int
}

func (f *fakeRetryCounter) Increment(_ context.Context, signalID string) (int, error) {
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[signalID]++
	return f.counts[signalID], nil
}

type fakeDLQSink struct {
	entries []DLQEntry
}

func (f *fakeDLQSink) Put(_ context.Context, entry DLQEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeConsumer struct {
	delivered []RoutingClass
	failAll   bool
}

func (f *fakeConsumer) Deliver(_ context.Context, class RoutingClass, _ string, _ *envelope.SignalEnvelope) error {
	if f.failAll {
		return errDownstream
	}
	f.delivered = append(f.delivered, class)
	return nil
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

const errNotFound = simpleError("not found")
const errDownstream = simpleError("downstream failure")

func newTestEnvelope() *envelope.SignalEnvelope {
	return &envelope.SignalEnvelope{
		SignalID:      "s1",
		TenantID:      "t1",
		Environment:   envelope.EnvironmentProd,
		ProducerID:    "p1",
		SignalKind:    envelope.SignalKindEvent,
		SignalType:    "pr_opened",
		OccurredAt:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		IngestedAt:    time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC),
		Payload:       map[string]interface{}{"event_name": "pr_opened", "pr_id": 123},
		SchemaVersion: "1.0.0",
	}
}

func newTestPipeline() (*Pipeline, *fakeConsumer, *fakeDLQSink) {
	producers := &fakeProducerStore{producers: map[string]*envelope.ProducerRegistration{
		"p1": {
			ProducerID:         "p1",
			TenantID:           "t1",
			AllowedSignalKinds: []envelope.SignalKind{envelope.SignalKindEvent},
			AllowedSignalTypes: []string{"pr_opened"},
			ContractVersions:   map[string]string{"pr_opened": "1.0.0"},
		},
	}}
	contracts := &fakeContractStore{contracts: map[string]*envelope.DataContract{
		"pr_opened@1.0.0": {
			SignalType:      "pr_opened",
			ContractVersion: "1.0.0",
			RequiredFields:  []string{"event_name", "pr_id"},
		},
	}}
	consumer := &fakeConsumer{}
	dlq := &fakeDLQSink{}
	p := &Pipeline{
		Producers: producers,
		Contracts: contracts,
		Dedupe:    &fakeDedupe{seen: map[string]bool{}},
		Retries:   &fakeRetryCounter{},
		DLQ:       dlq,
		Consumer:  consumer,
		Rules: []RoutingRule{
			{SignalType: "pr_opened", Classes: []RoutingClass{RoutingRealtimeDetection}},
		},
		RetryThreshold: 5,
	}
	return p, consumer, dlq
}

var _ = Describe("Pipeline.Ingest", func() {
	var (
		ctx context.Context
		p   *Pipeline
	)

	BeforeEach(func() {
		ctx = context.Background()
		p, _, _ = newTestPipeline()
	})

	It("accepts a valid signal and routes it exactly once", func() {
		consumer := &fakeConsumer{}
		p.Consumer = consumer

		results := p.Ingest(ctx, []*envelope.SignalEnvelope{newTestEnvelope()}, "t1")

		Expect(results).To(HaveLen(1))
		Expect(results[0].Status).To(Equal(ResultAccepted))
		Expect(consumer.delivered).To(Equal([]RoutingClass{RoutingRealtimeDetection}))
	})

	It("rejects a duplicate resend within the window with no additional downstream effect", func() {
		consumer := &fakeConsumer{}
		p.Consumer = consumer

		e := newTestEnvelope()
		first := p.Ingest(ctx, []*envelope.SignalEnvelope{e}, "t1")
		Expect(first[0].Status).To(Equal(ResultAccepted))

		second := p.Ingest(ctx, []*envelope.SignalEnvelope{newTestEnvelope()}, "t1")
		Expect(second[0].Status).To(Equal(ResultRejected))
		Expect(second[0].Duplicate).To(BeTrue())
		Expect(consumer.delivered).To(HaveLen(1))
	})

	It("rejects cross-tenant envelopes with TENANT_ISOLATION_VIOLATION", func() {
		e := newTestEnvelope()
		e.TenantID = "t2"

		results := p.Ingest(ctx, []*envelope.SignalEnvelope{e}, "t1")
		Expect(results[0].Status).To(Equal(ResultRejected))
		Expect(results[0].ErrorCode).To(Equal("tenant_isolation_violation"))
	})

	It("DLQs a schema violation after RetryThreshold identical rejections", func() {
		p.RetryThreshold = 5
		dlq := &fakeDLQSink{}
		p.DLQ = dlq

		var last IngestResult
		for i := 0; i < 5; i++ {
			e := newTestEnvelope()
			e.Payload = map[string]interface{}{}
			results := p.Ingest(ctx, []*envelope.SignalEnvelope{e}, "t1")
			last = results[0]
			if i < 4 {
				Expect(last.Status).To(Equal(ResultRejected))
				Expect(last.ErrorCode).To(Equal("schema_violation"))
			}
		}
		Expect(last.Status).To(Equal(ResultDLQ))
		Expect(last.DLQID).NotTo(BeEmpty())
		Expect(dlq.entries).To(HaveLen(1))
		Expect(dlq.entries[0].DLQID).To(Equal(last.DLQID))
	})

	It("attaches an out_of_order warning without rejecting", func() {
		seq := &fakeSequenceChecker{}
		p.Sequence = seq

		e := newTestEnvelope()
		first := int64(5)
		e.SequenceNo = &first
		p.Ingest(ctx, []*envelope.SignalEnvelope{e}, "t1")

		e2 := newTestEnvelope()
		e2.SignalID = "s2"
		earlier := int64(2)
		e2.SequenceNo = &earlier
		results := p.Ingest(ctx, []*envelope.SignalEnvelope{e2}, "t1")

		Expect(results[0].Status).To(Equal(ResultAccepted))
		Expect(results[0].Warnings).To(ContainElement("out_of_order"))
	})

	It("processes envelopes independently so one failure doesn't block peers", func() {
		bad := newTestEnvelope()
		bad.SignalID = "bad"
		bad.TenantID = "wrong-tenant"

		good := newTestEnvelope()
		good.SignalID = "good"

		results := p.Ingest(ctx, []*envelope.SignalEnvelope{bad, good}, "t1")
		Expect(results).To(HaveLen(2))
		Expect(results[0].Status).To(Equal(ResultRejected))
		Expect(results[1].Status).To(Equal(ResultAccepted))
	})

	It("DLQs after fan-out exhausts retries on all routing classes", func() {
		p.Consumer = &fakeConsumer{failAll: true}

		results := p.Ingest(ctx, []*envelope.SignalEnvelope{newTestEnvelope()}, "t1")
		Expect(results[0].Status).To(Equal(ResultDLQ))
		Expect(results[0].ErrorCode).To(Equal("downstream_failure"))
	})
})

type fakeSequenceChecker struct {
	last map[string]int64
}

func (f *fakeSequenceChecker) CheckAndAdvance(_ context.Context, producerID, signalType string, seq int64) (bool, error) {
	if f.last == nil {
		f.last = map[string]int64{}
	}
	key := producerID + ":" + signalType
	last, ok := f.last[key]
	outOfOrder := ok && seq < last
	if !ok || seq > last {
		f.last[key] = seq
	}
	return outOfOrder, nil
}

var _ = Describe("Summarize", func() {
	It("counts each outcome", func() {
		s := Summarize([]IngestResult{
			{Status: ResultAccepted},
			{Status: ResultAccepted},
			{Status: ResultRejected},
			{Status: ResultDLQ},
		})
		Expect(s).To(Equal(Summary{Total: 4, Accepted: 2, Rejected: 1, DLQ: 1}))
	})
})
