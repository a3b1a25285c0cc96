package anc

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Broker", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		broker *Broker
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		broker = NewBroker(4, time.Hour)
	})

	AfterEach(func() {
		cancel()
	})

	It("delivers an event matching the subscriber's filter", func() {
		events, unsubscribe := broker.Subscribe(ctx, StreamFilter{Severities: []string{"P0"}})
		defer unsubscribe()

		broker.Publish(StreamEvent{Type: "alert.created", Severity: "P0", AlertID: "a1"})

		Eventually(events, time.Second).Should(Receive(WithTransform(func(e StreamEvent) string { return e.AlertID }, Equal("a1"))))
	})

	It("does not deliver events outside the filter", func() {
		events, unsubscribe := broker.Subscribe(ctx, StreamFilter{Severities: []string{"P0"}})
		defer unsubscribe()

		broker.Publish(StreamEvent{Type: "alert.created", Severity: "P3", AlertID: "a2"})

		Consistently(events, 100*time.Millisecond).ShouldNot(Receive())
	})

	It("drops the oldest event instead of blocking a full queue", func() {
		broker = NewBroker(1, time.Hour)
		events, unsubscribe := broker.Subscribe(ctx, StreamFilter{})
		defer unsubscribe()

		broker.Publish(StreamEvent{Type: "alert.created", AlertID: "first"})
		broker.Publish(StreamEvent{Type: "alert.created", AlertID: "second"})

		Eventually(events, time.Second).Should(Receive(WithTransform(func(e StreamEvent) string { return e.AlertID }, Equal("second"))))
	})

	It("stops delivering events after unsubscribe", func() {
		events, unsubscribe := broker.Subscribe(ctx, StreamFilter{})
		unsubscribe()

		broker.Publish(StreamEvent{Type: "alert.created", AlertID: "late"})
		Consistently(events, 100*time.Millisecond).ShouldNot(Receive())
	})
})
