package anc

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Core lifecycle transitions", func() {
	var (
		ctx       context.Context
		core      *Core
		alerts    *fakeAlertStore
		incidents *fakeIncidentStore
		now       time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		alerts = newFakeAlertStore()
		incidents = newFakeIncidentStore()
		now = time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
		core = &Core{
			Alerts:    alerts,
			Incidents: incidents,
			Stream:    NewBroker(8, time.Hour),
			Now:       func() time.Time { return now },
		}
	})

	It("acknowledges an open alert", func() {
		alert := &Alert{AlertID: "a1", Status: "open"}
		Expect(core.Acknowledge(ctx, alert)).To(Succeed())
		Expect(alert.Status).To(Equal("acknowledged"))
	})

	It("refuses to acknowledge a resolved alert", func() {
		alert := &Alert{AlertID: "a1", Status: "resolved"}
		Expect(core.Acknowledge(ctx, alert)).To(HaveOccurred())
	})

	It("resolves an alert and stamps ended_at", func() {
		alert := &Alert{AlertID: "a1", Status: "open", TenantID: "t1"}
		Expect(core.Resolve(ctx, alert)).To(Succeed())
		Expect(alert.Status).To(Equal("resolved"))
		Expect(alert.EndedAt).NotTo(BeNil())
	})

	It("resolves the bound incident once every member alert is resolved", func() {
		incident := &Incident{IncidentID: "inc-1", TenantID: "t1", Status: "open"}
		Expect(incidents.Create(ctx, incident)).To(Succeed())

		alert := &Alert{AlertID: "a1", Status: "open", TenantID: "t1", IncidentID: "inc-1"}
		Expect(core.Resolve(ctx, alert)).To(Succeed())

		got, err := incidents.Get(ctx, "t1", "inc-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).To(Equal("resolved"))
	})

	It("snoozes an alert until the given duration elapses", func() {
		alert := &Alert{AlertID: "a1", Status: "open"}
		Expect(core.Snooze(ctx, alert, time.Hour)).To(Succeed())
		Expect(alert.Status).To(Equal("snoozed"))
		Expect(*alert.SnoozedUntil).To(Equal(now.Add(time.Hour)))
	})

	It("reopens a snoozed alert once its window elapses", func() {
		alert := &Alert{AlertID: "a1", Status: "open"}
		Expect(core.Snooze(ctx, alert, time.Minute)).To(Succeed())

		now = now.Add(2 * time.Minute)
		Expect(core.TouchSnoozeExpiry(ctx, alert)).To(Succeed())
		Expect(alert.Status).To(Equal("open"))
		Expect(alert.SnoozedUntil).To(BeNil())
	})

	It("leaves a still-snoozed alert untouched", func() {
		alert := &Alert{AlertID: "a1", Status: "open"}
		Expect(core.Snooze(ctx, alert, time.Hour)).To(Succeed())

		Expect(core.TouchSnoozeExpiry(ctx, alert)).To(Succeed())
		Expect(alert.Status).To(Equal("snoozed"))
	})

	It("mitigates an incident without touching member alert status", func() {
		incident := &Incident{IncidentID: "inc-1", TenantID: "t1", Status: "open"}
		Expect(core.Mitigate(ctx, incident)).To(Succeed())
		Expect(incident.Status).To(Equal("mitigated"))
		Expect(incident.MitigatedAt).NotTo(BeNil())
	})
})
