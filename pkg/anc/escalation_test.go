package anc

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const escalationBundle = `
escalation:
  policies:
    - id: pol-1
      steps:
        - order: 1
          delay_seconds: 0
          channels: [slack]
          target_group_id: "group:team"
        - order: 2
          delay_seconds: 300
          channels: [sms]
          target_group_id: "group:team"
    - id: pol-sticky
      continue_after_ack: true
      steps:
        - order: 1
          delay_seconds: 0
          channels: [slack]
          target_group_id: "group:team"
        - order: 2
          delay_seconds: 300
          channels: [sms]
          target_group_id: "group:team"
`

var _ = Describe("Core escalation", func() {
	var (
		ctx           context.Context
		core          *Core
		alerts        *fakeAlertStore
		incidents     *fakeIncidentStore
		notifications *fakeNotificationStore
		escalations   *fakeEscalationStore
		sender        *fakeSender
		now           time.Time
		alert         *Alert
	)

	BeforeEach(func() {
		ctx = context.Background()
		alerts = newFakeAlertStore()
		incidents = newFakeIncidentStore()
		notifications = newFakeNotificationStore()
		escalations = newFakeEscalationStore()
		sender = &fakeSender{}
		now = time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

		core = &Core{
			Alerts:        alerts,
			Incidents:     incidents,
			Notifications: notifications,
			Escalations:   escalations,
			Senders:       map[string]Sender{"slack": sender, "sms": sender},
			Identity:      &fakeIdentityResolver{expansions: map[string][]string{"group:team": {"user-1"}}},
			Policies:      newPolicyStore(escalationBundle),
			Now:           func() time.Time { return now },
		}

		alert = &Alert{AlertID: "a1", TenantID: "t1", Severity: "P1", Status: "open"}
		Expect(alerts.Create(ctx, alert)).To(Succeed())
	})

	It("executes step 1 immediately and schedules the remaining steps", func() {
		Expect(core.StartEscalation(ctx, alert, "pol-1")).To(Succeed())

		Expect(sender.calls).To(Equal(1), "step 1 dispatches immediately")
		Expect(notifications.created).To(HaveLen(1))
		Expect(notifications.created[0].Channel).To(Equal("slack"))

		due, err := escalations.DueSteps(ctx, now.Add(301*time.Second))
		Expect(err).NotTo(HaveOccurred())
		Expect(due).To(HaveLen(1))
		Expect(due[0].StepOrder).To(Equal(2))
	})

	It("does not surface step 2 before its delay elapses", func() {
		Expect(core.StartEscalation(ctx, alert, "pol-1")).To(Succeed())

		due, err := escalations.DueSteps(ctx, now.Add(time.Minute))
		Expect(err).NotTo(HaveOccurred())
		Expect(due).To(BeEmpty())
	})

	It("aborts a due step once the alert is acknowledged", func() {
		Expect(core.StartEscalation(ctx, alert, "pol-1")).To(Succeed())

		alert.Status = "acknowledged"
		Expect(alerts.Update(ctx, alert)).To(Succeed())

		now = now.Add(301 * time.Second)
		Expect(core.RunEscalationSweep(ctx)).NotTo(HaveOccurred())
		Expect(sender.calls).To(Equal(1), "no new dispatch once acknowledged")
	})

	It("keeps escalating an acknowledged alert when the policy sets continue_after_ack", func() {
		Expect(core.StartEscalation(ctx, alert, "pol-sticky")).To(Succeed())

		alert.Status = "acknowledged"
		Expect(alerts.Update(ctx, alert)).To(Succeed())

		now = now.Add(301 * time.Second)
		Expect(core.RunEscalationSweep(ctx)).NotTo(HaveOccurred())
		Expect(sender.calls).To(Equal(2), "continue_after_ack overrides the ack abort")
		Expect(notifications.created[1].Channel).To(Equal("sms"))
	})

	It("dispatches a due step when the alert is still open", func() {
		Expect(core.StartEscalation(ctx, alert, "pol-1")).To(Succeed())

		now = now.Add(301 * time.Second)
		Expect(core.RunEscalationSweep(ctx)).NotTo(HaveOccurred())
		Expect(sender.calls).To(Equal(2))
		Expect(notifications.created).To(HaveLen(2))
		Expect(notifications.created[1].Channel).To(Equal("sms"))
	})
})
