package anc

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const processBundle = `
routing:
  defaults:
    P0: [slack]
    targets: [oncall]

escalation:
  policies:
    - id: escalation-P0
      steps:
        - order: 1
          delay_seconds: 0
          channels: [slack]
          target_group_id: oncall
        - order: 2
          delay_seconds: 300
          channels: [slack]
          target_group_id: oncall
`

var _ = Describe("Core.ProcessAlert", func() {
	var (
		ctx           context.Context
		core          *Core
		alerts        *fakeAlertStore
		incidents     *fakeIncidentStore
		notifications *fakeNotificationStore
		escalations   *fakeEscalationStore
		sender        *fakeSender
		now           time.Time
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
			Senders:       map[string]Sender{"slack": sender},
			Policies:      newPolicyStore(processBundle),
			Now:           func() time.Time { return now },
		}
	})

	It("dedupes, routes, dispatches and schedules escalation for a new alert", func() {
		req := NewAlertRequest{
			TenantID: "t1", ComponentID: "c1", Severity: "P0",
			Category: "deployment", Summary: "rollout stuck",
		}

		result, err := core.ProcessAlert(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.EventType).To(Equal("alert.created"))
		// one dispatch from routing, one from the escalation policy's immediate step 1
		Expect(sender.calls).To(Equal(2))
		Expect(notifications.created).To(HaveLen(2))
		Expect(escalations.steps).To(HaveLen(1))
	})

	It("skips correlation, routing and escalation on a merge", func() {
		req := NewAlertRequest{
			TenantID: "t1", ComponentID: "c1", Severity: "P0",
			Category: "deployment", Summary: "rollout stuck",
		}
		_, err := core.ProcessAlert(ctx, req)
		Expect(err).NotTo(HaveOccurred())

		sender.calls = 0
		result, err := core.ProcessAlert(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.EventType).To(Equal("alert.updated"))
		Expect(sender.calls).To(Equal(0))
	})
})
