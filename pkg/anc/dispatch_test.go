package anc

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const dispatchBundle = `
retry:
  defaults:
    max_attempts: 2
    backoff_intervals: [60]

fallback:
  defaults: [sms]
`

var _ = Describe("Core.Dispatch", func() {
	var (
		ctx           context.Context
		core          *Core
		notifications *fakeNotificationStore
		now           time.Time
		alert         *Alert
	)

	BeforeEach(func() {
		ctx = context.Background()
		notifications = newFakeNotificationStore()
		now = time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
		core = &Core{
			Notifications: notifications,
			Policies:      newPolicyStore(dispatchBundle),
			Now:           func() time.Time { return now },
		}
		alert = &Alert{AlertID: "a1", TenantID: "t1", Severity: "P1"}
	})

	It("marks a notification sent on the first successful attempt", func() {
		sender := &fakeSender{}
		core.Senders = map[string]Sender{"slack": sender}
		n := &Notification{NotificationID: "n1", AlertID: "a1", Channel: "slack", Status: "pending"}

		Expect(core.Dispatch(ctx, alert, n)).To(Succeed())
		Expect(n.Status).To(Equal("sent"))
		Expect(sender.calls).To(Equal(1))
	})

	It("schedules a retry when under max_attempts", func() {
		sender := &fakeSender{err: context.DeadlineExceeded}
		core.Senders = map[string]Sender{"slack": sender}
		n := &Notification{NotificationID: "n1", AlertID: "a1", Channel: "slack", Status: "pending"}

		Expect(core.Dispatch(ctx, alert, n)).To(Succeed())
		Expect(n.Status).To(Equal("pending"))
		Expect(n.NextAttemptAt).NotTo(BeNil())
		Expect(n.Attempts).To(Equal(1))
	})

	It("creates a fallback notification once retries are exhausted", func() {
		sender := &fakeSender{err: context.DeadlineExceeded}
		fallbackSender := &fakeSender{}
		core.Senders = map[string]Sender{"slack": sender, "sms": fallbackSender}
		n := &Notification{NotificationID: "n1", AlertID: "a1", Channel: "slack", Status: "pending", Attempts: 1}

		Expect(core.Dispatch(ctx, alert, n)).To(Succeed())
		Expect(n.Status).To(Equal("failed"))
		Expect(n.FailureReason).To(Equal("exhausted_retries_fallback_created"))
		Expect(fallbackSender.calls).To(Equal(1))
		Expect(notifications.created).To(HaveLen(1))
		Expect(notifications.created[0].Channel).To(Equal("sms"))
		Expect(notifications.byID[notifications.created[0].NotificationID].Status).To(Equal("sent"))
	})

	It("fails outright with no fallback configured", func() {
		core.Policies = newPolicyStore(`
retry:
  defaults:
    max_attempts: 1
`)
		sender := &fakeSender{err: context.DeadlineExceeded}
		core.Senders = map[string]Sender{"slack": sender}
		n := &Notification{NotificationID: "n1", AlertID: "a1", Channel: "slack", Status: "pending"}

		Expect(core.Dispatch(ctx, alert, n)).To(Succeed())
		Expect(n.Status).To(Equal("failed"))
		Expect(n.FailureReason).To(Equal("exhausted_retries_no_fallback"))
	})

	It("cancels the notification during a maintenance window instead of sending", func() {
		core.Policies = newPolicyStore(`
fatigue:
  maintenance:
    - start: "2026-07-31T00:00:00Z"
      end: "2026-07-31T23:59:59Z"
retry:
  defaults:
    max_attempts: 2
`)
		sender := &fakeSender{}
		core.Senders = map[string]Sender{"slack": sender}
		n := &Notification{NotificationID: "n1", AlertID: "a1", Channel: "slack", Status: "pending"}

		Expect(core.Dispatch(ctx, alert, n)).To(Succeed())
		Expect(n.Status).To(Equal("cancelled"))
		Expect(sender.calls).To(Equal(0))
	})
})
