package anc

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const fatigueBundle = `
fatigue:
  rate_limits:
    per_alert:
      max_notifications: 2
      window_minutes: 60
    per_user:
      max_notifications: 3
      window_minutes: 60
  maintenance:
    - component_id: c1
      severity: P1
      start: "2026-07-31T10:00:00Z"
      end: "2026-07-31T14:00:00Z"
  suppression:
    suppress_followup_during_incident: true
    suppress_window_minutes: 30
`

var _ = Describe("Core fatigue controls", func() {
	var (
		ctx            context.Context
		core           *Core
		notifications  *fakeNotificationStore
		now            time.Time
		alert          *Alert
	)

	BeforeEach(func() {
		ctx = context.Background()
		notifications = newFakeNotificationStore()
		now = time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
		core = &Core{
			Notifications: notifications,
			Policies:      newPolicyStore(fatigueBundle),
			Now:           func() time.Time { return now },
		}
		alert = &Alert{AlertID: "a1", TenantID: "t1", ComponentID: "c1", Severity: "P1", IncidentID: "inc-1"}
	})

	Describe("CheckRateLimits", func() {
		It("allows when under both limits", func() {
			decision, err := core.CheckRateLimits(ctx, alert, "user-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeTrue())
		})

		It("blocks once per_alert is exhausted", func() {
			for i := 0; i < 2; i++ {
				Expect(notifications.Create(ctx, &Notification{
					NotificationID: "n" + string(rune('a'+i)), AlertID: "a1", CreatedAt: now,
				})).To(Succeed())
			}
			decision, err := core.CheckRateLimits(ctx, alert, "user-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Reason).To(Equal("rate_limit_per_alert"))
		})
	})

	Describe("InMaintenanceWindow", func() {
		It("matches a window covering the current time, component and severity", func() {
			Expect(core.InMaintenanceWindow(alert, now)).To(BeTrue())
		})

		It("does not match outside the window", func() {
			Expect(core.InMaintenanceWindow(alert, now.Add(3*time.Hour))).To(BeFalse())
		})

		It("does not match a different component", func() {
			other := &Alert{ComponentID: "c9", Severity: "P1"}
			Expect(core.InMaintenanceWindow(other, now)).To(BeFalse())
		})
	})

	Describe("CheckPreference", func() {
		It("allows when no preference store is configured", func() {
			decision, err := core.CheckPreference(ctx, alert, "user-1", "slack", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeTrue())
		})

		It("blocks a disallowed channel", func() {
			core.Preferences = &fakePreferenceStore{byUser: map[string]*UserPreference{
				"user-1": {UserID: "user-1", AllowedChannels: map[string]bool{"email": true}},
			}}
			decision, err := core.CheckPreference(ctx, alert, "user-1", "slack", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeFalse())
		})

		It("blocks within quiet hours spanning midnight", func() {
			core.Preferences = &fakePreferenceStore{byUser: map[string]*UserPreference{
				"user-1": {
					UserID: "user-1", Timezone: "UTC",
					QuietHoursStart: "22:00", QuietHoursEnd: "06:00",
				},
			}}
			midnight := time.Date(2026, 7, 31, 23, 30, 0, 0, time.UTC)
			decision, err := core.CheckPreference(ctx, alert, "user-1", "slack", midnight)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeFalse())
		})

		It("allows outside quiet hours spanning midnight", func() {
			core.Preferences = &fakePreferenceStore{byUser: map[string]*UserPreference{
				"user-1": {
					UserID: "user-1", Timezone: "UTC",
					QuietHoursStart: "22:00", QuietHoursEnd: "06:00",
				},
			}}
			noon := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
			decision, err := core.CheckPreference(ctx, alert, "user-1", "slack", noon)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeTrue())
		})
	})

	Describe("CheckIncidentSuppression", func() {
		It("blocks a follow-up within the suppression window", func() {
			Expect(notifications.Create(ctx, &Notification{
				NotificationID: "n1", IncidentID: "inc-1", CreatedAt: now.Add(-5 * time.Minute),
			})).To(Succeed())

			decision, err := core.CheckIncidentSuppression(ctx, alert, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeFalse())
			Expect(decision.Reason).To(Equal("incident_suppression"))
		})

		It("allows when no prior notification exists for the incident", func() {
			decision, err := core.CheckIncidentSuppression(ctx, alert, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Allowed).To(BeTrue())
		})
	})
})
