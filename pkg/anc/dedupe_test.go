package anc

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const dedupBundle = `
dedup:
  defaults: 10
  by_category:
    deployment: 30
`

var _ = Describe("Core.Ingest", func() {
	var (
		ctx   context.Context
		core  *Core
		alert *fakeAlertStore
		now   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		alert = newFakeAlertStore()
		now = time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
		core = &Core{
			Alerts:   alert,
			Policies: newPolicyStore(dedupBundle),
			Now:      func() time.Time { return now },
		}
	})

	It("creates a new alert when no open one shares its dedup key", func() {
		result, err := core.Ingest(ctx, NewAlertRequest{
			TenantID: "t1", ComponentID: "c1", Category: "deployment",
			Severity: "P2", Summary: "deploy failed",
		}, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.EventType).To(Equal("alert.created"))
		Expect(result.Alert.Status).To(Equal("open"))
	})

	It("merges into the existing open alert within the dedup window", func() {
		req := NewAlertRequest{
			TenantID: "t1", ComponentID: "c1", Category: "deployment",
			Severity: "P2", Summary: "deploy failed: rollout of checkout-service stalled at 3 of 10 pods",
		}
		first, err := core.Ingest(ctx, req, now)
		Expect(err).NotTo(HaveOccurred())

		later := now.Add(5 * time.Minute)
		// Same first 64 bytes, so the computed dedup key is unchanged.
		req.Summary = req.Summary + " (attempt 2)"
		req.Severity = "P1"
		second, err := core.Ingest(ctx, req, later)
		Expect(err).NotTo(HaveOccurred())

		Expect(second.EventType).To(Equal("alert.updated"))
		Expect(second.Alert.AlertID).To(Equal(first.Alert.AlertID))
		Expect(second.Alert.Severity).To(Equal("P1"), "severity should upgrade")
		Expect(second.Alert.LastSeenAt).To(Equal(later))
	})

	It("never downgrades severity on merge", func() {
		req := NewAlertRequest{
			TenantID: "t1", ComponentID: "c1", Category: "deployment",
			Severity: "P0", Summary: "deploy failed",
		}
		_, err := core.Ingest(ctx, req, now)
		Expect(err).NotTo(HaveOccurred())

		req.Severity = "P3"
		second, err := core.Ingest(ctx, req, now.Add(time.Minute))
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Alert.Severity).To(Equal("P0"))
	})

	It("creates a distinct alert once the dedup window has elapsed", func() {
		req := NewAlertRequest{
			TenantID: "t1", ComponentID: "c1", Category: "deployment",
			Severity: "P2", Summary: "deploy failed",
		}
		first, err := core.Ingest(ctx, req, now)
		Expect(err).NotTo(HaveOccurred())

		first.Alert.LastSeenAt = now
		Expect(alert.Update(ctx, first.Alert)).To(Succeed())

		muchLater := now.Add(time.Hour)
		second, err := core.Ingest(ctx, req, muchLater)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.EventType).To(Equal("alert.created"))
		Expect(second.Alert.AlertID).NotTo(Equal(first.Alert.AlertID))
	})

	It("honors a caller-supplied dedup_key over the computed hash", func() {
		req := NewAlertRequest{
			TenantID: "t1", ComponentID: "c1", Category: "deployment",
			Severity: "P2", Summary: "unrelated summary", DedupKey: "custom-key",
		}
		result, err := core.Ingest(ctx, req, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Alert.DedupKey).To(Equal("custom-key"))
	})
})
