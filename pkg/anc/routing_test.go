package anc

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const routingBundle = `
routing:
  defaults:
    P0: [slack, sms]
    P2: [slack]
    targets: ["group:oncall", "user-direct"]
  tenant_overrides:
    t1:
      P0: [voice]

escalation:
  policies:
    - id: escalation-P0
      steps:
        - order: 1
          delay_seconds: 0
          channels: [slack]
    - id: escalation-P2
      steps:
        - order: 1
          delay_seconds: 0
          channels: [slack]
`

var _ = Describe("Core.Route", func() {
	var (
		ctx  context.Context
		core *Core
	)

	BeforeEach(func() {
		ctx = context.Background()
		core = &Core{
			Policies: newPolicyStore(routingBundle),
			Identity: &fakeIdentityResolver{expansions: map[string][]string{
				"group:oncall": {"user-1", "user-2"},
			}},
		}
	})

	It("uses severity defaults when no tenant override exists", func() {
		decision, err := core.Route(ctx, &Alert{TenantID: "t2", Severity: "P2"})
		Expect(err).NotTo(HaveOccurred())
		Expect(decision.Channels).To(Equal([]string{"slack"}))
		Expect(decision.PolicyID).To(Equal("escalation-P2"))
	})

	It("applies a tenant override for matching severity", func() {
		decision, err := core.Route(ctx, &Alert{TenantID: "t1", Severity: "P0"})
		Expect(err).NotTo(HaveOccurred())
		Expect(decision.Channels).To(Equal([]string{"voice"}))
		Expect(decision.PolicyID).To(Equal("escalation-P0"))
	})

	It("expands logical group targets via Identity", func() {
		decision, err := core.Route(ctx, &Alert{TenantID: "t2", Severity: "P2"})
		Expect(err).NotTo(HaveOccurred())
		Expect(decision.Targets).To(ContainElements("user-1", "user-2", "user-direct"))
	})

	It("passes through an unresolved logical target unchanged", func() {
		core.Identity = &fakeIdentityResolver{}
		decision, err := core.Route(ctx, &Alert{TenantID: "t2", Severity: "P2"})
		Expect(err).NotTo(HaveOccurred())
		Expect(decision.Targets).To(ContainElement("group:oncall"))
	})
})
