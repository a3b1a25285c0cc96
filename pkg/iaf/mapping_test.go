package iaf

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/evplatform/eventplane/pkg/envelope"
)

var _ = Describe("SignalMapper", func() {
	mapper := NewSignalMapper(map[string]ProviderTypeMapping{
		"github": {
			Exact: map[string]CanonicalType{
				"push": {SignalType: "github.push", SignalKind: envelope.SignalKindEvent},
			},
			Prefixes: map[string]CanonicalType{
				"pull_request": {SignalType: "github.pull_request", SignalKind: envelope.SignalKindEvent},
			},
			Default: CanonicalType{SignalType: "github.unknown", SignalKind: envelope.SignalKindEvent},
		},
	})

	It("maps an exact event_type match", func() {
		env, err := mapper.Map("github", "conn-1", "tenant-1", "push", map[string]interface{}{
			"repository": map[string]interface{}{"full_name": "acme/widgets"},
		}, time.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(env.SignalType).To(Equal("github.push"))
		Expect(env.Resource.Repository).To(Equal("acme/widgets"))
		Expect(env.SignalID).NotTo(BeEmpty())
		Expect(env.ProducerID).To(Equal("conn-1"))
	})

	It("falls back to the longest matching prefix", func() {
		env, err := mapper.Map("github", "conn-1", "tenant-1", "pull_request.opened", map[string]interface{}{
			"pull_request": map[string]interface{}{
				"number": float64(42),
				"head":   map[string]interface{}{"ref": "feature-x"},
			},
		}, time.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(env.SignalType).To(Equal("github.pull_request"))
		Expect(env.Resource.PRID).To(Equal("42"))
		Expect(env.Resource.Branch).To(Equal("feature-x"))
	})

	It("falls back to the provider default when nothing matches", func() {
		env, err := mapper.Map("github", "conn-1", "tenant-1", "star", map[string]interface{}{}, time.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(env.SignalType).To(Equal("github.unknown"))
	})

	It("passes unmapped event types through normalized when no default is set", func() {
		noDefault := NewSignalMapper(map[string]ProviderTypeMapping{
			"jira": {Exact: map[string]CanonicalType{}},
		})
		env, err := noDefault.Map("jira", "conn-1", "tenant-1", "jira:worklog.Updated", map[string]interface{}{}, time.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(env.SignalType).To(Equal("jira_worklog_updated"))
		Expect(env.SignalKind).To(Equal(envelope.SignalKindEvent))
	})

	It("errors for an unregistered provider", func() {
		_, err := mapper.Map("unknown-provider", "conn-1", "tenant-1", "push", map[string]interface{}{}, time.Now())
		Expect(err).To(HaveOccurred())
	})

	It("carries a github delivery id as the correlation id", func() {
		env, err := mapper.Map("github", "conn-1", "tenant-1", "push", map[string]interface{}{
			"delivery_id": "abc-123",
		}, time.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(env.CorrelationID).To(Equal("abc-123"))
	})
})
