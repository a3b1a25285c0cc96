package sin

import (
	"context"

	"github.com/evplatform/eventplane/pkg/envelope"
	"github.com/evplatform/eventplane/pkg/metrics"
)

// classify evaluates rules against e and returns the union of matching
// routing classes (spec §4.1 stage 8). A signal may belong to several.
func classify(rules []RoutingRule, e *envelope.SignalEnvelope) []RoutingClass {
	seen := map[RoutingClass]bool{}
	var classes []RoutingClass
	for _, rule := range rules {
		if !rule.matches(e) {
			continue
		}
		for _, c := range rule.Classes {
			if !seen[c] {
				seen[c] = true
				classes = append(classes, c)
			}
		}
	}
	return classes
}

// fanOut delivers e to consumer for every matching class/tenant pair,
// retrying per-class up to maxAttempts before reporting that class as
// failed (spec §4.1 stage 9). Returns the classes that exhausted retries.
func fanOut(ctx context.Context, consumer Consumer, classes []RoutingClass, tenantID string, e *envelope.SignalEnvelope, maxAttempts int) (failedClasses []RoutingClass) {
	for _, class := range classes {
		succeeded := false
		for attempt := 0; attempt < maxAttempts; attempt++ {
			if err := consumer.Deliver(ctx, class, tenantID, e); err == nil {
				succeeded = true
				break
			}
		}
		if !succeeded {
			failedClasses = append(failedClasses, class)
			metrics.RecordActionError(string(class), "downstream_failure")
		}
	}
	return failedClasses
}
