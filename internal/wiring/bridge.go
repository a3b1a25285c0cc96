package wiring

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evplatform/eventplane/pkg/anc"
	"github.com/evplatform/eventplane/pkg/envelope"
	"github.com/evplatform/eventplane/pkg/iaf"
	"github.com/evplatform/eventplane/pkg/sin"
	"github.com/evplatform/eventplane/pkg/storage"
)

// AlertingConsumer implements sin.Consumer, fanning a signal out to its
// routing class destination: realtime_detection feeds ANC's alert intake
// pipeline directly (spec §4.1 stage 8's "fan-out to realtime detection");
// analytics_store/evidence_store are archived for later query.
type AlertingConsumer struct {
	Core    *anc.Core
	Archive *storage.SignalArchiveRepo
	Logger  *logrus.Logger
}

func (c *AlertingConsumer) logger() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

func (c *AlertingConsumer) Deliver(ctx context.Context, class sin.RoutingClass, tenantID string, e *envelope.SignalEnvelope) error {
	switch class {
	case sin.RoutingRealtimeDetection:
		return c.deliverAlert(ctx, tenantID, e)
	case sin.RoutingAnalyticsStore, sin.RoutingEvidenceStore:
		return c.archive(ctx, string(class), tenantID, e)
	default:
		c.logger().WithField("routing_class", class).Warn("delivery: unknown routing class, dropping")
		return nil
	}
}

func (c *AlertingConsumer) deliverAlert(ctx context.Context, tenantID string, e *envelope.SignalEnvelope) error {
	if c.Core == nil {
		return nil
	}
	req := alertRequestFromSignal(tenantID, e)
	_, err := c.Core.ProcessAlert(ctx, req)
	return err
}

func (c *AlertingConsumer) archive(ctx context.Context, class, tenantID string, e *envelope.SignalEnvelope) error {
	if c.Archive == nil {
		return nil
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	return c.Archive.Insert(ctx, &storage.SignalArchiveRow{
		SignalID:     e.SignalID,
		TenantID:     tenantID,
		Dt:           e.OccurredAt.Truncate(24 * time.Hour),
		RoutingClass: class,
		SignalType:   e.SignalType,
		ProducerID:   e.ProducerID,
		OccurredAt:   e.OccurredAt,
		Payload:      payload,
	})
}

// alertRequestFromSignal maps a canonical SignalEnvelope onto ANC's
// NewAlertRequest, reading the severity/category/component_id/summary
// fields a detection-producing signal is expected to carry in its payload
// (mirrors pkg/iaf/mapping.go's per-field payload extraction idiom).
func alertRequestFromSignal(tenantID string, e *envelope.SignalEnvelope) anc.NewAlertRequest {
	labels := map[string]string{}
	for k, v := range e.Payload {
		if s, ok := v.(string); ok {
			labels[k] = s
		}
	}

	return anc.NewAlertRequest{
		TenantID:     tenantID,
		SourceModule: "sin",
		Plane:        stringField(e.Payload, "plane", "default"),
		ComponentID:  stringField(e.Payload, "component_id", resourceComponent(e)),
		Severity:     stringField(e.Payload, "severity", "P3"),
		Category:     stringField(e.Payload, "category", e.SignalType),
		Summary:      stringField(e.Payload, "summary", fmt.Sprintf("%s signal from %s", e.SignalType, e.ProducerID)),
		Labels:       labels,
		DedupKey:     e.CorrelationID,
	}
}

func stringField(payload map[string]interface{}, key, fallback string) string {
	if v, ok := payload[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func resourceComponent(e *envelope.SignalEnvelope) string {
	switch {
	case e.Resource.ServiceName != "":
		return e.Resource.ServiceName
	case e.Resource.Repository != "":
		return e.Resource.Repository
	default:
		return e.ProducerID
	}
}

// SignalSubmitter adapts a sin.Pipeline to iaf.SignalSubmitter, the single
// point every IAF webhook/poll path hands a mapped envelope to SIN's
// ingest pipeline through.
type SignalSubmitter struct {
	Pipeline *sin.Pipeline
}

func (s *SignalSubmitter) Submit(ctx context.Context, e *envelope.SignalEnvelope) error {
	results := s.Pipeline.Ingest(ctx, []*envelope.SignalEnvelope{e}, e.TenantID)
	if len(results) == 0 {
		return nil
	}
	result := results[0]
	if result.Status == sin.ResultRejected && !result.Duplicate {
		return fmt.Errorf("signal %s rejected: %s", result.SignalID, result.Message)
	}
	return nil
}

var _ iaf.SignalSubmitter = (*SignalSubmitter)(nil)
