package iaf

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/envelope"
)

// ProviderTypeMapping maps one provider's raw event_type strings onto the
// canonical signal_type/signal_kind pair SIN expects, grounded on
// original_source's SignalMapper.PROVIDER_TYPE_MAPPINGS table. exact is
// checked first; prefixes is then matched by strings.HasPrefix, longest
// match wins, mirroring _map_event_type_to_canonical's fallback order.
type ProviderTypeMapping struct {
	Exact    map[string]CanonicalType
	Prefixes map[string]CanonicalType
	Default  CanonicalType
}

// CanonicalType is the (signal_type, signal_kind) pair a provider event
// maps onto.
type CanonicalType struct {
	SignalType string
	SignalKind envelope.SignalKind
}

// SignalMapper converts a provider's raw webhook/poll payload into a
// canonical SignalEnvelope (spec §4.2's "map to canonical SignalEnvelope"
// step), grounded on original_source's
// SignalMapper.map_provider_event_to_signal_envelope.
type SignalMapper struct {
	mappings map[string]ProviderTypeMapping
	now      func() time.Time
}

// NewSignalMapper builds a mapper using mappings as the provider_id ->
// ProviderTypeMapping table.
func NewSignalMapper(mappings map[string]ProviderTypeMapping) *SignalMapper {
	return &SignalMapper{mappings: mappings, now: func() time.Time { return time.Now().UTC() }}
}

func (m *SignalMapper) canonicalType(providerID, rawEventType string) (CanonicalType, error) {
	mapping, ok := m.mappings[providerID]
	if !ok {
		return CanonicalType{}, apperrors.Newf(apperrors.ErrorTypeValidation, "no signal mapping registered for provider %s", providerID)
	}
	if ct, ok := mapping.Exact[rawEventType]; ok {
		return ct, nil
	}

	var best CanonicalType
	bestLen := -1
	for prefix, ct := range mapping.Prefixes {
		if strings.HasPrefix(rawEventType, prefix) && len(prefix) > bestLen {
			best = ct
			bestLen = len(prefix)
		}
	}
	if bestLen >= 0 {
		return best, nil
	}

	if mapping.Default.SignalType != "" {
		return mapping.Default, nil
	}

	// Unmapped event types pass through normalized rather than being
	// dropped, so a provider adding a new event never silently loses data.
	return CanonicalType{SignalType: normalizeEventType(rawEventType), SignalKind: envelope.SignalKindEvent}, nil
}

// normalizeEventType lowercases a raw provider event_type and collapses
// its separators to underscores, e.g. "jira:worklog.updated" ->
// "jira_worklog_updated".
func normalizeEventType(raw string) string {
	lower := strings.ToLower(raw)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, lower)
}

// Map builds a SignalEnvelope from one provider event. The envelope's
// CorrelationID is taken from a provider-native id in the payload (see
// extractCorrelationID, e.g. a GitHub delivery id), so IAF's
// poller/webhook handler threads it through to ANC correlation.
func (m *SignalMapper) Map(providerID, connectionID, tenantID, rawEventType string, payload map[string]interface{}, occurredAt time.Time) (*envelope.SignalEnvelope, error) {
	ct, err := m.canonicalType(providerID, rawEventType)
	if err != nil {
		return nil, err
	}

	env := &envelope.SignalEnvelope{
		SignalID:      uuid.NewString(),
		TenantID:      tenantID,
		Environment:   envelope.EnvironmentProd,
		ProducerID:    connectionID,
		SignalKind:    ct.SignalKind,
		SignalType:    ct.SignalType,
		OccurredAt:    occurredAt,
		IngestedAt:    m.now(),
		Payload:       payload,
		SchemaVersion: "1.0",
		Resource:      extractResource(providerID, payload),
		CorrelationID: extractCorrelationID(providerID, payload),
	}
	return env, nil
}

// extractResource pulls the repository/branch/pr/issue/channel addressing
// fields out of a provider payload, grounded on
// SignalMapper._extract_resource_context's per-provider field paths.
func extractResource(providerID string, payload map[string]interface{}) envelope.Resource {
	var r envelope.Resource
	switch providerID {
	case "github", "gitlab":
		if repo, ok := nestedString(payload, "repository", "full_name"); ok {
			r.Repository = repo
		}
		if pr, ok := payload["pull_request"].(map[string]interface{}); ok {
			if num, ok := pr["number"]; ok {
				r.PRID = fmt.Sprintf("%v", num)
			}
			if ref, ok := nestedString(pr, "head", "ref"); ok {
				r.Branch = ref
			}
		}
	case "jira":
		if issue, ok := payload["issue"].(map[string]interface{}); ok {
			if key, ok := issue["key"].(string); ok {
				r.IssueKey = key
			}
		}
	case "slack":
		if channel, ok := payload["channel"].(string); ok {
			r.ChannelID = channel
		}
	}
	return r
}

// extractCorrelationID pulls a provider-native correlation handle
// (delivery id, webhook event id) used to group related signals before
// ANC's own correlation rules run.
func extractCorrelationID(providerID string, payload map[string]interface{}) string {
	switch providerID {
	case "github":
		if v, ok := payload["delivery_id"].(string); ok {
			return v
		}
	case "jira":
		if v, ok := payload["webhookEvent"].(string); ok {
			return v
		}
	}
	return ""
}

func nestedString(m map[string]interface{}, keys ...string) (string, bool) {
	cur := m
	for i, k := range keys {
		v, ok := cur[k]
		if !ok {
			return "", false
		}
		if i == len(keys)-1 {
			s, ok := v.(string)
			return s, ok
		}
		next, ok := v.(map[string]interface{})
		if !ok {
			return "", false
		}
		cur = next
	}
	return "", false
}
