package sin

import (
	"strings"
	"time"

	"github.com/evplatform/eventplane/pkg/envelope"
)

// normalize applies contract field_mappings (provider -> canonical rename),
// unit_conversions, and enum casing canonicalization, and stamps
// ingested_at with receipt time if missing (spec §4.1 stage 7).
func normalize(e *envelope.SignalEnvelope, contract *envelope.DataContract, receivedAt time.Time) {
	if e.IngestedAt.IsZero() {
		e.IngestedAt = receivedAt
	}

	for provider, canonical := range contract.FieldMappings {
		if v, ok := e.Payload[provider]; ok {
			delete(e.Payload, provider)
			e.Payload[canonical] = v
		}
	}

	for field, conversion := range contract.UnitConversions {
		v, ok := e.Payload[field]
		if !ok {
			continue
		}
		if converted, ok := applyUnitConversion(v, conversion); ok {
			e.Payload[field] = converted
		}
	}

	canonicalizeEnumCasing(e.Payload)
}

// applyUnitConversion supports the conversions spec §4.1 names as an
// example ("s -> ms"); unrecognized conversion strings are a no-op, leaving
// the raw value untouched rather than guessing.
func applyUnitConversion(v interface{}, conversion string) (interface{}, bool) {
	f, ok := toFloat64(v)
	if !ok {
		return nil, false
	}
	switch conversion {
	case "s->ms":
		return f * 1000, true
	case "ms->s":
		return f / 1000, true
	case "m->s":
		return f * 60, true
	case "s->m":
		return f / 60, true
	default:
		return nil, false
	}
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// canonicalizeEnumCasing lower-cases string values for the well-known enum
// fields the canonical taxonomy cares about, leaving free-text fields
// (e.g. "summary") alone.
func canonicalizeEnumCasing(payload map[string]interface{}) {
	enumFields := []string{"severity", "status", "signal_kind", "category"}
	for _, field := range enumFields {
		if v, ok := payload[field].(string); ok {
			payload[field] = strings.ToLower(v)
		}
	}
}
