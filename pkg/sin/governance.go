package sin

import "github.com/evplatform/eventplane/pkg/envelope"

// applyGovernance enforces spec §4.1 stage 4: reject if a disallowed field
// is present, redact (with a warning) if a PII/secrets-flagged field is
// present. disallowedFields is the tenant's configured deny-list.
func applyGovernance(e *envelope.SignalEnvelope, contract *envelope.DataContract, disallowedFields []string) (violatingField string, warnings []string) {
	for _, field := range disallowedFields {
		if _, present := e.Payload[field]; present {
			return field, nil
		}
	}

	for _, field := range contract.PIIFlags {
		if _, present := e.Payload[field]; present {
			e.Payload[field] = "[REDACTED:pii]"
			warnings = append(warnings, "redacted pii field: "+field)
		}
	}
	for _, field := range contract.SecretsFlags {
		if _, present := e.Payload[field]; present {
			e.Payload[field] = "[REDACTED:secret]"
			warnings = append(warnings, "redacted secret field: "+field)
		}
	}
	return "", warnings
}
