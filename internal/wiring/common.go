package wiring

import "encoding/json"

// decodeStringMap best-effort decodes a JSONB column into a string map,
// treating an empty/invalid column as an empty map rather than an error —
// these columns are auxiliary hints (field mappings, unit conversions),
// never required for correctness.
func decodeStringMap(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
