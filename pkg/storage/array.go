package storage

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// pqStringArray maps a Go []string onto a Postgres text[] column without
// pulling in a separate array-type dependency: Postgres' array literal
// format is simple enough to round-trip by hand for the plain string
// elements every column here holds (no embedded commas, braces or quotes).
type pqStringArray []string

func (a pqStringArray) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	escaped := make([]string, len(a))
	for i, s := range a {
		escaped[i] = `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return "{" + strings.Join(escaped, ",") + "}", nil
}

func (a *pqStringArray) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("pqStringArray: unsupported scan type %T", src)
	}

	raw = strings.TrimPrefix(raw, "{")
	raw = strings.TrimSuffix(raw, "}")
	if raw == "" {
		*a = pqStringArray{}
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make(pqStringArray, len(parts))
	for i, p := range parts {
		p = strings.TrimPrefix(p, `"`)
		p = strings.TrimSuffix(p, `"`)
		out[i] = strings.ReplaceAll(p, `\"`, `"`)
	}
	*a = out
	return nil
}
