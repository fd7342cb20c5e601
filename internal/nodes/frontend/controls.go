package frontend

import (
	"strings"

	"github.com/smazurov/camgraph/internal/node"
)

// Controls arrive decoded from JSON or TOML, so numbers may be any of the
// numeric types those decoders produce.

func controlFloat(r node.Request, key string, def float64) float64 {
	v, ok := r.Control(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint32:
		return float64(n)
	}
	return def
}

func controlBool(r node.Request, key string, def bool) bool {
	if v, ok := r.Control(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func controlString(r node.Request, key string) string {
	if v, ok := r.Control(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// controlStrings accepts a list or a comma separated string.
func controlStrings(r node.Request, key string) []string {
	v, ok := r.Control(key)
	if !ok {
		return nil
	}
	var out []string
	switch s := v.(type) {
	case string:
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	case []string:
		out = append(out, s...)
	case []any:
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
	}
	return out
}
