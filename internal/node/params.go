package node

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smazurov/camgraph/internal/negotiation"
)

// Params are the static per-node parameters from the topology file. Values
// arrive as decoded TOML: int64, float64, bool, string, []any.
type Params map[string]any

// Int returns key as an int, or def when missing or not a number.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// Uint32 returns key as a uint32, or def.
func (p Params) Uint32(key string, def uint32) uint32 {
	n := p.Int(key, -1)
	if n < 0 {
		return def
	}
	return uint32(n)
}

// Bool returns key as a bool, or def.
func (p Params) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

// String returns key as a string, or def.
func (p Params) String(key, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

// Dimension returns key as a resolution. Accepted forms are "WxH" and a
// two-element array.
func (p Params) Dimension(key string, def negotiation.Dimension) (negotiation.Dimension, error) {
	raw, ok := p[key]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case string:
		w, h, found := strings.Cut(strings.ToLower(v), "x")
		if !found {
			return def, fmt.Errorf("param %s: %q is not WxH", key, v)
		}
		wn, err := strconv.ParseUint(strings.TrimSpace(w), 10, 32)
		if err != nil {
			return def, fmt.Errorf("param %s: %w", key, err)
		}
		hn, err := strconv.ParseUint(strings.TrimSpace(h), 10, 32)
		if err != nil {
			return def, fmt.Errorf("param %s: %w", key, err)
		}
		return negotiation.Dimension{Width: uint32(wn), Height: uint32(hn)}, nil
	case []any:
		if len(v) != 2 {
			return def, fmt.Errorf("param %s: want [width, height]", key)
		}
		wn, werr := toUint32(v[0])
		hn, herr := toUint32(v[1])
		if werr != nil || herr != nil {
			return def, fmt.Errorf("param %s: want [width, height]", key)
		}
		return negotiation.Dimension{Width: wn, Height: hn}, nil
	}
	return def, fmt.Errorf("param %s: unsupported type %T", key, raw)
}

func toUint32(v any) (uint32, error) {
	switch n := v.(type) {
	case int64:
		if n >= 0 {
			return uint32(n), nil
		}
	case int:
		if n >= 0 {
			return uint32(n), nil
		}
	case float64:
		if n >= 0 {
			return uint32(n), nil
		}
	}
	return 0, fmt.Errorf("not a non-negative number: %v", v)
}
