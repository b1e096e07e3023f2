package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeKey converts a natural-key value to a canonical string form,
// suitable for in-memory lookup maps (e.g. "Colombia" or "217").
//
// Backends must not assume a particular underlying type for keys; this helper
// keeps lookup caches consistent across backends. Floats get the shortest
// round-trippable encoding so a driver returning float64 matches the value
// the loader inserted.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case []byte:
		return strings.TrimSpace(string(t))
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// compositeSep joins composite key parts. A unit separator cannot occur in
// source text, so joined keys never collide.
const compositeSep = "\x1f"

// CompositeKey encodes a multi-column natural key as one cache key, in the
// dimension's declared key-column order.
func CompositeKey(vals ...any) string {
	if len(vals) == 1 {
		return NormalizeKey(vals[0])
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = NormalizeKey(v)
	}
	return strings.Join(parts, compositeSep)
}
