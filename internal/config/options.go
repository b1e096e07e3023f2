package config

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Options is a loosely-typed option bag for parser settings.
//
// JSON numbers decode as float64 and option values frequently arrive as
// strings; the accessors below normalize the common cases so call sites can
// stay terse.
type Options map[string]any

// Any returns the raw value for key, or nil.
func (o Options) Any(key string) any {
	if o == nil {
		return nil
	}
	return o[key]
}

// String returns the value for key as a string, or def when absent/empty.
func (o Options) String(key, def string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	s := strings.TrimSpace(asString(v))
	if s == "" {
		return def
	}
	return s
}

// Bool returns the value for key as a bool, or def when absent or
// unparseable.
func (o Options) Bool(key string, def bool) bool {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		return b
	case float64:
		return t != 0
	default:
		return def
	}
}

// Int returns the value for key as an int, or def.
func (o Options) Int(key string, def int) int {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		return n
	default:
		return def
	}
}

// Rune returns the first rune of the string value for key, or def.
// Used for CSV delimiters.
func (o Options) Rune(key string, def rune) rune {
	s := o.String(key, "")
	if s == "" {
		return def
	}
	return []rune(s)[0]
}

// StringMap returns the value for key as map[string]string. Non-string
// values are stringified; a missing or mistyped option yields an empty map.
func (o Options) StringMap(key string) map[string]string {
	out := map[string]string{}
	v, ok := o[key]
	if !ok || v == nil {
		return out
	}
	switch t := v.(type) {
	case map[string]string:
		for k, s := range t {
			out[k] = s
		}
	case map[string]any:
		for k, raw := range t {
			out[k] = asString(raw)
		}
	}
	return out
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
