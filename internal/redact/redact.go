// Package redact scrubs sensitive values before attribute data reaches logs
// or the event bus: well-known credential attributes by name, and any value
// containing a secret resolved at compile time.
package redact

import (
	"strings"

	"github.com/strand-labs/strand/internal/secrets"
	"github.com/strand-labs/strand/pkg/strand/v1/attrs"
)

// Placeholder replaces a redacted value.
const Placeholder = "[REDACTED]"

// sensitiveNames are attribute names whose values are never logged,
// regardless of content.
var sensitiveNames = map[string]struct{}{
	"user-password":         {},
	"password":              {},
	"chap-password":         {},
	"ms-chap-response":      {},
	"ms-chap2-response":     {},
	"cleartext-password":    {},
	"nt-password":           {},
	"eap-message":           {},
	"message-authenticator": {},
}

// SensitiveName reports whether an attribute name is a known credential.
func SensitiveName(name string) bool {
	_, ok := sensitiveNames[strings.ToLower(name)]
	return ok
}

// Pairs returns a copy of the pairs with sensitive values replaced. The
// tracker may be nil; name-based redaction still applies.
func Pairs(pairs []attrs.Pair, tracker *secrets.Tracker) []attrs.Pair {
	out := make([]attrs.Pair, len(pairs))
	for i, p := range pairs {
		out[i] = attrs.Pair{Name: p.Name, Value: Value(p.Name, p.Value, tracker)}
	}
	return out
}

// Value redacts a single attribute value. Container values are walked
// recursively; non-string leaves pass through untouched.
func Value(name string, value interface{}, tracker *secrets.Tracker) interface{} {
	if SensitiveName(name) {
		return Placeholder
	}
	v, _ := walk(value, tracker)
	return v
}

func walk(data interface{}, tracker *secrets.Tracker) (interface{}, bool) {
	if data == nil {
		return nil, false
	}

	switch v := data.(type) {
	case string:
		if tracker != nil && tracker.ContainsTrackedSecret(v) {
			return Placeholder, true
		}
		return v, false

	case map[string]interface{}:
		changed := false
		out := make(map[string]interface{}, len(v))
		for key, val := range v {
			if SensitiveName(key) {
				out[key] = Placeholder
				changed = true
				continue
			}
			nv, c := walk(val, tracker)
			out[key] = nv
			changed = changed || c
		}
		if !changed {
			return v, false
		}
		return out, true

	case []interface{}:
		changed := false
		out := make([]interface{}, len(v))
		for i, val := range v {
			nv, c := walk(val, tracker)
			out[i] = nv
			changed = changed || c
		}
		if !changed {
			return v, false
		}
		return out, true

	case []string:
		changed := false
		out := make([]string, len(v))
		for i, s := range v {
			if tracker != nil && tracker.ContainsTrackedSecret(s) {
				out[i] = Placeholder
				changed = true
				continue
			}
			out[i] = s
		}
		if !changed {
			return v, false
		}
		return out, true

	default:
		return data, false
	}
}
