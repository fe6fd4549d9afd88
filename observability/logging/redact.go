package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in emitted log lines.
const RedactedValue = "[REDACTED]"

// Keys the daemon routinely logs in the clear. MaskField redacts anything else.
var plainKeys = map[string]struct{}{
	"component": {},
	"error":     {},
	"holder":    {},
	"op":        {},
	"outcome":   {},
	"reason":    {},
	"requestid": {},
	"tokenid":   {},
}

// Fragments that mark a key as secret wherever it appears, even when the
// caller did not use MaskField.
var sensitiveFragments = []string{"secret", "passphrase", "password", "token", "authorization"}

// MaskField returns a slog.Attr whose value is redacted unless the key is one
// the daemon logs in the clear. Empty values pass through unchanged.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	if _, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]; ok {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// scrub masks string attributes whose key names a credential.
func scrub(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindString || attr.Value.String() == "" {
		return attr
	}
	key := strings.ToLower(attr.Key)
	if _, ok := plainKeys[key]; ok {
		return attr
	}
	for _, fragment := range sensitiveFragments {
		if strings.Contains(key, fragment) {
			return slog.String(attr.Key, RedactedValue)
		}
	}
	return attr
}
