package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// RedactedValue replaces redacted attribute values.
const RedactedValue = "[REDACTED]"

// sensitiveKeys are attribute key fragments whose values are never logged.
var sensitiveKeys = []string{
	"password",
	"passphrase",
	"secret",
	"private_key",
	"privatekey",
	"token",
}

var pemPrivateKey = regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`)

// Redactor masks secret-bearing attributes.
type Redactor struct {
	keys []string
}

// NewRedactor creates a redactor for the default sensitive keys plus extra.
func NewRedactor(extra ...string) *Redactor {
	keys := append([]string(nil), sensitiveKeys...)
	for _, k := range extra {
		keys = append(keys, strings.ToLower(k))
	}
	return &Redactor{keys: keys}
}

// IsSensitiveKey reports whether values logged under key are redacted.
func (r *Redactor) IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range r.keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// RedactString removes PEM-encoded private keys from s.
func (r *Redactor) RedactString(s string) string {
	if !strings.Contains(s, "PRIVATE KEY-----") {
		return s
	}
	return pemPrivateKey.ReplaceAllString(s, RedactedValue)
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr function.
func (r *Redactor) ReplaceAttr(groups []string, a slog.Attr) slog.Attr {
	if r.IsSensitiveKey(a.Key) {
		return slog.String(a.Key, RedactedValue)
	}
	if a.Value.Kind() == slog.KindString {
		if v := a.Value.String(); strings.Contains(v, "PRIVATE KEY-----") {
			return slog.String(a.Key, r.RedactString(v))
		}
	}
	return a
}
