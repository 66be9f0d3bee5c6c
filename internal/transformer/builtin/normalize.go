package builtin

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Unknown is the sentinel stored for a categorical value that is absent from
// the source but required by the business rules.
const Unknown = "UNKNOWN"

// placeholders normalize to missing. Compared case-insensitively after trimming.
var placeholders = []string{"nan", "none", "null"}

func nbspToSpace(r rune) rune {
	if r == '\u00a0' {
		return ' '
	}
	return r
}

// CleanText applies Unicode NFC composition, folds non-breaking spaces and
// trims surrounding whitespace.
func CleanText(s string) string {
	t := transform.Chain(norm.NFC, runes.Map(nbspToSpace))
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.TrimSpace(out)
}

// IsPlaceholder reports whether s denotes a missing value: the empty string or
// any spelling of nan, none or null.
func IsPlaceholder(s string) bool {
	s = CleanText(s)
	if s == "" {
		return true
	}
	for _, p := range placeholders {
		if strings.EqualFold(s, p) {
			return true
		}
	}
	return false
}

// NormalizeText cleans s and returns nil when it is a placeholder.
func NormalizeText(s string) *string {
	if IsPlaceholder(s) {
		return nil
	}
	out := CleanText(s)
	return &out
}

// OrDefault returns *p, or def when p is nil.
func OrDefault(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
