package textutil

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed. The result is trimmed of leading/trailing whitespace.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(fileNameReplacer.Replace(name))
}

// SanitizeToken converts a string to a lowercase filesystem-safe token. The
// input is NFKC-folded first so full-width and composed forms compare equal.
// Letters are lowercased, digits are kept, everything else is dropped.
// Returns "unknown" for input with no usable characters.
func SanitizeToken(value string) string {
	value = norm.NFKC.String(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		return "unknown"
	}
	return out
}

const jobIDTokenLimit = 15

// JobID builds a readable job identifier from company and campaign names plus
// a timestamp: <company>_<campaign>_<yyyymmddhhmmss>. Tokens are sanitized
// and truncated to 15 characters each.
func JobID(company, campaign string, now time.Time) string {
	return truncate(SanitizeToken(company), jobIDTokenLimit) +
		"_" + truncate(SanitizeToken(campaign), jobIDTokenLimit) +
		"_" + now.Format("20060102150405")
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
