package textutil

import "strings"

// NormalizeDigits maps Persian (U+06F0..U+06F9) and Arabic-Indic
// (U+0660..U+0669) numerals to ASCII digits, and the Arabic decimal and
// thousands separators to their ASCII equivalents. All other runes pass
// through unchanged.
func NormalizeDigits(value string) string {
	if value == "" {
		return value
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '۰' && r <= '۹': // Persian digits
			return '0' + (r - '۰')
		case r >= '٠' && r <= '٩': // Arabic-Indic digits
			return '0' + (r - '٠')
		case r == '٫': // Arabic decimal separator
			return '.'
		case r == '٬': // Arabic thousands separator
			return ','
		}
		return r
	}, value)
}

// HasNonASCIIDigits reports whether the string contains numerals outside the
// ASCII range that NormalizeDigits would rewrite.
func HasNonASCIIDigits(value string) bool {
	return strings.ContainsFunc(value, func(r rune) bool {
		return (r >= '۰' && r <= '۹') || (r >= '٠' && r <= '٩')
	})
}
