// Package textutil provides text processing utilities for job identifiers,
// filename sanitization, and numeral normalization.
//
// Campaign uploads routinely carry Persian text: job IDs fold names through
// NFKC before stripping, and NormalizeDigits maps Persian and Arabic-Indic
// numerals to ASCII so downstream numeric parsing sees standard digits.
package textutil
