package entities

import (
	"regexp"
	"strings"
	"unicode"
)

// normalizeNIF keeps only digits, dropping spaces, dots and a "PT" prefix.
func normalizeNIF(s string) string {
	s = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "PT")
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

var plateGroups = regexp.MustCompile(`^([A-Z0-9]{2})([A-Z0-9]{2})([A-Z0-9]{2})$`)

// normalizeMatricula uppercases a Portuguese plate and writes it in the
// AA-00-AA form whatever separators were typed.
func normalizeMatricula(s string) string {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return -1
	}, s)
	if m := plateGroups.FindStringSubmatch(compact); m != nil {
		return m[1] + "-" + m[2] + "-" + m[3]
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// normalizeIBAN removes spaces and uppercases.
func normalizeIBAN(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// normalizeEmail lowercases.
func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizePhone collapses inner whitespace.
func normalizePhone(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
