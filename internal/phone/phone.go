// Package phone canonicalizes contact numbers into the digit-only form used
// as WhatsApp user ids and contact keys.
package phone

import (
	"strings"
	"unicode"

	"project_broadcast/internal/entities"

	"github.com/nyaruka/phonenumbers"
)

// CountryPrefix is prepended to bare 10-digit national numbers.
const CountryPrefix = "91"

// Canonicalize strips everything but digits, prefixes 10-digit numbers with
// CountryPrefix and accepts 12-digit numbers that already carry it. Any other
// length returns entities.ErrInvalidPhone.
func Canonicalize(raw string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			return r
		}
		return -1
	}, raw)

	switch {
	case len(digits) == 10:
		digits = CountryPrefix + digits
	case len(digits) == 12 && strings.HasPrefix(digits, CountryPrefix):
	default:
		return "", entities.ErrInvalidPhone
	}

	parsed, err := phonenumbers.Parse("+"+digits, "")
	if err != nil || !phonenumbers.IsPossibleNumber(parsed) {
		return "", entities.ErrInvalidPhone
	}
	return digits, nil
}

// Display formats a canonical number for humans (+91 98765 43210).
func Display(canonical string) string {
	parsed, err := phonenumbers.Parse("+"+canonical, "")
	if err != nil {
		return canonical
	}
	return phonenumbers.Format(parsed, phonenumbers.INTERNATIONAL)
}
