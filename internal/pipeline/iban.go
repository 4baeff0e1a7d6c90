package pipeline

import (
	"regexp"
	"strings"
)

// ibanPattern covers the ISO 13616 shape: country code, two check digits,
// then 11 to 30 alphanumeric BBAN characters.
var ibanPattern = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z0-9]{11,30}$`)

// validIBAN reports whether s passes the ISO 13616 format and mod-97
// checksum rules. Comparison is case-sensitive; statement files carry
// uppercase IBANs.
func validIBAN(s string) bool {
	if !ibanPattern.MatchString(s) {
		return false
	}

	// Move the country code and check digits to the end, then substitute
	// letters with their numeric values (A=10 .. Z=35).
	rearranged := s[4:] + s[:4]

	var sb strings.Builder
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			n := int(r - 'A' + 10)
			sb.WriteByte(byte('0' + n/10))
			sb.WriteByte(byte('0' + n%10))
		default:
			return false
		}
	}

	// Piece-wise mod 97 keeps the arithmetic within int range.
	remainder := 0
	for _, r := range sb.String() {
		remainder = (remainder*10 + int(r-'0')) % 97
	}
	return remainder == 1
}
