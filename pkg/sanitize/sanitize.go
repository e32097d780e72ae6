package sanitize

import (
	"regexp"
	"strings"
)

var reEmail = regexp.MustCompile(`(?i)[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}`)

// Phone numbers: +254 712 345 678, 0712-345-678, (020) 123 4567.
// At least 9 digits so plate numbers and amounts are left alone.
var rePhone = regexp.MustCompile(`\+?\(?\d[\d\s\-.()]{7,}\d`)

// Kenyan national id: 7-8 digits on their own.
var reNationalID = regexp.MustCompile(`\b\d{7,8}\b`)

func RedactPII(s string) string {
	if s == "" {
		return s
	}
	s = reEmail.ReplaceAllString(s, "[redacted email]")
	s = rePhone.ReplaceAllString(s, "[redacted phone]")
	return s
}

// MaskEmail keeps the first character and the domain: j***@mail.com.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return RedactPII(email)
	}
	return email[:1] + "***" + email[at:]
}

// MaskID keeps the last three characters of an identifier.
func MaskID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 3 {
		return strings.Repeat("*", len(id))
	}
	return strings.Repeat("*", len(id)-3) + id[len(id)-3:]
}

// RedactNationalIDs masks bare national id numbers in free text.
func RedactNationalIDs(s string) string {
	return reNationalID.ReplaceAllStringFunc(s, MaskID)
}

// Summary trims s to at most max bytes on a word boundary, for listings.
func Summary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	i := max
	for i > 0 && i < len(s) && s[i] != ' ' {
		i--
	}
	if i <= 0 {
		i = max
	}
	return s[:i] + "…"
}
