// Package mapping holds the pure value transforms applied to WeClapp fields
// before they are written to the destination store.
package mapping

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

var (
	nonDigits    = regexp.MustCompile(`\D`)
	htmlTags     = regexp.MustCompile(`<[^>]*>`)
	htmlEntities = regexp.MustCompile(`&[^;]+;`)
	emailShape   = regexp.MustCompile(`^\S+@\S+\.\S+$`)

	umlauts = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")
)

// StandardizePhone normalizes a phone number to +<cc>-<rest>.
// Numbers with a leading single zero get the default country code.
func StandardizePhone(number, defaultCountryCode string) string {
	if number == "" {
		return ""
	}
	cleaned := nonDigits.ReplaceAllString(number, "")
	switch {
	case strings.HasPrefix(cleaned, "00"):
		cleaned = "+" + cleaned[2:]
	case strings.HasPrefix(cleaned, "0"):
		cleaned = "+" + defaultCountryCode + cleaned[1:]
	case cleaned != "":
		cleaned = "+" + cleaned
	}
	if len(cleaned) > 3 {
		cleaned = cleaned[:3] + "-" + cleaned[3:]
	}
	return cleaned
}

// StripHTML removes markup tags and character entities.
func StripHTML(text string) string {
	if text == "" {
		return ""
	}
	return htmlEntities.ReplaceAllString(htmlTags.ReplaceAllString(text, ""), "")
}

// Salutation maps WeClapp salutation codes. A title always wins.
func Salutation(salutation, title string) string {
	if title != "" {
		return title
	}
	switch salutation {
	case "MR":
		return "Mr"
	case "MRS":
		return "Ms"
	default:
		return ""
	}
}

// PrepareEmail lowercases the address and folds german umlauts.
// It returns "" when the result does not look like an email address.
func PrepareEmail(email string) string {
	if email == "" {
		return ""
	}
	// Decomposed umlauts would slip past the replacer.
	email = umlauts.Replace(strings.ToLower(norm.NFC.String(email)))
	if !emailShape.MatchString(email) {
		return ""
	}
	return email
}

// DateFromTimestamp renders a WeClapp millisecond timestamp as a date.
func DateFromTimestamp(ms int64, loc *time.Location) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).In(location(loc)).Format(time.DateOnly)
}

// DateTimeFromTimestamp renders a WeClapp millisecond timestamp as a datetime.
func DateTimeFromTimestamp(ms int64, loc *time.Location) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).In(location(loc)).Format(time.DateTime)
}

// MergeTags returns the union of the given label lists in first-seen order.
func MergeTags(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, tag := range list {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}

// SplitName splits "First Last" into its first token and the remainder.
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// Optional returns nil for empty strings so that unset values stay null in the store.
func Optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
