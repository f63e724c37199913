package services

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/travelgo/chat-engine/pkg/models"
)

var (
	// TG-XXXXXX, AB-12345 and AB12345 shapes, matched on upper-cased text.
	bookingCodePattern = regexp.MustCompile(`\b(TG-[A-Z0-9]{6,}|[A-Z]{2}-?[0-9]{3,})\b`)
	bookingCodeExact   = regexp.MustCompile(`^(TG-[A-Z0-9]{6,}|[A-Z]{2}-?[0-9]{3,})$`)
	bookingHintPattern = regexp.MustCompile(`^[A-Z0-9-]{3,40}$`)

	slugPattern      = regexp.MustCompile(`\b[a-z0-9]+(?:-[a-z0-9]+)+\b`)
	numericIDPattern = regexp.MustCompile(`(?i)(?:#|\bid\s*)([0-9]{1,18})\b`)
	promoCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{4,30}$`)
)

// promoAnchors are words after which a promo code is expected.
var promoAnchors = map[string]bool{
	"promo":   true,
	"kode":    true,
	"voucher": true,
	"kupon":   true,
}

const tokenTrimChars = `.,!?:;"'()[]{}`

// ExtractBookingCode returns the booking code for a message. A well-formed
// caller hint takes precedence over codes found in the text. Codes are
// upper-cased.
func ExtractBookingCode(message, hint string) (string, bool) {
	if h := strings.ToUpper(strings.TrimSpace(hint)); h != "" && bookingHintPattern.MatchString(h) {
		return h, true
	}
	if m := bookingCodePattern.FindStringSubmatch(strings.ToUpper(message)); m != nil {
		return m[1], true
	}
	return "", false
}

// BookingIdentifier wraps a booking code as an identifier.
func BookingIdentifier(code string) models.EntityIdentifier {
	return models.EntityIdentifier{
		Kind:   models.EntityBooking,
		Table:  TableForKind(models.EntityBooking),
		Field:  "code",
		Column: "booking_code",
		Key:    code,
	}
}

// ExtractIdentifier finds a syntactic identifier of the given kind in the
// message. The result is not trusted until its existence is confirmed.
func ExtractIdentifier(kind models.EntityKind, message string) (models.EntityIdentifier, bool) {
	if kind == models.EntityBooking {
		if code, ok := ExtractBookingCode(message, ""); ok {
			return BookingIdentifier(code), true
		}
		return models.EntityIdentifier{}, false
	}
	if found := locateIdentifiers(kind, message); len(found) > 0 {
		return found[0].EntityIdentifier, true
	}
	return models.EntityIdentifier{}, false
}

// locatedIdentifier is an identifier candidate with the byte range of its
// token in the lower-cased message.
type locatedIdentifier struct {
	models.EntityIdentifier
	pos int
	end int
}

// locateIdentifiers returns every identifier candidate of a gated kind, in
// preference order: slugs before numeric ids.
func locateIdentifiers(kind models.EntityKind, message string) []locatedIdentifier {
	lower := strings.ToLower(message)
	var out []locatedIdentifier
	switch kind {
	case models.EntityPromo:
		if code, ok := extractPromoCode(message); ok {
			pos := strings.Index(lower, strings.ToLower(code))
			out = append(out, locatedIdentifier{
				EntityIdentifier: newIdentifier(kind, "code", "promo_code", code),
				pos:              pos,
				end:              pos + len(code),
			})
		}
	case models.EntityTrip:
		for _, m := range locateSlugs(lower) {
			out = append(out, locatedIdentifier{newIdentifier(kind, "slug", "slug", m.key), m.pos, m.end})
		}
		for _, m := range locateNumericIDs(lower) {
			out = append(out, locatedIdentifier{newIdentifier(kind, "id", "id", m.key), m.pos, m.end})
		}
	case models.EntityBlog, models.EntityCategory, models.EntityTag:
		for _, m := range locateSlugs(lower) {
			out = append(out, locatedIdentifier{newIdentifier(kind, "slug", "slug", m.key), m.pos, m.end})
		}
	case models.EntitySchedule, models.EntityReview:
		for _, m := range locateNumericIDs(lower) {
			out = append(out, locatedIdentifier{newIdentifier(kind, "id", "id", m.key), m.pos, m.end})
		}
	}
	return out
}

type tokenMatch struct {
	key string
	pos int
	end int
}

func newIdentifier(kind models.EntityKind, field, column, key string) models.EntityIdentifier {
	return models.EntityIdentifier{
		Kind:   kind,
		Table:  TableForKind(kind),
		Field:  field,
		Column: column,
		Key:    key,
	}
}

// extractPromoCode prefers the token after an anchor word when it has a
// digit or is written in capitals, then any capitalised token with a digit.
func extractPromoCode(message string) (string, bool) {
	tokens := strings.Fields(message)
	for i := range tokens {
		tokens[i] = strings.Trim(tokens[i], tokenTrimChars)
	}

	for i := 0; i+1 < len(tokens); i++ {
		if !promoAnchors[strings.ToLower(tokens[i])] {
			continue
		}
		next := tokens[i+1]
		if isPromoCode(next) && (hasDigit(next) || isUpperToken(next)) {
			return strings.ToUpper(next), true
		}
	}

	for _, tok := range tokens {
		if isPromoCode(tok) && hasDigit(tok) && hasLetter(tok) && isUpperToken(tok) {
			return tok, true
		}
	}
	return "", false
}

func isPromoCode(tok string) bool {
	return promoCodePattern.MatchString(tok) && !bookingCodeExact.MatchString(strings.ToUpper(tok))
}

// locateSlugs returns the hyphenated lower-case tokens that are not booking
// codes or reduplicated words such as "jalan-jalan".
func locateSlugs(lower string) []tokenMatch {
	var out []tokenMatch
	for _, loc := range slugPattern.FindAllStringIndex(lower, -1) {
		candidate := lower[loc[0]:loc[1]]
		if bookingCodeExact.MatchString(strings.ToUpper(candidate)) {
			continue
		}
		parts := strings.Split(candidate, "-")
		if isReduplication(parts) || !slugPartsValid(parts) {
			continue
		}
		out = append(out, tokenMatch{key: candidate, pos: loc[0], end: loc[1]})
	}
	return out
}

func locateNumericIDs(lower string) []tokenMatch {
	var out []tokenMatch
	for _, loc := range numericIDPattern.FindAllStringSubmatchIndex(lower, -1) {
		out = append(out, tokenMatch{key: lower[loc[2]:loc[3]], pos: loc[0], end: loc[1]})
	}
	return out
}

func isReduplication(parts []string) bool {
	for _, p := range parts[1:] {
		if p != parts[0] {
			return false
		}
	}
	return true
}

// slugPartsValid rejects single-letter parts ("e-mail") and all-digit slugs
// ("2-3").
func slugPartsValid(parts []string) bool {
	letters := false
	for _, p := range parts {
		if len(p) < 2 {
			return false
		}
		if hasLetter(p) {
			letters = true
		}
	}
	return letters
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

func isUpperToken(s string) bool {
	return hasLetter(s) && s == strings.ToUpper(s)
}
