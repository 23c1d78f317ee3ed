// Package cardswipe extracts an institutional card id from a raw magnetic
// stripe payload. Readers in the kiosks emit all three ISO tracks in one
// keyboard burst, so extraction is an ordered chain of track patterns: the
// first non-empty capture wins.
package cardswipe

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrNoTrackMatch = errors.New("no card id found in swipe data")
	ErrPaymentCard  = errors.New("swipe looks like a payment card")
)

// Tried in priority order. Campus IDs encode the id on track 3 on newer
// cards; older batches only carry track 2 or 1.
var extractors = []*regexp.Regexp{
	regexp.MustCompile(`\+(\d{5,16})\?`),      // track 3
	regexp.MustCompile(`;(\d{5,19})=`),        // track 2
	regexp.MustCompile(`%[A-Z]?(\d{5,19})\^`), // track 1
}

// Issuer prefixes of the major payment networks (Visa 4, Mastercard 5 and
// 51-55, Amex 34 and 37). A student tapping their debit card on the reader
// must never be treated as an ID swipe.
var paymentPrefixes = []string{"4", "5", "34", "37", "51", "52", "53", "54", "55"}

// Extract pulls the card id out of the raw swipe, rejecting payment cards.
func Extract(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNoTrackMatch
	}

	for _, re := range extractors {
		m := re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}

		id := m[1]
		if IsPaymentCard(id) {
			return "", ErrPaymentCard
		}
		return id, nil
	}

	return "", ErrNoTrackMatch
}

// IsPaymentCard reports whether the digits carry a known payment network
// issuer prefix.
func IsPaymentCard(digits string) bool {
	for _, p := range paymentPrefixes {
		if strings.HasPrefix(digits, p) {
			return true
		}
	}
	return false
}
