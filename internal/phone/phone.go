// Package phone normalizes WhatsApp sender addresses to E.164.
package phone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const DefaultRegion = "BR"

var ErrInvalidNumber = errors.New("invalid phone number")

// Normalize strips a "whatsapp:" prefix and returns the E.164 form.
// Numbers without a country code are read in DefaultRegion.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "whatsapp:"))
	if s == "" {
		return "", ErrInvalidNumber
	}

	num, err := phonenumbers.Parse(s, DefaultRegion)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidNumber, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("%w: %s", ErrInvalidNumber, s)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Region returns the ISO region of an E.164 number, or "" if unknown.
func Region(e164 string) string {
	num, err := phonenumbers.Parse(e164, DefaultRegion)
	if err != nil {
		return ""
	}
	return phonenumbers.GetRegionCodeForNumber(num)
}
