// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when a number is stored without a country prefix.
const DefaultRegion = "US"

// ErrUnusable is returned when a number is empty or cannot be dialed.
var ErrUnusable = errors.New("phone number is not usable")

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	normalized, err := ParseE164(input, DefaultRegion)
	if err != nil {
		return strings.TrimSpace(input)
	}
	return normalized
}

// ParseE164 returns the E.164 form of input, or ErrUnusable when the number
// is empty or invalid for the region.
func ParseE164(input, region string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ErrUnusable
	}
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return "", ErrUnusable
	}
	if !phonenumbers.IsValidNumber(number) {
		return "", ErrUnusable
	}

	return phonenumbers.Format(number, phonenumbers.E164), nil
}

// IsUsable reports whether input can be dialed.
func IsUsable(input *string) bool {
	if input == nil {
		return false
	}
	_, err := ParseE164(*input, DefaultRegion)
	return err == nil
}
