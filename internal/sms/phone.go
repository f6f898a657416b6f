package sms

import (
	"fmt"
	"strings"

	"github.com/cuongbtq/community-broadcast/internal/broadcast/domain"
)

const (
	minDigits = 9
	maxDigits = 15
)

// NormalizePhone rewrites a member phone number into the gateway's
// international digits-only form. Local numbers with a leading 0 get countryCode.
func NormalizePhone(raw, countryCode string) (string, error) {
	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	cleaned = strings.TrimPrefix(cleaned, "+")

	if cleaned == "" {
		return "", fmt.Errorf("%w: empty", domain.ErrInvalidPhoneNumber)
	}

	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q", domain.ErrInvalidPhoneNumber, raw)
		}
	}

	if strings.HasPrefix(cleaned, "00") {
		cleaned = cleaned[2:]
	} else if strings.HasPrefix(cleaned, "0") && countryCode != "" {
		cleaned = countryCode + cleaned[1:]
	}

	if len(cleaned) < minDigits || len(cleaned) > maxDigits {
		return "", fmt.Errorf("%w: %q has %d digits", domain.ErrInvalidPhoneNumber, raw, len(cleaned))
	}

	return cleaned, nil
}
