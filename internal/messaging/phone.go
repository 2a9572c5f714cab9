package messaging

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultCountryCode is prefixed to national numbers starting with 0.
const DefaultCountryCode = "254"

var nonDigitRegex = regexp.MustCompile(`\D`)

// CanonicalizePhone converts a gateway phone number to E.164. National numbers
// such as 0712345678 are assumed to be Kenyan.
func CanonicalizePhone(recipient string) (string, error) {
	if strings.TrimSpace(recipient) == "" {
		return "", fmt.Errorf("%w: recipient cannot be empty", ErrInvalidRecipient)
	}
	digits := nonDigitRegex.ReplaceAllString(recipient, "")
	if digits == "" {
		return "", fmt.Errorf("%w: no digits found in recipient %q", ErrInvalidRecipient, recipient)
	}
	if strings.HasPrefix(digits, "0") && !strings.HasPrefix(strings.TrimSpace(recipient), "+") {
		digits = DefaultCountryCode + strings.TrimLeft(digits, "0")
	}
	if len(digits) < 9 || len(digits) > 15 {
		return "", fmt.Errorf("%w: %q has %d digits", ErrInvalidRecipient, recipient, len(digits))
	}
	return "+" + digits, nil
}
