package util

import (
	"math/rand/v2"
	"strings"
)

const upperAlphaNumeric = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random lowercase hexadecimal string of the specified length.
func GenerateRandomHex(length int) string {
	return randomFrom("0123456789abcdef", length)
}

// GenerateRandomCode generates an uppercase alphanumeric code, the form callers
// read back on a handset keypad.
func GenerateRandomCode(length int) string {
	return randomFrom(upperAlphaNumeric, length)
}

// GenerateAppointmentID generates an appointment identifier such as "AFY-7K2Q9D".
func GenerateAppointmentID() string {
	return "AFY-" + GenerateRandomCode(6)
}

// GeneratePaymentReference generates a mobile payment reference such as "MP4FZ81XQA".
func GeneratePaymentReference() string {
	return "MP" + GenerateRandomCode(8)
}

func randomFrom(chars string, length int) string {
	if length <= 0 {
		return ""
	}
	var builder strings.Builder
	builder.Grow(length)
	for i := 0; i < length; i++ {
		builder.WriteByte(chars[rand.IntN(len(chars))])
	}
	return builder.String()
}
