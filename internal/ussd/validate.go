package ussd

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	MinAge           = 1
	MaxAge           = 120
	MinDurationDays  = 1
	MaxDurationDays  = 365
	MinSymptomLength = 3
	MaxSymptomLength = 100
)

// Day 01-31, month 01-12, year 20xx. Day-of-month is not checked against the month.
var dateRegex = regexp.MustCompile(`^(0[1-9]|[12][0-9]|3[01])-(0[1-9]|1[0-2])-20[0-9]{2}$`)

func parseBoundedInt(token string, min, max int, errOut error) (int, error) {
	n, err := strconv.Atoi(token)
	if err != nil || n < min || n > max {
		return 0, errOut
	}
	return n, nil
}

// ValidateAge parses an age in years.
func ValidateAge(token string) (int, error) {
	return parseBoundedInt(strings.TrimSpace(token), MinAge, MaxAge, ErrInvalidAge)
}

// ValidateDuration parses a symptom duration in days.
func ValidateDuration(token string) (int, error) {
	return parseBoundedInt(strings.TrimSpace(token), MinDurationDays, MaxDurationDays, ErrInvalidDuration)
}

// ValidateDate checks a DD-MM-YYYY date.
func ValidateDate(token string) (string, error) {
	token = strings.TrimSpace(token)
	if !dateRegex.MatchString(token) {
		return "", ErrInvalidDate
	}
	return token, nil
}

// SanitizeSymptom keeps letters, digits, spaces and .,'- then collapses
// whitespace and caps the result at MaxSymptomLength characters.
func SanitizeSymptom(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case unicode.IsSpace(r):
			return ' '
		case strings.ContainsRune(".,'-", r):
			return r
		}
		return -1
	}, raw)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if runes := []rune(cleaned); len(runes) > MaxSymptomLength {
		cleaned = strings.TrimSpace(string(runes[:MaxSymptomLength]))
	}
	if len([]rune(cleaned)) < MinSymptomLength {
		return "", ErrSymptomTooShort
	}
	return cleaned, nil
}

// parseConfirm accepts 1 (confirm) or 2 (cancel).
func parseConfirm(token string) (bool, error) {
	switch token {
	case "1":
		return true, nil
	case "2":
		return false, nil
	}
	return false, ErrInvalidChoice
}
