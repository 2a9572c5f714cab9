package ussd

import (
	"errors"

	"github.com/afyalink/afyalink/internal/models"
)

var (
	// ErrInvalidChoice is returned for a menu token outside the offered options.
	ErrInvalidChoice = models.ErrInvalidChoice
	// ErrInvalidAge is returned for an age outside 1..120.
	ErrInvalidAge = errors.New("age must be a whole number between 1 and 120")
	// ErrInvalidDuration is returned for a symptom duration outside 1..365 days.
	ErrInvalidDuration = errors.New("duration must be a whole number of days between 1 and 365")
	// ErrInvalidDate is returned for a date not written DD-MM-20YY.
	ErrInvalidDate = errors.New("date must be DD-MM-YYYY")
	// ErrSymptomTooShort is returned when fewer than MinSymptomLength characters survive sanitizing.
	ErrSymptomTooShort = errors.New("symptom description too short")
)

// Screens shared by more than one flow.
var (
	screenInvalidChoice = End("Invalid choice. Please try again.")
	screenInvalidDate   = End("Invalid date format. Use DD-MM-YYYY.")
	// ScreenUnavailable is returned for unexpected failures.
	ScreenUnavailable = End("Service temporarily unavailable. Please try again later.")
)
