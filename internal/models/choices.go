package models

import (
	"errors"
	"strconv"
)

// ErrInvalidChoice is returned by every Parse function when a keypad token does
// not name a member of the enum. Tokens are never coerced to a default.
var ErrInvalidChoice = errors.New("invalid menu choice")

// parseChoice accepts only the canonical decimal spelling of 1..max, so "01",
// " 1" and "+1" are rejected.
func parseChoice(token string, max int) (int, error) {
	n, err := strconv.Atoi(token)
	if err != nil || n < 1 || n > max || strconv.Itoa(n) != token {
		return 0, ErrInvalidChoice
	}
	return n, nil
}

// Gender is the caller's self-reported gender in the triage flow.
type Gender int

const (
	GenderMale Gender = iota + 1
	GenderFemale
	GenderOther
)

var genderLabels = [...]string{"", "Male", "Female", "Other"}

// ParseGender parses a gender menu token.
func ParseGender(token string) (Gender, error) {
	n, err := parseChoice(token, len(genderLabels)-1)
	return Gender(n), err
}

// Label returns the display name.
func (g Gender) Label() string {
	if g < GenderMale || g > GenderOther {
		return "Unknown"
	}
	return genderLabels[g]
}

// FacilityType is the tier of health facility a visit is booked at.
type FacilityType int

const (
	FacilityDispensary FacilityType = iota + 1
	FacilityHealthCentre
	FacilitySubCountyHospital
	FacilityCountyReferralHospital
)

var facilityLabels = [...]string{"", "Dispensary", "Health Centre", "Sub-County Hospital", "County Referral Hospital"}

// FacilityTypes lists every facility tier in menu order.
func FacilityTypes() []FacilityType {
	return []FacilityType{FacilityDispensary, FacilityHealthCentre, FacilitySubCountyHospital, FacilityCountyReferralHospital}
}

// ParseFacilityType parses a facility menu token.
func ParseFacilityType(token string) (FacilityType, error) {
	n, err := parseChoice(token, len(facilityLabels)-1)
	return FacilityType(n), err
}

// Valid reports whether f is a known facility tier.
func (f FacilityType) Valid() bool {
	return f >= FacilityDispensary && f <= FacilityCountyReferralHospital
}

// Label returns the display name.
func (f FacilityType) Label() string {
	if !f.Valid() {
		return "Unknown"
	}
	return facilityLabels[f]
}

// County is one of the counties served by the booking flow.
type County int

const (
	CountyNairobi County = iota + 1
	CountyMombasa
	CountyKisumu
	CountyNakuru
	CountyKiambu
)

var countyLabels = [...]string{"", "Nairobi", "Mombasa", "Kisumu", "Nakuru", "Kiambu"}

// Counties lists every county in menu order.
func Counties() []County {
	return []County{CountyNairobi, CountyMombasa, CountyKisumu, CountyNakuru, CountyKiambu}
}

// ParseCounty parses a county menu token.
func ParseCounty(token string) (County, error) {
	n, err := parseChoice(token, len(countyLabels)-1)
	return County(n), err
}

// Label returns the display name.
func (c County) Label() string {
	if c < CountyNairobi || c > CountyKiambu {
		return "Unknown"
	}
	return countyLabels[c]
}

// TimeSlot is the part of the day an appointment is booked for.
type TimeSlot int

const (
	SlotMorning TimeSlot = iota + 1
	SlotAfternoon
	SlotEvening
)

var slotLabels = [...]string{"", "Morning", "Afternoon", "Evening"}
var slotHours = [...]string{"", "8AM-12PM", "12PM-4PM", "4PM-7PM"}

// TimeSlots lists every slot in menu order.
func TimeSlots() []TimeSlot {
	return []TimeSlot{SlotMorning, SlotAfternoon, SlotEvening}
}

// ParseTimeSlot parses a time slot menu token.
func ParseTimeSlot(token string) (TimeSlot, error) {
	n, err := parseChoice(token, len(slotLabels)-1)
	return TimeSlot(n), err
}

// Label returns the display name, e.g. "Morning".
func (s TimeSlot) Label() string {
	if s < SlotMorning || s > SlotEvening {
		return "Unknown"
	}
	return slotLabels[s]
}

// Hours returns the clinic hours covered by the slot, e.g. "8AM-12PM".
func (s TimeSlot) Hours() string {
	if s < SlotMorning || s > SlotEvening {
		return ""
	}
	return slotHours[s]
}

// PaymentMethod is how a consultation fee is paid.
type PaymentMethod int

const (
	PaymentMPesa PaymentMethod = iota + 1
	PaymentInsurance
	PaymentCash
)

var paymentLabels = [...]string{"", "M-Pesa", "Insurance", "Cash at facility"}

// PaymentMethods lists every payment method in menu order.
func PaymentMethods() []PaymentMethod {
	return []PaymentMethod{PaymentMPesa, PaymentInsurance, PaymentCash}
}

// ParsePaymentMethod parses a payment method menu token.
func ParsePaymentMethod(token string) (PaymentMethod, error) {
	n, err := parseChoice(token, len(paymentLabels)-1)
	return PaymentMethod(n), err
}

// Label returns the display name.
func (m PaymentMethod) Label() string {
	if m < PaymentMPesa || m > PaymentCash {
		return "Unknown"
	}
	return paymentLabels[m]
}

// IsMobile reports whether the method settles through the mobile money push.
func (m PaymentMethod) IsMobile() bool {
	return m == PaymentMPesa
}
