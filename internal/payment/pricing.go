// Package payment prices clinic visits and simulates the mobile money checkout
// that precedes a paid booking.
package payment

import "github.com/afyalink/afyalink/internal/models"

// Consultation fee per facility tier, in KES.
var basePrices = map[models.FacilityType]int{
	models.FacilityDispensary:             200,
	models.FacilityHealthCentre:           500,
	models.FacilitySubCountyHospital:      1000,
	models.FacilityCountyReferralHospital: 1500,
}

// Surcharge per payment method, in KES.
var methodFees = map[models.PaymentMethod]int{
	models.PaymentMPesa:     50,
	models.PaymentInsurance: 0,
	models.PaymentCash:      0,
}

// BasePrice returns the consultation fee for a facility tier, or 0 if unknown.
func BasePrice(f models.FacilityType) int {
	return basePrices[f]
}

// Fee returns the surcharge for a payment method, or 0 if unknown.
func Fee(m models.PaymentMethod) int {
	return methodFees[m]
}

// Total returns the amount the caller pays.
func Total(f models.FacilityType, m models.PaymentMethod) int {
	return BasePrice(f) + Fee(m)
}
