// Package delivery computes delivery charges for an order. Buyers inside
// a vendor's delivery radius are charged a flat-plus-linear local rate;
// everyone else is charged from the long-haul tariff table.
package delivery

import (
	"errors"
	"math"

	"github.com/paulmach/orb"

	"github.com/bazaar-labs/bazaar-api/internal/geo"
	"github.com/bazaar-labs/bazaar-api/internal/pricing"
	"github.com/bazaar-labs/bazaar-api/internal/rate"
)

// Tier identifies which pricing branch produced a charge.
type Tier string

const (
	// TierLocal is flat-plus-linear pricing within the vendor radius.
	TierLocal Tier = "local"
	// TierLongHaul is tariff-table pricing beyond the radius.
	TierLongHaul Tier = "long_haul"
	// TierFallback is the conservative flat charge used when the
	// buyer or vendor location could not be resolved.
	TierFallback Tier = "fallback"
)

// ErrInvalidInput signals a caller bug (negative weight, malformed
// coordinates). Business conditions such as unset locations never produce
// an error; they degrade to a fallback charge instead, because a failed
// delivery estimate must not block checkout.
var ErrInvalidInput = errors.New("delivery: invalid input")

// Calculator holds the delivery pricing constants. All amounts are paise.
type Calculator struct {
	// BaseCharge covers the first BaseDistanceKm of a local delivery.
	BaseCharge     pricing.Money
	BaseDistanceKm float64
	// PerKmCharge is the linear surcharge per kilometre beyond
	// BaseDistanceKm. Fractional kilometres are charged pro rata.
	PerKmCharge pricing.Money
	// FallbackCharge applies when either coordinate is unset.
	FallbackCharge pricing.Money
	// LongHaulFallback applies when the tariff lookup itself fails.
	LongHaulFallback pricing.Money
	// DefaultRadiusKm is used when the vendor has no radius configured.
	DefaultRadiusKm float64
	// DefaultWeightGrams substitutes an unknown parcel weight.
	DefaultWeightGrams int
}

// Quote is the outcome of a delivery charge computation.
type Quote struct {
	Charge     pricing.Money `json:"charge"`
	Tier       Tier          `json:"tier"`
	DistanceKm float64       `json:"distanceKm"`
}

// Charge prices a delivery from the vendor location to the buyer
// location.
func (c Calculator) Charge(vendor, buyer orb.Point, radiusKm float64, weightGrams int) (Quote, error) {
	if weightGrams < 0 {
		return Quote{}, ErrInvalidInput
	}
	if geo.IsUnset(vendor) || geo.IsUnset(buyer) {
		return Quote{Charge: c.FallbackCharge, Tier: TierFallback}, nil
	}
	if err := geo.Validate(vendor); err != nil {
		return Quote{}, ErrInvalidInput
	}
	if err := geo.Validate(buyer); err != nil {
		return Quote{}, ErrInvalidInput
	}
	d, err := geo.DistanceKm(vendor, buyer)
	if err != nil {
		return Quote{}, ErrInvalidInput
	}
	if radiusKm <= 0 {
		radiusKm = c.DefaultRadiusKm
	}
	if d <= radiusKm {
		return Quote{Charge: c.localCharge(d), Tier: TierLocal, DistanceKm: d}, nil
	}
	grams := weightGrams
	if grams == 0 {
		grams = c.DefaultWeightGrams
	}
	charge, err := rate.LongHaulRate(grams, d)
	if err != nil {
		return Quote{Charge: c.LongHaulFallback, Tier: TierLongHaul, DistanceKm: d}, nil
	}
	return Quote{Charge: charge, Tier: TierLongHaul, DistanceKm: d}, nil
}

func (c Calculator) localCharge(distanceKm float64) pricing.Money {
	charge := c.BaseCharge
	if distanceKm > c.BaseDistanceKm {
		extra := distanceKm - c.BaseDistanceKm
		charge += pricing.Money(math.Round(extra * float64(c.PerKmCharge)))
	}
	return charge
}
