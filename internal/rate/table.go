// Package rate implements the long-haul parcel tariff table used for
// deliveries beyond a vendor's local radius. The table is modelled on
// domestic postal parcel rates: weight tiers crossed with distance slabs.
package rate

import (
	"errors"

	"github.com/bazaar-labs/bazaar-api/internal/pricing"
)

var (
	// ErrInvalidWeight is returned for negative parcel weights, which
	// indicate a caller bug rather than a pricing condition.
	ErrInvalidWeight = errors.New("rate: invalid parcel weight")
	// ErrInvalidDistance is returned for negative distances.
	ErrInvalidDistance = errors.New("rate: invalid distance")
)

const (
	// WeightStepGrams is the increment parcels are rounded up to.
	WeightStepGrams = 50
	// MaxWeightGrams caps the chargeable weight; heavier parcels are
	// charged at the top tier instead of failing.
	MaxWeightGrams = 20000
)

// Distance slab boundaries in kilometres. Anything beyond the last
// boundary falls into the final slab.
var slabBoundariesKm = [3]float64{200, 1000, 2000}

// Base rows of the tariff in paise, one row per weight tier, one column
// per distance slab. Rates up to 200 km and up to 1000 km are priced
// identically, matching the postal tariff the table is derived from.
// Rows must stay monotonically non-decreasing across both axes; the table
// test enforces this.
var baseRows = []struct {
	maxGrams int
	rates    [4]pricing.Money
}{
	{50, [4]pricing.Money{3500, 3500, 4000, 4500}},
	{200, [4]pricing.Money{4500, 4500, 5200, 6000}},
	{500, [4]pricing.Money{5500, 5500, 6400, 7500}},
	{1000, [4]pricing.Money{7700, 7700, 9000, 10500}},
	{1500, [4]pricing.Money{9900, 9900, 11600, 13500}},
}

// addPer500Grams is the surcharge for every additional 500 g beyond the
// last base row, per distance slab.
var addPer500Grams = [4]pricing.Money{2200, 2200, 2600, 3000}

// LongHaulRate returns the tariff for shipping a parcel of the given
// weight over the given distance. Weight is rounded up to the next 50 g
// increment and clamped to 20 kg; the result is a flat amount with no
// fractional component below the table granularity.
func LongHaulRate(weightGrams int, distanceKm float64) (pricing.Money, error) {
	if weightGrams < 0 {
		return 0, ErrInvalidWeight
	}
	if distanceKm < 0 {
		return 0, ErrInvalidDistance
	}
	grams := roundUpToStep(weightGrams)
	if grams > MaxWeightGrams {
		grams = MaxWeightGrams
	}
	slab := slabIndex(distanceKm)

	last := baseRows[len(baseRows)-1]
	if grams <= last.maxGrams {
		for _, row := range baseRows {
			if grams <= row.maxGrams {
				return row.rates[slab], nil
			}
		}
	}
	extra := grams - last.maxGrams
	steps := pricing.Money((extra + 499) / 500)
	return last.rates[slab] + steps*addPer500Grams[slab], nil
}

func roundUpToStep(grams int) int {
	if grams == 0 {
		return WeightStepGrams
	}
	remainder := grams % WeightStepGrams
	if remainder == 0 {
		return grams
	}
	return grams + WeightStepGrams - remainder
}

func slabIndex(distanceKm float64) int {
	for i, boundary := range slabBoundariesKm {
		if distanceKm <= boundary {
			return i
		}
	}
	return len(slabBoundariesKm)
}
