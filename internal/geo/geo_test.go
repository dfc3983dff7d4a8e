package geo_test

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/bazaar-labs/bazaar-api/internal/geo"
)

func TestDistanceIdenticalPoints(t *testing.T) {
	t.Parallel()

	p := orb.Point{77.0, 28.0}
	d, err := geo.DistanceKm(p, p)
	require.NoError(t, err)
	require.Zero(t, d)
}

func TestDistanceSymmetric(t *testing.T) {
	t.Parallel()

	delhi := orb.Point{77.2090, 28.6139}
	mumbai := orb.Point{72.8777, 19.0760}

	ab, err := geo.DistanceKm(delhi, mumbai)
	require.NoError(t, err)
	ba, err := geo.DistanceKm(mumbai, delhi)
	require.NoError(t, err)
	require.Equal(t, ab, ba)

	// Delhi to Mumbai is roughly 1150 km as the crow flies.
	require.InDelta(t, 1150, ab, 20)
}

func TestDistanceNearAntipodalIsFinite(t *testing.T) {
	t.Parallel()

	// Half the Earth's circumference is the upper bound for any
	// great-circle distance; rounding noise near the antipode must not
	// produce NaN.
	a := orb.Point{77.2090, 28.6139}
	b := orb.Point{-102.7910, -28.6139}
	d, err := geo.DistanceKm(a, b)
	require.NoError(t, err)
	require.False(t, math.IsNaN(d))
	require.InDelta(t, math.Pi*geo.EarthRadiusKm, d, 1)
}

func TestDistanceRejectsUnset(t *testing.T) {
	t.Parallel()

	_, err := geo.DistanceKm(orb.Point{}, orb.Point{77.0, 28.0})
	require.ErrorIs(t, err, geo.ErrInvalidCoordinate)
	_, err = geo.DistanceKm(orb.Point{77.0, 28.0}, orb.Point{})
	require.ErrorIs(t, err, geo.ErrInvalidCoordinate)
}

func TestValidateRanges(t *testing.T) {
	t.Parallel()

	require.Error(t, geo.Validate(orb.Point{181, 10}))
	require.Error(t, geo.Validate(orb.Point{10, -91}))
	require.NoError(t, geo.Validate(orb.Point{77.0, 28.0}))
}
