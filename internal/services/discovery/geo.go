package discovery

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

const EarthRadiusKM = 6371.0

// HaversineKM is the great-circle distance between two lat/lon points in km.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKM * c
}

func distanceKM(from, to orb.Point) float64 {
	return HaversineKM(from.Lat(), from.Lon(), to.Lat(), to.Lon())
}

// searchBound returns a box that contains every point within radiusKM of
// center. The box is padded slightly so exact haversine filtering decides
// the edge. filterLon is false when the box wraps the antimeridian or
// touches a pole, in which case only the latitude band is usable.
func searchBound(center orb.Point, radiusKM float64) (orb.Bound, bool) {
	padded := radiusKM * 1.01
	latDelta := toDeg(padded / EarthRadiusKM)

	minLat := center.Lat() - latDelta
	maxLat := center.Lat() + latDelta
	if minLat <= -90 || maxLat >= 90 {
		return orb.Bound{
			Min: orb.Point{-180, math.Max(minLat, -90)},
			Max: orb.Point{180, math.Min(maxLat, 90)},
		}, false
	}

	cosLat := math.Min(math.Cos(toRad(minLat)), math.Cos(toRad(maxLat)))
	lonDelta := toDeg(padded / (EarthRadiusKM * cosLat))
	minLon := center.Lon() - lonDelta
	maxLon := center.Lon() + lonDelta
	if lonDelta >= 180 || minLon < -180 || maxLon > 180 {
		return orb.Bound{
			Min: orb.Point{-180, minLat},
			Max: orb.Point{180, maxLat},
		}, false
	}

	return orb.Bound{
		Min: orb.Point{minLon, minLat},
		Max: orb.Point{maxLon, maxLat},
	}, true
}

func validateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return fmt.Errorf("coordinates are nan: %w", ErrValidation)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude out of range: %w", ErrValidation)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("longitude out of range: %w", ErrValidation)
	}
	return nil
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
