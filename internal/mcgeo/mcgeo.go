// Public domain.

// Package mcgeo converts hypocenters to Earth-centred Cartesian vectors.
//
// A spherical Earth of mean radius is used.  Vectors are only compared with
// each other for candidate filtering and relative travel distances, so no
// ellipsoidal correction is applied.
package mcgeo

import (
	"math"

	"github.com/soniakeys/coord"
	"github.com/soniakeys/meeus/v3/globe"
	"github.com/soniakeys/unit"
)

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6371000.

// ToCartesian converts latitude and longitude in decimal degrees and depth
// in meters (positive down) to a vector in meters from the Earth's centre.
//
// Longitude is normalized into [0, 360) before projection.
func ToCartesian(lat, lon, depth float64) coord.Cart {
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	r := EarthRadius - depth
	sφ, cφ := unit.AngleFromDeg(lat).Sincos()
	sλ, cλ := unit.AngleFromDeg(lon).Sincos()
	return coord.Cart{
		X: r * cφ * cλ,
		Y: r * cφ * sλ,
		Z: r * sφ,
	}
}

// Distance returns the straight-line distance in meters between two vectors.
func Distance(a, b *coord.Cart) float64 {
	var d coord.Cart
	d.Sub(a, b)
	return math.Sqrt(d.Square())
}

// SurfaceDistance returns the distance in kilometers between two epicenters
// measured along the surface of the Earth76 ellipsoid.
//
// It is reported with confirmed matches as a diagnostic and plays no part
// in matching decisions.
func SurfaceDistance(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}
	return globe.Earth76.Distance(
		globe.Coord{Lat: unit.AngleFromDeg(lat1), Lon: unit.AngleFromDeg(lon1)},
		globe.Coord{Lat: unit.AngleFromDeg(lat2), Lon: unit.AngleFromDeg(lon2)},
	)
}
