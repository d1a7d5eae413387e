// Package geo provides geographic primitives: locations, bounding boxes
// and great-circle math used throughout the Overpass client.
package geo

import (
	"fmt"
	"math"
)

const (
	// EarthRadius is the mean Earth radius in meters used by the
	// spherical formulas below. Accuracy is approximate, not ellipsoidal.
	EarthRadius = 6371000.0

	// MetersPerDegree approximates the meridional length of one degree
	// of latitude in meters, used to convert radii to angular spans.
	MetersPerDegree = 111000.0
)

// Location represents a geographic coordinate in decimal degrees (WGS84).
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ValidateCoords validates latitude and longitude values.
// Returns an error if the coordinates are invalid.
func ValidateCoords(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("invalid latitude: %f (must be between -90 and 90)", lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("invalid longitude: %f (must be between -180 and 180)", lon)
	}
	return nil
}

// Validate checks that the location is within valid coordinate ranges.
func (l Location) Validate() error {
	return ValidateCoords(l.Latitude, l.Longitude)
}

// HaversineDistance calculates the great-circle distance in meters
// between two points using the Haversine formula.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// Distance returns the great-circle distance in meters between two locations.
func Distance(from, to Location) float64 {
	return HaversineDistance(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
}

// Bearing returns the initial bearing in degrees from one location to
// another, normalized to [0, 360).
func Bearing(from, to Location) float64 {
	phi1 := from.Latitude * math.Pi / 180
	phi2 := to.Latitude * math.Pi / 180
	dLambda := (to.Longitude - from.Longitude) * math.Pi / 180

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) -
		math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)

	theta := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(theta+360, 360)
}

// Destination computes the point reached by traveling the given distance
// in meters from a starting location along an initial bearing in degrees.
// To first order it is the inverse of Distance and Bearing.
func Destination(from Location, distanceMeters, bearingDegrees float64) Location {
	phi1 := from.Latitude * math.Pi / 180
	lambda1 := from.Longitude * math.Pi / 180
	theta := bearingDegrees * math.Pi / 180
	delta := distanceMeters / EarthRadius

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) +
		math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2))

	lon := lambda2 * 180 / math.Pi
	// Normalize longitude to [-180, 180]
	lon = math.Mod(lon+540, 360) - 180

	return Location{
		Latitude:  phi2 * 180 / math.Pi,
		Longitude: lon,
	}
}
