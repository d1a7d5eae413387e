package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidCoordinates indicates a latitude or longitude outside its
	// valid range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrInvalidBoundingBox indicates logically inverted bounds
	// (south > north or west > east).
	ErrInvalidBoundingBox = errors.New("invalid bounding box")
)

// BoundingBox represents a validated rectangular geographic region.
// South <= North and West <= East always hold; values are never mutated
// after construction.
type BoundingBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// NewBoundingBox creates a bounding box from its four bounds.
// It returns ErrInvalidCoordinates if any bound is outside its valid range
// and ErrInvalidBoundingBox if the bounds are inverted.
func NewBoundingBox(south, west, north, east float64) (BoundingBox, error) {
	if south < -90 || south > 90 || north < -90 || north > 90 {
		return BoundingBox{}, fmt.Errorf("%w: latitude bounds %f,%f must be between -90 and 90",
			ErrInvalidCoordinates, south, north)
	}
	if west < -180 || west > 180 || east < -180 || east > 180 {
		return BoundingBox{}, fmt.Errorf("%w: longitude bounds %f,%f must be between -180 and 180",
			ErrInvalidCoordinates, west, east)
	}
	if south > north {
		return BoundingBox{}, fmt.Errorf("%w: south %f is greater than north %f",
			ErrInvalidBoundingBox, south, north)
	}
	if west > east {
		return BoundingBox{}, fmt.Errorf("%w: west %f is greater than east %f",
			ErrInvalidBoundingBox, west, east)
	}
	return BoundingBox{South: south, West: west, North: north, East: east}, nil
}

// BoundingBoxFromCenter creates a bounding box around a center point with
// the given radius in meters, using the flat 111km-per-degree approximation.
func BoundingBoxFromCenter(center Location, radiusMeters float64) (BoundingBox, error) {
	delta := radiusMeters / MetersPerDegree
	return NewBoundingBox(
		center.Latitude-delta,
		center.Longitude-delta,
		center.Latitude+delta,
		center.Longitude+delta,
	)
}

// BoundingBoxFromRegion creates a bounding box from a center point and
// full latitude/longitude spans in degrees.
func BoundingBoxFromRegion(center Location, latSpan, lonSpan float64) (BoundingBox, error) {
	return NewBoundingBox(
		center.Latitude-latSpan/2,
		center.Longitude-lonSpan/2,
		center.Latitude+latSpan/2,
		center.Longitude+lonSpan/2,
	)
}

// BoundingBoxFromRect creates a bounding box from its south-west origin
// and positive latitude/longitude deltas in degrees.
func BoundingBoxFromRect(origin Location, latDelta, lonDelta float64) (BoundingBox, error) {
	return NewBoundingBox(
		origin.Latitude,
		origin.Longitude,
		origin.Latitude+latDelta,
		origin.Longitude+lonDelta,
	)
}

// EncompassingBoundingBox creates the minimal bounding box containing all
// given points. It returns ErrInvalidCoordinates for empty input.
func EncompassingBoundingBox(points []Location) (BoundingBox, error) {
	if len(points) == 0 {
		return BoundingBox{}, fmt.Errorf("%w: no points given", ErrInvalidCoordinates)
	}
	south, north := points[0].Latitude, points[0].Latitude
	west, east := points[0].Longitude, points[0].Longitude
	for _, p := range points[1:] {
		if p.Latitude < south {
			south = p.Latitude
		}
		if p.Latitude > north {
			north = p.Latitude
		}
		if p.Longitude < west {
			west = p.Longitude
		}
		if p.Longitude > east {
			east = p.Longitude
		}
	}
	return NewBoundingBox(south, west, north, east)
}

// BoundingBoxForPoints creates a padded bounding box around the given
// points, growing each half-span by the padding factor (1.1 pads by 10%).
// It returns nil for empty input.
func BoundingBoxForPoints(points []Location, paddingFactor float64) *BoundingBox {
	if len(points) == 0 {
		return nil
	}
	base, err := EncompassingBoundingBox(points)
	if err != nil {
		return nil
	}
	center := base.Center()
	halfLat := (base.North - base.South) / 2 * paddingFactor
	halfLon := (base.East - base.West) / 2 * paddingFactor
	padded, err := NewBoundingBox(
		center.Latitude-halfLat,
		center.Longitude-halfLon,
		center.Latitude+halfLat,
		center.Longitude+halfLon,
	)
	if err != nil {
		// Padding pushed a bound out of range; fall back to the exact box.
		return &base
	}
	return &padded
}

// Contains reports whether the location lies within the box, inclusive on
// all edges.
func (b BoundingBox) Contains(loc Location) bool {
	return loc.Latitude >= b.South && loc.Latitude <= b.North &&
		loc.Longitude >= b.West && loc.Longitude <= b.East
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() Location {
	return Location{
		Latitude:  (b.South + b.North) / 2,
		Longitude: (b.West + b.East) / 2,
	}
}

// LatSpan returns the latitude extent of the box in degrees.
func (b BoundingBox) LatSpan() float64 { return b.North - b.South }

// LonSpan returns the longitude extent of the box in degrees.
func (b BoundingBox) LonSpan() float64 { return b.East - b.West }

// Area returns the approximate area of the box in square degrees.
func (b BoundingBox) Area() float64 { return b.LatSpan() * b.LonSpan() }

// Expanded returns a new box grown symmetrically by delta degrees on all
// four sides. The result is re-validated.
func (b BoundingBox) Expanded(deltaDegrees float64) (BoundingBox, error) {
	return NewBoundingBox(
		b.South-deltaDegrees,
		b.West-deltaDegrees,
		b.North+deltaDegrees,
		b.East+deltaDegrees,
	)
}

// Union returns the minimal box containing both boxes.
func (b BoundingBox) Union(other BoundingBox) (BoundingBox, error) {
	return NewBoundingBox(
		min(b.South, other.South),
		min(b.West, other.West),
		max(b.North, other.North),
		max(b.East, other.East),
	)
}

// Serialize renders the box in Overpass coordinate syntax:
// (south,west,north,east) with minimal float formatting.
func (b BoundingBox) Serialize() string {
	return "(" + formatCoord(b.South) + "," + formatCoord(b.West) + "," +
		formatCoord(b.North) + "," + formatCoord(b.East) + ")"
}

// String implements fmt.Stringer.
func (b BoundingBox) String() string { return b.Serialize() }

// ParseBoundingBox parses the Overpass coordinate syntax produced by
// Serialize back into a validated bounding box.
func ParseBoundingBox(s string) (BoundingBox, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "(")
	trimmed = strings.TrimSuffix(trimmed, ")")
	parts := strings.Split(trimmed, ",")
	if len(parts) != 4 {
		return BoundingBox{}, fmt.Errorf("%w: expected 4 bounds, got %d", ErrInvalidBoundingBox, len(parts))
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BoundingBox{}, fmt.Errorf("%w: bound %q is not a number", ErrInvalidBoundingBox, p)
		}
		vals[i] = v
	}
	return NewBoundingBox(vals[0], vals[1], vals[2], vals[3])
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
