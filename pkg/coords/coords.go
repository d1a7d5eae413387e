// Package coords parses human-entered coordinates into decimal degrees.
//
// Supported formats:
//   - Decimal degrees: "37.7749, -122.4194" or "37.7749 -122.4194"
//   - DMS: Degrees Minutes Seconds (e.g. `37°46'30"N 122°25'10"W`)
package coords

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/NERVsystems/overpass/pkg/geo"
)

// Format represents a coordinate format type
type Format int

const (
	FormatUnknown Format = iota
	FormatDecimal
	FormatDMS
)

// String returns the format name
func (f Format) String() string {
	switch f {
	case FormatDecimal:
		return "decimal"
	case FormatDMS:
		return "dms"
	default:
		return "unknown"
	}
}

// ParseResult contains the parsed coordinate and metadata
type ParseResult struct {
	Location geo.Location // Converted lat/lon
	Format   Format       // Detected format
	Original string       // Original input string
}

var (
	// DMS: Degrees Minutes Seconds with direction
	// Examples: `37°46'30"N 122°25'10"W`, "37d46m30sN 122d25m10sW"
	dmsRegex = regexp.MustCompile(`(?i)^(-?\d+)[°d\s]+(\d+)[′'m\s]+(\d+(?:\.\d+)?)[″"s]?\s*([NS])[\s,]+(-?\d+)[°d\s]+(\d+)[′'m\s]+(\d+(?:\.\d+)?)[″"s]?\s*([EW])$`)

	// Decimal degrees: lat, lon or lat lon
	decimalRegex = regexp.MustCompile(`^(-?\d+\.?\d*)[,\s]+(-?\d+\.?\d*)$`)
)

// Parse attempts to detect the coordinate format and convert to decimal
// degrees. It returns an error if the input cannot be parsed as any known
// format.
func Parse(input string) (*ParseResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty coordinate string")
	}

	// DMS first (more specific pattern)
	if result, err := ParseDMS(input); err == nil {
		return result, nil
	}

	if result, err := ParseDecimal(input); err == nil {
		return result, nil
	}

	return nil, fmt.Errorf("unrecognized coordinate format: %q", input)
}

// ParseDMS parses a Degrees Minutes Seconds coordinate string.
func ParseDMS(input string) (*ParseResult, error) {
	input = strings.TrimSpace(input)

	matches := dmsRegex.FindStringSubmatch(input)
	if matches == nil {
		return nil, fmt.Errorf("invalid DMS format: %q", input)
	}

	latDeg, _ := strconv.ParseFloat(matches[1], 64)
	latMin, _ := strconv.ParseFloat(matches[2], 64)
	latSec, _ := strconv.ParseFloat(matches[3], 64)
	latDir := strings.ToUpper(matches[4])

	lonDeg, _ := strconv.ParseFloat(matches[5], 64)
	lonMin, _ := strconv.ParseFloat(matches[6], 64)
	lonSec, _ := strconv.ParseFloat(matches[7], 64)
	lonDir := strings.ToUpper(matches[8])

	if latDeg > 90 || latMin >= 60 || latSec >= 60 {
		return nil, fmt.Errorf("invalid latitude values: %s", input)
	}
	if lonDeg > 180 || lonMin >= 60 || lonSec >= 60 {
		return nil, fmt.Errorf("invalid longitude values: %s", input)
	}

	lat := latDeg + latMin/60 + latSec/3600
	lon := lonDeg + lonMin/60 + lonSec/3600

	if latDir == "S" {
		lat = -lat
	}
	if lonDir == "W" {
		lon = -lon
	}

	return &ParseResult{
		Location: geo.Location{Latitude: lat, Longitude: lon},
		Format:   FormatDMS,
		Original: input,
	}, nil
}

// ParseDecimal parses a decimal degrees coordinate string.
func ParseDecimal(input string) (*ParseResult, error) {
	input = strings.TrimSpace(input)

	matches := decimalRegex.FindStringSubmatch(input)
	if matches == nil {
		return nil, fmt.Errorf("invalid decimal format: %q", input)
	}

	lat, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude: %s", matches[1])
	}

	lon, err := strconv.ParseFloat(matches[2], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude: %s", matches[2])
	}

	if err := geo.ValidateCoords(lat, lon); err != nil {
		return nil, err
	}

	return &ParseResult{
		Location: geo.Location{Latitude: lat, Longitude: lon},
		Format:   FormatDecimal,
		Original: input,
	}, nil
}
