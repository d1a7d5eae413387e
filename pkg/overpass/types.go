package overpass

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/NERVsystems/overpass/pkg/geo"
)

// ElementType identifies the kind of an OpenStreetMap element.
type ElementType string

// Possible element types.
const (
	ElementTypeNode     ElementType = "node"
	ElementTypeWay      ElementType = "way"
	ElementTypeRelation ElementType = "relation"
)

// Member references another element from a way or relation.
type Member struct {
	Type ElementType `json:"type"`
	Ref  int64       `json:"ref"`
	Role string      `json:"role,omitempty"`
}

// Point is a single lat/lon geometry vertex.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Element represents one parsed OpenStreetMap entity. Elements are
// immutable once decoded; accessors derive values without mutation.
type Element struct {
	ID       int64             `json:"id"`
	Type     ElementType       `json:"type"`
	Lat      *float64          `json:"lat,omitempty"`
	Lon      *float64          `json:"lon,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
	Members  []Member          `json:"members,omitempty"`
	Nodes    []int64           `json:"nodes,omitempty"`
	Geometry []Point           `json:"geometry,omitempty"`
}

// Location returns the element's coordinate, if it has one. Skeleton
// nodes carry a position without tags; ways and relations usually have
// neither lat nor lon.
func (e Element) Location() (geo.Location, bool) {
	if e.Lat == nil || e.Lon == nil {
		return geo.Location{}, false
	}
	return geo.Location{Latitude: *e.Lat, Longitude: *e.Lon}, true
}

// Tag returns the value of a tag and whether it is present.
func (e Element) Tag(key string) (string, bool) {
	v, ok := e.Tags[key]
	return v, ok
}

// Name returns the element's name tag, or an empty string.
func (e Element) Name() string { return e.Tags["name"] }

// Amenity returns the element's amenity tag, or an empty string.
func (e Element) Amenity() string { return e.Tags["amenity"] }

// Address holds the structured sub-fields parsed from addr:* tags.
type Address struct {
	HouseNumber string `json:"house_number,omitempty"`
	Street      string `json:"street,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
	Country     string `json:"country,omitempty"`
}

// DisplayString joins the present address fields into a single line,
// omitting absent fields.
func (a Address) DisplayString() string {
	var parts []string
	if a.HouseNumber != "" || a.Street != "" {
		parts = append(parts, strings.TrimSpace(a.HouseNumber+" "+a.Street))
	}
	for _, f := range []string{a.City, a.State, a.Postcode, a.Country} {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, ", ")
}

// Address collects the element's addr:* tags into a structured address.
// It returns false if the element carries no addr:* tags at all.
func (e Element) Address() (Address, bool) {
	var addr Address
	found := false
	for key, value := range e.Tags {
		sub, ok := strings.CutPrefix(key, "addr:")
		if !ok {
			continue
		}
		found = true
		switch sub {
		case "housenumber":
			addr.HouseNumber = value
		case "street":
			addr.Street = value
		case "city":
			addr.City = value
		case "state":
			addr.State = value
		case "postcode":
			addr.Postcode = value
		case "country":
			addr.Country = value
		}
	}
	return addr, found
}

// Version is the API version reported by the server. Servers emit it as
// a string, an integer or a float; floats with no fractional part render
// as integers ("0.6" stays "0.6", 1.0 becomes "1").
type Version string

// UnmarshalJSON implements json.Unmarshaler.
func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Version(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("version is neither string nor number: %s", data)
	}
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		*v = Version(strconv.FormatInt(int64(f), 10))
		return nil
	}
	*v = Version(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

// OSM3S holds the optional osm3s metadata block of a response.
type OSM3S struct {
	TimestampOSMBase string `json:"timestamp_osm_base,omitempty"`
	Copyright        string `json:"copyright,omitempty"`
}

// Response is a parsed Overpass API response. A response with zero
// elements and no remark is a valid "no results" response, not an error.
type Response struct {
	Elements  []Element `json:"elements"`
	Remark    string    `json:"remark,omitempty"`
	Copyright string    `json:"copyright,omitempty"`
	Generator string    `json:"generator,omitempty"`
	Version   Version   `json:"version,omitempty"`
	OSM3S     *OSM3S    `json:"osm3s,omitempty"`
}
