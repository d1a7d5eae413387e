package overpass

import (
	"reflect"
	"testing"

	"github.com/NERVsystems/overpass/pkg/geo"
)

func nodeAt(id int64, lat, lon float64, tags map[string]string) Element {
	return Element{ID: id, Type: ElementTypeNode, Lat: &lat, Lon: &lon, Tags: tags}
}

func TestGroupByTag(t *testing.T) {
	elements := []Element{
		nodeAt(1, 0, 0, map[string]string{"amenity": "cafe"}),
		{ID: 2, Type: ElementTypeNode}, // no tags at all
	}

	groups := GroupByTag(elements, "amenity")
	if len(groups) != 1 {
		t.Fatalf("len(groups) = %d, want 1", len(groups))
	}
	cafe, ok := groups["cafe"]
	if !ok || len(cafe) != 1 || cafe[0].ID != 1 {
		t.Errorf("groups[cafe] = %+v", cafe)
	}
}

func TestGroupByTagMultipleValues(t *testing.T) {
	elements := []Element{
		nodeAt(1, 0, 0, map[string]string{"amenity": "cafe"}),
		nodeAt(2, 0, 0, map[string]string{"amenity": "cafe"}),
		nodeAt(3, 0, 0, map[string]string{"amenity": "restaurant"}),
		nodeAt(4, 0, 0, map[string]string{"shop": "bakery"}),
	}

	groups := GroupByTag(elements, "amenity")
	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}
	if len(groups["cafe"]) != 2 || len(groups["restaurant"]) != 1 {
		t.Errorf("groups = %+v", groups)
	}
}

func TestFilterWithin(t *testing.T) {
	center := geo.Location{Latitude: 0, Longitude: 0}
	elements := []Element{
		nodeAt(1, 0.001, 0, nil),             // ~111m away
		nodeAt(2, 0.1, 0, nil),               // ~11km away
		{ID: 3, Type: ElementTypeWay},        // no coordinate
	}

	got := FilterWithin(elements, 1000, center)
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("FilterWithin = %+v", got)
	}
}

func TestSortByDistance(t *testing.T) {
	center := geo.Location{Latitude: 0, Longitude: 0}
	elements := []Element{
		{ID: 4, Type: ElementTypeWay}, // no coordinate, sorts last
		nodeAt(3, 0.3, 0, nil),
		nodeAt(1, 0.1, 0, nil),
		nodeAt(2, 0.2, 0, nil),
	}

	sorted := SortByDistance(elements, center)

	var ids []int64
	for _, e := range sorted {
		ids = append(ids, e.ID)
	}
	if want := []int64{1, 2, 3, 4}; !reflect.DeepEqual(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}

	// Input must not be reordered.
	if elements[0].ID != 4 {
		t.Error("SortByDistance mutated its input")
	}
}

func TestUniqueTagValues(t *testing.T) {
	elements := []Element{
		nodeAt(1, 0, 0, map[string]string{"cuisine": "thai"}),
		nodeAt(2, 0, 0, map[string]string{"cuisine": "italian"}),
		nodeAt(3, 0, 0, map[string]string{"cuisine": "thai"}),
		nodeAt(4, 0, 0, nil),
	}

	got := UniqueTagValues(elements, "cuisine")
	if want := []string{"italian", "thai"}; !reflect.DeepEqual(got, want) {
		t.Errorf("UniqueTagValues = %v, want %v", got, want)
	}

	if got := UniqueTagValues(nil, "cuisine"); len(got) != 0 {
		t.Errorf("UniqueTagValues(nil) = %v", got)
	}
}

func TestMatchingAllTags(t *testing.T) {
	elements := []Element{
		nodeAt(1, 0, 0, map[string]string{"amenity": "restaurant", "cuisine": "italian"}),
		nodeAt(2, 0, 0, map[string]string{"amenity": "restaurant"}),
		nodeAt(3, 0, 0, map[string]string{"cuisine": "italian"}),
	}

	got := MatchingAllTags(elements, map[string]string{
		"amenity": "restaurant",
		"cuisine": "italian",
	})
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("MatchingAllTags = %+v", got)
	}

	// Empty tag map matches everything.
	if got := MatchingAllTags(elements, nil); len(got) != 3 {
		t.Errorf("MatchingAllTags(nil tags) = %d elements, want 3", len(got))
	}
}

func TestMatchingAnyTagValue(t *testing.T) {
	elements := []Element{
		nodeAt(1, 0, 0, map[string]string{"amenity": "cafe"}),
		nodeAt(2, 0, 0, map[string]string{"amenity": "bar"}),
		nodeAt(3, 0, 0, map[string]string{"amenity": "restaurant"}),
		nodeAt(4, 0, 0, nil),
	}

	got := MatchingAnyTagValue(elements, "amenity", []string{"cafe", "bar"})
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Errorf("MatchingAnyTagValue = %+v", got)
	}
}
