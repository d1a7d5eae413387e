package overpass

import (
	"sort"

	"github.com/NERVsystems/overpass/pkg/geo"
)

// FilterWithin returns the elements whose coordinate lies within
// maxDistance meters of center. Elements without a coordinate are
// excluded.
func FilterWithin(elements []Element, maxDistance float64, center geo.Location) []Element {
	out := make([]Element, 0, len(elements))
	for _, e := range elements {
		loc, ok := e.Location()
		if !ok {
			continue
		}
		if geo.Distance(center, loc) <= maxDistance {
			out = append(out, e)
		}
	}
	return out
}

// SortByDistance returns the elements ordered by distance from center,
// closest first. Elements without a coordinate sort last. The input
// slice is not modified.
func SortByDistance(elements []Element, center geo.Location) []Element {
	out := make([]Element, len(elements))
	copy(out, elements)
	sort.SliceStable(out, func(i, j int) bool {
		li, iok := out[i].Location()
		lj, jok := out[j].Location()
		if !iok {
			return false
		}
		if !jok {
			return true
		}
		return geo.Distance(center, li) < geo.Distance(center, lj)
	})
	return out
}

// GroupByTag maps each present tag value to the elements carrying it.
// Elements missing the tag are omitted entirely.
func GroupByTag(elements []Element, tagKey string) map[string][]Element {
	groups := make(map[string][]Element)
	for _, e := range elements {
		value, ok := e.Tag(tagKey)
		if !ok {
			continue
		}
		groups[value] = append(groups[value], e)
	}
	return groups
}

// UniqueTagValues returns the deduplicated, lexicographically sorted
// values of the given tag across all elements.
func UniqueTagValues(elements []Element, tagKey string) []string {
	seen := make(map[string]struct{})
	for _, e := range elements {
		if value, ok := e.Tag(tagKey); ok {
			seen[value] = struct{}{}
		}
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// MatchingAllTags returns the elements carrying every key=value pair in
// tags.
func MatchingAllTags(elements []Element, tags map[string]string) []Element {
	out := make([]Element, 0, len(elements))
	for _, e := range elements {
		match := true
		for key, want := range tags {
			if got, ok := e.Tag(key); !ok || got != want {
				match = false
				break
			}
		}
		if match {
			out = append(out, e)
		}
	}
	return out
}

// MatchingAnyTagValue returns the elements whose value for key equals
// any of the candidate values.
func MatchingAnyTagValue(elements []Element, key string, candidates []string) []Element {
	out := make([]Element, 0, len(elements))
	for _, e := range elements {
		got, ok := e.Tag(key)
		if !ok {
			continue
		}
		for _, want := range candidates {
			if got == want {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
