package overpass

import (
	"fmt"
	"strings"
	"time"

	"github.com/NERVsystems/overpass/pkg/geo"
)

// Query construction defaults.
const (
	DefaultOutputFormat  = "json"
	DefaultServerTimeout = 20               // seconds, embedded in the query text
	DefaultClientTimeout = 22 * time.Second // must exceed the server timeout
)

// Tag is a single key/value tag clause. An empty Value matches key
// presence alone, a distinct query shape from an exact-value match.
type Tag struct {
	Key   string
	Value string
}

// Filter selects one element kind with an ordered list of tag clauses.
// Keys are unique; adding a key twice replaces the earlier value in place.
type Filter struct {
	Type ElementType
	tags []Tag
}

// NewFilter creates a filter for the given element type.
func NewFilter(t ElementType) Filter {
	return Filter{Type: t}
}

// WithTag returns a copy of the filter with an exact key=value clause.
func (f Filter) WithTag(key, value string) Filter {
	return f.withClause(Tag{Key: key, Value: value})
}

// WithKey returns a copy of the filter with a key-presence clause.
func (f Filter) WithKey(key string) Filter {
	return f.withClause(Tag{Key: key})
}

func (f Filter) withClause(clause Tag) Filter {
	tags := make([]Tag, len(f.tags), len(f.tags)+1)
	copy(tags, f.tags)
	for i := range tags {
		if tags[i].Key == clause.Key {
			tags[i] = clause
			return Filter{Type: f.Type, tags: tags}
		}
	}
	return Filter{Type: f.Type, tags: append(tags, clause)}
}

// Tags returns the filter's tag clauses in insertion order.
func (f Filter) Tags() []Tag {
	out := make([]Tag, len(f.tags))
	copy(out, f.tags)
	return out
}

// serialize renders the filter fragment for one bounding box:
// <kind><tagClauses><bbox>.
func (f Filter) serialize(bbox geo.BoundingBox) string {
	var sb strings.Builder
	sb.WriteString(string(f.Type))
	for _, tag := range f.tags {
		if tag.Value == "" {
			sb.WriteString(fmt.Sprintf("[%q]", tag.Key))
		} else {
			sb.WriteString(fmt.Sprintf("[%q=%q]", tag.Key, tag.Value))
		}
	}
	sb.WriteString(bbox.Serialize())
	return sb.String()
}

// AmenityFilter selects nodes with the given amenity tag.
func AmenityFilter(value string) Filter {
	return NewFilter(ElementTypeNode).WithTag("amenity", value)
}

// ShopFilter selects nodes with the given shop type. An empty shopType
// matches any shop by key presence alone.
func ShopFilter(shopType string) Filter {
	if shopType == "" {
		return NewFilter(ElementTypeNode).WithKey("shop")
	}
	return NewFilter(ElementTypeNode).WithTag("shop", shopType)
}

// Query holds the raw Overpass QL body and the fully formatted text with
// output-format and timeout directives prepended. It is built once and
// never mutated; the formatted text is the cache key.
type Query struct {
	body          string
	formatted     string
	bbox          *geo.BoundingBox
	filters       []Filter
	clientTimeout time.Duration
}

// Body returns the raw query-language body.
func (q Query) Body() string { return q.body }

// FormattedText returns the complete query text sent to the server. It is
// the cache key: two logically different queries never share it.
func (q Query) FormattedText() string { return q.formatted }

// BoundingBox returns the originating bounding box, if any.
func (q Query) BoundingBox() *geo.BoundingBox { return q.bbox }

// Filters returns the originating element filters, if any.
func (q Query) Filters() []Filter { return q.filters }

// ClientTimeout returns the client-side deadline for this query.
func (q Query) ClientTimeout() time.Duration { return q.clientTimeout }

// QueryBuilder provides a fluent interface for building Overpass queries.
type QueryBuilder struct {
	outFormat     string
	timeout       int
	clientTimeout time.Duration
	bbox          *geo.BoundingBox
	filters       []Filter
	rawBody       string
}

// NewQueryBuilder creates a builder with default settings.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{
		outFormat:     DefaultOutputFormat,
		timeout:       DefaultServerTimeout,
		clientTimeout: DefaultClientTimeout,
	}
}

// WithOutputFormat sets the output format: json, xml or csv.
func (b *QueryBuilder) WithOutputFormat(format string) *QueryBuilder {
	b.outFormat = format
	return b
}

// WithTimeout sets the server-side query timeout in seconds.
func (b *QueryBuilder) WithTimeout(seconds int) *QueryBuilder {
	b.timeout = seconds
	return b
}

// WithClientTimeout sets the client-side deadline. It must exceed the
// server timeout so the server can respond before the client gives up.
func (b *QueryBuilder) WithClientTimeout(d time.Duration) *QueryBuilder {
	b.clientTimeout = d
	return b
}

// WithBoundingBox scopes all element filters to the given box.
func (b *QueryBuilder) WithBoundingBox(bbox geo.BoundingBox) *QueryBuilder {
	b.bbox = &bbox
	return b
}

// WithFilter adds an element filter.
func (b *QueryBuilder) WithFilter(filters ...Filter) *QueryBuilder {
	b.filters = append(b.filters, filters...)
	return b
}

// WithRawBody uses a pre-written query body instead of generated filters.
func (b *QueryBuilder) WithRawBody(body string) *QueryBuilder {
	b.rawBody = body
	return b
}

// Build validates the configuration and produces an immutable Query.
func (b *QueryBuilder) Build() (Query, error) {
	switch b.outFormat {
	case "json", "xml", "csv":
	default:
		return Query{}, NewError(ErrQueryError,
			fmt.Sprintf("unsupported output format %q (must be json, xml or csv)", b.outFormat))
	}
	if b.timeout <= 0 {
		return Query{}, NewError(ErrQueryError,
			fmt.Sprintf("server timeout must be positive, got %d", b.timeout))
	}
	if b.clientTimeout <= time.Duration(b.timeout)*time.Second {
		return Query{}, NewError(ErrQueryError,
			fmt.Sprintf("client timeout %s must exceed server timeout %ds", b.clientTimeout, b.timeout))
	}

	body := b.rawBody
	if body == "" {
		if len(b.filters) == 0 {
			return Query{}, NewError(ErrQueryError, "query needs at least one filter or a raw body")
		}
		if b.bbox == nil {
			return Query{}, NewError(ErrQueryError, "filter queries need a bounding box")
		}
		var sb strings.Builder
		sb.WriteString("(")
		for _, f := range b.filters {
			sb.WriteString(f.serialize(*b.bbox))
			sb.WriteString(";")
		}
		sb.WriteString(");out body;>;out skel qt;")
		body = sb.String()
	}

	formatted := fmt.Sprintf("[out:%s][timeout:%d];%s", b.outFormat, b.timeout, body)

	filters := make([]Filter, len(b.filters))
	copy(filters, b.filters)

	return Query{
		body:          body,
		formatted:     formatted,
		bbox:          b.bbox,
		filters:       filters,
		clientTimeout: b.clientTimeout,
	}, nil
}

// NewQuery builds a query from a bounding box and element filters using
// default format and timeouts.
func NewQuery(bbox geo.BoundingBox, filters ...Filter) (Query, error) {
	return NewQueryBuilder().WithBoundingBox(bbox).WithFilter(filters...).Build()
}

// NewQueryFromBounds builds a query directly from bounding box bounds
// and element filters. Bound validation failures surface as coded
// errors: INVALID_COORDINATES for out-of-range bounds,
// INVALID_BOUNDING_BOX for inverted bounds.
func NewQueryFromBounds(south, west, north, east float64, filters ...Filter) (Query, error) {
	bbox, err := geo.NewBoundingBox(south, west, north, east)
	if err != nil {
		return Query{}, wrapGeoError(err)
	}
	return NewQuery(bbox, filters...)
}

// NewRawQuery builds a query from a pre-written Overpass QL body.
func NewRawQuery(body string) (Query, error) {
	return NewQueryBuilder().WithRawBody(body).Build()
}

// Preset queries for common searches. Each is pure sugar over NewQuery.

// ToiletsQuery finds toilet amenities within the box.
func ToiletsQuery(bbox geo.BoundingBox) (Query, error) {
	return NewQuery(bbox, AmenityFilter("toilets"))
}

// RestaurantsQuery finds restaurants within the box.
func RestaurantsQuery(bbox geo.BoundingBox) (Query, error) {
	return NewQuery(bbox, AmenityFilter("restaurant"))
}

// CafesQuery finds cafes within the box.
func CafesQuery(bbox geo.BoundingBox) (Query, error) {
	return NewQuery(bbox, AmenityFilter("cafe"))
}

// HotelsQuery finds hotels within the box.
func HotelsQuery(bbox geo.BoundingBox) (Query, error) {
	return NewQuery(bbox, NewFilter(ElementTypeNode).WithTag("tourism", "hotel"))
}

// ShopsQuery finds shops within the box. An empty shopType matches any
// shop.
func ShopsQuery(bbox geo.BoundingBox, shopType string) (Query, error) {
	return NewQuery(bbox, ShopFilter(shopType))
}

// ParksQuery finds parks within the box.
func ParksQuery(bbox geo.BoundingBox) (Query, error) {
	return NewQuery(bbox, NewFilter(ElementTypeWay).WithTag("leisure", "park"))
}
