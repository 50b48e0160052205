package cmr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// BoundingBox is a rectangular geographic extent in degrees. The zero value is
// the zero box used when nothing has been drawn.
//
// Search operations use the box exactly as given: coordinates are never
// reordered, clamped or otherwise normalized.
type BoundingBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// NewBoundingBox builds a box from its four coordinates in query order.
func NewBoundingBox(minLon, minLat, maxLon, maxLat float64) BoundingBox {
	return BoundingBox{MinLon: minLon, MinLat: minLat, MaxLon: maxLon, MaxLat: maxLat}
}

// String renders the box as minLon,minLat,maxLon,maxLat.
func (b BoundingBox) String() string {
	return strings.Join([]string{
		formatCoord(b.MinLon),
		formatCoord(b.MinLat),
		formatCoord(b.MaxLon),
		formatCoord(b.MaxLat),
	}, ",")
}

// IsZero reports whether all four coordinates are zero.
func (b BoundingBox) IsZero() bool {
	return b == BoundingBox{}
}

// Values returns the coordinates in minLon,minLat,maxLon,maxLat order.
func (b BoundingBox) Values() [4]float64 {
	return [4]float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat}
}

// Validate reports boxes whose corners are out of order or outside the
// longitude/latitude ranges. Searches do not call it.
func (b BoundingBox) Validate() error {
	var problems []string
	if b.MinLon > b.MaxLon {
		problems = append(problems, "min longitude exceeds max longitude")
	}
	if b.MinLat > b.MaxLat {
		problems = append(problems, "min latitude exceeds max latitude")
	}
	for _, lon := range []float64{b.MinLon, b.MaxLon} {
		if lon < -180 || lon > 180 {
			problems = append(problems, fmt.Sprintf("longitude %s out of range", formatCoord(lon)))
		}
	}
	for _, lat := range []float64{b.MinLat, b.MaxLat} {
		if lat < -90 || lat > 90 {
			problems = append(problems, fmt.Sprintf("latitude %s out of range", formatCoord(lat)))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("cmr: invalid bounding box %s: %s", b, strings.Join(problems, "; "))
	}
	return nil
}

// Bound converts the box to an orb.Bound with the same corners.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

// FromBound converts an orb.Bound into a BoundingBox.
func FromBound(bound orb.Bound) BoundingBox {
	return BoundingBox{
		MinLon: bound.Min.Lon(),
		MinLat: bound.Min.Lat(),
		MaxLon: bound.Max.Lon(),
		MaxLat: bound.Max.Lat(),
	}
}

// ParseBoundingBox parses "minLon,minLat,maxLon,maxLat".
func ParseBoundingBox(value string) (BoundingBox, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return BoundingBox{}, fmt.Errorf("cmr: bounding box %q must have 4 comma separated values", value)
	}
	var coords [4]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return BoundingBox{}, fmt.Errorf("cmr: bounding box %q: %w", value, err)
		}
		coords[i] = v
	}
	return NewBoundingBox(coords[0], coords[1], coords[2], coords[3]), nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
