package mapview

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/example/go-maap/pkg/cmr"
)

const (
	// DefaultTileHost is the MAAP dynamic tiler.
	DefaultTileHost     = "https://titiler.maap-project.org"
	DefaultRescale      = "0,70"
	DefaultColormapName = "schwarzwald"
	DefaultColorFormula = "gamma r 1.05"

	// MaxCoverTiles bounds TilesCovering so a large box at a deep zoom does not
	// enumerate millions of tiles.
	MaxCoverTiles = 4096

	// MaxZoom is the deepest zoom level TilesCovering accepts.
	MaxZoom = 24

	// maxMercatorLat is the latitude limit of web mercator tiles.
	maxMercatorLat = 85.05112877980659
)

// ErrTooManyTiles is returned when a cover would exceed MaxCoverTiles.
var ErrTooManyTiles = errors.New("mapview: too many tiles")

// TileLayer holds the fixed rendering parameters of the remote tile server.
type TileLayer struct {
	Host         string
	Rescale      string
	ColormapName string
	ColorFormula string
}

// DefaultTileLayer returns the rendering parameters used by the dashboard.
func DefaultTileLayer() TileLayer {
	return TileLayer{
		Host:         DefaultTileHost,
		Rescale:      DefaultRescale,
		ColormapName: DefaultColormapName,
		ColorFormula: DefaultColorFormula,
	}
}

func (t TileLayer) withDefaults() TileLayer {
	d := DefaultTileLayer()
	if t.Host == "" {
		t.Host = d.Host
	}
	if t.Rescale == "" {
		t.Rescale = d.Rescale
	}
	if t.ColormapName == "" {
		t.ColormapName = d.ColormapName
	}
	if t.ColorFormula == "" {
		t.ColorFormula = d.ColorFormula
	}
	return t
}

// Template returns the tile URL template for assetURL. The {z}, {x} and {y}
// placeholders are left for the map client to fill in. assetURL is not checked.
func (t TileLayer) Template(assetURL string) string {
	t = t.withDefaults()
	var b strings.Builder
	b.WriteString(strings.TrimRight(t.Host, "/"))
	b.WriteString("/cog/tiles/{z}/{x}/{y}.png?url=")
	b.WriteString(url.QueryEscape(assetURL))
	b.WriteString("&rescale=")
	b.WriteString(strings.ReplaceAll(url.QueryEscape(t.Rescale), "%2C", ","))
	b.WriteString("&colormap_name=")
	b.WriteString(url.QueryEscape(t.ColormapName))
	b.WriteString("&color_formula=")
	b.WriteString(url.QueryEscape(t.ColorFormula))
	return b.String()
}

// TileURL expands a template for a single tile.
func TileURL(template string, tile maptile.Tile) string {
	return strings.NewReplacer(
		"{z}", strconv.FormatUint(uint64(tile.Z), 10),
		"{x}", strconv.FormatUint(uint64(tile.X), 10),
		"{y}", strconv.FormatUint(uint64(tile.Y), 10),
	).Replace(template)
}

// TilesCovering lists the tiles at zoom z that intersect box, row by row from
// the north-west corner. Corners are sorted and latitudes clamped to the
// mercator range first; the search path never does this.
func TilesCovering(box cmr.BoundingBox, z maptile.Zoom) ([]maptile.Tile, error) {
	if z > MaxZoom {
		return nil, fmt.Errorf("mapview: zoom %d out of range", z)
	}
	west, east := math.Min(box.MinLon, box.MaxLon), math.Max(box.MinLon, box.MaxLon)
	south, north := math.Min(box.MinLat, box.MaxLat), math.Max(box.MinLat, box.MaxLat)
	west, east = clamp(west, -180, 180), clamp(east, -180, 180)
	south, north = clamp(south, -maxMercatorLat, maxMercatorLat), clamp(north, -maxMercatorLat, maxMercatorLat)

	maxIndex := uint32(1)<<uint32(z) - 1
	nw := maptile.At(orb.Point{west, north}, z)
	se := maptile.At(orb.Point{east, south}, z)
	minX, maxX := min(nw.X, maxIndex), min(se.X, maxIndex)
	minY, maxY := min(nw.Y, maxIndex), min(se.Y, maxIndex)

	count := uint64(maxX-minX+1) * uint64(maxY-minY+1)
	if count > MaxCoverTiles {
		return nil, fmt.Errorf("%w: %d tiles at zoom %d", ErrTooManyTiles, count, z)
	}

	tiles := make([]maptile.Tile, 0, count)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			tiles = append(tiles, maptile.New(x, y, z))
		}
	}
	return tiles, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
