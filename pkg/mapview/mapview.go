// Package mapview models the dashboard map: at most one user-drawn rectangle
// and an ordered stack of remote raster tile overlays. Rendering happens in the
// browser; this package only tracks what should be drawn.
package mapview

import (
	"sync"

	"github.com/paulmach/orb/geojson"

	"github.com/example/go-maap/pkg/cmr"
)

// LayerHandle identifies a tile overlay added to the map.
type LayerHandle struct {
	ID          int    `json:"id"`
	AssetURL    string `json:"asset_url"`
	URLTemplate string `json:"url_template"`
}

// MapView is safe for concurrent use.
type MapView struct {
	tiles TileLayer

	mu     sync.RWMutex
	box    *cmr.BoundingBox
	layers []LayerHandle
	nextID int
}

// New creates an empty map using the given tile rendering parameters. Empty
// fields fall back to DefaultTileLayer.
func New(tiles TileLayer) *MapView {
	return &MapView{tiles: tiles.withDefaults(), nextID: 1}
}

// TileLayer returns the rendering parameters in use.
func (m *MapView) TileLayer() TileLayer {
	return m.tiles
}

// Draw replaces the drawn rectangle. Only one rectangle exists at a time.
func (m *MapView) Draw(box cmr.BoundingBox) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.box = &box
}

// Clear removes the drawn rectangle.
func (m *MapView) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.box = nil
}

// Drawn returns the drawn rectangle and whether one exists.
func (m *MapView) Drawn() (cmr.BoundingBox, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.box == nil {
		return cmr.BoundingBox{}, false
	}
	return *m.box, true
}

// CurrentBox returns the drawn rectangle, or the zero box when nothing is drawn.
func (m *MapView) CurrentBox() cmr.BoundingBox {
	box, _ := m.Drawn()
	return box
}

// RenderTileLayer adds an overlay for assetURL on top of existing layers.
// The URL is not validated; a bad asset only shows up as missing tiles.
func (m *MapView) RenderTileLayer(assetURL string) LayerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	layer := LayerHandle{
		ID:          m.nextID,
		AssetURL:    assetURL,
		URLTemplate: m.tiles.Template(assetURL),
	}
	m.nextID++
	m.layers = append(m.layers, layer)
	return layer
}

// Layers returns the overlays from bottom to top.
func (m *MapView) Layers() []LayerHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]LayerHandle, len(m.layers))
	copy(out, m.layers)
	return out
}

// RemoveLayer drops the overlay with the given id and reports whether it existed.
func (m *MapView) RemoveLayer(id int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, layer := range m.layers {
		if layer.ID == id {
			m.layers = append(m.layers[:i], m.layers[i+1:]...)
			return true
		}
	}
	return false
}

// Overlay returns the drawn rectangle as a GeoJSON feature collection. The
// collection is empty when nothing is drawn.
func (m *MapView) Overlay() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	box, ok := m.Drawn()
	if !ok {
		return fc
	}
	feature := geojson.NewFeature(box.Bound().ToPolygon())
	feature.Properties["kind"] = "selection"
	feature.Properties["bbox"] = box.String()
	return fc.Append(feature)
}
