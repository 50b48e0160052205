package dashboard

import (
	"slices"

	"github.com/example/go-maap/pkg/cmr"
	"github.com/example/go-maap/pkg/mapview"
)

// State is the position of the dashboard in the search workflow.
type State int

const (
	StateLoading State = iota
	StateIdle
	StateGeometryCaptured
	StateCollectionListed
	StateGranuleListed
	StateLayerRendered
	StateLoadFailed
)

var stateNames = map[State]string{
	StateLoading:          "loading",
	StateIdle:             "idle",
	StateGeometryCaptured: "geometry_captured",
	StateCollectionListed: "collection_listed",
	StateGranuleListed:    "granule_listed",
	StateLayerRendered:    "layer_rendered",
	StateLoadFailed:       "load_failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CatalogStatus tracks the collection list fetch independently of State, since
// the user may capture geometry before the list arrives.
type CatalogStatus int

const (
	CatalogPending CatalogStatus = iota
	CatalogReady
	CatalogFailed
)

func (c CatalogStatus) String() string {
	switch c {
	case CatalogPending:
		return "pending"
	case CatalogReady:
		return "ready"
	case CatalogFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (c CatalogStatus) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Snapshot is an immutable view of the dashboard. Every successful action
// produces a new Snapshot with a higher Revision.
type Snapshot struct {
	State    State         `json:"state"`
	Revision uint64        `json:"revision"`
	Catalog  CatalogStatus `json:"catalog"`
	// LoadError holds the message of the last failed collection load.
	LoadError string `json:"load_error,omitempty"`

	Box              cmr.BoundingBox `json:"box"`
	GeometryCaptured bool            `json:"geometry_captured"`

	Collections        []cmr.CollectionName `json:"collections"`
	SelectedCollection cmr.CollectionName   `json:"selected_collection,omitempty"`

	Granules []cmr.GranuleReference `json:"granules"`
	// GranuleBox is the box Granules was searched with; nil before any search.
	GranuleBox      *cmr.BoundingBox     `json:"granule_box,omitempty"`
	SelectedGranule cmr.GranuleReference `json:"selected_granule,omitempty"`

	Layer *mapview.LayerHandle `json:"layer,omitempty"`
}

// GranulesStale reports whether the captured box has changed since the
// granule list was searched.
func (s Snapshot) GranulesStale() bool {
	return s.GranuleBox != nil && *s.GranuleBox != s.Box
}

// HasCollection reports whether name is in the collection list.
func (s Snapshot) HasCollection(name cmr.CollectionName) bool {
	return slices.Contains(s.Collections, name)
}

// HasGranule reports whether ref is in the granule list.
func (s Snapshot) HasGranule(ref cmr.GranuleReference) bool {
	return slices.Contains(s.Granules, ref)
}

func (s Snapshot) clone() Snapshot {
	s.Collections = slices.Clone(s.Collections)
	s.Granules = slices.Clone(s.Granules)
	if s.GranuleBox != nil {
		box := *s.GranuleBox
		s.GranuleBox = &box
	}
	if s.Layer != nil {
		layer := *s.Layer
		s.Layer = &layer
	}
	return s
}
