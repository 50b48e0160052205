// Package dashboard drives the search workflow: capture a box from the map,
// pick a collection, search granules inside the box, pick a granule and render
// it as a tile overlay. Actions are serialized and each one either commits a
// new Snapshot or returns an error without changing anything.
package dashboard

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/example/go-maap/pkg/cmr"
	"github.com/example/go-maap/pkg/mapview"
)

// Catalog is the remote search service. *cmr.Client satisfies it.
type Catalog interface {
	SearchCollections(ctx context.Context) ([]cmr.CollectionName, error)
	SearchGranules(ctx context.Context, collection cmr.CollectionName, box cmr.BoundingBox) ([]cmr.GranuleReference, error)
}

// Map is the map view the dashboard reads geometry from and renders onto.
// *mapview.MapView satisfies it.
type Map interface {
	CurrentBox() cmr.BoundingBox
	RenderTileLayer(assetURL string) mapview.LayerHandle
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithLogger sets the logger used for transition events.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dashboard) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Dashboard is safe for concurrent use.
type Dashboard struct {
	catalog Catalog
	view    Map
	logger  *slog.Logger

	mu       sync.Mutex
	snap     Snapshot
	loading  bool
	loadDone chan struct{}
}

// New returns a dashboard in the Loading state. Call Start or Load to fetch
// the collection list; until then collections cannot be selected.
func New(catalog Catalog, view Map, opts ...Option) *Dashboard {
	d := &Dashboard{
		catalog: catalog,
		view:    view,
		logger:  slog.Default(),
		snap:    Snapshot{State: StateLoading, Catalog: CatalogPending},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Snapshot returns the current state.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap.clone()
}

// Start fetches the collection list in the background. Use Wait to block
// until it finishes.
func (d *Dashboard) Start(ctx context.Context) error {
	done, err := d.beginLoad()
	if err != nil {
		return err
	}
	go func() {
		defer close(done)
		if _, err := d.finishLoad(d.catalog.SearchCollections(ctx)); err != nil {
			d.logger.Error("collection load failed", "error", err)
		}
	}()
	return nil
}

// Load fetches the collection list and waits for the result. It also serves
// as a retry after a failed load.
func (d *Dashboard) Load(ctx context.Context) (Snapshot, error) {
	done, err := d.beginLoad()
	if err != nil {
		return Snapshot{}, err
	}
	defer close(done)
	return d.finishLoad(d.catalog.SearchCollections(ctx))
}

// Wait blocks until the current collection load, if any, has finished.
func (d *Dashboard) Wait(ctx context.Context) error {
	d.mu.Lock()
	done := d.loadDone
	d.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dashboard) beginLoad() (chan struct{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loading {
		return nil, precondition("load collections", "a load is already in progress")
	}
	next := d.snap
	next.Catalog = CatalogPending
	next.LoadError = ""
	if next.State == StateLoadFailed || next.State == StateIdle {
		next.State = StateLoading
	}
	d.loading = true
	d.loadDone = make(chan struct{})
	d.commit(next)
	return d.loadDone, nil
}

func (d *Dashboard) finishLoad(names []cmr.CollectionName, err error) (Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loading = false
	next := d.snap
	if err != nil {
		next.Catalog = CatalogFailed
		next.LoadError = err.Error()
		if next.State == StateLoading {
			next.State = StateLoadFailed
		}
		d.commit(next)
		return Snapshot{}, err
	}
	next.Catalog = CatalogReady
	next.Collections = names
	switch {
	case next.SelectedCollection != "" && !next.HasCollection(next.SelectedCollection):
		// The selection and its granules went away with the old list.
		next.SelectedCollection = ""
		next.Granules = nil
		next.GranuleBox = nil
		next.SelectedGranule = ""
		next.State = StateIdle
		if next.GeometryCaptured {
			next.State = StateGeometryCaptured
		}
	case next.State == StateLoading:
		next.State = StateIdle
	}
	return d.commit(next), nil
}

// UpdateGeometry captures the map's current box. It always succeeds; with
// nothing drawn the zero box is captured.
func (d *Dashboard) UpdateGeometry() Snapshot {
	box := d.view.CurrentBox()
	d.mu.Lock()
	defer d.mu.Unlock()
	next := d.snap
	next.Box = box
	next.GeometryCaptured = true
	next.State = StateGeometryCaptured
	return d.commit(next)
}

// SelectCollection picks a collection from the loaded list. Changing the
// collection drops the granule list of the previous one.
func (d *Dashboard) SelectCollection(name cmr.CollectionName) (Snapshot, error) {
	const action = "select collection"
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.snap.Catalog {
	case CatalogPending:
		return Snapshot{}, precondition(action, "collections are still loading")
	case CatalogFailed:
		return Snapshot{}, precondition(action, "collection load failed: "+d.snap.LoadError)
	}
	if !d.snap.HasCollection(name) {
		return Snapshot{}, precondition(action, "unknown collection "+strconv.Quote(name))
	}
	next := d.snap
	if next.SelectedCollection != name {
		next.Granules = nil
		next.GranuleBox = nil
		next.SelectedGranule = ""
	}
	next.SelectedCollection = name
	next.State = StateCollectionListed
	return d.commit(next), nil
}

// SearchGranules searches the selected collection inside the captured box,
// or the zero box if no geometry was captured. The request runs without the
// lock held; if any action commits meanwhile the result is dropped and
// ErrStale returned. On error the snapshot is unchanged.
func (d *Dashboard) SearchGranules(ctx context.Context) (Snapshot, error) {
	d.mu.Lock()
	if d.snap.SelectedCollection == "" {
		d.mu.Unlock()
		return Snapshot{}, precondition("search granules", "no collection selected")
	}
	revision := d.snap.Revision
	collection := d.snap.SelectedCollection
	box := d.snap.Box
	d.mu.Unlock()

	refs, err := d.catalog.SearchGranules(ctx, collection, box)
	if err != nil {
		return Snapshot{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.snap.Revision != revision {
		d.logger.Debug("granule search result discarded", "collection", collection, "box", box.String())
		return Snapshot{}, ErrStale
	}
	next := d.snap
	next.Granules = refs
	next.GranuleBox = &box
	next.SelectedGranule = ""
	next.State = StateGranuleListed
	return d.commit(next), nil
}

// SelectGranule picks a granule from the current list.
func (d *Dashboard) SelectGranule(ref cmr.GranuleReference) (Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.snap.HasGranule(ref) {
		return Snapshot{}, precondition("select granule", "unknown granule "+strconv.Quote(ref))
	}
	next := d.snap
	next.SelectedGranule = ref
	next.State = StateGranuleListed
	return d.commit(next), nil
}

// AddLayer renders the selected granule on the map.
func (d *Dashboard) AddLayer() (Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.snap.SelectedGranule == "" {
		return Snapshot{}, precondition("add layer", "no granule selected")
	}
	layer := d.view.RenderTileLayer(d.snap.SelectedGranule)
	next := d.snap
	next.Layer = &layer
	next.State = StateLayerRendered
	return d.commit(next), nil
}

// commit must be called with mu held.
func (d *Dashboard) commit(next Snapshot) Snapshot {
	next.Revision = d.snap.Revision + 1
	if next.State != d.snap.State {
		d.logger.Debug("dashboard transition", "from", d.snap.State.String(), "to", next.State.String(), "revision", next.Revision)
	}
	d.snap = next
	return next.clone()
}
