package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-maap/pkg/cmr"
	"github.com/example/go-maap/pkg/mapview"
)

type granuleCall struct {
	collection cmr.CollectionName
	box        cmr.BoundingBox
}

type fakeCatalog struct {
	mu          sync.Mutex
	collections []cmr.CollectionName
	collErr     error
	granules    []cmr.GranuleReference
	granErr     error
	calls       []granuleCall

	// When set, SearchGranules signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeCatalog) SearchCollections(ctx context.Context) ([]cmr.CollectionName, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.collErr != nil {
		return nil, f.collErr
	}
	return f.collections, nil
}

func (f *fakeCatalog) SearchGranules(ctx context.Context, collection cmr.CollectionName, box cmr.BoundingBox) ([]cmr.GranuleReference, error) {
	f.mu.Lock()
	f.calls = append(f.calls, granuleCall{collection: collection, box: box})
	entered, release := f.entered, f.release
	refs, err := f.granules, f.granErr
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	return refs, err
}

func newLoaded(t *testing.T, catalog *fakeCatalog) (*Dashboard, *mapview.MapView) {
	t.Helper()
	view := mapview.New(mapview.TileLayer{Host: "https://tiles"})
	d := New(catalog, view)
	_, err := d.Load(context.Background())
	require.NoError(t, err)
	return d, view
}

func TestNewStartsLoading(t *testing.T) {
	d := New(&fakeCatalog{}, mapview.New(mapview.TileLayer{}))
	snap := d.Snapshot()
	assert.Equal(t, StateLoading, snap.State)
	assert.Equal(t, CatalogPending, snap.Catalog)
}

func TestStartAndWait(t *testing.T) {
	catalog := &fakeCatalog{collections: []cmr.CollectionName{"ABLVIS2", "GEDI02_A"}}
	d := New(catalog, mapview.New(mapview.TileLayer{}))
	require.NoError(t, d.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))

	snap := d.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, CatalogReady, snap.Catalog)
	assert.Equal(t, []cmr.CollectionName{"ABLVIS2", "GEDI02_A"}, snap.Collections)
}

func TestLoadFailureAndReload(t *testing.T) {
	catalog := &fakeCatalog{collErr: &cmr.ResponseError{StatusCode: 503}}
	d := New(catalog, mapview.New(mapview.TileLayer{}))

	_, err := d.Load(context.Background())
	var respErr *cmr.ResponseError
	require.ErrorAs(t, err, &respErr)
	snap := d.Snapshot()
	assert.Equal(t, StateLoadFailed, snap.State)
	assert.Equal(t, CatalogFailed, snap.Catalog)
	assert.Contains(t, snap.LoadError, "503")

	_, err = d.SelectCollection("ABLVIS2")
	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)

	catalog.mu.Lock()
	catalog.collErr = nil
	catalog.collections = []cmr.CollectionName{"ABLVIS2"}
	catalog.mu.Unlock()

	snap, err = d.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.LoadError)
}

func TestSelectCollectionWhileLoading(t *testing.T) {
	d := New(&fakeCatalog{collections: []cmr.CollectionName{"ABLVIS2"}}, mapview.New(mapview.TileLayer{}))
	_, err := d.SelectCollection("ABLVIS2")
	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, "select collection", pre.Action)
	assert.Equal(t, StateLoading, d.Snapshot().State)
}

func TestSelectUnknownCollection(t *testing.T) {
	d, _ := newLoaded(t, &fakeCatalog{collections: []cmr.CollectionName{"ABLVIS2"}})
	before := d.Snapshot()
	_, err := d.SelectCollection("NOPE")
	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, before, d.Snapshot())
}

func TestSearchGranulesUsesZeroBoxWithoutGeometry(t *testing.T) {
	catalog := &fakeCatalog{
		collections: []cmr.CollectionName{"ABLVIS2"},
		granules:    []cmr.GranuleReference{"s3://bucket/a.tif"},
	}
	d, _ := newLoaded(t, catalog)
	_, err := d.SelectCollection("ABLVIS2")
	require.NoError(t, err)

	snap, err := d.SearchGranules(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog.calls, 1)
	assert.Equal(t, "0,0,0,0", catalog.calls[0].box.String())
	assert.Equal(t, StateGranuleListed, snap.State)
	assert.Equal(t, []cmr.GranuleReference{"s3://bucket/a.tif"}, snap.Granules)
	assert.False(t, snap.GranulesStale())
}

func TestSearchGranulesWithoutCollection(t *testing.T) {
	catalog := &fakeCatalog{collections: []cmr.CollectionName{"ABLVIS2"}}
	d, _ := newLoaded(t, catalog)
	_, err := d.SearchGranules(context.Background())
	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Empty(t, catalog.calls)
}

func TestFullWorkflow(t *testing.T) {
	catalog := &fakeCatalog{
		collections: []cmr.CollectionName{"ABLVIS2"},
		granules:    []cmr.GranuleReference{"s3://bucket/a.tif", "s3://bucket/b.tif"},
	}
	d, view := newLoaded(t, catalog)

	view.Draw(cmr.NewBoundingBox(10, -1, 12, 1))
	snap := d.UpdateGeometry()
	assert.Equal(t, StateGeometryCaptured, snap.State)
	assert.Equal(t, "10,-1,12,1", snap.Box.String())

	snap, err := d.SelectCollection("ABLVIS2")
	require.NoError(t, err)
	assert.Equal(t, StateCollectionListed, snap.State)

	snap, err = d.SearchGranules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10,-1,12,1", catalog.calls[0].box.String())

	snap, err = d.SelectGranule("s3://bucket/b.tif")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/b.tif", snap.SelectedGranule)

	snap, err = d.AddLayer()
	require.NoError(t, err)
	assert.Equal(t, StateLayerRendered, snap.State)
	require.NotNil(t, snap.Layer)
	assert.Equal(t, "s3://bucket/b.tif", snap.Layer.AssetURL)
	assert.Len(t, view.Layers(), 1)

	view.Draw(cmr.NewBoundingBox(0, 0, 1, 1))
	snap = d.UpdateGeometry()
	assert.True(t, snap.GranulesStale())
}

func TestAddLayerWithoutGranule(t *testing.T) {
	d, view := newLoaded(t, &fakeCatalog{collections: []cmr.CollectionName{"ABLVIS2"}})
	_, err := d.AddLayer()
	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, "add layer", pre.Action)
	assert.Empty(t, view.Layers())
	assert.Nil(t, d.Snapshot().Layer)
}

func TestSelectUnknownGranule(t *testing.T) {
	d, _ := newLoaded(t, &fakeCatalog{collections: []cmr.CollectionName{"ABLVIS2"}})
	_, err := d.SelectGranule("s3://bucket/missing.tif")
	var pre *PreconditionError
	assert.ErrorAs(t, err, &pre)
}

func TestSearchFailureLeavesSnapshotUnchanged(t *testing.T) {
	catalog := &fakeCatalog{
		collections: []cmr.CollectionName{"ABLVIS2"},
		granules:    []cmr.GranuleReference{"s3://bucket/a.tif"},
	}
	d, _ := newLoaded(t, catalog)
	_, err := d.SelectCollection("ABLVIS2")
	require.NoError(t, err)
	_, err = d.SearchGranules(context.Background())
	require.NoError(t, err)
	_, err = d.SelectGranule("s3://bucket/a.tif")
	require.NoError(t, err)
	before := d.Snapshot()

	catalog.mu.Lock()
	catalog.granErr = &cmr.TransportError{Endpoint: "granules", Err: errors.New("connection refused")}
	catalog.mu.Unlock()

	_, err = d.SearchGranules(context.Background())
	var transportErr *cmr.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, before, d.Snapshot())
}

func TestStaleGranuleResultsRejected(t *testing.T) {
	catalog := &fakeCatalog{
		collections: []cmr.CollectionName{"ABLVIS2"},
		granules:    []cmr.GranuleReference{"s3://bucket/old.tif"},
	}
	d, view := newLoaded(t, catalog)
	_, err := d.SelectCollection("ABLVIS2")
	require.NoError(t, err)

	catalog.mu.Lock()
	catalog.entered = make(chan struct{})
	catalog.release = make(chan struct{})
	catalog.mu.Unlock()

	errc := make(chan error, 1)
	go func() {
		_, err := d.SearchGranules(context.Background())
		errc <- err
	}()
	<-catalog.entered

	view.Draw(cmr.NewBoundingBox(1, 1, 2, 2))
	d.UpdateGeometry()
	close(catalog.release)

	assert.ErrorIs(t, <-errc, ErrStale)
	snap := d.Snapshot()
	assert.Empty(t, snap.Granules)
	assert.Equal(t, StateGeometryCaptured, snap.State)
}

func TestChangingCollectionDropsGranules(t *testing.T) {
	catalog := &fakeCatalog{
		collections: []cmr.CollectionName{"A", "B"},
		granules:    []cmr.GranuleReference{"s3://bucket/a.tif"},
	}
	d, _ := newLoaded(t, catalog)
	_, err := d.SelectCollection("A")
	require.NoError(t, err)
	_, err = d.SearchGranules(context.Background())
	require.NoError(t, err)

	snap, err := d.SelectCollection("B")
	require.NoError(t, err)
	assert.Empty(t, snap.Granules)
	assert.Nil(t, snap.GranuleBox)
}

func TestReloadDroppingSelectedCollectionResetsGranules(t *testing.T) {
	catalog := &fakeCatalog{
		collections: []cmr.CollectionName{"ABLVIS2"},
		granules:    []cmr.GranuleReference{"s3://b/a.tif"},
	}
	d, _ := newLoaded(t, catalog)
	_, err := d.SelectCollection("ABLVIS2")
	require.NoError(t, err)
	_, err = d.SearchGranules(context.Background())
	require.NoError(t, err)
	_, err = d.SelectGranule("s3://b/a.tif")
	require.NoError(t, err)

	catalog.mu.Lock()
	catalog.collections = []cmr.CollectionName{"OTHER"}
	catalog.mu.Unlock()

	snap, err := d.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.SelectedCollection)
	assert.Empty(t, snap.Granules)
	assert.Nil(t, snap.GranuleBox)
	assert.Empty(t, snap.SelectedGranule)

	_, err = d.AddLayer()
	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
}

func TestReloadDroppingSelectionKeepsGeometry(t *testing.T) {
	catalog := &fakeCatalog{
		collections: []cmr.CollectionName{"ABLVIS2"},
		granules:    []cmr.GranuleReference{"s3://b/a.tif"},
	}
	d, view := newLoaded(t, catalog)
	view.Draw(cmr.NewBoundingBox(10, -1, 12, 1))
	d.UpdateGeometry()
	_, err := d.SelectCollection("ABLVIS2")
	require.NoError(t, err)
	_, err = d.SearchGranules(context.Background())
	require.NoError(t, err)

	catalog.mu.Lock()
	catalog.collections = []cmr.CollectionName{"OTHER"}
	catalog.mu.Unlock()

	snap, err := d.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateGeometryCaptured, snap.State)
	assert.Equal(t, "10,-1,12,1", snap.Box.String())
	assert.Empty(t, snap.Granules)
}

func TestSnapshotIsIsolated(t *testing.T) {
	d, _ := newLoaded(t, &fakeCatalog{collections: []cmr.CollectionName{"ABLVIS2"}})
	snap := d.Snapshot()
	snap.Collections[0] = "MUTATED"
	assert.Equal(t, "ABLVIS2", d.Snapshot().Collections[0])
}

func TestRevisionIncreases(t *testing.T) {
	d, _ := newLoaded(t, &fakeCatalog{collections: []cmr.CollectionName{"ABLVIS2"}})
	first := d.Snapshot().Revision
	second := d.UpdateGeometry().Revision
	assert.Greater(t, second, first)
}

func TestSnapshotJSON(t *testing.T) {
	d, _ := newLoaded(t, &fakeCatalog{collections: []cmr.CollectionName{"ABLVIS2"}})
	data, err := json.Marshal(d.Snapshot())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"idle"`)
	assert.Contains(t, string(data), `"catalog":"ready"`)
}
