package session

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-maap/internal/dashboard"
	"github.com/example/go-maap/pkg/cmr"
	"github.com/example/go-maap/pkg/mapview"
)

type stubCatalog struct {
	lastBox     cmr.BoundingBox
	collections []cmr.CollectionName
}

func (s *stubCatalog) SearchCollections(context.Context) ([]cmr.CollectionName, error) {
	if s.collections != nil {
		return s.collections, nil
	}
	return []cmr.CollectionName{"ABLVIS2", "GEDI02_A"}, nil
}

func (s *stubCatalog) SearchGranules(_ context.Context, _ cmr.CollectionName, box cmr.BoundingBox) ([]cmr.GranuleReference, error) {
	s.lastBox = box
	return []cmr.GranuleReference{"s3://bucket/a.tif", "s3://bucket/b.tif"}, nil
}

func run(t *testing.T, catalog *stubCatalog, script string) string {
	t.Helper()
	view := mapview.New(mapview.TileLayer{Host: "https://tiles"})
	dash := dashboard.New(catalog, view)
	_, err := dash.Load(context.Background())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, New(dash, view, &out).Run(context.Background(), strings.NewReader(script)))
	return out.String()
}

func TestSessionWorkflow(t *testing.T) {
	catalog := &stubCatalog{}
	out := run(t, catalog, strings.Join([]string{
		"draw 10,-1,12,1",
		"capture",
		"select 1",
		"search",
		"pick 2",
		"layer",
		"layers",
		"state",
		"quit",
		"state",
	}, "\n"))

	assert.Equal(t, "10,-1,12,1", catalog.lastBox.String())
	assert.Contains(t, out, "captured 10,-1,12,1")
	assert.Contains(t, out, "selected collection ABLVIS2")
	assert.Contains(t, out, "2 granules in 10,-1,12,1")
	assert.Contains(t, out, "selected granule s3://bucket/b.tif")
	assert.Contains(t, out, "layer 1 https://tiles/cog/tiles/{z}/{x}/{y}.png?url=s3%3A%2F%2Fbucket%2Fb.tif")
	assert.Contains(t, out, "[layer_rendered] > ")
	assert.Equal(t, 1, strings.Count(out, "revision"))
}

func TestSessionReportsErrorsAndContinues(t *testing.T) {
	out := run(t, &stubCatalog{}, "layer\nsearch\nselect 9\nbogus\ndraw 1,2\nselect GEDI02_A\n")
	assert.Contains(t, out, "error: dashboard: cannot add layer: no granule selected")
	assert.Contains(t, out, "error: dashboard: cannot search granules: no collection selected")
	assert.Contains(t, out, "number 9 out of range 1-2")
	assert.Contains(t, out, `unknown command "bogus"`)
	assert.Contains(t, out, "must have 4 comma separated values")
	assert.Contains(t, out, "selected collection GEDI02_A")
}

func TestSessionSearchWithoutGeometryUsesZeroBox(t *testing.T) {
	catalog := &stubCatalog{lastBox: cmr.NewBoundingBox(9, 9, 9, 9)}
	out := run(t, catalog, "select ABLVIS2\nsearch\n")
	assert.Equal(t, "0,0,0,0", catalog.lastBox.String())
	assert.Contains(t, out, "2 granules in 0,0,0,0")
}

func TestSessionStaleWarning(t *testing.T) {
	out := run(t, &stubCatalog{}, "select 1\nsearch\ndraw 1,1,2,2\ncapture\ngranules\n")
	assert.Contains(t, out, "warning: box changed since the last search")
}

func TestSessionSelectsNumericNameBeforeListNumber(t *testing.T) {
	catalog := &stubCatalog{collections: []cmr.CollectionName{"ABLVIS2", "2", "2021"}}
	out := run(t, catalog, "select 2021
select 2
select 1
")
	assert.Contains(t, out, "selected collection 2021")
	assert.Contains(t, out, "selected collection 2\n")
	assert.Contains(t, out, "selected collection ABLVIS2")
	assert.NotContains(t, out, "out of range")
}

func TestPick(t *testing.T) {
	list := []string{"A", "2021"}
	got, err := pick("2021", list)
	require.NoError(t, err)
	assert.Equal(t, "2021", got)

	got, err = pick("1", list)
	require.NoError(t, err)
	assert.Equal(t, "A", got)

	_, err = pick("3", list)
	assert.ErrorIs(t, err, errUsage)
}
