//go:build live

package cmr_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-maap/pkg/cmr"
)

func TestLiveCollectionAndGranuleSearch(t *testing.T) {
	// Runs against the public MAAP catalog and needs no credentials.
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	client := cmr.NewClient()
	names, err := client.SearchCollections(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, names)
	assert.LessOrEqual(t, len(names), cmr.CollectionPageSize)

	refs, err := client.SearchGranules(ctx, "ABLVIS2", cmr.NewBoundingBox(9, -1, 12, 1))
	require.NoError(t, err)
	for _, ref := range refs {
		assert.NotEmpty(t, ref)
	}
}
