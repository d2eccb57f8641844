package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beadbox/bead/box"
	"github.com/beadbox/bead/internal/archive"
)

func openTestBox(t *testing.T, name string) *box.Box {
	t.Helper()
	ctx := context.Background()
	b, err := box.Open(ctx, afero.NewOsFs(), name, t.TempDir(), box.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func storeFixture(t *testing.T, b *box.Box, name, contentID, freezeTime string) {
	t.Helper()
	srcDir := t.TempDir()
	path := filepath.Join(srcDir, archive.BuildFilename(name, freezeTime))
	require.NoError(t, archive.Build(afero.NewOsFs(), path, archive.BuildSpec{
		Kind:       "k1",
		ContentID:  contentID,
		FreezeName: name,
		FreezeTime: freezeTime,
	}))
	_, err := b.Store(context.Background(), path)
	require.NoError(t, err)
}

func TestBeadSearch_SingleBox_ByNameNewestOldest(t *testing.T) {
	ctx := context.Background()
	b := openTestBox(t, "b1")
	storeFixture(t, b, "alpha", "c1", "20200101T000000Z")
	storeFixture(t, b, "alpha", "c2", "20210101T000000Z")

	all, err := OnBox(b).ByName("alpha").All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	newest, ok, err := OnBox(b).ByName("alpha").Newest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c2", newest.ContentID)

	oldest, ok, err := OnBox(b).ByName("alpha").Oldest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c1", oldest.ContentID)
}

func TestBeadSearch_Exists(t *testing.T) {
	ctx := context.Background()
	b := openTestBox(t, "b1")
	exists, err := OnBox(b).ByName("alpha").Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	storeFixture(t, b, "alpha", "c1", "20200101T000000Z")
	exists, err = OnBox(b).ByName("alpha").Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBeadSearch_MultiBox_FirstPrefersBoxOrder(t *testing.T) {
	ctx := context.Background()
	b1 := openTestBox(t, "b1")
	b2 := openTestBox(t, "b2")

	storeFixture(t, b1, "alpha", "c1", "20200101T000000Z")
	storeFixture(t, b2, "alpha", "c2", "20300101T000000Z") // later freeze_time, later box

	first, ok, err := OnBoxes(b1, b2).ByName("alpha").First(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b1", first.BoxName, "First favors box order, not recency")

	newest, ok, err := OnBoxes(b1, b2).ByName("alpha").Newest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b2", newest.BoxName, "Newest sorts across boxes by freeze_time")
}

func TestBeadSearch_NoMatch(t *testing.T) {
	ctx := context.Background()
	b := openTestBox(t, "b1")
	_, ok, err := OnBox(b).ByName("nope").First(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
