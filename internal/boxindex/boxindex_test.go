package boxindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beadbox/bead/bead"
	"github.com/beadbox/bead/boxerr"
	"github.com/beadbox/bead/internal/archive"
	"github.com/beadbox/bead/internal/condition"
)

// mattn/go-sqlite3 always opens its DSN against a real OS path, so every
// test here roots the box directory at t.TempDir() rather than an in-memory
// afero filesystem (see SPEC_FULL.md §4.5 "Filesystem access").
func newTestFs() afero.Fs {
	return afero.NewOsFs()
}

func seedArchive(t *testing.T, fs afero.Fs, dir, name, contentID, freezeTime string) string {
	t.Helper()
	filename := archive.BuildFilename(name, freezeTime)
	path := filepath.Join(dir, filename)
	require.NoError(t, archive.Build(fs, path, archive.BuildSpec{
		Kind:       "k1",
		ContentID:  contentID,
		FreezeName: name,
		FreezeTime: freezeTime,
		DataFiles:  map[string][]byte{"out.txt": []byte(contentID)},
	}))
	return filename
}

func TestOpen_CreatesSchemaOnEmptyDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := newTestFs()

	idx, err := Open(ctx, fs, dir, Options{})
	require.NoError(t, err)
	defer idx.Close()

	recs, err := idx.Query(ctx, nil, false)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRebuild_IndexesExistingArchivesAndSkipsCorruptOnes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := newTestFs()

	seedArchive(t, fs, dir, "alpha", "c1", "20200101T000000Z")
	seedArchive(t, fs, dir, "beta", "c2", "20200102T000000Z")
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "broken_20200103T000000Z.bead"), []byte("not a zip"), 0o644))

	idx, err := Open(ctx, fs, dir, Options{})
	require.NoError(t, err)
	defer idx.Close()

	recs, err := idx.Query(ctx, nil, false)
	require.NoError(t, err)
	assert.Len(t, recs, 2, "the unreadable archive is skipped, not fatal")
}

func TestRebuild_Idempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := newTestFs()
	seedArchive(t, fs, dir, "alpha", "c1", "20200101T000000Z")

	idx, err := Open(ctx, fs, dir, Options{})
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Rebuild(ctx))
	first, err := idx.Query(ctx, nil, false)
	require.NoError(t, err)

	require.NoError(t, idx.Rebuild(ctx))
	second, err := idx.Query(ctx, nil, false)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSync_OnlyIngestsNewFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := newTestFs()
	seedArchive(t, fs, dir, "alpha", "c1", "20200101T000000Z")

	idx, err := Open(ctx, fs, dir, Options{})
	require.NoError(t, err)
	defer idx.Close()

	recs, err := idx.Query(ctx, nil, false)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	seedArchive(t, fs, dir, "beta", "c2", "20200102T000000Z")
	require.NoError(t, idx.Sync(ctx))

	recs, err = idx.Query(ctx, nil, false)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestAddThenRemove_RestoresPriorResultSet(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := newTestFs()

	idx, err := Open(ctx, fs, dir, Options{})
	require.NoError(t, err)
	defer idx.Close()

	before, err := idx.Query(ctx, nil, false)
	require.NoError(t, err)

	filename := seedArchive(t, fs, dir, "alpha", "c1", "20200101T000000Z")
	_, err = idx.Add(ctx, filename)
	require.NoError(t, err)

	require.NoError(t, idx.Remove(ctx, filename))

	after, err := idx.Query(ctx, nil, false)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLocate_NotFoundWhenUnindexed(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := newTestFs()

	idx, err := Open(ctx, fs, dir, Options{})
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Locate(ctx, "alpha", "c1")
	require.Error(t, err)
	assert.True(t, boxerr.Is(err, boxerr.NotFound))
}

func TestLocate_ReturnsIndexedPath(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := newTestFs()
	filename := seedArchive(t, fs, dir, "alpha", "c1", "20200101T000000Z")

	idx, err := Open(ctx, fs, dir, Options{})
	require.NoError(t, err)
	defer idx.Close()

	path, err := idx.Locate(ctx, "alpha", "c1")
	require.NoError(t, err)
	assert.Equal(t, filename, path)
}

func TestQuery_ByNameReturnsBothContentIDsThenOneAfterRemove(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := newTestFs()
	seedArchive(t, fs, dir, "alpha", "c1", "20200101T000000Z")
	f2 := seedArchive(t, fs, dir, "alpha", "c2", "20200102T000000Z")

	idx, err := Open(ctx, fs, dir, Options{})
	require.NoError(t, err)
	defer idx.Close()

	recs, err := idx.Query(ctx, []condition.Condition{{Kind: condition.BeadName, Value: "alpha"}}, false)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	require.NoError(t, idx.Remove(ctx, f2))
	recs, err = idx.Query(ctx, []condition.Condition{{Kind: condition.BeadName, Value: "alpha"}}, false)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "c1", recs[0].ContentID)
}

func TestQuery_WithInputsLoadsInputRows(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := newTestFs()

	path := filepath.Join(dir, archive.BuildFilename("child", "20200102T000000Z"))
	require.NoError(t, archive.Build(fs, path, archive.BuildSpec{
		Kind:       "k1",
		ContentID:  "c-child",
		FreezeName: "child",
		FreezeTime: "20200102T000000Z",
		Inputs: []bead.InputSpec{
			{InputName: "in", InputKind: "k0", InputContentID: "c-parent", InputFreezeTime: "20200101T000000Z"},
		},
	}))

	idx, err := Open(ctx, fs, dir, Options{})
	require.NoError(t, err)
	defer idx.Close()

	recs, err := idx.Query(ctx, []condition.Condition{{Kind: condition.ContentID, Value: "c-child"}}, true)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].InputsLoaded)
	require.Len(t, recs[0].Inputs, 1)
	assert.Equal(t, "c-parent", recs[0].Inputs[0].InputContentID)
}

func TestRebuild_IsolatesAmbiguousPairWithoutAbortingTheRest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := newTestFs()

	seedArchive(t, fs, dir, "alpha", "c1", "20200101T000000Z")
	// Two files, same (name, content_id), different paths: the "collision"
	// scenario SPEC_FULL.md §9(c) resolves as Ambiguous.
	require.NoError(t, archive.Build(fs, filepath.Join(dir, "dup-one.bead"), archive.BuildSpec{
		Kind: "k1", ContentID: "cdup", FreezeName: "beta", FreezeTime: "20200102T000000Z",
	}))
	require.NoError(t, archive.Build(fs, filepath.Join(dir, "dup-two.bead"), archive.BuildSpec{
		Kind: "k1", ContentID: "cdup", FreezeName: "beta", FreezeTime: "20200102T000000Z",
	}))

	idx, err := Open(ctx, fs, dir, Options{})
	require.NoError(t, err)
	defer idx.Close()

	recs, err := idx.Query(ctx, nil, false)
	require.NoError(t, err)
	assert.Len(t, recs, 2, "the unambiguous archive plus exactly one winner of the colliding pair")

	_, err = idx.Locate(ctx, "alpha", "c1")
	require.NoError(t, err, "rebuild did not abort because of the unrelated collision")
}

func TestAdd_RaisesAmbiguousDirectlyOnCollision(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := newTestFs()

	f1 := seedArchive(t, fs, dir, "alpha", "c1", "20200101T000000Z")
	idx, err := Open(ctx, fs, dir, Options{})
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Add(ctx, f1)
	require.NoError(t, err, "re-adding the same file_path is an upsert, not a collision")

	f2 := filepath.Join(dir, "other-name-same-identity.bead")
	require.NoError(t, archive.Build(fs, f2, archive.BuildSpec{
		Kind: "k1", ContentID: "c1", FreezeName: "alpha", FreezeTime: "20200101T000000Z",
	}))
	rel2, err := filepath.Rel(dir, f2)
	require.NoError(t, err)

	_, err = idx.Add(ctx, rel2)
	require.Error(t, err)
	assert.True(t, boxerr.Is(err, boxerr.Ambiguous))
}

func TestOpen_DegradesToEnumerationWhenDirectoryUnwritableAndNoIndex(t *testing.T) {
	ctx := context.Background()
	fs := newTestFs()
	dir := t.TempDir()

	seedArchive(t, fs, dir, "alpha", "c1", "20200101T000000Z")
	require.NoError(t, fs.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = fs.Chmod(dir, 0o755) })

	idx, err := Open(ctx, fs, dir, Options{})
	require.NoError(t, err, "a read-only directory with no index degrades instead of failing")
	defer idx.Close()
	require.True(t, idx.Degraded())

	recs, err := idx.Query(ctx, nil, false)
	require.NoError(t, err)
	require.Len(t, recs, 1, "degraded query still finds the archive via a live directory walk")
	assert.Equal(t, "c1", recs[0].ContentID)

	path, err := idx.Locate(ctx, "alpha", "c1")
	require.NoError(t, err)
	assert.NotEmpty(t, path)

	err = idx.Rebuild(ctx)
	require.Error(t, err)
	assert.True(t, boxerr.Is(err, boxerr.IndexUnavailable))
}

func TestOpen_RebuildsAfterCorruptIndexFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs := newTestFs()
	seedArchive(t, fs, dir, "alpha", "c1", "20200101T000000Z")

	idx, err := Open(ctx, fs, dir, Options{})
	require.NoError(t, err)
	idx.Close()

	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, IndexFileName), []byte("not a database"), 0o644))

	idx2, err := Open(ctx, fs, dir, Options{})
	require.NoError(t, err)
	defer idx2.Close()

	recs, err := idx2.Query(ctx, nil, false)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
