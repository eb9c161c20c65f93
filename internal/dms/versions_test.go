package dms_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dms/internal/dms"
)

func TestUpload_NewVersionOfExistingFile(t *testing.T) {
	ctx := context.Background()
	ts := newService(t)

	first := mustUpload(t, ts, alice, "", "docs/report.txt", "first")
	assert.True(t, first.Created)
	assert.Equal(t, int64(1), first.Version.Number)

	ts.Clock.Advance(time.Minute)
	second := mustUpload(t, ts, alice, "", "docs/report.txt", "second!")
	assert.False(t, second.Created)
	assert.Empty(t, second.Folders)
	assert.Equal(t, first.Node.ID, second.Node.ID)
	assert.Equal(t, int64(2), second.Version.Number)
	assert.NotEqual(t, first.Version.Storage, second.Version.Storage)

	n := storedNode(t, ts, first.Node.ID)
	assert.Equal(t, second.Version.ID, n.LatestVersionID)
	assert.Equal(t, int64(7), n.Size)
	assert.Equal(t, int64(2), n.VersionSeq)

	assert.Equal(t, "second!", readContent(t, ts, alice, n.ID, ""))
	assert.Equal(t, "first", readContent(t, ts, alice, n.ID, first.Version.ID))

	versions, err := ts.ListVersions(ctx, alice, n.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, dms.ActionUpload, versions[0].Action)
	assert.Equal(t, "report.txt", versions[0].InitialFilename)
	assert.Equal(t, dms.TierStandard, versions[0].Tier)
}

func TestAppendVersion(t *testing.T) {
	ctx := context.Background()
	ts := newService(t)
	folder := mustFolder(t, ts, alice, "", "Docs")
	up := mustUpload(t, ts, alice, folder.ID, "a.txt", "a")

	v, err := ts.AppendVersion(ctx, alice, up.Node.ID, dms.ActionUpload, up.Version.Storage,
		map[string]any{"source": "import"}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.Number)
	assert.Equal(t, "a.txt", v.InitialFilename)
	assert.Equal(t, "import", v.Metadata["source"])

	_, err = ts.AppendVersion(ctx, alice, folder.ID, dms.ActionUpload, up.Version.Storage, nil, "")
	assert.ErrorIs(t, err, dms.ErrInvalidState, "folders have no versions")

	_, err = ts.AppendVersion(ctx, bob, up.Node.ID, dms.ActionUpload, up.Version.Storage, nil, "")
	assert.ErrorIs(t, err, dms.ErrPermissionDenied)
}

func TestRestoreVersion(t *testing.T) {
	ctx := context.Background()

	t.Run("appends a restore version pointing at the old content", func(t *testing.T) {
		ts := newService(t)
		first := mustUpload(t, ts, alice, "", "notes.txt", "v1")
		mustUpload(t, ts, alice, "", "notes.txt", "version two")

		v, err := ts.RestoreVersion(ctx, alice, first.Node.ID, first.Version.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), v.Number)
		assert.Equal(t, dms.ActionRestore, v.Action)
		assert.Equal(t, first.Version.Storage, v.Storage)

		n := storedNode(t, ts, first.Node.ID)
		assert.Equal(t, v.ID, n.LatestVersionID)
		assert.Equal(t, int64(2), n.Size)
		assert.Equal(t, "v1", readContent(t, ts, alice, n.ID, ""))

		versions, err := ts.ListVersions(ctx, alice, n.ID)
		require.NoError(t, err)
		assert.Len(t, versions, 3, "history is never rewritten")
	})

	t.Run("only the owner restores", func(t *testing.T) {
		ts := newService(t)
		up := mustUpload(t, ts, alice, "", "notes.txt", "v1")
		mustGrant(t, ts, alice, up.Node.ID, bob, dms.LevelEditor)

		_, err := ts.RestoreVersion(ctx, bob, up.Node.ID, up.Version.ID)
		assert.ErrorIs(t, err, dms.ErrPermissionDenied)
	})

	t.Run("version must belong to the file", func(t *testing.T) {
		ts := newService(t)
		a := mustUpload(t, ts, alice, "", "a.txt", "a")
		b := mustUpload(t, ts, alice, "", "b.txt", "b")

		_, err := ts.RestoreVersion(ctx, alice, a.Node.ID, b.Version.ID)
		assert.ErrorIs(t, err, dms.ErrInvalidState)

		_, err = ts.RestoreVersion(ctx, alice, a.Node.ID, "missing")
		assert.ErrorIs(t, err, dms.ErrNotFound)
	})

	t.Run("cold versions need a tier restore first", func(t *testing.T) {
		ts := newService(t)
		up := mustUpload(t, ts, alice, "", "a.txt", "a")
		require.NoError(t, ts.Archive(ctx, alice, up.Node.ID))

		_, err := ts.RestoreVersion(ctx, alice, up.Node.ID, up.Version.ID)
		assert.ErrorIs(t, err, dms.ErrInvalidState)
	})
}

func TestDuplicate(t *testing.T) {
	ctx := context.Background()

	t.Run("copies content into a fresh chain with the source grants", func(t *testing.T) {
		ts := newService(t)
		src := mustUpload(t, ts, alice, "", "report.pdf", "pdf bytes")
		mustUpload(t, ts, alice, "", "report.pdf", "pdf bytes v2")
		mustGrant(t, ts, alice, src.Node.ID, bob, dms.LevelViewer)
		dest := mustFolder(t, ts, alice, "", "Copies")

		dup, err := ts.Duplicate(ctx, alice, src.Node.ID, dest.ID, "")
		require.NoError(t, err)
		assert.Equal(t, "report (copy).pdf", dup.Name)
		assert.Equal(t, dest.ID, dup.ParentID)
		assert.NotEqual(t, src.Node.ID, dup.ID)

		versions, err := ts.ListVersions(ctx, alice, dup.ID)
		require.NoError(t, err)
		require.Len(t, versions, 1)
		assert.Equal(t, dms.ActionDuplicate, versions[0].Action)
		assert.Equal(t, int64(1), versions[0].Number)
		assert.Equal(t, "report (copy).pdf", versions[0].InitialFilename)
		assert.Equal(t, "pdf bytes v2", readContent(t, ts, alice, dup.ID, ""))

		g, err := ts.DB.GetGrant(ctx, dup.ID, bob)
		require.NoError(t, err)
		require.NotNil(t, g)
		assert.False(t, g.Inherited)
		assert.Equal(t, dms.LevelViewer, g.Level)
	})

	t.Run("explicit name and name conflicts", func(t *testing.T) {
		ts := newService(t)
		src := mustUpload(t, ts, alice, "", "a.txt", "a")

		dup, err := ts.Duplicate(ctx, alice, src.Node.ID, "", "b.txt")
		require.NoError(t, err)
		assert.Equal(t, "b.txt", dup.Name)
		assert.Equal(t, "txt", dup.Extension)

		before := len(ts.Objects.Objects())
		_, err = ts.Duplicate(ctx, alice, src.Node.ID, "", "b.txt")
		assert.ErrorIs(t, err, dms.ErrConflict)
		assert.Len(t, ts.Objects.Objects(), before, "the copied object is cleaned up")
	})

	t.Run("source requirements", func(t *testing.T) {
		ts := newService(t)
		folder := mustFolder(t, ts, alice, "", "Docs")
		empty, err := ts.CreateNode(ctx, alice, folder.ID, "empty.txt", dms.KindFile)
		require.NoError(t, err)
		up := mustUpload(t, ts, alice, folder.ID, "a.txt", "a")

		_, err = ts.Duplicate(ctx, alice, folder.ID, "", "")
		assert.ErrorIs(t, err, dms.ErrInvalidState)
		_, err = ts.Duplicate(ctx, alice, empty.ID, "", "")
		assert.ErrorIs(t, err, dms.ErrInvalidState)
		_, err = ts.Duplicate(ctx, bob, up.Node.ID, "", "")
		assert.ErrorIs(t, err, dms.ErrPermissionDenied)
		_, err = ts.Duplicate(ctx, alice, "missing", "", "")
		assert.ErrorIs(t, err, dms.ErrNotFound)
	})

	t.Run("gateway failure creates nothing", func(t *testing.T) {
		ts := newService(t)
		src := mustUpload(t, ts, alice, "", "a.txt", "a")
		ts.Gateway.Fail("copy")

		_, err := ts.Duplicate(ctx, alice, src.Node.ID, "", "")
		assert.ErrorIs(t, err, dms.ErrGatewayFailure)
		assert.Equal(t, []string{"a.txt"}, childNames(t, ts, alice, ""))
	})
}
