package dms_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dms/internal/dms"
)

const retention = 30 * 24 * time.Hour

func TestTrash_File(t *testing.T) {
	ctx := context.Background()
	ts := newService(t)
	folder := mustFolder(t, ts, alice, "", "Docs")
	first := mustUpload(t, ts, alice, folder.ID, "a.txt", "one")
	second := mustUpload(t, ts, alice, folder.ID, "a.txt", "two")
	trashedAt := ts.Clock.Now()

	results, err := ts.Trash(ctx, alice, first.Node.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].OK())

	n := storedNode(t, ts, first.Node.ID)
	require.NotNil(t, n.TrashedAt)
	assert.True(t, n.TrashedAt.Equal(trashedAt))
	assert.Empty(t, childNames(t, ts, alice, folder.ID))

	versions, err := ts.DB.ListVersions(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1, "only the latest version survives")
	assert.Equal(t, second.Version.ID, versions[0].ID)
	assert.Equal(t, dms.TierCold, versions[0].Tier)
	assert.Equal(t, dms.RestoreAvailable, versions[0].RestoreStatus)

	objects := ts.Objects.Objects()
	require.Len(t, objects, 1)
	assert.Equal(t, second.Version.Storage.Key, objects[0].Key)
	assert.Equal(t, versions[0].Storage.VersionID, objects[0].VersionID)
	assert.Equal(t, dms.TierCold, objects[0].Tier)

	entries, err := ts.ListTrash(ctx, alice)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, n.ID, entries[0].FileID)
	assert.Equal(t, dms.TrashScheduled, entries[0].Status)
	assert.True(t, entries[0].ScheduledDeleteAt.Equal(trashedAt.Add(retention)))

	_, err = ts.OpenVersion(ctx, alice, n.ID, "")
	assert.ErrorIs(t, err, dms.ErrInvalidState, "cold content is not readable")

	_, err = ts.Trash(ctx, alice, n.ID)
	assert.ErrorIs(t, err, dms.ErrNotFound, "already trashed")
}

func TestTrash_FileGatewayFailureIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	ts := newService(t)
	up := mustUpload(t, ts, alice, "", "a.txt", "one")
	mustUpload(t, ts, alice, "", "a.txt", "two")
	ts.Gateway.Fail("copy_with_tier")

	_, err := ts.Trash(ctx, alice, up.Node.ID)
	assert.ErrorIs(t, err, dms.ErrGatewayFailure)

	assert.Nil(t, storedNode(t, ts, up.Node.ID).TrashedAt)
	versions, err := ts.DB.ListVersions(ctx, up.Node.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
	assert.Len(t, ts.Objects.Objects(), 2)

	entries, err := ts.ListTrash(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTrash_PermissionAndMissing(t *testing.T) {
	ctx := context.Background()
	ts := newService(t)
	up := mustUpload(t, ts, alice, "", "a.txt", "one")
	mustGrant(t, ts, alice, up.Node.ID, bob, dms.LevelViewer)

	_, err := ts.Trash(ctx, bob, up.Node.ID)
	assert.ErrorIs(t, err, dms.ErrPermissionDenied)
	_, err = ts.Trash(ctx, alice, "missing")
	assert.ErrorIs(t, err, dms.ErrNotFound)
}

func TestTrash_FolderSubtree(t *testing.T) {
	ctx := context.Background()
	ts := newService(t)
	docs := mustFolder(t, ts, alice, "", "Docs")
	a := mustUpload(t, ts, alice, docs.ID, "a.txt", "a").Node
	sub := mustFolder(t, ts, alice, docs.ID, "Sub")
	b := mustUpload(t, ts, alice, sub.ID, "b.txt", "b").Node

	results, err := ts.Trash(ctx, alice, docs.ID)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, r := range results {
		assert.True(t, r.OK(), "item %s: %v", r.ID, r.Err)
	}

	stamp := storedNode(t, ts, docs.ID).TrashedAt
	require.NotNil(t, stamp)
	for _, id := range []string{a.ID, sub.ID, b.ID} {
		n := storedNode(t, ts, id)
		require.NotNil(t, n.TrashedAt, "node %s", n.Name)
		assert.True(t, n.TrashedAt.Equal(*stamp), "node %s shares the trash timestamp", n.Name)
	}

	for _, o := range ts.Objects.Objects() {
		assert.Equal(t, dms.TierCold, o.Tier, "object %s", o.Key)
	}

	entries, err := ts.ListTrash(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	assert.Empty(t, childNames(t, ts, alice, ""))
}

func TestTrash_FolderPartialFailure(t *testing.T) {
	ctx := context.Background()
	ts := newService(t)
	docs := mustFolder(t, ts, alice, "", "Docs")
	a := mustUpload(t, ts, alice, docs.ID, "a.txt", "a").Node
	b := mustUpload(t, ts, alice, docs.ID, "b.txt", "b").Node
	ts.Gateway.FailWhen("copy_with_tier", func(key string) bool { return strings.HasSuffix(key, "/b.txt") })

	results, err := ts.Trash(ctx, alice, docs.ID)
	require.NoError(t, err)

	byID := map[string]error{}
	for _, r := range results {
		byID[r.ID] = r.Err
	}
	require.Len(t, byID, 3)
	assert.NoError(t, byID[docs.ID])
	assert.NoError(t, byID[a.ID])
	assert.ErrorIs(t, byID[b.ID], dms.ErrGatewayFailure)

	assert.NotNil(t, storedNode(t, ts, b.ID).TrashedAt, "failed file stays trashed")
	versions, err := ts.DB.ListVersions(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, dms.TierStandard, versions[0].Tier, "failed file keeps its versions")
}

func TestRestoreFromTrash(t *testing.T) {
	ctx := context.Background()

	t.Run("restores the batch trashed together", func(t *testing.T) {
		ts := newService(t)
		docs := mustFolder(t, ts, alice, "", "Docs")
		a := mustUpload(t, ts, alice, docs.ID, "a.txt", "a").Node
		sub := mustFolder(t, ts, alice, docs.ID, "Sub")
		_, err := ts.Trash(ctx, alice, a.ID)
		require.NoError(t, err)

		ts.Clock.Advance(time.Hour)
		_, err = ts.Trash(ctx, alice, docs.ID)
		require.NoError(t, err)

		n, err := ts.RestoreFromTrash(ctx, alice, docs.ID)
		require.NoError(t, err)
		assert.Nil(t, n.TrashedAt)
		assert.Nil(t, storedNode(t, ts, sub.ID).TrashedAt)
		assert.NotNil(t, storedNode(t, ts, a.ID).TrashedAt, "trashed earlier on its own")

		entries, err := ts.ListTrash(ctx, alice)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, a.ID, entries[0].FileID)
	})

	t.Run("brings back trashed ancestors", func(t *testing.T) {
		ts := newService(t)
		docs := mustFolder(t, ts, alice, "", "Docs")
		a := mustUpload(t, ts, alice, docs.ID, "a.txt", "a").Node
		sub := mustFolder(t, ts, alice, docs.ID, "Sub")
		_, err := ts.Trash(ctx, alice, docs.ID)
		require.NoError(t, err)

		_, err = ts.RestoreFromTrash(ctx, alice, a.ID)
		require.NoError(t, err)
		assert.Nil(t, storedNode(t, ts, docs.ID).TrashedAt)
		assert.Nil(t, storedNode(t, ts, a.ID).TrashedAt)
		assert.NotNil(t, storedNode(t, ts, sub.ID).TrashedAt)
		assert.Equal(t, []string{"a.txt"}, childNames(t, ts, alice, docs.ID))

		versions, err := ts.DB.ListVersions(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, versions, 1)
		assert.Equal(t, dms.TierCold, versions[0].Tier, "content stays on the cold tier")
	})

	t.Run("name taken by a live sibling", func(t *testing.T) {
		ts := newService(t)
		old := mustUpload(t, ts, alice, "", "a.txt", "old").Node
		_, err := ts.Trash(ctx, alice, old.ID)
		require.NoError(t, err)
		mustUpload(t, ts, alice, "", "a.txt", "new")

		_, err = ts.RestoreFromTrash(ctx, alice, old.ID)
		assert.ErrorIs(t, err, dms.ErrConflict)
		assert.NotNil(t, storedNode(t, ts, old.ID).TrashedAt)
	})

	t.Run("node must be trashed", func(t *testing.T) {
		ts := newService(t)
		docs := mustFolder(t, ts, alice, "", "Docs")
		_, err := ts.RestoreFromTrash(ctx, alice, docs.ID)
		assert.ErrorIs(t, err, dms.ErrInvalidState)
	})
}

func TestPurge(t *testing.T) {
	ctx := context.Background()

	t.Run("waits for the retention window", func(t *testing.T) {
		ts := newService(t)
		up := mustUpload(t, ts, alice, "", "a.txt", "a")
		_, err := ts.Trash(ctx, alice, up.Node.ID)
		require.NoError(t, err)
		entries, err := ts.ListTrash(ctx, alice)
		require.NoError(t, err)
		require.Len(t, entries, 1)

		err = ts.Purge(ctx, entries[0].ID)
		assert.ErrorIs(t, err, dms.ErrInvalidState)

		results, err := ts.PurgeDue(ctx)
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.NotNil(t, storedNode(t, ts, up.Node.ID))
	})

	t.Run("purges due subtrees and is idempotent", func(t *testing.T) {
		ts := newService(t)
		docs := mustFolder(t, ts, alice, "", "Docs")
		mustUpload(t, ts, alice, docs.ID, "a.txt", "a")
		sub := mustFolder(t, ts, alice, docs.ID, "Sub")
		mustUpload(t, ts, alice, sub.ID, "b.txt", "b")
		keep := mustUpload(t, ts, alice, "", "keep.txt", "keep").Node
		_, err := ts.Trash(ctx, alice, docs.ID)
		require.NoError(t, err)

		ts.Clock.Advance(retention + time.Minute)
		results, err := ts.PurgeDue(ctx)
		require.NoError(t, err)
		require.Len(t, results, 4)
		for _, r := range results {
			assert.NoError(t, r.Err, "entry %s", r.ID)
		}

		assert.Nil(t, storedNode(t, ts, docs.ID))
		assert.Nil(t, storedNode(t, ts, sub.ID))
		assert.NotNil(t, storedNode(t, ts, keep.ID))
		objects := ts.Objects.Objects()
		require.Len(t, objects, 1, "only the live file's object remains")

		for _, r := range results {
			entry, err := ts.DB.GetTrashEntry(ctx, r.ID)
			require.NoError(t, err)
			assert.Equal(t, dms.TrashDeleted, entry.Status)
			require.NotNil(t, entry.ClosedAt)
			assert.NoError(t, ts.Purge(ctx, r.ID), "purging twice is a no-op")
		}

		entries, err := ts.ListTrash(ctx, alice)
		require.NoError(t, err)
		assert.Empty(t, entries)

		results, err = ts.PurgeDue(ctx)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("gateway failure leaves the entry for a retry", func(t *testing.T) {
		ts := newService(t)
		up := mustUpload(t, ts, alice, "", "a.txt", "a")
		_, err := ts.Trash(ctx, alice, up.Node.ID)
		require.NoError(t, err)
		ts.Clock.Advance(retention)

		ts.Gateway.Fail("delete")
		results, err := ts.PurgeDue(ctx)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.ErrorIs(t, results[0].Err, dms.ErrGatewayFailure)
		assert.NotNil(t, storedNode(t, ts, up.Node.ID))

		ts.Gateway.Heal()
		results, err = ts.PurgeDue(ctx)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.NoError(t, results[0].Err)
		assert.Nil(t, storedNode(t, ts, up.Node.ID))
		assert.Empty(t, ts.Objects.Objects())
	})

	t.Run("restored entries are not purged", func(t *testing.T) {
		ts := newService(t)
		up := mustUpload(t, ts, alice, "", "a.txt", "a")
		_, err := ts.Trash(ctx, alice, up.Node.ID)
		require.NoError(t, err)
		entries, err := ts.ListTrash(ctx, alice)
		require.NoError(t, err)
		_, err = ts.RestoreFromTrash(ctx, alice, up.Node.ID)
		require.NoError(t, err)

		ts.Clock.Advance(retention)
		err = ts.Purge(ctx, entries[0].ID)
		assert.ErrorIs(t, err, dms.ErrInvalidState)

		entry, err := ts.DB.GetTrashEntry(ctx, entries[0].ID)
		require.NoError(t, err)
		assert.Equal(t, dms.TrashRestored, entry.Status)

		assert.ErrorIs(t, ts.Purge(ctx, "missing"), dms.ErrNotFound)
	})
}

func TestBulkOperations(t *testing.T) {
	ctx := context.Background()
	ts := newService(t)
	a := mustUpload(t, ts, alice, "", "a.txt", "a").Node
	b := mustUpload(t, ts, alice, "", "b.txt", "b").Node
	theirs := mustUpload(t, ts, bob, "", "c.txt", "c").Node

	results := ts.BulkTrash(ctx, alice, []string{a.ID, "missing", theirs.ID, b.ID})
	require.Len(t, results, 4)
	assert.Equal(t, a.ID, results[0].ID)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, dms.ErrNotFound)
	assert.ErrorIs(t, results[2].Err, dms.ErrPermissionDenied)
	assert.NoError(t, results[3].Err)
	assert.Equal(t, b.ID, results[3].ID)

	entries, err := ts.ListTrash(ctx, alice)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	ids := []string{entries[0].ID, entries[1].ID}

	denied := ts.BulkPurge(ctx, bob, ids)
	for _, r := range denied {
		assert.ErrorIs(t, r.Err, dms.ErrPermissionDenied)
	}

	purged := ts.BulkPurge(ctx, alice, ids)
	for _, r := range purged {
		assert.NoError(t, r.Err, "early purge by the owner")
	}
	assert.Nil(t, storedNode(t, ts, a.ID))
	assert.Nil(t, storedNode(t, ts, b.ID))
	assert.NotNil(t, storedNode(t, ts, theirs.ID))
}
