package dms_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dms/internal/dms"
)

func TestCreateNode(t *testing.T) {
	ctx := context.Background()

	t.Run("root folder is owned by the actor", func(t *testing.T) {
		ts := newService(t)
		n := mustFolder(t, ts, alice, "", "Projects")

		assert.Equal(t, alice, n.OwnerID)
		assert.Equal(t, alice, n.CreatedBy)
		assert.Empty(t, n.ParentID)
		assert.True(t, n.CreatedAt.Equal(ts.Clock.Now()))
		assert.Equal(t, []string{"Projects"}, childNames(t, ts, alice, ""))
	})

	t.Run("child belongs to the parent owner", func(t *testing.T) {
		ts := newService(t)
		root := mustFolder(t, ts, alice, "", "Shared")
		mustGrant(t, ts, alice, root.ID, bob, dms.LevelEditor)

		child, err := ts.CreateNode(ctx, bob, root.ID, "notes.txt", dms.KindFile)
		require.NoError(t, err)
		assert.Equal(t, alice, child.OwnerID)
		assert.Equal(t, bob, child.CreatedBy)
		assert.Equal(t, "txt", child.Extension)
		assert.Equal(t, dms.LevelEditor, levelOf(t, ts, child.ID, bob))
	})

	t.Run("live sibling names are unique per kind", func(t *testing.T) {
		ts := newService(t)
		root := mustFolder(t, ts, alice, "", "Docs")
		mustFolder(t, ts, alice, root.ID, "a")

		_, err := ts.CreateNode(ctx, alice, root.ID, "a", dms.KindFolder)
		assert.ErrorIs(t, err, dms.ErrConflict)

		_, err = ts.CreateNode(ctx, alice, root.ID, "a", dms.KindFile)
		assert.NoError(t, err, "a file may share a folder's name")

		_, err = ts.CreateNode(ctx, bob, "", "Docs", dms.KindFolder)
		assert.NoError(t, err, "roots of different owners do not clash")
	})

	t.Run("invalid names", func(t *testing.T) {
		ts := newService(t)
		for _, name := range []string{"", "  ", ".", "..", "a/b"} {
			_, err := ts.CreateNode(ctx, alice, "", name, dms.KindFolder)
			assert.ErrorIs(t, err, dms.ErrInvalidState, "name %q", name)
		}
	})

	t.Run("parent must be a live folder the actor can edit", func(t *testing.T) {
		ts := newService(t)
		root := mustFolder(t, ts, alice, "", "Root")
		file, err := ts.CreateNode(ctx, alice, root.ID, "a.txt", dms.KindFile)
		require.NoError(t, err)

		_, err = ts.CreateNode(ctx, alice, file.ID, "x", dms.KindFolder)
		assert.ErrorIs(t, err, dms.ErrInvalidState)

		_, err = ts.CreateNode(ctx, alice, "missing", "x", dms.KindFolder)
		assert.ErrorIs(t, err, dms.ErrNotFound)

		_, err = ts.CreateNode(ctx, bob, root.ID, "x", dms.KindFolder)
		assert.ErrorIs(t, err, dms.ErrPermissionDenied)

		mustGrant(t, ts, alice, root.ID, bob, dms.LevelViewer)
		_, err = ts.CreateNode(ctx, bob, root.ID, "x", dms.KindFolder)
		assert.ErrorIs(t, err, dms.ErrPermissionDenied)
	})
}

func TestRename(t *testing.T) {
	ctx := context.Background()

	t.Run("file with content gets a rename version", func(t *testing.T) {
		ts := newService(t)
		up := mustUpload(t, ts, alice, "", "draft.txt", "hello")

		n, err := ts.Rename(ctx, alice, up.Node.ID, "final.md")
		require.NoError(t, err)
		assert.Equal(t, "final.md", n.Name)
		assert.Equal(t, "md", n.Extension)

		versions, err := ts.ListVersions(ctx, alice, n.ID)
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, dms.ActionRename, versions[1].Action)
		assert.Equal(t, int64(2), versions[1].Number)
		assert.Equal(t, versions[0].Storage, versions[1].Storage)
		assert.Equal(t, "draft.txt", versions[1].InitialFilename)
		assert.Equal(t, versions[1].ID, storedNode(t, ts, n.ID).LatestVersionID)
		assert.Equal(t, "hello", readContent(t, ts, alice, n.ID, ""))
	})

	t.Run("same name is a no-op", func(t *testing.T) {
		ts := newService(t)
		up := mustUpload(t, ts, alice, "", "a.txt", "x")

		_, err := ts.Rename(ctx, alice, up.Node.ID, "a.txt")
		require.NoError(t, err)
		versions, err := ts.ListVersions(ctx, alice, up.Node.ID)
		require.NoError(t, err)
		assert.Len(t, versions, 1)
	})

	t.Run("conflicts with a live sibling", func(t *testing.T) {
		ts := newService(t)
		root := mustFolder(t, ts, alice, "", "Root")
		mustFolder(t, ts, alice, root.ID, "a")
		b := mustFolder(t, ts, alice, root.ID, "b")

		_, err := ts.Rename(ctx, alice, b.ID, "a")
		assert.ErrorIs(t, err, dms.ErrConflict)
	})

	t.Run("viewer cannot rename", func(t *testing.T) {
		ts := newService(t)
		root := mustFolder(t, ts, alice, "", "Root")
		mustGrant(t, ts, alice, root.ID, bob, dms.LevelViewer)

		_, err := ts.Rename(ctx, bob, root.ID, "Mine")
		assert.ErrorIs(t, err, dms.ErrPermissionDenied)
	})
}

func TestMove(t *testing.T) {
	ctx := context.Background()

	t.Run("reparents and recomputes inherited grants", func(t *testing.T) {
		ts := newService(t)
		a := mustFolder(t, ts, alice, "", "A")
		b := mustFolder(t, ts, alice, "", "B")
		sub := mustFolder(t, ts, alice, a.ID, "sub")
		file := mustUpload(t, ts, alice, sub.ID, "x.txt", "x").Node
		mustGrant(t, ts, alice, a.ID, bob, dms.LevelViewer)
		mustGrant(t, ts, alice, b.ID, carol, dms.LevelEditor)
		require.Equal(t, dms.LevelViewer, levelOf(t, ts, file.ID, bob))

		moved, err := ts.Move(ctx, alice, sub.ID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b.ID, moved.ParentID)

		assert.Equal(t, dms.LevelNone, levelOf(t, ts, sub.ID, bob))
		assert.Equal(t, dms.LevelNone, levelOf(t, ts, file.ID, bob))
		assert.Equal(t, dms.LevelEditor, levelOf(t, ts, file.ID, carol))

		acc, err := ts.ResolveEffectiveLevel(ctx, file.ID, carol)
		require.NoError(t, err)
		assert.Equal(t, dms.SourceInherited, acc.Source)
		assert.Equal(t, b.ID, acc.InheritedFrom)

		assert.Empty(t, childNames(t, ts, alice, a.ID))
		assert.Equal(t, []string{"sub"}, childNames(t, ts, alice, b.ID))
	})

	t.Run("rejects cycles", func(t *testing.T) {
		ts := newService(t)
		a := mustFolder(t, ts, alice, "", "A")
		sub := mustFolder(t, ts, alice, a.ID, "sub")
		deep := mustFolder(t, ts, alice, sub.ID, "deep")

		_, err := ts.Move(ctx, alice, a.ID, a.ID)
		assert.ErrorIs(t, err, dms.ErrConflict)
		_, err = ts.Move(ctx, alice, a.ID, deep.ID)
		assert.ErrorIs(t, err, dms.ErrConflict)
		assert.Equal(t, a.ID, storedNode(t, ts, sub.ID).ParentID)
	})

	t.Run("destination must be a folder without a same-named sibling", func(t *testing.T) {
		ts := newService(t)
		a := mustFolder(t, ts, alice, "", "A")
		b := mustFolder(t, ts, alice, "", "B")
		mustFolder(t, ts, alice, b.ID, "dup")
		dup := mustFolder(t, ts, alice, a.ID, "dup")
		file := mustUpload(t, ts, alice, a.ID, "f.txt", "f").Node

		_, err := ts.Move(ctx, alice, dup.ID, b.ID)
		assert.ErrorIs(t, err, dms.ErrConflict)
		_, err = ts.Move(ctx, alice, dup.ID, file.ID)
		assert.ErrorIs(t, err, dms.ErrInvalidState)
	})

	t.Run("only the owner moves to the root", func(t *testing.T) {
		ts := newService(t)
		a := mustFolder(t, ts, alice, "", "A")
		sub := mustFolder(t, ts, alice, a.ID, "sub")
		mustGrant(t, ts, alice, a.ID, bob, dms.LevelEditor)

		_, err := ts.Move(ctx, bob, sub.ID, "")
		assert.ErrorIs(t, err, dms.ErrPermissionDenied)

		moved, err := ts.Move(ctx, alice, sub.ID, "")
		require.NoError(t, err)
		assert.Empty(t, moved.ParentID)
		assert.Equal(t, dms.LevelNone, levelOf(t, ts, sub.ID, bob))
	})

	t.Run("cannot move into another owner's tree", func(t *testing.T) {
		ts := newService(t)
		mine := mustFolder(t, ts, alice, "", "Mine")
		theirs := mustFolder(t, ts, bob, "", "Theirs")
		mustGrant(t, ts, bob, theirs.ID, alice, dms.LevelEditor)

		_, err := ts.Move(ctx, alice, mine.ID, theirs.ID)
		assert.ErrorIs(t, err, dms.ErrPermissionDenied)
	})
}

func TestListChildren(t *testing.T) {
	ctx := context.Background()
	ts := newService(t)
	root := mustFolder(t, ts, alice, "", "Root")
	mustFolder(t, ts, alice, root.ID, "b")
	_, err := ts.CreateNode(ctx, alice, root.ID, "a.txt", dms.KindFile)
	require.NoError(t, err)
	mustFolder(t, ts, alice, root.ID, "a")

	assert.Equal(t, []string{"a", "b", "a.txt"}, childNames(t, ts, alice, root.ID))

	_, err = ts.ListChildren(ctx, bob, root.ID, false)
	assert.ErrorIs(t, err, dms.ErrPermissionDenied)

	_, err = ts.ListChildren(ctx, alice, "missing", false)
	assert.ErrorIs(t, err, dms.ErrNotFound)
}

func TestEnsurePath(t *testing.T) {
	ctx := context.Background()
	ts := newService(t)

	id, err := ts.EnsurePath(ctx, alice, "", []string{"x", "y"})
	require.NoError(t, err)

	again, err := ts.EnsurePath(ctx, alice, "", []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	y := storedNode(t, ts, id)
	assert.Equal(t, "y", y.Name)
	assert.Equal(t, []string{"x"}, childNames(t, ts, alice, ""))

	same, err := ts.EnsurePath(ctx, alice, id, nil)
	require.NoError(t, err)
	assert.Equal(t, id, same)

	_, err = ts.EnsurePath(ctx, alice, "", []string{"ok", ".."})
	assert.ErrorIs(t, err, dms.ErrInvalidState)
}
