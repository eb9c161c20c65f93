package dms

import (
	"context"
	"fmt"
	"time"
)

// Trash moves a node and all its live descendants to the trash with one
// trashed-at timestamp. For every trashed file the latest version moves to
// the cold tier and all older versions are deleted.
//
// Trashing a single file is all-or-nothing: a gateway failure leaves the file
// untouched. For a folder the tree change is committed first and the storage
// work per file is reported in the returned results; files whose storage work
// failed stay trashed with their versions intact.
func (s *Service) Trash(ctx context.Context, actor, nodeID string) (results []ItemResult, err error) {
	const op = "Trash"
	defer s.observe(op, time.Now(), &err)

	n, err := liveNode(ctx, s.db, op, "node_id", nodeID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, s.db, op, n, actor, LevelEditor); err != nil {
		return nil, err
	}
	if n.IsFolder() {
		return s.trashFolder(ctx, actor, n)
	}
	if err := s.trashFile(ctx, actor, n); err != nil {
		return nil, err
	}
	return []ItemResult{{ID: n.ID}}, nil
}

// BulkTrash trashes every node in ids independently.
func (s *Service) BulkTrash(ctx context.Context, actor string, ids []string) []ItemResult {
	return s.runBatch(ctx, "bulk_trash", ids, func(ctx context.Context, id string) error {
		results, err := s.Trash(ctx, actor, id)
		if err != nil {
			return err
		}
		return joinResults(results)
	})
}

func (s *Service) trashFile(ctx context.Context, actor string, n *Node) error {
	const op = "Trash"

	latest, cold, err := s.moveLatestToCold(ctx, op, n)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	var stale []StorageRef
	err = s.db.InTx(ctx, func(st Store) error {
		fresh, err := liveNode(ctx, st, op, "node_id", n.ID)
		if err != nil {
			return err
		}
		if err := s.markTrashed(ctx, st, []*Node{fresh}, actor, now); err != nil {
			return err
		}
		stale, err = retireVersions(ctx, st, fresh, latest, cold)
		return err
	})
	if err != nil {
		if cold != "" {
			s.deleteObjects(context.WithoutCancel(ctx), op, []StorageRef{{Key: latest.Storage.Key, VersionID: cold}})
		}
		return err
	}

	s.deleteObjects(ctx, op, stale)
	s.logger.Info("file trashed", "node_id", n.ID, "actor", actor, "removed_objects", len(stale))
	return nil
}

// moveLatestToCold copies the latest version of n to the cold tier. It
// returns the latest version and the new cold version id, which is empty when
// there is nothing to move.
func (s *Service) moveLatestToCold(ctx context.Context, op string, n *Node) (*Version, string, error) {
	if n.LatestVersionID == "" {
		return nil, "", nil
	}
	latest, err := s.db.GetVersion(ctx, n.LatestVersionID)
	if err != nil {
		return nil, "", fmt.Errorf("loading latest version: %w", err)
	}
	if latest == nil || latest.Tier == TierCold || latest.Storage.IsZero() {
		return latest, "", nil
	}

	var cold string
	err = s.callGateway(op, "copy_with_tier", latest.Storage, func() error {
		var err error
		cold, err = s.gateway.CopyWithTier(ctx, latest.Storage.Key, latest.Storage.VersionID, TierCold)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return latest, cold, nil
}

// retireVersions rewrites the latest version to its cold copy and deletes
// every other version row. It returns the storage objects no longer
// referenced.
func retireVersions(ctx context.Context, st Store, n *Node, latest *Version, coldVersionID string) ([]StorageRef, error) {
	versions, err := st.ListVersions(ctx, n.ID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}

	var keep StorageRef
	var stale []StorageRef
	seen := map[StorageRef]bool{}
	addStale := func(ref StorageRef) {
		if !ref.IsZero() && !seen[ref] {
			seen[ref] = true
			stale = append(stale, ref)
		}
	}

	for _, v := range versions {
		if latest != nil && v.ID == latest.ID {
			if coldVersionID != "" {
				addStale(v.Storage)
				v.Storage.VersionID = coldVersionID
				v.Tier = TierCold
				v.RestoreStatus = RestoreAvailable
				if err := st.UpdateVersion(ctx, v); err != nil {
					return nil, fmt.Errorf("moving version %d to cold tier: %w", v.Number, err)
				}
			}
			keep = v.Storage
			continue
		}
		if err := st.DeleteVersion(ctx, v.ID); err != nil {
			return nil, fmt.Errorf("deleting version %d: %w", v.Number, err)
		}
		addStale(v.Storage)
	}

	out := stale[:0]
	for _, ref := range stale {
		if ref != keep {
			out = append(out, ref)
		}
	}
	return out, nil
}

// markTrashed stamps nodes with one trashed-at time and schedules their purge.
func (s *Service) markTrashed(ctx context.Context, st Store, nodes []*Node, actor string, now time.Time) error {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	if err := st.SetTrashedAt(ctx, ids, &now); err != nil {
		return fmt.Errorf("marking nodes trashed: %w", err)
	}
	for _, n := range nodes {
		n.TrashedAt = &now
		entry := &TrashEntry{
			ID:                s.ids.New(),
			FileID:            n.ID,
			OwnerID:           n.OwnerID,
			Name:              n.Name,
			Kind:              n.Kind,
			TrashedAt:         now,
			ScheduledDeleteAt: now.Add(s.opts.RetentionWindow),
			Status:            TrashScheduled,
		}
		if err := st.InsertTrashEntry(ctx, entry); err != nil {
			return fmt.Errorf("scheduling purge of %s: %w", n.ID, err)
		}
		if err := s.logAction(ctx, st, n.ID, actor, LogTrashed, ""); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) trashFolder(ctx context.Context, actor string, folder *Node) ([]ItemResult, error) {
	const op = "Trash"

	members, err := s.db.ListSubtree(ctx, folder.ID, MaxTreeDepth)
	if err != nil {
		return nil, fmt.Errorf("listing subtree: %w", err)
	}

	now := s.clock.Now()
	var trashed []*Node
	err = s.db.InTx(ctx, func(st Store) error {
		trashed = trashed[:0]
		for _, m := range members {
			fresh, err := st.GetNode(ctx, m.ID)
			if err != nil {
				return fmt.Errorf("loading %s: %w", m.ID, err)
			}
			if fresh == nil || fresh.IsTrashed() {
				if m.ID == folder.ID {
					return notFound(op, "node_id", folder.ID)
				}
				continue
			}
			trashed = append(trashed, fresh)
		}
		return s.markTrashed(ctx, st, trashed, actor, now)
	})
	if err != nil {
		return nil, err
	}

	var files []string
	results := make([]ItemResult, 0, len(trashed))
	for _, n := range trashed {
		if n.Kind == KindFile {
			files = append(files, n.ID)
		} else {
			results = append(results, ItemResult{ID: n.ID})
		}
	}
	results = append(results, s.runBatch(ctx, "trash", files, s.archiveTrashedFile)...)

	s.logger.Info("folder trashed", "node_id", folder.ID, "nodes", len(trashed), "files", len(files), "actor", actor)
	return results, nil
}

// archiveTrashedFile does the storage side of trashing one file that is
// already marked trashed.
func (s *Service) archiveTrashedFile(ctx context.Context, fileID string) error {
	const op = "Trash"
	n, err := getNode(ctx, s.db, op, "node_id", fileID)
	if err != nil {
		return err
	}
	latest, cold, err := s.moveLatestToCold(ctx, op, n)
	if err != nil {
		return err
	}

	var stale []StorageRef
	err = s.db.InTx(ctx, func(st Store) error {
		fresh, err := getNode(ctx, st, op, "node_id", fileID)
		if err != nil {
			return err
		}
		if !fresh.IsTrashed() {
			return invalidState(op, "node_id", "file was restored while trashing")
		}
		stale, err = retireVersions(ctx, st, fresh, latest, cold)
		return err
	})
	if err != nil {
		if cold != "" {
			s.deleteObjects(context.WithoutCancel(ctx), op, []StorageRef{{Key: latest.Storage.Key, VersionID: cold}})
		}
		return err
	}
	s.deleteObjects(ctx, op, stale)
	return nil
}

// RestoreFromTrash takes a trashed node out of the trash together with its
// trashed ancestors and the descendants trashed in the same batch. Versions
// stay on the tier they are on.
func (s *Service) RestoreFromTrash(ctx context.Context, actor, nodeID string) (n *Node, err error) {
	const op = "RestoreFromTrash"
	defer s.observe(op, time.Now(), &err)

	members, err := s.db.ListSubtree(ctx, nodeID, MaxTreeDepth)
	if err != nil {
		return nil, fmt.Errorf("listing subtree: %w", err)
	}

	var restored []*Node
	err = s.db.InTx(ctx, func(st Store) error {
		var err error
		n, err = getNode(ctx, st, op, "node_id", nodeID)
		if err != nil {
			return err
		}
		if !n.IsTrashed() {
			return invalidState(op, "node_id", "node is not in the trash")
		}
		if err := s.authorize(ctx, st, op, n, actor, LevelEditor); err != nil {
			return err
		}
		batch := *n.TrashedAt

		chain, err := ancestors(ctx, st, op, n)
		if err != nil {
			return err
		}
		restored = restored[:0]
		for i := len(chain) - 1; i >= 0; i-- {
			if chain[i].IsTrashed() {
				restored = append(restored, chain[i])
			}
		}
		restored = append(restored, n)
		for _, m := range members {
			if m.ID == n.ID {
				continue
			}
			fresh, err := st.GetNode(ctx, m.ID)
			if err != nil {
				return fmt.Errorf("loading %s: %w", m.ID, err)
			}
			if fresh != nil && fresh.TrashedAt != nil && fresh.TrashedAt.Equal(batch) {
				restored = append(restored, fresh)
			}
		}

		ids := make([]string, len(restored))
		for i, r := range restored {
			existing, err := st.FindLiveSibling(ctx, r.OwnerID, r.ParentID, r.Name, r.Kind)
			if err != nil {
				return fmt.Errorf("checking siblings: %w", err)
			}
			if existing != nil && existing.ID != r.ID {
				return conflict(op, "name", fmt.Sprintf("a %s named %q already exists", r.Kind, r.Name))
			}
			ids[i] = r.ID
		}
		if err := st.SetTrashedAt(ctx, ids, nil); err != nil {
			return storeWriteErr(op, "name", "clearing trashed time", err)
		}

		now := s.clock.Now()
		for _, r := range restored {
			r.TrashedAt = nil
			entry, err := st.FindScheduledTrashEntry(ctx, r.ID)
			if err != nil {
				return fmt.Errorf("loading trash entry of %s: %w", r.ID, err)
			}
			if entry != nil {
				entry.Status = TrashRestored
				entry.ClosedAt = &now
				if err := st.UpdateTrashEntry(ctx, entry); err != nil {
					return fmt.Errorf("closing trash entry of %s: %w", r.ID, err)
				}
			}
			if err := s.logAction(ctx, st, r.ID, actor, LogRestored, ""); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("restored from trash", "node_id", nodeID, "nodes", len(restored), "actor", actor)
	return n, nil
}

// ListTrash returns the scheduled trash entries of nodes owned by owner.
func (s *Service) ListTrash(ctx context.Context, owner string) ([]*TrashEntry, error) {
	return s.db.ListScheduledTrashEntries(ctx, owner)
}

// Purge permanently deletes the node of a trash entry whose retention window
// has elapsed, with its subtree, versions, objects and grants. Purging an
// entry that is already deleted does nothing.
func (s *Service) Purge(ctx context.Context, entryID string) (err error) {
	const op = "Purge"
	defer s.observe(op, time.Now(), &err)

	entry, err := s.db.GetTrashEntry(ctx, entryID)
	if err != nil {
		return fmt.Errorf("loading trash entry: %w", err)
	}
	if entry == nil {
		return notFound(op, "entry_id", entryID)
	}
	switch entry.Status {
	case TrashDeleted:
		return nil
	case TrashRestored:
		return invalidState(op, "entry_id", "entry was restored")
	}
	if s.clock.Now().Before(entry.ScheduledDeleteAt) {
		return invalidState(op, "entry_id", "retention window has not elapsed")
	}
	return s.purgeEntry(ctx, entry, "")
}

// PurgeDue purges every trash entry whose retention window has elapsed.
func (s *Service) PurgeDue(ctx context.Context) ([]ItemResult, error) {
	entries, err := s.db.ListDueTrashEntries(ctx, s.clock.Now(), s.opts.PurgeBatchSize)
	if err != nil {
		return nil, fmt.Errorf("listing due trash entries: %w", err)
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	results := s.runBatch(ctx, "purge", ids, func(ctx context.Context, id string) error {
		return s.Purge(ctx, id)
	})
	if len(results) > 0 {
		s.logger.Info("purged due trash entries", "entries", len(results))
	}
	return results, nil
}

// BulkPurge permanently deletes trashed nodes ahead of their schedule. The
// actor must own every node.
func (s *Service) BulkPurge(ctx context.Context, actor string, entryIDs []string) []ItemResult {
	const op = "BulkPurge"
	return s.runBatch(ctx, "bulk_purge", entryIDs, func(ctx context.Context, id string) error {
		entry, err := s.db.GetTrashEntry(ctx, id)
		if err != nil {
			return fmt.Errorf("loading trash entry: %w", err)
		}
		if entry == nil {
			return notFound(op, "entry_id", id)
		}
		if entry.OwnerID != actor {
			return denied(op, actor, "only the owner can purge")
		}
		switch entry.Status {
		case TrashDeleted:
			return nil
		case TrashRestored:
			return invalidState(op, "entry_id", "entry was restored")
		}
		return s.purgeEntry(ctx, entry, actor)
	})
}

func (s *Service) purgeEntry(ctx context.Context, entry *TrashEntry, actor string) error {
	const op = "Purge"
	if actor == "" {
		actor = entry.OwnerID
	}

	members, err := s.db.ListSubtree(ctx, entry.FileID, MaxTreeDepth)
	if err != nil {
		return fmt.Errorf("listing subtree: %w", err)
	}
	if len(members) > 0 && !members[0].IsTrashed() {
		return invalidState(op, "entry_id", "node is no longer trashed")
	}

	// Objects go first. Deleting a missing version succeeds, so a failed
	// purge can simply be retried.
	var refs []StorageRef
	seen := map[StorageRef]bool{}
	for _, m := range members {
		versions, err := s.db.ListVersions(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("listing versions of %s: %w", m.ID, err)
		}
		for _, v := range versions {
			if !v.Storage.IsZero() && !seen[v.Storage] {
				seen[v.Storage] = true
				refs = append(refs, v.Storage)
			}
		}
	}
	for _, ref := range refs {
		err := s.callGateway(op, "delete", ref, func() error {
			return s.gateway.Delete(ctx, ref.Key, ref.VersionID)
		})
		if err != nil {
			return err
		}
	}

	now := s.clock.Now()
	err = s.db.InTx(ctx, func(st Store) error {
		for i := len(members) - 1; i >= 0; i-- {
			m := members[i]
			if err := st.DeleteNode(ctx, m.ID); err != nil {
				return fmt.Errorf("deleting node %s: %w", m.ID, err)
			}
			if e, err := st.FindScheduledTrashEntry(ctx, m.ID); err != nil {
				return fmt.Errorf("loading trash entry of %s: %w", m.ID, err)
			} else if e != nil {
				if err := closeDeleted(ctx, st, e, now); err != nil {
					return err
				}
			}
			if err := s.logAction(ctx, st, m.ID, actor, LogPurged, ""); err != nil {
				return err
			}
		}
		fresh, err := st.GetTrashEntry(ctx, entry.ID)
		if err != nil {
			return fmt.Errorf("reloading trash entry: %w", err)
		}
		if fresh != nil && fresh.Status == TrashScheduled {
			return closeDeleted(ctx, st, fresh, now)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("purged", "entry_id", entry.ID, "node_id", entry.FileID, "nodes", len(members), "objects", len(refs))
	return nil
}

func closeDeleted(ctx context.Context, st Store, e *TrashEntry, now time.Time) error {
	e.Status = TrashDeleted
	e.ClosedAt = &now
	if err := st.UpdateTrashEntry(ctx, e); err != nil {
		return fmt.Errorf("closing trash entry %s: %w", e.ID, err)
	}
	return nil
}
