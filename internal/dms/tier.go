package dms

import (
	"context"
	"fmt"
	"time"
)

// Archive moves every standard-tier version of a live file to the cold tier
// without trashing it.
func (s *Service) Archive(ctx context.Context, actor, fileID string) (err error) {
	const op = "Archive"
	defer s.observe(op, time.Now(), &err)

	n, err := liveNode(ctx, s.db, op, "file_id", fileID)
	if err != nil {
		return err
	}
	if n.Kind != KindFile {
		return invalidState(op, "file_id", "folders have no content to archive")
	}
	if err := s.authorize(ctx, s.db, op, n, actor, LevelEditor); err != nil {
		return err
	}
	versions, err := s.db.ListVersions(ctx, n.ID)
	if err != nil {
		return fmt.Errorf("listing versions: %w", err)
	}

	moved := map[StorageRef]string{}
	var created []StorageRef
	for _, v := range versions {
		if v.Tier != TierStandard || v.Storage.IsZero() {
			continue
		}
		if _, ok := moved[v.Storage]; ok {
			continue
		}
		var cold string
		err := s.callGateway(op, "copy_with_tier", v.Storage, func() error {
			var err error
			cold, err = s.gateway.CopyWithTier(ctx, v.Storage.Key, v.Storage.VersionID, TierCold)
			return err
		})
		if err != nil {
			s.deleteObjects(context.WithoutCancel(ctx), op, created)
			return err
		}
		moved[v.Storage] = cold
		created = append(created, StorageRef{Key: v.Storage.Key, VersionID: cold})
	}
	if len(moved) == 0 {
		return nil
	}

	err = s.db.InTx(ctx, func(st Store) error {
		current, err := st.ListVersions(ctx, n.ID)
		if err != nil {
			return fmt.Errorf("listing versions: %w", err)
		}
		for _, v := range current {
			cold, ok := moved[v.Storage]
			if !ok || v.Tier != TierStandard {
				continue
			}
			v.Storage.VersionID = cold
			v.Tier = TierCold
			v.RestoreStatus = RestoreAvailable
			if err := st.UpdateVersion(ctx, v); err != nil {
				return fmt.Errorf("archiving version %d: %w", v.Number, err)
			}
		}
		return s.logAction(ctx, st, n.ID, actor, LogArchived, fmt.Sprintf("%d objects", len(moved)))
	})
	if err != nil {
		s.deleteObjects(context.WithoutCancel(ctx), op, created)
		return err
	}

	stale := make([]StorageRef, 0, len(moved))
	for ref := range moved {
		stale = append(stale, ref)
	}
	s.deleteObjects(ctx, op, stale)
	return nil
}

// BulkArchive archives every file in ids independently.
func (s *Service) BulkArchive(ctx context.Context, actor string, ids []string) []ItemResult {
	return s.runBatch(ctx, "bulk_archive", ids, func(ctx context.Context, id string) error {
		return s.Archive(ctx, actor, id)
	})
}

// RequestTierRestore starts retrieval of a file's cold-tier latest version.
// PollTierRestores completes it.
func (s *Service) RequestTierRestore(ctx context.Context, actor, fileID string) (err error) {
	const op = "RequestTierRestore"
	defer s.observe(op, time.Now(), &err)

	n, err := getNode(ctx, s.db, op, "file_id", fileID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, s.db, op, n, actor, LevelEditor); err != nil {
		return err
	}
	if n.LatestVersionID == "" {
		return invalidState(op, "file_id", "file has no content")
	}
	v, err := s.versionOf(ctx, s.db, op, n, n.LatestVersionID)
	if err != nil {
		return err
	}
	if v.Tier != TierCold {
		return invalidState(op, "file_id", "latest version is not on the cold tier")
	}
	if v.RestoreStatus != RestoreAvailable {
		return nil
	}

	err = s.callGateway(op, "restore_object", v.Storage, func() error {
		return s.gateway.RequestColdRestore(ctx, v.Storage.Key, v.Storage.VersionID, s.opts.ColdRestoreDays)
	})
	if err != nil {
		return err
	}

	return s.db.InTx(ctx, func(st Store) error {
		fresh, err := st.GetVersion(ctx, v.ID)
		if err != nil {
			return fmt.Errorf("reloading version: %w", err)
		}
		if fresh == nil {
			return notFound(op, "version_id", v.ID)
		}
		fresh.RestoreStatus = RestoreRestoring
		if err := st.UpdateVersion(ctx, fresh); err != nil {
			return fmt.Errorf("marking version restoring: %w", err)
		}
		return nil
	})
}

// BulkTierRestore requests tier restores for every file in ids independently.
func (s *Service) BulkTierRestore(ctx context.Context, actor string, ids []string) []ItemResult {
	return s.runBatch(ctx, "bulk_tier_restore", ids, func(ctx context.Context, id string) error {
		return s.RequestTierRestore(ctx, actor, id)
	})
}

// PollTierRestores checks every version waiting on a cold restore. Finished
// restores of a live file's latest version are copied back to the standard
// tier; others become readable in place.
func (s *Service) PollTierRestores(ctx context.Context) ([]ItemResult, error) {
	versions, err := s.db.ListVersionsByRestoreStatus(ctx, RestoreRestoring, s.opts.PurgeBatchSize)
	if err != nil {
		return nil, fmt.Errorf("listing restoring versions: %w", err)
	}
	ids := make([]string, len(versions))
	for i, v := range versions {
		ids[i] = v.ID
	}
	return s.runBatch(ctx, "tier_restore_poll", ids, s.pollTierRestore), nil
}

func (s *Service) pollTierRestore(ctx context.Context, versionID string) error {
	const op = "PollTierRestores"
	v, err := s.db.GetVersion(ctx, versionID)
	if err != nil {
		return fmt.Errorf("loading version: %w", err)
	}
	if v == nil || v.RestoreStatus != RestoreRestoring {
		return nil
	}

	var ready bool
	err = s.callGateway(op, "head_object", v.Storage, func() error {
		var err error
		ready, err = s.gateway.ColdRestoreReady(ctx, v.Storage.Key, v.Storage.VersionID)
		return err
	})
	if err != nil || !ready {
		return err
	}

	n, err := s.db.GetNode(ctx, v.FileID)
	if err != nil {
		return fmt.Errorf("loading node: %w", err)
	}
	promote := n != nil && !n.IsTrashed() && n.LatestVersionID == v.ID

	var standard string
	if promote {
		err := s.callGateway(op, "copy_with_tier", v.Storage, func() error {
			var err error
			standard, err = s.gateway.CopyWithTier(ctx, v.Storage.Key, v.Storage.VersionID, TierStandard)
			return err
		})
		if err != nil {
			return err
		}
	}

	var stale []StorageRef
	err = s.db.InTx(ctx, func(st Store) error {
		fresh, err := st.GetVersion(ctx, v.ID)
		if err != nil {
			return fmt.Errorf("reloading version: %w", err)
		}
		if fresh == nil || fresh.RestoreStatus != RestoreRestoring {
			return nil
		}
		if !promote {
			fresh.RestoreStatus = RestoreRestored
			return st.UpdateVersion(ctx, fresh)
		}

		old := fresh.Storage
		fresh.Storage.VersionID = standard
		fresh.Tier = TierStandard
		fresh.RestoreStatus = RestoreAvailable
		if err := st.UpdateVersion(ctx, fresh); err != nil {
			return fmt.Errorf("promoting version: %w", err)
		}
		others, err := st.ListVersions(ctx, fresh.FileID)
		if err != nil {
			return fmt.Errorf("listing versions: %w", err)
		}
		for _, o := range others {
			if o.ID != fresh.ID && o.Storage == old {
				return nil
			}
		}
		stale = append(stale, old)
		return nil
	})
	if err != nil {
		return err
	}
	s.deleteObjects(ctx, op, stale)
	s.logger.Info("cold restore completed", "version_id", v.ID, "file_id", v.FileID, "promoted", promote)
	return nil
}
