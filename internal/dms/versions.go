package dms

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

type versionInput struct {
	Action          VersionAction
	Storage         StorageRef
	Metadata        map[string]any
	Tier            StorageTier
	RestoreStatus   RestoreStatus
	InitialFilename string
}

// appendVersion adds the next version to n's chain and moves n's latest
// pointer to it. Numbers continue from the last assigned one, so numbers of
// deleted versions are never reused.
func (s *Service) appendVersion(ctx context.Context, st Store, n *Node, actor string, in versionInput) (*Version, error) {
	initial := in.InitialFilename
	if initial == "" && n.LatestVersionID != "" {
		latest, err := st.GetVersion(ctx, n.LatestVersionID)
		if err != nil {
			return nil, fmt.Errorf("loading latest version: %w", err)
		}
		if latest != nil {
			initial = latest.InitialFilename
		}
	}
	if initial == "" {
		initial = n.Name
	}
	if in.Tier == "" {
		in.Tier = TierStandard
	}
	if in.RestoreStatus == "" {
		in.RestoreStatus = RestoreAvailable
	}
	if in.Metadata == nil {
		in.Metadata = map[string]any{}
	}

	now := s.clock.Now()
	v := &Version{
		ID:              s.ids.New(),
		FileID:          n.ID,
		Number:          n.VersionSeq + 1,
		Action:          in.Action,
		Storage:         in.Storage,
		Metadata:        in.Metadata,
		Tier:            in.Tier,
		RestoreStatus:   in.RestoreStatus,
		InitialFilename: initial,
		CreatedBy:       actor,
		CreatedAt:       now,
	}
	if err := st.InsertVersion(ctx, v); err != nil {
		return nil, fmt.Errorf("inserting version %d of %s: %w", v.Number, n.ID, err)
	}

	n.VersionSeq = v.Number
	n.LatestVersionID = v.ID
	n.ModifiedAt = now
	if err := st.UpdateNode(ctx, n); err != nil {
		return nil, fmt.Errorf("updating latest version of %s: %w", n.ID, err)
	}
	return v, nil
}

// AppendVersion records a new version of a live file pointing at ref.
func (s *Service) AppendVersion(ctx context.Context, actor, fileID string, action VersionAction, ref StorageRef, metadata map[string]any, initialFilename string) (v *Version, err error) {
	const op = "AppendVersion"
	defer s.observe(op, time.Now(), &err)

	err = s.db.InTx(ctx, func(st Store) error {
		n, err := liveNode(ctx, st, op, "file_id", fileID)
		if err != nil {
			return err
		}
		if n.Kind != KindFile {
			return invalidState(op, "file_id", "folders have no versions")
		}
		if err := s.authorize(ctx, st, op, n, actor, LevelEditor); err != nil {
			return err
		}
		v, err = s.appendVersion(ctx, st, n, actor, versionInput{
			Action:          action,
			Storage:         ref,
			Metadata:        copyMetadata(metadata),
			InitialFilename: initialFilename,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ListVersions returns a file's version chain, oldest first.
func (s *Service) ListVersions(ctx context.Context, actor, fileID string) ([]*Version, error) {
	const op = "ListVersions"
	n, err := getNode(ctx, s.db, op, "file_id", fileID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, s.db, op, n, actor, LevelViewer); err != nil {
		return nil, err
	}
	return s.db.ListVersions(ctx, fileID)
}

// OpenVersion streams the content of one version. An empty versionID opens
// the latest one.
func (s *Service) OpenVersion(ctx context.Context, actor, fileID, versionID string) (io.ReadCloser, error) {
	const op = "OpenVersion"
	n, err := getNode(ctx, s.db, op, "file_id", fileID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, s.db, op, n, actor, LevelViewer); err != nil {
		return nil, err
	}
	if versionID == "" {
		versionID = n.LatestVersionID
	}
	v, err := s.versionOf(ctx, s.db, op, n, versionID)
	if err != nil {
		return nil, err
	}
	if !v.Readable() {
		return nil, invalidState(op, "version_id", "version is on the cold tier; request a tier restore first")
	}

	var rc io.ReadCloser
	err = s.callGateway(op, "get", v.Storage, func() error {
		var err error
		rc, err = s.gateway.Get(ctx, v.Storage.Key, v.Storage.VersionID)
		return err
	})
	return rc, err
}

func (s *Service) versionOf(ctx context.Context, st Store, op string, n *Node, versionID string) (*Version, error) {
	if versionID == "" {
		return nil, notFound(op, "version_id", versionID)
	}
	v, err := st.GetVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("loading version: %w", err)
	}
	if v == nil {
		return nil, notFound(op, "version_id", versionID)
	}
	if v.FileID != n.ID {
		return nil, invalidState(op, "version_id", "version belongs to another file")
	}
	return v, nil
}

// RestoreVersion makes an older version current again by appending a restore
// version that copies its storage reference and metadata. Only the owner may
// restore.
func (s *Service) RestoreVersion(ctx context.Context, actor, fileID, versionID string) (v *Version, err error) {
	const op = "RestoreVersion"
	defer s.observe(op, time.Now(), &err)

	err = s.db.InTx(ctx, func(st Store) error {
		n, err := liveNode(ctx, st, op, "file_id", fileID)
		if err != nil {
			return err
		}
		if n.OwnerID != actor {
			return denied(op, actor, "only the owner can restore a version")
		}
		target, err := s.versionOf(ctx, st, op, n, versionID)
		if err != nil {
			return err
		}
		if !target.Readable() {
			return invalidState(op, "version_id", "version is on the cold tier; request a tier restore first")
		}

		applySnapshot(n, target.Metadata)
		v, err = s.appendVersion(ctx, st, n, actor, versionInput{
			Action:          ActionRestore,
			Storage:         target.Storage,
			Metadata:        copyMetadata(target.Metadata),
			Tier:            target.Tier,
			RestoreStatus:   target.RestoreStatus,
			InitialFilename: target.InitialFilename,
		})
		if err != nil {
			return err
		}
		return s.logAction(ctx, st, n.ID, actor, LogVersionRestored, fmt.Sprintf("v%d -> v%d", target.Number, v.Number))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("version restored", "file_id", fileID, "from", versionID, "version", v.Number)
	return v, nil
}

// applySnapshot copies the content attributes recorded in an upload snapshot
// back onto the node.
func applySnapshot(n *Node, snap map[string]any) {
	if size, ok := metaInt64(snap, "size"); ok {
		n.Size = size
	}
	if ct, ok := snap["content_type"].(string); ok {
		n.ContentType = ct
	}
	for k, v := range snap {
		if k == "old_name" || k == "new_name" {
			continue
		}
		if n.Metadata == nil {
			n.Metadata = map[string]any{}
		}
		n.Metadata[k] = v
	}
}

func metaInt64(m map[string]any, key string) (int64, bool) {
	switch v := m[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// copyName returns "<base> (copy).<ext>".
func copyName(name string) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		return name + " (copy)"
	}
	return base + " (copy)" + ext
}

// Duplicate copies the latest content of a file into a new file under
// targetParentID (the actor's root when empty). The copy starts a fresh
// version chain and receives the source's grants. An empty newName yields
// "<base> (copy).<ext>".
func (s *Service) Duplicate(ctx context.Context, actor, sourceID, targetParentID, newName string) (n *Node, err error) {
	const op = "Duplicate"
	defer s.observe(op, time.Now(), &err)

	src, err := liveNode(ctx, s.db, op, "source_id", sourceID)
	if err != nil {
		return nil, err
	}
	if src.Kind != KindFile {
		return nil, invalidState(op, "source_id", "only files can be duplicated")
	}
	if err := s.authorize(ctx, s.db, op, src, actor, LevelEditor); err != nil {
		return nil, err
	}
	if src.LatestVersionID == "" {
		return nil, invalidState(op, "source_id", "file has no content")
	}
	latest, err := s.versionOf(ctx, s.db, op, src, src.LatestVersionID)
	if err != nil {
		return nil, err
	}
	if !latest.Readable() {
		return nil, invalidState(op, "source_id", "latest version is on the cold tier")
	}
	if newName == "" {
		newName = copyName(src.Name)
	}
	if err := validateName(op, newName); err != nil {
		return nil, err
	}

	ref := StorageRef{Key: objectKey(s.ids.New(), newName)}
	err = s.callGateway(op, "copy", latest.Storage, func() error {
		var err error
		ref.VersionID, err = s.gateway.Copy(ctx, latest.Storage.Key, latest.Storage.VersionID, ref.Key)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = s.db.InTx(ctx, func(st Store) error {
		var err error
		n, err = s.createNode(ctx, st, op, actor, targetParentID, newName, KindFile)
		if err != nil {
			return err
		}
		n.Size = src.Size
		n.ContentType = src.ContentType
		n.Metadata = copyMetadata(src.Metadata)
		if _, err := s.appendVersion(ctx, st, n, actor, versionInput{
			Action:          ActionDuplicate,
			Storage:         ref,
			Metadata:        copyMetadata(latest.Metadata),
			InitialFilename: newName,
		}); err != nil {
			return err
		}
		if err := s.copyGrants(ctx, st, src, n); err != nil {
			return err
		}
		return s.logAction(ctx, st, n.ID, actor, LogDuplicated, "from "+src.ID)
	})
	if err != nil {
		s.deleteObjects(context.WithoutCancel(ctx), op, []StorageRef{ref})
		return nil, err
	}

	s.logger.Info("file duplicated", "source_id", sourceID, "node_id", n.ID, "actor", actor)
	return n, nil
}

// copyGrants copies src's grants onto dst. Inherited grants already come from
// dst's own ancestors; grants src inherited from elsewhere become direct so
// the principals keep their access.
func (s *Service) copyGrants(ctx context.Context, st Store, src, dst *Node) error {
	grants, err := st.ListGrantsForFile(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("listing source grants: %w", err)
	}
	chain, err := ancestors(ctx, st, "Duplicate", dst)
	if err != nil {
		return err
	}
	isAncestor := make(map[string]bool, len(chain))
	for _, a := range chain {
		isAncestor[a.ID] = true
	}

	for _, g := range grants {
		if g.PrincipalID == dst.OwnerID {
			continue
		}
		if g.Inherited && isAncestor[g.InheritedFrom] {
			continue
		}
		cp := &Grant{
			FileID:      dst.ID,
			PrincipalID: g.PrincipalID,
			Level:       g.Level,
			GrantedBy:   g.GrantedBy,
			GrantedAt:   g.GrantedAt,
		}
		if err := st.UpsertGrant(ctx, cp); err != nil {
			return fmt.Errorf("copying grant for %s: %w", g.PrincipalID, err)
		}
	}
	return nil
}
