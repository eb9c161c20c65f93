package dms

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func validateName(op, name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return invalidState(op, "name", "name is empty")
	case name == "." || name == "..":
		return invalidState(op, "name", fmt.Sprintf("%q is not a valid name", name))
	case strings.ContainsAny(name, "/\x00"):
		return invalidState(op, "name", "name contains a path separator")
	}
	return nil
}

// CreateNode creates a file or folder under parentID, or a root owned by actor
// when parentID is empty. Nodes created under a parent belong to the parent's
// owner. The new node inherits the grants of its ancestors.
func (s *Service) CreateNode(ctx context.Context, actor, parentID, name string, kind NodeKind) (n *Node, err error) {
	const op = "CreateNode"
	defer s.observe(op, time.Now(), &err)

	if err := validateName(op, name); err != nil {
		return nil, err
	}
	if kind != KindFile && kind != KindFolder {
		return nil, invalidState(op, "kind", fmt.Sprintf("unknown kind %q", kind))
	}

	err = s.db.InTx(ctx, func(st Store) error {
		var err error
		n, err = s.createNode(ctx, st, op, actor, parentID, name, kind)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("node created", "node_id", n.ID, "kind", n.Kind, "parent_id", n.ParentID, "actor", actor)
	return n, nil
}

func (s *Service) createNode(ctx context.Context, st Store, op, actor, parentID, name string, kind NodeKind) (*Node, error) {
	owner := actor
	var parent *Node
	if parentID != "" {
		var err error
		parent, err = liveNode(ctx, st, op, "parent_id", parentID)
		if err != nil {
			return nil, err
		}
		if !parent.IsFolder() {
			return nil, invalidState(op, "parent_id", "parent is not a folder")
		}
		if err := s.authorize(ctx, st, op, parent, actor, LevelEditor); err != nil {
			return nil, err
		}
		owner = parent.OwnerID
	}

	existing, err := st.FindLiveSibling(ctx, owner, parentID, name, kind)
	if err != nil {
		return nil, fmt.Errorf("checking siblings: %w", err)
	}
	if existing != nil {
		return nil, conflict(op, "name", fmt.Sprintf("a %s named %q already exists", kind, name))
	}

	now := s.clock.Now()
	n := &Node{
		ID:         s.ids.New(),
		OwnerID:    owner,
		CreatedBy:  actor,
		Name:       name,
		Kind:       kind,
		ParentID:   parentID,
		Metadata:   map[string]any{},
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if kind == KindFile {
		n.Extension = splitExtension(name)
	}
	if err := st.InsertNode(ctx, n); err != nil {
		return nil, storeWriteErr(op, "name", "inserting node", err)
	}

	if parent != nil {
		if err := s.touch(ctx, st, parent, now); err != nil {
			return nil, err
		}
		if err := s.reconcileSubtree(ctx, st, []*Node{n}, nil, now); err != nil {
			return nil, err
		}
	}

	if err := s.logAction(ctx, st, n.ID, actor, LogCreated, string(kind)); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Service) touch(ctx context.Context, st Store, n *Node, now time.Time) error {
	n.ModifiedAt = now
	if err := st.UpdateNode(ctx, n); err != nil {
		return fmt.Errorf("updating modified time of %s: %w", n.ID, err)
	}
	return nil
}

// GetNode returns a node the actor can view. Trashed nodes are returned too.
func (s *Service) GetNode(ctx context.Context, actor, nodeID string) (*Node, error) {
	const op = "GetNode"
	n, err := getNode(ctx, s.db, op, "node_id", nodeID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, s.db, op, n, actor, LevelViewer); err != nil {
		return nil, err
	}
	return n, nil
}

// Rename changes a node's name. Renaming a file with content appends a
// rename version that keeps pointing at the current object.
func (s *Service) Rename(ctx context.Context, actor, nodeID, newName string) (n *Node, err error) {
	const op = "Rename"
	defer s.observe(op, time.Now(), &err)

	if err := validateName(op, newName); err != nil {
		return nil, err
	}

	err = s.db.InTx(ctx, func(st Store) error {
		var err error
		n, err = liveNode(ctx, st, op, "node_id", nodeID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, st, op, n, actor, LevelEditor); err != nil {
			return err
		}
		if n.Name == newName {
			return nil
		}

		existing, err := st.FindLiveSibling(ctx, n.OwnerID, n.ParentID, newName, n.Kind)
		if err != nil {
			return fmt.Errorf("checking siblings: %w", err)
		}
		if existing != nil && existing.ID != n.ID {
			return conflict(op, "name", fmt.Sprintf("a %s named %q already exists", n.Kind, newName))
		}

		oldName := n.Name
		n.Name = newName
		if n.Kind == KindFile {
			n.Extension = splitExtension(newName)
		}
		n.ModifiedAt = s.clock.Now()
		if err := st.UpdateNode(ctx, n); err != nil {
			return storeWriteErr(op, "name", "renaming node", err)
		}

		if n.Kind == KindFile && n.LatestVersionID != "" {
			latest, err := st.GetVersion(ctx, n.LatestVersionID)
			if err != nil {
				return fmt.Errorf("loading latest version: %w", err)
			}
			if latest != nil {
				_, err := s.appendVersion(ctx, st, n, actor, versionInput{
					Action:        ActionRename,
					Storage:       latest.Storage,
					Tier:          latest.Tier,
					RestoreStatus: latest.RestoreStatus,
					Metadata:      map[string]any{"old_name": oldName, "new_name": newName},
				})
				if err != nil {
					return err
				}
			}
		}

		return s.logAction(ctx, st, n.ID, actor, LogRenamed, oldName+" -> "+newName)
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Move reparents a node. An empty newParentID moves it to its owner's root.
// Inherited grants of the node and its subtree are recomputed against the
// new ancestor chain in the same transaction.
func (s *Service) Move(ctx context.Context, actor, nodeID, newParentID string) (n *Node, err error) {
	const op = "Move"
	defer s.observe(op, time.Now(), &err)

	if nodeID == newParentID {
		return nil, conflict(op, "parent_id", "cannot move a node into itself")
	}

	members, err := s.db.ListSubtree(ctx, nodeID, MaxTreeDepth)
	if err != nil {
		return nil, fmt.Errorf("listing subtree: %w", err)
	}

	err = s.db.InTx(ctx, func(st Store) error {
		var err error
		n, err = liveNode(ctx, st, op, "node_id", nodeID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, st, op, n, actor, LevelEditor); err != nil {
			return err
		}
		if n.ParentID == newParentID {
			return nil
		}

		now := s.clock.Now()
		var dest *Node
		if newParentID == "" {
			if actor != n.OwnerID {
				return denied(op, actor, "only the owner can move a node to the root")
			}
		} else {
			dest, err = liveNode(ctx, st, op, "parent_id", newParentID)
			if err != nil {
				return err
			}
			if !dest.IsFolder() {
				return invalidState(op, "parent_id", "destination is not a folder")
			}
			if err := s.authorize(ctx, st, op, dest, actor, LevelEditor); err != nil {
				return err
			}
			if dest.OwnerID != n.OwnerID {
				return denied(op, actor, "cannot move a node into another owner's tree")
			}
			chain, err := ancestors(ctx, st, op, dest)
			if err != nil {
				return err
			}
			for _, a := range chain {
				if a.ID == n.ID {
					return conflict(op, "parent_id", "cannot move a node into its own descendant")
				}
			}
		}

		existing, err := st.FindLiveSibling(ctx, n.OwnerID, newParentID, n.Name, n.Kind)
		if err != nil {
			return fmt.Errorf("checking siblings: %w", err)
		}
		if existing != nil {
			return conflict(op, "name", fmt.Sprintf("a %s named %q already exists at the destination", n.Kind, n.Name))
		}

		oldParentID := n.ParentID
		n.ParentID = newParentID
		n.ModifiedAt = now
		if err := st.UpdateNode(ctx, n); err != nil {
			return storeWriteErr(op, "name", "reparenting node", err)
		}
		if oldParentID != "" {
			if old, err := st.GetNode(ctx, oldParentID); err != nil {
				return fmt.Errorf("loading old parent: %w", err)
			} else if old != nil {
				if err := s.touch(ctx, st, old, now); err != nil {
					return err
				}
			}
		}
		if dest != nil {
			if err := s.touch(ctx, st, dest, now); err != nil {
				return err
			}
		}

		if len(members) == 0 || members[0].ID != n.ID {
			members = []*Node{n}
		}
		if err := s.reconcileSubtree(ctx, st, members, nil, now); err != nil {
			return err
		}
		return s.logAction(ctx, st, n.ID, actor, LogMoved, oldParentID+" -> "+newParentID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("node moved", "node_id", n.ID, "parent_id", newParentID, "subtree", len(members), "actor", actor)
	return n, nil
}

// ListChildren returns the children of parentID ordered by (kind, name),
// folders first. An empty parentID lists the actor's roots.
func (s *Service) ListChildren(ctx context.Context, actor, parentID string, includeTrashed bool) ([]*Node, error) {
	const op = "ListChildren"
	if parentID == "" {
		return s.db.ListRoots(ctx, actor, includeTrashed)
	}

	parent, err := getNode(ctx, s.db, op, "parent_id", parentID)
	if err != nil {
		return nil, err
	}
	if parent.IsTrashed() && !includeTrashed {
		return nil, notFound(op, "parent_id", parentID)
	}
	if err := s.authorize(ctx, s.db, op, parent, actor, LevelViewer); err != nil {
		return nil, err
	}
	return s.db.ListChildren(ctx, parentID, includeTrashed)
}

// EnsurePath walks dirs below rootID, creating missing folders. It returns
// the id of the deepest folder, or rootID when dirs is empty.
func (s *Service) EnsurePath(ctx context.Context, actor, rootID string, dirs []string) (folderID string, err error) {
	const op = "EnsurePath"
	for _, d := range dirs {
		if err := validateName(op, d); err != nil {
			return "", err
		}
	}
	err = s.db.InTx(ctx, func(st Store) error {
		var err error
		folderID, _, err = s.ensurePath(ctx, st, op, actor, rootID, dirs)
		return err
	})
	return folderID, err
}

// ensurePath returns the deepest folder id and the folders it had to create.
func (s *Service) ensurePath(ctx context.Context, st Store, op, actor, rootID string, dirs []string) (string, []*Node, error) {
	var created []*Node
	parentID := rootID
	for _, dir := range dirs {
		owner := actor
		if parentID != "" {
			parent, err := liveNode(ctx, st, op, "parent_id", parentID)
			if err != nil {
				return "", nil, err
			}
			owner = parent.OwnerID
		}
		existing, err := st.FindLiveSibling(ctx, owner, parentID, dir, KindFolder)
		if err != nil {
			return "", nil, fmt.Errorf("looking up folder %q: %w", dir, err)
		}
		if existing != nil {
			parentID = existing.ID
			continue
		}
		folder, err := s.createNode(ctx, st, op, actor, parentID, dir, KindFolder)
		if err != nil {
			return "", nil, err
		}
		created = append(created, folder)
		parentID = folder.ID
	}
	return parentID, created, nil
}
