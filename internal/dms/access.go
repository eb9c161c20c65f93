package dms

import (
	"context"
	"fmt"
	"time"
)

// AccessSource says where an effective access level comes from.
type AccessSource string

const (
	SourceNone      AccessSource = "none"
	SourceOwner     AccessSource = "owner"
	SourceDirect    AccessSource = "direct"
	SourceInherited AccessSource = "inherited"
)

// EffectiveAccess is the resolved access of one principal on one node.
type EffectiveAccess struct {
	Level         AccessLevel
	Source        AccessSource
	InheritedFrom string
}

// GrantOutcome is the result of Grant: either an applied grant (owner) or a
// pending share request (editor).
type GrantOutcome struct {
	Grant   *Grant
	Request *ShareRequest
}

func (s *Service) effective(ctx context.Context, st Store, n *Node, principal string) (EffectiveAccess, error) {
	if principal == n.OwnerID {
		return EffectiveAccess{Level: LevelOwner, Source: SourceOwner}, nil
	}
	g, err := st.GetGrant(ctx, n.ID, principal)
	if err != nil {
		return EffectiveAccess{}, fmt.Errorf("loading grant: %w", err)
	}
	if g == nil {
		return EffectiveAccess{Level: LevelNone, Source: SourceNone}, nil
	}
	if g.Inherited {
		return EffectiveAccess{Level: g.Level, Source: SourceInherited, InheritedFrom: g.InheritedFrom}, nil
	}
	return EffectiveAccess{Level: g.Level, Source: SourceDirect}, nil
}

func (s *Service) authorize(ctx context.Context, st Store, op string, n *Node, actor string, need AccessLevel) error {
	acc, err := s.effective(ctx, st, n, actor)
	if err != nil {
		return err
	}
	if !acc.Level.AtLeast(need) {
		return denied(op, actor, fmt.Sprintf("%s access required on %s", need, n.ID))
	}
	return nil
}

// ResolveEffectiveLevel returns principal's access on a node: owner, then a
// direct grant, then an inherited grant, else none.
func (s *Service) ResolveEffectiveLevel(ctx context.Context, nodeID, principal string) (*EffectiveAccess, error) {
	n, err := getNode(ctx, s.db, "ResolveEffectiveLevel", "node_id", nodeID)
	if err != nil {
		return nil, err
	}
	acc, err := s.effective(ctx, s.db, n, principal)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// Grant gives principal the level on a node. Owners grant immediately and the
// grant propagates to the subtree; editors create a share request for the
// owner to review.
func (s *Service) Grant(ctx context.Context, actor, nodeID, principal string, level AccessLevel) (out *GrantOutcome, err error) {
	const op = "Grant"
	defer s.observe(op, time.Now(), &err)

	if !level.Valid() {
		return nil, invalidState(op, "level", fmt.Sprintf("unknown level %q", level))
	}
	if principal == "" {
		return nil, invalidState(op, "principal", "principal is empty")
	}
	if principal == actor {
		return nil, conflict(op, "principal", "cannot share with yourself")
	}

	members, err := s.db.ListSubtree(ctx, nodeID, MaxTreeDepth)
	if err != nil {
		return nil, fmt.Errorf("listing subtree: %w", err)
	}

	var ev Event
	err = s.db.InTx(ctx, func(st Store) error {
		n, err := liveNode(ctx, st, op, "node_id", nodeID)
		if err != nil {
			return err
		}
		acc, err := s.effective(ctx, st, n, actor)
		if err != nil {
			return err
		}
		if !acc.Level.AtLeast(LevelEditor) {
			return denied(op, actor, "sharing requires owner or editor access")
		}
		if principal == n.OwnerID {
			return conflict(op, "principal", "principal owns the node")
		}
		now := s.clock.Now()

		if acc.Level == LevelOwner {
			g, err := s.applyDirectGrant(ctx, st, n, members, principal, level, actor, now)
			if err != nil {
				return err
			}
			out = &GrantOutcome{Grant: g}
			ev = Event{Type: EventAccessGranted, FileID: n.ID, FileName: n.Name, OwnerID: n.OwnerID, ActorID: actor, TargetID: principal, Level: level, At: now}
			return nil
		}

		dup, err := st.FindPendingShareRequest(ctx, n.ID, principal, level)
		if err != nil {
			return fmt.Errorf("checking pending requests: %w", err)
		}
		if dup != nil {
			return conflict(op, "principal", "an identical request is already pending")
		}
		req := &ShareRequest{
			ID:          s.ids.New(),
			FileID:      n.ID,
			RequesterID: actor,
			TargetID:    principal,
			Level:       level,
			Kind:        RequestShare,
			Status:      RequestPending,
			CreatedAt:   now,
		}
		if err := st.InsertShareRequest(ctx, req); err != nil {
			return fmt.Errorf("inserting share request: %w", err)
		}
		out = &GrantOutcome{Request: req}
		ev = Event{Type: EventShareRequested, FileID: n.ID, FileName: n.Name, OwnerID: n.OwnerID, ActorID: actor, TargetID: principal, Level: level, RequestID: req.ID, At: now}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ev)
	return out, nil
}

func (s *Service) applyDirectGrant(ctx context.Context, st Store, n *Node, members []*Node, principal string, level AccessLevel, grantedBy string, now time.Time) (*Grant, error) {
	g := &Grant{
		FileID:      n.ID,
		PrincipalID: principal,
		Level:       level,
		GrantedBy:   grantedBy,
		GrantedAt:   now,
	}
	if err := st.UpsertGrant(ctx, g); err != nil {
		return nil, fmt.Errorf("writing grant: %w", err)
	}
	if n.IsFolder() {
		if len(members) == 0 || members[0].ID != n.ID {
			members = []*Node{n}
		}
		if err := s.propagateGrant(ctx, st, members, g, now); err != nil {
			return nil, err
		}
	}
	if err := s.logAction(ctx, st, n.ID, grantedBy, LogShared, principal+"="+string(level)); err != nil {
		return nil, err
	}
	s.logger.Info("access granted", "node_id", n.ID, "principal", principal, "level", level, "subtree", len(members))
	return g, nil
}

// Revoke removes principal's direct grant on a node. Descendants that
// inherited it fall back to the next ancestor grant, if any.
func (s *Service) Revoke(ctx context.Context, actor, nodeID, principal string) (err error) {
	const op = "Revoke"
	defer s.observe(op, time.Now(), &err)

	members, err := s.db.ListSubtree(ctx, nodeID, MaxTreeDepth)
	if err != nil {
		return fmt.Errorf("listing subtree: %w", err)
	}

	var ev Event
	err = s.db.InTx(ctx, func(st Store) error {
		n, err := liveNode(ctx, st, op, "node_id", nodeID)
		if err != nil {
			return err
		}
		if n.OwnerID != actor {
			return denied(op, actor, "only the owner can revoke access")
		}
		g, err := st.GetGrant(ctx, n.ID, principal)
		if err != nil {
			return fmt.Errorf("loading grant: %w", err)
		}
		if g == nil {
			return notFound(op, "principal", principal)
		}
		if g.Inherited {
			return invalidState(op, "principal", "grant is inherited from "+g.InheritedFrom)
		}
		if err := st.DeleteGrant(ctx, n.ID, principal); err != nil {
			return fmt.Errorf("deleting grant: %w", err)
		}
		if len(members) == 0 || members[0].ID != n.ID {
			members = []*Node{n}
		}
		now := s.clock.Now()
		if err := s.reconcileSubtree(ctx, st, members, onlyPrincipal(principal), now); err != nil {
			return err
		}
		ev = Event{Type: EventAccessRevoked, FileID: n.ID, FileName: n.Name, OwnerID: n.OwnerID, ActorID: actor, TargetID: principal, Level: g.Level, At: now}
		return s.logAction(ctx, st, n.ID, actor, LogUnshared, principal)
	})
	if err != nil {
		return err
	}
	s.publish(ev)
	return nil
}

// ListGrants returns every grant on a node the actor can view.
func (s *Service) ListGrants(ctx context.Context, actor, nodeID string) ([]*Grant, error) {
	const op = "ListGrants"
	n, err := getNode(ctx, s.db, op, "node_id", nodeID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, s.db, op, n, actor, LevelViewer); err != nil {
		return nil, err
	}
	return s.db.ListGrantsForFile(ctx, nodeID)
}

// ListSharedWithMe returns the live nodes directly shared with principal.
func (s *Service) ListSharedWithMe(ctx context.Context, principal string) ([]*Node, error) {
	grants, err := s.db.ListDirectGrantsForPrincipal(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("listing grants: %w", err)
	}
	var nodes []*Node
	for _, g := range grants {
		n, err := s.db.GetNode(ctx, g.FileID)
		if err != nil {
			return nil, fmt.Errorf("loading node %s: %w", g.FileID, err)
		}
		if n != nil && !n.IsTrashed() {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

// RequestUpgrade asks the owner for a higher access level on a node. The
// requester must already hold some access below the requested level.
func (s *Service) RequestUpgrade(ctx context.Context, actor, nodeID string, level AccessLevel) (req *ShareRequest, err error) {
	const op = "RequestUpgrade"
	defer s.observe(op, time.Now(), &err)

	if !level.Valid() {
		return nil, invalidState(op, "level", fmt.Sprintf("unknown level %q", level))
	}

	var ev Event
	err = s.db.InTx(ctx, func(st Store) error {
		n, err := liveNode(ctx, st, op, "node_id", nodeID)
		if err != nil {
			return err
		}
		acc, err := s.effective(ctx, st, n, actor)
		if err != nil {
			return err
		}
		switch {
		case acc.Level == LevelOwner:
			return conflict(op, "level", "owner already has full access")
		case acc.Level == LevelNone:
			return denied(op, actor, "no access to upgrade")
		case acc.Level.AtLeast(level):
			return conflict(op, "level", fmt.Sprintf("already holds %s access", acc.Level))
		}

		dup, err := st.FindPendingShareRequest(ctx, n.ID, actor, level)
		if err != nil {
			return fmt.Errorf("checking pending requests: %w", err)
		}
		if dup != nil {
			return conflict(op, "level", "an identical request is already pending")
		}

		now := s.clock.Now()
		req = &ShareRequest{
			ID:          s.ids.New(),
			FileID:      n.ID,
			RequesterID: actor,
			TargetID:    actor,
			Level:       level,
			Kind:        RequestUpgrade,
			Status:      RequestPending,
			CreatedAt:   now,
		}
		if err := st.InsertShareRequest(ctx, req); err != nil {
			return fmt.Errorf("inserting upgrade request: %w", err)
		}
		ev = Event{Type: EventAccessUpgradeRequested, FileID: n.ID, FileName: n.Name, OwnerID: n.OwnerID, ActorID: actor, TargetID: actor, Level: level, RequestID: req.ID, At: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ev)
	return req, nil
}

// ReviewShareRequest approves or rejects a pending share or upgrade request.
// Only the node's owner may review.
func (s *Service) ReviewShareRequest(ctx context.Context, actor, requestID string, approve bool, reason string) (req *ShareRequest, err error) {
	const op = "ReviewShareRequest"
	defer s.observe(op, time.Now(), &err)

	pending, err := s.db.GetShareRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("loading share request: %w", err)
	}
	if pending == nil {
		return nil, notFound(op, "request_id", requestID)
	}
	var members []*Node
	if approve {
		if members, err = s.db.ListSubtree(ctx, pending.FileID, MaxTreeDepth); err != nil {
			return nil, fmt.Errorf("listing subtree: %w", err)
		}
	}

	var ev Event
	err = s.db.InTx(ctx, func(st Store) error {
		var err error
		req, err = st.GetShareRequest(ctx, requestID)
		if err != nil {
			return fmt.Errorf("loading share request: %w", err)
		}
		if req == nil {
			return notFound(op, "request_id", requestID)
		}
		n, err := liveNode(ctx, st, op, "file_id", req.FileID)
		if err != nil {
			return err
		}
		if n.OwnerID != actor {
			return denied(op, actor, "only the owner can review requests")
		}
		if req.Status != RequestPending {
			return invalidState(op, "status", "request is already "+string(req.Status))
		}

		now := s.clock.Now()
		req.Status = RequestRejected
		if approve {
			req.Status = RequestApproved
		}
		req.ReviewerID = actor
		req.ReviewedAt = &now
		req.Reason = reason
		if err := st.UpdateShareRequest(ctx, req); err != nil {
			return fmt.Errorf("updating share request: %w", err)
		}

		if approve {
			if _, err := s.applyDirectGrant(ctx, st, n, members, req.TargetID, req.Level, actor, now); err != nil {
				return err
			}
		}

		ev = Event{
			Type:      requestEvent(req.Kind, req.Status),
			FileID:    n.ID,
			FileName:  n.Name,
			OwnerID:   n.OwnerID,
			ActorID:   actor,
			TargetID:  req.TargetID,
			Level:     req.Level,
			RequestID: req.ID,
			Reason:    reason,
			At:        now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ev)
	return req, nil
}

// ListPendingRequests returns the pending requests on nodes owned by owner.
func (s *Service) ListPendingRequests(ctx context.Context, owner string) ([]*ShareRequest, error) {
	return s.db.ListPendingShareRequests(ctx, owner)
}
