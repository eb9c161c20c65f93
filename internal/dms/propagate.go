package dms

import (
	"context"
	"fmt"
	"time"
)

// grantSource is the direct grant an inherited grant is derived from.
type grantSource struct {
	level     AccessLevel
	from      string
	grantedBy string
}

// propagateGrant writes g, a direct grant on members[0], as an inherited grant
// onto every descendant that has no direct grant of its own for the principal.
// Inherited grants from other ancestors are overwritten, so the most recently
// applied ancestor grant wins.
func (s *Service) propagateGrant(ctx context.Context, st Store, members []*Node, g *Grant, now time.Time) error {
	if len(members) < 2 {
		return nil
	}
	reached := map[string]bool{members[0].ID: true}
	for _, m := range members[1:] {
		node, err := st.GetNode(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("loading %s: %w", m.ID, err)
		}
		if node == nil || !reached[node.ParentID] {
			continue
		}
		reached[node.ID] = true
		if node.OwnerID == g.PrincipalID {
			continue
		}
		cur, err := st.GetGrant(ctx, node.ID, g.PrincipalID)
		if err != nil {
			return fmt.Errorf("loading grant on %s: %w", node.ID, err)
		}
		if cur != nil && !cur.Inherited {
			continue
		}
		if cur != nil && cur.InheritedFrom == g.FileID && cur.Level == g.Level {
			continue
		}
		if err := st.UpsertGrant(ctx, &Grant{
			FileID:        node.ID,
			PrincipalID:   g.PrincipalID,
			Level:         g.Level,
			GrantedBy:     g.GrantedBy,
			GrantedAt:     now,
			Inherited:     true,
			InheritedFrom: g.FileID,
		}); err != nil {
			return fmt.Errorf("writing inherited grant on %s: %w", node.ID, err)
		}
	}
	return nil
}

// reconcileSubtree repairs the inherited grants of members after a move,
// revoke or copy. An inherited grant whose source is still an ancestor with a
// direct grant for the principal is kept, following that grant's level. Any
// other node inherits from its nearest ancestor with a direct grant, and
// loses the grant when there is none. Direct grants are never touched.
// members[0] is the subtree root and parents must precede their children.
// only restricts the work to the given principals; nil means every principal.
//
// members is a snapshot taken before the transaction. Nodes that left the
// subtree since are skipped; nodes that joined it are picked up by the next
// pass over them.
func (s *Service) reconcileSubtree(ctx context.Context, st Store, members []*Node, only map[string]bool, now time.Time) error {
	if len(members) == 0 {
		return nil
	}
	want := func(principal string) bool {
		return only == nil || only[principal]
	}

	root, err := st.GetNode(ctx, members[0].ID)
	if err != nil {
		return fmt.Errorf("loading subtree root: %w", err)
	}
	if root == nil {
		return nil
	}

	chain, err := ancestors(ctx, st, "reconcile", root)
	if err != nil {
		return err
	}
	// Sources per principal, outermost first.
	seed := make(map[string][]grantSource)
	for i := len(chain) - 1; i >= 0; i-- {
		grants, err := st.ListGrantsForFile(ctx, chain[i].ID)
		if err != nil {
			return fmt.Errorf("listing grants of %s: %w", chain[i].ID, err)
		}
		for _, g := range grants {
			if !g.Inherited && want(g.PrincipalID) {
				seed[g.PrincipalID] = append(seed[g.PrincipalID], grantSource{level: g.Level, from: chain[i].ID, grantedBy: g.GrantedBy})
			}
		}
	}

	passdown := map[string]map[string][]grantSource{}
	for _, m := range members {
		node := root
		var incoming map[string][]grantSource
		if m.ID == root.ID {
			incoming = seed
		} else {
			node, err = st.GetNode(ctx, m.ID)
			if err != nil {
				return fmt.Errorf("loading %s: %w", m.ID, err)
			}
			if node == nil {
				continue
			}
			var ok bool
			if incoming, ok = passdown[node.ParentID]; !ok {
				continue
			}
		}

		grants, err := st.ListGrantsForFile(ctx, node.ID)
		if err != nil {
			return fmt.Errorf("listing grants of %s: %w", node.ID, err)
		}
		direct := make(map[string]*Grant)
		inherited := make(map[string]*Grant)
		for _, g := range grants {
			if g.Inherited {
				inherited[g.PrincipalID] = g
			} else {
				direct[g.PrincipalID] = g
			}
		}

		for principal, sources := range incoming {
			if len(sources) == 0 || direct[principal] != nil || principal == node.OwnerID {
				continue
			}
			cur := inherited[principal]
			delete(inherited, principal)
			src := sources[len(sources)-1]
			if cur != nil {
				for _, candidate := range sources {
					if candidate.from == cur.InheritedFrom {
						src = candidate
						break
					}
				}
			}
			if cur != nil && cur.Level == src.level && cur.InheritedFrom == src.from {
				continue
			}
			g := &Grant{
				FileID:        node.ID,
				PrincipalID:   principal,
				Level:         src.level,
				GrantedBy:     src.grantedBy,
				GrantedAt:     now,
				Inherited:     true,
				InheritedFrom: src.from,
			}
			if err := st.UpsertGrant(ctx, g); err != nil {
				return fmt.Errorf("writing inherited grant on %s: %w", node.ID, err)
			}
		}
		for principal := range inherited {
			if !want(principal) {
				continue
			}
			if err := st.DeleteGrant(ctx, node.ID, principal); err != nil {
				return fmt.Errorf("removing stale grant on %s: %w", node.ID, err)
			}
		}

		if node.IsFolder() {
			next := make(map[string][]grantSource, len(incoming)+len(direct))
			for p, sources := range incoming {
				next[p] = sources
			}
			for p, g := range direct {
				if want(p) {
					sources := make([]grantSource, len(incoming[p]), len(incoming[p])+1)
					copy(sources, incoming[p])
					next[p] = append(sources, grantSource{level: g.Level, from: node.ID, grantedBy: g.GrantedBy})
				}
			}
			passdown[node.ID] = next
		}
	}
	return nil
}

func onlyPrincipal(p string) map[string]bool {
	return map[string]bool{p: true}
}
