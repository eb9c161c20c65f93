package dms

import (
	"context"
	"time"
)

// Store is the repository of named queries over the persisted state.
// Lookups of a single record return (nil, nil) when the record does not exist.
type Store interface {
	// Nodes
	InsertNode(ctx context.Context, n *Node) error
	GetNode(ctx context.Context, id string) (*Node, error)
	// FindLiveSibling returns the non-trashed node named name of the given kind
	// directly under parentID (or among ownerID's roots when parentID is empty).
	FindLiveSibling(ctx context.Context, ownerID, parentID, name string, kind NodeKind) (*Node, error)
	// ListChildren returns children ordered by (kind, name), folders first.
	ListChildren(ctx context.Context, parentID string, includeTrashed bool) ([]*Node, error)
	ListRoots(ctx context.Context, ownerID string, includeTrashed bool) ([]*Node, error)
	// ListSubtree returns rootID and all its descendants down to maxDepth levels,
	// parents always before their children.
	ListSubtree(ctx context.Context, rootID string, maxDepth int) ([]*Node, error)
	UpdateNode(ctx context.Context, n *Node) error
	SetTrashedAt(ctx context.Context, ids []string, at *time.Time) error
	DeleteNode(ctx context.Context, id string) error

	// Grants
	GetGrant(ctx context.Context, fileID, principalID string) (*Grant, error)
	ListGrantsForFile(ctx context.Context, fileID string) ([]*Grant, error)
	ListDirectGrantsForPrincipal(ctx context.Context, principalID string) ([]*Grant, error)
	UpsertGrant(ctx context.Context, g *Grant) error
	DeleteGrant(ctx context.Context, fileID, principalID string) error

	// Versions
	InsertVersion(ctx context.Context, v *Version) error
	GetVersion(ctx context.Context, id string) (*Version, error)
	// ListVersions returns a file's versions ordered by version number.
	ListVersions(ctx context.Context, fileID string) ([]*Version, error)
	ListVersionsByRestoreStatus(ctx context.Context, status RestoreStatus, limit int) ([]*Version, error)
	UpdateVersion(ctx context.Context, v *Version) error
	DeleteVersion(ctx context.Context, id string) error

	// Trash entries
	InsertTrashEntry(ctx context.Context, e *TrashEntry) error
	GetTrashEntry(ctx context.Context, id string) (*TrashEntry, error)
	FindScheduledTrashEntry(ctx context.Context, fileID string) (*TrashEntry, error)
	ListDueTrashEntries(ctx context.Context, now time.Time, limit int) ([]*TrashEntry, error)
	ListScheduledTrashEntries(ctx context.Context, ownerID string) ([]*TrashEntry, error)
	UpdateTrashEntry(ctx context.Context, e *TrashEntry) error

	// Share requests
	InsertShareRequest(ctx context.Context, r *ShareRequest) error
	GetShareRequest(ctx context.Context, id string) (*ShareRequest, error)
	FindPendingShareRequest(ctx context.Context, fileID, targetID string, level AccessLevel) (*ShareRequest, error)
	ListPendingShareRequests(ctx context.Context, ownerID string) ([]*ShareRequest, error)
	UpdateShareRequest(ctx context.Context, r *ShareRequest) error

	// Action log
	InsertAction(ctx context.Context, e *ActionLogEntry) error
	ListActions(ctx context.Context, fileID string) ([]*ActionLogEntry, error)

	// Notifications
	InsertNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, recipientID string, limit int) ([]*Notification, error)
}

// Database is a Store with a transactional boundary.
type Database interface {
	Store

	// InTx runs fn inside a single transaction. The transaction commits when fn
	// returns nil and rolls back otherwise. fn must only use the Store it is
	// given.
	InTx(ctx context.Context, fn func(Store) error) error

	// CheckMigrations verifies the schema is at the latest version.
	CheckMigrations() error

	Close() error
}
