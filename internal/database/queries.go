package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"dms/internal/dms"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements dms.Store over a DBTX.
type queries struct {
	db DBTX
}

var _ dms.Store = (*queries)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) (map[string]any, error) {
	m := map[string]any{}
	if s == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return m, nil
}

// mapWriteErr turns unique-constraint violations into dms.ErrDuplicate.
func mapWriteErr(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: %v", dms.ErrDuplicate, err)
	}
	return err
}

// Nodes

const nodeColumns = `id, owner_id, created_by, name, kind, parent_id, size, extension, content_type,
	metadata, latest_version_id, version_seq, created_at, modified_at, trashed_at`

func scanNode(row scanner) (*dms.Node, error) {
	var (
		n        dms.Node
		kind     string
		parentID sql.NullString
		latestID sql.NullString
		metadata string
		trashed  sql.NullTime
	)
	err := row.Scan(&n.ID, &n.OwnerID, &n.CreatedBy, &n.Name, &kind, &parentID, &n.Size, &n.Extension,
		&n.ContentType, &metadata, &latestID, &n.VersionSeq, &n.CreatedAt, &n.ModifiedAt, &trashed)
	if err != nil {
		return nil, err
	}
	n.Kind = dms.NodeKind(kind)
	n.ParentID = parentID.String
	n.LatestVersionID = latestID.String
	n.TrashedAt = timePtr(trashed)
	if n.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, err
	}
	return &n, nil
}

func collectNodes(rows *sql.Rows) ([]*dms.Node, error) {
	defer rows.Close()
	var out []*dms.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (q *queries) InsertNode(ctx context.Context, n *dms.Node) error {
	metadata, err := encodeMetadata(n.Metadata)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `INSERT INTO nodes (`+nodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.OwnerID, n.CreatedBy, n.Name, string(n.Kind), nullString(n.ParentID), n.Size, n.Extension,
		n.ContentType, metadata, nullString(n.LatestVersionID), n.VersionSeq,
		n.CreatedAt.UTC(), n.ModifiedAt.UTC(), nullTime(n.TrashedAt))
	if err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (q *queries) GetNode(ctx context.Context, id string) (*dms.Node, error) {
	n, err := scanNode(q.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("getting node: %w", err)
	}
	return n, nil
}

func (q *queries) FindLiveSibling(ctx context.Context, ownerID, parentID, name string, kind dms.NodeKind) (*dms.Node, error) {
	var row *sql.Row
	if parentID == "" {
		row = q.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes
			WHERE owner_id = ? AND parent_id IS NULL AND name = ? AND kind = ? AND trashed_at IS NULL`,
			ownerID, name, string(kind))
	} else {
		row = q.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes
			WHERE parent_id = ? AND name = ? AND kind = ? AND trashed_at IS NULL`,
			parentID, name, string(kind))
	}
	n, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding sibling: %w", err)
	}
	return n, nil
}

// Folders sort before files.
const childOrder = ` ORDER BY kind DESC, name ASC`

func (q *queries) ListChildren(ctx context.Context, parentID string, includeTrashed bool) ([]*dms.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE parent_id = ?`
	if !includeTrashed {
		query += ` AND trashed_at IS NULL`
	}
	rows, err := q.db.QueryContext(ctx, query+childOrder, parentID)
	if err != nil {
		return nil, fmt.Errorf("listing children: %w", err)
	}
	return collectNodes(rows)
}

func (q *queries) ListRoots(ctx context.Context, ownerID string, includeTrashed bool) ([]*dms.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE owner_id = ? AND parent_id IS NULL`
	if !includeTrashed {
		query += ` AND trashed_at IS NULL`
	}
	rows, err := q.db.QueryContext(ctx, query+childOrder, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing roots: %w", err)
	}
	return collectNodes(rows)
}

func (q *queries) ListSubtree(ctx context.Context, rootID string, maxDepth int) ([]*dms.Node, error) {
	rows, err := q.db.QueryContext(ctx, `
		WITH RECURSIVE subtree (id, depth) AS (
			SELECT id, 0 FROM nodes WHERE id = ?
			UNION ALL
			SELECT n.id, s.depth + 1 FROM nodes n JOIN subtree s ON n.parent_id = s.id
			WHERE s.depth < ?
		)
		SELECT `+prefixColumns("n", nodeColumns)+` FROM subtree s JOIN nodes n ON n.id = s.id
		ORDER BY s.depth, n.name`, rootID, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("listing subtree: %w", err)
	}
	return collectNodes(rows)
}

func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func (q *queries) UpdateNode(ctx context.Context, n *dms.Node) error {
	metadata, err := encodeMetadata(n.Metadata)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `UPDATE nodes SET
			name = ?, parent_id = ?, size = ?, extension = ?, content_type = ?, metadata = ?,
			latest_version_id = ?, version_seq = ?, modified_at = ?, trashed_at = ?
		WHERE id = ?`,
		n.Name, nullString(n.ParentID), n.Size, n.Extension, n.ContentType, metadata,
		nullString(n.LatestVersionID), n.VersionSeq, n.ModifiedAt.UTC(), nullTime(n.TrashedAt), n.ID)
	if err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (q *queries) SetTrashedAt(ctx context.Context, ids []string, at *time.Time) error {
	for _, id := range ids {
		if _, err := q.db.ExecContext(ctx, `UPDATE nodes SET trashed_at = ? WHERE id = ?`, nullTime(at), id); err != nil {
			return mapWriteErr(err)
		}
	}
	return nil
}

func (q *queries) DeleteNode(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting node: %w", err)
	}
	return nil
}

// Grants

const grantColumns = `file_id, principal_id, level, granted_by, granted_at, inherited, inherited_from`

func scanGrant(row scanner) (*dms.Grant, error) {
	var (
		g     dms.Grant
		level string
		from  sql.NullString
	)
	if err := row.Scan(&g.FileID, &g.PrincipalID, &level, &g.GrantedBy, &g.GrantedAt, &g.Inherited, &from); err != nil {
		return nil, err
	}
	g.Level = dms.AccessLevel(level)
	g.InheritedFrom = from.String
	return &g, nil
}

func collectGrants(rows *sql.Rows) ([]*dms.Grant, error) {
	defer rows.Close()
	var out []*dms.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning grant: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (q *queries) GetGrant(ctx context.Context, fileID, principalID string) (*dms.Grant, error) {
	g, err := scanGrant(q.db.QueryRowContext(ctx,
		`SELECT `+grantColumns+` FROM grants WHERE file_id = ? AND principal_id = ?`, fileID, principalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("getting grant: %w", err)
	}
	return g, nil
}

func (q *queries) ListGrantsForFile(ctx context.Context, fileID string) ([]*dms.Grant, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+grantColumns+` FROM grants WHERE file_id = ? ORDER BY principal_id`, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing grants: %w", err)
	}
	return collectGrants(rows)
}

func (q *queries) ListDirectGrantsForPrincipal(ctx context.Context, principalID string) ([]*dms.Grant, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+grantColumns+` FROM grants WHERE principal_id = ? AND inherited = 0 ORDER BY granted_at`, principalID)
	if err != nil {
		return nil, fmt.Errorf("listing grants for principal: %w", err)
	}
	return collectGrants(rows)
}

func (q *queries) UpsertGrant(ctx context.Context, g *dms.Grant) error {
	var from sql.NullString
	if g.Inherited {
		from = nullString(g.InheritedFrom)
	}
	_, err := q.db.ExecContext(ctx, `INSERT INTO grants (`+grantColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (file_id, principal_id) DO UPDATE SET
			level = excluded.level,
			granted_by = excluded.granted_by,
			granted_at = excluded.granted_at,
			inherited = excluded.inherited,
			inherited_from = excluded.inherited_from`,
		g.FileID, g.PrincipalID, string(g.Level), g.GrantedBy, g.GrantedAt.UTC(), g.Inherited, from)
	if err != nil {
		return fmt.Errorf("upserting grant: %w", err)
	}
	return nil
}

func (q *queries) DeleteGrant(ctx context.Context, fileID, principalID string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM grants WHERE file_id = ? AND principal_id = ?`, fileID, principalID); err != nil {
		return fmt.Errorf("deleting grant: %w", err)
	}
	return nil
}

// Versions

const versionColumns = `id, file_id, version_number, action, storage_key, storage_version_id, metadata,
	storage_tier, restore_status, initial_filename, created_by, created_at`

func scanVersion(row scanner) (*dms.Version, error) {
	var (
		v                     dms.Version
		action, tier, restore string
		metadata              string
	)
	err := row.Scan(&v.ID, &v.FileID, &v.Number, &action, &v.Storage.Key, &v.Storage.VersionID, &metadata,
		&tier, &restore, &v.InitialFilename, &v.CreatedBy, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.Action = dms.VersionAction(action)
	v.Tier = dms.StorageTier(tier)
	v.RestoreStatus = dms.RestoreStatus(restore)
	if v.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, err
	}
	return &v, nil
}

func collectVersions(rows *sql.Rows) ([]*dms.Version, error) {
	defer rows.Close()
	var out []*dms.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (q *queries) InsertVersion(ctx context.Context, v *dms.Version) error {
	metadata, err := encodeMetadata(v.Metadata)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `INSERT INTO versions (`+versionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.FileID, v.Number, string(v.Action), v.Storage.Key, v.Storage.VersionID, metadata,
		string(v.Tier), string(v.RestoreStatus), v.InitialFilename, v.CreatedBy, v.CreatedAt.UTC())
	if err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (q *queries) GetVersion(ctx context.Context, id string) (*dms.Version, error) {
	v, err := scanVersion(q.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("getting version: %w", err)
	}
	return v, nil
}

func (q *queries) ListVersions(ctx context.Context, fileID string) ([]*dms.Version, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE file_id = ? ORDER BY version_number`, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	return collectVersions(rows)
}

func (q *queries) ListVersionsByRestoreStatus(ctx context.Context, status dms.RestoreStatus, limit int) ([]*dms.Version, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM versions WHERE restore_status = ? ORDER BY created_at LIMIT ?`,
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("listing versions by restore status: %w", err)
	}
	return collectVersions(rows)
}

func (q *queries) UpdateVersion(ctx context.Context, v *dms.Version) error {
	metadata, err := encodeMetadata(v.Metadata)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `UPDATE versions SET
			storage_key = ?, storage_version_id = ?, metadata = ?, storage_tier = ?, restore_status = ?
		WHERE id = ?`,
		v.Storage.Key, v.Storage.VersionID, metadata, string(v.Tier), string(v.RestoreStatus), v.ID)
	if err != nil {
		return fmt.Errorf("updating version: %w", err)
	}
	return nil
}

func (q *queries) DeleteVersion(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM versions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting version: %w", err)
	}
	return nil
}

// Trash entries

const trashColumns = `id, file_id, owner_id, name, kind, trashed_at, scheduled_delete_at, status, closed_at`

func scanTrashEntry(row scanner) (*dms.TrashEntry, error) {
	var (
		e            dms.TrashEntry
		kind, status string
		closed       sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.FileID, &e.OwnerID, &e.Name, &kind, &e.TrashedAt, &e.ScheduledDeleteAt, &status, &closed); err != nil {
		return nil, err
	}
	e.Kind = dms.NodeKind(kind)
	e.Status = dms.TrashStatus(status)
	e.ClosedAt = timePtr(closed)
	return &e, nil
}

func collectTrashEntries(rows *sql.Rows) ([]*dms.TrashEntry, error) {
	defer rows.Close()
	var out []*dms.TrashEntry
	for rows.Next() {
		e, err := scanTrashEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning trash entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q *queries) InsertTrashEntry(ctx context.Context, e *dms.TrashEntry) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO trash_entries (`+trashColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.FileID, e.OwnerID, e.Name, string(e.Kind), e.TrashedAt.UTC(), e.ScheduledDeleteAt.UTC(),
		string(e.Status), nullTime(e.ClosedAt))
	if err != nil {
		return fmt.Errorf("inserting trash entry: %w", err)
	}
	return nil
}

func (q *queries) GetTrashEntry(ctx context.Context, id string) (*dms.TrashEntry, error) {
	e, err := scanTrashEntry(q.db.QueryRowContext(ctx, `SELECT `+trashColumns+` FROM trash_entries WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("getting trash entry: %w", err)
	}
	return e, nil
}

func (q *queries) FindScheduledTrashEntry(ctx context.Context, fileID string) (*dms.TrashEntry, error) {
	e, err := scanTrashEntry(q.db.QueryRowContext(ctx, `SELECT `+trashColumns+` FROM trash_entries
		WHERE file_id = ? AND status = 'scheduled' ORDER BY trashed_at DESC LIMIT 1`, fileID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding trash entry: %w", err)
	}
	return e, nil
}

func (q *queries) ListDueTrashEntries(ctx context.Context, now time.Time, limit int) ([]*dms.TrashEntry, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+trashColumns+` FROM trash_entries
		WHERE status = 'scheduled' AND scheduled_delete_at <= ?
		ORDER BY scheduled_delete_at LIMIT ?`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("listing due trash entries: %w", err)
	}
	return collectTrashEntries(rows)
}

func (q *queries) ListScheduledTrashEntries(ctx context.Context, ownerID string) ([]*dms.TrashEntry, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+trashColumns+` FROM trash_entries
		WHERE owner_id = ? AND status = 'scheduled' ORDER BY trashed_at DESC, name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing trash: %w", err)
	}
	return collectTrashEntries(rows)
}

func (q *queries) UpdateTrashEntry(ctx context.Context, e *dms.TrashEntry) error {
	_, err := q.db.ExecContext(ctx, `UPDATE trash_entries SET status = ?, closed_at = ? WHERE id = ?`,
		string(e.Status), nullTime(e.ClosedAt), e.ID)
	if err != nil {
		return fmt.Errorf("updating trash entry: %w", err)
	}
	return nil
}

// Share requests

const requestColumns = `id, file_id, requester_id, target_id, level, kind, status, reviewer_id, reviewed_at, reason, created_at`

func scanShareRequest(row scanner) (*dms.ShareRequest, error) {
	var (
		r                   dms.ShareRequest
		level, kind, status string
		reviewer            sql.NullString
		reviewed            sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.FileID, &r.RequesterID, &r.TargetID, &level, &kind, &status,
		&reviewer, &reviewed, &r.Reason, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Level = dms.AccessLevel(level)
	r.Kind = dms.RequestKind(kind)
	r.Status = dms.RequestStatus(status)
	r.ReviewerID = reviewer.String
	r.ReviewedAt = timePtr(reviewed)
	return &r, nil
}

func (q *queries) InsertShareRequest(ctx context.Context, r *dms.ShareRequest) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO share_requests (`+requestColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.FileID, r.RequesterID, r.TargetID, string(r.Level), string(r.Kind), string(r.Status),
		nullString(r.ReviewerID), nullTime(r.ReviewedAt), r.Reason, r.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting share request: %w", err)
	}
	return nil
}

func (q *queries) GetShareRequest(ctx context.Context, id string) (*dms.ShareRequest, error) {
	r, err := scanShareRequest(q.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM share_requests WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("getting share request: %w", err)
	}
	return r, nil
}

func (q *queries) FindPendingShareRequest(ctx context.Context, fileID, targetID string, level dms.AccessLevel) (*dms.ShareRequest, error) {
	r, err := scanShareRequest(q.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM share_requests
		WHERE file_id = ? AND target_id = ? AND level = ? AND status = 'pending' LIMIT 1`,
		fileID, targetID, string(level)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding pending share request: %w", err)
	}
	return r, nil
}

func (q *queries) ListPendingShareRequests(ctx context.Context, ownerID string) ([]*dms.ShareRequest, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+prefixColumns("r", requestColumns)+`
		FROM share_requests r JOIN nodes n ON n.id = r.file_id
		WHERE n.owner_id = ? AND r.status = 'pending' AND n.trashed_at IS NULL
		ORDER BY r.created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing pending share requests: %w", err)
	}
	defer rows.Close()
	var out []*dms.ShareRequest
	for rows.Next() {
		r, err := scanShareRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning share request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *queries) UpdateShareRequest(ctx context.Context, r *dms.ShareRequest) error {
	_, err := q.db.ExecContext(ctx, `UPDATE share_requests SET status = ?, reviewer_id = ?, reviewed_at = ?, reason = ?
		WHERE id = ?`, string(r.Status), nullString(r.ReviewerID), nullTime(r.ReviewedAt), r.Reason, r.ID)
	if err != nil {
		return fmt.Errorf("updating share request: %w", err)
	}
	return nil
}

// Action log

func (q *queries) InsertAction(ctx context.Context, e *dms.ActionLogEntry) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO action_log (id, file_id, actor_id, action, detail, at)
		VALUES (?, ?, ?, ?, ?, ?)`, e.ID, e.FileID, e.ActorID, string(e.Action), e.Detail, e.At.UTC())
	if err != nil {
		return fmt.Errorf("inserting action: %w", err)
	}
	return nil
}

func (q *queries) ListActions(ctx context.Context, fileID string) ([]*dms.ActionLogEntry, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, file_id, actor_id, action, detail, at
		FROM action_log WHERE file_id = ? ORDER BY at, rowid`, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing actions: %w", err)
	}
	defer rows.Close()
	var out []*dms.ActionLogEntry
	for rows.Next() {
		var e dms.ActionLogEntry
		var action string
		if err := rows.Scan(&e.ID, &e.FileID, &e.ActorID, &action, &e.Detail, &e.At); err != nil {
			return nil, fmt.Errorf("scanning action: %w", err)
		}
		e.Action = dms.LogAction(action)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Notifications

func (q *queries) InsertNotification(ctx context.Context, n *dms.Notification) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO notifications
		(id, recipient_id, event_type, file_id, actor_id, level, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, string(n.EventType), n.FileID, n.ActorID, string(n.Level), n.Message, n.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

func (q *queries) ListNotifications(ctx context.Context, recipientID string, limit int) ([]*dms.Notification, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, recipient_id, event_type, file_id, actor_id, level, message, created_at
		FROM notifications WHERE recipient_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()
	var out []*dms.Notification
	for rows.Next() {
		var n dms.Notification
		var eventType, level string
		if err := rows.Scan(&n.ID, &n.RecipientID, &eventType, &n.FileID, &n.ActorID, &level, &n.Message, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.EventType = dms.EventType(eventType)
		n.Level = dms.AccessLevel(level)
		out = append(out, &n)
	}
	return out, rows.Err()
}
