package dms

import (
	"path"
	"strings"
	"time"
)

// NodeKind distinguishes files from folders.
type NodeKind string

const (
	KindFile   NodeKind = "file"
	KindFolder NodeKind = "folder"
)

// AccessLevel is the role a principal holds on a node.
type AccessLevel string

const (
	LevelNone   AccessLevel = ""
	LevelViewer AccessLevel = "viewer"
	LevelEditor AccessLevel = "editor"
	// LevelOwner is never stored in a grant; it is reported by ResolveEffectiveLevel
	// for the owning principal.
	LevelOwner AccessLevel = "owner"
)

func (l AccessLevel) rank() int {
	switch l {
	case LevelViewer:
		return 1
	case LevelEditor:
		return 2
	case LevelOwner:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether l grants at least the rights of other.
func (l AccessLevel) AtLeast(other AccessLevel) bool {
	return l.rank() >= other.rank()
}

// Valid reports whether l can be stored in a grant.
func (l AccessLevel) Valid() bool {
	return l == LevelViewer || l == LevelEditor
}

// VersionAction records why a version was appended.
type VersionAction string

const (
	ActionUpload    VersionAction = "upload"
	ActionRename    VersionAction = "rename"
	ActionRestore   VersionAction = "restore"
	ActionDuplicate VersionAction = "duplicate"
)

// StorageTier is the storage class a version's object lives in.
type StorageTier string

const (
	TierStandard StorageTier = "standard"
	TierCold     StorageTier = "cold"
)

// RestoreStatus tracks retrieval of a cold-tier object.
type RestoreStatus string

const (
	RestoreAvailable RestoreStatus = "available"
	RestoreRestoring RestoreStatus = "restoring"
	RestoreRestored  RestoreStatus = "restored"
)

// TrashStatus is the state of a trash entry.
type TrashStatus string

const (
	TrashScheduled TrashStatus = "scheduled"
	TrashDeleted   TrashStatus = "deleted"
	TrashRestored  TrashStatus = "restored"
)

// RequestStatus is the review state of a share request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// RequestKind separates editor-initiated shares from a principal asking for
// more access for itself.
type RequestKind string

const (
	RequestShare   RequestKind = "share"
	RequestUpgrade RequestKind = "upgrade"
)

// Node is a file or folder in an owner's tree.
type Node struct {
	ID              string
	OwnerID         string
	CreatedBy       string
	Name            string
	Kind            NodeKind
	ParentID        string // empty for roots
	Size            int64
	Extension       string
	ContentType     string
	Metadata        map[string]any
	LatestVersionID string
	VersionSeq      int64 // last assigned version number
	CreatedAt       time.Time
	ModifiedAt      time.Time
	TrashedAt       *time.Time
}

func (n *Node) IsFolder() bool  { return n.Kind == KindFolder }
func (n *Node) IsTrashed() bool { return n.TrashedAt != nil }

// Grant is an access entry for one (file, principal) pair.
type Grant struct {
	FileID        string
	PrincipalID   string
	Level         AccessLevel
	GrantedBy     string
	GrantedAt     time.Time
	Inherited     bool
	InheritedFrom string // set only when Inherited
}

// StorageRef locates one object version in the storage gateway.
type StorageRef struct {
	Key       string
	VersionID string
}

func (r StorageRef) IsZero() bool { return r.Key == "" }

// Version is one entry of a file's version chain.
type Version struct {
	ID              string
	FileID          string
	Number          int64
	Action          VersionAction
	Storage         StorageRef
	Metadata        map[string]any
	Tier            StorageTier
	RestoreStatus   RestoreStatus
	InitialFilename string
	CreatedBy       string
	CreatedAt       time.Time
}

// Readable reports whether the version's object can be fetched right now.
func (v *Version) Readable() bool {
	return v.Tier == TierStandard || v.RestoreStatus == RestoreRestored
}

// TrashEntry schedules permanent deletion of a trashed node.
type TrashEntry struct {
	ID                string
	FileID            string
	OwnerID           string
	Name              string
	Kind              NodeKind
	TrashedAt         time.Time
	ScheduledDeleteAt time.Time
	Status            TrashStatus
	ClosedAt          *time.Time
}

// ShareRequest is a pending grant awaiting the owner's review.
type ShareRequest struct {
	ID          string
	FileID      string
	RequesterID string
	TargetID    string
	Level       AccessLevel
	Kind        RequestKind
	Status      RequestStatus
	ReviewerID  string
	ReviewedAt  *time.Time
	Reason      string
	CreatedAt   time.Time
}

// LogAction names an entry in a node's action log.
type LogAction string

const (
	LogCreated         LogAction = "created"
	LogRenamed         LogAction = "renamed"
	LogMoved           LogAction = "moved"
	LogUploaded        LogAction = "uploaded"
	LogTrashed         LogAction = "trashed"
	LogRestored        LogAction = "restored"
	LogPurged          LogAction = "purged"
	LogShared          LogAction = "shared"
	LogUnshared        LogAction = "unshared"
	LogArchived        LogAction = "archived"
	LogDuplicated      LogAction = "duplicated"
	LogVersionRestored LogAction = "version_restored"
)

// ActionLogEntry records one mutation of a node.
type ActionLogEntry struct {
	ID      string
	FileID  string
	ActorID string
	Action  LogAction
	Detail  string
	At      time.Time
}

// Notification is a delivered domain event addressed to one principal.
type Notification struct {
	ID          string
	RecipientID string
	EventType   EventType
	FileID      string
	ActorID     string
	Level       AccessLevel
	Message     string
	CreatedAt   time.Time
}

// ItemResult is the outcome for one item of a batch operation.
type ItemResult struct {
	ID  string
	Err error
}

func (r ItemResult) OK() bool { return r.Err == nil }

// splitExtension returns the lowercase extension of name without the dot.
func splitExtension(name string) string {
	ext := path.Ext(name)
	if ext == "" || ext == name {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
