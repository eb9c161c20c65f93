package dms

import (
	"context"
	"io"
	"time"
)

// CompletedPart identifies an uploaded part when completing a multipart upload.
type CompletedPart struct {
	Number int
	ETag   string
}

// Gateway is the object-store capability the core drives. Implementations
// must keep every version of a key addressable by its version id.
type Gateway interface {
	// Put stores r under key and returns the new object version id.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)

	// Get opens one object version. An empty versionID reads the newest.
	Get(ctx context.Context, key, versionID string) (io.ReadCloser, error)

	// CopyWithTier rewrites an object version into the given storage tier
	// under the same key and returns the new version id.
	CopyWithTier(ctx context.Context, key, versionID string, tier StorageTier) (string, error)

	// Copy duplicates an object version to another key.
	Copy(ctx context.Context, srcKey, srcVersionID, dstKey string) (string, error)

	// Delete removes one object version.
	Delete(ctx context.Context, key, versionID string) error

	// RequestColdRestore asks for a temporary readable copy of a cold-tier
	// object for the given number of days.
	RequestColdRestore(ctx context.Context, key, versionID string, days int) error

	// ColdRestoreReady reports whether a requested cold restore has completed.
	ColdRestoreReady(ctx context.Context, key, versionID string) (bool, error)

	BeginMultipart(ctx context.Context, key, contentType string) (uploadID string, err error)
	PartURL(ctx context.Context, key, uploadID string, partNumber int, expiry time.Duration) (string, error)
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []CompletedPart) (versionID string, err error)
	// AbortMultipart releases every uploaded part. Unknown upload ids are not an error.
	AbortMultipart(ctx context.Context, key, uploadID string) error
}

// UploadSession is an in-flight multipart upload.
type UploadSession struct {
	UploadID    string    `json:"upload_id"`
	Key         string    `json:"key"`
	ActorID     string    `json:"actor_id"`
	ParentID    string    `json:"parent_id"`
	Dirs        []string  `json:"dirs"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	PartSize    int64     `json:"part_size"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionStore persists upload sessions between begin and complete.
// Get returns (nil, nil) for unknown or expired sessions.
type SessionStore interface {
	Save(ctx context.Context, s *UploadSession) error
	Get(ctx context.Context, uploadID string) (*UploadSession, error)
	Delete(ctx context.Context, uploadID string) error
}
