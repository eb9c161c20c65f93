// Package gateway provides dms.Gateway implementations: an in-memory store for
// tests, a local filesystem store, and Amazon S3 (or any S3-compatible store).
package gateway

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
)

var (
	// ErrObjectNotFound is returned when a key or object version does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrUploadNotFound is returned for unknown multipart upload ids.
	ErrUploadNotFound = errors.New("multipart upload not found")

	// ErrInvalidObjectState is returned when reading a cold-tier object that
	// has not been restored.
	ErrInvalidObjectState = errors.New("object is archived")

	// ErrInvalidPart is returned when completing an upload with a missing or
	// mismatched part.
	ErrInvalidPart = errors.New("invalid part")
)

// PartWriter uploads one multipart part to a URL issued by PartURL, the way
// a client holding that URL would. It returns the part's ETag.
type PartWriter interface {
	WritePart(ctx context.Context, partURL string, r io.Reader, size int64) (string, error)
}

// Sealer encrypts object bytes at rest. Implementations must produce
// ciphertext that Open can read back from the start.
type Sealer interface {
	Seal(w io.Writer) (io.WriteCloser, error)
	Open(r io.Reader) (io.Reader, error)
}

// etag computes the quoted hex MD5 S3 reports for a single part.
func etag(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}
