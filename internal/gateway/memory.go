package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"dms/internal/dms"
)

type memoryObject struct {
	versionID   string
	data        []byte
	contentType string
	tier        dms.StorageTier
	restore     restoreState
}

type restoreState int

const (
	restoreNone restoreState = iota
	restorePending
	restoreDone
)

type memoryUpload struct {
	key         string
	contentType string
	parts       map[int][]byte
}

// MemoryGateway is an in-memory implementation of dms.Gateway. Every object
// version is kept until deleted. Cold restores stay pending until
// FinishColdRestores is called. This implementation is safe for concurrent use.
type MemoryGateway struct {
	mu      sync.RWMutex
	objects map[string][]*memoryObject // key -> versions, oldest first
	uploads map[string]*memoryUpload
	seq     int64
}

// NewMemoryGateway creates an empty in-memory gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		objects: make(map[string][]*memoryObject),
		uploads: make(map[string]*memoryUpload),
	}
}

func (m *MemoryGateway) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s%06d", prefix, m.seq)
}

// find returns the requested version; an empty versionID selects the newest.
func (m *MemoryGateway) find(key, versionID string) (*memoryObject, int) {
	versions := m.objects[key]
	if versionID == "" {
		if len(versions) == 0 {
			return nil, -1
		}
		return versions[len(versions)-1], len(versions) - 1
	}
	for i, o := range versions {
		if o.versionID == versionID {
			return o, i
		}
	}
	return nil, -1
}

func (m *MemoryGateway) store(key string, data []byte, contentType string, tier dms.StorageTier) string {
	o := &memoryObject{versionID: m.nextID("v"), data: data, contentType: contentType, tier: tier}
	m.objects[key] = append(m.objects[key], o)
	return o.versionID
}

// Put stores r under key as a new version.
func (m *MemoryGateway) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store(key, data, contentType, dms.TierStandard), nil
}

// Get opens one object version.
func (m *MemoryGateway) Get(ctx context.Context, key, versionID string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, _ := m.find(key, versionID)
	if o == nil {
		return nil, fmt.Errorf("%w: %s@%s", ErrObjectNotFound, key, versionID)
	}
	if o.tier == dms.TierCold && o.restore != restoreDone {
		return nil, fmt.Errorf("%w: %s@%s", ErrInvalidObjectState, key, versionID)
	}
	return io.NopCloser(bytes.NewReader(o.data)), nil
}

// CopyWithTier stores a copy of an object version under the same key in tier.
func (m *MemoryGateway) CopyWithTier(ctx context.Context, key, versionID string, tier dms.StorageTier) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, _ := m.find(key, versionID)
	if o == nil {
		return "", fmt.Errorf("%w: %s@%s", ErrObjectNotFound, key, versionID)
	}
	if o.tier == dms.TierCold && o.restore != restoreDone {
		return "", fmt.Errorf("%w: %s@%s", ErrInvalidObjectState, key, versionID)
	}
	return m.store(key, bytes.Clone(o.data), o.contentType, tier), nil
}

// Copy stores a copy of an object version under dstKey.
func (m *MemoryGateway) Copy(ctx context.Context, srcKey, srcVersionID, dstKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, _ := m.find(srcKey, srcVersionID)
	if o == nil {
		return "", fmt.Errorf("%w: %s@%s", ErrObjectNotFound, srcKey, srcVersionID)
	}
	return m.store(dstKey, bytes.Clone(o.data), o.contentType, dms.TierStandard), nil
}

// Delete removes one object version. Deleting a missing version succeeds.
func (m *MemoryGateway) Delete(ctx context.Context, key, versionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, i := m.find(key, versionID)
	if o == nil {
		return nil
	}
	versions := m.objects[key]
	m.objects[key] = append(versions[:i:i], versions[i+1:]...)
	if len(m.objects[key]) == 0 {
		delete(m.objects, key)
	}
	return nil
}

// RequestColdRestore marks a cold object version as restoring.
func (m *MemoryGateway) RequestColdRestore(ctx context.Context, key, versionID string, days int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, _ := m.find(key, versionID)
	if o == nil {
		return fmt.Errorf("%w: %s@%s", ErrObjectNotFound, key, versionID)
	}
	if o.tier != dms.TierCold {
		return fmt.Errorf("%w: %s@%s is not archived", ErrInvalidObjectState, key, versionID)
	}
	if o.restore == restoreNone {
		o.restore = restorePending
	}
	return nil
}

// ColdRestoreReady reports whether a restore has been finished.
func (m *MemoryGateway) ColdRestoreReady(ctx context.Context, key, versionID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, _ := m.find(key, versionID)
	if o == nil {
		return false, fmt.Errorf("%w: %s@%s", ErrObjectNotFound, key, versionID)
	}
	return o.tier != dms.TierCold || o.restore == restoreDone, nil
}

// FinishColdRestores completes every pending cold restore and returns how
// many were finished.
func (m *MemoryGateway) FinishColdRestores() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, versions := range m.objects {
		for _, o := range versions {
			if o.restore == restorePending {
				o.restore = restoreDone
				n++
			}
		}
	}
	return n
}

// BeginMultipart starts a multipart upload for key.
func (m *MemoryGateway) BeginMultipart(ctx context.Context, key, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID("mpu")
	m.uploads[id] = &memoryUpload{key: key, contentType: contentType, parts: make(map[int][]byte)}
	return id, nil
}

// PartURL returns a memory:// URL that WritePart accepts. The expiry is not
// enforced.
func (m *MemoryGateway) PartURL(ctx context.Context, key, uploadID string, partNumber int, expiry time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.uploads[uploadID]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
	}
	return fmt.Sprintf("memory://%s/%d?key=%s", uploadID, partNumber, url.QueryEscape(key)), nil
}

// WritePart implements PartWriter for URLs issued by PartURL.
func (m *MemoryGateway) WritePart(ctx context.Context, partURL string, r io.Reader, size int64) (string, error) {
	u, err := url.Parse(partURL)
	if err != nil || u.Scheme != "memory" {
		return "", fmt.Errorf("not a memory part url: %s", partURL)
	}
	partNumber, err := strconv.Atoi(strings.TrimPrefix(u.Path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid part number in %s", partURL)
	}
	return m.UploadPart(ctx, u.Host, partNumber, r, size)
}

// UploadPart stores one part of an upload and returns its ETag.
func (m *MemoryGateway) UploadPart(ctx context.Context, uploadID string, partNumber int, r io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read part: %w", err)
	}
	if int64(len(data)) != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	up, ok := m.uploads[uploadID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
	}
	up.parts[partNumber] = data
	return etag(data), nil
}

// CompleteMultipart assembles the listed parts into a new object version.
func (m *MemoryGateway) CompleteMultipart(ctx context.Context, key, uploadID string, parts []dms.CompletedPart) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	up, ok := m.uploads[uploadID]
	if !ok || up.key != key {
		return "", fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: no parts", ErrInvalidPart)
	}

	sorted := append([]dms.CompletedPart(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	var buf bytes.Buffer
	for _, p := range sorted {
		data, ok := up.parts[p.Number]
		if !ok {
			return "", fmt.Errorf("%w: part %d was not uploaded", ErrInvalidPart, p.Number)
		}
		if p.ETag != "" && p.ETag != etag(data) {
			return "", fmt.Errorf("%w: part %d etag mismatch", ErrInvalidPart, p.Number)
		}
		buf.Write(data)
	}

	delete(m.uploads, uploadID)
	return m.store(key, buf.Bytes(), up.contentType, dms.TierStandard), nil
}

// AbortMultipart discards an upload and its parts.
func (m *MemoryGateway) AbortMultipart(ctx context.Context, key, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.uploads, uploadID)
	return nil
}

// UploadExists reports whether an upload is still open.
func (m *MemoryGateway) UploadExists(uploadID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.uploads[uploadID]
	return ok
}

// ObjectInfo describes one stored object version.
type ObjectInfo struct {
	Key       string
	VersionID string
	Size      int64
	Tier      dms.StorageTier
}

// Objects lists every stored version, ordered by key then age.
func (m *MemoryGateway) Objects() []ObjectInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []ObjectInfo
	for _, k := range keys {
		for _, o := range m.objects[k] {
			out = append(out, ObjectInfo{Key: k, VersionID: o.versionID, Size: int64(len(o.data)), Tier: o.tier})
		}
	}
	return out
}

// HasObject reports whether an object version exists.
func (m *MemoryGateway) HasObject(key, versionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, _ := m.find(key, versionID)
	return o != nil
}

// Compile-time checks
var (
	_ dms.Gateway = (*MemoryGateway)(nil)
	_ PartWriter  = (*MemoryGateway)(nil)
)
