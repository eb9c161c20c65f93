// Package sessions persists in-flight multipart upload sessions between the
// begin and complete calls of an upload.
package sessions

import (
	"context"
	"sync"
	"time"

	"dms/internal/dms"
)

type memoryEntry struct {
	session   dms.UploadSession
	expiresAt time.Time
}

// MemoryStore keeps sessions in a map. Expired sessions are dropped lazily.
// This implementation is safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   dms.Clock
	entries map[string]memoryEntry
}

// NewMemoryStore creates a store whose sessions expire after ttl.
func NewMemoryStore(ttl time.Duration, clock dms.Clock) *MemoryStore {
	if clock == nil {
		clock = dms.RealClock{}
	}
	return &MemoryStore{ttl: ttl, clock: clock, entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Save(ctx context.Context, s *dms.UploadSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	cp.Dirs = append([]string(nil), s.Dirs...)
	m.entries[s.UploadID] = memoryEntry{session: cp, expiresAt: m.clock.Now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, uploadID string) (*dms.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[uploadID]
	if !ok {
		return nil, nil // Not found
	}
	if !m.clock.Now().Before(e.expiresAt) {
		delete(m.entries, uploadID)
		return nil, nil // Expired
	}
	cp := e.session
	cp.Dirs = append([]string(nil), e.session.Dirs...)
	return &cp, nil
}

func (m *MemoryStore) Delete(ctx context.Context, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, uploadID)
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

var _ dms.SessionStore = (*MemoryStore)(nil)
