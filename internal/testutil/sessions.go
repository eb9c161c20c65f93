package testutil

import (
	"context"
	"errors"
	"sync"

	"dms/internal/dms"
)

// ErrSessionStore is returned by FailingSessions once Fail has been called.
var ErrSessionStore = errors.New("injected session store failure")

// FailingSessions wraps a SessionStore and can make Save fail.
type FailingSessions struct {
	dms.SessionStore

	mu       sync.Mutex
	failSave bool
}

var _ dms.SessionStore = (*FailingSessions)(nil)

func NewFailingSessions(inner dms.SessionStore) *FailingSessions {
	return &FailingSessions{SessionStore: inner}
}

// FailSave makes every later Save fail.
func (f *FailingSessions) FailSave() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSave = true
}

func (f *FailingSessions) Save(ctx context.Context, s *dms.UploadSession) error {
	f.mu.Lock()
	fail := f.failSave
	f.mu.Unlock()
	if fail {
		return ErrSessionStore
	}
	return f.SessionStore.Save(ctx, s)
}
