package testutil

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"dms/internal/dms"
)

// ErrInjected is returned by FailingGateway for calls set to fail.
var ErrInjected = errors.New("injected gateway failure")

// FailingGateway wraps a Gateway and fails selected calls.
//
// Calls are named "put", "get", "copy", "copy_with_tier", "delete",
// "request_cold_restore", "cold_restore_ready", "begin_multipart", "part_url",
// "complete_multipart" and "abort_multipart".
type FailingGateway struct {
	dms.Gateway

	mu    sync.Mutex
	fail  map[string]func(key string) bool
	calls map[string]int
}

var _ dms.Gateway = (*FailingGateway)(nil)

func NewFailingGateway(inner dms.Gateway) *FailingGateway {
	return &FailingGateway{
		Gateway: inner,
		fail:    make(map[string]func(string) bool),
		calls:   make(map[string]int),
	}
}

// Fail makes every call named call fail.
func (g *FailingGateway) Fail(call string) {
	g.FailWhen(call, func(string) bool { return true })
}

// FailWhen makes call fail for keys matching pred.
func (g *FailingGateway) FailWhen(call string, pred func(key string) bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[call] = pred
}

// Heal clears every injected failure.
func (g *FailingGateway) Heal() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail = make(map[string]func(string) bool)
}

// Calls returns how many times call was attempted.
func (g *FailingGateway) Calls(call string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[call]
}

func (g *FailingGateway) check(call, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[call]++
	if pred, ok := g.fail[call]; ok && pred(key) {
		return ErrInjected
	}
	return nil
}

func (g *FailingGateway) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if err := g.check("put", key); err != nil {
		return "", err
	}
	return g.Gateway.Put(ctx, key, r, size, contentType)
}

func (g *FailingGateway) Get(ctx context.Context, key, versionID string) (io.ReadCloser, error) {
	if err := g.check("get", key); err != nil {
		return nil, err
	}
	return g.Gateway.Get(ctx, key, versionID)
}

func (g *FailingGateway) CopyWithTier(ctx context.Context, key, versionID string, tier dms.StorageTier) (string, error) {
	if err := g.check("copy_with_tier", key); err != nil {
		return "", err
	}
	return g.Gateway.CopyWithTier(ctx, key, versionID, tier)
}

func (g *FailingGateway) Copy(ctx context.Context, srcKey, srcVersionID, dstKey string) (string, error) {
	if err := g.check("copy", srcKey); err != nil {
		return "", err
	}
	return g.Gateway.Copy(ctx, srcKey, srcVersionID, dstKey)
}

func (g *FailingGateway) Delete(ctx context.Context, key, versionID string) error {
	if err := g.check("delete", key); err != nil {
		return err
	}
	return g.Gateway.Delete(ctx, key, versionID)
}

func (g *FailingGateway) RequestColdRestore(ctx context.Context, key, versionID string, days int) error {
	if err := g.check("request_cold_restore", key); err != nil {
		return err
	}
	return g.Gateway.RequestColdRestore(ctx, key, versionID, days)
}

func (g *FailingGateway) ColdRestoreReady(ctx context.Context, key, versionID string) (bool, error) {
	if err := g.check("cold_restore_ready", key); err != nil {
		return false, err
	}
	return g.Gateway.ColdRestoreReady(ctx, key, versionID)
}

func (g *FailingGateway) BeginMultipart(ctx context.Context, key, contentType string) (string, error) {
	if err := g.check("begin_multipart", key); err != nil {
		return "", err
	}
	return g.Gateway.BeginMultipart(ctx, key, contentType)
}

func (g *FailingGateway) PartURL(ctx context.Context, key, uploadID string, partNumber int, expiry time.Duration) (string, error) {
	if err := g.check("part_url", key); err != nil {
		return "", err
	}
	return g.Gateway.PartURL(ctx, key, uploadID, partNumber, expiry)
}

func (g *FailingGateway) CompleteMultipart(ctx context.Context, key, uploadID string, parts []dms.CompletedPart) (string, error) {
	if err := g.check("complete_multipart", key); err != nil {
		return "", err
	}
	return g.Gateway.CompleteMultipart(ctx, key, uploadID, parts)
}

func (g *FailingGateway) AbortMultipart(ctx context.Context, key, uploadID string) error {
	if err := g.check("abort_multipart", key); err != nil {
		return err
	}
	return g.Gateway.AbortMultipart(ctx, key, uploadID)
}
