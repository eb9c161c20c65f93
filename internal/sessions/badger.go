package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"dms/internal/dms"
)

const keyPrefix = "upload:"

// BadgerStore persists sessions in BadgerDB. Each entry carries a TTL so
// abandoned uploads disappear without a sweeper.
type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration
}

// NewBadgerStore opens (or creates) a session database in dir. An empty dir
// opens an in-memory database.
func NewBadgerStore(dir string, ttl time.Duration) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", dir, err)
	}
	return &BadgerStore{db: db, ttl: ttl}, nil
}

func sessionKey(uploadID string) []byte {
	return []byte(keyPrefix + uploadID)
}

func (b *BadgerStore) Save(ctx context.Context, s *dms.UploadSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding upload session: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(sessionKey(s.UploadID), raw).WithTTL(b.ttl)
		if err := txn.SetEntry(e); err != nil {
			return fmt.Errorf("storing upload session: %w", err)
		}
		return nil
	})
}

func (b *BadgerStore) Get(ctx context.Context, uploadID string) (*dms.UploadSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var s *dms.UploadSession
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(uploadID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			s = &dms.UploadSession{}
			return json.Unmarshal(val, s)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil // Not found or expired
		}
		return nil, fmt.Errorf("loading upload session: %w", err)
	}
	return s, nil
}

func (b *BadgerStore) Delete(ctx context.Context, uploadID string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(uploadID))
	})
	if err != nil {
		return fmt.Errorf("deleting upload session: %w", err)
	}
	return nil
}

// Close releases the database.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

var _ dms.SessionStore = (*BadgerStore)(nil)
