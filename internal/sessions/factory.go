package sessions

import (
	"fmt"
	"io"

	"dms/internal/config"
	"dms/internal/dms"
)

// Store is a session store that owns resources.
type Store interface {
	dms.SessionStore
	io.Closer
}

// NewStoreFromConfig creates a session store based on the sessions config type.
func NewStoreFromConfig(cfg config.SessionsConfig, clock dms.Clock) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.TTL.Duration, clock), nil
	case "badger":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("badger session store requires dir to be set")
		}
		return NewBadgerStore(cfg.Dir, cfg.TTL.Duration)
	default:
		return nil, fmt.Errorf("unknown sessions type: %s", cfg.Type)
	}
}
