package encryption

import (
	"fmt"
	"io"

	"dms/internal/config"
)

// Sealer encrypts and decrypts stored object bytes.
type Sealer interface {
	Seal(w io.Writer) (io.WriteCloser, error)
	Open(r io.Reader) (io.Reader, error)
}

// NewSealerFromConfig creates a Sealer based on the encryption config type.
// It returns nil when objects are stored in the clear.
func NewSealerFromConfig(cfg config.EncryptionConfig) (Sealer, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		s, err := LoadAgeSealer(cfg.KeyPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
