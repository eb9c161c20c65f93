package encryption

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"filippo.io/age"
)

// AgeSealer encrypts object bytes at rest to an X25519 age identity kept in
// a key file. The worker runs unattended, so the identity file is not
// passphrase protected and is written with 0600 permissions instead.
type AgeSealer struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

var _ Sealer = (*AgeSealer)(nil)

// GenerateKey creates a new X25519 identity at path in age-keygen format and
// returns its public recipient. An existing key file is never overwritten.
func GenerateKey(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("key file already exists at %s", path)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generating key pair: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("creating key directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# created: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&buf, "# public key: %s\n", identity.Recipient())
	fmt.Fprintf(&buf, "%s\n", identity)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("creating key file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return "", fmt.Errorf("writing key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing key file: %w", err)
	}

	return identity.Recipient().String(), nil
}

// LoadAgeSealer reads the identity file at path.
func LoadAgeSealer(path string) (*AgeSealer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing key file: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in %s", path)
	}

	x, ok := identities[0].(*age.X25519Identity)
	if !ok {
		return nil, fmt.Errorf("key file %s does not hold an X25519 identity", path)
	}
	return &AgeSealer{identity: x, recipient: x.Recipient()}, nil
}

// Recipient returns the public key objects are sealed to.
func (s *AgeSealer) Recipient() string {
	return s.recipient.String()
}

// Seal returns a writer that encrypts everything written to it into w.
// Close must be called to flush the final chunk.
func (s *AgeSealer) Seal(w io.Writer) (io.WriteCloser, error) {
	enc, err := age.Encrypt(w, s.recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	return enc, nil
}

// Open returns a reader of the plaintext sealed in r.
func (s *AgeSealer) Open(r io.Reader) (io.Reader, error) {
	dec, err := age.Decrypt(r, s.identity)
	if err != nil {
		return nil, fmt.Errorf("creating decrypted reader: %w", err)
	}
	return dec, nil
}
