package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dms/internal/dms"
)

type testGateway interface {
	dms.Gateway
	PartWriter
}

// gateways returns every local implementation so each test runs against all
// of them.
func gateways(t *testing.T) map[string]testGateway {
	t.Helper()
	fs, err := NewFileSystemGateway(t.TempDir(), nil)
	require.NoError(t, err)
	sealed, err := NewFileSystemGateway(t.TempDir(), headerSealer{})
	require.NoError(t, err)
	return map[string]testGateway{
		"memory":            NewMemoryGateway(),
		"filesystem":        fs,
		"filesystem-sealed": sealed,
	}
}

// headerSealer marks sealed bytes with a fixed header and flips every byte,
// so sealed files differ from the plaintext without real cryptography.
type headerSealer struct{}

var sealHeader = []byte("DMSSEAL\x00")

type flipWriter struct{ w io.Writer }

func (f flipWriter) Write(p []byte) (int, error) {
	out := make([]byte, len(p))
	for i, b := range p {
		out[i] = ^b
	}
	return f.w.Write(out)
}

func (f flipWriter) Close() error { return nil }

type flipReader struct{ r io.Reader }

func (f flipReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	for i := 0; i < n; i++ {
		p[i] = ^p[i]
	}
	return n, err
}

func (headerSealer) Seal(w io.Writer) (io.WriteCloser, error) {
	if _, err := w.Write(sealHeader); err != nil {
		return nil, err
	}
	return flipWriter{w}, nil
}

func (headerSealer) Open(r io.Reader) (io.Reader, error) {
	head := make([]byte, len(sealHeader))
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	if !bytes.Equal(head, sealHeader) {
		return nil, errors.New("not sealed")
	}
	return flipReader{r}, nil
}

func readAll(t *testing.T, g dms.Gateway, key, versionID string) string {
	t.Helper()
	rc, err := g.Get(context.Background(), key, versionID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func put(t *testing.T, g dms.Gateway, key, content string) string {
	t.Helper()
	v, err := g.Put(context.Background(), key, strings.NewReader(content), int64(len(content)), "text/plain")
	require.NoError(t, err)
	require.NotEmpty(t, v)
	return v
}

func TestGateway_PutKeepsEveryVersion(t *testing.T) {
	for name, g := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			key := "uploads/documents/n1/report.txt"
			v1 := put(t, g, key, "first")
			v2 := put(t, g, key, "second")

			assert.NotEqual(t, v1, v2)
			assert.Equal(t, "first", readAll(t, g, key, v1))
			assert.Equal(t, "second", readAll(t, g, key, v2))
			assert.Equal(t, "second", readAll(t, g, key, ""))
		})
	}
}

func TestGateway_PutSizeMismatch(t *testing.T) {
	for name, g := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			_, err := g.Put(context.Background(), "k/a.txt", strings.NewReader("abc"), 10, "")
			assert.Error(t, err)
		})
	}
}

func TestGateway_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, g := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			key := "uploads/documents/n1/a.txt"
			v1 := put(t, g, key, "one")
			v2 := put(t, g, key, "two")

			require.NoError(t, g.Delete(ctx, key, v1))
			require.NoError(t, g.Delete(ctx, key, v1))

			_, err := g.Get(ctx, key, v1)
			assert.ErrorIs(t, err, ErrObjectNotFound)
			assert.Equal(t, "two", readAll(t, g, key, v2))

			require.NoError(t, g.Delete(ctx, "never/written.txt", "nope"))
		})
	}
}

func TestGateway_ColdTier(t *testing.T) {
	ctx := context.Background()
	for name, g := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			key := "uploads/documents/n1/a.txt"
			v1 := put(t, g, key, "archived body")

			cold, err := g.CopyWithTier(ctx, key, v1, dms.TierCold)
			require.NoError(t, err)
			require.NotEqual(t, v1, cold)

			_, err = g.Get(ctx, key, cold)
			assert.ErrorIs(t, err, ErrInvalidObjectState)

			ready, err := g.ColdRestoreReady(ctx, key, cold)
			require.NoError(t, err)
			assert.False(t, ready)

			require.NoError(t, g.RequestColdRestore(ctx, key, cold, 7))
			if mg, ok := g.(*MemoryGateway); ok {
				assert.Equal(t, 1, mg.FinishColdRestores())
			}

			ready, err = g.ColdRestoreReady(ctx, key, cold)
			require.NoError(t, err)
			assert.True(t, ready)
			assert.Equal(t, "archived body", readAll(t, g, key, cold))

			standard, err := g.CopyWithTier(ctx, key, cold, dms.TierStandard)
			require.NoError(t, err)
			assert.Equal(t, "archived body", readAll(t, g, key, standard))
		})
	}
}

func TestGateway_RestoreRequiresColdObject(t *testing.T) {
	for name, g := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			v := put(t, g, "k/a.txt", "x")
			err := g.RequestColdRestore(context.Background(), "k/a.txt", v, 7)
			assert.ErrorIs(t, err, ErrInvalidObjectState)
		})
	}
}

func TestGateway_Copy(t *testing.T) {
	ctx := context.Background()
	for name, g := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			v := put(t, g, "uploads/documents/n1/a.txt", "body")
			cp, err := g.Copy(ctx, "uploads/documents/n1/a.txt", v, "uploads/documents/n2/a (copy).txt")
			require.NoError(t, err)
			assert.Equal(t, "body", readAll(t, g, "uploads/documents/n2/a (copy).txt", cp))

			_, err = g.Copy(ctx, "missing/key.txt", "v", "dst/key.txt")
			assert.ErrorIs(t, err, ErrObjectNotFound)
		})
	}
}

func TestGateway_Multipart(t *testing.T) {
	ctx := context.Background()
	for name, g := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			key := "uploads/videos/n1/clip.mp4"
			uploadID, err := g.BeginMultipart(ctx, key, "video/mp4")
			require.NoError(t, err)

			chunks := []string{"aaaa", "bbbb", "cc"}
			parts := make([]dms.CompletedPart, len(chunks))
			// Upload out of order; completion sorts by part number.
			for _, i := range []int{2, 0, 1} {
				u, err := g.PartURL(ctx, key, uploadID, i+1, 15*time.Minute)
				require.NoError(t, err)
				tag, err := g.WritePart(ctx, u, strings.NewReader(chunks[i]), int64(len(chunks[i])))
				require.NoError(t, err)
				parts[i] = dms.CompletedPart{Number: i + 1, ETag: tag}
			}

			v, err := g.CompleteMultipart(ctx, key, uploadID, parts)
			require.NoError(t, err)
			assert.Equal(t, "aaaabbbbcc", readAll(t, g, key, v))

			_, err = g.PartURL(ctx, key, uploadID, 1, time.Minute)
			assert.ErrorIs(t, err, ErrUploadNotFound)
		})
	}
}

func TestGateway_MultipartRejectsBadParts(t *testing.T) {
	ctx := context.Background()
	for name, g := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			key := "uploads/others/n1/blob.bin"
			uploadID, err := g.BeginMultipart(ctx, key, "")
			require.NoError(t, err)

			u, err := g.PartURL(ctx, key, uploadID, 1, time.Minute)
			require.NoError(t, err)
			_, err = g.WritePart(ctx, u, strings.NewReader("data"), 4)
			require.NoError(t, err)

			_, err = g.CompleteMultipart(ctx, key, uploadID, []dms.CompletedPart{{Number: 1, ETag: `"bogus"`}})
			assert.ErrorIs(t, err, ErrInvalidPart)

			_, err = g.CompleteMultipart(ctx, key, uploadID, []dms.CompletedPart{{Number: 2}})
			assert.ErrorIs(t, err, ErrInvalidPart)
		})
	}
}

func TestGateway_AbortMultipart(t *testing.T) {
	ctx := context.Background()
	for name, g := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			key := "uploads/others/n1/blob.bin"
			uploadID, err := g.BeginMultipart(ctx, key, "")
			require.NoError(t, err)

			require.NoError(t, g.AbortMultipart(ctx, key, uploadID))
			require.NoError(t, g.AbortMultipart(ctx, key, uploadID))

			_, err = g.CompleteMultipart(ctx, key, uploadID, []dms.CompletedPart{{Number: 1}})
			assert.ErrorIs(t, err, ErrUploadNotFound)
		})
	}
}

func TestFileSystemGateway_RejectsEscapingKeys(t *testing.T) {
	g, err := NewFileSystemGateway(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = g.Put(context.Background(), "../outside.txt", strings.NewReader("x"), 1, "")
	assert.Error(t, err)

	_, err = g.WritePart(context.Background(), "file:///etc/passwd", strings.NewReader("x"), 1)
	assert.Error(t, err)
}

func TestMemoryGateway_Objects(t *testing.T) {
	g := NewMemoryGateway()
	v := put(t, g, "b/x.txt", "12345")
	put(t, g, "a/y.txt", "1")

	objs := g.Objects()
	require.Len(t, objs, 2)
	assert.Equal(t, "a/y.txt", objs[0].Key)
	assert.Equal(t, ObjectInfo{Key: "b/x.txt", VersionID: v, Size: 5, Tier: dms.TierStandard}, objs[1])
	assert.True(t, g.HasObject("b/x.txt", v))
	assert.False(t, g.HasObject("b/x.txt", "v999"))
}

func TestFileSystemGateway_SealsObjectsAtRest(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	g, err := NewFileSystemGateway(root, headerSealer{})
	require.NoError(t, err)

	key := "uploads/documents/n1/secret.txt"
	v := put(t, g, key, "top secret")

	onDisk, err := os.ReadFile(filepath.Join(root, "objects", filepath.FromSlash(key), v))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(onDisk, sealHeader))
	assert.NotContains(t, string(onDisk), "top secret")
	assert.Equal(t, "top secret", readAll(t, g, key, v))

	// Copies are readable and sealed again.
	cv, err := g.Copy(ctx, key, v, "uploads/documents/n2/secret.txt")
	require.NoError(t, err)
	assert.Equal(t, "top secret", readAll(t, g, "uploads/documents/n2/secret.txt", cv))

	// The same directory opened without a key cannot read sealed objects.
	plain, err := NewFileSystemGateway(root, nil)
	require.NoError(t, err)
	_, err = plain.Get(ctx, key, v)
	assert.ErrorContains(t, err, "no key is configured")

	// Objects written in the clear stay readable once a key is configured.
	pv := put(t, plain, "uploads/documents/n3/plain.txt", "clear")
	assert.Equal(t, "clear", readAll(t, g, "uploads/documents/n3/plain.txt", pv))
}
