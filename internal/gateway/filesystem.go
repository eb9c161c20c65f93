package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"dms/internal/dms"
)

// FileSystemGateway stores objects as files in a directory structure:
//
//	<root>/
//	  objects/
//	    <key>/
//	      <version>        (object bytes)
//	      <version>.json   (content type, tier, restore state)
//	  multipart/
//	    <upload id>/
//	      upload.json
//	      part-00001 ...
//
// Version ids sort by creation time. Cold restores complete as soon as they
// are requested since every tier lives on the same disk. With a Sealer, object
// bytes and pending parts are encrypted on disk while metadata stays readable.
type FileSystemGateway struct {
	root         string
	objectsDir   string
	multipartDir string
	sealer       Sealer
	now          func() time.Time
}

type objectMeta struct {
	ContentType string          `json:"content_type"`
	Tier        dms.StorageTier `json:"tier"`
	Restored    bool            `json:"restored"`
	Size        int64           `json:"size"` // plaintext size
	Sealed      bool            `json:"sealed,omitempty"`
}

type uploadMeta struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Sealed      bool   `json:"sealed,omitempty"`
}

// NewFileSystemGateway creates a filesystem gateway rooted at the given path.
// A nil sealer stores objects in the clear.
func NewFileSystemGateway(root string, sealer Sealer) (*FileSystemGateway, error) {
	g := &FileSystemGateway{
		root:         root,
		objectsDir:   filepath.Join(root, "objects"),
		multipartDir: filepath.Join(root, "multipart"),
		sealer:       sealer,
		now:          time.Now,
	}
	for _, dir := range []string{g.objectsDir, g.multipartDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create gateway directory: %w", err)
		}
	}
	return g, nil
}

func (g *FileSystemGateway) keyDir(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if key == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(g.objectsDir, rel), nil
}

func (g *FileSystemGateway) newVersionID() string {
	return fmt.Sprintf("%019d-%s", g.now().UnixNano(), uuid.NewString()[:8])
}

// resolve returns the data path of an object version; an empty versionID
// selects the newest.
func (g *FileSystemGateway) resolve(key, versionID string) (string, string, error) {
	dir, err := g.keyDir(key)
	if err != nil {
		return "", "", err
	}
	if versionID == "" {
		versions, err := g.versions(dir)
		if err != nil {
			return "", "", err
		}
		if len(versions) == 0 {
			return "", "", fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		versionID = versions[len(versions)-1]
	}
	if strings.ContainsAny(versionID, `/\`) {
		return "", "", fmt.Errorf("invalid version id %q", versionID)
	}
	p := filepath.Join(dir, versionID)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", "", fmt.Errorf("%w: %s@%s", ErrObjectNotFound, key, versionID)
		}
		return "", "", fmt.Errorf("stat object: %w", err)
	}
	return p, versionID, nil
}

func (g *FileSystemGateway) versions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".tmp-") {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func readMeta(dataPath string) (objectMeta, error) {
	var meta objectMeta
	raw, err := os.ReadFile(dataPath + ".json")
	if err != nil {
		return meta, fmt.Errorf("reading object metadata: %w", err)
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, fmt.Errorf("decoding object metadata: %w", err)
	}
	return meta, nil
}

func writeMeta(dataPath string, meta objectMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding object metadata: %w", err)
	}
	return writeFile(dataPath+".json", bytes.NewReader(raw), int64(len(raw)), nil)
}

// seal returns the wrapper applied to object bytes on write, nil when the
// gateway stores them in the clear.
func (g *FileSystemGateway) seal() func(io.Writer) (io.WriteCloser, error) {
	if g.sealer == nil {
		return nil
	}
	return g.sealer.Seal
}

// open opens the data file at p, decrypting it when it was sealed.
func (g *FileSystemGateway) open(p string, sealed bool) (io.ReadCloser, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	if !sealed {
		return f, nil
	}
	if g.sealer == nil {
		f.Close()
		return nil, fmt.Errorf("%s is encrypted but no key is configured", filepath.Base(p))
	}
	r, err := g.sealer.Open(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return struct {
		io.Reader
		io.Closer
	}{r, f}, nil
}

func (g *FileSystemGateway) readPart(p string, sealed bool) ([]byte, error) {
	rc, err := g.open(p, sealed)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// put writes a new version of key from r.
func (g *FileSystemGateway) put(key string, r io.Reader, size int64, meta objectMeta) (string, error) {
	dir, err := g.keyDir(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}
	versionID := g.newVersionID()
	dataPath := filepath.Join(dir, versionID)
	meta.Size = size
	meta.Sealed = g.sealer != nil
	if err := writeMeta(dataPath, meta); err != nil {
		return "", err
	}
	if err := writeFile(dataPath, r, size, g.seal()); err != nil {
		os.Remove(dataPath + ".json")
		return "", err
	}
	return versionID, nil
}

// Put stores r under key as a new version.
func (g *FileSystemGateway) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	return g.put(key, r, size, objectMeta{ContentType: contentType, Tier: dms.TierStandard})
}

// Get opens one object version.
func (g *FileSystemGateway) Get(ctx context.Context, key, versionID string) (io.ReadCloser, error) {
	p, _, err := g.resolve(key, versionID)
	if err != nil {
		return nil, err
	}
	meta, err := readMeta(p)
	if err != nil {
		return nil, err
	}
	if meta.Tier == dms.TierCold && !meta.Restored {
		return nil, fmt.Errorf("%w: %s@%s", ErrInvalidObjectState, key, versionID)
	}
	return g.open(p, meta.Sealed)
}

func (g *FileSystemGateway) copyVersion(srcKey, srcVersionID, dstKey string, tier dms.StorageTier) (string, error) {
	p, _, err := g.resolve(srcKey, srcVersionID)
	if err != nil {
		return "", err
	}
	meta, err := readMeta(p)
	if err != nil {
		return "", err
	}
	rc, err := g.open(p, meta.Sealed)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return g.put(dstKey, rc, meta.Size, objectMeta{ContentType: meta.ContentType, Tier: tier})
}

// CopyWithTier stores a copy of an object version under the same key in tier.
func (g *FileSystemGateway) CopyWithTier(ctx context.Context, key, versionID string, tier dms.StorageTier) (string, error) {
	return g.copyVersion(key, versionID, key, tier)
}

// Copy stores a copy of an object version under dstKey.
func (g *FileSystemGateway) Copy(ctx context.Context, srcKey, srcVersionID, dstKey string) (string, error) {
	return g.copyVersion(srcKey, srcVersionID, dstKey, dms.TierStandard)
}

// Delete removes one object version. Deleting a missing version succeeds.
func (g *FileSystemGateway) Delete(ctx context.Context, key, versionID string) error {
	p, _, err := g.resolve(key, versionID)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil
		}
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting object: %w", err)
	}
	if err := os.Remove(p + ".json"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting object metadata: %w", err)
	}
	// Drop the key directory once its last version is gone.
	os.Remove(filepath.Dir(p))
	return nil
}

// RequestColdRestore makes a cold object version readable immediately.
func (g *FileSystemGateway) RequestColdRestore(ctx context.Context, key, versionID string, days int) error {
	p, _, err := g.resolve(key, versionID)
	if err != nil {
		return err
	}
	meta, err := readMeta(p)
	if err != nil {
		return err
	}
	if meta.Tier != dms.TierCold {
		return fmt.Errorf("%w: %s@%s is not archived", ErrInvalidObjectState, key, versionID)
	}
	meta.Restored = true
	return writeMeta(p, meta)
}

// ColdRestoreReady reports whether the object version is readable.
func (g *FileSystemGateway) ColdRestoreReady(ctx context.Context, key, versionID string) (bool, error) {
	p, _, err := g.resolve(key, versionID)
	if err != nil {
		return false, err
	}
	meta, err := readMeta(p)
	if err != nil {
		return false, err
	}
	return meta.Tier != dms.TierCold || meta.Restored, nil
}

func (g *FileSystemGateway) uploadDir(uploadID string) (string, error) {
	if uploadID == "" || !filepath.IsLocal(uploadID) || strings.ContainsAny(uploadID, `/\`) {
		return "", fmt.Errorf("invalid upload id %q", uploadID)
	}
	return filepath.Join(g.multipartDir, uploadID), nil
}

func (g *FileSystemGateway) readUpload(uploadID string) (string, uploadMeta, error) {
	var meta uploadMeta
	dir, err := g.uploadDir(uploadID)
	if err != nil {
		return "", meta, err
	}
	raw, err := os.ReadFile(filepath.Join(dir, "upload.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", meta, fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
		}
		return "", meta, fmt.Errorf("reading upload: %w", err)
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return "", meta, fmt.Errorf("decoding upload: %w", err)
	}
	return dir, meta, nil
}

// BeginMultipart starts a multipart upload for key.
func (g *FileSystemGateway) BeginMultipart(ctx context.Context, key, contentType string) (string, error) {
	if _, err := g.keyDir(key); err != nil {
		return "", err
	}
	uploadID := uuid.NewString()
	dir := filepath.Join(g.multipartDir, uploadID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	raw, err := json.Marshal(uploadMeta{Key: key, ContentType: contentType, Sealed: g.sealer != nil})
	if err != nil {
		return "", fmt.Errorf("encoding upload: %w", err)
	}
	if err := writeFile(filepath.Join(dir, "upload.json"), bytes.NewReader(raw), int64(len(raw)), nil); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return uploadID, nil
}

func partName(partNumber int) string {
	return fmt.Sprintf("part-%05d", partNumber)
}

// PartURL returns a file:// URL naming where the part must be written.
func (g *FileSystemGateway) PartURL(ctx context.Context, key, uploadID string, partNumber int, expiry time.Duration) (string, error) {
	dir, meta, err := g.readUpload(uploadID)
	if err != nil {
		return "", err
	}
	if meta.Key != key {
		return "", fmt.Errorf("%w: %s is not an upload of %s", ErrUploadNotFound, uploadID, key)
	}
	abs, err := filepath.Abs(filepath.Join(dir, partName(partNumber)))
	if err != nil {
		return "", fmt.Errorf("resolving part path: %w", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// WritePart implements PartWriter for URLs issued by PartURL.
func (g *FileSystemGateway) WritePart(ctx context.Context, partURL string, r io.Reader, size int64) (string, error) {
	u, err := url.Parse(partURL)
	if err != nil || u.Scheme != "file" {
		return "", fmt.Errorf("not a file part url: %s", partURL)
	}
	target := filepath.FromSlash(u.Path)
	base, err := filepath.Abs(g.multipartDir)
	if err != nil {
		return "", fmt.Errorf("resolving multipart directory: %w", err)
	}
	rel, err := filepath.Rel(base, target)
	if err != nil || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("part url outside gateway root: %s", partURL)
	}
	_, meta, err := g.readUpload(filepath.Base(filepath.Dir(target)))
	if err != nil {
		return "", err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read part: %w", err)
	}
	var seal func(io.Writer) (io.WriteCloser, error)
	if meta.Sealed {
		seal = g.seal()
	}
	if err := writeFile(target, bytes.NewReader(data), size, seal); err != nil {
		return "", err
	}
	return etag(data), nil
}

// CompleteMultipart assembles the listed parts into a new object version.
func (g *FileSystemGateway) CompleteMultipart(ctx context.Context, key, uploadID string, parts []dms.CompletedPart) (string, error) {
	dir, meta, err := g.readUpload(uploadID)
	if err != nil {
		return "", err
	}
	if meta.Key != key {
		return "", fmt.Errorf("%w: %s is not an upload of %s", ErrUploadNotFound, uploadID, key)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: no parts", ErrInvalidPart)
	}

	sorted := append([]dms.CompletedPart(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	var buf bytes.Buffer
	for _, p := range sorted {
		data, err := g.readPart(filepath.Join(dir, partName(p.Number)), meta.Sealed)
		if err != nil {
			if os.IsNotExist(err) {
				return "", fmt.Errorf("%w: part %d was not uploaded", ErrInvalidPart, p.Number)
			}
			return "", fmt.Errorf("reading part %d: %w", p.Number, err)
		}
		if p.ETag != "" && p.ETag != etag(data) {
			return "", fmt.Errorf("%w: part %d etag mismatch", ErrInvalidPart, p.Number)
		}
		buf.Write(data)
	}

	versionID, err := g.put(key, &buf, int64(buf.Len()), objectMeta{ContentType: meta.ContentType, Tier: dms.TierStandard})
	if err != nil {
		return "", err
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("cleaning up upload: %w", err)
	}
	return versionID, nil
}

// AbortMultipart discards an upload and its parts.
func (g *FileSystemGateway) AbortMultipart(ctx context.Context, key, uploadID string) error {
	dir, err := g.uploadDir(uploadID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing upload: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the gateway directories are accessible.
func (g *FileSystemGateway) ValidateSetup() error {
	for _, dir := range []string{g.root, g.objectsDir, g.multipartDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("gateway directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("gateway path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes r to destPath atomically (temp file + rename). When seal
// is set the bytes pass through it; expectedSize counts the bytes read from r.
func writeFile(destPath string, r io.Reader, expectedSize int64, seal func(io.Writer) (io.WriteCloser, error)) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	var w io.Writer = tmpFile
	var sealed io.WriteCloser
	if seal != nil {
		if sealed, err = seal(tmpFile); err != nil {
			tmpFile.Close()
			return err
		}
		w = sealed
	}

	written, err := io.Copy(w, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if sealed != nil {
		if err := sealed.Close(); err != nil {
			tmpFile.Close()
			return fmt.Errorf("failed to seal data: %w", err)
		}
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time checks
var (
	_ dms.Gateway = (*FileSystemGateway)(nil)
	_ PartWriter  = (*FileSystemGateway)(nil)
)
