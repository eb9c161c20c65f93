package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// IgnoreFileName is read from the root of every scanned directory.
const IgnoreFileName = ".dmsignore"

// LocalFile is a regular file found below a scanned directory.
type LocalFile struct {
	Path    string // absolute path on disk
	RelPath string // slash separated, starting with the scanned directory's own name
	Size    int64
}

// Scanner discovers the files of a local directory tree for upload.
type Scanner struct {
	patterns []string
}

// NewScanner creates a scanner that applies patterns in addition to each
// directory's ignore file.
func NewScanner(patterns []string) *Scanner {
	return &Scanner{patterns: patterns}
}

// Resolve validates a raw path and returns its absolute form and info.
func Resolve(rawPath string) (string, fs.FileInfo, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return "", nil, fmt.Errorf("stat path: %w", err)
	}

	// Check for special file types we don't support
	mode := info.Mode()
	if mode&os.ModeSymlink != 0 {
		return "", nil, fmt.Errorf("symlinks not supported: %s", absPath)
	}
	if mode&os.ModeDevice != 0 {
		return "", nil, fmt.Errorf("device files not supported: %s", absPath)
	}
	if mode&os.ModeNamedPipe != 0 {
		return "", nil, fmt.Errorf("named pipes not supported: %s", absPath)
	}
	if mode&os.ModeSocket != 0 {
		return "", nil, fmt.Errorf("sockets not supported: %s", absPath)
	}

	return absPath, info, nil
}

// Scan walks the directory at root and returns its regular files in lexical
// order. Ignored directories are skipped with everything below them; other
// special files are skipped silently.
func (s *Scanner) Scan(root string) ([]LocalFile, error) {
	absRoot, info, err := Resolve(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absRoot)
	}

	filePatterns, err := ParseIgnoreFile(filepath.Join(absRoot, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns := append(append([]string{}, defaultIgnorePatterns...), s.patterns...)
	ignore := NewIgnoreMatcher(append(patterns, filePatterns...))

	base := filepath.Base(absRoot)
	var files []LocalFile
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == absRoot {
			return nil
		}
		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if ignore.MatchDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ignore.Match(rel) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		files = append(files, LocalFile{
			Path:    p,
			RelPath: base + "/" + filepath.ToSlash(rel),
			Size:    fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return files, nil
}
