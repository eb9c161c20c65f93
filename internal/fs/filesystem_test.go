package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("creating %s: %v", filepath.Dir(p), err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", p, err)
		}
	}
}

func relPaths(files []LocalFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func TestScanner_Scan(t *testing.T) {
	root := filepath.Join(t.TempDir(), "reports")
	writeTree(t, root, map[string]string{
		"2024/q1.pdf":               "q1",
		"2024/q2.pdf":               "q2-longer",
		"summary.txt":               "summary",
		"debug.log":                 "noise",
		"node_modules/lib/index.js": "x",
		".dmsignore":                "*.log\nnode_modules/\n",
	})

	files, err := NewScanner(nil).Scan(root)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	want := []string{"reports/2024/q1.pdf", "reports/2024/q2.pdf", "reports/summary.txt"}
	got := relPaths(files)
	if len(got) != len(want) {
		t.Fatalf("Scan() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("file %d = %q, want %q", i, got[i], want[i])
		}
	}
	if files[1].Size != int64(len("q2-longer")) {
		t.Errorf("Size = %d, want %d", files[1].Size, len("q2-longer"))
	}
	if !filepath.IsAbs(files[0].Path) {
		t.Errorf("Path = %q, want absolute", files[0].Path)
	}
}

func TestScanner_ExtraPatterns(t *testing.T) {
	root := filepath.Join(t.TempDir(), "photos")
	writeTree(t, root, map[string]string{
		"a.jpg":     "a",
		".DS_Store": "junk",
	})

	files, err := NewScanner([]string{".DS_Store"}).Scan(root)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "photos/a.jpg" {
		t.Errorf("Scan() = %v, want only photos/a.jpg", relPaths(files))
	}
}

func TestScanner_SkipsSymlinks(t *testing.T) {
	root := filepath.Join(t.TempDir(), "docs")
	writeTree(t, root, map[string]string{"real.txt": "x"})
	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	files, err := NewScanner(nil).Scan(root)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "docs/real.txt" {
		t.Errorf("Scan() = %v, want only docs/real.txt", relPaths(files))
	}
}

func TestScanner_Errors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	writeTree(t, dir, map[string]string{"plain.txt": "x"})

	if _, err := NewScanner(nil).Scan(file); err == nil {
		t.Error("Scan() expected error for a regular file")
	}
	if _, err := NewScanner(nil).Scan(filepath.Join(dir, "missing")); err == nil {
		t.Error("Scan() expected error for a missing path")
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.txt": "abc"})

	abs, info, err := Resolve(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if abs != filepath.Join(dir, "a.txt") || info.Size() != 3 {
		t.Errorf("Resolve() = %q size %d", abs, info.Size())
	}

	link := filepath.Join(dir, "link")
	if err := os.Symlink(filepath.Join(dir, "a.txt"), link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if _, _, err := Resolve(link); err == nil {
		t.Error("Resolve() expected error for a symlink")
	}
}
