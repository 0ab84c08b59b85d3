package archive

import (
	"context"
	"path/filepath"
	"testing"
)

func TestLocalFS_ImplementsStorage(t *testing.T) {
	var _ Storage = (*LocalFS)(nil)
}

func TestLocalFS_RequiresPath(t *testing.T) {
	if _, err := NewLocalFS(""); err == nil {
		t.Error("expected error for empty base path")
	}
}

func TestLocalFS_WriteRead(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewLocalFS(dir)
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}

	ctx := context.Background()
	data := []byte("<html>QQQ</html>")

	if err := fs.Write(ctx, "QQQ/20240102-090000/chart.html", data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := fs.Read(ctx, "QQQ/20240102-090000/chart.html")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if string(got) != string(data) {
		t.Errorf("got %q, want %q", got, data)
	}
	if loc := fs.Location("QQQ/a.html"); loc != filepath.Join(dir, "QQQ", "a.html") {
		t.Errorf("unexpected location %s", loc)
	}
}

func TestLocalFS_RejectsEscape(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()

	if err := fs.Write(ctx, "../outside.html", []byte("x")); err == nil {
		t.Error("expected error for path outside base")
	}
	if _, err := fs.Read(ctx, "../../etc/passwd"); err == nil {
		t.Error("expected error for path outside base")
	}
}

func TestLocalFS_Exists(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewLocalFS(dir)
	ctx := context.Background()

	exists, _ := fs.Exists(ctx, "nonexistent.html")
	if exists {
		t.Error("expected false for nonexistent file")
	}

	fs.Write(ctx, "exists.html", []byte("data"))
	exists, _ = fs.Exists(ctx, "exists.html")
	if !exists {
		t.Error("expected true for existing file")
	}
}

func TestLocalFS_List(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewLocalFS(dir)
	ctx := context.Background()

	fs.Write(ctx, "QQQ/run1/chart.html", []byte("a"))
	fs.Write(ctx, "QQQ/run1/metrics.json", []byte("b"))
	fs.Write(ctx, "SPY/run1/chart.html", []byte("c"))

	paths, err := fs.List(ctx, "QQQ")
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	if len(paths) != 2 {
		t.Errorf("expected 2 paths, got %d", len(paths))
	}
	for _, p := range paths {
		if filepath.Ext(p) == ".tmp" {
			t.Errorf("temporary file listed: %s", p)
		}
	}

	paths, err = fs.List(ctx, "AAPL")
	if err != nil || len(paths) != 0 {
		t.Errorf("expected empty list for missing prefix, got %v %v", paths, err)
	}
}

func TestLocalFS_Delete(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewLocalFS(dir)
	ctx := context.Background()

	fs.Write(ctx, "delete.html", []byte("data"))
	fs.Delete(ctx, "delete.html")

	exists, _ := fs.Exists(ctx, "delete.html")
	if exists {
		t.Error("file should be deleted")
	}
}
