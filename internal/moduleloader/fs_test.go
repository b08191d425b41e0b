package moduleloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFSLoaderResolvesBareImportPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "greet.bur"), []byte("export x = 1;"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	l := NewFSLoader(dir)
	m, err := l.Load(context.Background(), "greet")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Source != "export x = 1;" {
		t.Fatalf("unexpected source: %q", m.Source)
	}
	if m.Hash == "" {
		t.Fatal("expected a non-empty content hash")
	}
}

func TestFSLoaderRejectsPathTraversal(t *testing.T) {
	l := NewFSLoader(t.TempDir())
	if _, err := l.Load(context.Background(), "../escape"); err == nil {
		t.Fatal("expected an error for a path containing \"..\"")
	}
}

func TestAsSourceLoaderAdaptsModuleLoader(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "m.bur"), []byte("export y = 2;"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	adapted := AsSourceLoader{ModuleLoader: NewFSLoader(dir)}
	src, err := adapted.Load("m")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src != "export y = 2;" {
		t.Fatalf("unexpected source: %q", src)
	}
}
