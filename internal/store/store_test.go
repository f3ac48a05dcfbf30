package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_MissingFile_ReturnsEmpty(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "settings.yaml")
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if f == nil {
		t.Fatalf("store is nil")
	}
	if _, ok := f.Get("ajax_timeout"); ok {
		t.Fatalf("unexpected value")
	}
}

func TestSet_RoundTrip(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "nested", "settings.yaml")

	in, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := in.Set("ajax_timeout", "30000"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := in.Set("custom_locale", "de-DE"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := in.Remove("custom_locale"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode=%o", info.Mode().Perm())
	}

	out, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if v, _ := out.Get("ajax_timeout"); v != "30000" {
		t.Fatalf("ajax_timeout=%q", v)
	}
	if _, ok := out.Get("custom_locale"); ok {
		t.Fatalf("custom_locale not removed")
	}
	if out.UpdatedAt().IsZero() {
		t.Fatalf("updated_at not set")
	}
}

func TestMemoryOnly(t *testing.T) {
	t.Parallel()

	f, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := f.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok := f.Get("k"); !ok || v != "v" {
		t.Fatalf("v=%q ok=%v", v, ok)
	}
}
