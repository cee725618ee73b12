package secretfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadReadsTrimmedKeyFromMode600File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.key")
	if err := os.WriteFile(path, []byte("super-secret-key\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	key, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(key) != "super-secret-key" {
		t.Fatalf("expected trimmed key, got %q", key)
	}
}

func TestLoadRejectsGroupOrOtherReadablePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.key")
	if err := os.WriteFile(path, []byte("super-secret-key"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for mode 0644 key file, got nil")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.key")); err == nil {
		t.Fatalf("expected error for missing key file, got nil")
	}
}
