package security

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestSealAndOpen(t *testing.T) {
	tempDir := t.TempDir()
	sealer := NewSessionSealer(tempDir)

	blob := []byte(`[{"name":"session","value":"abc123"}]`)

	sealed, err := sealer.Seal(blob)
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}

	if bytes.Contains(sealed, []byte("abc123")) {
		t.Fatal("Sealed blob contains plaintext")
	}

	opened, err := sealer.Open(sealed)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}

	if !bytes.Equal(opened, blob) {
		t.Fatalf("Opened blob doesn't match original. Got: %s, Want: %s", opened, blob)
	}
}

func TestSealerPersistsSalt(t *testing.T) {
	tempDir := t.TempDir()

	sealed, err := NewSessionSealer(tempDir).Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}

	info, err := os.Stat(filepath.Join(tempDir, ".session-key"))
	if err != nil {
		t.Fatalf("Salt file not created: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("Salt file is empty")
	}

	// A fresh sealer over the same directory derives the same key
	opened, err := NewSessionSealer(tempDir).Open(sealed)
	if err != nil {
		t.Fatalf("Failed to open with new sealer: %v", err)
	}
	if string(opened) != "payload" {
		t.Fatalf("Got %q, want %q", opened, "payload")
	}
}

func TestSealerEmptyInput(t *testing.T) {
	sealer := NewSessionSealer(t.TempDir())

	if _, err := sealer.Seal(nil); err == nil {
		t.Fatal("Expected error for empty plaintext, got nil")
	}

	if _, err := sealer.Open(nil); err == nil {
		t.Fatal("Expected error for empty sealed blob, got nil")
	}
}

func TestOpenWithoutKey(t *testing.T) {
	sealer := NewSessionSealer(t.TempDir())

	if _, err := sealer.Open([]byte("0123456789abcdef0123")); err == nil {
		t.Fatal("Expected error when no key exists, got nil")
	}
}

func TestOpenTamperedBlob(t *testing.T) {
	sealer := NewSessionSealer(t.TempDir())

	sealed, err := sealer.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}

	sealed[len(sealed)-1] ^= 0xff
	if _, err := sealer.Open(sealed); err == nil {
		t.Fatal("Expected error for tampered blob, got nil")
	}
}

func TestResetInvalidatesBlobs(t *testing.T) {
	tempDir := t.TempDir()
	sealer := NewSessionSealer(tempDir)

	sealed, err := sealer.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}

	if err := sealer.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if _, err := sealer.Open(sealed); err == nil {
		t.Fatal("Expected error after reset, got nil")
	}
}
