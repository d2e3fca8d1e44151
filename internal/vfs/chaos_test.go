package vfs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestChaos_ReadAtFailRate_Injects(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")

	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	chaos := NewChaos(NewReal(), 1, ChaosConfig{ReadAtFailRate: 1.0})

	f, err := chaos.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	buf := make([]byte, 4)

	_, err = f.ReadAt(buf, 0)
	if err == nil {
		t.Fatal("expected injected error, got nil")
	}
}

func TestChaos_NoFaults_PassesThrough(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")

	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	chaos := NewChaos(NewReal(), 1, ChaosConfig{})

	f, err := chaos.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	buf := make([]byte, 5)

	n, err := f.ReadAt(buf, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n != 5 || string(buf) != "hello" {
		t.Fatalf("got %q, want %q", buf[:n], "hello")
	}
}
