package sectorsize

import (
	"path/filepath"
	"testing"
)

func TestProbe_MissingPathReturnsPowerOfTwo(t *testing.T) {
	dir := t.TempDir()

	sz := Probe(filepath.Join(dir, "archive.tar"))
	if sz == 0 {
		t.Fatal("Probe returned 0")
	}

	if sz&(sz-1) != 0 {
		t.Fatalf("sector size %d is not a power of two", sz)
	}
}
