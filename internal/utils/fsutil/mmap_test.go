package fsutil

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestMapFile(t *testing.T) {
	data := make([]byte, 8192)
	for i := range data {
		data[i] = byte(i % 256)
	}
	path := filepath.Join(t.TempDir(), "container.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	mapped, err := MapFile(path)
	if err != nil {
		t.Fatalf("MapFile failed: %v", err)
	}
	defer mapped.Close()

	if mapped.Size() != int64(len(data)) {
		t.Errorf("Size() = %d, want %d", mapped.Size(), len(data))
	}

	buf := make([]byte, 256)
	n, err := mapped.ReadAt(buf, 4096)
	if err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if n != len(buf) || !bytes.Equal(buf, data[4096:4096+256]) {
		t.Error("ReadAt returned wrong bytes")
	}

	// Short read at the end of the view reports EOF
	n, err = mapped.ReadAt(buf, int64(len(data))-16)
	if err != io.EOF {
		t.Fatalf("got %v, want io.EOF", err)
	}
	if n != 16 {
		t.Errorf("read %d bytes at tail, want 16", n)
	}
}

func TestMapFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	mapped, err := MapFile(path)
	if err != nil {
		t.Fatalf("MapFile failed: %v", err)
	}
	defer mapped.Close()

	if mapped.Size() != 0 {
		t.Errorf("Size() = %d, want 0", mapped.Size())
	}
	if _, err := mapped.ReadAt(make([]byte, 1), 0); err != io.EOF {
		t.Fatalf("got %v, want io.EOF", err)
	}
}

func TestMapFileMissing(t *testing.T) {
	if _, err := MapFile(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
