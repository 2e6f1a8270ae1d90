package fsutil

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// MappedFile is a read-only memory-mapped view of a file. The mapping is
// shared and immutable, so independent readers may use it concurrently.
type MappedFile struct {
	file *os.File
	data []byte
}

// MapFile opens path and maps its full contents read-only
func MapFile(path string) (*MappedFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	var data []byte
	if info.Size() > 0 {
		data, err = unix.Mmap(int(file.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to map file: %w", err)
		}
	}

	return &MappedFile{file: file, data: data}, nil
}

// ReadAt implements io.ReaderAt over the mapped view
func (m *MappedFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.data)) {
		return 0, fmt.Errorf("offset %d out of range: %w", off, io.EOF)
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the length of the mapped view in bytes
func (m *MappedFile) Size() int64 {
	return int64(len(m.data))
}

// Close unmaps the view and closes the underlying file
func (m *MappedFile) Close() error {
	var unmapErr error
	if m.data != nil {
		unmapErr = unix.Munmap(m.data)
		m.data = nil
	}
	closeErr := m.file.Close()
	if unmapErr != nil {
		return unmapErr
	}
	return closeErr
}
