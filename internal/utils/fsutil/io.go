package fsutil

import (
	"fmt"
	"io"
)

// copyBufferSize is the chunk size used when streaming byte ranges
const copyBufferSize = 64 * 1024

// AlignUp rounds v up to the next multiple of align
func AlignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return ((v + align - 1) / align) * align
}

// CopyRange streams exactly size bytes starting at off from src into dst
func CopyRange(dst io.Writer, src io.ReaderAt, off int64, size int64) (int64, error) {
	buf := make([]byte, copyBufferSize)
	n, err := io.CopyBuffer(dst, io.NewSectionReader(src, off, size), buf)
	if err != nil {
		return n, fmt.Errorf("failed to copy byte range: %w", err)
	}
	if n != size {
		return n, fmt.Errorf("short copy: got %d bytes, want %d: %w", n, size, io.ErrUnexpectedEOF)
	}
	return n, nil
}
