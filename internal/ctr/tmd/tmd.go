// Package tmd parses title metadata records: the signed structure that
// enumerates every content a title is composed of.
package tmd

import (
	"encoding/binary"
	"fmt"

	"github.com/timmskiller/ctrgo/internal/ctr/sign"
	"github.com/timmskiller/ctrgo/internal/utils/errors"
)

const (
	headerSize            = 0xC4
	contentInfoRecordSize = 0x24
	contentInfoRecords    = 64
	contentChunkSize      = 0x30

	// Content type flags
	TypeEncrypted uint16 = 0x0001
	TypeDisc      uint16 = 0x0002
	TypeCFM       uint16 = 0x0004
	TypeOptional  uint16 = 0x4000
	TypeShared    uint16 = 0x8000
)

// ContentChunkRecord describes one content payload declared by the TMD.
// Records are immutable once parsed.
type ContentChunkRecord struct {
	ID    uint32
	Index uint16
	Type  uint16
	Size  uint64
	Hash  [32]byte
}

// Encrypted reports whether the content is stored AES-CBC encrypted
func (c ContentChunkRecord) Encrypted() bool {
	return c.Type&TypeEncrypted != 0
}

// Name returns the display name of the content, the zero-padded
// hexadecimal rendering of its content ID
func (c ContentChunkRecord) Name() string {
	return fmt.Sprintf("%08x", c.ID)
}

// TMD is a parsed title metadata record
type TMD struct {
	SignatureType sign.Type
	Issuer        string
	Version       uint8
	TitleID       uint64
	TitleVersion  uint16
	ContentCount  uint16
	Contents      []ContentChunkRecord
}

// Parse decodes a title metadata record from its raw bytes. All integer
// fields are big-endian. Trailing bytes beyond the declared content chunk
// records are ignored.
func Parse(data []byte) (*TMD, error) {
	sigType, bodyOffset, err := sign.ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedTMD, err)
	}

	if len(data) < bodyOffset+headerSize {
		return nil, fmt.Errorf("%w: truncated header", errors.ErrMalformedTMD)
	}
	header := data[bodyOffset : bodyOffset+headerSize]

	t := &TMD{
		SignatureType: sigType,
		Issuer:        cstring(header[0x00:0x40]),
		Version:       header[0x40],
		TitleID:       binary.BigEndian.Uint64(header[0x4C:]),
		TitleVersion:  binary.BigEndian.Uint16(header[0x9C:]),
		ContentCount:  binary.BigEndian.Uint16(header[0x9E:]),
	}

	chunkOffset := bodyOffset + headerSize + contentInfoRecords*contentInfoRecordSize
	chunkEnd := chunkOffset + int(t.ContentCount)*contentChunkSize
	if len(data) < chunkEnd {
		return nil, fmt.Errorf("%w: truncated content chunk records", errors.ErrMalformedTMD)
	}

	t.Contents = make([]ContentChunkRecord, 0, t.ContentCount)
	for i := 0; i < int(t.ContentCount); i++ {
		record := data[chunkOffset+i*contentChunkSize:]
		chunk := ContentChunkRecord{
			ID:    binary.BigEndian.Uint32(record[0x00:]),
			Index: binary.BigEndian.Uint16(record[0x04:]),
			Type:  binary.BigEndian.Uint16(record[0x06:]),
			Size:  binary.BigEndian.Uint64(record[0x08:]),
		}
		copy(chunk.Hash[:], record[0x10:0x30])
		t.Contents = append(t.Contents, chunk)
	}

	return t, nil
}

// cstring trims a fixed-size NUL-padded field to its string value
func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
