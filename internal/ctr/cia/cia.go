// Package cia parses CIA installable-package containers and extracts
// their sections and content payloads.
package cia

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/timmskiller/ctrgo/internal/ctr/ticket"
	"github.com/timmskiller/ctrgo/internal/ctr/tmd"
	"github.com/timmskiller/ctrgo/internal/utils/errors"
	"github.com/timmskiller/ctrgo/internal/utils/fsutil"
)

const (
	// HeaderSize is the declared size of the header region: the 32-byte
	// fixed prefix plus the content index bitmap
	HeaderSize = 0x2020

	headerPrefixSize = 0x20
	contentIndexSize = 0x2000

	// regionAlignment is the boundary every region start is rounded up to
	regionAlignment = 64
)

// Header is the decoded fixed 32-byte prefix of a CIA container
type Header struct {
	HeaderSize    uint16
	CertChainSize uint32
	TicketSize    uint32
	TMDSize       uint32
	MetaSize      uint32
	ContentSize   uint64
}

// CIA is the parsed aggregate of one container: the region map, the
// active content list in TMD order, and the embedded records. It holds
// no reference to the source stream and is immutable once constructed.
type CIA struct {
	Header   Header
	Regions  map[Section]Region
	Contents []tmd.ContentChunkRecord
	TMD      *tmd.TMD
	Ticket   *ticket.Ticket
}

// Parse reads a CIA container from r, which must be positioned at the
// start of the container. The whole structure is validated eagerly; the
// content payloads themselves are not read.
func Parse(r io.ReadSeeker) (*CIA, error) {
	prefix := make([]byte, headerPrefixSize)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	header := Header{
		HeaderSize:    binary.LittleEndian.Uint16(prefix[0x00:]),
		CertChainSize: binary.LittleEndian.Uint32(prefix[0x08:]),
		TicketSize:    binary.LittleEndian.Uint32(prefix[0x0C:]),
		TMDSize:       binary.LittleEndian.Uint32(prefix[0x10:]),
		MetaSize:      binary.LittleEndian.Uint32(prefix[0x14:]),
		ContentSize:   binary.LittleEndian.Uint64(prefix[0x18:]),
	}
	if header.HeaderSize != HeaderSize {
		return nil, fmt.Errorf("%w: header size 0x%X, want 0x%X",
			errors.ErrMalformedHeader, header.HeaderSize, HeaderSize)
	}

	bitmap := make([]byte, contentIndexSize)
	if _, err := io.ReadFull(r, bitmap); err != nil {
		return nil, fmt.Errorf("failed to read content index: %w", err)
	}
	activeIndices := decodeContentIndex(bitmap)

	// Region offsets accumulate in fixed order, each start rounded up to
	// the alignment boundary from the previous region's end
	certOffset := fsutil.AlignUp(uint64(header.HeaderSize), regionAlignment)
	ticketOffset := certOffset + fsutil.AlignUp(uint64(header.CertChainSize), regionAlignment)
	tmdOffset := ticketOffset + fsutil.AlignUp(uint64(header.TicketSize), regionAlignment)
	contentsOffset := tmdOffset + fsutil.AlignUp(uint64(header.TMDSize), regionAlignment)
	metaOffset := contentsOffset + fsutil.AlignUp(header.ContentSize, regionAlignment)

	tmdRecord, err := readRecord(r, tmdOffset, uint64(header.TMDSize), "title metadata", tmd.Parse)
	if err != nil {
		return nil, err
	}
	ticketRecord, err := readRecord(r, ticketOffset, uint64(header.TicketSize), "ticket", ticket.Parse)
	if err != nil {
		return nil, err
	}

	// Keep TMD records whose index the bitmap declares active, preserving
	// TMD order. This order drives content offset computation later.
	activeSet := make(map[uint16]struct{}, len(activeIndices))
	for _, index := range activeIndices {
		activeSet[index] = struct{}{}
	}
	var contents []tmd.ContentChunkRecord
	var keptIndices []uint16
	for _, chunk := range tmdRecord.Contents {
		if _, ok := activeSet[chunk.Index]; ok {
			contents = append(contents, chunk)
			keptIndices = append(keptIndices, chunk.Index)
		}
	}

	if err := validateContentSets(activeIndices, keptIndices); err != nil {
		return nil, err
	}

	regions := make(map[Section]Region)
	addRegion := func(s Section, offset, size uint64) {
		if size == 0 {
			return
		}
		regions[s] = Region{Section: s, Offset: offset, Size: size}
	}
	addRegion(SectionHeader, 0, uint64(header.HeaderSize))
	addRegion(SectionCertChain, certOffset, uint64(header.CertChainSize))
	addRegion(SectionTicket, ticketOffset, uint64(header.TicketSize))
	addRegion(SectionTMD, tmdOffset, uint64(header.TMDSize))
	addRegion(SectionContents, contentsOffset, header.ContentSize)
	addRegion(SectionMeta, metaOffset, uint64(header.MetaSize))

	return &CIA{
		Header:   header,
		Regions:  regions,
		Contents: contents,
		TMD:      tmdRecord,
		Ticket:   ticketRecord,
	}, nil
}

// Region returns the named region, or ErrSectionNotFound if the
// container does not carry it
func (c *CIA) Region(s Section) (Region, error) {
	region, ok := c.Regions[s]
	if !ok {
		return Region{}, fmt.Errorf("%w: %s", errors.ErrSectionNotFound, s)
	}
	return region, nil
}

// OrderedRegions returns the present regions in on-disk order
func (c *CIA) OrderedRegions() []Region {
	var regions []Region
	for _, s := range sectionOrder {
		if region, ok := c.Regions[s]; ok {
			regions = append(regions, region)
		}
	}
	return regions
}

// decodeContentIndex expands the bitmap into the sorted list of active
// content indices. Bit j of byte i, counted from the most significant
// bit, covers index i*8+j.
func decodeContentIndex(bitmap []byte) []uint16 {
	var active []uint16
	for i, b := range bitmap {
		for j := 0; j < 8; j++ {
			if b&(0x80>>uint(j)) != 0 {
				active = append(active, uint16(i*8+j))
			}
		}
	}
	return active
}

// validateContentSets fails with ErrContentMismatch unless the bitmap
// active set and the TMD-declared set are identical
func validateContentSets(bitmapIndices, tmdIndices []uint16) error {
	if len(bitmapIndices) != len(tmdIndices) {
		return fmt.Errorf("%w: bitmap declares %d contents, title metadata %d",
			errors.ErrContentMismatch, len(bitmapIndices), len(tmdIndices))
	}

	sorted := make([]uint16, len(tmdIndices))
	copy(sorted, tmdIndices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	// bitmapIndices is already sorted by construction
	for i := range sorted {
		if sorted[i] != bitmapIndices[i] {
			return fmt.Errorf("%w: index %d active in bitmap, index %d in title metadata",
				errors.ErrContentMismatch, bitmapIndices[i], sorted[i])
		}
	}
	return nil
}

// readRecord seeks to a region, reads exactly size bytes and hands them
// to the record parser
func readRecord[T any](r io.ReadSeeker, offset, size uint64, what string, parse func([]byte) (*T, error)) (*T, error) {
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to %s: %w", what, err)
	}
	blob := make([]byte, size)
	if _, err := io.ReadFull(r, blob); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", what, err)
	}
	return parse(blob)
}
