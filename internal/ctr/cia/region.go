package cia

import (
	"fmt"
)

// Section identifies one of the six regions a CIA container can carry
type Section int

const (
	SectionHeader Section = iota
	SectionCertChain
	SectionTicket
	SectionTMD
	SectionContents
	SectionMeta
)

// sectionOrder is the fixed on-disk order of regions
var sectionOrder = []Section{
	SectionHeader,
	SectionCertChain,
	SectionTicket,
	SectionTMD,
	SectionContents,
	SectionMeta,
}

// String returns the section's name, also used for output file naming
func (s Section) String() string {
	switch s {
	case SectionHeader:
		return "header"
	case SectionCertChain:
		return "cert_chain"
	case SectionTicket:
		return "ticket"
	case SectionTMD:
		return "tmd"
	case SectionContents:
		return "contents"
	case SectionMeta:
		return "meta"
	default:
		return fmt.Sprintf("section(%d)", int(s))
	}
}

// Region is a named half-open byte range [Offset, Offset+Size) within
// the container
type Region struct {
	Section Section
	Offset  uint64
	Size    uint64
}

// End returns the exclusive end offset of the region
func (r Region) End() uint64 {
	return r.Offset + r.Size
}

// String renders the region for human consumption: name, hex offset
// range, size in decimal and hex
func (r Region) String() string {
	return fmt.Sprintf("%-10s 0x%X-0x%X (%d bytes, 0x%X)",
		r.Section, r.Offset, r.End(), r.Size, r.Size)
}
