// Package ticket parses tickets: the signed structure carrying the
// encrypted title key of an installable package.
package ticket

import (
	"encoding/binary"
	"fmt"

	"github.com/timmskiller/ctrgo/internal/ctr/sign"
	"github.com/timmskiller/ctrgo/internal/utils/errors"
)

// bodySize covers the fixed ticket body fields up to the content
// permission bitmaps
const bodySize = 0xB2

// Ticket is a parsed ticket record. The title key is stored encrypted;
// decrypting it is the key engine's job.
type Ticket struct {
	SignatureType  sign.Type
	Issuer         string
	Version        uint8
	TitleKey       [16]byte
	TicketID       uint64
	ConsoleID      uint32
	TitleID        uint64
	TitleVersion   uint16
	LicenseType    uint8
	CommonKeyIndex uint8
}

// Parse decodes a ticket from its raw bytes. All integer fields are
// big-endian. Trailing bytes beyond the fixed body are ignored.
func Parse(data []byte) (*Ticket, error) {
	sigType, bodyOffset, err := sign.ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedTicket, err)
	}

	if len(data) < bodyOffset+bodySize {
		return nil, fmt.Errorf("%w: truncated body", errors.ErrMalformedTicket)
	}
	body := data[bodyOffset:]

	t := &Ticket{
		SignatureType:  sigType,
		Issuer:         cstring(body[0x00:0x40]),
		Version:        body[0x7C],
		TicketID:       binary.BigEndian.Uint64(body[0x90:]),
		ConsoleID:      binary.BigEndian.Uint32(body[0x98:]),
		TitleID:        binary.BigEndian.Uint64(body[0x9C:]),
		TitleVersion:   binary.BigEndian.Uint16(body[0xA6:]),
		LicenseType:    body[0xB0],
		CommonKeyIndex: body[0xB1],
	}
	copy(t.TitleKey[:], body[0x7F:0x8F])

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
