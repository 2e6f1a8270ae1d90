// Package sign decodes the signature blocks that prefix signed CTR
// structures such as tickets and title metadata records.
package sign

import (
	"encoding/binary"
	"fmt"

	"github.com/timmskiller/ctrgo/internal/utils/errors"
)

// Type identifies the signature algorithm of a signed structure
type Type uint32

const (
	RSA4096SHA1   Type = 0x010000
	RSA2048SHA1   Type = 0x010001
	ECDSASHA1     Type = 0x010002
	RSA4096SHA256 Type = 0x010003
	RSA2048SHA256 Type = 0x010004
	ECDSASHA256   Type = 0x010005
)

// String returns the conventional name of the signature type
func (t Type) String() string {
	switch t {
	case RSA4096SHA1:
		return "RSA_4096_SHA1"
	case RSA2048SHA1:
		return "RSA_2048_SHA1"
	case ECDSASHA1:
		return "ECDSA_SHA1"
	case RSA4096SHA256:
		return "RSA_4096_SHA256"
	case RSA2048SHA256:
		return "RSA_2048_SHA256"
	case ECDSASHA256:
		return "ECDSA_SHA256"
	default:
		return fmt.Sprintf("UNKNOWN(0x%06X)", uint32(t))
	}
}

// BlockSize returns the combined size of the signature and its trailing
// padding, i.e. the distance from the end of the type field to the start
// of the signed body.
func (t Type) BlockSize() (int, error) {
	switch t {
	case RSA4096SHA1, RSA4096SHA256:
		return 0x200 + 0x3C, nil
	case RSA2048SHA1, RSA2048SHA256:
		return 0x100 + 0x3C, nil
	case ECDSASHA1, ECDSASHA256:
		return 0x3C + 0x40, nil
	default:
		return 0, fmt.Errorf("%w: 0x%06X", errors.ErrUnsupportedSignature, uint32(t))
	}
}

// ParseHeader reads the big-endian signature type at the start of data and
// returns the type together with the offset of the signed body.
func ParseHeader(data []byte) (Type, int, error) {
	if len(data) < 4 {
		return 0, 0, fmt.Errorf("%w: truncated signature type", errors.ErrUnsupportedSignature)
	}

	sigType := Type(binary.BigEndian.Uint32(data))
	blockSize, err := sigType.BlockSize()
	if err != nil {
		return 0, 0, err
	}

	bodyOffset := 4 + blockSize
	if len(data) < bodyOffset {
		return 0, 0, fmt.Errorf("%w: truncated signature block", errors.ErrUnsupportedSignature)
	}
	return sigType, bodyOffset, nil
}
