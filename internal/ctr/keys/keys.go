// Package keys implements the AES keyslot engine: a table of KeyX/KeyY/
// normal keys addressed by keyslot, the hardware key scrambler that
// combines them, and title key derivation from a ticket.
package keys

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/timmskiller/ctrgo/internal/ctr/ticket"
	"github.com/timmskiller/ctrgo/internal/utils/cryptoutil"
	"github.com/timmskiller/ctrgo/internal/utils/errors"
)

const (
	// SlotTitleKEK holds the KeyX used to unwrap title keys
	SlotTitleKEK uint8 = 0x3D

	// SlotDecryptedTitleKey is the reserved slot the decrypted title key
	// is cached in
	SlotDecryptedTitleKey uint8 = 0x40

	// NumCommonKeyY is the number of common KeyY variants a ticket can
	// select between
	NumCommonKeyY = 6
)

// Engine is a keyslot table. The title key cache is the only mutable
// state touched during extraction, so every accessor is mutex-guarded.
type Engine struct {
	mu      sync.Mutex
	keyX    map[uint8][16]byte
	keyY    map[uint8][16]byte
	normal  map[uint8][16]byte
	commonY map[uint8][16]byte
}

// NewEngine returns an empty keyslot engine
func NewEngine() *Engine {
	return &Engine{
		keyX:    make(map[uint8][16]byte),
		keyY:    make(map[uint8][16]byte),
		normal:  make(map[uint8][16]byte),
		commonY: make(map[uint8][16]byte),
	}
}

// SetKeyX stores the KeyX half of a keyslot
func (e *Engine) SetKeyX(slot uint8, key [16]byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keyX[slot] = key
}

// SetKeyY stores the KeyY half of a keyslot
func (e *Engine) SetKeyY(slot uint8, key [16]byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keyY[slot] = key
}

// SetNormalKey stores a fully derived normal key in a keyslot
func (e *Engine) SetNormalKey(slot uint8, key [16]byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.normal[slot] = key
}

// SetCommonKeyY stores one of the common KeyY variants selected by a
// ticket's common key index
func (e *Engine) SetCommonKeyY(index uint8, key [16]byte) error {
	if index >= NumCommonKeyY {
		return fmt.Errorf("%w: common KeyY index %d out of range", errors.ErrInvalidKeyslot, index)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commonY[index] = key
	return nil
}

// HasKey reports whether a normal key is available for the given slot
func (e *Engine) HasKey(slot uint8) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.normal[slot]
	return ok
}

// NormalKey returns the normal key stored in the given slot
func (e *Engine) NormalKey(slot uint8) ([16]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key, ok := e.normal[slot]
	if !ok {
		return [16]byte{}, fmt.Errorf("%w: no normal key in slot 0x%02X", errors.ErrMissingKey, slot)
	}
	return key, nil
}

// LoadTitleKey derives the decrypted title key from the ticket and caches
// it in SlotDecryptedTitleKey. The derivation happens at most once per
// engine; repeated calls reuse the cached key.
func (e *Engine) LoadTitleKey(t *ticket.Ticket) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.normal[SlotDecryptedTitleKey]; ok {
		return nil
	}

	keyX, ok := e.keyX[SlotTitleKEK]
	if !ok {
		return fmt.Errorf("%w: KeyX for slot 0x%02X", errors.ErrMissingKey, SlotTitleKEK)
	}
	keyY, ok := e.commonY[t.CommonKeyIndex]
	if !ok {
		return fmt.Errorf("%w: common KeyY index %d", errors.ErrMissingKey, t.CommonKeyIndex)
	}

	titleKEK := Scramble(keyX, keyY)

	// The title key IV is the title ID in big-endian, zero-padded to a block
	var iv [16]byte
	binary.BigEndian.PutUint64(iv[:8], t.TitleID)

	titleKey := t.TitleKey
	if err := cryptoutil.DecryptCBC(titleKey[:], titleKEK[:], iv[:]); err != nil {
		return fmt.Errorf("failed to decrypt title key: %w", err)
	}

	e.normal[SlotDecryptedTitleKey] = titleKey
	return nil
}

// Key scrambler constant and 128-bit mask used by Scramble
var (
	scramblerConstant, _ = new(big.Int).SetString("1FF9E9AAC5FE0408024591DC5D52768A", 16)
	mask128              = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// Scramble reproduces the hardware AES keygen:
// normal = rol128(rol128(keyX, 2) XOR keyY + C, 87)
func Scramble(keyX, keyY [16]byte) [16]byte {
	x := new(big.Int).SetBytes(keyX[:])
	y := new(big.Int).SetBytes(keyY[:])

	n := rol128(x, 2)
	n.Xor(n, y)
	n.Add(n, scramblerConstant)
	n = rol128(n, 87)

	var out [16]byte
	n.FillBytes(out[:])
	return out
}

// rol128 rotates v left by n bits within a 128-bit word
func rol128(v *big.Int, n uint) *big.Int {
	v = new(big.Int).And(v, mask128)
	out := new(big.Int).Lsh(v, n)
	out.Or(out, new(big.Int).Rsh(v, 128-n))
	return out.And(out, mask128)
}
