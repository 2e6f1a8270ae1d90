package keys

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/timmskiller/ctrgo/internal/utils/errors"
)

// keyLinePattern matches keys.txt entries of the form
// slot0xNNKeyX, slot0xNNKeyY, slot0xNNKeyN and slot0x3DKeyY0..5
var keyLinePattern = regexp.MustCompile(`^slot0x([0-9A-Fa-f]{2})Key([XYN])([0-5])?$`)

// LoadFile populates the engine from a keys.txt-style file: one
// name=hexkey pair per line, blank lines and #-comments ignored.
func (e *Engine) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s", errors.ErrFileNotFound, path)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("%w: line %d: missing '='", errors.ErrConfigParseError, lineNo)
		}

		key, err := parseKeyValue(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: line %d: %v", errors.ErrConfigParseError, lineNo, err)
		}

		if err := e.setNamedKey(strings.TrimSpace(name), key); err != nil {
			return fmt.Errorf("%w: line %d: %v", errors.ErrConfigParseError, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrFileReadError, err)
	}

	return nil
}

// setNamedKey routes one keys.txt entry to the right table
func (e *Engine) setNamedKey(name string, key [16]byte) error {
	m := keyLinePattern.FindStringSubmatch(name)
	if m == nil {
		return fmt.Errorf("unrecognized key name %q", name)
	}

	slot64, _ := strconv.ParseUint(m[1], 16, 8)
	slot := uint8(slot64)

	// Only KeyY carries an index suffix, selecting a common KeyY variant
	if m[3] != "" && m[2] != "Y" {
		return fmt.Errorf("index suffix not valid for Key%s in %q", m[2], name)
	}

	switch m[2] {
	case "X":
		e.SetKeyX(slot, key)
	case "Y":
		if m[3] != "" {
			if slot != SlotTitleKEK {
				return fmt.Errorf("indexed KeyY only valid for slot 0x%02X", SlotTitleKEK)
			}
			index, _ := strconv.ParseUint(m[3], 10, 8)
			return e.SetCommonKeyY(uint8(index), key)
		}
		e.SetKeyY(slot, key)
	case "N":
		e.SetNormalKey(slot, key)
	}
	return nil
}

// parseKeyValue decodes a 32-digit hex string into a key
func parseKeyValue(value string) ([16]byte, error) {
	var key [16]byte
	raw, err := hex.DecodeString(value)
	if err != nil {
		return key, fmt.Errorf("invalid hex key: %v", err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("key must be %d bytes, got %d", len(key), len(raw))
	}
	copy(key[:], raw)
	return key, nil
}
