package cryptoutil

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	ctrerrors "github.com/timmskiller/ctrgo/internal/utils/errors"
)

func randomBytes(t *testing.T, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("failed to generate random data: %v", err)
	}
	return data
}

func TestEncryptDecryptCBC(t *testing.T) {
	key := randomBytes(t, 16)
	iv := randomBytes(t, 16)
	plaintext := randomBytes(t, 256)

	data := make([]byte, len(plaintext))
	copy(data, plaintext)

	if err := EncryptCBC(data, key, iv); err != nil {
		t.Fatalf("EncryptCBC failed: %v", err)
	}
	if bytes.Equal(data, plaintext) {
		t.Error("ciphertext matches plaintext")
	}

	if err := DecryptCBC(data, key, iv); err != nil {
		t.Fatalf("DecryptCBC failed: %v", err)
	}
	if !bytes.Equal(data, plaintext) {
		t.Error("round trip does not reproduce plaintext")
	}
}

func TestCBCInvalidArguments(t *testing.T) {
	data := make([]byte, 32)

	if err := DecryptCBC(data, make([]byte, 7), make([]byte, 16)); !errors.Is(err, ctrerrors.ErrInvalidKeySize) {
		t.Fatalf("got %v, want ErrInvalidKeySize", err)
	}
	if err := DecryptCBC(data, make([]byte, 16), make([]byte, 8)); !errors.Is(err, ctrerrors.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument (bad IV)", err)
	}
	if err := DecryptCBC(data[:17], make([]byte, 16), make([]byte, 16)); !errors.Is(err, ctrerrors.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument (unaligned)", err)
	}
}

func TestDecryptCBCCopy(t *testing.T) {
	key := randomBytes(t, 16)
	iv := randomBytes(t, 16)

	// Larger than one streaming chunk to exercise CBC state carry-over
	plaintext := randomBytes(t, cryptBufferSize+4096)
	ciphertext := make([]byte, len(plaintext))
	copy(ciphertext, plaintext)
	if err := EncryptCBC(ciphertext, key, iv); err != nil {
		t.Fatalf("EncryptCBC failed: %v", err)
	}

	var out bytes.Buffer
	n, err := DecryptCBCCopy(&out, bytes.NewReader(ciphertext), key, iv)
	if err != nil {
		t.Fatalf("DecryptCBCCopy failed: %v", err)
	}
	if n != int64(len(plaintext)) {
		t.Errorf("wrote %d bytes, want %d", n, len(plaintext))
	}
	if !bytes.Equal(out.Bytes(), plaintext) {
		t.Error("streamed decryption does not reproduce plaintext")
	}
}

func TestDecryptCBCCopyUnalignedTail(t *testing.T) {
	key := randomBytes(t, 16)
	iv := randomBytes(t, 16)

	plaintext := randomBytes(t, 64)
	ciphertext := make([]byte, len(plaintext))
	copy(ciphertext, plaintext)
	if err := EncryptCBC(ciphertext, key, iv); err != nil {
		t.Fatalf("EncryptCBC failed: %v", err)
	}

	// Trailing fragment shorter than a block passes through untouched
	tail := []byte{0x01, 0x02, 0x03}
	input := append(append([]byte{}, ciphertext...), tail...)

	var out bytes.Buffer
	n, err := DecryptCBCCopy(&out, bytes.NewReader(input), key, iv)
	if err != nil {
		t.Fatalf("DecryptCBCCopy failed: %v", err)
	}
	if n != int64(len(input)) {
		t.Errorf("wrote %d bytes, want %d", n, len(input))
	}
	if !bytes.Equal(out.Bytes()[:len(plaintext)], plaintext) {
		t.Error("aligned portion does not reproduce plaintext")
	}
	if !bytes.Equal(out.Bytes()[len(plaintext):], tail) {
		t.Error("unaligned tail was modified")
	}
}

func TestDecryptCBCCopyEmpty(t *testing.T) {
	key := randomBytes(t, 16)
	iv := randomBytes(t, 16)

	var out bytes.Buffer
	n, err := DecryptCBCCopy(&out, bytes.NewReader(nil), key, iv)
	if err != nil {
		t.Fatalf("DecryptCBCCopy failed: %v", err)
	}
	if n != 0 || out.Len() != 0 {
		t.Errorf("empty input produced %d bytes", out.Len())
	}
}
