package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"

	"github.com/timmskiller/ctrgo/internal/utils/errors"
)

// cryptBufferSize is the chunk size used when streaming ciphertext.
// It must be a multiple of the AES block size.
const cryptBufferSize = 64 * 1024

// DecryptCBC decrypts data in place with AES-CBC and zero-byte padding
// semantics: the full input length is returned, trailing padding included.
func DecryptCBC(data, key, iv []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidKeySize, err)
	}
	if len(iv) != block.BlockSize() {
		return fmt.Errorf("%w: IV must be %d bytes", errors.ErrInvalidArgument, block.BlockSize())
	}
	if len(data)%block.BlockSize() != 0 {
		return fmt.Errorf("%w: data is not block aligned", errors.ErrInvalidArgument)
	}
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(data, data)
	return nil
}

// EncryptCBC encrypts data in place with AES-CBC. The input must be block
// aligned; zero-pad it beforehand if necessary.
func EncryptCBC(data, key, iv []byte) error {
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidKeySize, err)
	}
	if len(iv) != block.BlockSize() {
		return fmt.Errorf("%w: IV must be %d bytes", errors.ErrInvalidArgument, block.BlockSize())
	}
	if len(data)%block.BlockSize() != 0 {
		return fmt.Errorf("%w: data is not block aligned", errors.ErrInvalidArgument)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(data, data)
	return nil
}

// DecryptCBCCopy streams src into dst, decrypting with AES-CBC as it goes.
// Zero-byte padding semantics: every input byte is written out, so the
// caller receives the full ciphertext length including any padding block.
// A trailing fragment shorter than one block is passed through untouched.
func DecryptCBCCopy(dst io.Writer, src io.Reader, key, iv []byte) (int64, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrInvalidKeySize, err)
	}
	if len(iv) != block.BlockSize() {
		return 0, fmt.Errorf("%w: IV must be %d bytes", errors.ErrInvalidArgument, block.BlockSize())
	}

	mode := cipher.NewCBCDecrypter(block, iv)
	buf := make([]byte, cryptBufferSize)
	var written int64

	for {
		n, rerr := io.ReadFull(src, buf)
		if rerr == io.EOF {
			break
		}
		if rerr != nil && rerr != io.ErrUnexpectedEOF {
			return written, fmt.Errorf("failed to read ciphertext: %w", rerr)
		}

		aligned := n - n%block.BlockSize()
		if aligned > 0 {
			mode.CryptBlocks(buf[:aligned], buf[:aligned])
		}

		wn, werr := dst.Write(buf[:n])
		written += int64(wn)
		if werr != nil {
			return written, fmt.Errorf("failed to write plaintext: %w", werr)
		}
		if rerr == io.ErrUnexpectedEOF {
			break
		}
	}

	return written, nil
}
