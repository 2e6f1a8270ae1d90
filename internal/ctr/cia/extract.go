package cia

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/timmskiller/ctrgo/internal/ctr/keys"
	"github.com/timmskiller/ctrgo/internal/ctr/tmd"
	"github.com/timmskiller/ctrgo/internal/utils/cryptoutil"
	"github.com/timmskiller/ctrgo/internal/utils/errors"
	"github.com/timmskiller/ctrgo/internal/utils/fsutil"
)

// ContentIV builds the AES-CBC initialization vector for a content: the
// 16-bit content index in big-endian, zero-padded to a full block
func ContentIV(index uint16) [16]byte {
	var iv [16]byte
	binary.BigEndian.PutUint16(iv[:2], index)
	return iv
}

// ExtractSection streams the named region from src into w untouched
func (c *CIA) ExtractSection(src io.ReaderAt, s Section, w io.Writer) error {
	region, err := c.Region(s)
	if err != nil {
		return err
	}
	if _, err := fsutil.CopyRange(w, src, int64(region.Offset), int64(region.Size)); err != nil {
		return fmt.Errorf("failed to extract %s section: %w", s, err)
	}
	return nil
}

// ExtractAllSections streams every present region to <name>.bin files
// under outputDir
func (c *CIA) ExtractAllSections(src io.ReaderAt, outputDir string) error {
	if err := fsutil.CreateDirIfNotExists(outputDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, region := range c.OrderedRegions() {
		path := filepath.Join(outputDir, region.Section.String()+".bin")
		if err := c.extractSectionToFile(src, region.Section, path); err != nil {
			return err
		}
	}
	return nil
}

// ExtractContent streams one active content from src into w, decrypting
// it when the TMD flags it encrypted. The chunk must be a member of the
// container's active content list.
func (c *CIA) ExtractContent(src io.ReaderAt, chunk tmd.ContentChunkRecord, w io.Writer, engine *keys.Engine) error {
	offset, err := c.contentOffset(chunk)
	if err != nil {
		return err
	}

	if !chunk.Encrypted() {
		if _, err := fsutil.CopyRange(w, src, int64(offset), int64(chunk.Size)); err != nil {
			return fmt.Errorf("failed to extract content %s: %w", chunk.Name(), err)
		}
		return nil
	}

	if engine == nil {
		return fmt.Errorf("%w: content %s is encrypted", errors.ErrMissingCryptoEngine, chunk.Name())
	}
	if err := engine.LoadTitleKey(c.Ticket); err != nil {
		return err
	}
	titleKey, err := engine.NormalKey(keys.SlotDecryptedTitleKey)
	if err != nil {
		return err
	}

	iv := ContentIV(chunk.Index)
	reader := io.NewSectionReader(src, int64(offset), int64(chunk.Size))
	written, err := cryptoutil.DecryptCBCCopy(w, reader, titleKey[:], iv[:])
	if err != nil {
		return fmt.Errorf("failed to decrypt content %s: %w", chunk.Name(), err)
	}
	if uint64(written) != chunk.Size {
		return fmt.Errorf("failed to decrypt content %s: %d of %d bytes: %w",
			chunk.Name(), written, chunk.Size, io.ErrUnexpectedEOF)
	}
	return nil
}

// ExtractAllContents streams every active content to <name>.app files
// under outputDir, in list order. If any active content is encrypted and
// no key engine was supplied, it fails before producing any output.
func (c *CIA) ExtractAllContents(src io.ReaderAt, outputDir string, engine *keys.Engine) error {
	if engine == nil {
		for _, chunk := range c.Contents {
			if chunk.Encrypted() {
				return fmt.Errorf("%w: content %s is encrypted", errors.ErrMissingCryptoEngine, chunk.Name())
			}
		}
	}

	if err := fsutil.CreateDirIfNotExists(outputDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, chunk := range c.Contents {
		path := filepath.Join(outputDir, chunk.Name()+".app")
		if err := c.extractContentToFile(src, chunk, path, engine); err != nil {
			return err
		}
	}
	return nil
}

// contentOffset locates a content's byte offset inside the contents
// region by accumulating the sizes of the contents preceding it in list
// order. The list preserves TMD order, which is not necessarily sorted
// by index; accumulation must follow list order.
func (c *CIA) contentOffset(chunk tmd.ContentChunkRecord) (uint64, error) {
	region, ok := c.Regions[SectionContents]
	if !ok {
		return 0, fmt.Errorf("%w: container has no contents", errors.ErrContentNotFound)
	}

	offset := region.Offset
	for _, candidate := range c.Contents {
		if candidate == chunk {
			return offset, nil
		}
		offset += candidate.Size
	}
	return 0, fmt.Errorf("%w: content %s (index %d)", errors.ErrContentNotFound, chunk.Name(), chunk.Index)
}

func (c *CIA) extractSectionToFile(src io.ReaderAt, s Section, path string) error {
	output, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %s", errors.ErrFileCreateFailed, path)
	}
	defer output.Close()

	return c.ExtractSection(src, s, output)
}

func (c *CIA) extractContentToFile(src io.ReaderAt, chunk tmd.ContentChunkRecord, path string, engine *keys.Engine) error {
	output, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %s", errors.ErrFileCreateFailed, path)
	}
	defer output.Close()

	return c.ExtractContent(src, chunk, output, engine)
}
