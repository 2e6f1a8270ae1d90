package cia

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/timmskiller/ctrgo/internal/ctr/keys"
	"github.com/timmskiller/ctrgo/internal/ctr/tmd"
	"github.com/timmskiller/ctrgo/internal/utils/cryptoutil"
	ctrerrors "github.com/timmskiller/ctrgo/internal/utils/errors"
)

var (
	testKeyX = [16]byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
		0x88, 0x99, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
	}
	testCommonY = [16]byte{
		0x0F, 0x1E, 0x2D, 0x3C, 0x4B, 0x5A, 0x69, 0x78,
		0x87, 0x96, 0xA5, 0xB4, 0xC3, 0xD2, 0xE1, 0xF0,
	}
	testTitleKey = [16]byte{
		0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x23, 0x45, 0x67,
		0x89, 0xAB, 0xCD, 0xEF, 0xFE, 0xDC, 0xBA, 0x98,
	}
)

// buildEncryptedSpec prepares a container spec whose single content is
// AES-CBC encrypted under testTitleKey, with the title key itself
// wrapped into the ticket the way the key engine expects to unwrap it.
func buildEncryptedSpec(t *testing.T, plaintext []byte, index uint16) containerSpec {
	t.Helper()

	const titleID = 0x0004000000ABCDEF
	const commonIndex = 1

	titleKEK := keys.Scramble(testKeyX, testCommonY)
	iv := [16]byte{0x00, 0x04, 0x00, 0x00, 0x00, 0xAB, 0xCD, 0xEF}

	wrapped := testTitleKey
	if err := cryptoutil.EncryptCBC(wrapped[:], titleKEK[:], iv[:]); err != nil {
		t.Fatalf("failed to wrap title key: %v", err)
	}

	ciphertext := make([]byte, len(plaintext))
	copy(ciphertext, plaintext)
	contentIV := ContentIV(index)
	if err := cryptoutil.EncryptCBC(ciphertext, testTitleKey[:], contentIV[:]); err != nil {
		t.Fatalf("failed to encrypt content: %v", err)
	}

	return containerSpec{
		titleID:     titleID,
		titleKey:    wrapped,
		commonIndex: commonIndex,
		tmdContents: []testContent{
			{id: 0x1, index: index, typ: tmd.TypeEncrypted, data: ciphertext},
		},
		active: []uint16{index},
	}
}

func testEngine() *keys.Engine {
	engine := keys.NewEngine()
	engine.SetKeyX(keys.SlotTitleKEK, testKeyX)
	engine.SetCommonKeyY(1, testCommonY)
	return engine
}

func TestExtractContentEncrypted(t *testing.T) {
	plaintext := patternData(0x200, 0x42)
	spec := buildEncryptedSpec(t, plaintext, 9)
	raw := buildContainer(t, spec)
	container := parseContainer(t, raw)

	engine := testEngine()

	var out bytes.Buffer
	if err := container.ExtractContent(bytes.NewReader(raw), container.Contents[0], &out, engine); err != nil {
		t.Fatalf("ExtractContent failed: %v", err)
	}
	if !bytes.Equal(out.Bytes(), plaintext) {
		t.Error("decrypted content differs from known plaintext")
	}

	if !engine.HasKey(keys.SlotDecryptedTitleKey) {
		t.Error("title key not cached after extraction")
	}

	// A second extraction reuses the cached key
	out.Reset()
	if err := container.ExtractContent(bytes.NewReader(raw), container.Contents[0], &out, engine); err != nil {
		t.Fatalf("repeated ExtractContent failed: %v", err)
	}
	if !bytes.Equal(out.Bytes(), plaintext) {
		t.Error("repeated extraction differs from known plaintext")
	}
}

func TestExtractContentEncryptedTruncatedSource(t *testing.T) {
	spec := buildEncryptedSpec(t, patternData(0x200, 0x42), 0)
	raw := buildContainer(t, spec)
	container := parseContainer(t, raw)

	// Cut the tail of the contents region off the source stream
	truncated := raw[:len(raw)-0x100]

	var out bytes.Buffer
	err := container.ExtractContent(bytes.NewReader(truncated), container.Contents[0], &out, testEngine())
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("got %v, want ErrUnexpectedEOF", err)
	}
}

func TestExtractContentEncryptedWithoutEngine(t *testing.T) {
	spec := buildEncryptedSpec(t, patternData(0x100, 0x42), 0)
	raw := buildContainer(t, spec)
	container := parseContainer(t, raw)

	var out bytes.Buffer
	err := container.ExtractContent(bytes.NewReader(raw), container.Contents[0], &out, nil)
	if !errors.Is(err, ctrerrors.ErrMissingCryptoEngine) {
		t.Fatalf("got %v, want ErrMissingCryptoEngine", err)
	}
}

func TestExtractAllSections(t *testing.T) {
	spec := containerSpec{
		certSize: 0x200,
		metaSize: 0x100,
		tmdContents: []testContent{
			{id: 0x1, index: 0, data: patternData(0x80, 7)},
		},
		active: []uint16{0},
	}
	raw := buildContainer(t, spec)
	container := parseContainer(t, raw)

	outputDir := t.TempDir()
	if err := container.ExtractAllSections(bytes.NewReader(raw), outputDir); err != nil {
		t.Fatalf("ExtractAllSections failed: %v", err)
	}

	for _, region := range container.OrderedRegions() {
		path := filepath.Join(outputDir, region.Section.String()+".bin")
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("missing output for %s: %v", region.Section, err)
		}
		if !bytes.Equal(data, raw[region.Offset:region.End()]) {
			t.Errorf("output for %s differs from source bytes", region.Section)
		}
	}
}

func TestExtractAllContents(t *testing.T) {
	first := patternData(0x200, 0x01)
	second := patternData(0x180, 0x02)
	spec := containerSpec{
		tmdContents: []testContent{
			{id: 0xA, index: 0, data: first},
			{id: 0xB, index: 1, data: second},
		},
		active: []uint16{0, 1},
	}
	raw := buildContainer(t, spec)
	container := parseContainer(t, raw)

	outputDir := t.TempDir()
	if err := container.ExtractAllContents(bytes.NewReader(raw), outputDir, nil); err != nil {
		t.Fatalf("ExtractAllContents failed: %v", err)
	}

	for i, want := range [][]byte{first, second} {
		path := filepath.Join(outputDir, container.Contents[i].Name()+".app")
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("missing output for content %d: %v", i, err)
		}
		if !bytes.Equal(data, want) {
			t.Errorf("output for content %d differs from payload", i)
		}
	}
}

func TestExtractAllContentsEncrypted(t *testing.T) {
	plaintext := patternData(0x300, 0x33)
	spec := buildEncryptedSpec(t, plaintext, 0)
	raw := buildContainer(t, spec)
	container := parseContainer(t, raw)

	outputDir := t.TempDir()
	if err := container.ExtractAllContents(bytes.NewReader(raw), outputDir, testEngine()); err != nil {
		t.Fatalf("ExtractAllContents failed: %v", err)
	}

	path := filepath.Join(outputDir, container.Contents[0].Name()+".app")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("missing output: %v", err)
	}
	if !bytes.Equal(data, plaintext) {
		t.Error("decrypted output differs from known plaintext")
	}
}

func TestExtractAllContentsMissingEngine(t *testing.T) {
	spec := buildEncryptedSpec(t, patternData(0x100, 0x44), 0)
	raw := buildContainer(t, spec)
	container := parseContainer(t, raw)

	outputDir := filepath.Join(t.TempDir(), "out")
	err := container.ExtractAllContents(bytes.NewReader(raw), outputDir, nil)
	if !errors.Is(err, ctrerrors.ErrMissingCryptoEngine) {
		t.Fatalf("got %v, want ErrMissingCryptoEngine", err)
	}

	// Failing fast means no output was produced at all
	if _, statErr := os.Stat(outputDir); !os.IsNotExist(statErr) {
		t.Error("output directory created despite missing crypto engine")
	}
}
