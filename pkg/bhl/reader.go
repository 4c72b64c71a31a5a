package bhl

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MarcoPon/blockhashloc/pkg/bhlerr"
)

// readBufferSize matches the resource model's "buffered sequential reads,
// >= 1 MiB buffer" guidance.
const readBufferSize = 1 << 20

// Decode parses a BHL container in a single forward pass. It is a pure
// function of the bytes read from r: the same bytes always produce the
// same File or the same error.
func Decode(r io.Reader) (*File, error) {
	br := bufio.NewReaderSize(r, readBufferSize)

	if err := checkMagic(br); err != nil {
		return nil, err
	}

	version, err := br.ReadByte()
	if err != nil {
		return nil, truncated(err)
	}
	if version != Version {
		return nil, fmt.Errorf("%w: version %d", bhlerr.ErrUnsupportedVersion, version)
	}

	blockSize, err := readUint32(br)
	if err != nil {
		return nil, err
	}
	if blockSize == 0 {
		return nil, fmt.Errorf("%w: block size is zero", bhlerr.ErrMalformed)
	}

	fileSize, err := readUint64(br)
	if err != nil {
		return nil, err
	}

	metaLen, err := readUint32(br)
	if err != nil {
		return nil, err
	}
	metaBytes := make([]byte, metaLen)
	if _, err := io.ReadFull(br, metaBytes); err != nil {
		return nil, truncated(err)
	}
	meta, err := decodeMetadata(metaBytes)
	if err != nil {
		return nil, err
	}

	n := numBlocks(fileSize, blockSize)
	digests := make([]Digest, n)
	acc := sha256.New()
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(br, digests[i][:]); err != nil {
			return nil, truncated(err)
		}
		acc.Write(digests[i][:])
	}

	var trailing Digest
	if _, err := io.ReadFull(br, trailing[:]); err != nil {
		return nil, truncated(err)
	}
	if !bytes.Equal(acc.Sum(nil), trailing[:]) {
		return nil, bhlerr.ErrCorruptIndex
	}

	file := &File{
		Version:      version,
		BlockSize:    blockSize,
		FileSize:     fileSize,
		Metadata:     meta,
		Digests:      digests,
		GlobalDigest: trailing,
	}

	tailLen := uint64(0)
	if blockSize != 0 {
		tailLen = fileSize % uint64(blockSize)
	}
	if tailLen != 0 {
		compressed, err := io.ReadAll(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", bhlerr.ErrIo, err)
		}

		if err := verifyTail(compressed, digests[n-1], tailLen); err != nil {
			return nil, err
		}

		file.TailBlob = compressed
	}

	return file, nil
}

func verifyTail(compressed []byte, wantDigest Digest, wantLen uint64) error {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("%w: %v", bhlerr.ErrCorruptTail, err)
	}
	defer zr.Close()

	decompressed, err := io.ReadAll(zr)
	if err != nil {
		return fmt.Errorf("%w: %v", bhlerr.ErrCorruptTail, err)
	}

	if uint64(len(decompressed)) != wantLen {
		return fmt.Errorf("%w: tail length %d, want %d", bhlerr.ErrCorruptTail, len(decompressed), wantLen)
	}
	if sha256.Sum256(decompressed) != wantDigest {
		return fmt.Errorf("%w: tail digest mismatch", bhlerr.ErrCorruptTail)
	}

	return nil
}

func checkMagic(br *bufio.Reader) error {
	var got [13]byte
	n, err := io.ReadFull(br, got[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return bhlerr.ErrNotBHL
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return bhlerr.ErrNotBHL
		}
		return fmt.Errorf("%w: %v", bhlerr.ErrIo, err)
	}
	if got != magic {
		return bhlerr.ErrNotBHL
	}
	return nil
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, truncated(err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, truncated(err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated", bhlerr.ErrMalformed)
	}
	return fmt.Errorf("%w: %v", bhlerr.ErrIo, err)
}

// DecodeFile opens and decodes the BHL file at path, wrapping any error
// with the path so callers can name the offending file per the error
// handling design.
func DecodeFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, bhlerr.ErrIo, err)
	}
	defer f.Close()

	file, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return file, nil
}
