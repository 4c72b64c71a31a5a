// Package bhl implements the BlockHashLoc container format: the encoder
// (BHLWriter) and decoder (BHLReader) for the side-car index described in
// the format spec. It never touches an image/medium — only the small
// index file itself.
package bhl

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"time"

	"github.com/MarcoPon/blockhashloc/pkg/bhlerr"
)

const (
	// Version is the only container version this package emits or
	// accepts.
	Version = 1

	digestSize = 32

	tlvFilename = "FNM"
	tlvModTime  = "FDT"
)

var magic = [13]byte{'B', 'l', 'o', 'c', 'k', 'H', 'a', 's', 'h', 'L', 'o', 'c', 0x1A}

// Digest is a SHA-256 block fingerprint.
type Digest [digestSize]byte

// TLV is a metadata record whose type code this package does not
// recognize. Unknown TLVs are preserved verbatim so a file can round-trip
// through decode/re-encode without losing data a newer writer attached.
type TLV struct {
	Type    [3]byte
	Payload []byte
}

// Metadata is the decoded form of the BHL metadata TLV region.
type Metadata struct {
	Filename    string // from FNM; empty if absent
	HasFilename bool

	ModTime    time.Time // from FDT; zero if absent
	HasModTime bool

	Unknown []TLV // any TLV type this package doesn't interpret, in file order
}

// File is the in-memory description of a decoded (or about-to-be-encoded)
// BHL side-car.
type File struct {
	Version   uint8
	BlockSize uint32
	FileSize  uint64
	Metadata  Metadata

	// Digests holds one entry per block, in order, including the final
	// (possibly short) block. Populated by Decode; Encode does not
	// populate it, since the writer never materializes the full digest
	// list in memory.
	Digests []Digest

	GlobalDigest Digest

	// TailBlob is the zlib-compressed bytes of the final short block, or
	// nil if FileSize is an exact multiple of BlockSize.
	TailBlob []byte
}

// NumBlocks returns ceil(FileSize/BlockSize), the number of logical blocks
// in the original file.
func (f *File) NumBlocks() int {
	return numBlocks(f.FileSize, f.BlockSize)
}

func numBlocks(fileSize uint64, blockSize uint32) int {
	if blockSize == 0 {
		return 0
	}
	return int((fileSize + uint64(blockSize) - 1) / uint64(blockSize))
}

// HasTail reports whether the final block is short and therefore carried
// in TailBlob instead of being scannable.
func (f *File) HasTail() bool {
	return f.BlockSize != 0 && f.FileSize%uint64(f.BlockSize) != 0
}

// TailLength returns the length in bytes of the final block, i.e.
// FileSize mod BlockSize (0 means the file has no short tail).
func (f *File) TailLength() int {
	if f.BlockSize == 0 {
		return 0
	}
	return int(f.FileSize % uint64(f.BlockSize))
}

// ScannableDigests returns the digests of every block except the final
// one, since the final block is excluded from the scan-time hash index
// (recovered from TailBlob instead, per the container's design).
func (f *File) ScannableDigests() []Digest {
	n := len(f.Digests)
	if n == 0 {
		return nil
	}
	if f.HasTail() {
		return f.Digests[:n-1]
	}
	return f.Digests
}

// DecodeTail zlib-decompresses TailBlob and returns the raw bytes of the
// final short block. Returns nil, nil if there is no tail.
func (f *File) DecodeTail() ([]byte, error) {
	if f.TailBlob == nil {
		return nil, nil
	}

	zr, err := zlib.NewReader(bytes.NewReader(f.TailBlob))
	if err != nil {
		return nil, fmt.Errorf("tail: %w: %v", bhlerr.ErrCorruptTail, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("tail: %w: %v", bhlerr.ErrCorruptTail, err)
	}

	return data, nil
}
