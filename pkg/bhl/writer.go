package bhl

import (
	"compress/zlib"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MarcoPon/blockhashloc/pkg/bhlerr"
	"github.com/MarcoPon/blockhashloc/pkg/blockhasher"
)

// WriteOptions configures an Encode call.
type WriteOptions struct {
	BlockSize uint32

	// Filename, if non-empty, is recorded in an FNM record (basename
	// only — callers are responsible for stripping any directory part).
	Filename string

	// ModTime, if non-zero, is recorded in an FDT record.
	ModTime time.Time

	// Passthrough carries TLVs that were read from some other BHL file
	// and should survive a re-encode unchanged.
	Passthrough []TLV
}

// Summary reports what Encode wrote, without requiring the caller to hold
// the full digest list in memory.
type Summary struct {
	BlockCount   int
	FileSize     int64
	GlobalDigest Digest
	HasTail      bool
	TailLength   int
}

// Encode writes the BHL container for the fileSize bytes available from r
// to w, in a single forward pass. It never materializes the full digest
// list: each digest is written to w and folded into the running global
// hash as soon as it is computed.
func Encode(w io.Writer, r io.Reader, fileSize int64, opts WriteOptions) (*Summary, error) {
	if opts.BlockSize == 0 {
		return nil, fmt.Errorf("%w: block size must be >= 1", bhlerr.ErrMalformed)
	}
	if fileSize < 0 {
		return nil, fmt.Errorf("%w: negative file size", bhlerr.ErrMalformed)
	}

	meta := Metadata{Unknown: opts.Passthrough}
	if opts.Filename != "" {
		meta.Filename = opts.Filename
		meta.HasFilename = true
	}
	if !opts.ModTime.IsZero() {
		meta.ModTime = opts.ModTime
		meta.HasModTime = true
	}

	metaBytes, err := encodeMetadata(meta)
	if err != nil {
		return nil, err
	}

	if err := writeHeader(w, opts.BlockSize, uint64(fileSize), metaBytes); err != nil {
		return nil, err
	}

	hasher := blockhasher.New(r, opts.BlockSize)
	global := sha256.New()

	var (
		count    int
		tailData []byte
	)

	for {
		blk, ok, err := hasher.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		if _, err := w.Write(blk.Digest[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", bhlerr.ErrIo, err)
		}
		global.Write(blk.Digest[:])
		count++

		if blk.Short {
			tailData = blk.Data
		}
	}

	var globalDigest Digest
	copy(globalDigest[:], global.Sum(nil))
	if _, err := w.Write(globalDigest[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", bhlerr.ErrIo, err)
	}

	summary := &Summary{
		BlockCount:   count,
		FileSize:     fileSize,
		GlobalDigest: globalDigest,
	}

	if tailData != nil {
		if err := writeTail(w, tailData); err != nil {
			return nil, err
		}
		summary.HasTail = true
		summary.TailLength = len(tailData)
	}

	return summary, nil
}

func writeHeader(w io.Writer, blockSize uint32, fileSize uint64, metaBytes []byte) error {
	var hdr [13 + 1 + 4 + 8 + 4]byte
	copy(hdr[0:13], magic[:])
	hdr[13] = Version
	binary.BigEndian.PutUint32(hdr[14:18], blockSize)
	binary.BigEndian.PutUint64(hdr[18:26], fileSize)
	binary.BigEndian.PutUint32(hdr[26:30], uint32(len(metaBytes)))

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("%w: %v", bhlerr.ErrIo, err)
	}
	if _, err := w.Write(metaBytes); err != nil {
		return fmt.Errorf("%w: %v", bhlerr.ErrIo, err)
	}

	return nil
}

func writeTail(w io.Writer, tailData []byte) error {
	zw, err := zlib.NewWriterLevel(w, zlib.BestCompression)
	if err != nil {
		return fmt.Errorf("%w: %v", bhlerr.ErrIo, err)
	}
	if _, err := zw.Write(tailData); err != nil {
		zw.Close()
		return fmt.Errorf("%w: %v", bhlerr.ErrIo, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: %v", bhlerr.ErrIo, err)
	}

	return nil
}

// EncodeFile opens path, stats its size, and writes the resulting BHL
// container to destPath, creating or truncating it. The filename recorded
// in the FNM record is path's basename; the mtime recorded in FDT is the
// source file's modification time.
func EncodeFile(destPath, path string, blockSize uint32) (*Summary, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bhlerr.ErrIo, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bhlerr.ErrIo, err)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bhlerr.ErrIo, err)
	}
	defer out.Close()

	opts := WriteOptions{
		BlockSize: blockSize,
		Filename:  info.Name(),
		ModTime:   info.ModTime(),
	}

	return Encode(out, src, info.Size(), opts)
}
