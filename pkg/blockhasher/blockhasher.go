// Package blockhasher streams a byte source as fixed-size blocks, hashing
// each one with SHA-256 as it goes.
package blockhasher

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/MarcoPon/blockhashloc/pkg/bhlerr"
)

// Block is one fixed-size (or, for the final block of a source, possibly
// short) slice of the source together with its digest.
type Block struct {
	Index  int
	Digest [32]byte
	Data   []byte // exactly the bytes that were hashed; never zero-padded
	Short  bool    // true iff len(Data) < the configured block size
}

// Hasher pulls successive blocks off an io.Reader. It is not safe for
// concurrent use.
type Hasher struct {
	r         io.Reader
	blockSize int
	index     int
	done      bool
}

// New returns a Hasher that reads blockSize-byte blocks from r.
func New(r io.Reader, blockSize uint32) *Hasher {
	return &Hasher{r: r, blockSize: int(blockSize)}
}

// Next returns the next block. ok is false once the source is exhausted; a
// non-nil error means the underlying reader failed, not that the source
// ended early — a short final read is reported as a normal block with
// Short set, never as an error.
func (h *Hasher) Next() (Block, bool, error) {
	if h.done {
		return Block{}, false, nil
	}

	buf := make([]byte, h.blockSize)
	n, err := io.ReadFull(h.r, buf)

	switch {
	case err == nil:
		// full block, keep reading next call
	case errors.Is(err, io.EOF):
		h.done = true
		return Block{}, false, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		h.done = true
	default:
		return Block{}, false, fmt.Errorf("%w: %v", bhlerr.ErrIo, err)
	}

	data := buf[:n]
	blk := Block{
		Index:  h.index,
		Digest: sha256.Sum256(data),
		Data:   data,
		Short:  n < h.blockSize,
	}
	h.index++

	return blk, true, nil
}
