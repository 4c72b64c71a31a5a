// Package bhlerr defines the sentinel error kinds shared across the BHL
// pipeline, so callers can classify a failure with errors.Is instead of
// string matching.
package bhlerr

import "errors"

var (
	// ErrIo wraps any underlying read/write failure.
	ErrIo = errors.New("bhl: i/o error")

	// ErrNotBHL means the magic sequence did not match.
	ErrNotBHL = errors.New("bhl: not a BlockHashLoc file")

	// ErrUnsupportedVersion means the version byte is unrecognized.
	ErrUnsupportedVersion = errors.New("bhl: unsupported version")

	// ErrMalformed covers a truncated header, metadata region, digest
	// stream, or an impossible TLV length.
	ErrMalformed = errors.New("bhl: malformed file")

	// ErrCorruptIndex means the trailing global digest did not match the
	// accumulator over the block digests.
	ErrCorruptIndex = errors.New("bhl: corrupt index")

	// ErrCorruptTail means the tail blob failed to decompress, its digest
	// did not match, or its length was wrong.
	ErrCorruptTail = errors.New("bhl: corrupt tail block")

	// ErrIncompleteRecovery means some blocks went unplaced after a scan.
	ErrIncompleteRecovery = errors.New("bhl: incomplete recovery")

	// ErrHashMismatch means the reassembled file's recomputed global
	// digest did not match the one stored in the BHL.
	ErrHashMismatch = errors.New("bhl: hash mismatch")

	// ErrNothingFound means a scan claimed none of a multi-block file's
	// scannable entries, so reassembly was skipped entirely.
	ErrNothingFound = errors.New("bhl: nothing found")
)
