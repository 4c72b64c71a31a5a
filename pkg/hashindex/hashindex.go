// Package hashindex implements the content-addressed digest -> placement
// store the Scanner and Reassembler share. Two backends satisfy the same
// Store interface: an in-process multimap and a SQLite-backed table, per
// the store-abstraction design note — callers should depend only on
// Store.
package hashindex

import (
	"context"
	"time"

	"github.com/MarcoPon/blockhashloc/pkg/bhl"
)

// FileInfo is the per-BHL-file metadata a Store keeps alongside that
// file's entries.
type FileInfo struct {
	BlockSize    uint32
	FileSize     uint64
	Filename     string
	HasFilename  bool
	ModTime      time.Time
	TailBlob     []byte
	GlobalDigest bhl.Digest
}

// Placement describes where block BlockIndex of some file was found.
// Placed is false until a Claim has matched its digest.
type Placement struct {
	BlockIndex int
	SourceID   int
	Position   int64
	Placed     bool
}

// Store is the interface the Scanner and Reassembler program against. It
// must provide the single-writer, first-claim-wins semantics described in
// the HashIndex design: Claim atomically sets the placement of every
// still-unplaced entry matching digest, and returns how many entries it
// just placed.
type Store interface {
	// AddEntries registers the scannable block digests of a newly loaded
	// BHL file (the tail block, if any, must already be excluded by the
	// caller). Entries start unplaced.
	AddEntries(ctx context.Context, fileID int, digests []bhl.Digest) error

	// SetFileInfo records a loaded file's descriptive metadata, readable
	// back through FileInfo.
	SetFileInfo(ctx context.Context, fileID int, info FileInfo) error

	// Claim atomically places every still-unplaced entry whose digest
	// matches digest at (sourceID, position), and reports how many
	// entries were newly placed. A digest with no matching entries, or
	// whose entries are already all placed, returns 0.
	Claim(ctx context.Context, digest bhl.Digest, sourceID int, position int64) (int, error)

	// Placements returns every entry for fileID ordered by BlockIndex.
	Placements(ctx context.Context, fileID int) ([]Placement, error)

	// FileInfo returns the metadata previously recorded via SetFileInfo.
	FileInfo(ctx context.Context, fileID int) (FileInfo, bool, error)

	// Checkpoint flushes any batched writes. Safe to call on backends
	// that don't batch; must be called before reassembly begins on
	// backends that do.
	Checkpoint(ctx context.Context) error

	Close() error
}
