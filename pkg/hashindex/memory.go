package hashindex

import (
	"context"
	"fmt"
	"sync"

	"github.com/MarcoPon/blockhashloc/pkg/bhl"
	"github.com/MarcoPon/blockhashloc/pkg/syncmap"
)

type memoryEntry struct {
	blockIndex int
	placed     bool
	sourceID   int
	position   int64
}

type fileRecord struct {
	info    FileInfo
	hasInfo bool
	entries []*memoryEntry // ordered by blockIndex
}

// Memory is an in-process HashIndex backend: a digest -> []*memoryEntry
// multimap guarded by a single mutex (claim must see and update every
// matching entry as one atomic step, so finer-grained locking buys
// nothing without per-digest locks of its own), plus a per-file registry
// built on the generic concurrent map the rest of this codebase already
// uses for read-mostly lookup tables.
type Memory struct {
	mu          sync.Mutex
	digestIndex map[bhl.Digest][]*memoryEntry
	files       *syncmap.Map[int, *fileRecord]
}

// NewMemory returns an empty in-memory HashIndex. It implements Store.
func NewMemory() *Memory {
	return &Memory{
		digestIndex: make(map[bhl.Digest][]*memoryEntry),
		files:       syncmap.New[int, *fileRecord](),
	}
}

func (m *Memory) record(fileID int) *fileRecord {
	if rec, ok := m.files.Get(fileID); ok {
		return rec
	}
	rec := &fileRecord{}
	m.files.Put(fileID, rec)
	return rec
}

func (m *Memory) AddEntries(_ context.Context, fileID int, digests []bhl.Digest) error {
	rec := m.record(fileID)

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, d := range digests {
		e := &memoryEntry{blockIndex: i}
		rec.entries = append(rec.entries, e)
		m.digestIndex[d] = append(m.digestIndex[d], e)
	}

	return nil
}

func (m *Memory) SetFileInfo(_ context.Context, fileID int, info FileInfo) error {
	rec := m.record(fileID)
	m.mu.Lock()
	rec.info = info
	rec.hasInfo = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) Claim(_ context.Context, digest bhl.Digest, sourceID int, position int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, e := range m.digestIndex[digest] {
		if e.placed {
			continue
		}
		e.placed = true
		e.sourceID = sourceID
		e.position = position
		n++
	}

	return n, nil
}

func (m *Memory) Placements(_ context.Context, fileID int) ([]Placement, error) {
	rec, ok := m.files.Get(fileID)
	if !ok {
		return nil, fmt.Errorf("hashindex: unknown file %d", fileID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Placement, len(rec.entries))
	for i, e := range rec.entries {
		out[i] = Placement{
			BlockIndex: e.blockIndex,
			SourceID:   e.sourceID,
			Position:   e.position,
			Placed:     e.placed,
		}
	}

	return out, nil
}

func (m *Memory) FileInfo(_ context.Context, fileID int) (FileInfo, bool, error) {
	rec, ok := m.files.Get(fileID)
	if !ok || !rec.hasInfo {
		return FileInfo{}, false, nil
	}
	return rec.info, true, nil
}

func (m *Memory) Checkpoint(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
