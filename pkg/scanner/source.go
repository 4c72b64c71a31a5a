package scanner

import (
	"fmt"
	"os"

	"github.com/MarcoPon/blockhashloc/pkg/bhlerr"
)

// Source is a single readable medium the Scanner slides a window across:
// a disk image, a raw partition device node, or a carved fragment file.
// Sources are read-only and are assigned their ID by load order.
type Source struct {
	ID     int
	Path   string
	Length int64

	file *os.File
}

// OpenSource opens path and resolves its length with a byte-accurate size
// query that works on regular files as well as block devices (os.Stat's
// Size() is unreliable on device nodes on some platforms, so this seeks to
// the end instead of trusting FileInfo.Size()).
func OpenSource(id int, path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", bhlerr.ErrIo, path, err)
	}

	length, err := f.Seek(0, os.SEEK_END)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: size %s: %v", bhlerr.ErrIo, path, err)
	}
	if _, err := f.Seek(0, os.SEEK_SET); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: rewind %s: %v", bhlerr.ErrIo, path, err)
	}

	return &Source{ID: id, Path: path, Length: length, file: f}, nil
}

func (s *Source) Close() error {
	return s.file.Close()
}

// ReadAt reads from the underlying medium at an absolute offset, for the
// Reassembler's random-access recovery reads (scanning itself only ever
// reads forward through windowReader).
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}
