package scanner

import (
	"errors"
	"fmt"
	"io"

	"github.com/MarcoPon/blockhashloc/pkg/bhlerr"
)

const minWindowBuffer = 1 << 20 // resource model requires >=1 MiB buffered sequential reads

// windowReader serves successive, ascending-offset byte windows out of a
// single read-ahead buffer so the scan loop does not issue one syscall per
// step. Callers must request windows at non-decreasing positions.
type windowReader struct {
	src      *Source
	bufSize  int
	buf      []byte
	bufStart int64
	bufLen   int
}

func newWindowReader(src *Source, maxWindow int) *windowReader {
	bufSize := minWindowBuffer
	if need := maxWindow * 4; need > bufSize {
		bufSize = need
	}
	return &windowReader{src: src, bufSize: bufSize, buf: make([]byte, bufSize), bufStart: -1}
}

// window returns up to n bytes starting at pos. The returned slice aliases
// the internal buffer and is only valid until the next call to window.
func (wr *windowReader) window(pos int64, n int) ([]byte, error) {
	if wr.bufStart < 0 || pos < wr.bufStart || pos+int64(n) > wr.bufStart+int64(wr.bufLen) {
		if err := wr.refill(pos); err != nil {
			return nil, err
		}
	}

	offset := int(pos - wr.bufStart)
	if offset >= wr.bufLen {
		return nil, nil
	}
	end := offset + n
	if end > wr.bufLen {
		end = wr.bufLen
	}
	return wr.buf[offset:end], nil
}

func (wr *windowReader) refill(pos int64) error {
	n, err := wr.src.file.ReadAt(wr.buf, pos)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s: %v", bhlerr.ErrIo, wr.src.Path, err)
	}
	wr.bufStart = pos
	wr.bufLen = n
	return nil
}
