// Package scanner slides a hashing window across one or more source images,
// claiming matches against a hash index loaded from BlockHashLoc sidecars.
package scanner

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/MarcoPon/blockhashloc/pkg/hashindex"
)

// Progress reports scan advancement for a single source. Callers may use it
// to drive a progress bar; it is never required for correctness.
type Progress struct {
	SourceID     int
	BytesScanned int64
	Placed       int
	Total        int
}

// Config parameterizes a Scanner run. BlockSizes is the set S of distinct
// block sizes among the loaded BHL files; TotalPlaceable is the number of
// entries across all loaded files still eligible for placement (tail
// blocks excluded, since they never appear verbatim in a source image).
type Config struct {
	Step           int64
	Offset         int64
	BlockSizes     []uint32
	TotalPlaceable int
	OnProgress     func(Progress)
}

type Scanner struct {
	store  hashindex.Store
	cfg    Config
	logger *slog.Logger
}

func New(store hashindex.Store, cfg Config, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{store: store, cfg: cfg, logger: logger.With("component", "scanner")}
}

// Scan walks every source concurrently, one worker per source, until either
// every source is exhausted or every placeable entry has been claimed.
func (s *Scanner) Scan(ctx context.Context, sources []*Source) error {
	if len(s.cfg.BlockSizes) == 0 || len(sources) == 0 {
		return nil
	}

	blockSizes := append([]uint32(nil), s.cfg.BlockSizes...)
	sort.Slice(blockSizes, func(i, j int) bool { return blockSizes[i] < blockSizes[j] })
	maxBlockSize := int(blockSizes[len(blockSizes)-1])

	step := s.cfg.Step
	if step <= 0 {
		step = DefaultStep(blockSizes)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var placed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			return s.scanSource(gctx, src, blockSizes, maxBlockSize, step, &placed, cancel)
		})
	}
	return g.Wait()
}

func (s *Scanner) scanSource(ctx context.Context, src *Source, blockSizes []uint32, maxBlockSize int, step int64, placed *atomic.Int64, done func()) error {
	logger := s.logger.With("source", src.Path, "sourceID", src.ID)
	logger.Debug("scan started", "length", src.Length, "step", step)

	wr := newWindowReader(src, maxBlockSize)

	for pos := s.cfg.Offset; pos < src.Length; pos += step {
		if ctx.Err() != nil {
			return nil
		}
		if int(placed.Load()) >= s.cfg.TotalPlaceable {
			done()
			return nil
		}

		buf, err := wr.window(pos, maxBlockSize)
		if err != nil {
			return err
		}
		if len(buf) == 0 {
			break
		}

		for _, b := range blockSizes {
			if int(b) > len(buf) {
				continue
			}
			digest := sha256.Sum256(buf[:b])
			n, err := s.store.Claim(ctx, digest, src.ID, pos)
			if err != nil {
				return fmt.Errorf("scanner: claim at %s:%d: %w", src.Path, pos, err)
			}
			if n > 0 {
				placed.Add(int64(n))
			}
		}

		if s.cfg.OnProgress != nil {
			s.cfg.OnProgress(Progress{
				SourceID:     src.ID,
				BytesScanned: pos - s.cfg.Offset,
				Placed:       int(placed.Load()),
				Total:        s.cfg.TotalPlaceable,
			})
		}
	}

	logger.Debug("scan finished")
	return nil
}
