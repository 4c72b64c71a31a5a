// Package reassembler rebuilds original files from a populated hash index:
// for each loaded BHL file it copies every placed block from its recorded
// source location, appends the decompressed tail, and verifies the result
// against the container's global digest.
package reassembler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MarcoPon/blockhashloc/pkg/bhl"
	"github.com/MarcoPon/blockhashloc/pkg/bhlerr"
	"github.com/MarcoPon/blockhashloc/pkg/bitfield"
	"github.com/MarcoPon/blockhashloc/pkg/hashindex"
	"github.com/MarcoPon/blockhashloc/pkg/scanner"
)

// Progress reports reassembly advancement for a single file.
type Progress struct {
	FileID int
	Placed int
	Total  int
}

// Config parameterizes a reassembly run.
type Config struct {
	OutputDir  string
	OnProgress func(Progress)
}

// Result describes the outcome of reassembling one BHL file.
type Result struct {
	FileID       int
	OutputPath   string
	BlocksTotal  int
	BlocksPlaced int
	Holes        []int

	// Placed marks, one bit per scannable block index, which blocks were
	// copied from a source image. Compact enough to log or persist for a
	// later resume even when BlocksTotal runs into the millions.
	Placed bitfield.Bitfield

	HashMatch bool
	Err       error
}

type Reassembler struct {
	store   hashindex.Store
	sources map[int]*scanner.Source
	cfg     Config
	logger  *slog.Logger
}

func New(store hashindex.Store, sources map[int]*scanner.Source, cfg Config, logger *slog.Logger) *Reassembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reassembler{store: store, sources: sources, cfg: cfg, logger: logger.With("component", "reassembler")}
}

// Job names one BHL file to reassemble. BaseName is the BHL sidecar's own
// filename (without extension), used as the output name's fallback when the
// container carries no FNM record.
type Job struct {
	FileID   int
	File     *bhl.File
	BaseName string
}

// ReassembleAll processes every job concurrently, one worker per file —
// files are independent of each other once the hash index has been fully
// populated by a scan.
func (r *Reassembler) ReassembleAll(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			res, err := r.reassembleOne(gctx, job)
			res.Err = err
			results[i] = res
			return nil // collect per-file errors in Result, don't abort the group
		})
	}
	_ = g.Wait()

	return results
}

func (r *Reassembler) reassembleOne(ctx context.Context, job Job) (Result, error) {
	file := job.File
	logger := r.logger.With("fileID", job.FileID)

	res := Result{
		FileID:      job.FileID,
		BlocksTotal: file.NumBlocks(),
	}

	placements, err := r.store.Placements(ctx, job.FileID)
	if err != nil {
		return res, fmt.Errorf("reassembler: placements: %w", err)
	}

	if len(placements) > 0 && countPlaced(placements) == 0 && file.FileSize > uint64(file.BlockSize) {
		logger.Warn("nothing found, skipping reassembly")
		return res, bhlerr.ErrNothingFound
	}

	outputPath := r.resolveOutputPath(file, job.BaseName)
	res.OutputPath = outputPath

	tempPath := filepath.Join(r.cfg.OutputDir, ".bhl-"+uuid.New().String()+".tmp")
	out, err := os.Create(tempPath)
	if err != nil {
		return res, fmt.Errorf("%w: create %s: %v", bhlerr.ErrIo, tempPath, err)
	}
	removeTemp := true
	defer func() {
		out.Close()
		if removeTemp {
			os.Remove(tempPath)
		}
	}()

	if err := out.Truncate(int64(file.FileSize)); err != nil {
		return res, fmt.Errorf("%w: truncate %s: %v", bhlerr.ErrIo, tempPath, err)
	}

	res.Placed = bitfield.New(len(placements))

	for _, p := range placements {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if !p.Placed {
			res.Holes = append(res.Holes, p.BlockIndex)
			continue
		}
		res.Placed.Set(p.BlockIndex)

		src, ok := r.sources[p.SourceID]
		if !ok {
			return res, fmt.Errorf("reassembler: block %d: unknown source %d", p.BlockIndex, p.SourceID)
		}

		buf := make([]byte, file.BlockSize)
		n, err := src.ReadAt(buf, p.Position)
		if err != nil && err != io.EOF {
			return res, fmt.Errorf("%w: read %s at %d: %v", bhlerr.ErrIo, src.Path, p.Position, err)
		}
		if n < len(buf) {
			return res, fmt.Errorf("%w: block %d: source %s shrank since scan", bhlerr.ErrIncompleteRecovery, p.BlockIndex, src.Path)
		}

		if _, err := out.WriteAt(buf, int64(p.BlockIndex)*int64(file.BlockSize)); err != nil {
			return res, fmt.Errorf("%w: write %s: %v", bhlerr.ErrIo, outputPath, err)
		}
		res.BlocksPlaced++

		if r.cfg.OnProgress != nil {
			r.cfg.OnProgress(Progress{FileID: job.FileID, Placed: res.BlocksPlaced, Total: res.BlocksTotal})
		}
	}

	if file.HasTail() {
		tailData, err := file.DecodeTail()
		if err != nil {
			return res, err
		}
		tailOffset := int64(file.NumBlocks()-1) * int64(file.BlockSize)
		if _, err := out.WriteAt(tailData, tailOffset); err != nil {
			return res, fmt.Errorf("%w: write tail %s: %v", bhlerr.ErrIo, outputPath, err)
		}
		res.BlocksPlaced++
	}

	if _, err := out.Seek(0, io.SeekStart); err != nil {
		return res, fmt.Errorf("%w: %v", bhlerr.ErrIo, err)
	}
	computed, err := bhl.VerifyContent(out, file.BlockSize)
	if err != nil {
		return res, fmt.Errorf("reassembler: verify: %w", err)
	}
	res.HashMatch = computed == file.GlobalDigest

	if err := out.Close(); err != nil {
		return res, fmt.Errorf("%w: close %s: %v", bhlerr.ErrIo, tempPath, err)
	}

	if file.Metadata.HasModTime {
		if err := os.Chtimes(tempPath, file.Metadata.ModTime, file.Metadata.ModTime); err != nil {
			logger.Warn("could not set modification time", "error", err)
		}
	}

	if err := os.Rename(tempPath, outputPath); err != nil {
		return res, fmt.Errorf("%w: rename to %s: %v", bhlerr.ErrIo, outputPath, err)
	}
	removeTemp = false

	switch {
	case len(res.Holes) > 0:
		return res, fmt.Errorf("%w: %d of %d blocks unrecovered", bhlerr.ErrIncompleteRecovery, len(res.Holes), res.BlocksTotal)
	case !res.HashMatch:
		return res, bhlerr.ErrHashMismatch
	}

	logger.Info("reassembled", "output", outputPath, "blocks", res.BlocksTotal)
	return res, nil
}

func countPlaced(placements []hashindex.Placement) int {
	n := 0
	for _, p := range placements {
		if p.Placed {
			n++
		}
	}
	return n
}

func (r *Reassembler) resolveOutputPath(file *bhl.File, baseName string) string {
	name := baseName + ".out"
	if file.Metadata.HasFilename && file.Metadata.Filename != "" {
		name = filepath.Base(file.Metadata.Filename)
	}
	return filepath.Join(r.cfg.OutputDir, name)
}
