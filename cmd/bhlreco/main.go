// Command bhlreco recovers files from one or more raw storage images using
// previously built BlockHashLoc side-car indexes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarcoPon/blockhashloc/pkg/bhl"
	"github.com/MarcoPon/blockhashloc/pkg/bhlerr"
	"github.com/MarcoPon/blockhashloc/pkg/config"
	"github.com/MarcoPon/blockhashloc/pkg/hashindex"
	"github.com/MarcoPon/blockhashloc/pkg/logging"
	"github.com/MarcoPon/blockhashloc/pkg/reassembler"
	"github.com/MarcoPon/blockhashloc/pkg/scanner"
)

// stringList collects every occurrence of a repeatable flag, e.g.
// -bhl a.bhl -bhl b.bhl.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var bhlPaths stringList
	flag.Var(&bhlPaths, "bhl", "path to a .bhl sidecar (repeatable)")
	outputDir := flag.String("d", ".", "directory to write recovered files into")
	storeDSN := flag.String("db", ":memory:", "hash index backing store (':memory:' or a sqlite file path)")
	offset := flag.Int64("o", 0, "byte offset in each source image where scanning begins")
	step := flag.Int64("st", 0, "sliding window step; 0 derives it from the loaded block sizes")
	testMode := flag.Bool("t", false, "validate the named BHL files only, without touching any image")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s -bhl FILE [-bhl FILE...] [-d dir] [-db path|:memory:] [-o offset] [-st step] [-t] IMAGES...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := setupLogger(*verbose)

	if len(bhlPaths) == 0 {
		fmt.Fprintln(os.Stderr, "at least one -bhl is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Config{
		OutputDir: *outputDir,
		StoreDSN:  *storeDSN,
		Offset:    *offset,
		Step:      *step,
		TestMode:  *testMode,
	}

	files, err := loadBHLFiles(bhlPaths)
	if err != nil {
		logger.Error("failed to load sidecar", "error", err)
		os.Exit(1)
	}

	if cfg.TestMode {
		os.Exit(runTestMode(logger, files))
	}

	images := flag.Args()
	if len(images) == 0 {
		fmt.Fprintln(os.Stderr, "at least one source image is required (or pass -t to validate sidecars only)")
		flag.Usage()
		os.Exit(2)
	}

	os.Exit(runRecovery(logger, cfg, files, images))
}

type loadedBHL struct {
	path string
	file *bhl.File
}

func loadBHLFiles(paths []string) ([]loadedBHL, error) {
	out := make([]loadedBHL, 0, len(paths))
	for _, p := range paths {
		file, err := bhl.DecodeFile(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, loadedBHL{path: p, file: file})
	}
	return out, nil
}

func runTestMode(logger *slog.Logger, files []loadedBHL) int {
	for _, f := range files {
		logger.Info("sidecar valid",
			"file", f.path,
			"blocks", f.file.NumBlocks(),
			"size", f.file.FileSize,
			"hasTail", f.file.HasTail(),
		)
	}
	return 0
}

func runRecovery(logger *slog.Logger, cfg config.Config, files []loadedBHL, imagePaths []string) int {
	ctx := context.Background()

	store, err := openStore(cfg.StoreDSN)
	if err != nil {
		logger.Error("failed to open hash index", "error", err)
		return 1
	}
	defer store.Close()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		logger.Error("cannot create output directory", "dir", cfg.OutputDir, "error", err)
		return 1
	}

	blockSizeSet := map[uint32]struct{}{}
	totalPlaceable := 0
	jobs := make([]reassembler.Job, 0, len(files))

	for i, f := range files {
		fileID := i + 1
		digests := f.file.ScannableDigests()

		if err := store.AddEntries(ctx, fileID, digests); err != nil {
			logger.Error("failed to register sidecar", "file", f.path, "error", err)
			return 1
		}
		if err := store.SetFileInfo(ctx, fileID, hashindex.FileInfo{
			BlockSize:    f.file.BlockSize,
			FileSize:     f.file.FileSize,
			Filename:     f.file.Metadata.Filename,
			HasFilename:  f.file.Metadata.HasFilename,
			ModTime:      f.file.Metadata.ModTime,
			TailBlob:     f.file.TailBlob,
			GlobalDigest: f.file.GlobalDigest,
		}); err != nil {
			logger.Error("failed to register sidecar metadata", "file", f.path, "error", err)
			return 1
		}

		blockSizeSet[f.file.BlockSize] = struct{}{}
		totalPlaceable += len(digests)

		baseName := strings.TrimSuffix(filepath.Base(f.path), filepath.Ext(f.path))
		jobs = append(jobs, reassembler.Job{FileID: fileID, File: f.file, BaseName: baseName})
	}

	blockSizes := make([]uint32, 0, len(blockSizeSet))
	for b := range blockSizeSet {
		blockSizes = append(blockSizes, b)
	}

	sources := make([]*scanner.Source, 0, len(imagePaths))
	sourcesByID := make(map[int]*scanner.Source, len(imagePaths))
	defer func() {
		for _, s := range sources {
			s.Close()
		}
	}()

	for i, p := range imagePaths {
		src, err := scanner.OpenSource(i+1, p)
		if err != nil {
			logger.Error("failed to open source image", "image", p, "error", err)
			return 1
		}
		sources = append(sources, src)
		sourcesByID[src.ID] = src
	}

	sc := scanner.New(store, scanner.Config{
		Step:           cfg.Step,
		Offset:         cfg.Offset,
		BlockSizes:     blockSizes,
		TotalPlaceable: totalPlaceable,
		OnProgress: func(p scanner.Progress) {
			logger.Debug("scanning", "sourceID", p.SourceID, "bytesScanned", p.BytesScanned, "placed", p.Placed, "total", p.Total)
		},
	}, logger)

	if err := sc.Scan(ctx, sources); err != nil {
		logger.Error("scan failed", "error", err)
		return 1
	}

	if err := store.Checkpoint(ctx); err != nil {
		logger.Error("checkpoint failed", "error", err)
		return 1
	}

	rs := reassembler.New(store, sourcesByID, reassembler.Config{
		OutputDir: cfg.OutputDir,
		OnProgress: func(p reassembler.Progress) {
			logger.Debug("reassembling", "fileID", p.FileID, "placed", p.Placed, "total", p.Total)
		},
	}, logger)

	results := rs.ReassembleAll(ctx, jobs)

	exitCode := 0
	for i, res := range results {
		path := files[i].path
		switch {
		case res.Err == nil:
			logger.Info("recovered", "sidecar", path, "output", res.OutputPath, "blocks", res.BlocksTotal)
		case errors.Is(res.Err, bhlerr.ErrNothingFound):
			logger.Warn("nothing found", "sidecar", path)
			exitCode = 1
		case isIncompleteOrMismatch(res.Err):
			logger.Warn("recovered with issues", "sidecar", path, "output", res.OutputPath,
				"holes", len(res.Holes), "hashMatch", res.HashMatch, "error", res.Err)
			exitCode = 1
		default:
			logger.Error("recovery failed", "sidecar", path, "error", res.Err)
			exitCode = 1
		}
	}

	return exitCode
}

func isIncompleteOrMismatch(err error) bool {
	return errors.Is(err, bhlerr.ErrIncompleteRecovery) || errors.Is(err, bhlerr.ErrHashMismatch)
}

func openStore(dsn string) (hashindex.Store, error) {
	if dsn == ":memory:" {
		return hashindex.NewMemory(), nil
	}
	return hashindex.OpenSQLite(dsn)
}

func setupLogger(verbose bool) *slog.Logger {
	opts := logging.DefaultOptions()
	if verbose {
		opts.SlogOpts.Level = slog.LevelDebug
	}

	l := slog.New(logging.NewPrettyHandler(os.Stderr, &opts))
	slog.SetDefault(l)
	return l
}
