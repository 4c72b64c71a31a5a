// Command bhlmake builds a BlockHashLoc side-car index next to one or more
// files.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MarcoPon/blockhashloc/pkg/bhl"
	"github.com/MarcoPon/blockhashloc/pkg/config"
	"github.com/MarcoPon/blockhashloc/pkg/logging"
)

func main() {
	outputDir := flag.String("d", "", "directory to write .bhl sidecars into (default: next to each input file)")
	blockSize := flag.Uint("b", 512, "block size in bytes")
	continueOnError := flag.Bool("c", false, "keep processing remaining files after one fails")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-d dir] [-b blocksize] [-c] FILES...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger := setupLogger(*verbose)

	cfg := config.Config{
		OutputDir:       *outputDir,
		BlockSize:       uint32(*blockSize),
		ContinueOnError: *continueOnError,
	}

	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			logger.Error("cannot create output directory", "dir", cfg.OutputDir, "error", err)
			os.Exit(1)
		}
	}

	for _, path := range files {
		dir := cfg.OutputDir
		if dir == "" {
			dir = filepath.Dir(path)
		}
		dest := filepath.Join(dir, filepath.Base(path)+".bhl")

		summary, err := bhl.EncodeFile(dest, path, cfg.BlockSize)
		if err != nil {
			logger.Error("failed to build sidecar", "file", path, "error", err)
			if !cfg.ContinueOnError {
				os.Exit(1)
			}
			continue
		}

		logger.Info("sidecar written",
			"file", path,
			"sidecar", dest,
			"blocks", summary.BlockCount,
			"size", summary.FileSize,
			"hasTail", summary.HasTail,
		)
	}

	// -c keeps processing past failures but still exits 0, matching the
	// documented CLI contract: only the non-continue path treats a failure
	// as a hard stop with a nonzero exit.
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
