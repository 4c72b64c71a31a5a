// Package config holds the knobs bhlmake and bhlreco expose on their
// command lines. Unlike a long-running service, a single bhlreco
// invocation has no shared mutable state to protect — callers build a
// Config from flags and thread it explicitly into the packages that need
// it, rather than reading a package-global on every call. Init/Load/Update
// still exist for the rare case a library caller wants a process-wide
// default before it has parsed its own flags.
package config

// Config parameterizes one run of bhlmake or bhlreco.
type Config struct {
	// BlockSize is bhlmake's -b: the block size used to build a new BHL
	// sidecar.
	BlockSize uint32

	// OutputDir is -d: where bhlmake writes .bhl sidecars and bhlreco
	// writes recovered files.
	OutputDir string

	// StoreDSN is bhlreco's -db: a filesystem path for a persistent
	// SQLite-backed hash index, or ":memory:" for an in-process one.
	StoreDSN string

	// Offset is bhlreco's -o: the byte offset in each source image where
	// scanning begins.
	Offset int64

	// Step is bhlreco's -st: the sliding-window step. Zero means derive
	// it from the loaded BHL files' block sizes (their GCD).
	Step int64

	// TestMode is bhlreco's -t: validate the named BHL files only, never
	// touching any source image.
	TestMode bool

	// ContinueOnError is bhlmake's -c: keep processing remaining files
	// after one fails instead of stopping at the first error.
	ContinueOnError bool
}

// defaultConfig returns the process-wide fallback values that Init installs.
func defaultConfig() Config {
	return Config{
		BlockSize: 512,
		OutputDir: ".",
		StoreDSN:  ":memory:",
		Offset:    0,
		Step:      0,
		TestMode:  false,
	}
}
