package reassembler

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MarcoPon/blockhashloc/pkg/bhl"
	"github.com/MarcoPon/blockhashloc/pkg/bhlerr"
	"github.com/MarcoPon/blockhashloc/pkg/hashindex"
	"github.com/MarcoPon/blockhashloc/pkg/scanner"
)

func buildFile(t *testing.T, content []byte, blockSize uint32, filename string) *bhl.File {
	t.Helper()
	var buf bytes.Buffer
	if _, err := bhl.Encode(&buf, bytes.NewReader(content), int64(len(content)), bhl.WriteOptions{
		BlockSize: blockSize,
		Filename:  filename,
	}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	file, err := bhl.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return file
}

func openImage(t *testing.T, content []byte) *scanner.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.bin")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	src, err := scanner.OpenSource(1, path)
	if err != nil {
		t.Fatalf("OpenSource: %v", err)
	}
	t.Cleanup(func() { src.Close() })
	return src
}

func TestReassembleFullRecovery(t *testing.T) {
	ctx := context.Background()
	content := []byte("Hello, BlockHashLoc!")
	file := buildFile(t, content, 8, "hello.txt")

	store := hashindex.NewMemory()
	if err := store.AddEntries(ctx, 1, file.ScannableDigests()); err != nil {
		t.Fatalf("AddEntries: %v", err)
	}

	src := openImage(t, content)
	sc := scanner.New(store, scanner.Config{
		BlockSizes:     []uint32{file.BlockSize},
		TotalPlaceable: len(file.ScannableDigests()),
	}, nil)
	if err := sc.Scan(ctx, []*scanner.Source{src}); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	outDir := t.TempDir()
	r := New(store, map[int]*scanner.Source{1: src}, Config{OutputDir: outDir}, nil)
	results := r.ReassembleAll(ctx, []Job{{FileID: 1, File: file, BaseName: "hello"}})

	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	res := results[0]
	if res.Err != nil {
		t.Fatalf("reassemble error: %v", res.Err)
	}
	if !res.HashMatch {
		t.Errorf("HashMatch = false, want true")
	}
	if len(res.Holes) != 0 {
		t.Errorf("Holes = %v, want none", res.Holes)
	}
	if res.OutputPath != filepath.Join(outDir, "hello.txt") {
		t.Errorf("OutputPath = %q", res.OutputPath)
	}

	got, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatalf("ReadFile output: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("reassembled content = %q, want %q", got, content)
	}
}

func TestReassembleIncompleteLeavesHoleAndReportsError(t *testing.T) {
	ctx := context.Background()
	content := []byte("AAAAAAAABBBBBBBB") // two full 8-byte blocks, no tail
	file := buildFile(t, content, 8, "")

	store := hashindex.NewMemory()
	if err := store.AddEntries(ctx, 1, file.ScannableDigests()); err != nil {
		t.Fatalf("AddEntries: %v", err)
	}

	// the source image only carries the first block; the second is lost.
	src := openImage(t, content[:8])
	sc := scanner.New(store, scanner.Config{
		BlockSizes:     []uint32{file.BlockSize},
		TotalPlaceable: len(file.ScannableDigests()),
	}, nil)
	if err := sc.Scan(ctx, []*scanner.Source{src}); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	outDir := t.TempDir()
	r := New(store, map[int]*scanner.Source{1: src}, Config{OutputDir: outDir}, nil)
	results := r.ReassembleAll(ctx, []Job{{FileID: 1, File: file, BaseName: "recovered"}})

	res := results[0]
	if res.Err == nil {
		t.Fatalf("expected an incomplete-recovery error, got nil")
	}
	if len(res.Holes) != 1 || res.Holes[0] != 1 {
		t.Errorf("Holes = %v, want [1]", res.Holes)
	}
	if res.HashMatch {
		t.Errorf("HashMatch = true, want false (content is incomplete)")
	}

	got, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatalf("ReadFile output: %v", err)
	}
	if len(got) != len(content) {
		t.Fatalf("len(output) = %d, want %d (holes still occupy their span)", len(got), len(content))
	}
	if !bytes.Equal(got[:8], content[:8]) {
		t.Errorf("recovered block 0 mismatch")
	}
}

func TestReassembleNothingFoundSkipsFileCreation(t *testing.T) {
	ctx := context.Background()
	content := []byte("AAAAAAAABBBBBBBB") // two full 8-byte blocks, no tail
	file := buildFile(t, content, 8, "recovered.txt")

	store := hashindex.NewMemory()
	if err := store.AddEntries(ctx, 1, file.ScannableDigests()); err != nil {
		t.Fatalf("AddEntries: %v", err)
	}
	// no scan is run against any source: every entry stays unplaced.

	outDir := t.TempDir()
	src := openImage(t, []byte("unrelated data that matches nothing"))
	r := New(store, map[int]*scanner.Source{1: src}, Config{OutputDir: outDir}, nil)
	results := r.ReassembleAll(ctx, []Job{{FileID: 1, File: file, BaseName: "recovered"}})

	res := results[0]
	if !errors.Is(res.Err, bhlerr.ErrNothingFound) {
		t.Fatalf("err = %v, want ErrNothingFound", res.Err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("output directory should be empty, found %v", entries)
	}
}
