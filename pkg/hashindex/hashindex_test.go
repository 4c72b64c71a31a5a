package hashindex

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/MarcoPon/blockhashloc/pkg/bhl"
)

func digestOf(s string) bhl.Digest {
	return bhl.Digest(sha256.Sum256([]byte(s)))
}

func backends(t *testing.T) map[string]Store {
	t.Helper()

	sq, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { sq.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestClaimFirstWinnerPopulatesAll(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			d := digestOf("x")
			digests := []bhl.Digest{d, d, d} // duplicate blocks within one file

			if err := store.AddEntries(ctx, 1, digests); err != nil {
				t.Fatalf("AddEntries: %v", err)
			}

			n, err := store.Claim(ctx, d, 7, 1000)
			if err != nil {
				t.Fatalf("Claim: %v", err)
			}
			if n != 3 {
				t.Fatalf("Claim returned %d, want 3", n)
			}

			n2, err := store.Claim(ctx, d, 9, 2000)
			if err != nil {
				t.Fatalf("Claim (second): %v", err)
			}
			if n2 != 0 {
				t.Fatalf("second Claim returned %d, want 0", n2)
			}

			placements, err := store.Placements(ctx, 1)
			if err != nil {
				t.Fatalf("Placements: %v", err)
			}
			if len(placements) != 3 {
				t.Fatalf("len(Placements) = %d, want 3", len(placements))
			}
			for _, p := range placements {
				if !p.Placed || p.SourceID != 7 || p.Position != 1000 {
					t.Errorf("placement %+v did not retain the first claim", p)
				}
			}
		})
	}
}

func TestClaimAcrossFilesSharesPlacement(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			d := digestOf("shared")

			if err := store.AddEntries(ctx, 1, []bhl.Digest{d}); err != nil {
				t.Fatalf("AddEntries(1): %v", err)
			}
			if err := store.AddEntries(ctx, 2, []bhl.Digest{d}); err != nil {
				t.Fatalf("AddEntries(2): %v", err)
			}

			n, err := store.Claim(ctx, d, 3, 500)
			if err != nil {
				t.Fatalf("Claim: %v", err)
			}
			if n != 2 {
				t.Fatalf("Claim returned %d, want 2 (one per file)", n)
			}

			for _, fileID := range []int{1, 2} {
				placements, err := store.Placements(ctx, fileID)
				if err != nil {
					t.Fatalf("Placements(%d): %v", fileID, err)
				}
				if len(placements) != 1 || !placements[0].Placed || placements[0].SourceID != 3 {
					t.Errorf("file %d: unexpected placements %+v", fileID, placements)
				}
			}
		})
	}
}

func TestFileInfoRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			want := FileInfo{
				BlockSize:    512,
				FileSize:     4096,
				Filename:     "image.raw",
				HasFilename:  true,
				TailBlob:     []byte{1, 2, 3},
				GlobalDigest: digestOf("global"),
			}

			if err := store.SetFileInfo(ctx, 42, want); err != nil {
				t.Fatalf("SetFileInfo: %v", err)
			}

			got, found, err := store.FileInfo(ctx, 42)
			if err != nil {
				t.Fatalf("FileInfo: %v", err)
			}
			if !found {
				t.Fatalf("FileInfo: not found")
			}
			if got.BlockSize != want.BlockSize || got.FileSize != want.FileSize ||
				got.Filename != want.Filename || got.GlobalDigest != want.GlobalDigest {
				t.Errorf("FileInfo = %+v, want %+v", got, want)
			}

			if _, found, err := store.FileInfo(ctx, 999); err != nil || found {
				t.Errorf("FileInfo(999) = found=%v err=%v, want not found", found, err)
			}
		})
	}
}

func TestUnplacedEntriesReportUnclaimed(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.AddEntries(ctx, 5, []bhl.Digest{digestOf("a"), digestOf("b")}); err != nil {
				t.Fatalf("AddEntries: %v", err)
			}

			if _, err := store.Claim(ctx, digestOf("a"), 1, 0); err != nil {
				t.Fatalf("Claim: %v", err)
			}

			placements, err := store.Placements(ctx, 5)
			if err != nil {
				t.Fatalf("Placements: %v", err)
			}
			if len(placements) != 2 {
				t.Fatalf("len(Placements) = %d, want 2", len(placements))
			}
			if !placements[0].Placed {
				t.Errorf("block 0 should be placed")
			}
			if placements[1].Placed {
				t.Errorf("block 1 should remain unplaced")
			}
		})
	}
}
