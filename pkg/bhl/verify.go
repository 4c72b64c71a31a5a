package bhl

import (
	"crypto/sha256"
	"io"

	"github.com/MarcoPon/blockhashloc/pkg/blockhasher"
)

// VerifyContent recomputes the "hash of hashes" global digest over r the
// same way Encode does while writing a container, so a reassembled file can
// be checked against a File's GlobalDigest without re-running the whole
// encoder.
func VerifyContent(r io.Reader, blockSize uint32) (Digest, error) {
	hasher := blockhasher.New(r, blockSize)
	global := sha256.New()

	for {
		blk, ok, err := hasher.Next()
		if err != nil {
			return Digest{}, err
		}
		if !ok {
			break
		}
		global.Write(blk.Digest[:])
	}

	var d Digest
	copy(d[:], global.Sum(nil))
	return d, nil
}
