// Package filehash computes SHA-384 digests over in-memory buffers and
// files on disk, streaming file reads so the whole file never needs to
// be resident in memory.
package filehash

import (
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/nitrescov/filestored/internal/wire"
)

// ErrNotFound indicates the path argument does not name a regular file
// at the moment of hashing.
var ErrNotFound = errors.New("file not found")

// Bytes returns the SHA-384 digest of data.
func Bytes(data []byte) [wire.DigestSize]byte {
	sum := sha512.Sum384(data)
	return sum
}

// File returns the SHA-384 digest of the regular file at path, reading
// it in wire.Buffer-sized chunks. Returns ErrNotFound if path does not
// name a regular file.
func File(path string) ([wire.DigestSize]byte, error) {
	var digest [wire.DigestSize]byte

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return digest, fmt.Errorf("hash file %s: %w", path, ErrNotFound)
	}

	f, err := os.Open(path)
	if err != nil {
		return digest, fmt.Errorf("hash file %s: %w", path, err)
	}
	defer f.Close()

	h := sha512.New384()
	if err := streamInto(h, f); err != nil {
		return digest, fmt.Errorf("hash file %s: %w", path, err)
	}

	copy(digest[:], h.Sum(nil))
	return digest, nil
}

// streamInto copies src into h in wire.Buffer-sized chunks.
func streamInto(h hash.Hash, src io.Reader) error {
	buf := make([]byte, wire.Buffer)
	if _, err := io.CopyBuffer(h, src, buf); err != nil {
		return fmt.Errorf("stream hash: %w", err)
	}
	return nil
}

// Equal compares a computed digest against a header-carried digest slice.
func Equal(digest [wire.DigestSize]byte, want []byte) bool {
	if len(want) != wire.DigestSize {
		return false
	}
	for i := range digest {
		if digest[i] != want[i] {
			return false
		}
	}
	return true
}
