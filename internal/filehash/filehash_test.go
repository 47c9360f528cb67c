package filehash_test

import (
	"crypto/sha512"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nitrescov/filestored/internal/filehash"
)

func TestBytesMatchesStdlibSum384(t *testing.T) {
	t.Parallel()

	data := []byte("the quick brown fox jumps over the lazy dog")
	want := sha512.Sum384(data)

	got := filehash.Bytes(data)
	if got != want {
		t.Errorf("Bytes() = %x, want %x", got, want)
	}
}

func TestFileMatchesBytesDigest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "payload.bin")
	content := []byte("streamed file content for hashing")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	want := filehash.Bytes(content)
	got, err := filehash.File(path)
	if err != nil {
		t.Fatalf("File() error: %v", err)
	}
	if got != want {
		t.Errorf("File() = %x, want %x", got, want)
	}
}

func TestFileNotFound(t *testing.T) {
	t.Parallel()

	_, err := filehash.File(filepath.Join(t.TempDir(), "missing.bin"))
	if !errors.Is(err, filehash.ErrNotFound) {
		t.Errorf("File() error = %v, want %v", err, filehash.ErrNotFound)
	}
}

func TestFileRejectsDirectory(t *testing.T) {
	t.Parallel()

	_, err := filehash.File(t.TempDir())
	if !errors.Is(err, filehash.ErrNotFound) {
		t.Errorf("File() on a directory error = %v, want %v", err, filehash.ErrNotFound)
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()

	digest := filehash.Bytes([]byte("abc"))

	if !filehash.Equal(digest, digest[:]) {
		t.Error("Equal() with matching digest = false, want true")
	}
	other := filehash.Bytes([]byte("xyz"))
	if filehash.Equal(digest, other[:]) {
		t.Error("Equal() with differing digest = true, want false")
	}
	if filehash.Equal(digest, []byte{1, 2, 3}) {
		t.Error("Equal() with wrong-length slice = true, want false")
	}
}
