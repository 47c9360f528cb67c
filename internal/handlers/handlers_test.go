package handlers_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nitrescov/filestored/internal/filehash"
	"github.com/nitrescov/filestored/internal/handlers"
	"github.com/nitrescov/filestored/internal/pathguard"
	"github.com/nitrescov/filestored/internal/wire"
)

func setupTree(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	usersRoot := filepath.Join(base, "users")
	for _, rel := range []string{
		filepath.Join("alice", "docs"),
		filepath.Join("alice", "photos", "trip"),
	} {
		if err := os.MkdirAll(filepath.Join(usersRoot, rel), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(usersRoot, "alice", "docs", "report.txt"), []byte("report contents"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(usersRoot, "alice", "photos", "trip", "a.jpg"), []byte("jpgdata"), 0o644); err != nil {
		t.Fatal(err)
	}
	return base
}

func TestGetDirectoriesListsUserSubtree(t *testing.T) {
	t.Parallel()

	base := setupTree(t)
	resp, err := handlers.GetDirectories(base, "alice")
	if err != nil {
		t.Fatalf("GetDirectories() error: %v", err)
	}

	if resp.Cmd != wire.RspGetDirectories || resp.Type != wire.TypeData {
		t.Fatalf("unexpected response cmd/type: %v/%v", resp.Cmd, resp.Type)
	}

	lines := strings.Split(string(resp.Payload), "\n")
	want := []string{
		"alice",
		"alice/docs",
		filepath.ToSlash(filepath.Join("alice", "photos")),
		filepath.ToSlash(filepath.Join("alice", "photos", "trip")),
	}
	if len(lines) != len(want) {
		t.Fatalf("GetDirectories() lines = %v, want %v", lines, want)
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("lines[%d] = %q, want %q", i, lines[i], w)
		}
	}
}

func TestDownloadFileStreamsExistingFile(t *testing.T) {
	t.Parallel()

	base := setupTree(t)
	resp, err := handlers.DownloadFile(base, "alice", "alice/docs/report.txt")
	if err != nil {
		t.Fatalf("DownloadFile() error: %v", err)
	}
	if resp.Type != wire.TypeFile {
		t.Errorf("Type = %v, want %v", resp.Type, wire.TypeFile)
	}
	if resp.Length != uint64(len("report contents")) {
		t.Errorf("Length = %d, want %d", resp.Length, len("report contents"))
	}

	data, err := os.ReadFile(resp.StreamPath)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Digest != filehash.Bytes(data) {
		t.Error("Digest does not match file contents")
	}
}

func TestDownloadFileEscapingSubtreeIsError(t *testing.T) {
	t.Parallel()

	base := setupTree(t)
	_, err := handlers.DownloadFile(base, "alice", "../other/secret.txt")
	if !pathguard.IsProtocolViolation(err) {
		t.Errorf("DownloadFile() error = %v, want a protocol violation", err)
	}
}

func TestDownloadFileMissingIsFailureResponse(t *testing.T) {
	t.Parallel()

	base := setupTree(t)
	resp, err := handlers.DownloadFile(base, "alice", "alice/docs/missing.txt")
	if err != nil {
		t.Fatalf("DownloadFile() unexpected error: %v", err)
	}
	if resp.Type != wire.TypeFailure {
		t.Errorf("Type = %v, want %v", resp.Type, wire.TypeFailure)
	}
}

func TestPrepareAndFinalizeUploadRoundTrip(t *testing.T) {
	t.Parallel()

	base := setupTree(t)
	payload := []byte("new.txt" + pathguard.Separator + "alice/docs")

	resp, err := handlers.PrepareUpload(base, "alice", payload)
	if err != nil {
		t.Fatalf("PrepareUpload() error: %v", err)
	}
	if resp.Type != wire.TypeSuccess || resp.Pending == nil {
		t.Fatalf("PrepareUpload() resp = %+v, want a pending SUCCESS response", resp)
	}

	content := []byte("uploaded body")
	digest := filehash.Bytes(content)

	matched, err := handlers.FinalizeUpload(resp.Pending.TargetPath, bytes.NewReader(content), uint64(len(content)), digest)
	if err != nil {
		t.Fatalf("FinalizeUpload() error: %v", err)
	}
	if !matched {
		t.Fatal("FinalizeUpload() matched = false, want true")
	}

	got, err := os.ReadFile(resp.Pending.TargetPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("uploaded file contents = %q, want %q", got, content)
	}
}

func TestFinalizeUploadDigestMismatchRemovesFile(t *testing.T) {
	t.Parallel()

	base := setupTree(t)
	target := filepath.Join(base, "users", "alice", "docs", "bad.txt")

	content := []byte("actual content")
	wrongDigest := filehash.Bytes([]byte("something else entirely"))

	matched, err := handlers.FinalizeUpload(target, bytes.NewReader(content), uint64(len(content)), wrongDigest)
	if err != nil {
		t.Fatalf("FinalizeUpload() error: %v", err)
	}
	if matched {
		t.Fatal("FinalizeUpload() matched = true, want false")
	}
	if _, statErr := os.Stat(target); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("FinalizeUpload() left a partial file behind after a digest mismatch")
	}
}

func TestPrepareUploadTargetAlreadyExistsIsFailure(t *testing.T) {
	t.Parallel()

	base := setupTree(t)
	payload := []byte("report.txt" + pathguard.Separator + "alice/docs")

	resp, err := handlers.PrepareUpload(base, "alice", payload)
	if err != nil {
		t.Fatalf("PrepareUpload() unexpected error: %v", err)
	}
	if resp.Type != wire.TypeFailure {
		t.Errorf("Type = %v, want %v", resp.Type, wire.TypeFailure)
	}
}

func TestPrepareUploadMalformedPayload(t *testing.T) {
	t.Parallel()

	base := setupTree(t)
	_, err := handlers.PrepareUpload(base, "alice", []byte("no-separator-here"))
	if !errors.Is(err, handlers.ErrMalformedRequest) {
		t.Errorf("PrepareUpload() error = %v, want %v", err, handlers.ErrMalformedRequest)
	}
}

func TestDownloadFolderProducesReadableZip(t *testing.T) {
	t.Parallel()

	base := setupTree(t)
	resp, err := handlers.DownloadFolder(base, "alice", "alice/photos")
	if err != nil {
		t.Fatalf("DownloadFolder() error: %v", err)
	}
	if resp.Type != wire.TypeFile {
		t.Fatalf("Type = %v, want %v", resp.Type, wire.TypeFile)
	}

	zr, err := zip.OpenReader(resp.StreamPath)
	if err != nil {
		t.Fatalf("open produced archive: %v", err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}

	found := false
	for _, n := range names {
		if n == "trip/a.jpg" {
			found = true
		}
	}
	if !found {
		t.Errorf("archive entries = %v, want to include trip/a.jpg", names)
	}
}
