package pathguard_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nitrescov/filestored/internal/pathguard"
)

func setupTree(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	usersRoot := filepath.Join(base, "users")
	if err := os.MkdirAll(filepath.Join(usersRoot, "alice", "docs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(usersRoot, "bob", "secret"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(usersRoot, "alice", "docs", "report.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(usersRoot, "bob", "secret", "key.txt"), []byte("shh"), 0o644); err != nil {
		t.Fatal(err)
	}
	return base
}

func TestResolveDownloadFileWithinSubtree(t *testing.T) {
	t.Parallel()

	base := setupTree(t)
	target, err := pathguard.ResolveDownloadFile(base, "alice", "alice/docs/report.txt")
	if err != nil {
		t.Fatalf("ResolveDownloadFile() error: %v", err)
	}
	want := filepath.Join(base, "users", "alice", "docs", "report.txt")
	if target != want {
		t.Errorf("ResolveDownloadFile() = %q, want %q", target, want)
	}
}

func TestResolveDownloadFileEscapesSubtree(t *testing.T) {
	t.Parallel()

	base := setupTree(t)
	_, err := pathguard.ResolveDownloadFile(base, "alice", "../bob/secret/key.txt")
	if !errors.Is(err, pathguard.ErrEscapesSubtree) {
		t.Errorf("ResolveDownloadFile() error = %v, want %v", err, pathguard.ErrEscapesSubtree)
	}
	if !pathguard.IsProtocolViolation(err) {
		t.Error("IsProtocolViolation() = false for an escaping path, want true")
	}
}

func TestResolveDownloadFileSeparatorInPath(t *testing.T) {
	t.Parallel()

	base := setupTree(t)
	_, err := pathguard.ResolveDownloadFile(base, "alice", "alice/docs\nreport.txt")
	if !errors.Is(err, pathguard.ErrSeparatorInPath) {
		t.Errorf("ResolveDownloadFile() error = %v, want %v", err, pathguard.ErrSeparatorInPath)
	}
}

func TestResolveDownloadFileNotFound(t *testing.T) {
	t.Parallel()

	base := setupTree(t)
	_, err := pathguard.ResolveDownloadFile(base, "alice", "alice/docs/missing.txt")
	if !errors.Is(err, pathguard.ErrNotFound) {
		t.Errorf("ResolveDownloadFile() error = %v, want %v", err, pathguard.ErrNotFound)
	}
}

func TestResolveDownloadFolder(t *testing.T) {
	t.Parallel()

	base := setupTree(t)
	dirPath, name, err := pathguard.ResolveDownloadFolder(base, "alice", "alice/docs")
	if err != nil {
		t.Fatalf("ResolveDownloadFolder() error: %v", err)
	}
	if name != "docs" {
		t.Errorf("folderName = %q, want %q", name, "docs")
	}
	want := filepath.Join(base, "users", "alice", "docs")
	if dirPath != want {
		t.Errorf("dirPath = %q, want %q", dirPath, want)
	}
}

func TestResolveUploadTargetSuccess(t *testing.T) {
	t.Parallel()

	base := setupTree(t)
	target, err := pathguard.ResolveUploadTarget(base, "alice", "new.txt", "alice/docs")
	if err != nil {
		t.Fatalf("ResolveUploadTarget() error: %v", err)
	}
	want := filepath.Join(base, "users", "alice", "docs", "new.txt")
	if target != want {
		t.Errorf("ResolveUploadTarget() = %q, want %q", target, want)
	}
}

func TestResolveUploadTargetStripsDirectoryComponents(t *testing.T) {
	t.Parallel()

	base := setupTree(t)
	target, err := pathguard.ResolveUploadTarget(base, "alice", "../../etc/passwd", "alice/docs")
	if err != nil {
		t.Fatalf("ResolveUploadTarget() error: %v", err)
	}
	want := filepath.Join(base, "users", "alice", "docs", "passwd")
	if target != want {
		t.Errorf("ResolveUploadTarget() = %q, want %q (basename only)", target, want)
	}
}

func TestResolveUploadTargetAlreadyExists(t *testing.T) {
	t.Parallel()

	base := setupTree(t)
	_, err := pathguard.ResolveUploadTarget(base, "alice", "report.txt", "alice/docs")
	if !errors.Is(err, pathguard.ErrAlreadyExists) {
		t.Errorf("ResolveUploadTarget() error = %v, want %v", err, pathguard.ErrAlreadyExists)
	}
}

func TestResolveUploadTargetParentMissing(t *testing.T) {
	t.Parallel()

	base := setupTree(t)
	_, err := pathguard.ResolveUploadTarget(base, "alice", "new.txt", "alice/nonexistent")
	if !errors.Is(err, pathguard.ErrParentMissing) {
		t.Errorf("ResolveUploadTarget() error = %v, want %v", err, pathguard.ErrParentMissing)
	}
}

func TestResolveDirectoriesRoot(t *testing.T) {
	t.Parallel()

	got := pathguard.ResolveDirectoriesRoot("/var/lib/filestored", "alice")
	want := filepath.Join("/var/lib/filestored", "users", "alice")
	if got != want {
		t.Errorf("ResolveDirectoriesRoot() = %q, want %q", got, want)
	}
}

func TestTempZipPath(t *testing.T) {
	t.Parallel()

	got := pathguard.TempZipPath("/var/lib/filestored", "alice", "docs")
	want := filepath.Join("/var/lib/filestored", "temp", "alice", "docs.zip")
	if got != want {
		t.Errorf("TempZipPath() = %q, want %q", got, want)
	}
}
