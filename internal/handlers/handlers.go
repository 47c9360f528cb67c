// Package handlers implements the four file-storage protocol commands:
// GET_DIRECTORIES, UPLOAD_FILE, DOWNLOAD_FILE, and DOWNLOAD_FOLDER. Each
// handler consumes validated request data and produces a Response
// descriptor that the session state machine turns into wire traffic.
package handlers

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nitrescov/filestored/internal/filehash"
	"github.com/nitrescov/filestored/internal/pathguard"
	"github.com/nitrescov/filestored/internal/wire"
)

// Response describes the outcome of a command handler: a response
// command/content-type pair, an optional in-memory payload, an optional
// path to stream from disk, and whether the exchange continues into a
// pending-data phase (currently only UPLOAD_FILE).
type Response struct {
	Cmd        wire.Command
	Type       wire.ContentType
	Payload    []byte
	StreamPath string
	Length     uint64
	Digest     [wire.DigestSize]byte
	Pending    *PendingUpload
}

// PendingUpload carries the state needed to finalize an UPLOAD_FILE
// exchange's second (CDT) round-trip.
type PendingUpload struct {
	TargetPath string
}

// failure builds a zero-length FAILURE response for the response family
// of cmd.
func failure(cmd wire.Command) Response {
	return Response{Cmd: cmd | 0x40, Type: wire.TypeFailure}
}

// -------------------------------------------------------------------------
// GET_DIRECTORIES
// -------------------------------------------------------------------------

// GetDirectories walks the authenticated user's subtree and returns a
// newline-separated listing of every visited directory, relative to
// <basepath>/users/, including the user's own root.
func GetDirectories(basePath, user string) (Response, error) {
	root := pathguard.ResolveDirectoriesRoot(basePath, user)
	usersRoot := filepath.Join(basePath, "users")

	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(usersRoot, path)
		if relErr != nil {
			return relErr
		}
		dirs = append(dirs, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("get directories for %s: %w", user, err)
	}

	sort.Strings(dirs)
	payload := []byte(strings.Join(dirs, "\n"))
	digest := filehash.Bytes(payload)

	return Response{
		Cmd:     wire.RspGetDirectories,
		Type:    wire.TypeData,
		Payload: payload,
		Length:  uint64(len(payload)),
		Digest:  digest,
	}, nil
}

// -------------------------------------------------------------------------
// UPLOAD_FILE
// -------------------------------------------------------------------------

// PrepareUpload validates the first round-trip of an UPLOAD_FILE
// exchange: payload is "filename\nrelative_dir". On success it returns
// a SUCCESS response with Pending set, ready for the caller to enter
// the pending-data phase. On a request-level failure (bad subtree,
// missing parent, existing target) it returns a FAILURE response with
// a nil error. A protocol violation (separator in path, or a directory
// that leaves the user's subtree once normalized) is returned as a
// non-nil error.
func PrepareUpload(basePath, user string, payload []byte) (Response, error) {
	parts := strings.SplitN(string(payload), pathguard.Separator, 2)
	if len(parts) != 2 {
		return Response{}, fmt.Errorf("prepare upload: %w", ErrMalformedRequest)
	}
	fileName, relativeDir := parts[0], parts[1]

	if !strings.HasPrefix(relativeDir, user) {
		return failure(wire.CmdUploadFile), nil
	}

	target, err := pathguard.ResolveUploadTarget(basePath, user, fileName, relativeDir)
	if err != nil {
		if pathguard.IsProtocolViolation(err) {
			return Response{}, fmt.Errorf("prepare upload: %w", err)
		}
		return failure(wire.CmdUploadFile), nil
	}

	return Response{
		Cmd:     wire.RspUploadFile,
		Type:    wire.TypeSuccess,
		Pending: &PendingUpload{TargetPath: target},
	}, nil
}

// FinalizeUpload streams exactly length bytes from r to targetPath,
// then re-hashes the file on disk and compares it against expected.
// On mismatch the partial file is removed and matched is false, so the
// caller can send CHECK_INVALID and let the client retry. On success
// matched is true and the caller should send CHECK_VALID followed by
// RDT_UPLOAD_FILE/SUCCESS.
func FinalizeUpload(targetPath string, r io.Reader, length uint64, expected [wire.DigestSize]byte) (matched bool, err error) {
	f, err := os.Create(targetPath)
	if err != nil {
		return false, fmt.Errorf("finalize upload: create %s: %w", targetPath, err)
	}

	if err := wire.RecvBodyTo(f, r, length); err != nil {
		f.Close()
		os.Remove(targetPath)
		return false, fmt.Errorf("finalize upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(targetPath)
		return false, fmt.Errorf("finalize upload: close %s: %w", targetPath, err)
	}

	digest, err := filehash.File(targetPath)
	if err != nil {
		return false, fmt.Errorf("finalize upload: %w", err)
	}

	if digest != expected {
		os.Remove(targetPath)
		return false, nil
	}
	return true, nil
}

// ErrMalformedRequest indicates a DATA payload did not contain the
// fields a command requires (e.g. upload's "filename\ndir" pair).
var ErrMalformedRequest = errors.New("malformed request payload")

// -------------------------------------------------------------------------
// DOWNLOAD_FILE
// -------------------------------------------------------------------------

// DownloadFile validates and prepares a DOWNLOAD_FILE response: on
// success, Response.StreamPath names the file to stream with its size
// and digest already populated.
func DownloadFile(basePath, user, clientPath string) (Response, error) {
	target, err := pathguard.ResolveDownloadFile(basePath, user, clientPath)
	if err != nil {
		if pathguard.IsProtocolViolation(err) {
			return Response{}, fmt.Errorf("download file: %w", err)
		}
		return failure(wire.CmdDownloadFile), nil
	}

	info, err := os.Stat(target)
	if err != nil {
		return Response{}, fmt.Errorf("download file: stat %s: %w", target, err)
	}

	digest, err := filehash.File(target)
	if err != nil {
		return Response{}, fmt.Errorf("download file: %w", err)
	}

	return Response{
		Cmd:        wire.RspDownloadFile,
		Type:       wire.TypeFile,
		StreamPath: target,
		Length:     uint64(info.Size()),
		Digest:     digest,
	}, nil
}

// -------------------------------------------------------------------------
// DOWNLOAD_FOLDER
// -------------------------------------------------------------------------

// DownloadFolder validates the request, materializes a zip archive of
// the target directory at <basepath>/temp/<user>/<folder>.zip
// (overwriting any prior copy), and prepares a FILE response streaming
// that archive.
func DownloadFolder(basePath, user, clientPath string) (Response, error) {
	dirPath, folderName, err := pathguard.ResolveDownloadFolder(basePath, user, clientPath)
	if err != nil {
		if pathguard.IsProtocolViolation(err) {
			return Response{}, fmt.Errorf("download folder: %w", err)
		}
		return failure(wire.CmdDownloadFolder), nil
	}

	zipPath := pathguard.TempZipPath(basePath, user, folderName)
	if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
		return Response{}, fmt.Errorf("download folder: prepare temp dir: %w", err)
	}
	if err := archiveDirectory(dirPath, zipPath); err != nil {
		return Response{}, fmt.Errorf("download folder: %w", err)
	}

	info, err := os.Stat(zipPath)
	if err != nil {
		return Response{}, fmt.Errorf("download folder: stat archive: %w", err)
	}
	digest, err := filehash.File(zipPath)
	if err != nil {
		return Response{}, fmt.Errorf("download folder: %w", err)
	}

	return Response{
		Cmd:        wire.RspDownloadFolder,
		Type:       wire.TypeFile,
		StreamPath: zipPath,
		Length:     uint64(info.Size()),
		Digest:     digest,
	}, nil
}

// archiveDirectory writes a fresh deflate-compressed zip of dirPath's
// contents to zipPath, removing any prior copy first so a repeat
// request always reflects the tree's current state.
func archiveDirectory(dirPath, zipPath string) error {
	if _, err := os.Stat(zipPath); err == nil {
		if err := os.Remove(zipPath); err != nil {
			return fmt.Errorf("remove prior archive: %w", err)
		}
	}

	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	err = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dirPath {
			return nil
		}
		rel, err := filepath.Rel(dirPath, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			_, err := zw.Create(filepath.ToSlash(rel) + "/")
			return err
		}
		return addFileToZip(zw, path, filepath.ToSlash(rel))
	})
	if err != nil {
		return fmt.Errorf("walk directory: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("close archive writer: %w", err)
	}
	return out.Close()
}

// addFileToZip streams a single regular file into the open zip writer
// under the given archive-relative name, using the deflate method.
func addFileToZip(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("add %s to archive: %w", name, err)
	}

	buf := make([]byte, wire.Buffer)
	if _, err := io.CopyBuffer(w, src, buf); err != nil {
		return fmt.Errorf("write %s to archive: %w", name, err)
	}
	return nil
}
