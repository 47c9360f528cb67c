// Package pathguard resolves client-supplied relative paths against a
// configured base directory, enforcing that every resolved path stays
// inside the authenticated user's subtree.
//
// Two classes of failure are distinguished, matching the protocol's
// failure taxonomy (spec.md section 7): ErrEscapesSubtree and
// ErrSeparatorInPath are protocol violations that must end the session;
// ErrNotFound, ErrAlreadyExists, and ErrParentMissing are request
// failures that the caller turns into a content-type FAILURE response
// without tearing down the session.
package pathguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Separator is the protocol's text field separator. Any client-supplied
// path containing it is rejected outright.
const Separator = "\n"

// Protocol-violation errors. Use errors.Is to distinguish these from
// request failures at the call site.
var (
	// ErrEscapesSubtree indicates the resolved path does not stay within
	// the authenticated user's subtree, whether via a bare cross-user
	// prefix or a normalized ".." escape.
	ErrEscapesSubtree = errors.New("path escapes user subtree")

	// ErrSeparatorInPath indicates the resolved absolute path contains the
	// protocol's text separator, which would break downstream framing.
	ErrSeparatorInPath = errors.New("path contains separator byte")
)

// Request-failure errors.
var (
	// ErrNotFound indicates the target does not exist or is not of the
	// expected kind (file vs. directory).
	ErrNotFound = errors.New("target not found")

	// ErrAlreadyExists indicates an upload target already exists.
	ErrAlreadyExists = errors.New("target already exists")

	// ErrParentMissing indicates an upload's parent directory does not exist.
	ErrParentMissing = errors.New("parent directory missing")
)

// IsProtocolViolation reports whether err is one of the violations that
// must terminate the session, rather than a request failure.
func IsProtocolViolation(err error) bool {
	return errors.Is(err, ErrEscapesSubtree) || errors.Is(err, ErrSeparatorInPath)
}

// resolve joins basepath/users/clientPath, normalizes it, and verifies
// the normalized path still begins with basepath/users/user/ -- the
// "prefix containment" check from spec.md section 4.4, strengthened
// with path normalization per the protocol's own design notes (naive
// prefix-only checks do not stop a "user/../other" escape).
func resolve(basePath, user, clientPath string) (string, error) {
	if strings.Contains(clientPath, Separator) {
		return "", ErrSeparatorInPath
	}

	usersRoot := filepath.Join(basePath, "users")
	userRoot := filepath.Join(usersRoot, user)
	joined := filepath.Join(usersRoot, clientPath)

	if strings.Contains(joined, Separator) {
		return "", ErrSeparatorInPath
	}

	if joined != userRoot && !strings.HasPrefix(joined, userRoot+string(filepath.Separator)) {
		return "", ErrEscapesSubtree
	}

	return joined, nil
}

// ResolveDownloadFile resolves a client-supplied relative path for a
// DOWNLOAD_FILE request and verifies the target is an existing regular
// file.
func ResolveDownloadFile(basePath, user, clientPath string) (string, error) {
	target, err := resolve(basePath, user, clientPath)
	if err != nil {
		return "", err
	}
	info, statErr := os.Stat(target)
	if statErr != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("resolve download file %q: %w", clientPath, ErrNotFound)
	}
	return target, nil
}

// ResolveDownloadFolder resolves a client-supplied relative path for a
// DOWNLOAD_FOLDER request and verifies the target is an existing
// directory. It also returns the folder's basename, deriving it from
// the parent path component when clientPath ends in a separator.
func ResolveDownloadFolder(basePath, user, clientPath string) (dirPath, folderName string, err error) {
	target, err := resolve(basePath, user, clientPath)
	if err != nil {
		return "", "", err
	}
	info, statErr := os.Stat(target)
	if statErr != nil || !info.IsDir() {
		return "", "", fmt.Errorf("resolve download folder %q: %w", clientPath, ErrNotFound)
	}

	name := filepath.Base(target)
	if name == "." || name == string(filepath.Separator) {
		name = filepath.Base(filepath.Dir(target))
	}
	return target, name, nil
}

// ResolveDirectoriesRoot resolves the root of the authenticated user's
// subtree, used as the walk root for GET_DIRECTORIES.
func ResolveDirectoriesRoot(basePath, user string) string {
	return filepath.Join(basePath, "users", user)
}

// ResolveUploadTarget resolves an UPLOAD_FILE request's (fileName,
// relativeDir) pair to a target path, stripping any directory
// components from fileName (basename only, per spec.md section 4.4
// rule 5), and verifies the parent directory exists and the target
// does not.
func ResolveUploadTarget(basePath, user, fileName, relativeDir string) (targetPath string, err error) {
	dirPath, err := resolve(basePath, user, relativeDir)
	if err != nil {
		return "", err
	}

	info, statErr := os.Stat(dirPath)
	if statErr != nil || !info.IsDir() {
		return "", fmt.Errorf("resolve upload target: parent %q: %w", relativeDir, ErrParentMissing)
	}

	base := filepath.Base(fileName)
	target := filepath.Join(dirPath, base)
	if strings.Contains(target, Separator) {
		return "", ErrSeparatorInPath
	}

	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("resolve upload target %q: %w", base, ErrAlreadyExists)
	}

	return target, nil
}

// TempZipPath returns the path under <basepath>/temp/<user>/ where a
// DOWNLOAD_FOLDER archive is materialized.
func TempZipPath(basePath, user, folderName string) string {
	return filepath.Join(basePath, "temp", user, folderName+".zip")
}
