// Package auth implements the credential matcher: the positional
// authority rule over two parallel, read-only sequences of user names
// and credential digests.
package auth

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrMalformedCredentials indicates a submitted login payload did not
// split into exactly a name and a digest.
var ErrMalformedCredentials = errors.New("malformed login payload")

// Table holds the two parallel credential sequences. It is safe for
// concurrent read access from any number of sessions; Reload replaces
// the sequences atomically under a lock so reloads requested through
// the admin control socket never race a login in progress.
//
// The authority invariant is positional, not a map: a submitted
// (name, digest) pair is valid iff the first row holding name and the
// first row holding digest are the same row i. This is deliberate --
// see Match.
type Table struct {
	mu      sync.RWMutex
	names   []string
	digests []string
}

// NewTable creates a Table from two parallel in-memory sequences.
// Panics if the lengths differ, since the positional invariant would
// be meaningless otherwise -- this is a programmer error, not a
// runtime condition.
func NewTable(names, digests []string) *Table {
	if len(names) != len(digests) {
		panic("auth: names and digests must have equal length")
	}
	return &Table{names: names, digests: digests}
}

// LoadTable reads a Table from two line-oriented text files: one user
// name per line in namesPath, one credential digest per line in
// digestsPath, at the same line index.
func LoadTable(namesPath, digestsPath string) (*Table, error) {
	names, err := readLines(namesPath)
	if err != nil {
		return nil, fmt.Errorf("load credential names: %w", err)
	}
	digests, err := readLines(digestsPath)
	if err != nil {
		return nil, fmt.Errorf("load credential digests: %w", err)
	}
	if len(names) != len(digests) {
		return nil, fmt.Errorf("load credentials: %d names but %d digests", len(names), len(digests))
	}
	return NewTable(names, digests), nil
}

// Reload re-reads the two credential files and swaps the table's
// contents in place under a write lock. Sessions mid-login continue to
// see a consistent (old or new, never mixed) table.
func (t *Table) Reload(namesPath, digestsPath string) error {
	fresh, err := LoadTable(namesPath, digestsPath)
	if err != nil {
		return fmt.Errorf("reload credentials: %w", err)
	}
	t.mu.Lock()
	t.names = fresh.names
	t.digests = fresh.digests
	t.mu.Unlock()
	return nil
}

// Names returns a copy of the configured user names, for introspection
// (e.g. the admin control plane's ListUsers). Digests are never exposed
// this way.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Match decides whether (name, digest) is a valid credential pair.
//
// Both sequences are scanned exhaustively -- no short-circuit on the
// first match -- so that the time taken does not itself leak which row,
// if any, matched. The first matching index in each sequence is kept,
// and the pair is accepted only when the two indices are equal. This is
// deliberate per the protocol's design notes: do not replace this with
// a map lookup.
func (t *Table) Match(name, digest string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	namePos := -1
	for i, n := range t.names {
		if n == name && namePos < 0 {
			namePos = i
		}
	}

	digestPos := -1
	for j, d := range t.digests {
		if d == digest && digestPos < 0 {
			digestPos = j
		}
	}

	return namePos >= 0 && namePos == digestPos
}

// readLines reads path as one record per line, trimming the trailing
// newline handled automatically by bufio.Scanner. Empty lines anywhere
// in the file are skipped.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return lines, nil
}
