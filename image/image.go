// Package image persists a registry as a re-loadable Starlark artifact.
//
// An artifact has two parts: a hand-maintained prefix, and a generated
// section that starts at the Marker line and defines hydrate(registry). The
// generated section is rewritten in full on every snapshot; the prefix is
// carried over verbatim. Every snapshot first copies the previous artifact to
// a numbered backup beside it.
package image

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/liveobjects/object"
)

var log = commonlog.GetLogger("liveobjects.image")

// ---------------------------------------------------------------------------
// Artifact Format Constants
// ---------------------------------------------------------------------------

// Marker separates the hand-maintained prefix from the generated section.
const Marker = "# === LIVEOBJECTS SNAPSHOT ==="

// HydrateFunc is the global the generated section defines.
const HydrateFunc = "hydrate"

// DefaultPrefix is written above the marker when no previous artifact exists.
const DefaultPrefix = `# LiveObjects world image.
#
# Everything above the snapshot marker is preserved across snapshots.
# Everything below it is regenerated.

`

// Indent is the indentation used inside the generated hydrate function.
const Indent = "  "

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrNoHydrate is logged when an artifact defines no hydrate function.
	ErrNoHydrate = errors.New("artifact defines no hydrate function")

	// ErrNoBackup is returned by Restore for an unknown backup number.
	ErrNoBackup = errors.New("no such backup")
)

// PersistError reports a storage failure during a snapshot or restore. It
// matches object.ErrPersistence so it propagates out of command handling.
type PersistError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

func (e *PersistError) Is(target error) bool {
	return target == object.ErrPersistence
}

// LoadError reports an artifact that could not be read or executed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Store owns one artifact path and its backups.
type Store struct {
	Path string

	mu       sync.Mutex
	checksum string
}

// NewStore returns a store for the artifact at path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Result describes a completed snapshot.
type Result struct {
	Generation int
	Path       string
	Backup     string // empty when there was no previous artifact
	Checksum   string
}

// Attach installs the store as the registry's snapshot function, so the
// "snapshot" command and registry.snapshot() write to this store.
func (s *Store) Attach(reg *object.Registry) {
	reg.SetSnapshotFunc(func(r *object.Registry) error {
		res, err := s.Snapshot(r)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.Output(), "Snapshot saved to %s (generation %d)", res.Path, res.Generation)
		if res.Backup != "" {
			fmt.Fprintf(r.Output(), "; backup at %s", res.Backup)
		}
		fmt.Fprintln(r.Output())
		return nil
	})
}

// Checksum returns the hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Changed reports whether the artifact on disk differs from the content this
// store last read or wrote. A missing artifact counts as changed only if the
// store has seen one.
func (s *Store) Changed() (bool, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return s.lastChecksum() != "", nil
	}
	if err != nil {
		return false, err
	}
	return Checksum(data) != s.lastChecksum(), nil
}

func (s *Store) lastChecksum() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checksum
}

func (s *Store) remember(data []byte) string {
	sum := Checksum(data)
	s.mu.Lock()
	s.checksum = sum
	s.mu.Unlock()
	return sum
}
