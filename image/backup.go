package image

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Backup is a numbered copy of a previous artifact.
type Backup struct {
	N    int
	Path string
}

var numericSuffix = regexp.MustCompile(`^(.+?)\.\d+$`)

// baseName returns the artifact's file name with any trailing numeric suffix
// removed, so backups of "world.star.3" are still numbered off "world.star".
func (s *Store) baseName() string {
	name := filepath.Base(s.Path)
	if m := numericSuffix.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return name
}

func (s *Store) backupPath(n int) string {
	return filepath.Join(filepath.Dir(s.Path), s.baseName()+"."+strconv.Itoa(n))
}

// Backups lists the artifact's backups in numeric order.
func (s *Store) Backups() ([]Backup, error) {
	entries, err := os.ReadDir(filepath.Dir(s.Path))
	if err != nil {
		return nil, err
	}
	prefix := s.baseName() + "."
	var backups []Backup
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		n, err := strconv.Atoi(name[len(prefix):])
		if err != nil || n < 0 || strconv.Itoa(n) != name[len(prefix):] {
			continue
		}
		backups = append(backups, Backup{N: n, Path: filepath.Join(filepath.Dir(s.Path), name)})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].N < backups[j].N })
	return backups, nil
}

// nextBackup returns the smallest non-negative number not used by a backup.
func (s *Store) nextBackup() (int, error) {
	backups, err := s.Backups()
	if err != nil {
		return 0, err
	}
	used := make(map[int]bool, len(backups))
	for _, b := range backups {
		used[b.N] = true
	}
	n := 0
	for used[n] {
		n++
	}
	return n, nil
}

func (s *Store) writeBackup(data []byte) (string, error) {
	n, err := s.nextBackup()
	if err != nil {
		return "", &PersistError{Op: "list backups", Path: filepath.Dir(s.Path), Err: err}
	}
	path := s.backupPath(n)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", &PersistError{Op: "backup", Path: path, Err: err}
	}
	return path, nil
}

// Restore replaces the artifact with backup n. The artifact being replaced
// is itself backed up first. The returned path is that new backup, or "" if
// there was no artifact. Callers rehydrate to pick up the restored world.
func (s *Store) Restore(n int) (string, error) {
	src := s.backupPath(n)
	data, err := os.ReadFile(src)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("restore %d: %w", n, ErrNoBackup)
	}
	if err != nil {
		return "", &PersistError{Op: "read", Path: src, Err: err}
	}

	var saved string
	current, err := os.ReadFile(s.Path)
	switch {
	case err == nil:
		if saved, err = s.writeBackup(current); err != nil {
			return "", err
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", &PersistError{Op: "read", Path: s.Path, Err: err}
	}

	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return "", &PersistError{Op: "restore", Path: s.Path, Err: err}
	}
	log.Infof("restored %s from backup %d", s.Path, n)
	return saved, nil
}
