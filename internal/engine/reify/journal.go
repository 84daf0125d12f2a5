package reify

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"go.trai.ch/zerr"
)

type opKind int

const (
	opCreate opKind = iota
	opMove
)

type op struct {
	kind   opKind
	path   string
	backup string
}

// journal records every filesystem mutation of a reify so it can be undone.
// Entries that are replaced or deleted are moved into the backup directory
// instead of being removed, until the journal is committed.
type journal struct {
	backupDir string

	mu     sync.Mutex
	ops    []op
	seq    int
	backup bool
}

func newJournal(backupDir string) *journal {
	return &journal{backupDir: backupDir}
}

// mkdirAll creates dir and its missing parents, recording each created level.
func (j *journal) mkdirAll(dir string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.mkdirAllLocked(dir)
}

func (j *journal) mkdirAllLocked(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return zerr.With(zerr.New("not a directory"), "path", dir)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return zerr.With(zerr.Wrap(err, "failed to stat directory"), "path", dir)
	}
	if parent := filepath.Dir(dir); parent != dir {
		if err := j.mkdirAllLocked(parent); err != nil {
			return err
		}
	}
	if err := os.Mkdir(dir, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return zerr.With(zerr.Wrap(err, "failed to create directory"), "path", dir)
	}
	j.ops = append(j.ops, op{kind: opCreate, path: dir})
	return nil
}

// created records a path written by the reify.
func (j *journal) created(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ops = append(j.ops, op{kind: opCreate, path: path})
}

// moveAside moves path into the backup directory. A missing path is not an error.
func (j *journal) moveAside(path string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if !j.backup {
		if err := j.mkdirAllLocked(j.backupDir); err != nil {
			return err
		}
		j.backup = true
	}

	j.seq++
	backup := filepath.Join(j.backupDir, strconv.Itoa(j.seq))
	if err := os.Rename(path, backup); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to move entry aside"), "path", path)
	}
	j.ops = append(j.ops, op{kind: opMove, path: path, backup: backup})
	return nil
}

// rollback undoes the recorded operations in reverse order. It keeps going
// after a failure and returns every failure joined.
func (j *journal) rollback() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var errs error
	for i := len(j.ops) - 1; i >= 0; i-- {
		o := j.ops[i]
		switch o.kind {
		case opCreate:
			if err := os.RemoveAll(o.path); err != nil {
				errs = errors.Join(errs, zerr.With(zerr.Wrap(err, "failed to remove added entry"), "path", o.path))
			}
		case opMove:
			if err := os.RemoveAll(o.path); err != nil {
				errs = errors.Join(errs, zerr.With(zerr.Wrap(err, "failed to clear restore target"), "path", o.path))
				continue
			}
			if err := os.Rename(o.backup, o.path); err != nil {
				errs = errors.Join(errs, zerr.With(zerr.Wrap(err, "failed to restore entry"), "path", o.path))
			}
		}
	}
	j.ops = nil
	return errs
}

// commit discards the backups.
func (j *journal) commit() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ops = nil
	if !j.backup {
		return nil
	}
	j.backup = false
	if err := os.RemoveAll(j.backupDir); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to remove backups"), "path", j.backupDir)
	}
	return nil
}
