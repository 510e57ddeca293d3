// Package lockfile provides the cross-process advisory locking and
// write-temp/fsync/rename atomic-write primitives that every durable state
// store in domainguard (pending actions, override markers, PIN state,
// audit log) builds on.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Lock wraps an advisory flock on a path, taken shared for reads and
// exclusive for writes.
type Lock struct {
	path string
	file *os.File
}

// New returns a Lock bound to path. The lock file is created alongside the
// data file it protects (path + ".lock") so the data file itself is never
// held open across unrelated operations.
func New(path string) *Lock {
	return &Lock{path: path + ".lock"}
}

// RLock takes a shared (read) lock, blocking until available.
func (l *Lock) RLock() error {
	return l.lock(syscall.LOCK_SH)
}

// WLock takes an exclusive (write) lock, blocking until available.
func (l *Lock) WLock() error {
	return l.lock(syscall.LOCK_EX)
}

// TryWLock takes an exclusive lock without blocking. It returns
// ErrWouldBlock if another process already holds it.
func (l *Lock) TryWLock() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("lockfile: open %s: %w", l.path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return ErrWouldBlock
		}
		return fmt.Errorf("lockfile: flock %s: %w", l.path, err)
	}
	l.file = f
	return nil
}

func (l *Lock) lock(how int) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("lockfile: open %s: %w", l.path, err)
	}
	if err := syscall.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		return fmt.Errorf("lockfile: flock %s: %w", l.path, err)
	}
	l.file = f
	return nil
}

// Unlock releases the lock. Safe to call even if not held.
func (l *Lock) Unlock() error {
	if l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()
	l.file = nil
	return err
}

// ErrWouldBlock is returned by TryWLock when another process holds the lock.
var ErrWouldBlock = fmt.Errorf("lockfile: already locked")

// AtomicWrite writes data to path via a temp file in the same directory,
// fsyncs it, then renames it over path. Callers must hold the matching
// exclusive Lock before calling this.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("lockfile: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("lockfile: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("lockfile: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("lockfile: close temp: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("lockfile: chmod temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("lockfile: rename: %w", err)
	}
	return nil
}

// Quarantine renames a corrupted state file out of the way so a fresh one
// can be written in its place, returning the path it was moved to.
func Quarantine(path string, suffix string) (string, error) {
	dst := path + ".bak." + suffix
	if err := os.Rename(path, dst); err != nil {
		return "", fmt.Errorf("lockfile: quarantine %s: %w", path, err)
	}
	return dst, nil
}
