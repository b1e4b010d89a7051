// Package lockfile guards the state directory with a flock-backed lock so two
// bot processes never share one WhatsApp session database. The kernel drops
// the lock when the holder exits, so a crash never leaves the directory
// locked even though the file itself may linger.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// FileName is the lock file created inside the state directory.
const FileName = "present-agent.lock"

// Lock holds an exclusive flock on the state directory until released.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive non-blocking lock on dir, creating it first if
// needed. When another process already holds the lock the returned error is
// a *HeldError describing the holder.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating state directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		held := &HeldError{Path: path, Holder: describeHolder(path), Err: err}
		slog.Error("Lock.Acquire: state directory already locked", "error", err, "path", path, "holder", held.Holder)
		return nil, held
	}

	// Record our pid for the holder description of a later contender.
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("writing pid to lock file %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		slog.Warn("Lock.Acquire: could not sync lock file", "error", err, "path", path)
	}

	slog.Debug("Lock.Acquire: locked state directory", "path", path, "pid", os.Getpid())
	return &Lock{file: f, path: path}, nil
}

// Release drops the lock and removes the file. Safe to call more than once.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("Lock.Release: unlock failed", "error", err, "path", l.path)
	}
	if err := l.file.Close(); err != nil {
		slog.Error("Lock.Release: close failed", "error", err, "path", l.path)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lock.Release: could not remove lock file", "error", err, "path", l.path)
	}
	l.file = nil
	slog.Debug("Lock.Release: released state directory lock", "path", l.path)
	return nil
}

// HeldError reports that another process holds the state directory lock.
type HeldError struct {
	Path   string
	Holder string
	Err    error
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("state directory locked by %s (lock file %s); remove the file only if that process is gone", e.Holder, e.Path)
}

func (e *HeldError) Unwrap() error { return e.Err }

// describeHolder reads the holder's pid out of the lock file and reports
// whether that process is still alive. Best effort only.
func describeHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "an unknown process"
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return "an unknown process"
	}
	if processAlive(pid) {
		return fmt.Sprintf("pid %d", pid)
	}
	return fmt.Sprintf("pid %d (no longer running)", pid)
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence without delivering anything.
	return p.Signal(syscall.Signal(0)) == nil
}
