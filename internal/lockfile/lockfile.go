// Package lockfile guards a state directory so only one AfyaLink gateway
// writes its SQLite receipts ledger at a time.
//
// The lock is an flock on a file in the directory; the kernel drops it when
// the process exits, so a crash never leaves the directory locked.
package lockfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LockFileName is the lock file created in the state directory.
const LockFileName = "afyalink.lock"

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive, non-blocking lock on dir, creating it if needed.
// When another gateway holds the lock the error is a *HeldError.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, LockFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		held := &HeldError{Path: path, Owner: ownerOf(path), Cause: err}
		slog.Error("lockfile.Acquire: state directory in use", "path", path, "owner", held.Owner)
		return nil, held
	}

	// Truncate only once the lock is ours so a failed attempt keeps the owner's pid.
	if err := file.Truncate(0); err == nil {
		_, err = file.WriteString("pid=" + strconv.Itoa(os.Getpid()) + "\n")
		if err != nil {
			slog.Warn("lockfile.Acquire: failed to record pid", "path", path, "error", err)
		}
	}
	slog.Debug("lockfile.Acquire: lock held", "path", path, "pid", os.Getpid())
	return &Lock{file: file, path: path}, nil
}

// Release drops the lock and removes the lock file. It is safe to call twice.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	var errs []error
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		errs = append(errs, fmt.Errorf("unlock: %w", err))
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove: %w", err))
	}
	l.file = nil
	slog.Debug("lockfile.Release: lock released", "path", l.path)
	return errors.Join(errs...)
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// HeldError reports that another process holds the state directory lock.
type HeldError struct {
	Path  string
	Owner string
	Cause error
}

func (e *HeldError) Error() string {
	msg := "another AfyaLink gateway is using this state directory (lock file " + e.Path
	if e.Owner != "" {
		msg += ", " + e.Owner
	}
	return msg + "); stop it or choose a different -state-dir"
}

func (e *HeldError) Unwrap() error { return e.Cause }

// ownerOf describes the pid recorded in the lock file, if any.
func ownerOf(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	pid := parsePID(string(data))
	if pid <= 0 {
		return ""
	}
	if processAlive(pid) {
		return fmt.Sprintf("held by pid %d", pid)
	}
	return fmt.Sprintf("pid %d is not running", pid)
}

// parsePID reads the number after "pid=". It returns 0 when there is none.
func parsePID(content string) int {
	_, rest, ok := strings.Cut(content, "pid=")
	if !ok {
		return 0
	}
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end >= 0 {
		rest = rest[:end]
	}
	pid, err := strconv.Atoi(rest)
	if err != nil {
		return 0
	}
	return pid
}

// processAlive checks pid with signal 0.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
