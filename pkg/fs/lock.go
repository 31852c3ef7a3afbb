package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

var (
	// ErrWouldBlock is returned by [Locker.TryLock] when another process
	// holds the lock.
	ErrWouldBlock = errors.New("lock would block")

	// errInodeMismatch indicates the lock file was replaced between open and
	// flock. Callers retry.
	errInodeMismatch = errors.New("inode mismatch")
)

const (
	lockFilePerm = 0o600
	lockDirPerm  = 0o755

	// maxReplaceRetries caps how often acquisition restarts because the lock
	// file was swapped underneath us.
	maxReplaceRetries = 100
)

// Locker provides exclusive advisory file locks using flock(2).
//
// flock applies to an inode, not a pathname. Locker verifies after locking
// that the locked descriptor still refers to the file at path and retries if
// it was replaced in between. Do not unlink or replace lock files while locks
// may be held.
//
// This implementation is Unix-only. Custom [FS]/[File] implementations must
// provide a real descriptor via [File.Fd] and [os.FileInfo] values whose Sys()
// is a *syscall.Stat_t.
type Locker struct {
	fs    FS
	flock func(fd int, how int) error
}

// NewLocker creates a Locker that uses the given filesystem for file operations.
func NewLocker(fs FS) *Locker {
	return &Locker{
		fs:    fs,
		flock: syscall.Flock,
	}
}

// Lock represents a held file lock. Call [Lock.Close] to release it.
type Lock struct {
	mu    sync.Mutex
	file  File
	flock func(fd int, how int) error
}

// Close releases the lock and closes the underlying file descriptor.
//
// Close is idempotent; subsequent calls return nil. If both unlocking and
// closing fail, the returned error wraps both.
func (lk *Lock) Close() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	unlockErr := flockRetryEINTR(lk.flock, int(lk.file.Fd()), syscall.LOCK_UN)
	closeErr := lk.file.Close()
	lk.file = nil

	if unlockErr != nil {
		unlockErr = fmt.Errorf("unlocking lock: %w", unlockErr)
	}

	if closeErr != nil {
		closeErr = fmt.Errorf("closing lock fd: %w", closeErr)
	}

	return errors.Join(unlockErr, closeErr)
}

// TryLock attempts to acquire an exclusive lock on path without blocking.
//
// The lock file and its parent directories are created if missing. Returns
// [ErrWouldBlock] if another open file description holds the lock.
func (l *Locker) TryLock(path string) (*Lock, error) {
	return l.acquireLoop(path, syscall.LOCK_EX|syscall.LOCK_NB)
}

// Lock acquires an exclusive lock on path, blocking until it is available.
func (l *Locker) Lock(path string) (*Lock, error) {
	return l.acquireLoop(path, syscall.LOCK_EX)
}

func (l *Locker) acquireLoop(path string, how int) (*Lock, error) {
	for range maxReplaceRetries {
		file, err := l.openLockFile(path)
		if err != nil {
			return nil, fmt.Errorf("opening lockfile: %w", err)
		}

		err = l.acquire(file, path, how)
		if err == nil {
			return &Lock{file: file, flock: l.flock}, nil
		}

		_ = file.Close()

		if !errors.Is(err, errInodeMismatch) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: lock file %q kept being replaced", ErrWouldBlock, path)
}

// acquire flocks file and verifies the inode still matches path. On failure
// the file is unlocked (if needed) but NOT closed.
func (l *Locker) acquire(file File, path string, how int) error {
	fd := int(file.Fd())

	err := flockRetryEINTR(l.flock, fd, how)
	if err != nil {
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return ErrWouldBlock
		}

		return fmt.Errorf("flock: %w", err)
	}

	match, err := l.inodeMatchesPath(path, file)
	if err != nil || !match {
		_ = flockRetryEINTR(l.flock, fd, syscall.LOCK_UN)

		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("verifying inode match: %w", err)
		}

		return errInodeMismatch
	}

	return nil
}

func (l *Locker) openLockFile(path string) (File, error) {
	f, err := l.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return f, err
	}

	err = l.fs.MkdirAll(filepath.Dir(path), lockDirPerm)
	if err != nil {
		return nil, err
	}

	return l.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm)
}

// inodeMatchesPath compares (dev, inode) of the open descriptor to the file
// currently at path.
func (l *Locker) inodeMatchesPath(path string, f File) (bool, error) {
	openInfo, err := f.Stat()
	if err != nil {
		return false, err
	}

	openSys, ok := openInfo.Sys().(*syscall.Stat_t)
	if !ok || openSys == nil {
		return false, fmt.Errorf("file.Stat Sys=%T, want *syscall.Stat_t", openInfo.Sys())
	}

	pathInfo, err := l.fs.Stat(path)
	if err != nil {
		return false, err
	}

	pathSys, ok := pathInfo.Sys().(*syscall.Stat_t)
	if !ok || pathSys == nil {
		return false, fmt.Errorf("fs.Stat Sys=%T, want *syscall.Stat_t", pathInfo.Sys())
	}

	return openSys.Dev == pathSys.Dev && openSys.Ino == pathSys.Ino, nil
}

// flockRetryEINTR wraps flock, retrying when a signal interrupts the call.
func flockRetryEINTR(flock func(fd int, how int) error, fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for range maxEINTRRetries {
		err = flock(fd, how)
		if err == nil || !errors.Is(err, syscall.EINTR) {
			return err
		}
	}

	return err
}
