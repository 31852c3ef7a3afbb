// Package fs provides filesystem abstractions for the pager and its tools.
//
// The main types are:
//   - [FS]: interface for filesystem operations
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using [os] package
//   - [Faulty]: testing implementation that fails selected file operations
//   - [Locker]: flock(2) based advisory locks on lock files
//
// Example usage:
//
//	fsys := fs.NewReal()
//	f, err := fsys.OpenFile("data.db", os.O_RDWR|os.O_CREATE, 0o644)
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
//	page := make([]byte, 4096)
//	_, err = f.ReadAt(page, 2*4096)
package fs

import (
	"io"
	"os"
)

// File represents an OS-backed open file descriptor.
//
// This interface is satisfied by [os.File]. Positional reads and writes
// ([io.ReaderAt], [io.WriterAt]) are the primary access path for page I/O;
// they do not move the file offset and are safe for concurrent use.
//
// [File.Fd] must return a valid OS file descriptor usable with syscalls
// (for example [syscall.Flock] or fdatasync) until the file is closed.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type File interface {
	io.ReadWriteCloser
	io.Seeker
	io.ReaderAt
	io.WriterAt

	// Fd returns the file descriptor. See [os.File.Fd].
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error
}

// FS defines the filesystem operations used by the pager, its lock files and
// the command line tools.
//
// All methods mirror their [os] package equivalents but can be intercepted
// for testing with fault injection.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type FS interface {
	// OpenFile opens a file with specified flags and permissions. See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// WriteFileAtomic replaces the file at path with data so that readers
	// see either the old or the new content, never a partial write.
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)
}

// Compile-time interface checks.
var _ File = (*os.File)(nil)
