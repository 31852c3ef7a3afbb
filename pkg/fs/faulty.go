package fs

import (
	"errors"
	"os"
	"sync"
)

// ErrInjected is the error returned by operations that [Faulty] fails.
var ErrInjected = errors.New("injected fault")

// Op names a file operation that [Faulty] can fail.
type Op int

const (
	OpReadAt Op = iota + 1
	OpWriteAt
	OpSync
)

// Faulty wraps another [FS] and fails file operations on demand.
//
// Files opened through Faulty count their positional reads and writes
// against shared budgets. Once a budget set with [Faulty.FailAfter] is spent,
// every further call of that kind returns an error wrapping [ErrInjected]
// without touching the underlying file.
//
// Faulty is intended for tests that check error propagation.
type Faulty struct {
	FS

	mu     sync.Mutex
	budget map[Op]int
}

// NewFaulty wraps inner. With no budgets set, all operations pass through.
func NewFaulty(inner FS) *Faulty {
	return &Faulty{FS: inner, budget: make(map[Op]int)}
}

// FailAfter lets n more calls of op succeed, then fails the rest.
// n == 0 fails the next call.
func (f *Faulty) FailAfter(op Op, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.budget[op] = n
}

// Heal removes every budget.
func (f *Faulty) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()

	clear(f.budget)
}

// OpenFile opens the file through the wrapped FS and instruments it.
func (f *Faulty) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &faultyFile{File: file, owner: f, path: path}, nil
}

// spend reports whether a call of op may proceed.
func (f *Faulty) spend(op Op) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, limited := f.budget[op]
	if !limited {
		return true
	}

	if n <= 0 {
		return false
	}

	f.budget[op] = n - 1

	return true
}

type faultyFile struct {
	File

	owner *Faulty
	path  string
}

func (ff *faultyFile) ReadAt(p []byte, off int64) (int, error) {
	if !ff.owner.spend(OpReadAt) {
		return 0, &os.PathError{Op: "read", Path: ff.path, Err: ErrInjected}
	}

	return ff.File.ReadAt(p, off)
}

func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	if !ff.owner.spend(OpWriteAt) {
		return 0, &os.PathError{Op: "write", Path: ff.path, Err: ErrInjected}
	}

	return ff.File.WriteAt(p, off)
}

func (ff *faultyFile) Sync() error {
	if !ff.owner.spend(OpSync) {
		return &os.PathError{Op: "sync", Path: ff.path, Err: ErrInjected}
	}

	return ff.File.Sync()
}

// Compile-time interface check.
var _ FS = (*Faulty)(nil)
