package fs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

func Test_Locker_TryLock_Returns_ErrWouldBlock_When_Path_Is_Locked(t *testing.T) {
	t.Parallel()

	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "docs.db.lock")

	lock1, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("TryLock(%q): %v", path, err)
	}
	t.Cleanup(func() { _ = lock1.Close() })

	lock2, err := locker.TryLock(path)
	if !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("TryLock(%q) while locked: err=%v, want %v", path, err, ErrWouldBlock)
	}
	if lock2 != nil {
		_ = lock2.Close()
		t.Fatalf("TryLock(%q) while locked: want lock=nil, got non-nil", path)
	}

	if err := lock1.Close(); err != nil {
		t.Fatalf("Close(): %v", err)
	}

	lock3, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("TryLock(%q) after release: %v", path, err)
	}
	if err := lock3.Close(); err != nil {
		t.Fatalf("Close(): %v", err)
	}
}

func Test_Locker_TryLock_Creates_Parent_Directories_When_Missing(t *testing.T) {
	t.Parallel()

	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "a", "b", "docs.db.lock")

	lock, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("TryLock(%q): %v", path, err)
	}
	defer lock.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Stat(%q): %v", path, err)
	}
}

func Test_Locker_Lock_Blocks_Until_Holder_Releases(t *testing.T) {
	t.Parallel()

	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "docs.db.lock")

	held, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock(%q): %v", path, err)
	}

	acquired := make(chan error, 1)

	go func() {
		lock, err := locker.Lock(path)
		if err == nil {
			err = lock.Close()
		}
		acquired <- err
	}()

	select {
	case err := <-acquired:
		t.Fatalf("Lock(%q) returned while held: err=%v", path, err)
	case <-time.After(50 * time.Millisecond):
	}

	if err := held.Close(); err != nil {
		t.Fatalf("Close(): %v", err)
	}

	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("Lock(%q) after release: %v", path, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Lock(%q) still blocked after release", path)
	}
}

func Test_Locker_Locks_Do_Not_Interfere_Across_Paths(t *testing.T) {
	t.Parallel()

	locker := NewLocker(NewReal())
	dir := t.TempDir()
	path1 := filepath.Join(dir, "one.db.lock")
	path2 := filepath.Join(dir, "two.db.lock")

	l1, err := locker.Lock(path1)
	if err != nil {
		t.Fatalf("Lock(%q): %v", path1, err)
	}
	t.Cleanup(func() { _ = l1.Close() })

	l2, err := locker.TryLock(path2)
	if err != nil {
		t.Fatalf("TryLock(%q) while holding %q: %v", path2, path1, err)
	}
	if err := l2.Close(); err != nil {
		t.Fatalf("Close(): %v", err)
	}
}

func Test_Lock_Close_Is_Idempotent(t *testing.T) {
	t.Parallel()

	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "docs.db.lock")

	lock, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("TryLock(%q): %v", path, err)
	}

	if err := lock.Close(); err != nil {
		t.Fatalf("Close(): %v", err)
	}
	if err := lock.Close(); err != nil {
		t.Fatalf("Close() second: %v", err)
	}
}

func Test_Locker_TryLock_Returns_ErrWouldBlock_When_Flock_WouldBlock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{name: "EWOULDBLOCK", err: syscall.EWOULDBLOCK},
		{name: "EAGAIN", err: syscall.EAGAIN},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			locker := NewLocker(stubLockFS{
				openFile: func(string, int, os.FileMode) (File, error) {
					return &stubLockFile{fd: 123}, nil
				},
			})
			locker.flock = func(int, int) error { return tt.err }

			lock, err := locker.TryLock("lock")
			if !errors.Is(err, ErrWouldBlock) {
				t.Fatalf("TryLock(): err=%v, want %v", err, ErrWouldBlock)
			}
			if lock != nil {
				_ = lock.Close()
				t.Fatalf("TryLock(): want lock=nil, got non-nil")
			}
		})
	}
}

func Test_Locker_TryLock_Returns_ErrWouldBlock_When_LockFile_Kept_Being_Replaced(t *testing.T) {
	t.Parallel()

	openInfo := &syscall.Stat_t{Dev: 1, Ino: 1}
	pathInfo := &syscall.Stat_t{Dev: 1, Ino: 2}

	locker := NewLocker(stubLockFS{
		openFile: func(string, int, os.FileMode) (File, error) {
			return &stubLockFile{
				fd: 123,
				stat: func() (os.FileInfo, error) {
					return stubFileInfo{sys: openInfo}, nil
				},
			}, nil
		},
		stat: func(string) (os.FileInfo, error) {
			return stubFileInfo{sys: pathInfo}, nil
		},
	})
	locker.flock = func(int, int) error { return nil }

	_, err := locker.TryLock("lock")
	if !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("TryLock(): err=%v, want %v", err, ErrWouldBlock)
	}
	if !strings.Contains(err.Error(), "kept being replaced") {
		t.Fatalf("TryLock(): err=%q, want substring %q", err.Error(), "kept being replaced")
	}
}

func Test_Locker_Lock_Retries_When_LockFile_Was_Replaced_During_Acquire(t *testing.T) {
	t.Parallel()

	open1 := &syscall.Stat_t{Dev: 1, Ino: 1}
	open2 := &syscall.Stat_t{Dev: 1, Ino: 2}
	pathInfo := &syscall.Stat_t{Dev: 1, Ino: 2}

	var openCalls int

	locker := NewLocker(stubLockFS{
		openFile: func(string, int, os.FileMode) (File, error) {
			openCalls++

			info := open2
			if openCalls == 1 {
				info = open1
			}

			return &stubLockFile{
				fd: uintptr(100 + openCalls),
				stat: func() (os.FileInfo, error) {
					return stubFileInfo{sys: info}, nil
				},
			}, nil
		},
		stat: func(string) (os.FileInfo, error) {
			return stubFileInfo{sys: pathInfo}, nil
		},
	})
	locker.flock = func(int, int) error { return nil }

	lock, err := locker.Lock("lock")
	if err != nil {
		t.Fatalf("Lock(): %v", err)
	}
	t.Cleanup(func() { _ = lock.Close() })

	if openCalls != 2 {
		t.Fatalf("Lock(): want 2 open attempts, got %d", openCalls)
	}
}

type stubLockFS struct {
	openFile func(path string, flag int, perm os.FileMode) (File, error)
	stat     func(path string) (os.FileInfo, error)
}

func (s stubLockFS) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return s.openFile(path, flag, perm)
}

func (s stubLockFS) Stat(path string) (os.FileInfo, error) {
	if s.stat == nil {
		return nil, errors.New("stubLockFS.Stat: not configured")
	}

	return s.stat(path)
}

func (s stubLockFS) ReadFile(string) ([]byte, error) { panic("stubLockFS.ReadFile: not implemented") }
func (s stubLockFS) WriteFileAtomic(string, []byte, os.FileMode) error {
	panic("stubLockFS.WriteFileAtomic: not implemented")
}
func (s stubLockFS) MkdirAll(string, os.FileMode) error { panic("stubLockFS.MkdirAll: not implemented") }
func (s stubLockFS) Exists(string) (bool, error)       { panic("stubLockFS.Exists: not implemented") }

type stubLockFile struct {
	fd   uintptr
	stat func() (os.FileInfo, error)
}

func (f *stubLockFile) Read([]byte) (int, error)           { return 0, errors.New("not implemented") }
func (f *stubLockFile) Write([]byte) (int, error)          { return 0, errors.New("not implemented") }
func (f *stubLockFile) ReadAt([]byte, int64) (int, error)  { return 0, errors.New("not implemented") }
func (f *stubLockFile) WriteAt([]byte, int64) (int, error) { return 0, errors.New("not implemented") }
func (f *stubLockFile) Seek(int64, int) (int64, error)     { return 0, errors.New("not implemented") }
func (f *stubLockFile) Close() error                       { return nil }
func (f *stubLockFile) Fd() uintptr                        { return f.fd }
func (f *stubLockFile) Sync() error                        { return nil }

func (f *stubLockFile) Stat() (os.FileInfo, error) {
	if f.stat == nil {
		return nil, errors.New("stubLockFile.Stat: not configured")
	}

	return f.stat()
}

type stubFileInfo struct {
	sys any
}

func (fi stubFileInfo) Name() string       { return "lock" }
func (fi stubFileInfo) Size() int64        { return 0 }
func (fi stubFileInfo) Mode() os.FileMode  { return 0o600 }
func (fi stubFileInfo) ModTime() time.Time { return time.Time{} }
func (fi stubFileInfo) IsDir() bool        { return false }
func (fi stubFileInfo) Sys() any           { return fi.sys }
