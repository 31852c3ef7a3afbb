package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func Test_Faulty_Fails_Operation_When_Budget_Spent(t *testing.T) {
	t.Parallel()

	faulty := NewFaulty(NewReal())
	path := filepath.Join(t.TempDir(), "pages.db")

	f, err := faulty.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatalf("OpenFile(%q): %v", path, err)
	}
	defer f.Close()

	faulty.FailAfter(OpWriteAt, 1)

	if _, err := f.WriteAt([]byte("first"), 0); err != nil {
		t.Fatalf("WriteAt #1: %v", err)
	}

	_, err = f.WriteAt([]byte("second"), 0)
	if !errors.Is(err, ErrInjected) {
		t.Fatalf("WriteAt #2: err=%v, want %v", err, ErrInjected)
	}

	// Reads are unaffected by a write budget.
	buf := make([]byte, 5)
	if _, err := f.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}

	if string(buf) != "first" {
		t.Fatalf("content=%q, want=%q (failed write must not reach the file)", buf, "first")
	}

	faulty.FailAfter(OpSync, 0)

	if err := f.Sync(); !errors.Is(err, ErrInjected) {
		t.Fatalf("Sync: err=%v, want %v", err, ErrInjected)
	}

	faulty.Heal()

	if _, err := f.WriteAt([]byte("third"), 0); err != nil {
		t.Fatalf("WriteAt after Heal: %v", err)
	}

	if err := f.Sync(); err != nil {
		t.Fatalf("Sync after Heal: %v", err)
	}
}

func Test_Faulty_Passes_Through_When_No_Budget_Set(t *testing.T) {
	t.Parallel()

	faulty := NewFaulty(NewReal())
	path := filepath.Join(t.TempDir(), "pages.db")

	f, err := faulty.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatalf("OpenFile(%q): %v", path, err)
	}
	defer f.Close()

	for i := range 10 {
		if _, err := f.WriteAt([]byte{byte(i)}, int64(i)); err != nil {
			t.Fatalf("WriteAt #%d: %v", i, err)
		}
	}

	exists, err := faulty.Exists(path)
	if err != nil || !exists {
		t.Fatalf("Exists(%q)=%v, %v; want true, nil", path, exists, err)
	}
}
