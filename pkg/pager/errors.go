package pager

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by pager operations.
//
// Callers should use [errors.Is] to check error types:
//
//	doc, err := p.ReadDocument(id)
//	if errors.Is(err, pager.ErrNotFound) {
//	    // id was never written
//	}
//
// I/O failures from the underlying file are wrapped with context and can be
// matched with [errors.Is] against their original values (for example
// [os.ErrClosed] or a [syscall.Errno]).
var (
	// ErrCorrupt indicates the database file is damaged.
	//
	// Returned when the magic bytes or header checksum do not match, or when
	// metadata references pages or sizes that cannot be valid.
	//
	// Recovery: none. The file must be restored from elsewhere.
	ErrCorrupt = errors.New("pager: corrupt")

	// ErrIncompatible indicates the file was written with a different page size.
	ErrIncompatible = errors.New("pager: incompatible")

	// ErrDecode indicates malformed bytes in a header, metadata page or
	// document content.
	ErrDecode = errors.New("pager: decode")

	// ErrNotFound indicates the requested document was never written.
	ErrNotFound = errors.New("pager: not found")

	// ErrTooLarge indicates a document needs more spans than its metadata
	// page can describe.
	ErrTooLarge = errors.New("pager: document too large")

	// ErrInvalidInput indicates invalid arguments were provided.
	//
	// Common causes: nil document, reserved document id, unsupported value
	// type, empty query.
	//
	// This is a programming error.
	ErrInvalidInput = errors.New("pager: invalid input")

	// ErrBusy indicates another process holds the database lock.
	//
	// Recovery: retry after the other process closes the database.
	ErrBusy = errors.New("pager: busy")

	// ErrClosed indicates the [Pager] has already been closed.
	//
	// This is a programming error.
	ErrClosed = errors.New("pager: closed")
)

// invariant panics when a condition that persistence guarantees does not
// hold. These are logic defects, not recoverable input errors.
func invariant(cond bool, format string, args ...any) {
	if cond {
		return
	}

	panic("pager: invariant violated: " + fmt.Sprintf(format, args...))
}
