package pager

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/calvinalkan/docpager/pkg/fs"
)

// Locking architecture
//
//  1. headerMu: serializes snapshot+write of page 0 so an older snapshot
//     can never overwrite a newer one.
//
//  2. freeMu: guards the free-page stack.
//
//  3. hwMu: guards the high-water mark.
//
// freeMu and hwMu are leaves and never held together. headerMu is taken
// before either of them, only inside persistHeader.

// pageStore performs fixed-size page I/O on the database file and owns the
// header: free-page stack and high-water mark.
type pageStore struct {
	file   fs.File
	logger *slog.Logger

	headerMu sync.Mutex

	freeMu    sync.Mutex
	freePages []uint64

	hwMu     sync.Mutex
	lastUsed uint64
}

// openPageStore initializes a fresh header if file is empty, otherwise
// validates and loads the existing one.
//
// created reports whether a new header was written.
func openPageStore(file fs.File, logger *slog.Logger) (*pageStore, bool, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, false, fmt.Errorf("stat: %w", err)
	}

	s := &pageStore{file: file, logger: logger}

	if info.Size() == 0 {
		s.lastUsed = indexPage

		err = s.persistHeader()
		if err != nil {
			return nil, false, err
		}

		logger.Debug("initialized header", "page_size", PageSize, "last_used_page", s.lastUsed)

		return s, true, nil
	}

	// Check the magic before reading anything else.
	var gotMagic [len(magic)]byte

	_, err = file.ReadAt(gotMagic[:], offMagic)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, false, fmt.Errorf("file shorter than magic: %w", ErrCorrupt)
		}

		return nil, false, fmt.Errorf("read magic: %w", err)
	}

	if !bytes.Equal(gotMagic[:], magic[:]) {
		return nil, false, fmt.Errorf("magic %x, want %x: %w", gotMagic, magic, ErrCorrupt)
	}

	buf := make([]byte, HeaderSize)

	_, err = file.ReadAt(buf, 0)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, false, fmt.Errorf("file shorter than header: %w", ErrCorrupt)
		}

		return nil, false, fmt.Errorf("read header: %w", err)
	}

	h, err := decodeHeader(buf)
	if err != nil {
		return nil, false, err
	}

	if h.PageSize != PageSize {
		return nil, false, fmt.Errorf("page size %d, want %d: %w", h.PageSize, PageSize, ErrIncompatible)
	}

	s.freePages = h.FreePages
	s.lastUsed = h.LastUsedPage

	logger.Debug("loaded header", "last_used_page", s.lastUsed, "free_pages", len(s.freePages))

	return s, false, nil
}

// allocate returns a page number no other caller holds. Freed pages are
// reused most-recent-first before the high-water mark grows. The header is
// persisted before returning.
func (s *pageStore) allocate() (uint64, error) {
	page, reused := s.popFree()
	if !reused {
		s.hwMu.Lock()
		s.lastUsed++
		page = s.lastUsed
		s.hwMu.Unlock()
	}

	err := s.persistHeader()
	if err != nil {
		if reused {
			s.free(page)
		}

		return 0, err
	}

	s.logger.Debug("allocated page", "page", page, "reused", reused)

	return page, nil
}

func (s *pageStore) popFree() (uint64, bool) {
	s.freeMu.Lock()
	defer s.freeMu.Unlock()

	n := len(s.freePages)
	if n == 0 {
		return 0, false
	}

	page := s.freePages[n-1]
	s.freePages = s.freePages[:n-1]

	return page, true
}

// free makes page available for reuse. The header is not flushed here.
func (s *pageStore) free(page uint64) {
	invariant(page >= firstUserPage, "freeing reserved page %d", page)

	s.freeMu.Lock()
	s.freePages = append(s.freePages, page)
	s.freeMu.Unlock()

	s.logger.Debug("freed page", "page", page)
}

// persistHeader writes the current free list and high-water mark to page 0.
func (s *pageStore) persistHeader() error {
	s.headerMu.Lock()
	defer s.headerMu.Unlock()

	h := header{PageSize: PageSize}

	s.freeMu.Lock()
	h.FreePages = append([]uint64(nil), s.freePages...)
	s.freeMu.Unlock()

	s.hwMu.Lock()
	h.LastUsedPage = s.lastUsed
	s.hwMu.Unlock()

	buf, dropped := encodeHeader(h)
	if dropped > 0 {
		s.logger.Warn("free list exceeds header capacity, oldest entries not persisted",
			"dropped", dropped, "free_pages", len(h.FreePages))
	}

	_, err := s.file.WriteAt(buf, 0)
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	return nil
}

// readPage reads page n. Pages past the end of the file read as zeros.
func (s *pageStore) readPage(n uint64) ([]byte, error) {
	buf := make([]byte, PageSize)

	read, err := s.file.ReadAt(buf, pageOffset(n))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read page %d: %w", n, err)
	}

	clear(buf[read:])

	return buf, nil
}

// writePage writes data at the start of page n, zero-padding it to PageSize.
func (s *pageStore) writePage(n uint64, data []byte) error {
	invariant(n != headerPage, "page write to header page")
	invariant(len(data) <= PageSize, "page write of %d bytes", len(data))

	buf := data
	if len(buf) < PageSize {
		buf = make([]byte, PageSize)
		copy(buf, data)
	}

	_, err := s.file.WriteAt(buf, pageOffset(n))
	if err != nil {
		return fmt.Errorf("write page %d: %w", n, err)
	}

	return nil
}

// highWater returns the largest page number ever handed out.
func (s *pageStore) highWater() uint64 {
	s.hwMu.Lock()
	defer s.hwMu.Unlock()

	return s.lastUsed
}

// freeList returns a copy of the free stack, oldest first.
func (s *pageStore) freeList() []uint64 {
	s.freeMu.Lock()
	defer s.freeMu.Unlock()

	return append([]uint64(nil), s.freePages...)
}

// datasync flushes written pages to stable storage.
func (s *pageStore) datasync() error {
	err := unix.Fdatasync(int(s.file.Fd()))
	if err != nil {
		return fmt.Errorf("fdatasync: %w", err)
	}

	return nil
}

func pageOffset(n uint64) int64 {
	return int64(n) * PageSize
}
