// Package pager implements a small embedded document store on a file of
// fixed-size pages.
//
// Documents are field→value maps. Their encoded content is split across one
// or more pages (spans) and described by a metadata page whose page number is
// the document id. Every field of every document is indexed for equality, so
// [Pager.Query] finds documents by value without scanning.
//
// # Basic Usage
//
//	p, err := pager.OpenOrCreate("/tmp/docs.db")
//	if err != nil {
//	    // handle ErrCorrupt / ErrIncompatible / ErrBusy
//	}
//	defer p.Close()
//
//	doc, err := p.NewDocument()
//	doc.Set("name", "flora")
//	doc.Set("likes", "cats")
//	err = p.WriteDocument(doc)
//
//	cats, err := p.Query(pager.Query{
//	    Where: map[string]pager.Predicate{"likes": pager.Eq("cats")},
//	})
//
// # File Layout
//
// Page 0 holds a 300-byte header (magic, checksum, page size, high-water
// mark, free pages). Page 1 is the metadata page of the system index
// document. Every other page is either a document's metadata page or a
// content page referenced by exactly one document span.
//
// # Durability
//
// There is no write-ahead log. A write updates content pages, then the
// metadata page, then the index document, in that order. A crash or I/O
// error between those steps can leave a document's old metadata pointing at
// overwritten content, or new content with a stale index. [WritebackSync]
// shrinks that window but does not remove it.
//
// # Concurrency
//
// A Pager is safe for concurrent use within one process. Operations on the
// same document id are serialized; operations on different ids run in
// parallel. Across processes, only one Pager may open a file at a time
// (enforced with a lock file unless [Options.DisableLocking] is set).
package pager

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/calvinalkan/docpager/pkg/fs"
)

// docLockStripes is the number of mutexes serializing same-id operations.
const docLockStripes = 64

const dbFilePerm = 0o644

// Pager is an open database file.
//
// Lock ordering: closeMu → docLocks[i] → index persistMu → index mu.
// pageStore locks are leaves.
type Pager struct {
	opts   Options
	logger *slog.Logger

	file  fs.File
	lock  *fs.Lock
	store *pageStore
	index *indexManager

	// indexSpans is the span list of the system index document.
	// Guarded by index.persistMu.
	indexSpans []Span

	docLocks [docLockStripes]sync.Mutex

	// closeMu is held shared by every operation and exclusively by Close.
	closeMu sync.RWMutex
	closed  bool
}

// Stats describes the state of the page file.
type Stats struct {
	PageSize      int
	LastUsedPage  uint64
	FreePages     []uint64
	IndexedFields int
}

// OpenOrCreate opens the database at path with default options.
func OpenOrCreate(path string) (*Pager, error) {
	return Open(Options{Path: path})
}

// Open opens or creates the database file described by opts.
//
// Possible errors:
//   - [ErrInvalidInput]: empty path or unknown writeback mode
//   - [ErrBusy]: another process holds the lock file
//   - [ErrCorrupt]: magic or header checksum mismatch, damaged index document
//   - [ErrIncompatible]: file uses a different page size
//   - [ErrDecode]: malformed header or index document
//   - I/O errors from opening, reading or writing the file
func Open(opts Options) (*Pager, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("path is required: %w", ErrInvalidInput)
	}

	switch opts.Writeback {
	case WritebackNone, WritebackSync:
	default:
		return nil, fmt.Errorf("unknown writeback mode %d: %w", opts.Writeback, ErrInvalidInput)
	}

	opts = opts.withDefaults()

	p := &Pager{
		opts:   opts,
		logger: opts.Logger.With("db", opts.Path),
		index:  newIndexManager(),
	}

	if !opts.DisableLocking {
		lk, err := fs.NewLocker(opts.FS).TryLock(opts.Path + ".lock")
		if err != nil {
			if errors.Is(err, fs.ErrWouldBlock) {
				return nil, fmt.Errorf("open %q: %w", opts.Path, ErrBusy)
			}

			return nil, fmt.Errorf("acquire lock: %w", err)
		}

		p.lock = lk
	}

	err := p.init()
	if err != nil {
		return nil, errors.Join(err, p.release())
	}

	return p, nil
}

// init opens the file and loads header and index.
func (p *Pager) init() error {
	file, err := p.opts.FS.OpenFile(p.opts.Path, os.O_RDWR|os.O_CREATE, dbFilePerm)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}

	p.file = file

	store, created, err := openPageStore(file, p.logger)
	if err != nil {
		return err
	}

	p.store = store

	if !created {
		err = p.loadIndex()
		if err == nil || !errors.Is(err, ErrNotFound) {
			return err
		}

		// The header was written but the index document never made it to
		// disk. Only valid while nothing past the index page was handed out.
		if p.store.highWater() != indexPage {
			return fmt.Errorf("index document missing with pages allocated: %w", ErrCorrupt)
		}
	}

	p.index.persistMu.Lock()
	defer p.index.persistMu.Unlock()

	return p.persistIndexLocked()
}

func (p *Pager) loadIndex() error {
	p.index.persistMu.Lock()
	defer p.index.persistMu.Unlock()

	spans, content, err := p.readDocument(indexPage)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	err = p.index.load(content)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	p.indexSpans = spans

	return nil
}

// NewDocument allocates a page for a new, empty document. The document is
// not persisted until passed to [Pager.WriteDocument]; until then reading
// its id returns [ErrNotFound].
func (p *Pager) NewDocument() (*Document, error) {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		return nil, fmt.Errorf("new document: %w", ErrClosed)
	}

	page, err := p.store.allocate()
	if err != nil {
		return nil, fmt.Errorf("new document: %w", err)
	}

	return &Document{id: DocID(page), Content: make(Content)}, nil
}

// WriteDocument persists doc and updates the index.
//
// Pages of the previous version are overwritten in place; extra spans get
// newly allocated pages and spans no longer needed are freed. On success
// doc's span list reflects what is on disk. doc is not retained.
//
// See the package documentation for the write order and its durability
// limits.
func (p *Pager) WriteDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("write document: nil document: %w", ErrInvalidInput)
	}

	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		return fmt.Errorf("write document %d: %w", doc.id, ErrClosed)
	}

	id := uint64(doc.id)

	err := p.checkUserID(id)
	if err != nil {
		return fmt.Errorf("write document %d: %w", id, err)
	}

	mu := p.docLock(id)
	mu.Lock()
	defer mu.Unlock()

	prevSpans, prevContent, err := p.readDocument(id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("write document %d: read previous: %w", id, err)
	}

	spans, err := p.writeSpans(id, prevSpans, doc.Content)
	if spans == nil {
		return fmt.Errorf("write document %d: %w", id, err)
	}

	// The metadata page is on disk from here on, so the index must follow
	// it even if the header flush after a shrink failed.
	doc.spans = spans

	errs := []error{err}

	if p.index.apply(id, prevContent, doc.Content) {
		errs = append(errs, p.persistIndex())
	}

	if p.opts.Writeback == WritebackSync {
		errs = append(errs, p.store.datasync())
	}

	err = errors.Join(errs...)
	if err != nil {
		return fmt.Errorf("write document %d: %w", id, err)
	}

	return nil
}

// ReadDocument reads the current version of the document with the given id.
//
// Returns [ErrNotFound] if no document was ever written at id, and
// [ErrInvalidInput] for the reserved index document id.
func (p *Pager) ReadDocument(id DocID) (*Document, error) {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		return nil, fmt.Errorf("read document %d: %w", id, ErrClosed)
	}

	return p.readUserDocument(uint64(id))
}

// Query returns the documents matched by q, ordered by id.
//
// Matching ids come from the index and the documents are read afterwards.
// A document rewritten in between is checked again against q and left out
// if it no longer matches, so a result can hold fewer than q.Limit
// documents even when more would match.
func (p *Pager) Query(q Query) ([]*Document, error) {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		return nil, fmt.Errorf("query: %w", ErrClosed)
	}

	ids, err := q.evaluate(p.index)
	if err != nil {
		return nil, err
	}

	docs := make([]*Document, 0, len(ids))

	for _, id := range ids {
		doc, err := p.readUserDocument(id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("query: indexed document %d missing: %w", id, ErrCorrupt)
			}

			return nil, fmt.Errorf("query: %w", err)
		}

		ok, err := q.matches(doc.Content)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}

		if !ok {
			continue
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

// ForEach calls fn for every written document in id order, stopping at the
// first error fn returns.
//
// No Pager lock is held while fn runs, so fn may call other Pager methods,
// including Close; the walk then ends with [ErrClosed]. Documents created
// during the walk may or may not be visited.
func (p *Pager) ForEach(fn func(doc *Document) error) error {
	for id := firstUserPage; ; id++ {
		doc, more, err := p.visit(id)
		if err != nil {
			return fmt.Errorf("for each: %w", err)
		}

		if !more {
			return nil
		}

		if doc == nil {
			continue
		}

		err = fn(doc)
		if err != nil {
			return err
		}
	}
}

// visit reads the document at id for ForEach. more is false once id is
// past the high-water mark; doc is nil for pages that hold no document.
func (p *Pager) visit(id uint64) (doc *Document, more bool, err error) {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		return nil, false, ErrClosed
	}

	if id > p.store.highWater() {
		return nil, false, nil
	}

	doc, err = p.readUserDocument(id)
	if errors.Is(err, ErrNotFound) {
		return nil, true, nil
	}

	if err != nil {
		return nil, false, err
	}

	return doc, true, nil
}

// Stats returns a snapshot of page usage.
func (p *Pager) Stats() (Stats, error) {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		return Stats{}, fmt.Errorf("stats: %w", ErrClosed)
	}

	p.index.mu.RLock()
	fields := len(p.index.fields)
	p.index.mu.RUnlock()

	return Stats{
		PageSize:      PageSize,
		LastUsedPage:  p.store.highWater(),
		FreePages:     p.store.freeList(),
		IndexedFields: fields,
	}, nil
}

// Close flushes the header, syncs if configured and releases the file and
// lock. Subsequent calls return nil; other methods return [ErrClosed].
func (p *Pager) Close() error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	var errs []error

	err := p.store.persistHeader()
	if err != nil {
		errs = append(errs, err)
	}

	if p.opts.Writeback == WritebackSync {
		err = p.file.Sync()
		if err != nil {
			errs = append(errs, fmt.Errorf("sync: %w", err))
		}
	}

	errs = append(errs, p.release())

	return errors.Join(errs...)
}

// release closes the file and drops the lock. Safe on a partially opened
// Pager.
func (p *Pager) release() error {
	var errs []error

	if p.file != nil {
		err := p.file.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("close file: %w", err))
		}
	}

	if p.lock != nil {
		err := p.lock.Close()
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (p *Pager) readUserDocument(id uint64) (*Document, error) {
	if id == indexPage {
		return nil, fmt.Errorf("read document %d: reserved id: %w", id, ErrInvalidInput)
	}

	if id < firstUserPage || id > p.store.highWater() {
		return nil, fmt.Errorf("read document %d: %w", id, ErrNotFound)
	}

	mu := p.docLock(id)
	mu.Lock()
	defer mu.Unlock()

	spans, content, err := p.readDocument(id)
	if err != nil {
		return nil, fmt.Errorf("read document %d: %w", id, err)
	}

	return &Document{id: DocID(id), Content: content, spans: spans}, nil
}

// readDocument reads the metadata page at id and the content it describes.
func (p *Pager) readDocument(id uint64) ([]Span, Content, error) {
	page, err := p.store.readPage(id)
	if err != nil {
		return nil, nil, err
	}

	spans, err := decodeMetadata(id, page)
	if err != nil {
		return nil, nil, err
	}

	last := p.store.highWater()

	for i, span := range spans {
		if span.Page == headerPage {
			// Unallocated; readContent reports it.
			continue
		}

		if span.Page == indexPage || span.Page > last {
			return nil, nil, fmt.Errorf("span %d references page %d (last used %d): %w", i, span.Page, last, ErrCorrupt)
		}
	}

	content, err := readContent(spans, p.store.readPage)
	if err != nil {
		return nil, nil, err
	}

	return spans, content, nil
}

// writeSpans encodes content, writes its content pages and then the
// metadata page at id. prev is the span list currently on disk; its pages
// are reused in order and any it has beyond the new span count are freed.
// Returns the new span list.
//
// Once the metadata page is written the new span list is returned even on
// error; a non-nil error alongside it means freeing the trailing pages
// could not be persisted.
func (p *Pager) writeSpans(id uint64, prev []Span, content Content) ([]Span, error) {
	chunks := splitSpans(prev, encodeContent(content), spanCapacity)

	spans := make([]Span, len(chunks))
	for i, c := range chunks {
		spans[i] = c.span
	}

	if size := metadataSize(id, spans); size > PageSize {
		return nil, fmt.Errorf("%d spans need %d metadata bytes: %w", len(spans), size, ErrTooLarge)
	}

	var fresh []uint64

	for i := range spans {
		if spans[i].Allocated() {
			continue
		}

		page, err := p.store.allocate()
		if err != nil {
			p.releasePages(fresh)

			return nil, err
		}

		spans[i].Page = page
		fresh = append(fresh, page)
	}

	for i, c := range chunks {
		err := p.store.writePage(spans[i].Page, encodeContentPage(c.data))
		if err != nil {
			p.releasePages(fresh)

			return nil, err
		}

		p.logger.Debug("wrote span", "doc", id, "span", i, "page", spans[i].Page, "bytes", len(c.data))
	}

	meta, err := encodeMetadata(id, spans)
	if err != nil {
		p.releasePages(fresh)

		return nil, err
	}

	err = p.store.writePage(id, meta)
	if err != nil {
		p.releasePages(fresh)

		return nil, err
	}

	if len(prev) > len(spans) {
		for _, span := range prev[len(spans):] {
			p.store.free(span.Page)
		}

		err = p.store.persistHeader()
		if err != nil {
			return spans, err
		}
	}

	return spans, nil
}

// releasePages returns pages allocated by a write that failed before its
// metadata page referenced them.
func (p *Pager) releasePages(pages []uint64) {
	for _, page := range pages {
		p.store.free(page)
	}
}

func (p *Pager) persistIndex() error {
	p.index.persistMu.Lock()
	defer p.index.persistMu.Unlock()

	return p.persistIndexLocked()
}

// persistIndexLocked writes the index snapshot into the system index
// document. The index itself is never updated for this write. Callers hold
// index.persistMu.
func (p *Pager) persistIndexLocked() error {
	spans, err := p.writeSpans(indexPage, p.indexSpans, p.index.snapshot())
	if spans != nil {
		p.indexSpans = spans
	}

	if err != nil {
		return fmt.Errorf("persist index: %w", err)
	}

	return nil
}

func (p *Pager) checkUserID(id uint64) error {
	if id == indexPage || id == headerPage {
		return fmt.Errorf("reserved id: %w", ErrInvalidInput)
	}

	if id > p.store.highWater() {
		return fmt.Errorf("id was never allocated: %w", ErrInvalidInput)
	}

	return nil
}

func (p *Pager) docLock(id uint64) *sync.Mutex {
	return &p.docLocks[id%docLockStripes]
}
