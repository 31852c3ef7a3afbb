package pager

import (
	"encoding/binary"
	"fmt"
	"slices"
)

// Metadata page layout.
//
//	[0]  page tag, pageTagDocument
//	[1]  metadata format version
//	[2:] uvarint id, uvarint span count, span count × (uvarint page, uvarint size)
//
// Content pages start with pageTagContent followed by up to spanCapacity
// bytes of the document's encoded content.
const (
	pageTagDocument byte = 'D'
	pageTagContent  byte = 'C'
	metadataVersion byte = 1
	metadataPrefix       = 2

	// spanCapacity is the number of content bytes one page holds.
	spanCapacity = PageSize - 1
)

// chunk is one page-sized piece of encoded content and the span it goes to.
type chunk struct {
	span Span
	data []byte
}

// encodeContent serializes content deterministically: fields in sorted
// order, each as uvarint-prefixed name and value.
func encodeContent(c Content) []byte {
	fields := make([]string, 0, len(c))
	size := uvarintLen(uint64(len(c)))

	for field, value := range c {
		fields = append(fields, field)
		size += uvarintLen(uint64(len(field))) + len(field)
		size += uvarintLen(uint64(len(value))) + len(value)
	}

	slices.Sort(fields)

	buf := make([]byte, 0, size)
	buf = binary.AppendUvarint(buf, uint64(len(fields)))

	for _, field := range fields {
		value := c[field]
		buf = binary.AppendUvarint(buf, uint64(len(field)))
		buf = append(buf, field...)
		buf = binary.AppendUvarint(buf, uint64(len(value)))
		buf = append(buf, value...)
	}

	return buf
}

// decodeContent parses bytes produced by encodeContent. Values are copied
// out of b.
func decodeContent(b []byte) (Content, error) {
	r := uvarintReader{buf: b}

	count := r.next()
	if r.err != nil {
		return nil, fmt.Errorf("content: %w", r.err)
	}

	// Each field takes at least two bytes.
	if count > uint64(r.remaining()/2) {
		return nil, fmt.Errorf("content: field count %d exceeds %d bytes: %w", count, r.remaining(), ErrDecode)
	}

	c := make(Content, count)
	prev := ""

	for i := range count {
		name := string(r.bytes())
		value := r.bytes()

		if r.err != nil {
			return nil, fmt.Errorf("content field %d: %w", i, r.err)
		}

		if i > 0 && name <= prev {
			return nil, fmt.Errorf("content: field %q after %q: %w", name, prev, ErrDecode)
		}

		c[name] = slices.Clone(value)
		prev = name
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("content: %d trailing bytes: %w", r.remaining(), ErrDecode)
	}

	return c, nil
}

// splitSpans cuts buf into ceil(len(buf)/capacity) chunks. Chunk i reuses
// the page of prev[i] when that span is allocated; otherwise its span is
// left unallocated.
func splitSpans(prev []Span, buf []byte, capacity int) []chunk {
	chunks := make([]chunk, 0, (len(buf)+capacity-1)/capacity)

	for i := 0; i < len(buf); i += capacity {
		data := buf[i:min(i+capacity, len(buf))]
		span := Span{Size: len(data)}

		if idx := len(chunks); idx < len(prev) && prev[idx].Allocated() {
			span.Page = prev[idx].Page
		}

		chunks = append(chunks, chunk{span: span, data: data})
	}

	return chunks
}

// metadataSize returns the encoded size of a metadata page for id and
// spans. Unallocated spans are sized as the largest page number that could
// replace them.
func metadataSize(id uint64, spans []Span) int {
	size := metadataPrefix + uvarintLen(id) + uvarintLen(uint64(len(spans)))

	for _, span := range spans {
		page := span.Page
		if !span.Allocated() {
			page = 1 << 63
		}

		size += uvarintLen(page) + uvarintLen(uint64(span.Size))
	}

	return size
}

// encodeMetadata builds the metadata page for a document. Every span must be
// allocated.
func encodeMetadata(id uint64, spans []Span) ([]byte, error) {
	if size := metadataSize(id, spans); size > PageSize {
		return nil, fmt.Errorf("metadata for %d spans needs %d bytes: %w", len(spans), size, ErrTooLarge)
	}

	buf := make([]byte, 0, PageSize)
	buf = append(buf, pageTagDocument, metadataVersion)
	buf = binary.AppendUvarint(buf, id)
	buf = binary.AppendUvarint(buf, uint64(len(spans)))

	for i, span := range spans {
		invariant(span.Allocated(), "span %d of document %d unallocated at metadata write", i, id)

		buf = binary.AppendUvarint(buf, span.Page)
		buf = binary.AppendUvarint(buf, uint64(span.Size))
	}

	return buf, nil
}

// decodeMetadata parses the metadata page of document id. A page without
// the document tag was never written as metadata and yields [ErrNotFound].
func decodeMetadata(id uint64, page []byte) ([]Span, error) {
	if len(page) < metadataPrefix || page[0] != pageTagDocument {
		return nil, fmt.Errorf("page %d holds no document: %w", id, ErrNotFound)
	}

	if page[1] != metadataVersion {
		return nil, fmt.Errorf("metadata version %d on page %d: %w", page[1], id, ErrDecode)
	}

	r := uvarintReader{buf: page[metadataPrefix:]}

	storedID := r.next()
	count := r.next()

	if r.err != nil {
		return nil, fmt.Errorf("metadata page %d: %w", id, r.err)
	}

	if storedID != id {
		return nil, fmt.Errorf("metadata page %d claims id %d: %w", id, storedID, ErrCorrupt)
	}

	if count == 0 || count > uint64(r.remaining()/2) {
		return nil, fmt.Errorf("metadata page %d: span count %d: %w", id, count, ErrCorrupt)
	}

	spans := make([]Span, 0, count)
	for range count {
		pageNo := r.next()
		size := r.next()

		if r.err != nil {
			return nil, fmt.Errorf("metadata page %d spans: %w", id, r.err)
		}

		if size == 0 || size > spanCapacity {
			return nil, fmt.Errorf("metadata page %d: span size %d: %w", id, size, ErrCorrupt)
		}

		spans = append(spans, Span{Page: pageNo, Size: int(size)})
	}

	return spans, nil
}

// encodeContentPage prefixes data with the content page tag.
func encodeContentPage(data []byte) []byte {
	invariant(len(data) <= spanCapacity, "content chunk of %d bytes", len(data))

	buf := make([]byte, 1+len(data))
	buf[0] = pageTagContent
	copy(buf[1:], data)

	return buf
}

// readContent concatenates the spans' bytes and decodes them.
func readContent(spans []Span, readPage func(uint64) ([]byte, error)) (Content, error) {
	total := 0
	for _, span := range spans {
		total += span.Size
	}

	buf := make([]byte, 0, total)

	for i, span := range spans {
		invariant(span.Allocated(), "read of unallocated span %d", i)

		page, err := readPage(span.Page)
		if err != nil {
			return nil, err
		}

		if page[0] != pageTagContent {
			return nil, fmt.Errorf("span %d: page %d is not a content page: %w", i, span.Page, ErrCorrupt)
		}

		buf = append(buf, page[1:1+span.Size]...)
	}

	return decodeContent(buf)
}
