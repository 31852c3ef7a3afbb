package pager

import (
	"fmt"
	"maps"
	"slices"
)

// DocID identifies a document. It is the page number of the document's
// metadata page.
type DocID uint64

// Span maps one contiguous chunk of a document's encoded content to a page.
//
// A span with Page == 0 still needs a page; page 0 holds the header and can
// never back content. Size is the number of content bytes stored at the
// start of the page.
type Span struct {
	Page uint64
	Size int
}

// Allocated reports whether the span has been assigned a page.
func (s Span) Allocated() bool {
	return s.Page != 0
}

// Content maps field names to encoded values (see [EncodeValue]).
type Content map[string][]byte

// Document is a field→value map persisted across one or more pages.
//
// A Document is owned by the caller. [Pager.WriteDocument] does not retain
// it; it only updates the span list so a later rewrite of the same Document
// overwrites its pages in place.
type Document struct {
	id      DocID
	Content Content
	spans   []Span
}

// ID returns the document id.
func (d *Document) ID() DocID {
	return d.id
}

// Spans returns a copy of the document's current span list.
func (d *Document) Spans() []Span {
	return slices.Clone(d.spans)
}

// Set encodes v with [EncodeValue] and stores it under field.
func (d *Document) Set(field string, v any) error {
	enc, err := EncodeValue(v)
	if err != nil {
		return fmt.Errorf("set %q: %w", field, err)
	}

	if d.Content == nil {
		d.Content = make(Content)
	}

	d.Content[field] = enc

	return nil
}

// Get decodes the value stored under field. found is false if the field is
// not set.
func (d *Document) Get(field string) (v any, found bool, err error) {
	raw, ok := d.Content[field]
	if !ok {
		return nil, false, nil
	}

	v, err = DecodeValue(raw)
	if err != nil {
		return nil, true, fmt.Errorf("get %q: %w", field, err)
	}

	return v, true, nil
}

// Delete removes field from the document content.
func (d *Document) Delete(field string) {
	delete(d.Content, field)
}

// Fields returns the set field names in sorted order.
func (d *Document) Fields() []string {
	return slices.Sorted(maps.Keys(d.Content))
}
