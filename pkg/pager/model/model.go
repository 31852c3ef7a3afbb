// Package model is an in-memory stand-in for the publicly observable
// behavior of pager: documents are plain field maps and queries scan every
// document.
//
// Page allocation is not modeled. Callers record the ids the real pager
// hands out and the model checks what reads and queries return for them.
package model

import (
	"fmt"
	"maps"
	"slices"

	"github.com/calvinalkan/docpager/pkg/pager"
)

// Store holds the committed content of every written document.
type Store struct {
	docs map[pager.DocID]pager.Content
}

// New returns an empty store.
func New() *Store {
	return &Store{docs: make(map[pager.DocID]pager.Content)}
}

// Clone makes a deep copy so a test can fork the same state.
func (s *Store) Clone() *Store {
	out := New()
	for id, c := range s.docs {
		out.docs[id] = cloneContent(c)
	}

	return out
}

// Write replaces the content stored under id.
func (s *Store) Write(id pager.DocID, c pager.Content) {
	s.docs[id] = cloneContent(c)
}

// Read returns the content stored under id.
func (s *Store) Read(id pager.DocID) (pager.Content, bool) {
	c, ok := s.docs[id]
	if !ok {
		return nil, false
	}

	return cloneContent(c), true
}

// IDs returns every written id in ascending order.
func (s *Store) IDs() []pager.DocID {
	return slices.Sorted(maps.Keys(s.docs))
}

// Query mirrors [pager.Pager.Query] with equality on encoded values: where
// maps a field to the bytes [pager.EncodeValue] produced for the wanted
// value.
func (s *Store) Query(where map[string][]byte, match pager.MatchMode, offset, limit int) ([]pager.DocID, error) {
	if len(where) == 0 {
		return nil, fmt.Errorf("model query: no predicates: %w", pager.ErrInvalidInput)
	}

	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("model query: negative offset or limit: %w", pager.ErrInvalidInput)
	}

	if match != pager.MatchAll && match != pager.MatchAny {
		return nil, fmt.Errorf("model query: match mode %d: %w", match, pager.ErrInvalidInput)
	}

	var ids []pager.DocID

	for _, id := range s.IDs() {
		if matches(s.docs[id], where, match) {
			ids = append(ids, id)
		}
	}

	if offset >= len(ids) {
		return nil, nil
	}

	ids = ids[offset:]

	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	return ids, nil
}

func matches(c pager.Content, where map[string][]byte, match pager.MatchMode) bool {
	for field, want := range where {
		got, ok := c[field]
		hit := ok && slices.Equal(got, want)

		if match == pager.MatchAny && hit {
			return true
		}

		if match == pager.MatchAll && !hit {
			return false
		}
	}

	return match == pager.MatchAll
}

func cloneContent(c pager.Content) pager.Content {
	out := make(pager.Content, len(c))
	for field, v := range c {
		out[field] = slices.Clone(v)
	}

	return out
}
