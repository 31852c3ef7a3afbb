package pager

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
)

// MatchMode controls how results for several fields combine.
type MatchMode int

const (
	// MatchAll returns documents that satisfy every predicate. Default.
	MatchAll MatchMode = iota

	// MatchAny returns documents that satisfy at least one predicate.
	MatchAny
)

// Predicate selects ids from one field's index.
//
// Only equality exists today; the interface leaves room for other
// comparisons over the same ordered buckets.
type Predicate interface {
	selectIDs(m *indexManager, field string) ([]uint64, error)

	// match checks one field of loaded content. present is false when the
	// document lacks the field.
	match(value []byte, present bool) (bool, error)
}

// Eq matches documents whose field equals v under [EncodeValue].
func Eq(v any) Predicate {
	return eqPredicate{value: v}
}

type eqPredicate struct {
	value any
}

func (p eqPredicate) selectIDs(m *indexManager, field string) ([]uint64, error) {
	key, err := EncodeValue(p.value)
	if err != nil {
		return nil, fmt.Errorf("eq %q: %w", field, err)
	}

	return m.lookup(field, key), nil
}

func (p eqPredicate) match(value []byte, present bool) (bool, error) {
	key, err := EncodeValue(p.value)
	if err != nil {
		return false, fmt.Errorf("eq: %w", err)
	}

	return present && bytes.Equal(value, key), nil
}

// Query describes an index lookup.
//
//	docs, err := p.Query(pager.Query{
//	    Where: map[string]pager.Predicate{"likes": pager.Eq("cats")},
//	})
type Query struct {
	// Where maps field names to predicates. Must not be empty.
	Where map[string]Predicate

	// Match combines per-field results. Zero value is [MatchAll].
	Match MatchMode

	// Offset skips that many matching documents (in id order).
	Offset int

	// Limit caps the number of returned documents. 0 means no limit.
	Limit int
}

// evaluate returns matching ids in ascending order after offset and limit.
func (q Query) evaluate(m *indexManager) ([]uint64, error) {
	if len(q.Where) == 0 {
		return nil, fmt.Errorf("query: no predicates: %w", ErrInvalidInput)
	}

	if q.Offset < 0 || q.Limit < 0 {
		return nil, fmt.Errorf("query: negative offset %d or limit %d: %w", q.Offset, q.Limit, ErrInvalidInput)
	}

	switch q.Match {
	case MatchAll, MatchAny:
	default:
		return nil, fmt.Errorf("query: unknown match mode %d: %w", q.Match, ErrInvalidInput)
	}

	var result map[uint64]struct{}

	// Sorted field order keeps errors deterministic.
	for i, field := range slices.Sorted(maps.Keys(q.Where)) {
		pred := q.Where[field]
		if pred == nil {
			return nil, fmt.Errorf("query: nil predicate for %q: %w", field, ErrInvalidInput)
		}

		ids, err := pred.selectIDs(m, field)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}

		matched := make(map[uint64]struct{}, len(ids))
		for _, id := range ids {
			matched[id] = struct{}{}
		}

		switch {
		case i == 0:
			result = matched
		case q.Match == MatchAny:
			maps.Copy(result, matched)
		default:
			maps.DeleteFunc(result, func(id uint64, _ struct{}) bool {
				_, ok := matched[id]

				return !ok
			})
		}
	}

	ids := slices.Sorted(maps.Keys(result))

	if q.Offset >= len(ids) {
		return nil, nil
	}

	ids = ids[q.Offset:]

	if q.Limit > 0 && q.Limit < len(ids) {
		ids = ids[:q.Limit]
	}

	return ids, nil
}

// matches reports whether c satisfies q. It is the per-document form of
// evaluate.
func (q Query) matches(c Content) (bool, error) {
	for field, pred := range q.Where {
		value, present := c[field]

		ok, err := pred.match(value, present)
		if err != nil {
			return false, err
		}

		if ok && q.Match == MatchAny {
			return true, nil
		}

		if !ok && q.Match == MatchAll {
			return false, nil
		}
	}

	return q.Match == MatchAll, nil
}
