package pager

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"
	"sync"
)

// bucket holds the ids of every document whose field currently has value
// key. ids is sorted and never empty while the bucket is in an index.
type bucket struct {
	key []byte
	ids []uint64
}

// fieldIndex is the set of buckets for one field, sorted by key.
type fieldIndex struct {
	buckets []bucket
}

func (f *fieldIndex) search(key []byte) (int, bool) {
	return slices.BinarySearchFunc(f.buckets, key, func(b bucket, k []byte) int {
		return bytes.Compare(b.key, k)
	})
}

// indexManager keeps the in-memory equality index.
//
// mu guards fields. persistMu serializes encode+write of the system index
// document so the newest snapshot is always the last one written; it is
// taken before mu.
type indexManager struct {
	mu     sync.RWMutex
	fields map[string]*fieldIndex

	persistMu sync.Mutex
}

func newIndexManager() *indexManager {
	return &indexManager{fields: make(map[string]*fieldIndex)}
}

// apply moves id between buckets so the index reflects next instead of
// prev. It reports whether anything changed.
func (m *indexManager) apply(id uint64, prev, next Content) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false

	for field, old := range prev {
		cur, kept := next[field]

		switch {
		case !kept:
			m.remove(field, old, id)

			changed = true
		case !bytes.Equal(old, cur):
			m.remove(field, old, id)
			m.insert(field, cur, id)

			changed = true
		}
	}

	for field, cur := range next {
		if _, had := prev[field]; !had {
			m.insert(field, cur, id)

			changed = true
		}
	}

	return changed
}

// insert adds id to the bucket for key, creating field and bucket as needed.
// Callers hold mu.
func (m *indexManager) insert(field string, key []byte, id uint64) {
	fi, ok := m.fields[field]
	if !ok {
		fi = &fieldIndex{}
		m.fields[field] = fi
	}

	pos, found := fi.search(key)
	if !found {
		fi.buckets = slices.Insert(fi.buckets, pos, bucket{key: slices.Clone(key), ids: []uint64{id}})

		return
	}

	b := &fi.buckets[pos]

	at, dup := slices.BinarySearch(b.ids, id)
	if !dup {
		b.ids = slices.Insert(b.ids, at, id)
	}
}

// remove drops id from the bucket for key, deleting the bucket and field
// once empty. The bucket must exist and contain id. Callers hold mu.
func (m *indexManager) remove(field string, key []byte, id uint64) {
	fi, ok := m.fields[field]
	invariant(ok, "index has no field %q for document %d", field, id)

	pos, found := fi.search(key)
	invariant(found, "index field %q has no bucket %x for document %d", field, key, id)

	b := &fi.buckets[pos]

	at, present := slices.BinarySearch(b.ids, id)
	invariant(present, "index field %q bucket %x lacks document %d", field, key, id)

	b.ids = slices.Delete(b.ids, at, at+1)
	if len(b.ids) > 0 {
		return
	}

	fi.buckets = slices.Delete(fi.buckets, pos, pos+1)
	if len(fi.buckets) == 0 {
		delete(m.fields, field)
	}
}

// lookup returns a copy of the ids whose field equals key.
func (m *indexManager) lookup(field string, key []byte) []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fi, ok := m.fields[field]
	if !ok {
		return nil
	}

	pos, found := fi.search(key)
	if !found {
		return nil
	}

	return slices.Clone(fi.buckets[pos].ids)
}

// snapshot encodes the index as the content of the system index document:
// one entry per field, each an encoded bucket list.
//
//	uvarint bucket count, then per bucket:
//	uvarint key length, key, uvarint id count, uvarint ids (ascending)
func (m *indexManager) snapshot() Content {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := make(Content, len(m.fields))

	for field, fi := range m.fields {
		var buf []byte

		buf = binary.AppendUvarint(buf, uint64(len(fi.buckets)))
		for _, b := range fi.buckets {
			buf = binary.AppendUvarint(buf, uint64(len(b.key)))
			buf = append(buf, b.key...)
			buf = binary.AppendUvarint(buf, uint64(len(b.ids)))

			for _, id := range b.ids {
				buf = binary.AppendUvarint(buf, id)
			}
		}

		c[field] = buf
	}

	return c
}

// load replaces the in-memory index with the one encoded in c.
func (m *indexManager) load(c Content) error {
	fields := make(map[string]*fieldIndex, len(c))

	for field, raw := range c {
		fi, err := decodeFieldIndex(raw)
		if err != nil {
			return fmt.Errorf("index field %q: %w", field, err)
		}

		fields[field] = fi
	}

	m.mu.Lock()
	m.fields = fields
	m.mu.Unlock()

	return nil
}

func decodeFieldIndex(raw []byte) (*fieldIndex, error) {
	r := uvarintReader{buf: raw}

	count := r.next()
	if r.err != nil {
		return nil, r.err
	}

	// Each bucket takes at least three bytes.
	if count == 0 || count > uint64(r.remaining()/3) {
		return nil, fmt.Errorf("bucket count %d: %w", count, ErrDecode)
	}

	fi := &fieldIndex{buckets: make([]bucket, 0, count)}

	for i := range count {
		key := slices.Clone(r.bytes())
		n := r.next()

		if r.err != nil {
			return nil, r.err
		}

		if n == 0 || n > uint64(r.remaining()) {
			return nil, fmt.Errorf("bucket %d: id count %d: %w", i, n, ErrDecode)
		}

		ids := make([]uint64, 0, n)
		for range n {
			ids = append(ids, r.next())
		}

		if r.err != nil {
			return nil, r.err
		}

		if !slices.IsSorted(ids) || len(slices.Compact(slices.Clone(ids))) != len(ids) {
			return nil, fmt.Errorf("bucket %d: ids not strictly ascending: %w", i, ErrDecode)
		}

		if i > 0 && bytes.Compare(fi.buckets[i-1].key, key) >= 0 {
			return nil, fmt.Errorf("bucket %d: keys out of order: %w", i, ErrDecode)
		}

		fi.buckets = append(fi.buckets, bucket{key: key, ids: ids})
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("%d trailing bytes: %w", r.remaining(), ErrDecode)
	}

	return fi, nil
}
