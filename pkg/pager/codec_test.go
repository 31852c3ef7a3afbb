package pager

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_EncodeContent_Is_Independent_Of_Map_Order_When_Fields_Equal(t *testing.T) {
	t.Parallel()

	want := encodeContent(Content{"age": {3, 19}, "likes": []byte("cats"), "name": []byte("flora")})

	for range 20 {
		c := Content{}
		c["name"] = []byte("flora")
		c["likes"] = []byte("cats")
		c["age"] = []byte{3, 19}

		require.Equal(t, want, encodeContent(c))
	}
}

func Test_DecodeContent_Returns_Fields_When_Encoded(t *testing.T) {
	t.Parallel()

	want := Content{"": {}, "a": {0}, "b": bytes.Repeat([]byte{7}, 300)}

	got, err := decodeContent(encodeContent(want))
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("content mismatch (-want +got):\n%s", diff)
	}
}

func Test_DecodeContent_Returns_ErrDecode_When_Fields_Not_Sorted(t *testing.T) {
	t.Parallel()

	// count 2, "b" = "", "a" = ""
	_, err := decodeContent([]byte{2, 1, 'b', 0, 1, 'a', 0})
	require.ErrorIs(t, err, ErrDecode)

	// duplicate field
	_, err = decodeContent([]byte{2, 1, 'a', 0, 1, 'a', 0})
	require.ErrorIs(t, err, ErrDecode)

	// trailing byte
	_, err = decodeContent([]byte{1, 1, 'a', 0, 9})
	require.ErrorIs(t, err, ErrDecode)
}

func Test_SplitSpans_Reuses_Previous_Pages_When_Available(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 25)
	prev := []Span{{Page: 7, Size: 10}, {Page: 0, Size: 10}}

	chunks := splitSpans(prev, buf, 10)
	require.Len(t, chunks, 3)

	got := make([]Span, 0, len(chunks))
	for _, c := range chunks {
		got = append(got, c.span)
	}

	want := []Span{{Page: 7, Size: 10}, {Page: 0, Size: 10}, {Page: 0, Size: 5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("spans mismatch (-want +got):\n%s", diff)
	}
}

func Test_SplitSpans_Returns_No_Chunks_When_Buffer_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, splitSpans([]Span{{Page: 3, Size: 1}}, nil, spanCapacity))
}

func Test_DecodeMetadata_Returns_Spans_When_Encoded(t *testing.T) {
	t.Parallel()

	spans := []Span{{Page: 2, Size: spanCapacity}, {Page: 1 << 40, Size: 1}}

	page, err := encodeMetadata(2, spans)
	require.NoError(t, err)
	assert.Equal(t, pageTagDocument, page[0])

	got, err := decodeMetadata(2, page)
	require.NoError(t, err)

	if diff := cmp.Diff(spans, got); diff != "" {
		t.Fatalf("spans mismatch (-want +got):\n%s", diff)
	}
}

func Test_DecodeMetadata_Returns_Error_When_Page_Not_Metadata(t *testing.T) {
	t.Parallel()

	page, err := encodeMetadata(5, []Span{{Page: 9, Size: 4}})
	require.NoError(t, err)

	_, err = decodeMetadata(5, make([]byte, PageSize))
	require.ErrorIs(t, err, ErrNotFound, "zeroed page")

	_, err = decodeMetadata(5, encodeContentPage([]byte("xyz")))
	require.ErrorIs(t, err, ErrNotFound, "content page")

	_, err = decodeMetadata(6, page)
	require.ErrorIs(t, err, ErrCorrupt, "id mismatch")

	bad := bytes.Clone(page)
	bad[1] = metadataVersion + 1
	_, err = decodeMetadata(5, bad)
	require.ErrorIs(t, err, ErrDecode, "version")
}

func Test_EncodeMetadata_Returns_ErrTooLarge_When_Spans_Exceed_Page(t *testing.T) {
	t.Parallel()

	spans := make([]Span, 2000)
	for i := range spans {
		spans[i] = Span{Page: uint64(1000 + i), Size: spanCapacity}
	}

	_, err := encodeMetadata(2, spans)
	require.ErrorIs(t, err, ErrTooLarge)
}

func Test_EncodeMetadata_Panics_When_Span_Unallocated(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() {
		_, _ = encodeMetadata(2, []Span{{Page: 0, Size: 1}})
	})
}

func Test_ReadContent_Returns_ErrCorrupt_When_Span_Points_At_Metadata(t *testing.T) {
	t.Parallel()

	meta, err := encodeMetadata(4, []Span{{Page: 4, Size: 3}})
	require.NoError(t, err)

	pages := map[uint64][]byte{4: padPage(meta)}

	_, err = readContent([]Span{{Page: 4, Size: 3}}, func(page uint64) ([]byte, error) {
		return pages[page], nil
	})
	require.ErrorIs(t, err, ErrCorrupt)
}

func Test_ReadContent_Joins_Spans_When_Content_Split(t *testing.T) {
	t.Parallel()

	want := Content{"blob": bytes.Repeat([]byte("ab"), 40)}
	chunks := splitSpans(nil, encodeContent(want), 16)

	pages := make(map[uint64][]byte, len(chunks))
	spans := make([]Span, 0, len(chunks))

	for i, c := range chunks {
		page := uint64(10 + i)
		pages[page] = padPage(encodeContentPage(c.data))
		spans = append(spans, Span{Page: page, Size: c.span.Size})
	}

	got, err := readContent(spans, func(page uint64) ([]byte, error) {
		return pages[page], nil
	})
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("content mismatch (-want +got):\n%s", diff)
	}
}

func padPage(b []byte) []byte {
	page := make([]byte, PageSize)
	copy(page, b)

	return page
}
