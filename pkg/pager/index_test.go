package pager

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_IndexManager_Apply_Moves_Id_When_Value_Changes(t *testing.T) {
	t.Parallel()

	m := newIndexManager()

	require.True(t, m.apply(2, nil, Content{"likes": []byte("cats")}))
	require.True(t, m.apply(3, nil, Content{"likes": []byte("cats")}))

	assert.Equal(t, []uint64{2, 3}, m.lookup("likes", []byte("cats")))

	require.True(t, m.apply(2, Content{"likes": []byte("cats")}, Content{"likes": []byte("dogs")}))

	assert.Equal(t, []uint64{3}, m.lookup("likes", []byte("cats")))
	assert.Equal(t, []uint64{2}, m.lookup("likes", []byte("dogs")))
}

func Test_IndexManager_Apply_Reports_No_Change_When_Content_Equal(t *testing.T) {
	t.Parallel()

	m := newIndexManager()
	c := Content{"name": []byte("jane"), "age": []byte{3, 40}}

	require.True(t, m.apply(5, nil, c))
	assert.False(t, m.apply(5, c, Content{"name": []byte("jane"), "age": []byte{3, 40}}))
}

func Test_IndexManager_Apply_Drops_Empty_Buckets_When_Field_Removed(t *testing.T) {
	t.Parallel()

	m := newIndexManager()

	m.apply(2, nil, Content{"tag": []byte("x"), "name": []byte("a")})
	m.apply(2, Content{"tag": []byte("x"), "name": []byte("a")}, Content{"name": []byte("a")})

	assert.Nil(t, m.lookup("tag", []byte("x")))
	assert.NotContains(t, m.snapshot(), "tag")
	assert.Contains(t, m.snapshot(), "name")
}

func Test_IndexManager_Remove_Panics_When_Bucket_Missing(t *testing.T) {
	t.Parallel()

	m := newIndexManager()
	m.apply(2, nil, Content{"likes": []byte("cats")})

	require.Panics(t, func() {
		m.apply(2, Content{"likes": []byte("dogs")}, nil)
	})
}

func Test_IndexManager_Load_Restores_Buckets_When_Snapshot_Taken(t *testing.T) {
	t.Parallel()

	src := newIndexManager()
	src.apply(2, nil, Content{"likes": []byte("cats"), "age": []byte{3, 38}})
	src.apply(3, nil, Content{"likes": []byte("dogs"), "age": []byte{3, 42}})
	src.apply(4, nil, Content{"likes": []byte("cats")})

	dst := newIndexManager()
	require.NoError(t, dst.load(src.snapshot()))

	if diff := cmp.Diff(src.snapshot(), dst.snapshot()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []uint64{2, 4}, dst.lookup("likes", []byte("cats")))
	assert.Equal(t, []uint64{3}, dst.lookup("age", []byte{3, 42}))
}

func Test_IndexManager_Load_Returns_ErrDecode_When_Field_Malformed(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		raw  []byte
	}{
		{name: "Empty", raw: nil},
		{name: "NoBuckets", raw: []byte{0}},
		{name: "UnsortedIds", raw: []byte{1, 1, 'a', 2, 5, 4}},
		{name: "DuplicateIds", raw: []byte{1, 1, 'a', 2, 5, 5}},
		{name: "UnsortedKeys", raw: []byte{2, 1, 'b', 1, 2, 1, 'a', 1, 3}},
		{name: "Trailing", raw: []byte{1, 1, 'a', 1, 2, 0}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m := newIndexManager()
			err := m.load(Content{"f": tc.raw})
			require.ErrorIs(t, err, ErrDecode)
		})
	}
}
