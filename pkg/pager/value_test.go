package pager_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/docpager/pkg/pager"
)

func Test_EncodeValue_Is_Deterministic_When_Called_Repeatedly(t *testing.T) {
	t.Parallel()

	values := []any{nil, true, false, 0, -1, 19, uint(7), 3.5, "flora", []byte{0, 1, 2}}

	for _, v := range values {
		first, err := pager.EncodeValue(v)
		require.NoError(t, err)

		for range 3 {
			again, err := pager.EncodeValue(v)
			require.NoError(t, err)
			assert.Equal(t, first, again, "encoding of %#v must not vary", v)
		}
	}
}

func Test_EncodeValue_Matches_Across_Integer_Widths_When_Same_Sign(t *testing.T) {
	t.Parallel()

	want, err := pager.EncodeValue(int64(42))
	require.NoError(t, err)

	for _, v := range []any{42, int8(42), int16(42), int32(42)} {
		got, err := pager.EncodeValue(v)
		require.NoError(t, err)
		assert.Equal(t, want, got, "%T", v)
	}

	unsigned, err := pager.EncodeValue(uint64(42))
	require.NoError(t, err)
	assert.NotEqual(t, want, unsigned, "signed and unsigned integers are distinct")
}

func Test_EncodeValue_Distinguishes_Types_When_Payload_Looks_Equal(t *testing.T) {
	t.Parallel()

	str, err := pager.EncodeValue("a")
	require.NoError(t, err)

	raw, err := pager.EncodeValue([]byte("a"))
	require.NoError(t, err)

	assert.NotEqual(t, str, raw)
}

func Test_EncodeValue_Normalizes_Negative_Zero_When_Float(t *testing.T) {
	t.Parallel()

	pos, err := pager.EncodeValue(0.0)
	require.NoError(t, err)

	neg, err := pager.EncodeValue(math.Copysign(0, -1))
	require.NoError(t, err)

	assert.Equal(t, pos, neg)
}

func Test_EncodeValue_Returns_ErrInvalidInput_When_Type_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := pager.EncodeValue(struct{}{})
	require.ErrorIs(t, err, pager.ErrInvalidInput)

	_, err = pager.EncodeValue(map[string]int{})
	require.ErrorIs(t, err, pager.ErrInvalidInput)
}

func Test_DecodeValue_Returns_Original_When_Encoded(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   any
		want any
	}{
		{name: "Nil", in: nil, want: nil},
		{name: "True", in: true, want: true},
		{name: "False", in: false, want: false},
		{name: "Int", in: 19, want: int64(19)},
		{name: "NegativeInt", in: int32(-300), want: int64(-300)},
		{name: "Uint", in: uint16(65535), want: uint64(65535)},
		{name: "Float32", in: float32(1.5), want: 1.5},
		{name: "Float64", in: 2.25, want: 2.25},
		{name: "String", in: "sarah", want: "sarah"},
		{name: "EmptyString", in: "", want: ""},
		{name: "Bytes", in: []byte{0xde, 0xad}, want: []byte{0xde, 0xad}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			enc, err := pager.EncodeValue(tc.in)
			require.NoError(t, err)

			got, err := pager.DecodeValue(enc)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func Test_DecodeValue_Returns_ErrDecode_When_Bytes_Malformed(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   []byte
	}{
		{name: "Empty", in: nil},
		{name: "UnknownTag", in: []byte{0xff}},
		{name: "BoolWithPayload", in: []byte{0x02, 0x00}},
		{name: "TruncatedInt", in: []byte{0x03, 0x80}},
		{name: "IntTrailingBytes", in: []byte{0x03, 0x02, 0x00}},
		{name: "ShortFloat", in: []byte{0x05, 0x00, 0x00}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := pager.DecodeValue(tc.in)
			require.ErrorIs(t, err, pager.ErrDecode)
		})
	}
}
