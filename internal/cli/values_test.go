package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParseValue_Infers_Type_When_Spelled(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want any
	}{
		{in: "null", want: nil},
		{in: "true", want: true},
		{in: "false", want: false},
		{in: "42", want: int64(42)},
		{in: "-7", want: int64(-7)},
		{in: "1.5", want: 1.5},
		{in: "2e3", want: 2000.0},
		{in: "0xdead", want: []byte{0xde, 0xad}},
		{in: `"42"`, want: "42"},
		{in: `"tab\there"`, want: "tab\there"},
		{in: "cats", want: "cats"},
		{in: "", want: ""},
		{in: "NaN", want: "NaN"},
		{in: "99999999999999999999", want: 1e20},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()

			got, err := parseValue(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func Test_FormatValue_Reads_Back_When_Parsed(t *testing.T) {
	t.Parallel()

	for _, v := range []any{nil, true, int64(-3), 2.0, 0.25, "with \"quotes\"", []byte{1, 2}} {
		parsed, err := parseValue(formatValue(v))
		require.NoError(t, err)
		assert.Equal(t, v, parsed, "formatted as %s", formatValue(v))
	}
}

func Test_SplitLine_Keeps_Quoted_Spaces_When_Splitting(t *testing.T) {
	t.Parallel()

	got, err := splitLine(`put  name="jane doe"   note="say \"hi\"" n=1`)
	require.NoError(t, err)
	assert.Equal(t, []string{"put", `name="jane doe"`, `note="say \"hi\""`, "n=1"}, got)

	_, err = splitLine(`put name="open`)
	require.ErrorIs(t, err, ErrUnterminatedArg)
}

func Test_ParseAssignment_Returns_ErrBadAssignment_When_Malformed(t *testing.T) {
	t.Parallel()

	_, _, err := parseAssignment("novalue", false)
	require.ErrorIs(t, err, ErrBadAssignment)

	_, _, err = parseAssignment("=x", false)
	require.ErrorIs(t, err, ErrBadAssignment)

	field, v, err := parseAssignment("a=b=c", false)
	require.NoError(t, err)
	assert.Equal(t, "a", field)
	assert.Equal(t, "b=c", v)
}
