package common

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDigits(t *testing.T) {
	cases := map[string]int64{
		"":                     0,
		"12a3b":                123,
		"-50":                  50,
		"abc":                  0,
		"007":                  7,
		"1.000.000đ":           1_000_000,
		"99999999999999999999": math.MaxInt64,
	}
	for in, want := range cases {
		require.Equal(t, want, ParseDigits(in), "input %q", in)
	}
}

func TestAtoiDefault(t *testing.T) {
	require.Equal(t, 12, AtoiDefault(" 12 ", 1))
	require.Equal(t, 1, AtoiDefault("x", 1))
	require.Equal(t, 1, AtoiDefault("", 1))
}

func TestRawTextDecodesStrings(t *testing.T) {
	cases := map[string]string{
		`"\u0031"`: "1",
		`"1a2"`:    "1a2",
		`15`:       "15",
		`null`:     "",
		``:         "",
	}
	for in, want := range cases {
		require.Equal(t, want, RawText(json.RawMessage(in)), "input %s", in)
	}
	require.Equal(t, int64(1), ParseDigits(RawText(json.RawMessage(`"\u0031"`))))
}
