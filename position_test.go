package binlogstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Position{
		{File: "host-bin.000123", Offset: 4},
		{File: "host-bin.1", Offset: 0},
		{File: "a.00000000000000001", Offset: 1 << 20},
		{File: "weird.name.with.dots.000007", Offset: 99},
	}
	for _, pos := range cases {
		off, err := Encode(pos)
		require.NoError(t, err)
		got := Decode(off)
		assert.Equal(t, pos, got, "round trip for %q", pos.File)
	}
}

func TestEncodeBitLayout(t *testing.T) {
	off, err := Encode(Position{File: "host-bin.000123", Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, "host-bin", off.Basename)
	wantHigh := uint64(6)<<suffixWidthBits | uint64(123)
	assert.Equal(t, wantHigh, off.High)
	assert.Equal(t, uint64(4), off.Low)
}

func TestDecodePreservesNoPadding(t *testing.T) {
	off, err := Encode(Position{File: "host-bin.1", Offset: 0})
	require.NoError(t, err)
	got := Decode(off)
	assert.Equal(t, "host-bin.1", got.File)
	assert.NotEqual(t, "host-bin.01", got.File)
}

func TestEncodeInvalidName(t *testing.T) {
	_, err := Encode(Position{File: "nodotsatall", Offset: 0})
	require.Error(t, err)
	var nameErr *InvalidBinlogNameError
	assert.ErrorAs(t, err, &nameErr)
}

func TestEncodeInvalidSuffix(t *testing.T) {
	cases := []string{
		"host-bin.abc",
		"host-bin.",
		"host-bin.123456789012345678", // 18 digits, width > 17
	}
	for _, file := range cases {
		_, err := Encode(Position{File: file})
		require.Error(t, err, file)
		var suffixErr *InvalidBinlogSuffixError
		assert.ErrorAs(t, err, &suffixErr, file)
	}
}

func TestCompare(t *testing.T) {
	less := Compare(Position{File: "bin.000001", Offset: 100}, Position{File: "bin.000002", Offset: 0})
	assert.Equal(t, Less, less)

	incomparable := Compare(Position{File: "a.000001", Offset: 0}, Position{File: "b.000001", Offset: 0})
	assert.Equal(t, Incomparable, incomparable)

	equal := Compare(Position{File: "bin.000001", Offset: 4}, Position{File: "bin.000001", Offset: 4})
	assert.Equal(t, Equal, equal)

	greater := Compare(Position{File: "bin.000001", Offset: 9}, Position{File: "bin.000001", Offset: 4})
	assert.Equal(t, Greater, greater)
}

func TestCompareOffsetsMatchesCompare(t *testing.T) {
	a := Position{File: "bin.000001", Offset: 100}
	b := Position{File: "bin.000002", Offset: 0}
	aOff, err := Encode(a)
	require.NoError(t, err)
	bOff, err := Encode(b)
	require.NoError(t, err)
	assert.Equal(t, Compare(a, b), CompareOffsets(aOff, bOff))
}

// TestOffsetsMonotonicAcrossRotation confirms the encoded ReplicationOffset
// keeps increasing across a sequence of positions that advances within one
// binlog file and then rotates to the next, matching the ordering a
// caller's until bound relies on.
func TestOffsetsMonotonicAcrossRotation(t *testing.T) {
	sequence := []Position{
		{File: "host-bin.000001", Offset: 4},
		{File: "host-bin.000001", Offset: 500},
		{File: "host-bin.000001", Offset: 5000},
		{File: "host-bin.000002", Offset: 4},
		{File: "host-bin.000002", Offset: 777},
	}
	var prev ReplicationOffset
	for i, pos := range sequence {
		off, err := Encode(pos)
		require.NoError(t, err)
		if i > 0 {
			assert.Equal(t, Greater, CompareOffsets(off, prev), "position %d (%+v) must exceed the previous one", i, pos)
		}
		prev = off
	}
}

func TestEncodeWidths(t *testing.T) {
	for _, width := range []int{1, 6, 17} {
		suffix := ""
		for i := 0; i < width; i++ {
			suffix += "0"
		}
		suffix = suffix[:width-1] + "7"
		off, err := Encode(Position{File: "host-bin." + suffix, Offset: 1})
		require.NoError(t, err, "width %d", width)
		got := Decode(off)
		assert.Equal(t, "host-bin."+suffix, got.File, "width %d", width)
	}
}
