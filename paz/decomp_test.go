package paz

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func fromHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// A one-literal seed followed by a long overlapping match: the classic
// run-length fill. 256 bytes of 0xAA out of an 18-byte container.
func TestDecompressRunLengthFill(t *testing.T) {
	input := fromHex(t, "03120000000001000006000000aa03fe0000")
	out := make([]byte, 256)

	n, err := Decompress(input, out)
	require.NoError(t, err)
	require.Equal(t, 256, n)
	require.Equal(t, bytes.Repeat([]byte{0xAA}, 256), out[:n])
}

// Stored body with the wide header: flags&1 clear, comp_len=25, decomp_len=16.
func TestDecompressStored(t *testing.T) {
	input := fromHex(t, "021900000010000000000102030405060708090a0b0c0d0e0f")
	out := make([]byte, 16)

	n, err := Decompress(input, out)
	require.NoError(t, err)
	require.Equal(t, 16, n)
	for i := 0; i < 16; i++ {
		require.Equal(t, byte(i), out[i])
	}
}

// A literal run, a two-byte match token, and trailing literals that are too
// close to the end of the stream for 32-bit reads, exercising the
// byte-at-a-time tail.
func TestDecompressMatchAndTail(t *testing.T) {
	input := fromHex(t, "0316000000130000001001000061626364260158595a")
	out := make([]byte, 19)

	n, err := Decompress(input, out)
	require.NoError(t, err)
	require.Equal(t, 19, n)
	require.Equal(t, []byte("abcdabcdabcdabcdXYZ"), out[:n])
}

// The 3-byte narrow header, compressed and stored forms.
func TestDecompressNarrowHeader(t *testing.T) {
	t.Run("compressed", func(t *testing.T) {
		input := fromHex(t, "010c08060000004152000000")
		out := make([]byte, 8)
		n, err := Decompress(input, out)
		require.NoError(t, err)
		require.Equal(t, 8, n)
		require.Equal(t, bytes.Repeat([]byte{'A'}, 8), out[:n])
	})
	t.Run("stored", func(t *testing.T) {
		input := fromHex(t, "00080568656c6c6f")
		out := make([]byte, 5)
		n, err := Decompress(input, out)
		require.NoError(t, err)
		require.Equal(t, 5, n)
		require.Equal(t, []byte("hello"), out[:n])
	})
}

// A match token before any output exists references data that was never
// produced.
func TestDecompressCorruptMatch(t *testing.T) {
	input := fromHex(t, "0311000000100000000300000003fe0000")
	out := make([]byte, 16)

	_, err := Decompress(input, out)
	require.ErrorIs(t, errors.Cause(err), ErrCorruptedData)
}

// Input that runs dry before the stated length is reached returns the short
// length as success; the condition is logged, not failed.
func TestDecompressShortInputSucceedsShort(t *testing.T) {
	input := fromHex(t, "0311000000200000000001000061626364")
	out := make([]byte, 32)

	n, err := Decompress(input, out)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []byte("abcd"), out[:n])
}

func TestDecompressErrors(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		n, err := Decompress(nil, nil)
		require.NoError(t, err)
		require.Zero(t, n)
	})
	t.Run("short wide header", func(t *testing.T) {
		_, err := Decompress([]byte{0x02, 0x01}, make([]byte, 8))
		require.ErrorIs(t, errors.Cause(err), ErrTruncatedData)
	})
	t.Run("short narrow header", func(t *testing.T) {
		_, err := Decompress([]byte{0x00, 0x05}, make([]byte, 8))
		require.ErrorIs(t, errors.Cause(err), ErrTruncatedData)
	})
	t.Run("input shorter than claimed", func(t *testing.T) {
		input := fromHex(t, "021900000010000000000102")
		_, err := Decompress(input, make([]byte, 16))
		require.ErrorIs(t, errors.Cause(err), ErrTruncatedData)
	})
	t.Run("stored output too small", func(t *testing.T) {
		input := fromHex(t, "00080568656c6c6f")
		_, err := Decompress(input, make([]byte, 3))
		require.ErrorIs(t, errors.Cause(err), ErrOutputBufferTooSmall)
	})
}
