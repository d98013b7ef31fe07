package compress

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeFrames compresses input into count frames of equal plain size.
func encodeFrames(t *testing.T, input []byte, limit int) []byte {
	t.Helper()
	enc, err := NewFramedEncoder(3, WithFrameSizeLimit(limit))
	require.NoError(t, err)
	_, err = enc.Write(input)
	require.NoError(t, err)
	require.NoError(t, enc.Flush())
	out, err := enc.Finish()
	require.NoError(t, err)
	return out
}

func TestNextFrameSizes(t *testing.T) {
	t.Parallel()

	input := testInput(t, 10_000)
	out := encodeFrames(t, input, 4096)

	info, err := NextFrame(out)
	require.NoError(t, err)
	assert.False(t, info.Skippable)
	assert.True(t, info.HasContentSize)
	assert.Equal(t, uint64(4096), info.ContentSize)
	assert.Greater(t, info.CompressedSize, 0)
	assert.LessOrEqual(t, info.CompressedSize, len(out))
}

func TestNextFrameTruncated(t *testing.T) {
	t.Parallel()

	out := encodeFrames(t, testInput(t, 4096), 4096)

	// Any cut inside the frame body must surface as truncation.
	for _, keep := range []int{len(out) - 1, len(out) / 2, 10} {
		_, err := NextFrame(out[:keep])
		require.Error(t, err, "keep %d", keep)
	}
	_, err := NextFrame(out[:len(out)-1])
	require.ErrorIs(t, err, ErrTruncated)
}

func TestNextFrameSkippable(t *testing.T) {
	t.Parallel()

	// Skippable frame: magic 0x184D2A50, 4-byte length, then content.
	content := []byte("metadata")
	frame := binary.LittleEndian.AppendUint32(nil, 0x184D2A50)
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(content)))
	frame = append(frame, content...)

	info, err := NextFrame(frame)
	require.NoError(t, err)
	assert.True(t, info.Skippable)
	assert.False(t, info.HasContentSize)
	assert.Equal(t, len(frame), info.CompressedSize)

	_, err = NextFrame(frame[:len(frame)-2])
	require.ErrorIs(t, err, ErrTruncated)
}

func TestNextFrameBadMagic(t *testing.T) {
	t.Parallel()

	_, err := NextFrame([]byte("not a zstd frame"))
	require.Error(t, err)
}

func TestCountFrames(t *testing.T) {
	t.Parallel()

	out := encodeFrames(t, testInput(t, 10_000), 1000)
	count, err := CountFrames(out)
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	// A buffer ending mid-frame fails the scan.
	_, err = CountFrames(out[:len(out)-3])
	require.Error(t, err)
}
