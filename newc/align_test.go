package newc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignNamePadsToBoundary(t *testing.T) {
	t.Parallel()

	tests := []string{
		"a",
		"./usr/bin/tool",
		"usr/share/doc/some/deeply/nested/path/README",
		strings.Repeat("x", DataAlign-HeaderLen-1-1), // exactly fits the boundary
	}
	for _, name := range tests {
		padded := AlignName(name, DataAlign)
		require.GreaterOrEqual(t, len(padded), len(name), "name %q", name)
		assert.Equal(t, name, strings.TrimRight(padded, "\x00"), "padding must be NULs only")
		assert.Zero(t, (HeaderLen+len(padded)+1)%DataAlign, "name %q", name)
	}
}

func TestAlignNameAlreadyAligned(t *testing.T) {
	t.Parallel()

	// Name whose data offset already sits on the boundary gets no padding.
	name := strings.Repeat("x", DataAlign-HeaderLen-1)
	padded := AlignName(name, DataAlign)
	assert.Equal(t, name, padded)
}

func TestAlignNameNoRoom(t *testing.T) {
	t.Parallel()

	// Header plus name plus terminator past the boundary: returned unpadded.
	name := strings.Repeat("y", DataAlign)
	assert.Equal(t, name, AlignName(name, DataAlign))

	name = strings.Repeat("y", DataAlign-HeaderLen)
	assert.Equal(t, name, AlignName(name, DataAlign))
}

func TestAlignNameBadAlignment(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", AlignName("abc", 0))
	assert.Equal(t, "abc", AlignName("abc", -4096))
	assert.Equal(t, "abc", AlignName("abc", 1000)) // not a power of two
}

func TestAlignNameAtFoldsOffset(t *testing.T) {
	t.Parallel()

	// A header starting mid-block still gets its data aligned when the
	// remaining room allows it.
	padded, aligned := alignNameAt("./usr/bin/tool", 8192+512, DataAlign)
	require.True(t, aligned)
	assert.Zero(t, (512+HeaderLen+len(padded)+1)%DataAlign)

	// Too deep into the block: degrade without padding.
	name := strings.Repeat("z", DataAlign-HeaderLen-100)
	unpadded, aligned := alignNameAt(name, 200, DataAlign)
	assert.False(t, aligned)
	assert.Equal(t, name, unpadded)
}

func TestPadLength(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, padLength(0, 4096))
	assert.Equal(t, 0, padLength(4096, 4096))
	assert.Equal(t, 4095, padLength(1, 4096))
	assert.Equal(t, 1, padLength(8191, 4096))
}
