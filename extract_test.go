package encpkg

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/encpkg/newc"
)

func writeTestArchive(t *testing.T, files map[string][]byte) string {
	t.Helper()

	var buf bytes.Buffer
	w := newc.NewWriter(&buf)
	for name, data := range files {
		require.NoError(t, w.WriteFile(name, data, 0o644, time.Unix(1_700_000_000, 0)))
	}
	require.NoError(t, w.Close())

	path := filepath.Join(t.TempDir(), "archive")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestExtractArchiveTree(t *testing.T) {
	t.Parallel()

	files := map[string][]byte{
		"./usr/bin/tool":       bytes.Repeat([]byte("binary"), 3000),
		"./etc/tool.conf":      []byte("threads = 4\n"),
		"./var/lib/tool/state": nil,
	}
	archive := writeTestArchive(t, files)

	root := t.TempDir()
	inst := NewInstaller()
	require.NoError(t, inst.ExtractArchive(archive, root))

	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name[2:])))
		require.NoError(t, err, "reading %s", name)
		if want == nil {
			want = []byte{}
		}
		assert.Equal(t, want, got, "content of %s", name)
	}
}

func TestExtractArchiveAbsoluteName(t *testing.T) {
	t.Parallel()

	// A leading slash is stripped, not treated as an absolute target.
	archive := writeTestArchive(t, map[string][]byte{
		"/opt/tool/readme": []byte("hello\n"),
	})

	root := t.TempDir()
	require.NoError(t, NewInstaller().ExtractArchive(archive, root))

	got, err := os.ReadFile(filepath.Join(root, "opt/tool/readme"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello\n"), got)
}

func TestExtractArchiveRejectsEscape(t *testing.T) {
	t.Parallel()

	archive := writeTestArchive(t, map[string][]byte{
		"../evil": []byte("nope"),
	})

	root := t.TempDir()
	err := NewInstaller().ExtractArchive(archive, root)
	require.Error(t, err)
	assert.ErrorContains(t, err, "escapes install root")

	_, statErr := os.Stat(filepath.Join(filepath.Dir(root), "evil"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractArchiveTruncatedData(t *testing.T) {
	t.Parallel()

	archive := writeTestArchive(t, map[string][]byte{
		"./usr/bin/tool": bytes.Repeat([]byte("x"), 10_000),
	})

	// Cut into the entry data so the promised size cannot be read.
	raw, err := os.ReadFile(archive)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(archive, raw[:newc.DataAlign+100], 0o644))

	err = NewInstaller().ExtractArchive(archive, filepath.Join(t.TempDir(), "root"))
	require.ErrorIs(t, err, ErrLengthMismatch)
}
