package pkgfile

import (
	"bytes"
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/encpkg/compress"
	"github.com/meigma/encpkg/newc"
)

func buildTestContainer(t *testing.T, opts ...BuildOption) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pkg.encpkg")
	b := NewBuilder("tool", "2.4.1", opts...).
		Release("3").
		Arch("x86_64").
		Summary("test fixture").
		BuildTime(time.Unix(1_700_000_000, 0)).
		AddFile("./usr/bin/tool", bytes.Repeat([]byte("payload"), 2048), 0o755, time.Unix(1_700_000_000, 0)).
		AddFile("./etc/tool.conf", []byte("threads = 4\n"), 0o644, time.Unix(1_700_000_000, 0))
	require.NoError(t, b.WriteFile(path))
	return path
}

func TestBuildOpenRoundTrip(t *testing.T) {
	t.Parallel()

	path := buildTestContainer(t)
	pkg, err := Open(path)
	require.NoError(t, err)

	assert.Equal(t, path, pkg.Path)
	assert.Equal(t, "tool", pkg.Header.Name)
	assert.Equal(t, "2.4.1", pkg.Header.Version)
	assert.Equal(t, "3", pkg.Header.Release)
	assert.Equal(t, "x86_64", pkg.Header.Arch)
	assert.Equal(t, int64(1_700_000_000), pkg.Header.BuildTime)
	assert.Equal(t, "cpio", pkg.Header.PayloadFormat)
	assert.Equal(t, "zstd", pkg.Header.PayloadCompressor)
	assert.Equal(t, "19", pkg.Header.PayloadFlags)
	assert.Equal(t, uint64(len(pkg.Payload)), pkg.Header.PayloadSize)
	assert.False(t, pkg.Signed())

	// The payload decompresses back to a readable archive.
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	archive, err := dec.DecodeAll(pkg.Payload, nil)
	require.NoError(t, err)

	r := newc.NewReader(bytes.NewReader(archive))
	entry, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "./usr/bin/tool", entry.Name)
	assert.Zero(t, entry.DataOffset%newc.DataAlign)
}

func TestSegmentOffsets(t *testing.T) {
	t.Parallel()

	_, priv, err := GenerateKeypair()
	require.NoError(t, err)

	path := buildTestContainer(t, WithSigningKey(priv))
	pkg, err := Open(path)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(preludeLen), pkg.Offsets.Header)
	assert.Equal(t, pkg.Offsets.Header+uint64(len(pkg.headerRaw)), pkg.Offsets.Signature)
	assert.Equal(t, pkg.Offsets.Signature+uint64(ed25519.SignatureSize), pkg.Offsets.Payload)
	assert.Equal(t, raw[pkg.Offsets.Payload:], pkg.Payload)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad")
	require.NoError(t, os.WriteFile(path, []byte("not a container at all"), 0o644))

	_, err := Open(path)
	require.ErrorIs(t, err, ErrBadMagic)

	require.NoError(t, os.WriteFile(path, []byte("EP"), 0o644))
	_, err = Open(path)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestOpenDetectsPayloadCorruption(t *testing.T) {
	t.Parallel()

	path := buildTestContainer(t)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	// Flip a byte near the end of the payload.
	corrupt := bytes.Clone(raw)
	corrupt[len(corrupt)-10] ^= 0xFF
	require.NoError(t, os.WriteFile(path, corrupt, 0o644))

	_, err = Open(path)
	require.ErrorIs(t, err, ErrDigestMismatch)
}

func TestOpenDetectsPayloadTruncation(t *testing.T) {
	t.Parallel()

	path := buildTestContainer(t)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-100], 0o644))

	_, err = Open(path)
	require.ErrorIs(t, err, ErrDigestMismatch)
}

func TestSignVerify(t *testing.T) {
	t.Parallel()

	pub, priv, err := GenerateKeypair()
	require.NoError(t, err)

	path := buildTestContainer(t, WithSigningKey(priv))
	pkg, err := Open(path)
	require.NoError(t, err)

	assert.True(t, pkg.Signed())
	require.NoError(t, pkg.Verify(pub))

	otherPub, _, err := GenerateKeypair()
	require.NoError(t, err)
	require.ErrorIs(t, pkg.Verify(otherPub), ErrSignature)
	require.ErrorIs(t, pkg.Verify(pub[:16]), ErrSignature)
}

func TestVerifyUnsigned(t *testing.T) {
	t.Parallel()

	pub, _, err := GenerateKeypair()
	require.NoError(t, err)

	pkg, err := Open(buildTestContainer(t))
	require.NoError(t, err)
	require.ErrorIs(t, pkg.Verify(pub), ErrSignature)
}

func TestBuildGzipPayload(t *testing.T) {
	t.Parallel()

	path := buildTestContainer(t, WithCompression(compress.CompressionWithLevel{
		Type:  compress.CompressionGzip,
		Level: 6,
	}))
	pkg, err := Open(path)
	require.NoError(t, err)

	assert.Equal(t, "gzip", pkg.Header.PayloadCompressor)
	assert.Equal(t, "6", pkg.Header.PayloadFlags)
	// Gzip magic.
	require.GreaterOrEqual(t, len(pkg.Payload), 2)
	assert.Equal(t, []byte{0x1f, 0x8b}, pkg.Payload[:2])
}

func TestKeyRoundTrip(t *testing.T) {
	t.Parallel()

	pub, priv, err := GenerateKeypair()
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "signing.key")
	pubPath := filepath.Join(dir, "signing.key.pub")
	require.NoError(t, os.WriteFile(privPath, priv, 0o600))
	require.NoError(t, os.WriteFile(pubPath, pub, 0o644))

	gotPriv, err := LoadSigningKey(privPath)
	require.NoError(t, err)
	assert.Equal(t, priv, gotPriv)

	gotPub, err := LoadVerifyKey(pubPath)
	require.NoError(t, err)
	assert.Equal(t, pub, gotPub)

	// Wrong sizes are rejected.
	require.NoError(t, os.WriteFile(privPath, []byte("short"), 0o600))
	_, err = LoadSigningKey(privPath)
	require.Error(t, err)
	_, err = LoadVerifyKey(privPath)
	require.Error(t, err)
}
