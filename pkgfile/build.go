package pkgfile

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/encpkg/compress"
	"github.com/meigma/encpkg/newc"
)

// Builder assembles a container from an ordered file list. Files are
// packed into an offset-aligned newc archive, compressed with the
// configured codec, and written with header metadata and an optional
// signature.
type Builder struct {
	hdr         Header
	files       []builderFile
	compression compress.CompressionWithLevel
	frameLimit  int
	alignment   int
	signKey     ed25519.PrivateKey
	logger      *slog.Logger
}

type builderFile struct {
	name    string
	data    []byte
	mode    fs.FileMode
	modTime time.Time
}

// BuildOption configures a Builder.
type BuildOption func(*Builder)

// WithCompression selects the payload codec and level. The default is
// zstd at level 19.
func WithCompression(c compress.CompressionWithLevel) BuildOption {
	return func(b *Builder) {
		b.compression = c
	}
}

// WithFrameSizeLimit sets the maximum uncompressed bytes per payload frame.
// Only meaningful for the zstd codec. Zero keeps the codec default.
func WithFrameSizeLimit(n int) BuildOption {
	return func(b *Builder) {
		b.frameLimit = n
	}
}

// WithAlignment sets the archive data alignment. Zero disables alignment.
// The default is newc.DataAlign.
func WithAlignment(n int) BuildOption {
	return func(b *Builder) {
		b.alignment = n
	}
}

// WithSigningKey signs the container with an ed25519 private key.
func WithSigningKey(key ed25519.PrivateKey) BuildOption {
	return func(b *Builder) {
		b.signKey = key
	}
}

// WithLogger sets the logger for build diagnostics.
func WithLogger(logger *slog.Logger) BuildOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder creates a Builder for a package with the given identity.
func NewBuilder(name, version string, opts ...BuildOption) *Builder {
	b := &Builder{
		hdr: Header{
			Name:    name,
			Version: version,
		},
		compression: compress.CompressionZstd.DefaultLevel(),
		alignment:   newc.DataAlign,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Release sets the package release string.
func (b *Builder) Release(release string) *Builder {
	b.hdr.Release = release
	return b
}

// Arch sets the package architecture.
func (b *Builder) Arch(arch string) *Builder {
	b.hdr.Arch = arch
	return b
}

// Summary sets the one-line package description.
func (b *Builder) Summary(summary string) *Builder {
	b.hdr.Summary = summary
	return b
}

// BuildTime sets the recorded build timestamp. Pin it for reproducible
// containers.
func (b *Builder) BuildTime(t time.Time) *Builder {
	b.hdr.BuildTime = t.Unix()
	return b
}

// AddFile appends one file to the payload archive. Files are stored in
// call order.
func (b *Builder) AddFile(name string, data []byte, mode fs.FileMode, modTime time.Time) *Builder {
	b.files = append(b.files, builderFile{name: name, data: data, mode: mode, modTime: modTime})
	return b
}

func (b *Builder) log() *slog.Logger {
	if b.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.logger
}

// Build assembles the container and returns its bytes.
func (b *Builder) Build() ([]byte, error) {
	payload, err := b.buildPayload()
	if err != nil {
		return nil, err
	}

	hdr := b.hdr
	hdr.PayloadFormat = "cpio"
	hdr.PayloadCompressor = b.compression.Type.String()
	if b.compression.Type != compress.CompressionNone {
		hdr.PayloadFlags = strconv.Itoa(b.compression.Level)
	}
	hdr.PayloadSize = uint64(len(payload))
	hdr.PayloadDigest = digest.FromBytes(payload)

	headerRaw, err := encMode.Marshal(&hdr)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	var signature []byte
	if b.signKey != nil {
		signature = ed25519.Sign(b.signKey, signedMessage(headerRaw, payload))
	}

	out := make([]byte, 0, preludeLen+len(headerRaw)+len(signature)+len(payload))
	out = append(out, magic[:]...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(headerRaw)))
	out = binary.BigEndian.AppendUint32(out, uint32(len(signature)))
	out = append(out, headerRaw...)
	out = append(out, signature...)
	out = append(out, payload...)

	b.log().Info("container built",
		"name", hdr.Name, "version", hdr.Version,
		"files", len(b.files), "payload_size", hdr.PayloadSize,
		"compressor", hdr.PayloadCompressor, "signed", b.signKey != nil)
	return out, nil
}

// WriteTo builds the container and writes it to w.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	out, err := b.Build()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(out)
	return int64(n), err
}

// WriteFile builds the container and writes it to path.
func (b *Builder) WriteFile(path string) error {
	out, err := b.Build()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write container: %w", err)
	}
	return nil
}

// buildPayload packs the file list into an aligned newc archive and runs
// it through the configured compressor.
func (b *Builder) buildPayload() ([]byte, error) {
	var archive bytes.Buffer
	w := newc.NewWriter(&archive,
		newc.WithAlignment(b.alignment),
		newc.WithWriterLogger(b.logger),
	)
	for _, f := range b.files {
		if err := w.WriteFile(f.name, f.data, f.mode, f.modTime); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	comp, err := compress.New(b.compression)
	if err != nil {
		return nil, err
	}
	if b.frameLimit > 0 && b.compression.Type == compress.CompressionZstd {
		if err := comp.SetFrameSizeLimit(b.frameLimit); err != nil {
			return nil, err
		}
	}
	if _, err := comp.Write(archive.Bytes()); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	if err := comp.Flush(); err != nil {
		return nil, fmt.Errorf("flush payload: %w", err)
	}
	payload, err := comp.Finish()
	if err != nil {
		return nil, fmt.Errorf("finish payload: %w", err)
	}

	b.log().Debug("payload compressed",
		"archive_size", archive.Len(), "payload_size", len(payload))
	return payload, nil
}
