// Package compress provides the payload codecs used by encpkg containers.
//
// All codecs share one capability: accept plain bytes via Write, emit the
// complete compressed output via Finish. Only the zstd codec produces a
// frame-bounded stream (independent frames with embedded content sizes)
// suitable for encoded writes; the remaining codecs exist for containers
// whose payloads are installed through the ordinary copy path.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

// Sentinel errors returned by this package.
var (
	// ErrUnknownCompressor is returned when a compressor name is not recognized.
	ErrUnknownCompressor = errors.New("unknown compressor type")

	// ErrFrameLimitUnsupported is returned when a frame size limit is set on
	// a codec without frame-bounded output.
	ErrFrameLimitUnsupported = errors.New("frame size limit unsupported for this codec")

	// ErrPendingInput is returned when an operation requires an empty input
	// buffer but buffered bytes remain. Callers must Flush first.
	ErrPendingInput = errors.New("pending input buffered")

	// ErrTruncated is returned when a compressed stream ends mid-frame.
	ErrTruncated = errors.New("compressed stream truncated")

	// ErrMissingContentSize is returned when a frame does not declare its
	// uncompressed content size.
	ErrMissingContentSize = errors.New("frame missing content size")
)

// Compression identifies a payload compression algorithm.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
	CompressionXz
	CompressionBzip2
)

// String returns the compressor name as recorded in container headers.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionXz:
		return "xz"
	case CompressionBzip2:
		return "bzip2"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses a compressor name from a container header.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none", "":
		return CompressionNone, nil
	case "gzip":
		return CompressionGzip, nil
	case "zstd":
		return CompressionZstd, nil
	case "xz":
		return CompressionXz, nil
	case "bzip2":
		return CompressionBzip2, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCompressor, name)
	}
}

// CompressionWithLevel pairs an algorithm with a compression level.
type CompressionWithLevel struct {
	Type  Compression
	Level int
}

// DefaultLevel returns the default level configuration for an algorithm.
func (c Compression) DefaultLevel() CompressionWithLevel {
	switch c {
	case CompressionZstd:
		return CompressionWithLevel{Type: c, Level: 19}
	case CompressionNone:
		return CompressionWithLevel{Type: c}
	default:
		return CompressionWithLevel{Type: c, Level: 9}
	}
}

// Compressor accepts plain bytes and produces the compressed payload.
//
// Write never signals backpressure: it accepts all bytes or fails. Flush
// drains any internally buffered input without closing the stream. Finish
// terminates the stream and returns the complete output; the Compressor
// must not be used afterwards.
//
// SetFrameSizeLimit adjusts the maximum uncompressed size covered by one
// output frame. Codecs without frame-bounded output return
// ErrFrameLimitUnsupported; it is a capability check, not a failure of the
// stream.
type Compressor interface {
	io.Writer
	Flush() error
	Finish() ([]byte, error)
	SetFrameSizeLimit(max int) error
}

// New returns a Compressor for the given algorithm and level.
func New(c CompressionWithLevel) (Compressor, error) {
	switch c.Type {
	case CompressionNone:
		return &noneCompressor{}, nil
	case CompressionGzip:
		return newGzipCompressor(c.Level)
	case CompressionZstd:
		return NewFramedEncoder(c.Level)
	case CompressionXz:
		return newXzCompressor()
	case CompressionBzip2:
		return newBzip2Compressor(c.Level)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompressor, c.Type)
	}
}

// noneCompressor stores bytes verbatim.
type noneCompressor struct {
	buf bytes.Buffer
}

func (c *noneCompressor) Write(p []byte) (int, error) { return c.buf.Write(p) }
func (c *noneCompressor) Flush() error                { return nil }

func (c *noneCompressor) Finish() ([]byte, error) { return c.buf.Bytes(), nil }

func (c *noneCompressor) SetFrameSizeLimit(int) error { return ErrFrameLimitUnsupported }

// gzipCompressor wraps a gzip stream writing into memory.
type gzipCompressor struct {
	buf bytes.Buffer
	enc *gzip.Writer
}

func newGzipCompressor(level int) (*gzipCompressor, error) {
	c := &gzipCompressor{}
	enc, err := gzip.NewWriterLevel(&c.buf, level)
	if err != nil {
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}
	c.enc = enc
	return c, nil
}

func (c *gzipCompressor) Write(p []byte) (int, error) { return c.enc.Write(p) }
func (c *gzipCompressor) Flush() error                { return c.enc.Flush() }

func (c *gzipCompressor) Finish() ([]byte, error) {
	if err := c.enc.Close(); err != nil {
		return nil, fmt.Errorf("finish gzip stream: %w", err)
	}
	return c.buf.Bytes(), nil
}

func (c *gzipCompressor) SetFrameSizeLimit(int) error { return ErrFrameLimitUnsupported }

// xzCompressor wraps an xz stream writing into memory. The xz writer has no
// partial flush; Flush is a no-op and the stream is drained by Finish.
type xzCompressor struct {
	buf bytes.Buffer
	enc *xz.Writer
}

func newXzCompressor() (*xzCompressor, error) {
	c := &xzCompressor{}
	enc, err := xz.NewWriter(&c.buf)
	if err != nil {
		return nil, fmt.Errorf("create xz writer: %w", err)
	}
	c.enc = enc
	return c, nil
}

func (c *xzCompressor) Write(p []byte) (int, error) { return c.enc.Write(p) }
func (c *xzCompressor) Flush() error                { return nil }

func (c *xzCompressor) Finish() ([]byte, error) {
	if err := c.enc.Close(); err != nil {
		return nil, fmt.Errorf("finish xz stream: %w", err)
	}
	return c.buf.Bytes(), nil
}

func (c *xzCompressor) SetFrameSizeLimit(int) error { return ErrFrameLimitUnsupported }

// bzip2Compressor wraps a bzip2 stream writing into memory. Like xz, the
// writer only drains on Close, so Flush is a no-op.
type bzip2Compressor struct {
	buf bytes.Buffer
	enc *bzip2.Writer
}

func newBzip2Compressor(level int) (*bzip2Compressor, error) {
	c := &bzip2Compressor{}
	enc, err := bzip2.NewWriter(&c.buf, &bzip2.WriterConfig{Level: level})
	if err != nil {
		return nil, fmt.Errorf("create bzip2 writer: %w", err)
	}
	c.enc = enc
	return c, nil
}

func (c *bzip2Compressor) Write(p []byte) (int, error) { return c.enc.Write(p) }
func (c *bzip2Compressor) Flush() error                { return nil }

func (c *bzip2Compressor) Finish() ([]byte, error) {
	if err := c.enc.Close(); err != nil {
		return nil, fmt.Errorf("finish bzip2 stream: %w", err)
	}
	return c.buf.Bytes(), nil
}

func (c *bzip2Compressor) SetFrameSizeLimit(int) error { return ErrFrameLimitUnsupported }
