package compress

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// DefaultFrameSizeLimit is the maximum uncompressed size covered by one
// zstd frame. It matches the largest extent a btrfs encoded write accepts,
// so frames produced with the default limit are always kernel-addressable.
const DefaultFrameSizeLimit = 128 << 10

// defaultWindowSize bounds the encoder window. Frames never cover more than
// the frame size limit, so a larger window buys nothing.
const defaultWindowSize = 128 << 10

// FramedEncoder is a zstd compressor whose output is a sequence of
// independent frames, each covering at most the configured frame size limit
// of uncompressed input.
//
// Every frame declares its exact uncompressed content size in the frame
// header, so a consumer can size buffers and route frames without trial
// decompression. Frame-level checksums are disabled: the enclosing
// container carries its own digest, and a checksummed frame would change
// the framing the encoded-write consumer walks.
//
// Input is buffered until a full frame size limit of bytes is available;
// each complete chunk is emitted as one frame. Flush emits the remainder
// as a final, possibly undersized frame.
type FramedEncoder struct {
	enc      *zstd.Encoder
	pending  []byte
	out      []byte
	frameMax int
}

// FramedOption configures a FramedEncoder.
type FramedOption func(*framedConfig)

type framedConfig struct {
	frameMax   int
	windowSize int
}

// WithFrameSizeLimit sets the initial maximum uncompressed bytes per frame.
func WithFrameSizeLimit(n int) FramedOption {
	return func(c *framedConfig) {
		c.frameMax = n
	}
}

// WithWindowSize sets the zstd encoder window size. Must be a power of two.
func WithWindowSize(n int) FramedOption {
	return func(c *framedConfig) {
		c.windowSize = n
	}
}

// NewFramedEncoder creates a frame-bounded zstd compressor at the given
// zstd compression level.
func NewFramedEncoder(level int, opts ...FramedOption) (*FramedEncoder, error) {
	cfg := framedConfig{
		frameMax:   DefaultFrameSizeLimit,
		windowSize: defaultWindowSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.frameMax < 1 {
		return nil, fmt.Errorf("frame size limit %d: must be at least 1", cfg.frameMax)
	}

	// Single-segment framing: without it, frames below 256 plain bytes
	// omit the content size field, and such frames cannot be routed.
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderCRC(false),
		zstd.WithWindowSize(cfg.windowSize),
		zstd.WithSingleSegment(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	return &FramedEncoder{
		enc:      enc,
		pending:  make([]byte, 0, cfg.frameMax),
		frameMax: cfg.frameMax,
	}, nil
}

// Write buffers p and emits one frame per complete frame-limit chunk.
// The trailing partial chunk stays buffered for the next Write or Flush.
// All of p is always accepted.
func (e *FramedEncoder) Write(p []byte) (int, error) {
	e.pending = append(e.pending, p...)
	for len(e.pending) >= e.frameMax {
		e.out = e.enc.EncodeAll(e.pending[:e.frameMax], e.out)
		e.pending = e.pending[e.frameMax:]
	}
	return len(p), nil
}

// Flush emits any buffered input as one final undersized frame. It does not
// close the stream; further writes start a new frame.
func (e *FramedEncoder) Flush() error {
	if len(e.pending) == 0 {
		return nil
	}
	e.out = e.enc.EncodeAll(e.pending, e.out)
	e.pending = nil
	return nil
}

// Finish returns the concatenated emitted frames. It fails if input remains
// buffered; callers must Flush first so no bytes are silently dropped.
func (e *FramedEncoder) Finish() ([]byte, error) {
	if len(e.pending) != 0 {
		return nil, fmt.Errorf("%w: %d bytes awaiting flush", ErrPendingInput, len(e.pending))
	}
	out := e.out
	e.out = nil
	if err := e.enc.Close(); err != nil {
		return nil, fmt.Errorf("close zstd encoder: %w", err)
	}
	return out, nil
}

// SetFrameSizeLimit changes the maximum uncompressed bytes per frame for
// subsequent writes. Only legal while no input is buffered; changing the
// limit mid-chunk would split one logical chunk across two limits.
func (e *FramedEncoder) SetFrameSizeLimit(max int) error {
	if max < 1 {
		return fmt.Errorf("frame size limit %d: must be at least 1", max)
	}
	if len(e.pending) != 0 {
		return fmt.Errorf("set frame size limit: %w", ErrPendingInput)
	}
	e.frameMax = max
	return nil
}
