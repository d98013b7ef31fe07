package compress

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// FrameInfo describes one zstd frame at the start of a buffer, derived from
// frame metadata alone: nothing is decompressed.
type FrameInfo struct {
	// CompressedSize is the total on-wire size of the frame, including the
	// header, all data blocks, and the trailing checksum if present.
	CompressedSize int

	// ContentSize is the uncompressed size declared in the frame header.
	// Only meaningful when HasContentSize is true.
	ContentSize uint64

	// HasContentSize reports whether the frame declares its content size.
	// FramedEncoder always embeds it; a frame without one cannot be routed
	// to an encoded write.
	HasContentSize bool

	// Skippable reports a metadata frame carrying no content.
	Skippable bool
}

// NextFrame parses the frame at the start of b and returns its sizes.
// The frame can be skipped by slicing CompressedSize bytes off b.
//
// The frame header is decoded with the zstd library; the data blocks are
// then walked structurally (RFC 8878, section 3.1.1.2) to find the frame
// boundary. An incomplete frame returns ErrTruncated.
func NextFrame(b []byte) (FrameInfo, error) {
	var hdr zstd.Header
	if err := hdr.Decode(b); err != nil {
		return FrameInfo{}, fmt.Errorf("decode frame header: %w", err)
	}
	n := hdr.HeaderSize

	if hdr.Skippable {
		if len(b)-n < int(hdr.SkippableSize) {
			return FrameInfo{}, fmt.Errorf("%w: skippable frame needs %d bytes, %d remain",
				ErrTruncated, hdr.SkippableSize, len(b)-n)
		}
		return FrameInfo{
			CompressedSize: n + int(hdr.SkippableSize),
			Skippable:      true,
		}, nil
	}

	// Walk the data blocks. Each block starts with a 3-byte little-endian
	// header: bit 0 last-block, bits 1-2 type, bits 3-23 size. An RLE block
	// stores a single byte regardless of its declared size.
	for {
		if len(b)-n < 3 {
			return FrameInfo{}, fmt.Errorf("%w: block header needs 3 bytes, %d remain",
				ErrTruncated, len(b)-n)
		}
		blockHeader := uint32(b[n]) | uint32(b[n+1])<<8 | uint32(b[n+2])<<16
		n += 3

		lastBlock := blockHeader&1 != 0
		blockType := (blockHeader >> 1) & 3
		blockSize := int(blockHeader >> 3)
		if blockType == 1 {
			blockSize = 1
		}
		if len(b)-n < blockSize {
			return FrameInfo{}, fmt.Errorf("%w: block needs %d bytes, %d remain",
				ErrTruncated, blockSize, len(b)-n)
		}
		n += blockSize
		if lastBlock {
			break
		}
	}

	if hdr.HasCheckSum {
		if len(b)-n < 4 {
			return FrameInfo{}, fmt.Errorf("%w: checksum needs 4 bytes, %d remain",
				ErrTruncated, len(b)-n)
		}
		n += 4
	}

	return FrameInfo{
		CompressedSize: n,
		ContentSize:    hdr.FrameContentSize,
		HasContentSize: hdr.HasFCS,
	}, nil
}

// CountFrames scans b and returns the number of complete frames it holds.
// It fails if the buffer does not end exactly on a frame boundary.
func CountFrames(b []byte) (int, error) {
	count := 0
	for len(b) > 0 {
		info, err := NextFrame(b)
		if err != nil {
			return count, err
		}
		b = b[info.CompressedSize:]
		count++
	}
	return count, nil
}
