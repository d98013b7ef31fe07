// Package btrfs submits pre-compressed data to btrfs through the
// encoded-write ioctl. The raw kernel structures never leave this package;
// callers describe one frame with a Request and get back the number of
// compressed bytes the kernel consumed.
package btrfs

import "errors"

// Compression algorithm identifiers accepted by the encoded-write
// interface. These are kernel ABI values.
const (
	CompressionNone   uint32 = 0
	CompressionZlib   uint32 = 1
	CompressionZstd   uint32 = 2
	CompressionLzo4K  uint32 = 3
	CompressionLzo8K  uint32 = 4
	CompressionLzo16K uint32 = 5
	CompressionLzo32K uint32 = 6
	CompressionLzo64K uint32 = 7
	EncryptionNone    uint32 = 0
)

// Extent limits for a single encoded write.
const (
	// MaxCompressed is the largest compressed extent the kernel accepts.
	MaxCompressed = 128 * 1024

	// MaxUncompressed is the largest decoded length a compressed extent
	// can represent.
	MaxUncompressed uint64 = 128 * 1024

	// MinUncompressed is the smallest decoded length worth storing as a
	// compressed extent; anything smaller is better written plain.
	MinUncompressed uint64 = 4096
)

// ErrNotSupported is returned on platforms without the encoded-write ioctl.
var ErrNotSupported = errors.New("btrfs: encoded write not supported on this platform")

// Request describes one encoded write: a single complete compressed frame
// stored at a plain-byte destination offset.
type Request struct {
	// Offset is the destination offset in decoded bytes.
	Offset int64

	// PlainLen is the decoded length of the frame.
	PlainLen uint64

	// UnencodedLen and UnencodedOffset describe where the data sits within
	// the notional uncompressed buffer the frame was produced from.
	UnencodedLen    uint64
	UnencodedOffset uint64

	// Compression is one of the Compression* identifiers.
	Compression uint32

	// Data is the complete compressed frame.
	Data []byte
}
