package encpkg

import (
	"errors"

	"github.com/meigma/encpkg/btrfs"
	"github.com/meigma/encpkg/compress"
	"github.com/meigma/encpkg/pkgfile"
)

// Errors originating in the installer and extractor.
var (
	// ErrLengthMismatch is returned when a copy, decompression, or kernel
	// write produces a different byte count than the stream declared.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrFrameTooLarge is returned when a frame exceeds the kernel's
	// encoded-write extent limits. Splitting such frames is deliberately
	// not implemented; producers cap frames below the limit.
	ErrFrameTooLarge = errors.New("frame exceeds encoded-write extent limits")
)

// Errors re-exported from compress.
var (
	// ErrUnknownCompressor is returned when a compressor name is not recognized.
	ErrUnknownCompressor = compress.ErrUnknownCompressor

	// ErrTruncated is returned when a compressed stream ends mid-frame.
	ErrTruncated = compress.ErrTruncated

	// ErrMissingContentSize is returned when a payload frame does not declare
	// its uncompressed content size.
	ErrMissingContentSize = compress.ErrMissingContentSize

	// ErrPendingInput is returned when an operation requires a flushed
	// compressor but input remains buffered.
	ErrPendingInput = compress.ErrPendingInput
)

// Errors re-exported from pkgfile.
var (
	// ErrBadMagic is returned when a file is not an encpkg container.
	ErrBadMagic = pkgfile.ErrBadMagic

	// ErrDigestMismatch is returned when the payload does not match the
	// digest recorded in the container header.
	ErrDigestMismatch = pkgfile.ErrDigestMismatch

	// ErrSignature is returned when signature verification fails.
	ErrSignature = pkgfile.ErrSignature
)

// ErrNotSupported is returned when the platform lacks the encoded-write
// interface.
var ErrNotSupported = btrfs.ErrNotSupported
