// Package encpkg installs software containers onto btrfs using the
// filesystem's encoded-write path.
//
// A container's payload is a cpio (newc) archive compressed into
// independent, size-capped zstd frames, each declaring its exact
// uncompressed length. The installer walks the payload frame by frame and
// hands each one straight to the kernel as a compressed extent; frames too
// small to be worth a compressed extent are decompressed in memory and
// written plain. The decoded archive is then extracted into an install
// root.
//
// The pipeline is single-threaded and synchronous: one installer drives
// one payload to completion, and every failure aborts the operation.
//
// Subpackages:
//
//   - compress: payload codecs and the frame-bounded zstd encoder
//   - newc: the archive format and its data-offset alignment
//   - pkgfile: the container format, digests, and signing
//   - btrfs: the encoded-write OS boundary
package encpkg
