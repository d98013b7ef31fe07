//go:build !linux

package btrfs

import "os"

// EncodedWrite is unavailable off Linux; installers fall back to
// decompress-and-write.
func EncodedWrite(_ *os.File, _ *Request) (int, error) {
	return 0, ErrNotSupported
}
