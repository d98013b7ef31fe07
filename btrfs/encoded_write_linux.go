//go:build linux

package btrfs

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// iocEncodedWrite is _IOW(BTRFS_IOCTL_MAGIC, 64, struct btrfs_ioctl_encoded_io_args).
const iocEncodedWrite = 0x40809440

// encodedIOArgs mirrors struct btrfs_ioctl_encoded_io_args. Field order and
// widths are kernel ABI; do not rearrange.
type encodedIOArgs struct {
	iov             *unix.Iovec
	iovcnt          uint64
	offset          int64
	flags           uint64
	length          uint64
	unencodedLen    uint64
	unencodedOffset uint64
	compression     uint32
	encryption      uint32
	reserved        [64]byte
}

// EncodedWrite stores req.Data as a compressed extent of f at req.Offset.
// It returns the number of compressed bytes the kernel consumed. The write
// is a single blocking ioctl; there is no partial-write recovery here.
func EncodedWrite(f *os.File, req *Request) (int, error) {
	if len(req.Data) == 0 {
		return 0, errors.New("btrfs: encoded write of empty frame")
	}

	iov := unix.Iovec{Base: &req.Data[0]}
	iov.SetLen(len(req.Data))

	args := encodedIOArgs{
		iov:             &iov,
		iovcnt:          1,
		offset:          req.Offset,
		length:          req.PlainLen,
		unencodedLen:    req.UnencodedLen,
		unencodedOffset: req.UnencodedOffset,
		compression:     req.Compression,
		encryption:      EncryptionNone,
	}

	n, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), iocEncodedWrite, uintptr(unsafe.Pointer(&args)))
	runtime.KeepAlive(req.Data)
	runtime.KeepAlive(&iov)
	if errno != 0 {
		return 0, fmt.Errorf("btrfs: encoded write of %d bytes at offset %d: %w",
			len(req.Data), req.Offset, errno)
	}
	return int(n), nil
}
