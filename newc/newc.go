// Package newc reads and writes cpio archives in the "newc" (SVR4, magic
// 070701) format, the intermediate archive carried inside encpkg
// containers.
//
// The format is deliberately minimal here: regular files only, with path,
// mode, ownership, timestamps, and size. The writer can NUL-pad name fields
// so that each entry's data begins at a filesystem-block-aligned offset,
// which is what lets an installer address the stored data with encoded
// writes. The reader exposes every entry's absolute data offset for
// positioned reads.
package newc

import (
	"fmt"
	"strconv"
)

const (
	// Magic identifies a newc header.
	Magic = "070701"

	// HeaderLen is the fixed header size, before the name field.
	HeaderLen = 110

	// TrailerName terminates the archive.
	TrailerName = "TRAILER!!!"

	// DataAlign is the default target alignment for entry data. It matches
	// the filesystem block size encoded writes address.
	DataAlign = 4096
)

// recordAlign is the mandatory newc record padding: the name field and the
// data field are each padded so the following record starts on a 4-byte
// boundary relative to the archive start.
const recordAlign = 4

// modeRegular is the file-type portion of a newc mode for a regular file.
const modeRegular = 0o100000

// header mirrors the thirteen 8-digit ASCII-hex fields that follow the
// magic in every newc header.
type header struct {
	ino      uint32
	mode     uint32
	uid      uint32
	gid      uint32
	nlink    uint32
	mtime    uint32
	filesize uint32
	devmajor uint32
	devminor uint32
	rdevmaj  uint32
	rdevmin  uint32
	namesize uint32
	check    uint32
}

// appendHeader serializes h after the magic into b.
func appendHeader(b []byte, h *header) []byte {
	b = append(b, Magic...)
	for _, v := range [13]uint32{
		h.ino, h.mode, h.uid, h.gid, h.nlink, h.mtime, h.filesize,
		h.devmajor, h.devminor, h.rdevmaj, h.rdevmin, h.namesize, h.check,
	} {
		b = fmt.Appendf(b, "%08X", v)
	}
	return b
}

// parseHeader decodes a 110-byte newc header.
func parseHeader(b []byte) (*header, error) {
	if len(b) < HeaderLen {
		return nil, fmt.Errorf("newc header: %d bytes, want %d", len(b), HeaderLen)
	}
	if string(b[:len(Magic)]) != Magic {
		return nil, fmt.Errorf("newc header: bad magic %q", b[:len(Magic)])
	}

	var fields [13]uint32
	off := len(Magic)
	for i := range fields {
		v, err := strconv.ParseUint(string(b[off:off+8]), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("newc header field %d: %w", i, err)
		}
		fields[i] = uint32(v)
		off += 8
	}

	return &header{
		ino: fields[0], mode: fields[1], uid: fields[2], gid: fields[3],
		nlink: fields[4], mtime: fields[5], filesize: fields[6],
		devmajor: fields[7], devminor: fields[8],
		rdevmaj: fields[9], rdevmin: fields[10],
		namesize: fields[11], check: fields[12],
	}, nil
}

// recordPad returns the bytes needed to advance n to the next 4-byte
// record boundary.
func recordPad(n int) int {
	return (recordAlign - n%recordAlign) % recordAlign
}
