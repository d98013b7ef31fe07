package newc

import (
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"
)

// Entry describes one archive member.
type Entry struct {
	// Name is the stored path with NUL alignment padding stripped.
	Name string

	// Size is the entry's data length in bytes.
	Size int64

	// DataOffset is the absolute byte offset of the entry's data within
	// the archive, suitable for positioned reads on a separate handle.
	DataOffset int64

	// Mode holds the permission bits. File-type bits are dropped; this
	// reader only yields regular files.
	Mode fs.FileMode

	// ModTime is the stored modification time, at second granularity.
	ModTime time.Time

	UID uint32
	GID uint32
}

// Reader walks a newc archive sequentially. Entry data is not returned
// inline; consumers read it through Entry.DataOffset on their own handle.
type Reader struct {
	r    io.Reader
	off  int64
	skip int64
	done bool
}

// NewReader creates a Reader consuming r from the archive's first byte.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next returns the next entry. It returns io.EOF once the trailer record
// is reached. Any unread data of the previous entry is skipped.
func (r *Reader) Next() (*Entry, error) {
	if r.done {
		return nil, io.EOF
	}
	if err := r.discard(r.skip); err != nil {
		return nil, fmt.Errorf("newc: skip entry data: %w", err)
	}
	r.skip = 0

	buf := make([]byte, HeaderLen)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, fmt.Errorf("newc: read header at offset %d: %w", r.off, err)
	}
	r.off += HeaderLen
	hdr, err := parseHeader(buf)
	if err != nil {
		return nil, err
	}
	if hdr.namesize == 0 {
		return nil, fmt.Errorf("newc: entry at offset %d has empty name", r.off-HeaderLen)
	}

	nameField := int(hdr.namesize) + recordPad(HeaderLen+int(hdr.namesize))
	nameBuf := make([]byte, nameField)
	if _, err := io.ReadFull(r.r, nameBuf); err != nil {
		return nil, fmt.Errorf("newc: read name: %w", err)
	}
	r.off += int64(nameField)

	// The terminator and any alignment padding are all trailing NULs.
	name := strings.TrimRight(string(nameBuf[:hdr.namesize]), "\x00")
	if name == TrailerName {
		r.done = true
		return nil, io.EOF
	}

	entry := &Entry{
		Name:       name,
		Size:       int64(hdr.filesize),
		DataOffset: r.off,
		Mode:       fs.FileMode(hdr.mode).Perm(),
		ModTime:    time.Unix(int64(hdr.mtime), 0),
		UID:        hdr.uid,
		GID:        hdr.gid,
	}
	r.skip = entry.Size + int64(recordPad(int(hdr.filesize)))
	return entry, nil
}

func (r *Reader) discard(n int64) error {
	if n == 0 {
		return nil
	}
	copied, err := io.CopyN(io.Discard, r.r, n)
	r.off += copied
	return err
}
