package newc

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"
)

// Writer emits a newc archive. Entries are written in call order; Close
// writes the trailer record.
type Writer struct {
	w      io.Writer
	cfg    writerConfig
	off    int64
	ino    uint32
	closed bool
}

type writerConfig struct {
	align  int
	logger *slog.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*writerConfig)

// WithAlignment sets the target alignment for entry data offsets. Zero
// disables alignment padding. The default is DataAlign.
func WithAlignment(n int) WriterOption {
	return func(c *writerConfig) {
		c.align = n
	}
}

// WithWriterLogger sets the logger for alignment diagnostics.
func WithWriterLogger(logger *slog.Logger) WriterOption {
	return func(c *writerConfig) {
		c.logger = logger
	}
}

// NewWriter creates a Writer emitting to w.
func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	cfg := writerConfig{align: DataAlign}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Writer{w: w, cfg: cfg, ino: 1}
}

func (w *Writer) log() *slog.Logger {
	if w.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.cfg.logger
}

// WriteFile appends one regular-file entry. The name is stored as given,
// plus NUL padding when alignment is enabled and reachable.
func (w *Writer) WriteFile(name string, data []byte, mode fs.FileMode, mtime time.Time) error {
	if w.closed {
		return fmt.Errorf("newc: write %s: archive already closed", name)
	}
	if name == "" || name == TrailerName {
		return fmt.Errorf("newc: invalid entry name %q", name)
	}
	if len(data) > int(^uint32(0)) {
		return fmt.Errorf("newc: %s: size %d exceeds format limit", name, len(data))
	}

	stored := name
	if w.cfg.align > 0 {
		var aligned bool
		stored, aligned = alignNameAt(name, w.off, w.cfg.align)
		if !aligned {
			w.log().Warn("no room to align entry data", "name", name, "alignment", w.cfg.align)
		}
	}

	hdr := &header{
		ino:      w.ino,
		mode:     modeRegular | uint32(mode.Perm()),
		nlink:    1,
		mtime:    uint32(max(mtime.Unix(), 0)),
		filesize: uint32(len(data)),
		namesize: uint32(len(stored) + 1),
	}
	w.ino++

	if err := w.writeRecord(hdr, stored, data); err != nil {
		return fmt.Errorf("newc: write %s: %w", name, err)
	}
	return nil
}

// Close writes the trailer record. The underlying writer is not closed.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	hdr := &header{
		nlink:    1,
		namesize: uint32(len(TrailerName) + 1),
	}
	if err := w.writeRecord(hdr, TrailerName, nil); err != nil {
		return fmt.Errorf("newc: write trailer: %w", err)
	}
	return nil
}

// Offset returns the number of archive bytes written so far.
func (w *Writer) Offset() int64 {
	return w.off
}

func (w *Writer) writeRecord(hdr *header, name string, data []byte) error {
	buf := make([]byte, 0, HeaderLen+len(name)+1+recordAlign)
	buf = appendHeader(buf, hdr)
	buf = append(buf, name...)
	buf = append(buf, 0)
	buf = append(buf, make([]byte, recordPad(HeaderLen+len(name)+1))...)
	if err := w.write(buf); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := w.write(data); err != nil {
		return err
	}
	if pad := recordPad(len(data)); pad > 0 {
		return w.write(make([]byte, pad))
	}
	return nil
}

func (w *Writer) write(b []byte) error {
	n, err := w.w.Write(b)
	w.off += int64(n)
	return err
}
