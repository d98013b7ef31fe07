package encpkg

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/meigma/encpkg/btrfs"
	"github.com/meigma/encpkg/compress"
	"github.com/meigma/encpkg/pkgfile"
)

// Payload declarations that make a container frame-addressable. Both must
// match exactly; anything else takes the verbatim copy path.
const (
	payloadFormatCpio    = "cpio"
	payloadCompressorZst = "zstd"
)

// EncodedWriteFunc submits one complete compressed frame for storage.
// It returns the number of compressed bytes consumed.
type EncodedWriteFunc func(f *os.File, req *btrfs.Request) (int, error)

// Installer converts container payloads into plain files.
type Installer struct {
	cfg installConfig
}

type installConfig struct {
	logger        *slog.Logger
	encodedWrite  EncodedWriteFunc
	maxCompressed int
	maxPlain      uint64
	minPlain      uint64
}

// InstallOption configures an Installer.
type InstallOption func(*installConfig)

// WithLogger sets the logger for install diagnostics.
func WithLogger(logger *slog.Logger) InstallOption {
	return func(c *installConfig) {
		c.logger = logger
	}
}

// WithEncodedWrite replaces the kernel encoded-write call. Tests use this
// to contract-check the constructed requests without a btrfs target.
func WithEncodedWrite(fn EncodedWriteFunc) InstallOption {
	return func(c *installConfig) {
		c.encodedWrite = fn
	}
}

// WithFallbackThreshold sets the plain size below which a frame is
// decompressed and written plain instead of submitted as an encoded write.
// The default is the filesystem's minimum extent size.
func WithFallbackThreshold(n uint64) InstallOption {
	return func(c *installConfig) {
		c.minPlain = n
	}
}

// NewInstaller creates an Installer with btrfs extent limits and the real
// encoded-write call.
func NewInstaller(opts ...InstallOption) *Installer {
	cfg := installConfig{
		encodedWrite:  btrfs.EncodedWrite,
		maxCompressed: btrfs.MaxCompressed,
		maxPlain:      btrfs.MaxUncompressed,
		minPlain:      btrfs.MinUncompressed,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Installer{cfg: cfg}
}

func (inst *Installer) log() *slog.Logger {
	if inst.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return inst.cfg.logger
}

// Install decodes a container's payload into archivePath and extracts the
// resulting archive under root.
func (inst *Installer) Install(pkg *pkgfile.Package, archivePath, root string) error {
	if err := inst.Decode(pkg, archivePath); err != nil {
		return err
	}
	return inst.ExtractArchive(archivePath, root)
}

// Decode turns a container payload into the plain archive at dst. A
// cpio+zstd payload goes through the frame walk; any other declaration is
// copied verbatim from the container file, since no compression encpkg
// understands was applied.
func (inst *Installer) Decode(pkg *pkgfile.Package, dst string) error {
	hdr := &pkg.Header
	if hdr.PayloadFormat == payloadFormatCpio && hdr.PayloadCompressor == payloadCompressorZst {
		inst.log().Debug("payload is frame addressable",
			"format", hdr.PayloadFormat, "compressor", hdr.PayloadCompressor,
			"payload_offset", pkg.Offsets.Payload)
		return inst.InstallPayload(pkg.Payload, dst)
	}

	inst.log().Debug("payload not frame addressable, copying verbatim",
		"format", hdr.PayloadFormat, "compressor", hdr.PayloadCompressor)
	return inst.copyPayload(pkg, dst)
}

// InstallPayload walks a frame-bounded zstd payload and reconstructs the
// plain bytes at dst. Frames large enough for a compressed extent go to
// the kernel encoded write; undersized frames are decompressed in memory
// and written plain at the same running offset.
func (inst *Installer) InstallPayload(payload []byte, dst string) error {
	dstf, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer dstf.Close()

	var dec *zstd.Decoder

	remaining := payload
	var plainOff uint64
	for len(remaining) > 0 {
		info, err := compress.NextFrame(remaining)
		if err != nil {
			return fmt.Errorf("scan payload at offset %d: %w", len(payload)-len(remaining), err)
		}
		if !info.HasContentSize {
			return fmt.Errorf("frame at offset %d: %w", len(payload)-len(remaining), ErrMissingContentSize)
		}
		frame := remaining[:info.CompressedSize]

		inst.log().Debug("payload frame",
			"compressed_size", info.CompressedSize,
			"content_size", info.ContentSize,
			"plain_offset", plainOff)

		if info.CompressedSize > inst.cfg.maxCompressed || info.ContentSize > inst.cfg.maxPlain {
			// Chunked decompress-and-write for oversized frames is not
			// implemented; producers cap frames at the extent limit.
			return fmt.Errorf("frame of %d compressed / %d plain bytes: %w",
				info.CompressedSize, info.ContentSize, ErrFrameTooLarge)
		}

		if info.ContentSize < inst.cfg.minPlain {
			if dec == nil {
				dec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
				if err != nil {
					return fmt.Errorf("create zstd decoder: %w", err)
				}
				defer dec.Close()
			}
			if err := inst.fallbackWrite(dstf, dec, frame, int64(plainOff), info.ContentSize); err != nil {
				return err
			}
		} else {
			req := &btrfs.Request{
				Offset:   int64(plainOff),
				PlainLen: info.ContentSize,
				// The frame's source was contiguous from the start of its
				// chunk, so the unencoded view is the whole extent.
				UnencodedLen:    info.ContentSize,
				UnencodedOffset: 0,
				Compression:     btrfs.CompressionZstd,
				Data:            frame,
			}
			n, err := inst.cfg.encodedWrite(dstf, req)
			if err != nil {
				// TODO soften to a full decompress-and-write fallback once
				// the failure modes seen in the field are understood.
				return fmt.Errorf("encoded write at plain offset %d: %w", plainOff, err)
			}
			if n != info.CompressedSize {
				return fmt.Errorf("encoded write consumed %d of %d compressed bytes: %w",
					n, info.CompressedSize, ErrLengthMismatch)
			}
		}

		remaining = remaining[info.CompressedSize:]
		plainOff += info.ContentSize
	}

	inst.log().Debug("payload installed", "dst", dst, "plain_size", plainOff)
	return nil
}

// fallbackWrite decompresses one frame in memory and writes the plain
// bytes at off.
func (inst *Installer) fallbackWrite(dstf *os.File, dec *zstd.Decoder, frame []byte, off int64, contentSize uint64) error {
	inst.log().Debug("frame below extent minimum, decompressing",
		"compressed_size", len(frame), "content_size", contentSize)
	plain, err := dec.DecodeAll(frame, make([]byte, 0, contentSize))
	if err != nil {
		return fmt.Errorf("decompress frame at plain offset %d: %w", off, err)
	}
	if uint64(len(plain)) != contentSize {
		return fmt.Errorf("frame decompressed to %d bytes, declared %d: %w",
			len(plain), contentSize, ErrLengthMismatch)
	}
	if _, err := dstf.WriteAt(plain, off); err != nil {
		return fmt.Errorf("write plain bytes at offset %d: %w", off, err)
	}
	return nil
}

// copyPayload copies the raw payload bytes out of the container file at
// the reported segment offset and verifies the copied length.
func (inst *Installer) copyPayload(pkg *pkgfile.Package, dst string) error {
	srcf, err := os.Open(pkg.Path)
	if err != nil {
		return fmt.Errorf("open container: %w", err)
	}
	defer srcf.Close()
	if _, err := srcf.Seek(int64(pkg.Offsets.Payload), io.SeekStart); err != nil {
		return fmt.Errorf("seek to payload: %w", err)
	}

	dstf, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer dstf.Close()

	copied, err := io.Copy(dstf, srcf)
	if err != nil {
		return fmt.Errorf("copy payload: %w", err)
	}
	if copied != int64(len(pkg.Payload)) {
		return fmt.Errorf("copied %d bytes, payload holds %d: %w",
			copied, len(pkg.Payload), ErrLengthMismatch)
	}
	return nil
}
