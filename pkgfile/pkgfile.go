// Package pkgfile reads and writes encpkg containers.
//
// A container is a flat file: an 8-byte magic, two length words, a
// CBOR-encoded header, an optional detached ed25519 signature, and the
// compressed payload running to end of file. The header records how the
// payload was produced (archive format, compressor, level) and carries a
// digest over the payload bytes, verified on open. Installers address the
// payload through SegmentOffsets instead of re-parsing the container.
package pkgfile

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/opencontainers/go-digest"
)

// magic opens every container; the final byte is the format version.
var magic = [8]byte{'E', 'P', 'K', 'G', 0, 0, 0, 1}

// preludeLen is the magic plus the header and signature length words.
const preludeLen = len(magic) + 4 + 4

// Sentinel errors returned by this package.
var (
	// ErrBadMagic is returned when a file is not an encpkg container.
	ErrBadMagic = errors.New("not an encpkg container")

	// ErrDigestMismatch is returned when the payload does not match the
	// digest recorded in the header.
	ErrDigestMismatch = errors.New("payload digest mismatch")

	// ErrSignature is returned when signature verification fails or the
	// container carries no signature to verify.
	ErrSignature = errors.New("signature verification failed")
)

// encMode encodes headers with deterministic CBOR so that the signed bytes
// are stable across builds of the same metadata.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("pkgfile: CBOR encoder initialization failed: " + err.Error())
	}
}

// Header is the container metadata.
type Header struct {
	Name      string `cbor:"name"`
	Version   string `cbor:"version"`
	Release   string `cbor:"release,omitempty"`
	Arch      string `cbor:"arch,omitempty"`
	Summary   string `cbor:"summary,omitempty"`
	BuildTime int64  `cbor:"build_time,omitempty"`

	// PayloadFormat names the archive format inside the payload ("cpio").
	PayloadFormat string `cbor:"payload_format"`

	// PayloadCompressor names the codec applied to the archive.
	PayloadCompressor string `cbor:"payload_compressor"`

	// PayloadFlags carries compressor configuration, conventionally the
	// compression level as a decimal string.
	PayloadFlags string `cbor:"payload_flags,omitempty"`

	// PayloadSize is the compressed payload length in bytes.
	PayloadSize uint64 `cbor:"payload_size"`

	// PayloadDigest is a digest over the compressed payload bytes.
	PayloadDigest digest.Digest `cbor:"payload_digest"`
}

// SegmentOffsets locates each container segment as absolute byte offsets.
type SegmentOffsets struct {
	Header    uint64
	Signature uint64
	Payload   uint64
}

// Package is an opened container.
type Package struct {
	// Path is the file the container was read from.
	Path string

	Header  Header
	Payload []byte
	Offsets SegmentOffsets

	headerRaw []byte
	signature []byte
}

// Open reads and parses a container, verifying the payload digest.
// The signature, if any, is not checked here; call Verify.
func Open(path string) (*Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read container: %w", err)
	}
	pkg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse container %s: %w", path, err)
	}
	pkg.Path = path
	return pkg, nil
}

func parse(data []byte) (*Package, error) {
	if len(data) < preludeLen || [8]byte(data[:8]) != magic {
		return nil, ErrBadMagic
	}
	headerLen := binary.BigEndian.Uint32(data[8:12])
	sigLen := binary.BigEndian.Uint32(data[12:16])

	headerEnd := uint64(preludeLen) + uint64(headerLen)
	sigEnd := headerEnd + uint64(sigLen)
	if sigEnd > uint64(len(data)) {
		return nil, fmt.Errorf("%w: truncated header segments", ErrBadMagic)
	}

	pkg := &Package{
		Offsets: SegmentOffsets{
			Header:    uint64(preludeLen),
			Signature: headerEnd,
			Payload:   sigEnd,
		},
		headerRaw: data[preludeLen:headerEnd],
		signature: data[headerEnd:sigEnd],
		Payload:   data[sigEnd:],
	}

	if err := cbor.Unmarshal(pkg.headerRaw, &pkg.Header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if pkg.Header.PayloadSize != uint64(len(pkg.Payload)) {
		return nil, fmt.Errorf("%w: header declares %d payload bytes, file holds %d",
			ErrDigestMismatch, pkg.Header.PayloadSize, len(pkg.Payload))
	}
	if pkg.Header.PayloadDigest != "" {
		if err := pkg.Header.PayloadDigest.Validate(); err != nil {
			return nil, fmt.Errorf("invalid payload digest: %w", err)
		}
		algo := pkg.Header.PayloadDigest.Algorithm()
		if actual := algo.FromBytes(pkg.Payload); actual != pkg.Header.PayloadDigest {
			return nil, fmt.Errorf("%w: header %s, payload %s",
				ErrDigestMismatch, pkg.Header.PayloadDigest, actual)
		}
	}
	return pkg, nil
}

// Signed reports whether the container carries a signature.
func (p *Package) Signed() bool {
	return len(p.signature) > 0
}

// Verify checks the container's detached signature against an ed25519
// public key. The signed message is the encoded header followed by the
// payload, so neither metadata nor content can change under the signature.
func (p *Package) Verify(pub ed25519.PublicKey) error {
	if len(p.signature) == 0 {
		return fmt.Errorf("%w: container is unsigned", ErrSignature)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: public key has %d bytes, want %d",
			ErrSignature, len(pub), ed25519.PublicKeySize)
	}
	if !ed25519.Verify(pub, signedMessage(p.headerRaw, p.Payload), p.signature) {
		return ErrSignature
	}
	return nil
}

func signedMessage(headerRaw, payload []byte) []byte {
	msg := make([]byte, 0, len(headerRaw)+len(payload))
	msg = append(msg, headerRaw...)
	return append(msg, payload...)
}
