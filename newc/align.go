package newc

// padLength returns the zero bytes needed to advance off to the next
// multiple of align. align must be a power of two.
func padLength(off, align int) int {
	return (align - (off & (align - 1))) % align
}

// AlignName appends NUL padding to a name so that the entry data following
// the header lands on an offset divisible by align, assuming the header
// itself starts on an align boundary. The padding becomes part of the
// on-disk name field, which newc readers tolerate: the name is
// NUL-terminated and the extra bytes sit after the terminator.
//
// Alignment is best effort. When the header plus name plus terminator
// already extend past the first align boundary there is no room left, and
// the name is returned unpadded; callers install those entries through the
// decompress-and-write path instead. The same applies when align is not a
// positive power of two.
func AlignName(name string, align int) string {
	padded, _ := alignNameAt(name, 0, align)
	return padded
}

// alignNameAt is AlignName with the header's offset within its align block
// folded in, so writers can keep entries aligned past the first one.
// The second result reports whether alignment was achieved.
func alignNameAt(name string, headerOff int64, align int) (string, bool) {
	if align <= 0 || align&(align-1) != 0 {
		return name, false
	}
	// +1 for the name's NUL terminator.
	dataOff := int(headerOff)%align + HeaderLen + len(name) + 1
	if dataOff > align {
		return name, false
	}
	pad := padLength(dataOff, align)
	if pad == 0 {
		return name, true
	}
	b := make([]byte, len(name)+pad)
	copy(b, name)
	return string(b), true
}
