package mm

// AlignUp rounds addr up to the nearest multiple of align. The alignment must
// be a power of two.
func AlignUp(addr, align uintptr) uintptr {
	return (addr + align - 1) &^ (align - 1)
}

// AlignDown rounds addr down to the nearest multiple of align. The alignment
// must be a power of two.
func AlignDown(addr, align uintptr) uintptr {
	return addr &^ (align - 1)
}

// IsAligned returns true if addr is a multiple of align.
func IsAligned(addr, align uintptr) bool {
	return addr&(align-1) == 0
}

// IsPowerOfTwo returns true if v is a non-zero power of two.
func IsPowerOfTwo(v uintptr) bool {
	return v != 0 && v&(v-1) == 0
}
