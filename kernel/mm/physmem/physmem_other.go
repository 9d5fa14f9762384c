//go:build !unix

package physmem

import "github.com/yawqi/blog-os-yawqi/kernel"

// reserve falls back to a heap-allocated arena on platforms without mmap.
func reserve(size int) ([]byte, func([]byte) error, *kernel.Error) {
	return make([]byte, size), func([]byte) error { return nil }, nil
}
