//go:build unix

package physmem

import (
	"github.com/yawqi/blog-os-yawqi/kernel"
	"golang.org/x/sys/unix"
)

var (
	mmapFn = unix.Mmap

	errReserveFailed = &kernel.Error{Module: "physmem", Message: "unable to reserve host memory for the physical address space"}
)

// reserve backs the physical address space with an anonymous private
// mapping so that the arena is page-aligned and zero-filled.
func reserve(size int) ([]byte, func([]byte) error, *kernel.Error) {
	data, err := mmapFn(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, errReserveFailed
	}

	return data, unix.Munmap, nil
}
