//go:build !(linux && arm64)

package cache

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// msyncPrimary asks the kernel to drop cached pages over the range. Page
// granular rather than line granular, which is acceptable: the whole range
// belongs to the hardware producer, so over-invalidation cannot lose data.
type msyncPrimary struct{}

func newPlatformPrimary() Primary { return msyncPrimary{} }

func (msyncPrimary) InvalidateRange(v VirtRange) error {
	if v.Size == 0 {
		return nil
	}
	// msync insists on a page-aligned start address.
	page := uintptr(unix.Getpagesize())
	start := v.Start &^ (page - 1)
	size := v.Size + uint64(v.Start-start)
	b := unsafe.Slice((*byte)(unsafe.Pointer(start)), size)
	return unix.Msync(b, unix.MS_INVALIDATE)
}
