//go:build linux

package cache

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// outerRange is the ioctl argument layout shared with the kernel helper.
type outerRange struct {
	Base uint64
	Size uint64
}

// cacheInvIoctl is _IOW('M', 0, struct outerRange): write direction,
// 16-byte argument, magic 'M', command 0.
const cacheInvIoctl = uintptr(1)<<30 | uintptr(unsafe.Sizeof(outerRange{}))<<16 | uintptr('M')<<8

// IoctlOuter delegates physical-range invalidation to a kernel helper
// character device. Userspace cannot issue outer cache maintenance directly,
// so a privileged helper performs it on our behalf.
type IoctlOuter struct {
	fd   int
	path string
}

// OpenIoctlOuter opens the helper device node.
func OpenIoctlOuter(path string) (*IoctlOuter, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open cache helper %s: %w", path, err)
	}
	return &IoctlOuter{fd: fd, path: path}, nil
}

func (o *IoctlOuter) InvalidateRange(p PhysRange) error {
	if p.Size == 0 {
		return nil
	}
	arg := outerRange{Base: p.Base, Size: p.Size}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(o.fd), cacheInvIoctl, uintptr(unsafe.Pointer(&arg)))
	if errno != 0 {
		return fmt.Errorf("cache helper %s ioctl: %w", o.path, errno)
	}
	return nil
}

// Close releases the helper device.
func (o *IoctlOuter) Close() error {
	return unix.Close(o.fd)
}
