//go:build linux

package hostmem

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/srediag/dma-window/internal/dlog"
)

var logger = dlog.New("hostmem", nil)

// Device is an open physical memory device. One Device can back any number
// of independent mappings.
type Device struct {
	f *os.File
}

// Open opens /dev/mem read-only.
func Open() (*Device, error) { return OpenPath(DefaultPath) }

// OpenPath opens an alternative physical memory node, such as a UIO region.
func OpenPath(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open physical memory %s: %w", path, err)
	}
	return &Device{f: f}, nil
}

// Map establishes a read-only, non-executable shared mapping over the
// physical range [base, base+size). The mapping start is page aligned
// internally; Bytes and Base refer to the requested range.
func (d *Device) Map(base, size uint64) (*Mapping, error) {
	if size == 0 {
		return nil, fmt.Errorf("map %s: zero-length mapping", d.f.Name())
	}
	page := uint64(os.Getpagesize())
	start, delta := alignSpan(base, page)
	raw, err := unix.Mmap(int(d.f.Fd()), int64(start), int(delta+size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s phys %#x+%#x: %w", d.f.Name(), base, size, err)
	}
	logger.Debugf("mapped phys %#x+%#x", base, size)
	return &Mapping{raw: raw, data: raw[delta : delta+size]}, nil
}

// Close closes the device. Existing mappings stay valid until unmapped.
func (d *Device) Close() error {
	return d.f.Close()
}

// Mapping is one established virtual-to-physical translation.
type Mapping struct {
	raw  []byte
	data []byte
}

// Bytes is the mapped range, nil after Unmap.
func (m *Mapping) Bytes() []byte { return m.data }

// Base is the virtual address of the first mapped byte.
func (m *Mapping) Base() uintptr {
	if len(m.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(m.data)))
}

// Unmap releases the translation. Safe to call more than once.
func (m *Mapping) Unmap() error {
	if m.raw == nil {
		return nil
	}
	raw := m.raw
	m.raw, m.data = nil, nil
	if err := unix.Munmap(raw); err != nil {
		logger.Warnf("munmap failed: %v", err)
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
