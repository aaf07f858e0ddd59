//go:build !linux

package hostmem

import "errors"

// ErrUnsupported reports that physical memory mapping is not available on
// this platform.
var ErrUnsupported = errors.New("hostmem: physical memory mapping requires linux")

type Device struct{}

func Open() (*Device, error)                      { return nil, ErrUnsupported }
func OpenPath(string) (*Device, error)            { return nil, ErrUnsupported }
func (*Device) Map(_, _ uint64) (*Mapping, error) { return nil, ErrUnsupported }
func (*Device) Close() error                      { return nil }

type Mapping struct{}

func (*Mapping) Bytes() []byte { return nil }
func (*Mapping) Base() uintptr { return 0 }
func (*Mapping) Unmap() error  { return nil }
