// Package region resolves and validates hardware-reserved memory ranges.
//
// A reserved region is a physically contiguous range set aside outside the
// general-purpose allocator for a DMA peripheral. The resolver only records
// and validates the bounds; it never allocates, frees, or touches the memory.
package region

import (
	"errors"
	"fmt"
	"math"
)

// ErrConfig marks construction-time configuration failures. A resolver that
// fails construction never enters service.
var ErrConfig = errors.New("region: invalid configuration")

// Region is an immutable physical memory range.
type Region struct {
	Base uint64
	Size uint64
}

// Geometry describes how a region divides into a ring of equal slots.
// BufferSize*uint64(NumBuffers) always equals the region size.
type Geometry struct {
	BufferSize uint64
	NumBuffers uint32
}

// Resolver exposes a validated region and, for the ring flavor, its
// geometry. Immutable after construction.
type Resolver struct {
	region Region
	geom   *Geometry
}

// ResolveRecording resolves a named reserved region with no ring geometry.
func ResolveRecording(lk Lookup, name string) (*Resolver, error) {
	r, err := resolve(lk, name)
	if err != nil {
		return nil, err
	}
	return &Resolver{region: r}, nil
}

// ResolveRing resolves a named reserved region and derives its slot
// geometry. The region size must be an exact multiple of bufferSize.
func ResolveRing(lk Lookup, name string, bufferSize uint64) (*Resolver, error) {
	r, err := resolve(lk, name)
	if err != nil {
		return nil, err
	}
	if bufferSize == 0 {
		return nil, fmt.Errorf("%w: buffer size required for ring regions", ErrConfig)
	}
	if r.Size%bufferSize != 0 {
		return nil, fmt.Errorf("%w: region size %#x not divisible by buffer size %#x", ErrConfig, r.Size, bufferSize)
	}
	n := r.Size / bufferSize
	if n > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d slots exceed the addressable slot count", ErrConfig, n)
	}
	return &Resolver{
		region: r,
		geom:   &Geometry{BufferSize: bufferSize, NumBuffers: uint32(n)},
	}, nil
}

func resolve(lk Lookup, name string) (Region, error) {
	if lk == nil {
		return Region{}, fmt.Errorf("%w: no reserved memory lookup", ErrConfig)
	}
	if name == "" {
		return Region{}, fmt.Errorf("%w: reserved memory region not named", ErrConfig)
	}
	r, err := lk.Reserved(name)
	if err != nil {
		return Region{}, err
	}
	if r.Size == 0 {
		return Region{}, fmt.Errorf("%w: reserved region %q is empty", ErrConfig, name)
	}
	if r.Base > math.MaxUint64-r.Size {
		return Region{}, fmt.Errorf("%w: reserved region %q wraps the physical address space", ErrConfig, name)
	}
	return r, nil
}

// Region returns the resolved physical range.
func (r *Resolver) Region() Region { return r.region }

// Base returns the physical base address.
func (r *Resolver) Base() uint64 { return r.region.Base }

// Size returns the region size in bytes.
func (r *Resolver) Size() uint64 { return r.region.Size }

// Geometry returns the ring geometry. ok is false for recording regions.
func (r *Resolver) Geometry() (g Geometry, ok bool) {
	if r.geom == nil {
		return Geometry{}, false
	}
	return *r.geom, true
}
