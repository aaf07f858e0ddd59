// Package cache drops stale CPU cache contents shadowing DMA-owned memory.
//
// The backing region is written by a hardware producer that bypasses the CPU
// cache hierarchy, so any line covering that address range may hold stale
// data. Invalidation runs in two ordered passes: the primary data cache is
// maintained by virtual address, line by line, and the outer cache by
// physical address. Both passes drop lines rather than write them back,
// because the CPU never produced valid data in the range.
package cache

import "fmt"

// VirtRange is a half-open virtual address range [Start, Start+Size).
type VirtRange struct {
	Start uintptr
	Size  uint64
}

// PhysRange is a half-open physical address range [Base, Base+Size).
type PhysRange struct {
	Base uint64
	Size uint64
}

// Primary maintains the virtually addressed cache close to the core.
type Primary interface {
	InvalidateRange(v VirtRange) error
}

// Outer maintains the physically addressed outer cache.
type Outer interface {
	InvalidateRange(p PhysRange) error
}

// Controller performs the two-pass invalidation. It holds no mutable state;
// invalidating the same range repeatedly is harmless.
type Controller struct {
	primary Primary
	outer   Outer
}

// New builds a Controller from explicit cache level implementations.
func New(primary Primary, outer Outer) *Controller {
	return &Controller{primary: primary, outer: outer}
}

// Default returns a Controller using the platform primary cache maintenance
// and no outer cache pass. Systems with a software-managed outer cache must
// wire an Outer explicitly (see OpenIoctlOuter).
func Default() *Controller {
	return New(newPlatformPrimary(), NoopOuter{})
}

// Invalidate drops both cache levels over the given ranges, primary first.
// The two ranges describe the same memory through different address spaces
// and must cover the same byte count.
func (c *Controller) Invalidate(v VirtRange, p PhysRange) error {
	if err := c.primary.InvalidateRange(v); err != nil {
		return fmt.Errorf("primary cache invalidate: %w", err)
	}
	if err := c.outer.InvalidateRange(p); err != nil {
		return fmt.Errorf("outer cache invalidate: %w", err)
	}
	return nil
}
