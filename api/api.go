// Package api defines the public contracts of dma-window.
package api

import (
	"context"
	"net/http"

	"github.com/srediag/dma-window/pkg/cache"
	"github.com/srediag/dma-window/pkg/device"
	"github.com/srediag/dma-window/pkg/window"
)

// Window is the consumer control surface shared by both window flavors.
type Window interface {
	Map(ctx context.Context, offset, length uint64, perms window.Permissions) (*window.Handle, error)
}

// Handle is an established mapping owned by its consumer.
type Handle interface {
	Bytes() []byte
	Base() uintptr
	Close() error
}

// RingWindow adds the per-slot invalidation protocol of the ring flavor.
type RingWindow interface {
	Window
	InvalidateSlot(ctx context.Context, slot uint32) error
	InvalidateSlots(ctx context.Context, slots []uint32) error
}

// Invalidator drops stale cache contents over paired virtual and physical
// ranges.
type Invalidator interface {
	Invalidate(v cache.VirtRange, p cache.PhysRange) error
}

// Lifecycle creates and destroys device identities.
type Lifecycle interface {
	Probe(cfg *device.Config) (*device.Device, error)
	Remove(name string) error
	Shutdown() error
	Health() http.Handler
}

var (
	_ Handle      = (*window.Handle)(nil)
	_ Window      = (*window.RecordingWindow)(nil)
	_ RingWindow  = (*window.RxBufferWindow)(nil)
	_ Window      = (*device.RecordingSurface)(nil)
	_ RingWindow  = (*device.RingSurface)(nil)
	_ Invalidator = (*cache.Controller)(nil)
	_ Lifecycle   = (*device.Manager)(nil)
)
