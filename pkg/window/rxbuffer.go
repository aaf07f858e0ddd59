/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package window

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/dma-window/pkg/cache"
	"github.com/srediag/dma-window/pkg/region"
)

// RxBufferWindow exposes the region as a fixed ring of equal slots written
// round-robin by the hardware producer. Slot-to-address translation needs a
// single authoritative mapping anchor, so at most one mapping exists at a
// time.
//
// The consumer protocol: Map once, then for every slot the producer signals
// ready (over an external channel), InvalidateSlot before reading it.
type RxBufferWindow struct {
	res  *region.Resolver
	geom region.Geometry

	mapper Mapper
	inv    Invalidator
	ins    instruments
	pool   *ants.Pool

	// mu guards the mapping state. Slot invalidation only needs read
	// access: distinct slots touch disjoint ranges and share nothing but
	// the immutable anchor.
	mu         sync.RWMutex
	owner      *Handle
	mappedBase uintptr
	mappedLen  uint64
	revoked    bool
}

// NewRxBuffer builds a ring window over a resolver carrying ring geometry.
func NewRxBuffer(res *region.Resolver, mapper Mapper, inv Invalidator, opts Options) (*RxBufferWindow, error) {
	if res == nil || mapper == nil || inv == nil {
		return nil, fmt.Errorf("%w: ring window needs a resolver, a mapper and an invalidator", region.ErrConfig)
	}
	geom, ok := res.Geometry()
	if !ok {
		return nil, fmt.Errorf("%w: ring window needs ring geometry", region.ErrConfig)
	}
	w := &RxBufferWindow{res: res, geom: geom, mapper: mapper, inv: inv, ins: newInstruments(opts)}
	if opts.Workers > 1 {
		pool, err := ants.NewPool(opts.Workers)
		if err != nil {
			return nil, fmt.Errorf("ring window worker pool: %w", err)
		}
		w.pool = pool
	}
	return w, nil
}

// Geometry returns the ring geometry.
func (w *RxBufferWindow) Geometry() region.Geometry { return w.geom }

// Map establishes the single ring mapping over [offset, offset+length).
// A second call without an intervening release fails with ErrAlreadyMapped.
// The returned handle owns the mapped state: only its release restores the
// unmapped state, so a stale handle from a previous mapping cannot clobber
// a newer one.
func (w *RxBufferWindow) Map(ctx context.Context, offset, length uint64, perms Permissions) (*Handle, error) {
	if w.ins.tracer != nil {
		var span trace.Span
		ctx, span = w.ins.tracer.Start(ctx, "rxbuffer.map")
		defer span.End()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.revoked {
		return nil, ErrRevoked
	}
	if w.owner != nil {
		return nil, ErrAlreadyMapped
	}
	if !perms.allowed() {
		return nil, ErrPermission
	}
	if err := checkBounds(offset, length, w.res.Size()); err != nil {
		return nil, err
	}

	phys := cache.PhysRange{Base: w.res.Base() + offset, Size: length}
	m, err := w.mapper.Map(phys.Base, phys.Size)
	if err != nil {
		return nil, err
	}
	h := newHandle(m, phys, w.releaseOwner)
	w.owner = h
	w.mappedBase = m.Base()
	w.mappedLen = length
	if w.ins.maps != nil {
		w.ins.maps.Add(ctx, 1)
	}
	return h, nil
}

// releaseOwner restores the unmapped state when the owning handle closes.
func (w *RxBufferWindow) releaseOwner(h *Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.owner == h {
		w.owner = nil
		w.mappedBase = 0
		w.mappedLen = 0
	}
}

// InvalidateSlot drops both cache levels over one slot of the mapped ring.
// The consumer calls this after the producer signals the slot ready and
// before reading it. Calls for distinct slots may run concurrently.
func (w *RxBufferWindow) InvalidateSlot(ctx context.Context, slot uint32) error {
	if w.ins.tracer != nil {
		var span trace.Span
		ctx, span = w.ins.tracer.Start(ctx, "rxbuffer.invalidate_slot")
		defer span.End()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.revoked {
		return ErrRevoked
	}
	if w.owner == nil {
		return ErrNotMapped
	}
	if slot >= w.geom.NumBuffers {
		return ErrOutOfRange
	}
	off := uint64(slot) * w.geom.BufferSize
	// The slot must fall inside the established mapping; a partial
	// mapping cannot anchor slots beyond its end.
	if off+w.geom.BufferSize > w.mappedLen {
		return ErrOutOfRange
	}

	virt := cache.VirtRange{Start: w.mappedBase + uintptr(off), Size: w.geom.BufferSize}
	phys := cache.PhysRange{Base: w.res.Base() + off, Size: w.geom.BufferSize}
	if err := w.inv.Invalidate(virt, phys); err != nil {
		return err
	}
	if w.ins.invs != nil {
		w.ins.invs.Add(ctx, 1)
	}
	return nil
}

// InvalidateSlots invalidates a batch of ready slots, fanned out on the
// worker pool when one was configured. Slots should be distinct; repeats
// are harmless but wasted work.
func (w *RxBufferWindow) InvalidateSlots(ctx context.Context, slots []uint32) error {
	if w.pool == nil {
		errs := make([]error, len(slots))
		for i, s := range slots {
			errs[i] = w.InvalidateSlot(ctx, s)
		}
		return errors.Join(errs...)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(slots))
	for i, s := range slots {
		i, s := i, s // per-iteration copies for the Go <1.22 toolchain
		wg.Add(1)
		if err := w.pool.Submit(func() {
			defer wg.Done()
			errs[i] = w.InvalidateSlot(ctx, s)
		}); err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Revoke force-unmaps and permanently disables the window. The lifecycle
// manager calls this on device teardown; outstanding handles become inert.
func (w *RxBufferWindow) Revoke() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.owner != nil {
		w.owner.revoke()
		w.owner = nil
		w.mappedBase = 0
		w.mappedLen = 0
	}
	w.revoked = true
}

// Close revokes the window and releases the worker pool.
func (w *RxBufferWindow) Close() error {
	w.Revoke()
	if w.pool != nil {
		w.pool.Release()
	}
	return nil
}

// Mapped reports whether a mapping is currently established.
func (w *RxBufferWindow) Mapped() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.owner != nil
}
