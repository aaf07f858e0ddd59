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
	"runtime"
	"sync/atomic"

	"github.com/srediag/dma-window/internal/dlog"
	"github.com/srediag/dma-window/pkg/cache"
)

var handleLogger = dlog.New("window", nil)

// Handle is a scoped mapping resource. Closing it releases the translation
// and, for ring windows, restores the unmapped state. A leaked handle is
// released by a finalizer so the owning window can never be wedged in the
// mapped state by an abandoned consumer.
type Handle struct {
	mapping Mapping
	phys    cache.PhysRange
	release func(*Handle)
	closed  atomic.Bool
}

func newHandle(m Mapping, phys cache.PhysRange, release func(*Handle)) *Handle {
	h := &Handle{mapping: m, phys: phys, release: release}
	runtime.SetFinalizer(h, func(h *Handle) {
		if !h.closed.Load() {
			handleLogger.Warnf("mapping handle for phys %#x+%#x leaked, releasing via finalizer", phys.Base, phys.Size)
			_ = h.Close()
		}
	})
	return h
}

// Bytes is the mapped memory, nil once the handle is closed or revoked.
func (h *Handle) Bytes() []byte {
	if h.closed.Load() {
		return nil
	}
	return h.mapping.Bytes()
}

// Base is the virtual address the mapping starts at, 0 after close.
func (h *Handle) Base() uintptr {
	if h.closed.Load() {
		return 0
	}
	return h.mapping.Base()
}

// Phys is the physical range backing the mapping.
func (h *Handle) Phys() cache.PhysRange { return h.phys }

// Close releases the mapping. Idempotent.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	runtime.SetFinalizer(h, nil)
	if h.release != nil {
		h.release(h)
	}
	return h.mapping.Unmap()
}

// revoke tears the handle down from the window side. The caller already
// holds the window state lock, so the release callback must not run.
func (h *Handle) revoke() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	runtime.SetFinalizer(h, nil)
	_ = h.mapping.Unmap()
}
