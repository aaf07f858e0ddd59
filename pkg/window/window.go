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

// Package window exposes hardware-reserved DMA memory to consumers as
// read-only mapped windows.
//
// Two flavors exist. A recording window maps any sub-range of the region
// and invalidates the CPU caches over it before the caller's first read.
// A ring window maps the region as a fixed ring of equal slots, allows one
// mapping at a time, and lets the consumer invalidate individual slots
// after the hardware producer signals them ready.
package window

import (
	"github.com/srediag/dma-window/pkg/cache"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Permissions describes a requested mapping protection. Only the fixed
// read-only, no-execute combination is ever granted.
type Permissions struct {
	Read    bool
	Write   bool
	Execute bool
}

// ReadOnlyNoExec is the only permission set windows accept.
func ReadOnlyNoExec() Permissions { return Permissions{Read: true} }

func (p Permissions) allowed() bool { return p.Read && !p.Write && !p.Execute }

// Mapping is an established virtual-to-physical translation.
type Mapping interface {
	Bytes() []byte
	Base() uintptr
	Unmap() error
}

// Mapper establishes mappings over physical ranges. Implementations decide
// the backing mechanism (/dev/mem, UIO, test memory).
type Mapper interface {
	Map(base, size uint64) (Mapping, error)
}

// Invalidator drops stale cache contents over paired virtual and physical
// ranges. *cache.Controller is the production implementation.
type Invalidator interface {
	Invalidate(v cache.VirtRange, p cache.PhysRange) error
}

// Options carries optional observability hooks shared by both flavors.
type Options struct {
	// Meter and Tracer enable OpenTelemetry instrumentation when set.
	Meter  metric.Meter
	Tracer trace.Tracer
	// Workers sizes the ring window's batch invalidation pool. Zero or
	// one means batch calls run sequentially.
	Workers int
}

// instruments resolves the optional OTel hooks once per window.
type instruments struct {
	tracer trace.Tracer
	maps   metric.Int64Counter
	invs   metric.Int64Counter
}

func newInstruments(opts Options) instruments {
	ins := instruments{tracer: opts.Tracer}
	if opts.Meter != nil {
		ins.maps, _ = opts.Meter.Int64Counter("dma_window.maps")
		ins.invs, _ = opts.Meter.Int64Counter("dma_window.slot_invalidations")
	}
	return ins
}

// checkBounds validates [offset, offset+length) against size without
// overflowing the additions.
func checkBounds(offset, length, size uint64) error {
	if length == 0 || offset > size || length > size-offset {
		return ErrOutOfRange
	}
	return nil
}
