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
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/dma-window/pkg/cache"
	"github.com/srediag/dma-window/pkg/region"
)

// RecordingWindow exposes the whole region for mapping. It keeps no state
// beyond the region descriptor: any number of independent, even
// overlapping, mappings may coexist, each owned by its handle.
type RecordingWindow struct {
	res    *region.Resolver
	mapper Mapper
	inv    Invalidator
	ins    instruments
}

// NewRecording builds a recording window over a resolved region.
func NewRecording(res *region.Resolver, mapper Mapper, inv Invalidator, opts Options) (*RecordingWindow, error) {
	if res == nil || mapper == nil || inv == nil {
		return nil, fmt.Errorf("%w: recording window needs a resolver, a mapper and an invalidator", region.ErrConfig)
	}
	return &RecordingWindow{res: res, mapper: mapper, inv: inv, ins: newInstruments(opts)}, nil
}

// Map establishes a read-only mapping over [offset, offset+length) of the
// region and drops both cache levels over it before returning, so the
// caller's first read observes hardware-fresh data. Mapper failures
// propagate verbatim.
func (w *RecordingWindow) Map(ctx context.Context, offset, length uint64, perms Permissions) (*Handle, error) {
	if w.ins.tracer != nil {
		var span trace.Span
		ctx, span = w.ins.tracer.Start(ctx, "recording.map")
		defer span.End()
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
	virt := cache.VirtRange{Start: m.Base(), Size: length}
	if err := w.inv.Invalidate(virt, phys); err != nil {
		_ = m.Unmap()
		return nil, err
	}
	if w.ins.maps != nil {
		w.ins.maps.Add(ctx, 1)
	}
	return newHandle(m, phys, nil), nil
}
