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
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/srediag/dma-window/pkg/cache"
	"github.com/srediag/dma-window/pkg/region"
)

// fakeMapping backs a mapping with heap memory.
type fakeMapping struct {
	data     []byte
	unmapped bool
}

func (m *fakeMapping) Bytes() []byte { return m.data }
func (m *fakeMapping) Base() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(m.data)))
}
func (m *fakeMapping) Unmap() error {
	m.unmapped = true
	return nil
}

type fakeMapper struct {
	mu       sync.Mutex
	err      error
	requests []cache.PhysRange
	mappings []*fakeMapping
}

func (f *fakeMapper) Map(base, size uint64) (Mapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, cache.PhysRange{Base: base, Size: size})
	m := &fakeMapping{data: make([]byte, size)}
	f.mappings = append(f.mappings, m)
	return m, nil
}

type invalidation struct {
	virt cache.VirtRange
	phys cache.PhysRange
}

type fakeInvalidator struct {
	mu    sync.Mutex
	err   error
	calls []invalidation
}

func (f *fakeInvalidator) Invalidate(v cache.VirtRange, p cache.PhysRange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, invalidation{virt: v, phys: p})
	return nil
}

func (f *fakeInvalidator) recorded() []invalidation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]invalidation, len(f.calls))
	copy(out, f.calls)
	return out
}

func recordingResolver(t *testing.T, base, size uint64) *region.Resolver {
	t.Helper()
	res, err := region.ResolveRecording(region.StaticLookup{"r": {Base: base, Size: size}}, "r")
	require.NoError(t, err)
	return res
}

func ringResolver(t *testing.T, base, size, bufferSize uint64) *region.Resolver {
	t.Helper()
	res, err := region.ResolveRing(region.StaticLookup{"r": {Base: base, Size: size}}, "r", bufferSize)
	require.NoError(t, err)
	return res
}
