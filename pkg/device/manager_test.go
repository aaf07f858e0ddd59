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

package device

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/dma-window/pkg/cache"
	"github.com/srediag/dma-window/pkg/region"
	"github.com/srediag/dma-window/pkg/window"
)

type heapMapping struct {
	data []byte
}

func (m *heapMapping) Bytes() []byte { return m.data }
func (m *heapMapping) Base() uintptr { return 1 << 20 } // synthetic anchor, never dereferenced
func (m *heapMapping) Unmap() error  { m.data = nil; return nil }

type heapMapper struct{}

func (heapMapper) Map(base, size uint64) (window.Mapping, error) {
	return &heapMapping{data: make([]byte, size)}, nil
}

type nullPrimary struct{}

func (nullPrimary) InvalidateRange(cache.VirtRange) error { return nil }

func testController() *cache.Controller {
	return cache.New(nullPrimary{}, cache.NoopOuter{})
}

func testLookup() region.StaticLookup {
	return region.StaticLookup{
		"sdr-recording": {Base: 0x18000000, Size: 0x2000000},
		"sdr-rx":        {Base: 0x10000000, Size: 0x100000},
	}
}

func ringConfig() *Config {
	return &Config{
		Name:         "sdr-rx",
		Flavor:       FlavorRxBuffer,
		MemoryRegion: "sdr-rx",
		BufferSize:   0x10000,
		Lookup:       testLookup(),
		Mapper:       heapMapper{},
		Controller:   testController(),
	}
}

func recordingConfig() *Config {
	return &Config{
		Name:         "sdr-recording",
		Flavor:       FlavorRecording,
		MemoryRegion: "sdr-recording",
		Lookup:       testLookup(),
		Mapper:       heapMapper{},
		Controller:   testController(),
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestProbeRecordingDevice(t *testing.T) {
	m := NewManager(ManagerOptions{})
	defer func() { _ = m.Shutdown() }()

	dev, err := m.Probe(recordingConfig())
	require.NoError(t, err)
	assert.Equal(t, "sdr-recording", dev.Name())
	assert.Equal(t, uint32(0), dev.Minor())
	assert.Equal(t, FlavorRecording, dev.Flavor())

	surface, ok := dev.Recording()
	require.True(t, ok)
	_, ringOk := dev.Ring()
	assert.False(t, ringOk)

	h, err := surface.Map(context.Background(), 0, 0x1000, window.ReadOnlyNoExec())
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.Equal(t, float64(1), counterValue(t, m.metrics.maps))

	got, found := m.Get("sdr-recording")
	require.True(t, found)
	assert.Same(t, dev, got)
}

func TestProbeRingDeviceEndToEnd(t *testing.T) {
	m := NewManager(ManagerOptions{})
	defer func() { _ = m.Shutdown() }()

	dev, err := m.Probe(ringConfig())
	require.NoError(t, err)
	ring, ok := dev.Ring()
	require.True(t, ok)
	assert.Equal(t, uint32(16), ring.Geometry().NumBuffers)

	h, err := ring.Map(context.Background(), 0, 0x100000, window.ReadOnlyNoExec())
	require.NoError(t, err)
	require.NoError(t, ring.InvalidateSlot(context.Background(), 15))
	assert.Equal(t, float64(1), counterValue(t, m.metrics.slotInvalidations))
	require.NoError(t, h.Close())
}

func TestProbeDuplicateNameUnwinds(t *testing.T) {
	m := NewManager(ManagerOptions{})
	defer func() { _ = m.Shutdown() }()

	_, err := m.Probe(ringConfig())
	require.NoError(t, err)
	require.Equal(t, 1, m.minors.inUse())

	_, err = m.Probe(ringConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceExists))
	assert.Equal(t, 1, m.minors.inUse(), "failed probe must release its minor")
	assert.Len(t, m.Names(), 1)
}

func TestProbeRejectsBadConfig(t *testing.T) {
	m := NewManager(ManagerOptions{})
	defer func() { _ = m.Shutdown() }()

	cfg := ringConfig()
	cfg.BufferSize = 0x3000 // does not divide 0x100000
	_, err := m.Probe(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, region.ErrConfig))
	assert.Zero(t, m.minors.inUse())
}

type flakyLookup struct {
	fails    int
	attempts int
	inner    region.Lookup
}

func (f *flakyLookup) Reserved(name string) (region.Region, error) {
	f.attempts++
	if f.attempts <= f.fails {
		return region.Region{}, fmt.Errorf("device tree not populated yet")
	}
	return f.inner.Reserved(name)
}

func TestProbeRetriesTransientLookupFailures(t *testing.T) {
	m := NewManager(ManagerOptions{})
	defer func() { _ = m.Shutdown() }()

	lk := &flakyLookup{fails: 2, inner: testLookup()}
	cfg := ringConfig()
	cfg.Lookup = lk
	cfg.LookupRetries = 5

	_, err := m.Probe(cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, lk.attempts)
}

func TestProbeDoesNotRetryConfigErrors(t *testing.T) {
	m := NewManager(ManagerOptions{})
	defer func() { _ = m.Shutdown() }()

	lk := &flakyLookup{inner: testLookup()}
	cfg := ringConfig()
	cfg.Lookup = lk
	cfg.MemoryRegion = "absent"
	cfg.LookupRetries = 5

	_, err := m.Probe(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, region.ErrConfig))
	assert.Equal(t, 1, lk.attempts, "configuration errors are permanent")
}

func TestRemoveRevokesRingWindow(t *testing.T) {
	m := NewManager(ManagerOptions{})
	defer func() { _ = m.Shutdown() }()

	dev, err := m.Probe(ringConfig())
	require.NoError(t, err)
	ring, _ := dev.Ring()
	h, err := ring.Map(context.Background(), 0, 0x100000, window.ReadOnlyNoExec())
	require.NoError(t, err)

	require.NoError(t, m.Remove("sdr-rx"))
	assert.Nil(t, h.Bytes(), "teardown invalidates outstanding handles")
	assert.False(t, ring.Mapped())
	assert.Zero(t, m.minors.inUse())

	err = m.Remove("sdr-rx")
	assert.True(t, errors.Is(err, ErrDeviceNotFound))
}

func TestAttrs(t *testing.T) {
	m := NewManager(ManagerOptions{})
	defer func() { _ = m.Shutdown() }()

	rec, err := m.Probe(recordingConfig())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		AttrRecordingBaseAddress: "0x18000000",
		AttrRecordingSize:        "0x02000000",
	}, rec.Attrs())

	ring, err := m.Probe(ringConfig())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		AttrBufferSize: "0x00010000",
		AttrNumBuffers: "16",
	}, ring.Attrs())
}

func TestHealthEndpoints(t *testing.T) {
	m := NewManager(ManagerOptions{})
	defer func() { _ = m.Shutdown() }()

	get := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		m.Health().ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, get("/live"))
	assert.Equal(t, http.StatusServiceUnavailable, get("/ready"), "not ready before any device is probed")

	_, err := m.Probe(ringConfig())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get("/ready"))
}

func TestShutdownRemovesEverything(t *testing.T) {
	m := NewManager(ManagerOptions{})

	_, err := m.Probe(ringConfig())
	require.NoError(t, err)
	_, err = m.Probe(recordingConfig())
	require.NoError(t, err)

	require.NoError(t, m.Shutdown())
	assert.Empty(t, m.Names())
	assert.Zero(t, m.minors.inUse())
}

func TestDebugString(t *testing.T) {
	m := NewManager(ManagerOptions{})
	defer func() { _ = m.Shutdown() }()

	_, err := m.Probe(ringConfig())
	require.NoError(t, err)

	out := m.DebugString()
	assert.Contains(t, out, "sdr-rx")
	assert.Contains(t, out, "rxbuffer")
	assert.Contains(t, out, AttrNumBuffers+"=16")
}
