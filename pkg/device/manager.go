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

// Package device owns the externally visible lifecycle of DMA window
// devices: probing, identity allocation, the monitoring surface, and
// teardown. The windows themselves never know about device identity; they
// only receive the teardown notification.
package device

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/heptiolabs/healthcheck"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/valyala/bytebufferpool"

	"github.com/srediag/dma-window/internal/dlog"
	"github.com/srediag/dma-window/internal/hostmem"
	"github.com/srediag/dma-window/pkg/cache"
	"github.com/srediag/dma-window/pkg/region"
	"github.com/srediag/dma-window/pkg/window"
)

var logger = dlog.New("device", nil)

// ErrDeviceExists rejects a probe reusing a registered device name.
var ErrDeviceExists = errors.New("device: name already registered")

// ErrDeviceNotFound rejects operations on unknown device names.
var ErrDeviceNotFound = errors.New("device: not found")

// Device is one probed DMA window device.
type Device struct {
	name   string
	minor  uint32
	flavor Flavor
	res    *region.Resolver

	recording *RecordingSurface
	ring      *RingSurface
}

// Name is the externally visible identity token.
func (d *Device) Name() string { return d.name }

// Minor is the device number allocated at probe time.
func (d *Device) Minor() uint32 { return d.minor }

// Flavor reports which window variant the device exposes.
func (d *Device) Flavor() Flavor { return d.flavor }

// Region is the resolved physical range backing the device.
func (d *Device) Region() region.Region { return d.res.Region() }

// Recording returns the consumer surface of a recording device.
func (d *Device) Recording() (*RecordingSurface, bool) { return d.recording, d.recording != nil }

// Ring returns the consumer surface of a ring device.
func (d *Device) Ring() (*RingSurface, bool) { return d.ring, d.ring != nil }

// RecordingSurface is the consumer control surface of a recording device.
// It wraps the window with the manager's operation counters.
type RecordingSurface struct {
	mgr *Manager
	w   *window.RecordingWindow
}

func (s *RecordingSurface) Map(ctx context.Context, offset, length uint64, perms window.Permissions) (*window.Handle, error) {
	h, err := s.w.Map(ctx, offset, length, perms)
	if err != nil {
		s.mgr.metrics.mapErrors.Inc()
		return nil, err
	}
	s.mgr.metrics.maps.Inc()
	return h, nil
}

// RingSurface is the consumer control surface of a ring device.
type RingSurface struct {
	mgr *Manager
	w   *window.RxBufferWindow
}

func (s *RingSurface) Map(ctx context.Context, offset, length uint64, perms window.Permissions) (*window.Handle, error) {
	h, err := s.w.Map(ctx, offset, length, perms)
	if err != nil {
		s.mgr.metrics.mapErrors.Inc()
		return nil, err
	}
	s.mgr.metrics.maps.Inc()
	return h, nil
}

func (s *RingSurface) InvalidateSlot(ctx context.Context, slot uint32) error {
	if err := s.w.InvalidateSlot(ctx, slot); err != nil {
		return err
	}
	s.mgr.metrics.slotInvalidations.Inc()
	return nil
}

func (s *RingSurface) InvalidateSlots(ctx context.Context, slots []uint32) error {
	return s.w.InvalidateSlots(ctx, slots)
}

// Geometry returns the ring geometry.
func (s *RingSurface) Geometry() region.Geometry { return s.w.Geometry() }

// Mapped reports whether the ring currently has its mapping established.
func (s *RingSurface) Mapped() bool { return s.w.Mapped() }

type managerMetrics struct {
	maps              prometheus.Counter
	mapErrors         prometheus.Counter
	slotInvalidations prometheus.Counter
	devices           prometheus.Gauge
}

// ManagerOptions tunes a Manager.
type ManagerOptions struct {
	// Registerer receives the manager's metrics. A fresh private registry
	// is used when nil.
	Registerer prometheus.Registerer
	// MemPath overrides the physical memory device node.
	MemPath string
}

// Manager creates and destroys device identities over a shared physical
// memory device. All state is scoped to the manager; two managers never
// contend for minors or names.
type Manager struct {
	minors   *minorAllocator
	registry cmap.ConcurrentMap[string, *Device]
	metrics  managerMetrics
	health   healthcheck.Handler
	memPath  string

	mu     sync.Mutex
	devmem *hostmem.Device
	closed bool
}

// NewManager builds an empty manager.
func NewManager(opts ManagerOptions) *Manager {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Manager{
		minors:   newMinorAllocator(),
		registry: cmap.New[*Device](),
		memPath:  opts.MemPath,
	}
	m.metrics.maps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dma_window_maps_total",
		Help: "Total number of established window mappings.",
	})
	m.metrics.mapErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dma_window_map_errors_total",
		Help: "Total number of rejected or failed mapping attempts.",
	})
	m.metrics.slotInvalidations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dma_window_slot_invalidations_total",
		Help: "Total number of per-slot cache invalidations.",
	})
	m.metrics.devices = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dma_window_devices",
		Help: "Number of registered devices.",
	})
	reg.MustRegister(m.metrics.maps, m.metrics.mapErrors, m.metrics.slotInvalidations, m.metrics.devices)

	m.health = healthcheck.NewHandler()
	m.health.AddLivenessCheck("minor-allocator", func() error {
		if m.minors.inUse() > minorMax {
			return errors.New("minor allocator overcommitted")
		}
		return nil
	})
	m.health.AddReadinessCheck("devices-registered", func() error {
		if m.registry.Count() == 0 {
			return errors.New("no devices registered")
		}
		return nil
	})
	return m
}

// Health serves the /live and /ready endpoints.
func (m *Manager) Health() http.Handler { return m.health }

// Get looks a device up by name.
func (m *Manager) Get(name string) (*Device, bool) { return m.registry.Get(name) }

// Names lists the registered device names.
func (m *Manager) Names() []string { return m.registry.Keys() }

// Probe resolves the configured region, builds the window, and registers
// the device. Sub-resources are acquired in order; on any failure the ones
// already acquired are released in reverse order and the error reported.
func (m *Manager) Probe(cfg *Config) (dev *Device, err error) {
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}

	res, err := m.resolveRegion(cfg)
	if err != nil {
		return nil, err
	}

	mapper := cfg.Mapper
	if mapper == nil {
		mapper, err = m.sharedMapper()
		if err != nil {
			return nil, err
		}
	}
	inv := window.Invalidator(cfg.Controller)
	if cfg.Controller == nil {
		inv = cache.Default()
	}
	opts := window.Options{Meter: cfg.Meter, Tracer: cfg.Tracer, Workers: cfg.Workers}

	dev = &Device{name: cfg.Name, flavor: cfg.Flavor, res: res}
	switch cfg.Flavor {
	case FlavorRecording:
		w, werr := window.NewRecording(res, mapper, inv, opts)
		if werr != nil {
			return nil, werr
		}
		dev.recording = &RecordingSurface{mgr: m, w: w}
	case FlavorRxBuffer:
		w, werr := window.NewRxBuffer(res, mapper, inv, opts)
		if werr != nil {
			return nil, werr
		}
		dev.ring = &RingSurface{mgr: m, w: w}
	}

	// Ordered acquisition with reverse-order unwind from here on.
	var undo []func()
	defer func() {
		if err != nil {
			for i := len(undo) - 1; i >= 0; i-- {
				undo[i]()
			}
			dev = nil
		}
	}()

	minor, err := m.minors.get()
	if err != nil {
		return nil, err
	}
	dev.minor = minor
	undo = append(undo, func() { m.minors.put(minor) })

	if !m.registry.SetIfAbsent(cfg.Name, dev) {
		err = fmt.Errorf("%w: %s", ErrDeviceExists, cfg.Name)
		return nil, err
	}
	undo = append(undo, func() { m.registry.Remove(cfg.Name) })

	m.metrics.devices.Inc()
	logger.Infof("probed %s device %s minor %d\n%s", cfg.Flavor, cfg.Name, minor, renderAttrs(dev.Attrs()))
	return dev, nil
}

// resolveRegion retries transient lookup failures; configuration errors are
// permanent and fail immediately.
func (m *Manager) resolveRegion(cfg *Config) (*region.Resolver, error) {
	var res *region.Resolver
	op := func() error {
		var err error
		if cfg.Flavor == FlavorRxBuffer {
			res, err = region.ResolveRing(cfg.Lookup, cfg.MemoryRegion, cfg.BufferSize)
		} else {
			res, err = region.ResolveRecording(cfg.Lookup, cfg.MemoryRegion)
		}
		if err != nil && errors.Is(err, region.ErrConfig) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.LookupRetries)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return res, nil
}

// sharedMapper lazily opens the physical memory device shared by all
// windows of this manager.
func (m *Manager) sharedMapper() (window.Mapper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("device: manager is shut down")
	}
	if m.devmem == nil {
		path := m.memPath
		if path == "" {
			path = hostmem.DefaultPath
		}
		d, err := hostmem.OpenPath(path)
		if err != nil {
			return nil, err
		}
		m.devmem = d
	}
	return devMemMapper{dev: m.devmem}, nil
}

// devMemMapper adapts hostmem.Device to the window mapper contract.
type devMemMapper struct {
	dev *hostmem.Device
}

func (a devMemMapper) Map(base, size uint64) (window.Mapping, error) {
	mp, err := a.dev.Map(base, size)
	if err != nil {
		return nil, err
	}
	return mp, nil
}

// Remove destroys a device identity in reverse acquisition order. The
// window is notified so any held mapping state is forced back to unmapped
// and outstanding handles invalidated.
func (m *Manager) Remove(name string) error {
	dev, ok := m.registry.Pop(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}
	if dev.ring != nil {
		_ = dev.ring.w.Close()
	}
	m.minors.put(dev.minor)
	m.metrics.devices.Dec()
	logger.Infof("removed device %s minor %d", name, dev.minor)
	return nil
}

// Shutdown removes every device and closes the shared memory device.
func (m *Manager) Shutdown() error {
	for _, name := range m.registry.Keys() {
		_ = m.Remove(name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.devmem != nil {
		err := m.devmem.Close()
		m.devmem = nil
		return err
	}
	return nil
}

// DebugString renders the registered devices and host memory headroom.
func (m *Manager) DebugString() string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	for _, name := range m.registry.Keys() {
		dev, ok := m.registry.Get(name)
		if !ok {
			continue
		}
		_, _ = fmt.Fprintf(buf, "device %s flavor %s minor %d phys %#x+%#x\n",
			dev.name, dev.flavor, dev.minor, dev.res.Base(), dev.res.Size())
		_, _ = buf.WriteString(renderAttrs(dev.Attrs()))
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		_, _ = fmt.Fprintf(buf, "host memory total %d available %d\n", vm.Total, vm.Available)
	}
	return buf.String()
}
