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
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/dma-window/pkg/cache"
	"github.com/srediag/dma-window/pkg/region"
	"github.com/srediag/dma-window/pkg/window"
)

// Flavor selects which window variant a device exposes.
type Flavor int

const (
	// FlavorRecording maps the whole region for one-shot capture readout.
	FlavorRecording Flavor = iota
	// FlavorRxBuffer maps the region as a slot ring with per-slot
	// invalidation.
	FlavorRxBuffer
)

func (f Flavor) String() string {
	switch f {
	case FlavorRecording:
		return "recording"
	case FlavorRxBuffer:
		return "rxbuffer"
	default:
		return fmt.Sprintf("flavor(%d)", int(f))
	}
}

// Config describes one device to probe.
type Config struct {
	// Name is the externally visible device identity, unique per manager.
	Name string
	// Flavor selects the window variant.
	Flavor Flavor
	// MemoryRegion names the hardware-reserved region to resolve.
	MemoryRegion string
	// BufferSize is the ring slot size. Required for FlavorRxBuffer,
	// ignored otherwise.
	BufferSize uint64
	// Lookup resolves MemoryRegion to physical bounds.
	Lookup region.Lookup
	// Mapper overrides the manager's physical memory mapper. Optional.
	Mapper window.Mapper
	// Controller overrides the default cache controller. Optional.
	Controller *cache.Controller
	// LookupRetries bounds the probe-time retry of transient lookup
	// failures, such as a device tree still being populated.
	LookupRetries uint64
	// Workers sizes the ring window's batch invalidation pool.
	Workers int
	// Meter and Tracer enable OpenTelemetry instrumentation on the
	// window. Optional.
	Meter  metric.Meter
	Tracer trace.Tracer
}

// DefaultConfig returns a Config with the defaults filled in: device-tree
// region lookup and three lookup retries.
func DefaultConfig(name string, flavor Flavor) *Config {
	return &Config{
		Name:          name,
		Flavor:        flavor,
		MemoryRegion:  name,
		Lookup:        region.DeviceTreeLookup{},
		LookupRetries: 3,
	}
}

// VerifyConfig rejects configurations that can never probe successfully.
func VerifyConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("%w: nil device config", region.ErrConfig)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: device name required", region.ErrConfig)
	}
	if c.MemoryRegion == "" {
		return fmt.Errorf("%w: device %s names no memory region", region.ErrConfig, c.Name)
	}
	if c.Lookup == nil {
		return fmt.Errorf("%w: device %s has no region lookup", region.ErrConfig, c.Name)
	}
	switch c.Flavor {
	case FlavorRecording:
	case FlavorRxBuffer:
		if c.BufferSize == 0 {
			return fmt.Errorf("%w: device %s requires a buffer size", region.ErrConfig, c.Name)
		}
	default:
		return fmt.Errorf("%w: device %s has unsupported flavor %v", region.ErrConfig, c.Name, c.Flavor)
	}
	return nil
}
