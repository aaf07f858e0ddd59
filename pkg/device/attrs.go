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
	"sort"

	"github.com/valyala/bytebufferpool"
)

// Attribute names of the read-only monitoring surface.
const (
	AttrRecordingBaseAddress = "recording_base_address"
	AttrRecordingSize        = "recording_size"
	AttrBufferSize           = "buffer_size"
	AttrNumBuffers           = "num_buffers"
)

// Attrs returns the device's read-only attributes, served straight from the
// resolver. Addresses and sizes are rendered as zero-padded hex, counts as
// decimal.
func (d *Device) Attrs() map[string]string {
	switch d.flavor {
	case FlavorRxBuffer:
		g, _ := d.res.Geometry()
		return map[string]string{
			AttrBufferSize: hexAttr(g.BufferSize),
			AttrNumBuffers: fmt.Sprintf("%d", g.NumBuffers),
		}
	default:
		return map[string]string{
			AttrRecordingBaseAddress: hexAttr(d.res.Base()),
			AttrRecordingSize:        hexAttr(d.res.Size()),
		}
	}
}

func hexAttr(v uint64) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	_, _ = buf.WriteString("0x")
	_, _ = fmt.Fprintf(buf, "%08x", v)
	return buf.String()
}

// renderAttrs flattens an attribute map into "name=value" lines in stable
// order, for logs and debug dumps.
func renderAttrs(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	for _, k := range keys {
		_, _ = buf.WriteString(k)
		_ = buf.WriteByte('=')
		_, _ = buf.WriteString(attrs[k])
		_ = buf.WriteByte('\n')
	}
	return buf.String()
}
