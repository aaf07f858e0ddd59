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

import "errors"

var (
	// ErrPermission rejects any mapping request that is not read-only and
	// non-executable. The backing memory is owned by hardware; writes or
	// instruction fetches from the CPU side would corrupt or leak it.
	ErrPermission = errors.New("window: mappings must be read-only and non-executable")

	// ErrOutOfRange rejects offsets, lengths, or slot indices outside the
	// region bounds. The caller may retry with corrected arguments.
	ErrOutOfRange = errors.New("window: request outside region bounds")

	// ErrAlreadyMapped rejects a second concurrent mapping of a ring
	// window. The existing mapping must be released first.
	ErrAlreadyMapped = errors.New("window: ring window is already mapped")

	// ErrNotMapped rejects slot invalidation before a mapping exists.
	ErrNotMapped = errors.New("window: ring window is not mapped")

	// ErrRevoked rejects operations on a window whose device has been
	// torn down.
	ErrRevoked = errors.New("window: window has been revoked")
)
