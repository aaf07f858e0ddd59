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
	"errors"
	"sync"

	"github.com/Workiva/go-datastructures/bitarray"
)

// minorMax bounds the device numbers one manager hands out.
const minorMax = 256

var errMinorsExhausted = errors.New("device: minor numbers exhausted")

// minorAllocator hands out device minor numbers from a bitmap free-list.
// Scoped to its manager; numbers are reused after release.
type minorAllocator struct {
	mu   sync.Mutex
	bits bitarray.BitArray
}

func newMinorAllocator() *minorAllocator {
	return &minorAllocator{bits: bitarray.NewBitArray(minorMax)}
}

func (a *minorAllocator) get() (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for n := uint64(0); n < minorMax; n++ {
		set, err := a.bits.GetBit(n)
		if err != nil {
			return 0, err
		}
		if !set {
			if err := a.bits.SetBit(n); err != nil {
				return 0, err
			}
			return uint32(n), nil
		}
	}
	return 0, errMinorsExhausted
}

func (a *minorAllocator) put(n uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.bits.ClearBit(uint64(n))
}

func (a *minorAllocator) inUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	count := 0
	for n := uint64(0); n < minorMax; n++ {
		if set, _ := a.bits.GetBit(n); set {
			count++
		}
	}
	return count
}
