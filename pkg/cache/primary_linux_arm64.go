//go:build linux && arm64

package cache

import "sync"

// Implemented in primary_linux_arm64.s.
func dcCIVAC(addr uintptr)
func dsbSY()
func ctrEL0() uint64

var lineSizeOnce = sync.OnceValue(func() uintptr {
	// CTR_EL0.DminLine is log2 of the smallest data cache line in words.
	return uintptr(4) << ((ctrEL0() >> 16) & 0xf)
})

// linePrimary walks the range line by line with DC CIVAC. EL0 is only
// granted clean+invalidate; cleaning lines the CPU never dirtied does not
// write anything back, so the effect over a DMA region is a pure drop.
type linePrimary struct{}

func newPlatformPrimary() Primary { return linePrimary{} }

func (linePrimary) InvalidateRange(v VirtRange) error {
	if v.Size == 0 {
		return nil
	}
	line := lineSizeOnce()
	end := v.Start + uintptr(v.Size)
	for addr := v.Start &^ (line - 1); addr < end; addr += line {
		dcCIVAC(addr)
	}
	dsbSY()
	return nil
}
