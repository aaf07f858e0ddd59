// Package hostmem establishes read-only virtual mappings over physical
// memory ranges. Mappings are always read-only and non-executable; the
// backing memory belongs to a hardware producer and must never be written
// or executed from the CPU side.
package hostmem

// DefaultPath is the character device exposing physical memory.
const DefaultPath = "/dev/mem"

// alignSpan widens [base, base+size) to the containing page-aligned span.
// It returns the aligned start and the offset of base within the span.
func alignSpan(base uint64, page uint64) (start uint64, delta uint64) {
	start = base &^ (page - 1)
	return start, base - start
}
