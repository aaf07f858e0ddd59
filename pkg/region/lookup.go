package region

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// Lookup resolves a named reserved region to its physical bounds.
type Lookup interface {
	Reserved(name string) (Region, error)
}

// StaticLookup serves regions from a fixed table, for configurations that
// carry the physical bounds directly.
type StaticLookup map[string]Region

func (s StaticLookup) Reserved(name string) (Region, error) {
	r, ok := s[name]
	if !ok {
		return Region{}, fmt.Errorf("%w: reserved region %q not found", ErrConfig, name)
	}
	return r, nil
}

// DeviceTreeLookup reads reserved-memory nodes from a flattened device tree
// exposed as a filesystem. The reg property holds big-endian address and
// size cells; 32-bit and 64-bit cell layouts are both in the wild.
type DeviceTreeLookup struct {
	// Root of the device tree filesystem. Empty means /proc/device-tree.
	Root string
}

func (d DeviceTreeLookup) Reserved(name string) (Region, error) {
	root := d.Root
	if root == "" {
		root = "/proc/device-tree"
	}
	path := filepath.Join(root, "reserved-memory", name, "reg")
	reg, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Region{}, fmt.Errorf("%w: reserved region %q not found in device tree", ErrConfig, name)
		}
		return Region{}, fmt.Errorf("read %s: %w", path, err)
	}
	return parseReg(name, reg)
}

func parseReg(name string, reg []byte) (Region, error) {
	switch len(reg) {
	case 8: // one address cell, one size cell
		return Region{
			Base: uint64(binary.BigEndian.Uint32(reg[0:4])),
			Size: uint64(binary.BigEndian.Uint32(reg[4:8])),
		}, nil
	case 16: // two address cells, two size cells
		return Region{
			Base: binary.BigEndian.Uint64(reg[0:8]),
			Size: binary.BigEndian.Uint64(reg[8:16]),
		}, nil
	default:
		return Region{}, fmt.Errorf("%w: reserved region %q has a malformed reg property (%d bytes)", ErrConfig, name, len(reg))
	}
}
