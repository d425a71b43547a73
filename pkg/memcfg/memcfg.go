// Copyright 2025 The axpemu Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memcfg defines the guest physical memory map: where RAM and the
// MMIO window sit in the physical address space, and the well-known
// firmware regions inside low memory. Maps come from platform presets or
// from a TOML file, and are validated before the routing table is built
// from them.
package memcfg

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"axpemu.dev/axpemu/pkg/guestarch"
	"axpemu.dev/axpemu/pkg/log"
)

// MemoryMap describes the guest physical address space. RAM occupies
// [0, RAMBase+RAMSize) as a single identity-mapped region: low memory
// below RAMBase holds firmware, the HWRPB and PAL code, and main RAM
// starts at RAMBase. The MMIO window lives above RAM.
type MemoryMap struct {
	// HWRPBBase is the PA of the Hardware Restart Parameter Block.
	HWRPBBase uint64 `toml:"hwrpb_base"`
	HWRPBSize uint64 `toml:"hwrpb_size"`

	// PALBase is the PA of the PALcode image in low memory.
	PALBase uint64 `toml:"pal_base"`
	PALSize uint64 `toml:"pal_size"`

	// RAMBase is the PA where main RAM begins. Everything below it is
	// still RAM-backed low memory.
	RAMBase uint64 `toml:"ram_base"`
	RAMSize uint64 `toml:"ram_size"`

	// MMIOBase is the PA of the device register window.
	MMIOBase uint64 `toml:"mmio_base"`
	MMIOSize uint64 `toml:"mmio_size"`

	// PCIMemBase is the PA of the PCI BAR window, reserved for device
	// models layered above the MMIO gateway.
	PCIMemBase uint64 `toml:"pci_mem_base"`
	PCIMemSize uint64 `toml:"pci_mem_size"`
}

// Default returns the standard memory map: 1 GB of main RAM at 2 GB, a
// 256 MB MMIO window at 0xF0000000, HWRPB at PA 0x2000 and PAL at PA 0.
// RAM is routed as all of [0, RAMBase+RAMSize), so the MMIO window must
// clear the top of RAM.
func Default() MemoryMap {
	return MemoryMap{
		HWRPBBase:  0x2000,
		HWRPBSize:  0x4000,
		PALBase:    0x0,
		PALSize:    0x10000,
		RAMBase:    0x80000000,
		RAMSize:    1 * guestarch.GB,
		MMIOBase:   0xF0000000,
		MMIOSize:   0x10000000,
		PCIMemBase: 0x200000000,
		PCIMemSize: 0x100000000,
	}
}

// Preset returns the memory map for a named Alpha platform. Presets share
// the standard low-memory layout and differ in shipped RAM size; the
// larger machines relocate the device windows above their RAM.
func Preset(platform string) (MemoryMap, error) {
	m := Default()
	switch strings.ToUpper(platform) {
	case "DS10":
		m.RAMSize = 1 * guestarch.GB
	case "ES40", "ES45":
		m.RAMSize = 4 * guestarch.GB
		m.MMIOBase = 0x1000000000
		m.PCIMemBase = 0x1100000000
	case "GS320":
		m.RAMSize = 32 * guestarch.GB
		m.MMIOBase = 0x1000000000
		m.PCIMemBase = 0x1100000000
	default:
		return MemoryMap{}, fmt.Errorf("unknown platform %q", platform)
	}
	return m, nil
}

// RAMEnd returns the first PA past RAM.
func (m MemoryMap) RAMEnd() uint64 {
	return m.RAMBase + m.RAMSize
}

// MMIOEnd returns the first PA past the MMIO window.
func (m MemoryMap) MMIOEnd() uint64 {
	return m.MMIOBase + m.MMIOSize
}

// Validate checks the map for internal consistency. Routing tables must
// only ever be built from validated maps.
func (m MemoryMap) Validate() error {
	if m.RAMSize == 0 {
		return fmt.Errorf("ram_size must be non-zero")
	}
	if m.RAMSize > guestarch.MaxRAMSize {
		return fmt.Errorf("ram_size %#x exceeds maximum %#x", m.RAMSize, uint64(guestarch.MaxRAMSize))
	}
	if !guestarch.Addr(m.RAMBase).IsPageAligned() || !guestarch.Addr(m.RAMSize).IsPageAligned() {
		return fmt.Errorf("RAM region [%#x, +%#x) is not page-aligned", m.RAMBase, m.RAMSize)
	}
	if !guestarch.Addr(m.MMIOBase).IsPageAligned() || !guestarch.Addr(m.MMIOSize).IsPageAligned() {
		return fmt.Errorf("MMIO region [%#x, +%#x) is not page-aligned", m.MMIOBase, m.MMIOSize)
	}
	if m.RAMEnd() < m.RAMBase {
		return fmt.Errorf("RAM region [%#x, +%#x) wraps the address space", m.RAMBase, m.RAMSize)
	}
	// The whole identity region [0, RAMEnd) is backed by one store, so the
	// end must be backable, not just the main RAM size.
	if m.RAMEnd() > guestarch.MaxBackingSize {
		return fmt.Errorf("RAM region end %#x exceeds maximum backing size %#x", m.RAMEnd(), uint64(guestarch.MaxBackingSize))
	}
	if m.MMIOSize == 0 {
		return fmt.Errorf("mmio_size must be non-zero")
	}
	if m.MMIOEnd() < m.MMIOBase {
		return fmt.Errorf("MMIO region [%#x, +%#x) wraps the address space", m.MMIOBase, m.MMIOSize)
	}
	// RAM covers [0, RAMEnd); the MMIO window must sit entirely above it.
	if m.MMIOBase < m.RAMEnd() {
		return fmt.Errorf("MMIO window [%#x, %#x) overlaps RAM [0, %#x)", m.MMIOBase, m.MMIOEnd(), m.RAMEnd())
	}
	if m.HWRPBBase+m.HWRPBSize > m.RAMEnd() {
		return fmt.Errorf("HWRPB [%#x, +%#x) falls outside RAM", m.HWRPBBase, m.HWRPBSize)
	}
	if m.PALBase+m.PALSize > m.RAMEnd() {
		return fmt.Errorf("PAL region [%#x, +%#x) falls outside RAM", m.PALBase, m.PALSize)
	}
	return nil
}

// file is the TOML layout. A file names an optional platform preset and
// overrides individual memory_map keys on top of it.
type file struct {
	Platform  string    `toml:"platform"`
	MemoryGB  uint64    `toml:"memory_gb"`
	MemoryMap MemoryMap `toml:"memory_map"`
}

// Parse decodes a TOML document into a validated memory map. Decoding
// starts from the preset named by the platform key (or the defaults),
// then non-zero memory_map keys override, then memory_gb overrides the
// RAM size.
func Parse(data string) (MemoryMap, error) {
	var f file
	meta, err := toml.Decode(data, &f)
	if err != nil {
		return MemoryMap{}, fmt.Errorf("decoding memory map: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return MemoryMap{}, fmt.Errorf("unknown key %q in memory map", undecoded[0].String())
	}

	m := Default()
	if f.Platform != "" {
		if m, err = Preset(f.Platform); err != nil {
			return MemoryMap{}, err
		}
	}
	overlay(&m, f.MemoryMap)
	if f.MemoryGB != 0 {
		m.RAMSize = f.MemoryGB * guestarch.GB
	}

	if err := m.Validate(); err != nil {
		return MemoryMap{}, err
	}
	return m, nil
}

// Load reads and parses a memory map file.
func Load(path string) (MemoryMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MemoryMap{}, fmt.Errorf("reading memory map: %w", err)
	}
	m, err := Parse(string(data))
	if err != nil {
		return MemoryMap{}, fmt.Errorf("%s: %w", path, err)
	}
	log.Infof("memcfg: loaded memory map from %s: ram=[%#x, %#x) mmio=[%#x, %#x)", path, m.RAMBase, m.RAMEnd(), m.MMIOBase, m.MMIOEnd())
	return m, nil
}

// overlay copies non-zero fields of src over dst. TOML cannot distinguish
// an explicit zero from an absent key, and no region in a usable map
// legitimately has base and size both zero except PAL, whose base really
// is PA 0; PAL is therefore keyed on its size.
func overlay(dst *MemoryMap, src MemoryMap) {
	if src.HWRPBBase != 0 {
		dst.HWRPBBase = src.HWRPBBase
	}
	if src.HWRPBSize != 0 {
		dst.HWRPBSize = src.HWRPBSize
	}
	if src.PALSize != 0 {
		dst.PALBase = src.PALBase
		dst.PALSize = src.PALSize
	}
	if src.RAMBase != 0 {
		dst.RAMBase = src.RAMBase
	}
	if src.RAMSize != 0 {
		dst.RAMSize = src.RAMSize
	}
	if src.MMIOBase != 0 {
		dst.MMIOBase = src.MMIOBase
	}
	if src.MMIOSize != 0 {
		dst.MMIOSize = src.MMIOSize
	}
	if src.PCIMemBase != 0 {
		dst.PCIMemBase = src.PCIMemBase
	}
	if src.PCIMemSize != 0 {
		dst.PCIMemSize = src.PCIMemSize
	}
}

// String renders the map for diagnostics.
func (m MemoryMap) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "low memory  [%#016x, %#016x)\n", 0, m.RAMBase)
	fmt.Fprintf(&b, "main RAM    [%#016x, %#016x)\n", m.RAMBase, m.RAMEnd())
	fmt.Fprintf(&b, "MMIO window [%#016x, %#016x)\n", m.MMIOBase, m.MMIOEnd())
	fmt.Fprintf(&b, "PCI memory  [%#016x, %#016x)\n", m.PCIMemBase, m.PCIMemBase+m.PCIMemSize)
	fmt.Fprintf(&b, "HWRPB       [%#016x, %#016x)\n", m.HWRPBBase, m.HWRPBBase+m.HWRPBSize)
	fmt.Fprintf(&b, "PAL         [%#016x, %#016x)\n", m.PALBase, m.PALBase+m.PALSize)
	return b.String()
}
