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

// Package guestarch defines the architectural vocabulary of the emulated
// Alpha AXP memory system: physical addresses, access widths, alignment
// rules and the status codes memory operations return.
//
// The guest is little-endian. All multi-byte values cross the guest bus in
// little-endian order regardless of host byte order.
package guestarch

// Sizes in bytes.
const (
	KB = 1 << 10
	MB = 1 << 20
	GB = 1 << 30
	TB = 1 << 40
)

// Page is the unit of lazy allocation in the sparse backing store. 64 KiB
// matches the guest's conventional low-memory region granularity and keeps
// per-page allocation overhead amortized.
const (
	PageShift = 16
	PageSize  = 1 << PageShift
	PageMask  = PageSize - 1
)

// MaxRAMSize is the largest supported guest RAM configuration.
const MaxRAMSize = 32 * GB

// MaxBackingSize caps the identity-mapped RAM region: low-memory firmware
// space plus main RAM. The largest machines place their device windows at
// PA 0x1000000000, so the region below must fit under that.
const MaxBackingSize = 64 * GB

// Addr represents a guest physical address or a subsystem-local byte
// offset. Which one is clear from context: only the PA router deals in
// physical addresses, everything below it deals in offsets.
type Addr uint64

// PageRoundDown returns the address rounded down to the nearest page
// boundary.
func (v Addr) PageRoundDown() Addr {
	return v &^ Addr(PageMask)
}

// PageRoundUp returns the address rounded up to the nearest page boundary.
// ok is true iff rounding up did not wrap around.
func (v Addr) PageRoundUp() (addr Addr, ok bool) {
	addr = Addr(v + PageMask).PageRoundDown()
	ok = addr >= v
	return
}

// PageOffset returns the offset of v into its page.
func (v Addr) PageOffset() uint64 {
	return uint64(v & PageMask)
}

// PageIndex returns the index of the page containing v.
func (v Addr) PageIndex() uint64 {
	return uint64(v >> PageShift)
}

// IsPageAligned returns true if v.PageOffset() == 0.
func (v Addr) IsPageAligned() bool {
	return v.PageOffset() == 0
}

// AddLength returns v + length and whether the sum did not overflow.
func (v Addr) AddLength(length uint64) (end Addr, ok bool) {
	end = v + Addr(length)
	ok = end >= v
	return
}

// IsAligned returns true if v is naturally aligned for an access of the
// given width. Byte accesses are always aligned; wider accesses require the
// address to be a multiple of the width.
func (v Addr) IsAligned(width uint8) bool {
	return uint64(v)&uint64(width-1) == 0
}

// ValidWidth returns true if width is an architectural access width.
func ValidWidth(width uint8) bool {
	switch width {
	case 1, 2, 4, 8:
		return true
	}
	return false
}

// PagesSpanned returns the number of pages covered by [addr, addr+length).
func PagesSpanned(addr Addr, length uint64) uint64 {
	if length == 0 {
		return 0
	}
	first := addr.PageIndex()
	last := (addr + Addr(length) - 1).PageIndex()
	return last - first + 1
}
