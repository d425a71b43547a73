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

// Package sparsemem implements the lazy, page-granular backing store for
// guest RAM. Capacity is partitioned into fixed 64 KiB pages; a page is
// allocated on first store and installed into its page-table slot with a
// single compare-and-swap. Readers never block and never allocate: a slot
// that has never been written reads as all-zero.
//
// Concurrency: the page table is an array of atomically-swappable slots. A
// slot transitions nil to non-nil exactly once and never back; once a page
// is installed its bytes are never relocated or freed until Release tears
// down the whole store. Accesses straddling two pages resolve the halves
// independently with no atomicity guarantee across them; the validation
// layer above mandates naturally-aligned widths, which makes torn
// cross-page writes unreachable through the public contract.
package sparsemem

import (
	"encoding/binary"
	"sync/atomic"

	"axpemu.dev/axpemu/pkg/atomicbitops"
	"axpemu.dev/axpemu/pkg/guestarch"
	"axpemu.dev/axpemu/pkg/log"
)

// page is a fixed-size buffer so installed page pointers never move.
type page [guestarch.PageSize]byte

// zeroPage backs read-only views of never-written pages. It is shared by
// every Backing and must never be written.
var zeroPage page

// pagesPerDirtyWord is the number of dirty bits packed into one word.
const pagesPerDirtyWord = 64

// Backing is the sparse backing store. The zero value is unallocated; call
// Allocate before use.
type Backing struct {
	capacity  uint64
	pageCount uint64

	// pages has one slot per page index covering the full configured
	// capacity. A nil slot means the page has never been written.
	pages []atomic.Pointer[page]

	// allocatedPages counts installed pages, for statistics only.
	allocatedPages atomicbitops.Uint64

	// dirtyEnabled guards the dirty word array. It is flipped only while
	// no accesses are in flight.
	dirtyEnabled bool

	// dirtyWords holds one bit per page, set with atomic OR on every
	// store. Accessed only through sync/atomic and atomicbitops.
	dirtyWords []uint64
}

// NewBacking returns a Backing with the given capacity.
func NewBacking(capacityBytes uint64) *Backing {
	b := &Backing{}
	b.Allocate(capacityBytes)
	return b
}

// Allocate sizes the store for capacityBytes of guest RAM. Only the page
// table (8 bytes per 64 KiB page) is committed up front; page buffers are
// allocated on first store. Any previous contents are released.
func (b *Backing) Allocate(capacityBytes uint64) bool {
	b.Release()
	if capacityBytes == 0 {
		log.Debugf("sparsemem: zero-byte allocation requested")
		return true
	}

	b.capacity = capacityBytes
	b.pageCount = (capacityBytes + guestarch.PageMask) / guestarch.PageSize
	b.pages = make([]atomic.Pointer[page], b.pageCount)
	if b.dirtyEnabled {
		b.dirtyWords = make([]uint64, (b.pageCount+pagesPerDirtyWord-1)/pagesPerDirtyWord)
	}

	log.Infof("sparsemem: allocated %d MB capacity in %d pages", capacityBytes/guestarch.MB, b.pageCount)
	return true
}

// Release drops every installed page and returns the store to the
// unallocated state. Not safe concurrently with any access.
func (b *Backing) Release() {
	if b.pages == nil {
		return
	}
	log.Debugf("sparsemem: releasing %d allocated pages", b.allocatedPages.Load())
	b.pages = nil
	b.dirtyWords = nil
	b.capacity = 0
	b.pageCount = 0
	b.allocatedPages.Store(0)
}

// CapacityBytes returns the configured capacity.
func (b *Backing) CapacityBytes() uint64 {
	return b.capacity
}

// AllocatedBytes returns the host memory committed to installed pages.
func (b *Backing) AllocatedBytes() uint64 {
	return b.allocatedPages.Load() * guestarch.PageSize
}

// PageCount returns the total number of page slots.
func (b *Backing) PageCount() uint64 {
	return b.pageCount
}

// AllocatedPageCount returns the number of installed pages.
func (b *Backing) AllocatedPageCount() uint64 {
	return b.allocatedPages.Load()
}

// IsAllocated returns true once Allocate has succeeded.
func (b *Backing) IsAllocated() bool {
	return b.pageCount > 0
}

// EnsurePage returns the bytes of the given page, installing a zero-filled
// page if the slot is empty. Concurrent callers race on a single
// compare-and-swap; the loser discards its buffer and adopts the winner's,
// so at most one buffer per index is ever retained. Returns nil only for an
// out-of-range index.
func (b *Backing) EnsurePage(pageIdx uint64) []byte {
	if pageIdx >= b.pageCount {
		return nil
	}
	if p := b.pages[pageIdx].Load(); p != nil {
		return p[:]
	}

	newPage := new(page)
	if b.pages[pageIdx].CompareAndSwap(nil, newPage) {
		b.allocatedPages.Add(1)
		if log.IsLogging(log.Debug) {
			log.Debugf("sparsemem: allocated page %d", pageIdx)
		}
		return newPage[:]
	}

	// Lost the race; the winning pointer is now permanent.
	return b.pages[pageIdx].Load()[:]
}

// ReadPage returns a read-only view of the given page: the installed bytes,
// or the shared zero page if the slot is empty. Callers must not write
// through the returned slice unless they installed the page themselves.
func (b *Backing) ReadPage(pageIdx uint64) []byte {
	if pageIdx >= b.pageCount {
		return nil
	}
	if p := b.pages[pageIdx].Load(); p != nil {
		return p[:]
	}
	return zeroPage[:]
}

// PageInstalled returns true if the page has been materialized.
func (b *Backing) PageInstalled(pageIdx uint64) bool {
	return pageIdx < b.pageCount && b.pages[pageIdx].Load() != nil
}

// Load8 returns the byte at offset. Never-written bytes read as zero.
func (b *Backing) Load8(offset uint64) (uint8, bool) {
	if offset >= b.capacity {
		return 0, false
	}
	a := guestarch.Addr(offset)
	if p := b.pages[a.PageIndex()].Load(); p != nil {
		return p[a.PageOffset()], true
	}
	return 0, true
}

// Store8 writes the byte at offset, materializing its page.
func (b *Backing) Store8(offset uint64, value uint8) bool {
	if offset >= b.capacity {
		return false
	}
	a := guestarch.Addr(offset)
	p := b.EnsurePage(a.PageIndex())
	if p == nil {
		return false
	}
	p[a.PageOffset()] = value
	b.markDirty(a.PageIndex())
	return true
}

// Load16 returns the little-endian 16-bit value at offset.
func (b *Backing) Load16(offset uint64) (uint16, bool) {
	v, ok := b.load(offset, 2)
	return uint16(v), ok
}

// Store16 writes the little-endian 16-bit value at offset.
func (b *Backing) Store16(offset uint64, value uint16) bool {
	return b.store(offset, 2, uint64(value))
}

// Load32 returns the little-endian 32-bit value at offset.
func (b *Backing) Load32(offset uint64) (uint32, bool) {
	v, ok := b.load(offset, 4)
	return uint32(v), ok
}

// Store32 writes the little-endian 32-bit value at offset.
func (b *Backing) Store32(offset uint64, value uint32) bool {
	return b.store(offset, 4, uint64(value))
}

// Load64 returns the little-endian 64-bit value at offset.
func (b *Backing) Load64(offset uint64) (uint64, bool) {
	return b.load(offset, 8)
}

// Store64 writes the little-endian 64-bit value at offset.
func (b *Backing) Store64(offset uint64, value uint64) bool {
	return b.store(offset, 8, value)
}

// load reads width bytes at offset, little-endian. The fast path covers
// accesses inside one page; a straddling access touches exactly two pages
// since every architectural width is smaller than a page.
func (b *Backing) load(offset uint64, width uint64) (uint64, bool) {
	end, ok := guestarch.Addr(offset).AddLength(width)
	if !ok || uint64(end) > b.capacity {
		return 0, false
	}

	a := guestarch.Addr(offset)
	po := a.PageOffset()
	if po+width <= guestarch.PageSize {
		p := b.pages[a.PageIndex()].Load()
		if p == nil {
			return 0, true
		}
		return readLE(p[po:po+width]), true
	}
	return b.loadCrossing(a, width), true
}

// store writes width bytes at offset, little-endian. Bounds are fully
// checked and both pages of a straddling store are materialized before any
// byte is written, so a store is never partially applied.
func (b *Backing) store(offset uint64, width uint64, value uint64) bool {
	end, ok := guestarch.Addr(offset).AddLength(width)
	if !ok || uint64(end) > b.capacity {
		return false
	}

	a := guestarch.Addr(offset)
	po := a.PageOffset()
	if po+width <= guestarch.PageSize {
		p := b.EnsurePage(a.PageIndex())
		if p == nil {
			return false
		}
		writeLE(p[po:po+width], value)
		b.markDirty(a.PageIndex())
		return true
	}
	return b.storeCrossing(a, width, value)
}

// loadCrossing recombines a two-page straddling read byte-for-byte.
func (b *Backing) loadCrossing(a guestarch.Addr, width uint64) uint64 {
	po := a.PageOffset()
	inFirst := guestarch.PageSize - po

	var buf [8]byte
	p1 := b.ReadPage(a.PageIndex())
	copy(buf[:inFirst], p1[po:])
	p2 := b.ReadPage(a.PageIndex() + 1)
	copy(buf[inFirst:width], p2[:width-inFirst])

	return readLE(buf[:width])
}

// storeCrossing splits a two-page straddling write.
func (b *Backing) storeCrossing(a guestarch.Addr, width uint64, value uint64) bool {
	po := a.PageOffset()
	inFirst := guestarch.PageSize - po

	p1 := b.EnsurePage(a.PageIndex())
	p2 := b.EnsurePage(a.PageIndex() + 1)
	if p1 == nil || p2 == nil {
		return false
	}

	var buf [8]byte
	writeLE(buf[:width], value)
	copy(p1[po:], buf[:inFirst])
	copy(p2[:width-inFirst], buf[inFirst:width])
	b.markDirty(a.PageIndex())
	b.markDirty(a.PageIndex() + 1)
	return true
}

// LoadBlock copies len(dst) bytes starting at offset into dst.
// Never-written ranges read as zero.
func (b *Backing) LoadBlock(offset uint64, dst []byte) bool {
	end, ok := guestarch.Addr(offset).AddLength(uint64(len(dst)))
	if !ok || uint64(end) > b.capacity {
		return false
	}

	for len(dst) > 0 {
		a := guestarch.Addr(offset)
		po := a.PageOffset()
		chunk := guestarch.PageSize - po
		if uint64(len(dst)) < chunk {
			chunk = uint64(len(dst))
		}

		if p := b.pages[a.PageIndex()].Load(); p != nil {
			copy(dst[:chunk], p[po:])
		} else {
			clear(dst[:chunk])
		}

		dst = dst[chunk:]
		offset += chunk
	}
	return true
}

// StoreBlock copies src into the store starting at offset, materializing
// every touched page.
func (b *Backing) StoreBlock(offset uint64, src []byte) bool {
	end, ok := guestarch.Addr(offset).AddLength(uint64(len(src)))
	if !ok || uint64(end) > b.capacity {
		return false
	}

	for len(src) > 0 {
		a := guestarch.Addr(offset)
		po := a.PageOffset()
		chunk := guestarch.PageSize - po
		if uint64(len(src)) < chunk {
			chunk = uint64(len(src))
		}

		p := b.EnsurePage(a.PageIndex())
		if p == nil {
			return false
		}
		copy(p[po:], src[:chunk])
		b.markDirty(a.PageIndex())

		src = src[chunk:]
		offset += chunk
	}
	return true
}

// readLE decodes 1, 2, 4 or 8 bytes as a little-endian value.
func readLE(src []byte) uint64 {
	switch len(src) {
	case 1:
		return uint64(src[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(src))
	case 4:
		return uint64(binary.LittleEndian.Uint32(src))
	default:
		return binary.LittleEndian.Uint64(src)
	}
}

// writeLE encodes a value into 1, 2, 4 or 8 bytes, little-endian.
func writeLE(dst []byte, value uint64) {
	switch len(dst) {
	case 1:
		dst[0] = uint8(value)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(value))
	default:
		binary.LittleEndian.PutUint64(dst, value)
	}
}
