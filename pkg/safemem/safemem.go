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

// Package safemem is the single source of truth for guest RAM bytes. It
// wraps the sparse backing store with the Alpha architectural access rules:
// every load and store is bounds-checked and natural-alignment-checked
// before it touches the backing, and the outcome is reported as a
// guestarch.Status rather than a partial effect.
//
// Memory is addressed by zero-based offset. Physical-address translation
// is the business of the guestmem package; nothing here knows what PA a
// byte corresponds to.
package safemem

import (
	"axpemu.dev/axpemu/pkg/guestarch"
	"axpemu.dev/axpemu/pkg/log"
	"axpemu.dev/axpemu/pkg/sparsemem"
)

// Memory is the validated, offset-addressed RAM store. The zero value is
// uninitialized; every access fails with NotInitialized until Initialize
// succeeds. Loads and stores are safe for concurrent use; lifecycle
// methods are not.
type Memory struct {
	backing *sparsemem.Backing
	size    uint64
}

// Initialize sizes the store for sizeBytes of RAM. The bytes are backed
// sparsely, so a 32 GB guest costs only its page table until written.
// Re-initializing discards all previous contents.
func (m *Memory) Initialize(sizeBytes uint64) bool {
	if sizeBytes == 0 {
		log.Warningf("safemem: zero-byte initialization requested")
		m.backing = nil
		m.size = 0
		return false
	}
	if sizeBytes > guestarch.MaxBackingSize {
		log.Warningf("safemem: size %#x exceeds maximum backing size %#x", sizeBytes, uint64(guestarch.MaxBackingSize))
		return false
	}

	m.backing = sparsemem.NewBacking(sizeBytes)
	m.size = sizeBytes
	log.Infof("safemem: initialized %.2f GB (sparse backing)", float64(sizeBytes)/float64(guestarch.GB))
	return true
}

// Clear releases every page, returning all of RAM to zero. The size is
// retained. Not safe concurrently with accesses.
func (m *Memory) Clear() {
	if m.backing == nil {
		return
	}
	log.Debugf("safemem: clearing memory, releasing all pages")
	dirty := m.backing.DirtyTrackingEnabled()
	m.backing = sparsemem.NewBacking(m.size)
	m.backing.EnableDirtyTracking(dirty)
}

// IsInitialized returns whether Initialize has succeeded.
func (m *Memory) IsInitialized() bool {
	return m.size != 0 && m.backing != nil && m.backing.IsAllocated()
}

// SizeBytes returns the configured RAM size.
func (m *Memory) SizeBytes() uint64 {
	return m.size
}

// AllocatedBytes returns the host bytes actually committed.
func (m *Memory) AllocatedBytes() uint64 {
	if m.backing == nil {
		return 0
	}
	return m.backing.AllocatedBytes()
}

// CapacityBytes returns the backing store capacity.
func (m *Memory) CapacityBytes() uint64 {
	if m.backing == nil {
		return 0
	}
	return m.backing.CapacityBytes()
}

// Backing exposes the underlying sparse store, for dirty tracking and
// statistics. Returns nil before Initialize.
func (m *Memory) Backing() *sparsemem.Backing {
	return m.backing
}

// IsValidOffset returns whether [offset, offset+size) lies within RAM.
func (m *Memory) IsValidOffset(offset, size uint64) bool {
	if size == 0 || offset >= m.size {
		return false
	}
	end, ok := guestarch.Addr(offset).AddLength(size)
	return ok && uint64(end) <= m.size
}

// CheckRange reports Ok or OutOfRange for [offset, offset+size).
func (m *Memory) CheckRange(offset, size uint64) guestarch.Status {
	if m.IsValidOffset(offset, size) {
		return guestarch.Ok
	}
	return guestarch.OutOfRange
}

// CheckAlign applies the Alpha natural-alignment rules: bytes anywhere,
// words on 2-byte, longwords on 4-byte and quadwords on 8-byte boundaries.
// An unsupported width reports OutOfRange.
func (m *Memory) CheckAlign(offset uint64, width uint8) guestarch.Status {
	if !guestarch.ValidWidth(width) {
		return guestarch.OutOfRange
	}
	if !guestarch.Addr(offset).IsAligned(width) {
		return guestarch.Misaligned
	}
	return guestarch.Ok
}

// Load reads a width-byte little-endian value from offset. The range check
// runs before the alignment check, so an access that is both out of bounds
// and misaligned reports OutOfRange.
func (m *Memory) Load(offset uint64, width uint8) (uint64, guestarch.Status) {
	if m.backing == nil {
		log.Warningf("safemem: load from uninitialized memory")
		return 0, guestarch.NotInitialized
	}
	if s := m.CheckRange(offset, uint64(width)); s != guestarch.Ok {
		if log.IsLogging(log.Debug) {
			log.Debugf("safemem: load range check failed at offset=%#x width=%d", offset, width)
		}
		return 0, s
	}
	if s := m.CheckAlign(offset, width); s != guestarch.Ok {
		if log.IsLogging(log.Debug) {
			log.Debugf("safemem: load alignment fault at offset=%#x width=%d", offset, width)
		}
		return 0, s
	}

	var (
		v  uint64
		ok bool
	)
	switch width {
	case 1:
		var b uint8
		b, ok = m.backing.Load8(offset)
		v = uint64(b)
	case 2:
		var h uint16
		h, ok = m.backing.Load16(offset)
		v = uint64(h)
	case 4:
		var w uint32
		w, ok = m.backing.Load32(offset)
		v = uint64(w)
	default:
		v, ok = m.backing.Load64(offset)
	}
	if !ok {
		return 0, guestarch.OutOfRange
	}
	return v, guestarch.Ok
}

// Store writes a width-byte little-endian value at offset, under the same
// checks as Load. A failed store leaves memory unchanged.
func (m *Memory) Store(offset uint64, width uint8, value uint64) guestarch.Status {
	if m.backing == nil {
		log.Warningf("safemem: store to uninitialized memory")
		return guestarch.NotInitialized
	}
	if s := m.CheckRange(offset, uint64(width)); s != guestarch.Ok {
		if log.IsLogging(log.Debug) {
			log.Debugf("safemem: store range check failed at offset=%#x width=%d", offset, width)
		}
		return s
	}
	if s := m.CheckAlign(offset, width); s != guestarch.Ok {
		if log.IsLogging(log.Debug) {
			log.Debugf("safemem: store alignment fault at offset=%#x width=%d", offset, width)
		}
		return s
	}

	var ok bool
	switch width {
	case 1:
		ok = m.backing.Store8(offset, uint8(value))
	case 2:
		ok = m.backing.Store16(offset, uint16(value))
	case 4:
		ok = m.backing.Store32(offset, uint32(value))
	default:
		ok = m.backing.Store64(offset, value)
	}
	if !ok {
		return guestarch.OutOfRange
	}
	return guestarch.Ok
}

// Typed wrappers over Load and Store.

func (m *Memory) Load8(offset uint64) (uint8, guestarch.Status) {
	v, s := m.Load(offset, 1)
	return uint8(v), s
}

func (m *Memory) Load16(offset uint64) (uint16, guestarch.Status) {
	v, s := m.Load(offset, 2)
	return uint16(v), s
}

func (m *Memory) Load32(offset uint64) (uint32, guestarch.Status) {
	v, s := m.Load(offset, 4)
	return uint32(v), s
}

func (m *Memory) Load64(offset uint64) (uint64, guestarch.Status) {
	return m.Load(offset, 8)
}

func (m *Memory) Store8(offset uint64, value uint8) guestarch.Status {
	return m.Store(offset, 1, uint64(value))
}

func (m *Memory) Store16(offset uint64, value uint16) guestarch.Status {
	return m.Store(offset, 2, uint64(value))
}

func (m *Memory) Store32(offset uint64, value uint32) guestarch.Status {
	return m.Store(offset, 4, uint64(value))
}

func (m *Memory) Store64(offset uint64, value uint64) guestarch.Status {
	return m.Store(offset, 8, value)
}

// ReadBlock fills dst from [offset, offset+len(dst)). Block operations are
// bounds-checked but carry no alignment requirement.
func (m *Memory) ReadBlock(offset uint64, dst []byte) guestarch.Status {
	if m.backing == nil {
		return guestarch.NotInitialized
	}
	if len(dst) == 0 {
		return guestarch.OutOfRange
	}
	if s := m.CheckRange(offset, uint64(len(dst))); s != guestarch.Ok {
		return s
	}
	if !m.backing.LoadBlock(offset, dst) {
		return guestarch.OutOfRange
	}
	return guestarch.Ok
}

// WriteBlock copies src into [offset, offset+len(src)).
func (m *Memory) WriteBlock(offset uint64, src []byte) guestarch.Status {
	if m.backing == nil {
		return guestarch.NotInitialized
	}
	if len(src) == 0 {
		return guestarch.OutOfRange
	}
	if s := m.CheckRange(offset, uint64(len(src))); s != guestarch.Ok {
		return s
	}
	log.Debugf("safemem: writeBlock offset=%#x size=%d", offset, len(src))
	if !m.backing.StoreBlock(offset, src) {
		return guestarch.OutOfRange
	}
	return guestarch.Ok
}
