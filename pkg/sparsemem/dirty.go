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

package sparsemem

import (
	"sync/atomic"

	"axpemu.dev/axpemu/pkg/atomicbitops"
	"axpemu.dev/axpemu/pkg/bitmap"
)

// EnableDirtyTracking turns per-page dirty tracking on or off. Must not be
// called concurrently with stores; callers flip it during setup or while
// the guest is stopped. Enabling discards any previously recorded bits.
func (b *Backing) EnableDirtyTracking(enable bool) {
	b.dirtyEnabled = enable
	if enable && b.pageCount > 0 {
		b.dirtyWords = make([]uint64, (b.pageCount+pagesPerDirtyWord-1)/pagesPerDirtyWord)
	} else if !enable {
		b.dirtyWords = nil
	}
}

// DirtyTrackingEnabled returns whether stores record dirty bits.
func (b *Backing) DirtyTrackingEnabled() bool {
	return b.dirtyEnabled
}

// markDirty records a store to the given page. Concurrent stores to pages
// sharing a word are safe; the bit is set with an atomic OR.
func (b *Backing) markDirty(pageIdx uint64) {
	if !b.dirtyEnabled {
		return
	}
	atomicbitops.OrUint64(&b.dirtyWords[pageIdx/pagesPerDirtyWord], 1<<(pageIdx%pagesPerDirtyWord))
}

// IsDirty returns whether the page has been stored to since tracking was
// enabled or last cleared. Always false when tracking is disabled.
func (b *Backing) IsDirty(pageIdx uint64) bool {
	if !b.dirtyEnabled || pageIdx >= b.pageCount {
		return false
	}
	w := atomic.LoadUint64(&b.dirtyWords[pageIdx/pagesPerDirtyWord])
	return w&(1<<(pageIdx%pagesPerDirtyWord)) != 0
}

// ClearDirty resets every dirty bit. Callers quiesce stores first; a store
// concurrent with the clear may or may not leave its bit set.
func (b *Backing) ClearDirty() {
	for i := range b.dirtyWords {
		atomic.StoreUint64(&b.dirtyWords[i], 0)
	}
}

// DirtyPages returns a snapshot of the dirty page indices. The snapshot is
// word-atomic: bits set by stores racing with the scan may or may not
// appear.
func (b *Backing) DirtyPages() bitmap.Bitmap {
	if !b.dirtyEnabled {
		return bitmap.New(uint32(b.pageCount))
	}
	words := make([]uint64, len(b.dirtyWords))
	for i := range b.dirtyWords {
		words[i] = atomic.LoadUint64(&b.dirtyWords[i])
	}
	return bitmap.FromWords(words)
}
