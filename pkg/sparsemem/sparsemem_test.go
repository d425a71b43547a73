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
	"bytes"
	"sync"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"

	"axpemu.dev/axpemu/pkg/guestarch"
)

const testCapacity = 16 * guestarch.PageSize

func TestLazyAllocation(t *testing.T) {
	b := NewBacking(testCapacity)
	if got, want := b.AllocatedPageCount(), uint64(0); got != want {
		t.Fatalf("AllocatedPageCount() = %d, want %d", got, want)
	}

	// Reads do not materialize pages.
	if v, ok := b.Load64(3 * guestarch.PageSize); !ok || v != 0 {
		t.Errorf("Load64 of never-written page = (%#x, %t), want (0, true)", v, ok)
	}
	if got, want := b.AllocatedPageCount(), uint64(0); got != want {
		t.Errorf("AllocatedPageCount() after read = %d, want %d", got, want)
	}

	// A store materializes exactly one page.
	if !b.Store8(3*guestarch.PageSize+7, 0xAB) {
		t.Fatalf("Store8 failed")
	}
	if got, want := b.AllocatedPageCount(), uint64(1); got != want {
		t.Errorf("AllocatedPageCount() after store = %d, want %d", got, want)
	}
	if got, want := b.AllocatedBytes(), uint64(guestarch.PageSize); got != want {
		t.Errorf("AllocatedBytes() = %d, want %d", got, want)
	}
}

func TestLoadStoreWidths(t *testing.T) {
	b := NewBacking(testCapacity)

	if !b.Store64(0x1000, 0xDEADBEEFCAFEBABE) {
		t.Fatalf("Store64 failed")
	}
	if v, ok := b.Load64(0x1000); !ok || v != 0xDEADBEEFCAFEBABE {
		t.Errorf("Load64(0x1000) = (%#x, %t), want (0xdeadbeefcafebabe, true)", v, ok)
	}

	// Little-endian byte order within the page.
	if v, ok := b.Load8(0x1000); !ok || v != 0xBE {
		t.Errorf("Load8(0x1000) = (%#x, %t), want (0xbe, true)", v, ok)
	}
	if v, ok := b.Load16(0x1000); !ok || v != 0xBABE {
		t.Errorf("Load16(0x1000) = (%#x, %t), want (0xbabe, true)", v, ok)
	}
	if v, ok := b.Load32(0x1004); !ok || v != 0xDEADBEEF {
		t.Errorf("Load32(0x1004) = (%#x, %t), want (0xdeadbeef, true)", v, ok)
	}
}

func TestOutOfRange(t *testing.T) {
	b := NewBacking(testCapacity)

	if _, ok := b.Load8(testCapacity); ok {
		t.Errorf("Load8(capacity) succeeded, want failure")
	}
	if b.Store8(testCapacity, 1) {
		t.Errorf("Store8(capacity) succeeded, want failure")
	}
	// The final in-range 64-bit slot is exactly capacity-8.
	if !b.Store64(testCapacity-8, 1) {
		t.Errorf("Store64(capacity-8) failed, want success")
	}
	if b.Store64(testCapacity-7, 1) {
		t.Errorf("Store64(capacity-7) succeeded, want failure")
	}
	// Offset arithmetic must not wrap.
	if b.Store64(^uint64(0)-3, 1) {
		t.Errorf("Store64 near uint64 max succeeded, want failure")
	}
}

func TestPageCrossing(t *testing.T) {
	b := NewBacking(testCapacity)

	// Straddles the boundary between pages 0 and 1.
	off := uint64(guestarch.PageSize - 4)
	if !b.Store64(off, 0x1122334455667788) {
		t.Fatalf("Store64(%#x) failed", off)
	}
	if got, want := b.AllocatedPageCount(), uint64(2); got != want {
		t.Errorf("AllocatedPageCount() = %d, want %d", got, want)
	}
	if v, ok := b.Load64(off); !ok || v != 0x1122334455667788 {
		t.Errorf("Load64(%#x) = (%#x, %t), want (0x1122334455667788, true)", off, v, ok)
	}

	// The halves land on the right sides of the boundary.
	if v, _ := b.Load32(off); v != 0x55667788 {
		t.Errorf("low half = %#x, want 0x55667788", v)
	}
	if v, _ := b.Load32(guestarch.PageSize); v != 0x11223344 {
		t.Errorf("high half = %#x, want 0x11223344", v)
	}
}

func TestBlockOps(t *testing.T) {
	b := NewBacking(testCapacity)

	src := make([]byte, 3*guestarch.PageSize+100)
	for i := range src {
		src[i] = byte(i * 7)
	}
	off := uint64(guestarch.PageSize - 50)
	if !b.StoreBlock(off, src) {
		t.Fatalf("StoreBlock failed")
	}

	dst := make([]byte, len(src))
	if !b.LoadBlock(off, dst) {
		t.Fatalf("LoadBlock failed")
	}
	if diff := cmp.Diff(src, dst); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	// A block spanning written and never-written pages reads the gap as
	// zero.
	far := make([]byte, 2*guestarch.PageSize)
	if !b.LoadBlock(10*guestarch.PageSize, far) {
		t.Fatalf("LoadBlock of unwritten range failed")
	}
	if !bytes.Equal(far, make([]byte, len(far))) {
		t.Errorf("unwritten range read non-zero")
	}

	if b.StoreBlock(testCapacity-10, make([]byte, 11)) {
		t.Errorf("StoreBlock past capacity succeeded, want failure")
	}
}

func TestEnsurePageRace(t *testing.T) {
	b := NewBacking(testCapacity)

	// Many goroutines race to install the same page; all must observe the
	// same buffer and the page must be counted once.
	const workers = 32
	ptrs := make([]uintptr, workers)
	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait()
			p := b.EnsurePage(5)
			ptrs[i] = uintptr(unsafe.Pointer(&p[0]))
		}(i)
	}
	start.Done()
	done.Wait()

	for i := 1; i < workers; i++ {
		if ptrs[i] != ptrs[0] {
			t.Fatalf("worker %d observed page buffer %#x, worker 0 observed %#x", i, ptrs[i], ptrs[0])
		}
	}
	if got, want := b.AllocatedPageCount(), uint64(1); got != want {
		t.Errorf("AllocatedPageCount() = %d, want %d", got, want)
	}
}

func TestConcurrentStores(t *testing.T) {
	b := NewBacking(testCapacity)

	// Disjoint writers within one page; every byte must survive.
	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			base := uint64(w) * 1024
			for i := uint64(0); i < 1024; i++ {
				b.Store8(base+i, byte(w+1))
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		base := uint64(w) * 1024
		for i := uint64(0); i < 1024; i += 257 {
			if v, _ := b.Load8(base + i); v != byte(w+1) {
				t.Fatalf("Load8(%#x) = %#x, want %#x", base+i, v, byte(w+1))
			}
		}
	}
}

func TestDirtyTracking(t *testing.T) {
	b := NewBacking(testCapacity)
	b.EnableDirtyTracking(true)

	b.Store8(0, 1)                                    // page 0
	b.Store64(5*guestarch.PageSize+8, 0xFFFFFFFFFFF) // page 5

	if !b.IsDirty(0) {
		t.Errorf("IsDirty(0) = false, want true")
	}
	if b.IsDirty(3) {
		t.Errorf("IsDirty(3) = true, want false")
	}
	if !b.IsDirty(5) {
		t.Errorf("IsDirty(5) = false, want true")
	}

	dirty := b.DirtyPages()
	if got, want := dirty.ToSlice(), []uint32{0, 5}; !cmp.Equal(got, want) {
		t.Errorf("DirtyPages() = %v, want %v", got, want)
	}

	b.ClearDirty()
	dirty = b.DirtyPages()
	if !dirty.IsEmpty() {
		t.Errorf("DirtyPages() not empty after ClearDirty")
	}

	// Reads never dirty a page.
	b.Load64(7 * guestarch.PageSize)
	if b.IsDirty(7) {
		t.Errorf("IsDirty(7) = true after read, want false")
	}
}

func TestDirtyDisabled(t *testing.T) {
	b := NewBacking(testCapacity)
	b.Store8(0, 1)
	if b.IsDirty(0) {
		t.Errorf("IsDirty(0) = true with tracking disabled, want false")
	}
	dirty := b.DirtyPages()
	if !dirty.IsEmpty() {
		t.Errorf("DirtyPages() not empty with tracking disabled")
	}
}

func TestRelease(t *testing.T) {
	b := NewBacking(testCapacity)
	b.Store64(0, 1)
	b.Release()
	if b.IsAllocated() {
		t.Errorf("IsAllocated() = true after Release")
	}
	if _, ok := b.Load8(0); ok {
		t.Errorf("Load8 succeeded after Release, want failure")
	}

	// The store is reusable after a fresh Allocate.
	if !b.Allocate(2 * guestarch.PageSize) {
		t.Fatalf("Allocate after Release failed")
	}
	if v, ok := b.Load64(0); !ok || v != 0 {
		t.Errorf("Load64(0) after reallocate = (%#x, %t), want (0, true)", v, ok)
	}
}

func TestReadPageZeroView(t *testing.T) {
	b := NewBacking(testCapacity)
	p := b.ReadPage(2)
	if len(p) != guestarch.PageSize {
		t.Fatalf("ReadPage length = %d, want %d", len(p), guestarch.PageSize)
	}
	for i := 0; i < len(p); i += 4096 {
		if p[i] != 0 {
			t.Fatalf("zero view byte %d = %#x, want 0", i, p[i])
		}
	}
	if b.PageInstalled(2) {
		t.Errorf("PageInstalled(2) = true after read-only view, want false")
	}
}
