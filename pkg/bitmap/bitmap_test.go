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

package bitmap

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAddRemove(t *testing.T) {
	b := New(256)
	if !b.IsEmpty() {
		t.Fatalf("new bitmap not empty")
	}

	for _, i := range []uint32{0, 63, 64, 200} {
		b.Add(i)
	}
	b.Add(63) // Double add must not double count.
	if got, want := b.GetNumOnes(), uint32(4); got != want {
		t.Errorf("GetNumOnes() = %d, want %d", got, want)
	}
	if !b.Contains(64) || b.Contains(65) || b.Contains(10000) {
		t.Errorf("Contains gave wrong membership")
	}

	b.Remove(64)
	b.Remove(64)
	if got, want := b.GetNumOnes(), uint32(3); got != want {
		t.Errorf("GetNumOnes() after remove = %d, want %d", got, want)
	}
	if diff := cmp.Diff([]uint32{0, 63, 200}, b.ToSlice()); diff != "" {
		t.Errorf("ToSlice() mismatch (-want +got):\n%s", diff)
	}
}

func TestAddExtends(t *testing.T) {
	b := New(64)
	b.Add(300)
	if !b.Contains(300) {
		t.Errorf("Contains(300) = false after Add")
	}
	if b.Size() < 301 {
		t.Errorf("Size() = %d, want >= 301", b.Size())
	}
}

func TestFromWords(t *testing.T) {
	b := FromWords([]uint64{1<<0 | 1<<5, 0, 1 << 63})
	if got, want := b.GetNumOnes(), uint32(3); got != want {
		t.Errorf("GetNumOnes() = %d, want %d", got, want)
	}
	if diff := cmp.Diff([]uint32{0, 5, 191}, b.ToSlice()); diff != "" {
		t.Errorf("ToSlice() mismatch (-want +got):\n%s", diff)
	}
}

func TestClone(t *testing.T) {
	b := New(64)
	b.Add(7)
	c := b.Clone()
	c.Add(8)
	if b.Contains(8) {
		t.Errorf("mutating the clone changed the original")
	}
	if !c.Contains(7) {
		t.Errorf("clone lost bit 7")
	}
}
