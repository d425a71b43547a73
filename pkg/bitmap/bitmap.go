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

// Package bitmap provides a packed bitmap keyed by page index. It is the
// export format for dirty-page snapshots: one bit per guest page.
package bitmap

import (
	"math/bits"
)

// Bitmap implements an efficient bitmap over 32-bit indices.
type Bitmap struct {
	// numOnes is the number of ones in the bitmap.
	numOnes uint32

	// words holds the bits, 64 entries per word.
	words []uint64
}

// New creates a new empty Bitmap able to hold size bits.
func New(size uint32) Bitmap {
	return Bitmap{words: make([]uint64, (size+63)/64)}
}

// FromWords creates a Bitmap backed by a copy of the given packed words.
// Word i bit b represents index i*64+b.
func FromWords(words []uint64) Bitmap {
	b := Bitmap{words: make([]uint64, len(words))}
	copy(b.words, words)
	for _, w := range b.words {
		b.numOnes += uint32(bits.OnesCount64(w))
	}
	return b
}

// IsEmpty reports whether no bits are set.
func (b *Bitmap) IsEmpty() bool {
	return b.numOnes == 0
}

// Size returns the total number of bits the bitmap can hold.
func (b *Bitmap) Size() int {
	return len(b.words) * 64
}

// GetNumOnes returns the number of set bits.
func (b *Bitmap) GetNumOnes() uint32 {
	return b.numOnes
}

// Contains reports whether bit i is set. Out-of-range indices read as
// unset.
func (b *Bitmap) Contains(i uint32) bool {
	word := int(i / 64)
	if word >= len(b.words) {
		return false
	}
	return b.words[word]&(uint64(1)<<(i%64)) != 0
}

// Add sets bit i, extending the bitmap if needed.
func (b *Bitmap) Add(i uint32) {
	word, mask := int(i/64), uint64(1)<<(i%64)
	if n := len(b.words); word >= n {
		b.words = append(b.words, make([]uint64, word-n+1)...)
	}
	if b.words[word]&mask == 0 {
		b.words[word] |= mask
		b.numOnes++
	}
}

// Remove clears bit i.
func (b *Bitmap) Remove(i uint32) {
	word, mask := int(i/64), uint64(1)<<(i%64)
	if word >= len(b.words) {
		return
	}
	if b.words[word]&mask != 0 {
		b.words[word] &^= mask
		b.numOnes--
	}
}

// Clone returns a copy of the Bitmap.
func (b *Bitmap) Clone() Bitmap {
	c := Bitmap{numOnes: b.numOnes, words: make([]uint64, len(b.words))}
	copy(c.words, b.words)
	return c
}

// ToSlice returns the set bit indices in increasing order. For example, a
// bitmap of [0, 1, 0, 1] returns [1, 3].
func (b *Bitmap) ToSlice() []uint32 {
	out := make([]uint32, 0, b.numOnes)
	base := uint32(0)
	for _, w := range b.words {
		for w != 0 {
			// Extract the lowest set bit.
			low := w & -w
			out = append(out, base+uint32(bits.OnesCount64(low-1)))
			w ^= low
		}
		base += 64
	}
	return out
}
