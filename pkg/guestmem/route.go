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

package guestmem

import (
	"fmt"
)

// RouteTarget names the subsystem owning a physical address range.
type RouteTarget uint8

const (
	// None marks an unmapped address.
	None RouteTarget = iota

	// RAM routes to the validated memory store.
	RAM

	// MMIO routes to the attached device register gateway.
	MMIO
)

// String implements fmt.Stringer.String.
func (t RouteTarget) String() string {
	switch t {
	case None:
		return "None"
	case RAM:
		return "RAM"
	case MMIO:
		return "MMIO"
	default:
		return fmt.Sprintf("RouteTarget(%d)", uint8(t))
	}
}

// RouteEntry binds the physical address range [Start, End) to one
// subsystem. OffsetBase is added to (pa - Start) to form the
// subsystem-local offset, so a window can sit anywhere in the target's
// offset space.
type RouteEntry struct {
	Start      uint64
	End        uint64
	Target     RouteTarget
	OffsetBase uint64
}

// Contains returns whether pa falls inside the entry.
func (r RouteEntry) Contains(pa uint64) bool {
	return pa >= r.Start && pa < r.End
}

// ContainsRange returns whether [pa, pa+length) falls entirely inside the
// entry. Zero-length and wrapping ranges are never contained.
func (r RouteEntry) ContainsRange(pa, length uint64) bool {
	if length == 0 {
		return false
	}
	end := pa + length
	if end < pa {
		return false
	}
	return pa >= r.Start && end <= r.End
}

// Overlaps returns whether two entries share any address.
func (r RouteEntry) Overlaps(other RouteEntry) bool {
	return r.End > other.Start && r.Start < other.End
}

// LocalOffset translates pa into the target's offset space. Only valid
// when Contains(pa).
func (r RouteEntry) LocalOffset(pa uint64) uint64 {
	return pa - r.Start + r.OffsetBase
}

// String implements fmt.Stringer.String.
func (r RouteEntry) String() string {
	return fmt.Sprintf("[%#x, %#x) -> %s+%#x", r.Start, r.End, r.Target, r.OffsetBase)
}
