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

// Package guestmem implements the physical address router. GuestMemory is
// the only component that knows the guest memory map: it classifies every
// PA into exactly one owning subsystem, translates it to a subsystem-local
// offset, and dispatches. RAM and the MMIO gateway are offset-addressed
// and never see a PA.
//
// The routing table is built once at bring-up, before any execution
// context issues accesses, and is read lock-free afterwards. Replacing the
// table while accesses are in flight is unsupported.
package guestmem

import (
	"fmt"

	"axpemu.dev/axpemu/pkg/guestarch"
	"axpemu.dev/axpemu/pkg/log"
	"axpemu.dev/axpemu/pkg/memcfg"
	"axpemu.dev/axpemu/pkg/safemem"
)

// MMIOGateway is the collaborator servicing device register accesses.
// Requests arrive by window-local offset with their width and originating
// access kind; implementations answer with the shared status vocabulary
// and report device faults as BusError.
type MMIOGateway interface {
	HandleRead(offset uint64, width uint8, kind guestarch.AccessKind) (uint64, guestarch.Status)
	HandleWrite(offset uint64, width uint8, value uint64, kind guestarch.AccessKind) guestarch.Status
}

// GuestMemory routes physical addresses to RAM or MMIO. Configure with
// AttachSubsystems followed by InitDefaultRoutes or SetRoutes; afterwards
// all access methods are safe for concurrent use.
type GuestMemory struct {
	ram    *safemem.Memory
	mmio   MMIOGateway
	routes []RouteEntry
}

// AttachSubsystems binds the RAM store and MMIO gateway. Must be called
// before the routing table is built.
func (g *GuestMemory) AttachSubsystems(ram *safemem.Memory, mmio MMIOGateway) {
	g.ram = ram
	g.mmio = mmio
	log.Debugf("guestmem: subsystems attached (ram=%t, mmio=%t)", ram != nil, mmio != nil)
}

// InitDefaultRoutes builds the two-route table from a memory map: all of
// [0, RAMBase+RAMSize) identity-maps to RAM, so low-memory firmware, the
// HWRPB and main RAM are one region with PA equal to offset, and the MMIO
// window maps to gateway offset zero.
func (g *GuestMemory) InitDefaultRoutes(m memcfg.MemoryMap) error {
	routes := []RouteEntry{
		{Start: 0, End: m.RAMEnd(), Target: RAM, OffsetBase: 0},
		{Start: m.MMIOBase, End: m.MMIOEnd(), Target: MMIO, OffsetBase: 0},
	}
	if err := g.SetRoutes(routes); err != nil {
		return err
	}
	log.Infof("guestmem: routing table initialized")
	log.Infof("  [%#016x, %#016x) -> RAM (PA = offset)", 0, m.RAMEnd())
	log.Infof("  [%#016x, %#016x) -> MMIO (window offset 0)", m.MMIOBase, m.MMIOEnd())
	return nil
}

// SetRoutes installs an explicit routing table, rejecting overlapping or
// malformed entries. Must not race with concurrent accesses.
func (g *GuestMemory) SetRoutes(routes []RouteEntry) error {
	for i, r := range routes {
		if r.End <= r.Start {
			return fmt.Errorf("route %d %s is empty or inverted", i, r)
		}
		if r.Target == None {
			return fmt.Errorf("route %d %s has no target", i, r)
		}
		for j := i + 1; j < len(routes); j++ {
			if r.Overlaps(routes[j]) {
				return fmt.Errorf("routes overlap: %s and %s", r, routes[j])
			}
		}
	}
	g.routes = append([]RouteEntry(nil), routes...)
	log.Debugf("guestmem: routing table set (%d routes)", len(routes))
	return nil
}

// findRoute scans the table linearly. The table holds a handful of
// entries, which beats any tree for this size.
func (g *GuestMemory) findRoute(pa uint64) *RouteEntry {
	for i := range g.routes {
		if g.routes[i].Contains(pa) {
			return &g.routes[i]
		}
	}
	return nil
}

// ClassifyPA returns the owner of a single physical address.
func (g *GuestMemory) ClassifyPA(pa uint64) RouteTarget {
	if r := g.findRoute(pa); r != nil {
		return r.Target
	}
	return None
}

// ClassifyRange returns the owner of [pa, pa+length), or None unless the
// whole range resolves to one route. A range straddling two targets is a
// routing error serviced by no one, mirroring real bus semantics.
func (g *GuestMemory) ClassifyRange(pa, length uint64) RouteTarget {
	for i := range g.routes {
		if g.routes[i].ContainsRange(pa, length) {
			return g.routes[i].Target
		}
	}
	return None
}

// IsRAM returns whether [pa, pa+length) is entirely RAM.
func (g *GuestMemory) IsRAM(pa, length uint64) bool {
	return g.ClassifyRange(pa, length) == RAM
}

// IsMMIO returns whether [pa, pa+length) is entirely MMIO.
func (g *GuestMemory) IsMMIO(pa, length uint64) bool {
	return g.ClassifyRange(pa, length) == MMIO
}

// IsValidPA returns whether [pa, pa+length) is mapped at all.
func (g *GuestMemory) IsValidPA(pa, length uint64) bool {
	return g.ClassifyRange(pa, length) != None
}

// ReadRouted classifies pa and reads a width-byte value from its owner.
// An unmapped PA reports AccessViolation; MMIO is never executable, so an
// instruction fetch routed to the device window also reports
// AccessViolation.
func (g *GuestMemory) ReadRouted(pa uint64, width uint8, kind guestarch.AccessKind) (uint64, guestarch.Status) {
	if g.ram == nil || g.mmio == nil {
		log.Warningf("guestmem: read with subsystems not attached")
		return 0, guestarch.NotInitialized
	}

	route := g.findRoute(pa)
	if route == nil {
		if log.IsLogging(log.Debug) {
			log.Debugf("guestmem: unmapped read PA %#x", pa)
		}
		return 0, guestarch.AccessViolation
	}
	if kind == guestarch.InstructionFetch && route.Target == MMIO {
		log.Warningf("guestmem: attempt to execute from MMIO at PA %#x", pa)
		return 0, guestarch.AccessViolation
	}

	offset := route.LocalOffset(pa)
	switch route.Target {
	case RAM:
		return g.ram.Load(offset, width)
	case MMIO:
		return g.mmio.HandleRead(offset, width, kind)
	default:
		return 0, guestarch.AccessViolation
	}
}

// WriteRouted classifies pa and writes a width-byte value to its owner.
func (g *GuestMemory) WriteRouted(pa uint64, width uint8, value uint64, kind guestarch.AccessKind) guestarch.Status {
	if g.ram == nil || g.mmio == nil {
		log.Warningf("guestmem: write with subsystems not attached")
		return guestarch.NotInitialized
	}

	route := g.findRoute(pa)
	if route == nil {
		if log.IsLogging(log.Debug) {
			log.Debugf("guestmem: unmapped write PA %#x", pa)
		}
		return guestarch.AccessViolation
	}

	offset := route.LocalOffset(pa)
	switch route.Target {
	case RAM:
		return g.ram.Store(offset, width, value)
	case MMIO:
		return g.mmio.HandleWrite(offset, width, value, kind)
	default:
		return guestarch.AccessViolation
	}
}

// ReadInst32 fetches an aligned 32-bit instruction word.
func (g *GuestMemory) ReadInst32(pa uint64) (uint32, guestarch.Status) {
	v, s := g.ReadRouted(pa, 4, guestarch.InstructionFetch)
	return uint32(v), s
}

// Typed data accessors over ReadRouted and WriteRouted.

func (g *GuestMemory) Read8(pa uint64) (uint8, guestarch.Status) {
	v, s := g.ReadRouted(pa, 1, guestarch.DataRead)
	return uint8(v), s
}

func (g *GuestMemory) Read16(pa uint64) (uint16, guestarch.Status) {
	v, s := g.ReadRouted(pa, 2, guestarch.DataRead)
	return uint16(v), s
}

func (g *GuestMemory) Read32(pa uint64) (uint32, guestarch.Status) {
	v, s := g.ReadRouted(pa, 4, guestarch.DataRead)
	return uint32(v), s
}

func (g *GuestMemory) Read64(pa uint64) (uint64, guestarch.Status) {
	return g.ReadRouted(pa, 8, guestarch.DataRead)
}

func (g *GuestMemory) Write8(pa uint64, value uint8) guestarch.Status {
	return g.WriteRouted(pa, 1, uint64(value), guestarch.DataWrite)
}

func (g *GuestMemory) Write16(pa uint64, value uint16) guestarch.Status {
	return g.WriteRouted(pa, 2, uint64(value), guestarch.DataWrite)
}

func (g *GuestMemory) Write32(pa uint64, value uint32) guestarch.Status {
	return g.WriteRouted(pa, 4, uint64(value), guestarch.DataWrite)
}

func (g *GuestMemory) Write64(pa uint64, value uint64) guestarch.Status {
	return g.WriteRouted(pa, 8, value, guestarch.DataWrite)
}

// ReadPA bulk-reads RAM into dst. Block transfer has no meaning for
// device registers, so a range touching MMIO reports AccessViolation.
func (g *GuestMemory) ReadPA(pa uint64, dst []byte) guestarch.Status {
	if g.ram == nil {
		return guestarch.NotInitialized
	}
	if !g.IsRAM(pa, uint64(len(dst))) {
		log.Warningf("guestmem: block read from non-RAM PA %#x", pa)
		return guestarch.AccessViolation
	}
	route := g.findRoute(pa)
	return g.ram.ReadBlock(route.LocalOffset(pa), dst)
}

// WritePA bulk-writes src into RAM, for firmware load and DMA transfer.
func (g *GuestMemory) WritePA(pa uint64, src []byte) guestarch.Status {
	if g.ram == nil {
		return guestarch.NotInitialized
	}
	if !g.IsRAM(pa, uint64(len(src))) {
		log.Warningf("guestmem: block write to non-RAM PA %#x", pa)
		return guestarch.AccessViolation
	}
	route := g.findRoute(pa)
	return g.ram.WriteBlock(route.LocalOffset(pa), src)
}

// SpanToPA returns a zero-copy view of RAM at pa, truncated at the route
// end as well as the page boundary. MMIO has no byte storage to view, so
// only RAM-classified addresses yield a span.
func (g *GuestMemory) SpanToPA(pa, requestedLen uint64, intent guestarch.AccessIntent) safemem.Span {
	if g.ram == nil {
		return safemem.Span{}
	}
	route := g.findRoute(pa)
	if route == nil || route.Target != RAM {
		return safemem.Span{}
	}

	avail := route.End - pa
	if avail < requestedLen {
		requestedLen = avail
	}
	return g.ram.GetSpan(route.LocalOffset(pa), requestedLen, intent)
}

// NotifyDMAWriteComplete is the coherency hook called after a device DMA
// write lands. Cache observers hang off this; routing itself needs no
// action.
func (g *GuestMemory) NotifyDMAWriteComplete(pa uint64, size uint32) {
	if log.IsLogging(log.Debug) {
		log.Debugf("guestmem: DMA write complete at PA %#x, size %d", pa, size)
	}
}

// DescribePA renders a PA's routing for diagnostics.
func (g *GuestMemory) DescribePA(pa uint64) string {
	route := g.findRoute(pa)
	if route == nil {
		return fmt.Sprintf("PA %#016x: unmapped (no route)", pa)
	}
	return fmt.Sprintf("PA %#016x: %s offset %#x", pa, route.Target, route.LocalOffset(pa))
}
