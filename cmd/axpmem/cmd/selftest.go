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

package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"axpemu.dev/axpemu/pkg/guestarch"
	"axpemu.dev/axpemu/pkg/guestmem"
	"axpemu.dev/axpemu/pkg/safemem"
)

// Selftest implements subcommands.Command for the "selftest" command.
type Selftest struct{}

// Name implements subcommands.Command.Name.
func (*Selftest) Name() string {
	return "selftest"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Selftest) Synopsis() string {
	return "exercise the memory subsystem end to end"
}

// Usage implements subcommands.Command.Usage.
func (*Selftest) Usage() string {
	return `selftest

Runs built-in checks over the sparse store, the validated access layer and
the physical address router, and reports pass or fail.

`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Selftest) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Selftest) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	failures := 0
	check := func(name string, ok bool) {
		status := "ok"
		if !ok {
			status = "FAIL"
			failures++
		}
		fmt.Printf("%-48s %s\n", name, status)
	}

	// Validated store over 16 MiB of sparse RAM.
	ram := &safemem.Memory{}
	check("initialize 16 MiB validated store", ram.Initialize(16*guestarch.MB))
	check("sparse store commits nothing up front", ram.AllocatedBytes() == 0)

	s := ram.Store64(0x1000, 0xDEADBEEFCAFEBABE)
	check("aligned quadword store", s == guestarch.Ok)
	v, s := ram.Load64(0x1000)
	check("aligned quadword load", s == guestarch.Ok && v == 0xDEADBEEFCAFEBABE)
	_, s = ram.Load64(0x1001)
	check("misaligned quadword load rejected", s == guestarch.Misaligned)
	v, s = ram.Load64(8 * guestarch.PageSize)
	check("never-written page reads zero", s == guestarch.Ok && v == 0)
	check("one page materialized", ram.AllocatedBytes() == guestarch.PageSize)

	// Dirty tracking.
	ram.Backing().EnableDirtyTracking(true)
	ram.Store8(0, 1)
	ram.Store8(5*guestarch.PageSize, 1)
	check("dirty bits follow stores",
		ram.Backing().IsDirty(0) && ram.Backing().IsDirty(5) && !ram.Backing().IsDirty(3))
	ram.Backing().ClearDirty()
	dirty := ram.Backing().DirtyPages()
	check("dirty clear resets all bits", dirty.IsEmpty())

	// Router over RAM [0, 0x80000000) and MMIO [0xF0000000, 0x100000000).
	routed := &safemem.Memory{}
	check("initialize routed RAM", routed.Initialize(0x80000000))
	gw := newScratchGateway()
	g := &guestmem.GuestMemory{}
	g.AttachSubsystems(routed, gw)
	err := g.SetRoutes([]guestmem.RouteEntry{
		{Start: 0, End: 0x80000000, Target: guestmem.RAM},
		{Start: 0xF0000000, End: 0x100000000, Target: guestmem.MMIO},
	})
	check("routing table installed", err == nil)

	s = g.WriteRouted(0xF0001000, 4, 0x1234, guestarch.DataWrite)
	check("MMIO write routed to local offset", s == guestarch.Ok && gw.regs[0x1000] == 0x1234)
	s = g.WriteRouted(0x7FFFFFFC, 4, 0x5678, guestarch.DataWrite)
	check("top-of-RAM longword write", s == guestarch.Ok)
	s = g.WriteRouted(^uint64(0), 1, 0, guestarch.DataWrite)
	check("unmapped PA rejected", s == guestarch.AccessViolation)
	_, s = g.ReadInst32(0xF0001000)
	check("instruction fetch from MMIO rejected", s == guestarch.AccessViolation)

	if failures > 0 {
		fmt.Printf("selftest: %d check(s) failed\n", failures)
		return subcommands.ExitFailure
	}
	fmt.Println("selftest: all checks passed")
	return subcommands.ExitSuccess
}
