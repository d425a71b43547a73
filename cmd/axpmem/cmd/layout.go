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

// Package cmd implements the axpmem subcommands.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"axpemu.dev/axpemu/pkg/memcfg"
)

// mapFlags are the memory map selection flags shared by subcommands.
type mapFlags struct {
	config   string
	platform string
}

func (mf *mapFlags) set(f *flag.FlagSet) {
	f.StringVar(&mf.config, "config", "", "path to a TOML memory map file")
	f.StringVar(&mf.platform, "platform", "", "platform preset (DS10, ES40, ES45, GS320)")
}

func (mf *mapFlags) load() (memcfg.MemoryMap, error) {
	if mf.config != "" && mf.platform != "" {
		return memcfg.MemoryMap{}, fmt.Errorf("-config and -platform are mutually exclusive")
	}
	if mf.config != "" {
		return memcfg.Load(mf.config)
	}
	if mf.platform != "" {
		return memcfg.Preset(mf.platform)
	}
	return memcfg.Default(), nil
}

// fail prints an error and returns the failure exit status.
func fail(format string, v ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "axpmem: "+format+"\n", v...)
	return subcommands.ExitFailure
}

// Layout implements subcommands.Command for the "layout" command.
type Layout struct {
	mapFlags
}

// Name implements subcommands.Command.Name.
func (*Layout) Name() string {
	return "layout"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Layout) Synopsis() string {
	return "print the guest physical memory layout"
}

// Usage implements subcommands.Command.Usage.
func (*Layout) Usage() string {
	return `layout [-config <file> | -platform <name>]

Prints the resolved guest physical memory map: low memory, main RAM, the
MMIO window and the firmware regions.

OPTIONS:
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (l *Layout) SetFlags(f *flag.FlagSet) {
	l.mapFlags.set(f)
}

// Execute implements subcommands.Command.Execute.
func (l *Layout) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	m, err := l.load()
	if err != nil {
		return fail("%v", err)
	}
	fmt.Print(m.String())
	return subcommands.ExitSuccess
}
