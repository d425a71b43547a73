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

// The axpmem tool inspects and exercises the guest physical memory
// subsystem: it renders memory maps, classifies physical addresses
// against the routing table, and runs the built-in self test.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"axpemu.dev/axpemu/cmd/axpmem/cmd"
	"axpemu.dev/axpemu/pkg/log"
)

var (
	debug     = flag.Bool("debug", false, "enable debug logging")
	logFormat = flag.String("log-format", "text", `log format: "text" or "json"`)
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(cmd.Layout), "")
	subcommands.Register(new(cmd.Classify), "")
	subcommands.Register(new(cmd.Selftest), "")

	flag.Parse()
	if *debug {
		log.SetLevel(log.Debug)
	}
	switch *logFormat {
	case "text":
		// GoogleEmitter is the default target.
	case "json":
		log.SetTarget(log.JSONEmitter{Writer: &log.Writer{Next: os.Stderr}})
	default:
		fmt.Fprintf(os.Stderr, "axpmem: invalid log format %q, must be "+
			`"text" or "json"`+"\n", *logFormat)
		os.Exit(1)
	}

	os.Exit(int(subcommands.Execute(context.Background())))
}
