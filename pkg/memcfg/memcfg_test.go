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

package memcfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"axpemu.dev/axpemu/pkg/guestarch"
	"axpemu.dev/axpemu/pkg/safemem"
)

func TestDefaultValidates(t *testing.T) {
	m := Default()
	if err := m.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
	if got, want := m.RAMBase, uint64(0x80000000); got != want {
		t.Errorf("RAMBase = %#x, want %#x", got, want)
	}
	if got, want := m.MMIOBase, uint64(0xF0000000); got != want {
		t.Errorf("MMIOBase = %#x, want %#x", got, want)
	}
	if got, want := m.MMIOSize, uint64(0x10000000); got != want {
		t.Errorf("MMIOSize = %#x, want %#x", got, want)
	}
}

func TestPresets(t *testing.T) {
	for _, tc := range []struct {
		platform string
		ramSize  uint64
	}{
		{"DS10", 1 * guestarch.GB},
		{"ES40", 4 * guestarch.GB},
		{"ES45", 4 * guestarch.GB},
		{"GS320", 32 * guestarch.GB},
		{"gs320", 32 * guestarch.GB},
	} {
		m, err := Preset(tc.platform)
		if err != nil {
			t.Errorf("Preset(%q) error: %v", tc.platform, err)
			continue
		}
		if m.RAMSize != tc.ramSize {
			t.Errorf("Preset(%q).RAMSize = %#x, want %#x", tc.platform, m.RAMSize, tc.ramSize)
		}
		if err := m.Validate(); err != nil {
			t.Errorf("Preset(%q).Validate() = %v, want nil", tc.platform, err)
		}
	}

	if _, err := Preset("VAX780"); err == nil {
		t.Errorf("Preset(VAX780) succeeded, want error")
	}
}

// Every map Validate accepts must be backable: InitDefaultRoutes covers
// [0, RAMEnd) with one store, so the store must accept that size.
func TestValidMapsAreBackable(t *testing.T) {
	maps := map[string]MemoryMap{"default": Default()}
	for _, platform := range []string{"DS10", "ES40", "ES45", "GS320"} {
		m, err := Preset(platform)
		if err != nil {
			t.Fatalf("Preset(%q) error: %v", platform, err)
		}
		maps[platform] = m
	}

	for name, m := range maps {
		if err := m.Validate(); err != nil {
			t.Errorf("%s: Validate() = %v, want nil", name, err)
			continue
		}
		ram := &safemem.Memory{}
		if !ram.Initialize(m.RAMEnd()) {
			t.Errorf("%s: Initialize(RAMEnd()=%#x) failed for a validated map", name, m.RAMEnd())
		}
	}
}

func TestValidateRejects(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*MemoryMap)
		substr string
	}{
		{"zero ram", func(m *MemoryMap) { m.RAMSize = 0 }, "ram_size"},
		{"ram too large", func(m *MemoryMap) { m.RAMSize = guestarch.MaxRAMSize + guestarch.PageSize }, "maximum"},
		{"region end unbackable", func(m *MemoryMap) {
			m.RAMBase = guestarch.MaxBackingSize
			m.MMIOBase = 2 * guestarch.MaxBackingSize
		}, "backing"},
		{"unaligned ram base", func(m *MemoryMap) { m.RAMBase = 0x80000100 }, "page-aligned"},
		{"unaligned mmio size", func(m *MemoryMap) { m.MMIOSize = 0x1234 }, "page-aligned"},
		{"zero mmio", func(m *MemoryMap) { m.MMIOSize = 0 }, "mmio_size"},
		{"mmio under ram", func(m *MemoryMap) { m.MMIOBase = 0x40000000 }, "overlaps"},
		{"hwrpb outside ram", func(m *MemoryMap) { m.HWRPBBase = 1 << 40 }, "HWRPB"},
	} {
		m := Default()
		tc.mutate(&m)
		err := m.Validate()
		if err == nil {
			t.Errorf("%s: Validate() = nil, want error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.substr) {
			t.Errorf("%s: Validate() = %q, want substring %q", tc.name, err, tc.substr)
		}
	}
}

func TestParse(t *testing.T) {
	m, err := Parse(`
platform = "ES45"
memory_gb = 8

[memory_map]
mmio_size = 0x20000000
`)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if got, want := m.RAMSize, uint64(8*guestarch.GB); got != want {
		t.Errorf("RAMSize = %#x, want %#x", got, want)
	}
	if got, want := m.MMIOBase, uint64(0x1000000000); got != want {
		t.Errorf("MMIOBase = %#x, want %#x (preset)", got, want)
	}
	if got, want := m.MMIOSize, uint64(0x20000000); got != want {
		t.Errorf("MMIOSize = %#x, want %#x (override)", got, want)
	}
}

func TestParseEmpty(t *testing.T) {
	m, err := Parse("")
	if err != nil {
		t.Fatalf("Parse(empty) error: %v", err)
	}
	if m != Default() {
		t.Errorf("Parse(empty) = %+v, want defaults", m)
	}
}

func TestParseRejects(t *testing.T) {
	if _, err := Parse(`platform = "PDP11"`); err == nil {
		t.Errorf("unknown platform accepted")
	}
	if _, err := Parse(`mmio_bass = 1`); err == nil {
		t.Errorf("unknown key accepted")
	}
	// Overrides still go through validation.
	if _, err := Parse("[memory_map]\nmmio_base = 0x40000000\n"); err == nil {
		t.Errorf("overlapping override accepted")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memmap.toml")
	if err := os.WriteFile(path, []byte("memory_gb = 1\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := m.RAMSize, uint64(1*guestarch.GB); got != want {
		t.Errorf("RAMSize = %#x, want %#x", got, want)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("Load of missing file succeeded, want error")
	}
}
