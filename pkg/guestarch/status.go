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

package guestarch

import "fmt"

// Status is the result of a guest memory operation. Statuses are returned,
// never thrown: the CPU/PAL layer above this subsystem translates them into
// guest architectural exceptions. Guest-triggered bad input never aborts
// the emulator process.
type Status uint8

const (
	// Ok indicates the operation completed.
	Ok Status = iota

	// OutOfRange indicates the access range falls outside the target's
	// configured size. Widths outside {1,2,4,8} also report OutOfRange;
	// callers only ever request architectural widths.
	OutOfRange

	// Misaligned indicates the address is not naturally aligned for the
	// access width.
	Misaligned

	// NotInitialized indicates the target subsystem has not been set up.
	NotInitialized

	// BusError indicates a collaborator (MMIO device) reported a fault.
	BusError

	// AccessViolation indicates the physical address resolved to no owner,
	// or the access kind is forbidden for the owner (e.g. instruction
	// fetch from MMIO).
	AccessViolation

	// WriteProtected is reserved for permission semantics layered above
	// this subsystem.
	WriteProtected
)

// String implements fmt.Stringer.String.
func (s Status) String() string {
	switch s {
	case Ok:
		return "Ok"
	case OutOfRange:
		return "OutOfRange"
	case Misaligned:
		return "Misaligned"
	case NotInitialized:
		return "NotInitialized"
	case BusError:
		return "BusError"
	case AccessViolation:
		return "AccessViolation"
	case WriteProtected:
		return "WriteProtected"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// IsOk returns true for Ok.
func (s Status) IsOk() bool {
	return s == Ok
}
