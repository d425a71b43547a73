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

// AccessKind tags every routed access with its originating agent. The
// router only passes it through today, but it is part of the gateway
// contract so tracing and cache observers can specialize without an
// interface change.
type AccessKind uint8

const (
	// InstructionFetch is an I-stream read issued by a CPU fetch unit.
	InstructionFetch AccessKind = iota

	// DataRead is a D-stream load issued by a CPU load/store unit.
	DataRead

	// DataWrite is a D-stream store issued by a CPU load/store unit.
	DataWrite

	// DMARead is a device-initiated read.
	DMARead

	// DMAWrite is a device-initiated write.
	DMAWrite
)

// String implements fmt.Stringer.String.
func (k AccessKind) String() string {
	switch k {
	case InstructionFetch:
		return "InstructionFetch"
	case DataRead:
		return "DataRead"
	case DataWrite:
		return "DataWrite"
	case DMARead:
		return "DMARead"
	case DMAWrite:
		return "DMAWrite"
	default:
		return "Unknown"
	}
}

// IsWrite returns true for kinds that mutate memory.
func (k AccessKind) IsWrite() bool {
	return k == DataWrite || k == DMAWrite
}

// AccessIntent describes how a caller will use a returned memory span.
type AccessIntent uint8

const (
	// ReadOnly spans are never written through.
	ReadOnly AccessIntent = iota

	// WriteOnly spans are output buffers.
	WriteOnly

	// ReadWrite spans are modified in place.
	ReadWrite
)

// String implements fmt.Stringer.String.
func (i AccessIntent) String() string {
	switch i {
	case ReadOnly:
		return "ReadOnly"
	case WriteOnly:
		return "WriteOnly"
	case ReadWrite:
		return "ReadWrite"
	default:
		return "Unknown"
	}
}
