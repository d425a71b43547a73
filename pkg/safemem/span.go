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

package safemem

import (
	"axpemu.dev/axpemu/pkg/guestarch"
	"axpemu.dev/axpemu/pkg/log"
)

// Span is a direct view into a contiguous run of RAM bytes. A span never
// crosses a page boundary; callers that need more bytes loop, re-requesting
// at the advanced offset. The view stays valid until the memory is cleared
// or re-initialized.
type Span struct {
	// Data aliases the backing page. Writing through a span obtained with
	// ReadOnly intent is forbidden; such a span may view shared zero
	// storage.
	Data []byte

	// Writable records the intent the span was obtained with.
	Writable bool
}

// IsValid returns whether the span references any bytes.
func (s Span) IsValid() bool {
	return len(s.Data) > 0
}

// Len returns the span length in bytes.
func (s Span) Len() uint64 {
	return uint64(len(s.Data))
}

// GetSpan returns a view of up to requestedLen bytes starting at offset.
// The result is truncated at the page boundary and at the end of memory,
// so it may be shorter than requested; zero-length results indicate an
// invalid offset. Write intents materialize the underlying page; ReadOnly
// spans of never-written pages view shared zero storage without
// allocating.
func (m *Memory) GetSpan(offset, requestedLen uint64, intent guestarch.AccessIntent) Span {
	if m.backing == nil {
		log.Warningf("safemem: GetSpan on uninitialized memory")
		return Span{}
	}
	if offset >= m.size || requestedLen == 0 {
		return Span{}
	}

	a := guestarch.Addr(offset)
	availInPage := guestarch.PageSize - a.PageOffset()
	availTotal := m.size - offset

	actualLen := requestedLen
	if availInPage < actualLen {
		actualLen = availInPage
	}
	if availTotal < actualLen {
		actualLen = availTotal
	}

	var page []byte
	if intent == guestarch.ReadOnly {
		page = m.backing.ReadPage(a.PageIndex())
	} else {
		page = m.backing.EnsurePage(a.PageIndex())
	}
	if page == nil {
		log.Warningf("safemem: failed to ensure page %d", a.PageIndex())
		return Span{}
	}

	return Span{
		Data:     page[a.PageOffset() : a.PageOffset()+actualLen],
		Writable: intent != guestarch.ReadOnly,
	}
}
