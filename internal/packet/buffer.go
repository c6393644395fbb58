// Copyright 2017 Google Inc.
// Copyright 2020 Acnodal Inc.
// Copyright Open Network Fabric Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package packet implements the mutable packet buffer, the lazy header
// stack parser, and the per-packet metadata record the forwarding
// pipeline reads and writes.
package packet

import "fmt"

// Buffer is a mutable byte buffer with headroom and tailroom, so that
// stages can prepend or append bytes in place (VXLAN encapsulation,
// decapsulation) without reallocating or copying the payload.
//
// The zero value is not usable; construct with NewBuffer.
type Buffer struct {
	storage []byte
	start   int
	end     int
}

// NewBuffer allocates a buffer with the given headroom and tailroom
// around a payload of length payloadLen. The payload region is left
// zeroed.
func NewBuffer(headroom, tailroom, payloadLen int) *Buffer {
	total := headroom + payloadLen + tailroom
	return &Buffer{
		storage: make([]byte, total),
		start:   headroom,
		end:     headroom + payloadLen,
	}
}

// WrapBuffer builds a Buffer around an existing slice, treating
// headroom bytes at the front and the remainder as payload. This is
// the shape a burst source hands the pipeline: one contiguous
// allocation with headroom already reserved for outer encapsulation.
func WrapBuffer(storage []byte, headroom int) *Buffer {
	return &Buffer{storage: storage, start: headroom, end: len(storage)}
}

// Bytes returns the current payload view. The returned slice aliases
// the buffer's storage; callers must not retain it past the next
// mutation of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.storage[b.start:b.end]
}

// Len returns the length of the current payload view.
func (b *Buffer) Len() int {
	return b.end - b.start
}

// Headroom returns the number of free bytes before the payload.
func (b *Buffer) Headroom() int {
	return b.start
}

// Tailroom returns the number of free bytes after the payload.
func (b *Buffer) Tailroom() int {
	return len(b.storage) - b.end
}

// Prepend grows the payload view backwards by n bytes, returning the
// newly exposed prefix so a stage can write an outer header into it.
// It fails if there is insufficient headroom; implementations must
// reject an encapsulation decision the buffer cannot satisfy rather
// than reallocate on the hot path.
func (b *Buffer) Prepend(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("packet: negative prepend length %d", n)
	}
	if n > b.Headroom() {
		return nil, fmt.Errorf("packet: insufficient headroom: need %d, have %d", n, b.Headroom())
	}
	b.start -= n
	return b.storage[b.start : b.start+n], nil
}

// Append grows the payload view forwards by n bytes, returning the
// newly exposed suffix.
func (b *Buffer) Append(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("packet: negative append length %d", n)
	}
	if n > b.Tailroom() {
		return nil, fmt.Errorf("packet: insufficient tailroom: need %d, have %d", n, b.Tailroom())
	}
	old := b.end
	b.end += n
	return b.storage[old:b.end], nil
}

// TrimFromStart shrinks the payload view by n bytes from the front,
// used to strip an outer encapsulation (VXLAN decap).
func (b *Buffer) TrimFromStart(n int) error {
	if n < 0 || n > b.Len() {
		return fmt.Errorf("packet: cannot trim %d bytes from a %d-byte buffer", n, b.Len())
	}
	b.start += n
	return nil
}

// TrimFromEnd shrinks the payload view by n bytes from the back.
func (b *Buffer) TrimFromEnd(n int) error {
	if n < 0 || n > b.Len() {
		return fmt.Errorf("packet: cannot trim %d bytes from a %d-byte buffer", n, b.Len())
	}
	b.end -= n
	return nil
}

// Reset sets the buffer's headroom and payload length to the given
// sizes, reallocating the storage when it is too small, and zeroes the
// storage so the Buffer can be reused for another packet.
func (b *Buffer) Reset(headroom, payloadLen int) {
	if headroom+payloadLen > len(b.storage) {
		b.storage = make([]byte, headroom+payloadLen)
	}
	b.start = headroom
	b.end = headroom + payloadLen
	for i := range b.storage {
		b.storage[i] = 0
	}
}
