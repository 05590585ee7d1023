// Copyright (C) 2025 vagent-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package locked implements the fixed-capacity, page-pinned byte arena that
// backs every piece of key material the agent ever holds. No key byte is
// ever allowed to live in an ordinary heap allocation that outlives its use.
package locked

import (
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

// Capacity is the fixed size of every Bytes instance (section 4.11).
const Capacity = 4096

// Bytes is a fixed-capacity buffer allocated in memory pages pinned against
// paging. It is zeroed on Destroy (and, as a backstop, on GC finalization).
type Bytes struct {
	mu     sync.Mutex
	buf    []byte
	length int
	locked bool
	closed bool
}

// New allocates a fresh, page-locked, empty Bytes arena.
func New() *Bytes {
	b := &Bytes{buf: make([]byte, Capacity)}
	if err := unix.Mlock(b.buf); err == nil {
		b.locked = true
	}
	runtime.SetFinalizer(b, (*Bytes).Destroy)
	return b
}

// Data returns the currently populated slice of the arena.
func (b *Bytes) Data() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf[:b.length]
}

// Extend appends p to the arena. It panics if p does not fit in the
// remaining capacity: per section 4.11, LockedBytes exhaustion is an
// invariant violation, not a recoverable error.
func (b *Bytes) Extend(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.length+len(p) > Capacity {
		panic("locked: arena exhausted")
	}
	copy(b.buf[b.length:], p)
	b.length += len(p)
}

// Truncate shortens the populated region to n bytes, zeroing the tail.
func (b *Bytes) Truncate(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n < 0 || n > b.length {
		panic("locked: truncate out of range")
	}
	for i := n; i < b.length; i++ {
		b.buf[i] = 0
	}
	b.length = n
}

// Len reports the number of populated bytes.
func (b *Bytes) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// Destroy overwrites every byte with zero and releases the page lock. It is
// safe to call more than once.
func (b *Bytes) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for i := range b.buf {
		b.buf[i] = 0
	}
	b.length = 0
	if b.locked {
		_ = unix.Munlock(b.buf)
		b.locked = false
	}
	b.closed = true
	runtime.SetFinalizer(b, nil)
}

// FromBytes builds a new arena pre-populated with p. The caller's copy of p
// is not zeroed; callers handling raw secret material directly should clear
// their own buffer after this call.
func FromBytes(p []byte) *Bytes {
	b := New()
	b.Extend(p)
	return b
}
