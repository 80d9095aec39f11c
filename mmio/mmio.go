// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

// Package mmio provides typed, offset-safe access to a memory-mapped
// controller register page, with an optional post-write delay for
// controllers that require write recovery time.
package mmio

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/platinasystems/sdhcid/internal/platform"
)

// Block is a mapped register window. All loads and stores go through
// it so that the write-delay policy (required by the iProc variant) is
// applied uniformly.
type Block struct {
	base  []byte
	clock platform.MonotonicClock

	writeDelay time.Duration
}

// NewBlock maps size bytes of the controller's register page starting
// at the physical base address, via /dev/mem.
func NewBlock(memFile string, base uintptr, size int) (*Block, error) {
	f, err := os.OpenFile(memFile, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := unix.Mmap(int(f.Fd()), int64(base), size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmio: mmap %s@0x%x: %w", memFile, base, err)
	}
	return &Block{base: data}, nil
}

// NewFakeBlock returns a Block backed by ordinary heap memory, for use
// in tests that never touch real hardware.
func NewFakeBlock(size int) *Block {
	return &Block{base: make([]byte, size)}
}

// SetMonotonicClock wires the clock source the write-delay policy
// measures against; required before SetWriteDelay is used with a
// non-zero delay.
func (b *Block) SetMonotonicClock(c platform.MonotonicClock) {
	b.clock = c
}

// SetWriteDelay configures the per-write settle time. For the iProc
// variant this is recomputed whenever the SD clock changes:
// ceil(4_000_000 / sd_clock_hz) microseconds, i.e. four SD-clock
// cycles of write recovery.
func (b *Block) SetWriteDelay(d time.Duration) {
	b.writeDelay = d
}

// WriteDelayFromClockHz computes and installs the iProc write-delay
// for the given SD clock frequency.
func (b *Block) WriteDelayFromClockHz(hz uint32) {
	if hz == 0 {
		b.SetWriteDelay(0)
		return
	}
	us := (4000000 + uint64(hz) - 1) / uint64(hz)
	b.SetWriteDelay(time.Duration(us) * time.Microsecond)
}

func (b *Block) settle() {
	if b.writeDelay == 0 {
		return
	}
	if b.clock == nil {
		panic("mmio: write delay configured without a monotonic clock")
	}
	time.Sleep(b.writeDelay)
}

// Load32 reads a 32-bit register at the given byte offset.
func (b *Block) Load32(offset uint32) uint32 {
	return le32(b.base[offset : offset+4])
}

// Store32 writes a 32-bit register at the given byte offset, then
// honors the configured write-delay policy.
func (b *Block) Store32(offset uint32, v uint32) {
	putLe32(b.base[offset:offset+4], v)
	b.settle()
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLe32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// Reg is a typed register view bound to a fixed byte offset within a
// Block. Concrete register types (e.g. in package sdhci) embed Reg and
// add bitfield accessors.
type Reg struct {
	Offset uint32
}

func (r Reg) Get(b *Block) uint32      { return b.Load32(r.Offset) }
func (r Reg) Set(b *Block, v uint32)   { b.Store32(r.Offset, v) }
func (r Reg) SetBits(b *Block, mask, v uint32) {
	cur := r.Get(b)
	r.Set(b, (cur&^mask)|(v&mask))
}
