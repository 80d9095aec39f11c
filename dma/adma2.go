// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

// Package dma builds ADMA2 descriptor tables and the SDMA single-region
// path from a borrowed scatter list, routing segments through a bounce
// buffer when their DMA address exceeds the controller's reachable
// range. Grounded on original_source/server/src/drv_sdhci.cc's
// adma2_set_descs family and drv.h's region_requires_bounce_buffer.
package dma

import (
	"encoding/binary"
	"fmt"

	"github.com/platinasystems/sdhcid/mmcproto"
	"github.com/platinasystems/sdhcid/sdcmd"
)

// Act is the ADMA2 descriptor action field.
type Act int

const (
	ActNop Act = iota
	ActTransfer
	_ // reserved encoding, unused
	ActLink
)

// MaxDescLength is the hardware per-descriptor length cap (spec.md
// §4.3.1 step 3).
const MaxDescLength = 32 * 1024

// AddressCeiling32 is the DMA address ceiling for controllers whose
// ADMA2 descriptor carries only a 32-bit address field (spec.md
// §4.3.1 step 1).
const AddressCeiling32 = uint64(1) << 32

// descriptor32Bytes / descriptor64Bytes are the ADMA2 wire sizes
// (spec.md §6 bit-exact semantics).
const (
	descriptor32Bytes = 8
	descriptor64Bytes = 16
)

// Table is the fixed one-page DMA-coherent descriptor region (spec.md
// §3). Addr64 selects the 64-bit descriptor schema.
type Table struct {
	mem    []byte
	Addr64 bool
	n      int
}

// NewTable allocates a one-page (4096 byte) descriptor table.
func NewTable(addr64 bool) *Table {
	return &Table{mem: make([]byte, 4096), Addr64: addr64}
}

// Bytes returns the populated portion of the table's backing memory,
// the descriptors written by the last build.
func (t *Table) Bytes() []byte { return t.mem[:t.n] }

func (t *Table) reset() { t.n = 0 }

func (t *Table) descSize() int {
	if t.Addr64 {
		return descriptor64Bytes
	}
	return descriptor32Bytes
}

func (t *Table) capacity() int {
	return len(t.mem) / t.descSize()
}

// appendDesc writes one descriptor and returns false if the table is
// full.
func (t *Table) appendDesc(length uint16, act Act, end bool, addr uint64) bool {
	if t.n >= t.capacity() {
		return false
	}
	off := t.n * t.descSize()
	buf := t.mem[off : off+t.descSize()]

	word0 := uint32(length) & 0xffff
	word0 |= uint32(act&0x7) << 16
	if end {
		word0 |= 1 << 21
	}
	word0 |= 1 << 22 // valid

	binary.LittleEndian.PutUint32(buf[0:4], word0)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(addr))
	if t.Addr64 {
		binary.LittleEndian.PutUint32(buf[8:12], uint32(addr>>32))
		binary.LittleEndian.PutUint32(buf[12:16], 0)
	}
	t.n++
	return true
}

// Desc is a decoded view of one descriptor, used by tests.
type Desc struct {
	Length uint16
	Act    Act
	End    bool
	Valid  bool
	Addr   uint64
}

// Descs decodes the populated portion of the table.
func (t *Table) Descs() []Desc {
	out := make([]Desc, 0, t.n)
	for i := 0; i < t.n; i++ {
		off := i * t.descSize()
		buf := t.mem[off : off+t.descSize()]
		word0 := binary.LittleEndian.Uint32(buf[0:4])
		d := Desc{
			Length: uint16(word0 & 0xffff),
			Act:    Act((word0 >> 16) & 0x7),
			End:    word0&(1<<21) != 0,
			Valid:  word0&(1<<22) != 0,
			Addr:   uint64(binary.LittleEndian.Uint32(buf[4:8])),
		}
		if t.Addr64 {
			d.Addr |= uint64(binary.LittleEndian.Uint32(buf[8:12])) << 32
		}
		out = append(out, d)
	}
	return out
}

// RequiresBounce implements drv.h's region_requires_bounce_buffer: for
// 32-bit ADMA2 variants, any region whose end exceeds the 32-bit
// address ceiling must be bounced; true 64-bit variants never bounce.
func RequiresBounce(addr64 bool, dmaAddr uint64, size int) bool {
	if addr64 {
		return false
	}
	return dmaAddr+uint64(size) > AddressCeiling32
}

// BuildADMA2 walks cmd's scatter list in order and emits transfer
// descriptors, bouncing segments that fail RequiresBounce and
// splitting any segment longer than MaxDescLength. Exactly one
// descriptor (the last one emitted) carries End=1 (spec.md §4.3.1
// invariant).
//
// A bounced segment is copied into the bounce region immediately (for
// a write, via toBytes mapping the segment's VirtAddr to client bytes)
// or marks cmd.Flags.ReadFromBounceBuffer (for a read, so fetchResponse
// knows to copy the bounced segments back out once the transfer
// completes), per spec.md §8's bounce-buffer-fidelity invariant.
// toBytes is unused, and may be nil, when cmd has no bounced write
// segments.
func (t *Table) BuildADMA2(cmd *sdcmd.Cmd, bb *BounceBuffer, toBytes func(uintptr, int) []byte) error {
	t.reset()
	segments := cmd.Segments
	if len(segments) == 0 {
		return fmt.Errorf("dma: %w: empty scatter list", mmcproto.ErrInvalid)
	}
	for si, seg := range segments {
		size := int(seg.NumSectors) * 512
		addr := seg.DMAAddr
		if RequiresBounce(t.Addr64, seg.DMAAddr, size) {
			if bb == nil {
				return fmt.Errorf("dma: %w: segment requires bounce buffer but none configured", mmcproto.ErrInvalid)
			}
			off, err := bb.Reserve(size)
			if err != nil {
				return err
			}
			addr = bb.PhysAddr(off)
			if cmd.Flags.InoutRead {
				cmd.Flags.ReadFromBounceBuffer = true
			} else {
				bb.CopyIn(off, toBytes(seg.VirtAddr, size))
			}
		}
		last := si == len(segments)-1
		if err := t.appendSegment(addr, size, last); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) appendSegment(addr uint64, size int, last bool) error {
	remaining := size
	for remaining > 0 {
		chunk := remaining
		if chunk > MaxDescLength {
			chunk = MaxDescLength
		}
		remaining -= chunk
		end := last && remaining == 0
		if !t.appendDesc(uint16(chunk), ActTransfer, end, addr) {
			return fmt.Errorf("dma: %w: descriptor table exhausted", mmcproto.ErrInvalid)
		}
		addr += uint64(chunk)
	}
	return nil
}
