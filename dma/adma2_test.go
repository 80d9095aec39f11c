// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package dma

import (
	"errors"
	"testing"

	"github.com/platinasystems/sdhcid/mmcproto"
	"github.com/platinasystems/sdhcid/sdcmd"
)

func noBytes(uintptr, int) []byte { return nil }

func TestBuildADMA2SingleSegmentTerminates(t *testing.T) {
	tbl := NewTable(false)
	cmd := &sdcmd.Cmd{Segments: []sdcmd.Segment{{DMAAddr: 0x1000, NumSectors: 4}}}
	if err := tbl.BuildADMA2(cmd, nil, noBytes); err != nil {
		t.Fatalf("BuildADMA2: %v", err)
	}
	descs := tbl.Descs()
	if len(descs) != 1 {
		t.Fatalf("got %d descriptors, want 1", len(descs))
	}
	if !descs[0].End {
		t.Error("sole descriptor lacks End=1")
	}
	if descs[0].Length != 4*512 {
		t.Errorf("Length = %d, want %d", descs[0].Length, 4*512)
	}
}

func TestBuildADMA2ExactlyOneEndAcrossSegments(t *testing.T) {
	tbl := NewTable(false)
	cmd := &sdcmd.Cmd{Segments: []sdcmd.Segment{
		{DMAAddr: 0x1000, NumSectors: 2},
		{DMAAddr: 0x2000, NumSectors: 2},
		{DMAAddr: 0x3000, NumSectors: 2},
	}}
	if err := tbl.BuildADMA2(cmd, nil, noBytes); err != nil {
		t.Fatalf("BuildADMA2: %v", err)
	}
	descs := tbl.Descs()
	ends := 0
	for i, d := range descs {
		if d.End {
			ends++
			if i != len(descs)-1 {
				t.Errorf("End=1 on non-final descriptor %d of %d", i, len(descs))
			}
		}
		if !d.Valid {
			t.Errorf("descriptor %d not marked Valid", i)
		}
	}
	if ends != 1 {
		t.Errorf("got %d End descriptors, want exactly 1", ends)
	}
}

func TestBuildADMA2SplitsOversizeSegment(t *testing.T) {
	tbl := NewTable(false)
	// 80KiB, two and a half times the per-descriptor cap of 32KiB, so
	// it splits into three descriptors.
	cmd := &sdcmd.Cmd{Segments: []sdcmd.Segment{{DMAAddr: 0x10000, NumSectors: 80 * 1024 / 512}}}
	if err := tbl.BuildADMA2(cmd, nil, noBytes); err != nil {
		t.Fatalf("BuildADMA2: %v", err)
	}
	descs := tbl.Descs()
	if len(descs) != 3 {
		t.Fatalf("got %d descriptors, want 3", len(descs))
	}
	total := 0
	addr := uint64(0x10000)
	for i, d := range descs {
		if d.Addr != addr {
			t.Errorf("descriptor %d address = %#x, want %#x", i, d.Addr, addr)
		}
		addr += uint64(d.Length)
		total += int(d.Length)
		if int(d.Length) > MaxDescLength {
			t.Errorf("descriptor %d length %d exceeds MaxDescLength", i, d.Length)
		}
	}
	if total != 80*1024 {
		t.Errorf("total descriptor length = %d, want %d", total, 80*1024)
	}
	if !descs[2].End {
		t.Error("final chunk of final segment lacks End=1")
	}
	if descs[0].End || descs[1].End {
		t.Error("End=1 set on a non-final chunk")
	}
}

func TestRequiresBounceAddressCeiling(t *testing.T) {
	if RequiresBounce(true, AddressCeiling32, 4096) {
		t.Error("64-bit ADMA2 variant must never require a bounce")
	}
	if RequiresBounce(false, AddressCeiling32-512, 512) {
		t.Error("region entirely below the 32-bit ceiling should not bounce")
	}
	if !RequiresBounce(false, AddressCeiling32-256, 512) {
		t.Error("region straddling the 32-bit ceiling must bounce")
	}
}

func TestBuildADMA2BouncesOverCeiling(t *testing.T) {
	tbl := NewTable(false)
	bb := NewBounceBuffer(4096, 0x9000_0000, nil)
	cmd := &sdcmd.Cmd{Segments: []sdcmd.Segment{{DMAAddr: AddressCeiling32 - 256, NumSectors: 1}}}
	if err := tbl.BuildADMA2(cmd, bb, noBytes); err != nil {
		t.Fatalf("BuildADMA2: %v", err)
	}
	descs := tbl.Descs()
	if len(descs) != 1 {
		t.Fatalf("got %d descriptors, want 1", len(descs))
	}
	if descs[0].Addr != bb.PhysAddr(0) {
		t.Errorf("descriptor address = %#x, want bounce address %#x", descs[0].Addr, bb.PhysAddr(0))
	}
}

func TestBuildADMA2WriteCopiesSourceBytesIntoBounceRegion(t *testing.T) {
	tbl := NewTable(false)
	bb := NewBounceBuffer(4096, 0x9000_0000, nil)
	src := make([]byte, 512)
	for i := range src {
		src[i] = byte(i)
	}
	cmd := &sdcmd.Cmd{Segments: []sdcmd.Segment{{DMAAddr: AddressCeiling32 - 256, VirtAddr: 0x4000, NumSectors: 1}}}
	toBytes := func(addr uintptr, length int) []byte {
		if addr != 0x4000 || length != 512 {
			t.Fatalf("toBytes(%#x, %d), want (0x4000, 512)", addr, length)
		}
		return src
	}
	if err := tbl.BuildADMA2(cmd, bb, toBytes); err != nil {
		t.Fatalf("BuildADMA2: %v", err)
	}
	got := make([]byte, 512)
	bb.CopyOut(0, got)
	for i := range got {
		if got[i] != src[i] {
			t.Fatalf("bounce region byte %d = %#x, want %#x", i, got[i], src[i])
		}
	}
	if cmd.Flags.ReadFromBounceBuffer {
		t.Error("write-direction bounce must not set ReadFromBounceBuffer")
	}
}

func TestBuildADMA2ReadMarksBounceFlagWithoutCopying(t *testing.T) {
	tbl := NewTable(false)
	bb := NewBounceBuffer(4096, 0x9000_0000, nil)
	cmd := &sdcmd.Cmd{
		Segments: []sdcmd.Segment{{DMAAddr: AddressCeiling32 - 256, NumSectors: 1}},
		Flags:    sdcmd.Flags{InoutRead: true},
	}
	if err := tbl.BuildADMA2(cmd, bb, noBytes); err != nil {
		t.Fatalf("BuildADMA2: %v", err)
	}
	if !cmd.Flags.ReadFromBounceBuffer {
		t.Error("read-direction bounce did not set ReadFromBounceBuffer")
	}
}

func TestBuildADMA2NoBounceConfiguredFails(t *testing.T) {
	tbl := NewTable(false)
	cmd := &sdcmd.Cmd{Segments: []sdcmd.Segment{{DMAAddr: AddressCeiling32 - 256, NumSectors: 1}}}
	err := tbl.BuildADMA2(cmd, nil, noBytes)
	if !errors.Is(err, mmcproto.ErrInvalid) {
		t.Fatalf("BuildADMA2 = %v, want ErrInvalid", err)
	}
}

func TestBuildADMA2EmptyScatterListFails(t *testing.T) {
	tbl := NewTable(false)
	if err := tbl.BuildADMA2(&sdcmd.Cmd{}, nil, noBytes); !errors.Is(err, mmcproto.ErrInvalid) {
		t.Fatalf("BuildADMA2(empty) = %v, want ErrInvalid", err)
	}
}

func Test64BitDescriptorEncodesHighWord(t *testing.T) {
	tbl := NewTable(true)
	addr := uint64(0x1_0000_0000) + 0x2000
	cmd := &sdcmd.Cmd{Segments: []sdcmd.Segment{{DMAAddr: addr, NumSectors: 1}}}
	if err := tbl.BuildADMA2(cmd, nil, noBytes); err != nil {
		t.Fatalf("BuildADMA2: %v", err)
	}
	descs := tbl.Descs()
	if descs[0].Addr != addr {
		t.Errorf("decoded address = %#x, want %#x", descs[0].Addr, addr)
	}
}
