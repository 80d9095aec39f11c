// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package sdhci

import (
	"testing"

	"github.com/platinasystems/sdhcid/dma"
	"github.com/platinasystems/sdhcid/mmcproto"
	"github.com/platinasystems/sdhcid/mmio"
	"github.com/platinasystems/sdhcid/sdcmd"
)

func TestFetchResponse136BitReassembly(t *testing.T) {
	regs := mmio.NewFakeBlock(0x100)
	set(regs, regCmdRsp0, 0x11223344)
	set(regs, regCmdRsp1, 0x55667788)
	set(regs, regCmdRsp2, 0x99aabbcc)
	set(regs, regCmdRsp3, 0xddeeff00)

	c := &Controller{Regs: regs, Log: nil}
	cmd := &sdcmd.Cmd{ResponseKind: mmcproto.Resp136}
	c.fetchResponse(cmd)

	r0, r1, r2, r3 := uint32(0x11223344), uint32(0x55667788), uint32(0x99aabbcc), uint32(0xddeeff00)
	want := [4]uint32{
		r3<<8 | r2>>24,
		r2<<8 | r1>>24,
		r1<<8 | r0>>24,
		r0 << 8,
	}
	if cmd.Resp != want {
		t.Errorf("Resp = %#08x, want %#08x", cmd.Resp, want)
	}
}

func TestFetchResponse48BitPassthrough(t *testing.T) {
	regs := mmio.NewFakeBlock(0x100)
	set(regs, regCmdRsp0, 0xcafebabe)

	c := &Controller{Regs: regs}
	cmd := &sdcmd.Cmd{ResponseKind: mmcproto.Resp48}
	c.fetchResponse(cmd)

	if cmd.Resp[0] != 0xcafebabe {
		t.Errorf("Resp[0] = %#x, want 0xcafebabe", cmd.Resp[0])
	}
	if !cmd.Flags.HasR1Response {
		t.Error("HasR1Response not set for Resp48")
	}
}

func TestFetchResponseNoneLeavesRespZero(t *testing.T) {
	regs := mmio.NewFakeBlock(0x100)
	set(regs, regCmdRsp0, 0xffffffff)

	c := &Controller{Regs: regs}
	cmd := &sdcmd.Cmd{ResponseKind: mmcproto.RespNone}
	c.fetchResponse(cmd)

	if cmd.Resp != [4]uint32{} {
		t.Errorf("Resp = %#08x, want all zero for RespNone", cmd.Resp)
	}
}

func TestCopyOutBouncedSkipsReachableSegmentOffset(t *testing.T) {
	regs := mmio.NewFakeBlock(0x100)
	bb := dma.NewBounceBuffer(4096, 0x9000_0000, nil)

	bounced := make([]byte, 512)
	for i := range bounced {
		bounced[i] = 0xaa
	}
	bb.CopyIn(0, bounced) // the only bounced segment, reserved at offset 0

	dsts := map[uintptr][]byte{
		0x2000: make([]byte, 512),
	}
	SetVirtBytesFunc(func(addr uintptr, length int) []byte { return dsts[addr] })
	defer SetVirtBytesFunc(func(uintptr, int) []byte { return nil })

	c := &Controller{Regs: regs, Caps: Capabilities{Addr64: false}, Bounce: bb}
	cmd := &sdcmd.Cmd{
		ResponseKind: mmcproto.RespNone,
		Flags:        sdcmd.Flags{HasData: true, InoutRead: true, ReadFromBounceBuffer: true},
		Segments: []sdcmd.Segment{
			// Reachable: BuildADMA2 never reserved bounce space for
			// this segment, so copy-out must not advance past it.
			{DMAAddr: 0x1000, NumSectors: 1},
			// Bounced: copied in at offset 0 above.
			{DMAAddr: AddressAboveCeilingForTest, VirtAddr: 0x2000, NumSectors: 1},
		},
	}

	c.copyOutBounced(cmd)

	got := dsts[0x2000]
	for i, b := range got {
		if b != 0xaa {
			t.Fatalf("dst[%d] = %#x, want 0xaa (wrong bounce offset read back)", i, b)
		}
	}
}

func TestDstReachable(t *testing.T) {
	if !dstReachable(0x1000, 512, false) {
		t.Error("low address reported unreachable on a 32-bit variant")
	}
	if dstReachable(AddressAboveCeilingForTest, 512, false) {
		t.Error("address past the 32-bit ceiling reported reachable")
	}
	if !dstReachable(AddressAboveCeilingForTest, 512, true) {
		t.Error("64-bit variant must treat every address as reachable")
	}
}

// AddressAboveCeilingForTest sits just under the 32-bit boundary so that
// adding a 512 byte transfer pushes the end past it.
const AddressAboveCeilingForTest = uint64(1)<<32 - 256
