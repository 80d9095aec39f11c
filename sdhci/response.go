// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package sdhci

import (
	"github.com/platinasystems/sdhcid/mmcproto"
	"github.com/platinasystems/sdhcid/sdcmd"
)

// fetchResponse implements spec.md §4.4.3. 136-bit responses are
// re-assembled from the four response registers with the 8-bit left
// shift mandated by the controller layout, because the MMC CID/CSD
// layout the registers mirror lacks the 8-bit CRC prefix the
// controller itself stores (spec.md §6 bit-exact semantics:
// resp[0..3] = ({r3,r2,r1,r0} << 8) word-wise with byte carry between
// adjacent response registers).
func (c *Controller) fetchResponse(cmd *sdcmd.Cmd) {
	if cmd.ResponseKind == mmcproto.RespNone {
		return
	}

	r0 := get(c.Regs, regCmdRsp0)
	r1 := get(c.Regs, regCmdRsp1)
	r2 := get(c.Regs, regCmdRsp2)
	r3 := get(c.Regs, regCmdRsp3)

	if cmd.ResponseKind == mmcproto.Resp136 {
		cmd.Resp[0] = (r3 << 8) | (r2 >> 24)
		cmd.Resp[1] = (r2 << 8) | (r1 >> 24)
		cmd.Resp[2] = (r1 << 8) | (r0 >> 24)
		cmd.Resp[3] = r0 << 8
	} else {
		cmd.Resp[0] = r0
		cmd.Flags.HasR1Response = true
		status := mmcproto.DeviceStatus(r0)
		if status.CurrentState() != mmcproto.StateTransfer {
			c.Log.Tracef("%s: r1 current_state=%s", mmcproto.CmdName(cmd.CmdIndex), status.CurrentState())
		}
	}

	if cmd.Flags.HasData && cmd.Flags.ReadFromBounceBuffer && cmd.Flags.InoutRead {
		c.copyOutBounced(cmd)
	}
}

// copyOutBounced copies each bounced segment out of the bounce buffer
// after the read, per spec.md §4.4.3 ("copy each segment out of the
// bounce buffer after cache-invalidating the corresponding range").
func (c *Controller) copyOutBounced(cmd *sdcmd.Cmd) {
	if c.Bounce == nil {
		return
	}
	off := 0
	for _, seg := range cmd.Segments {
		size := int(seg.NumSectors) * 512
		if dstReachable(seg.DMAAddr, size, c.Caps.Addr64) {
			// Not bounced: BuildADMA2 never reserved bounce space for
			// this segment, so the cursor must not advance past it.
			continue
		}
		dst := virtBytes(seg.VirtAddr, size)
		c.Bounce.CopyOut(off, dst)
		off += size
	}
}

func dstReachable(addr uint64, size int, addr64 bool) bool {
	return !(addr+uint64(size) > (uint64(1) << 32) && !addr64)
}

// virtBytes is overridden by platform wiring / tests to map a virtual
// address and length to a byte slice. Production code installs this
// via SetVirtBytesFunc once the client buffer mapping scheme is known.
var virtBytes = func(addr uintptr, length int) []byte { return make([]byte, length) }

// SetVirtBytesFunc lets the platform layer install the function that
// views a client's virtual address as a byte slice for bounce-buffer
// copy-out.
func SetVirtBytesFunc(f func(uintptr, int) []byte) { virtBytes = f }
