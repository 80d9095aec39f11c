// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package blockdev

import (
	"fmt"

	"github.com/platinasystems/sdhcid/mmcproto"
	"github.com/platinasystems/sdhcid/sdcmd"
)

// InoutData implements spec.md §4.6 step by step: validates the
// request, allocates a descriptor, selects single/multi-block command
// and auto-CMD23/12 policy, attaches the scatter list, computes arg,
// and kicks the controller. The completion callback is invoked from the
// event-loop goroutine once the descriptor reaches a terminal state.
func (d *Device) InoutData(startSector uint64, segments []sdcmd.Segment, direction Direction, callback func(err error, bytesTransferred int)) error {
	blockcnt := 0
	for _, seg := range segments {
		blockcnt += int(seg.NumSectors)
	}
	if blockcnt*sectorSize > d.maxSize {
		return fatalConfigError("request exceeds max_size (%d > %d bytes)", blockcnt*sectorSize, d.maxSize)
	}
	if len(segments) > d.maxSeg {
		return fatalConfigError("request exceeds max_segments (%d > %d)", len(segments), d.maxSeg)
	}
	if direction == DirectionWrite && d.readOnly {
		return fmt.Errorf("blockdev: %w: device is read-only", mmcproto.ErrInvalid)
	}

	select {
	case d.requests <- request{startSector: startSector, segments: segments, direction: direction, callback: callback}:
		return nil
	default:
		return fmt.Errorf("blockdev: %w: request queue full", mmcproto.ErrBusy)
	}
}

// serve runs from the event-loop goroutine (runEventLoop) and performs
// the actual descriptor allocation/submission/wait for one queued
// request.
func (d *Device) serve(req request) {
	blockcnt := 0
	for _, seg := range req.segments {
		blockcnt += int(seg.NumSectors)
	}

	cmd, err := d.ctrl.Queue.Create()
	if err != nil {
		req.callback(err, 0)
		return
	}

	cmd.Segments = req.segments
	cmd.BlockSize = sectorSize
	cmd.BlockCnt = blockcnt
	cmd.Flags.HasData = true
	cmd.Flags.InoutRead = req.direction == DirectionRead
	cmd.Arg = uint32(req.startSector) * d.state.AddrMult

	// Step 3: choose command.
	single := blockcnt == 1
	switch {
	case single && req.direction == DirectionRead:
		cmd.CmdIndex = mmcproto.CmdReadSingleBlock
	case single && req.direction == DirectionWrite:
		cmd.CmdIndex = mmcproto.CmdWriteBlock
	case !single && req.direction == DirectionRead:
		cmd.CmdIndex = mmcproto.CmdReadMultipleBlock
	default:
		cmd.CmdIndex = mmcproto.CmdWriteMultipleBlock
	}
	cmd.ResponseKind = mmcproto.Resp48
	cmd.CRCCheck = true
	cmd.OpcodeCheck = true

	// Step 4: auto-CMD23/12 selection policy.
	if !single {
		if d.ctrl.Caps.AutoCMD23 && d.state.HasCMD23 {
			cmd.Flags.AutoCMD23 = true
		} else if d.ctrl.Caps.AutoCMD12 {
			cmd.Flags.InoutCmd12Needed = true
		} else {
			// Manual fallback: a CMD12 is appended at callback time
			// by drainUntilDone below (spec.md §4.6 step 4).
			cmd.Flags.InoutCmd12Needed = true
		}
	}

	cmd.Status = sdcmd.ReadyForSubmit

	if err := d.ctrl.Submit(cmd); err != nil {
		d.ctrl.Queue.Destruct(cmd)
		req.callback(err, 0)
		return
	}

	d.drainUntilDone(cmd, req)
}

// drainUntilDone busy-polls the controller's interrupt status until
// the submitted descriptor finishes. It is the only completion path:
// the event loop does not block on platform.IRQReceiver.Receive
// between interrupts, and nothing in this package calls Receive.
func (d *Device) drainUntilDone(cmd *sdcmd.Cmd, req request) {
	for !cmd.Status.Done() {
		d.ctrl.HandleIRQ()
	}

	manualCMD12 := !d.ctrl.Caps.AutoCMD12 && !cmd.Flags.AutoCMD23 && cmd.Flags.InoutCmd12Needed && cmd.BlockCnt > 1
	bytesTransferred := cmd.BytesTransferred
	status := cmd.Status
	resultErr := cmd.Err

	d.publishStats()
	d.ctrl.Queue.Destruct(cmd)

	if manualCMD12 {
		d.issueStopTransmission()
	}

	switch status {
	case sdcmd.Success:
		req.callback(nil, bytesTransferred)
	case sdcmd.DataPartial:
		req.callback(resultErr, bytesTransferred)
	default:
		req.callback(resultErr, 0)
	}
}

func (d *Device) issueStopTransmission() {
	cmd, err := d.ctrl.Queue.Create()
	if err != nil {
		return
	}
	defer d.ctrl.Queue.Destruct(cmd)
	cmd.CmdIndex = mmcproto.CmdStopTransmission
	cmd.ResponseKind = mmcproto.Resp48Busy
	cmd.CRCCheck = true
	cmd.OpcodeCheck = true
	cmd.Status = sdcmd.ReadyForSubmit
	if err := d.ctrl.Submit(cmd); err != nil {
		return
	}
	for !cmd.Status.Done() {
		d.ctrl.HandleIRQ()
	}
}

// Flush implements spec.md §4.6: a no-op on the data path since write
// completion is already acknowledged by transfer_complete.
func (d *Device) Flush(callback func(err error)) {
	callback(nil)
}

// Discard implements spec.md §4.6: currently unsupported.
func (d *Device) Discard(startSector uint64, numSectors uint32, callback func(err error)) {
	callback(fmt.Errorf("blockdev: %w: discard not supported", mmcproto.ErrInvalid))
}

// DiscardInfo reports the all-zero advertised discard granularity
// spec.md §4.6 specifies for the current unsupported state.
func (d *Device) DiscardInfo() (granularity, alignment uint32) { return 0, 0 }
