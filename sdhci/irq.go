// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package sdhci

import (
	"fmt"
	"time"

	"github.com/platinasystems/sdhcid/mmcproto"
	"github.com/platinasystems/sdhcid/sdcmd"
)

// HandleIRQ is the single entry point the event loop calls on every
// received interrupt. It dispatches to command-phase or data-phase
// handling based on the working descriptor's status, matching
// drv_sdhci.cc's handle_irq/handle_irq_cmd/handle_irq_data exactly
// (spec.md §4.4.2). Returns the descriptor if it reached a terminal
// status this call, or nil if it is still in progress.
func (c *Controller) HandleIRQ() *sdcmd.Cmd {
	cmd := c.Queue.Working()
	if cmd == nil {
		return nil
	}

	status := get(c.Regs, regIntStatus)

	switch cmd.Status {
	case sdcmd.ProgressCmd:
		c.handleIRQCmd(cmd, status)
	case sdcmd.ProgressData:
		c.handleIRQData(cmd, status)
	}

	if cmd.Status.Done() {
		c.finish(cmd)
		return cmd
	}
	return nil
}

func (c *Controller) handleIRQCmd(cmd *sdcmd.Cmd, status uint32) {
	switch {
	case status&intCmdTimeout != 0:
		set(c.Regs, regIntStatus, intCmdTimeout|intCmdComplete)
		if c.Kind == KindUSDHC {
			c.clearCmdInhibit()
		}
		cmd.Status = sdcmd.CmdTimeout
		cmd.Err = fmt.Errorf("sdhci: %w: %s timed out", mmcproto.ErrIO, mmcproto.CmdName(cmd.CmdIndex))
		c.softResetCmdLine()

	case status&intCmdErrorMask != 0:
		set(c.Regs, regIntStatus, intCmdErrorMask)
		cmd.Status = sdcmd.CmdError
		cmd.Err = fmt.Errorf("sdhci: %w: %s command error", mmcproto.ErrCardError, mmcproto.CmdName(cmd.CmdIndex))
		c.softResetCmdLine()

	case status&intAutoCmdError != 0:
		set(c.Regs, regIntStatus, intAutoCmdError)
		cmd.Status = sdcmd.CmdError
		cmd.Err = fmt.Errorf("sdhci: %w: auto-command error", mmcproto.ErrCardError)
		c.softResetCmdLine()

	case isTuningCommand(cmd.CmdIndex) && status&intCmdComplete != 0 && status&intBufferReadReady == 0:
		set(c.Regs, regIntStatus, intCmdComplete)

	case isTuningCommand(cmd.CmdIndex) && status&intBufferReadReady != 0:
		set(c.Regs, regIntStatus, intBufferReadReady)
		c.handleTuningSample(cmd)

	case status&intCmdComplete != 0:
		set(c.Regs, regIntStatus, intCmdComplete)
		if cmd.Flags.HasData {
			cmd.Status = sdcmd.ProgressData
		} else {
			cmd.Status = sdcmd.Success
		}
	}
}

func (c *Controller) handleTuningSample(cmd *sdcmd.Cmd) {
	still, locked := c.tuningStatus()
	switch {
	case still:
		cmd.Status = sdcmd.TuningProgress
	case locked:
		cmd.Status = sdcmd.Success
	default:
		cmd.Status = sdcmd.TuningFailed
		cmd.Err = fmt.Errorf("sdhci: %w: tuning failed to lock", mmcproto.ErrCardError)
	}
}

func (c *Controller) handleIRQData(cmd *sdcmd.Cmd, status uint32) {
	switch {
	case status&intDataErrorMask != 0:
		set(c.Regs, regIntStatus, intDataErrorMask)
		cmd.Status = sdcmd.DataError
		cmd.Err = fmt.Errorf("sdhci: %w: %s data error", mmcproto.ErrCardError, mmcproto.CmdName(cmd.CmdIndex))

	case status&intTransferComplete != 0:
		set(c.Regs, regIntStatus, intTransferComplete)
		cmd.Status = sdcmd.Success
		cmd.BytesTransferred = cmd.BlockCnt * 512

	case status&intDMAInterrupt != 0:
		set(c.Regs, regIntStatus, intDMAInterrupt)
		c.advanceSDMA(cmd)
	}
}

// advanceSDMA implements spec.md §4.4.2's SDMA-boundary handling: if
// blocks remain, compute bytes transferred from the blockcnt field,
// advance data_phys, wait for DAT inactive on uSDHC, reprogram the DMA
// address, continue.
func (c *Controller) advanceSDMA(cmd *sdcmd.Cmd) {
	remaining := get(c.Regs, regBlkAtt) >> 16
	transferred := cmd.BlockCnt - int(remaining)
	cmd.BytesTransferred = transferred * 512
	if remaining == 0 {
		return
	}
	cmd.Status = sdcmd.DataPartial
	cmd.DataPhys += uint64(transferred) * 512

	if c.Kind == KindUSDHC {
		poll(10*time.Millisecond, func() bool {
			return get(c.Regs, regPresState)&presDatActive == 0
		})
	}
	set(c.Regs, regDSAddr, uint32(cmd.DataPhys))
	cmd.Status = sdcmd.ProgressData
}

func (c *Controller) finish(cmd *sdcmd.Cmd) {
	if cmd.Status == sdcmd.Success {
		c.fetchResponse(cmd)
	}
	cmd.WorkDone()
}

func (c *Controller) clearCmdInhibit() {
	// uSDHC requires an explicit write to clear CMD-inhibit after a
	// command timeout (spec.md §4.4.2).
	set(c.Regs, regSysCtrl, get(c.Regs, regSysCtrl))
}

// softResetCmdLine implements spec.md §4.4.5: on any error, issue a
// soft-reset of the CMD line and poll until clear.
func (c *Controller) softResetCmdLine() {
	const softResetCmd = 1 << 25 // Sys_ctrl reset-CMD bit
	set(c.Regs, regSysCtrl, get(c.Regs, regSysCtrl)|softResetCmd)
	poll(100*time.Millisecond, func() bool {
		return get(c.Regs, regSysCtrl)&softResetCmd == 0
	})
}

// tuningStatus reads back the clock-tune status register: "still
// executing" vs "sample-clock valid" vs neither (spec.md §4.4.2).
func (c *Controller) tuningStatus() (stillExecuting, locked bool) {
	v := get(c.Regs, regClkTuneCtrlStatus)
	const executeTuning = 1 << 0
	const smpClkSel = 1 << 1
	return v&executeTuning != 0, v&smpClkSel != 0
}
