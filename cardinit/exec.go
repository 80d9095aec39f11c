// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package cardinit

import (
	"fmt"
	"time"

	"github.com/platinasystems/sdhcid/mmcproto"
	"github.com/platinasystems/sdhcid/sdcmd"
	"github.com/platinasystems/sdhcid/sdhci"
)

// execTimeout bounds each in-band bring-up command, matching spec.md
// §5's "typically 10ms for state-machine transitions" guidance.
const execTimeout = 10 * time.Millisecond

// exec submits one command and busy-polls the controller's interrupt
// status until the descriptor reaches a terminal state (or, for a
// tuning block, TuningProgress while the controller is still
// tuning), the way the
// original driver's cmd_exec submit -> wait_cmd_finished ->
// wait_data_finished -> fetch_response pipeline does, but collapsed
// into a single helper since bring-up runs on its own goroutine with
// exclusive controller access (spec.md §5).
func exec(ctrl *sdhci.Controller, index int, arg uint32, resp mmcproto.ResponseKind, appCmd bool) (*sdcmd.Cmd, error) {
	cmd, err := ctrl.Queue.Create()
	if err != nil {
		return nil, err
	}
	defer ctrl.Queue.Destruct(cmd)

	cmd.CmdIndex = index
	cmd.Arg = arg
	cmd.ResponseKind = resp
	cmd.CRCCheck = resp != mmcproto.RespNone
	cmd.OpcodeCheck = resp == mmcproto.Resp48 || resp == mmcproto.Resp48Busy
	cmd.Flags.AppCmd = appCmd
	cmd.Status = sdcmd.ReadyForSubmit

	if err := ctrl.Submit(cmd); err != nil {
		return cmd, err
	}

	deadline := time.Now().Add(execTimeout)
	for {
		if ctrl.HandleIRQ(); cmd.Status.Done() || cmd.Status == sdcmd.TuningProgress {
			break
		}
		if time.Now().After(deadline) {
			cmd.Status = sdcmd.CmdTimeout
			cmd.Err = fmt.Errorf("cardinit: %w: %s did not complete", mmcproto.ErrIO, mmcproto.CmdName(index))
			break
		}
		time.Sleep(50 * time.Microsecond)
	}
	return cmd, cmd.Err
}

// execData is exec with a data phase attached (used for EXT_CSD read
// and tuning block transfers).
func execData(ctrl *sdhci.Controller, index int, arg uint32, resp mmcproto.ResponseKind, read bool, segments []sdcmd.Segment, timeout time.Duration) (*sdcmd.Cmd, error) {
	cmd, err := ctrl.Queue.Create()
	if err != nil {
		return nil, err
	}
	defer ctrl.Queue.Destruct(cmd)

	cmd.CmdIndex = index
	cmd.Arg = arg
	cmd.ResponseKind = resp
	cmd.CRCCheck = true
	cmd.OpcodeCheck = true
	cmd.Flags.HasData = true
	cmd.Flags.InoutRead = read
	cmd.BlockSize = 512
	cmd.BlockCnt = 1
	cmd.Segments = segments
	cmd.Status = sdcmd.ReadyForSubmit

	if err := ctrl.Submit(cmd); err != nil {
		return cmd, err
	}

	deadline := time.Now().Add(timeout)
	for {
		if ctrl.HandleIRQ(); cmd.Status.Done() {
			break
		}
		if time.Now().After(deadline) {
			cmd.Status = sdcmd.CmdTimeout
			cmd.Err = fmt.Errorf("cardinit: %w: %s did not complete", mmcproto.ErrIO, mmcproto.CmdName(index))
			break
		}
		time.Sleep(50 * time.Microsecond)
	}
	return cmd, cmd.Err
}

// appCmd issues CMD55 (APP_CMD) ahead of an application-specific
// command, as SD's ACMD41 requires.
func appCmd(ctrl *sdhci.Controller, rca uint16) error {
	_, err := exec(ctrl, mmcproto.CmdAppCmd, uint32(rca)<<16, mmcproto.Resp48, false)
	return err
}
