// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package cardinit

import (
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"github.com/platinasystems/sdhcid/internal/dbg"
	"github.com/platinasystems/sdhcid/mmcproto"
	"github.com/platinasystems/sdhcid/sdcmd"
	"github.com/platinasystems/sdhcid/sdhci"
)

// readExtCSD implements spec.md §4.5 step 7: CMD8 with a 512-byte data
// phase into a DMA-coherent buffer, then parse device_type, revision,
// partition sizes, enh_strobe_support.
func readExtCSD(ctrl *sdhci.Controller, state *State) error {
	if !segAddrWired {
		return fmt.Errorf("cardinit: %w: segAddr platform hook not wired, refusing to DMA ext_csd into address 0", mmcproto.ErrInvalid)
	}
	buf := make([]byte, 512)
	addr := segAddr(buf)
	seg := []sdcmd.Segment{{VirtAddr: addr, DMAAddr: uint64(addr), NumSectors: 1}}

	if _, err := execData(ctrl, mmcproto.CmdSendIfCond, 0, mmcproto.Resp48, true, seg, 50*time.Millisecond); err != nil {
		return fmt.Errorf("cardinit: send_ext_csd: %w", err)
	}

	ext := &mmcproto.ExtCSD{}
	copy(ext.Raw[:], buf)
	state.ExtCSD = ext
	state.NumSectors = ext.SectorCount()
	state.DeviceTypeSupported = ext.DeviceTypeSupported()
	state.EnhancedStrobe = ext.EnhancedStrobeSupported()
	state.BootPartitionBytes = ext.BootPartitionBytes()
	state.RPMBPartitionBytes = ext.RPMBPartitionBytes()
	state.UserPartitionBytes = uint64(state.NumSectors) * 512
	return nil
}

// segAddr resolves a client buffer's DMA-visible address; overridden by
// platform wiring in production via SetSegAddrFunc. The zero-value
// default would otherwise point every ext_csd read at address 0, so
// readExtCSD refuses to run until segAddrWired is set.
var (
	segAddr      = func(buf []byte) uintptr { return 0 }
	segAddrWired = false
)

// SetSegAddrFunc installs the platform hook that maps a client buffer
// to the address the controller's DMA engine should target. Must be
// called once at startup before any eMMC card reaches ext_csd read.
func SetSegAddrFunc(f func([]byte) uintptr) {
	segAddr = f
	segAddrWired = true
}

// negotiateMode implements spec.md §4.5 step 8's progressive mode
// upgrade: walk the descending preference list, filtering against
// what the card advertises (minus DisableMask) and what the controller
// supports, applying the mode and re-verifying with CMD13 (for both
// SD and eMMC; EXT_CSD is not re-read after a switch), with the
// tie-break and SWITCH_ERROR rules from the tail of §4.5.
func negotiateMode(ctrl *sdhci.Controller, state *State, cfg Config, log *dbg.Logger) error {
	prefs := sdPreferenceList(state)
	if state.Medium == mmcproto.MediumMMC {
		prefs = mmcPreferenceList(state, cfg.DisableMask)
	}

	for _, t := range prefs {
		if t.Requires18V() {
			if err := ctrl.SetVoltage(true); err != nil {
				log.Tracef("voltage switch to 1.8V failed for %s: %v", t, err)
				continue
			}
			state.Voltage18 = true
		}

		if err := applyMode(ctrl, state, t, log); err != nil {
			log.Tracef("mode %s rejected: %v", t, err)
			continue
		}

		if t.RequiresTuning() {
			if ok := runTuning(ctrl, t); !ok {
				log.Tracef("tuning failed for %s, falling back", t)
				continue
			}
		}

		if !verifyTransferState(ctrl, state) {
			log.Tracef("verification failed for %s, falling back", t)
			continue
		}

		state.Timing = t
		state.DeviceTypeSelected = t
		return nil
	}

	return fmt.Errorf("cardinit: %w: no viable operating point after exhausting preference list", mmcproto.ErrNegotiation)
}

func sdPreferenceList(state *State) []mmcproto.Timing {
	return mmcproto.SDPreference
}

func mmcPreferenceList(state *State, disableMask uint8) []mmcproto.Timing {
	out := make([]mmcproto.Timing, 0, len(mmcproto.MMCPreference))
	for _, t := range mmcproto.MMCPreference {
		if t == mmcproto.TimingHS400ES && (!state.EnhancedStrobe || !mmcproto.Supports(state.DeviceTypeSupported, disableMask, mmcproto.TimingHS400)) {
			continue
		}
		if t != mmcproto.TimingHS400ES && !mmcproto.Supports(state.DeviceTypeSupported, disableMask, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// applyMode issues CMD6 MMC_SWITCH for eMMC, sets the negotiated bus
// width and frequency, and treats a SWITCH_ERROR bit in the R1
// response as an immediate failure without retry (spec.md §4.5
// tie-break rule). For SD cards no CMD6 SD_SWITCH_FUNC is sent; only
// the host-side bus width and clock are changed.
func applyMode(ctrl *sdhci.Controller, state *State, t mmcproto.Timing, log *dbg.Logger) error {
	width := busWidthFor(t)
	freq := frequencyFor(t)

	if state.Medium == mmcproto.MediumMMC {
		cmd, err := exec(ctrl, mmcproto.CmdSwitch, mmcSwitchArg(t), mmcproto.Resp48Busy, false)
		if err != nil {
			return err
		}
		status := mmcproto.DeviceStatus(cmd.Resp[0])
		if status.SwitchError() {
			return fmt.Errorf("cardinit: %w: SWITCH_ERROR for %s", mmcproto.ErrCardError, t)
		}
	}

	if err := ctrl.SetBusWidth(width); err != nil {
		return err
	}
	if err := ctrl.SetClockAndTiming(freq, t, t == mmcproto.TimingHS400ES); err != nil {
		return err
	}
	state.BusWidth = width
	state.FrequencyHz = freq
	return nil
}

func busWidthFor(t mmcproto.Timing) int {
	switch t {
	case mmcproto.TimingSDR12, mmcproto.TimingSDR25, mmcproto.TimingSDR50,
		mmcproto.TimingSDR104, mmcproto.TimingDDR50:
		return 4
	default:
		return 8
	}
}

func frequencyFor(t mmcproto.Timing) uint32 {
	switch t {
	case mmcproto.TimingHS400, mmcproto.TimingHS400ES:
		return 200000000
	case mmcproto.TimingHS200, mmcproto.TimingSDR104:
		return 200000000
	case mmcproto.TimingDDR52, mmcproto.TimingDDR50:
		return 52000000
	case mmcproto.TimingHS52, mmcproto.TimingSDR50:
		return 52000000
	case mmcproto.TimingSDR25:
		return 25000000
	case mmcproto.TimingHS26, mmcproto.TimingSDR12:
		return 26000000
	default:
		return 400000
	}
}

// mmcSwitchArg builds the MMC_SWITCH argument selecting EXT_CSD's
// HS_TIMING byte (index 185) for the target mode, access mode
// "write byte" (0x03 in the standard MMC_SWITCH argument layout).
func mmcSwitchArg(t mmcproto.Timing) uint32 {
	const writeByte = 0x03
	const hsTimingIndex = 185
	var value uint32
	switch t {
	case mmcproto.TimingHS400, mmcproto.TimingHS400ES:
		value = 3
	case mmcproto.TimingHS200:
		value = 2
	default:
		value = 1
	}
	return writeByte<<24 | hsTimingIndex<<16 | value<<8
}

// runTuning implements spec.md §4.5 step 10: issue CMD21 (eMMC) or
// CMD19 (SD) repeatedly while the controller executes tuning, until it
// reports lock or failure.
func runTuning(ctrl *sdhci.Controller, t mmcproto.Timing) bool {
	index := mmcproto.CmdSendTuningBlock
	if t == mmcproto.TimingHS200 {
		index = mmcproto.CmdSendTuningBlockHS200
	}

	ctrl.ResetTuning()
	b := &backoff.Backoff{Min: time.Millisecond, Max: 5 * time.Millisecond, Factor: 1.2}
	for attempt := 0; attempt < 40; attempt++ {
		if _, err := exec(ctrl, index, 0, mmcproto.Resp48, false); err != nil {
			return false
		}
		success, finished := ctrl.TuningFinished()
		if finished {
			return success
		}
		time.Sleep(b.Duration())
	}
	return false
}

// verifyTransferState implements spec.md §4.5 step 8's verification:
// CMD13 status poll until current_state == Transfer and
// ready_for_data == 1.
func verifyTransferState(ctrl *sdhci.Controller, state *State) bool {
	for attempt := 0; attempt < 20; attempt++ {
		cmd, err := exec(ctrl, mmcproto.CmdSendStatus, uint32(state.RCA)<<16, mmcproto.Resp48, false)
		if err != nil {
			return false
		}
		status := mmcproto.DeviceStatus(cmd.Resp[0])
		if status.CurrentState() == mmcproto.StateTransfer && status.ReadyForData() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
