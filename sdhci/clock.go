// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package sdhci

import (
	"fmt"
	"time"

	"github.com/platinasystems/sdhcid/mmcproto"
)

// SetClockAndTiming implements spec.md §4.4.4: disable the SD clock,
// update the DDR-active flag, program variant-specific UHS mode select
// on iProc, compute a divider reaching the highest achievable frequency
// not exceeding freq, run HS400 strobe-DLL calibration on uSDHC when
// entering HS400, and re-enable the clock.
func (c *Controller) SetClockAndTiming(freqHz uint32, timing mmcproto.Timing, enhancedStrobe bool) error {
	if err := c.clockDisable(); err != nil {
		return err
	}

	c.DDRActive = timing.IsDDR()

	if c.Kind == KindIProc {
		c.setIProcUHSMode(timing)
	}

	div := c.computeDivider(freqHz)
	c.programDivider(div)

	if c.Kind == KindUSDHC {
		c.setUSDHCModeBits(timing, enhancedStrobe)
		if timing == mmcproto.TimingHS400 || timing == mmcproto.TimingHS400ES {
			if err := c.calibrateStrobeDLL(); err != nil {
				return err
			}
		}
	}

	if err := c.clockEnable(); err != nil {
		return err
	}
	c.clockHz = freqHz
	c.timing = timing
	if c.Kind == KindIProc {
		c.Regs.WriteDelayFromClockHz(freqHz)
	}
	return nil
}

func (c *Controller) clockDisable() error {
	v := get(c.Regs, regSysCtrl)
	v &^= sysctrlClockCardEn
	set(c.Regs, regSysCtrl, v)
	return poll(10*time.Millisecond, func() bool {
		return get(c.Regs, regPresState)&presDlineActive == 0
	})
}

func (c *Controller) clockEnable() error {
	v := get(c.Regs, regSysCtrl)
	v |= sysctrlClockIntEn
	set(c.Regs, regSysCtrl, v)
	if err := poll(150*time.Millisecond, func() bool {
		return get(c.Regs, regSysCtrl)&sysctrlClockIntStable != 0
	}); err != nil {
		return err
	}
	v = get(c.Regs, regSysCtrl)
	set(c.Regs, regSysCtrl, v|sysctrlClockCardEn)
	return nil
}

// setIProcUHSMode programs the host-control-2 high-speed bit and UHS
// mode selector per timing, the iProc-specific step in spec.md §4.4.4
// step 3.
func (c *Controller) setIProcUHSMode(timing mmcproto.Timing) {
	const hostctrl2UHSModeMask = 0x7
	var mode uint32
	switch timing {
	case mmcproto.TimingSDR12, mmcproto.TimingHS26, mmcproto.TimingLegacy:
		mode = 0
	case mmcproto.TimingSDR25, mmcproto.TimingHS52:
		mode = 1
	case mmcproto.TimingSDR50:
		mode = 2
	case mmcproto.TimingSDR104, mmcproto.TimingHS200:
		mode = 3
	case mmcproto.TimingDDR50, mmcproto.TimingDDR52:
		mode = 4
	case mmcproto.TimingHS400, mmcproto.TimingHS400ES:
		mode = 5
	}
	v := get(c.Regs, regProtCtrl)
	v = (v &^ hostctrl2UHSModeMask) | mode
	set(c.Regs, regProtCtrl, v)
}

// setUSDHCModeBits programs (ddr_en, hs400_mode, enhanced_hs400) in
// Mix_ctrl, spec.md §4.4.4 step 5.
func (c *Controller) setUSDHCModeBits(timing mmcproto.Timing, enhancedStrobe bool) {
	const mixctrlDDREn = 1 << 3
	const mixctrlHS400Mode = 1 << 26
	const mixctrlEnhancedHS400 = 1 << 27

	v := get(c.Regs, regMixCtrl)
	v &^= mixctrlDDREn | mixctrlHS400Mode | mixctrlEnhancedHS400
	if c.DDRActive {
		v |= mixctrlDDREn
	}
	if timing == mmcproto.TimingHS400 || timing == mmcproto.TimingHS400ES {
		v |= mixctrlHS400Mode
		if enhancedStrobe {
			v |= mixctrlEnhancedHS400
		}
	}
	set(c.Regs, regMixCtrl, v)
}

// calibrateStrobeDLL implements spec.md §4.4.4 step 5's HS400 strobe
// sequencing: reset, enable with preset update interval/target, poll
// until both slave and reference lock, or fail.
func (c *Controller) calibrateStrobeDLL() error {
	const dllReset = 1 << 0
	const dllEnable = 1 << 1
	const dllSlaveLock = 1 << 0
	const dllRefLock = 1 << 1

	set(c.Regs, regStrobeDllCtrl, dllReset)
	time.Sleep(1 * time.Millisecond)
	set(c.Regs, regStrobeDllCtrl, dllEnable)

	return poll(10*time.Millisecond, func() bool {
		v := get(c.Regs, regStrobeDllStatus)
		return v&dllSlaveLock != 0 && v&dllRefLock != 0
	})
}

// computeDivider implements spec.md §4.4.4 step 4. For uSDHC the
// divider is a (pre_div, dvs) pair spanning 2^8 x 16; for iProc a
// 10-bit divider. DDR doubles the effective divisor requirement.
type divider struct {
	preDiv uint32
	dvs    uint32 // uSDHC only
	raw10  uint32 // iProc only
}

const baseClockHz = 200000000 // platform base clock; configurable per board in production

func (c *Controller) computeDivider(targetHz uint32) divider {
	want := targetHz
	if c.DDRActive {
		want /= 2
	}
	if want == 0 {
		want = 1
	}
	switch c.Kind {
	case KindUSDHC:
		var bestPre, bestDvs uint32 = 1, 0
		bestHz := uint32(0)
		for pre := uint32(1); pre <= 256; pre *= 2 {
			for dvs := uint32(1); dvs <= 16; dvs++ {
				hz := baseClockHz / (pre * dvs)
				if hz <= want && hz > bestHz {
					bestHz, bestPre, bestDvs = hz, pre, dvs
				}
			}
		}
		return divider{preDiv: bestPre, dvs: bestDvs - 1}
	default: // iProc 10-bit divider
		div := baseClockHz / want
		if div == 0 {
			div = 1
		}
		if div > 1023 {
			div = 1023
		}
		return divider{raw10: div}
	}
}

func (c *Controller) programDivider(d divider) {
	const sysctrlSDCLKFSShift = 8
	const sysctrlDVSShift = 4
	v := get(c.Regs, regSysCtrl)
	v &^= 0xffff << sysctrlDVSShift
	switch c.Kind {
	case KindUSDHC:
		v |= (d.preDiv >> 1) << sysctrlSDCLKFSShift
		v |= d.dvs << sysctrlDVSShift
	default:
		v |= (d.raw10 & 0xff) << sysctrlSDCLKFSShift
		v |= (d.raw10 >> 8) << 6
	}
	set(c.Regs, regSysCtrl, v)
}

// SetBusWidth programs protocol-control (uSDHC) or host-control
// (SDHCI) with one of 1/4/8 bits, spec.md §4.4.4.
func (c *Controller) SetBusWidth(bits int) error {
	v := get(c.Regs, regProtCtrl)
	v &^= hostctrlBusWidth4 | hostctrlBusWidth8
	switch bits {
	case 1:
	case 4:
		v |= hostctrlBusWidth4
	case 8:
		v |= hostctrlBusWidth8
	default:
		return fmt.Errorf("sdhci: %w: unsupported bus width %d", mmcproto.ErrInvalid, bits)
	}
	set(c.Regs, regProtCtrl, v)
	return nil
}

// SetVoltage switches the bus signal voltage. uSDHC uses a
// vendor-specific select register; iProc uses the host-control-2
// 1.8V-enable bit (spec.md §4.4.4).
func (c *Controller) SetVoltage(v18 bool) error {
	switch c.Kind {
	case KindUSDHC:
		const vendSpecVSelect = 1 << 1
		v := get(c.Regs, regVendSpec)
		if v18 {
			v |= vendSpecVSelect
		} else {
			v &^= vendSpecVSelect
		}
		set(c.Regs, regVendSpec, v)
	default:
		v := get(c.Regs, regProtCtrl)
		if v18 {
			v |= hostctrl18VEnable
		} else {
			v &^= hostctrl18VEnable
		}
		set(c.Regs, regProtCtrl, v)
	}
	return poll(5*time.Millisecond, func() bool { return true })
}

// TuningFinished reports whether the controller's clock-tune status
// indicates a completed tuning cycle (used by the bring-up worker to
// poll CMD19/CMD21 progress, spec.md §4.5 step 10).
func (c *Controller) TuningFinished() (success bool, finished bool) {
	still, locked := c.tuningStatus()
	if still {
		return false, false
	}
	return locked, true
}

// ResetTuning sets the execute-tuning bit in the clock-tune register,
// putting the controller into tuning mode ahead of a fresh CMD19/CMD21
// sequence.
func (c *Controller) ResetTuning() {
	const executeTuning = 1 << 0
	v := get(c.Regs, regClkTuneCtrlStatus)
	set(c.Regs, regClkTuneCtrlStatus, v|executeTuning)
}

// CardBusy reports the Present_state card-busy bit, used after
// SWITCH/program-state transitions.
func (c *Controller) CardBusy() bool {
	return get(c.Regs, regPresState)&presCardBusy != 0
}

// SupportedVoltage reports the Host_ctrl_cap voltage-support bits as a
// bitmask the bring-up worker intersects with the card's OCR.
func (c *Controller) SupportedVoltage() uint32 {
	const capVoltageMask = 0x7 << 24
	return (get(c.Regs, regHostCtrlCap) & capVoltageMask) >> 24
}

// SDIOReset issues the default no-op soft reset the base driver
// provides; iProc has no SDIO-specific override in this core (SDIO
// beyond soft reset is a spec.md §1 non-goal).
func (c *Controller) SDIOReset() {}
