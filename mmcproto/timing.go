// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package mmcproto

// MediumType distinguishes SD from eMMC once bring-up has identified
// the attached card.
type MediumType int

const (
	MediumUnknown MediumType = iota
	MediumSD
	MediumMMC
)

func (m MediumType) String() string {
	switch m {
	case MediumSD:
		return "sd"
	case MediumMMC:
		return "mmc"
	default:
		return "unknown"
	}
}

// Timing is a negotiated bus timing mode. Values are shared between the
// SD and eMMC preference lists. DisableMask bits do not reuse these
// values; they use the EXT_CSD DEVICE_TYPE bit positions.
type Timing int

const (
	TimingLegacy Timing = iota
	TimingHS26          // eMMC high-speed, 26 MHz
	TimingHS52          // eMMC high-speed, 52 MHz
	TimingDDR52         // eMMC DDR, 52 MHz
	TimingHS200
	TimingHS400
	TimingHS400ES
	TimingSDR12
	TimingSDR25
	TimingSDR50
	TimingDDR50
	TimingSDR104
)

func (t Timing) String() string {
	names := map[Timing]string{
		TimingLegacy:  "legacy",
		TimingHS26:    "hs26",
		TimingHS52:    "hs52",
		TimingDDR52:   "hs52_ddr",
		TimingHS200:   "hs200",
		TimingHS400:   "hs400",
		TimingHS400ES: "hs400es",
		TimingSDR12:   "sdr12",
		TimingSDR25:   "sdr25",
		TimingSDR50:   "sdr50",
		TimingDDR50:   "ddr50",
		TimingSDR104:  "sdr104",
	}
	if s, ok := names[t]; ok {
		return s
	}
	return "unknown"
}

// IsDDR reports whether the timing runs the data lines double-rate,
// per spec.md §4.4.4 step 2 (ddr-active flag drives divider and
// host-control programming).
func (t Timing) IsDDR() bool {
	switch t {
	case TimingHS400, TimingHS400ES, TimingDDR52, TimingDDR50:
		return true
	default:
		return false
	}
}

// DisableModeByName parses the --disable-mode CLI flag values.
func DisableModeByName(name string) (Timing, bool) {
	switch name {
	case "hs26":
		return TimingHS26, true
	case "hs52":
		return TimingHS52, true
	case "hs52_ddr":
		return TimingDDR52, true
	case "hs200":
		return TimingHS200, true
	case "hs400":
		return TimingHS400, true
	default:
		return 0, false
	}
}

// MMCPreference is the descending eMMC negotiation order from
// spec.md §4.5 step 8.
var MMCPreference = []Timing{
	TimingHS400ES, TimingHS400, TimingHS200, TimingDDR52, TimingHS52, TimingHS26,
}

// SDPreference is the descending SD negotiation order from spec.md
// §4.5 step 8.
var SDPreference = []Timing{
	TimingSDR104, TimingSDR50, TimingDDR50, TimingSDR25, TimingSDR12,
}

// RequiresTuning reports whether the timing mode needs CMD19/CMD21
// sampling-clock calibration before use (spec.md §4.5 step 10).
func (t Timing) RequiresTuning() bool {
	return t == TimingHS200 || t == TimingSDR104
}

// Requires18V reports whether entering this timing requires switching
// the bus signal voltage to 1.8V first (spec.md §4.5 step 9).
func (t Timing) Requires18V() bool {
	switch t {
	case TimingHS200, TimingHS400, TimingHS400ES, TimingSDR104, TimingSDR50, TimingDDR50:
		return true
	default:
		return false
	}
}
