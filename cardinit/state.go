// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

// Package cardinit runs the card bring-up and mode-negotiation
// algorithm of spec.md §4.5: SD/eMMC detection, CID/RCA, CSD/EXT_CSD
// parsing, and progressive negotiation of the best supported
// (timing, bus width, voltage, frequency) tuple. Grounded primarily on
// spec.md §4.5 itself; the original device_impl.h/mmc.h that would
// have held the C++ implementation were not retrieved (see DESIGN.md).
package cardinit

import (
	"github.com/platinasystems/sdhcid/mmcproto"
)

// State is the device state from spec.md §3, produced by Bringup and
// then treated as immutable configuration once the controller joins
// the steady-state event loop (spec.md §5).
type State struct {
	Medium mmcproto.MediumType
	RCA    uint16

	NumSectors uint32
	AddrMult   uint32
	SectorSize int

	// eMMC only.
	DeviceTypeSupported   uint8
	DeviceTypeSelected    mmcproto.Timing
	DeviceTypeDisableMask uint8
	EnhancedStrobe        bool
	UserPartitionBytes    uint64
	BootPartitionBytes    uint64
	RPMBPartitionBytes    uint64

	// Negotiated timing, set for both SD and eMMC.
	Timing mmcproto.Timing

	HasCMD23 bool

	CID mmcproto.CID
	CSD mmcproto.CSD
	ExtCSD *mmcproto.ExtCSD

	BusWidth    int
	FrequencyHz uint32
	Voltage18   bool
}

// Capacity returns num_sectors * sector_size, the invariant spec.md §3
// requires to hold once bring-up completes.
func (s *State) Capacity() uint64 {
	return uint64(s.NumSectors) * uint64(s.SectorSize)
}
