// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package mmcproto

import "testing"

func TestCSDCapacityStructure2(t *testing.T) {
	// Structure version 2.0 (SDHC/SDXC): bits 126:127 of CSD == 1.
	// Raw[0] holds bits 96:127; structure version sits at bits 126:127
	// of the whole CSD, i.e. bits 30:31 of Raw[0].
	var csd CSD
	csd.Raw[0] = 1 << 30
	// C_SIZE occupies bits 48:69: 22 bits split across Raw[2] bits
	// 16:31 (low 16 bits) and Raw[1] bits 0:5 (high 6 bits). A zero
	// C_SIZE should report exactly one 512KiB unit.
	capacity := csd.Capacity()
	if capacity != 512*1024 {
		t.Errorf("zero C_SIZE capacity = %d, want %d", capacity, 512*1024)
	}
}

func TestCSDCapacityStructure1(t *testing.T) {
	var csd CSD
	// structure version 1.0: bits 126:127 == 0 (default zero value).
	// READ_BL_LEN = 9 (512 byte blocks) at bits 80:83 -> Raw[1] bits
	// 16:19.
	csd.Raw[1] = 9 << 16
	capacity := csd.Capacity()
	if capacity == 0 {
		t.Error("structure-1.0 capacity computed as zero")
	}
}

func TestExtCSDSectorCount(t *testing.T) {
	e := &ExtCSD{}
	e.Raw[extCSDSectorCount] = 0x00
	e.Raw[extCSDSectorCount+1] = 0x00
	e.Raw[extCSDSectorCount+2] = 0x10
	e.Raw[extCSDSectorCount+3] = 0x00
	got := e.SectorCount()
	want := uint32(0x00100000)
	if got != want {
		t.Errorf("SectorCount() = %#x, want %#x", got, want)
	}
}

func TestExtCSDPartitionSizes(t *testing.T) {
	e := &ExtCSD{}
	e.Raw[extCSDBootSizeMult] = 4
	e.Raw[extCSDRPMBSizeMult] = 2
	if got, want := e.BootPartitionBytes(), uint64(4*128*1024); got != want {
		t.Errorf("BootPartitionBytes() = %d, want %d", got, want)
	}
	if got, want := e.RPMBPartitionBytes(), uint64(2*128*1024); got != want {
		t.Errorf("RPMBPartitionBytes() = %d, want %d", got, want)
	}
}

func TestExtCSDEnhancedStrobe(t *testing.T) {
	e := &ExtCSD{}
	if e.EnhancedStrobeSupported() {
		t.Error("EnhancedStrobeSupported() = true for zero register")
	}
	e.Raw[extCSDStrobeSupport] = 1
	if !e.EnhancedStrobeSupported() {
		t.Error("EnhancedStrobeSupported() = false after setting bit 0")
	}
}

func TestSupportsFiltersDisableMask(t *testing.T) {
	// Card advertises HS200 (bit 4) and HS52 (bit 1); operator disables
	// HS200 via the mask.
	supported := uint8(1<<1 | 1<<4)
	disable := uint8(1 << 4)

	if !Supports(supported, disable, TimingHS52) {
		t.Error("Supports() rejected an advertised, non-disabled mode")
	}
	if Supports(supported, disable, TimingHS200) {
		t.Error("Supports() allowed a disabled mode")
	}
	if Supports(supported, disable, TimingHS400) {
		t.Error("Supports() allowed an unadvertised mode")
	}
	if !Supports(supported, disable, TimingLegacy) {
		t.Error("Supports() rejected legacy, which has no DEVICE_TYPE bit")
	}
}

func TestProductSerialNumber(t *testing.T) {
	cid := CID{Raw: [4]uint32{0, 0x12345678, 0x9abc0000, 0}}
	psn := cid.ProductSerialNumber()
	a, b := uint32(0x12345678), uint32(0x9abc0000)
	want := (a << 24) | (b >> 8)
	if psn != want {
		t.Errorf("ProductSerialNumber() = %#x, want %#x", psn, want)
	}
}
