// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package mmcproto

// CID is the 128-bit Card Identification register, decoded from the
// four response words fetched for CMD2 after reassembly (the common
// fields shared by SD and eMMC CID layouts).
type CID struct {
	Raw [4]uint32
}

// ProductSerialNumber returns the PSN field, used by the multiplexer
// for --device PSN matching (spec.md §6 match_hid).
func (c CID) ProductSerialNumber() uint32 {
	return (c.Raw[1] << 24) | (c.Raw[2] >> 8)
}

// CSD is the 128-bit Card Specific Data register fetched by CMD9. Raw
// is in the word order the controller's response fetch stores: Raw[0]
// holds CSD bits 96:127 and Raw[3] holds bits 0:31.
type CSD struct {
	Raw [4]uint32
}

// csdStructureVersion returns bits 126:127 of the CSD, selecting
// between CSD version 1.0 (byte addressing, C_SIZE at bits 62:73) and
// version 2.0 (SDHC/SDXC, C_SIZE at bits 48:69).
func (c CSD) structureVersion() int {
	return int((c.Raw[0] >> 30) & 0x3)
}

// Capacity decodes the card's classic capacity in bytes. For SD cards
// with CSD structure 1.0, capacity comes from C_SIZE/C_SIZE_MULT/
// READ_BL_LEN; for structure 2.0 (SDHC/SDXC), from the simplified
// C_SIZE formula. eMMC treats this as an upper bound only — true
// capacity for eMMC lives in EXT_CSD (spec.md §4.5 step 5).
func (c CSD) Capacity() uint64 {
	if c.structureVersion() == 1 {
		cSize := (c.Raw[2] >> 16) | ((c.Raw[1] & 0x3f) << 16)
		cSize &= 0x3fffff
		return (uint64(cSize) + 1) * 512 * 1024
	}
	readBlLen := (c.Raw[1] >> 16) & 0xf
	cSizeMult := (c.Raw[2] >> 15) & 0x7
	cSize := ((c.Raw[1] & 0x3ff) << 2) | ((c.Raw[2] >> 30) & 0x3)
	blockLen := uint64(1) << readBlLen
	mult := uint64(1) << (cSizeMult + 2)
	return (uint64(cSize) + 1) * mult * blockLen
}

// ExtCSD is the 512-byte eMMC Extended CSD register, read via CMD8's
// data phase into a DMA-coherent buffer (spec.md §4.5 step 7). Only
// the fields this driver negotiates against are exposed.
type ExtCSD struct {
	Raw [512]byte
}

const (
	extCSDSectorCount   = 212 // 4 bytes, LE
	extCSDDeviceType    = 196
	extCSDBusWidth      = 183 // write-only mirror, not read back
	extCSDHSTiming      = 185
	extCSDStrobeSupport = 184
	extCSDSecSupport    = 222
	extCSDBootSizeMult  = 226
	extCSDRPMBSizeMult  = 168
)

// SectorCount is the eMMC's actual block-addressed capacity in 512
// byte sectors, superseding CSD's byte-addressing fields once the
// card reports sector addressing.
func (e *ExtCSD) SectorCount() uint32 {
	return uint32(e.Raw[extCSDSectorCount]) |
		uint32(e.Raw[extCSDSectorCount+1])<<8 |
		uint32(e.Raw[extCSDSectorCount+2])<<16 |
		uint32(e.Raw[extCSDSectorCount+3])<<24
}

// DeviceTypeSupported is the bitmask of HS modes the card advertises
// (bit0=HS26,1=HS52,2=HS52DDR1.8V,3=HS52DDR1.2V,4=HS200@1.8V,
// 5=HS200@1.2V,6=HS400@1.8V,7=HS400@1.2V).
func (e *ExtCSD) DeviceTypeSupported() uint8 {
	return e.Raw[extCSDDeviceType]
}

// EnhancedStrobeSupported reports whether HS400 Enhanced Strobe is
// available (spec.md §4.5 step 7: enh_strobe_support).
func (e *ExtCSD) EnhancedStrobeSupported() bool {
	return e.Raw[extCSDStrobeSupport]&0x1 != 0
}

// BootPartitionBytes is the size of each boot partition, computed from
// BOOT_SIZE_MULT in 128 KiB units.
func (e *ExtCSD) BootPartitionBytes() uint64 {
	return uint64(e.Raw[extCSDBootSizeMult]) * 128 * 1024
}

// RPMBPartitionBytes is the size of the RPMB partition, in 128 KiB
// units.
func (e *ExtCSD) RPMBPartitionBytes() uint64 {
	return uint64(e.Raw[extCSDRPMBSizeMult]) * 128 * 1024
}

// deviceTypeBit maps a Timing to its DEVICE_TYPE advertisement bit, or
// -1 if the timing has no EXT_CSD representation (legacy is implicit).
func deviceTypeBit(t Timing) int {
	switch t {
	case TimingHS26:
		return 0
	case TimingHS52:
		return 1
	case TimingDDR52:
		return 2 // 1.8V/3V variant; 1.2V variant (bit 3) not distinguished here
	case TimingHS200:
		return 4 // 1.8V variant; 1.2V variant is bit 5
	case TimingHS400:
		return 6 // 1.8V variant; 1.2V variant is bit 7
	default:
		return -1
	}
}

// Supports reports whether the card's advertised DEVICE_TYPE bitmask
// includes the given timing, filtered against the operator-configured
// disable mask (spec.md §4.5 step 8: "filtering against
// device_type_disable_mask").
func Supports(supported, disableMask uint8, t Timing) bool {
	bit := deviceTypeBit(t)
	if bit < 0 {
		return t == TimingLegacy
	}
	mask := uint8(1) << bit
	if t == TimingHS400 {
		mask |= 1 << 7
	}
	if t == TimingDDR52 {
		mask |= 1 << 3
	}
	if t == TimingHS200 {
		mask |= 1 << 5
	}
	if disableMask&mask != 0 {
		return false
	}
	return supported&mask != 0
}
