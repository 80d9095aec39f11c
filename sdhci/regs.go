// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

// Package sdhci implements the host-controller state machine: command
// submission, interrupt-driven progression through command and data
// phases, error recovery, response fetching, and clock/bus-width/
// voltage/tuning transitions. Grounded throughout on
// original_source/server/src/drv_sdhci.{h,cc}.
package sdhci

import "github.com/platinasystems/sdhcid/mmio"

// Register byte offsets, transcribed from original_source's Regs enum
// (drv_sdhci.h).
const (
	regDSAddr             = 0x00
	regBlkAtt             = 0x04
	regCmdArg             = 0x08
	regCmdXfrTyp          = 0x0c
	regCmdRsp0            = 0x10
	regCmdRsp1            = 0x14
	regCmdRsp2            = 0x18
	regCmdRsp3            = 0x1c
	regPresState          = 0x24
	regProtCtrl           = 0x28
	regSysCtrl            = 0x2c
	regIntStatus          = 0x30
	regIntStatusEn        = 0x34
	regIntSignalEn        = 0x38
	regAutocmd12ErrStatus = 0x3c
	regHostCtrlCap        = 0x40
	regWtmkLvl            = 0x44
	regMixCtrl            = 0x48
	regAdmaErrStatus      = 0x54
	regAdmaSysAddrLo      = 0x58
	regAdmaSysAddrHi      = 0x5c
	regDllCtrl            = 0x60
	regClkTuneCtrlStatus  = 0x68
	regStrobeDllCtrl      = 0x70
	regStrobeDllStatus    = 0x74
	regVendSpec           = 0xc0
	regMmcBoot            = 0xc4
	regVendSpec2          = 0xc8
	regTuningCtrl         = 0xcc
	regHostVersion        = 0xfc
)

// Present_state bits (drv_sdhci.h Pres_state).
const (
	presCmdInhibit  = 1 << 0
	presDatInhibit  = 1 << 1
	presDatActive   = 1 << 2
	presCardBusy    = 1 << 20
	presDlineActive = 1 << 24
)

// Interrupt status bits (drv_sdhci.h Int_status), common subset across
// variants.
const (
	intCmdComplete       = 1 << 0
	intTransferComplete  = 1 << 1
	intDMAInterrupt      = 1 << 3
	intBufferReadReady   = 1 << 5
	intCardInsertion     = 1 << 6
	intRetuneEvent       = 1 << 12
	intCmdTimeout        = 1 << 16
	intCmdCRCError       = 1 << 17
	intCmdEndBitError    = 1 << 18
	intCmdIndexError     = 1 << 19
	intDataTimeout       = 1 << 20
	intDataCRCError      = 1 << 21
	intDataEndBitError   = 1 << 22
	intCurrentLimitError = 1 << 23
	intAutoCmdError      = 1 << 24
	intDMAError          = 1 << 28
)

const intCmdErrorMask = intCmdCRCError | intCmdEndBitError | intCmdIndexError
const intDataErrorMask = intDataTimeout | intDataCRCError | intDataEndBitError | intDMAError

// Transfer-type (Cmd_xfr_typ) field shifts.
const (
	xfrtypCmdIndexShift = 24
	xfrtypCmdCRCCheck   = 1 << 19
	xfrtypCmdIndexCheck = 1 << 20
	xfrtypDataPresent   = 1 << 21
	xfrtypRespTypeShift = 16
	xfrtypMultiBlock    = 1 << 5
	xfrtypDataDirRead   = 1 << 4
	xfrtypAutoCmd12     = 1 << 2
	xfrtypAutoCmd23     = 1 << 3
	xfrtypBlockCntEn    = 1 << 1
	xfrtypDMAEnable     = 1 << 0
)

// Mix_ctrl (uSDHC) additionally carries DMA/AC12/AC23/block-count
// enables separate from the transfer-type word.
const (
	mixctrlDMAEnable   = 1 << 0
	mixctrlBlockCntEn  = 1 << 1
	mixctrlAutoCmd12   = 1 << 2
	mixctrlAutoCmd23   = 1 << 3
	mixctrlDDREnable   = 1 << 3 // aliased with AC23 on some silicon steps; unused together
	mixctrlDataDirRead = 1 << 4
	mixctrlMultiBlock  = 1 << 5
)

// Host control / protocol control bits.
const (
	hostctrlDMASelMask  = 0x3 << 3
	hostctrlDMASelSDMA  = 0x0 << 3
	hostctrlDMASelADMA2 = 0x2 << 3
	hostctrlBusWidth4   = 1 << 1
	hostctrlBusWidth8   = 1 << 5
	hostctrl18VEnable   = 1 << 3
)

// Clock control bits (Sys_ctrl / Vend_spec).
const (
	sysctrlClockIntEn     = 1 << 0
	sysctrlClockIntStable = 1 << 1
	sysctrlClockCardEn    = 1 << 2
)

func get(b *mmio.Block, off uint32) uint32    { return b.Load32(off) }
func set(b *mmio.Block, off uint32, v uint32) { b.Store32(off, v) }
