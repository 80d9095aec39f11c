// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package mmcproto

// Command indices referenced by name in the original driver's command
// table (original_source/server/src/cmd.cc: Cmd::cmd_to_str).
const (
	CmdGoIdleState          = 0  // CMD0
	CmdSendOpCond           = 1  // CMD1 (eMMC)
	CmdAllSendCID           = 2  // CMD2
	CmdSendRelativeAddr     = 3  // CMD3
	CmdSwitch               = 6  // CMD6 (MMC_SWITCH / SD_SWITCH_FUNC)
	CmdSelectCard           = 7  // CMD7
	CmdSendIfCond           = 8  // CMD8 (SD_SEND_IF_COND / MMC_SEND_EXT_CSD)
	CmdSendCSD              = 9  // CMD9
	CmdStopTransmission     = 12 // CMD12
	CmdSendStatus           = 13 // CMD13
	CmdReadSingleBlock      = 17 // CMD17
	CmdReadMultipleBlock    = 18 // CMD18
	CmdSendTuningBlock      = 19 // CMD19 (SD)
	CmdSendTuningBlockHS200 = 21 // CMD21 (eMMC)
	CmdSetBlockCount        = 23 // CMD23
	CmdWriteBlock           = 24 // CMD24
	CmdWriteMultipleBlock   = 25 // CMD25
	CmdAppCmd               = 55 // CMD55
	AcmdSDSendOpCond        = 41 // ACMD41 (SD), issued after CMD55
)

var cmdNames = map[int]string{
	CmdGoIdleState:          "GO_IDLE_STATE",
	CmdSendOpCond:           "SEND_OP_COND",
	CmdAllSendCID:           "ALL_SEND_CID",
	CmdSendRelativeAddr:     "SEND_RELATIVE_ADDR",
	CmdSwitch:               "SWITCH",
	CmdSelectCard:           "SELECT_CARD",
	CmdSendIfCond:           "SEND_IF_COND",
	CmdSendCSD:              "SEND_CSD",
	CmdStopTransmission:     "STOP_TRANSMISSION",
	CmdSendStatus:           "SEND_STATUS",
	CmdReadSingleBlock:      "READ_SINGLE_BLOCK",
	CmdReadMultipleBlock:    "READ_MULTIPLE_BLOCK",
	CmdSendTuningBlock:      "SEND_TUNING_BLOCK",
	CmdSetBlockCount:        "SET_BLOCK_COUNT",
	CmdWriteBlock:           "WRITE_BLOCK",
	CmdWriteMultipleBlock:   "WRITE_MULTIPLE_BLOCK",
	CmdSendTuningBlockHS200: "SEND_TUNING_BLOCK_HS200",
	CmdAppCmd:               "APP_CMD",
}

// CmdName returns the MMC mnemonic for a command index, or "CMD<n>" if
// unknown. Grounded on Cmd::cmd_to_str in the original driver.
func CmdName(index int) string {
	if n, ok := cmdNames[index]; ok {
		return n
	}
	return "CMD" + itoa(index)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ResponseKind classifies the expected response length/shape, encoded
// in the command word's response-type field.
type ResponseKind int

const (
	RespNone ResponseKind = iota
	Resp48
	Resp48Busy
	Resp136
)

// ACMD41Arg builds the SD_SEND_OP_COND argument: the host-advertised
// OCR voltage window, optionally requesting sector addressing (HCS,
// bit 30) and 1.8V switching (S18R, bit 24 per SD spec, set when
// switch18v is true). Bit 28 is never set by this function.
func ACMD41Arg(ocr uint32, sectorAddressing, switch18v bool) uint32 {
	arg := ocr
	if sectorAddressing {
		arg |= 1 << 30
	}
	if switch18v {
		arg |= 1 << 24
	}
	return arg
}

// CMD1Arg builds the eMMC SEND_OP_COND argument: the host OCR with the
// sector-addressing request bit set when requesting block (not byte)
// addressing for the forthcoming card.
func CMD1Arg(ocr uint32, sectorMode bool) uint32 {
	arg := ocr
	if sectorMode {
		arg |= 1 << 30
	}
	return arg
}

// VoltagePattern is the check pattern sent in SEND_IF_COND (CMD8),
// along with the 2.7-3.6V supply-voltage indicator nibble.
const VoltagePattern = 0x1AA

// DeviceStatus decodes the 32-bit R1/R1b response word (Device_status
// in the original driver).
type DeviceStatus uint32

// CurrentState extracts bits 9:12, the card's current state.
func (s DeviceStatus) CurrentState() CardState {
	return CardState((s >> 9) & 0xf)
}

// SwitchError reports bit 7, set when a SWITCH command referenced an
// unsupported mode.
func (s DeviceStatus) SwitchError() bool { return s&(1<<7) != 0 }

// ReadyForData reports bit 8.
func (s DeviceStatus) ReadyForData() bool { return s&(1<<8) != 0 }

// AppCmd reports bit 5, set when the card expects the next command to
// be interpreted as an application-specific command.
func (s DeviceStatus) AppCmd() bool { return s&(1<<5) != 0 }

type CardState int

const (
	StateIdle CardState = iota
	StateReady
	StateIdent
	StateStandby
	StateTransfer
	StateSendData
	StateReceiveData
	StateProgram
	StateDisconnect
)

func (s CardState) String() string {
	names := [...]string{"idle", "ready", "ident", "stby", "tran", "data", "rcv", "prg", "dis"}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}
