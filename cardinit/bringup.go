// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package cardinit

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/satori/go.uuid"

	"github.com/platinasystems/sdhcid/internal/dbg"
	"github.com/platinasystems/sdhcid/mmcproto"
	"github.com/platinasystems/sdhcid/sdhci"
)

// Config carries the operator overrides threaded through negotiation:
// the DEVICE_TYPE disable mask derived from the --disable-mode CLI
// flag (spec.md §6), and the logger.
type Config struct {
	DisableMask uint8
	Log         *dbg.Logger
}

// hostOCR is the host-advertised OCR voltage window used in both
// ACMD41 and CMD1 arguments (spec.md §6 bit-exact semantics).
const hostOCR = 0x00ff8000 // 2.7V-3.6V window

// Bringup runs spec.md §4.5's ten-step algorithm to completion,
// returning the negotiated State or mmcproto.ErrNegotiation if no
// viable operating point could be settled on. blockdev runs it on the
// goroutine StartDeviceScan starts, and that same goroutine enters
// the event loop once Bringup returns successfully.
func Bringup(ctrl *sdhci.Controller, cfg Config) (*State, error) {
	log := cfg.Log
	if log == nil {
		log = dbg.New("cardinit")
	}

	// Step 1: reset card.
	if _, err := exec(ctrl, mmcproto.CmdGoIdleState, 0, mmcproto.RespNone, false); err != nil {
		return nil, fmt.Errorf("cardinit: reset: %w", err)
	}

	state := &State{SectorSize: 512}

	// Step 2: probe as SD.
	isSD, err := probeSD(ctrl, state)
	if err != nil {
		return nil, err
	}
	if isSD {
		if err := bringUpSD(ctrl, state, log); err != nil {
			return nil, err
		}
	} else {
		// Step 3: else probe as eMMC.
		if err := bringUpMMC(ctrl, state, log); err != nil {
			return nil, err
		}
	}

	// Step 6: select; card enters transfer state.
	if _, err := exec(ctrl, mmcproto.CmdSelectCard, uint32(state.RCA)<<16, mmcproto.Resp48Busy, false); err != nil {
		return nil, fmt.Errorf("cardinit: select_card: %w", err)
	}

	if state.Medium == mmcproto.MediumMMC {
		if err := readExtCSD(ctrl, state); err != nil {
			return nil, err
		}
	}

	// Step 8: progressive mode upgrade.
	if err := negotiateMode(ctrl, state, cfg, log); err != nil {
		return nil, err
	}

	return state, nil
}

// probeSD implements spec.md §4.5 step 2: CMD8 with voltage pattern
// 0x1AA; absence of a response is itself informative (pre-v2 SD or
// eMMC) and is a branch condition, not a hard failure.
func probeSD(ctrl *sdhci.Controller, state *State) (isSD bool, err error) {
	arg := uint32(mmcproto.VoltagePattern)
	cmd, err := exec(ctrl, mmcproto.CmdSendIfCond, arg, mmcproto.Resp48, false)
	if err != nil {
		// Step 3 fallback path: no CMD8 response means either a
		// pre-v2 SD card or an eMMC device; the error is dropped
		// and the caller goes on to probe as eMMC.
		return false, nil
	}
	if cmd.Resp[0]&0xff != mmcproto.VoltagePattern {
		return false, nil
	}
	return true, nil
}

// bringUpSD implements spec.md §4.5 step 2's ACMD41 loop.
func bringUpSD(ctrl *sdhci.Controller, state *State, log *dbg.Logger) error {
	state.Medium = mmcproto.MediumSD
	state.AddrMult = 512
	state.HasCMD23 = true

	b := &backoff.Backoff{Min: time.Millisecond, Max: 20 * time.Millisecond, Factor: 1.5}
	sectorAddressing := true
	ready := false
	for attempt := 0; attempt < 200; attempt++ {
		if err := appCmd(ctrl, 0); err != nil {
			return fmt.Errorf("cardinit: app_cmd: %w", err)
		}
		cmd, err := exec(ctrl, mmcproto.AcmdSDSendOpCond,
			mmcproto.ACMD41Arg(hostOCR, sectorAddressing, false),
			mmcproto.Resp48, true)
		if err != nil {
			return fmt.Errorf("cardinit: acmd41: %w", err)
		}
		ocr := cmd.Resp[0]
		if ocr&(1<<31) != 0 { // bit 31 set: power-up done, card ready
			if ocr&(1<<30) != 0 {
				state.AddrMult = 1 // block addressing (SDHC/SDXC)
			}
			ready = true
			break
		}
		sleepBackoff(b)
	}
	if !ready {
		return fmt.Errorf("cardinit: %w: ACMD41 never reported ready", mmcproto.ErrNegotiation)
	}

	return finishIdentify(ctrl, state, log)
}

// bringUpMMC implements spec.md §4.5 step 3's CMD1 loop.
func bringUpMMC(ctrl *sdhci.Controller, state *State, log *dbg.Logger) error {
	state.Medium = mmcproto.MediumMMC
	state.AddrMult = 1

	b := &backoff.Backoff{Min: time.Millisecond, Max: 20 * time.Millisecond, Factor: 1.5}
	ready := false
	for attempt := 0; attempt < 200; attempt++ {
		cmd, err := exec(ctrl, mmcproto.CmdSendOpCond, mmcproto.CMD1Arg(hostOCR, true), mmcproto.Resp48, false)
		if err != nil {
			return fmt.Errorf("cardinit: cmd1: %w", err)
		}
		if cmd.Resp[0]&(1<<31) != 0 {
			ready = true
			break
		}
		sleepBackoff(b)
	}
	if !ready {
		return fmt.Errorf("cardinit: %w: CMD1 never reported ready", mmcproto.ErrNegotiation)
	}

	// For eMMC the host assigns the RCA; a fixed non-zero value is
	// used here, matching the original driver's own choice of a
	// constant host-assigned RCA.
	state.RCA = 1

	// Step 4: identify. CMD2 then host-assigned CMD3 for eMMC.
	if _, err := exec(ctrl, mmcproto.CmdAllSendCID, 0, mmcproto.Resp136, false); err != nil {
		return fmt.Errorf("cardinit: all_send_cid: %w", err)
	}
	if _, err := exec(ctrl, mmcproto.CmdSendRelativeAddr, uint32(state.RCA)<<16, mmcproto.Resp48, false); err != nil {
		return fmt.Errorf("cardinit: send_relative_addr: %w", err)
	}

	return readCSD(ctrl, state, log)
}

// finishIdentify implements spec.md §4.5 step 4 for SD (card-assigned
// RCA) and step 5.
func finishIdentify(ctrl *sdhci.Controller, state *State, log *dbg.Logger) error {
	if _, err := exec(ctrl, mmcproto.CmdAllSendCID, 0, mmcproto.Resp136, false); err != nil {
		return fmt.Errorf("cardinit: all_send_cid: %w", err)
	}
	cmd, err := exec(ctrl, mmcproto.CmdSendRelativeAddr, 0, mmcproto.Resp48, false)
	if err != nil {
		return fmt.Errorf("cardinit: send_relative_addr: %w", err)
	}
	state.RCA = uint16(cmd.Resp[0] >> 16)

	return readCSD(ctrl, state, log)
}

// readCSD implements spec.md §4.5 step 5.
func readCSD(ctrl *sdhci.Controller, state *State, log *dbg.Logger) error {
	cmd, err := exec(ctrl, mmcproto.CmdSendCSD, uint32(state.RCA)<<16, mmcproto.Resp136, false)
	if err != nil {
		return fmt.Errorf("cardinit: send_csd: %w", err)
	}
	state.CSD.Raw = cmd.Resp
	if state.Medium == mmcproto.MediumSD {
		state.NumSectors = uint32(state.CSD.Capacity() / 512)
	}
	log.Tracef("csd capacity upper bound: %d bytes", state.CSD.Capacity())
	return nil
}

func sleepBackoff(b *backoff.Backoff) {
	time.Sleep(b.Duration())
}

// DeviceUUID derives a stable device identity string from the CID, the
// way the original driver exposes the PSN for match_hid. satori/go.uuid
// is used here (see DESIGN.md) to format it as the stable identity
// string the multiplexer compares against via --device UUID.
func (s *State) DeviceUUID() string {
	var b [16]byte
	binary.BigEndian.PutUint32(b[0:4], s.CID.Raw[0])
	binary.BigEndian.PutUint32(b[4:8], s.CID.Raw[1])
	binary.BigEndian.PutUint32(b[8:12], s.CID.Raw[2])
	binary.BigEndian.PutUint32(b[12:16], s.CID.Raw[3])
	id := uuid.NewV5(uuid.NamespaceOID, string(b[:]))
	return id.String()
}

// MatchHID implements spec.md §6's match_hid against the PSN; GUID
// partition matching remains the multiplexer's responsibility.
func (s *State) MatchHID(hid string) bool {
	psn := fmt.Sprintf("%08x", s.CID.ProductSerialNumber())
	return hid == psn || hid == s.DeviceUUID()
}
