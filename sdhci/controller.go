// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package sdhci

import (
	"fmt"
	"time"

	"github.com/platinasystems/sdhcid/dma"
	"github.com/platinasystems/sdhcid/internal/dbg"
	"github.com/platinasystems/sdhcid/mmcproto"
	"github.com/platinasystems/sdhcid/mmio"
	"github.com/platinasystems/sdhcid/sdcmd"
)

// ControllerKind tags the SDHCI family variant. Quirked operations
// take a ControllerKind and branch at a single decision point rather
// than dispatching through a per-variant interface (spec.md DESIGN
// NOTES §9).
type ControllerKind int

const (
	KindSDHCI ControllerKind = iota
	KindUSDHC
	KindIProc
)

func (k ControllerKind) String() string {
	switch k {
	case KindUSDHC:
		return "usdhc"
	case KindIProc:
		return "iproc"
	default:
		return "sdhci"
	}
}

// Capabilities are the per-variant quirk flags spec.md §9 asks
// implementers to resolve explicitly rather than hard-code.
type Capabilities struct {
	// AutoCMD12 resolves spec.md §9's open question: default false for
	// uSDHC (erratum ESDHC111), true otherwise.
	AutoCMD12 bool
	AutoCMD23 bool
	ADMA2     bool // false selects the SDMA single-region path (iProc)
	Addr64    bool
}

// DefaultCapabilities returns the capability set the original driver
// hard-codes per variant (Suppress_cc_ints/Dma_adma2/Auto_cmd12/
// Auto_cmd23 in drv_sdhci.h).
func DefaultCapabilities(kind ControllerKind) Capabilities {
	switch kind {
	case KindUSDHC:
		return Capabilities{AutoCMD12: false, AutoCMD23: true, ADMA2: true, Addr64: false}
	case KindIProc:
		return Capabilities{AutoCMD12: true, AutoCMD23: false, ADMA2: false, Addr64: false}
	default:
		return Capabilities{AutoCMD12: true, AutoCMD23: false, ADMA2: true, Addr64: false}
	}
}

// Controller is one SDHCI-family host controller: one register block,
// one command queue, one DMA descriptor table, and an optional bounce
// buffer. It corresponds to the original driver's Drv<Hw_drv>
// specialized by ControllerKind instead of by C++ template parameter.
type Controller struct {
	Kind  ControllerKind
	Caps  Capabilities
	Regs   *mmio.Block
	Queue  *sdcmd.Queue
	Table  *dma.Table
	Bounce *dma.BounceBuffer

	Log *dbg.Logger

	clockHz uint32
	timing  mmcproto.Timing

	// DDRActive mirrors the original driver's ddr-active flag used by
	// the clock divider and host-control programming (spec.md §4.4.4
	// step 2).
	DDRActive bool
}

// NewController wires up one controller instance over an already
// mapped register block.
func NewController(kind ControllerKind, regs *mmio.Block, queueDepth int) *Controller {
	caps := DefaultCapabilities(kind)
	return &Controller{
		Kind:  kind,
		Caps:  caps,
		Regs:  regs,
		Queue: sdcmd.NewQueue(queueDepth),
		Table: dma.NewTable(caps.Addr64),
		Log:   dbg.New(kind.String()),
	}
}

// poll busy-waits invoking cond until it returns true or the timeout
// elapses, sleeping briefly between checks. Grounded on the original
// driver's Util::poll busy-wait helper; spec.md §4.4.5 requires every
// hardware wait to carry an explicit timeout.
func poll(timeout time.Duration, cond func() bool) error {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("sdhci: %w: poll timed out after %s", mmcproto.ErrIO, timeout)
		}
		time.Sleep(10 * time.Microsecond)
	}
}

// waitAvailable implements spec.md §4.4.1 step 1: poll presence-state
// until CMD-inhibit is clear, additionally requiring DAT-inhibit clear
// when the command carries data or a busy-checked response, except for
// stop-transmission which may be issued against busy DAT.
func (c *Controller) waitAvailable(cmd *sdcmd.Cmd) error {
	needDat := cmd.Flags.HasData || cmd.ResponseKind == mmcproto.Resp48Busy
	if cmd.CmdIndex == mmcproto.CmdStopTransmission {
		needDat = false
	}
	return poll(10*time.Millisecond, func() bool {
		ps := get(c.Regs, regPresState)
		if ps&presCmdInhibit != 0 {
			return false
		}
		if needDat && ps&presDatInhibit != 0 {
			return false
		}
		return true
	})
}

// Submit programs and dispatches one command, implementing spec.md
// §4.4.1 steps 2-6. The queue's single-working-descriptor invariant is
// enforced here: Submit refuses a second command while one is already
// in progress.
func (c *Controller) Submit(cmd *sdcmd.Cmd) error {
	if w := c.Queue.Working(); w != nil && w != cmd {
		return fmt.Errorf("sdhci: %w: a command is already in progress", mmcproto.ErrBusy)
	}

	if err := c.waitAvailable(cmd); err != nil {
		cmd.Status = sdcmd.CmdTimeout
		cmd.Err = err
		return err
	}

	if cmd.BlockSize > 0xfff || cmd.BlockCnt > 0xffff {
		cmd.Status = sdcmd.Error
		cmd.Err = fmt.Errorf("sdhci: %w: block attributes out of range", mmcproto.ErrInvalid)
		return cmd.Err
	}
	set(c.Regs, regBlkAtt, uint32(cmd.BlockSize)|uint32(cmd.BlockCnt)<<16)

	if err := c.programDMA(cmd); err != nil {
		cmd.Status = sdcmd.Error
		cmd.Err = err
		return err
	}

	c.clearAndEnableInterrupts(cmd)

	set(c.Regs, regCmdArg, cmd.Arg)
	set(c.Regs, regCmdXfrTyp, c.transferType(cmd))

	cmd.Status = sdcmd.ProgressCmd
	return nil
}

// programDMA implements spec.md §4.4.1 step 4.
func (c *Controller) programDMA(cmd *sdcmd.Cmd) error {
	if !cmd.Flags.HasData {
		return nil
	}
	if c.Caps.ADMA2 {
		if c.Bounce != nil {
			c.Bounce.Reset()
		}
		if err := c.Table.BuildADMA2(cmd, c.Bounce, virtBytes); err != nil {
			return err
		}
		addr := tableAddr(c.Table)
		set(c.Regs, regAdmaSysAddrLo, uint32(addr))
		if c.Caps.Addr64 {
			set(c.Regs, regAdmaSysAddrHi, uint32(addr>>32))
		}
	} else {
		if c.Bounce != nil {
			c.Bounce.Reset()
		}
		region, _, err := dma.BuildSDMA(cmd.Segments, c.Bounce)
		if err != nil {
			return err
		}
		cmd.DataPhys = region.Addr
		set(c.Regs, regDSAddr, uint32(region.Addr))
	}
	if cmd.Flags.AutoCMD23 {
		// The SDHCI "Argument 2" register used for auto-CMD23's block
		// count shares its address with the SDMA system address
		// register (spec.md §4.4.1 step 4: "write the block count
		// into the secondary argument register beforehand").
		set(c.Regs, regDSAddr, uint32(cmd.BlockCnt))
	}
	return nil
}

// tableAddr is overridden in tests; production code derives it from
// the platform's DMA mapping of c.Table's backing memory, installed
// through SetTableAddrFunc. NewController does not install it.
var tableAddr = func(t *dma.Table) uint64 { return 0 }

// SetTableAddrFunc lets the platform layer install the function that
// resolves a Table's physical address, once the backing page has been
// DMA-mapped.
func SetTableAddrFunc(f func(*dma.Table) uint64) { tableAddr = f }

// transferType implements spec.md §4.4.1 step 2.
func (c *Controller) transferType(cmd *sdcmd.Cmd) uint32 {
	v := uint32(cmd.CmdIndex) << xfrtypCmdIndexShift
	if cmd.CRCCheck {
		v |= xfrtypCmdCRCCheck
	}
	if cmd.OpcodeCheck {
		v |= xfrtypCmdIndexCheck
	}
	v |= uint32(responseTypeField(cmd.ResponseKind)) << xfrtypRespTypeShift
	if cmd.Flags.HasData {
		v |= xfrtypDataPresent | xfrtypBlockCntEn | xfrtypDMAEnable
		if cmd.BlockCnt > 1 {
			v |= xfrtypMultiBlock
		}
		if cmd.Flags.InoutRead {
			v |= xfrtypDataDirRead
		}
		if cmd.Flags.AutoCMD23 && c.Caps.AutoCMD23 {
			v |= xfrtypAutoCmd23
		} else if cmd.Flags.InoutCmd12Needed && c.Caps.AutoCMD12 {
			v |= xfrtypAutoCmd12
		}
	}
	return v
}

func responseTypeField(k mmcproto.ResponseKind) uint32 {
	switch k {
	case mmcproto.RespNone:
		return 0
	case mmcproto.Resp136:
		return 1
	case mmcproto.Resp48:
		return 2
	case mmcproto.Resp48Busy:
		return 3
	default:
		return 0
	}
}

// clearAndEnableInterrupts implements spec.md §4.4.1 step 5.
func (c *Controller) clearAndEnableInterrupts(cmd *sdcmd.Cmd) {
	set(c.Regs, regIntStatus, 0xffffffff)

	mask := uint32(intCmdTimeout | intCmdErrorMask | intRetuneEvent)
	if cmd.Flags.HasData {
		mask |= intDataTimeout | intDataErrorMask | intTransferComplete | intDMAInterrupt
	} else {
		mask |= intCmdComplete
	}
	if (cmd.Flags.InoutCmd12Needed && c.Caps.AutoCMD12) || (cmd.Flags.AutoCMD23 && c.Caps.AutoCMD23) {
		mask |= intAutoCmdError
	}
	if isTuningCommand(cmd.CmdIndex) {
		mask |= intBufferReadReady | intCmdComplete
	}
	set(c.Regs, regIntStatusEn, mask)
	set(c.Regs, regIntSignalEn, mask)
}

func isTuningCommand(idx int) bool {
	return idx == mmcproto.CmdSendTuningBlock || idx == mmcproto.CmdSendTuningBlockHS200
}
