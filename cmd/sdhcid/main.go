// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

// Command sdhcid is the user-space block device server that drives an
// SD/eMMC host controller and exposes the attached medium as a block
// device to multiple clients. Flag parsing follows the house
// convention (see cmd/platina/.../mmclog in the teacher): flags.New for
// boolean switches, parms.New for valued options.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/platinasystems/flags"
	"github.com/platinasystems/parms"

	"github.com/platinasystems/sdhcid/blockdev"
	"github.com/platinasystems/sdhcid/internal/dbg"
	"github.com/platinasystems/sdhcid/internal/platform"
	"github.com/platinasystems/sdhcid/internal/redpub"
	"github.com/platinasystems/sdhcid/mmio"
	"github.com/platinasystems/sdhcid/sdhci"
)

// Register window location. Board-specific, not CLI-configurable (the
// flag set is spec.md §6 verbatim); follows the teacher's convention of
// hardcoding such addresses as package constants (cmd/.../mmclog's
// LOGA/LOGB log paths) rather than threading them through flags.New.
const (
	memFile       = "/dev/mem"
	registerBase  = 0x30b40000 // SDHCI controller on the reference board
	registerBytes = 0x200
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "sdhcid:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flag, args := flags.New(args, "-readonly", "-dma-map-all", "-v", "-q")
	parm, _ := parms.New(args, "-client", "-device", "-ds-max", "-max-seg", "-disable-mode")

	log := dbg.New("sdhcid")
	switch {
	case flag.ByName["-v"]:
		log.Level = dbg.Trace2
	case flag.ByName["-q"]:
		log.Level = dbg.Warn
	default:
		log.Level = dbg.Info
	}

	cfg := blockdev.Config{
		ReadOnly:    flag.ByName["-readonly"],
		DMAMapAll:   flag.ByName["-dma-map-all"],
		DisableMode: parm.ByName["-disable-mode"],
	}
	if s := parm.ByName["-ds-max"]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("--ds-max: %w", err)
		}
		cfg.MaxSize = n
	}
	if s := parm.ByName["-max-seg"]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("--max-seg: %w", err)
		}
		cfg.MaxSeg = n
	}

	kind := sdhci.KindSDHCI
	regs, err := mmio.NewBlock(memFile, registerBase, registerBytes)
	if err != nil {
		log.Warnf("mmap %s@%#x failed (%v), running against an in-memory register block", memFile, registerBase, err)
		regs = mmio.NewFakeBlock(registerBytes)
	}
	ctrl := sdhci.NewController(kind, regs, 4)
	ctrl.Log.Level = log.Level

	mux := &cliMultiplexer{
		log:    log,
		client: parm.ByName["-client"],
		device: parm.ByName["-device"],
		done:   make(chan struct{}),
	}

	dev := blockdev.New(ctrl, mux, nil, cfg)

	if pub, err := redpub.New("sdhci0"); err == nil {
		dev.SetPublisher(pub)
	} else {
		log.Infof("stats publisher unavailable: %v", err)
	}

	dev.StartDeviceScan(cfg.DisableMode)

	<-mux.done
	return mux.err
}

// cliMultiplexer is a minimal standalone platform.Multiplexer used
// when this binary runs without an external dispatcher attached; it
// only logs readiness/failure and unblocks main. The real multiplexer
// (out of scope, spec.md §1) would instead register client capabilities
// and begin dispatching requests.
type cliMultiplexer struct {
	log    *dbg.Logger
	client string
	device string

	done chan struct{}
	err  error
}

func (m *cliMultiplexer) DeviceReady(hid string) {
	m.log.Infof("device ready: %s (client=%s device=%s)", hid, m.client, m.device)
	close(m.done)
}

func (m *cliMultiplexer) DeviceFailed(err error) {
	m.log.Warnf("device failed: %v", err)
	m.err = err
	close(m.done)
}

var _ platform.Multiplexer = (*cliMultiplexer)(nil)
