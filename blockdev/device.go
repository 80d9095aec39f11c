// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

// Package blockdev implements the upstream request pipeline: it
// translates a (start_sector, scatter_list, direction) request into one
// or more commands, manages auto-CMD23/12, drives the sdhci state
// machine, and invokes the client callback with bytes-transferred and
// status. Grounded on original_source/server/src/device.h's
// Device<Driver> and spec.md §4.6/§5's event-loop shape.
package blockdev

import (
	"fmt"
	"time"

	"github.com/platinasystems/sdhcid/cardinit"
	"github.com/platinasystems/sdhcid/internal/dbg"
	"github.com/platinasystems/sdhcid/internal/platform"
	"github.com/platinasystems/sdhcid/internal/redpub"
	"github.com/platinasystems/sdhcid/mmcproto"
	"github.com/platinasystems/sdhcid/sdcmd"
	"github.com/platinasystems/sdhcid/sdhci"
)

const sectorSize = 512

// Direction selects read or write for InoutData.
type Direction int

const (
	DirectionRead Direction = iota
	DirectionWrite
)

// request is one queued client I/O; the event loop drains these one
// at a time, matching spec.md §5's "at most one command descriptor is
// ever in Progress_*" rule.
type request struct {
	startSector uint64
	segments    []sdcmd.Segment
	direction   Direction
	callback    func(err error, bytesTransferred int)
}

// Device is the upstream block-device object spec.md §6 describes.
type Device struct {
	ctrl *sdhci.Controller
	mux  platform.Multiplexer
	irq  platform.IRQReceiver
	pub  *redpub.Publisher
	log  *dbg.Logger

	state     *cardinit.State
	maxSize   int
	maxSeg    int
	readOnly  bool
	dmaMapAll bool

	requests chan request
	stop     chan struct{}

	dmaMapCache *dmaMapCache
}

// Config bundles the construction-time options (mirrors the CLI
// surface of spec.md §6).
type Config struct {
	MaxSize     int
	MaxSeg      int
	ReadOnly    bool
	DMAMapAll   bool
	DisableMode string
}

// New creates a Device bound to one controller. Bring-up has not yet
// run; call StartDeviceScan to kick it off.
func New(ctrl *sdhci.Controller, mux platform.Multiplexer, irq platform.IRQReceiver, cfg Config) *Device {
	d := &Device{
		ctrl:        ctrl,
		mux:         mux,
		irq:         irq,
		log:         dbg.New("blockdev"),
		maxSize:     cfg.MaxSize,
		maxSeg:      cfg.MaxSeg,
		readOnly:    cfg.ReadOnly,
		dmaMapAll:   cfg.DMAMapAll,
		requests:    make(chan request, 16),
		stop:        make(chan struct{}),
		dmaMapCache: newDMAMapCache(),
	}
	if d.maxSize == 0 {
		d.maxSize = 4 << 20 // spec.md §3 Max_size default
	}
	if d.maxSeg == 0 {
		d.maxSeg = 64
	}
	return d
}

// Capacity, SectorSize, MaxSize, MaxSegments implement spec.md §6's
// upstream interface.
func (d *Device) Capacity() uint64 { return d.state.Capacity() }
func (d *Device) SectorSize() int  { return sectorSize }
func (d *Device) MaxSize() int     { return d.maxSize }
func (d *Device) MaxSegments() int { return d.maxSeg }
func (d *Device) IsReadOnly() bool { return d.readOnly }

// MatchHID implements spec.md §6: matches against the PSN; GUID
// partition matching is the multiplexer's responsibility.
func (d *Device) MatchHID(hid string) bool {
	if d.state == nil {
		return false
	}
	return d.state.MatchHID(hid)
}

// StartDeviceScan triggers the async bring-up worker (spec.md §5's
// "separate short-lived worker"), then joins the event loop once
// bring-up completes. The platform.Multiplexer passed to New is
// notified either way.
func (d *Device) StartDeviceScan(disableMode string) {
	go func() {
		cfg := cardinit.Config{Log: d.log}
		if t, ok := mmcproto.DisableModeByName(disableMode); ok {
			cfg.DisableMask = disableMaskFor(t)
		}
		state, err := cardinit.Bringup(d.ctrl, cfg)
		if err != nil {
			d.log.Warnf("bring-up failed: %v", err)
			if d.mux != nil {
				d.mux.DeviceFailed(err)
			}
			return
		}
		d.state = state
		if d.mux != nil {
			d.mux.DeviceReady(state.DeviceUUID())
		}
		d.runEventLoop()
	}()
}

func disableMaskFor(t mmcproto.Timing) uint8 {
	// The disable mask is keyed to the same DEVICE_TYPE bit positions
	// Supports() checks against; only the named mode's bits are
	// disabled, and lower modes stay available (spec.md end-to-end
	// scenario 4 only requires HS400 itself to be skipped).
	switch t {
	case mmcproto.TimingHS400:
		return 1<<6 | 1<<7
	case mmcproto.TimingHS200:
		return 1<<4 | 1<<5
	case mmcproto.TimingDDR52:
		return 1<<2 | 1<<3
	case mmcproto.TimingHS52:
		return 1 << 1
	case mmcproto.TimingHS26:
		return 1 << 0
	default:
		return 0
	}
}

// runEventLoop is the single-threaded cooperative loop from spec.md §5:
// one event loop per controller receives block requests and
// interrupts, and at most one command descriptor is ever in
// Progress_*.
func (d *Device) runEventLoop() {
	if d.pub != nil {
		d.pub.Run(5 * time.Second)
	}
	for {
		select {
		case <-d.stop:
			return
		case req := <-d.requests:
			d.serve(req)
		}
	}
}

// Close stops the event loop and the stats publisher.
func (d *Device) Close() error {
	close(d.stop)
	if d.pub != nil {
		return d.pub.Close()
	}
	return nil
}

// SetPublisher wires the optional redis stats publisher (internal/
// redpub), installed by cmd/sdhcid after flag parsing.
func (d *Device) SetPublisher(pub *redpub.Publisher) { d.pub = pub }

func (d *Device) publishStats() {
	if d.pub == nil || d.state == nil {
		return
	}
	d.pub.Update(redpub.Stats{
		Timing:      d.state.Timing.String(),
		BusWidth:    d.state.BusWidth,
		FrequencyHz: d.state.FrequencyHz,
		Sectors:     uint64(d.state.NumSectors),
	})
}

// fatalConfigError wraps mmcproto.ErrInvalid for the per-request
// validation failures InoutData returns.
func fatalConfigError(format string, args ...interface{}) error {
	return fmt.Errorf("blockdev: %w: %s", mmcproto.ErrInvalid, fmt.Sprintf(format, args...))
}
