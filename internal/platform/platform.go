// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

// Package platform declares the collaborators this driver expects from
// its host environment but does not itself implement: the block
// multiplexer, the firmware mailbox, platform clock/reset control, IRQ
// delivery and monotonic time. Concrete implementations live outside
// this module; tests substitute fakes.
package platform

import "time"

// Multiplexer is the upstream dispatcher. It owns partition discovery,
// client capability registration and request fan-out; the driver only
// ever calls back into it to report device readiness.
type Multiplexer interface {
	// DeviceReady is invoked once bring-up completes successfully.
	DeviceReady(hid string)
	// DeviceFailed is invoked when bring-up fails for any reason,
	// including exhausting its negotiation list without settling on a
	// viable operating point.
	DeviceFailed(err error)
}

// Mailbox is the Broadcom firmware-mailbox board-revision/GPIO query
// interface. It is auxiliary and never on the data path; iProc bring-up
// may consult it for a board-specific quirk table.
type Mailbox interface {
	BoardRevision() (uint32, error)
}

// ClockReset gates the AHB/IPG clocks feeding the controller before
// Init and ungates them on shutdown.
type ClockReset interface {
	Enable() error
	Disable() error
}

// MonotonicClock is the time source required by the iProc write-delay
// calculation and by every bounded poll loop.
type MonotonicClock interface {
	Now() time.Time
}

// IRQReceiver blocks the event-loop goroutine until the controller
// raises an interrupt, or the deadline passes.
type IRQReceiver interface {
	Receive(deadline time.Time) error
}

// CacheController flushes or invalidates a byte range of the bounce
// buffer around a DMA transfer. Most SDHCI-class platforms map the
// bounce region uncached, in which case a no-op implementation is
// correct.
type CacheController interface {
	Flush(addr uintptr, length int)
	Invalidate(addr uintptr, length int)
}

type noopCache struct{}

func (noopCache) Flush(uintptr, int)      {}
func (noopCache) Invalidate(uintptr, int) {}

// NoopCache is a CacheController for uncached bounce regions.
var NoopCache CacheController = noopCache{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the MonotonicClock backed by the Go runtime's own
// monotonic clock reading.
var SystemClock MonotonicClock = systemClock{}
