// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package mmcproto

import "errors"

// Error taxonomy. Every error surfaced by this driver wraps one of
// these sentinels so callers can classify with errors.Is instead of
// string matching.
var (
	// ErrInvalid is a programmer or configuration error: bad argument,
	// table overflow, unsupported path. Not retried.
	ErrInvalid = errors.New("mmc: invalid")

	// ErrBusy is a transient capacity error: no free command
	// descriptor. The caller retries later.
	ErrBusy = errors.New("mmc: busy")

	// ErrIO is a hardware timeout or unexpected bus state. Surfaced
	// after the current command is aborted and the CMD line reset.
	ErrIO = errors.New("mmc: io timeout")

	// ErrCardError is a controller-reported command or data error
	// (CRC, end-bit, index, DMA). Propagated to the client, not
	// retried at this layer.
	ErrCardError = errors.New("mmc: card error")

	// ErrNegotiation means bring-up exhausted its preference list
	// without settling on a viable operating point. Fatal for the
	// device.
	ErrNegotiation = errors.New("mmc: negotiation failed")

	// ErrExpected marks a probe command that legitimately fails (e.g.
	// CMD8 on a pre-v2 SD card); suppressed from user-visible error
	// reporting, used only as a branch condition during bring-up.
	ErrExpected = errors.New("mmc: expected probe failure")
)
