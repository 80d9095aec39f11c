// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

// Package sdcmd is the in-memory representation of one in-flight MMC
// command and the bounded arena that owns a fixed set of them. It
// corresponds to the original driver's Cmd and Drv::_cmd_queue, with
// the pointer back-reference the source uses replaced by a stable
// arena index (spec.md DESIGN NOTES §9).
package sdcmd

import "github.com/platinasystems/sdhcid/mmcproto"

// Status is the command descriptor's lifecycle state.
type Status int

const (
	Uninitialized Status = iota
	ReadyForSubmit
	ProgressCmd
	ProgressData
	DataPartial
	TuningProgress
	Success
	CmdTimeout
	CmdError
	DataError
	TuningFailed
	Error
)

func (s Status) String() string {
	names := [...]string{
		"uninitialized", "ready_for_submit", "progress_cmd",
		"progress_data", "data_partial", "tuning_progress", "success",
		"cmd_timeout", "cmd_error", "data_error", "tuning_failed", "error",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// InProgress reports whether the status is one of the two "working"
// states that the queue invariant limits to cardinality <= 1.
func (s Status) InProgress() bool {
	return s == ProgressCmd || s == ProgressData
}

// Done reports whether the status is terminal.
func (s Status) Done() bool {
	switch s {
	case Success, CmdTimeout, CmdError, DataError, TuningFailed, Error:
		return true
	default:
		return false
	}
}

// Segment is one node of an externally-owned scatter list. The core
// borrows the list; ownership of the DMA mapping stays with the caller
// (spec.md DESIGN NOTES §9).
type Segment struct {
	DMAAddr    uint64
	VirtAddr   uintptr
	NumSectors uint32
}

// Flags bundles the per-command behavioral switches from spec.md §3.
type Flags struct {
	HasData              bool
	InoutRead            bool
	InoutCmd12Needed     bool
	AutoCMD23            bool
	AppCmd               bool
	ExpectedError        bool
	ReadFromBounceBuffer bool
	HasR1Response        bool
}

// CompletionFunc is invoked once a descriptor reaches a terminal
// status, with the resulting error classification (nil on Success) and
// the number of bytes actually transferred.
type CompletionFunc func(err error, bytesTransferred int)

// Cmd is one command descriptor. Index is its stable position in the
// owning Queue's backing array; it survives Destruct/Create cycles the
// way the original's Cmd::nr() pointer arithmetic does.
type Cmd struct {
	Index int

	CmdIndex      int
	ResponseKind  mmcproto.ResponseKind
	CRCCheck      bool
	OpcodeCheck   bool
	Arg           uint32
	Flags         Flags

	Segments  []Segment
	DataPhys  uint64
	BlockSize int
	BlockCnt  int
	Sectors   uint32

	Resp [4]uint32

	Status Status
	Err    error

	BytesTransferred int

	cb CompletionFunc

	queue *Queue
}

// WorkDone is invoked by the sdhci state machine when the descriptor
// reaches a terminal state; it drives the completion callback exactly
// as the original Cmd::work_done -> Queue::cmd_work_done does.
func (c *Cmd) WorkDone() {
	if c.cb != nil {
		c.cb(c.Err, c.BytesTransferred)
	}
	if c.queue != nil {
		c.queue.workDone(c)
	}
}

// SetCallback installs the completion callback invoked by WorkDone.
func (c *Cmd) SetCallback(cb CompletionFunc) {
	c.cb = cb
}

// destruct invalidates every field and clears the callback, matching
// Cmd::destruct.
func (c *Cmd) destruct() {
	idx := c.Index
	q := c.queue
	*c = Cmd{Index: idx, queue: q}
}
