// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package sdcmd

import "github.com/platinasystems/sdhcid/mmcproto"

// Queue is the fixed-capacity arena of command descriptors from
// spec.md §4.2 ("the core uses a bounded arena, not dynamic
// allocation, so descriptor identity is stable").
type Queue struct {
	cmds []Cmd
	free []bool
}

// NewQueue allocates a queue with the given fixed capacity.
func NewQueue(capacity int) *Queue {
	q := &Queue{
		cmds: make([]Cmd, capacity),
		free: make([]bool, capacity),
	}
	for i := range q.cmds {
		q.cmds[i].Index = i
		q.cmds[i].queue = q
		q.free[i] = true
	}
	return q
}

// Create obtains an unused slot, or mmcproto.ErrBusy if the arena is
// exhausted.
func (q *Queue) Create() (*Cmd, error) {
	for i, free := range q.free {
		if free {
			q.free[i] = false
			q.cmds[i].Status = Uninitialized
			return &q.cmds[i], nil
		}
	}
	return nil, mmcproto.ErrBusy
}

// Working returns the descriptor in a Progress* or ReadyForSubmit
// state, or nil if none. The queue enforces cardinality <= 1 for the
// in-progress set at Submit time (see sdhci.Controller.Submit); this
// accessor does not itself validate the invariant, it only surfaces
// the current holder.
func (q *Queue) Working() *Cmd {
	for i := range q.cmds {
		if q.free[i] {
			continue
		}
		s := q.cmds[i].Status
		if s == ReadyForSubmit || s.InProgress() {
			return &q.cmds[i]
		}
	}
	return nil
}

// Get returns the descriptor at the given stable index, for use by
// callers that only retained the index (spec.md DESIGN NOTES §9).
func (q *Queue) Get(index int) *Cmd {
	if index < 0 || index >= len(q.cmds) {
		return nil
	}
	return &q.cmds[index]
}

// Destruct releases a descriptor back to the free pool, invalidating
// all fields, matching Drv::cmd_destruct.
func (q *Queue) Destruct(c *Cmd) {
	idx := c.Index
	c.destruct()
	q.free[idx] = true
}

func (q *Queue) workDone(c *Cmd) {
	// Hook point matching Queue::cmd_work_done; presently the queue
	// itself has no further bookkeeping beyond the descriptor's own
	// callback, which WorkDone already invoked.
	_ = c
}
