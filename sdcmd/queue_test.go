// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package sdcmd

import (
	"errors"
	"testing"

	"github.com/platinasystems/sdhcid/mmcproto"
)

func TestQueueCreateExhaustion(t *testing.T) {
	q := NewQueue(2)
	a, err := q.Create()
	if err != nil {
		t.Fatalf("Create() #1: %v", err)
	}
	_, err = q.Create()
	if err != nil {
		t.Fatalf("Create() #2: %v", err)
	}
	if _, err := q.Create(); !errors.Is(err, mmcproto.ErrBusy) {
		t.Fatalf("Create() #3 = %v, want ErrBusy", err)
	}

	q.Destruct(a)
	c, err := q.Create()
	if err != nil {
		t.Fatalf("Create() after Destruct: %v", err)
	}
	if c.Index != a.Index {
		t.Errorf("reused descriptor has Index %d, want stable Index %d", c.Index, a.Index)
	}
}

func TestQueueIndexStableAcrossDestruct(t *testing.T) {
	q := NewQueue(4)
	cmd, _ := q.Create()
	idx := cmd.Index
	cmd.Arg = 0xdeadbeef
	cmd.Status = Success

	q.Destruct(cmd)

	got := q.Get(idx)
	if got == nil {
		t.Fatalf("Get(%d) = nil after Destruct", idx)
	}
	if got.Index != idx {
		t.Errorf("Get(%d).Index = %d", idx, got.Index)
	}
	if got.Arg != 0 || got.Status != Uninitialized {
		t.Errorf("Destruct did not clear descriptor fields: Arg=%#x Status=%s", got.Arg, got.Status)
	}
}

func TestQueueWorkingReflectsSingleInProgress(t *testing.T) {
	q := NewQueue(4)
	if q.Working() != nil {
		t.Fatal("Working() non-nil on empty queue")
	}

	cmd, _ := q.Create()
	cmd.Status = ReadyForSubmit
	if q.Working() != cmd {
		t.Error("Working() did not report the ReadyForSubmit descriptor")
	}

	cmd.Status = ProgressData
	if q.Working() != cmd {
		t.Error("Working() did not report the ProgressData descriptor")
	}

	cmd.Status = Success
	if q.Working() != nil {
		t.Error("Working() reported a terminal-status descriptor")
	}
}

func TestCmdWorkDoneInvokesCallback(t *testing.T) {
	q := NewQueue(1)
	cmd, _ := q.Create()

	var gotErr error
	gotBytes := -1
	cmd.SetCallback(func(err error, bytes int) {
		gotErr = err
		gotBytes = bytes
	})
	cmd.BytesTransferred = 512
	cmd.WorkDone()

	if gotErr != nil {
		t.Errorf("callback err = %v, want nil", gotErr)
	}
	if gotBytes != 512 {
		t.Errorf("callback bytes = %d, want 512", gotBytes)
	}
}

func TestStatusInProgressAndDone(t *testing.T) {
	inProgress := []Status{ProgressCmd, ProgressData}
	for _, s := range inProgress {
		if !s.InProgress() {
			t.Errorf("%s.InProgress() = false", s)
		}
		if s.Done() {
			t.Errorf("%s.Done() = true", s)
		}
	}
	terminal := []Status{Success, CmdTimeout, CmdError, DataError, TuningFailed, Error}
	for _, s := range terminal {
		if !s.Done() {
			t.Errorf("%s.Done() = false", s)
		}
		if s.InProgress() {
			t.Errorf("%s.InProgress() = true", s)
		}
	}
}
