// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package dma

import (
	"bytes"
	"errors"
	"testing"

	"github.com/platinasystems/sdhcid/mmcproto"
)

func TestBounceBufferCopyRoundTrip(t *testing.T) {
	bb := NewBounceBuffer(4096, 0x8000_0000, nil)
	off, err := bb.Reserve(512)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	src := bytes.Repeat([]byte{0xab}, 512)
	bb.CopyIn(off, src)

	dst := make([]byte, 512)
	bb.CopyOut(off, dst)

	if !bytes.Equal(src, dst) {
		t.Error("CopyOut did not reproduce what CopyIn wrote")
	}
	if bb.PhysAddr(off) != 0x8000_0000+uint64(off) {
		t.Errorf("PhysAddr(%d) = %#x, want %#x", off, bb.PhysAddr(off), 0x8000_0000+uint64(off))
	}
}

func TestBounceBufferResetRewindsCursor(t *testing.T) {
	bb := NewBounceBuffer(512, 0, nil)
	if _, err := bb.Reserve(512); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := bb.Reserve(1); !errors.Is(err, mmcproto.ErrInvalid) {
		t.Fatalf("Reserve past capacity = %v, want ErrInvalid", err)
	}
	bb.Reset()
	if _, err := bb.Reserve(512); err != nil {
		t.Errorf("Reserve after Reset: %v", err)
	}
}

func TestBounceBufferOverflow(t *testing.T) {
	bb := NewBounceBuffer(100, 0, nil)
	if _, err := bb.Reserve(50); err != nil {
		t.Fatalf("Reserve(50): %v", err)
	}
	if _, err := bb.Reserve(51); !errors.Is(err, mmcproto.ErrInvalid) {
		t.Fatalf("Reserve(51) = %v, want ErrInvalid", err)
	}
}
