// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package blockdev

import (
	"testing"

	"github.com/platinasystems/sdhcid/mmcproto"
)

func TestDisableMaskForTargetsRequestedModeOnly(t *testing.T) {
	mask := disableMaskFor(mmcproto.TimingHS400)
	if !mmcproto.Supports(0xff, mask, mmcproto.TimingLegacy) {
		t.Error("disabling HS400 must not disable legacy")
	}
	if mmcproto.Supports(0xff, mask, mmcproto.TimingHS400) {
		t.Error("disableMaskFor(HS400) did not disable HS400")
	}
	if !mmcproto.Supports(0xff, mask, mmcproto.TimingHS52) {
		t.Error("disabling HS400 must not disable HS52")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	d := New(nil, nil, nil, Config{})
	if d.MaxSize() == 0 {
		t.Error("New() left MaxSize at zero")
	}
	if d.MaxSegments() == 0 {
		t.Error("New() left MaxSeg at zero")
	}
}

func TestNewHonorsExplicitConfig(t *testing.T) {
	d := New(nil, nil, nil, Config{MaxSize: 1024, MaxSeg: 2, ReadOnly: true})
	if d.MaxSize() != 1024 {
		t.Errorf("MaxSize() = %d, want 1024", d.MaxSize())
	}
	if d.MaxSegments() != 2 {
		t.Errorf("MaxSegments() = %d, want 2", d.MaxSegments())
	}
	if !d.IsReadOnly() {
		t.Error("IsReadOnly() = false, want true")
	}
}
