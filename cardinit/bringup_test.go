// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package cardinit

import (
	"fmt"
	"testing"

	"github.com/platinasystems/sdhcid/mmcproto"
)

func TestDeviceUUIDStableForSameCID(t *testing.T) {
	cid := mmcproto.CID{Raw: [4]uint32{0x11111111, 0x22222222, 0x33333333, 0x44444444}}
	a := (&State{CID: cid}).DeviceUUID()
	b := (&State{CID: cid}).DeviceUUID()
	if a != b {
		t.Errorf("DeviceUUID() not stable: %q vs %q", a, b)
	}

	other := mmcproto.CID{Raw: [4]uint32{0x11111111, 0x22222222, 0x33333333, 0x44444445}}
	c := (&State{CID: other}).DeviceUUID()
	if a == c {
		t.Error("DeviceUUID() identical for two distinct CIDs")
	}
}

func TestMatchHIDAgainstPSNAndUUID(t *testing.T) {
	cid := mmcproto.CID{Raw: [4]uint32{0, 0x12345678, 0x9abc0000, 0}}
	s := &State{CID: cid}

	psnHex := fmt.Sprintf("%08x", s.CID.ProductSerialNumber())
	if !s.MatchHID(psnHex) {
		t.Errorf("MatchHID(%q) did not match the device's PSN", psnHex)
	}
	if !s.MatchHID(s.DeviceUUID()) {
		t.Error("MatchHID did not match the device's own UUID")
	}
	if s.MatchHID("not-a-real-identifier") {
		t.Error("MatchHID matched an unrelated identifier")
	}
}

func TestDisableModeByNameCoversAllCLIValues(t *testing.T) {
	for _, name := range []string{"hs26", "hs52", "hs52_ddr", "hs200", "hs400"} {
		if _, ok := mmcproto.DisableModeByName(name); !ok {
			t.Errorf("DisableModeByName(%q) not recognized", name)
		}
	}
}
