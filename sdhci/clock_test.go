// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package sdhci

import "testing"

func TestComputeDividerUSDHCDoesNotExceedTarget(t *testing.T) {
	c := &Controller{Kind: KindUSDHC}
	d := c.computeDivider(25000000)
	got := baseClockHz / (d.preDiv * (d.dvs + 1))
	if uint32(got) > 25000000 {
		t.Errorf("computeDivider(25MHz) produced %d Hz, exceeds target", got)
	}
}

func TestComputeDividerIProcCapsAt10Bits(t *testing.T) {
	c := &Controller{Kind: KindIProc}
	d := c.computeDivider(100) // pathologically low target forces div > 1023
	if d.raw10 > 1023 {
		t.Errorf("raw10 divider = %d, exceeds 10-bit range", d.raw10)
	}
}

func TestComputeDividerDDRHalvesTarget(t *testing.T) {
	c := &Controller{Kind: KindIProc, DDRActive: true}
	withDDR := c.computeDivider(50000000)

	c2 := &Controller{Kind: KindIProc, DDRActive: false}
	withoutDDR := c2.computeDivider(50000000)

	if withDDR.raw10 <= withoutDDR.raw10 {
		t.Errorf("DDR-active divider %d should exceed non-DDR divider %d for the same target",
			withDDR.raw10, withoutDDR.raw10)
	}
}

func TestComputeDividerZeroTargetClampsToMinimum(t *testing.T) {
	c := &Controller{Kind: KindIProc}
	d := c.computeDivider(0)
	if d.raw10 == 0 {
		t.Error("computeDivider(0) left raw10 at zero, would disable the clock")
	}
}
