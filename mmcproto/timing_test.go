// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package mmcproto

import "testing"

func TestDisableModeByName(t *testing.T) {
	cases := map[string]Timing{
		"hs26":     TimingHS26,
		"hs52":     TimingHS52,
		"hs52_ddr": TimingDDR52,
		"hs200":    TimingHS200,
		"hs400":    TimingHS400,
	}
	for name, want := range cases {
		got, ok := DisableModeByName(name)
		if !ok {
			t.Errorf("DisableModeByName(%q): not found", name)
			continue
		}
		if got != want {
			t.Errorf("DisableModeByName(%q) = %v, want %v", name, got, want)
		}
	}
	if _, ok := DisableModeByName("bogus"); ok {
		t.Error("DisableModeByName(\"bogus\") unexpectedly found")
	}
}

func TestTimingIsDDR(t *testing.T) {
	for _, tm := range []Timing{TimingHS400, TimingHS400ES, TimingDDR52, TimingDDR50} {
		if !tm.IsDDR() {
			t.Errorf("%v.IsDDR() = false, want true", tm)
		}
	}
	for _, tm := range []Timing{TimingLegacy, TimingHS52, TimingHS200, TimingSDR104} {
		if tm.IsDDR() {
			t.Errorf("%v.IsDDR() = true, want false", tm)
		}
	}
}

func TestTimingRequiresTuning(t *testing.T) {
	if !TimingHS200.RequiresTuning() || !TimingSDR104.RequiresTuning() {
		t.Error("HS200/SDR104 must require tuning")
	}
	if TimingHS52.RequiresTuning() {
		t.Error("HS52 must not require tuning")
	}
}

func TestPreferenceListsDescendByCapability(t *testing.T) {
	if MMCPreference[0] != TimingHS400ES {
		t.Errorf("MMCPreference[0] = %v, want HS400ES (highest first)", MMCPreference[0])
	}
	if SDPreference[0] != TimingSDR104 {
		t.Errorf("SDPreference[0] = %v, want SDR104 (highest first)", SDPreference[0])
	}
}
