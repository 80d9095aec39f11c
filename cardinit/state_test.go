// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package cardinit

import "testing"

func TestStateCapacity(t *testing.T) {
	s := &State{NumSectors: 1000, SectorSize: 512}
	if got, want := s.Capacity(), uint64(1000*512); got != want {
		t.Errorf("Capacity() = %d, want %d", got, want)
	}
}
