// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package dma

import (
	"fmt"

	"github.com/platinasystems/sdhcid/mmcproto"
	"github.com/platinasystems/sdhcid/sdcmd"
)

// SDMARegion is the single physical base and total length programmed
// for the SDMA path (spec.md §4.3.2), retained for the iProc variant
// which lacks ADMA2 in this driver.
type SDMARegion struct {
	Addr   uint64
	Length int
}

// BuildSDMA collapses a scatter list into a single SDMA region. If any
// segment requires bouncing, the whole transfer is routed through the
// bounce buffer as one contiguous copy (spec.md §4.3.2: "the whole
// transfer uses the bounce buffer").
func BuildSDMA(segments []sdcmd.Segment, bb *BounceBuffer) (region SDMARegion, bounced bool, err error) {
	if len(segments) == 0 {
		return SDMARegion{}, false, fmt.Errorf("dma: %w: empty scatter list", mmcproto.ErrInvalid)
	}
	total := 0
	anyBounce := false
	for _, seg := range segments {
		size := int(seg.NumSectors) * 512
		total += size
		if RequiresBounce(false, seg.DMAAddr, size) {
			anyBounce = true
		}
	}
	if !anyBounce {
		return SDMARegion{Addr: segments[0].DMAAddr, Length: total}, false, nil
	}
	if bb == nil {
		return SDMARegion{}, false, fmt.Errorf("dma: %w: segment requires bounce buffer but none configured", mmcproto.ErrInvalid)
	}
	off, err := bb.Reserve(total)
	if err != nil {
		return SDMARegion{}, false, err
	}
	return SDMARegion{Addr: bb.PhysAddr(off), Length: total}, true, nil
}
