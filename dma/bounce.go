// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package dma

import (
	"fmt"

	"github.com/platinasystems/sdhcid/internal/platform"
	"github.com/platinasystems/sdhcid/mmcproto"
)

// BounceBuffer is the single contiguous controller-reachable shadow
// region from spec.md §3, used only when a scatter segment's DMA
// address plus length exceeds the controller's address ceiling.
type BounceBuffer struct {
	mem      []byte
	physBase uint64
	cache    platform.CacheController
	cursor   int
}

// NewBounceBuffer allocates a bounce region of the given size, mapped
// at physBase as seen by the controller. cache may be
// platform.NoopCache when the region is uncached, which is the common
// case on SDHCI-class platforms.
func NewBounceBuffer(size int, physBase uint64, cache platform.CacheController) *BounceBuffer {
	if cache == nil {
		cache = platform.NoopCache
	}
	return &BounceBuffer{mem: make([]byte, size), physBase: physBase, cache: cache}
}

// Reset rewinds the allocation cursor; called once per command before
// building its DMA descriptors (the bounce region is private to the
// working descriptor per spec.md §5).
func (b *BounceBuffer) Reset() { b.cursor = 0 }

// Reserve carves out n bytes from the bounce region, failing with
// ErrInvalid on overflow (spec.md §4.3.1 step 2).
func (b *BounceBuffer) Reserve(n int) (offset int, err error) {
	if b.cursor+n > len(b.mem) {
		return 0, fmt.Errorf("dma: %w: bounce buffer overflow (%d+%d > %d)",
			mmcproto.ErrInvalid, b.cursor, n, len(b.mem))
	}
	offset = b.cursor
	b.cursor += n
	return offset, nil
}

// PhysAddr returns the controller-visible address of a previously
// reserved offset.
func (b *BounceBuffer) PhysAddr(offset int) uint64 { return b.physBase + uint64(offset) }

// CopyIn copies client memory into the bounce region ahead of a write,
// then flushes the range (spec.md §5 "explicit cache flush before
// DMA-from-CPU").
func (b *BounceBuffer) CopyIn(offset int, src []byte) {
	n := copy(b.mem[offset:], src)
	b.cache.Flush(uintptr(offset), n)
}

// CopyOut invalidates the range and copies the bounce region out to
// client memory after a read (spec.md §5 "invalidate after
// DMA-to-CPU").
func (b *BounceBuffer) CopyOut(offset int, dst []byte) {
	n := len(dst)
	b.cache.Invalidate(uintptr(offset), n)
	copy(dst, b.mem[offset:offset+n])
}

// Size reports the bounce region's total capacity.
func (b *BounceBuffer) Size() int { return len(b.mem) }
