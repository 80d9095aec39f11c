// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license described in
// the LICENSE file.

package blockdev

import (
	"fmt"
	"sync"

	"github.com/platinasystems/sdhcid/mmcproto"
)

// mapKey identifies a (dataspace, offset) pair the multiplexer may ask
// to map more than once; spec.md DESIGN NOTES §9 requires identical
// mappings to share one physical address with reference counting (a
// known platform quirk, #CD-202 in the original driver's tracker).
type mapKey struct {
	cap    uintptr
	offset uint64
}

type mapEntry struct {
	phys     uint64
	refcount int
}

// dmaMapCache implements the pair of mappings spec.md DESIGN NOTES §9
// describes: (cap, offset) -> (phys, refcount) and phys -> (cap,
// offset). Mutated only under the single-threaded I/O loop, matching
// spec.md §5.
type dmaMapCache struct {
	mu       sync.Mutex // defensive; the owning event loop is the only real caller
	byKey    map[mapKey]*mapEntry
	byPhys   map[uint64]mapKey
	nextPhys uint64
}

func newDMAMapCache() *dmaMapCache {
	return &dmaMapCache{
		byKey:  make(map[mapKey]*mapEntry),
		byPhys: make(map[uint64]mapKey),
	}
}

// DMAMap implements spec.md §6's dma_map(region, offset, num_sectors,
// direction) -> phys. mapPhys is the platform-provided mapper invoked
// only on first reference; subsequent calls for the same (cap, offset)
// reuse the cached physical address and bump the refcount.
func (d *Device) DMAMap(capToken uintptr, offset uint64, numSectors uint32, mapPhys func() (uint64, error)) (uint64, error) {
	key := mapKey{cap: capToken, offset: offset}
	c := d.dmaMapCache

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.byKey[key]; ok {
		e.refcount++
		return e.phys, nil
	}

	phys, err := mapPhys()
	if err != nil {
		return 0, fmt.Errorf("blockdev: dma_map: %w", err)
	}
	c.byKey[key] = &mapEntry{phys: phys, refcount: 1}
	c.byPhys[phys] = key
	return phys, nil
}

// DMAUnmap implements the inverse of DMAMap: decrements the refcount
// and, once it reaches zero, removes the mapping and invokes unmapPhys
// to release the platform resource.
func (d *Device) DMAUnmap(phys uint64, unmapPhys func() error) error {
	c := d.dmaMapCache

	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := c.byPhys[phys]
	if !ok {
		return fmt.Errorf("blockdev: dma_unmap: %w: unknown physical address", mmcproto.ErrInvalid)
	}
	e := c.byKey[key]
	e.refcount--
	if e.refcount > 0 {
		return nil
	}
	delete(c.byKey, key)
	delete(c.byPhys, phys)
	if unmapPhys != nil {
		return unmapPhys()
	}
	return nil
}
