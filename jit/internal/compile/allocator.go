// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !appengine
// +build !appengine

package compile

import (
	"fmt"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

// minAllocSize is the size of each arena mapping requested from the
// OS; allocations that don't fit get their own dedicated arena rounded
// up to a page multiple.
const minAllocSize = 32 * 1024

// allocationAlignment is the padding inserted between consecutive
// blocks inside an arena, keeping each block's entry point aligned.
const allocationAlignment = 16

// arena is one mmap'd region blocks are bump-allocated from.
type arena struct {
	region    mmap.MMap
	mem       unsafe.Pointer
	consumed  uint32
	remaining uint32
}

// MMapAllocator satisfies the finalizer's page-allocator contract
// (spec.md §4.5/§6): allocate a block of executable memory containing
// the given assembled bytes. It bump-allocates inside arena-sized
// mmap'd regions, rounding up to a fresh dedicated arena when a single
// allocation doesn't fit — this shape, including the exact
// minAllocSize/allocationAlignment bookkeeping, is reconstructed from
// exec/internal/compile/allocator_test.go's expectations in the
// teacher repository (see DESIGN.md).
type MMapAllocator struct {
	arenas []*arena
	last   *arena
}

// AllocateExec copies asm into a fresh read+execute mapping (allocated
// read+write, filled, then re-protected), returning a NativeCodeUnit
// whose entry point is the first byte of the copy. Any failure along
// the way frees what was allocated and returns an error, per spec.md
// §4.1's "Failure at any step frees the state and returns null."
func (a *MMapAllocator) AllocateExec(asm []byte) (NativeCodeUnit, error) {
	if len(asm) == 0 {
		return nil, fmt.Errorf("compile: cannot allocate empty code block")
	}

	need := uint32(len(asm))
	ar := a.last
	fresh := ar == nil || ar.remaining < need
	if fresh {
		size := minAllocSize
		if int(need) > size {
			size = pageRound(int(need))
		}
		var err error
		ar, err = newArena(size)
		if err != nil {
			return nil, err
		}
	}

	dst := unsafe.Pointer(uintptr(ar.mem) + uintptr(ar.consumed))
	if err := unix.Mprotect(ar.region, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		if fresh {
			ar.region.Unmap()
		}
		return nil, fmt.Errorf("compile: mprotect RW failed: %w", err)
	}
	copy(unsafe.Slice((*byte)(dst), len(asm)), asm)
	if err := unix.Mprotect(ar.region, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		if fresh {
			ar.region.Unmap()
		}
		return nil, fmt.Errorf("compile: mprotect RX failed: %w", err)
	}
	if fresh {
		a.arenas = append(a.arenas, ar)
		a.last = ar
	}

	padded := roundUp(need, allocationAlignment)
	ar.consumed += padded
	if padded > ar.remaining {
		ar.remaining = 0
	} else {
		ar.remaining -= padded
	}

	return &asmBlock{mem: dst, owner: ar}, nil
}

// Close unmaps every arena this allocator has allocated. Once closed,
// every NativeCodeUnit it produced is invalid to invoke.
func (a *MMapAllocator) Close() error {
	var firstErr error
	for _, ar := range a.arenas {
		if err := ar.region.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.arenas = nil
	a.last = nil
	return firstErr
}

func newArena(size int) (*arena, error) {
	region, err := mmap.MapRegion(nil, size, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, fmt.Errorf("compile: mmap failed: %w", err)
	}
	return &arena{
		region:    region,
		mem:       unsafe.Pointer(&region[0]),
		remaining: uint32(size),
	}, nil
}

func pageRound(n int) int {
	const pageSize = 4096
	return (n + pageSize - 1) &^ (pageSize - 1)
}

func roundUp(n, align uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}
