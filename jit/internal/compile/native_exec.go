// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !appengine
// +build !appengine

package compile

import "unsafe"

// asmBlock is the concrete NativeCodeUnit backing an executable mmap'd
// region; mem points at the region's first byte (its entry point).
type asmBlock struct {
	mem unsafe.Pointer
	// owner keeps the allocator arena this block was carved from alive
	// for as long as the block exists, since the arena (not the block)
	// owns the underlying mapping.
	owner *arena
}

// Invoke implements NativeCodeUnit by calling into the machine code
// through the jitcall trampoline (jitcall_amd64.s).
func (b *asmBlock) Invoke(stack *AbiStack, end *AbiState) int64 {
	return jitcall(b.mem, stack, end)
}

// jitcall is implemented in jitcall_amd64.s. It loads the ABI
// registers (regStackTop/regStackNum) from stack, calls into entry,
// writes the registers back to stack, and returns AX (regRet).
func jitcall(entry unsafe.Pointer, stack *AbiStack, end *AbiState) int64
