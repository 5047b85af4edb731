// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import "unsafe"

// NativeCodeUnit is an executable block of machine code produced by the
// finalizer. Mirrors exec/internal/compile.NativeCodeUnit in the
// teacher repository.
type NativeCodeUnit interface {
	// Invoke runs the block against the given stack descriptor and
	// end-state slot, returning 0 (normal exit) or 1 (underflow),
	// matching spec.md §6's entry(stack_descriptor, end_state_ptr)
	// contract.
	Invoke(stack *AbiStack, end *AbiState) int64
}

// AbiStack is the fixed-layout descriptor JIT-emitted code addresses
// directly through the regStackPtr register: Top points one cell past
// the last used cell, Num is the live item count, Data is the base of
// the backing array and Cap its capacity in cells. Field order and
// widths must match the offsets jitcall_amd64.s and the emitters in
// backend_amd64.go/ioops.go assume.
type AbiStack struct {
	Top  unsafe.Pointer
	Num  int64
	Data unsafe.Pointer
	Cap  int64
}

// AbiState is the fixed-layout end-state slot: (row, col, dir), each an
// 8-byte field, matching EmitWriteEndState's offsets (0, 8, 16).
type AbiState struct {
	Row int64
	Col int64
	Dir int64
}
