// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

// Allocator turns assembled machine code into an invokable,
// page-protected block. MMapAllocator is the only implementation in
// this module; the interface leaves room for a substitute such as
// exec/native_compile_test.go's mockPageAllocator.
type Allocator interface {
	AllocateExec(asm []byte) (NativeCodeUnit, error)
	Close() error
}

// Finalize implements the block finalizer (spec.md §4.5): link the
// assembler's instruction stream into bytes, then hand them to alloc
// to become an executable block. Any failure returns an error; no
// partial allocation survives a failed Finalize call.
func Finalize(a *Assembler, alloc Allocator) (NativeCodeUnit, error) {
	code, err := a.Link()
	if err != nil {
		return nil, err
	}
	return alloc.AllocateExec(code)
}
