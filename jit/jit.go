// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jit is the tracing JIT compiler core for a ><> ("Fish")
// interpreter: given a codebox and a starting IP state, Compile emits
// one straight-line native x86-64 block covering as many instructions
// as the trace driver can follow before hitting a cycle, a refused
// branch, or program termination. codebox and stack are its external
// collaborators; jit/internal/compile is its own backend.
package jit

import (
	"fmt"
	"unsafe"

	"github.com/go-interpreter/fishjit/codebox"
	"github.com/go-interpreter/fishjit/jit/internal/compile"
	"github.com/go-interpreter/fishjit/stack"
)

// Block is a compiled trace: one executable mapping, owned by the
// caller and released by Destroy. MaxStackChange is an upper bound on
// the net stack growth Invoke can cause, for callers that want to
// pre-size the stack before invoking.
type Block struct {
	unit           compile.NativeCodeUnit
	alloc          compile.Allocator
	MaxStackChange int64

	destroyed bool
}

// Compile builds one trace starting at start, per spec.md §2/§4.2.
// It returns an error (never a "null" sentinel, since Go has a real
// error channel) on syntax error, unterminated string, or allocation/
// assembler failure; the interpreter always retains the option to
// single-step this IP state directly instead (spec.md §7).
func Compile(cb *codebox.Codebox, start codebox.State) (*Block, error) {
	a, err := compile.NewAssembler()
	if err != nil {
		return nil, fmt.Errorf("jit: %w: %v", ErrAssemblerFailed, err)
	}
	e := compile.NewEmitter(a)
	e.EmitPreamble()

	maxStackChange, err := compileTrace(cb, start, e)
	if err != nil {
		return nil, err
	}
	e.EmitEpilogue()

	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("jit: %w: %v", ErrAssemblerFailed, err)
	}

	alloc := &compile.MMapAllocator{}
	unit, err := compile.Finalize(a, alloc)
	if err != nil {
		return nil, fmt.Errorf("jit: %w: %v", ErrAllocationFailed, err)
	}

	return &Block{unit: unit, alloc: alloc, MaxStackChange: maxStackChange}, nil
}

// Invoke runs the block against st, starting from the IP state Compile
// was given. On return, end holds the IP state the interpreter must
// resume from (Finished if the trace reached `;`). The return value is
// 0 for a normal exit, 1 for a runtime stack underflow (spec.md §6).
//
// Emitted code writes stack cells directly at Data + Num*CellSize with
// no bounds-growing logic of its own, so Invoke first ensures st's
// backing array has at least MaxStackChange cells of headroom beyond
// its current length — the upper bound spec.md §3's max_stack_change
// field exists to let the caller pre-allocate.
func (b *Block) Invoke(st *stack.Stack, end *codebox.State) int64 {
	growCapacity(st, b.MaxStackChange)

	base := dataPointer(st)
	abiStack := compile.AbiStack{
		Top:  unsafe.Add(base, st.Len()*int(compile.CellSize)),
		Num:  int64(st.Len()),
		Data: base,
		Cap:  int64(cap(st.Data)),
	}
	abiState := compile.AbiState{
		Row: int64(end.Row),
		Col: int64(end.Col),
		Dir: int64(end.Dir),
	}

	ret := b.unit.Invoke(&abiStack, &abiState)

	st.Data = st.Data[:abiStack.Num]
	end.Row = int(abiState.Row)
	end.Col = int(abiState.Col)
	end.Dir = codebox.Direction(abiState.Dir)

	return ret
}

// growCapacity reallocates st's backing array, preserving its
// contents and length, if fewer than extra cells of spare capacity
// remain beyond its current length.
func growCapacity(st *stack.Stack, extra int64) {
	need := len(st.Data) + int(extra)
	if cap(st.Data) >= need {
		return
	}
	grown := make([]stack.Cell, len(st.Data), need)
	copy(grown, st.Data)
	st.Data = grown
}

// dataPointer returns the address of st's backing array, or nil if it
// has none yet.
func dataPointer(st *stack.Stack) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(st.Data))
}

// Destroy releases the block's executable mapping. Calling it more
// than once is a no-op, matching the teacher's idempotent-close idiom.
func (b *Block) Destroy() error {
	if b.destroyed {
		return nil
	}
	b.destroyed = true
	return b.alloc.Close()
}
