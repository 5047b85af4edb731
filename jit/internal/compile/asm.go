// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compile is the native x86-64 backend for the tracing JIT: a
// thin macro assembler over golang-asm, one emitter per ><> opcode
// group, and the finalizer that turns an assembled instruction stream
// into an executable block. Mirrors the split between
// exec/internal/compile's backend_amd64.go (emitters) and its
// allocator (finalizer) in the teacher repository.
package compile

import (
	"fmt"

	asm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

// Fixed register assignments, callee-preserved across a trace (spec.md
// §4.1):
const (
	regStackTop = x86.REG_R10 // pointer to one cell past the last stack item
	regStackNum = x86.REG_R11 // count of items on stack
	regStackPtr = x86.REG_R12 // pointer to the stack descriptor passed in at entry
	regEndState = x86.REG_R13 // pointer to the caller-owned end-state slot
	regRet      = x86.REG_AX  // return value: 0 success, 1 underflow
)

// Assembler wraps a golang-asm builder with the local-label bookkeeping
// and global labels (_entry, epilogue) spec.md §4.1 requires. Local
// labels are numeric 1-9; a label may be redefined within a trace, and
// a jump to it resolves to the nearest definition consistent with
// direction (forward jumps wait for the next definition, backward jumps
// resolve to the most recent one), the same scheme assemblers like GAS
// use for "1f"/"1b" references.
type Assembler struct {
	b *asm.Builder

	// pendingForward[n] holds jump Progs still waiting for a future
	// Label(n) to resolve their branch target.
	pendingForward map[int][]*obj.Prog
	// lastBackward[n] holds the most recent Label(n) marker, used to
	// resolve backward jumps immediately.
	lastBackward map[int]*obj.Prog

	entry    *obj.Prog
	epilogue *obj.Prog

	err error
}

// NewAssembler allocates a fresh builder with room for a typical
// trace's worth of instructions.
func NewAssembler() (*Assembler, error) {
	b, err := asm.NewBuilder("amd64", 256)
	if err != nil {
		return nil, err
	}
	return &Assembler{
		b:              b,
		pendingForward: make(map[int][]*obj.Prog),
		lastBackward:   make(map[int]*obj.Prog),
	}, nil
}

// Err returns the first error recorded by any emission helper, if any.
func (a *Assembler) Err() error { return a.err }

func (a *Assembler) fail(err error) {
	if a.err == nil {
		a.err = err
	}
}

// Prog allocates a new instruction record.
func (a *Assembler) Prog() *obj.Prog {
	return a.b.NewProg()
}

// Add appends p to the instruction stream.
func (a *Assembler) Add(p *obj.Prog) {
	a.b.AddInstruction(p)
}

// MarkEntry records the upcoming instruction as the block's entry
// point; call this before emitting the first real instruction.
func (a *Assembler) MarkEntry(p *obj.Prog) { a.entry = p }

// Label emits a local-label marker (a NOP landing pad) for numeric
// label n, resolving any forward jumps that were waiting on it and
// arming it as the target for future backward jumps.
func (a *Assembler) Label(n int) *obj.Prog {
	marker := a.Prog()
	marker.As = obj.ANOP
	a.Add(marker)

	for _, jmp := range a.pendingForward[n] {
		jmp.To.Val = marker
	}
	delete(a.pendingForward, n)
	a.lastBackward[n] = marker
	return marker
}

// JumpDirection selects whether a numeric-label reference should
// resolve forward (the next definition of that label) or backward (the
// most recent one already emitted).
type JumpDirection int

const (
	// Forward resolves to a Label(n) call that has not happened yet.
	Forward JumpDirection = iota
	// Backward resolves to the most recent Label(n) call.
	Backward
)

// jumpTo wires a branch instruction's target to local label n,
// resolving immediately for backward references and queuing the patch
// for forward ones.
func (a *Assembler) jumpTo(p *obj.Prog, n int, dir JumpDirection) {
	p.To.Type = obj.TYPE_BRANCH
	if dir == Backward {
		target, ok := a.lastBackward[n]
		if !ok {
			a.fail(fmt.Errorf("compile: backward reference to undefined label %d", n))
			return
		}
		p.To.Val = target
		return
	}
	a.pendingForward[n] = append(a.pendingForward[n], p)
}

// JMP emits an unconditional jump to local label n.
func (a *Assembler) JMP(n int, dir JumpDirection) *obj.Prog {
	p := a.Prog()
	p.As = obj.AJMP
	a.jumpTo(p, n, dir)
	a.Add(p)
	return p
}

// JumpIf emits a conditional jump (cc is one of the x86.AJ* opcodes)
// to local label n.
func (a *Assembler) JumpIf(cc obj.As, n int, dir JumpDirection) *obj.Prog {
	p := a.Prog()
	p.As = cc
	a.jumpTo(p, n, dir)
	a.Add(p)
	return p
}

// JumpToEpilogue emits an unconditional jump to the shared epilogue
// label, used by every trace-closing opcode (spec.md §4.1's global
// `epilogue` label).
func (a *Assembler) JumpToEpilogue() *obj.Prog {
	p := a.Prog()
	p.As = obj.AJMP
	p.To.Type = obj.TYPE_BRANCH
	if a.epilogue != nil {
		p.To.Val = a.epilogue
	} else {
		a.pendingForward[epilogueLabel] = append(a.pendingForward[epilogueLabel], p)
	}
	a.Add(p)
	return p
}

// epilogueLabel is a private numeric slot (outside the 1-9 user range)
// used to thread forward jumps to MarkEpilogue before it is emitted.
const epilogueLabel = -1

// MarkEpilogue defines the epilogue landing pad and resolves any
// pending jumps to it.
func (a *Assembler) MarkEpilogue() *obj.Prog {
	marker := a.Prog()
	marker.As = obj.ANOP
	a.Add(marker)
	a.epilogue = marker
	for _, jmp := range a.pendingForward[epilogueLabel] {
		jmp.To.Val = marker
	}
	delete(a.pendingForward, epilogueLabel)
	return marker
}

// Link checks that every forward-referenced label was eventually
// defined, then assembles the instruction stream to machine code.
func (a *Assembler) Link() ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}
	for n, pending := range a.pendingForward {
		if len(pending) > 0 {
			return nil, fmt.Errorf("compile: unresolved forward reference to label %d", n)
		}
	}
	return a.b.Assemble(), nil
}
