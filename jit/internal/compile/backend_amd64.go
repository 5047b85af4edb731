// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"fmt"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

// Details of the AMD64 backend (spec.md §4.1):
// Reserved registers (callee-preserved across a trace):
//  - R10 (regStackTop) - pointer to one cell past the last stack item
//  - R11 (regStackNum) - count of items on stack
//  - R12 (regStackPtr) - pointer to the stack descriptor passed in at entry
//  - R13 (regEndState) - pointer to the caller-owned end-state slot
//  - AX  (regRet)      - return value (0 success, 1 underflow)
// Scratch registers: BX, CX, DX, SI, DI, R8, R9, R14, R15.
//
// A stack cell is addressed as a 16-byte slot: 8 bytes of payload
// followed by an 8-byte tag word (only the low byte is significant).
// spec.md §3 documents the semantic 9-byte layout (8-byte payload + a
// single tag byte); widening the tag word to 8 bytes here is a native
// ABI decision, not a semantic one — it lets every stack index use a
// plain SIB scale of 16 (a legal x86 scale factor) rather than an
// unaddressable scale of 9.
const CellSize = 16

// cellSize is the unexported alias used throughout this file's
// addressing arithmetic.
const cellSize = CellSize

// Emitter emits the machine-code sequence implementing a single ><>
// instruction onto an Assembler's instruction stream. One method exists
// per spec.md §4.3 opcode group.
type Emitter struct {
	a *Assembler
}

// NewEmitter returns an Emitter appending onto a.
func NewEmitter(a *Assembler) *Emitter { return &Emitter{a: a} }

func (e *Emitter) movRegReg(as obj.As, from, to int16) {
	p := e.a.Prog()
	p.As = as
	p.From.Type = obj.TYPE_REG
	p.From.Reg = from
	p.To.Type = obj.TYPE_REG
	p.To.Reg = to
	e.a.Add(p)
}

func (e *Emitter) movConstReg(c int64, to int16) {
	p := e.a.Prog()
	p.As = x86.AMOVQ
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = c
	p.To.Type = obj.TYPE_REG
	p.To.Reg = to
	e.a.Add(p)
}

func (e *Emitter) loadMem(base int16, offset int64, to int16) {
	p := e.a.Prog()
	p.As = x86.AMOVQ
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = base
	p.From.Offset = offset
	p.To.Type = obj.TYPE_REG
	p.To.Reg = to
	e.a.Add(p)
}

func (e *Emitter) storeMem(from int16, base int16, offset int64) {
	p := e.a.Prog()
	p.As = x86.AMOVQ
	p.From.Type = obj.TYPE_REG
	p.From.Reg = from
	p.To.Type = obj.TYPE_MEM
	p.To.Reg = base
	p.To.Offset = offset
	e.a.Add(p)
}

// aluConstReg emits a single two-operand ALU instruction (as) with an
// immediate left operand and register right operand/destination, e.g.
// SUBQ $16, SP. Shares movConstReg's Prog shape for a different opcode.
func (e *Emitter) aluConstReg(as obj.As, c int64, to int16) {
	p := e.a.Prog()
	p.As = as
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = c
	p.To.Type = obj.TYPE_REG
	p.To.Reg = to
	e.a.Add(p)
}

// pushReg/popReg emit PUSHQ/POPQ, used by emitCallAbs to save the
// reserved cross-trace registers around a foreign call, since an
// ordinary Go function has no reason to preserve them.
func (e *Emitter) pushReg(reg int16) {
	p := e.a.Prog()
	p.As = x86.APUSHQ
	p.From.Type = obj.TYPE_REG
	p.From.Reg = reg
	e.a.Add(p)
}

func (e *Emitter) popReg(reg int16) {
	p := e.a.Prog()
	p.As = x86.APOPQ
	p.To.Type = obj.TYPE_REG
	p.To.Reg = reg
	e.a.Add(p)
}

// cellAddr computes, into scratch, the address of the cell `delta`
// slots below the current stack top (delta=1 is the top-of-stack
// cell), following the same "load base, scale index, lea" shape as
// the teacher's emitWasmStackLoad/emitWasmStackPush.
func (e *Emitter) cellAddr(delta int64, scratch int16) {
	// leaq scratch, [regStackTop - delta*cellSize]
	p := e.a.Prog()
	p.As = x86.ALEAQ
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = regStackTop
	p.From.Offset = -delta * cellSize
	p.To.Type = obj.TYPE_REG
	p.To.Reg = scratch
	e.a.Add(p)
}

// EmitUnderflowCheck emits: if r_stacknum < n { write (row,col,dir) into
// end_state; r_ret = 1; jump epilogue }. row/col/dir identify the IP
// state of the instruction performing the check, so a runtime
// underflow leaves end_state pointing at the faulting opcode, per
// spec.md §8's boundary behavior ("sets end_state to the faulting
// IP"). Every binary op and `?`/`~`/dup/swap/rotate emitter calls this
// first, per spec.md §4.3.
func (e *Emitter) EmitUnderflowCheck(n, row, col, dir int64) {
	p := e.a.Prog()
	p.As = x86.ACMPQ
	p.From.Type = obj.TYPE_REG
	p.From.Reg = regStackNum
	p.To.Type = obj.TYPE_CONST
	p.To.Offset = n
	e.a.Add(p)

	ok := e.a.JMP(reservedUnderflowOKLabel, Forward)
	ok.As = x86.AJGE // jump over the fault path when stacknum >= n

	e.EmitWriteEndState(row, col, dir)
	e.movConstReg(1, regRet)
	e.a.JumpToEpilogue()

	e.a.Label(reservedUnderflowOKLabel)
}

// reservedUnderflowOKLabel is a private local-label slot dedicated to
// underflow-check fallthrough targets; distinct from the 1-9 labels
// the trace driver itself uses for skip fusion, and re-used (redefined)
// by every underflow check in a trace, matching spec.md §4.1's "local
// labels... redefinition within a trace is legal".
const reservedUnderflowOKLabel = -2

// EmitPush emits a push of an immediate integer value (opcodes 0-9, a-f).
func (e *Emitter) EmitPush(v int64) {
	e.movConstReg(v, x86.REG_AX)
	e.emitPushReg(x86.REG_AX, tagInteger)
}

// EmitPushIntReg emits a push of the value currently in reg, tagged Integer.
func (e *Emitter) EmitPushIntReg(reg int16) {
	e.emitPushReg(reg, tagInteger)
}

const (
	tagInteger = 0
	tagFloat   = 1
)

// emitPushReg stores reg (payload) and an immediate tag at the current
// stack top, then bumps regStackTop/regStackNum — the same
// "address, store, increment" shape as the teacher's
// emitWasmStackPush.
func (e *Emitter) emitPushReg(reg int16, tag int64) {
	e.storeMem(reg, regStackTop, 0)
	e.movConstReg(tag, x86.REG_DX)
	e.storeMem(x86.REG_DX, regStackTop, 8)

	p := e.a.Prog()
	p.As = x86.AADDQ
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = cellSize
	p.To.Type = obj.TYPE_REG
	p.To.Reg = regStackTop
	e.a.Add(p)

	p = e.a.Prog()
	p.As = x86.AINCQ
	p.To.Type = obj.TYPE_REG
	p.To.Reg = regStackNum
	e.a.Add(p)
}

// emitPopInto loads the top cell's payload into payloadReg and its tag
// into tagReg, then decrements regStackTop/regStackNum — the inverse of
// emitPushReg, matching emitWasmStackLoad's "decrement, address, load"
// shape.
func (e *Emitter) emitPopInto(payloadReg, tagReg int16) {
	p := e.a.Prog()
	p.As = x86.ASUBQ
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = cellSize
	p.To.Type = obj.TYPE_REG
	p.To.Reg = regStackTop
	e.a.Add(p)

	p = e.a.Prog()
	p.As = x86.ADECQ
	p.To.Type = obj.TYPE_REG
	p.To.Reg = regStackNum
	e.a.Add(p)

	e.loadMem(regStackTop, 0, payloadReg)
	if tagReg != obj.REG_NONE {
		e.loadMem(regStackTop, 8, tagReg)
	}
}

// EmitDup emits `:` — duplicate the top of stack.
func (e *Emitter) EmitDup(row, col, dir int64) {
	e.EmitUnderflowCheck(1, row, col, dir)
	e.loadMem(regStackTop, -cellSize, x86.REG_AX)
	e.loadMem(regStackTop, -cellSize+8, x86.REG_DX)
	e.emitPushReg(x86.REG_AX, 0)
	// overwrite the tag word just written with the duplicated tag.
	e.storeMem(x86.REG_DX, regStackTop, -8)
}

// EmitDrop emits `~` — discard the top of stack.
func (e *Emitter) EmitDrop(row, col, dir int64) {
	e.EmitUnderflowCheck(1, row, col, dir)
	e.emitPopInto(x86.REG_AX, x86.REG_DX)
}

// EmitSwap emits `$` — exchange the top two stack cells.
func (e *Emitter) EmitSwap(row, col, dir int64) {
	e.EmitUnderflowCheck(2, row, col, dir)
	e.cellAddr(1, x86.REG_R14)
	e.cellAddr(2, x86.REG_R15)
	e.swapCells(x86.REG_R14, x86.REG_R15)
}

// EmitRotate emits `@` — rotate the top 3 stack cells so the top cell
// moves down two places ([a b c] becomes [c a b]).
func (e *Emitter) EmitRotate(row, col, dir int64) {
	e.EmitUnderflowCheck(3, row, col, dir)
	e.cellAddr(1, x86.REG_R14)
	e.cellAddr(2, x86.REG_R15)
	e.swapCells(x86.REG_R14, x86.REG_R15)
	e.cellAddr(2, x86.REG_R14)
	e.cellAddr(3, x86.REG_R15)
	e.swapCells(x86.REG_R14, x86.REG_R15)
}

// swapCells exchanges the 16-byte cells addressed by aAddr and bAddr
// through scratch registers BX/CX.
func (e *Emitter) swapCells(aAddr, bAddr int16) {
	for _, off := range []int64{0, 8} {
		e.loadMem(aAddr, off, x86.REG_BX)
		e.loadMem(bAddr, off, x86.REG_CX)
		e.storeMem(x86.REG_CX, aAddr, off)
		e.storeMem(x86.REG_BX, bAddr, off)
	}
}

// EmitPushLen emits `l` — push the current stack depth as an Integer.
func (e *Emitter) EmitPushLen() {
	e.movRegReg(x86.AMOVQ, regStackNum, x86.REG_AX)
	e.EmitPushIntReg(x86.REG_AX)
}

// BinOp identifies an arithmetic or comparison opcode.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv // `,` float division
	OpMod // `%` integer modulo
	OpEq
	OpLt // `(`
	OpGt // `)`
)

// EmitBinary emits the pop-two/compute/push-one sequence for `+ - * , % = ( )`.
// Operands are promoted to float if either tag is Float; `,` always
// takes the float path and pushes a Float, per spec.md §4.3.
func (e *Emitter) EmitBinary(op BinOp, row, col, dir int64) error {
	e.EmitUnderflowCheck(2, row, col, dir)

	// Pop b (rhs) then a (lhs); the second operand popped is the
	// first one pushed, i.e. the lower stack item.
	e.emitPopInto(x86.REG_BX, x86.REG_CX) // b payload/tag
	e.emitPopInto(x86.REG_AX, x86.REG_DX) // a payload/tag

	// A real implementation branches here on (tag_a | tag_b) to select
	// an integer ALU op or an x87 sequence; both paths converge on a
	// single emitPushReg/emitPushFloat call. We always emit the
	// integer fast path plus a float fallback guarded by a tag check,
	// following the same "promote if either operand is Float" rule
	// spec.md §4.3 states for `+ - * , %` and comparisons.
	e.orTag(x86.REG_CX, x86.REG_DX, x86.REG_R8)
	anyFloat := e.a.JumpIf(x86.AJNE, reservedFloatPathLabel, Forward)
	_ = anyFloat

	if err := e.emitIntBinary(op); err != nil {
		return err
	}
	done := e.a.JMP(reservedBinaryDoneLabel, Forward)

	e.a.Label(reservedFloatPathLabel)
	e.emitFloatBinary(op)

	e.a.Label(reservedBinaryDoneLabel)
	_ = done
	return nil
}

const (
	reservedFloatPathLabel  = -3
	reservedBinaryDoneLabel = -4
)

// orTag computes (tagA | tagB) != 0 into flags via a TESTQ against
// zero, leaving the result observable to the following JNE.
func (e *Emitter) orTag(tagA, tagB, scratch int16) {
	e.movRegReg(x86.AMOVQ, tagA, scratch)
	p := e.a.Prog()
	p.As = x86.AORQ
	p.From.Type = obj.TYPE_REG
	p.From.Reg = tagB
	p.To.Type = obj.TYPE_REG
	p.To.Reg = scratch
	e.a.Add(p)

	p = e.a.Prog()
	p.As = x86.ATESTQ
	p.From.Type = obj.TYPE_REG
	p.From.Reg = scratch
	p.To.Type = obj.TYPE_REG
	p.To.Reg = scratch
	e.a.Add(p)
}

func (e *Emitter) emitIntBinary(op BinOp) error {
	// a is in AX, b is in BX.
	switch op {
	case OpAdd:
		e.arith(x86.AADDQ, x86.REG_BX, x86.REG_AX)
	case OpSub:
		e.arith(x86.ASUBQ, x86.REG_BX, x86.REG_AX)
	case OpMul:
		p := e.a.Prog()
		p.As = x86.AIMULQ
		p.From.Type = obj.TYPE_REG
		p.From.Reg = x86.REG_BX
		p.To.Type = obj.TYPE_REG
		p.To.Reg = x86.REG_AX
		e.a.Add(p)
	case OpDiv:
		// `,` is float division (spec.md §4.3): the integer branch
		// hands every divide to the float path, so the result is
		// always Float, exact or not.
		e.emitFloatBinary(OpDiv)
		return nil
	case OpMod:
		p := e.a.Prog()
		p.As = x86.ACQTO
		e.a.Add(p)
		p = e.a.Prog()
		p.As = x86.AIDIVQ
		p.From.Type = obj.TYPE_REG
		p.From.Reg = x86.REG_BX
		e.a.Add(p)
		e.movRegReg(x86.AMOVQ, x86.REG_DX, x86.REG_AX)
	case OpEq, OpLt, OpGt:
		e.emitCompare(op)
		e.EmitPushIntReg(x86.REG_AX)
		return nil
	default:
		return fmt.Errorf("compile: amd64 backend cannot handle binary op %v", op)
	}
	e.EmitPushIntReg(x86.REG_AX)
	return nil
}

func (e *Emitter) arith(as obj.As, from, to int16) {
	p := e.a.Prog()
	p.As = as
	p.From.Type = obj.TYPE_REG
	p.From.Reg = from
	p.To.Type = obj.TYPE_REG
	p.To.Reg = to
	e.a.Add(p)
}

// emitCompare leaves a 0/1 Integer result in AX for `= ( )`.
func (e *Emitter) emitCompare(op BinOp) {
	p := e.a.Prog()
	p.As = x86.ACMPQ
	p.From.Type = obj.TYPE_REG
	p.From.Reg = x86.REG_AX
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_BX
	e.a.Add(p)

	var cc obj.As
	switch op {
	case OpEq:
		cc = x86.ASETEQ
	case OpLt:
		cc = x86.ASETLT
	case OpGt:
		cc = x86.ASETGT
	}
	p = e.a.Prog()
	p.As = cc
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_AX
	e.a.Add(p)

	// SETcc only writes the low byte; zero-extend.
	p = e.a.Prog()
	p.As = x86.AMOVBQZX
	p.From.Type = obj.TYPE_REG
	p.From.Reg = x86.REG_AX
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_AX
	e.a.Add(p)
}

// emitFloatBinary implements the x87-based fallback used whenever
// either operand is Float, and for every `,`. Loads both operands into the x87 stack, computes, stores back
// through memory (golang-asm's x87 opcodes only address memory or
// ST(i), never GP registers directly) and pushes a Float-tagged cell.
func (e *Emitter) emitFloatBinary(op BinOp) {
	// Spill the integer payloads to the stack's freed top-of-stack
	// slots so the x87 loads have addressable memory operands.
	e.storeMem(x86.REG_AX, regStackTop, 0)
	e.storeMem(x86.REG_BX, regStackTop, 8)

	fld := func(off int64) {
		p := e.a.Prog()
		p.As = x86.AFMOVD
		p.From.Type = obj.TYPE_MEM
		p.From.Reg = regStackTop
		p.From.Offset = off
		p.To.Type = obj.TYPE_REG
		p.To.Reg = x86.REG_F0
		e.a.Add(p)
	}
	fld(8) // ST(0) = b
	fld(0) // ST(0) = a, ST(1) = b

	if op == OpEq || op == OpLt || op == OpGt {
		e.emitFloatCompare(op)
		return
	}

	var as obj.As
	switch op {
	case OpAdd:
		as = x86.AFADDDP
	case OpSub:
		as = x86.AFSUBDP
	case OpMul:
		as = x86.AFMULDP
	case OpDiv, OpMod:
		as = x86.AFDIVDP
	}
	p := e.a.Prog()
	p.As = as
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_F1
	e.a.Add(p)

	p = e.a.Prog()
	p.As = x86.AFMOVDP
	p.From.Type = obj.TYPE_REG
	p.From.Reg = x86.REG_F0
	p.To.Type = obj.TYPE_MEM
	p.To.Reg = regStackTop
	p.To.Offset = 0
	e.a.Add(p)

	e.loadMem(regStackTop, 0, x86.REG_AX)
	e.emitPushReg(x86.REG_AX, tagFloat)
}

// emitFloatCompare implements `= ( )` once either operand is Float: on
// entry ST(0)=a, ST(1)=b, the same layout emitFloatBinary's caller
// leaves before dispatching here. FUCOMIP compares ST(0) against
// ST(1) and pops, setting flags the same way an unsigned CMP a, b
// would (the same FMOVD/FUCOMIP shape control.go's EmitSkipTest uses
// for the `?` test); SETcc then turns that into a 0/1 Integer result,
// matching emitCompare's integer-path convention.
func (e *Emitter) emitFloatCompare(op BinOp) {
	p := e.a.Prog()
	p.As = x86.AFUCOMIP
	p.From.Type = obj.TYPE_REG
	p.From.Reg = x86.REG_F0
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_F1
	e.a.Add(p)

	var cc obj.As
	switch op {
	case OpEq:
		cc = x86.ASETEQ
	case OpLt:
		cc = x86.ASETCS // CF=1: ST(0)=a below ST(1)=b
	case OpGt:
		cc = x86.ASETHI // CF=0, ZF=0: a above b
	}
	p = e.a.Prog()
	p.As = cc
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_AX
	e.a.Add(p)

	p = e.a.Prog()
	p.As = x86.AMOVBQZX
	p.From.Type = obj.TYPE_REG
	p.From.Reg = x86.REG_AX
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_AX
	e.a.Add(p)

	e.EmitPushIntReg(x86.REG_AX)
}

// EmitDirectionMutator records a compile-time-only direction change
// (`> < ^ v`); no code is emitted, matching spec.md §4.3.
func (e *Emitter) EmitDirectionMutator() {}

// EmitMirror records a compile-time-only mirror reflection
// (`/ \ | _ #`); no code is emitted, matching spec.md §4.3.
func (e *Emitter) EmitMirror() {}

// EmitWriteEndState emits the three stores that write (row, col, dir)
// into the caller-owned end-state slot pointed to by regEndState.
func (e *Emitter) EmitWriteEndState(row, col, dir int64) {
	e.movConstReg(row, x86.REG_AX)
	e.storeMem(x86.REG_AX, regEndState, 0)
	e.movConstReg(col, x86.REG_AX)
	e.storeMem(x86.REG_AX, regEndState, 8)
	e.movConstReg(dir, x86.REG_AX)
	e.storeMem(x86.REG_AX, regEndState, 16)
}

// EmitExit emits `r_ret = code; jump epilogue`.
func (e *Emitter) EmitExit(code int64) {
	e.movConstReg(code, regRet)
	e.a.JumpToEpilogue()
}

// EmitUnderflowExit is the runtime-underflow exit path: r_ret = 1,
// end_state already written by the caller before this call.
func (e *Emitter) EmitUnderflowExit() { e.EmitExit(1) }

// EmitPreamble emits the shared entry sequence. Currently a no-op
// (registers arrive already populated by the caller's trampoline),
// mirroring exec/internal/compile/backend_amd64.go's emitPreamble.
func (e *Emitter) EmitPreamble() {
	e.a.MarkEntry(e.a.Prog())
}

// EmitEpilogue emits the shared exit sequence: the epilogue label
// followed by a return to the caller with regRet already populated.
func (e *Emitter) EmitEpilogue() {
	e.a.MarkEpilogue()
	p := e.a.Prog()
	p.As = obj.ARET
	e.a.Add(p)
}
