// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"reflect"
	"unsafe"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

// funcAddr returns the entry address of a Go function value, used to
// build the absolute-call sequences the I/O and stack-helper opcodes
// need. reflect.Value.Pointer() on a func value is documented to
// return an underlying code pointer, which is all an indirect CALL
// needs.
func funcAddr(fn interface{}) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// emitCallAbs emits a CALL to the absolute address addr — always one of
// the hand-written ABI0 trampolines in jit/runtime_amd64.s, never a
// plain Go function pointer, since Go makes no promise about which
// registers a compiler-generated function expects its arguments in.
// Arguments are written into consecutive 8-byte stack slots starting
// at SP, in order, exactly the layout a trampoline reads them back at
// via its own FP offsets; if hasRet, one further slot holds the
// result, which is loaded into AX before the frame is torn down. The
// reserved cross-trace registers (regStackTop/regStackNum/regStackPtr/
// regEndState) are saved and restored around the call, since an
// ordinary Go function has no reason to preserve them.
func (e *Emitter) emitCallAbs(addr uintptr, args []int16, hasRet bool) {
	e.pushReg(regStackTop)
	e.pushReg(regStackNum)
	e.pushReg(regStackPtr)
	e.pushReg(regEndState)

	slots := int64(len(args))
	if hasRet {
		slots++
	}
	frame := slots * 8
	if frame > 0 {
		e.aluConstReg(x86.ASUBQ, frame, x86.REG_SP)
	}
	for i, reg := range args {
		e.storeMem(reg, x86.REG_SP, int64(i*8))
	}

	e.movConstReg(int64(addr), x86.REG_R9)
	p := e.a.Prog()
	p.As = obj.ACALL
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_R9
	e.a.Add(p)

	if hasRet {
		e.loadMem(x86.REG_SP, int64(len(args))*8, x86.REG_AX)
	}
	if frame > 0 {
		e.aluConstReg(x86.AADDQ, frame, x86.REG_SP)
	}

	e.popReg(regEndState)
	e.popReg(regStackPtr)
	e.popReg(regStackNum)
	e.popReg(regStackTop)
}

// EmitPrintChar emits `o` — pop and print a character.
func (e *Emitter) EmitPrintChar(printChar func(int64), row, col, dir int64) {
	e.EmitUnderflowCheck(1, row, col, dir)
	e.emitPopInto(x86.REG_AX, x86.REG_DX)
	e.emitCallAbs(funcAddr(printChar), []int16{x86.REG_AX}, false)
}

// EmitPrintNumber emits `n` — pop and print either as an integer or a
// float, selecting the marshalling based on the popped tag, per
// spec.md §4.3. printFloat receives the payload's raw bits as an
// int64, the same bit pattern emitFloatBinary stored, and
// reinterprets them on the Go side (see rtPrintFloat).
func (e *Emitter) EmitPrintNumber(printInt func(int64), printFloat func(int64), row, col, dir int64) {
	e.EmitUnderflowCheck(1, row, col, dir)
	e.emitPopInto(x86.REG_AX, x86.REG_DX)

	p := e.a.Prog()
	p.As = x86.ATESTQ
	p.From.Type = obj.TYPE_REG
	p.From.Reg = x86.REG_DX
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_DX
	e.a.Add(p)
	isFloat := e.a.JumpIf(x86.AJNE, reservedPrintFloatLabel, Forward)
	_ = isFloat

	e.emitCallAbs(funcAddr(printInt), []int16{x86.REG_AX}, false)
	done := e.a.JMP(reservedPrintDoneLabel, Forward)

	e.a.Label(reservedPrintFloatLabel)
	e.emitCallAbs(funcAddr(printFloat), []int16{x86.REG_AX}, false)

	e.a.Label(reservedPrintDoneLabel)
	_ = done
}

const (
	reservedPrintFloatLabel = -5
	reservedPrintDoneLabel  = -6
)

// EmitReadChar emits `i` — read a character from the host, converting
// EOF to -1, and pushes the result as Integer.
func (e *Emitter) EmitReadChar(readChar func() int64) {
	e.emitCallAbs(funcAddr(readChar), nil, true)
	e.EmitPushIntReg(x86.REG_AX)
}

// EmitPeekCodebox emits `g` — pop (y, x), read the codebox cell at
// (x, y), and push it as Integer.
func (e *Emitter) EmitPeekCodebox(getCell func(x, y int64) int64, row, col, dir int64) {
	e.EmitUnderflowCheck(2, row, col, dir)
	e.emitPopInto(x86.REG_SI, x86.REG_DX) // y
	e.emitPopInto(x86.REG_DI, x86.REG_DX) // x
	e.emitCallAbs(funcAddr(getCell), []int16{x86.REG_DI, x86.REG_SI}, true)
	e.EmitPushIntReg(x86.REG_AX)
}

// EmitPokeCodebox emits `p` — pop (y, x, v) and write v into the
// codebox at (x, y). Resolves spec.md §9's open question: `p` is part
// of the simple-opcode whitelist's source material but is never
// eligible for `?`-fusion in this implementation (see SPEC_FULL.md §5),
// so the driver always treats it as trace-closing.
func (e *Emitter) EmitPokeCodebox(setCell func(v, x, y int64), row, col, dir int64) {
	e.EmitUnderflowCheck(3, row, col, dir)
	e.emitPopInto(x86.REG_DX, x86.REG_AX) // y
	e.emitPopInto(x86.REG_SI, x86.REG_AX) // x
	e.emitPopInto(x86.REG_DI, x86.REG_AX) // v
	e.emitCallAbs(funcAddr(setCell), []int16{x86.REG_DI, x86.REG_SI, x86.REG_DX}, false)
}

// EmitStackHelperCall emits a foreign call to one of the runtime stack
// helpers (fish_reverse_stack, fish_shift_left, fish_shift_right,
// register-swap), spilling the cached stacknum back into the stack
// descriptor first and reloading both stacknum and the recomputed
// stacktop pointer afterwards — `&` is the one helper that changes the
// item count, so regStackTop can no longer be trusted to still point
// one cell past the last item once the call returns, per spec.md §4.3.
func (e *Emitter) EmitStackHelperCall(fn func(unsafe.Pointer)) {
	e.storeMem(regStackNum, regStackPtr, 8)
	e.movRegReg(x86.AMOVQ, regStackPtr, x86.REG_DI)
	e.emitCallAbs(funcAddr(fn), []int16{x86.REG_DI}, false)
	e.loadMem(regStackPtr, 8, regStackNum)
	e.loadMem(regStackPtr, 16, x86.REG_DX) // AbiStack.Data
	e.recomputeStackTop(x86.REG_DX)
}

// recomputeStackTop sets regStackTop = dataBase + regStackNum*cellSize,
// the address one past the last live cell, via a SIB-indexed LEA.
func (e *Emitter) recomputeStackTop(dataBase int16) {
	p := e.a.Prog()
	p.As = x86.ALEAQ
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = dataBase
	p.From.Index = regStackNum
	p.From.Scale = cellSize
	p.To.Type = obj.TYPE_REG
	p.To.Reg = regStackTop
	e.a.Add(p)
}

// EmitRandomDirection emits `x`: call into a host random source, mask
// to two bits, and write one of the four possible next IP states into
// end_state depending on the result, per spec.md §4.3. targets[i] is
// the (row, col, dir) triple reached by virtually advancing from the
// current IP in direction i (0=Right,1=Left,2=Up,3=Down).
func (e *Emitter) EmitRandomDirection(randFn func() int64, targets [4][3]int64) {
	e.emitCallAbs(funcAddr(randFn), nil, true)
	p := e.a.Prog()
	p.As = x86.AANDQ
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = 3
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_AX
	e.a.Add(p)

	for i, t := range targets {
		p := e.a.Prog()
		p.As = x86.ACMPQ
		p.From.Type = obj.TYPE_REG
		p.From.Reg = x86.REG_AX
		p.To.Type = obj.TYPE_CONST
		p.To.Offset = int64(i)
		e.a.Add(p)
		skip := e.a.JumpIf(x86.AJNE, reservedRandSkipLabel, Forward)
		_ = skip
		e.EmitWriteEndState(t[0], t[1], t[2])
		e.EmitExit(0)
		e.a.Label(reservedRandSkipLabel)
	}
}

const reservedRandSkipLabel = -7

// EmitJump emits `.` — pop (row, col), write them into end_state with
// dir, and exit through the epilogue.
func (e *Emitter) EmitJump(dir int64, row, col int64) {
	e.EmitUnderflowCheck(2, row, col, dir)
	e.emitPopInto(x86.REG_DX, x86.REG_AX) // col (popped second push = row below)
	e.emitPopInto(x86.REG_CX, x86.REG_AX) // row
	e.storeMem(x86.REG_CX, regEndState, 0)
	e.storeMem(x86.REG_DX, regEndState, 8)
	e.movConstReg(dir, x86.REG_AX)
	e.storeMem(x86.REG_AX, regEndState, 16)
	e.EmitExit(0)
}
