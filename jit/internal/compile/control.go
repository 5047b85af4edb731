// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

// EmitSkipTest pops the top of stack and sets x86 flags so that ZF=1
// means "the popped value was zero" — the shared first half of every
// `?` emission, per spec.md §4.3 step 2. Integer cells compare the
// payload directly; Float cells are loaded into x87, compared against
// 0.0, and popped back off the x87 stack.
func (e *Emitter) EmitSkipTest(row, col, dir int64) {
	e.EmitUnderflowCheck(1, row, col, dir)
	e.emitPopInto(x86.REG_AX, x86.REG_DX)

	p := e.a.Prog()
	p.As = x86.ATESTQ
	p.From.Type = obj.TYPE_REG
	p.From.Reg = x86.REG_DX
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_DX
	e.a.Add(p)
	isFloat := e.a.JumpIf(x86.AJNE, reservedSkipFloatLabel, Forward)
	_ = isFloat

	p = e.a.Prog()
	p.As = x86.ATESTQ
	p.From.Type = obj.TYPE_REG
	p.From.Reg = x86.REG_AX
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_AX
	e.a.Add(p)
	done := e.a.JMP(reservedSkipDoneLabel, Forward)

	e.a.Label(reservedSkipFloatLabel)
	e.storeMem(x86.REG_AX, regStackTop, 0)
	p = e.a.Prog()
	p.As = x86.AFMOVD
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = regStackTop
	p.From.Offset = 0
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_F0
	e.a.Add(p)
	p = e.a.Prog()
	p.As = x86.AFLDZ
	e.a.Add(p)
	p = e.a.Prog()
	p.As = x86.AFUCOMIP
	p.From.Type = obj.TYPE_REG
	p.From.Reg = x86.REG_F0
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_F1
	e.a.Add(p)

	e.a.Label(reservedSkipDoneLabel)
	_ = done
}

const (
	reservedSkipFloatLabel = -8
	reservedSkipDoneLabel  = -9
)

// EmitFusedSkipJump emits the predicated jump to local label 9 used
// when `?` fuses with a simple following opcode (spec.md §4.3 step 4).
// inverted accounts for a run of consecutive `!` negating the test.
func (e *Emitter) EmitFusedSkipJump(inverted bool) {
	cc := x86.AJEQ
	if inverted {
		cc = x86.AJNE
	}
	e.a.JumpIf(cc, fusedSkipLabel, Forward)
}

// fusedSkipLabel is the driver-visible numeric label 9 spec.md §4.2/§4.3
// reserve for the fused-skip merge point.
const fusedSkipLabel = 9

// EmitFusedSkipLabel places local label 9, the point execution resumes
// at whether or not the fused instruction ran.
func (e *Emitter) EmitFusedSkipLabel() {
	e.a.Label(fusedSkipLabel)
}

// EmitSkipBailout emits the two-way bailout used when the opcode after
// `?` is not in the simple whitelist (spec.md §4.3 step 5): a
// predicated jump to a local scratch label, and along each path a
// write of the corresponding next IP state followed by an exit through
// the epilogue.
func (e *Emitter) EmitSkipBailout(inverted bool, takenState, fallthroughState [3]int64) {
	cc := x86.AJEQ
	if inverted {
		cc = x86.AJNE
	}
	e.a.JumpIf(cc, reservedBailoutTakenLabel, Forward)

	e.EmitWriteEndState(fallthroughState[0], fallthroughState[1], fallthroughState[2])
	e.EmitExit(0)

	e.a.Label(reservedBailoutTakenLabel)
	e.EmitWriteEndState(takenState[0], takenState[1], takenState[2])
	e.EmitExit(0)
}

const reservedBailoutTakenLabel = -10

// EmitProgramEnd emits `;`: end_state.direction = FINISHED, r_ret = 0,
// jump to the epilogue.
func (e *Emitter) EmitProgramEnd(finishedDir int64) {
	e.movConstReg(finishedDir, x86.REG_AX)
	e.storeMem(x86.REG_AX, regEndState, 16)
	e.EmitExit(0)
}
