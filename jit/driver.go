// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import (
	"fmt"

	"github.com/go-interpreter/fishjit/codebox"
	"github.com/go-interpreter/fishjit/jit/internal/compile"
)

// trace carries the mutable state a single compileTrace walk threads
// through its opcode dispatch: the seen-states cache (spec.md §4.4),
// the condskip/addskip bookkeeping spec.md §4.2 describes, and the
// running upper bound on stack growth.
type trace struct {
	cb *codebox.Codebox
	e  *compile.Emitter

	seen map[codebox.State]bool

	condskip bool
	addskip  bool

	maxStackChange int64
}

// compileTrace walks cb from start, emitting one ><> instruction at a
// time onto e, until the trace closes: program end, a trace-closing
// opcode, a refused (`?`-bailout) branch, or a revisit of a state
// already emitted earlier in this same trace. It returns the upper
// bound on stack growth across the trace; the IP state to resume from
// is not returned here but written into end_state by the emitted code.
func compileTrace(cb *codebox.Codebox, start codebox.State, e *compile.Emitter) (int64, error) {
	t := &trace{cb: cb, e: e, seen: map[codebox.State]bool{}}
	s := start

	for s.Dir != codebox.Finished {
		op := cb.Get(s.Row, s.Col)

		if !t.condskip {
			if t.seen[s] {
				e.EmitWriteEndState(int64(s.Row), int64(s.Col), int64(s.Dir))
				e.EmitExit(0)
				return t.maxStackChange, nil
			}
			t.seen[s] = true
		} else {
			t.condskip = false
			t.addskip = true
		}

		finished, err := t.dispatch(&s, op)
		if err != nil {
			return 0, err
		}

		if t.addskip {
			e.EmitFusedSkipLabel()
			t.addskip = false
		}

		if finished {
			return t.maxStackChange, nil
		}
		cb.Next(&s)
	}

	return t.maxStackChange, nil
}

// dispatch emits the code for op at *s, mutating *s in place for
// compile-time direction changes and string-literal consumption.
// finished reports whether the trace must stop after this opcode
// (its own end-state write and epilogue jump, if any, are already
// emitted).
func (t *trace) dispatch(s *codebox.State, op rune) (finished bool, err error) {
	e := t.e

	switch {
	case op == ' ':
		return false, nil

	case isMirror(op):
		s.Dir = mirror(op, s.Dir)
		return false, nil

	case op == '?':
		return t.dispatchSkip(s)

	case op == 'x':
		t.dispatchRandom(s)
		return true, nil

	case op == '.':
		e.EmitJump(int64(s.Dir), int64(s.Row), int64(s.Col))
		return true, nil

	case op == ';':
		e.EmitProgramEnd(int64(codebox.Finished))
		// If this `;` is itself the fused simple instruction after a
		// `?` (t.addskip is still set from this iteration's setup),
		// its termination is only conditional at runtime: the
		// not-taken path falls through to the label-9 merge point and
		// the trace must keep extending past it. Only an unconditional
		// `;` actually stops compile-time trace growth.
		return !t.addskip, nil

	case op == 'p':
		t.dispatchPoke(s)
		return true, nil
	}

	if d, ok := directionMutator(op); ok {
		s.Dir = d
		return false, nil
	}

	if isStringDelim(op) {
		values, ok := t.cb.ReadString(s, op)
		if !ok {
			return false, fmt.Errorf("jit: unterminated string literal starting at %v: %w", *s, ErrUnterminatedString)
		}
		for _, v := range values {
			e.EmitPush(v)
		}
		t.maxStackChange += int64(len(values))
		return false, nil
	}

	if v, ok := literalValue(op); ok {
		e.EmitPush(v)
		t.maxStackChange++
		return false, nil
	}

	if binOp, ok := binaryOpcode(op); ok {
		if err := e.EmitBinary(binOp, int64(s.Row), int64(s.Col), int64(s.Dir)); err != nil {
			return false, err
		}
		return false, nil
	}

	row, col, dir := int64(s.Row), int64(s.Col), int64(s.Dir)
	switch op {
	case ':':
		e.EmitDup(row, col, dir)
		t.maxStackChange++
	case '$':
		e.EmitSwap(row, col, dir)
	case '@':
		e.EmitRotate(row, col, dir)
	case '~':
		e.EmitDrop(row, col, dir)
	case 'l':
		e.EmitPushLen()
		t.maxStackChange++
	case '&':
		e.EmitStackHelperCall(trampSwapRegister)
		t.maxStackChange++
	case 'r':
		e.EmitStackHelperCall(trampReverse)
	case '{':
		e.EmitStackHelperCall(trampShiftLeft)
	case '}':
		e.EmitStackHelperCall(trampShiftRight)
	case 'o':
		e.EmitPrintChar(trampPrintChar, row, col, dir)
	case 'n':
		e.EmitPrintNumber(trampPrintInt, trampPrintFloat, row, col, dir)
	case 'i':
		e.EmitReadChar(trampReadChar)
		t.maxStackChange++
	case 'g':
		e.EmitPeekCodebox(trampPeek, row, col, dir)
		t.maxStackChange++
	default:
		return false, &opcodeError{state: *s, op: op}
	}
	return false, nil
}

// dispatchPoke emits `p`: pop (y, x, v), write v into the codebox at
// (x, y) via the runtime helper, then close the trace — a poke can
// retroactively change the meaning of cells the rest of this trace
// would otherwise inline, per SPEC_FULL.md §5, so it is never eligible
// for fusion and always ends the trace immediately after.
func (t *trace) dispatchPoke(s *codebox.State) {
	t.e.EmitPokeCodebox(trampPoke, int64(s.Row), int64(s.Col), int64(s.Dir))
	next := *s
	t.cb.Next(&next)
	t.e.EmitWriteEndState(int64(next.Row), int64(next.Col), int64(next.Dir))
	t.e.EmitExit(0)
}

// dispatchRandom emits `x`: a call into the host random source
// followed by four branches, each writing the IP state reached by
// virtually advancing one step in that direction.
func (t *trace) dispatchRandom(s *codebox.State) {
	var targets [4][3]int64
	dirs := [4]codebox.Direction{codebox.Right, codebox.Left, codebox.Up, codebox.Down}
	for i, d := range dirs {
		next := *s
		next.Dir = d
		t.cb.Next(&next)
		targets[i] = [3]int64{int64(next.Row), int64(next.Col), int64(next.Dir)}
	}
	t.e.EmitRandomDirection(trampRand, targets)
}

// dispatchSkip implements `?` (spec.md §4.3's central fusion opcode).
func (t *trace) dispatchSkip(s *codebox.State) (finished bool, err error) {
	t.e.EmitSkipTest(int64(s.Row), int64(s.Col), int64(s.Dir))

	inverted := false
	for t.cb.PeekNext(*s) == '!' {
		t.cb.Next(s)
		inverted = !inverted
	}

	next := *s
	t.cb.Next(&next)
	followOp := t.cb.Get(next.Row, next.Col)

	if isSimple(followOp) {
		t.condskip = true
		t.e.EmitFusedSkipJump(inverted)
		return false, nil
	}

	taken := next // predicate true: skip the following instruction
	t.cb.Next(&taken)
	fallthroughState := next // predicate false: execute it normally

	t.e.EmitSkipBailout(inverted,
		[3]int64{int64(taken.Row), int64(taken.Col), int64(taken.Dir)},
		[3]int64{int64(fallthroughState.Row), int64(fallthroughState.Col), int64(fallthroughState.Dir)},
	)
	return true, nil
}

// binaryOpcode maps an arithmetic/comparison rune to its binOp.
func binaryOpcode(op rune) (compile.BinOp, bool) {
	switch op {
	case '+':
		return compile.OpAdd, true
	case '-':
		return compile.OpSub, true
	case '*':
		return compile.OpMul, true
	case ',':
		return compile.OpDiv, true
	case '%':
		return compile.OpMod, true
	case '=':
		return compile.OpEq, true
	case '(':
		return compile.OpLt, true
	case ')':
		return compile.OpGt, true
	}
	return 0, false
}
