// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package interp is the outer driver the JIT core treats as an
// external collaborator (spec.md §6): it repeatedly asks jit.Compile
// for a trace, invokes whatever block comes back, and falls back to
// interpreting a single instruction directly whenever Compile can't
// produce one — a syntax error in the source doesn't have to be a
// fatal error for the whole run, only for tracing past that cell.
package interp

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-interpreter/fishjit/codebox"
	"github.com/go-interpreter/fishjit/jit"
	"github.com/go-interpreter/fishjit/stack"
)

// IO bundles the host streams the `o`/`n`/`i` opcodes need, both for
// JIT-compiled traces and for the single-step fallback below.
type IO struct {
	Stdout func(string)
	Stdin  func() (rune, bool)
}

// ErrRuntimeUnderflow is returned by Run when either the JIT or the
// fallback interpreter pops from an empty stack.
var ErrRuntimeUnderflow = errors.New("interp: stack underflow")

// Run drives cb from start until the program reaches `;` (or wraps
// back into a pure cycle with no further observable effects, at which
// point it would run forever — matching spec.md §8 scenario 6's own
// acknowledgment that this case loops forever in a real interpreter).
// A Compile error is not returned: Run single-steps one instruction
// instead. It returns the first error from a compiled trace (runtime
// underflow) or from a single step.
func Run(cb *codebox.Codebox, start codebox.State, st *stack.Stack, io IO) error {
	s := start
	for s.Dir != codebox.Finished {
		block, err := jit.Compile(cb, s)
		if err != nil {
			if err := step(cb, st, &s, io); err != nil {
				return err
			}
			continue
		}

		ret := block.Invoke(st, &s)
		block.Destroy()
		if ret != 0 {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, s)
		}
	}
	return nil
}

// step executes exactly one ><> instruction directly against st,
// advancing s in place. It is the fallback Run reaches for when
// jit.Compile refuses the trace starting at s (an unterminated string
// literal, or an opcode the JIT backend doesn't implement, anywhere
// along that trace).
func step(cb *codebox.Codebox, st *stack.Stack, s *codebox.State, io IO) error {
	op := cb.Get(s.Row, s.Col)

	switch {
	case op == ' ':
		cb.Next(s)
		return nil

	case isMirrorOp(op):
		s.Dir = mirrorOp(op, s.Dir)
		cb.Next(s)
		return nil

	case op == '?':
		v, err := st.Pop()
		if err != nil {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, *s)
		}
		inverted := false
		for cb.PeekNext(*s) == '!' {
			cb.Next(s)
			inverted = !inverted
		}
		take := isZero(v)
		if inverted {
			take = !take
		}
		if take {
			cb.Next(s)
		}
		cb.Next(s)
		return nil

	case op == '.':
		col, err := st.Pop()
		if err != nil {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, *s)
		}
		row, err := st.Pop()
		if err != nil {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, *s)
		}
		s.Row, s.Col = int(row.Int()), int(col.Int())
		return nil

	case op == ';':
		s.Dir = codebox.Finished
		return nil

	case op == 'p':
		y, err := st.Pop()
		if err != nil {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, *s)
		}
		x, err := st.Pop()
		if err != nil {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, *s)
		}
		v, err := st.Pop()
		if err != nil {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, *s)
		}
		cb.Set(int(y.Int()), int(x.Int()), rune(v.Int()))
		cb.Next(s)
		return nil
	}

	if d, ok := directionMutatorOp(op); ok {
		s.Dir = d
		cb.Next(s)
		return nil
	}

	if op == '"' || op == '\'' {
		values, ok := cb.ReadString(s, op)
		if !ok {
			return fmt.Errorf("interp: unterminated string literal at %v", *s)
		}
		for _, v := range values {
			st.PushInt(v)
		}
		cb.Next(s)
		return nil
	}

	if v, ok := literalOp(op); ok {
		st.PushInt(v)
		cb.Next(s)
		return nil
	}

	switch err := stepBinary(op, st); err {
	case nil:
		cb.Next(s)
		return nil
	case errNotBinary:
		// Not one of `+ - * , % = ( )`; fall through to the remaining
		// opcodes below.
	default:
		return fmt.Errorf("%w at %v", err, *s)
	}

	switch op {
	case ':':
		top, err := st.Top()
		if err != nil {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, *s)
		}
		st.Push(top)
	case '$':
		b, err := st.Pop()
		if err != nil {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, *s)
		}
		a, err := st.Pop()
		if err != nil {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, *s)
		}
		st.Push(b)
		st.Push(a)
	case '@':
		c, err := st.Pop()
		if err != nil {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, *s)
		}
		b, err := st.Pop()
		if err != nil {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, *s)
		}
		a, err := st.Pop()
		if err != nil {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, *s)
		}
		st.Push(c)
		st.Push(a)
		st.Push(b)
	case '~':
		if _, err := st.Pop(); err != nil {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, *s)
		}
	case 'l':
		st.PushInt(int64(st.Len()))
	case '&':
		if err := st.SwapRegister(); err != nil {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, *s)
		}
	case 'r':
		st.Reverse()
	case '{':
		st.ShiftLeft()
	case '}':
		st.ShiftRight()
	case 'o':
		v, err := st.Pop()
		if err != nil {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, *s)
		}
		if io.Stdout != nil {
			io.Stdout(string(rune(v.Int())))
		}
	case 'n':
		v, err := st.Pop()
		if err != nil {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, *s)
		}
		if io.Stdout != nil {
			if v.Tag == stack.Float {
				io.Stdout(fmt.Sprintf("%.16g", v.Float()))
			} else {
				io.Stdout(fmt.Sprintf("%d", v.Int()))
			}
		}
	case 'i':
		if io.Stdin == nil {
			st.PushInt(-1)
			break
		}
		r, ok := io.Stdin()
		if !ok {
			st.PushInt(-1)
			break
		}
		st.PushInt(int64(r))
	case 'g':
		y, err := st.Pop()
		if err != nil {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, *s)
		}
		x, err := st.Pop()
		if err != nil {
			return fmt.Errorf("%w at %v", ErrRuntimeUnderflow, *s)
		}
		st.PushInt(int64(cb.Get(int(y.Int()), int(x.Int()))))
	default:
		return fmt.Errorf("interp: unknown opcode %q at %v", op, *s)
	}
	cb.Next(s)
	return nil
}

func isZero(c stack.Cell) bool {
	if c.Tag == stack.Float {
		return c.Float() == 0
	}
	return c.Int() == 0
}

var errNotBinary = errors.New("interp: not a binary opcode")

// stepBinary implements the pop-two/compute/push-one opcodes `+ - * ,
// % = ( )`, matching the promotion rules the JIT backend documents in
// spec.md §4.3: a Float tag on either operand promotes the result,
// and `,` always yields a Float.
func stepBinary(op rune, st *stack.Stack) error {
	switch op {
	case '+', '-', '*', ',', '%', '=', '(', ')':
	default:
		return errNotBinary
	}

	b, err := st.Pop()
	if err != nil {
		return ErrRuntimeUnderflow
	}
	a, err := st.Pop()
	if err != nil {
		return ErrRuntimeUnderflow
	}

	switch op {
	case '=':
		st.PushInt(boolInt(numericEqual(a, b)))
		return nil
	case '(':
		st.PushInt(boolInt(numericLess(a, b)))
		return nil
	case ')':
		st.PushInt(boolInt(numericLess(b, a)))
		return nil
	}

	if op == ',' {
		st.PushFloat(asFloat(a) / asFloat(b))
		return nil
	}

	if a.Tag == stack.Float || b.Tag == stack.Float {
		af, bf := asFloat(a), asFloat(b)
		switch op {
		case '+':
			st.PushFloat(af + bf)
		case '-':
			st.PushFloat(af - bf)
		case '*':
			st.PushFloat(af * bf)
		case '%':
			st.PushFloat(math.Mod(af, bf))
		}
		return nil
	}

	ai, bi := a.Int(), b.Int()
	switch op {
	case '+':
		st.PushInt(ai + bi)
	case '-':
		st.PushInt(ai - bi)
	case '*':
		st.PushInt(ai * bi)
	case '%':
		st.PushInt(ai % bi)
	}
	return nil
}

func asFloat(c stack.Cell) float64 {
	if c.Tag == stack.Float {
		return c.Float()
	}
	return float64(c.Int())
}

func numericEqual(a, b stack.Cell) bool {
	if a.Tag == stack.Float || b.Tag == stack.Float {
		return asFloat(a) == asFloat(b)
	}
	return a.Int() == b.Int()
}

func numericLess(a, b stack.Cell) bool {
	if a.Tag == stack.Float || b.Tag == stack.Float {
		return asFloat(a) < asFloat(b)
	}
	return a.Int() < b.Int()
}

func boolInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func isMirrorOp(op rune) bool {
	switch op {
	case '/', '\\', '|', '_', '#':
		return true
	}
	return false
}

func mirrorOp(op rune, d codebox.Direction) codebox.Direction {
	switch op {
	case '/':
		switch d {
		case codebox.Right:
			return codebox.Up
		case codebox.Left:
			return codebox.Down
		case codebox.Up:
			return codebox.Right
		case codebox.Down:
			return codebox.Left
		}
	case '\\':
		switch d {
		case codebox.Right:
			return codebox.Down
		case codebox.Left:
			return codebox.Up
		case codebox.Up:
			return codebox.Left
		case codebox.Down:
			return codebox.Right
		}
	case '|':
		switch d {
		case codebox.Right:
			return codebox.Left
		case codebox.Left:
			return codebox.Right
		}
	case '_':
		switch d {
		case codebox.Up:
			return codebox.Down
		case codebox.Down:
			return codebox.Up
		}
	case '#':
		switch d {
		case codebox.Right:
			return codebox.Left
		case codebox.Left:
			return codebox.Right
		case codebox.Up:
			return codebox.Down
		case codebox.Down:
			return codebox.Up
		}
	}
	return d
}

func directionMutatorOp(op rune) (codebox.Direction, bool) {
	switch op {
	case '>':
		return codebox.Right, true
	case '<':
		return codebox.Left, true
	case '^':
		return codebox.Up, true
	case 'v':
		return codebox.Down, true
	}
	return 0, false
}

func literalOp(op rune) (int64, bool) {
	switch {
	case op >= '0' && op <= '9':
		return int64(op - '0'), true
	case op >= 'a' && op <= 'f':
		return int64(op-'a') + 10, true
	}
	return 0, false
}
