// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stack implements the typed value-stack runtime the JIT's
// emitted code manipulates directly through a handful of fixed
// registers. It is an external collaborator of the JIT core (spec.md
// §6): the JIT treats it as an opaque service with the contract
// documented here.
package stack

import (
	"errors"
	"math"
)

// Tag distinguishes the two payload interpretations a Cell can hold.
type Tag uint8

const (
	// Integer marks a Cell's payload as a signed 64-bit integer.
	Integer Tag = iota
	// Float marks a Cell's payload as an IEEE-754 double.
	Float
)

// Cell is a single typed stack entry: an 8-byte payload plus a 1-byte
// tag, matching the 9-byte runtime layout spec.md §3 documents.
type Cell struct {
	Payload uint64
	Tag     Tag
}

// IntCell returns a Cell tagged Integer holding v.
func IntCell(v int64) Cell { return Cell{Payload: uint64(v), Tag: Integer} }

// FloatCell returns a Cell tagged Float holding v.
func FloatCell(v float64) Cell { return Cell{Payload: math.Float64bits(v), Tag: Float} }

// Int returns the cell's payload reinterpreted as a signed integer.
func (c Cell) Int() int64 { return int64(c.Payload) }

// Float returns the cell's payload reinterpreted as a float64.
func (c Cell) Float() float64 { return math.Float64frombits(c.Payload) }

// ErrUnderflow is returned (and, in emitted code, signalled through the
// r_ret ABI register instead) when an operation needs more items than
// the stack holds.
var ErrUnderflow = errors.New("stack: underflow")

// Stack is the runtime value stack; JIT-emitted code manipulates it
// directly through the r_stacktop/r_stacknum/r_stack register triple,
// treating it as an opaque descriptor. Register is the single scratch
// cell opcode `&` moves values through.
type Stack struct {
	Data         []Cell
	Register     Cell
	registerFull bool
}

// New returns an empty stack with room for n cells before it must grow.
func New(n int) *Stack {
	return &Stack{Data: make([]Cell, 0, n)}
}

// Len returns the current item count, the runtime's r_stacknum.
func (s *Stack) Len() int { return len(s.Data) }

// Push appends a cell to the top of the stack.
func (s *Stack) Push(c Cell) { s.Data = append(s.Data, c) }

// PushInt is a convenience wrapper around Push(IntCell(v)).
func (s *Stack) PushInt(v int64) { s.Push(IntCell(v)) }

// PushFloat is a convenience wrapper around Push(FloatCell(v)).
func (s *Stack) PushFloat(v float64) { s.Push(FloatCell(v)) }

// Pop removes and returns the top cell. It returns ErrUnderflow if the
// stack is empty.
func (s *Stack) Pop() (Cell, error) {
	if len(s.Data) == 0 {
		return Cell{}, ErrUnderflow
	}
	c := s.Data[len(s.Data)-1]
	s.Data = s.Data[:len(s.Data)-1]
	return c, nil
}

// Top returns the top cell without removing it. It returns ErrUnderflow
// if the stack is empty.
func (s *Stack) Top() (Cell, error) {
	if len(s.Data) == 0 {
		return Cell{}, ErrUnderflow
	}
	return s.Data[len(s.Data)-1], nil
}

// Reverse reverses the entire stack in place; backs opcode `r` in the
// single-step interpreter. Emitted code does not call it: compiled `r`
// goes through the jit package's own rtReverse helper.
func (s *Stack) Reverse() {
	for i, j := 0, len(s.Data)-1; i < j; i, j = i+1, j-1 {
		s.Data[i], s.Data[j] = s.Data[j], s.Data[i]
	}
}

// ShiftLeft rotates the stack one position to the left (the bottom
// item moves to the top); backs opcode `{` in the single-step
// interpreter (compiled `{` uses the jit package's rtShiftLeft).
func (s *Stack) ShiftLeft() {
	if len(s.Data) < 2 {
		return
	}
	first := s.Data[0]
	copy(s.Data, s.Data[1:])
	s.Data[len(s.Data)-1] = first
}

// ShiftRight rotates the stack one position to the right (the top item
// moves to the bottom); backs opcode `}` in the single-step
// interpreter (compiled `}` uses the jit package's rtShiftRight).
func (s *Stack) ShiftRight() {
	if len(s.Data) < 2 {
		return
	}
	last := s.Data[len(s.Data)-1]
	copy(s.Data[1:], s.Data[:len(s.Data)-1])
	s.Data[0] = last
}

// SwapRegister backs opcode `&`: the first call moves the top of stack
// into the (initially empty) register; the next call pushes the
// register's value back onto the stack and empties the register again.
// Calling it twice in a row is therefore a no-op, matching the
// reference interpreter.
func (s *Stack) SwapRegister() error {
	if s.registerFull {
		s.Push(s.Register)
		s.registerFull = false
		return nil
	}
	top, err := s.Pop()
	if err != nil {
		return err
	}
	s.Register = top
	s.registerFull = true
	return nil
}
