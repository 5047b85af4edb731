// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import (
	"strings"
	"testing"

	"github.com/go-interpreter/fishjit/codebox"
	"github.com/go-interpreter/fishjit/stack"
)

// runTrace compiles and invokes one trace starting at start, returning
// the native return code and the final IP state.
func runTrace(t *testing.T, cb *codebox.Codebox, start codebox.State, st *stack.Stack, out *strings.Builder) (int64, codebox.State) {
	t.Helper()
	block, err := Compile(cb, start)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer block.Destroy()

	end := start
	var ret int64
	withEnv(&env{cb: cb, stdout: func(s string) { out.WriteString(s) }}, func() {
		ret = block.Invoke(st, &end)
	})
	return ret, end
}

func TestCompilePushAndPrint(t *testing.T) {
	cb := codebox.FromLines([]string{"1n;"})
	st := stack.New(4)
	var out strings.Builder

	ret, end := runTrace(t, cb, codebox.State{Row: 0, Col: 0, Dir: codebox.Right}, st, &out)

	if ret != 0 {
		t.Fatalf("ret = %d, want 0", ret)
	}
	if end.Dir != codebox.Finished {
		t.Fatalf("end.Dir = %v, want Finished", end.Dir)
	}
	if got := out.String(); got != "1" {
		t.Fatalf("output = %q, want %q", got, "1")
	}
	if st.Len() != 0 {
		t.Fatalf("stack.Len() = %d, want 0", st.Len())
	}
}

func TestCompileArithmetic(t *testing.T) {
	cb := codebox.FromLines([]string{"12+n;"})
	st := stack.New(4)
	var out strings.Builder

	ret, end := runTrace(t, cb, codebox.State{Row: 0, Col: 0, Dir: codebox.Right}, st, &out)

	if ret != 0 {
		t.Fatalf("ret = %d, want 0", ret)
	}
	if end.Dir != codebox.Finished {
		t.Fatalf("end.Dir = %v, want Finished", end.Dir)
	}
	if got := out.String(); got != "3" {
		t.Fatalf("output = %q, want %q", got, "3")
	}
}

func TestCompileUnderflowReportsFaultingIP(t *testing.T) {
	cb := codebox.FromLines([]string{"~;"})
	st := stack.New(4)
	var out strings.Builder

	ret, end := runTrace(t, cb, codebox.State{Row: 0, Col: 0, Dir: codebox.Right}, st, &out)

	if ret != 1 {
		t.Fatalf("ret = %d, want 1 (underflow)", ret)
	}
	want := codebox.State{Row: 0, Col: 0, Dir: codebox.Right}
	if end != want {
		t.Fatalf("end = %+v, want %+v (the faulting `~`)", end, want)
	}
}

func TestCompileCycleDetection(t *testing.T) {
	// A single-row grid with Dir=Up: after pushing `1`, Next wraps the
	// row back to itself (height 1), landing back on the exact state
	// the trace started from. The driver must recognize the revisit
	// and stop extending rather than emit an infinite loop, per
	// spec.md §4.4 — the emitted trace pushes `1` exactly once, then
	// reports the revisited state through end_state.
	cb := codebox.FromLines([]string{"1"})
	st := stack.New(4)
	var out strings.Builder

	start := codebox.State{Row: 0, Col: 0, Dir: codebox.Up}
	ret, end := runTrace(t, cb, start, st, &out)

	if ret != 0 {
		t.Fatalf("ret = %d, want 0", ret)
	}
	if end != start {
		t.Fatalf("end = %+v, want %+v (the revisited state)", end, start)
	}
	if st.Len() != 1 {
		t.Fatalf("stack.Len() = %d, want 1", st.Len())
	}
	top, err := st.Top()
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if top.Int() != 1 {
		t.Fatalf("top = %d, want 1", top.Int())
	}
}

func TestCompileFusedSkipZero(t *testing.T) {
	cb := codebox.FromLines([]string{"?1;"})
	block, err := Compile(cb, codebox.State{Row: 0, Col: 0, Dir: codebox.Right})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer block.Destroy()

	st := stack.New(4)
	st.PushInt(0)
	end := codebox.State{Row: 0, Col: 0, Dir: codebox.Right}

	var ret int64
	withEnv(&env{cb: cb}, func() { ret = block.Invoke(st, &end) })

	if ret != 0 {
		t.Fatalf("ret = %d, want 0", ret)
	}
	if end.Dir != codebox.Finished {
		t.Fatalf("end.Dir = %v, want Finished", end.Dir)
	}
	if st.Len() != 0 {
		t.Fatalf("stack.Len() = %d, want 0 (the `1` must have been skipped)", st.Len())
	}
}

func TestCompileFusedSkipNonzero(t *testing.T) {
	cb := codebox.FromLines([]string{"?1;"})
	block, err := Compile(cb, codebox.State{Row: 0, Col: 0, Dir: codebox.Right})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	defer block.Destroy()

	st := stack.New(4)
	st.PushInt(5)
	end := codebox.State{Row: 0, Col: 0, Dir: codebox.Right}

	var ret int64
	withEnv(&env{cb: cb}, func() { ret = block.Invoke(st, &end) })

	if ret != 0 {
		t.Fatalf("ret = %d, want 0", ret)
	}
	if end.Dir != codebox.Finished {
		t.Fatalf("end.Dir = %v, want Finished", end.Dir)
	}
	if st.Len() != 1 {
		t.Fatalf("stack.Len() = %d, want 1 (the `1` must have run)", st.Len())
	}
	top, err := st.Top()
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if top.Int() != 1 {
		t.Fatalf("top = %d, want 1", top.Int())
	}
}

func TestCompileUnterminatedString(t *testing.T) {
	cb := codebox.FromLines([]string{`"hi`})
	_, err := Compile(cb, codebox.State{Row: 0, Col: 0, Dir: codebox.Right})
	if err == nil {
		t.Fatalf("Compile: want unterminated string error, got nil")
	}
}

func TestCompileUnknownOpcode(t *testing.T) {
	cb := codebox.FromLines([]string{"Z;"})
	_, err := Compile(cb, codebox.State{Row: 0, Col: 0, Dir: codebox.Right})
	if err == nil {
		t.Fatalf("Compile: want unknown opcode error, got nil")
	}
}
