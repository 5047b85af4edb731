// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package interp

import (
	"strings"
	"testing"

	"github.com/go-interpreter/fishjit/codebox"
	"github.com/go-interpreter/fishjit/stack"
)

func TestRunPushAndPrint(t *testing.T) {
	cb := codebox.FromLines([]string{"12+n;"})
	st := stack.New(4)
	var out strings.Builder

	err := Run(cb, codebox.State{Row: 0, Col: 0, Dir: codebox.Right}, st, IO{
		Stdout: func(s string) { out.WriteString(s) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.String(); got != "3" {
		t.Fatalf("output = %q, want %q", got, "3")
	}
}

func TestRunFallsBackOnUnterminatedString(t *testing.T) {
	// jit.Compile refuses this trace outright (ErrUnterminatedString);
	// Run must still make progress on the cells before it via the
	// direct-interpretation fallback rather than aborting immediately.
	cb := codebox.FromLines([]string{`1n"hi`})
	st := stack.New(4)
	var out strings.Builder

	err := Run(cb, codebox.State{Row: 0, Col: 0, Dir: codebox.Right}, st, IO{
		Stdout: func(s string) { out.WriteString(s) },
	})
	if err == nil {
		t.Fatalf("Run: want error from the unterminated string, got nil")
	}
	if got := out.String(); got != "1" {
		t.Fatalf("output = %q, want %q (the `1n` before the bad string)", got, "1")
	}
}

func TestRunUnderflow(t *testing.T) {
	cb := codebox.FromLines([]string{"~;"})
	st := stack.New(4)

	err := Run(cb, codebox.State{Row: 0, Col: 0, Dir: codebox.Right}, st, IO{})
	if err == nil {
		t.Fatalf("Run: want underflow error, got nil")
	}
}

func TestStepBinaryFloatPromotion(t *testing.T) {
	st := stack.New(4)
	st.PushInt(1)
	st.PushFloat(2.5)

	if err := stepBinary('+', st); err != nil {
		t.Fatalf("stepBinary: %v", err)
	}
	top, err := st.Top()
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if top.Tag != stack.Float || top.Float() != 3.5 {
		t.Fatalf("got %+v, want Float(3.5)", top)
	}
}

func TestStepBinaryDivisionAlwaysFloat(t *testing.T) {
	st := stack.New(4)
	st.PushInt(4)
	st.PushInt(2)

	if err := stepBinary(',', st); err != nil {
		t.Fatalf("stepBinary: %v", err)
	}
	top, err := st.Top()
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if top.Tag != stack.Float || top.Float() != 2 {
		t.Fatalf("got %+v, want Float(2)", top)
	}
}

func TestStepBinaryNotBinary(t *testing.T) {
	st := stack.New(4)
	if err := stepBinary('n', st); err != errNotBinary {
		t.Fatalf("stepBinary('n') = %v, want errNotBinary", err)
	}
}
