// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import (
	"testing"

	"github.com/go-interpreter/fishjit/codebox"
)

func TestMirrorTable(t *testing.T) {
	cases := []struct {
		op   rune
		in   codebox.Direction
		want codebox.Direction
	}{
		{'/', codebox.Right, codebox.Up},
		{'/', codebox.Down, codebox.Left},
		{'\\', codebox.Right, codebox.Down},
		{'\\', codebox.Up, codebox.Left},
		{'|', codebox.Right, codebox.Left},
		{'|', codebox.Up, codebox.Up},
		{'_', codebox.Down, codebox.Up},
		{'_', codebox.Right, codebox.Right},
		{'#', codebox.Right, codebox.Left},
		{'#', codebox.Up, codebox.Down},
	}
	for _, c := range cases {
		if got := mirror(c.op, c.in); got != c.want {
			t.Errorf("mirror(%q, %v) = %v, want %v", c.op, c.in, got, c.want)
		}
	}
}

func TestIsSimpleExcludesPoke(t *testing.T) {
	if isSimple('p') {
		t.Fatalf("isSimple('p') = true, want false")
	}
	for _, op := range "0123456789abcdef+-*,%=():~$@onig;" {
		if !isSimple(op) {
			t.Errorf("isSimple(%q) = false, want true", op)
		}
	}
}

func TestDirectionMutator(t *testing.T) {
	cases := map[rune]codebox.Direction{
		'>': codebox.Right,
		'<': codebox.Left,
		'^': codebox.Up,
		'v': codebox.Down,
	}
	for op, want := range cases {
		got, ok := directionMutator(op)
		if !ok || got != want {
			t.Errorf("directionMutator(%q) = (%v, %v), want (%v, true)", op, got, ok, want)
		}
	}
	if _, ok := directionMutator('n'); ok {
		t.Fatalf("directionMutator('n') ok = true, want false")
	}
}

func TestLiteralValue(t *testing.T) {
	cases := map[rune]int64{
		'0': 0, '9': 9, 'a': 10, 'f': 15,
	}
	for op, want := range cases {
		got, ok := literalValue(op)
		if !ok || got != want {
			t.Errorf("literalValue(%q) = (%d, %v), want (%d, true)", op, got, ok, want)
		}
	}
	if _, ok := literalValue('g'); ok {
		t.Fatalf("literalValue('g') ok = true, want false")
	}
}
