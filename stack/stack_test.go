// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stack

import "testing"

func TestPushPop(t *testing.T) {
	s := New(4)
	s.PushInt(1)
	s.PushFloat(2.5)

	top, err := s.Pop()
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if top.Tag != Float || top.Float() != 2.5 {
		t.Fatalf("got %+v, want Float(2.5)", top)
	}

	top, err = s.Pop()
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if top.Tag != Integer || top.Int() != 1 {
		t.Fatalf("got %+v, want Integer(1)", top)
	}
}

func TestPopUnderflow(t *testing.T) {
	s := New(0)
	if _, err := s.Pop(); err != ErrUnderflow {
		t.Fatalf("got %v, want ErrUnderflow", err)
	}
	if _, err := s.Top(); err != ErrUnderflow {
		t.Fatalf("got %v, want ErrUnderflow", err)
	}
}

func TestReverse(t *testing.T) {
	s := New(3)
	s.PushInt(1)
	s.PushInt(2)
	s.PushInt(3)
	s.Reverse()

	want := []int64{3, 2, 1}
	for i, w := range want {
		if s.Data[i].Int() != w {
			t.Fatalf("Data[%d] = %d, want %d", i, s.Data[i].Int(), w)
		}
	}
}

func TestShiftLeftRight(t *testing.T) {
	s := New(3)
	s.PushInt(1)
	s.PushInt(2)
	s.PushInt(3)

	s.ShiftLeft()
	got := []int64{s.Data[0].Int(), s.Data[1].Int(), s.Data[2].Int()}
	want := []int64{2, 3, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("after ShiftLeft: got %v, want %v", got, want)
		}
	}

	s.ShiftRight()
	got = []int64{s.Data[0].Int(), s.Data[1].Int(), s.Data[2].Int()}
	want = []int64{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("after ShiftRight: got %v, want %v", got, want)
		}
	}
}

func TestSwapRegisterRoundTrip(t *testing.T) {
	s := New(2)
	s.PushInt(42)

	if err := s.SwapRegister(); err != nil {
		t.Fatalf("SwapRegister (store): %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d after register store, want 0", s.Len())
	}

	if err := s.SwapRegister(); err != nil {
		t.Fatalf("SwapRegister (restore): %v", err)
	}
	top, err := s.Top()
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if top.Int() != 42 {
		t.Fatalf("restored value = %d, want 42", top.Int())
	}
}

func TestSwapRegisterEmptyUnderflows(t *testing.T) {
	s := New(1)
	if err := s.SwapRegister(); err != ErrUnderflow {
		t.Fatalf("SwapRegister on empty stack = %v, want ErrUnderflow", err)
	}
}
