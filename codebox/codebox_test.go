// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codebox

import (
	"strings"
	"testing"
)

func TestLoadPadsShortRows(t *testing.T) {
	cb, err := Load(strings.NewReader("ab\nc\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cb.Width() != 2 {
		t.Fatalf("Width() = %d, want 2", cb.Width())
	}
	if got := cb.Get(1, 1); got != ' ' {
		t.Fatalf("Get(1,1) = %q, want ' '", got)
	}
}

func TestLoadEmpty(t *testing.T) {
	if _, err := Load(strings.NewReader("")); err != ErrEmpty {
		t.Fatalf("Load(\"\") = %v, want ErrEmpty", err)
	}
}

func TestNextWraps(t *testing.T) {
	cb := FromLines([]string{"ab", "cd"})

	s := State{Row: 0, Col: 1, Dir: Right}
	cb.Next(&s)
	if s.Col != 0 {
		t.Fatalf("Col = %d after wrapping Right, want 0", s.Col)
	}

	s = State{Row: 0, Col: 0, Dir: Up}
	cb.Next(&s)
	if s.Row != 1 {
		t.Fatalf("Row = %d after wrapping Up, want 1", s.Row)
	}
}

func TestPeekNextDoesNotMutate(t *testing.T) {
	cb := FromLines([]string{"ab"})
	s := State{Row: 0, Col: 0, Dir: Right}
	if got := cb.PeekNext(s); got != 'b' {
		t.Fatalf("PeekNext = %q, want 'b'", got)
	}
	if s.Col != 0 {
		t.Fatalf("PeekNext mutated s: Col = %d, want 0", s.Col)
	}
}

func TestReadString(t *testing.T) {
	cb := FromLines([]string{`"hi";`})
	s := State{Row: 0, Col: 0, Dir: Right}
	values, ok := cb.ReadString(&s, '"')
	if !ok {
		t.Fatalf("ReadString: unterminated")
	}
	want := []int64{'h', 'i'}
	if len(values) != len(want) {
		t.Fatalf("values = %v, want %v", values, want)
	}
	for i := range want {
		if values[i] != want[i] {
			t.Fatalf("values = %v, want %v", values, want)
		}
	}
	if got := cb.Get(s.Row, s.Col); got != '"' {
		t.Fatalf("cursor ended at %q, want closing quote", got)
	}
}

func TestReadStringUnterminated(t *testing.T) {
	cb := FromLines([]string{`"hi`})
	s := State{Row: 0, Col: 0, Dir: Right}
	if _, ok := cb.ReadString(&s, '"'); ok {
		t.Fatalf("ReadString: want unterminated")
	}
}

func TestSet(t *testing.T) {
	cb := FromLines([]string{"ab"})
	cb.Set(0, 1, 'z')
	if got := cb.Get(0, 1); got != 'z' {
		t.Fatalf("Get(0,1) = %q after Set, want 'z'", got)
	}
}
