// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import "github.com/go-interpreter/fishjit/codebox"

// simpleOpcodes is the whitelist spec.md §4.3 step 4 describes: opcodes
// the JIT can safely emit in-line immediately after a fused `?` test,
// because their effect is identical whether run under a predicate or
// by the interpreter after a bailout. `p` (spec.md §9's open question,
// resolved in SPEC_FULL.md §5) is deliberately NOT in this set: a
// codebox write can retroactively change the meaning of cells still
// ahead in the trace, so it is never eligible for fusion here even
// though the original source's whitelist string includes it.
var simpleOpcodes = map[rune]bool{}

func init() {
	for _, r := range "0123456789abcdef+-*,%=():~$@onigp;" {
		if r == 'p' {
			continue
		}
		simpleOpcodes[r] = true
	}
}

// isSimple reports whether op is safe to fuse in-line after `?`.
func isSimple(op rune) bool { return simpleOpcodes[op] }

// mirror applies the reflection table for `/ \ | _ #` to a direction.
func mirror(op rune, d codebox.Direction) codebox.Direction {
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

// isMirror reports whether op is one of the direction-reflection opcodes.
func isMirror(op rune) bool {
	switch op {
	case '/', '\\', '|', '_', '#':
		return true
	}
	return false
}

// directionMutator maps `> < ^ v` to the direction they set; ok is
// false for any other opcode.
func directionMutator(op rune) (codebox.Direction, bool) {
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

// literalValue returns the integer value of a literal-push opcode
// (`0`-`9`, `a`-`f`) and whether op is such an opcode.
func literalValue(op rune) (int64, bool) {
	switch {
	case op >= '0' && op <= '9':
		return int64(op - '0'), true
	case op >= 'a' && op <= 'f':
		return int64(op-'a') + 10, true
	}
	return 0, false
}

// isStringDelim reports whether op opens/closes a string literal.
func isStringDelim(op rune) bool { return op == '"' || op == '\'' }
