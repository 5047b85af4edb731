// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import (
	"errors"
	"fmt"

	"github.com/go-interpreter/fishjit/codebox"
)

// Sentinel compile-time failure kinds (spec.md §7/SPEC_FULL.md §9).
// Runtime stack underflow is never one of these: it surfaces as
// Block.Invoke's return code, not a Go error, since the native call
// boundary has no channel for one.
var (
	ErrUnknownOpcode      = errors.New("jit: unknown opcode")
	ErrUnterminatedString = errors.New("jit: unterminated string literal")
	ErrAllocationFailed   = errors.New("jit: executable memory allocation failed")
	ErrAssemblerFailed    = errors.New("jit: assembler failed")
)

// opcodeError reports an unknown-opcode failure together with the IP
// state where it was encountered, matching the named-error-type idiom
// exec.InvalidFunctionIndexError uses for parameterized failures.
type opcodeError struct {
	state codebox.State
	op    rune
}

func (e *opcodeError) Error() string {
	return fmt.Sprintf("jit: unknown opcode %q at %v", e.op, e.state)
}

func (e *opcodeError) Unwrap() error { return ErrUnknownOpcode }
