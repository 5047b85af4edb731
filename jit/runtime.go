// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import (
	"fmt"
	"math"
	"math/rand"
	"unsafe"

	"github.com/go-interpreter/fishjit/codebox"
	"github.com/go-interpreter/fishjit/jit/internal/compile"
)

// env bundles the collaborators emitted code's foreign calls need
// access to: the codebox for `g`/`p`, and the host's I/O streams for
// `o`/`n`/`i`. The JIT is single-threaded with no internal locking per
// spec.md §5, so a single package-level pointer swapped in immediately
// before each Invoke is sufficient and avoids threading an extra
// context argument through every emitted CALL.
type env struct {
	cb     *codebox.Codebox
	stdout func(string)
	stdin  func() (rune, bool)
}

var currentEnv *env

// withEnv installs e as the active environment for the duration of fn,
// restoring the previous one afterwards.
func withEnv(e *env, fn func()) {
	prev := currentEnv
	currentEnv = e
	defer func() { currentEnv = prev }()
	fn()
}

// The functions below are the concrete "runtime helpers" spec.md §6
// names (fish_reverse_stack, fish_shift_left, fish_shift_right, plus
// printf/getchar/rand stand-ins). They are plain package-level
// functions, not closures, and the state they need comes from
// currentEnv. Emitted code reaches them only through the trampXxx
// functions below, whose addresses jit/internal/compile/ioops.go's
// funcAddr takes via reflect.Value.Pointer().

func rtPrintChar(v int64) {
	if currentEnv == nil {
		return
	}
	currentEnv.stdout(string(rune(v)))
}

func rtPrintInt(v int64) {
	if currentEnv == nil {
		return
	}
	currentEnv.stdout(fmt.Sprintf("%d", v))
}

// rtPrintFloat receives the raw bits of a float64 in an integer
// register (the emitted call site never constructs an xmm argument for
// this path; see ioops.go's EmitPrintNumber) and reinterprets them here.
func rtPrintFloat(bits int64) {
	if currentEnv == nil {
		return
	}
	currentEnv.stdout(fmt.Sprintf("%.16g", math.Float64frombits(uint64(bits))))
}

func rtReadChar() int64 {
	if currentEnv == nil {
		return -1
	}
	r, ok := currentEnv.stdin()
	if !ok {
		return -1
	}
	return int64(r)
}

func rtPeek(x, y int64) int64 {
	if currentEnv == nil {
		return 0
	}
	return int64(currentEnv.cb.Get(int(y), int(x)))
}

func rtPoke(v, x, y int64) {
	if currentEnv == nil {
		return
	}
	currentEnv.cb.Set(int(y), int(x), rune(v))
}

func rtRand() int64 {
	return int64(rand.Uint32())
}

func rtReverse(s unsafe.Pointer) {
	cells := abiCells(s)
	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}
}

func rtShiftLeft(s unsafe.Pointer) {
	cells := abiCells(s)
	if len(cells) < 2 {
		return
	}
	first := cells[0]
	copy(cells, cells[1:])
	cells[len(cells)-1] = first
}

func rtShiftRight(s unsafe.Pointer) {
	cells := abiCells(s)
	if len(cells) < 2 {
		return
	}
	last := cells[len(cells)-1]
	copy(cells[1:], cells[:len(cells)-1])
	cells[0] = last
}

// registerCell is the single scratch slot `&` moves values through at
// the native-call boundary; guarded by the same single-threaded
// assumption as currentEnv.
var (
	registerCell     abiCell
	registerCellFull bool
)

func rtSwapRegister(s unsafe.Pointer) {
	st := abiStackOf(s)
	if registerCellFull {
		if st.Num >= st.Cap {
			return
		}
		*abiCellAt(st, st.Num) = registerCell
		st.Num++
		registerCellFull = false
		return
	}
	if st.Num == 0 {
		return
	}
	st.Num--
	registerCell = *abiCellAt(st, st.Num)
	registerCellFull = true
}

// abiCellAt returns a pointer to the i'th cell of the ABI stack's
// backing array, addressed directly off Data so writes land in the
// buffer the native code's regStackTop/regStackPtr registers share,
// rather than through a Go slice header that could reallocate.
func abiCellAt(st *compile.AbiStack, i int64) *abiCell {
	return (*abiCell)(unsafe.Pointer(uintptr(st.Data) + uintptr(i)*unsafe.Sizeof(abiCell{})))
}

// abiCell mirrors the 16-byte payload+tag layout compile.CellSize
// describes, giving Go code a typed view over the raw ABI bytes.
type abiCell struct {
	Payload uint64
	Tag     uint64
}

func abiStackOf(p unsafe.Pointer) *compile.AbiStack {
	return (*compile.AbiStack)(p)
}

// abiCells returns a Go slice viewing the live cells of the ABI stack
// descriptor at p, based at Data with length Num.
func abiCells(p unsafe.Pointer) []abiCell {
	st := abiStackOf(p)
	if st.Num == 0 {
		return nil
	}
	return unsafe.Slice((*abiCell)(st.Data), int(st.Num))
}

// The trampXxx functions below are the only addresses JIT-emitted code
// may CALL into. Go does not guarantee any particular register
// assignment for a compiler-generated function — the rtXxx functions
// above are ordinary Go code and the compiler is free to place their
// arguments however it likes, a contract that famously changed from
// stack-only to register-based between Go 1.16 and 1.17. A hand-written
// assembly function declared with no Go body, by contrast, always uses
// the classic stack-argument ABI0 convention, which is the one calling
// convention Go promises never to change out from under existing
// assembly. Each trampoline's body, in runtime_amd64.s, does nothing
// but forward its stack arguments into the matching rtXxx call; emitted
// code talks only to these, never to rtXxx directly (see
// jit/internal/compile/ioops.go's emitCallAbs).
func trampPrintChar(v int64)
func trampPrintInt(v int64)
func trampPrintFloat(bits int64)
func trampReadChar() int64
func trampPeek(x, y int64) int64
func trampPoke(v, x, y int64)
func trampRand() int64
func trampReverse(s unsafe.Pointer)
func trampShiftLeft(s unsafe.Pointer)
func trampShiftRight(s unsafe.Pointer)
func trampSwapRegister(s unsafe.Pointer)
