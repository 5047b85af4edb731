// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build appengine
// +build appengine

package compile

import "errors"

// ErrNativeUnsupported is returned by MMapAllocator on platforms that
// forbid mapping executable memory, mirroring the teacher's
// native_compile_nogae.go / appengine split.
var ErrNativeUnsupported = errors.New("compile: native code generation unsupported on this platform")

// MMapAllocator is a stub on appengine, where processes cannot create
// executable mappings; callers should fall back to direct
// interpretation, exactly as spec.md §7 allows.
type MMapAllocator struct{}

func (a *MMapAllocator) AllocateExec(asm []byte) (NativeCodeUnit, error) {
	return nil, ErrNativeUnsupported
}

func (a *MMapAllocator) Close() error { return nil }
