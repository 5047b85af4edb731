// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRun(t *testing.T) {
	out := new(bytes.Buffer)
	run(out, strings.NewReader(""), "testdata/hello.fish", 16)

	if got, want := out.String(), "3"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}
