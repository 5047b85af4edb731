// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-interpreter/fishjit/codebox"
	"github.com/go-interpreter/fishjit/interp"
	"github.com/go-interpreter/fishjit/stack"
)

func main() {
	log.SetPrefix("fishjit: ")
	log.SetFlags(0)

	stackSize := flag.Int("stack-size", 64, "initial value-stack capacity")
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	run(os.Stdout, os.Stdin, flag.Arg(0), *stackSize)
}

func run(w io.Writer, r io.Reader, fname string, stackSize int) {
	f, err := os.Open(fname)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	cb, err := codebox.Load(f)
	if err != nil {
		log.Fatalf("could not load codebox: %v", err)
	}

	in := bufio.NewReader(r)
	io := interp.IO{
		Stdout: func(s string) { fmt.Fprint(w, s) },
		Stdin: func() (rune, bool) {
			ch, _, err := in.ReadRune()
			if err != nil {
				return 0, false
			}
			return ch, true
		},
	}

	start := codebox.State{Row: 0, Col: 0, Dir: codebox.Right}
	if err := interp.Run(cb, start, stack.New(stackSize), io); err != nil {
		log.Fatalf("could not run: %v", err)
	}
}
