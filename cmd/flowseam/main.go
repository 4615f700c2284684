package main

import (
	"fmt"
	"os"

	"github.com/flowseam/flowseam/cmd/flowseam/cat"
	"github.com/flowseam/flowseam/cmd/flowseam/combine"
	"github.com/flowseam/flowseam/cmd/flowseam/gen"
	"github.com/flowseam/flowseam/cmd/flowseam/info"
	"github.com/flowseam/flowseam/cmd/flowseam/root"
	"github.com/mccanne/charm"
)

func main() {
	root.Flowseam.Add(combine.Cmd)
	root.Flowseam.Add(cat.Cmd)
	root.Flowseam.Add(gen.Cmd)
	root.Flowseam.Add(info.Cmd)
	root.Flowseam.Add(charm.Help)
	if _, err := root.Flowseam.ExecRoot(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
