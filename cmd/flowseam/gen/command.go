package gen

import (
	"errors"
	"flag"

	"github.com/flowseam/flowseam/cli/outputflags"
	"github.com/flowseam/flowseam/cmd/flowseam/root"
	"github.com/flowseam/flowseam/recio"
	"github.com/mccanne/charm"
)

var Cmd = &charm.Spec{
	Name:  "gen",
	Usage: "gen [options]",
	Short: "generate pseudo-random flow records",
	Long: `
The gen command writes a stream of pseudo-random flow records for
demos and testing.  A fraction of the flows, set by -split, are broken
into timed-out fragments that the combine command can stitch back
together.  The same seed always produces the same file.`,
	New: New,
}

type Command struct {
	*root.Command
	outputFlags outputflags.Flags
	flows       int
	seed        int64
	split       float64
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command)}
	c.outputFlags.SetFlags(f)
	f.IntVar(&c.flows, "n", 1000, "number of flows to generate")
	f.Int64Var(&c.seed, "seed", 1, "random seed")
	f.Float64Var(&c.split, "split", 0.1, "fraction of flows split into timed-out fragments")
	return c, nil
}

func (c *Command) Run(args []string) error {
	ctx, cleanup, err := c.Init(&c.outputFlags)
	if err != nil {
		return err
	}
	defer cleanup()
	if len(args) > 0 {
		return errors.New("gen takes no arguments")
	}
	if c.split < 0 || c.split > 1 {
		return errors.New("-split must be between 0 and 1")
	}
	recs := newGenerator(c.seed, c.split).generate(c.flows)
	out, err := c.outputFlags.Open()
	if err != nil {
		return err
	}
	err = recio.CopyWithContext(ctx, out, recio.NewArray(recs))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return err
}
