package root

import (
	"context"
	"flag"

	"github.com/flowseam/flowseam/cli"
	"github.com/flowseam/flowseam/cli/logflags"
	"github.com/mccanne/charm"
	"go.uber.org/zap"
)

var Flowseam = &charm.Spec{
	Name:  "flowseam",
	Usage: "flowseam <command> [options] [arguments...]",
	Short: "sort flow records and stitch split flows back together",
	Long: `
flowseam works on files of fixed-size network flow records.  Its main
command, combine, sorts records and joins flows that a generator split
across timeouts back into single records.  The cat, gen, and info
commands concatenate, synthesize, and describe record files.`,
	New: New,
}

type Command struct {
	charm.Command
	cli.Flags
	LogFlags logflags.Flags

	logger *zap.Logger
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{}
	c.SetFlags(f)
	c.LogFlags.SetFlags(f)
	return c, nil
}

// Init runs the shared flag initialization and opens the logger the
// subcommands inherit.
func (c *Command) Init(all ...cli.Initializer) (context.Context, context.CancelFunc, error) {
	ctx, cleanup, err := c.Flags.Init(all...)
	if err != nil {
		return nil, nil, err
	}
	logger, err := c.LogFlags.Open()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	c.logger = logger
	return ctx, func() {
		_ = logger.Sync()
		cleanup()
	}, nil
}

func (c *Command) Logger() *zap.Logger {
	return c.logger
}

func (c *Command) Run(args []string) error {
	_, cancel, err := c.Init()
	if err != nil {
		return err
	}
	defer cancel()
	if len(args) == 0 {
		return Flowseam.Exec(c, []string{"help"})
	}
	return charm.ErrNoRun
}
