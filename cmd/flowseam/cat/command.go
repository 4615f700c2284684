package cat

import (
	"flag"

	"github.com/flowseam/flowseam/cli"
	"github.com/flowseam/flowseam/cli/outputflags"
	"github.com/flowseam/flowseam/cmd/flowseam/root"
	"github.com/flowseam/flowseam/recio"
	"github.com/mccanne/charm"
)

var Cmd = &charm.Spec{
	Name:  "cat",
	Usage: "cat [options] [file ...]",
	Short: "concatenate record files",
	Long: `
The cat command concatenates record files into one output.  Bodies are
re-encoded on the way through, so cat also converts between compressed
and uncompressed files.`,
	New: New,
}

type Command struct {
	*root.Command
	outputFlags outputflags.Flags
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command)}
	c.outputFlags.SetFlags(f)
	return c, nil
}

func (c *Command) Run(args []string) error {
	ctx, cleanup, err := c.Init(&c.outputFlags)
	if err != nil {
		return err
	}
	defer cleanup()
	readers, err := cli.OpenFileReaders(args)
	if err != nil {
		return err
	}
	defer recio.CloseReaders(readers)
	inputs := make([]recio.Reader, len(readers))
	for i, r := range readers {
		inputs[i] = r
	}
	out, err := c.outputFlags.Open()
	if err != nil {
		return err
	}
	err = recio.CopyWithContext(ctx, out, recio.ConcatReader(inputs...))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return err
}
