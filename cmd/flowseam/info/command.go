package info

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/flowseam/flowseam/cmd/flowseam/root"
	"github.com/flowseam/flowseam/flowrec"
	"github.com/flowseam/flowseam/pkg/plural"
	"github.com/flowseam/flowseam/recio/sfio"
	"github.com/mccanne/charm"
)

var Cmd = &charm.Spec{
	Name:  "info",
	Usage: "info file ...",
	Short: "describe record files",
	Long: `
The info command prints one line per file with its format version,
compression, record count, how many records are timeout fragments, and
the file size.`,
	New: New,
}

type Command struct {
	*root.Command
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	return &Command{Command: parent.(*root.Command)}, nil
}

func (c *Command) Run(args []string) error {
	_, cleanup, err := c.Init()
	if err != nil {
		return err
	}
	defer cleanup()
	if len(args) == 0 {
		return errors.New("info requires at least one file argument")
	}
	for _, path := range args {
		if err := describe(path); err != nil {
			return err
		}
	}
	return nil
}

func describe(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	r, err := sfio.NewReader(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	defer r.Close()
	var records, fragments int64
	for {
		rec, err := r.Read()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if rec == nil {
			break
		}
		records++
		if !flowrec.Complete(rec) {
			fragments++
		}
	}
	compression := "none"
	if r.Compression() == sfio.CompressionLZ4 {
		compression = "lz4"
	}
	fmt.Printf("%s: version %d, compression %s, %d record%s (%d fragment%s), %d bytes\n",
		path, sfio.Version, compression, records, plural.S(records),
		fragments, plural.S(fragments), stat.Size())
	return nil
}
