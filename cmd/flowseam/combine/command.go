package combine

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/units"
	"github.com/flowseam/flowseam/cli"
	"github.com/flowseam/flowseam/cli/outputflags"
	"github.com/flowseam/flowseam/cmd/flowseam/root"
	"github.com/flowseam/flowseam/combine"
	"github.com/flowseam/flowseam/flowrec"
	"github.com/flowseam/flowseam/pkg/display"
	"github.com/flowseam/flowseam/pkg/rlimit"
	"github.com/flowseam/flowseam/recio"
	"github.com/mccanne/charm"
	"github.com/paulbellamy/ratecounter"
	"github.com/pbnjay/memory"
	"golang.org/x/term"
)

var Cmd = &charm.Spec{
	Name:  "combine",
	Usage: "combine [options] [file ...]",
	Short: "sort records and stitch split flows back together",
	Long: `
The combine command reads flow records, sorts them by session key and
start time, and joins records a flow generator split across active or
idle timeouts back into single records.  Records carrying neither
timeout attribute skip the sort and go straight to the output.

Input files are read in order; with no files, records are read from
stdin.  The sort spills to temporary files when the input exceeds the
in-core buffer, so input size is limited by disk, not memory.`,
	New: New,
}

type Command struct {
	*root.Command
	outputFlags outputflags.Flags
	ignore      string
	maxIdle     time.Duration
	bufferSize  string
	fanIn       int
	tempDir     string
	stats       bool
	progress    bool

	// status line state
	ctx      context.Context
	rate     *ratecounter.RateCounter
	counter  *recio.Counter
	lastRead int64
}

func New(parent charm.Command, f *flag.FlagSet) (charm.Command, error) {
	c := &Command{Command: parent.(*root.Command)}
	c.outputFlags.SetFlags(f)
	f.StringVar(&c.ignore, "i", "", "comma-separated session key fields to ignore when matching records")
	f.DurationVar(&c.maxIdle, "max-idle", -1, "maximum idle gap between joinable records (negative means unlimited)")
	f.StringVar(&c.bufferSize, "buffer-size", "", "in-core record buffer budget, e.g. 512MiB (default min(1920MiB, half of physical memory))")
	f.IntVar(&c.fanIn, "fan-in", combine.DefaultMaxOpenRuns, "maximum spill runs merged per pass")
	f.StringVar(&c.tempDir, "tempdir", "", "directory for spill files (default system temp dir)")
	f.BoolVar(&c.stats, "stats", false, "print record counts and idle times to stderr")
	f.BoolVar(&c.progress, "progress", false, "show a live status line on stderr")
	return c, nil
}

func (c *Command) Run(args []string) error {
	ctx, cleanup, err := c.Init(&c.outputFlags)
	if err != nil {
		return err
	}
	defer cleanup()
	ignore, err := flowrec.ParseFields(c.ignore)
	if err != nil {
		return err
	}
	key, err := flowrec.KeyIgnoring(ignore)
	if err != nil {
		return err
	}
	memMax, err := c.memMax()
	if err != nil {
		return err
	}
	if _, err := rlimit.RaiseOpenFilesLimit(); err != nil {
		return err
	}
	engine, err := combine.New(combine.Config{
		Compare:     flowrec.Comparator(append(key, flowrec.FieldStartTime, flowrec.FieldElapsed)),
		Combine:     flowrec.NewCoalescer(key, c.maxIdle).Combine,
		Bypass:      flowrec.Complete,
		MemMaxBytes: memMax,
		MaxOpenRuns: c.fanIn,
		TempDir:     c.tempDir,
		Logger:      c.Logger(),
	})
	if err != nil {
		return err
	}
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
	c.counter = recio.NewCounter(recio.ConcatReader(inputs...))
	var d *display.Display
	if c.progress && term.IsTerminal(int(os.Stderr.Fd())) {
		c.ctx = ctx
		c.rate = ratecounter.NewRateCounter(time.Second)
		d = display.New(c, time.Second/2, os.Stderr)
		go d.Run()
	}
	tly := &tally{writer: out}
	stats, err := engine.Run(ctx, c.counter, tly)
	if d != nil {
		d.Close()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if c.stats {
		printStats(os.Stderr, stats, tly)
	}
	return nil
}

func (c *Command) memMax() (int64, error) {
	if c.bufferSize == "" {
		budget := int64(combine.DefaultMemMaxBytes)
		if total := memory.TotalMemory(); total > 0 && int64(total/2) < budget {
			budget = int64(total / 2)
		}
		return budget, nil
	}
	n, err := units.ParseStrictBytes(c.bufferSize)
	if err != nil {
		return 0, fmt.Errorf("parsing -buffer-size: %w", err)
	}
	if n < flowrec.Size {
		return 0, errors.New("-buffer-size cannot hold even one record")
	}
	return n, nil
}

// Display draws the progress status line.
func (c *Command) Display(w io.Writer) bool {
	read := c.counter.Count()
	c.rate.Incr(read - c.lastRead)
	c.lastRead = read
	fmt.Fprintf(w, "%d records read %d/s\n", read, c.rate.Rate())
	return c.ctx.Err() == nil
}
