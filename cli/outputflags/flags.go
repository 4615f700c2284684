// Package outputflags holds the flags shared by every command that
// writes a record file.
package outputflags

import (
	"errors"
	"flag"
	"io"
	"os"

	"github.com/flowseam/flowseam/recio"
	"github.com/flowseam/flowseam/recio/sfio"
	"golang.org/x/term"
)

type Flags struct {
	path     string
	force    bool
	compress bool
}

func (f *Flags) SetFlags(fs *flag.FlagSet) {
	fs.StringVar(&f.path, "o", "-", "path of output file (- for stdout)")
	fs.BoolVar(&f.force, "f", false, "overwrite the output file if it exists")
	fs.BoolVar(&f.compress, "z", false, "lz4 compress the output")
}

// Init refuses to stream binary records onto a terminal.
func (f *Flags) Init() error {
	if f.path == "-" && term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("refusing to write binary records to a terminal; use -o or redirect stdout")
	}
	return nil
}

func (f *Flags) Path() string {
	return f.path
}

func (f *Flags) Open() (recio.WriteCloser, error) {
	opts := sfio.WriterOpts{Compress: f.compress}
	if f.path == "-" {
		return sfio.NewWriter(nopCloser{os.Stdout}, opts), nil
	}
	mode := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if f.force {
		mode = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	file, err := os.OpenFile(f.path, mode, 0644)
	if err != nil {
		return nil, err
	}
	return sfio.NewWriter(file, opts), nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
