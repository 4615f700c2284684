package spill

import (
	"fmt"
	"os"

	"github.com/flowseam/flowseam/flowrec"
	"github.com/flowseam/flowseam/recio/sfio"
)

// RunWriter writes one run.  Runs are always compressed; they live
// only as long as the sort and trade a little CPU for temp space.
type RunWriter struct {
	ID     int
	writer *sfio.Writer
}

func newRunWriter(id int, f *os.File) *RunWriter {
	return &RunWriter{
		ID:     id,
		writer: sfio.NewWriter(f, sfio.WriterOpts{Compress: true}),
	}
}

func (w *RunWriter) Write(rec *flowrec.Record) error {
	if err := w.writer.Write(rec); err != nil {
		return fmt.Errorf("run %d: %w", w.ID, err)
	}
	return nil
}

func (w *RunWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		return fmt.Errorf("run %d: %w", w.ID, err)
	}
	return nil
}

// RunReader reads one run with a one-record lookahead so a merge can
// order runs by their next record without consuming it.
type RunReader struct {
	ID     int
	reader *sfio.Reader
	rec    flowrec.Record
	ok     bool
}

func newRunReader(id int, f *os.File) (*RunReader, error) {
	sr, err := sfio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("run %d: %w", id, err)
	}
	r := &RunReader{ID: id, reader: sr}
	if err := r.Next(); err != nil {
		return nil, err
	}
	return r, nil
}

// Peek returns the run's next record without consuming it, or nil
// when the run is exhausted.  The pointer is valid until Next.
func (r *RunReader) Peek() *flowrec.Record {
	if !r.ok {
		return nil
	}
	return &r.rec
}

// Next advances the lookahead.
func (r *RunReader) Next() error {
	rec, err := r.reader.Read()
	if err != nil {
		r.ok = false
		return fmt.Errorf("run %d: %w", r.ID, err)
	}
	if rec == nil {
		r.ok = false
		return nil
	}
	r.rec = *rec
	r.ok = true
	return nil
}

func (r *RunReader) Close() error {
	return r.reader.Close()
}
