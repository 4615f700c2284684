// Package recio provides the streaming interfaces that flow record
// sources and sinks implement, along with helpers for composing them.
package recio

import (
	"context"
	"io"

	"github.com/flowseam/flowseam/flowrec"
	"go.uber.org/multierr"
)

// Reader is the interface for a stream of flow records.  Read returns
// the next record or nil at end of stream; it never returns a record
// alongside an error.  The returned pointer may reference storage that
// the next Read reuses, so a caller that holds a record across calls
// must copy it.
type Reader interface {
	Read() (*flowrec.Record, error)
}

// Writer is the interface for a flow record sink.  Write must not
// retain the record.
type Writer interface {
	Write(*flowrec.Record) error
}

type ReadCloser interface {
	Reader
	io.Closer
}

type WriteCloser interface {
	Writer
	io.Closer
}

type nopReadCloser struct {
	Reader
}

func (nopReadCloser) Close() error { return nil }

// NopReadCloser wraps r with a Close method that does nothing.
func NopReadCloser(r Reader) ReadCloser {
	return nopReadCloser{r}
}

// Copy drains src into dst record by record.
func Copy(dst Writer, src Reader) error {
	return copyRecords(context.Background(), dst, src)
}

// CopyWithContext is like Copy but stops with the context's error as
// soon as ctx is canceled.
func CopyWithContext(ctx context.Context, dst Writer, src Reader) error {
	return copyRecords(ctx, dst, src)
}

func copyRecords(ctx context.Context, dst Writer, src Reader) error {
	for ctx.Err() == nil {
		rec, err := src.Read()
		if err != nil {
			return err
		}
		if rec == nil {
			return nil
		}
		if err := dst.Write(rec); err != nil {
			return err
		}
	}
	return ctx.Err()
}

type concatReader struct {
	readers []Reader
}

// ConcatReader returns a Reader that presents the given readers as one
// stream, draining each in turn.
func ConcatReader(readers ...Reader) Reader {
	return &concatReader{readers}
}

func (c *concatReader) Read() (*flowrec.Record, error) {
	for len(c.readers) > 0 {
		rec, err := c.readers[0].Read()
		if rec != nil || err != nil {
			return rec, err
		}
		c.readers = c.readers[1:]
	}
	return nil, nil
}

type multiWriter struct {
	writers []Writer
}

// MultiWriter returns a Writer that writes every record to all of the
// given writers.
func MultiWriter(writers ...Writer) Writer {
	return &multiWriter{writers}
}

func (m *multiWriter) Write(rec *flowrec.Record) error {
	for _, w := range m.writers {
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// CloseReaders closes every reader, returning the accumulated errors.
func CloseReaders(readers []ReadCloser) error {
	var err error
	for _, r := range readers {
		err = multierr.Append(err, r.Close())
	}
	return err
}
