package recio

import (
	"sync/atomic"

	"github.com/flowseam/flowseam/flowrec"
)

// Counter wraps a Reader and counts the records read through it.
// Count is safe to call from another goroutine, e.g. a progress
// display polling while the pipeline runs.
type Counter struct {
	reader Reader
	count  atomic.Int64
}

func NewCounter(r Reader) *Counter {
	return &Counter{reader: r}
}

func (c *Counter) Read() (*flowrec.Record, error) {
	rec, err := c.reader.Read()
	if rec != nil && err == nil {
		c.count.Add(1)
	}
	return rec, err
}

func (c *Counter) Count() int64 {
	return c.count.Load()
}
