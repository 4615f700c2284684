package recio

import "github.com/flowseam/flowseam/flowrec"

// Array is an in-memory record stream implementing both Reader and
// Writer.  Reading walks the records in order; writing appends a copy.
type Array struct {
	recs []flowrec.Record
	off  int
}

func NewArray(recs []flowrec.Record) *Array {
	return &Array{recs: recs}
}

func (a *Array) Read() (*flowrec.Record, error) {
	if a.off >= len(a.recs) {
		return nil, nil
	}
	rec := &a.recs[a.off]
	a.off++
	return rec, nil
}

func (a *Array) Write(rec *flowrec.Record) error {
	a.recs = append(a.recs, *rec)
	return nil
}

// Records returns the underlying records regardless of read position.
func (a *Array) Records() []flowrec.Record {
	return a.recs
}

func (a *Array) Len() int {
	return len(a.recs)
}
