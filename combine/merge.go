package combine

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"syscall"

	"github.com/flowseam/flowseam/combine/spill"
	"github.com/flowseam/flowseam/flowrec"
	"github.com/flowseam/flowseam/recio"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// runHeap orders open runs by their next record, breaking ties toward
// the lower run id so merge output is deterministic.
type runHeap struct {
	cmp  flowrec.CompareFn
	runs []*spill.RunReader
}

func (h *runHeap) Len() int { return len(h.runs) }

func (h *runHeap) Less(i, j int) bool {
	a, b := h.runs[i], h.runs[j]
	if v := h.cmp(a.Peek(), b.Peek()); v != 0 {
		return v < 0
	}
	return a.ID < b.ID
}

func (h *runHeap) Swap(i, j int) {
	h.runs[i], h.runs[j] = h.runs[j], h.runs[i]
}

func (h *runHeap) Push(x any) {
	h.runs = append(h.runs, x.(*spill.RunReader))
}

func (h *runHeap) Pop() any {
	n := len(h.runs)
	r := h.runs[n-1]
	h.runs = h.runs[:n-1]
	return r
}

// merge folds the spilled runs into dst over one or more passes.  A
// pass opens as many pending runs as the fan-in limit and the open
// files limit allow; when that is every run left, the pass writes to
// dst, otherwise it writes a new intermediate run that joins the
// pending list.
func (e *Engine) merge(ctx context.Context, reg *spill.Registry, dst recio.Writer, nruns int) error {
	pending := make([]int, nruns)
	for i := range pending {
		pending[i] = i
	}
	for pass := 0; ; pass++ {
		open, rest, err := e.openRuns(reg, pending)
		if err != nil {
			return err
		}
		final := len(rest) == 0
		out := dst
		interID := -1
		var inter *spill.RunWriter
		if !final {
			inter, interID, open, rest, err = e.createIntermediate(reg, open, rest)
			if err != nil {
				return multierr.Append(err, closeRuns(open))
			}
			out = inter
		}
		e.logger.Debug("merge pass",
			zap.Int("pass", pass),
			zap.Int("open", len(open)),
			zap.Int("deferred", len(rest)),
			zap.Bool("final", final))
		drainErr := e.drain(ctx, open, out, final)
		closeErr := closeRuns(open)
		for _, r := range open {
			closeErr = multierr.Append(closeErr, reg.Remove(r.ID))
		}
		if inter != nil {
			closeErr = multierr.Append(closeErr, inter.Close())
		}
		if err := multierr.Append(drainErr, closeErr); err != nil {
			return err
		}
		if final {
			return nil
		}
		pending = append(rest, interID)
	}
}

// openRuns opens pending runs in order until they are all open, the
// fan-in limit is reached, or the process runs out of descriptors or
// memory with at least one run already open.  It returns the opened
// runs and the pending ids left for a later pass.
func (e *Engine) openRuns(reg *spill.Registry, pending []int) ([]*spill.RunReader, []int, error) {
	var open []*spill.RunReader
	for i, id := range pending {
		if len(open) == e.maxOpenRuns {
			return open, pending[i:], nil
		}
		r, err := e.openRun(reg, id)
		if err != nil {
			if isResourceExhausted(err) && len(open) > 0 {
				e.logger.Warn("cannot open more runs this pass",
					zap.Int("open", len(open)),
					zap.Error(err))
				return open, pending[i:], nil
			}
			err = multierr.Append(fmt.Errorf("opening run %d: %w", id, err), closeRuns(open))
			return nil, nil, err
		}
		open = append(open, r)
	}
	return open, nil, nil
}

func (e *Engine) openRun(reg *spill.Registry, id int) (*spill.RunReader, error) {
	if e.openFailure != nil {
		if err := e.openFailure(id); err != nil {
			return nil, err
		}
	}
	return reg.Open(id)
}

func (e *Engine) createRun(reg *spill.Registry) (*spill.RunWriter, int, error) {
	if e.createFailure != nil {
		if err := e.createFailure(); err != nil {
			return nil, -1, err
		}
	}
	return reg.Create()
}

// createIntermediate creates the run a non-final pass writes to.  If
// the create itself hits the descriptor limit, the most recently
// opened run is closed and returned to pending to free one up.  The
// pass must keep at least two inputs or it cannot make progress.
func (e *Engine) createIntermediate(reg *spill.Registry, open []*spill.RunReader, rest []int) (*spill.RunWriter, int, []*spill.RunReader, []int, error) {
	for {
		if len(open) < 2 {
			return nil, -1, open, rest, errors.New("cannot merge fewer than two runs per pass")
		}
		w, id, err := e.createRun(reg)
		if err == nil {
			return w, id, open, rest, nil
		}
		if !isResourceExhausted(err) {
			return nil, -1, open, rest, fmt.Errorf("creating intermediate run: %w", err)
		}
		last := open[len(open)-1]
		open = open[:len(open)-1]
		if closeErr := last.Close(); closeErr != nil {
			return nil, -1, open, rest, closeErr
		}
		rest = append([]int{last.ID}, rest...)
		e.logger.Warn("returned a run to pending to free a descriptor",
			zap.Int("run", last.ID), zap.Error(err))
	}
}

// drain merges the open runs into out, folding adjacent combinable
// records as they surface.  When out is the final destination the
// emits count as written.
func (e *Engine) drain(ctx context.Context, runs []*spill.RunReader, out recio.Writer, final bool) error {
	h := &runHeap{cmp: e.compare}
	for _, r := range runs {
		if r.Peek() != nil {
			h.runs = append(h.runs, r)
		}
	}
	heap.Init(h)
	for h.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		pending := *h.runs[0].Peek()
		if err := advance(h); err != nil {
			return err
		}
		for h.Len() > 0 && e.tryFold(&pending, h.runs[0].Peek()) {
			if err := advance(h); err != nil {
				return err
			}
		}
		if err := e.emit(out, &pending, final); err != nil {
			return err
		}
	}
	return nil
}

// advance moves the heap's lowest run past its current record.
func advance(h *runHeap) error {
	low := h.runs[0]
	if err := low.Next(); err != nil {
		return err
	}
	if low.Peek() == nil {
		heap.Pop(h)
	} else {
		heap.Fix(h, 0)
	}
	return nil
}

func closeRuns(runs []*spill.RunReader) error {
	var err error
	for _, r := range runs {
		err = multierr.Append(err, r.Close())
	}
	return err
}

// isResourceExhausted reports whether err is the kind of descriptor
// or memory exhaustion a merge pass degrades around rather than fails
// on.
func isResourceExhausted(err error) bool {
	return errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ENOMEM)
}
