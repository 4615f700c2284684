// Package combine implements a single-threaded external sort over
// fixed-size flow records that folds adjacent combinable records as
// they surface in sorted order.  Records accumulate in an adaptive
// in-core buffer; when it fills, sorted runs spill to temp files and
// a bounded fan-in merge with as many cascading passes as needed
// produces the output.
package combine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/flowseam/flowseam/combine/spill"
	"github.com/flowseam/flowseam/flowrec"
	"github.com/flowseam/flowseam/recio"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// DefaultMemMaxBytes is the default in-core buffer budget.
	DefaultMemMaxBytes = 1920 << 20
	// DefaultMaxOpenRuns is the default merge fan-in.
	DefaultMaxOpenRuns = 1024
)

type Config struct {
	// Compare defines the sort order.  Required.
	Compare flowrec.CompareFn
	// Combine folds its second argument into its first when the two
	// records can merge, reporting the idle gap between them.  Nil
	// makes the engine a pure sort.
	Combine flowrec.CombineFn
	// Bypass selects records that skip sorting and go straight to the
	// destination in arrival order.  Nil bypasses nothing.
	Bypass func(*flowrec.Record) bool
	// MemMaxBytes budgets the in-core buffer.  Zero or negative means
	// DefaultMemMaxBytes.
	MemMaxBytes int64
	// MaxOpenRuns bounds how many runs one merge pass reads.  Zero
	// means DefaultMaxOpenRuns; anything under two cannot make merge
	// progress and is rejected.
	MaxOpenRuns int
	// TempDir hosts the spill directory.  Empty means os.TempDir().
	TempDir string
	Logger  *zap.Logger
}

// Engine runs one sort-and-combine over one input stream.
type Engine struct {
	compare     flowrec.CompareFn
	fold        flowrec.CombineFn
	bypass      func(*flowrec.Record) bool
	memMaxBytes int64
	maxOpenRuns int
	tempDir     string
	logger      *zap.Logger

	stats Stats
	ran   bool

	// Test seams for failure injection.
	alloc         allocFn
	openFailure   func(id int) error
	createFailure func() error
}

func New(cfg Config) (*Engine, error) {
	if cfg.Compare == nil {
		return nil, errors.New("combine: Compare is required")
	}
	if cfg.MemMaxBytes <= 0 {
		cfg.MemMaxBytes = DefaultMemMaxBytes
	}
	if cfg.MaxOpenRuns == 0 {
		cfg.MaxOpenRuns = DefaultMaxOpenRuns
	}
	if cfg.MaxOpenRuns < 2 {
		return nil, fmt.Errorf("combine: fan-in of %d cannot make progress", cfg.MaxOpenRuns)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{
		compare:     cfg.Compare,
		fold:        cfg.Combine,
		bypass:      cfg.Bypass,
		memMaxBytes: cfg.MemMaxBytes,
		maxOpenRuns: cfg.MaxOpenRuns,
		tempDir:     cfg.TempDir,
		logger:      cfg.Logger,
	}, nil
}

// Run drains src through the pipeline into dst and returns the run's
// statistics.  The spill directory is always cleaned up, error or
// not.  Run may be called once.
func (e *Engine) Run(ctx context.Context, src recio.Reader, dst recio.Writer) (stats *Stats, err error) {
	if e.ran {
		return nil, errors.New("combine: engine already ran")
	}
	e.ran = true
	buf, err := newRecordBuffer(e.memMaxBytes, e.alloc)
	if err != nil {
		return nil, err
	}
	reg, err := spill.NewRegistry(e.tempDir, e.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, reg.Cleanup())
	}()
	nruns, err := e.fill(ctx, src, dst, buf, reg)
	if err != nil {
		return nil, err
	}
	if nruns == 0 {
		// Everything fit in core; no run files at all.
		e.sortRecords(buf.records())
		if err := e.emitAll(ctx, buf.records(), dst); err != nil {
			return nil, err
		}
	} else {
		if buf.len() > 0 {
			if _, err := e.spillRun(reg, buf); err != nil {
				return nil, err
			}
			nruns++
		}
		if err := e.merge(ctx, reg, dst, nruns); err != nil {
			return nil, err
		}
	}
	e.stats.finalize()
	if emitted := e.stats.Written - e.stats.Bypassed; e.stats.Sorted != e.stats.Folded+emitted {
		return nil, fmt.Errorf("combine: internal accounting error: %d sorted != %d folded + %d emitted",
			e.stats.Sorted, e.stats.Folded, emitted)
	}
	return &e.stats, nil
}

// fill reads src to exhaustion, passing bypass records straight to dst
// and accumulating the rest in the buffer, spilling a sorted run each
// time it fills.  A read failure after the first good record logs a
// warning and ends the input early instead of losing what was read.
func (e *Engine) fill(ctx context.Context, src recio.Reader, dst recio.Writer, buf *recordBuffer, reg *spill.Registry) (int, error) {
	var nruns int
	for {
		if err := ctx.Err(); err != nil {
			return nruns, err
		}
		rec, err := src.Read()
		if err != nil {
			if e.stats.Read == 0 {
				return nruns, fmt.Errorf("reading input: %w", err)
			}
			e.logger.Warn("input read failed, continuing with the records already read",
				zap.Int64("read", e.stats.Read),
				zap.Error(err))
			return nruns, nil
		}
		if rec == nil {
			return nruns, nil
		}
		e.stats.Read++
		if e.bypass != nil && e.bypass(rec) {
			e.stats.Bypassed++
			if err := e.emit(dst, rec, true); err != nil {
				return nruns, err
			}
			continue
		}
		e.stats.Sorted++
		wasCapped := buf.capped
		if !buf.room() {
			if buf.capped && !wasCapped {
				e.logger.Warn("record buffer growth failed, capacity capped",
					zap.Int("records", buf.maxRecs))
			}
			if _, err := e.spillRun(reg, buf); err != nil {
				return nruns, err
			}
			nruns++
		}
		buf.append(rec)
	}
}

// spillRun sorts the buffer and writes it out as one run, leaving the
// buffer empty with its capacity intact.
func (e *Engine) spillRun(reg *spill.Registry, buf *recordBuffer) (int, error) {
	e.sortRecords(buf.records())
	w, id, err := reg.Create()
	if err != nil {
		return -1, fmt.Errorf("creating run: %w", err)
	}
	recs := buf.records()
	for i := range recs {
		if err := w.Write(&recs[i]); err != nil {
			w.Close()
			return -1, err
		}
	}
	if err := w.Close(); err != nil {
		return -1, err
	}
	e.logger.Debug("spilled run", zap.Int("run", id), zap.Int("records", len(recs)))
	buf.reset()
	return id, nil
}

// emitAll walks already sorted records, folding adjacent combinable
// ones and writing the survivors to dst.
func (e *Engine) emitAll(ctx context.Context, recs []flowrec.Record, dst recio.Writer) error {
	if len(recs) == 0 {
		return nil
	}
	pending := recs[0]
	for i := 1; i < len(recs); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.tryFold(&pending, &recs[i]) {
			continue
		}
		if err := e.emit(dst, &pending, true); err != nil {
			return err
		}
		pending = recs[i]
	}
	return e.emit(dst, &pending, true)
}

func (e *Engine) tryFold(dst, src *flowrec.Record) bool {
	if e.fold == nil {
		return false
	}
	idle, ok := e.fold(dst, src)
	if ok {
		e.stats.fold(idle)
	}
	return ok
}

func (e *Engine) emit(out recio.Writer, rec *flowrec.Record, final bool) error {
	if err := out.Write(rec); err != nil {
		if final {
			return fmt.Errorf("writing output: %w", err)
		}
		return err
	}
	if final {
		e.stats.Written++
	}
	return nil
}

func (e *Engine) sortRecords(recs []flowrec.Record) {
	sort.Stable(&recordSlice{recs: recs, cmp: e.compare})
}

// recordSlice adapts a record slice and comparator to sort.Interface.
type recordSlice struct {
	recs []flowrec.Record
	cmp  flowrec.CompareFn
}

func (r *recordSlice) Len() int { return len(r.recs) }

func (r *recordSlice) Less(i, j int) bool {
	return r.cmp(&r.recs[i], &r.recs[j]) < 0
}

func (r *recordSlice) Swap(i, j int) {
	r.recs[i], r.recs[j] = r.recs[j], r.recs[i]
}
