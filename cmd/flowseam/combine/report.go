package combine

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/flowseam/flowseam/combine"
	"github.com/flowseam/flowseam/flowrec"
	"github.com/flowseam/flowseam/recio"
)

// tally counts the records reaching the output by disposition so the
// statistics report can break out what was made whole and what stayed
// partial.
type tally struct {
	writer recio.Writer
	counts [4]int64
}

func (t *tally) Write(rec *flowrec.Record) error {
	if err := t.writer.Write(rec); err != nil {
		return err
	}
	t.counts[rec.Disposition()]++
	return nil
}

func printStats(w io.Writer, stats *combine.Stats, tly *tally) {
	missEnd := tly.counts[flowrec.MissingEnd]
	missBoth := tly.counts[flowrec.MissingBoth]
	missStart := tly.counts[flowrec.MissingStart]
	prior := stats.Sorted - missEnd - missBoth - missStart
	made := prior - stats.Folded
	width := 1
	for _, n := range []int64{stats.Read, stats.Written} {
		if d := len(strconv.FormatInt(n, 10)); d > width {
			width = d
		}
	}
	line := func(label, op string, n int64) {
		fmt.Fprintf(w, "%-22s %1s %*d\n", label, op, width, n)
	}
	fmt.Fprintln(w, "FLOW RECORD COUNTS:")
	line("Read:", "", stats.Read)
	line("Initially complete:", "-", stats.Bypassed)
	line("Sorted & examined:", "=", stats.Sorted)
	line("Missing end:", "-", missEnd)
	line("Missing start and end:", "-", missBoth)
	line("Missing start:", "-", missStart)
	line("Prior to coalescing:", "=", prior)
	line("Eliminated:", "-", stats.Folded)
	line("Made complete:", "=", made)
	line("Written:", "", stats.Written)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "IDLE TIMES:")
	fmt.Fprintf(w, "%-14s%s\n", "Minimum:", timediff(stats.MinIdle))
	fmt.Fprintf(w, "%-14s%s\n", "Penultimate:", timediff(stats.PenultIdle))
	fmt.Fprintf(w, "%-14s%s\n", "Maximum:", timediff(stats.MaxIdle))
}

// timediff renders a duration as days:hours:minutes:seconds.millis.
func timediff(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	ms := d.Milliseconds() % 1000
	sec := int64(d/time.Second) % 60
	min := int64(d/time.Minute) % 60
	hour := int64(d/time.Hour) % 24
	day := int64(d / (24 * time.Hour))
	return fmt.Sprintf("%s%d:%02d:%02d:%02d.%03d", sign, day, hour, min, sec, ms)
}
