package combine

import "time"

// Stats reports what one Run did.  Counts are records: Read from the
// source, Bypassed straight to the destination, Sorted through the
// buffer and merge, Folded away by combining, and Written to the
// destination including bypasses.  The idle times are the smallest,
// second largest, and largest gaps closed by a combine; all three are
// zero when nothing combined and equal when exactly one did.
type Stats struct {
	Read     int64
	Bypassed int64
	Sorted   int64
	Folded   int64
	Written  int64

	MinIdle    time.Duration
	PenultIdle time.Duration
	MaxIdle    time.Duration

	idles     int64
	penultSet bool
}

func (s *Stats) fold(idle time.Duration) {
	s.Folded++
	s.idles++
	if s.idles == 1 {
		s.MinIdle = idle
		s.MaxIdle = idle
		return
	}
	if idle < s.MinIdle {
		s.MinIdle = idle
	}
	if idle >= s.MaxIdle {
		s.PenultIdle = s.MaxIdle
		s.MaxIdle = idle
		s.penultSet = true
	} else if !s.penultSet || idle > s.PenultIdle {
		s.PenultIdle = idle
		s.penultSet = true
	}
}

// finalize settles the idle extrema once folding is over: a single
// observation stands in for all three.
func (s *Stats) finalize() {
	if s.idles == 1 {
		s.PenultIdle = s.MaxIdle
	}
}
