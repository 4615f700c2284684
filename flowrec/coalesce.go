package flowrec

import (
	"math"
	"time"
)

// CombineFn merges src into dst when the two records belong together,
// reporting the idle gap between them.  On refusal it must leave both
// records untouched and return false.
type CombineFn func(dst, src *Record) (idle time.Duration, ok bool)

// Coalescer folds a continuation record into the timed-out record it
// continues, rebuilding flows that a sensor split at its active
// timeout.
type Coalescer struct {
	equal   []CompareFn
	maxIdle int64 // milliseconds, negative means unlimited
}

// NewCoalescer returns a Coalescer that requires the given session key
// fields to match.  Start time and elapsed entries in key are ignored;
// the time relationship is checked against maxIdle instead.  A
// negative maxIdle allows any gap.
func NewCoalescer(key []Field, maxIdle time.Duration) *Coalescer {
	var equal []CompareFn
	for _, f := range key {
		if f == FieldStartTime || f == FieldElapsed {
			continue
		}
		equal = append(equal, f.comparer())
	}
	maxIdleMS := int64(-1)
	if maxIdle >= 0 {
		maxIdleMS = maxIdle.Milliseconds()
	}
	return &Coalescer{equal: equal, maxIdle: maxIdleMS}
}

// Combine folds src into dst and reports the idle gap between the two
// halves when they belong to the same session.  dst must carry the
// timed-out attribute and src the continuation attribute, the session
// keys must be equal, the gap must not exceed the idle limit, and the
// combined duration, byte, and packet counts must fit their fields.
// On refusal neither record is modified and ok is false.  src is never
// modified.
func (c *Coalescer) Combine(dst, src *Record) (idle time.Duration, ok bool) {
	if !dst.Attrs().Has(AttrTimedOut) {
		return 0, false
	}
	if !src.Attrs().Has(AttrContinuation) {
		return 0, false
	}
	for _, eq := range c.equal {
		if eq(dst, src) != 0 {
			return 0, false
		}
	}
	start1, end1 := dst.StartMS(), dst.EndMS()
	start2, end2 := src.StartMS(), src.EndMS()
	idleMS := start2 - end1
	if c.maxIdle >= 0 && idleMS > c.maxIdle {
		return 0, false
	}
	elapsed := end2 - start1
	if elapsed < 0 || elapsed > math.MaxUint32 {
		return 0, false
	}
	bytes1, bytes2 := dst.Bytes(), src.Bytes()
	if math.MaxUint32-bytes1 < bytes2 {
		return 0, false
	}
	pkts1, pkts2 := dst.Packets(), src.Packets()
	if math.MaxUint32-pkts1 < pkts2 {
		return 0, false
	}

	attrs := dst.Attrs()
	// dst stays timed-out only if the continuation itself timed out.
	if !src.Attrs().Has(AttrTimedOut) {
		attrs &^= AttrTimedOut
	}
	dst.SetTCPFlags(dst.TCPFlags() | src.TCPFlags())
	// Fold both of src's flag fields into dst's session flags so the
	// expanded-encoding split of initial vs. session flags holds.
	dst.SetRestFlags(dst.RestFlags() | src.RestFlags() | src.InitFlags())

	// Some sensors clear the uniform-size attribute on a final
	// single-packet fragment.  Keep the attribute when the byte per
	// packet ratios agree, drop it when they do not, and restore it
	// when a single-packet half matches the other half's ratio.
	uniform2 := src.Attrs().Has(AttrUniformSize)
	if attrs.Has(AttrUniformSize) {
		if uniform2 {
			if pkts1 == 0 || pkts2 == 0 || bytes1/pkts1 != bytes2/pkts2 {
				attrs &^= AttrUniformSize
			}
		} else if pkts1 == 0 || pkts2 > 1 || bytes1/pkts1 != bytes2 {
			attrs &^= AttrUniformSize
		}
	} else if uniform2 && pkts1 == 1 {
		if pkts2 > 0 && bytes2/pkts2 == bytes1 {
			attrs |= AttrUniformSize
		}
	} else if pkts1 == 1 && pkts2 == 1 && bytes1 == bytes2 {
		attrs |= AttrUniformSize
	}
	dst.SetAttrs(attrs)

	dst.SetElapsedMS(uint32(elapsed))
	dst.SetBytes(bytes1 + bytes2)
	dst.SetPackets(pkts1 + pkts2)
	return time.Duration(idleMS) * time.Millisecond, true
}
