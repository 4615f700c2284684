package flowrec

import "fmt"

// Attributes is the flow attribute bit set carried by every Record.
// The T and C bits drive coalescing: a sensor sets T on a flow it cut
// off at its active timeout and C on the continuation flow it opened
// for the same session.
type Attributes uint8

const (
	// AttrExpanded marks a record whose counters were expanded from a
	// reduced on-sensor encoding.
	AttrExpanded Attributes = 0x01
	// AttrFinNoAck marks a TCP flow where data followed the FIN.
	AttrFinNoAck Attributes = 0x02
	// AttrUniformSize marks a flow whose packets all had the same size.
	AttrUniformSize Attributes = 0x08
	// AttrTimedOut marks a flow terminated by the sensor's active
	// timeout; its continuation should follow.
	AttrTimedOut Attributes = 0x10
	// AttrContinuation marks a flow that continues an earlier
	// timed-out flow of the same session.
	AttrContinuation Attributes = 0x20
)

// attrLetters maps attribute bits to their display letters in
// canonical print order.
var attrLetters = []struct {
	bit    Attributes
	letter byte
}{
	{AttrUniformSize, 'S'},
	{AttrFinNoAck, 'F'},
	{AttrTimedOut, 'T'},
	{AttrContinuation, 'C'},
}

func (a Attributes) Has(bits Attributes) bool { return a&bits == bits }

func (a Attributes) String() string {
	var b []byte
	for _, l := range attrLetters {
		if a&l.bit != 0 {
			b = append(b, l.letter)
		}
	}
	return string(b)
}

// ParseAttributes parses a string of attribute letters such as "TC".
// Letters may appear in any order but at most once each.
func ParseAttributes(s string) (Attributes, error) {
	var a Attributes
	for i := 0; i < len(s); i++ {
		var bit Attributes
		switch s[i] {
		case 'S':
			bit = AttrUniformSize
		case 'F':
			bit = AttrFinNoAck
		case 'T':
			bit = AttrTimedOut
		case 'C':
			bit = AttrContinuation
		default:
			return 0, fmt.Errorf("unknown flow attribute %q", s[i])
		}
		if a&bit != 0 {
			return 0, fmt.Errorf("duplicate flow attribute %q", s[i])
		}
		a |= bit
	}
	return a, nil
}

// Complete reports whether r needs no coalescing: it carries neither
// the timed-out nor the continuation attribute.
func Complete(r *Record) bool {
	return r.Attrs()&(AttrTimedOut|AttrContinuation) == 0
}

// Disposition classifies a record by which ends of its session are
// missing.
type Disposition int

const (
	Whole Disposition = iota
	MissingEnd
	MissingStart
	MissingBoth
)

// Disposition reports which ends of the session r is missing, judging
// only by its attributes.
func (r *Record) Disposition() Disposition {
	switch r.Attrs() & (AttrTimedOut | AttrContinuation) {
	case AttrTimedOut:
		return MissingEnd
	case AttrContinuation:
		return MissingStart
	case AttrTimedOut | AttrContinuation:
		return MissingBoth
	}
	return Whole
}
