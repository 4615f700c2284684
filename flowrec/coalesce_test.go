package flowrec_test

import (
	"math"
	"testing"
	"time"

	"github.com/flowseam/flowseam/flowrec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fragments returns a flow split at an active timeout: the first half
// timed out at 1000ms+30s, the second half picks up 5s later.
func fragments() (flowrec.Record, flowrec.Record) {
	first := flow("10.0.0.1", "10.0.0.2", 1234, 80, 1000, 30000, 10, 5000, "T")
	second := flow("10.0.0.1", "10.0.0.2", 1234, 80, 36000, 2000, 3, 1500, "C")
	return first, second
}

func TestCoalescerCombine(t *testing.T) {
	c := flowrec.NewCoalescer(flowrec.DefaultKey(), -1)
	dst, src := fragments()
	dst.SetTCPFlags(0x02)
	dst.SetInitFlags(0x02)
	dst.SetRestFlags(0x10)
	src.SetTCPFlags(0x11)
	src.SetInitFlags(0x10)
	src.SetRestFlags(0x01)
	orig := src

	idle, ok := c.Combine(&dst, &src)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, idle)
	assert.Equal(t, int64(1000), dst.StartMS())
	assert.Equal(t, uint32(37000), dst.ElapsedMS(), "elapsed spans both halves")
	assert.Equal(t, uint32(13), dst.Packets())
	assert.Equal(t, uint32(6500), dst.Bytes())
	assert.Equal(t, uint8(0x13), dst.TCPFlags(), "cumulative flags are ORed")
	assert.Equal(t, uint8(0x02), dst.InitFlags(), "initial flags are dst's own")
	assert.Equal(t, uint8(0x11), dst.RestFlags(), "src flags fold into session flags")
	assert.Equal(t, flowrec.Attributes(0), dst.Attrs(), "timed-out clears when the tail is final")
	assert.Equal(t, orig, src, "src is never modified")
}

func TestCoalescerKeepsTimedOutForMiddleFragment(t *testing.T) {
	c := flowrec.NewCoalescer(flowrec.DefaultKey(), -1)
	dst, src := fragments()
	src.SetAttrs(flowrec.AttrContinuation | flowrec.AttrTimedOut)
	_, ok := c.Combine(&dst, &src)
	require.True(t, ok)
	assert.True(t, dst.Attrs().Has(flowrec.AttrTimedOut), "still waiting for the final fragment")
	assert.False(t, dst.Attrs().Has(flowrec.AttrContinuation))
}

func TestCoalescerRefusals(t *testing.T) {
	cases := []struct {
		name string
		mut  func(dst, src *flowrec.Record)
	}{
		{"dst not timed out", func(dst, src *flowrec.Record) {
			dst.SetAttrs(0)
		}},
		{"src not a continuation", func(dst, src *flowrec.Record) {
			src.SetAttrs(flowrec.AttrTimedOut)
		}},
		{"key mismatch", func(dst, src *flowrec.Record) {
			src.SetDstPort(8080)
		}},
		{"elapsed overflow", func(dst, src *flowrec.Record) {
			src.SetStartMS(dst.StartMS() + math.MaxUint32)
			src.SetElapsedMS(1)
		}},
		{"byte overflow", func(dst, src *flowrec.Record) {
			dst.SetBytes(math.MaxUint32 - 100)
			src.SetBytes(101)
		}},
		{"packet overflow", func(dst, src *flowrec.Record) {
			dst.SetPackets(math.MaxUint32)
			src.SetPackets(1)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := flowrec.NewCoalescer(flowrec.DefaultKey(), -1)
			dst, src := fragments()
			tc.mut(&dst, &src)
			before := dst
			_, ok := c.Combine(&dst, &src)
			assert.False(t, ok)
			assert.Equal(t, before, dst, "refusal must not modify dst")
		})
	}
}

func TestCoalescerIdleLimit(t *testing.T) {
	dst, src := fragments()
	gap := time.Duration(src.StartMS()-dst.EndMS()) * time.Millisecond
	require.Equal(t, 5*time.Second, gap)

	c := flowrec.NewCoalescer(flowrec.DefaultKey(), gap-time.Millisecond)
	_, ok := c.Combine(&dst, &src)
	assert.False(t, ok, "gap beyond the limit refuses")

	c = flowrec.NewCoalescer(flowrec.DefaultKey(), gap)
	idle, ok := c.Combine(&dst, &src)
	require.True(t, ok, "gap equal to the limit combines")
	assert.Equal(t, gap, idle)
}

func TestCoalescerNegativeIdle(t *testing.T) {
	// Overlapping halves happen when a sensor flushes early; the gap
	// reports negative and the combine still applies.
	c := flowrec.NewCoalescer(flowrec.DefaultKey(), 0)
	dst, src := fragments()
	src.SetStartMS(dst.EndMS() - 1500)
	idle, ok := c.Combine(&dst, &src)
	require.True(t, ok)
	assert.Equal(t, -1500*time.Millisecond, idle)
	assert.Equal(t, uint32(src.EndMS()-dst.StartMS()), dst.ElapsedMS())
}

func TestCoalescerIgnoredKeyFields(t *testing.T) {
	key, err := flowrec.KeyIgnoring([]flowrec.Field{flowrec.FieldDstPort})
	require.NoError(t, err)
	c := flowrec.NewCoalescer(key, -1)
	dst, src := fragments()
	src.SetDstPort(8080)
	_, ok := c.Combine(&dst, &src)
	assert.True(t, ok, "ignored fields do not block the combine")
}

func TestCoalescerUniformSize(t *testing.T) {
	cases := []struct {
		name         string
		attrs1       string
		pkts1, byts1 uint32
		attrs2       string
		pkts2, byts2 uint32
		want         bool
	}{
		{"both uniform same ratio", "TS", 10, 400, "CS", 5, 200, true},
		{"both uniform different ratio", "TS", 10, 400, "CS", 5, 300, false},
		{"tail single packet matching ratio", "TS", 10, 400, "C", 1, 40, true},
		{"tail single packet wrong ratio", "TS", 10, 400, "C", 1, 64, false},
		{"tail multi packet not uniform", "TS", 10, 400, "C", 2, 80, false},
		{"head single packet matching tail ratio", "T", 1, 40, "CS", 5, 200, true},
		{"head single packet wrong tail ratio", "T", 1, 44, "CS", 5, 200, false},
		{"two single packets same size", "T", 1, 40, "C", 1, 40, true},
		{"two single packets different size", "T", 1, 40, "C", 1, 41, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			attrs1, err := flowrec.ParseAttributes(tc.attrs1)
			require.NoError(t, err)
			attrs2, err := flowrec.ParseAttributes(tc.attrs2)
			require.NoError(t, err)
			dst, src := fragments()
			dst.SetAttrs(attrs1)
			dst.SetPackets(tc.pkts1)
			dst.SetBytes(tc.byts1)
			src.SetAttrs(attrs2)
			src.SetPackets(tc.pkts2)
			src.SetBytes(tc.byts2)
			c := flowrec.NewCoalescer(flowrec.DefaultKey(), -1)
			_, ok := c.Combine(&dst, &src)
			require.True(t, ok)
			assert.Equal(t, tc.want, dst.Attrs().Has(flowrec.AttrUniformSize))
		})
	}
}

