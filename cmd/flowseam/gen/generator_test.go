package gen

import (
	"context"
	"fmt"
	"testing"

	"github.com/flowseam/flowseam/combine"
	"github.com/flowseam/flowseam/flowrec"
	"github.com/flowseam/flowseam/recio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorDeterministic(t *testing.T) {
	a := newGenerator(7, 0.5).generate(200)
	b := newGenerator(7, 0.5).generate(200)
	assert.Equal(t, a, b)
	c := newGenerator(8, 0.5).generate(200)
	assert.NotEqual(t, a, c)
}

func TestGeneratorWholeFlows(t *testing.T) {
	recs := newGenerator(1, 0).generate(100)
	require.Len(t, recs, 100)
	for i := range recs {
		rec := &recs[i]
		assert.True(t, flowrec.Complete(rec))
		assert.NotZero(t, rec.Packets())
		assert.GreaterOrEqual(t, rec.Bytes(), rec.Packets()*40)
	}
}

func sessionKey(rec *flowrec.Record) string {
	return fmt.Sprintf("%s:%d>%s:%d/%d", rec.SrcAddr(), rec.SrcPort(), rec.DstAddr(), rec.DstPort(), rec.Proto())
}

func TestSplitFlowsRecombine(t *testing.T) {
	const flows = 50
	recs := newGenerator(3, 1).generate(flows)
	require.Greater(t, len(recs), flows, "every flow should be fragmented")
	type totals struct{ pkts, bytes uint64 }
	want := make(map[string]totals)
	for i := range recs {
		k := sessionKey(&recs[i])
		tot := want[k]
		tot.pkts += uint64(recs[i].Packets())
		tot.bytes += uint64(recs[i].Bytes())
		want[k] = tot
	}
	require.Len(t, want, flows)

	key, err := flowrec.KeyIgnoring(nil)
	require.NoError(t, err)
	e, err := combine.New(combine.Config{
		Compare: flowrec.Comparator(append(key, flowrec.FieldStartTime, flowrec.FieldElapsed)),
		Combine: flowrec.NewCoalescer(key, -1).Combine,
		Bypass:  flowrec.Complete,
		TempDir: t.TempDir(),
	})
	require.NoError(t, err)
	var out recio.Array
	stats, err := e.Run(context.Background(), recio.NewArray(recs), &out)
	require.NoError(t, err)

	got := out.Records()
	require.Len(t, got, flows)
	assert.Equal(t, int64(len(recs)-flows), stats.Folded)
	for i := range got {
		rec := &got[i]
		assert.True(t, flowrec.Complete(rec))
		tot, ok := want[sessionKey(rec)]
		require.True(t, ok)
		assert.Equal(t, tot.pkts, uint64(rec.Packets()))
		assert.Equal(t, tot.bytes, uint64(rec.Bytes()))
	}
}
