package flowrec_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/flowseam/flowseam/flowrec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAccessors(t *testing.T) {
	var r flowrec.Record
	r.SetSrcAddr(netip.MustParseAddr("10.1.2.3"))
	r.SetDstAddr(netip.MustParseAddr("2001:db8::1"))
	r.SetNextHop(netip.MustParseAddr("192.168.0.1"))
	r.SetSrcPort(54321)
	r.SetDstPort(443)
	r.SetProto(6)
	r.SetFlowType(2)
	r.SetSensor(7)
	r.SetTCPFlags(0x13)
	r.SetInitFlags(0x02)
	r.SetRestFlags(0x11)
	r.SetAttrs(flowrec.AttrTimedOut | flowrec.AttrUniformSize)
	r.SetApplication(443)
	r.SetMemo(9)
	r.SetInput(3)
	r.SetOutput(4)
	r.SetStartMS(1700000000123)
	r.SetElapsedMS(30500)
	r.SetPackets(42)
	r.SetBytes(4096)

	assert.Equal(t, netip.MustParseAddr("10.1.2.3"), r.SrcAddr())
	assert.True(t, r.SrcAddr().Is4())
	assert.Equal(t, netip.MustParseAddr("2001:db8::1"), r.DstAddr())
	assert.Equal(t, netip.MustParseAddr("192.168.0.1"), r.NextHop())
	assert.Equal(t, uint16(54321), r.SrcPort())
	assert.Equal(t, uint16(443), r.DstPort())
	assert.Equal(t, uint8(6), r.Proto())
	assert.Equal(t, uint8(2), r.FlowType())
	assert.Equal(t, uint16(7), r.Sensor())
	assert.Equal(t, uint8(0x13), r.TCPFlags())
	assert.Equal(t, uint8(0x02), r.InitFlags())
	assert.Equal(t, uint8(0x11), r.RestFlags())
	assert.Equal(t, flowrec.AttrTimedOut|flowrec.AttrUniformSize, r.Attrs())
	assert.Equal(t, uint16(443), r.Application())
	assert.Equal(t, uint16(9), r.Memo())
	assert.Equal(t, uint16(3), r.Input())
	assert.Equal(t, uint16(4), r.Output())
	assert.Equal(t, int64(1700000000123), r.StartMS())
	assert.Equal(t, uint32(30500), r.ElapsedMS())
	assert.Equal(t, int64(1700000030623), r.EndMS())
	assert.Equal(t, 30500*time.Millisecond, r.Elapsed())
	assert.Equal(t, uint32(42), r.Packets())
	assert.Equal(t, uint32(4096), r.Bytes())
}

func TestAttributes(t *testing.T) {
	a, err := flowrec.ParseAttributes("TC")
	require.NoError(t, err)
	assert.Equal(t, flowrec.AttrTimedOut|flowrec.AttrContinuation, a)
	assert.Equal(t, "TC", a.String())

	a, err = flowrec.ParseAttributes("CSF")
	require.NoError(t, err)
	assert.Equal(t, "SFC", a.String())

	_, err = flowrec.ParseAttributes("TX")
	assert.EqualError(t, err, `unknown flow attribute 'X'`)
	_, err = flowrec.ParseAttributes("TT")
	assert.EqualError(t, err, `duplicate flow attribute 'T'`)

	a, err = flowrec.ParseAttributes("")
	require.NoError(t, err)
	assert.Equal(t, flowrec.Attributes(0), a)
	assert.Equal(t, "", a.String())
}

func TestDisposition(t *testing.T) {
	cases := []struct {
		attrs string
		want  flowrec.Disposition
	}{
		{"", flowrec.Whole},
		{"S", flowrec.Whole},
		{"T", flowrec.MissingEnd},
		{"C", flowrec.MissingStart},
		{"TC", flowrec.MissingBoth},
	}
	for _, c := range cases {
		attrs, err := flowrec.ParseAttributes(c.attrs)
		require.NoError(t, err)
		var r flowrec.Record
		r.SetAttrs(attrs)
		assert.Equal(t, c.want, r.Disposition(), "attrs %q", c.attrs)
		assert.Equal(t, c.want == flowrec.Whole, flowrec.Complete(&r), "attrs %q", c.attrs)
	}
}

func TestParseFields(t *testing.T) {
	fields, err := flowrec.ParseFields("sip, dport,5")
	require.NoError(t, err)
	assert.Equal(t, []flowrec.Field{flowrec.FieldSrcAddr, flowrec.FieldDstPort, flowrec.FieldProto}, fields)

	fields, err = flowrec.ParseFields("")
	require.NoError(t, err)
	assert.Nil(t, fields)

	_, err = flowrec.ParseFields("sip,bogus")
	assert.EqualError(t, err, `unknown field "bogus"`)
	_, err = flowrec.ParseFields("99")
	assert.Error(t, err)
}

func TestKeyIgnoring(t *testing.T) {
	key, err := flowrec.KeyIgnoring(nil)
	require.NoError(t, err)
	assert.Equal(t, flowrec.DefaultKey(), key)

	key, err = flowrec.KeyIgnoring([]flowrec.Field{flowrec.FieldSrcPort, flowrec.FieldNextHop})
	require.NoError(t, err)
	assert.NotContains(t, key, flowrec.FieldSrcPort)
	assert.NotContains(t, key, flowrec.FieldNextHop)
	assert.Len(t, key, len(flowrec.DefaultKey())-2)

	_, err = flowrec.KeyIgnoring([]flowrec.Field{flowrec.FieldStartTime})
	assert.EqualError(t, err, "field stime cannot be ignored")
}
