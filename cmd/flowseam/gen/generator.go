package gen

import (
	"math/rand"
	"net/netip"
	"time"

	"github.com/flowseam/flowseam/flowrec"
)

var servicePorts = []uint16{22, 25, 53, 80, 123, 443, 8080}

// generator produces flows with plausible addresses, sizes, and
// timing.  All randomness comes from one seeded source, so a given
// seed and flow count always produce the same records.
type generator struct {
	rng   *rand.Rand
	split float64
	clock int64
}

func newGenerator(seed int64, split float64) *generator {
	return &generator{
		rng:   rand.New(rand.NewSource(seed)),
		split: split,
		clock: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
	}
}

// generate returns the records of n flows as one shuffled batch, so
// fragments of a flow do not arrive back to back.
func (g *generator) generate(n int) []flowrec.Record {
	var recs []flowrec.Record
	for i := 0; i < n; i++ {
		recs = append(recs, g.flow()...)
	}
	g.rng.Shuffle(len(recs), func(i, j int) {
		recs[i], recs[j] = recs[j], recs[i]
	})
	return recs
}

func (g *generator) flow() []flowrec.Record {
	var base flowrec.Record
	base.SetSrcAddr(g.addr(10))
	base.SetDstAddr(g.addr(192))
	base.SetSrcPort(uint16(1024 + g.rng.Intn(64512)))
	base.SetDstPort(servicePorts[g.rng.Intn(len(servicePorts))])
	proto := uint8(6)
	if g.rng.Float64() < 0.3 {
		proto = 17
	}
	base.SetProto(proto)
	base.SetSensor(uint16(1 + g.rng.Intn(4)))
	base.SetInput(uint16(g.rng.Intn(8)))
	base.SetOutput(uint16(g.rng.Intn(8)))
	if proto == 6 {
		// SYN plus a random sprinkle of ACK/PSH/FIN.
		base.SetTCPFlags(0x02 | uint8(g.rng.Intn(4))<<3 | uint8(g.rng.Intn(2)))
	}
	g.clock += int64(g.rng.Intn(2000))
	pkts := uint32(1 + g.rng.Intn(1000))
	uniform := g.rng.Float64() < 0.2
	var bytes uint32
	if uniform {
		bytes = pkts * uint32(40+g.rng.Intn(1400))
	} else {
		bytes = pkts*40 + uint32(g.rng.Intn(100000))
	}
	if g.rng.Float64() >= g.split || pkts < 2 {
		base.SetStartMS(g.clock)
		base.SetElapsedMS(uint32(g.rng.Intn(60000)))
		base.SetPackets(pkts)
		base.SetBytes(bytes)
		if uniform {
			base.SetAttrs(flowrec.AttrUniformSize)
		}
		return []flowrec.Record{base}
	}
	return g.fragments(base, pkts, bytes, uniform)
}

// fragments breaks one flow into a chain of timed-out records whose
// packet and byte counts sum to the whole.
func (g *generator) fragments(base flowrec.Record, pkts, bytes uint32, uniform bool) []flowrec.Record {
	k := 2 + g.rng.Intn(3)
	if uint32(k) > pkts {
		k = int(pkts)
	}
	pktParts := splitN(g.rng, pkts, k)
	byteParts := make([]uint32, k)
	perPkt := bytes / pkts
	var given uint32
	for i := 0; i < k-1; i++ {
		byteParts[i] = pktParts[i] * perPkt
		given += byteParts[i]
	}
	byteParts[k-1] = bytes - given
	start := g.clock
	recs := make([]flowrec.Record, 0, k)
	for i := 0; i < k; i++ {
		rec := base
		rec.SetStartMS(start)
		dur := uint32(100 + g.rng.Intn(30000))
		rec.SetElapsedMS(dur)
		rec.SetPackets(pktParts[i])
		rec.SetBytes(byteParts[i])
		var attrs flowrec.Attributes
		if i < k-1 {
			attrs |= flowrec.AttrTimedOut
		}
		if i > 0 {
			attrs |= flowrec.AttrContinuation
		}
		if uniform && byteParts[i]%pktParts[i] == 0 {
			attrs |= flowrec.AttrUniformSize
		}
		rec.SetAttrs(attrs)
		recs = append(recs, rec)
		start += int64(dur) + int64(1000+g.rng.Intn(29000))
	}
	return recs
}

func (g *generator) addr(firstOctet byte) netip.Addr {
	return netip.AddrFrom4([4]byte{
		firstOctet,
		byte(g.rng.Intn(256)),
		byte(g.rng.Intn(256)),
		byte(1 + g.rng.Intn(255)),
	})
}

// splitN breaks total into n positive parts that sum to total.
func splitN(rng *rand.Rand, total uint32, n int) []uint32 {
	parts := make([]uint32, n)
	remaining := total - uint32(n)
	for i := range parts {
		parts[i] = 1
	}
	for i := 0; i < n-1; i++ {
		share := uint32(rng.Int63n(int64(remaining) + 1))
		parts[i] += share
		remaining -= share
	}
	parts[n-1] += remaining
	return parts
}
