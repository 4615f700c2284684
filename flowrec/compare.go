package flowrec

import (
	"bytes"
	"net/netip"
)

// CompareFn is a total order over Records.  It returns a negative
// number if a sorts before b, zero if they are equivalent, and a
// positive number otherwise.
type CompareFn func(a, b *Record) int

// Comparator returns an ordering over the given fields, compared in
// order with the first difference deciding.  With no fields the full
// record bytes are compared, which is arbitrary but total and
// deterministic.
func Comparator(fields []Field) CompareFn {
	if len(fields) == 0 {
		return func(a, b *Record) int {
			return bytes.Compare(a[:], b[:])
		}
	}
	comparers := make([]CompareFn, len(fields))
	for i, f := range fields {
		comparers[i] = f.comparer()
	}
	return func(a, b *Record) int {
		for _, c := range comparers {
			if v := c(a, b); v != 0 {
				return v
			}
		}
		return 0
	}
}

func (f Field) comparer() CompareFn {
	switch f {
	case FieldSrcAddr:
		return func(a, b *Record) int { return compareAddr(a.SrcAddr(), b.SrcAddr()) }
	case FieldDstAddr:
		return func(a, b *Record) int { return compareAddr(a.DstAddr(), b.DstAddr()) }
	case FieldNextHop:
		return func(a, b *Record) int { return compareAddr(a.NextHop(), b.NextHop()) }
	case FieldSrcPort:
		return func(a, b *Record) int { return compareU64(uint64(a.SrcPort()), uint64(b.SrcPort())) }
	case FieldDstPort:
		return func(a, b *Record) int { return compareU64(uint64(a.DstPort()), uint64(b.DstPort())) }
	case FieldProto:
		return func(a, b *Record) int { return compareU64(uint64(a.Proto()), uint64(b.Proto())) }
	case FieldFlowType:
		return func(a, b *Record) int { return compareU64(uint64(a.FlowType()), uint64(b.FlowType())) }
	case FieldSensor:
		return func(a, b *Record) int { return compareU64(uint64(a.Sensor()), uint64(b.Sensor())) }
	case FieldInput:
		return func(a, b *Record) int { return compareU64(uint64(a.Input()), uint64(b.Input())) }
	case FieldOutput:
		return func(a, b *Record) int { return compareU64(uint64(a.Output()), uint64(b.Output())) }
	case FieldApplication:
		return func(a, b *Record) int { return compareU64(uint64(a.Application()), uint64(b.Application())) }
	case FieldStartTime:
		return func(a, b *Record) int { return compareI64(a.StartMS(), b.StartMS()) }
	case FieldElapsed:
		return func(a, b *Record) int { return compareU64(uint64(a.ElapsedMS()), uint64(b.ElapsedMS())) }
	}
	panic("flowrec: no comparer for " + f.String())
}

// compareAddr orders IPv4 addresses ahead of IPv6, then compares
// within the family.  Record accessors unmap v4, so Compare gives
// exactly that order.
func compareAddr(x, y netip.Addr) int {
	return x.Compare(y)
}

func compareU64(x, y uint64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func compareI64(x, y int64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}
