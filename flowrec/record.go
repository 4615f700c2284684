// Package flowrec defines the fixed-size binary representation of a
// bidirectional network flow record along with the ordering and
// coalescing rules that operate on it.
package flowrec

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"
)

// Size is the wire size of a Record in bytes.  Every Record occupies
// exactly this many bytes in files, spill runs, and sort buffers.
const Size = 88

// Field offsets into a Record.  All multibyte integers are
// little-endian.
const (
	offSrcAddr   = 0  // 16 bytes
	offDstAddr   = 16 // 16 bytes
	offNextHop   = 32 // 16 bytes
	offSrcPort   = 48 // uint16
	offDstPort   = 50 // uint16
	offProto     = 52 // uint8
	offFlowType  = 53 // uint8
	offSensor    = 54 // uint16
	offTCPFlags  = 56 // uint8
	offInitFlags = 57 // uint8
	offRestFlags = 58 // uint8
	offAttrs     = 59 // uint8
	offApp       = 60 // uint16
	offMemo      = 62 // uint16
	offInput     = 64 // uint16
	offOutput    = 66 // uint16
	offStartMS   = 68 // int64, Unix epoch milliseconds
	offElapsedMS = 76 // uint32, milliseconds
	offPackets   = 80 // uint32
	offBytes     = 84 // uint32
)

// Record is a single flow record.  The zero value is a valid record
// with all fields zero.
type Record [Size]byte

func (r *Record) SrcAddr() netip.Addr  { return addrAt(r, offSrcAddr) }
func (r *Record) DstAddr() netip.Addr  { return addrAt(r, offDstAddr) }
func (r *Record) NextHop() netip.Addr  { return addrAt(r, offNextHop) }
func (r *Record) SrcPort() uint16      { return getU16(r, offSrcPort) }
func (r *Record) DstPort() uint16      { return getU16(r, offDstPort) }
func (r *Record) Proto() uint8         { return r[offProto] }
func (r *Record) FlowType() uint8      { return r[offFlowType] }
func (r *Record) Sensor() uint16       { return getU16(r, offSensor) }
func (r *Record) TCPFlags() uint8      { return r[offTCPFlags] }
func (r *Record) InitFlags() uint8     { return r[offInitFlags] }
func (r *Record) RestFlags() uint8     { return r[offRestFlags] }
func (r *Record) Attrs() Attributes    { return Attributes(r[offAttrs]) }
func (r *Record) Application() uint16  { return getU16(r, offApp) }
func (r *Record) Memo() uint16         { return getU16(r, offMemo) }
func (r *Record) Input() uint16        { return getU16(r, offInput) }
func (r *Record) Output() uint16       { return getU16(r, offOutput) }
func (r *Record) StartMS() int64       { return int64(getU64(r, offStartMS)) }
func (r *Record) ElapsedMS() uint32    { return getU32(r, offElapsedMS) }
func (r *Record) Packets() uint32      { return getU32(r, offPackets) }
func (r *Record) Bytes() uint32        { return getU32(r, offBytes) }

func (r *Record) SetSrcAddr(a netip.Addr) { putAddr(r, offSrcAddr, a) }
func (r *Record) SetDstAddr(a netip.Addr) { putAddr(r, offDstAddr, a) }
func (r *Record) SetNextHop(a netip.Addr) { putAddr(r, offNextHop, a) }
func (r *Record) SetSrcPort(v uint16)     { putU16(r, offSrcPort, v) }
func (r *Record) SetDstPort(v uint16)     { putU16(r, offDstPort, v) }
func (r *Record) SetProto(v uint8)        { r[offProto] = v }
func (r *Record) SetFlowType(v uint8)     { r[offFlowType] = v }
func (r *Record) SetSensor(v uint16)      { putU16(r, offSensor, v) }
func (r *Record) SetTCPFlags(v uint8)     { r[offTCPFlags] = v }
func (r *Record) SetInitFlags(v uint8)    { r[offInitFlags] = v }
func (r *Record) SetRestFlags(v uint8)    { r[offRestFlags] = v }
func (r *Record) SetAttrs(a Attributes)   { r[offAttrs] = uint8(a) }
func (r *Record) SetApplication(v uint16) { putU16(r, offApp, v) }
func (r *Record) SetMemo(v uint16)        { putU16(r, offMemo, v) }
func (r *Record) SetInput(v uint16)       { putU16(r, offInput, v) }
func (r *Record) SetOutput(v uint16)      { putU16(r, offOutput, v) }
func (r *Record) SetStartMS(v int64)      { putU64(r, offStartMS, uint64(v)) }
func (r *Record) SetElapsedMS(v uint32)   { putU32(r, offElapsedMS, v) }
func (r *Record) SetPackets(v uint32)     { putU32(r, offPackets, v) }
func (r *Record) SetBytes(v uint32)       { putU32(r, offBytes, v) }

// EndMS returns the flow's end time in Unix epoch milliseconds, i.e.,
// its start time plus its elapsed duration.
func (r *Record) EndMS() int64 {
	return r.StartMS() + int64(r.ElapsedMS())
}

func (r *Record) Start() time.Time {
	return time.UnixMilli(r.StartMS())
}

func (r *Record) End() time.Time {
	return time.UnixMilli(r.EndMS())
}

func (r *Record) Elapsed() time.Duration {
	return time.Duration(r.ElapsedMS()) * time.Millisecond
}

func (r *Record) String() string {
	return fmt.Sprintf("%s:%d > %s:%d proto %d start %d elapsed %d pkts %d bytes %d attrs %s",
		r.SrcAddr(), r.SrcPort(), r.DstAddr(), r.DstPort(), r.Proto(),
		r.StartMS(), r.ElapsedMS(), r.Packets(), r.Bytes(), r.Attrs())
}

// addrAt decodes the 16-byte address at off.  IPv4 addresses are
// stored in v4-mapped form and come back as plain v4.
func addrAt(r *Record, off int) netip.Addr {
	var b [16]byte
	copy(b[:], r[off:off+16])
	return netip.AddrFrom16(b).Unmap()
}

func putAddr(r *Record, off int, a netip.Addr) {
	b := a.As16()
	copy(r[off:off+16], b[:])
}

func getU16(r *Record, off int) uint16 {
	return binary.LittleEndian.Uint16(r[off:])
}

func putU16(r *Record, off int, v uint16) {
	binary.LittleEndian.PutUint16(r[off:], v)
}

func getU32(r *Record, off int) uint32 {
	return binary.LittleEndian.Uint32(r[off:])
}

func putU32(r *Record, off int, v uint32) {
	binary.LittleEndian.PutUint32(r[off:], v)
}

func getU64(r *Record, off int) uint64 {
	return binary.LittleEndian.Uint64(r[off:])
}

func putU64(r *Record, off int, v uint64) {
	binary.LittleEndian.PutUint64(r[off:], v)
}
