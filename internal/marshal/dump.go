package marshal

import (
	"bytes"
	"math"

	"github.com/b-jure/tokudae-sub001/internal/bytecode"
	"github.com/b-jure/tokudae-sub001/internal/value"
)

// stringTable tracks dump-time string deduplication ordinals (spec
// section 4.7, "a per-dump table maps already-emitted strings to their
// ordinal").
type stringTable struct {
	ordinals map[string]int
	next     int
}

func newStringTable() *stringTable {
	return &stringTable{ordinals: make(map[string]int)}
}

// Dumper accumulates a dump's output buffer and its live string table.
type Dumper struct {
	buf    bytes.Buffer
	strs   *stringTable
	strip  bool
}

// Dump serializes proto and its transitive closure of nested protos into
// Tokudae's binary chunk format (spec section 4.7). strip omits debug-only
// fields.
func Dump(proto *bytecode.FunctionProto, strip bool) []byte {
	d := &Dumper{strs: newStringTable(), strip: strip}
	d.header()
	d.function(proto)
	return d.buf.Bytes()
}

func (d *Dumper) header() {
	d.buf.WriteString(magic)
	d.buf.WriteByte(version)
	d.buf.WriteByte(format)
	d.buf.WriteString(dataCheck)

	d.buf.WriteByte(1)
	d.buf.WriteByte(byte(int8(intCheckVal)))

	d.buf.WriteByte(1)
	d.buf.WriteByte(byteCheckVal)

	d.buf.WriteByte(1)
	d.varint(zigzag(hostIntCheck))

	d.buf.WriteByte(1)
	d.float(hostNumCheck)
}

// varint writes an unsigned 64-bit value as a 7-bit-per-byte,
// high-bit-continuation varint (spec section 4.3, "MSB continuation").
func (d *Dumper) varint(v uint64) {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			d.buf.WriteByte(b | 0x80)
		} else {
			d.buf.WriteByte(b)
			return
		}
	}
}

func zigzag(n int64) uint64 {
	if n >= 0 {
		return uint64(n) * 2
	}
	return uint64(^n)*2 + 1
}

func (d *Dumper) svarint(n int64) { d.varint(zigzag(n)) }

func (d *Dumper) float(f float64) {
	bits := math.Float64bits(f)
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(bits >> (8 * uint(i)))
	}
	d.buf.Write(b[:])
}

func (d *Dumper) pad(align int) {
	for d.buf.Len()%align != 0 {
		d.buf.WriteByte(0)
	}
}

// str writes one string with dump-time deduplication (spec section 4.7,
// "String deduplication").
func (d *Dumper) str(s *value.String) {
	if s == nil {
		d.buf.WriteByte(0)
		return
	}
	if ord, ok := d.strs.ordinals[s.Data]; ok {
		d.buf.WriteByte(1)
		d.varint(uint64(ord))
		return
	}
	n := len(s.Data)
	d.varint(uint64(n + 2))
	d.buf.WriteString(s.Data)
	d.buf.WriteByte(0)
	d.strs.ordinals[s.Data] = d.strs.next
	d.strs.next++
}

func (d *Dumper) rawStr(s string) {
	if s == "" {
		d.buf.WriteByte(0)
		return
	}
	if ord, ok := d.strs.ordinals[s]; ok {
		d.buf.WriteByte(1)
		d.varint(uint64(ord))
		return
	}
	d.varint(uint64(len(s) + 2))
	d.buf.WriteString(s)
	d.buf.WriteByte(0)
	d.strs.ordinals[s] = d.strs.next
	d.strs.next++
}

func (d *Dumper) bool1(b bool) {
	if b {
		d.buf.WriteByte(1)
	} else {
		d.buf.WriteByte(0)
	}
}

func (d *Dumper) function(p *bytecode.FunctionProto) {
	d.bool1(p.IsVararg)
	d.svarint(int64(p.DefLine))
	d.svarint(int64(p.DefLastLine))
	d.svarint(int64(p.Arity))
	d.svarint(int64(p.MaxStack))

	d.varint(uint64(len(p.Code)))
	d.pad(opcodeAlign)
	d.buf.Write(p.Code)

	d.varint(uint64(len(p.K)))
	for _, k := range p.K {
		d.constant(k)
	}

	d.varint(uint64(len(p.Upvals)))
	for _, u := range p.Upvals {
		d.varint(uint64(u.Idx))
		d.bool1(u.InStack)
		d.buf.WriteByte(byte(u.Kind))
	}

	d.varint(uint64(len(p.P)))
	for _, child := range p.P {
		d.function(child)
	}

	d.debug(p)
}

func (d *Dumper) constant(v value.Value) {
	switch v.Kind() {
	case value.KNil:
		d.buf.WriteByte(byte(tagNil))
	case value.KBool:
		if v.AsBool() {
			d.buf.WriteByte(byte(tagTrue))
		} else {
			d.buf.WriteByte(byte(tagFalse))
		}
	case value.KInt:
		d.buf.WriteByte(byte(tagInt))
		d.svarint(v.AsInt())
	case value.KFloat:
		d.buf.WriteByte(byte(tagFloat))
		d.float(v.AsFloat())
	case value.KShortString:
		d.buf.WriteByte(byte(tagShortStr))
		d.str(v.AsString())
	case value.KLongString:
		d.buf.WriteByte(byte(tagLongStr))
		d.str(v.AsString())
	default:
		// Heap-managed constants never appear in a compiler-produced
		// constant pool (spec section 1): only literal scalars and
		// strings are folded into K.
		d.buf.WriteByte(byte(tagNil))
	}
}

func (d *Dumper) debug(p *bytecode.FunctionProto) {
	if d.strip {
		d.rawStr("")
		d.varint(0)
		d.varint(0)
		d.varint(0)
		d.varint(0)
		for range p.Upvals {
			d.rawStr("")
		}
		return
	}

	d.rawStr(p.Source)

	d.varint(uint64(len(p.LineInfo)))
	for _, b := range p.LineInfo {
		d.buf.WriteByte(byte(b))
	}

	d.varint(uint64(len(p.AbsLineInfo)))
	if len(p.AbsLineInfo) > 0 {
		d.pad(absLineAlign)
	}
	for _, e := range p.AbsLineInfo {
		d.svarint(int64(e.PC))
		d.svarint(int64(e.Line))
	}

	d.varint(uint64(len(p.OpcodePC)))
	for _, pc := range p.OpcodePC {
		d.svarint(int64(pc))
	}

	d.varint(uint64(len(p.Locals)))
	for _, l := range p.Locals {
		d.rawStr(l.Name)
		d.svarint(int64(l.StartPC))
		d.svarint(int64(l.EndPC))
	}

	for _, u := range p.Upvals {
		d.rawStr(u.Name)
	}
}
