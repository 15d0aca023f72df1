package marshal

import (
	"math"

	"github.com/b-jure/tokudae-sub001/internal/bytecode"
	"github.com/b-jure/tokudae-sub001/internal/errors"
	"github.com/b-jure/tokudae-sub001/internal/value"
)

// Undumper reads a dumped chunk back into a FunctionProto tree,
// resolving string back-references against the symmetric per-load table
// (spec section 4.7, "Undump uses the symmetric table indexed by
// ordinal").
type Undumper struct {
	data   []byte
	pos    int
	chunk  string
	interner func(string) *value.String
	strs   []string
}

// Undump parses a chunk produced by Dump. interner is used to produce
// *value.String payloads for string constants — callers without a live
// intern table may pass a function that allocates a fresh *value.String
// per call.
func Undump(data []byte, chunkName string, interner func(string) *value.String) (proto *bytecode.FunctionProto, err error) {
	u := &Undumper{data: data, chunk: chunkName, interner: interner}
	defer func() {
		if r := recover(); r != nil {
			if te, ok := r.(*errors.TokudaeError); ok {
				err = te
				return
			}
			panic(r)
		}
	}()
	u.header()
	proto = u.function()
	return proto, nil
}

func (u *Undumper) fail(why string) {
	panic(errors.NewSyntaxErrorf(u.chunk, 0, 0, "bad binary format: %s", why))
}

func (u *Undumper) need(n int) {
	if u.pos+n > len(u.data) {
		u.fail("truncated chunk")
	}
}

func (u *Undumper) byte() byte {
	u.need(1)
	b := u.data[u.pos]
	u.pos++
	return b
}

func (u *Undumper) bytesN(n int) []byte {
	u.need(n)
	b := u.data[u.pos : u.pos+n]
	u.pos += n
	return b
}

func (u *Undumper) literal(s string) {
	b := u.bytesN(len(s))
	if string(b) != s {
		u.fail("signature mismatch")
	}
}

func (u *Undumper) varint() uint64 {
	var result uint64
	var shift uint
	for {
		b := u.byte()
		result |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return result
		}
		shift += 7
		if shift > 63 {
			u.fail("varint overflow")
		}
	}
}

func unzigzag(v uint64) int64 {
	if v&1 == 0 {
		return int64(v >> 1)
	}
	return ^int64(v >> 1)
}

func (u *Undumper) svarint() int64 { return unzigzag(u.varint()) }

func (u *Undumper) bool1() bool {
	switch u.byte() {
	case 0:
		return false
	case 1:
		return true
	default:
		u.fail("malformed boolean")
		return false
	}
}

func (u *Undumper) float() float64 {
	b := u.bytesN(8)
	var bits uint64
	for i := 0; i < 8; i++ {
		bits |= uint64(b[i]) << (8 * uint(i))
	}
	return math.Float64frombits(bits)
}

func (u *Undumper) skipAlign(align int) {
	for u.pos%align != 0 {
		u.byte()
	}
}

func (u *Undumper) header() {
	u.literal(magic)
	if v := u.byte(); v != version {
		u.fail("version mismatch")
	}
	if f := u.byte(); f != format {
		u.fail("format mismatch")
	}
	u.literal(dataCheck)

	if n := u.byte(); n != 1 {
		u.fail("int-check size")
	}
	if int8(u.byte()) != int8(intCheckVal) {
		u.fail("int-check value (endianness mismatch?)")
	}

	if n := u.byte(); n != 1 {
		u.fail("byte-check size")
	}
	if u.byte() != byteCheckVal {
		u.fail("byte-check value")
	}

	if n := u.byte(); n != 1 {
		u.fail("host int-check size")
	}
	if u.svarint() != hostIntCheck {
		u.fail("host int-check value")
	}

	if n := u.byte(); n != 1 {
		u.fail("host num-check size")
	}
	if u.float() != hostNumCheck {
		u.fail("host num-check value (float format mismatch?)")
	}
}

// str reads one (possibly back-referenced) string, or nil (spec section
// 4.7, "String deduplication"). A present-but-empty string (size marker
// 2) must round-trip distinctly from an absent one (size marker 0) —
// rawStrPresent reports which case was on the wire since both decode to
// the Go string "".
func (u *Undumper) str() *value.String {
	s, present := u.rawStrPresent()
	if !present {
		return nil
	}
	return u.interner(s)
}

func (u *Undumper) rawStr() string {
	s, _ := u.rawStrPresent()
	return s
}

func (u *Undumper) rawStrPresent() (string, bool) {
	n := u.varint()
	switch {
	case n == 0:
		return "", false
	case n == 1:
		ord := int(u.varint())
		if ord < 0 || ord >= len(u.strs) {
			u.fail("string ordinal out of range")
		}
		return u.strs[ord], true
	default:
		size := int(n) - 2
		b := u.bytesN(size)
		if u.byte() != 0 {
			u.fail("string missing NUL terminator")
		}
		s := string(b)
		u.strs = append(u.strs, s)
		return s, true
	}
}

func (u *Undumper) function() *bytecode.FunctionProto {
	p := bytecode.NewFunctionProto()

	p.IsVararg = u.bool1()
	p.DefLine = int32(u.svarint())
	p.DefLastLine = int32(u.svarint())
	p.Arity = int32(u.svarint())
	p.MaxStack = int32(u.svarint())

	codeLen := int(u.varint())
	u.skipAlign(opcodeAlign)
	p.Code = append([]byte(nil), u.bytesN(codeLen)...)

	nk := int(u.varint())
	p.K = make([]value.Value, nk)
	for i := 0; i < nk; i++ {
		p.K[i] = u.constant()
	}

	nup := int(u.varint())
	p.Upvals = make([]bytecode.UpvalInfo, nup)
	for i := 0; i < nup; i++ {
		idx := u.varint()
		inStack := u.bool1()
		kind := u.byte()
		p.Upvals[i] = bytecode.UpvalInfo{Idx: uint32(idx), InStack: inStack, Kind: bytecode.UpvalKind(kind)}
	}

	np := int(u.varint())
	p.P = make([]*bytecode.FunctionProto, np)
	for i := 0; i < np; i++ {
		p.P[i] = u.function()
	}

	u.debug(p)
	return p
}

func (u *Undumper) constant() value.Value {
	tag := constTag(u.byte())
	switch tag {
	case tagNil:
		return value.Nil()
	case tagFalse:
		return value.Bool(false)
	case tagTrue:
		return value.Bool(true)
	case tagInt:
		return value.Int(u.svarint())
	case tagFloat:
		return value.Float(u.float())
	case tagShortStr:
		return value.ShortStr(u.str())
	case tagLongStr:
		return value.LongStr(u.str())
	default:
		u.fail("invalid constant tag")
		return value.Nil()
	}
}

func (u *Undumper) debug(p *bytecode.FunctionProto) {
	p.Source = u.rawStr()

	nline := int(u.varint())
	if nline > 0 {
		p.LineInfo = make([]int8, nline)
		for i := 0; i < nline; i++ {
			p.LineInfo[i] = int8(u.byte())
		}
	}

	nabs := int(u.varint())
	if nabs > 0 {
		u.skipAlign(absLineAlign)
		p.AbsLineInfo = make([]bytecode.AbsLineEntry, nabs)
		for i := 0; i < nabs; i++ {
			pc := int32(u.svarint())
			line := int32(u.svarint())
			p.AbsLineInfo[i] = bytecode.AbsLineEntry{PC: pc, Line: line}
		}
	}

	nopc := int(u.varint())
	if nopc > 0 {
		p.OpcodePC = make([]int32, nopc)
		for i := 0; i < nopc; i++ {
			p.OpcodePC[i] = int32(u.svarint())
		}
	}

	nloc := int(u.varint())
	if nloc > 0 {
		p.Locals = make([]bytecode.LocalInfo, nloc)
		for i := 0; i < nloc; i++ {
			name := u.rawStr()
			start := int32(u.svarint())
			end := int32(u.svarint())
			p.Locals[i] = bytecode.LocalInfo{Name: name, StartPC: start, EndPC: end}
		}
	}

	for i := range p.Upvals {
		p.Upvals[i].Name = u.rawStr()
	}
}
