package bytecode

import "github.com/b-jure/tokudae-sub001/internal/value"

// MaxIWthAbs bounds how many consecutive relative line-info entries may
// appear before the next one is forced absolute (spec section 4.5,
// "MAXIWTHABS" in the original source).
const MaxIWthAbs = 128

// AbsentLine is the lineinfo[] sentinel marking a pc whose line is only
// recorded in AbsLineInfo.
const AbsentLine int8 = -128

// UpvalKind distinguishes how an upvalue's lifetime is managed.
type UpvalKind uint8

const (
	UpvalRegular UpvalKind = iota
	UpvalFinal
	UpvalTBC
)

// UpvalInfo describes one upvalue captured by a closure (spec section 3).
type UpvalInfo struct {
	Idx     uint32 // index into the parent's locals (InStack) or upvals
	InStack bool
	Kind    UpvalKind
	Name    string
}

// LocalInfo is debug-only local variable liveness info.
type LocalInfo struct {
	Name    string
	StartPC int32
	EndPC   int32
}

// AbsLineEntry anchors an absolute line number at a pc (spec section 3,
// invariant 1: entries are monotone by pc).
type AbsLineEntry struct {
	PC   int32
	Line int32
}

// FunctionProto is the compiler's primary output: one static description
// per source-level function (spec section 3).
type FunctionProto struct {
	Code  []byte
	K     []value.Value
	P     []*FunctionProto
	Upvals []UpvalInfo
	Locals []LocalInfo

	LineInfo    []int8
	AbsLineInfo []AbsLineEntry
	OpcodePC    []int32

	Source      string
	DefLine     int32
	DefLastLine int32
	Arity       int32
	IsVararg    bool
	MaxStack    int32
}

func NewFunctionProto() *FunctionProto {
	return &FunctionProto{}
}

// PC returns the current write position — the pc the next WriteOp call
// will occupy.
func (p *FunctionProto) PC() int32 { return int32(len(p.Code)) }

// GetLine returns the source line recorded for instruction pc, resolving
// through AbsLineInfo when LineInfo[pc] holds the sentinel (spec section
// 3, invariant 1).
func (p *FunctionProto) GetLine(pc int32) int32 {
	if int(pc) >= len(p.LineInfo) {
		return 0
	}
	if p.LineInfo[pc] == AbsentLine {
		for _, e := range p.AbsLineInfo {
			if e.PC == pc {
				return e.Line
			}
		}
		return 0
	}
	// Walk back to the nearest preceding absolute entry (or the start of
	// the function) and replay deltas forward to pc.
	// Each LineInfo entry is the delta from the previous instruction's
	// line, so the anchor's own entry is skipped and pc's is included.
	base, line := int32(-1), int32(0)
	for _, e := range p.AbsLineInfo {
		if e.PC > pc {
			break
		}
		base, line = e.PC, e.Line
	}
	for i := base + 1; i <= pc; i++ {
		if p.LineInfo[i] != AbsentLine {
			line += int32(p.LineInfo[i])
		}
	}
	return line
}

// Strip removes every debug-only field in place (spec section 4.7 "strip
// mode"): Source, LineInfo, AbsLineInfo, OpcodePC, Locals and upvalue
// names, recursively over nested protos.
func (p *FunctionProto) Strip() {
	p.Source = ""
	p.LineInfo = nil
	p.AbsLineInfo = nil
	p.OpcodePC = nil
	p.Locals = nil
	for i := range p.Upvals {
		p.Upvals[i].Name = ""
	}
	for _, child := range p.P {
		child.Strip()
	}
}
