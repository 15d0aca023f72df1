package code

import (
	"github.com/b-jure/tokudae-sub001/internal/bytecode"
	"github.com/b-jure/tokudae-sub001/internal/errors"
)

// NoJump marks an empty/terminated jump list (spec section 4.5,
// "Two lists form a NOJMP sentinel when empty"). Represented as a plain
// nil/empty []int32 rather than a threaded in-code chain — the pc list
// lives on the ExpInfo, not inside the instruction stream.
const NoJump int32 = -1

// maxJmp bounds a jump's encodable magnitude (spec section 4.2, 24-bit
// immediate) and is reused for the "control structure too long" check
// (spec section 6).
const maxJmp = 0x7FFFFF

// Emitter drives one FunctionProto's code/const/line-info construction.
// One Emitter exists per FunctionState in the parser (spec section 4.6).
type Emitter struct {
	proto    *bytecode.FunctionProto
	Consts   *ConstPool
	sp       int32
	prevline int32
	prevpc   int32
	iwthabs  int32
	// lastTarget is the highest pc that is a confirmed jump target; no
	// NIL/POP merge or peephole rewrite may reach across it (spec section
	// 4.5/4.6, "lasttarget <= currPC invariant").
	lastTarget int32
}

func NewEmitter(proto *bytecode.FunctionProto, pool *ConstPool) *Emitter {
	return &Emitter{proto: proto, Consts: pool, prevpc: -1}
}

func (e *Emitter) Proto() *bytecode.FunctionProto { return e.proto }
func (e *Emitter) SP() int32                      { return e.sp }
func (e *Emitter) PC() int32                      { return e.proto.PC() }

// SetSP forcibly sets the compile-time stack pointer — used after a
// scope closes or a multi-result call is finalized to a known width.
func (e *Emitter) SetSP(n int32) { e.sp = n }

func (e *Emitter) fillerLine() {
	e.proto.LineInfo = append(e.proto.LineInfo, bytecode.AbsentLine)
}

// saveLine records debug info for the instruction starting at the
// current pc (spec section 4.5, save_line).
func (e *Emitter) saveLine(line int32) {
	delta := line - e.prevline
	if e.prevpc < 0 || delta < -127 || delta > 127 || e.iwthabs >= bytecode.MaxIWthAbs {
		e.proto.LineInfo = append(e.proto.LineInfo, bytecode.AbsentLine)
		e.proto.AbsLineInfo = append(e.proto.AbsLineInfo, bytecode.AbsLineEntry{PC: e.proto.PC(), Line: line})
		e.iwthabs = 0
	} else {
		e.proto.LineInfo = append(e.proto.LineInfo, int8(delta))
		e.iwthabs++
	}
	e.prevline = line
}

func put3(code []byte, v int32) []byte {
	buf := make([]byte, 3)
	bytecode.Put3Bytes(buf, 0, uint32(v))
	return buf
}

// Emit appends one instruction of op's fixed format, writing operands
// (interpreted per format: FormatIS/ILS/ILLS takes a trailing short,
// FormatIL/ILL/ILLL takes one/two/three longs before any short) and
// recording line and opcodepc info. It does not adjust sp — call
// AdjustSP (most callers use the push/pop/chgsp-aware helpers below
// instead of Emit directly).
func (e *Emitter) Emit(op bytecode.OpCode, line int32, operands ...int32) int32 {
	pc := e.proto.PC()
	e.proto.OpcodePC = append(e.proto.OpcodePC, pc)
	e.saveLine(line)
	e.proto.Code = append(e.proto.Code, byte(op))

	switch op.Format() {
	case bytecode.FormatI:
	case bytecode.FormatIS:
		e.fillerLine()
		e.proto.Code = append(e.proto.Code, byte(operands[0]))
	case bytecode.FormatISS:
		e.fillerLine()
		e.fillerLine()
		e.proto.Code = append(e.proto.Code, byte(operands[0]), byte(operands[1]))
	case bytecode.FormatIL:
		e.fillerLine()
		e.fillerLine()
		e.fillerLine()
		e.proto.Code = append(e.proto.Code, put3(nil, operands[0])...)
	case bytecode.FormatILS:
		for i := 0; i < 4; i++ {
			e.fillerLine()
		}
		e.proto.Code = append(e.proto.Code, put3(nil, operands[0])...)
		e.proto.Code = append(e.proto.Code, byte(operands[1]))
	case bytecode.FormatILL:
		for i := 0; i < 6; i++ {
			e.fillerLine()
		}
		e.proto.Code = append(e.proto.Code, put3(nil, operands[0])...)
		e.proto.Code = append(e.proto.Code, put3(nil, operands[1])...)
	case bytecode.FormatILLS:
		for i := 0; i < 7; i++ {
			e.fillerLine()
		}
		e.proto.Code = append(e.proto.Code, put3(nil, operands[0])...)
		e.proto.Code = append(e.proto.Code, put3(nil, operands[1])...)
		e.proto.Code = append(e.proto.Code, byte(operands[2]))
	case bytecode.FormatILLL:
		for i := 0; i < 9; i++ {
			e.fillerLine()
		}
		e.proto.Code = append(e.proto.Code, put3(nil, operands[0])...)
		e.proto.Code = append(e.proto.Code, put3(nil, operands[1])...)
		e.proto.Code = append(e.proto.Code, put3(nil, operands[2])...)
	}
	e.prevpc = pc
	return pc
}

// AdjustSP applies op's stack effect, resolving VarDelta push/pop
// against operand (the instruction's count-shaped argument, 0 for
// fixed-effect opcodes) and raises maxstack if needed.
func (e *Emitter) AdjustSP(op bytecode.OpCode, operand int32) {
	e.sp += int32(bytecode.StackDelta(op, operand))
	e.checkStack(0)
}

// checkStack raises proto.MaxStack to sp+extra if needed, matching
// checkstack's MAX_CODE-bounded growth (spec section 4.5).
func (e *Emitter) checkStack(extra int32) {
	need := e.sp + extra
	if need > e.proto.MaxStack {
		e.proto.MaxStack = need
	}
}

// CheckStack is the parser-facing entry point for reserving n extra
// stack slots ahead of an operation that doesn't go through Emit's
// normal accounting (e.g. before a list/table constructor).
func (e *Emitter) CheckStack(n int32) { e.checkStack(n) }

// --- Jump lists -----------------------------------------------------

// Jmp emits an unconditional jump with a placeholder target and returns
// its pc, to be linked into a jump list and patched later.
func (e *Emitter) Jmp(line int32) int32 {
	return e.Emit(bytecode.OpJmp, line, 0)
}

// Test emits a conditional TEST (peeks, does not pop) followed by a
// placeholder jump, returning the jump's pc (spec section 4.5, `test`).
func (e *Emitter) Test(cond bool, line int32) int32 {
	c := int32(0)
	if cond {
		c = 1
	}
	e.Emit(bytecode.OpTest, line, c)
	return e.Jmp(line)
}

// TestPop is Test's value-consuming sibling, used when the tested value
// is not needed after the branch.
func (e *Emitter) TestPop(cond bool, line int32) int32 {
	c := int32(0)
	if cond {
		c = 1
	}
	e.Emit(bytecode.OpTestPop, line, c)
	e.AdjustSP(bytecode.OpTestPop, 0)
	return e.Jmp(line)
}

// ConcatJL links pc2 onto the tail of list l (spec section 4.5,
// `concatjl`). A NoJump pc2 is a no-op.
func ConcatJL(l *[]int32, pc2 int32) {
	if pc2 == NoJump {
		return
	}
	*l = append(*l, pc2)
}

// Patch backpatches every jump pc in list to target, rewriting JMP<->JMPS
// as needed for the actual direction (spec section 4.5 peephole rule)
// and raising a capacity error if the distance can't be encoded.
func (e *Emitter) Patch(list []int32, target int32) error {
	for _, pc := range list {
		if err := e.patchOne(pc, target); err != nil {
			return err
		}
	}
	if target > e.lastTarget {
		e.lastTarget = target
	}
	return nil
}

func (e *Emitter) patchOne(pc, target int32) error {
	op := bytecode.OpCode(e.proto.Code[pc])
	instrEnd := pc + int32(bytecode.OpSize(op))
	dist := target - instrEnd
	if dist < 0 {
		dist = -dist
		op = bytecode.OpJmpS
	} else if op == bytecode.OpJmpS {
		op = bytecode.OpJmp
	}
	if dist > maxJmp {
		return errors.NewSyntaxError("control structure too long", e.proto.Source, int(e.prevline), 0)
	}
	e.proto.Code[pc] = byte(op)
	copy(e.proto.Code[pc+1:pc+4], put3(nil, dist))
	return nil
}

// PatchToHere patches pc (and its chained list) to the current pc.
func (e *Emitter) PatchToHere(list []int32) error {
	return e.Patch(list, e.PC())
}

// --- Peephole: NIL/POP merging --------------------------------------

// EmitNil appends OpNil(n), merging into an immediately preceding
// OpNil when the current pc is not a confirmed jump target (spec
// section 4.5 peephole rule).
func (e *Emitter) EmitNil(n int32, line int32) {
	if e.canMergeWith(bytecode.OpNil) {
		last := e.prevpc
		cur := bytecode.DecodeImmL(bytecode.Get3Bytes(e.proto.Code, int(last)+1))
		bytecode.Put3Bytes(e.proto.Code, int(last)+1, uint32(cur+n))
		e.sp += n
		e.checkStack(0)
		return
	}
	e.Emit(bytecode.OpNil, line, n)
	e.AdjustSP(bytecode.OpNil, n)
}

// EmitPop appends OpPop(n), merging with an immediately preceding
// OpPop under the same jump-target guard.
func (e *Emitter) EmitPop(n int32, line int32) {
	if n == 0 {
		return
	}
	if e.canMergeWith(bytecode.OpPop) {
		last := e.prevpc
		cur := bytecode.DecodeImmL(bytecode.Get3Bytes(e.proto.Code, int(last)+1))
		bytecode.Put3Bytes(e.proto.Code, int(last)+1, uint32(cur+n))
		e.sp -= n
		return
	}
	e.Emit(bytecode.OpPop, line, n)
	e.AdjustSP(bytecode.OpPop, n)
}

func (e *Emitter) canMergeWith(op bytecode.OpCode) bool {
	if e.prevpc < 0 {
		return false
	}
	if bytecode.OpCode(e.proto.Code[e.prevpc]) != op {
		return false
	}
	return e.prevpc >= e.lastTarget
}
