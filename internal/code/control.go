package code

import (
	"github.com/b-jure/tokudae-sub001/internal/bytecode"
)

// StoreVar emits the SET* instruction matching v's addressing kind
// (spec section 4.5, `store_var`). left counts stack slots already
// pending below the assigned value from a multi-assignment in
// progress; Super-derived expdescs are never assignable — the parser
// must reject those before calling StoreVar.
func (e *Emitter) StoreVar(v *ExpInfo, left int32, line int32) {
	switch v.Kind {
	case ELocal:
		e.Emit(bytecode.OpSetLocal, line, v.Sidx)
		e.AdjustSP(bytecode.OpSetLocal, 0)
	case EUpval:
		e.Emit(bytecode.OpSetUval, line, v.Vidx)
		e.AdjustSP(bytecode.OpSetUval, 0)
	case EIndexed:
		e.Emit(bytecode.OpSetIndex, line, left)
		e.AdjustSP(bytecode.OpSetIndex, 0)
	case EIndexStr:
		e.Emit(bytecode.OpSetIndexStr, line, left, v.Idx)
		e.AdjustSP(bytecode.OpSetIndexStr, 0)
	case EIndexInt:
		if v.Ival >= 0 && bytecode.FitsShortImm(v.Ival) {
			b, _ := bytecode.EncodeImmS(int32(v.Ival))
			e.Emit(bytecode.OpSetIndexInt, line, left, int32(b))
		} else {
			e.Emit(bytecode.OpSetIndexIntL, line, left, int32(v.Ival))
		}
		e.AdjustSP(bytecode.OpSetIndexInt, 0)
	case EDot:
		e.Emit(bytecode.OpSetProperty, line, left, v.Idx)
		e.AdjustSP(bytecode.OpSetProperty, 0)
	default:
		panic("code: StoreVar on non-assignable expdesc")
	}
}

// Call emits the open CALL instruction: nargs values plus the callee
// are already on the stack; nresults uses MultiRet (-1, biased +1 on
// the wire by encodeNResults) for "all results". Returns an ExpInfo of
// kind ECall pending finalization.
const MultiRet = -1

func encodeNResults(n int32) int32 { return n + 1 }

func (e *Emitter) Call(nargs, nresults int32, line int32) ExpInfo {
	pc := e.Emit(bytecode.OpCall, line, nargs, encodeNResults(nresults), 0)
	operand := nresults
	if nresults == MultiRet {
		operand = 1 // at least the function slot collapses to unknown width; sp fixed up at FinalizeCall
	}
	e.AdjustSP(bytecode.OpCall, operand)
	return ExpInfo{Kind: ECall, Pc: pc}
}

// FinalizeCall resolves a previously open ECall expression to exactly
// nresults values once the caller knows how many it needs (spec
// section 3 invariant 4: "the expression descriptor... has already been
// finalized before any further value is pushed").
func (e *Emitter) FinalizeCall(x *ExpInfo, nresults int32) {
	if x.Kind != ECall {
		return
	}
	bytecode.Put3Bytes(e.proto.Code, int(x.Pc)+4, uint32(encodeNResults(nresults)))
	if nresults != MultiRet {
		x.Kind = EFinExpr
	}
}

// Vararg emits OP_VARARG(want+1); see FinalizeCall for the multi-result
// finalization contract, which applies identically here.
func (e *Emitter) Vararg(nresults int32, line int32) ExpInfo {
	pc := e.Emit(bytecode.OpVararg, line, encodeNResults(nresults))
	e.AdjustSP(bytecode.OpVararg, maxInt32(nresults, 1))
	return ExpInfo{Kind: EVararg, Pc: pc}
}

func (e *Emitter) FinalizeVararg(x *ExpInfo, nresults int32) {
	if x.Kind != EVararg {
		return
	}
	bytecode.Put3Bytes(e.proto.Code, int(x.Pc)+1, uint32(encodeNResults(nresults)))
	if nresults != MultiRet {
		x.Kind = EFinExpr
	}
}

func maxInt32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

// Return emits OP_RETURN for `first` through `first+nresults-1` (or all
// of them, MultiRet-biased). close is set when to-be-closed upvalues
// must run during the return (spec section 4.5 peephole rule: "A RETURN
// at the very end of a function with any outstanding to-be-closed
// upvalue has its close-flag byte set").
func (e *Emitter) Return(first, nresults int32, close bool, line int32) {
	c := int32(0)
	if close {
		c = 1
	}
	e.Emit(bytecode.OpReturn, line, first, encodeNResults(nresults), c)
	operand := nresults
	if nresults == MultiRet {
		operand = 0
	}
	e.AdjustSP(bytecode.OpReturn, operand)
}

// SetReturnClose patches an already-emitted RETURN's close-flag byte in
// place — the finalization pass that decides to-be-closed status may
// run after the RETURN was emitted as part of an implicit
// end-of-function return.
func (e *Emitter) SetReturnClose(pc int32, close bool) {
	c := byte(0)
	if close {
		c = 1
	}
	e.proto.Code[pc+int32(bytecode.OpSize(bytecode.OpReturn))-1] = c
}

// NewClass emits NEWCLASS with a sizing hint encoded as
// ceil_log2(nmethods)+1, with bit 0x80 set if the class declares a
// metatable (spec section 4.6).
func (e *Emitter) NewClass(nmethods int32, hasMetatable bool, line int32) {
	hint := ceilLog2(nmethods) + 1
	if hasMetatable {
		hint |= 0x80
	}
	e.Emit(bytecode.OpNewClass, line, hint)
	e.AdjustSP(bytecode.OpNewClass, 0)
}

func (e *Emitter) NewList(nhint int32, line int32) {
	e.Emit(bytecode.OpNewList, line, ceilLog2(nhint))
	e.AdjustSP(bytecode.OpNewList, 0)
}

func (e *Emitter) NewTable(nhint int32, line int32) {
	e.Emit(bytecode.OpNewTable, line, ceilLog2(nhint))
	e.AdjustSP(bytecode.OpNewTable, 0)
}

func ceilLog2(n int32) int32 {
	if n <= 1 {
		return 0
	}
	log, v := int32(0), int32(1)
	for v < n {
		v <<= 1
		log++
	}
	return log
}

// listFieldsPerFlush mirrors LISTFIELDS_PER_FLUSH: SETLIST is emitted
// once per this many buffered elements rather than one at a time.
const listFieldsPerFlush = 50

// SetList flushes n pending list elements at an offset of `from` slots
// below the list value (spec section 4.2 "SETLIST").
func (e *Emitter) SetList(from, n int32, line int32) {
	e.Emit(bytecode.OpSetList, line, from, int32(n), 0)
	e.AdjustSP(bytecode.OpSetList, n)
}

// Method, SetTM, SetMT, Inherit correspond directly to their opcodes
// (spec section 4.6, "Classes").
func (e *Emitter) Method(nameIdx int32, line int32) {
	e.Emit(bytecode.OpMethod, line, nameIdx)
	e.AdjustSP(bytecode.OpMethod, 0)
}

func (e *Emitter) SetTM(tmEvent int32, line int32) {
	e.Emit(bytecode.OpSetTM, line, tmEvent)
	e.AdjustSP(bytecode.OpSetTM, 0)
}

func (e *Emitter) SetMT(keyIdx int32, line int32) {
	e.Emit(bytecode.OpSetMT, line, keyIdx)
	e.AdjustSP(bytecode.OpSetMT, 0)
}

func (e *Emitter) Inherit(line int32) {
	e.Emit(bytecode.OpInherit, line)
	e.AdjustSP(bytecode.OpInherit, 0)
}

// Closure emits OP_CLOSURE referencing childIdx in proto.P.
func (e *Emitter) Closure(childIdx int32, line int32) {
	e.Emit(bytecode.OpClosure, line, childIdx)
	e.AdjustSP(bytecode.OpClosure, 0)
}

// VarargPrep emits OP_VARARGPREP(nfixed) at the very start of a vararg
// function.
func (e *Emitter) VarargPrep(nfixed int32, line int32) {
	e.Emit(bytecode.OpVarargPrep, line, nfixed)
	e.AdjustSP(bytecode.OpVarargPrep, 0)
}

// Close emits OP_CLOSE against the first captured/tbc slot in a scope
// being exited, and TBC immediately after a to-be-closed local's
// initializer (spec section 4.6, "Scope semantics").
func (e *Emitter) Close(fromSlot int32, line int32) {
	e.Emit(bytecode.OpClose, line, fromSlot)
}

func (e *Emitter) TBC(slot int32, line int32) {
	e.Emit(bytecode.OpTBC, line, slot)
}

// ForPrep/ForCall/ForLoop implement numeric/generic for-loops (spec
// section 4.6). base is the stack slot of the loop's control triple.
func (e *Emitter) ForPrep(base int32, line int32) int32 {
	pc := e.Emit(bytecode.OpForPrep, line, base, 0)
	e.AdjustSP(bytecode.OpForPrep, 0)
	return pc
}

func (e *Emitter) ForCall(base, nvars int32, line int32) {
	e.Emit(bytecode.OpForCall, line, base, nvars)
	e.AdjustSP(bytecode.OpForCall, nvars)
}

func (e *Emitter) ForLoop(base int32, line int32) int32 {
	pc := e.Emit(bytecode.OpForLoop, line, base, 0, 0)
	e.AdjustSP(bytecode.OpForLoop, 0)
	return pc
}

// PatchForPrep/PatchForLoop fill in a FORPREP/FORLOOP's jump-distance
// operand once the loop body's end pc is known, mirroring Patch's
// direction handling but for the fixed ForPrep/ForLoop shapes (their
// second long operand is always a forward/backward distance, never
// rewritten to a different opcode).
func (e *Emitter) PatchForPrep(pc, target int32) {
	dist := target - (pc + int32(bytecode.OpSize(bytecode.OpForPrep)))
	bytecode.Put3Bytes(e.proto.Code, int(pc)+4, uint32(dist))
}

func (e *Emitter) PatchForLoop(pc, target int32) {
	instrEnd := pc + int32(bytecode.OpSize(bytecode.OpForLoop))
	dist := instrEnd - target
	bytecode.Put3Bytes(e.proto.Code, int(pc)+4, uint32(dist))
}

// CheckAdj emits OP_CHECKADJ used by the `?` call-check operator to
// right-size a result count at runtime (spec section 4.6).
func (e *Emitter) CheckAdj(want int32, line int32) int32 {
	pc := e.Emit(bytecode.OpCheckAdj, line, want)
	return pc
}
