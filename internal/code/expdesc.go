package code

import (
	"github.com/b-jure/tokudae-sub001/internal/bytecode"
	"github.com/b-jure/tokudae-sub001/internal/value"
)

// ExpKind enumerates the ExpInfo variants (spec section 4.5). Overlaid
// union fields from the original source (u.var.{vidx,sidx} vs u.info)
// become discriminated struct fields here instead, per the spec's
// language-neutral strategy for tagged unions.
type ExpKind int

const (
	EVoid ExpKind = iota
	ENil
	ETrue
	EFalse
	EInt
	EFlt
	EString
	EK
	EUpval
	ELocal
	EIndexed
	EIndexStr
	EIndexInt
	EIndexSuper
	EIndexSuperStr
	EDotSuper
	ESuper
	EDot
	ECall
	EVararg
	EFinExpr
)

// ExpInfo is the parser-side descriptor of a partially-compiled
// expression (spec section 4.5), carried by value through the parser's
// expression-parsing functions.
type ExpInfo struct {
	Kind ExpKind

	Ival int64
	Fval float64
	Sval *value.String

	// Idx is a constant-pool index (EK, EIndexStr/EDot's key, EIndexInt's
	// literal handled via Ival instead).
	Idx int32
	// Sidx is the stack slot of a Local/table-base operand.
	Sidx int32
	// Vidx is an upvalue index (EUpval) or, for ELocal, the debug-info
	// local-variable index (distinct from its live stack slot Sidx).
	Vidx int32
	// Pc is the pc of the opening CALL/VARARG instruction for
	// ECall/EVararg, pending finalization to a fixed result count.
	Pc int32

	T []int32 // true-exit jump list
	F []int32 // false-exit jump list
}

func Void() ExpInfo                 { return ExpInfo{Kind: EVoid} }
func NilExp() ExpInfo               { return ExpInfo{Kind: ENil} }
func TrueExp() ExpInfo              { return ExpInfo{Kind: ETrue} }
func FalseExp() ExpInfo             { return ExpInfo{Kind: EFalse} }
func IntExp(i int64) ExpInfo        { return ExpInfo{Kind: EInt, Ival: i} }
func FltExp(f float64) ExpInfo      { return ExpInfo{Kind: EFlt, Fval: f} }
func StringExp(s *value.String) ExpInfo { return ExpInfo{Kind: EString, Sval: s} }
func LocalExp(sidx, vidx int32) ExpInfo { return ExpInfo{Kind: ELocal, Sidx: sidx, Vidx: vidx} }
func UpvalExp(vidx int32) ExpInfo   { return ExpInfo{Kind: EUpval, Vidx: vidx} }

// HasJumps reports whether e carries any pending true/false jumps —
// the NOJMP sentinel is simply both lists empty (spec section 4.5).
func (e *ExpInfo) HasJumps() bool { return len(e.T) > 0 || len(e.F) > 0 }

// IsConstant reports whether e denotes a value known at compile time
// without having been pushed to the stack or resolved to a pool index.
func (e *ExpInfo) IsConstant() bool {
	switch e.Kind {
	case ENil, ETrue, EFalse, EInt, EFlt, EString, EK:
		return true
	default:
		return false
	}
}

// AsValue materializes e's compile-time value, valid only when
// IsConstant() is true.
func (e *ExpInfo) AsValue() value.Value {
	switch e.Kind {
	case ENil:
		return value.Nil()
	case ETrue:
		return value.Bool(true)
	case EFalse:
		return value.Bool(false)
	case EInt:
		return value.Int(e.Ival)
	case EFlt:
		return value.Float(e.Fval)
	case EString:
		return value.ShortStr(e.Sval)
	default:
		return value.Value{}
	}
}

// --- discharge / materialize -----------------------------------------

// DischargeVars turns a variable-kind ExpInfo into a stack value by
// emitting the matching GET* instruction (spec section 4.5,
// `discharge_vars`). No-op on constants and already-finalized
// expressions.
func (e *Emitter) DischargeVars(x *ExpInfo, line int32) {
	switch x.Kind {
	case ELocal:
		e.Emit(bytecode.OpGetLocal, line, x.Sidx)
		e.AdjustSP(bytecode.OpGetLocal, 0)
		x.Kind = EFinExpr
	case EUpval:
		e.Emit(bytecode.OpGetUval, line, x.Vidx)
		e.AdjustSP(bytecode.OpGetUval, 0)
		x.Kind = EFinExpr
	case EIndexed:
		e.Emit(bytecode.OpGetIndex, line)
		e.AdjustSP(bytecode.OpGetIndex, 0)
		x.Kind = EFinExpr
	case EIndexStr:
		e.Emit(bytecode.OpGetIndexStr, line, x.Idx)
		x.Kind = EFinExpr
	case EIndexInt:
		if x.Ival >= 0 && bytecode.FitsShortImm(x.Ival) {
			b, _ := bytecode.EncodeImmS(int32(x.Ival))
			e.Emit(bytecode.OpGetIndexInt, line, int32(b))
		} else {
			e.Emit(bytecode.OpGetIndexIntL, line, int32(x.Ival))
		}
		x.Kind = EFinExpr
	case EIndexSuper:
		e.Emit(bytecode.OpGetSup, line, x.Idx)
		x.Kind = EFinExpr
	case EIndexSuperStr, EDotSuper:
		e.Emit(bytecode.OpGetSupIdx, line)
		e.AdjustSP(bytecode.OpGetSupIdx, 0)
		x.Kind = EFinExpr
	case EDot:
		e.Emit(bytecode.OpGetProperty, line, x.Idx)
		x.Kind = EFinExpr
	case ECall, EVararg:
		// Already produces exactly one value once finalized by the
		// caller (FinalizeCall/FinalizeVararg); treat as materialized.
		x.Kind = EFinExpr
	}
}

// dischargeToStack pushes a constant-kind expression literally.
func (e *Emitter) dischargeToStack(x *ExpInfo, line int32) {
	switch x.Kind {
	case ENil:
		e.EmitNil(1, line)
	case ETrue:
		e.Emit(bytecode.OpTrue, line)
		e.AdjustSP(bytecode.OpTrue, 0)
	case EFalse:
		e.Emit(bytecode.OpFalse, line)
		e.AdjustSP(bytecode.OpFalse, 0)
	case EInt:
		e.loadIntConst(x.Ival, line)
	case EFlt:
		e.loadFloatConst(x.Fval, line)
	case EString:
		idx := e.Consts.String(x.Sval)
		e.loadK(idx, line)
	case EK:
		e.loadK(x.Idx, line)
	}
	x.Kind = EFinExpr
}

func (e *Emitter) loadK(idx int32, line int32) {
	if bytecode.FitsShortImm(int64(idx)) && idx <= 0xFF {
		e.Emit(bytecode.OpConst, line, idx)
		e.AdjustSP(bytecode.OpConst, 0)
	} else {
		e.Emit(bytecode.OpConstL, line, idx)
		e.AdjustSP(bytecode.OpConstL, 0)
	}
}

// loadIntConst prefers the dedicated CONSTI(L) immediate-carrying forms
// over a pool lookup when the integer fits (spec section 4.2, "narrowest
// encoding that fits").
func (e *Emitter) loadIntConst(n int64, line int32) {
	if b, ok := bytecode.EncodeImmS(int32(n)); ok && n >= -0x7F && n <= 0x7F {
		e.Emit(bytecode.OpConstI, line, int32(b))
		e.AdjustSP(bytecode.OpConstI, 0)
		return
	}
	if l, ok := bytecode.EncodeImmL(int32(n)); ok && n >= -maxLongImmRange && n <= maxLongImmRange {
		e.Emit(bytecode.OpConstIL, line, int32(l))
		e.AdjustSP(bytecode.OpConstIL, 0)
		return
	}
	idx := e.Consts.Int(n)
	e.loadK(idx, line)
}

const maxLongImmRange = 0x7FFFFF

func (e *Emitter) loadFloatConst(f float64, line int32) {
	idx := e.Consts.Float(f)
	if idx <= 0xFF {
		e.Emit(bytecode.OpConstF, line, idx)
		e.AdjustSP(bytecode.OpConstF, 0)
	} else {
		e.Emit(bytecode.OpConstFL, line, idx)
		e.AdjustSP(bytecode.OpConstFL, 0)
	}
}

// Exp2Stack makes x reside on the stack top, resolving any pending
// boolean jump lists by materializing true/false branches (spec section
// 4.5, `exp2stack`).
func (e *Emitter) Exp2Stack(x *ExpInfo, line int32) {
	e.DischargeVars(x, line)
	if x.HasJumps() {
		e.resolveBoolJumps(x, line)
		return
	}
	if x.Kind != EFinExpr {
		e.dischargeToStack(x, line)
	}
}

// resolveBoolJumps materializes a boolean expression that carries
// pending true/false exits: push the fallthrough value, jump past the
// alternative, patch both lists to push the opposite constant.
func (e *Emitter) resolveBoolJumps(x *ExpInfo, line int32) {
	var final int32 = NoJump
	if x.Kind != EFinExpr {
		// fallthrough case still needs materializing
		if !(x.Kind == ETrue || x.Kind == EFalse) {
			e.dischargeToStack(x, line)
		}
	}
	if x.Kind != ETrue && x.Kind != EFalse {
		final = e.Jmp(line)
	}
	fpc := e.PC()
	e.Patch(x.F, fpc)
	e.Emit(bytecode.OpFalse, line)
	e.AdjustSP(bytecode.OpFalse, 0)
	skip := e.Jmp(line)
	tpc := e.PC()
	e.Patch(x.T, tpc)
	e.Emit(bytecode.OpTrue, line)
	e.AdjustSP(bytecode.OpTrue, 0)
	end := e.PC()
	e.Patch([]int32{skip}, end)
	if final != NoJump {
		e.Patch([]int32{final}, end)
	}
	x.T, x.F = nil, nil
	x.Kind = EFinExpr
}

// Exp2Val forces x to either a stack value or a resolved constant index
// (never leaves it as a variable read), per spec section 4.5 `exp2val`.
func (e *Emitter) Exp2Val(x *ExpInfo, line int32) {
	if x.HasJumps() {
		e.Exp2Stack(x, line)
		return
	}
	e.DischargeVars(x, line)
}

// ToStackConst resolves x to a pool constant index if it is one of the
// literal kinds, else returns ok=false (used by binary() to prefer
// codebinK).
func (e *Emitter) ToStackConst(x *ExpInfo) (int32, bool) {
	switch x.Kind {
	case ENil:
		return e.Consts.Nil(), true
	case ETrue:
		return e.Consts.Bool(true), true
	case EFalse:
		return e.Consts.Bool(false), true
	case EInt:
		return e.Consts.Int(x.Ival), true
	case EFlt:
		return e.Consts.Float(x.Fval), true
	case EString:
		return e.Consts.String(x.Sval), true
	case EK:
		return x.Idx, true
	}
	return 0, false
}
