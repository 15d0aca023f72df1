package code

import (
	"math"

	"github.com/b-jure/tokudae-sub001/internal/bytecode"
	"github.com/b-jure/tokudae-sub001/internal/value"
)

// CompOp enumerates the comparison operators, kept distinct from
// value.ArithOp because comparisons are never constant-folded through
// RawArith and have their own immediate/constant opcode family (spec
// section 4.5, `binary`'s comparison branch).
type CompOp int

const (
	CmpEq CompOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

type arithOpSet struct{ Stack, K, I bytecode.OpCode }

var arithOpcodes = map[value.ArithOp]arithOpSet{
	value.OpAdd:  {bytecode.OpAdd, bytecode.OpAddK, bytecode.OpAddI},
	value.OpSub:  {bytecode.OpSub, bytecode.OpSubK, bytecode.OpSubI},
	value.OpMul:  {bytecode.OpMul, bytecode.OpMulK, bytecode.OpMulI},
	value.OpDiv:  {bytecode.OpDiv, bytecode.OpDivK, bytecode.OpDivI},
	value.OpIDiv: {bytecode.OpIDiv, bytecode.OpIDivK, bytecode.OpIDivI},
	value.OpMod:  {bytecode.OpMod, bytecode.OpModK, bytecode.OpModI},
	value.OpPow:  {bytecode.OpPow, bytecode.OpPowK, bytecode.OpPowI},
	value.OpBShl: {bytecode.OpBShl, bytecode.OpBShlK, bytecode.OpBShlI},
	value.OpBShr: {bytecode.OpBShr, bytecode.OpBShrK, bytecode.OpBShrI},
	value.OpBAnd: {bytecode.OpBAnd, bytecode.OpBAndK, bytecode.OpBAndI},
	value.OpBOr:  {bytecode.OpBOr, bytecode.OpBOrK, bytecode.OpBOrI},
	value.OpBXor: {bytecode.OpBXor, bytecode.OpBXorK, bytecode.OpBXorI},
}

// badFold rejects a constant-fold result that is a NaN or zero float:
// folding either into k would plant a NaN or a -0.0 (indistinguishable
// from 0.0 once folded) in the constant pool, which later constant
// handling cannot represent correctly. Matches the original compiler's
// constfold, which declines to fold these cases for the same reason.
func badFold(v value.Value) bool {
	return v.Kind() == value.KFloat && (v.AsFloat() == 0 || math.IsNaN(v.AsFloat()))
}

func valueToExp(v value.Value) ExpInfo {
	switch v.Kind() {
	case value.KNil:
		return NilExp()
	case value.KBool:
		if v.AsBool() {
			return TrueExp()
		}
		return FalseExp()
	case value.KInt:
		return IntExp(v.AsInt())
	case value.KFloat:
		return FltExp(v.AsFloat())
	default:
		return Void()
	}
}

// Unary attempts constant folding (value.RawUnary); otherwise discharges
// x to the stack and emits the unary opcode (spec section 4.5, `unary`).
// Only UNM and BNOT are accepted; logical NOT is handled by Not.
func (e *Emitter) Unary(x *ExpInfo, op value.ArithOp, line int32) {
	if op != value.OpUnm && op != value.OpBNot {
		panic("code: Unary called with non-unary op")
	}
	if x.IsConstant() {
		if res, ok := value.RawUnary(x.AsValue(), op); ok && !badFold(res) {
			*x = valueToExp(res)
			return
		}
	}
	e.Exp2Stack(x, line)
	if op == value.OpUnm {
		e.Emit(bytecode.OpUnm, line)
		e.AdjustSP(bytecode.OpUnm, 0)
	} else {
		e.Emit(bytecode.OpBNot, line)
		e.AdjustSP(bytecode.OpBNot, 0)
	}
}

// Not implements logical negation: swapping jump lists for an
// expression that already carries pending branches, or flipping a
// boolean/nil constant, or emitting OP_NOT over a materialized value.
func (e *Emitter) Not(x *ExpInfo, line int32) {
	switch x.Kind {
	case ENil, EFalse:
		x.Kind = ETrue
		return
	case ETrue:
		x.Kind = EFalse
		return
	}
	if x.HasJumps() {
		x.T, x.F = x.F, x.T
		return
	}
	e.Exp2Stack(x, line)
	e.Emit(bytecode.OpNot, line)
	e.AdjustSP(bytecode.OpNot, 0)
}

// PreBinaryArith prepares the LHS of an arithmetic/bitwise operator
// before the RHS is parsed (spec section 4.5, `prebinary`): a foldable
// numeral is left alone so BinaryArith can still try constant folding
// or pick an immediate encoding; anything else is discharged now.
func (e *Emitter) PreBinaryArith(x *ExpInfo, line int32) {
	if x.Kind == EInt || x.Kind == EFlt {
		return
	}
	e.Exp2Stack(x, line)
}

// BinaryArith finishes an arithmetic/bitwise operator once both operands
// are known (spec section 4.5, `binary`): folds when possible, else
// emits codebinI/codebinK/codebin in that preference order.
func (e *Emitter) BinaryArith(x1, x2 *ExpInfo, op value.ArithOp, line int32) {
	if x1.IsConstant() && x2.IsConstant() {
		if res, ok := value.RawArith(x1.AsValue(), x2.AsValue(), op); ok && !badFold(res) {
			*x1 = res2exp(res)
			return
		}
	}
	ops := arithOpcodes[op]

	// x1 must end up on the stack either way.
	if x1.Kind == EInt || x1.Kind == EFlt {
		e.Exp2Stack(x1, line)
	}

	if x2.Kind == EInt && bytecode.FitsLongImm(x2.Ival) {
		l, _ := bytecode.EncodeImmL(int32(x2.Ival))
		e.Emit(ops.I, line, int32(l))
		e.AdjustSP(ops.I, 0)
		x1.Kind = EFinExpr
		return
	}
	if idx, ok := e.ToStackConst(x2); ok && x2.IsConstant() {
		e.Emit(ops.K, line, idx)
		e.AdjustSP(ops.K, 0)
		x1.Kind = EFinExpr
		return
	}
	e.Exp2Stack(x2, line)
	e.Emit(ops.Stack, line, 0)
	e.AdjustSP(ops.Stack, 0)
	x1.Kind = EFinExpr
}

func res2exp(v value.Value) ExpInfo { return valueToExp(v) }

// PreBinaryCompare is `prebinary` for comparison operators: a numeral
// that fits the 24-bit immediate form is left as-is; everything else is
// discharged now.
func (e *Emitter) PreBinaryCompare(x *ExpInfo, line int32) {
	if x.Kind == EInt && bytecode.FitsLongImm(x.Ival) {
		return
	}
	e.Exp2Stack(x, line)
}

// BinaryCompare finishes a comparison, transforming `>`/`>=` into
// reversed `<`/`<=` and choosing EQK/EQI/LTI/LEI/GTI/GEI/EQ/LT/LE per
// spec section 4.5. The comparison opcode leaves its boolean result on
// the stack, so x1 ends as EFinExpr with no pending jump lists.
func (e *Emitter) BinaryCompare(x1, x2 *ExpInfo, op CompOp, line int32) {
	swap := false
	switch op {
	case CmpGt:
		op, swap = CmpLt, true
	case CmpGe:
		op, swap = CmpLe, true
	}

	if x1.Kind == EInt || x1.Kind == EFlt {
		e.Exp2Stack(x1, line)
	}

	if op == CmpEq || op == CmpNe {
		e.emitEquality(x1, x2, op == CmpNe, line)
		return
	}

	if x2.Kind == EInt && bytecode.FitsLongImm(x2.Ival) {
		l, _ := bytecode.EncodeImmL(int32(x2.Ival))
		ltOp, leOp := bytecode.OpLTI, bytecode.OpLEI
		if swap {
			ltOp, leOp = bytecode.OpGTI, bytecode.OpGEI
		}
		if op == CmpLt {
			e.Emit(ltOp, line, int32(l))
			e.AdjustSP(ltOp, 0)
		} else {
			e.Emit(leOp, line, int32(l))
			e.AdjustSP(leOp, 0)
		}
		x1.Kind = EFinExpr
		return
	}

	e.Exp2Stack(x2, line)
	s := int32(0)
	if swap {
		s = 1
	}
	if op == CmpLt {
		e.Emit(bytecode.OpLT, line, s)
		e.AdjustSP(bytecode.OpLT, 0)
	} else {
		e.Emit(bytecode.OpLE, line, s)
		e.AdjustSP(bytecode.OpLE, 0)
	}
	x1.Kind = EFinExpr
}

func (e *Emitter) emitEquality(x1, x2 *ExpInfo, negate bool, line int32) {
	sense := int32(1)
	if negate {
		sense = 0
	}
	if x2.Kind == EInt && bytecode.FitsLongImm(x2.Ival) {
		l, _ := bytecode.EncodeImmL(int32(x2.Ival))
		e.Emit(bytecode.OpEqI, line, int32(l), sense)
		e.AdjustSP(bytecode.OpEqI, 0)
		x1.Kind = EFinExpr
		return
	}
	if idx, ok := e.ToStackConst(x2); ok && x2.IsConstant() {
		e.Emit(bytecode.OpEqK, line, idx, sense)
		e.AdjustSP(bytecode.OpEqK, 0)
		x1.Kind = EFinExpr
		return
	}
	e.Exp2Stack(x2, line)
	e.Emit(bytecode.OpEq, line, sense)
	e.AdjustSP(bytecode.OpEq, 0)
	x1.Kind = EFinExpr
}

// Concat discharges both operands to the stack and fuses with an
// immediately preceding OP_CONCAT by incrementing its arity instead of
// emitting a new instruction (spec section 4.5, "Concatenation fuses
// with an immediately-preceding OP_CONCAT").
func (e *Emitter) Concat(x1, x2 *ExpInfo, line int32) {
	e.Exp2Stack(x1, line)
	e.Exp2Stack(x2, line)
	if e.prevpc >= 0 && bytecode.OpCode(e.proto.Code[e.prevpc]) == bytecode.OpConcat && e.prevpc >= e.lastTarget {
		n := bytecode.Get3Bytes(e.proto.Code, int(e.prevpc)+1)
		bytecode.Put3Bytes(e.proto.Code, int(e.prevpc)+1, n+1)
		e.sp--
		x1.Kind = EFinExpr
		return
	}
	e.Emit(bytecode.OpConcat, line, 2)
	e.AdjustSP(bytecode.OpConcat, 2)
	x1.Kind = EFinExpr
}

// PreAndOr emits the short-circuit test for `and`/`or` before the RHS is
// parsed, extending x's jump lists (spec section 4.5, `prebinary`'s
// and/or branch). isAnd selects the polarity: `and` branches out on
// falsy, `or` on truthy.
func (e *Emitter) PreAndOr(x *ExpInfo, isAnd bool, line int32) {
	e.Exp2Stack(x, line)
	if isAnd {
		pc := e.Test(false, line)
		ConcatJL(&x.F, pc)
	} else {
		pc := e.Test(true, line)
		ConcatJL(&x.T, pc)
	}
}

// PostAndOr finishes `and`/`or` by merging the RHS's jump lists with the
// ones recorded by PreAndOr.
func (e *Emitter) PostAndOr(x1, x2 *ExpInfo, isAnd bool, line int32) {
	e.DischargeVars(x2, line)
	if isAnd {
		x2.F = append(x2.F, x1.F...)
	} else {
		x2.T = append(x2.T, x1.T...)
	}
	*x1 = *x2
}
