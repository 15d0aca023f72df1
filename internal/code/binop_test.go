package code

import (
	"testing"

	"github.com/b-jure/tokudae-sub001/internal/bytecode"
	"github.com/b-jure/tokudae-sub001/internal/value"
)

func TestBinaryArithConstantFolds(t *testing.T) {
	e := newEmitter()
	x1 := IntExp(2)
	x2 := IntExp(3)
	e.BinaryArith(&x1, &x2, value.OpAdd, 1)
	if x1.Kind != EInt || x1.Ival != 5 {
		t.Errorf("2+3 folded to kind=%v ival=%d, want EInt 5", x1.Kind, x1.Ival)
	}
	if len(e.Proto().Code) != 0 {
		t.Error("a fully-folded arithmetic expression must emit no instructions")
	}
}

func TestBinaryArithNonFoldableEmitsStack(t *testing.T) {
	e := newEmitter()
	local := LocalExp(0, 0)
	e.PreBinaryArith(&local, 1) // caller contract: discharge x1 before parsing x2
	rhs := LocalExp(1, 1)
	e.BinaryArith(&local, &rhs, value.OpAdd, 1)
	if local.Kind != EFinExpr {
		t.Errorf("non-foldable BinaryArith must finalize x1, got kind %v", local.Kind)
	}
	if len(e.Proto().OpcodePC) < 3 {
		t.Errorf("expected at least 3 instructions (2 GETLOCAL + ADD), got %d", len(e.Proto().OpcodePC))
	}
}

func TestUnaryConstantFolds(t *testing.T) {
	e := newEmitter()
	x := IntExp(5)
	e.Unary(&x, value.OpUnm, 1)
	if x.Kind != EInt || x.Ival != -5 {
		t.Errorf("-5 folded to kind=%v ival=%d", x.Kind, x.Ival)
	}
}

func TestNotFlipsConstantKind(t *testing.T) {
	e := newEmitter()
	x := TrueExp()
	e.Not(&x, 1)
	if x.Kind != EFalse {
		t.Errorf("Not(true) = %v, want EFalse", x.Kind)
	}
}

func TestNotSwapsJumpLists(t *testing.T) {
	e := newEmitter()
	x := ExpInfo{Kind: EFinExpr, T: []int32{1, 2}, F: []int32{3}}
	e.Not(&x, 1)
	if len(x.T) != 1 || len(x.F) != 2 {
		t.Errorf("Not must swap T/F lists, got T=%v F=%v", x.T, x.F)
	}
}

func TestConcatEmitsConcatWithArityTwo(t *testing.T) {
	e := newEmitter()
	a := LocalExp(0, 0)
	b := LocalExp(1, 1)
	e.Concat(&a, &b, 1)

	if a.Kind != EFinExpr {
		t.Errorf("Concat must finalize x1, got kind %v", a.Kind)
	}
	lastPC := e.Proto().OpcodePC[len(e.Proto().OpcodePC)-1]
	op := bytecode.OpCode(e.Proto().Code[lastPC])
	if op != bytecode.OpConcat {
		t.Errorf("last instruction = %v, want CONCAT", op)
	}
	n := bytecode.Get3Bytes(e.Proto().Code, int(lastPC)+1)
	if n != 2 {
		t.Errorf("CONCAT arity = %d, want 2", n)
	}
}

// TestConcatFusesWhenBothOperandsAlreadyFinalized exercises the fusion
// path directly: when both operands are already materialized and the
// single preceding instruction is itself a CONCAT not yet past a
// confirmed jump target, a second Concat call bumps that CONCAT's arity
// instead of emitting a new instruction.
func TestConcatFusesWhenBothOperandsAlreadyFinalized(t *testing.T) {
	e := newEmitter()
	a := LocalExp(0, 0)
	b := LocalExp(1, 1)
	e.Concat(&a, &b, 1) // emits GETLOCAL a, GETLOCAL b, CONCAT(2)

	already := ExpInfo{Kind: EFinExpr}
	e.Concat(&already, &already, 1) // both operands already on stack: no new pushes

	concatCount := 0
	var arity uint32
	for _, pc := range e.Proto().OpcodePC {
		if bytecode.OpCode(e.Proto().Code[pc]) == bytecode.OpConcat {
			concatCount++
			arity = bytecode.Get3Bytes(e.Proto().Code, int(pc)+1)
		}
	}
	if concatCount != 1 {
		t.Errorf("fusing Concat calls must leave a single CONCAT instruction, found %d", concatCount)
	}
	if arity != 3 {
		t.Errorf("fused CONCAT arity = %d, want 3", arity)
	}
}

func TestBinaryCompareGtRewritesToSwappedLt(t *testing.T) {
	e := newEmitter()
	x1 := LocalExp(0, 0)
	x2 := IntExp(10)
	e.BinaryCompare(&x1, &x2, CmpGt, 1)
	lastPC := e.Proto().OpcodePC[len(e.Proto().OpcodePC)-1]
	op := bytecode.OpCode(e.Proto().Code[lastPC])
	if op != bytecode.OpGTI {
		t.Errorf("x > 10 (immediate RHS) must emit GTI, got %v", op)
	}
}
