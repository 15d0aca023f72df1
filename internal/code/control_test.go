package code

import (
	"testing"

	"github.com/b-jure/tokudae-sub001/internal/bytecode"
)

func TestStoreVarPanicsOnNonAssignable(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("StoreVar on a non-assignable expdesc kind must panic")
		}
	}()
	e := newEmitter()
	x := ExpInfo{Kind: ECall}
	e.StoreVar(&x, 0, 1)
}

func TestStoreVarLocal(t *testing.T) {
	e := newEmitter()
	x := LocalExp(3, 3)
	e.StoreVar(&x, 0, 1)
	lastPC := e.Proto().OpcodePC[len(e.Proto().OpcodePC)-1]
	if bytecode.OpCode(e.Proto().Code[lastPC]) != bytecode.OpSetLocal {
		t.Error("StoreVar(ELocal) must emit SETLOCAL")
	}
}

func TestCallFinalizeResultCount(t *testing.T) {
	e := newEmitter()
	call := e.Call(2, MultiRet, 1)
	e.FinalizeCall(&call, 1)
	if call.Kind != EFinExpr {
		t.Errorf("FinalizeCall with a concrete count must finalize the expdesc, got %v", call.Kind)
	}
	// CALL is opcode + 2 long operands + 1 short (nargs, nresults, flag):
	// nresults is the second long operand, at offset pc+4.
	// encodeNResults(1) = 2, stored at offset pc+4 as a 3-byte operand.
	got := bytecode.Get3Bytes(e.Proto().Code, int(call.Pc)+4)
	if got != 2 {
		t.Errorf("finalized CALL result-count operand = %d, want 2 (encodeNResults(1))", got)
	}
	nargs := bytecode.Get3Bytes(e.Proto().Code, int(call.Pc)+1)
	if nargs != 2 {
		t.Errorf("finalizing CALL must not corrupt the nargs operand, got %d want 2", nargs)
	}
}

func TestFinalizeCallMultiRetStaysOpen(t *testing.T) {
	e := newEmitter()
	call := e.Call(0, MultiRet, 1)
	e.FinalizeCall(&call, MultiRet)
	if call.Kind != ECall {
		t.Error("finalizing to MultiRet must not change the expdesc kind")
	}
}

func TestNewClassSizeHint(t *testing.T) {
	e := newEmitter()
	e.NewClass(5, false, 1)
	lastPC := e.Proto().OpcodePC[len(e.Proto().OpcodePC)-1]
	hint := e.Proto().Code[lastPC+1]
	if hint&0x80 != 0 {
		t.Error("NewClass without a metatable must not set the 0x80 bit")
	}
	if hint != byte(ceilLog2(5)+1) {
		t.Errorf("NewClass hint = %d, want ceilLog2(5)+1 = %d", hint, ceilLog2(5)+1)
	}
}

func TestNewClassWithMetatableSetsHighBit(t *testing.T) {
	e := newEmitter()
	e.NewClass(2, true, 1)
	lastPC := e.Proto().OpcodePC[len(e.Proto().OpcodePC)-1]
	if e.Proto().Code[lastPC+1]&0x80 == 0 {
		t.Error("NewClass with a metatable must set the 0x80 bit")
	}
}

func TestCeilLog2(t *testing.T) {
	cases := map[int32]int32{0: 0, 1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 8: 3, 9: 4}
	for n, want := range cases {
		if got := ceilLog2(n); got != want {
			t.Errorf("ceilLog2(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestForPrepForLoopPatchRoundTrip(t *testing.T) {
	e := newEmitter()
	prep := e.ForPrep(0, 1)
	bodyStart := e.PC()
	e.Emit(bytecode.OpTrue, 1) // stand-in body instruction
	loop := e.ForLoop(0, 1)

	e.PatchForLoop(loop, bodyStart)
	e.PatchForPrep(prep, e.PC())

	// PatchForLoop stores the backward distance from FORLOOP's end to the
	// body start; PatchForPrep stores the forward distance from FORPREP's
	// end to the loop's exit (here, the end of the function).
	loopDist := bytecode.Get3Bytes(e.Proto().Code, int(loop)+4)
	wantLoopDist := uint32((loop + int32(bytecode.OpSize(bytecode.OpForLoop))) - bodyStart)
	if loopDist != wantLoopDist {
		t.Errorf("FORLOOP distance = %d, want %d", loopDist, wantLoopDist)
	}
}

func TestReturnCloseFlag(t *testing.T) {
	e := newEmitter()
	e.Return(0, MultiRet, true, 1)
	last := e.Proto().OpcodePC[len(e.Proto().OpcodePC)-1]
	closeByte := e.Proto().Code[last+int32(bytecode.OpSize(bytecode.OpReturn))-1]
	if closeByte != 1 {
		t.Errorf("RETURN close flag = %d, want 1", closeByte)
	}
}

func TestSetReturnClosePatchesInPlace(t *testing.T) {
	e := newEmitter()
	e.Return(0, 0, false, 1)
	pc := e.Proto().OpcodePC[len(e.Proto().OpcodePC)-1]
	e.SetReturnClose(pc, true)
	closeByte := e.Proto().Code[pc+int32(bytecode.OpSize(bytecode.OpReturn))-1]
	if closeByte != 1 {
		t.Error("SetReturnClose must patch the close-flag byte in place")
	}
}
