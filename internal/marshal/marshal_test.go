package marshal

import (
	"testing"

	"github.com/b-jure/tokudae-sub001/internal/bytecode"
	"github.com/b-jure/tokudae-sub001/internal/value"
)

func internerFor(t *testing.T) func(string) *value.String {
	t.Helper()
	seen := map[string]*value.String{}
	return func(s string) *value.String {
		if v, ok := seen[s]; ok {
			return v
		}
		v := &value.String{Data: s, Interned: true}
		seen[s] = v
		return v
	}
}

func simpleProto() *bytecode.FunctionProto {
	p := bytecode.NewFunctionProto()
	p.Code = []byte{byte(bytecode.OpTrue), byte(bytecode.OpPop)}
	p.K = []value.Value{
		value.Int(42),
		value.Float(3.5),
		value.ShortStr(&value.String{Data: "hello", Interned: true}),
	}
	p.Arity = 2
	p.MaxStack = 4
	p.DefLine = 1
	p.DefLastLine = 10
	p.Source = "chunk.tok"
	p.LineInfo = []int8{0, 1}
	p.AbsLineInfo = []bytecode.AbsLineEntry{{PC: 0, Line: 1}}
	p.OpcodePC = []int32{0, 1}
	p.Locals = []bytecode.LocalInfo{{Name: "x", StartPC: 0, EndPC: 2}}
	p.Upvals = []bytecode.UpvalInfo{{Idx: 0, InStack: true, Kind: bytecode.UpvalRegular, Name: "env"}}
	return p
}

func TestDumpUndumpRoundTrip(t *testing.T) {
	p := simpleProto()
	data := Dump(p, false)

	got, err := Undump(data, "chunk.tok", internerFor(t))
	if err != nil {
		t.Fatalf("Undump failed: %v", err)
	}

	if string(got.Code) != string(p.Code) {
		t.Errorf("Code mismatch: got %v, want %v", got.Code, p.Code)
	}
	if len(got.K) != len(p.K) {
		t.Fatalf("K length mismatch: got %d, want %d", len(got.K), len(p.K))
	}
	if got.K[0].AsInt() != 42 {
		t.Errorf("K[0] = %d, want 42", got.K[0].AsInt())
	}
	if got.K[1].AsFloat() != 3.5 {
		t.Errorf("K[1] = %v, want 3.5", got.K[1].AsFloat())
	}
	if got.K[2].AsString().Data != "hello" {
		t.Errorf("K[2] = %q, want hello", got.K[2].AsString().Data)
	}
	if got.Arity != p.Arity || got.MaxStack != p.MaxStack {
		t.Errorf("Arity/MaxStack mismatch: got %d/%d, want %d/%d", got.Arity, got.MaxStack, p.Arity, p.MaxStack)
	}
	if got.Source != p.Source {
		t.Errorf("Source = %q, want %q", got.Source, p.Source)
	}
	if len(got.Locals) != 1 || got.Locals[0].Name != "x" {
		t.Errorf("Locals mismatch: %+v", got.Locals)
	}
	if len(got.Upvals) != 1 || got.Upvals[0].Name != "env" {
		t.Errorf("Upvals mismatch: %+v", got.Upvals)
	}
}

func TestDumpStripOmitsDebugInfo(t *testing.T) {
	p := simpleProto()
	data := Dump(p, true)

	got, err := Undump(data, "chunk.tok", internerFor(t))
	if err != nil {
		t.Fatalf("Undump failed: %v", err)
	}
	if got.Source != "" {
		t.Errorf("stripped Source = %q, want empty", got.Source)
	}
	if len(got.LineInfo) != 0 || len(got.AbsLineInfo) != 0 || len(got.OpcodePC) != 0 || len(got.Locals) != 0 {
		t.Error("stripped dump must omit all debug-only slices")
	}
	if got.Upvals[0].Name != "" {
		t.Error("stripped dump must omit upvalue names")
	}
	// Non-debug fields must survive stripping.
	if got.Arity != p.Arity || len(got.K) != len(p.K) {
		t.Error("stripping must not touch code, constants or arity")
	}
}

func TestDumpNestedProtos(t *testing.T) {
	child := simpleProto()
	top := bytecode.NewFunctionProto()
	top.IsVararg = true
	top.Source = "top.tok"
	top.P = []*bytecode.FunctionProto{child}

	data := Dump(top, false)
	got, err := Undump(data, "top.tok", internerFor(t))
	if err != nil {
		t.Fatalf("Undump failed: %v", err)
	}
	if !got.IsVararg {
		t.Error("IsVararg must round-trip")
	}
	if len(got.P) != 1 {
		t.Fatalf("expected 1 child proto, got %d", len(got.P))
	}
	if got.P[0].K[0].AsInt() != 42 {
		t.Error("nested proto's constants must round-trip")
	}
}

// TestStringDeduplicationAcrossFunctions dumps three functions that each
// reference the same string constant "foo" (written once in full, then
// as back-references) and checks that undump reconstructs all three with
// content "foo"; the dumped bytes themselves are not inspected.
func TestStringDeduplicationAcrossFunctions(t *testing.T) {
	mk := func() *bytecode.FunctionProto {
		p := bytecode.NewFunctionProto()
		p.K = []value.Value{value.ShortStr(&value.String{Data: "foo", Interned: true})}
		return p
	}
	top := bytecode.NewFunctionProto()
	top.P = []*bytecode.FunctionProto{mk(), mk(), mk()}

	data := Dump(top, false)
	got, err := Undump(data, "chunk", internerFor(t))
	if err != nil {
		t.Fatalf("Undump failed: %v", err)
	}
	if len(got.P) != 3 {
		t.Fatalf("expected 3 children, got %d", len(got.P))
	}
	for i, child := range got.P {
		if child.K[0].AsString().Data != "foo" {
			t.Errorf("child %d constant = %q, want foo", i, child.K[0].AsString().Data)
		}
	}
}

func TestUndumpRejectsWrongMagic(t *testing.T) {
	data := Dump(simpleProto(), false)
	corrupt := append([]byte(nil), data...)
	corrupt[0] = 'X'
	if _, err := Undump(corrupt, "chunk", internerFor(t)); err == nil {
		t.Error("Undump must reject a chunk with a corrupted magic signature")
	}
}

func TestUndumpRejectsTruncatedChunk(t *testing.T) {
	data := Dump(simpleProto(), false)
	if _, err := Undump(data[:len(data)/2], "chunk", internerFor(t)); err == nil {
		t.Error("Undump must reject a truncated chunk")
	}
}

func TestZigzagRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 137, -69, 1 << 40, -(1 << 40)} {
		if got := unzigzag(zigzag(n)); got != n {
			t.Errorf("zigzag round-trip(%d) = %d", n, got)
		}
	}
}

func TestOpcodeBlockAlignedTo4Bytes(t *testing.T) {
	p := bytecode.NewFunctionProto()
	p.Code = []byte{1, 2, 3} // the code block is padded to a 4-byte boundary before it starts
	p.Source = "x"
	data := Dump(p, false)
	got, err := Undump(data, "x", internerFor(t))
	if err != nil {
		t.Fatalf("Undump failed: %v", err)
	}
	if string(got.Code) != string(p.Code) {
		t.Errorf("Code mismatch after alignment padding: got %v, want %v", got.Code, p.Code)
	}
}
