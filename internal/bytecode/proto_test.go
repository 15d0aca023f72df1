package bytecode

import "testing"

func TestGetLineDeltaReplay(t *testing.T) {
	p := NewFunctionProto()
	// Instruction 0 is anchored absolutely at line 10; instructions 1..3
	// record deltas +0,+1,+0 from their predecessor.
	p.LineInfo = []int8{AbsentLine, 0, 1, 0}
	p.AbsLineInfo = []AbsLineEntry{{PC: 0, Line: 10}}

	want := []int32{10, 10, 11, 11}
	for pc, w := range want {
		if got := p.GetLine(int32(pc)); got != w {
			t.Errorf("GetLine(%d) = %d, want %d", pc, got, w)
		}
	}
}

func TestGetLineAbsentSentinelResolvesFromAbsTable(t *testing.T) {
	p := NewFunctionProto()
	p.LineInfo = []int8{0, AbsentLine, 0}
	p.AbsLineInfo = []AbsLineEntry{{PC: 0, Line: 5}, {PC: 1, Line: 200}}

	if got := p.GetLine(1); got != 200 {
		t.Errorf("GetLine(1) = %d, want 200 (resolved via AbsLineInfo)", got)
	}
}

func TestGetLineOutOfRange(t *testing.T) {
	p := NewFunctionProto()
	p.LineInfo = []int8{0}
	if got := p.GetLine(5); got != 0 {
		t.Errorf("GetLine out of range = %d, want 0", got)
	}
}

func TestStripRemovesDebugFieldsRecursively(t *testing.T) {
	child := &FunctionProto{
		Source:      "child.tok",
		LineInfo:    []int8{0, 1},
		AbsLineInfo: []AbsLineEntry{{PC: 0, Line: 1}},
		OpcodePC:    []int32{0, 2},
		Locals:      []LocalInfo{{Name: "x"}},
		Upvals:      []UpvalInfo{{Name: "up"}},
	}
	parent := &FunctionProto{
		Source: "parent.tok",
		P:      []*FunctionProto{child},
		Upvals: []UpvalInfo{{Name: "env"}},
	}

	parent.Strip()

	if parent.Source != "" || parent.Upvals[0].Name != "" {
		t.Error("Strip must clear the parent's own debug fields")
	}
	if child.Source != "" || child.LineInfo != nil || child.AbsLineInfo != nil ||
		child.OpcodePC != nil || child.Locals != nil || child.Upvals[0].Name != "" {
		t.Error("Strip must recurse into child protos")
	}
}

func TestPCTracksCodeLength(t *testing.T) {
	p := NewFunctionProto()
	if p.PC() != 0 {
		t.Fatalf("PC() on empty proto = %d, want 0", p.PC())
	}
	p.Code = append(p.Code, 1, 2, 3)
	if p.PC() != 3 {
		t.Fatalf("PC() after 3 bytes = %d, want 3", p.PC())
	}
}
