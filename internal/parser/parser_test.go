package parser

import (
	"testing"

	"github.com/b-jure/tokudae-sub001/internal/bytecode"
	"github.com/b-jure/tokudae-sub001/internal/gc"
)

func mustParse(t *testing.T, src string) *bytecode.FunctionProto {
	t.Helper()
	p, err := Parse(src, "=test", gc.NopCollector{})
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", src, err)
	}
	return p
}

func TestParseEmptyChunk(t *testing.T) {
	p := mustParse(t, "")
	if !p.IsVararg {
		t.Error("top-level chunk must be vararg")
	}
	if len(p.Code) == 0 {
		t.Error("even an empty chunk emits VARARGPREP + RETURN")
	}
}

func TestParseLocalDeclaration(t *testing.T) {
	mustParse(t, "let x = 1")
}

func TestParseMultiAssignLocalDecl(t *testing.T) {
	mustParse(t, "let a, b = 1, 2")
}

func TestParseIfElifElse(t *testing.T) {
	mustParse(t, `
		let x = 1
		if x == 1 {
			x = 2
		} elif x == 2 {
			x = 3
		} else {
			x = 4
		}
	`)
}

func TestParseWhileLoop(t *testing.T) {
	mustParse(t, `
		let i = 0
		while i < 10 {
			i = i + 1
		}
	`)
}

func TestParseDoWhileLoop(t *testing.T) {
	mustParse(t, `
		let i = 0
		do {
			i = i + 1
		} while i < 10
	`)
}

func TestParseLoopWithBreak(t *testing.T) {
	mustParse(t, `
		loop {
			break
		}
	`)
}

func TestParseNumericFor(t *testing.T) {
	mustParse(t, `
		for i = 1, 10, 1 {
			continue
		}
	`)
}

func TestParseGenericFor(t *testing.T) {
	mustParse(t, `
		for k, v in pairs {
			continue
		}
	`)
}

func TestParseSwitchStatement(t *testing.T) {
	mustParse(t, `
		let x = 1
		switch (x) {
			case 1:
				x = 10
			case 2:
				x = 20
			default:
				x = 0
		}
	`)
}

func TestParseSwitchRejectsDuplicateCaseLabels(t *testing.T) {
	_, err := Parse(`
		let x = 1
		switch (x) {
			case 1: x = 1
			case 1: x = 2
		}
	`, "=test", gc.NopCollector{})
	if err == nil {
		t.Error("duplicate case labels in the same switch must be rejected")
	}
}

func TestParseFunctionDeclAndCall(t *testing.T) {
	mustParse(t, `
		fn add(a, b) {
			return a + b
		}
		let r = add(1, 2)
	`)
}

func TestParseVarargFunction(t *testing.T) {
	mustParse(t, `
		fn sink(a, ..) {
			return a
		}
	`)
}

func TestParseClassDecl(t *testing.T) {
	mustParse(t, `
		class Animal {
			speak(self) {
				return nil
			}
		}
	`)
}

func TestParseClassWithInheritance(t *testing.T) {
	mustParse(t, `
		class Animal {
			speak(self) {
				return nil
			}
		}
		class Dog : Animal {
			bark(self) {
				return nil
			}
		}
	`)
}

func TestParseImportStatement(t *testing.T) {
	mustParse(t, `import "somepath"`)
}

func TestParseArithmeticExpressions(t *testing.T) {
	mustParse(t, `let x = 1 + 2 * 3 - 4 / 2 % 2 ** 2`)
}

func TestParseConcatenation(t *testing.T) {
	mustParse(t, `let x = "a" .. "b" .. "c"`)
}

func TestParseLogicalAndOr(t *testing.T) {
	mustParse(t, `let x = true and false or true`)
}

func TestParseListAndTableLiterals(t *testing.T) {
	mustParse(t, `
		let xs = [1, 2, 3]
		let t = {a = 1, b = 2}
	`)
}

func TestParseTbcLocalEmitsTBC(t *testing.T) {
	p := mustParse(t, `tbc x = open_resource()`)
	for _, pc := range p.OpcodePC {
		if bytecode.OpCode(p.Code[pc]) == bytecode.OpTBC {
			return
		}
	}
	t.Error("a tbc local declaration must emit OP_TBC")
}

func TestParseCallCheckOperator(t *testing.T) {
	mustParse(t, `let x = might_fail()?`)
}

func TestParseMalformedExpressionReturnsError(t *testing.T) {
	if _, err := Parse("let x = ", "=test", gc.NopCollector{}); err == nil {
		t.Error("a statement with no expression after `=` must be a syntax error")
	}
}

func TestParseBreakOutsideLoopErrors(t *testing.T) {
	if _, err := Parse("break", "=test", gc.NopCollector{}); err == nil {
		t.Error("`break` outside any loop/switch must be a syntax error")
	}
}

func TestParseExpressionStatementWithNoEffectErrors(t *testing.T) {
	if _, err := Parse("1 + 1", "=test", gc.NopCollector{}); err == nil {
		t.Error("a bare non-call expression statement must be rejected as having no effect")
	}
}
