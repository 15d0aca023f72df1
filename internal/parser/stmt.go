package parser

import (
	"strconv"

	"github.com/b-jure/tokudae-sub001/internal/bytecode"
	"github.com/b-jure/tokudae-sub001/internal/code"
	"github.com/b-jure/tokudae-sub001/internal/lexer"
	"github.com/b-jure/tokudae-sub001/internal/value"
)

// statement recognizes and emits one statement (spec section 6,
// "Statements").
func (p *Parser) statement() {
	switch p.cur.Type {
	case lexer.TokSemicolon:
		p.advance()
	case lexer.TokIf:
		p.ifStatement()
	case lexer.TokWhile:
		p.whileStatement()
	case lexer.TokDo:
		p.doStatement()
	case lexer.TokLoop:
		p.loopStatement()
	case lexer.TokFor:
		p.forStatement()
	case lexer.TokSwitch:
		p.switchStatement()
	case lexer.TokBreak:
		p.breakStatement()
	case lexer.TokContinue:
		p.continueStatement()
	case lexer.TokReturn:
		p.returnStatement()
	case lexer.TokLet, lexer.TokFinal, lexer.TokTBC:
		p.localDecl()
	case lexer.TokFn:
		p.functionDecl()
	case lexer.TokClass:
		p.classDecl()
	case lexer.TokImport:
		p.importStatement()
	case lexer.TokLBrace:
		p.block()
	default:
		p.exprOrAssignStatement()
	}
}

// block parses a `{ ... }` block in its own scope.
func (p *Parser) block() {
	p.expect(lexer.TokLBrace, "{")
	p.fs.openBlock(false, false)
	for !p.check(lexer.TokRBrace) && !p.check(lexer.TokEOF) {
		p.statement()
	}
	p.fs.closeBlock(p.line())
	p.expect(lexer.TokRBrace, "}")
}

// isBlockEnd reports whether the current token ends a statement
// sequence (end of input, `}`, `else` or `elif`); returnStatement uses
// it to recognize a bare `return`.
func (p *Parser) isBlockEnd() bool {
	switch p.cur.Type {
	case lexer.TokEOF, lexer.TokRBrace, lexer.TokElse, lexer.TokElif:
		return true
	}
	return false
}

func (p *Parser) ifStatement() {
	p.advance()
	cond := p.expr(0)
	line := p.line()
	p.fs.Emitter.Exp2Stack(&cond, line)
	falseJmp := p.fs.Emitter.TestPop(false, line)
	p.block()

	var endJmps []int32
	for p.check(lexer.TokElif) {
		skip := p.fs.Emitter.Jmp(p.line())
		endJmps = append(endJmps, skip)
		p.fs.Emitter.PatchToHere([]int32{falseJmp})
		p.advance()
		c := p.expr(0)
		l := p.line()
		p.fs.Emitter.Exp2Stack(&c, l)
		falseJmp = p.fs.Emitter.TestPop(false, l)
		p.block()
	}
	if p.match(lexer.TokElse) {
		skip := p.fs.Emitter.Jmp(p.line())
		endJmps = append(endJmps, skip)
		p.fs.Emitter.PatchToHere([]int32{falseJmp})
		p.block()
	} else {
		p.fs.Emitter.PatchToHere([]int32{falseJmp})
	}
	p.fs.Emitter.PatchToHere(endJmps)
}

func (p *Parser) whileStatement() {
	p.advance()
	top := p.fs.Emitter.PC()
	cond := p.expr(0)
	line := p.line()
	p.fs.Emitter.Exp2Stack(&cond, line)
	exitJmp := p.fs.Emitter.TestPop(false, line)

	p.fs.openBlock(true, false)
	p.expect(lexer.TokLBrace, "{")
	for !p.check(lexer.TokRBrace) && !p.check(lexer.TokEOF) {
		p.statement()
	}
	p.expect(lexer.TokRBrace, "}")
	loopLine := p.line()
	p.fs.Emitter.PatchToHere(p.fs.block.continues)
	backJmp := p.fs.Emitter.Jmp(loopLine)
	p.fs.Emitter.Patch([]int32{backJmp}, top)
	breaks := p.fs.block.breaks
	p.fs.closeBlock(loopLine)

	p.fs.Emitter.PatchToHere([]int32{exitJmp})
	p.fs.Emitter.PatchToHere(breaks)
}

// doStatement parses `do { ... } while cond` (spec section 6).
func (p *Parser) doStatement() {
	p.advance()
	top := p.fs.Emitter.PC()
	p.fs.openBlock(true, false)
	p.expect(lexer.TokLBrace, "{")
	for !p.check(lexer.TokRBrace) && !p.check(lexer.TokEOF) {
		p.statement()
	}
	p.expect(lexer.TokRBrace, "}")
	p.expect(lexer.TokWhile, "while")
	p.fs.Emitter.PatchToHere(p.fs.block.continues)
	cond := p.expr(0)
	line := p.line()
	p.fs.Emitter.Exp2Stack(&cond, line)
	exitJmp := p.fs.Emitter.TestPop(false, line)
	p.fs.Emitter.Patch([]int32{p.fs.Emitter.Jmp(line)}, top)
	breaks := p.fs.block.breaks
	p.fs.closeBlock(line)
	p.fs.Emitter.PatchToHere([]int32{exitJmp})
	p.fs.Emitter.PatchToHere(breaks)
}

// loopStatement parses an infinite `loop { ... }`, exited only via break.
func (p *Parser) loopStatement() {
	p.advance()
	top := p.fs.Emitter.PC()
	p.fs.openBlock(true, false)
	p.expect(lexer.TokLBrace, "{")
	for !p.check(lexer.TokRBrace) && !p.check(lexer.TokEOF) {
		p.statement()
	}
	line := p.line()
	p.expect(lexer.TokRBrace, "}")
	p.fs.Emitter.PatchToHere(p.fs.block.continues)
	p.fs.Emitter.Patch([]int32{p.fs.Emitter.Jmp(line)}, top)
	breaks := p.fs.block.breaks
	p.fs.closeBlock(line)
	p.fs.Emitter.PatchToHere(breaks)
}

func (p *Parser) breakStatement() {
	line := p.line()
	p.advance()
	for b := p.fs.block; b != nil; b = b.parent {
		if b.isLoop || b.isSwitch {
			if b.hasCaptured || b.hasTBC {
				p.fs.Emitter.Close(int32(b.firstLocal), line)
			}
			pc := p.fs.Emitter.Jmp(line)
			b.breaks = append(b.breaks, pc)
			return
		}
	}
	p.errorf("break outside a loop")
}

func (p *Parser) continueStatement() {
	line := p.line()
	p.advance()
	for b := p.fs.block; b != nil; b = b.parent {
		if b.isLoop {
			if b.hasCaptured || b.hasTBC {
				p.fs.Emitter.Close(int32(b.firstLocal), line)
			}
			pc := p.fs.Emitter.Jmp(line)
			b.continues = append(b.continues, pc)
			return
		}
	}
	p.errorf("continue outside a loop")
}

// numeric/generic for (spec section 4.6, "Numeric for i = a, b[, c]
// validates non-zero step, emits FORPREP ... then FORLOOP").
func (p *Parser) forStatement() {
	p.advance()
	first := p.expect(lexer.TokIdent, "<name>")
	if p.check(lexer.TokEqual) {
		p.numericFor(first.Lexeme)
		return
	}
	p.genericFor(first.Lexeme)
}

func (p *Parser) numericFor(varName string) {
	line := p.line()
	p.advance() // '='
	start := p.expr(0)
	p.fs.Emitter.Exp2Stack(&start, line)
	p.expect(lexer.TokComma, ",")
	limit := p.expr(0)
	p.fs.Emitter.Exp2Stack(&limit, line)
	if p.match(lexer.TokComma) {
		step := p.expr(0)
		p.fs.Emitter.Exp2Stack(&step, line)
	} else {
		one := code.IntExp(1)
		p.fs.Emitter.Exp2Stack(&one, line)
	}
	base := p.fs.Emitter.SP() - 3
	prepPc := p.fs.Emitter.ForPrep(base, line)

	p.fs.openBlock(true, false)
	p.fs.declareLocal(varName, attribNone)
	p.fs.Emitter.SetSP(base + 4)
	p.expect(lexer.TokLBrace, "{")
	for !p.check(lexer.TokRBrace) && !p.check(lexer.TokEOF) {
		p.statement()
	}
	bodyLine := p.line()
	p.expect(lexer.TokRBrace, "}")
	p.fs.Emitter.PatchToHere(p.fs.block.continues)
	loopPc := p.fs.Emitter.ForLoop(base, bodyLine)
	p.fs.Emitter.PatchForLoop(loopPc, prepPc+int32(bytecode.OpSize(bytecode.OpForPrep)))
	p.fs.Emitter.PatchForPrep(prepPc, p.fs.Emitter.PC())
	breaks := p.fs.block.breaks
	p.fs.closeBlock(bodyLine)
	p.fs.Emitter.PatchToHere(breaks)
}

func (p *Parser) genericFor(firstName string) {
	names := []string{firstName}
	for p.match(lexer.TokComma) {
		n := p.expect(lexer.TokIdent, "<name>")
		names = append(names, n.Lexeme)
	}
	p.expect(lexer.TokIn, "in")
	line := p.line()
	const iterWidth = 3
	n, multi, tail := p.exprList()
	if multi {
		fixed := n - 1
		if fixed >= iterWidth {
			finalizeMultiTail(p.fs.Emitter, &tail, 0)
			if pop := fixed - iterWidth; pop > 0 {
				p.fs.Emitter.EmitPop(pop, line)
			}
		} else {
			finalizeMultiTail(p.fs.Emitter, &tail, iterWidth-fixed)
		}
	} else {
		for i := n; i < iterWidth; i++ {
			nilExp := code.NilExp()
			p.fs.Emitter.Exp2Stack(&nilExp, line)
		}
		if n > iterWidth {
			p.fs.Emitter.EmitPop(n-iterWidth, line)
		}
	}
	base := p.fs.Emitter.SP() - 3

	p.fs.openBlock(true, false)
	for _, nm := range names {
		p.fs.declareLocal(nm, attribNone)
	}
	p.fs.Emitter.SetSP(base + 3 + int32(len(names)))
	bodyStart := p.fs.Emitter.PC()
	p.fs.Emitter.ForCall(base, int32(len(names)), line)
	p.expect(lexer.TokLBrace, "{")
	for !p.check(lexer.TokRBrace) && !p.check(lexer.TokEOF) {
		p.statement()
	}
	bodyLine := p.line()
	p.expect(lexer.TokRBrace, "}")
	p.fs.Emitter.PatchToHere(p.fs.block.continues)
	loopPc := p.fs.Emitter.ForLoop(base, bodyLine)
	p.fs.Emitter.PatchForLoop(loopPc, bodyStart)
	breaks := p.fs.block.breaks
	p.fs.closeBlock(bodyLine)
	p.fs.Emitter.PatchToHere(breaks)
}

// switchStatement compiles a sequence of equality tests against
// literal case labels (spec section 4.6: "a jump table of equality
// tests"; duplicate labels are a syntax error).
func (p *Parser) switchStatement() {
	p.advance()
	p.expect(lexer.TokLParen, "(")
	subject := p.expr(0)
	line := p.line()
	p.fs.Emitter.Exp2Stack(&subject, line)
	p.expect(lexer.TokRParen, ")")
	p.expect(lexer.TokLBrace, "{")

	p.fs.openBlock(false, true)
	subjSlot := p.fs.declareLocal("(switch)", attribNone)
	_ = subject

	seen := map[string]bool{}
	var endJmps []int32
	var prevFail int32 = code.NoJump
	for p.check(lexer.TokCase) {
		p.advance()
		lit := p.expr(0)
		label := caseLabelKey(lit)
		if seen[label] {
			p.errorf("duplicate case label")
		}
		seen[label] = true
		p.expect(lexer.TokColon, ":")

		if prevFail != code.NoJump {
			p.fs.Emitter.PatchToHere([]int32{prevFail})
		}
		subjRead := code.LocalExp(subjSlot, subjSlot)
		p.fs.Emitter.PreBinaryCompare(&subjRead, p.line())
		p.fs.Emitter.BinaryCompare(&subjRead, &lit, code.CmpEq, p.line())
		failPc := p.fs.Emitter.TestPop(false, p.line())
		prevFail = failPc

		for !p.check(lexer.TokCase) && !p.check(lexer.TokDefault) && !p.check(lexer.TokRBrace) {
			p.statement()
		}
		skip := p.fs.Emitter.Jmp(p.line())
		endJmps = append(endJmps, skip)
	}
	if prevFail != code.NoJump {
		p.fs.Emitter.PatchToHere([]int32{prevFail})
	}
	if p.match(lexer.TokDefault) {
		p.expect(lexer.TokColon, ":")
		for !p.check(lexer.TokRBrace) {
			p.statement()
		}
	}
	p.fs.Emitter.PatchToHere(endJmps)
	breaks := p.fs.block.breaks
	p.fs.closeBlock(p.line())
	p.fs.Emitter.PatchToHere(breaks)
	p.expect(lexer.TokRBrace, "}")
}

func caseLabelKey(x code.ExpInfo) string {
	switch x.Kind {
	case code.ENil:
		return "nil"
	case code.ETrue:
		return "true"
	case code.EFalse:
		return "false"
	case code.EInt:
		return "i:" + strconv.FormatInt(x.Ival, 10)
	case code.EFlt:
		return "f:" + strconv.FormatFloat(x.Fval, 'g', -1, 64)
	case code.EString:
		return "s:" + x.Sval.Data
	default:
		return "?"
	}
}

func (p *Parser) returnStatement() {
	line := p.line()
	p.advance()
	if p.isBlockEnd() || p.check(lexer.TokSemicolon) {
		p.fs.Emitter.Return(p.fs.Emitter.SP(), 0, p.hasOpenTBC(), line)
		return
	}
	base := p.fs.Emitter.SP()
	n, multi, _ := p.exprList()
	if multi {
		p.fs.Emitter.Return(base, code.MultiRet, p.hasOpenTBC(), line)
	} else {
		p.fs.Emitter.Return(base, n, p.hasOpenTBC(), line)
	}
	p.match(lexer.TokSemicolon)
}

// finalizeMultiTail resolves an open call/vararg expdesc left over from
// exprList to exactly n results, correcting the compile-time stack
// pointer for the width change away from the single slot Call/Vararg
// reserves for an unfinalized (MultiRet) result (spec section 3
// invariant 4, "every open call/vararg is finalized before the next
// statement ends").
func finalizeMultiTail(e *code.Emitter, tail *code.ExpInfo, n int32) {
	switch tail.Kind {
	case code.ECall:
		e.FinalizeCall(tail, n)
	case code.EVararg:
		e.FinalizeVararg(tail, n)
	default:
		return
	}
	e.SetSP(e.SP() - 1 + n)
}

func (p *Parser) hasOpenTBC() bool {
	for b := p.fs.block; b != nil; b = b.parent {
		if b.hasTBC {
			return true
		}
	}
	return false
}

// localDecl parses `let`/`final`/`tbc` declarations (spec section 4.6,
// "Scope semantics").
func (p *Parser) localDecl() {
	attrib := attribNone
	switch p.cur.Type {
	case lexer.TokFinal:
		attrib = attribFinal
	case lexer.TokTBC:
		attrib = attribTBC
	}
	p.advance()
	var names []string
	names = append(names, p.expect(lexer.TokIdent, "<name>").Lexeme)
	for p.match(lexer.TokComma) {
		names = append(names, p.expect(lexer.TokIdent, "<name>").Lexeme)
	}
	line := p.line()
	if attrib == attribTBC && len(names) != 1 {
		p.errorf("tbc declarations must declare exactly one variable")
	}
	if p.match(lexer.TokEqual) {
		n, multi, tail := p.exprList()
		want := int32(len(names))
		if multi {
			fixed := n - 1
			if fixed >= want {
				finalizeMultiTail(p.fs.Emitter, &tail, 0)
				if pop := fixed - want; pop > 0 {
					p.fs.Emitter.EmitPop(pop, line)
				}
			} else {
				finalizeMultiTail(p.fs.Emitter, &tail, want-fixed)
			}
		} else {
			for i := n; i < want; i++ {
				nilExp := code.NilExp()
				p.fs.Emitter.Exp2Stack(&nilExp, line)
			}
			for i := want; i < n; i++ {
				p.fs.Emitter.EmitPop(1, line)
			}
		}
	} else {
		if attrib == attribTBC {
			p.errorf("tbc variable must be assigned exactly once on declaration")
		}
		for range names {
			nilExp := code.NilExp()
			p.fs.Emitter.Exp2Stack(&nilExp, line)
		}
	}
	for _, nm := range names {
		slot := p.fs.declareLocal(nm, attrib)
		if attrib == attribTBC {
			p.fs.Emitter.TBC(slot, line)
			for b := p.fs.block; b != nil; b = b.parent {
				b.hasTBC = true
			}
		}
	}
}

// exprOrAssignStatement handles a bare expression statement or an
// assignment (including multi-assign `a, b = f()`), spec section 6.
func (p *Parser) exprOrAssignStatement() {
	line := p.line()
	first := p.suffixedExpr()
	if p.check(lexer.TokEqual) || p.check(lexer.TokComma) {
		targets := []code.ExpInfo{first}
		for p.match(lexer.TokComma) {
			targets = append(targets, p.suffixedExpr())
		}
		p.expect(lexer.TokEqual, "=")
		for _, t := range targets {
			if t.Kind == code.ESuper || t.Kind == code.EIndexSuper || t.Kind == code.EIndexSuperStr || t.Kind == code.EDotSuper {
				p.errorf("cannot assign to a super expression")
			}
		}
		n, multi, tail := p.exprList()
		want := int32(len(targets))
		if multi {
			fixed := n - 1
			if fixed >= want {
				finalizeMultiTail(p.fs.Emitter, &tail, 0)
				if pop := fixed - want; pop > 0 {
					p.fs.Emitter.EmitPop(pop, line)
				}
			} else {
				finalizeMultiTail(p.fs.Emitter, &tail, want-fixed)
			}
		} else {
			for i := n; i < want; i++ {
				nilExp := code.NilExp()
				p.fs.Emitter.Exp2Stack(&nilExp, line)
			}
			if n > want {
				p.fs.Emitter.EmitPop(n-want, line)
			}
		}
		for i := len(targets) - 1; i >= 0; i-- {
			left := int32(len(targets) - 1 - i)
			p.fs.Emitter.StoreVar(&targets[i], left, line)
		}
		return
	}
	if first.Kind == code.ECall {
		p.fs.Emitter.FinalizeCall(&first, 0)
	} else if first.Kind == code.EVararg {
		p.fs.Emitter.FinalizeVararg(&first, 0)
	} else {
		p.errorf("syntax error: expression has no effect")
	}
}

func (p *Parser) functionDecl() {
	line := p.line()
	p.advance()
	name := p.expect(lexer.TokIdent, "<name>")
	target := p.resolveName(name.Lexeme)
	fn := p.functionBody(name.Lexeme, line)
	p.fs.Emitter.Exp2Stack(&fn, line)
	p.fs.Emitter.StoreVar(&target, 0, line)
}

func (p *Parser) functionBody(name string, line int32) code.ExpInfo {
	childProto := bytecode.NewFunctionProto()
	childProto.Source = p.chunkName
	childProto.DefLine = line
	childFS := newFunctionState(p.fs, childProto, p.gc)
	parentFS := p.fs
	p.fs = childFS
	p.fs.openBlock(false, false)

	p.expect(lexer.TokLParen, "(")
	arity := int32(0)
	vararg := false
	if !p.check(lexer.TokRParen) {
		for {
			if p.match(lexer.TokDotDot) {
				// ".." as the final parameter marks a vararg function —
				// the lexer has no dedicated ellipsis token, so the
				// concatenation operator doubles as the vararg marker
				// here, unambiguous because no expression can start a
				// parameter list.
				vararg = true
				break
			}
			pname := p.expect(lexer.TokIdent, "<name>")
			p.fs.declareLocal(pname.Lexeme, attribNone)
			arity++
			if !p.match(lexer.TokComma) {
				break
			}
		}
	}
	p.expect(lexer.TokRParen, ")")
	childProto.Arity = arity
	childProto.IsVararg = vararg
	p.fs.Emitter.SetSP(arity)
	if vararg {
		p.fs.Emitter.VarargPrep(arity, line)
	}

	p.expect(lexer.TokLBrace, "{")
	for !p.check(lexer.TokRBrace) && !p.check(lexer.TokEOF) {
		p.statement()
	}
	endLine := p.line()
	childProto.DefLastLine = endLine
	p.fs.closeBlock(endLine)
	p.fs.Emitter.Return(0, 0, false, endLine)
	p.expect(lexer.TokRBrace, "}")

	childIdx := int32(len(parentFS.Proto.P))
	parentFS.Proto.P = append(parentFS.Proto.P, childProto)
	p.fs = parentFS
	p.fs.Emitter.Closure(childIdx, line)
	_ = name
	return code.ExpInfo{Kind: code.EFinExpr}
}

func (p *Parser) classDecl() {
	line := p.line()
	nameTok := p.peekClassName()
	target := p.resolveName(nameTok)
	cls := p.classExpr()
	p.fs.Emitter.Exp2Stack(&cls, line)
	p.fs.Emitter.StoreVar(&target, 0, line)
}

// peekClassName reads the class's name without consuming tokens, so
// classDecl can resolve the assignment target (and thus push any
// implicit _ENV read) before classExpr emits the class's own bytecode.
func (p *Parser) peekClassName() string {
	if !p.check(lexer.TokClass) {
		p.errorf("class expected near %q", p.cur.Lexeme)
	}
	n := p.peek()
	if n.Type != lexer.TokIdent {
		p.errorf("<name> expected near %q", n.Lexeme)
	}
	return n.Lexeme
}

func (p *Parser) classExpr() code.ExpInfo {
	line := p.line()
	p.expect(lexer.TokClass, "class")
	name := p.expect(lexer.TokIdent, "<name>")
	_ = name

	entrySP := p.fs.Emitter.SP()

	hasSuper := false
	if p.match(lexer.TokColon) {
		super := p.expr(0)
		p.fs.Emitter.Exp2Stack(&super, line)
		hasSuper = true
	}

	// NEWCLASS must run before any METHOD: METHOD attaches the closure
	// sitting on top of the stack into the class beneath it, so the
	// class has to exist first. The size hint is approximate — like
	// NewList/NewTable's literal-construction callers, it is a
	// preallocation hint, not a requirement to count members up front
	// in a single-pass parser.
	p.fs.Emitter.NewClass(0, false, line)

	p.expect(lexer.TokLBrace, "{")
	for !p.check(lexer.TokRBrace) {
		mname := p.expect(lexer.TokIdent, "<name>")
		fn := p.functionBody(mname.Lexeme, p.line())
		p.fs.Emitter.Exp2Stack(&fn, p.line())
		idx := p.fs.Emitter.Consts.String(p.internName(mname.Lexeme))
		p.fs.Emitter.Method(idx, p.line())
		// METHOD consumes the closure CLOSURE just pushed, binding it
		// into the class below; nothing is left on the stack for it.
		p.fs.Emitter.SetSP(p.fs.Emitter.SP() - 1)
	}
	p.expect(lexer.TokRBrace, "}")

	if hasSuper {
		p.fs.Emitter.Inherit(line)
	}
	p.fs.Emitter.SetSP(entrySP + 1)
	return code.ExpInfo{Kind: code.EFinExpr}
}

// importStatement compiles `import "path"` as sugar for calling the
// host-registered global `import` loader with the literal path, binding
// nothing. There is no expression form: primaryExpr has no case for
// `import`, so `let m = import "path"` is rejected as a syntax error.
func (p *Parser) importStatement() {
	line := p.line()
	p.advance()
	path := p.expect(lexer.TokString, "<string>")
	fn := p.resolveName("import")
	p.fs.Emitter.Exp2Stack(&fn, line)
	arg := code.StringExp(path.Value.(*value.String))
	p.fs.Emitter.Exp2Stack(&arg, line)
	call := p.fs.Emitter.Call(1, 0, line)
	p.fs.Emitter.FinalizeCall(&call, 0)
}
