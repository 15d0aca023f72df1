package parser

import (
	"github.com/b-jure/tokudae-sub001/internal/bytecode"
	"github.com/b-jure/tokudae-sub001/internal/code"
	"github.com/b-jure/tokudae-sub001/internal/lexer"
	"github.com/b-jure/tokudae-sub001/internal/value"
)

// binOpInfo describes one binary operator's precedence and emitter
// hook. left/right model associativity the classic Pratt-parsing way:
// right-associative operators use right == left-1, left-associative ones
// use right == left+1.
type binOpInfo struct {
	left, right int
	kind        int // 0=arith, 1=compare, 2=concat, 3=andor
	arith       value.ArithOp
	cmp         code.CompOp
	isAnd       bool
}

var binOps = map[lexer.TokenType]binOpInfo{
	lexer.TokOr:      {1, 2, 3, 0, 0, false},
	lexer.TokAnd:     {2, 3, 3, 0, 0, true},
	lexer.TokLT:      {3, 4, 1, 0, code.CmpLt, false},
	lexer.TokGT:      {3, 4, 1, 0, code.CmpGt, false},
	lexer.TokLE:      {3, 4, 1, 0, code.CmpLe, false},
	lexer.TokGE:      {3, 4, 1, 0, code.CmpGe, false},
	lexer.TokEqEq:    {3, 4, 1, 0, code.CmpEq, false},
	lexer.TokBangEq:  {3, 4, 1, 0, code.CmpNe, false},
	lexer.TokPipe:    {4, 5, 0, value.OpBOr, 0, false},
	lexer.TokTilde:   {5, 6, 0, value.OpBXor, 0, false},
	lexer.TokAmp:     {6, 7, 0, value.OpBAnd, 0, false},
	lexer.TokShl:     {7, 8, 0, value.OpBShl, 0, false},
	lexer.TokShr:     {7, 8, 0, value.OpBShr, 0, false},
	lexer.TokDotDot:  {9, 8, 2, 0, 0, false}, // right-assoc: right < left
	lexer.TokPlus:    {10, 11, 0, value.OpAdd, 0, false},
	lexer.TokMinus:   {10, 11, 0, value.OpSub, 0, false},
	lexer.TokStar:    {11, 12, 0, value.OpMul, 0, false},
	lexer.TokSlash:   {11, 12, 0, value.OpDiv, 0, false},
	lexer.TokSlash2:  {11, 12, 0, value.OpIDiv, 0, false},
	lexer.TokPercent: {11, 12, 0, value.OpMod, 0, false},
	lexer.TokCaret:   {14, 13, 0, value.OpPow, 0, false}, // right-assoc
}

const unaryPrec = 12

// expr parses an expression with precedence >= minPrec (spec section
// 4.6, expression grammar; section 4.5 drives each operator through
// the emitter's prebinary/binary contract).
func (p *Parser) expr(minPrec int) code.ExpInfo {
	x := p.unaryExpr()
	for {
		info, ok := binOps[p.cur.Type]
		if !ok || info.left < minPrec {
			break
		}
		op := p.cur.Type
		line := p.line()
		p.advance()

		switch info.kind {
		case 0:
			p.fs.Emitter.PreBinaryArith(&x, line)
			rhs := p.expr(info.right)
			p.fs.Emitter.BinaryArith(&x, &rhs, info.arith, line)
		case 1:
			p.fs.Emitter.PreBinaryCompare(&x, line)
			rhs := p.expr(info.right)
			p.fs.Emitter.BinaryCompare(&x, &rhs, info.cmp, line)
		case 2:
			p.fs.Emitter.Exp2Stack(&x, line)
			rhs := p.expr(info.right)
			p.fs.Emitter.Concat(&x, &rhs, line)
		case 3:
			p.fs.Emitter.PreAndOr(&x, info.isAnd, line)
			rhs := p.expr(info.right)
			p.fs.Emitter.PostAndOr(&x, &rhs, info.isAnd, line)
		}
		_ = op
	}
	return x
}

func (p *Parser) unaryExpr() code.ExpInfo {
	switch p.cur.Type {
	case lexer.TokMinus:
		line := p.line()
		p.advance()
		x := p.expr(unaryPrec)
		p.fs.Emitter.Unary(&x, value.OpUnm, line)
		return x
	case lexer.TokTilde:
		line := p.line()
		p.advance()
		x := p.expr(unaryPrec)
		p.fs.Emitter.Unary(&x, value.OpBNot, line)
		return x
	case lexer.TokBang:
		line := p.line()
		p.advance()
		x := p.expr(unaryPrec)
		p.fs.Emitter.Not(&x, line)
		return x
	}
	return p.suffixedExpr()
}

// suffixedExpr parses a primary expression followed by any chain of
// `.name`, `[e]`, `(args)`, `:m(args)` and a trailing `?` call-check.
func (p *Parser) suffixedExpr() code.ExpInfo {
	x := p.primaryExpr()
	for {
		switch p.cur.Type {
		case lexer.TokDot:
			p.advance()
			name := p.expect(lexer.TokIdent, "<name>")
			p.fs.Emitter.Exp2Stack(&x, int32(name.Line))
			idx := p.fs.Emitter.Consts.String(p.internName(name.Lexeme))
			x = code.ExpInfo{Kind: code.EDot, Idx: idx}
		case lexer.TokLBracket:
			p.advance()
			p.fs.Emitter.Exp2Stack(&x, p.line())
			key := p.expr(0)
			p.expect(lexer.TokRBracket, "]")
			x = p.indexWith(key)
		case lexer.TokLParen, lexer.TokLBrace, lexer.TokString, lexer.TokLongString:
			x = p.callExpr(x, "")
		case lexer.TokColon:
			p.advance()
			name := p.expect(lexer.TokIdent, "<name>")
			x = p.callExpr(x, name.Lexeme)
		case lexer.TokQuestion:
			line := p.line()
			p.advance()
			x = p.callCheck(x, line)
		default:
			return x
		}
	}
}

// indexWith builds an Indexed/IndexStr/IndexInt ExpInfo for table[key]
// once the table is already on the stack (spec section 4.5, "Indexed").
func (p *Parser) indexWith(key code.ExpInfo) code.ExpInfo {
	switch key.Kind {
	case code.EString:
		idx := p.fs.Emitter.Consts.String(key.Sval)
		return code.ExpInfo{Kind: code.EIndexStr, Idx: idx}
	case code.EInt:
		return code.ExpInfo{Kind: code.EIndexInt, Ival: key.Ival}
	default:
		p.fs.Emitter.Exp2Stack(&key, p.line())
		return code.ExpInfo{Kind: code.EIndexed}
	}
}

func (p *Parser) internName(s string) *value.String {
	return p.interner.Intern(s)
}

// primaryExpr parses literals, identifiers, self/super, grouped
// expressions, list/table literals, class and anonymous functions
// (spec section 6, "Expressions").
func (p *Parser) primaryExpr() code.ExpInfo {
	tok := p.cur
	switch tok.Type {
	case lexer.TokNil:
		p.advance()
		return code.NilExp()
	case lexer.TokTrue:
		p.advance()
		return code.TrueExp()
	case lexer.TokFalse:
		p.advance()
		return code.FalseExp()
	case lexer.TokInt:
		p.advance()
		return code.IntExp(tok.Value.(int64))
	case lexer.TokFloat:
		p.advance()
		return code.FltExp(tok.Value.(float64))
	case lexer.TokString, lexer.TokLongString:
		p.advance()
		return code.StringExp(tok.Value.(*value.String))
	case lexer.TokIdent:
		p.advance()
		return p.resolveName(tok.Lexeme)
	case lexer.TokSelf:
		p.advance()
		return p.resolveName("self")
	case lexer.TokSuper:
		p.advance()
		return p.superExpr()
	case lexer.TokLParen:
		p.advance()
		x := p.expr(0)
		p.expect(lexer.TokRParen, ")")
		p.fs.Emitter.Exp2Val(&x, p.line())
		return x
	case lexer.TokLBracket:
		return p.listLiteral()
	case lexer.TokLBrace:
		return p.tableLiteral()
	case lexer.TokClass:
		return p.classExpr()
	case lexer.TokFn:
		return p.functionBody("", p.line())
	}
	p.errorf("unexpected symbol near %q", tok.Lexeme)
	return code.Void()
}

func (p *Parser) superExpr() code.ExpInfo {
	switch p.cur.Type {
	case lexer.TokDot:
		p.advance()
		name := p.expect(lexer.TokIdent, "<name>")
		idx := p.fs.Emitter.Consts.String(p.internName(name.Lexeme))
		return code.ExpInfo{Kind: code.EDotSuper, Idx: idx}
	case lexer.TokLBracket:
		p.advance()
		key := p.expr(0)
		p.expect(lexer.TokRBracket, "]")
		p.fs.Emitter.Exp2Stack(&key, p.line())
		return code.ExpInfo{Kind: code.EIndexSuperStr}
	}
	return code.ExpInfo{Kind: code.ESuper}
}

// resolveName resolves an identifier to a local, upvalue or an implicit
// global field read through _ENV (spec section 4.6, "Upvalues").
func (p *Parser) resolveName(name string) code.ExpInfo {
	if slot, ok := p.fs.resolveLocal(name); ok {
		return code.LocalExp(slot, slot)
	}
	if idx, ok := p.fs.resolveUpval(name); ok {
		return code.UpvalExp(idx)
	}
	envIdx := p.fs.envIndex()
	p.fs.Emitter.Emit(bytecode.OpGetUval, p.line(), envIdx)
	p.fs.Emitter.AdjustSP(bytecode.OpGetUval, 0)
	idx := p.fs.Emitter.Consts.String(p.internName(name))
	return code.ExpInfo{Kind: code.EDot, Idx: idx}
}

// callExpr parses a call's argument list (or a single string/table
// literal sugar argument) and emits CALL, producing an open ECall
// ExpInfo. method is non-empty for `obj:method(...)` calls.
func (p *Parser) callExpr(callee code.ExpInfo, method string) code.ExpInfo {
	line := p.line()
	p.fs.Emitter.Exp2Stack(&callee, line)
	nargs := int32(0)
	if method != "" {
		idx := p.fs.Emitter.Consts.String(p.internName(method))
		p.fs.Emitter.Method(idx, line)
		nargs++ // self is pushed implicitly by METHOD
	}
	multi := false
	switch p.cur.Type {
	case lexer.TokString, lexer.TokLongString:
		tok := p.cur
		p.advance()
		arg := code.StringExp(tok.Value.(*value.String))
		p.fs.Emitter.Exp2Stack(&arg, line)
		nargs++
	case lexer.TokLBrace:
		arg := p.tableLiteral()
		p.fs.Emitter.Exp2Stack(&arg, line)
		nargs++
	default:
		p.expect(lexer.TokLParen, "(")
		if !p.check(lexer.TokRParen) {
			n, m, _ := p.exprList()
			nargs += n
			multi = m
		}
		p.expect(lexer.TokRParen, ")")
	}
	nresults := code.MultiRet
	if !multi {
		// still open; caller decides final arity via FinalizeCall
	}
	return p.fs.Emitter.Call(nargs, nresults, line)
}

// exprList parses a comma-separated expression list, returning the
// count of expressions whose single value was pushed to the stack (the
// last one is left open if it's a call/vararg that can expand), whether
// the final expression is open-ended (multi-result), and — only when
// open — that final expression's still-open ExpInfo, so the caller can
// finalize it to however many results it actually needs.
func (p *Parser) exprList() (int32, bool, code.ExpInfo) {
	var n int32
	for {
		x := p.expr(0)
		isOpen := x.Kind == code.ECall || x.Kind == code.EVararg
		more := p.match(lexer.TokComma)
		if isOpen && !more {
			// leave open for the caller (CALL/VARARG/RETURN with MULTRET)
			n++
			return n, true, x
		}
		p.fs.Emitter.Exp2Stack(&x, p.line())
		n++
		if !more {
			break
		}
	}
	return n, false, code.ExpInfo{}
}

// callCheck implements the postfix `?` call-check operator (spec
// section 4.6): branch out of the function with the call's own falsy
// first result, otherwise continue with the (adjusted) result.
func (p *Parser) callCheck(callExp code.ExpInfo, line int32) code.ExpInfo {
	p.fs.Emitter.FinalizeCall(&callExp, 1)
	e := callExp
	e.Kind = code.EFinExpr
	pc := p.fs.Emitter.TestPop(true, line)
	retPc := p.fs.Emitter.PC()
	p.fs.Emitter.Return(p.fs.Emitter.SP()-1, code.MultiRet, false, line)
	_ = retPc
	p.fs.Emitter.PatchToHere([]int32{pc})
	adjPc := p.fs.Emitter.CheckAdj(1, line)
	_ = adjPc
	return e
}

func (p *Parser) listLiteral() code.ExpInfo {
	line := p.line()
	p.expect(lexer.TokLBracket, "[")
	p.fs.Emitter.NewList(0, line)
	base := p.fs.Emitter.SP()
	n := int32(0)
	for !p.check(lexer.TokRBracket) {
		x := p.expr(0)
		p.fs.Emitter.Exp2Stack(&x, p.line())
		n++
		if !p.match(lexer.TokComma) {
			break
		}
	}
	p.expect(lexer.TokRBracket, "]")
	if n > 0 {
		p.fs.Emitter.SetList(base, n, p.line())
	}
	return code.ExpInfo{Kind: code.EFinExpr}
}

func (p *Parser) tableLiteral() code.ExpInfo {
	line := p.line()
	p.expect(lexer.TokLBrace, "{")
	p.fs.Emitter.NewTable(0, line)
	for !p.check(lexer.TokRBrace) {
		switch {
		case p.check(lexer.TokLBracket):
			p.advance()
			key := p.expr(0)
			p.expect(lexer.TokRBracket, "]")
			p.expect(lexer.TokEqual, "=")
			val := p.expr(0)
			p.fs.Emitter.Exp2Stack(&key, p.line())
			p.fs.Emitter.Exp2Stack(&val, p.line())
			p.fs.Emitter.Emit(bytecode.OpSetIndex, p.line(), 0)
			p.fs.Emitter.AdjustSP(bytecode.OpSetIndex, 0)
		case p.check(lexer.TokIdent) && p.peek().Type == lexer.TokEqual:
			name := p.cur
			p.advance()
			p.advance()
			val := p.expr(0)
			p.fs.Emitter.Exp2Stack(&val, p.line())
			idx := p.fs.Emitter.Consts.String(p.internName(name.Lexeme))
			p.fs.Emitter.Emit(bytecode.OpSetProperty, p.line(), 0, idx)
			p.fs.Emitter.AdjustSP(bytecode.OpSetProperty, 0)
		default:
			p.errorf("table field expected near %q", p.cur.Lexeme)
		}
		if !p.match(lexer.TokComma) && !p.match(lexer.TokSemicolon) {
			break
		}
	}
	p.expect(lexer.TokRBrace, "}")
	return code.ExpInfo{Kind: code.EFinExpr}
}
