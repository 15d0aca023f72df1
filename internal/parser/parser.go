package parser

import (
	"fmt"

	"github.com/b-jure/tokudae-sub001/internal/bytecode"
	"github.com/b-jure/tokudae-sub001/internal/code"
	"github.com/b-jure/tokudae-sub001/internal/errors"
	"github.com/b-jure/tokudae-sub001/internal/gc"
	"github.com/b-jure/tokudae-sub001/internal/lexer"
	"github.com/b-jure/tokudae-sub001/internal/protect"
)

// Parser drives the scanner and the FunctionState stack together,
// emitting bytecode as it recognizes each construct (spec section 4.6).
// There is no intermediate AST: every parse* method both recognizes
// grammar and calls into the emitter.
type Parser struct {
	scanner *lexer.Scanner
	cur     lexer.Token
	ahead   lexer.Token
	hasAhead bool

	chunkName string
	source    string
	gc        gc.Collector
	interner  lexer.Interner

	fs *FunctionState
}

// Parse compiles source under chunkName into a top-level FunctionProto,
// the single entry point external callers use (spec section 2 data
// flow: "characters -> lexer -> parser ... -> a FunctionProto tree").
func Parse(source, chunkName string, collector gc.Collector) (proto *bytecode.FunctionProto, err error) {
	if collector == nil {
		collector = gc.NopCollector{}
	}
	interner := lexer.NewMapInterner()
	p := &Parser{
		scanner:   lexer.New(source, chunkName, interner),
		chunkName: chunkName,
		source:    source,
		gc:        collector,
		interner:  interner,
	}

	unwindErr := protect.ProtectedCall(func(frame *protect.Frame) {
		proto = p.parseChunk()
	})
	if unwindErr != nil {
		return nil, unwindErr
	}
	return proto, nil
}

func (p *Parser) parseChunk() *bytecode.FunctionProto {
	proto := bytecode.NewFunctionProto()
	proto.Source = p.chunkName
	proto.IsVararg = true
	proto.DefLine = 0

	p.fs = newFunctionState(nil, proto, p.gc)
	p.fs.openBlock(false, false)
	p.fs.Emitter.VarargPrep(0, 0)

	p.advance()
	for !p.check(lexer.TokEOF) {
		p.statement()
	}
	line := p.cur.Line
	proto.DefLastLine = int32(line)
	p.fs.closeBlock(int32(line))
	p.fs.Emitter.Return(0, code.MultiRet, false, int32(line))
	return proto
}

// --- token stream -----------------------------------------------------

func (p *Parser) advance() {
	if p.hasAhead {
		p.cur = p.ahead
		p.hasAhead = false
		return
	}
	p.cur = p.scanner.Next()
	if p.cur.Type == lexer.TokError {
		p.throwToken(p.cur)
	}
}

func (p *Parser) peek() lexer.Token {
	if !p.hasAhead {
		p.ahead = p.scanner.Next()
		p.hasAhead = true
		if p.ahead.Type == lexer.TokError {
			p.throwToken(p.ahead)
		}
	}
	return p.ahead
}

func (p *Parser) check(t lexer.TokenType) bool { return p.cur.Type == t }

func (p *Parser) match(t lexer.TokenType) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(t lexer.TokenType, what string) lexer.Token {
	if !p.check(t) {
		p.errorf("%s expected near %q", what, p.cur.Lexeme)
	}
	tok := p.cur
	p.advance()
	return tok
}

func (p *Parser) line() int32 { return int32(p.cur.Line) }

// --- error handling -----------------------------------------------------

func (p *Parser) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	err := errors.NewSyntaxError(msg, p.chunkName, p.cur.Line, 0)
	protect.Throw(err)
}

func (p *Parser) throwToken(tok lexer.Token) {
	if terr, ok := tok.Value.(*errors.TokudaeError); ok {
		protect.Throw(terr)
		return
	}
	protect.Throw(errors.NewSyntaxError(tok.Lexeme, p.chunkName, tok.Line, 0))
}

// checkLimit raises a RuntimeError the way checklimit does during
// parsing (spec section 7) when a capacity is exceeded.
func (p *Parser) checkLimit(val, limit int, what string) {
	if val > limit {
		protect.Throw(errors.NewRuntimeError(fmt.Sprintf("too many %s", what), p.chunkName, p.cur.Line, 0))
	}
}
