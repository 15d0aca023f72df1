// Package parser implements Tokudae's single-pass recursive-descent
// parser (spec section 4.6): it drives the lexer and the code emitter
// together, producing a FunctionProto tree with no separate AST stage.
package parser

import (
	"github.com/b-jure/tokudae-sub001/internal/bytecode"
	"github.com/b-jure/tokudae-sub001/internal/code"
	"github.com/b-jure/tokudae-sub001/internal/gc"
)

// localAttrib marks a local's declared kind (spec section 4.6,
// "Scope semantics").
type localAttrib uint8

const (
	attribNone localAttrib = iota
	attribFinal
	attribTBC
)

type localVar struct {
	name     string
	slot     int32
	attrib   localAttrib
	captured bool
}

// blockState is one lexically-scoped block within a FunctionState (spec
// section 4.6). isLoop/isSwitch mark blocks that pending break/continue
// gotos target.
type blockState struct {
	parent       *blockState
	firstLocal   int
	isLoop       bool
	isSwitch     bool
	hasCaptured  bool
	hasTBC       bool
	firstCapture int32
	// breaks/continues accumulate pending Goto jump pcs for this loop,
	// patched when the block closes (spec section 4.6, "break/continue
	// are represented as pending Goto records").
	breaks    []int32
	continues []int32
}

// upvalRef caches a resolved upvalue by name within one FunctionState so
// repeated references to the same captured variable reuse one UpvalInfo
// slot.
type upvalRef struct {
	name    string
	idx     int32
	inStack bool
}

// FunctionState tracks one nested function's compile-time context: its
// emitter, active locals (a contiguous list indexed by stack slot), the
// scope chain, and cached upvalues (spec section 4.6).
type FunctionState struct {
	Proto   *bytecode.FunctionProto
	Emitter *code.Emitter
	Parent  *FunctionState

	locals []localVar
	block  *blockState
	upvals []upvalRef

	// line is not set or read anywhere in the parser; line info is
	// tracked by the Emitter.
	line int32

	envUpval int32 // index of the implicit _ENV upvalue, -1 if unused yet
}

func newFunctionState(parent *FunctionState, proto *bytecode.FunctionProto, collector gc.Collector) *FunctionState {
	pool := code.NewConstPool(proto, collector)
	return &FunctionState{
		Proto:    proto,
		Emitter:  code.NewEmitter(proto, pool),
		Parent:   parent,
		envUpval: -1,
	}
}

func (fs *FunctionState) openBlock(isLoop, isSwitch bool) {
	fs.block = &blockState{parent: fs.block, firstLocal: len(fs.locals), isLoop: isLoop, isSwitch: isSwitch}
}

// closeBlock truncates the active-locals list back to the block's
// entry point, emitting OP_CLOSE first if any local in the block was
// captured or declared tbc (spec section 4.6, "Scope semantics").
func (fs *FunctionState) closeBlock(line int32) {
	b := fs.block
	if b.hasCaptured || b.hasTBC {
		fs.Emitter.Close(int32(b.firstLocal), line)
	}
	fs.locals = fs.locals[:b.firstLocal]
	fs.Emitter.SetSP(int32(len(fs.locals)))
	fs.block = b.parent
}

// declareLocal reserves the next stack slot for a new local and
// records its debug info.
func (fs *FunctionState) declareLocal(name string, attrib localAttrib) int32 {
	slot := int32(len(fs.locals))
	fs.locals = append(fs.locals, localVar{name: name, slot: slot, attrib: attrib})
	fs.Proto.Locals = append(fs.Proto.Locals, bytecode.LocalInfo{Name: name, StartPC: fs.Emitter.PC()})
	return slot
}

// resolveLocal searches active locals innermost-first.
func (fs *FunctionState) resolveLocal(name string) (int32, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return fs.locals[i].slot, true
		}
	}
	return 0, false
}

// markCaptured flags slot as captured by an inner closure, so the
// enclosing scope emits OP_CLOSE on exit, and flags every open block
// whose locals include slot; closeBlock then closes from that block's
// first local.
func (fs *FunctionState) markCaptured(slot int32) {
	for i := range fs.locals {
		if fs.locals[i].slot == slot {
			fs.locals[i].captured = true
		}
	}
	for b := fs.block; b != nil; b = b.parent {
		if int(slot) >= b.firstLocal {
			b.hasCaptured = true
		}
	}
}

// resolveUpval finds-or-creates an UpvalInfo in fs capturing name from
// an enclosing FunctionState, recursing outward (spec section 4.6,
// "Upvalues").
func (fs *FunctionState) resolveUpval(name string) (int32, bool) {
	for i, u := range fs.upvals {
		if u.name == name {
			return int32(i), true
		}
	}
	if fs.Parent == nil {
		return 0, false
	}
	if slot, ok := fs.Parent.resolveLocal(name); ok {
		fs.Parent.markCaptured(slot)
		kind := bytecode.UpvalRegular
		for _, l := range fs.Parent.locals {
			if l.slot == slot {
				if l.attrib == attribTBC {
					kind = bytecode.UpvalTBC
				} else if l.attrib == attribFinal {
					kind = bytecode.UpvalFinal
				}
			}
		}
		idx := int32(len(fs.upvals))
		fs.upvals = append(fs.upvals, upvalRef{name: name, idx: idx, inStack: true})
		fs.Proto.Upvals = append(fs.Proto.Upvals, bytecode.UpvalInfo{Idx: uint32(slot), InStack: true, Kind: kind, Name: name})
		return idx, true
	}
	if pidx, ok := fs.Parent.resolveUpval(name); ok {
		idx := int32(len(fs.upvals))
		fs.upvals = append(fs.upvals, upvalRef{name: name, idx: idx, inStack: false})
		fs.Proto.Upvals = append(fs.Proto.Upvals, bytecode.UpvalInfo{Idx: uint32(pidx), InStack: false, Kind: bytecode.UpvalRegular, Name: name})
		return idx, true
	}
	return 0, false
}

// envIndex returns the implicit _ENV upvalue's index, creating it (as a
// captured upvalue chained from the enclosing function, or otherwise as
// a new upvalue entry with Idx 0 and InStack false) the first time it's
// needed — Tokudae's
// globals are sugar for indexing this table (spec section 6, global
// access is not itself a listed opcode family; modeled the way Lua 5.2+
// does it, as an ordinary upvalue reference).
func (fs *FunctionState) envIndex() int32 {
	if fs.envUpval >= 0 {
		return fs.envUpval
	}
	if idx, ok := fs.resolveUpval("_ENV"); ok {
		fs.envUpval = idx
		return idx
	}
	idx := int32(len(fs.upvals))
	fs.upvals = append(fs.upvals, upvalRef{name: "_ENV", idx: idx, inStack: false})
	fs.Proto.Upvals = append(fs.Proto.Upvals, bytecode.UpvalInfo{Idx: 0, InStack: false, Kind: bytecode.UpvalRegular, Name: "_ENV"})
	fs.envUpval = idx
	return idx
}
