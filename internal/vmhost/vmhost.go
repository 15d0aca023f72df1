// Package vmhost stubs the embedding-API surface (spec section 6) that
// the compiler pipeline depends on but does not implement: a host State
// with a value stack, and the load/dump/call contract a real VM
// dispatcher would back. The VM dispatcher itself is explicitly out of
// scope (spec section 1); this package exists only so the marshaller and
// parser have a concrete "host" to hand compiled chunks to in tests and
// in the cmd/ drivers.
package vmhost

import (
	"github.com/b-jure/tokudae-sub001/internal/bytecode"
	"github.com/b-jure/tokudae-sub001/internal/value"
	"github.com/google/uuid"
)

// State is a minimal per-thread compilation/loading context. Real
// execution state (registers, open upvalues, call frames) belongs to the
// VM dispatcher; State here only tracks what chunk loading touches.
type State struct {
	// ID correlates diagnostics/traces across concurrent compile sessions
	// (spec section 5: "Multiple independent states may execute
	// compilations in parallel; they share nothing mutable").
	ID uuid.UUID

	stack []value.Value
	top   *FunctionProtoHandle
}

// FunctionProtoHandle wraps a loaded top-level proto plus its originating
// chunk name, mirroring what `load`/`dump` operate on (spec section 6).
type FunctionProtoHandle struct {
	Proto     *bytecode.FunctionProto
	ChunkName string
}

// NewState creates a fresh host state with a random session id.
func NewState() *State {
	return &State{ID: uuid.New()}
}

// Push appends v to the value stack.
func (s *State) Push(v value.Value) { s.stack = append(s.stack, v) }

// Pop removes and returns the top value; ok is false on an empty stack.
func (s *State) Pop() (value.Value, bool) {
	if len(s.stack) == 0 {
		return value.Value{}, false
	}
	v := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return v, true
}

// GetTop returns the number of values currently on the stack.
func (s *State) GetTop() int { return len(s.stack) }

// SetNTop truncates or nil-pads the stack to exactly n values.
func (s *State) SetNTop(n int) {
	for len(s.stack) < n {
		s.stack = append(s.stack, value.Nil())
	}
	s.stack = s.stack[:n]
}

// Load installs proto as the top-of-stack function value, the target of
// `load` in spec section 6 once parsing/undumping has produced a proto.
func (s *State) Load(proto *bytecode.FunctionProto, chunkName string) {
	s.top = &FunctionProtoHandle{Proto: proto, ChunkName: chunkName}
	s.Push(value.Handle(value.KFunction, s.top))
}

// Top returns the most recently Load-ed proto handle, if any.
func (s *State) Top() *FunctionProtoHandle { return s.top }
