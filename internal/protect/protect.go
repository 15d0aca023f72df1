// Package protect models Tokudae's protected-call / unwind protocol (spec
// section 5 and 7) without relying on C-style setjmp/longjmp: a
// ProtectedCall installs a recover point, Throw panics with a typed error,
// and to-be-closed handlers registered on the way in fire in LIFO order
// during unwind, the way tokuC_tbc-marked locals do in the original.
package protect

import (
	"github.com/b-jure/tokudae-sub001/internal/errors"
)

// CloseHandler is invoked, in LIFO order, while an error unwinds past the
// scope that registered it. If it itself raises, the new error supersedes
// the one currently unwinding (spec section 5).
type CloseHandler func(pending error) error

// Frame is one protected-call installation. Close handlers registered
// against this frame run during an unwind that passes through it.
type Frame struct {
	handlers []CloseHandler
}

// Defer registers a to-be-closed handler against this frame.
func (f *Frame) Defer(h CloseHandler) {
	f.handlers = append(f.handlers, h)
}

// unwind runs registered handlers LIFO, allowing a later handler's error
// to supersede an earlier (or the original) one.
func (f *Frame) unwind(cause error) error {
	for i := len(f.handlers) - 1; i >= 0; i-- {
		h := f.handlers[i]
		func() {
			defer func() {
				if r := recover(); r != nil {
					sig, ok := r.(throwSignal)
					if !ok {
						panic(r)
					}
					cause = sig.err
				}
			}()
			if replaced := h(cause); replaced != nil {
				cause = replaced
			}
		}()
	}
	return cause
}

// Throw unwinds to the nearest enclosing ProtectedCall, materializing err
// on the caller's side as the function's return value.
func Throw(err error) {
	panic(throwSignal{err: err})
}

type throwSignal struct{ err error }

// ProtectedCall installs a recover point and runs f with a fresh Frame.
// Any Throw within f (direct or nested) is caught here; to-be-closed
// handlers registered on frame fire before the error is returned. A
// handler that panics with its own Throw supersedes the original error,
// matching "the later throw supersedes" (spec section 5).
func ProtectedCall(f func(frame *Frame)) (err error) {
	frame := &Frame{}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		sig, ok := r.(throwSignal)
		if !ok {
			// Not one of ours (e.g. a genuine Go runtime panic promoted to
			// MemoryError) — treat it as an unrecoverable allocation fault.
			err = errors.MemoryError()
			err = frame.unwind(err)
			return
		}
		err = frame.unwind(sig.err)
	}()
	f(frame)
	return nil
}
