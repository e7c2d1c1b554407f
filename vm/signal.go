package vm

import (
	"fmt"
	"strings"

	"github.com/chazu/vireo/pkg/ast"
)

// Condition names. Every recoverable runtime failure is one of these.
const (
	CondUndefinedSlot    = "undefined-slot"
	CondNoMatchingMethod = "no-matching-method"
	CondAmbiguousMethod  = "ambiguous-method-resolution"
	CondInternalError    = "internal-error"
)

// Condition is a recoverable failure: a well-known name plus a message.
// Conditions are routed to handle-signal:, never raised as host errors.
type Condition struct {
	Name    string
	Message string
}

// ConditionError lets a native or intrinsic body raise a specific condition
// instead of the default internal-error. Any other error returned from a
// native body becomes an internal-error condition.
type ConditionError struct {
	Name    string
	Message string
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// TraceEntry is one frame of a fatal error's stack trace.
type TraceEntry struct {
	Where string
	Loc   ast.Span
}

// RunError is a fatal evaluation failure: an unhandled condition, a
// re-entrant signal, or a corrupted VM invariant. It carries the call stack
// innermost-first.
type RunError struct {
	Message string
	Trace   []TraceEntry
}

func (e *RunError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, entry := range e.Trace {
		fmt.Fprintf(&b, "\n  in %s at %s", entry.Where, entry.Loc.Start)
	}
	return b.String()
}

// PanicError carries the distinguished value surfaced by panic!: after all
// in-scope cleanups have run.
type PanicError struct {
	Value Value
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %s", e.Value)
}

// signal routes a condition to the handle-signal: binding visible from the
// current frame. The handler receives the (name, message) pair as its
// receiver and the signaling context as its argument; its result becomes the
// result of the faulting operation. An unbound handler or a signal raised
// while one is already being handled is fatal.
func (m *VM) signal(condName, message string, loc ast.Span) error {
	if m.signaling {
		return m.fatal(fmt.Sprintf("signal %s (%s) raised while already handling a signal", condName, message))
	}
	f := m.top()
	handler, ok := f.ctx.Lookup(handlerName)
	if !ok {
		return m.fatal(fmt.Sprintf("unhandled condition %s: %s", condName, message))
	}

	m.rt.Log.Debugf("signaling %s: %s", condName, message)
	m.signaling = true

	mm, isMM := handler.(*MultiMethod)
	if !isMM {
		// A plain value binding handles every signal with itself.
		m.signaling = false
		f.push(handler)
		return nil
	}

	pair := &Tuple{Components: []Value{String(condName), String(message)}}
	args := []Value{pair, &ContextValue{Ctx: f.ctx}}
	if mm.Arity != len(args) {
		return m.fatal(fmt.Sprintf("%s must take a condition and a context", handlerName))
	}
	method, cond := mm.Select(m.rt, args)
	if cond != nil {
		return m.fatal(fmt.Sprintf("%s while dispatching %s: %s", cond.Name, handlerName, cond.Message))
	}

	depth := len(m.frames)
	if err := m.dispatch(method, args, false, loc); err != nil {
		return err
	}
	if len(m.frames) > depth {
		// The handler body runs in its own frame; popping it both delivers
		// its result to the faulting frame and ends the signaling state.
		m.top().isHandler = true
	} else {
		m.signaling = false
	}
	return nil
}

// signalError converts a host error into a condition. ConditionErrors keep
// their name; anything else is an internal-error.
func (m *VM) signalError(err error, loc ast.Span) error {
	if ce, ok := err.(*ConditionError); ok {
		return m.signal(ce.Name, ce.Message, loc)
	}
	return m.signal(CondInternalError, err.Error(), loc)
}

// fatal aborts evaluation with an innermost-first stack trace.
func (m *VM) fatal(message string) error {
	trace := make([]TraceEntry, 0, len(m.frames))
	for i := len(m.frames) - 1; i >= 0; i-- {
		f := m.frames[i]
		loc := f.code.Loc
		if f.pc > 0 && f.pc <= len(f.code.Insts) {
			loc = f.code.Insts[f.pc-1].Loc
		}
		trace = append(trace, TraceEntry{Where: f.code.Name, Loc: loc})
	}
	return &RunError{Message: message, Trace: trace}
}

const handlerName = "handle-signal:"
