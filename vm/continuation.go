package vm

import (
	"fmt"

	"github.com/google/uuid"
)

// Continuation is a deep snapshot of the whole call stack: every frame
// struct and data stack is copied, while contexts and values stay shared by
// reference. Invoking it re-copies the snapshot, so a continuation is
// multi-shot.
type Continuation struct {
	ID     string
	frames []*Frame
}

func (*Continuation) Kind() Kind { return KindContinuation }

func (k *Continuation) String() string {
	id := k.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("<continuation %s>", id)
}

// ReturnContinuation remembers one frame by identity. It can be invoked
// only while that frame is still on the stack: a single dynamic extent.
type ReturnContinuation struct {
	frame *Frame
}

func (*ReturnContinuation) Kind() Kind { return KindReturnContinuation }

func (*ReturnContinuation) String() string { return "<return-continuation>" }

func copyFrames(frames []*Frame) []*Frame {
	out := make([]*Frame, len(frames))
	for i, f := range frames {
		dup := *f
		dup.stack = append([]Value(nil), f.stack...)
		out[i] = &dup
	}
	return out
}

// CaptureContinuation snapshots the current stack. The top frame's pc has
// already advanced past the capturing invoke, so resuming pushes the
// supplied value as that expression's result.
func (m *VM) CaptureContinuation() *Continuation {
	return &Continuation{ID: uuid.NewString(), frames: copyFrames(m.frames)}
}

// ResumeContinuation replaces the entire call stack with a fresh copy of the
// snapshot and delivers the value to the resumed frame.
func (m *VM) ResumeContinuation(k *Continuation, value Value) {
	m.frames = copyFrames(k.frames)
	m.top().push(value)
}

// CaptureReturn creates a return continuation targeting the current top
// frame and counts it live there, which blocks tail elision of the target
// while an escape to it remains possible.
func (m *VM) CaptureReturn() *ReturnContinuation {
	f := m.top()
	f.liveRC++
	return &ReturnContinuation{frame: f}
}

// InvokeReturn unwinds to a return continuation's target frame. The target
// must still be on the stack by identity; every frame above it is flagged
// for force-unwind except frames already running cleanups, so each pending
// cleanup between origin and target runs, innermost first, before the value
// arrives at the target.
func (m *VM) InvokeReturn(rc *ReturnContinuation, value Value) error {
	at := -1
	for i, f := range m.frames {
		if f == rc.frame {
			at = i
			break
		}
	}
	if at < 0 {
		return &ConditionError{Name: CondInternalError,
			Message: "return continuation invoked outside its dynamic extent"}
	}
	rc.frame.liveRC--
	for _, f := range m.frames[at+1:] {
		if !f.isCleanup {
			f.forceUnwind = true
		}
	}
	m.top().push(value)
	return nil
}

// Panic marks every frame that is not running a cleanup for force-unwind
// and records the distinguished panic value. Cleanups still run as the
// stack collapses; once it is empty the panic value surfaces to the driver.
func (m *VM) Panic(value Value) {
	m.panicking = true
	m.panicValue = value
	for _, f := range m.frames {
		if !f.isCleanup {
			f.forceUnwind = true
		}
	}
	m.top().push(value)
}
