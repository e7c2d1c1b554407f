package vm

import (
	"fmt"

	"github.com/chazu/vireo/pkg/ast"
)

// Frame is one activation on the VM's explicit call stack.
type Frame struct {
	code     *Code
	pc       int
	stack    []Value
	ctx      *Context
	receiver Value

	cleanup     Value // pending cleanup action, run when this frame returns
	isCleanup   bool  // this frame is running a cleanup action
	retain      Value // the real value threaded through a cleanup frame
	isHandler   bool  // popping this frame ends the signaling state
	forceUnwind bool
	liveRC      int // live return continuations targeting this frame
}

func (f *Frame) push(v Value) { f.stack = append(f.stack, v) }

func (f *Frame) pop() Value {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *Frame) popN(n int) []Value {
	vals := make([]Value, n)
	copy(vals, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return vals
}

func (f *Frame) peek() Value { return f.stack[len(f.stack)-1] }

// VM executes compiled code over a stack of frames. A VM instance runs one
// top-level evaluation; the Runtime it belongs to carries everything that
// outlives it.
type VM struct {
	rt     *Runtime
	frames []*Frame

	signaling  bool
	panicking  bool
	panicValue Value

	done   bool
	result Value
}

func newVM(rt *Runtime) *VM { return &VM{rt: rt} }

// Runtime returns the owning runtime, for intrinsic bodies.
func (m *VM) Runtime() *Runtime { return m.rt }

// Depth returns the current live frame count.
func (m *VM) Depth() int { return len(m.frames) }

func (m *VM) top() *Frame { return m.frames[len(m.frames)-1] }

func (m *VM) run(code *Code, ctx *Context) (Value, error) {
	if _, err := m.pushFrame(code, ctx, Null{}); err != nil {
		return nil, err
	}
	for !m.done {
		if err := m.step(); err != nil {
			return nil, err
		}
	}
	if m.panicking {
		return nil, &PanicError{Value: m.panicValue}
	}
	return m.result, nil
}

func (m *VM) pushFrame(code *Code, ctx *Context, receiver Value) (*Frame, error) {
	max := m.rt.MaxFrames
	if max == 0 {
		max = DefaultMaxFrames
	}
	if len(m.frames) >= max {
		return nil, m.fatal(fmt.Sprintf("call depth exceeded %d frames", max))
	}
	f := &Frame{code: code, ctx: ctx, receiver: receiver}
	m.frames = append(m.frames, f)
	return f, nil
}

func (m *VM) step() error {
	f := m.top()
	if f.forceUnwind || f.pc >= len(f.code.Insts) {
		return m.unwindTop()
	}

	inst := &f.code.Insts[f.pc]
	f.pc++
	if m.rt.Trace {
		m.rt.Log.Debugf("[%d] %04d %s %s", len(m.frames), f.pc-1, inst.Op, inst.Name)
	}

	switch inst.Op {
	case OpNop:
	case OpLoadValue:
		f.push(inst.Val)
	case OpLoadReceiver:
		f.push(f.receiver)
	case OpDrop:
		f.pop()
	case OpGetSlot:
		v, ok := f.ctx.Lookup(inst.Name)
		if !ok {
			return m.signal(CondUndefinedSlot, fmt.Sprintf("%q is not bound", inst.Name), inst.Loc)
		}
		f.push(v)
	case OpCreateSlot:
		if err := f.ctx.Define(inst.Name, f.peek()); err != nil {
			return m.signal(CondInternalError, err.Error(), inst.Loc)
		}
	case OpSetSlot:
		if err := f.ctx.Assign(inst.Name, f.peek()); err != nil {
			return m.signal(CondUndefinedSlot, err.Error(), inst.Loc)
		}
	case OpMakeTuple:
		f.push(&Tuple{Components: f.popN(inst.N)})
	case OpMakeVector:
		f.push(&Vector{Components: f.popN(inst.N)})
	case OpMakeQuote:
		t := inst.Template
		f.push(&Quote{Params: t.Params, Body: t.Body, Ctx: f.ctx, Loc: t.Loc})
	case OpInvoke:
		return m.invoke(f, inst, false)
	case OpTailInvoke:
		return m.invoke(f, inst, true)
	default:
		return m.fatal(fmt.Sprintf("unknown opcode 0x%02X", byte(inst.Op)))
	}
	return nil
}

// invoke resolves a selector against the frame's context and dispatches.
// A name bound to a plain value pushes that value; a multimethod selects an
// overload per the argument tuple. The frame's pc has already advanced, so
// continuations captured below resume after this instruction.
func (m *VM) invoke(f *Frame, inst *Inst, tail bool) error {
	args := f.popN(inst.N)

	callee, ok := f.ctx.Lookup(inst.Name)
	if !ok {
		return m.signal(CondUndefinedSlot, fmt.Sprintf("%q is not bound", inst.Name), inst.Loc)
	}
	mm, isMM := callee.(*MultiMethod)
	if !isMM {
		f.push(callee)
		return nil
	}
	if mm.Arity != len(args) {
		return m.signal(CondNoMatchingMethod,
			fmt.Sprintf("multimethod %s takes %d arguments, got %d", mm.Name, mm.Arity, len(args)), inst.Loc)
	}

	method, cond := m.selectCached(f, inst, mm, args)
	if cond != nil {
		return m.signal(cond.Name, cond.Message, inst.Loc)
	}
	return m.dispatch(method, args, tail, inst.Loc)
}

// selectCached consults the call site's monomorphic cache before running
// full selection. Caching is type-based, so it is skipped entirely for
// multimethods with value matchers.
func (m *VM) selectCached(f *Frame, inst *Inst, mm *MultiMethod, args []Value) (*Method, *Condition) {
	if mm.hasValueMatchers {
		return mm.Select(m.rt, args)
	}
	types := make([]*Type, len(args))
	for i, a := range args {
		types[i] = m.rt.TypeOf(a)
	}
	site := f.code.siteFor(inst)
	if method, ok := site.lookup(mm, types, m.rt.typeEpoch); ok {
		return method, nil
	}
	method, cond := mm.Select(m.rt, args)
	if method != nil {
		site.record(f.code, mm, types, method, m.rt.typeEpoch)
	}
	return method, cond
}

func (m *VM) dispatch(method *Method, args []Value, tail bool, loc ast.Span) error {
	switch {
	case method.Quote != nil:
		return m.pushMethodFrame(method.Quote, args, tail)
	case method.Intrinsic != nil:
		if err := m.runIntrinsic(method.Intrinsic, tail, args); err != nil {
			return m.signalError(err, loc)
		}
		return nil
	case method.Native != nil:
		v, err := m.runNative(method.Native, args)
		if err != nil {
			return m.signalError(err, loc)
		}
		m.top().push(v)
		return nil
	}
	return m.fatal("method has no body")
}

// runNative calls a host-native body, converting panics into errors so a
// host fault never unwinds through the step loop.
func (m *VM) runNative(fn NativeFunc, args []Value) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("native fault: %v", r)
		}
	}()
	return fn(m.top().ctx, args[0], args[1:])
}

func (m *VM) runIntrinsic(fn IntrinsicFunc, tail bool, args []Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("intrinsic fault: %v", r)
		}
	}()
	return fn(m, tail, args)
}

// pushMethodFrame activates a bytecode method body: a fresh context child of
// the method's captured context binds every parameter (the receiver first),
// and the receiver becomes the frame's default receiver.
func (m *VM) pushMethodFrame(q *Quote, args []Value, tail bool) error {
	code, err := q.compiled()
	if err != nil {
		return m.signalError(err, q.Loc)
	}
	ctx := NewContext(q.Ctx)
	for i, p := range q.Params {
		if err := ctx.Define(p, args[i]); err != nil {
			return m.signal(CondInternalError, err.Error(), q.Loc)
		}
	}
	return m.finishPush(code, ctx, args[0], tail)
}

// CallQuote activates a quote with the given arguments. A quote with no
// declared parameters called with exactly one argument binds it as `it`.
// The default receiver inside a plain quote activation is null.
func (m *VM) CallQuote(q *Quote, args []Value, tail bool) error {
	params := q.Params
	if len(params) == 0 && len(args) == 1 {
		params = []string{"it"}
	}
	if len(params) != len(args) {
		return &ConditionError{Name: CondInternalError,
			Message: fmt.Sprintf("quote takes %d arguments, got %d", len(params), len(args))}
	}
	code, err := q.compiled()
	if err != nil {
		return &ConditionError{Name: CondInternalError, Message: err.Error()}
	}
	ctx := NewContext(q.Ctx)
	for i, p := range params {
		if err := ctx.Define(p, args[i]); err != nil {
			return &ConditionError{Name: CondInternalError, Message: err.Error()}
		}
	}
	return m.finishPush(code, ctx, Null{}, tail)
}

// finishPush performs tail elision when requested and safe: the caller must
// be at its last instruction with no pending cleanup, must not itself be a
// cleanup or handler frame, and must have no live return continuations.
// Otherwise the call falls back to a plain push.
func (m *VM) finishPush(code *Code, ctx *Context, receiver Value, tail bool) error {
	if tail {
		f := m.top()
		if f.pc >= len(f.code.Insts) && f.cleanup == nil &&
			!f.isCleanup && !f.isHandler && f.liveRC == 0 {
			m.frames = m.frames[:len(m.frames)-1]
		}
	}
	_, err := m.pushFrame(code, ctx, receiver)
	return err
}

// unwindTop retires the top frame. Its pending cleanup, if any, runs first
// in a fresh is-cleanup frame that retains the frame's value; a cleanup
// frame's own result is discarded in favor of the retained one.
func (m *VM) unwindTop() error {
	f := m.top()
	var result Value = Null{}
	if len(f.stack) > 0 {
		result = f.stack[len(f.stack)-1]
	}

	if f.cleanup != nil {
		action := f.cleanup
		f.cleanup = nil
		m.frames = m.frames[:len(m.frames)-1]
		if q, ok := action.(*Quote); ok {
			if err := m.CallQuote(q, nil, false); err != nil {
				return m.signalError(err, q.Loc)
			}
			cf := m.top()
			cf.isCleanup = true
			cf.retain = result
			if f.isCleanup {
				// Nested cleanup: keep threading the outer retained value.
				cf.retain = f.retain
			}
			if f.isHandler {
				cf.isHandler = true
			}
			return nil
		}
		// Non-quote cleanup values are dropped; attachment should have
		// rejected them, but an unwind is no place to fail.
	}

	m.frames = m.frames[:len(m.frames)-1]
	if f.isHandler {
		m.signaling = false
	}

	value := result
	if f.isCleanup {
		value = f.retain
	}
	if len(m.frames) == 0 {
		m.result = value
		m.done = true
		return nil
	}
	m.top().push(value)
	return nil
}
