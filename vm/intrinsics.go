package vm

// Intrinsics are the control primitives that cannot be value-returning
// functions: they branch, activate quotes, capture or resume continuations,
// attach cleanups, and panic. Each receives the VM directly.

// RegisterIntrinsics binds the control primitives in the runtime's root
// context. The builtin library calls this before its own registrations.
func RegisterIntrinsics(rt *Runtime) error {
	quote := TypeMatcher{Type: rt.Core.Quote}
	any := AnyMatcher{}

	regs := []struct {
		selector string
		matchers []Matcher
		fn       IntrinsicFunc
	}{
		{"if:then:else:", []Matcher{any, any, any, any}, intrinsicIfThenElse},
		{"call", []Matcher{any}, intrinsicCall},
		{"call:", []Matcher{any, any}, intrinsicCallWith},
		{"call*:", []Matcher{any, TypeMatcher{Type: rt.Core.Tuple}}, intrinsicCallSpread},
		{"call/cc", []Matcher{quote}, intrinsicCallCC},
		{"call/rc", []Matcher{quote}, intrinsicCallRC},
		{"cleanup:", []Matcher{quote, quote}, intrinsicCleanup},
		{"panic!:", []Matcher{any, any}, intrinsicPanic},
	}
	for _, r := range regs {
		if err := rt.DefineIntrinsic(rt.Root, r.selector, r.matchers, r.fn); err != nil {
			return err
		}
	}
	return nil
}

// intrinsicIfThenElse picks a branch on a boolean condition. A quote branch
// is activated (in tail position when the send was a tail send); any other
// value is the branch's result directly.
func intrinsicIfThenElse(m *VM, tail bool, args []Value) error {
	branch := args[3]
	if Truthy(args[1]) {
		branch = args[2]
	}
	if q, ok := branch.(*Quote); ok {
		return m.CallQuote(q, nil, tail)
	}
	m.top().push(branch)
	return nil
}

func intrinsicCall(m *VM, tail bool, args []Value) error {
	return invokeValue(m, args[0], nil, tail)
}

func intrinsicCallWith(m *VM, tail bool, args []Value) error {
	return invokeValue(m, args[0], []Value{args[1]}, tail)
}

func intrinsicCallSpread(m *VM, tail bool, args []Value) error {
	tuple := args[1].(*Tuple)
	return invokeValue(m, args[0], tuple.Components, tail)
}

// invokeValue applies the call family to any receiver: quotes activate,
// continuations resume, return continuations unwind, and anything else is
// its own result.
func invokeValue(m *VM, receiver Value, args []Value, tail bool) error {
	switch callee := receiver.(type) {
	case *Quote:
		return m.CallQuote(callee, args, tail)
	case *Continuation:
		m.ResumeContinuation(callee, argOrNull(args))
		return nil
	case *ReturnContinuation:
		return m.InvokeReturn(callee, argOrNull(args))
	default:
		m.top().push(receiver)
		return nil
	}
}

func argOrNull(args []Value) Value {
	if len(args) > 0 {
		return args[0]
	}
	return Null{}
}

// intrinsicCallCC captures the current stack and activates the receiver
// quote with the continuation as its argument.
func intrinsicCallCC(m *VM, tail bool, args []Value) error {
	k := m.CaptureContinuation()
	return m.CallQuote(args[0].(*Quote), []Value{k}, tail)
}

// intrinsicCallRC hands the receiver quote a single-extent escape back to
// the calling frame.
func intrinsicCallRC(m *VM, tail bool, args []Value) error {
	rc := m.CaptureReturn()
	return m.CallQuote(args[0].(*Quote), []Value{rc}, false)
}

// intrinsicCleanup activates the protected quote and attaches the cleanup
// action to its frame, to run however that frame ends.
func intrinsicCleanup(m *VM, _ bool, args []Value) error {
	if err := m.CallQuote(args[0].(*Quote), nil, false); err != nil {
		return err
	}
	m.top().cleanup = args[1]
	return nil
}

func intrinsicPanic(m *VM, _ bool, args []Value) error {
	m.Panic(args[1])
	return nil
}
