// Package builtin registers the standard library against a runtime's root
// context: operators, collection methods, printing, type reflection, and
// the definition forms.
package builtin

import (
	"fmt"

	"github.com/chazu/vireo/vm"
)

// Register installs the control intrinsics and the standard library into
// the runtime's root context.
func Register(rt *vm.Runtime) error {
	if err := vm.RegisterIntrinsics(rt); err != nil {
		return err
	}

	root := rt.Root
	for name, v := range map[string]vm.Value{
		"t":    vm.Bool(true),
		"f":    vm.Bool(false),
		"null": vm.Null{},
	} {
		if err := root.Define(name, v); err != nil {
			return err
		}
	}

	steps := []func(*vm.Runtime) error{
		registerArithmetic,
		registerComparison,
		registerLogic,
		registerStrings,
		registerCollections,
		registerReflection,
		registerPrinting,
		registerDefinitionForms,
	}
	for _, step := range steps {
		if err := step(rt); err != nil {
			return err
		}
	}
	return nil
}

func numbers(rt *vm.Runtime) []vm.Matcher {
	n := vm.TypeMatcher{Type: rt.Core.Number}
	return []vm.Matcher{n, n}
}

func numberOp(rt *vm.Runtime, selector string, fn func(a, b int64) (vm.Value, error)) error {
	return rt.DefineNative(rt.Root, selector, numbers(rt),
		func(_ *vm.Context, recv vm.Value, args []vm.Value) (vm.Value, error) {
			return fn(int64(recv.(vm.Number)), int64(args[0].(vm.Number)))
		})
}

func registerArithmetic(rt *vm.Runtime) error {
	ops := map[string]func(a, b int64) (vm.Value, error){
		"+": func(a, b int64) (vm.Value, error) { return vm.Number(a + b), nil },
		"-": func(a, b int64) (vm.Value, error) { return vm.Number(a - b), nil },
		"*": func(a, b int64) (vm.Value, error) { return vm.Number(a * b), nil },
		"/": func(a, b int64) (vm.Value, error) {
			if b == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return vm.Number(a / b), nil
		},
		"%": func(a, b int64) (vm.Value, error) {
			if b == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return vm.Number(a % b), nil
		},
	}
	for selector, fn := range ops {
		if err := numberOp(rt, selector, fn); err != nil {
			return err
		}
	}
	// Prefix minus is the keyword message "-:" sent to its operand.
	return rt.DefineNative(rt.Root, "-:", []vm.Matcher{vm.TypeMatcher{Type: rt.Core.Number}},
		func(_ *vm.Context, recv vm.Value, _ []vm.Value) (vm.Value, error) {
			return vm.Number(-int64(recv.(vm.Number))), nil
		})
}

func registerComparison(rt *vm.Runtime) error {
	cmps := map[string]func(a, b int64) bool{
		"<":  func(a, b int64) bool { return a < b },
		"<=": func(a, b int64) bool { return a <= b },
		">":  func(a, b int64) bool { return a > b },
		">=": func(a, b int64) bool { return a >= b },
	}
	for selector, fn := range cmps {
		fn := fn
		err := numberOp(rt, selector, func(a, b int64) (vm.Value, error) {
			return vm.Bool(fn(a, b)), nil
		})
		if err != nil {
			return err
		}
	}

	any := vm.AnyMatcher{}
	err := rt.DefineNative(rt.Root, "=", []vm.Matcher{any, any},
		func(_ *vm.Context, recv vm.Value, args []vm.Value) (vm.Value, error) {
			return vm.Bool(vm.Equal(recv, args[0])), nil
		})
	if err != nil {
		return err
	}
	return rt.DefineNative(rt.Root, "!=", []vm.Matcher{any, any},
		func(_ *vm.Context, recv vm.Value, args []vm.Value) (vm.Value, error) {
			return vm.Bool(!vm.Equal(recv, args[0])), nil
		})
}

func registerLogic(rt *vm.Runtime) error {
	b := vm.TypeMatcher{Type: rt.Core.Bool}
	err := rt.DefineNative(rt.Root, "and:", []vm.Matcher{b, b},
		func(_ *vm.Context, recv vm.Value, args []vm.Value) (vm.Value, error) {
			return vm.Bool(bool(recv.(vm.Bool)) && bool(args[0].(vm.Bool))), nil
		})
	if err != nil {
		return err
	}
	err = rt.DefineNative(rt.Root, "or:", []vm.Matcher{b, b},
		func(_ *vm.Context, recv vm.Value, args []vm.Value) (vm.Value, error) {
			return vm.Bool(bool(recv.(vm.Bool)) || bool(args[0].(vm.Bool))), nil
		})
	if err != nil {
		return err
	}
	// Prefix not: `! x`.
	return rt.DefineNative(rt.Root, "!:", []vm.Matcher{b},
		func(_ *vm.Context, recv vm.Value, _ []vm.Value) (vm.Value, error) {
			return vm.Bool(!bool(recv.(vm.Bool))), nil
		})
}

func registerStrings(rt *vm.Runtime) error {
	s := vm.TypeMatcher{Type: rt.Core.String}
	err := rt.DefineNative(rt.Root, "~", []vm.Matcher{s, s},
		func(_ *vm.Context, recv vm.Value, args []vm.Value) (vm.Value, error) {
			return recv.(vm.String) + args[0].(vm.String), nil
		})
	if err != nil {
		return err
	}
	err = rt.DefineNative(rt.Root, "as-string", []vm.Matcher{vm.AnyMatcher{}},
		func(_ *vm.Context, recv vm.Value, _ []vm.Value) (vm.Value, error) {
			return vm.String(vm.DisplayString(recv)), nil
		})
	if err != nil {
		return err
	}
	return rt.DefineNative(rt.Root, "size", []vm.Matcher{s},
		func(_ *vm.Context, recv vm.Value, _ []vm.Value) (vm.Value, error) {
			return vm.Number(len(recv.(vm.String))), nil
		})
}

func registerCollections(rt *vm.Runtime) error {
	vec := vm.TypeMatcher{Type: rt.Core.Vector}
	tup := vm.TypeMatcher{Type: rt.Core.Tuple}
	num := vm.TypeMatcher{Type: rt.Core.Number}
	any := vm.AnyMatcher{}

	index := func(n int64, size int, what string) (int, error) {
		if n < 0 || int(n) >= size {
			return 0, &vm.ConditionError{Name: vm.CondInternalError,
				Message: fmt.Sprintf("index %d out of bounds for %s of size %d", n, what, size)}
		}
		return int(n), nil
	}

	err := rt.DefineNative(rt.Root, "at:", []vm.Matcher{vec, num},
		func(_ *vm.Context, recv vm.Value, args []vm.Value) (vm.Value, error) {
			v := recv.(*vm.Vector)
			i, err := index(int64(args[0].(vm.Number)), len(v.Components), "vector")
			if err != nil {
				return nil, err
			}
			return v.Components[i], nil
		})
	if err != nil {
		return err
	}
	err = rt.DefineNative(rt.Root, "at:", []vm.Matcher{tup, num},
		func(_ *vm.Context, recv vm.Value, args []vm.Value) (vm.Value, error) {
			t := recv.(*vm.Tuple)
			i, err := index(int64(args[0].(vm.Number)), len(t.Components), "tuple")
			if err != nil {
				return nil, err
			}
			return t.Components[i], nil
		})
	if err != nil {
		return err
	}
	err = rt.DefineNative(rt.Root, "at:put:", []vm.Matcher{vec, num, any},
		func(_ *vm.Context, recv vm.Value, args []vm.Value) (vm.Value, error) {
			v := recv.(*vm.Vector)
			i, err := index(int64(args[0].(vm.Number)), len(v.Components), "vector")
			if err != nil {
				return nil, err
			}
			v.Components[i] = args[1]
			return args[1], nil
		})
	if err != nil {
		return err
	}
	err = rt.DefineNative(rt.Root, "append:", []vm.Matcher{vec, any},
		func(_ *vm.Context, recv vm.Value, args []vm.Value) (vm.Value, error) {
			v := recv.(*vm.Vector)
			v.Components = append(v.Components, args[0])
			return recv, nil
		})
	if err != nil {
		return err
	}
	err = rt.DefineNative(rt.Root, "size", []vm.Matcher{vec},
		func(_ *vm.Context, recv vm.Value, _ []vm.Value) (vm.Value, error) {
			return vm.Number(len(recv.(*vm.Vector).Components)), nil
		})
	if err != nil {
		return err
	}
	return rt.DefineNative(rt.Root, "size", []vm.Matcher{tup},
		func(_ *vm.Context, recv vm.Value, _ []vm.Value) (vm.Value, error) {
			return vm.Number(len(recv.(*vm.Tuple).Components)), nil
		})
}

func registerReflection(rt *vm.Runtime) error {
	any := vm.AnyMatcher{}
	typ := vm.TypeMatcher{Type: rt.Core.Type}

	err := rt.DefineNative(rt.Root, "type-of", []vm.Matcher{any},
		func(_ *vm.Context, recv vm.Value, _ []vm.Value) (vm.Value, error) {
			return rt.TypeOf(recv), nil
		})
	if err != nil {
		return err
	}
	err = rt.DefineNative(rt.Root, "subtype?:", []vm.Matcher{typ, typ},
		func(_ *vm.Context, recv vm.Value, args []vm.Value) (vm.Value, error) {
			return vm.Bool(vm.IsSubtype(recv.(*vm.Type), args[0].(*vm.Type))), nil
		})
	if err != nil {
		return err
	}
	err = rt.DefineNative(rt.Root, "instance?:", []vm.Matcher{any, typ},
		func(_ *vm.Context, recv vm.Value, args []vm.Value) (vm.Value, error) {
			return vm.Bool(vm.IsSubtype(rt.TypeOf(recv), args[0].(*vm.Type))), nil
		})
	if err != nil {
		return err
	}
	return rt.DefineNative(rt.Root, "extend:with:", []vm.Matcher{any, typ, any},
		func(_ *vm.Context, _ vm.Value, args []vm.Value) (vm.Value, error) {
			bases, err := typeList(args[1])
			if err != nil {
				return nil, err
			}
			if err := rt.ExtendType(args[0].(*vm.Type), bases); err != nil {
				return nil, err
			}
			return args[0], nil
		})
}

func registerPrinting(rt *vm.Runtime) error {
	return rt.DefineNative(rt.Root, "print:", []vm.Matcher{vm.AnyMatcher{}, vm.AnyMatcher{}},
		func(_ *vm.Context, _ vm.Value, args []vm.Value) (vm.Value, error) {
			if _, err := fmt.Fprintln(rt.Stdout, vm.DisplayString(args[0])); err != nil {
				return nil, err
			}
			return args[0], nil
		})
}

func typeList(v vm.Value) ([]*vm.Type, error) {
	switch val := v.(type) {
	case *vm.Type:
		return []*vm.Type{val}, nil
	case *vm.Tuple:
		types := make([]*vm.Type, len(val.Components))
		for i, c := range val.Components {
			t, ok := c.(*vm.Type)
			if !ok {
				return nil, fmt.Errorf("expected a type, got %s", c)
			}
			types[i] = t
		}
		return types, nil
	case *vm.Vector:
		return typeList(&vm.Tuple{Components: val.Components})
	}
	return nil, fmt.Errorf("expected a type or a tuple of types, got %s", v)
}
