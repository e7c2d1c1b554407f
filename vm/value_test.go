package vm

import "testing"

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Bool(true), true},
		{Bool(false), false},
		{Number(1), false},
		{Number(0), false},
		{Null{}, false},
		{String("t"), false},
	}
	for _, tc := range cases {
		if got := Truthy(tc.v); got != tc.want {
			t.Errorf("Truthy(%s) = %v, want %v", tc.v, got, tc.want)
		}
	}
}

func TestEqualStructuralKinds(t *testing.T) {
	cases := []struct {
		name string
		a, b Value
		want bool
	}{
		{"numbers", Number(3), Number(3), true},
		{"numbers differ", Number(3), Number(4), false},
		{"strings", String("x"), String("x"), true},
		{"bools", Bool(true), Bool(true), true},
		{"nulls", Null{}, Null{}, true},
		{"symbols", Symbol("a"), Symbol("a"), true},
		{"symbol vs string", Symbol("a"), String("a"), false},
		{"cross kind", Number(1), String("1"), false},
		{"tuples", &Tuple{Components: []Value{Number(1), String("s")}},
			&Tuple{Components: []Value{Number(1), String("s")}}, true},
		{"tuples differ", &Tuple{Components: []Value{Number(1)}},
			&Tuple{Components: []Value{Number(2)}}, false},
		{"tuple lengths", &Tuple{Components: []Value{Number(1)}},
			&Tuple{Components: []Value{Number(1), Number(2)}}, false},
		{"nested tuples", &Tuple{Components: []Value{&Tuple{Components: []Value{Number(1)}}}},
			&Tuple{Components: []Value{&Tuple{Components: []Value{Number(1)}}}}, true},
	}
	for _, tc := range cases {
		if got := Equal(tc.a, tc.b); got != tc.want {
			t.Errorf("%s: Equal = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestEqualIdentityKinds(t *testing.T) {
	v1 := &Vector{Components: []Value{Number(1)}}
	v2 := &Vector{Components: []Value{Number(1)}}
	if Equal(v1, v2) {
		t.Error("distinct vectors with equal components should not be equal")
	}
	if !Equal(v1, v1) {
		t.Error("a vector should equal itself")
	}

	q1 := &Quote{}
	q2 := &Quote{}
	if Equal(q1, q2) || !Equal(q1, q1) {
		t.Error("quotes compare by identity")
	}
}

func TestValueStrings(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Number(-3), "-3"},
		{String("hi"), `"hi"`},
		{Bool(true), "t"},
		{Bool(false), "f"},
		{Null{}, "null"},
		{Symbol("name"), ":name"},
		{&Tuple{Components: []Value{Number(1), Number(2)}}, "(1, 2)"},
		{&Vector{Components: []Value{Number(1), Number(2)}}, "{1; 2}"},
	}
	for _, tc := range cases {
		if got := tc.v.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestDisplayString(t *testing.T) {
	if got := DisplayString(String("plain")); got != "plain" {
		t.Errorf("strings display unquoted, got %q", got)
	}
	if got := DisplayString(Number(7)); got != "7" {
		t.Errorf("got %q", got)
	}
}
