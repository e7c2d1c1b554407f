package vm

import "fmt"

// Context is one frame of the lexical environment chain. Lookup walks
// innermost to outermost; the root frame has no parent. Contexts are shared
// by reference between closures and call frames, so mutation through one
// holder is visible to all.
type Context struct {
	defs   map[string]Value
	parent *Context
}

// NewContext creates a context frame. Pass nil for a root frame.
func NewContext(parent *Context) *Context {
	return &Context{defs: map[string]Value{}, parent: parent}
}

// Lookup resolves a name, walking outward through the chain.
func (c *Context) Lookup(name string) (Value, bool) {
	for ctx := c; ctx != nil; ctx = ctx.parent {
		if v, ok := ctx.defs[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Define binds a name in this exact frame. Rebinding a name already bound
// in the same frame is an error; shadowing an outer frame is not.
func (c *Context) Define(name string, v Value) error {
	if _, ok := c.defs[name]; ok {
		return fmt.Errorf("%q is already defined in this scope", name)
	}
	c.defs[name] = v
	return nil
}

// Assign mutates the innermost existing binding of a name. Assignment never
// creates a binding.
func (c *Context) Assign(name string, v Value) error {
	for ctx := c; ctx != nil; ctx = ctx.parent {
		if _, ok := ctx.defs[name]; ok {
			ctx.defs[name] = v
			return nil
		}
	}
	return fmt.Errorf("cannot assign %q: no such binding", name)
}

// Bound reports whether a name is bound in this exact frame.
func (c *Context) Bound(name string) bool {
	_, ok := c.defs[name]
	return ok
}

// Parent returns the enclosing context frame, or nil at the root.
func (c *Context) Parent() *Context { return c.parent }
