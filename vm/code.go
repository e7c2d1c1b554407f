package vm

import "github.com/chazu/vireo/pkg/ast"

// QuoteTemplate is the compile-time half of a quote: parameter names and an
// unlowered body. OpMakeQuote pairs it with the executing frame's context to
// produce a Quote value.
type QuoteTemplate struct {
	Params []string
	Body   ast.Expr
	Loc    ast.Span
}

// Inst is one span-annotated instruction. Operands are inline: Name holds a
// selector or slot name, N an argument or component count, Val a literal,
// Template a quote template.
type Inst struct {
	Op       Opcode
	Name     string
	N        int
	Val      Value
	Template *QuoteTemplate
	Loc      ast.Span

	site *dispatchSite // monomorphic dispatch cache, invoke opcodes only
}

// Code is a compiled body: a flat instruction sequence plus the dispatch
// caches recorded while it ran. A Code becomes stale when a multimethod it
// inlined a decision about is redefined; stale quote bodies recompile on
// their next invocation.
type Code struct {
	Name  string // selector or a placeholder like <toplevel>
	Insts []Inst
	Loc   ast.Span

	stale bool
	sites []*dispatchSite
}

// dispatchSite caches one call site's last dispatch decision: for a fixed
// multimethod and exact argument type tuple, the selected method. Never
// populated for multimethods with value matchers, whose decisions depend on
// argument values rather than types alone. Entries also carry the runtime's
// type epoch at record time; a type extension bumps the epoch, so a cached
// winner cannot outlive an ancestry change that alters specificity.
type dispatchSite struct {
	mm     *MultiMethod
	types  []*Type
	method *Method
	epoch  uint64
	valid  bool
}

func (s *dispatchSite) lookup(mm *MultiMethod, types []*Type, epoch uint64) (*Method, bool) {
	if !s.valid || s.epoch != epoch || s.mm != mm || len(s.types) != len(types) {
		return nil, false
	}
	for i := range types {
		if s.types[i] != types[i] {
			return nil, false
		}
	}
	return s.method, true
}

func (s *dispatchSite) record(code *Code, mm *MultiMethod, types []*Type, m *Method, epoch uint64) {
	s.mm = mm
	s.types = append(s.types[:0], types...)
	s.method = m
	s.epoch = epoch
	s.valid = true
	mm.addDependent(code)
}

// Stale reports whether this code inlined a dispatch decision that has since
// been invalidated.
func (c *Code) Stale() bool { return c.stale }

func (c *Code) invalidate() {
	c.stale = true
	for _, s := range c.sites {
		s.valid = false
	}
}

// siteFor returns the dispatch cache for an invoke instruction, creating it
// on first use.
func (c *Code) siteFor(inst *Inst) *dispatchSite {
	if inst.site == nil {
		inst.site = &dispatchSite{}
		c.sites = append(c.sites, inst.site)
	}
	return inst.site
}
