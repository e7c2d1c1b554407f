// Package interp is the source-to-value façade over the lexer, parser, and
// runtime, used by the driver and by end-to-end tests.
package interp

import (
	"github.com/chazu/vireo/pkg/parser"
	"github.com/chazu/vireo/vm"
)

// EvalString parses and evaluates one source buffer in the runtime's root
// context. Multiple newline- or semicolon-separated statements evaluate in
// order; the last statement's value is returned.
func EvalString(rt *vm.Runtime, src string) (vm.Value, error) {
	expr, err := parser.Parse(src)
	if err != nil {
		return nil, err
	}
	return rt.EvalToplevel(expr, nil)
}
