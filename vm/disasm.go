package vm

import (
	"fmt"
	"strings"
)

// Disassemble renders a compiled body as a human-readable listing, one
// instruction per line.
func Disassemble(code *Code) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", code.Name)
	for i := range code.Insts {
		b.WriteString(DisassembleInst(code, i))
		b.WriteByte('\n')
	}
	return b.String()
}

// DisassembleInst renders one instruction with its offset and operands.
func DisassembleInst(code *Code, i int) string {
	inst := &code.Insts[i]
	var b strings.Builder
	fmt.Fprintf(&b, "%04d %-13s", i, inst.Op)

	switch inst.Op {
	case OpLoadValue:
		fmt.Fprintf(&b, " %s", inst.Val)
	case OpGetSlot, OpCreateSlot, OpSetSlot:
		fmt.Fprintf(&b, " %s", inst.Name)
	case OpMakeTuple, OpMakeVector:
		fmt.Fprintf(&b, " %d", inst.N)
	case OpMakeQuote:
		if len(inst.Template.Params) > 0 {
			fmt.Fprintf(&b, " \\%s", strings.Join(inst.Template.Params, " "))
		}
	case OpInvoke, OpTailInvoke:
		fmt.Fprintf(&b, " %s %d", inst.Name, inst.N)
	}
	return strings.TrimRight(b.String(), " ")
}
