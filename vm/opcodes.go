package vm

import "fmt"

// Opcode identifies a virtual machine instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack (0x00-0x0F)
	// ========================================================================

	OpNop          Opcode = 0x00 // No operation
	OpLoadValue    Opcode = 0x01 // Push the instruction's literal value
	OpLoadReceiver Opcode = 0x02 // Push the frame's default receiver
	OpDrop         Opcode = 0x03 // Pop and discard top of stack

	// ========================================================================
	// Slots (0x10-0x1F)
	// ========================================================================

	OpGetSlot    Opcode = 0x10 // Push the context binding named by the instruction
	OpCreateSlot Opcode = 0x11 // Define name in the frame's context from TOS; TOS stays
	OpSetSlot    Opcode = 0x12 // Assign the innermost binding of name from TOS; TOS stays

	// ========================================================================
	// Construction (0x20-0x2F)
	// ========================================================================

	OpMakeTuple  Opcode = 0x20 // Pop N values, push a tuple of them
	OpMakeVector Opcode = 0x21 // Pop N values, push a vector of them
	OpMakeQuote  Opcode = 0x22 // Push a quote closing over the frame's context

	// ========================================================================
	// Invocation (0x30-0x3F)
	// ========================================================================

	OpInvoke     Opcode = 0x30 // Pop receiver + N-1 args, resolve selector, dispatch
	OpTailInvoke Opcode = 0x31 // As OpInvoke, eliding the caller frame when safe
)

// OpcodeInfo provides metadata about each opcode for debugging and
// validation.
type OpcodeInfo struct {
	Name      string // Human-readable name
	StackPop  int    // Values popped (-1 = variable)
	StackPush int    // Values pushed
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNop:          {"NOP", 0, 0},
	OpLoadValue:    {"LOAD_VALUE", 0, 1},
	OpLoadReceiver: {"LOAD_RECEIVER", 0, 1},
	OpDrop:         {"DROP", 1, 0},

	OpGetSlot:    {"GET_SLOT", 0, 1},
	OpCreateSlot: {"CREATE_SLOT", 1, 1},
	OpSetSlot:    {"SET_SLOT", 1, 1},

	OpMakeTuple:  {"MAKE_TUPLE", -1, 1},
	OpMakeVector: {"MAKE_VECTOR", -1, 1},
	OpMakeQuote:  {"MAKE_QUOTE", 0, 1},

	OpInvoke:     {"INVOKE", -1, 1},
	OpTailInvoke: {"TAIL_INVOKE", -1, 1},
}

// GetOpcodeInfo returns metadata for an opcode.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsInvoke reports whether this opcode performs a message send.
func (op Opcode) IsInvoke() bool {
	return op == OpInvoke || op == OpTailInvoke
}

// AllOpcodes returns all defined opcodes, useful for testing that every
// opcode has metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}
