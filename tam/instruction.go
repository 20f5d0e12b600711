package tam

// Instruction is a single TAM bytecode instruction: an opcode, an optional
// register, and two integer fields n and d. Which fields carry meaning
// depends on the opcode (see Opcode.Info); the rest are zero but still
// round-trip through Image save/load.
//
// D is the only mutable field — the assembler back-patches it when a
// forward jump or forward call is resolved.
type Instruction struct {
	Op       Opcode
	Register Register
	HasReg   bool
	N        int
	D        int

	Debug DebugSymbolContainer
}

// NewInstruction builds an instruction with no attached register.
func NewInstruction(op Opcode, n, d int) Instruction {
	return Instruction{Op: op, N: n, D: d}
}

// NewInstructionR builds an instruction addressed relative to a register.
func NewInstructionR(op Opcode, reg Register, n, d int) Instruction {
	return Instruction{Op: op, Register: reg, HasReg: true, N: n, D: d}
}

// WithType attaches a Type debug symbol to a LOADL instruction, recording
// the literal's tag so the interpreter can push a correctly-tagged Value.
// Returns the instruction so callers can chain it onto a constructor.
func (i Instruction) WithType(t Type) Instruction {
	i.Debug.AddType(t)
	return i
}
