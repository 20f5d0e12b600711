package tam

// Opcode identifies one of the fifteen TAM instructions. Ids match the
// instruction encoding in §6.3 exactly: 0..14 in table order.
type Opcode int

const (
	OpLOAD Opcode = iota
	OpLOADA
	OpLOADI
	OpLOADL
	OpSTORE
	OpSTOREI
	OpCALL
	OpCALLI
	OpRETURN
	OpPUSH
	OpPOP
	OpJUMP
	OpJUMPI
	OpJUMPIF
	OpHALT
	OpcodeCount
)

// OpcodeInfo records which of the (register, n, d) fields carry semantics
// for a given opcode. Fields outside this set are still stored and
// round-tripped through save/load, but the dispatcher and disassembler
// ignore them.
type OpcodeInfo struct {
	Name  string
	HasN  bool
	HasD  bool
	HasR  bool
}

var opcodeTable = [...]OpcodeInfo{
	OpLOAD:   {"LOAD", true, true, true},
	OpLOADA:  {"LOADA", false, true, true},
	OpLOADI:  {"LOADI", true, false, false},
	OpLOADL:  {"LOADL", false, true, false},
	OpSTORE:  {"STORE", true, true, true},
	OpSTOREI: {"STOREI", true, false, false},
	OpCALL:   {"CALL", false, true, true},
	OpCALLI:  {"CALLI", false, false, false},
	OpRETURN: {"RETURN", true, true, false},
	OpPUSH:   {"PUSH", false, true, false},
	OpPOP:    {"POP", true, true, false},
	OpJUMP:   {"JUMP", false, true, true},
	OpJUMPI:  {"JUMPI", false, false, false},
	OpJUMPIF: {"JUMPIF", true, true, true},
	OpHALT:   {"HALT", false, false, false},
}

// Info returns the field-shape metadata for the opcode.
func (op Opcode) Info() OpcodeInfo {
	if op < 0 || int(op) >= len(opcodeTable) {
		return OpcodeInfo{Name: "?"}
	}
	return opcodeTable[op]
}

func (op Opcode) String() string { return op.Info().Name }

// OpcodeFromID resolves the wire-format opcode id, failing with
// MalformedInstruction the way the fetch cycle requires.
func OpcodeFromID(id int) (Opcode, error) {
	if id < 0 || id >= int(OpcodeCount) {
		return 0, NewError(MalformedInstruction, "invalid opcode id")
	}
	return Opcode(id), nil
}
