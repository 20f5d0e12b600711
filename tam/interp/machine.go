// Package interp implements the TAM machine state, profiler and
// fetch-execute dispatcher: the runtime half of the virtual machine.
package interp

import "github.com/tamlang/tamvm/tam"

// Size limits on the machine's address spaces. MaxInstructions (= PB)
// leaves [PB, PT) free for every primitive, so that addr >= PB is always a
// primitive call regardless of how many real instructions a program has.
const (
	MaxMemorySize   = 1 << 20
	MaxCodeMemSize  = 1 << 15
	MaxInstructions = MaxCodeMemSize - int(tam.PrimitiveCount)
)

// ExecutionState is the machine's run state.
type ExecutionState int

const (
	Running ExecutionState = iota
	Halted
	Error
)

func (s ExecutionState) String() string {
	switch s {
	case Running:
		return "Running"
	case Halted:
		return "Halted"
	case Error:
		return "Error"
	default:
		return "ExecutionState(?)"
	}
}

// MachineState holds the register file, linear memory and latched error of
// one VM run. Every register and memory access is counted by Stats; after
// the first failed operation ExecutionState becomes Error and further
// mutation is expected to stop (the dispatcher checks this at the top of
// its loop).
type MachineState struct {
	ExecutionState ExecutionState
	registers      [tam.RegisterCount]tam.Value
	memory         []tam.Value

	ErrorCode     tam.ErrorCode
	ErrorMessage  string
	ErrorLocation int

	Stats *Profiler
}

// NewMachineState allocates a fresh machine with a zeroed register file and
// memory, ready for Reset by the interpreter.
func NewMachineState(stats *Profiler) *MachineState {
	return &MachineState{memory: make([]tam.Value, MaxMemorySize), Stats: stats}
}

// GetReg reads a register, counting the access.
func (ms *MachineState) GetReg(r tam.Register) tam.Value {
	ms.Stats.RegRead(r)
	return ms.registers[r]
}

// GetRegI reads a register and interprets it as an int.
func (ms *MachineState) GetRegI(r tam.Register) int {
	v, err := ms.GetReg(r).AsInt()
	if err != nil {
		// Registers are always written with int-castable tags by this
		// package; a mismatch here is a bug in the interpreter, not a
		// program fault.
		panic(err)
	}
	return v
}

// SetReg writes a register, counting the access.
func (ms *MachineState) SetReg(r tam.Register, v tam.Value) {
	ms.Stats.RegWrite(r)
	ms.registers[r] = v
}

// GetMem reads one memory word, bounds-checked against the memory size.
// Never-written cells read back as the zero Value.
func (ms *MachineState) GetMem(addr int) (tam.Value, error) {
	ms.Stats.MemRead()
	if addr < 0 || addr >= len(ms.memory) {
		return tam.Value{}, tam.NewErrorAt(tam.InvalidAddress, "read at invalid memory address", ms.GetRegI(tam.CP))
	}
	return ms.memory[addr], nil
}

// SetMem writes one memory word, bounds-checked against the memory size.
func (ms *MachineState) SetMem(addr int, v tam.Value) error {
	ms.Stats.MemWrite()
	if addr < 0 || addr >= len(ms.memory) {
		return tam.NewErrorAt(tam.InvalidAddress, "write at invalid memory address", ms.GetRegI(tam.CP))
	}
	ms.memory[addr] = v
	return nil
}

// CopyMem copies count words from src to dst, one word at a time in
// forward order. Overlapping regions are therefore defined by that order —
// POP and RETURN both rely on this to slide a result down over locals.
func (ms *MachineState) CopyMem(src, dst, count int) error {
	ms.Stats.MemCopy()
	for i := 0; i < count; i++ {
		v, err := ms.GetMem(src + i)
		if err != nil {
			return err
		}
		if err := ms.SetMem(dst+i, v); err != nil {
			return err
		}
	}
	return nil
}

// ZeroMem fills count words at dst with a typed zero value.
func (ms *MachineState) ZeroMem(dst, count int, t tam.Type) error {
	ms.Stats.MemZero()
	v := tam.Typed(t, 0)
	for i := 0; i < count; i++ {
		if err := ms.SetMem(dst+i, v); err != nil {
			return err
		}
	}
	return nil
}

// RaiseError latches the machine into the Error state.
func (ms *MachineState) RaiseError(code tam.ErrorCode, message string, location int) {
	ms.ExecutionState = Error
	ms.ErrorCode = code
	ms.ErrorMessage = message
	ms.ErrorLocation = location
}

// RaiseExecutionError latches an *tam.ExecutionError, filling in the
// current CP as location if the error did not carry one.
func (ms *MachineState) RaiseExecutionError(e *tam.ExecutionError) {
	loc := e.Location
	if loc < 0 {
		loc = ms.GetRegI(tam.CP)
	}
	ms.RaiseError(e.Code, e.Message, loc)
}

// IncCP advances the instruction pointer by one, preserving the code-addr tag.
func (ms *MachineState) IncCP() {
	cp := ms.GetReg(tam.CP)
	ms.SetReg(tam.CP, tam.Value{Bits: cp.Bits + 1, Tag: tam.TypeCodeAddr})
}

// IncStack grows the stack by n words, returning the previous ST.
func (ms *MachineState) IncStack(n int) (int, error) {
	st := ms.GetRegI(tam.ST)
	if st+n >= len(ms.memory) {
		return 0, tam.NewErrorAt(tam.StackOverflow, "stack overflow", ms.GetRegI(tam.CP))
	}
	ms.SetReg(tam.ST, tam.StackAddr(st+n))
	return st, nil
}

// DecStack shrinks the stack by n words, returning the new ST.
func (ms *MachineState) DecStack(n int) (int, error) {
	st := ms.GetRegI(tam.ST) - n
	if st < ms.GetRegI(tam.SB) {
		return 0, tam.NewErrorAt(tam.StackUnderflow, "stack underflow", ms.GetRegI(tam.CP))
	}
	ms.SetReg(tam.ST, tam.StackAddr(st))
	return st, nil
}

// PushStack pushes one word.
func (ms *MachineState) PushStack(v tam.Value) error {
	st := ms.GetRegI(tam.ST)
	if st+1 >= len(ms.memory) {
		return tam.NewErrorAt(tam.StackOverflow, "stack overflow", ms.GetRegI(tam.CP))
	}
	if err := ms.SetMem(st, v); err != nil {
		return err
	}
	ms.SetReg(tam.ST, tam.StackAddr(st+1))
	return nil
}

// PopStack pops one word.
func (ms *MachineState) PopStack() (tam.Value, error) {
	st := ms.GetRegI(tam.ST) - 1
	if st < ms.GetRegI(tam.SB) {
		return tam.Value{}, tam.NewErrorAt(tam.StackUnderflow, "stack underflow", ms.GetRegI(tam.CP))
	}
	v, err := ms.GetMem(st)
	if err != nil {
		return tam.Value{}, err
	}
	ms.SetReg(tam.ST, tam.StackAddr(st))
	return v, nil
}
