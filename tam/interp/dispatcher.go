package interp

import (
	"bufio"
	"io"

	"github.com/tamlang/tamvm/tam"
)

// Interpreter ties a Image, a MachineState and the VM's I/O surface
// together and runs the fetch-execute cycle.
type Interpreter struct {
	Image  *tam.Image
	State  *MachineState
	Stdin  io.Reader
	Stdout io.Writer
	Cycles int

	inputScanner *bufio.Scanner
}

// NewInterpreter builds an interpreter over img and resets it to a fresh
// initial state. The VM rejects re-running without a Reset.
func NewInterpreter(img *tam.Image, stdin io.Reader, stdout io.Writer) *Interpreter {
	it := &Interpreter{
		Image:  img,
		State:  NewMachineState(NewProfiler()),
		Stdin:  stdin,
		Stdout: stdout,
	}
	it.Reset()
	return it
}

// Reset reinitializes the register file and stack to the start of the
// program, discarding any prior run's state. Called once by NewInterpreter
// and available to callers who want to re-run the same Image.
func (it *Interpreter) Reset() {
	it.State.ExecutionState = Running
	it.Cycles = 0

	ct := len(it.Image.Instructions)
	pb := MaxInstructions
	pt := MaxCodeMemSize

	it.State.SetReg(tam.CB, tam.CodeAddr(0))
	it.State.SetReg(tam.CT, tam.CodeAddr(ct))
	it.State.SetReg(tam.PB, tam.CodeAddr(pb))
	it.State.SetReg(tam.PT, tam.CodeAddr(pt))
	it.State.SetReg(tam.SB, tam.StackAddr(0))
	it.State.SetReg(tam.ST, tam.StackAddr(0))
	it.State.SetReg(tam.LB, tam.StackAddr(0))
	it.State.SetReg(tam.CP, tam.CodeAddr(0))
}

// Run executes instructions until the machine halts, errors, or maxCycles
// is reached without reaching Halted (maxCycles <= 0 means unlimited). On a
// cycle-budget exhaustion the execution state remains Running.
func (it *Interpreter) Run(maxCycles int) {
	for it.State.ExecutionState == Running {
		if maxCycles > 0 && it.Cycles >= maxCycles {
			return
		}
		it.advance()
	}
}

// advance fetches and executes one instruction, incrementing the cycle
// counter regardless of outcome.
func (it *Interpreter) advance() {
	defer func() { it.Cycles++ }()

	cp := it.State.GetRegI(tam.CP)
	inst, err := it.Image.GetInstruction(cp)
	if err != nil {
		it.State.RaiseExecutionError(err.(*tam.ExecutionError))
		return
	}
	it.State.Stats.ExecOp(inst.Op)
	if err := it.execute(inst); err != nil {
		ee, ok := err.(*tam.ExecutionError)
		if !ok {
			ee = tam.NewError(tam.InternalError, err.Error())
		}
		it.State.RaiseExecutionError(ee)
	}
}

func (it *Interpreter) execute(inst tam.Instruction) error {
	ms := it.State
	switch inst.Op {
	case tam.OpLOAD:
		addr, err := regAddr(ms, inst.Register, inst.D)
		if err != nil {
			return err
		}
		if err := loadWords(ms, addr, inst.N); err != nil {
			return err
		}
		ms.IncCP()
	case tam.OpLOADA:
		addr, err := regAddr(ms, inst.Register, inst.D)
		if err != nil {
			return err
		}
		if err := ms.PushStack(tam.Value{Bits: int32(addr), Tag: inst.Register.AddressTag()}); err != nil {
			return err
		}
		ms.IncCP()
	case tam.OpLOADI:
		addrVal, err := ms.PopStack()
		if err != nil {
			return err
		}
		addr, err := addrVal.AsInt()
		if err != nil {
			return err
		}
		if err := loadWords(ms, addr, inst.N); err != nil {
			return err
		}
		ms.IncCP()
	case tam.OpLOADL:
		t := inst.Debug.GetType()
		if err := ms.PushStack(tam.Typed(t, inst.D)); err != nil {
			return err
		}
		ms.IncCP()
	case tam.OpSTORE:
		addr, err := regAddr(ms, inst.Register, inst.D)
		if err != nil {
			return err
		}
		if err := storeWords(ms, addr, inst.N); err != nil {
			return err
		}
		ms.IncCP()
	case tam.OpSTOREI:
		addrVal, err := ms.PopStack()
		if err != nil {
			return err
		}
		addr, err := addrVal.AsInt()
		if err != nil {
			return err
		}
		if err := storeWords(ms, addr, inst.N); err != nil {
			return err
		}
		ms.IncCP()
	case tam.OpCALL:
		addr, err := regAddr(ms, inst.Register, inst.D)
		if err != nil {
			return err
		}
		return it.call(addr)
	case tam.OpCALLI:
		addrVal, err := ms.PopStack()
		if err != nil {
			return err
		}
		addr, err := addrVal.AsInt()
		if err != nil {
			return err
		}
		return it.call(addr)
	case tam.OpRETURN:
		return it.doReturn(inst.N, inst.D)
	case tam.OpPUSH:
		t := inst.Debug.GetType()
		base, err := ms.IncStack(inst.D)
		if err != nil {
			return err
		}
		if err := ms.ZeroMem(base, inst.D, t); err != nil {
			return err
		}
		ms.IncCP()
	case tam.OpPOP:
		st := ms.GetRegI(tam.ST)
		if err := ms.CopyMem(st-inst.N, st-inst.N-inst.D, inst.N); err != nil {
			return err
		}
		ms.SetReg(tam.ST, tam.StackAddr(st-inst.D))
		ms.IncCP()
	case tam.OpJUMP:
		addr, err := regAddr(ms, inst.Register, inst.D)
		if err != nil {
			return err
		}
		ms.SetReg(tam.CP, tam.CodeAddr(addr))
	case tam.OpJUMPI:
		addrVal, err := ms.PopStack()
		if err != nil {
			return err
		}
		addr, err := addrVal.AsInt()
		if err != nil {
			return err
		}
		ms.SetReg(tam.CP, tam.CodeAddr(addr))
	case tam.OpJUMPIF:
		cond, err := ms.PopStack()
		if err != nil {
			return err
		}
		c, err := cond.AsInt()
		if err != nil {
			return err
		}
		if c == inst.N {
			addr, err := regAddr(ms, inst.Register, inst.D)
			if err != nil {
				return err
			}
			ms.SetReg(tam.CP, tam.CodeAddr(addr))
		} else {
			ms.IncCP()
		}
	case tam.OpHALT:
		ms.ExecutionState = Halted
	default:
		return tam.NewError(tam.MalformedInstruction, "unknown opcode")
	}
	return nil
}

// regAddr computes "addr d[r]": register value + d.
func regAddr(ms *MachineState, r tam.Register, d int) (int, error) {
	v, err := ms.GetReg(r).AsInt()
	if err != nil {
		return 0, err
	}
	return v + d, nil
}

// loadWords copies n words from addr onto the top of the stack, in order.
func loadWords(ms *MachineState, addr, n int) error {
	base, err := ms.IncStack(n)
	if err != nil {
		return err
	}
	return ms.CopyMem(addr, base, n)
}

// storeWords copies the top n stack words to addr, then discards them.
func storeWords(ms *MachineState, addr, n int) error {
	st := ms.GetRegI(tam.ST)
	if err := ms.CopyMem(st-n, addr, n); err != nil {
		return err
	}
	_, err := ms.DecStack(n)
	return err
}

// call dispatches a CALL/CALLI target: addresses at or above PB invoke a
// primitive (and fall through to the next instruction); any other address
// opens a new call frame.
func (it *Interpreter) call(target int) error {
	ms := it.State
	pb := ms.GetRegI(tam.PB)
	if target >= pb {
		prim, err := tam.PrimitiveFromDisplacement(target - pb)
		if err != nil {
			return err
		}
		ms.Stats.ExecPrimitive(prim)
		if err := it.callPrimitive(prim); err != nil {
			return err
		}
		ms.IncCP()
		return nil
	}
	return it.performCall(target)
}

// performCall pushes the two-word frame header (dynamic link, return
// address) and transfers control to target. The return address is the old
// CP plus one, not target-relative.
func (it *Interpreter) performCall(target int) error {
	ms := it.State
	dynLink := ms.GetReg(tam.LB)
	retAddr := tam.CodeAddr(ms.GetRegI(tam.CP) + 1)
	oldST := ms.GetRegI(tam.ST)

	if err := ms.PushStack(dynLink); err != nil {
		return err
	}
	if err := ms.PushStack(retAddr); err != nil {
		return err
	}
	ms.SetReg(tam.LB, tam.StackAddr(oldST))
	ms.SetReg(tam.ST, tam.StackAddr(oldST+2))
	ms.SetReg(tam.CP, tam.CodeAddr(target))
	return nil
}

// doReturn implements RETURN(n,d): slide the n-word result down to lb-d,
// over the d argument words below the frame (discarding the frame header
// and locals with them), then restore the caller's frame.
func (it *Interpreter) doReturn(n, d int) error {
	ms := it.State
	lb := ms.GetRegI(tam.LB)
	st := ms.GetRegI(tam.ST)

	if err := ms.CopyMem(st-n, lb-d, n); err != nil {
		return err
	}
	ms.SetReg(tam.ST, tam.StackAddr(lb-d+n))

	dynLink, err := ms.GetMem(lb)
	if err != nil {
		return err
	}
	retAddr, err := ms.GetMem(lb + 1)
	if err != nil {
		return err
	}
	ms.SetReg(tam.LB, dynLink)
	ms.SetReg(tam.CP, retAddr)
	return nil
}
