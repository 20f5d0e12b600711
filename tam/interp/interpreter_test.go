package interp

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tamlang/tamvm/tam"
)

func run(t *testing.T, img *tam.Image, maxCycles int) (*Interpreter, string) {
	t.Helper()
	var out bytes.Buffer
	it := NewInterpreter(img, strings.NewReader(""), &out)
	it.Run(maxCycles)
	return it, out.String()
}

// scenario 1: printInt(1+2); printLine();  =>  "3\n"
func TestScenarioPrintSum(t *testing.T) {
	img := &tam.Image{Instructions: []tam.Instruction{
		tam.NewInstruction(tam.OpLOADL, 0, 1).WithType(tam.TypeInt),
		tam.NewInstruction(tam.OpLOADL, 0, 2).WithType(tam.TypeInt),
		tam.NewInstructionR(tam.OpCALL, tam.PB, 0, tam.PrimAddI.Displacement()),
		tam.NewInstructionR(tam.OpCALL, tam.PB, 0, tam.PrimPrintInt.Displacement()),
		tam.NewInstructionR(tam.OpCALL, tam.PB, 0, tam.PrimPrintLine.Displacement()),
		tam.NewInstruction(tam.OpHALT, 0, 0),
	}}
	it, out := run(t, img, 0)
	if it.State.ExecutionState != Halted {
		t.Fatalf("state = %v, want Halted (err=%v %v)", it.State.ExecutionState, it.State.ErrorCode, it.State.ErrorMessage)
	}
	if out != "3\n" {
		t.Fatalf("output = %q, want %q", out, "3\n")
	}
}

// divI 0 raises ZeroDivision.
func TestDivisionByZeroRaisesZeroDivision(t *testing.T) {
	img := &tam.Image{Instructions: []tam.Instruction{
		tam.NewInstruction(tam.OpLOADL, 0, 10).WithType(tam.TypeInt),
		tam.NewInstruction(tam.OpLOADL, 0, 0).WithType(tam.TypeInt),
		tam.NewInstructionR(tam.OpCALL, tam.PB, 0, tam.PrimDivI.Displacement()),
		tam.NewInstruction(tam.OpHALT, 0, 0),
	}}
	it, _ := run(t, img, 0)
	if it.State.ExecutionState != Error {
		t.Fatalf("state = %v, want Error", it.State.ExecutionState)
	}
	if it.State.ErrorCode != tam.ZeroDivision {
		t.Fatalf("error code = %v, want ZeroDivision", it.State.ErrorCode)
	}
}

// err primitive: pops a string id and raises RuntimeError with that message.
func TestErrPrimitiveRaisesRuntimeError(t *testing.T) {
	img := &tam.Image{
		Instructions: []tam.Instruction{
			tam.NewInstruction(tam.OpLOADL, 0, 0).WithType(tam.TypeString),
			tam.NewInstructionR(tam.OpCALL, tam.PB, 0, tam.PrimErr.Displacement()),
			tam.NewInstruction(tam.OpHALT, 0, 0),
		},
		Strings: []string{"Index out of bounds"},
	}
	it, _ := run(t, img, 0)
	if it.State.ExecutionState != Error {
		t.Fatalf("state = %v, want Error", it.State.ExecutionState)
	}
	if it.State.ErrorCode != tam.RuntimeError {
		t.Fatalf("error code = %v, want RuntimeError", it.State.ErrorCode)
	}
	if it.State.ErrorMessage != "Index out of bounds" {
		t.Fatalf("error message = %q, want %q", it.State.ErrorMessage, "Index out of bounds")
	}
}

// A call/return round trip: a function that returns its single argument
// plus one. Frame layout: -1[LB]=arg, 0[LB]=dynLink, 1[LB]=retAddr.
func TestCallReturnFrame(t *testing.T) {
	// main:
	//   0: LOADL 5           ; argument, pushed below the callee's frame
	//   1: CALL CB,0,3       ; call incr at address 3
	//   2: HALT
	// incr (addr 3): the argument sits at lb-1, below the frame header
	//   3: LOAD LB,1,-1      ; push argument
	//   4: LOADL 1
	//   5: CALL PB,0,addI
	//   6: RETURN 1,1        ; result size 1, arg size 1
	img := &tam.Image{Instructions: []tam.Instruction{
		tam.NewInstruction(tam.OpLOADL, 0, 5).WithType(tam.TypeInt),
		tam.NewInstructionR(tam.OpCALL, tam.CB, 0, 3),
		tam.NewInstruction(tam.OpHALT, 0, 0),
		tam.NewInstructionR(tam.OpLOAD, tam.LB, 1, -1),
		tam.NewInstruction(tam.OpLOADL, 0, 1).WithType(tam.TypeInt),
		tam.NewInstructionR(tam.OpCALL, tam.PB, 0, tam.PrimAddI.Displacement()),
		tam.NewInstruction(tam.OpRETURN, 1, 1),
	}}
	it, _ := run(t, img, 1000)
	if it.State.ExecutionState != Halted {
		t.Fatalf("state = %v (err=%v %v)", it.State.ExecutionState, it.State.ErrorCode, it.State.ErrorMessage)
	}
	st := it.State.GetRegI(tam.ST)
	result, err := it.State.GetMem(st - 1)
	if err != nil {
		t.Fatalf("GetMem: %v", err)
	}
	v, _ := result.AsInt()
	if v != 6 {
		t.Fatalf("result = %d, want 6", v)
	}
}

// JUMPIF branches to r+d exactly when the popped condition equals n.
func TestJumpIfTakesBranchOnMatch(t *testing.T) {
	img := &tam.Image{Instructions: []tam.Instruction{
		tam.NewInstruction(tam.OpLOADL, 0, 1).WithType(tam.TypeBool), // true
		tam.NewInstructionR(tam.OpJUMPIF, tam.CB, 1, 3),
		tam.NewInstruction(tam.OpHALT, 0, 0), // skipped
		tam.NewInstruction(tam.OpLOADL, 0, 99).WithType(tam.TypeInt),
		tam.NewInstruction(tam.OpHALT, 0, 0),
	}}
	it, _ := run(t, img, 100)
	if it.State.ExecutionState != Halted {
		t.Fatalf("state = %v", it.State.ExecutionState)
	}
	st := it.State.GetRegI(tam.ST)
	v, _ := it.State.GetMem(st - 1)
	n, _ := v.AsInt()
	if n != 99 {
		t.Fatalf("top of stack = %d, want 99 (branch should have been taken)", n)
	}
}

// Reading memory at size-1 succeeds, at size fails.
func TestMemoryBoundaryRead(t *testing.T) {
	ms := NewMachineState(NewProfiler())
	if _, err := ms.GetMem(MaxMemorySize - 1); err != nil {
		t.Fatalf("read at size-1 should succeed: %v", err)
	}
	if _, err := ms.GetMem(MaxMemorySize); err == nil {
		t.Fatalf("read at size should fail")
	}
}

// Stack at exact capacity: next push fails; after a pop, push succeeds.
// A push fails once ST+1 would reach the memory size, so ST = MaxMemorySize-1
// is the full stack and MaxMemorySize-2 is one word short of it.
func TestStackCapacityBoundary(t *testing.T) {
	ms := NewMachineState(NewProfiler())
	ms.SetReg(tam.SB, tam.StackAddr(0))
	ms.SetReg(tam.ST, tam.StackAddr(MaxMemorySize-2))
	if err := ms.PushStack(tam.IntValue(1)); err != nil {
		t.Fatalf("push at capacity-1 should succeed: %v", err)
	}
	if err := ms.PushStack(tam.IntValue(1)); err == nil {
		t.Fatalf("push at exact capacity should fail with StackOverflow")
	}
	if _, err := ms.PopStack(); err != nil {
		t.Fatalf("pop: %v", err)
	}
	if err := ms.PushStack(tam.IntValue(1)); err != nil {
		t.Fatalf("push after pop should succeed again: %v", err)
	}
}

func TestPopUnderflowAtStackBase(t *testing.T) {
	ms := NewMachineState(NewProfiler())
	ms.SetReg(tam.SB, tam.StackAddr(10))
	ms.SetReg(tam.ST, tam.StackAddr(10))
	if _, err := ms.PopStack(); err == nil {
		t.Fatalf("pop at SB should fail with StackUnderflow")
	}
}
