package asm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tamlang/tamvm/tam"
	"github.com/tamlang/tamvm/tam/interp"
)

// runImage assembles and runs a.GetImage(), returning stdout.
func runImage(t *testing.T, a *Assembler) (string, *interp.Interpreter) {
	t.Helper()
	if unresolved := a.UnresolvedCalls(); len(unresolved) > 0 {
		t.Fatalf("unresolved calls: %v", unresolved)
	}
	var out bytes.Buffer
	it := interp.NewInterpreter(a.GetImage(), strings.NewReader(""), &out)
	it.Run(10000)
	return out.String(), it
}

func TestEntryScaffoldingCallsMain(t *testing.T) {
	a := NewAssembler()
	a.AddNewFunction("main")
	a.LoadIntegerValue(1)
	a.LoadIntegerValue(2)
	a.CallPrimitive(tam.PrimAddI)
	a.CallPrimitive(tam.PrimPrintInt)
	a.CallPrimitive(tam.PrimPrintLine)
	a.EmitReturn(0, 0)

	out, it := runImage(t, a)
	if it.State.ExecutionState != interp.Halted {
		t.Fatalf("state = %v (err=%v %v)", it.State.ExecutionState, it.State.ErrorCode, it.State.ErrorMessage)
	}
	if out != "3\n" {
		t.Fatalf("output = %q, want %q", out, "3\n")
	}
}

func TestForwardFunctionCallIsBackPatched(t *testing.T) {
	a := NewAssembler()
	a.AddNewFunction("main")
	a.LoadIntegerValue(5) // argument, pushed below the callee's frame
	a.EmitFunctionCall("incr")
	a.CallPrimitive(tam.PrimPrintInt)
	a.CallPrimitive(tam.PrimPrintLine)
	a.EmitReturn(0, 0)

	a.AddNewFunction("incr")
	a.LoadLocalValue(1, -1) // the argument, below the frame header
	a.LoadIntegerValue(1)
	a.CallPrimitive(tam.PrimAddI)
	a.EmitReturn(1, 1)

	out, it := runImage(t, a)
	if it.State.ExecutionState != interp.Halted {
		t.Fatalf("state = %v (err=%v %v)", it.State.ExecutionState, it.State.ErrorCode, it.State.ErrorMessage)
	}
	if out != "6\n" {
		t.Fatalf("output = %q, want %q", out, "6\n")
	}
}

func TestUnresolvedCallIsReported(t *testing.T) {
	a := NewAssembler()
	a.AddNewFunction("main")
	a.EmitFunctionCall("neverDefined")
	a.EmitReturn(0, 0)

	unresolved := a.UnresolvedCalls()
	if len(unresolved) != 1 || unresolved[0] != "neverDefined" {
		t.Fatalf("UnresolvedCalls() = %v, want [neverDefined]", unresolved)
	}
}

func TestBoundsCheckPassesWithinRange(t *testing.T) {
	a := NewAssembler()
	a.AddNewFunction("main")
	const idxOffset = 2
	a.EmitPush(1) // reserve the idxOffset slot so the comparisons cannot overwrite it
	a.LoadIntegerValue(3)
	a.StoreLocalValue(1, idxOffset)
	a.EmitBoundsCheck(func() { a.LoadLocalValue(1, idxOffset) }, 0, 5)
	a.LoadIntegerValue(42)
	a.CallPrimitive(tam.PrimPrintInt)
	a.EmitReturn(0, 0)

	out, it := runImage(t, a)
	if it.State.ExecutionState != interp.Halted {
		t.Fatalf("state = %v (err=%v %v)", it.State.ExecutionState, it.State.ErrorCode, it.State.ErrorMessage)
	}
	if out != "42" {
		t.Fatalf("output = %q, want %q", out, "42")
	}
}

func TestBoundsCheckFailsBelowRange(t *testing.T) {
	a := NewAssembler()
	a.AddNewFunction("main")
	const idxOffset = 2
	a.EmitPush(1) // reserve the idxOffset slot so the comparisons cannot overwrite it
	a.LoadIntegerValue(-1)
	a.StoreLocalValue(1, idxOffset)
	a.EmitBoundsCheck(func() { a.LoadLocalValue(1, idxOffset) }, 0, 5)
	a.EmitReturn(0, 0)

	_, it := runImage(t, a)
	if it.State.ExecutionState != interp.Error {
		t.Fatalf("state = %v, want Error", it.State.ExecutionState)
	}
	if it.State.ErrorCode != tam.RuntimeError {
		t.Fatalf("error code = %v, want RuntimeError", it.State.ErrorCode)
	}
	if it.State.ErrorMessage != "Index out of bounds" {
		t.Fatalf("error message = %q, want %q", it.State.ErrorMessage, "Index out of bounds")
	}
}

func TestBoundsCheckFailsAtUpperBound(t *testing.T) {
	a := NewAssembler()
	a.AddNewFunction("main")
	const idxOffset = 2
	a.EmitPush(1) // reserve the idxOffset slot so the comparisons cannot overwrite it
	a.LoadIntegerValue(5) // upperBound is exclusive, so 5 should fail against [0,5)
	a.StoreLocalValue(1, idxOffset)
	a.EmitBoundsCheck(func() { a.LoadLocalValue(1, idxOffset) }, 0, 5)
	a.EmitReturn(0, 0)

	_, it := runImage(t, a)
	if it.State.ExecutionState != interp.Error {
		t.Fatalf("state = %v, want Error", it.State.ExecutionState)
	}
	if it.State.ErrorCode != tam.RuntimeError {
		t.Fatalf("error code = %v, want RuntimeError", it.State.ErrorCode)
	}
}

func TestResetOffsetEmitsSlackPop(t *testing.T) {
	a := NewAssembler()
	a.AddNewFunction("main")
	saved := a.SnapshotOffset()
	a.DeclareLocal(1)
	a.DeclareLocal(1)
	before := a.GetNextInstructionAddress()
	a.ResetOffset(saved)
	after := a.GetNextInstructionAddress()
	if after != before+1 {
		t.Fatalf("ResetOffset should emit exactly one POP instruction, got %d new instructions", after-before)
	}
}

func TestStringInterningIsDense(t *testing.T) {
	a := NewAssembler()
	a.AddNewFunction("main")
	a.LoadStringValue("hello")
	a.LoadStringValue("world")
	a.LoadStringValue("hello") // repeat: must reuse id 0, not grow the pool
	a.EmitReturn(0, 0)

	img := a.GetImage()
	if len(img.Strings) != 2 {
		t.Fatalf("string pool = %v, want 2 entries", img.Strings)
	}
	if img.Strings[0] != "hello" || img.Strings[1] != "world" {
		t.Fatalf("string pool = %v, want [hello world]", img.Strings)
	}
}
