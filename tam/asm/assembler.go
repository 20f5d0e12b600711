// Package asm assembles TAM instructions incrementally, resolving forward
// references to functions and jump targets by back-patching once their
// address becomes known. It plays the role the code generator's emit calls
// are grounded on: one instruction vector, one interned string pool, one
// local-offset counter per function.
package asm

import "github.com/tamlang/tamvm/tam"

// pendingCall is a CALL instruction whose target function had not yet been
// assembled when the call was emitted.
type pendingCall struct {
	instrIndex int
}

// Assembler accumulates instructions for a single compiled program. The
// entry scaffolding — a placeholder call into main followed by HALT — is
// emitted by NewAssembler and patched once AddNewFunction("main") runs.
type Assembler struct {
	instructions []tam.Instruction
	strings      []string
	stringIDs    map[string]int

	functionAddr  map[string]int
	deferredCalls map[string][]pendingCall

	nextOffset      int
	offsetSnapshots []int

	pending tam.DebugSymbolContainer
}

// mainCallIndex is always 0: the entry scaffolding's placeholder call.
const mainCallIndex = 0

// NewAssembler returns an assembler primed with entry scaffolding: a
// placeholder CALL into main (patched by AddNewFunction) followed by HALT.
func NewAssembler() *Assembler {
	a := &Assembler{
		stringIDs:     make(map[string]int),
		functionAddr:  make(map[string]int),
		deferredCalls: make(map[string][]pendingCall),
	}
	a.instructions = append(a.instructions, tam.NewInstructionR(tam.OpCALL, tam.CB, 0, -1))
	a.instructions = append(a.instructions, tam.NewInstruction(tam.OpHALT, 0, 0))
	a.registerDeferredFunctionCall("main", mainCallIndex)
	return a
}

// GetNextInstructionAddress returns the address the next emitted
// instruction will occupy.
func (a *Assembler) GetNextInstructionAddress() int {
	return len(a.instructions)
}

// addInstruction appends inst, draining any staged debug symbols onto it,
// and returns its address.
func (a *Assembler) addInstruction(inst tam.Instruction) int {
	inst.Debug.AddAll(a.pending)
	a.pending = nil
	addr := len(a.instructions)
	a.instructions = append(a.instructions, inst)
	return addr
}

// AttachComment stages a Comment symbol to land on the next emitted
// instruction.
func (a *Assembler) AttachComment(text string, showInDisasm bool) {
	a.pending.AddComment(text, showInDisasm)
}

// AttachLocation stages a Location symbol to land on the next emitted
// instruction.
func (a *Assembler) AttachLocation(loc tam.SourceLocation) {
	a.pending.AddLocation(loc)
}

// getStringIndex interns s into the string pool, returning its dense id.
func (a *Assembler) getStringIndex(s string) int {
	if id, ok := a.stringIDs[s]; ok {
		return id
	}
	id := len(a.strings)
	a.strings = append(a.strings, s)
	a.stringIDs[s] = id
	return id
}

// AddNewFunction records addr as the entry address of the named function,
// patching every call that was deferred waiting on it (and, for "main",
// the entry scaffolding's placeholder call). It also resets the local-slot
// counter: locals start at offset 2, just above the two frame-header words
// (dynamic link, return address) that CALL places at offsets 0 and 1;
// arguments sit at negative offsets below LB.
func (a *Assembler) AddNewFunction(name string) int {
	addr := a.GetNextInstructionAddress()
	a.functionAddr[name] = addr
	for _, pc := range a.deferredCalls[name] {
		a.instructions[pc.instrIndex].D = addr
	}
	delete(a.deferredCalls, name)
	a.nextOffset = 2
	a.pending.AddLabel(name)
	return addr
}

func (a *Assembler) registerDeferredFunctionCall(name string, instrIndex int) {
	a.deferredCalls[name] = append(a.deferredCalls[name], pendingCall{instrIndex: instrIndex})
}

// EmitFunctionCall emits a call to callee: a direct CALL if callee's
// address is already known, or a placeholder registered for back-patching
// once AddNewFunction(callee) runs.
func (a *Assembler) EmitFunctionCall(callee string) int {
	if addr, ok := a.functionAddr[callee]; ok {
		return a.addInstruction(tam.NewInstructionR(tam.OpCALL, tam.CB, 0, addr))
	}
	idx := a.addInstruction(tam.NewInstructionR(tam.OpCALL, tam.CB, 0, -1))
	a.registerDeferredFunctionCall(callee, idx)
	return idx
}

// UnresolvedCalls reports every function name still awaiting a definition
// — a non-empty result means the program calls something never defined.
func (a *Assembler) UnresolvedCalls() []string {
	var out []string
	for name := range a.deferredCalls {
		out = append(out, name)
	}
	return out
}

// EmitReturn emits RETURN(resultSize, argSize): slide the resultSize-word
// result down over the argSize argument words below the frame, discarding
// the frame header and the locals along with them.
func (a *Assembler) EmitReturn(resultSize, argSize int) int {
	return a.addInstruction(tam.NewInstruction(tam.OpRETURN, resultSize, argSize))
}

// EmitHalt emits HALT.
func (a *Assembler) EmitHalt() int {
	return a.addInstruction(tam.NewInstruction(tam.OpHALT, 0, 0))
}

// --- locals --------------------------------------------------------------

// DeclareLocal reserves wordSize words of local storage, returning the
// frame offset the caller should address it at.
func (a *Assembler) DeclareLocal(wordSize int) int {
	offset := a.nextOffset
	a.nextOffset += wordSize
	return offset
}

// SnapshotOffset returns the current local-slot counter, to be restored by
// ResetOffset once a block's locals go out of scope.
func (a *Assembler) SnapshotOffset() int {
	a.offsetSnapshots = append(a.offsetSnapshots, a.nextOffset)
	return a.nextOffset
}

// ResetOffset restores the local-slot counter to a prior snapshot and
// emits a POP(0, slack) to discard the block's locals from the runtime
// stack, where slack is however many words were declared since the
// snapshot.
func (a *Assembler) ResetOffset(saved int) {
	slack := a.nextOffset - saved
	a.nextOffset = saved
	n := len(a.offsetSnapshots)
	if n > 0 {
		a.offsetSnapshots = a.offsetSnapshots[:n-1]
	}
	if slack > 0 {
		a.EmitPop(0, slack)
	}
}

// --- loads / stores --------------------------------------------------------

// LoadIntegerValue emits LOADL of an int-tagged literal.
func (a *Assembler) LoadIntegerValue(v int) int {
	return a.addInstruction(tam.NewInstruction(tam.OpLOADL, 0, v).WithType(tam.TypeInt))
}

// LoadBooleanValue emits LOADL of a bool-tagged literal (0 or 1).
func (a *Assembler) LoadBooleanValue(v bool) int {
	n := 0
	if v {
		n = 1
	}
	return a.addInstruction(tam.NewInstruction(tam.OpLOADL, 0, n).WithType(tam.TypeBool))
}

// LoadFloatValue emits LOADL of a float-tagged literal, given its raw
// IEEE-754 bit pattern.
func (a *Assembler) LoadFloatValue(bits int32) int {
	return a.addInstruction(tam.NewInstruction(tam.OpLOADL, 0, int(bits)).WithType(tam.TypeFloat))
}

// LoadStringValue interns s and emits LOADL of the resulting string-id.
func (a *Assembler) LoadStringValue(s string) int {
	id := a.getStringIndex(s)
	return a.addInstruction(tam.NewInstruction(tam.OpLOADL, 0, id).WithType(tam.TypeString))
}

// LoadLocalValue emits LOAD LB,wordSize,offset.
func (a *Assembler) LoadLocalValue(wordSize, offset int) int {
	return a.LoadValue(tam.LB, wordSize, offset)
}

// LoadValue emits LOAD register,wordSize,offset.
func (a *Assembler) LoadValue(reg tam.Register, wordSize, offset int) int {
	return a.addInstruction(tam.NewInstructionR(tam.OpLOAD, reg, wordSize, offset))
}

// LoadAddress emits LOADA register,offset, pushing a register-relative
// address tagged per the register's address kind.
func (a *Assembler) LoadAddress(reg tam.Register, offset int) int {
	return a.addInstruction(tam.NewInstructionR(tam.OpLOADA, reg, 0, offset))
}

// LoadFromStackAddress emits LOADI wordSize: pop an address, push the
// wordSize words stored there.
func (a *Assembler) LoadFromStackAddress(wordSize int) int {
	return a.addInstruction(tam.NewInstruction(tam.OpLOADI, wordSize, 0))
}

// StoreToStackAddress emits STOREI wordSize: pop wordSize words then an
// address, and store the words there.
func (a *Assembler) StoreToStackAddress(wordSize int) int {
	return a.addInstruction(tam.NewInstruction(tam.OpSTOREI, wordSize, 0))
}

// StoreLocalValue emits STORE LB,wordSize,offset.
func (a *Assembler) StoreLocalValue(wordSize, offset int) int {
	return a.StoreValue(tam.LB, wordSize, offset)
}

// StoreValue emits STORE register,wordSize,offset.
func (a *Assembler) StoreValue(reg tam.Register, wordSize, offset int) int {
	return a.addInstruction(tam.NewInstructionR(tam.OpSTORE, reg, wordSize, offset))
}

// EmitPop emits POP(resultSize, popSize): keep the top resultSize words,
// discard the popSize words below them.
func (a *Assembler) EmitPop(resultSize, popSize int) int {
	return a.addInstruction(tam.NewInstruction(tam.OpPOP, resultSize, popSize))
}

// EmitPush emits PUSH(size): reserve size zeroed words on the stack.
func (a *Assembler) EmitPush(size int) int {
	return a.addInstruction(tam.NewInstruction(tam.OpPUSH, 0, size))
}

// --- jumps -----------------------------------------------------------------

// EmitJump emits an unconditional jump to address.
func (a *Assembler) EmitJump(address int) int {
	return a.addInstruction(tam.NewInstructionR(tam.OpJUMP, tam.CB, 0, address))
}

// EmitConditionalJump emits a jump to address taken when the popped
// condition equals condition.
func (a *Assembler) EmitConditionalJump(condition bool, address int) int {
	n := 0
	if condition {
		n = 1
	}
	return a.addInstruction(tam.NewInstructionR(tam.OpJUMPIF, tam.CB, n, address))
}

// BackPatchJump rewrites a previously emitted JUMP/JUMPIF's target
// address. Panics if instrIndex does not address a jump instruction —
// back-patching anything else means the caller has a bookkeeping bug.
func (a *Assembler) BackPatchJump(instrIndex, newAddress int) {
	op := a.instructions[instrIndex].Op
	if op != tam.OpJUMP && op != tam.OpJUMPIF {
		panic("asm: BackPatchJump on a non-jump instruction")
	}
	a.instructions[instrIndex].D = newAddress
}

// --- primitives --------------------------------------------------------------

// CallPrimitive emits CALL PB,0,displacement for prim.
func (a *Assembler) CallPrimitive(prim tam.Primitive) int {
	return a.addInstruction(tam.NewInstructionR(tam.OpCALL, tam.PB, 0, prim.Displacement()))
}

// EmitErr interns message and emits the LOADL/CALL err sequence that
// raises a runtime error carrying it.
func (a *Assembler) EmitErr(message string) int {
	a.LoadStringValue(message)
	return a.CallPrimitive(tam.PrimErr)
}

// EmitBoundsCheck emits the sequence that validates an index lies in
// [lowerBound, upperBound). TAM has no dup instruction, so the index must
// already sit in a reserved frame slot below ST (typically a local of the
// caller), since the comparisons push their operands above ST; reload is
// invoked once per comparison to push a fresh copy of it. On failure the
// sequence raises "Index out of bounds" via err and never falls through; on
// success control reaches the instruction after the whole sequence with the
// stack as it was before it: each copy reload pushes is consumed by its
// comparison.
func (a *Assembler) EmitBoundsCheck(reload func(), lowerBound, upperBound int) {
	reload()
	a.LoadIntegerValue(lowerBound)
	a.CallPrimitive(tam.PrimLtI)
	belowFail := a.EmitConditionalJump(true, -1)

	reload()
	a.LoadIntegerValue(upperBound)
	a.CallPrimitive(tam.PrimGeI)
	aboveFail := a.EmitConditionalJump(true, -1)

	success := a.EmitJump(-1)

	failAddr := a.GetNextInstructionAddress()
	a.BackPatchJump(belowFail, failAddr)
	a.BackPatchJump(aboveFail, failAddr)
	a.EmitErr("Index out of bounds")

	endAddr := a.GetNextInstructionAddress()
	a.BackPatchJump(success, endAddr)
}

// FunctionAddress reports the entry address of a function already defined
// via AddNewFunction, or false if it is unknown (not yet defined, or
// never will be — check UnresolvedCalls after assembly completes).
func (a *Assembler) FunctionAddress(name string) (int, bool) {
	addr, ok := a.functionAddr[name]
	return addr, ok
}

// GetImage finalizes the assembled program into an Image. Calling it while
// UnresolvedCalls is non-empty produces an Image whose forward calls still
// carry the -1 placeholder displacement; callers should check
// UnresolvedCalls first.
func (a *Assembler) GetImage() *tam.Image {
	return &tam.Image{Instructions: a.instructions, Strings: a.strings}
}
