package codegen

import (
	"fmt"
	"math"

	"github.com/tamlang/tamvm/tam"
	"github.com/tamlang/tamvm/tam/asm"
)

// InternalError reports a code generator bug: an AST node type the type
// switch doesn't recognize, or an operator applied to an operand type that
// should have been ruled out by a prior type-checking pass. It is never
// raised by a well-typed program, and is a distinct Go type from
// tam.ExecutionError so callers can tell a compiler bug from a VM runtime
// fault.
type InternalError struct{ Message string }

func (e *InternalError) Error() string { return "codegen: internal error: " + e.Message }

// symbolInfo is a resolved local binding: its frame offset relative to LB
// (negative for arguments, >=2 for locals) and its type.
type symbolInfo struct {
	offset int
	typ    Type
}

// Generator walks a Module and emits its TAM image via an asm.Assembler.
// One Generator generates exactly one Module; construct a fresh one per
// call to Generate.
type Generator struct {
	a         *asm.Assembler
	scopes    []map[string]symbolInfo
	functions map[string]*FunctionDecl

	currentReturn  Type
	currentArgSize int
}

// New returns a Generator ready to compile a Module.
func New() *Generator {
	return &Generator{a: asm.NewAssembler()}
}

// Generate lowers mod into a TAM image. It fails if any call (to a
// function never declared in mod, nor recognized as a built-in) is left
// unresolved.
func (g *Generator) Generate(mod *Module) (*tam.Image, error) {
	g.functions = make(map[string]*FunctionDecl, len(mod.Functions))
	for _, fn := range mod.Functions {
		g.functions[fn.Name] = fn
	}
	for _, fn := range mod.Functions {
		if err := g.genFunction(fn); err != nil {
			return nil, err
		}
	}
	if unresolved := g.a.UnresolvedCalls(); len(unresolved) > 0 {
		return nil, fmt.Errorf("codegen: unresolved function calls: %v", unresolved)
	}
	return g.a.GetImage(), nil
}

// --- scope -----------------------------------------------------------------

func (g *Generator) pushScope() { g.scopes = append(g.scopes, map[string]symbolInfo{}) }
func (g *Generator) popScope()  { g.scopes = g.scopes[:len(g.scopes)-1] }

func (g *Generator) bind(name string, offset int, typ Type) {
	g.scopes[len(g.scopes)-1][name] = symbolInfo{offset: offset, typ: typ}
}

func (g *Generator) unbind(name string) {
	delete(g.scopes[len(g.scopes)-1], name)
}

func (g *Generator) lookup(name string) (symbolInfo, bool) {
	for i := len(g.scopes) - 1; i >= 0; i-- {
		if s, ok := g.scopes[i][name]; ok {
			return s, true
		}
	}
	return symbolInfo{}, false
}

// --- functions ---------------------------------------------------------

func (g *Generator) genFunction(fn *FunctionDecl) error {
	g.a.AddNewFunction(fn.Name)
	g.pushScope()

	argSize := 0
	for _, p := range fn.Params {
		argSize += p.Type.WordSize()
	}
	cum := 0
	for _, p := range fn.Params {
		g.bind(p.Name, cum-argSize, p.Type)
		cum += p.Type.WordSize()
	}

	prevReturn, prevArgSize := g.currentReturn, g.currentArgSize
	g.currentReturn, g.currentArgSize = fn.ReturnType, argSize

	err := g.genStatements(fn.Body)

	g.currentReturn, g.currentArgSize = prevReturn, prevArgSize
	g.popScope()
	if err != nil {
		return err
	}

	// Fallback epilogue: reached only if the body falls off the end
	// without an explicit return. For a function with a result type this
	// is a caller bug (every path should return a value), but emitting it
	// anyway keeps every function properly framed.
	resultSize := 0
	if fn.ReturnType != nil {
		resultSize = fn.ReturnType.WordSize()
	}
	g.a.EmitReturn(resultSize, argSize)
	return nil
}

// --- statements ----------------------------------------------------------

func (g *Generator) genStatements(stmts []Statement) error {
	for _, s := range stmts {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}
	return nil
}

// genBlock runs stmts under a fresh nested scope, discarding whatever
// locals it declares once it's done.
func (g *Generator) genBlock(stmts []Statement) error {
	saved := g.a.SnapshotOffset()
	g.pushScope()
	err := g.genStatements(stmts)
	g.popScope()
	g.a.ResetOffset(saved)
	return err
}

func (g *Generator) genStmt(s Statement) error {
	switch s := s.(type) {
	case *VariableDeclaration:
		return g.genDecl(s.Name, s.Type, s.Init)
	case *ValueDefinition:
		return g.genDecl(s.Name, s.Type, s.Init)
	case *VariableAssignment:
		return g.genAssign(s.Target, s.Value)
	case *IfStatement:
		return g.genIf(s)
	case *ForLoop:
		return g.genForLoop(s)
	case *ForEachLoop:
		return g.genForEach(s)
	case *SwitchStatement:
		return g.genSwitch(s)
	case *CallStatement:
		return g.genCallStatement(s)
	case *ReturnStatement:
		return g.genReturn(s)
	case *CompoundStatement:
		return g.genBlock(s.Body)
	default:
		return &InternalError{Message: fmt.Sprintf("unhandled statement %T", s)}
	}
}

func (g *Generator) genDecl(name string, typ Type, init Expression) error {
	wordSize := typ.WordSize()
	if init != nil {
		if err := g.genExpr(init); err != nil {
			return err
		}
	} else {
		g.a.EmitPush(wordSize)
	}
	offset := g.a.DeclareLocal(wordSize)
	g.bind(name, offset, typ)
	return nil
}

func (g *Generator) genIf(s *IfStatement) error {
	if err := g.genExpr(s.Cond); err != nil {
		return err
	}
	elseJump := g.a.EmitConditionalJump(false, -1)
	if err := g.genBlock(s.Then); err != nil {
		return err
	}
	endJump := g.a.EmitJump(-1)
	g.a.BackPatchJump(elseJump, g.a.GetNextInstructionAddress())
	if err := g.genBlock(s.Else); err != nil {
		return err
	}
	g.a.BackPatchJump(endJump, g.a.GetNextInstructionAddress())
	return nil
}

// genForLoop lowers a counting loop into: evaluate From and To once into
// frame temporaries, loop while the counter hasn't passed the bound,
// incrementing by Step (whose sign picks the comparison direction) each
// iteration.
func (g *Generator) genForLoop(s *ForLoop) error {
	saved := g.a.SnapshotOffset()
	if err := g.genExpr(s.From); err != nil {
		return err
	}
	loopOff := g.a.DeclareLocal(1)
	if err := g.genExpr(s.To); err != nil {
		return err
	}
	boundOff := g.a.DeclareLocal(1)
	g.bind(s.Var, loopOff, IntType)

	condAddr := g.a.GetNextInstructionAddress()
	g.a.LoadLocalValue(1, loopOff)
	g.a.LoadLocalValue(1, boundOff)
	if s.Step >= 0 {
		g.a.CallPrimitive(tam.PrimGtI)
	} else {
		g.a.CallPrimitive(tam.PrimLtI)
	}
	exitJump := g.a.EmitConditionalJump(true, -1)

	if err := g.genBlock(s.Body); err != nil {
		return err
	}

	g.a.LoadLocalValue(1, loopOff)
	g.a.LoadIntegerValue(s.Step)
	g.a.CallPrimitive(tam.PrimAddI)
	g.a.StoreLocalValue(1, loopOff)
	g.a.EmitJump(condAddr)
	g.a.BackPatchJump(exitJump, g.a.GetNextInstructionAddress())

	g.unbind(s.Var)
	g.a.ResetOffset(saved)
	return nil
}

// genForEach lowers iteration over a named vector into a counting loop
// over its index, loading each element into the loop variable's own
// frame slot (push-then-declare, the same trick a plain declaration uses)
// before running Body, and discarding that slot again each iteration.
func (g *Generator) genForEach(s *ForEachLoop) error {
	ident, ok := s.Collection.(*Identifier)
	if !ok {
		return fmt.Errorf("codegen: forEach collection must be a named vector")
	}
	vt, ok := ident.Type().(VectorType)
	if !ok {
		return fmt.Errorf("codegen: forEach collection %q is not a vector", ident.Name)
	}
	sym, ok := g.lookup(ident.Name)
	if !ok {
		return fmt.Errorf("codegen: undefined identifier %q", ident.Name)
	}
	elemSize := vt.Elem.WordSize()

	saved := g.a.SnapshotOffset()
	g.a.LoadIntegerValue(0)
	idxOff := g.a.DeclareLocal(1)

	condAddr := g.a.GetNextInstructionAddress()
	g.a.LoadLocalValue(1, idxOff)
	g.a.LoadIntegerValue(vt.Length)
	g.a.CallPrimitive(tam.PrimGeI)
	exitJump := g.a.EmitConditionalJump(true, -1)

	g.a.LoadAddress(tam.LB, sym.offset)
	g.a.LoadLocalValue(1, idxOff)
	if elemSize > 1 {
		g.a.LoadIntegerValue(elemSize)
		g.a.CallPrimitive(tam.PrimMulI)
	}
	g.a.CallPrimitive(tam.PrimAddI)
	g.a.LoadFromStackAddress(elemSize)
	elemBefore := g.a.SnapshotOffset()
	elemOff := g.a.DeclareLocal(elemSize)
	g.pushScope()
	g.bind(s.Var, elemOff, vt.Elem)
	err := g.genStatements(s.Body)
	g.popScope()
	g.a.ResetOffset(elemBefore)
	if err != nil {
		return err
	}

	g.a.LoadLocalValue(1, idxOff)
	g.a.LoadIntegerValue(1)
	g.a.CallPrimitive(tam.PrimAddI)
	g.a.StoreLocalValue(1, idxOff)
	g.a.EmitJump(condAddr)
	g.a.BackPatchJump(exitJump, g.a.GetNextInstructionAddress())

	g.a.ResetOffset(saved)
	return nil
}

// genSwitch lowers into a chain of equality tests against a single
// evaluation of Subject, falling through to Default when none match.
// String subjects compare by interned id, same as int.
func (g *Generator) genSwitch(s *SwitchStatement) error {
	subjType := s.Subject.Type()
	wordSize := subjType.WordSize()

	saved := g.a.SnapshotOffset()
	if err := g.genExpr(s.Subject); err != nil {
		return err
	}
	subjOff := g.a.DeclareLocal(wordSize)

	var endJumps []int
	for _, c := range s.Cases {
		g.a.LoadLocalValue(wordSize, subjOff)
		if err := g.genExpr(c.Value); err != nil {
			return err
		}
		if sc, ok := subjType.(Scalar); ok && sc.IsFloat() {
			g.a.CallPrimitive(tam.PrimEqF)
		} else {
			g.a.CallPrimitive(tam.PrimEqI)
		}
		noMatch := g.a.EmitConditionalJump(false, -1)
		if err := g.genBlock(c.Body); err != nil {
			return err
		}
		endJumps = append(endJumps, g.a.EmitJump(-1))
		g.a.BackPatchJump(noMatch, g.a.GetNextInstructionAddress())
	}
	if err := g.genBlock(s.Default); err != nil {
		return err
	}
	endAddr := g.a.GetNextInstructionAddress()
	for _, j := range endJumps {
		g.a.BackPatchJump(j, endAddr)
	}

	g.a.EmitPop(0, wordSize)
	g.a.ResetOffset(saved)
	return nil
}

func (g *Generator) genCallStatement(s *CallStatement) error {
	if err := g.genCall(s.Call.Name, s.Call.Args, s.Call.ResultType); err != nil {
		return err
	}
	if rt := s.Call.ResultType; rt != nil {
		g.a.EmitPop(0, rt.WordSize())
	}
	return nil
}

func (g *Generator) genReturn(s *ReturnStatement) error {
	if s.Value != nil {
		if err := g.genExpr(s.Value); err != nil {
			return err
		}
		g.a.EmitReturn(s.Value.Type().WordSize(), g.currentArgSize)
		return nil
	}
	g.a.EmitReturn(0, g.currentArgSize)
	return nil
}

// --- assignment targets --------------------------------------------------

func (g *Generator) genAssign(target AssignTarget, value Expression) error {
	switch t := target.(type) {
	case IdentifierTarget:
		sym, ok := g.lookup(t.Name)
		if !ok {
			return fmt.Errorf("codegen: undefined identifier %q", t.Name)
		}
		if err := g.genExpr(value); err != nil {
			return err
		}
		g.a.StoreLocalValue(sym.typ.WordSize(), sym.offset)
		return nil

	case VectorLhsIdentifier:
		sym, ok := g.lookup(t.Name)
		if !ok {
			return fmt.Errorf("codegen: undefined identifier %q", t.Name)
		}
		vt, ok := sym.typ.(VectorType)
		if !ok {
			return fmt.Errorf("codegen: %q is not a vector", t.Name)
		}
		elemSize := vt.Elem.WordSize()

		saved := g.a.SnapshotOffset()
		if err := g.genExpr(t.Index); err != nil {
			return err
		}
		idxOff := saved
		g.a.EmitBoundsCheck(func() { g.a.LoadLocalValue(1, idxOff) }, 0, vt.Length)
		g.a.LoadAddress(tam.LB, sym.offset)
		g.a.LoadLocalValue(1, idxOff)
		if elemSize > 1 {
			g.a.LoadIntegerValue(elemSize)
			g.a.CallPrimitive(tam.PrimMulI)
		}
		g.a.CallPrimitive(tam.PrimAddI)
		addrOff := idxOff + 1

		if err := g.genExpr(value); err != nil {
			return err
		}
		g.a.LoadLocalValue(1, addrOff)
		g.a.StoreToStackAddress(elemSize)
		g.a.EmitPop(0, 2)
		g.a.ResetOffset(saved)
		return nil

	case MatrixLhsIdentifier:
		sym, ok := g.lookup(t.Name)
		if !ok {
			return fmt.Errorf("codegen: undefined identifier %q", t.Name)
		}
		mt, ok := sym.typ.(MatrixType)
		if !ok {
			return fmt.Errorf("codegen: %q is not a matrix", t.Name)
		}
		elemSize := mt.Elem.WordSize()

		saved := g.a.SnapshotOffset()
		if err := g.genExpr(t.Row); err != nil {
			return err
		}
		rowOff := saved
		if err := g.genExpr(t.Col); err != nil {
			return err
		}
		colOff := rowOff + 1
		g.a.EmitBoundsCheck(func() { g.a.LoadLocalValue(1, rowOff) }, 0, mt.Rows)
		g.a.EmitBoundsCheck(func() { g.a.LoadLocalValue(1, colOff) }, 0, mt.Cols)

		g.a.LoadLocalValue(1, rowOff)
		g.a.LoadIntegerValue(mt.Cols)
		g.a.CallPrimitive(tam.PrimMulI)
		g.a.LoadLocalValue(1, colOff)
		g.a.CallPrimitive(tam.PrimAddI)
		if elemSize > 1 {
			g.a.LoadIntegerValue(elemSize)
			g.a.CallPrimitive(tam.PrimMulI)
		}
		g.a.LoadAddress(tam.LB, sym.offset)
		g.a.CallPrimitive(tam.PrimAddI)
		addrOff := colOff + 1

		if err := g.genExpr(value); err != nil {
			return err
		}
		g.a.LoadLocalValue(1, addrOff)
		g.a.StoreToStackAddress(elemSize)
		g.a.EmitPop(0, 3)
		g.a.ResetOffset(saved)
		return nil

	case RecordLhsIdentifier:
		sym, ok := g.lookup(t.Name)
		if !ok {
			return fmt.Errorf("codegen: undefined identifier %q", t.Name)
		}
		rt, ok := sym.typ.(RecordType)
		if !ok {
			return fmt.Errorf("codegen: %q is not a record", t.Name)
		}
		off, ft, ok := rt.FieldOffset(t.Field)
		if !ok {
			return fmt.Errorf("codegen: record %q has no field %q", t.Name, t.Field)
		}
		if err := g.genExpr(value); err != nil {
			return err
		}
		g.a.StoreLocalValue(ft.WordSize(), sym.offset+off)
		return nil

	default:
		return &InternalError{Message: fmt.Sprintf("unhandled assignment target %T", t)}
	}
}

// --- expressions ---------------------------------------------------------

func (g *Generator) genExpr(e Expression) error {
	switch e := e.(type) {
	case *IntLiteral:
		g.a.LoadIntegerValue(e.Value)
	case *FloatLiteral:
		g.a.LoadFloatValue(int32(math.Float32bits(e.Value)))
	case *BoolLiteral:
		g.a.LoadBooleanValue(e.Value)
	case *StringLiteral:
		g.a.LoadStringValue(e.Value)
	case *Identifier:
		sym, ok := g.lookup(e.Name)
		if !ok {
			return fmt.Errorf("codegen: undefined identifier %q", e.Name)
		}
		g.a.LoadLocalValue(sym.typ.WordSize(), sym.offset)
	case *BinaryExpr:
		return g.genBinary(e)
	case *UnaryExpr:
		return g.genUnary(e)
	case *CallExpression:
		return g.genCall(e.Name, e.Args, e.ResultType)
	case *VectorElementSelect:
		return g.genVectorSelect(e)
	case *MatrixElementSelect:
		return g.genMatrixSelect(e)
	case *RecordElementSelect:
		return g.genRecordSelect(e)
	case *MatrixMultiplication:
		return g.genMatrixMultiplication(e)
	case *DotProduct:
		return g.genDotProduct(e)
	case *MatrixTranspose:
		return g.genMatrixTranspose(e)
	case *MatrixDim:
		g.a.LoadIntegerValue(e.Value)
	case *VectorDimension:
		g.a.LoadIntegerValue(e.Value)
	case *SelectExpression:
		return g.genSelect(e)
	case *SubVector:
		return g.genSubVector(e)
	case *SubMatrix:
		return g.genSubMatrix(e)
	default:
		return &InternalError{Message: fmt.Sprintf("unhandled expression %T", e)}
	}
	return nil
}

func isFloatType(t Type) bool {
	s, ok := t.(Scalar)
	return ok && s.IsFloat()
}

var intBinaryPrim = map[BinOp]tam.Primitive{
	OpAdd: tam.PrimAddI, OpSub: tam.PrimSubI, OpMul: tam.PrimMulI,
	OpDiv: tam.PrimDivI, OpMod: tam.PrimModI, OpExp: tam.PrimPowInt,
	OpEq: tam.PrimEqI, OpNe: tam.PrimNeI,
	OpLt: tam.PrimLtI, OpLe: tam.PrimLeI, OpGt: tam.PrimGtI, OpGe: tam.PrimGeI,
}

var floatBinaryPrim = map[BinOp]tam.Primitive{
	OpAdd: tam.PrimAddF, OpSub: tam.PrimSubF, OpMul: tam.PrimMulF,
	OpDiv: tam.PrimDivF, OpExp: tam.PrimPowFloat,
	OpEq: tam.PrimEqF, OpNe: tam.PrimNeF,
	OpLt: tam.PrimLtF, OpLe: tam.PrimLeF, OpGt: tam.PrimGtF, OpGe: tam.PrimGeF,
}

func (g *Generator) genBinary(e *BinaryExpr) error {
	if e.Op == OpAnd || e.Op == OpOr {
		if err := g.genExpr(e.Left); err != nil {
			return err
		}
		if err := g.genExpr(e.Right); err != nil {
			return err
		}
		if e.Op == OpAnd {
			g.a.CallPrimitive(tam.PrimAnd)
		} else {
			g.a.CallPrimitive(tam.PrimOr)
		}
		return nil
	}

	leftLen, leftElem, leftStruct := structShape(e.Left.Type())
	rightLen, rightElem, rightStruct := structShape(e.Right.Type())
	if leftStruct || rightStruct {
		return g.genBroadcastBinary(e, leftLen, leftElem, leftStruct, rightLen, rightElem, rightStruct)
	}

	if err := g.genExpr(e.Left); err != nil {
		return err
	}
	if err := g.genExpr(e.Right); err != nil {
		return err
	}
	table := intBinaryPrim
	if isFloatType(e.OperandType) {
		table = floatBinaryPrim
	}
	prim, ok := table[e.Op]
	if !ok {
		return &InternalError{Message: fmt.Sprintf("operator %d not defined over %s", e.Op, e.OperandType)}
	}
	g.a.CallPrimitive(prim)
	return nil
}

// structShape reports whether t is a vector or matrix type, and if so its
// total element count and element type. Scalars report a length of 1 and
// themselves as the element type.
func structShape(t Type) (length int, elem Type, isStruct bool) {
	switch v := t.(type) {
	case VectorType:
		return v.Length, v.Elem, true
	case MatrixType:
		return v.Rows * v.Cols, v.Elem, true
	default:
		return 1, t, false
	}
}

// genBroadcastBinary implements struct-op-struct, struct-op-scalar and
// scalar-op-struct arithmetic: both operands land in frame temporaries,
// then the operator is applied element by element into a freshly reserved
// destination block, unrolled at compile time since every vector and
// matrix shape here is fixed at compile time. A scalar operand's single
// temporary is reread on every iteration instead of being duplicated.
func (g *Generator) genBroadcastBinary(e *BinaryExpr, leftLen int, leftElem Type, leftStruct bool, rightLen int, rightElem Type, rightStruct bool) error {
	if leftStruct && rightStruct && leftLen != rightLen {
		return &InternalError{Message: fmt.Sprintf("broadcast shape mismatch: %d vs %d elements", leftLen, rightLen)}
	}
	elemType, length := leftElem, leftLen
	if !leftStruct {
		elemType, length = rightElem, rightLen
	}

	table := intBinaryPrim
	if isFloatType(elemType) {
		table = floatBinaryPrim
	}
	prim, ok := table[e.Op]
	if !ok {
		return &InternalError{Message: fmt.Sprintf("operator %d not defined over %s", e.Op, elemType)}
	}

	saved := g.a.SnapshotOffset()
	if err := g.genExpr(e.Left); err != nil {
		return err
	}
	leftOff := saved
	leftWords := 1
	if leftStruct {
		leftWords = leftLen
	}
	if err := g.genExpr(e.Right); err != nil {
		return err
	}
	rightOff := leftOff + leftWords
	rightWords := 1
	if rightStruct {
		rightWords = rightLen
	}
	destOff := rightOff + rightWords

	g.a.EmitPush(length)
	for i := 0; i < length; i++ {
		if leftStruct {
			g.a.LoadLocalValue(1, leftOff+i)
		} else {
			g.a.LoadLocalValue(1, leftOff)
		}
		if rightStruct {
			g.a.LoadLocalValue(1, rightOff+i)
		} else {
			g.a.LoadLocalValue(1, rightOff)
		}
		g.a.CallPrimitive(prim)
		g.a.StoreLocalValue(1, destOff+i)
	}
	g.a.EmitPop(length, leftWords+rightWords)
	g.a.ResetOffset(saved)
	return nil
}

func (g *Generator) genUnary(e *UnaryExpr) error {
	if err := g.genExpr(e.Operand); err != nil {
		return err
	}
	switch e.Op {
	case OpNeg:
		if isFloatType(e.Operand.Type()) {
			g.a.CallPrimitive(tam.PrimNegF)
		} else {
			g.a.CallPrimitive(tam.PrimNegI)
		}
	case OpNot:
		g.a.CallPrimitive(tam.PrimNot)
	default:
		return &InternalError{Message: fmt.Sprintf("unhandled unary operator %d", e.Op)}
	}
	return nil
}

// genSelect lowers the ternary operator the same way genIf lowers a
// statement conditional, except both arms are expressions and exactly one
// of them leaves its ResultType-sized value on the stack.
func (g *Generator) genSelect(e *SelectExpression) error {
	if err := g.genExpr(e.Cond); err != nil {
		return err
	}
	falseJump := g.a.EmitConditionalJump(false, -1)
	if err := g.genExpr(e.Then); err != nil {
		return err
	}
	endJump := g.a.EmitJump(-1)
	g.a.BackPatchJump(falseJump, g.a.GetNextInstructionAddress())
	if err := g.genExpr(e.Else); err != nil {
		return err
	}
	g.a.BackPatchJump(endJump, g.a.GetNextInstructionAddress())
	return nil
}

// genSubVector extracts a contiguous run of e.Length elements starting at
// the dynamic index e.Start. The run is contiguous in memory, so a single
// bounds-checked LOAD of the whole span replaces the source's per-element
// address arithmetic in genVectorSelect.
func (g *Generator) genSubVector(e *SubVector) error {
	sym, ok := g.lookup(e.Name)
	if !ok {
		return fmt.Errorf("codegen: undefined identifier %q", e.Name)
	}
	vt, ok := sym.typ.(VectorType)
	if !ok {
		return fmt.Errorf("codegen: %q is not a vector", e.Name)
	}
	elemSize := vt.Elem.WordSize()
	destSize := e.Length * elemSize

	saved := g.a.SnapshotOffset()
	if err := g.genExpr(e.Start); err != nil {
		return err
	}
	startOff := saved
	g.a.EmitBoundsCheck(func() { g.a.LoadLocalValue(1, startOff) }, 0, vt.Length-e.Length+1)
	g.a.LoadAddress(tam.LB, sym.offset)
	g.a.LoadLocalValue(1, startOff)
	if elemSize > 1 {
		g.a.LoadIntegerValue(elemSize)
		g.a.CallPrimitive(tam.PrimMulI)
	}
	g.a.CallPrimitive(tam.PrimAddI)
	g.a.LoadFromStackAddress(destSize)
	g.a.EmitPop(destSize, 1)
	g.a.ResetOffset(saved)
	return nil
}

// genSubMatrix extracts a Rows x Cols block starting at the dynamic
// (RowStart, ColStart) position. Unlike a sub-vector, the block's rows
// aren't contiguous with each other (the source has SourceCols per row), so
// each destination row is copied separately: reserve the destination with
// PUSH, then for every row compute its bounds-checked source address and
// LOAD/STORE it into place, finally popping the two start-index temporaries
// out from under the finished block.
func (g *Generator) genSubMatrix(e *SubMatrix) error {
	sym, ok := g.lookup(e.Name)
	if !ok {
		return fmt.Errorf("codegen: undefined identifier %q", e.Name)
	}
	mt, ok := sym.typ.(MatrixType)
	if !ok {
		return fmt.Errorf("codegen: %q is not a matrix", e.Name)
	}
	elemSize := mt.Elem.WordSize()
	rowWords := e.Cols * elemSize
	destSize := e.Rows * rowWords

	saved := g.a.SnapshotOffset()
	if err := g.genExpr(e.RowStart); err != nil {
		return err
	}
	rowOff := saved
	if err := g.genExpr(e.ColStart); err != nil {
		return err
	}
	colOff := rowOff + 1
	g.a.EmitBoundsCheck(func() { g.a.LoadLocalValue(1, rowOff) }, 0, mt.Rows-e.Rows+1)
	g.a.EmitBoundsCheck(func() { g.a.LoadLocalValue(1, colOff) }, 0, mt.Cols-e.Cols+1)

	destOff := colOff + 1
	g.a.EmitPush(destSize)

	for r := 0; r < e.Rows; r++ {
		g.a.LoadLocalValue(1, rowOff)
		g.a.LoadIntegerValue(r)
		g.a.CallPrimitive(tam.PrimAddI)
		g.a.LoadIntegerValue(mt.Cols)
		g.a.CallPrimitive(tam.PrimMulI)
		g.a.LoadLocalValue(1, colOff)
		g.a.CallPrimitive(tam.PrimAddI)
		if elemSize > 1 {
			g.a.LoadIntegerValue(elemSize)
			g.a.CallPrimitive(tam.PrimMulI)
		}
		g.a.LoadAddress(tam.LB, sym.offset)
		g.a.CallPrimitive(tam.PrimAddI)
		g.a.LoadFromStackAddress(rowWords)
		g.a.StoreLocalValue(rowWords, destOff+r*rowWords)
	}

	g.a.EmitPop(destSize, 2)
	g.a.ResetOffset(saved)
	return nil
}

func (g *Generator) genVectorSelect(e *VectorElementSelect) error {
	sym, ok := g.lookup(e.Name)
	if !ok {
		return fmt.Errorf("codegen: undefined identifier %q", e.Name)
	}
	vt, ok := sym.typ.(VectorType)
	if !ok {
		return fmt.Errorf("codegen: %q is not a vector", e.Name)
	}
	elemSize := vt.Elem.WordSize()

	saved := g.a.SnapshotOffset()
	if err := g.genExpr(e.Index); err != nil {
		return err
	}
	idxOff := saved
	g.a.EmitBoundsCheck(func() { g.a.LoadLocalValue(1, idxOff) }, 0, vt.Length)
	g.a.LoadAddress(tam.LB, sym.offset)
	g.a.LoadLocalValue(1, idxOff)
	if elemSize > 1 {
		g.a.LoadIntegerValue(elemSize)
		g.a.CallPrimitive(tam.PrimMulI)
	}
	g.a.CallPrimitive(tam.PrimAddI)
	g.a.LoadFromStackAddress(elemSize)
	g.a.EmitPop(elemSize, 1)
	g.a.ResetOffset(saved)
	return nil
}

func (g *Generator) genMatrixSelect(e *MatrixElementSelect) error {
	sym, ok := g.lookup(e.Name)
	if !ok {
		return fmt.Errorf("codegen: undefined identifier %q", e.Name)
	}
	mt, ok := sym.typ.(MatrixType)
	if !ok {
		return fmt.Errorf("codegen: %q is not a matrix", e.Name)
	}
	elemSize := mt.Elem.WordSize()

	saved := g.a.SnapshotOffset()
	if err := g.genExpr(e.Row); err != nil {
		return err
	}
	rowOff := saved
	if err := g.genExpr(e.Col); err != nil {
		return err
	}
	colOff := rowOff + 1
	g.a.EmitBoundsCheck(func() { g.a.LoadLocalValue(1, rowOff) }, 0, mt.Rows)
	g.a.EmitBoundsCheck(func() { g.a.LoadLocalValue(1, colOff) }, 0, mt.Cols)

	g.a.LoadLocalValue(1, rowOff)
	g.a.LoadIntegerValue(mt.Cols)
	g.a.CallPrimitive(tam.PrimMulI)
	g.a.LoadLocalValue(1, colOff)
	g.a.CallPrimitive(tam.PrimAddI)
	if elemSize > 1 {
		g.a.LoadIntegerValue(elemSize)
		g.a.CallPrimitive(tam.PrimMulI)
	}
	g.a.LoadAddress(tam.LB, sym.offset)
	g.a.CallPrimitive(tam.PrimAddI)
	g.a.LoadFromStackAddress(elemSize)
	g.a.EmitPop(elemSize, 2)
	g.a.ResetOffset(saved)
	return nil
}

func (g *Generator) genRecordSelect(e *RecordElementSelect) error {
	sym, ok := g.lookup(e.Name)
	if !ok {
		return fmt.Errorf("codegen: undefined identifier %q", e.Name)
	}
	rt, ok := sym.typ.(RecordType)
	if !ok {
		return fmt.Errorf("codegen: %q is not a record", e.Name)
	}
	off, ft, ok := rt.FieldOffset(e.Field)
	if !ok {
		return fmt.Errorf("codegen: record %q has no field %q", e.Name, e.Field)
	}
	g.a.LoadLocalValue(ft.WordSize(), sym.offset+off)
	return nil
}

// genMatrixMultiplication pushes Left (Rows x Dim) then Right (Dim x Cols)
// then the three dimensions, matching matMulI/matMulF's expected push
// order (lmat, rmat, rows, dim, cols).
func (g *Generator) genMatrixMultiplication(e *MatrixMultiplication) error {
	if err := g.genExpr(e.Left); err != nil {
		return err
	}
	if err := g.genExpr(e.Right); err != nil {
		return err
	}
	g.a.LoadIntegerValue(e.Rows)
	g.a.LoadIntegerValue(e.Dim)
	g.a.LoadIntegerValue(e.Cols)
	if isFloatType(e.ElemType) {
		g.a.CallPrimitive(tam.PrimMatMulF)
	} else {
		g.a.CallPrimitive(tam.PrimMatMulI)
	}
	return nil
}

// genDotProduct computes a vector dot product as a 1xN by Nx1 matrix
// product: the flat word layout of a length-N vector is exactly a 1xN (or
// Nx1) matrix, so no separate primitive is needed.
func (g *Generator) genDotProduct(e *DotProduct) error {
	if err := g.genExpr(e.Left); err != nil {
		return err
	}
	if err := g.genExpr(e.Right); err != nil {
		return err
	}
	g.a.LoadIntegerValue(1)
	g.a.LoadIntegerValue(e.Length)
	g.a.LoadIntegerValue(1)
	if isFloatType(e.ElemType) {
		g.a.CallPrimitive(tam.PrimMatMulF)
	} else {
		g.a.CallPrimitive(tam.PrimMatMulI)
	}
	return nil
}

// genMatrixTranspose pushes Operand then its dimensions, matching
// matTranspose's expected push order (mat, rows, cols).
func (g *Generator) genMatrixTranspose(e *MatrixTranspose) error {
	if err := g.genExpr(e.Operand); err != nil {
		return err
	}
	g.a.LoadIntegerValue(e.Rows)
	g.a.LoadIntegerValue(e.Cols)
	g.a.CallPrimitive(tam.PrimMatTranspose)
	return nil
}

// --- calls -----------------------------------------------------------------

// builtinPrim maps built-in function names straight onto a primitive;
// argument count and result shape come from the primitive itself, not
// from this table.
var builtinPrim = map[string]tam.Primitive{
	"printInt":    tam.PrimPrintInt,
	"printFloat":  tam.PrimPrintFloat,
	"printBool":   tam.PrimPrintBool,
	"printString": tam.PrimPrintString,
	"printLine":   tam.PrimPrintLine,
	"readInt":     tam.PrimReadInt,
	"readFloat":   tam.PrimReadFloat,
	"readBool":    tam.PrimReadBool,
	"sqrtInt":     tam.PrimSqrtInt,
	"sqrtFloat":   tam.PrimSqrtFloat,
	"int2float":   tam.PrimInt2Float,
	"float2int":   tam.PrimFloat2Int,
}

var matrixIOPrims = map[string]map[int]tam.Primitive{
	"readIntMatrix":    {9: tam.PrimReadIM9, 16: tam.PrimReadIM16, 64: tam.PrimReadIM64},
	"writeIntMatrix":   {9: tam.PrimWriteIM9, 16: tam.PrimWriteIM16, 64: tam.PrimWriteIM64},
	"readFloatMatrix":  {9: tam.PrimReadFM9, 16: tam.PrimReadFM16, 64: tam.PrimReadFM64},
	"writeFloatMatrix": {9: tam.PrimWriteFM9, 16: tam.PrimWriteFM16, 64: tam.PrimWriteFM64},
}

// genCall dispatches name as a built-in if recognized, else as a call to a
// function declared in the module. Either way it leaves exactly the
// call's result (if any) on the stack — callers that don't want the
// result (CallStatement) pop it off themselves. resultType is the call
// expression's own resolved result type (nil for a procedure call),
// needed to pick the fixed matrix size for the read-matrix built-ins,
// whose shape isn't visible in any argument.
func (g *Generator) genCall(name string, args []Expression, resultType Type) error {
	if prim, ok := builtinPrim[name]; ok {
		for _, a := range args {
			if err := g.genExpr(a); err != nil {
				return err
			}
		}
		g.a.CallPrimitive(prim)
		return nil
	}
	if byDim, ok := matrixIOPrims[name]; ok {
		return g.genMatrixIOCall(name, byDim, args, resultType)
	}
	fn, ok := g.functions[name]
	if !ok {
		return fmt.Errorf("codegen: call to undefined function %q", name)
	}
	if len(args) != len(fn.Params) {
		return fmt.Errorf("codegen: call to %q: %d arguments, want %d", name, len(args), len(fn.Params))
	}
	for _, a := range args {
		if err := g.genExpr(a); err != nil {
			return err
		}
	}
	g.a.EmitFunctionCall(name)
	return nil
}

// genMatrixIOCall handles the fixed-size (9x9, 16x16, 64x64) matrix file
// built-ins. Writes take the matrix first and the path last, matching
// writeIntMatrix/writeFloatMatrix's pop order (path popped first, then
// the matrix); reads take a single path argument and produce a matrix
// shaped by the call's own resultType, since nothing else at the call
// site carries it.
func (g *Generator) genMatrixIOCall(name string, byDim map[int]tam.Primitive, args []Expression, resultType Type) error {
	if len(args) == 2 {
		mt, ok := args[0].Type().(MatrixType)
		if !ok {
			return fmt.Errorf("codegen: %s: first argument must be a matrix", name)
		}
		if mt.Rows != mt.Cols {
			return fmt.Errorf("codegen: %s: matrix must be square", name)
		}
		prim, ok := byDim[mt.Rows]
		if !ok {
			return fmt.Errorf("codegen: %s: unsupported matrix size %dx%d", name, mt.Rows, mt.Cols)
		}
		if err := g.genExpr(args[0]); err != nil {
			return err
		}
		if err := g.genExpr(args[1]); err != nil {
			return err
		}
		g.a.CallPrimitive(prim)
		return nil
	}
	if len(args) != 1 {
		return fmt.Errorf("codegen: %s: wrong argument count %d", name, len(args))
	}
	mt, ok := resultType.(MatrixType)
	if !ok {
		return fmt.Errorf("codegen: %s: result type must be a matrix", name)
	}
	if mt.Rows != mt.Cols {
		return fmt.Errorf("codegen: %s: matrix must be square", name)
	}
	prim, ok := byDim[mt.Rows]
	if !ok {
		return fmt.Errorf("codegen: %s: unsupported matrix size %dx%d", name, mt.Rows, mt.Cols)
	}
	if err := g.genExpr(args[0]); err != nil {
		return err
	}
	g.a.CallPrimitive(prim)
	return nil
}
