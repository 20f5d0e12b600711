package codegen

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tamlang/tamvm/tam"
	"github.com/tamlang/tamvm/tam/interp"
)

func runModule(t *testing.T, mod *Module) (string, *interp.Interpreter) {
	t.Helper()
	img, err := New().Generate(mod)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var out bytes.Buffer
	it := interp.NewInterpreter(img, strings.NewReader(""), &out)
	it.Run(20000)
	return out.String(), it
}

func mainModule(body ...Statement) *Module {
	return &Module{Functions: []*FunctionDecl{{Name: "main", Body: body}}}
}

func printIntCall(e Expression) *CallStatement {
	return &CallStatement{Call: &CallExpression{Name: "printInt", Args: []Expression{e}}}
}

func printLineCall() *CallStatement {
	return &CallStatement{Call: &CallExpression{Name: "printLine"}}
}

func requireHalted(t *testing.T, it *interp.Interpreter) {
	t.Helper()
	if it.State.ExecutionState != interp.Halted {
		t.Fatalf("state = %v (err=%v %v)", it.State.ExecutionState, it.State.ErrorCode, it.State.ErrorMessage)
	}
}

func TestSumAndPrint(t *testing.T) {
	mod := mainModule(
		printIntCall(&BinaryExpr{Op: OpAdd, Left: &IntLiteral{Value: 1}, Right: &IntLiteral{Value: 2}, OperandType: IntType, ResultType: IntType}),
		printLineCall(),
	)
	out, it := runModule(t, mod)
	requireHalted(t, it)
	if out != "3\n" {
		t.Fatalf("output = %q, want %q", out, "3\n")
	}
}

func TestIfElseBranches(t *testing.T) {
	mod := mainModule(
		&IfStatement{
			Cond: &BinaryExpr{Op: OpGt, Left: &IntLiteral{Value: 5}, Right: &IntLiteral{Value: 3}, OperandType: IntType, ResultType: BoolType},
			Then: []Statement{printIntCall(&IntLiteral{Value: 1})},
			Else: []Statement{printIntCall(&IntLiteral{Value: 0})},
		},
		printLineCall(),
	)
	out, it := runModule(t, mod)
	requireHalted(t, it)
	if out != "1\n" {
		t.Fatalf("output = %q, want %q", out, "1\n")
	}
}

func TestForLoopAccumulatesSum(t *testing.T) {
	mod := mainModule(
		&VariableDeclaration{Name: "sum", Type: IntType, Init: &IntLiteral{Value: 0}},
		&ForLoop{
			Var: "i", From: &IntLiteral{Value: 1}, To: &IntLiteral{Value: 5}, Step: 1,
			Body: []Statement{
				&VariableAssignment{
					Target: IdentifierTarget{Name: "sum"},
					Value: &BinaryExpr{
						Op:          OpAdd,
						Left:        &Identifier{Name: "sum", Typ: IntType},
						Right:       &Identifier{Name: "i", Typ: IntType},
						OperandType: IntType, ResultType: IntType,
					},
				},
			},
		},
		printIntCall(&Identifier{Name: "sum", Typ: IntType}),
		printLineCall(),
	)
	out, it := runModule(t, mod)
	requireHalted(t, it)
	if out != "15\n" {
		t.Fatalf("output = %q, want %q", out, "15\n")
	}
}

func TestFunctionCallReturnsDoubledValue(t *testing.T) {
	double := &FunctionDecl{
		Name:       "double",
		Params:     []Param{{Name: "n", Type: IntType}},
		ReturnType: IntType,
		Body: []Statement{
			&ReturnStatement{Value: &BinaryExpr{
				Op: OpMul, Left: &Identifier{Name: "n", Typ: IntType}, Right: &IntLiteral{Value: 2},
				OperandType: IntType, ResultType: IntType,
			}},
		},
	}
	main := &FunctionDecl{
		Name: "main",
		Body: []Statement{
			printIntCall(&CallExpression{Name: "double", Args: []Expression{&IntLiteral{Value: 21}}, ResultType: IntType}),
			printLineCall(),
		},
	}
	mod := &Module{Functions: []*FunctionDecl{main, double}}
	out, it := runModule(t, mod)
	requireHalted(t, it)
	if out != "42\n" {
		t.Fatalf("output = %q, want %q", out, "42\n")
	}
}

func TestVectorElementAssignAndSelect(t *testing.T) {
	vecType := VectorType{Elem: IntType, Length: 3}
	mod := mainModule(
		&VariableDeclaration{Name: "v", Type: vecType},
		&VariableAssignment{Target: VectorLhsIdentifier{Name: "v", Index: &IntLiteral{Value: 0}}, Value: &IntLiteral{Value: 10}},
		&VariableAssignment{Target: VectorLhsIdentifier{Name: "v", Index: &IntLiteral{Value: 1}}, Value: &IntLiteral{Value: 20}},
		printIntCall(&VectorElementSelect{Name: "v", Index: &IntLiteral{Value: 1}, ElemType: IntType}),
		printLineCall(),
	)
	out, it := runModule(t, mod)
	requireHalted(t, it)
	if out != "20\n" {
		t.Fatalf("output = %q, want %q", out, "20\n")
	}
}

func TestVectorSelectOutOfRangeRaisesRuntimeError(t *testing.T) {
	vecType := VectorType{Elem: IntType, Length: 3}
	mod := mainModule(
		&VariableDeclaration{Name: "v", Type: vecType},
		printIntCall(&VectorElementSelect{Name: "v", Index: &IntLiteral{Value: 5}, ElemType: IntType}),
	)
	_, it := runModule(t, mod)
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

func TestMatrixTransposeThenSelect(t *testing.T) {
	matType := MatrixType{Elem: IntType, Rows: 2, Cols: 3}
	transposedType := MatrixType{Elem: IntType, Rows: 3, Cols: 2}

	assignElem := func(row, col, value int) Statement {
		return &VariableAssignment{
			Target: MatrixLhsIdentifier{Name: "m", Row: &IntLiteral{Value: row}, Col: &IntLiteral{Value: col}},
			Value:  &IntLiteral{Value: value},
		}
	}

	mod := mainModule(
		&VariableDeclaration{Name: "m", Type: matType},
		assignElem(0, 0, 1), assignElem(0, 1, 2), assignElem(0, 2, 3),
		assignElem(1, 0, 4), assignElem(1, 1, 5), assignElem(1, 2, 6),
		&VariableDeclaration{
			Name: "t", Type: transposedType,
			Init: &MatrixTranspose{Operand: &Identifier{Name: "m", Typ: matType}, Rows: 2, Cols: 3, ElemType: IntType},
		},
		printIntCall(&MatrixElementSelect{Name: "t", Row: &IntLiteral{Value: 1}, Col: &IntLiteral{Value: 0}, ElemType: IntType}),
		printLineCall(),
	)
	out, it := runModule(t, mod)
	requireHalted(t, it)
	if out != "2\n" {
		t.Fatalf("output = %q, want %q", out, "2\n")
	}
}

func TestSwitchStatementMatchesCase(t *testing.T) {
	mod := mainModule(
		&VariableDeclaration{Name: "x", Type: IntType, Init: &IntLiteral{Value: 2}},
		&SwitchStatement{
			Subject: &Identifier{Name: "x", Typ: IntType},
			Cases: []SwitchCase{
				{Value: &IntLiteral{Value: 1}, Body: []Statement{printIntCall(&IntLiteral{Value: 100})}},
				{Value: &IntLiteral{Value: 2}, Body: []Statement{printIntCall(&IntLiteral{Value: 200})}},
			},
			Default: []Statement{printIntCall(&IntLiteral{Value: 999})},
		},
		printLineCall(),
	)
	out, it := runModule(t, mod)
	requireHalted(t, it)
	if out != "200\n" {
		t.Fatalf("output = %q, want %q", out, "200\n")
	}
}

func TestSwitchStatementFallsThroughToDefault(t *testing.T) {
	mod := mainModule(
		&VariableDeclaration{Name: "x", Type: IntType, Init: &IntLiteral{Value: 9}},
		&SwitchStatement{
			Subject: &Identifier{Name: "x", Typ: IntType},
			Cases: []SwitchCase{
				{Value: &IntLiteral{Value: 1}, Body: []Statement{printIntCall(&IntLiteral{Value: 100})}},
			},
			Default: []Statement{printIntCall(&IntLiteral{Value: 999})},
		},
		printLineCall(),
	)
	out, it := runModule(t, mod)
	requireHalted(t, it)
	if out != "999\n" {
		t.Fatalf("output = %q, want %q", out, "999\n")
	}
}

func TestForEachLoopSumsVectorElements(t *testing.T) {
	vecType := VectorType{Elem: IntType, Length: 3}
	assignElem := func(idx, value int) Statement {
		return &VariableAssignment{
			Target: VectorLhsIdentifier{Name: "v", Index: &IntLiteral{Value: idx}},
			Value:  &IntLiteral{Value: value},
		}
	}
	mod := mainModule(
		&VariableDeclaration{Name: "v", Type: vecType},
		assignElem(0, 3), assignElem(1, 4), assignElem(2, 5),
		&VariableDeclaration{Name: "sum", Type: IntType, Init: &IntLiteral{Value: 0}},
		&ForEachLoop{
			Var:        "e",
			Collection: &Identifier{Name: "v", Typ: vecType},
			Body: []Statement{
				&VariableAssignment{
					Target: IdentifierTarget{Name: "sum"},
					Value: &BinaryExpr{
						Op: OpAdd, Left: &Identifier{Name: "sum", Typ: IntType}, Right: &Identifier{Name: "e", Typ: IntType},
						OperandType: IntType, ResultType: IntType,
					},
				},
			},
		},
		printIntCall(&Identifier{Name: "sum", Typ: IntType}),
		printLineCall(),
	)
	out, it := runModule(t, mod)
	requireHalted(t, it)
	if out != "12\n" {
		t.Fatalf("output = %q, want %q", out, "12\n")
	}
}

func TestRecursiveFactorialViaSelectExpression(t *testing.T) {
	// fac(n) = n > 1 ? n * fac(n-1) : 1
	fac := &FunctionDecl{
		Name:       "fac",
		Params:     []Param{{Name: "n", Type: IntType}},
		ReturnType: IntType,
		Body: []Statement{
			&ReturnStatement{Value: &SelectExpression{
				Cond: &BinaryExpr{
					Op: OpGt, Left: &Identifier{Name: "n", Typ: IntType}, Right: &IntLiteral{Value: 1},
					OperandType: IntType, ResultType: BoolType,
				},
				Then: &BinaryExpr{
					Op:   OpMul,
					Left: &Identifier{Name: "n", Typ: IntType},
					Right: &CallExpression{
						Name: "fac",
						Args: []Expression{&BinaryExpr{
							Op: OpSub, Left: &Identifier{Name: "n", Typ: IntType}, Right: &IntLiteral{Value: 1},
							OperandType: IntType, ResultType: IntType,
						}},
						ResultType: IntType,
					},
					OperandType: IntType, ResultType: IntType,
				},
				Else:       &IntLiteral{Value: 1},
				ResultType: IntType,
			}},
		},
	}
	main := &FunctionDecl{
		Name: "main",
		Body: []Statement{
			printIntCall(&CallExpression{Name: "fac", Args: []Expression{&IntLiteral{Value: 5}}, ResultType: IntType}),
			printLineCall(),
		},
	}
	mod := &Module{Functions: []*FunctionDecl{main, fac}}
	out, it := runModule(t, mod)
	requireHalted(t, it)
	if out != "120\n" {
		t.Fatalf("output = %q, want %q", out, "120\n")
	}
}

func TestDivisionByZeroRaisesZeroDivisionError(t *testing.T) {
	mod := mainModule(
		&VariableDeclaration{
			Name: "x", Type: IntType,
			Init: &BinaryExpr{
				Op: OpDiv, Left: &IntLiteral{Value: 10}, Right: &IntLiteral{Value: 0},
				OperandType: IntType, ResultType: IntType,
			},
		},
	)
	_, it := runModule(t, mod)
	if it.State.ExecutionState != interp.Error {
		t.Fatalf("state = %v, want Error", it.State.ExecutionState)
	}
	if it.State.ErrorCode != tam.ZeroDivision {
		t.Fatalf("error code = %v, want ZeroDivision", it.State.ErrorCode)
	}
}

func TestMatrixMultiplicationOfIdentityPrintsIdentity(t *testing.T) {
	matType := MatrixType{Elem: IntType, Rows: 3, Cols: 3}

	assignElem := func(name string, row, col, value int) Statement {
		return &VariableAssignment{
			Target: MatrixLhsIdentifier{Name: name, Row: &IntLiteral{Value: row}, Col: &IntLiteral{Value: col}},
			Value:  &IntLiteral{Value: value},
		}
	}

	var body []Statement
	body = append(body, &VariableDeclaration{Name: "a", Type: matType})
	body = append(body, &VariableDeclaration{Name: "b", Type: matType})
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			v := 0
			if row == col {
				v = 1
			}
			body = append(body, assignElem("a", row, col, v), assignElem("b", row, col, v))
		}
	}
	body = append(body, &VariableDeclaration{
		Name: "c", Type: matType,
		Init: &MatrixMultiplication{
			Left: &Identifier{Name: "a", Typ: matType}, Right: &Identifier{Name: "b", Typ: matType},
			Rows: 3, Dim: 3, Cols: 3, ElemType: IntType,
		},
	})
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			body = append(body, printIntCall(&MatrixElementSelect{
				Name: "c", Row: &IntLiteral{Value: row}, Col: &IntLiteral{Value: col}, ElemType: IntType,
			}))
		}
		body = append(body, printLineCall())
	}

	mod := mainModule(body...)
	out, it := runModule(t, mod)
	requireHalted(t, it)
	if out != "100\n010\n001\n" {
		t.Fatalf("output = %q, want %q", out, "100\n010\n001\n")
	}
}

func TestDotProductOfTwoVectors(t *testing.T) {
	vecType := VectorType{Elem: IntType, Length: 3}
	assignElem := func(name string, idx, value int) Statement {
		return &VariableAssignment{
			Target: VectorLhsIdentifier{Name: name, Index: &IntLiteral{Value: idx}},
			Value:  &IntLiteral{Value: value},
		}
	}
	mod := mainModule(
		&VariableDeclaration{Name: "a", Type: vecType},
		&VariableDeclaration{Name: "b", Type: vecType},
		assignElem("a", 0, 1), assignElem("a", 1, 2), assignElem("a", 2, 3),
		assignElem("b", 0, 4), assignElem("b", 1, 5), assignElem("b", 2, 6),
		printIntCall(&DotProduct{
			Left: &Identifier{Name: "a", Typ: vecType}, Right: &Identifier{Name: "b", Typ: vecType},
			Length: 3, ElemType: IntType,
		}),
		printLineCall(),
	)
	out, it := runModule(t, mod)
	requireHalted(t, it)
	// 1*4 + 2*5 + 3*6 = 32
	if out != "32\n" {
		t.Fatalf("output = %q, want %q", out, "32\n")
	}
}
