package interp

import (
	"math"

	"github.com/tamlang/tamvm/tam"
)

// callPrimitive runs a built-in operation: pops its arguments from the
// stack, computes the result, and pushes it. Called by the dispatcher once
// a CALL target resolves into the primitive address region.
func (it *Interpreter) callPrimitive(prim tam.Primitive) error {
	switch prim {
	case tam.PrimNop:
		return nil
	case tam.PrimErr:
		return it.primErr()

	case tam.PrimNot:
		return it.unaryBool(func(b bool) bool { return !b })
	case tam.PrimAnd:
		return it.binaryBool(func(a, b bool) bool { return a && b })
	case tam.PrimOr:
		return it.binaryBool(func(a, b bool) bool { return a || b })

	case tam.PrimSucc:
		return it.incDecTagged(1)
	case tam.PrimPred:
		return it.incDecTagged(-1)

	case tam.PrimNegI:
		return it.unaryInt(func(a int) int { return -a })
	case tam.PrimAddI:
		return it.addITagPropagating()
	case tam.PrimSubI:
		return it.binaryInt(func(a, b int) int { return a - b })
	case tam.PrimMulI:
		return it.binaryInt(func(a, b int) int { return a * b })
	case tam.PrimDivI:
		return it.binaryIntDiv(func(a, b int) int { return a / b })
	case tam.PrimModI:
		return it.binaryIntDiv(func(a, b int) int { return a % b })

	case tam.PrimEqI:
		return it.compareInt(func(a, b int) bool { return a == b })
	case tam.PrimNeI:
		return it.compareInt(func(a, b int) bool { return a != b })
	case tam.PrimLtI:
		return it.compareInt(func(a, b int) bool { return a < b })
	case tam.PrimLeI:
		return it.compareInt(func(a, b int) bool { return a <= b })
	case tam.PrimGtI:
		return it.compareInt(func(a, b int) bool { return a > b })
	case tam.PrimGeI:
		return it.compareInt(func(a, b int) bool { return a >= b })

	case tam.PrimNegF:
		return it.unaryFloat(func(a float32) float32 { return -a })
	case tam.PrimAddF:
		return it.binaryFloat(func(a, b float32) float32 { return a + b })
	case tam.PrimSubF:
		return it.binaryFloat(func(a, b float32) float32 { return a - b })
	case tam.PrimMulF:
		return it.binaryFloat(func(a, b float32) float32 { return a * b })
	case tam.PrimDivF:
		return it.binaryFloatDiv()

	case tam.PrimEqF:
		return it.compareFloat(func(a, b float32) bool { return a == b })
	case tam.PrimNeF:
		return it.compareFloat(func(a, b float32) bool { return a != b })
	case tam.PrimLtF:
		return it.compareFloat(func(a, b float32) bool { return a < b })
	case tam.PrimLeF:
		return it.compareFloat(func(a, b float32) bool { return a <= b })
	case tam.PrimGtF:
		return it.compareFloat(func(a, b float32) bool { return a > b })
	case tam.PrimGeF:
		return it.compareFloat(func(a, b float32) bool { return a >= b })

	case tam.PrimReadImage, tam.PrimWriteImage:
		return tam.NewError(tam.InternalError, "primitive not implemented")

	case tam.PrimReadIM64:
		return it.readIntMatrix(64, 64)
	case tam.PrimReadIM16:
		return it.readIntMatrix(16, 16)
	case tam.PrimReadIM9:
		return it.readIntMatrix(9, 9)
	case tam.PrimWriteIM64:
		return it.writeIntMatrix(64, 64)
	case tam.PrimWriteIM16:
		return it.writeIntMatrix(16, 16)
	case tam.PrimWriteIM9:
		return it.writeIntMatrix(9, 9)

	case tam.PrimReadFM64:
		return it.readFloatMatrix(64, 64)
	case tam.PrimReadFM16:
		return it.readFloatMatrix(16, 16)
	case tam.PrimReadFM9:
		return it.readFloatMatrix(9, 9)
	case tam.PrimWriteFM64:
		return it.writeFloatMatrix(64, 64)
	case tam.PrimWriteFM16:
		return it.writeFloatMatrix(16, 16)
	case tam.PrimWriteFM9:
		return it.writeFloatMatrix(9, 9)

	case tam.PrimPowInt:
		return it.powInt()
	case tam.PrimPowFloat:
		return it.powFloat()
	case tam.PrimSqrtInt:
		return it.unaryInt(func(a int) int { return int(math.Sqrt(float64(a))) })
	case tam.PrimSqrtFloat:
		return it.unaryFloat(func(a float32) float32 { return float32(math.Sqrt(float64(a))) })

	case tam.PrimPrintInt:
		return it.printInt()
	case tam.PrimPrintFloat:
		return it.printFloat()
	case tam.PrimPrintBool:
		return it.printBool()
	case tam.PrimPrintString:
		return it.printString()
	case tam.PrimPrintLine:
		return it.printLine()

	case tam.PrimReadInt:
		return it.readInt()
	case tam.PrimReadFloat:
		return it.readFloat()
	case tam.PrimReadBool:
		return it.readBool()

	case tam.PrimInt2Float:
		return it.int2float()
	case tam.PrimFloat2Int:
		return it.float2int()

	case tam.PrimMatMulI:
		return it.matMulInt()
	case tam.PrimMatMulF:
		return it.matMulFloat()
	case tam.PrimMatTranspose:
		return it.matTranspose()

	default:
		return tam.NewError(tam.InternalError, "unhandled primitive")
	}
}

func (it *Interpreter) primErr() error {
	idVal, err := it.State.PopStack()
	if err != nil {
		return err
	}
	id, err := idVal.AsInt()
	if err != nil {
		return err
	}
	msg, err := it.Image.GetString(id)
	if err != nil {
		return err
	}
	return tam.NewError(tam.RuntimeError, msg)
}

// --- arithmetic helpers -----------------------------------------------

func (it *Interpreter) popInt() (int, error) {
	v, err := it.State.PopStack()
	if err != nil {
		return 0, err
	}
	return v.AsInt()
}

func (it *Interpreter) popFloat() (float32, error) {
	v, err := it.State.PopStack()
	if err != nil {
		return 0, err
	}
	return v.AsFloat()
}

func (it *Interpreter) popBool() (bool, error) {
	v, err := it.State.PopStack()
	if err != nil {
		return false, err
	}
	return v.AsBool()
}

func (it *Interpreter) unaryInt(f func(int) int) error {
	a, err := it.popInt()
	if err != nil {
		return err
	}
	return it.State.PushStack(tam.IntValue(f(a)))
}

func (it *Interpreter) unaryFloat(f func(float32) float32) error {
	a, err := it.popFloat()
	if err != nil {
		return err
	}
	return it.State.PushStack(tam.FloatValueFromFloat32(f(a)))
}

func (it *Interpreter) unaryBool(f func(bool) bool) error {
	a, err := it.popBool()
	if err != nil {
		return err
	}
	return it.State.PushStack(boolValue(f(a)))
}

// binaryInt pops b (top) then a, computes f(a, b) — matching "divides the
// lower one by the upper one" wording: a is the lower (pushed first), b is
// the upper (pushed last, popped first).
func (it *Interpreter) binaryInt(f func(a, b int) int) error {
	b, err := it.popInt()
	if err != nil {
		return err
	}
	a, err := it.popInt()
	if err != nil {
		return err
	}
	return it.State.PushStack(tam.IntValue(f(a, b)))
}

func (it *Interpreter) binaryIntDiv(f func(a, b int) int) error {
	b, err := it.popInt()
	if err != nil {
		return err
	}
	a, err := it.popInt()
	if err != nil {
		return err
	}
	if b == 0 {
		return tam.NewError(tam.ZeroDivision, "division by zero")
	}
	return it.State.PushStack(tam.IntValue(f(a, b)))
}

func (it *Interpreter) binaryFloat(f func(a, b float32) float32) error {
	b, err := it.popFloat()
	if err != nil {
		return err
	}
	a, err := it.popFloat()
	if err != nil {
		return err
	}
	return it.State.PushStack(tam.FloatValueFromFloat32(f(a, b)))
}

func (it *Interpreter) binaryFloatDiv() error {
	b, err := it.popFloat()
	if err != nil {
		return err
	}
	a, err := it.popFloat()
	if err != nil {
		return err
	}
	if b == 0 {
		return tam.NewError(tam.ZeroDivision, "division by zero")
	}
	return it.State.PushStack(tam.FloatValueFromFloat32(a / b))
}

func (it *Interpreter) binaryBool(f func(a, b bool) bool) error {
	b, err := it.popBool()
	if err != nil {
		return err
	}
	a, err := it.popBool()
	if err != nil {
		return err
	}
	return it.State.PushStack(boolValue(f(a, b)))
}

func (it *Interpreter) compareInt(f func(a, b int) bool) error {
	b, err := it.popInt()
	if err != nil {
		return err
	}
	a, err := it.popInt()
	if err != nil {
		return err
	}
	return it.State.PushStack(boolValue(f(a, b)))
}

func (it *Interpreter) compareFloat(f func(a, b float32) bool) error {
	b, err := it.popFloat()
	if err != nil {
		return err
	}
	a, err := it.popFloat()
	if err != nil {
		return err
	}
	return it.State.PushStack(boolValue(f(a, b)))
}

func boolValue(b bool) tam.Value {
	if b {
		return tam.BoolValue(1)
	}
	return tam.BoolValue(0)
}

// incDecTagged implements succ/pred: the operand's tag (int, codeAddr or
// stackAddr) is preserved on the result, which is what lets succ/pred do
// address arithmetic for the code generator's offset computations.
func (it *Interpreter) incDecTagged(delta int32) error {
	v, err := it.State.PopStack()
	if err != nil {
		return err
	}
	return it.State.PushStack(tam.Value{Bits: v.Bits + delta, Tag: v.Tag})
}

// addITagPropagating implements addI: if either operand carries an address
// tag the result carries that tag (symmetric in argument order); otherwise
// the result is a plain int.
func (it *Interpreter) addITagPropagating() error {
	b, err := it.State.PopStack()
	if err != nil {
		return err
	}
	a, err := it.State.PopStack()
	if err != nil {
		return err
	}
	if _, err := a.AsInt(); err != nil {
		return err
	}
	if _, err := b.AsInt(); err != nil {
		return err
	}
	tag := tam.TypeInt
	if a.IsAddr() {
		tag = a.Tag
	} else if b.IsAddr() {
		tag = b.Tag
	}
	return it.State.PushStack(tam.Value{Bits: a.Bits + b.Bits, Tag: tag})
}

func (it *Interpreter) powInt() error {
	e, err := it.popInt()
	if err != nil {
		return err
	}
	b, err := it.popInt()
	if err != nil {
		return err
	}
	result := 1
	for i := 0; i < e; i++ {
		result *= b
	}
	return it.State.PushStack(tam.IntValue(result))
}

func (it *Interpreter) powFloat() error {
	e, err := it.popFloat()
	if err != nil {
		return err
	}
	b, err := it.popFloat()
	if err != nil {
		return err
	}
	return it.State.PushStack(tam.FloatValueFromFloat32(float32(math.Pow(float64(b), float64(e)))))
}

func (it *Interpreter) int2float() error {
	a, err := it.popInt()
	if err != nil {
		return err
	}
	return it.State.PushStack(tam.FloatValueFromFloat32(float32(a)))
}

func (it *Interpreter) float2int() error {
	a, err := it.popFloat()
	if err != nil {
		return err
	}
	return it.State.PushStack(tam.IntValue(int(a)))
}
