package tam

import "testing"

func TestIntValueRoundTrip(t *testing.T) {
	v := IntValue(42)
	got, err := v.AsInt()
	if err != nil {
		t.Fatalf("AsInt: %v", err)
	}
	if got != 42 {
		t.Fatalf("AsInt() = %d, want 42", got)
	}
}

func TestFloatValueRoundTrip(t *testing.T) {
	v := FloatValueFromFloat32(3.5)
	got, err := v.AsFloat()
	if err != nil {
		t.Fatalf("AsFloat: %v", err)
	}
	if got != 3.5 {
		t.Fatalf("AsFloat() = %v, want 3.5", got)
	}
}

func TestBoolValueRoundTrip(t *testing.T) {
	v := BoolValue(1)
	got, err := v.AsBool()
	if err != nil {
		t.Fatalf("AsBool: %v", err)
	}
	if !got {
		t.Fatalf("AsBool() = false, want true")
	}
}

func TestAsFloatRejectsIntTag(t *testing.T) {
	v := IntValue(1)
	if _, err := v.AsFloat(); err == nil {
		t.Fatalf("AsFloat on an int-tagged value should raise TypeMismatch")
	}
}

func TestAsIntAcceptsAddressTags(t *testing.T) {
	for _, v := range []Value{CodeAddr(3), StackAddr(3), BoolValue(0), StringValue(3)} {
		if _, err := v.AsInt(); err != nil {
			t.Fatalf("AsInt() on %+v should succeed: %v", v, err)
		}
	}
}

func TestUnknownTagBypassesChecks(t *testing.T) {
	v := Typed(TypeUnknown, 7)
	if _, err := v.AsInt(); err != nil {
		t.Fatalf("AsInt on unknown: %v", err)
	}
	if _, err := v.AsFloat(); err != nil {
		t.Fatalf("AsFloat on unknown: %v", err)
	}
	if _, err := v.AsBool(); err != nil {
		t.Fatalf("AsBool on unknown: %v", err)
	}
}

func TestWithTagPreservesBits(t *testing.T) {
	v := IntValue(9).WithTag(TypeCodeAddr)
	if v.Tag != TypeCodeAddr || v.Bits != 9 {
		t.Fatalf("WithTag = %+v, want {9 codeAddr}", v)
	}
}

func TestRegisterClassification(t *testing.T) {
	code := []Register{CB, CT, PB, PT, CP}
	stack := []Register{SB, ST, LB}
	for _, r := range code {
		if !r.IsCodeRegister() {
			t.Errorf("%v should classify as a code register", r)
		}
	}
	for _, r := range stack {
		if r.IsCodeRegister() {
			t.Errorf("%v should classify as a stack register", r)
		}
	}
}

func TestPrimitiveDisplacementsAreDenseAndOrdered(t *testing.T) {
	if PrimitiveCount != 61 {
		t.Fatalf("PrimitiveCount = %d, want 61", PrimitiveCount)
	}
	for i := 0; i < int(PrimitiveCount); i++ {
		p := Primitive(i)
		if p.Displacement() != i {
			t.Fatalf("primitive %d has displacement %d", i, p.Displacement())
		}
		if _, err := PrimitiveFromDisplacement(i); err != nil {
			t.Fatalf("PrimitiveFromDisplacement(%d): %v", i, err)
		}
	}
	if _, err := PrimitiveFromDisplacement(61); err == nil {
		t.Fatalf("displacement 61 should be out of range")
	}
}

func TestOpcodeFieldTable(t *testing.T) {
	cases := []struct {
		op             Opcode
		hasN, hasD, hasR bool
	}{
		{OpLOAD, true, true, true},
		{OpLOADA, false, true, true},
		{OpLOADI, true, false, false},
		{OpLOADL, false, true, false},
		{OpSTORE, true, true, true},
		{OpSTOREI, true, false, false},
		{OpCALL, false, true, true},
		{OpCALLI, false, false, false},
		{OpRETURN, true, true, false},
		{OpPUSH, false, true, false},
		{OpPOP, true, true, false},
		{OpJUMP, false, true, true},
		{OpJUMPI, false, false, false},
		{OpJUMPIF, true, true, true},
		{OpHALT, false, false, false},
	}
	for _, c := range cases {
		info := c.op.Info()
		if info.HasN != c.hasN || info.HasD != c.hasD || info.HasR != c.hasR {
			t.Errorf("%v: got {%v %v %v}, want {%v %v %v}", c.op, info.HasN, info.HasD, info.HasR, c.hasN, c.hasD, c.hasR)
		}
	}
}
