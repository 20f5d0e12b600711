package tam

import (
	"bytes"
	"fmt"
	"io"
)

// Image is a finalized, executable TAM program: a dense instruction array
// (address = index) plus an interned string pool (id = index). Once built
// by the assembler the instruction vector and string pool are frozen; the
// only mutable part of a loaded image is each instruction's BreakPoint
// debug symbol.
type Image struct {
	Instructions []Instruction
	Strings      []string
}

// GetInstruction fetches the instruction at addr, bounds-checked against
// the instruction array.
func (img *Image) GetInstruction(addr int) (Instruction, error) {
	if addr < 0 || addr >= len(img.Instructions) {
		return Instruction{}, NewError(InvalidAddress, "invalid code address")
	}
	return img.Instructions[addr], nil
}

// GetString fetches the interned string with the given pool id, bounds-
// checked against the string pool (not the instruction array — the Java
// reference this was ported from bounds-checks string lookups against the
// instruction count instead, which looks like a copy-paste slip rather than
// an intentional invariant; fixed here).
func (img *Image) GetString(id int) (string, error) {
	if id < 0 || id >= len(img.Strings) {
		return "", NewError(InvalidAddress, "invalid string constant id")
	}
	return img.Strings[id], nil
}

// Save writes the instruction array and string pool in the binary format:
// instruction count, that many (opcode, register-id, n, d) quadruples,
// string count, that many 16-bit-length-prefixed strings. Debug symbols are
// never part of this stream; see SaveSymbols.
func (img *Image) Save(w io.Writer) error {
	if err := writeInt32(w, int32(len(img.Instructions))); err != nil {
		return err
	}
	for _, inst := range img.Instructions {
		regID := 0
		if inst.HasReg {
			regID = int(inst.Register)
		}
		if err := writeInt32(w, int32(inst.Op)); err != nil {
			return err
		}
		if err := writeInt32(w, int32(regID)); err != nil {
			return err
		}
		if err := writeInt32(w, int32(inst.N)); err != nil {
			return err
		}
		if err := writeInt32(w, int32(inst.D)); err != nil {
			return err
		}
	}
	if err := writeInt32(w, int32(len(img.Strings))); err != nil {
		return err
	}
	for _, s := range img.Strings {
		if err := writeUTF(w, s); err != nil {
			return err
		}
	}
	return nil
}

// Load reads an Image back from the binary format produced by Save.
func Load(r io.Reader) (*Image, error) {
	count, err := readInt32(r)
	if err != nil {
		return nil, fmt.Errorf("tam: read instruction count: %w", err)
	}
	instructions := make([]Instruction, count)
	for i := range instructions {
		opID, err := readInt32(r)
		if err != nil {
			return nil, fmt.Errorf("tam: read instruction %d: %w", i, err)
		}
		regID, err := readInt32(r)
		if err != nil {
			return nil, fmt.Errorf("tam: read instruction %d: %w", i, err)
		}
		n, err := readInt32(r)
		if err != nil {
			return nil, fmt.Errorf("tam: read instruction %d: %w", i, err)
		}
		d, err := readInt32(r)
		if err != nil {
			return nil, fmt.Errorf("tam: read instruction %d: %w", i, err)
		}
		op, err := OpcodeFromID(int(opID))
		if err != nil {
			return nil, err
		}
		inst := Instruction{Op: op, N: int(n), D: int(d)}
		if op.Info().HasR {
			reg, ok := RegisterFromID(int(regID))
			if !ok {
				return nil, NewError(MalformedInstruction, "invalid register id")
			}
			inst.Register = reg
			inst.HasReg = true
		}
		instructions[i] = inst
	}

	strCount, err := readInt32(r)
	if err != nil {
		return nil, fmt.Errorf("tam: read string pool count: %w", err)
	}
	strings := make([]string, strCount)
	for i := range strings {
		s, err := readUTF(r)
		if err != nil {
			return nil, fmt.Errorf("tam: read string constant %d: %w", i, err)
		}
		strings[i] = s
	}
	return &Image{Instructions: instructions, Strings: strings}, nil
}

// SaveSymbols writes the debug-symbol sidecar: a count of instructions
// carrying symbols, then per instruction its index, its symbol count, and
// the symbols themselves. BreakPoint symbols are never persisted.
func (img *Image) SaveSymbols(w io.Writer) error {
	type group struct {
		idx  int
		syms []DebugSymbol
	}
	var groups []group
	for i, inst := range img.Instructions {
		var persisted []DebugSymbol
		for _, s := range inst.Debug {
			if s.Kind != SymbolBreakPoint {
				persisted = append(persisted, s)
			}
		}
		if len(persisted) > 0 {
			groups = append(groups, group{idx: i, syms: persisted})
		}
	}
	if err := writeInt32(w, int32(len(groups))); err != nil {
		return err
	}
	for _, g := range groups {
		if err := writeInt32(w, int32(g.idx)); err != nil {
			return err
		}
		if err := writeInt32(w, int32(len(g.syms))); err != nil {
			return err
		}
		for _, s := range g.syms {
			if err := writeSymbol(w, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeSymbol(w io.Writer, s DebugSymbol) error {
	if err := writeInt32(w, int32(s.Kind)); err != nil {
		return err
	}
	switch s.Kind {
	case SymbolName, SymbolLabel:
		return writeUTF(w, s.Text)
	case SymbolComment:
		if err := writeUTF(w, s.Text); err != nil {
			return err
		}
		b := int32(0)
		if s.ShowInDisasm {
			b = 1
		}
		return writeInt32(w, b)
	case SymbolLocation:
		if err := writeInt32(w, int32(s.Location.Line)); err != nil {
			return err
		}
		return writeInt32(w, int32(s.Location.Col))
	case SymbolType:
		return writeInt32(w, int32(s.Type))
	default:
		return NewError(InternalError, "unexpected persisted symbol kind")
	}
}

func readSymbol(r io.Reader) (DebugSymbol, error) {
	kindID, err := readInt32(r)
	if err != nil {
		return DebugSymbol{}, err
	}
	kind := SymbolKind(kindID)
	switch kind {
	case SymbolName, SymbolLabel:
		text, err := readUTF(r)
		if err != nil {
			return DebugSymbol{}, err
		}
		return DebugSymbol{Kind: kind, Text: text}, nil
	case SymbolComment:
		text, err := readUTF(r)
		if err != nil {
			return DebugSymbol{}, err
		}
		show, err := readInt32(r)
		if err != nil {
			return DebugSymbol{}, err
		}
		return DebugSymbol{Kind: kind, Text: text, ShowInDisasm: show != 0}, nil
	case SymbolLocation:
		line, err := readInt32(r)
		if err != nil {
			return DebugSymbol{}, err
		}
		col, err := readInt32(r)
		if err != nil {
			return DebugSymbol{}, err
		}
		return DebugSymbol{Kind: kind, Location: SourceLocation{Line: int(line), Col: int(col)}}, nil
	case SymbolType:
		t, err := readInt32(r)
		if err != nil {
			return DebugSymbol{}, err
		}
		return DebugSymbol{Kind: kind, Type: TypeFromID(int(t))}, nil
	default:
		return DebugSymbol{}, NewError(MalformedInstruction, "invalid debug symbol kind")
	}
}

// LoadSymbols reads the sidecar format written by SaveSymbols, attaching
// the decoded symbols onto img's instructions. Any existing debug symbols
// are cleared first.
func (img *Image) LoadSymbols(r io.Reader) error {
	for i := range img.Instructions {
		img.Instructions[i].Debug = nil
	}
	groupCount, err := readInt32(r)
	if err != nil {
		return fmt.Errorf("tam: read symbol group count: %w", err)
	}
	for g := int32(0); g < groupCount; g++ {
		idx, err := readInt32(r)
		if err != nil {
			return fmt.Errorf("tam: read symbol group index: %w", err)
		}
		symCount, err := readInt32(r)
		if err != nil {
			return fmt.Errorf("tam: read symbol count: %w", err)
		}
		if int(idx) < 0 || int(idx) >= len(img.Instructions) {
			return NewError(MalformedInstruction, "symbol group references out-of-range instruction")
		}
		for s := int32(0); s < symCount; s++ {
			sym, err := readSymbol(r)
			if err != nil {
				return fmt.Errorf("tam: read symbol: %w", err)
			}
			img.Instructions[idx].Debug = append(img.Instructions[idx].Debug, sym)
		}
	}
	return nil
}

// DisassemblyLineKind distinguishes the three kinds of disassembly output.
type DisassemblyLineKind int

const (
	LineComment DisassemblyLineKind = iota
	LineLabel
	LineInstruction
)

// DisassemblyLine is one line of the derived, read-only disassembly view.
type DisassemblyLine struct {
	Kind    DisassemblyLineKind
	Address int // valid for LineInstruction
	Text    string
}

// Disassembly renders the image as a sequence of comment/label/instruction
// lines. Labels attached to an instruction precede it and are preceded by a
// blank line; CALL PB,_,d is rendered with the primitive's name instead of
// its raw displacement unless explicitPrimitiveCalls is set.
func (img *Image) Disassembly(explicitPrimitiveCalls bool) []DisassemblyLine {
	var lines []DisassemblyLine
	for addr, inst := range img.Instructions {
		for _, c := range inst.Debug.Comments() {
			lines = append(lines, DisassemblyLine{Kind: LineComment, Text: c})
		}
		for _, l := range inst.Debug.Labels() {
			lines = append(lines, DisassemblyLine{Kind: LineComment, Text: ""})
			lines = append(lines, DisassemblyLine{Kind: LineLabel, Text: l})
		}
		lines = append(lines, DisassemblyLine{
			Kind:    LineInstruction,
			Address: addr,
			Text:    img.disassembleOne(inst, explicitPrimitiveCalls),
		})
	}
	return lines
}

func (img *Image) disassembleOne(inst Instruction, explicitPrimitiveCalls bool) string {
	if !explicitPrimitiveCalls && inst.Op == OpCALL && inst.HasReg && inst.Register == PB {
		if prim, err := PrimitiveFromDisplacement(inst.D); err == nil {
			return fmt.Sprintf("CALL (primitive %s)", prim)
		}
	}
	info := inst.Op.Info()
	var b bytes.Buffer
	b.WriteString(inst.Op.String())
	if info.HasR && inst.HasReg {
		fmt.Fprintf(&b, " %s", inst.Register)
	}
	if info.HasN {
		fmt.Fprintf(&b, " %d", inst.N)
	}
	if info.HasD {
		fmt.Fprintf(&b, " %d", inst.D)
	}
	return b.String()
}

// String renders the full disassembly as human-readable text, teacher-repo
// style (vm/bytecode.go's Disassemble).
func (img *Image) String() string {
	var b bytes.Buffer
	for _, line := range img.Disassembly(false) {
		switch line.Kind {
		case LineComment:
			if line.Text != "" {
				fmt.Fprintf(&b, "; %s\n", line.Text)
			} else {
				b.WriteString("\n")
			}
		case LineLabel:
			fmt.Fprintf(&b, "%s:\n", line.Text)
		case LineInstruction:
			fmt.Fprintf(&b, "%6d  %s\n", line.Address, line.Text)
		}
	}
	return b.String()
}
