package tam

// SymbolKind enumerates the variants a DebugSymbol can carry. Ids match the
// kind id the sidecar wire format writes (as a 32-bit int) before each
// symbol's payload.
type SymbolKind int

const (
	SymbolComment SymbolKind = iota + 1
	SymbolLocation
	SymbolType
	SymbolName
	SymbolLabel
	SymbolBreakPoint
)

// SourceLocation is a line/column pair into MAVL source; the zero value
// means "unknown", matching Location's default when no symbol is present.
type SourceLocation struct {
	Line, Col int
}

// DebugSymbol is a tagged variant attached to an Instruction. Only one
// payload field is meaningful per Kind.
type DebugSymbol struct {
	Kind          SymbolKind
	Text          string         // Comment, Name, Label
	ShowInDisasm  bool           // Comment only
	Location      SourceLocation // Location only
	Type          Type           // Type only
}

// DebugSymbolContainer holds every symbol attached to one instruction, in
// attachment order. Lookups for Type/Location are "last wins": the
// container is scanned in full and each matching entry overwrites the
// previous candidate, so the most recently attached symbol of a kind is the
// one returned. This matches the Java reference's DebugSymbolContainer
// exactly, and is relied on by the assembler attaching a fresh Location to
// every instruction as it visits AST nodes.
type DebugSymbolContainer []DebugSymbol

func (c *DebugSymbolContainer) add(s DebugSymbol) { *c = append(*c, s) }

// AddComment appends a Comment symbol and returns the container for chaining.
func (c *DebugSymbolContainer) AddComment(text string, showInDisasm bool) *DebugSymbolContainer {
	c.add(DebugSymbol{Kind: SymbolComment, Text: text, ShowInDisasm: showInDisasm})
	return c
}

// AddLocation appends a Location symbol.
func (c *DebugSymbolContainer) AddLocation(loc SourceLocation) *DebugSymbolContainer {
	c.add(DebugSymbol{Kind: SymbolLocation, Location: loc})
	return c
}

// AddType appends a Type symbol.
func (c *DebugSymbolContainer) AddType(t Type) *DebugSymbolContainer {
	c.add(DebugSymbol{Kind: SymbolType, Type: t})
	return c
}

// AddName appends a Name symbol.
func (c *DebugSymbolContainer) AddName(name string) *DebugSymbolContainer {
	c.add(DebugSymbol{Kind: SymbolName, Text: name})
	return c
}

// AddLabel appends a Label symbol.
func (c *DebugSymbolContainer) AddLabel(label string) *DebugSymbolContainer {
	c.add(DebugSymbol{Kind: SymbolLabel, Text: label})
	return c
}

// AddBreakPoint idempotently marks the instruction as breakpointed: adding
// a second breakpoint to an already-breakpointed instruction is a no-op.
func (c *DebugSymbolContainer) AddBreakPoint() *DebugSymbolContainer {
	if !c.HasBreakPoint() {
		c.add(DebugSymbol{Kind: SymbolBreakPoint})
	}
	return c
}

// RemoveBreakPoint drops any BreakPoint symbol from the container.
func (c *DebugSymbolContainer) RemoveBreakPoint() {
	out := (*c)[:0]
	for _, s := range *c {
		if s.Kind != SymbolBreakPoint {
			out = append(out, s)
		}
	}
	*c = out
}

// HasBreakPoint reports whether the instruction is currently breakpointed.
func (c DebugSymbolContainer) HasBreakPoint() bool {
	for _, s := range c {
		if s.Kind == SymbolBreakPoint {
			return true
		}
	}
	return false
}

// GetType scans the whole container and returns the last attached Type
// symbol's value, or TypeUnknown if none is present.
func (c DebugSymbolContainer) GetType() Type {
	result := TypeUnknown
	for _, s := range c {
		if s.Kind == SymbolType {
			result = s.Type
		}
	}
	return result
}

// GetLocation scans the whole container and returns the last attached
// Location symbol's value, or the zero SourceLocation if none is present.
func (c DebugSymbolContainer) GetLocation() SourceLocation {
	var result SourceLocation
	for _, s := range c {
		if s.Kind == SymbolLocation {
			result = s.Location
		}
	}
	return result
}

// Comments returns every Comment symbol marked to show in the disassembly
// view, in attachment order.
func (c DebugSymbolContainer) Comments() []string {
	var out []string
	for _, s := range c {
		if s.Kind == SymbolComment && s.ShowInDisasm {
			out = append(out, s.Text)
		}
	}
	return out
}

// Labels returns every Label symbol attached, in attachment order.
func (c DebugSymbolContainer) Labels() []string {
	var out []string
	for _, s := range c {
		if s.Kind == SymbolLabel {
			out = append(out, s.Text)
		}
	}
	return out
}

// Name returns the last attached Name symbol, or "" if none is present.
func (c DebugSymbolContainer) Name() string {
	result := ""
	for _, s := range c {
		if s.Kind == SymbolName {
			result = s.Text
		}
	}
	return result
}

// AddAll appends every symbol from other, in order — used by the assembler
// to drain a staging container onto the next emitted instruction.
func (c *DebugSymbolContainer) AddAll(other DebugSymbolContainer) {
	*c = append(*c, other...)
}
