package interp

import (
	"fmt"
	"strings"

	"github.com/tamlang/tamvm/tam"
)

// Profiler is a plain, single-threaded counters record: every register
// read/write, every executed opcode, every executed primitive, and every
// memory read/write/copy/zero increments a counter here. It is not a
// hotness profiler driving JIT decisions — there is no JIT in this VM — it
// exists purely to let a caller print a usage report after a run.
type Profiler struct {
	regRead  [tam.RegisterCount]int
	regWrite [tam.RegisterCount]int
	opExec   [tam.OpcodeCount]int
	primExec [tam.PrimitiveCount]int

	memRead  int
	memWrite int
	memCopy  int
	memZero  int
}

// NewProfiler returns a zeroed counters record.
func NewProfiler() *Profiler { return &Profiler{} }

func (p *Profiler) RegRead(r tam.Register)    { p.regRead[r]++ }
func (p *Profiler) RegWrite(r tam.Register)   { p.regWrite[r]++ }
func (p *Profiler) ExecOp(op tam.Opcode)      { p.opExec[op]++ }
func (p *Profiler) ExecPrimitive(pr tam.Primitive) { p.primExec[pr]++ }
func (p *Profiler) MemRead()                  { p.memRead++ }
func (p *Profiler) MemWrite()                 { p.memWrite++ }
func (p *Profiler) MemCopy()                  { p.memCopy++ }
func (p *Profiler) MemZero()                  { p.memZero++ }

// appendNumber renders a counter padded to a fixed column width: zero
// prints as "-", anything above 9999 prints as ">9999" so the report stays
// aligned regardless of how hot a counter got.
func appendNumber(b *strings.Builder, n int) {
	switch {
	case n == 0:
		fmt.Fprintf(b, "%6s", "-")
	case n > 9999:
		fmt.Fprintf(b, "%6s", ">9999")
	default:
		fmt.Fprintf(b, "%6d", n)
	}
}

// Report renders a human-readable dump of every counter. compact omits
// zero-valued rows entirely instead of printing them as "-".
func (p *Profiler) Report(compact bool) string {
	var b strings.Builder
	b.WriteString("registers (read/write):\n")
	for r := tam.Register(0); r < tam.RegisterCount; r++ {
		if compact && p.regRead[r] == 0 && p.regWrite[r] == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %-4s", r)
		appendNumber(&b, p.regRead[r])
		appendNumber(&b, p.regWrite[r])
		b.WriteString("\n")
	}
	b.WriteString("opcodes:\n")
	for op := tam.Opcode(0); op < tam.OpcodeCount; op++ {
		if compact && p.opExec[op] == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %-8s", op)
		appendNumber(&b, p.opExec[op])
		b.WriteString("\n")
	}
	b.WriteString("primitives:\n")
	for pr := tam.Primitive(0); pr < tam.PrimitiveCount; pr++ {
		if compact && p.primExec[pr] == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %-14s", pr)
		appendNumber(&b, p.primExec[pr])
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "memory: reads=%d writes=%d copies=%d zeros=%d\n", p.memRead, p.memWrite, p.memCopy, p.memZero)
	return b.String()
}
