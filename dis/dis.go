// Package dis supports analysis of npp bytecode by disassembling it.
// This works with the opcodes defined in the `op` package and walks chunks
// using the instruction widths reported by the `bytecode` package.
package dis

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/deepnoodle-ai/npp/bytecode"
	"github.com/deepnoodle-ai/npp/heap"
	"github.com/deepnoodle-ai/npp/op"
	"github.com/deepnoodle-ai/npp/value"
)

// Instruction represents a single bytecode instruction and its operands.
type Instruction struct {
	Offset     int
	Line       int
	Name       string
	Opcode     op.Code
	Operands   []op.Code
	Annotation string
	Constant   *value.Value
}

// Disassemble returns a parsed representation of the given chunk. Object
// constants are described using h.
func Disassemble(h *heap.Heap, chunk *bytecode.Chunk) ([]Instruction, error) {
	var instructions []Instruction
	for offset := 0; offset < len(chunk.Code); {
		code := chunk.Code[offset]
		info := op.GetInfo(code)
		if info.Name == "" {
			return nil, fmt.Errorf("unknown opcode %d at offset %d", code, offset)
		}
		width := chunk.Width(offset)
		operands := chunk.Code[offset+1 : offset+width]
		want := info.OperandCount
		if code == op.Closure && len(operands) >= 2 {
			want += 2 * int(operands[1])
		}
		if len(operands) < want {
			return nil, fmt.Errorf("truncated %s at offset %d", info.Name, offset)
		}
		instr := Instruction{
			Offset:   offset,
			Line:     chunk.LineAt(offset),
			Name:     info.Name,
			Opcode:   code,
			Operands: operands,
		}
		if err := annotate(h, chunk, &instr); err != nil {
			return nil, err
		}
		instructions = append(instructions, instr)
		offset += width
	}
	return instructions, nil
}

func annotate(h *heap.Heap, chunk *bytecode.Chunk, instr *Instruction) error {
	constant := func(index op.Code) (value.Value, error) {
		if int(index) >= len(chunk.Constants) {
			return value.Null(), fmt.Errorf("constant index out of range: %d", index)
		}
		return chunk.Constants[index], nil
	}
	ops := instr.Operands
	switch instr.Opcode {
	case op.Constant:
		c, err := constant(ops[0])
		if err != nil {
			return err
		}
		instr.Constant = &c
		instr.Annotation = describe(h, c)
	case op.GetGlobal, op.DefineGlobal, op.SetGlobal, op.GetProperty, op.SetProperty, op.Class, op.Method:
		c, err := constant(ops[0])
		if err != nil {
			return err
		}
		instr.Annotation = h.Format(c)
	case op.Invoke:
		c, err := constant(ops[0])
		if err != nil {
			return err
		}
		instr.Annotation = fmt.Sprintf("%s (%d args)", h.Format(c), ops[1])
	case op.GetLocal, op.SetLocal, op.GetUpvalue, op.SetUpvalue:
		instr.Annotation = fmt.Sprintf("slot %d", ops[0])
	case op.Jump, op.JumpIfFalse:
		instr.Annotation = fmt.Sprintf("-> %d", instr.Offset+2+int(ops[0]))
	case op.Loop:
		instr.Annotation = fmt.Sprintf("-> %d", instr.Offset+2-int(ops[0]))
	case op.Closure:
		c, err := constant(ops[0])
		if err != nil {
			return err
		}
		instr.Constant = &c
		captures := make([]string, 0, ops[1])
		for i := 2; i+1 < len(ops); i += 2 {
			kind := "upvalue"
			if ops[i] != 0 {
				kind = "local"
			}
			captures = append(captures, fmt.Sprintf("%s %d", kind, ops[i+1]))
		}
		instr.Annotation = describe(h, c)
		if len(captures) > 0 {
			instr.Annotation += " [" + strings.Join(captures, ", ") + "]"
		}
	}
	return nil
}

func describe(h *heap.Heap, v value.Value) string {
	if h.Is(v, heap.KindString) {
		return strconv.Quote(h.Text(v.AsRef()))
	}
	return h.Format(v)
}

var (
	bold    = color.New(color.Bold).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	green   = color.New(color.FgGreen).SprintFunc()
	magenta = color.New(color.FgMagenta).SprintFunc()
	cyan    = color.New(color.FgHiCyan).SprintFunc()
)

// Print a string representation of the given instructions to the given
// writer. Colors follow color.NoColor.
func Print(h *heap.Heap, instructions []Instruction, writer io.Writer) error {
	t := newTable(writer).
		withHeader(
			[]string{"OFFSET", "LINE", "OPCODE", "OPERANDS", "INFO"},
			[]Alignment{AlignCenter, AlignCenter, AlignCenter, AlignCenter, AlignCenter},
		).
		withColumnAlignment([]Alignment{AlignRight, AlignRight, AlignLeft, AlignRight, AlignLeft})
	prevLine := -1
	for _, instr := range instructions {
		line := strconv.Itoa(instr.Line)
		if instr.Line == prevLine {
			line = "|"
		}
		prevLine = instr.Line
		t.append([]string{
			strconv.Itoa(instr.Offset),
			line,
			bold(instr.Name),
			formatOperands(instr.Operands),
			info(h, instr),
		})
	}
	return t.render()
}

func info(h *heap.Heap, instr Instruction) string {
	if instr.Constant == nil {
		if instr.Annotation == "" {
			return ""
		}
		return cyan(instr.Annotation)
	}
	c := *instr.Constant
	switch {
	case c.IsNumber():
		return yellow(instr.Annotation)
	case h.Is(c, heap.KindString):
		s := instr.Annotation
		if len(s) > 80 {
			s = s[:77] + "..."
		}
		return green(s)
	case h.Is(c, heap.KindFunction):
		return magenta(instr.Annotation)
	default:
		return bold(instr.Annotation)
	}
}

func formatOperands(ops []op.Code) string {
	var sb strings.Builder
	for i, op := range ops {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Itoa(int(op)))
	}
	return sb.String()
}

// PrintFunction disassembles fn and every function reachable through its
// constants, each under a "== name ==" heading.
func PrintFunction(writer io.Writer, h *heap.Heap, fn value.Ref) error {
	seen := map[value.Ref]bool{}
	queue := []value.Ref{fn}
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		if seen[ref] {
			continue
		}
		seen[ref] = true
		f := heap.MustAs[*heap.Function](h, ref)
		if len(seen) > 1 {
			fmt.Fprintln(writer)
		}
		fmt.Fprintf(writer, "== %s ==\n", h.FunctionName(f))
		instructions, err := Disassemble(h, f.Chunk)
		if err != nil {
			return fmt.Errorf("%s: %w", h.FunctionName(f), err)
		}
		if err := Print(h, instructions, writer); err != nil {
			return err
		}
		for _, c := range f.Chunk.Constants {
			if h.Is(c, heap.KindFunction) {
				queue = append(queue, c.AsRef())
			}
		}
	}
	return nil
}
