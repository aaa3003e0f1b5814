package bytecode

import (
	"github.com/deepnoodle-ai/npp/op"
	"github.com/deepnoodle-ai/npp/value"
)

// Chunk is the instruction stream and constant pool of one function body.
// Operands are stored inline after their opcode, one Code word each.
type Chunk struct {
	Code      []op.Code
	Locations []SourceLocation
	Constants []value.Value
}

// NewChunk returns an empty chunk.
func NewChunk() *Chunk {
	return &Chunk{}
}

// Write appends one code word recorded at the given location.
func (c *Chunk) Write(code op.Code, loc SourceLocation) {
	c.Code = append(c.Code, code)
	c.Locations = append(c.Locations, loc)
}

// AddConstant appends a constant and returns its index.
func (c *Chunk) AddConstant(v value.Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// Len returns the number of code words.
func (c *Chunk) Len() int {
	return len(c.Code)
}

// LocationAt returns the source location for the word at the given index.
func (c *Chunk) LocationAt(ip int) SourceLocation {
	if ip < 0 || ip >= len(c.Locations) {
		return SourceLocation{}
	}
	return c.Locations[ip]
}

// LineAt returns the source line for the word at the given index, or 0.
func (c *Chunk) LineAt(ip int) int {
	return c.LocationAt(ip).Line
}

// Width returns the number of code words occupied by the instruction at ip,
// including its operands. It returns 1 for unknown opcodes and never reads
// past the end of the chunk.
func (c *Chunk) Width(ip int) int {
	if ip < 0 || ip >= len(c.Code) {
		return 1
	}
	code := c.Code[ip]
	width := 1 + op.GetInfo(code).OperandCount
	if code == op.Closure && ip+2 < len(c.Code) {
		width += 2 * int(c.Code[ip+2])
	}
	if ip+width > len(c.Code) {
		return len(c.Code) - ip
	}
	return width
}

// Stats returns statistics about this chunk.
func (c *Chunk) Stats() Stats {
	count := 0
	for ip := 0; ip < len(c.Code); ip += c.Width(ip) {
		count++
	}
	return Stats{
		InstructionCount: count,
		WordCount:        len(c.Code),
		ConstantCount:    len(c.Constants),
	}
}
