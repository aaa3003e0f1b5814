package bytecode

import (
	"errors"
	"fmt"

	"fortio.org/safecast"

	"github.com/deepnoodle-ai/npp/op"
	"github.com/deepnoodle-ai/npp/value"
)

// ErrOperandRange is returned when an operand does not fit in a code word.
var ErrOperandRange = errors.New("operand out of range")

// Builder appends instructions to a chunk, tracking the current source
// location and validating operand widths.
type Builder struct {
	chunk *Chunk
	loc   SourceLocation
}

// NewBuilder returns a builder writing to chunk.
func NewBuilder(chunk *Chunk) *Builder {
	return &Builder{chunk: chunk}
}

// Chunk returns the chunk being built.
func (b *Builder) Chunk() *Chunk {
	return b.chunk
}

// At sets the location recorded for subsequently emitted words.
func (b *Builder) At(loc SourceLocation) *Builder {
	b.loc = loc
	return b
}

// Line sets the line recorded for subsequently emitted words.
func (b *Builder) Line(line int) *Builder {
	b.loc = SourceLocation{Line: line}
	return b
}

// Offset returns the index the next emitted word will occupy.
func (b *Builder) Offset() int {
	return len(b.chunk.Code)
}

// Emit appends an opcode followed by its operands.
func (b *Builder) Emit(code op.Code, operands ...int) error {
	words := make([]op.Code, 0, len(operands))
	for _, operand := range operands {
		word, err := encodeOperand(operand)
		if err != nil {
			return fmt.Errorf("%s: %w", op.GetInfo(code).Name, err)
		}
		words = append(words, word)
	}
	b.chunk.Write(code, b.loc)
	for _, word := range words {
		b.chunk.Write(word, b.loc)
	}
	return nil
}

// Constant returns the index of v in the constant pool, adding it if no
// equal constant is present.
func (b *Builder) Constant(v value.Value) int {
	for i, existing := range b.chunk.Constants {
		if value.Equal(existing, v) {
			return i
		}
	}
	return b.chunk.AddConstant(v)
}

// EmitConstant appends a CONSTANT instruction loading v.
func (b *Builder) EmitConstant(v value.Value) error {
	return b.Emit(op.Constant, b.Constant(v))
}

// EmitJump appends a forward jump with a placeholder distance and returns
// the offset of the operand to patch.
func (b *Builder) EmitJump(code op.Code) int {
	b.chunk.Write(code, b.loc)
	b.chunk.Write(0, b.loc)
	return len(b.chunk.Code) - 1
}

// PatchJump points the jump operand at offset to the next emitted word.
func (b *Builder) PatchJump(offset int) error {
	return b.PatchJumpTo(offset, len(b.chunk.Code))
}

// PatchJumpTo points the jump operand at offset to target, which must not
// precede the operand.
func (b *Builder) PatchJumpTo(offset, target int) error {
	distance := target - (offset + 1)
	if distance < 0 {
		return fmt.Errorf("%w: jump target %d precedes jump at %d", ErrOperandRange, target, offset)
	}
	word, err := encodeOperand(distance)
	if err != nil {
		return fmt.Errorf("jump: %w", err)
	}
	b.chunk.Code[offset] = word
	return nil
}

// EmitLoop appends a backward jump to start.
func (b *Builder) EmitLoop(start int) error {
	distance := len(b.chunk.Code) + 2 - start
	if start > len(b.chunk.Code) {
		return fmt.Errorf("%w: loop target %d follows loop at %d", ErrOperandRange, start, len(b.chunk.Code))
	}
	return b.Emit(op.Loop, distance)
}

// PatchLoopTo points the LOOP operand at offset back to target, which must
// not follow the operand.
func (b *Builder) PatchLoopTo(offset, target int) error {
	distance := offset + 1 - target
	if distance < 0 {
		return fmt.Errorf("%w: loop target %d follows loop at %d", ErrOperandRange, target, offset)
	}
	word, err := encodeOperand(distance)
	if err != nil {
		return fmt.Errorf("loop: %w", err)
	}
	b.chunk.Code[offset] = word
	return nil
}

func encodeOperand(operand int) (op.Code, error) {
	word, err := safecast.Convert[uint16](operand)
	if err != nil {
		return 0, fmt.Errorf("%w: %d", ErrOperandRange, operand)
	}
	return op.Code(word), nil
}
