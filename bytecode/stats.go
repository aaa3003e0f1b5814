package bytecode

// Stats contains statistics about a compiled chunk.
type Stats struct {
	// InstructionCount is the number of opcodes, excluding operand words.
	InstructionCount int

	// WordCount is the total number of code words including operands.
	WordCount int

	// ConstantCount is the number of constants in the constant pool.
	ConstantCount int
}
