// Package bytecode provides the compiled form consumed by the virtual machine.
//
// A [Chunk] holds one function body: a flat slice of [op.Code] words where
// each opcode is followed inline by its operands, a parallel slice of source
// locations used for backtraces, and a constant pool of [value.Value].
//
// Constants may reference heap objects (strings and functions). The heap
// traces a function's constants when it marks the function, so a chunk is
// kept alive exactly as long as the function that owns it.
//
// # Jumps
//
// Jump distances are relative to the word that follows the operand. JUMP and
// JUMP_IF_FALSE move forward; LOOP moves backward:
//
//	b := bytecode.NewBuilder(chunk)
//	exit := b.EmitJump(op.JumpIfFalse)
//	b.Emit(op.Pop)
//	b.PatchJump(exit)
//
// # Numeric limits
//
// Operands are 16 bits wide. [Builder] rejects operands that do not fit with
// [ErrOperandRange] instead of truncating them.
package bytecode
