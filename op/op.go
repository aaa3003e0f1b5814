// Package op defines opcodes used by the npp assembler and virtual machine.
package op

import "strings"

// Code is an integer opcode that indicates an operation to execute. Operands
// are encoded inline as additional Code words following the opcode.
type Code uint16

const (
	Invalid Code = 0

	// Constants
	Constant Code = 1
	Nil      Code = 2
	True     Code = 3
	False    Code = 4

	// Stack
	Pop Code = 10

	// Variables
	GetLocal     Code = 20
	SetLocal     Code = 21
	GetGlobal    Code = 22
	DefineGlobal Code = 23
	SetGlobal    Code = 24
	GetUpvalue   Code = 25
	SetUpvalue   Code = 26
	GetProperty  Code = 27
	SetProperty  Code = 28

	// Operations
	Equal    Code = 40
	Greater  Code = 41
	Less     Code = 42
	Add      Code = 43
	Subtract Code = 44
	Multiply Code = 45
	Divide   Code = 46
	Not      Code = 47
	Negate   Code = 48

	// Output
	Print Code = 50

	// Jump
	Jump        Code = 60
	JumpIfFalse Code = 61
	Loop        Code = 62

	// Execution
	Call   Code = 70
	Invoke Code = 71
	Return Code = 72

	// Closures
	Closure      Code = 80
	CloseUpvalue Code = 81

	// Classes
	Class  Code = 90
	Method Code = 91
)

// Info contains information about an opcode.
type Info struct {
	Code         Code
	Name         string
	OperandCount int
}

// Mnemonic returns the lowercase name used by the assembler.
func (i Info) Mnemonic() string {
	return strings.ToLower(i.Name)
}

var (
	infos     = make([]Info, 256)
	mnemonics = map[string]Code{}
)

func init() {
	type opInfo struct {
		op    Code
		name  string
		count int
	}
	ops := []opInfo{
		{Add, "ADD", 0},
		{Call, "CALL", 1},
		{Class, "CLASS", 1},
		{CloseUpvalue, "CLOSE_UPVALUE", 0},
		// CLOSURE carries the function constant and the capture count,
		// followed by an (is-local, index) pair per captured variable.
		{Closure, "CLOSURE", 2},
		{Constant, "CONSTANT", 1},
		{DefineGlobal, "DEFINE_GLOBAL", 1},
		{Divide, "DIVIDE", 0},
		{Equal, "EQUAL", 0},
		{False, "FALSE", 0},
		{GetGlobal, "GET_GLOBAL", 1},
		{GetLocal, "GET_LOCAL", 1},
		{GetProperty, "GET_PROPERTY", 1},
		{GetUpvalue, "GET_UPVALUE", 1},
		{Greater, "GREATER", 0},
		{Invoke, "INVOKE", 2},
		{Jump, "JUMP", 1},
		{JumpIfFalse, "JUMP_IF_FALSE", 1},
		{Less, "LESS", 0},
		{Loop, "LOOP", 1},
		{Method, "METHOD", 1},
		{Multiply, "MULTIPLY", 0},
		{Negate, "NEGATE", 0},
		{Nil, "NIL", 0},
		{Not, "NOT", 0},
		{Pop, "POP", 0},
		{Print, "PRINT", 0},
		{Return, "RETURN", 0},
		{SetGlobal, "SET_GLOBAL", 1},
		{SetLocal, "SET_LOCAL", 1},
		{SetProperty, "SET_PROPERTY", 1},
		{SetUpvalue, "SET_UPVALUE", 1},
		{Subtract, "SUBTRACT", 0},
		{True, "TRUE", 0},
	}
	for _, o := range ops {
		infos[o.op] = Info{
			Name:         o.name,
			Code:         o.op,
			OperandCount: o.count,
		}
		mnemonics[strings.ToLower(o.name)] = o.op
	}
}

// GetInfo returns information about the given opcode.
func GetInfo(op Code) Info {
	if int(op) >= len(infos) {
		return Info{}
	}
	return infos[op]
}

// Lookup resolves an assembler mnemonic such as "get_local" to its opcode.
func Lookup(mnemonic string) (Code, bool) {
	code, ok := mnemonics[strings.ToLower(mnemonic)]
	return code, ok
}
