package asm

import (
	"strconv"

	"github.com/deepnoodle-ai/npp/bytecode"
	"github.com/deepnoodle-ai/npp/op"
	"github.com/deepnoodle-ai/npp/value"
)

type operandForm int

const (
	formNone operandForm = iota
	formLiteral
	formName
	formIndex
	formLabel
	formInvoke
	formClosure
)

var forms = map[op.Code]operandForm{
	op.Constant:     formLiteral,
	op.GetGlobal:    formName,
	op.DefineGlobal: formName,
	op.SetGlobal:    formName,
	op.GetProperty:  formName,
	op.SetProperty:  formName,
	op.Class:        formName,
	op.Method:       formName,
	op.GetLocal:     formIndex,
	op.SetLocal:     formIndex,
	op.GetUpvalue:   formIndex,
	op.SetUpvalue:   formIndex,
	op.Call:         formIndex,
	op.Jump:         formLabel,
	op.JumpIfFalse:  formLabel,
	op.Loop:         formLabel,
	op.Invoke:       formInvoke,
	op.Closure:      formClosure,
}

type fixup struct {
	line    int
	code    op.Code
	operand int
	label   string
}

type emitter struct {
	as      *assembly
	unit    *unit
	b       *bytecode.Builder
	labels  map[string]int
	fixups  []fixup
	lastOp  op.Code
	current int
}

func (as *assembly) emitUnit(u *unit) {
	e := &emitter{
		as:     as,
		unit:   u,
		b:      bytecode.NewBuilder(u.fn.Chunk),
		labels: map[string]int{},
	}
	for _, stmt := range u.stmts {
		e.current = stmt.line
		e.b.Line(stmt.line)
		if stmt.label != "" {
			if _, ok := e.labels[stmt.label]; ok {
				as.errorf(stmt.line, "label '%s' already defined in %s", stmt.label, describe(u))
				continue
			}
			e.labels[stmt.label] = e.b.Offset()
			// A label after the final return is a jump target, so the
			// implicit return is still needed.
			e.lastOp = op.Invalid
			continue
		}
		e.statement(stmt)
	}
	if e.lastOp != op.Return {
		e.emit(op.Nil)
		e.emit(op.Return)
	}
	e.resolve()
}

func (e *emitter) emit(code op.Code, operands ...int) bool {
	if err := e.b.Emit(code, operands...); err != nil {
		e.as.errorf(e.current, "%s", err)
		return false
	}
	e.lastOp = code
	return true
}

func (e *emitter) statement(stmt statement) {
	as := e.as
	code, ok := op.Lookup(stmt.mnemonic)
	if !ok {
		as.errorf(stmt.line, "unknown instruction '%s'", stmt.mnemonic)
		return
	}
	name := op.GetInfo(code).Mnemonic()
	args := stmt.args
	expect := func(n int) bool {
		if len(args) != n {
			as.errorf(stmt.line, "%s expects %d operands, got %d", name, n, len(args))
			return false
		}
		return true
	}

	switch forms[code] {
	case formNone:
		if expect(0) {
			e.emit(code)
		}
	case formLiteral:
		if !expect(1) {
			return
		}
		if v, ok := e.literal(stmt.line, args[0]); ok {
			e.emit(code, e.b.Constant(v))
		}
	case formName:
		if expect(1) {
			e.emit(code, e.b.Constant(value.Object(as.heap.Intern(args[0].text))))
		}
	case formIndex:
		if !expect(1) {
			return
		}
		if n, ok := as.integer(stmt.line, args[0], name+" operand"); ok {
			e.emit(code, n)
		}
	case formLabel:
		if !expect(1) {
			return
		}
		operand := e.b.EmitJump(code)
		e.lastOp = code
		e.fixups = append(e.fixups, fixup{line: stmt.line, code: code, operand: operand, label: args[0].text})
	case formInvoke:
		if !expect(2) {
			return
		}
		argc, ok := as.integer(stmt.line, args[1], "argument count")
		if !ok {
			return
		}
		index := e.b.Constant(value.Object(as.heap.Intern(args[0].text)))
		e.emit(code, index, argc)
	case formClosure:
		e.closure(stmt)
	}
}

func (e *emitter) literal(line int, tok token) (value.Value, bool) {
	if tok.kind == tokenString {
		return value.Object(e.as.heap.Intern(tok.text)), true
	}
	switch tok.text {
	case "nil", "null":
		return value.Null(), true
	case "true":
		return value.Bool(true), true
	case "false":
		return value.Bool(false), true
	}
	n, err := strconv.ParseFloat(tok.text, 64)
	if err != nil {
		e.as.errorf(line, "invalid constant %q", tok.text)
		return value.Null(), false
	}
	return value.Number(n), true
}

// closure emits "closure NAME (local N | upvalue N)...".
func (e *emitter) closure(stmt statement) {
	as := e.as
	if len(stmt.args) == 0 || len(stmt.args)%2 == 0 {
		as.errorf(stmt.line, "closure expects a function name and (local|upvalue) index pairs")
		return
	}
	target, ok := as.byName[stmt.args[0].text]
	if !ok {
		as.errorf(stmt.line, "undefined function '%s'", stmt.args[0].text)
		return
	}
	pairs := stmt.args[1:]
	count := len(pairs) / 2
	if count != target.upvalues {
		as.errorf(stmt.line, "closure over '%s' captures %d variables but the function declares %d",
			target.name, count, target.upvalues)
		return
	}
	operands := []int{e.b.Constant(value.Object(target.ref)), count}
	for i := 0; i < len(pairs); i += 2 {
		var isLocal int
		switch pairs[i].text {
		case "local":
			isLocal = 1
		case "upvalue":
		default:
			as.errorf(stmt.line, "capture kind must be local or upvalue, got %q", pairs[i].text)
			return
		}
		index, ok := as.integer(stmt.line, pairs[i+1], "capture index")
		if !ok {
			return
		}
		operands = append(operands, isLocal, index)
	}
	e.emit(op.Closure, operands...)
}

func (e *emitter) resolve() {
	for _, f := range e.fixups {
		target, ok := e.labels[f.label]
		if !ok {
			e.as.errorf(f.line, "undefined label '%s' in %s", f.label, describe(e.unit))
			continue
		}
		var err error
		if f.code == op.Loop {
			err = e.b.PatchLoopTo(f.operand, target)
		} else {
			err = e.b.PatchJumpTo(f.operand, target)
		}
		if err != nil {
			e.as.errorf(f.line, "%s", err)
		}
	}
}
