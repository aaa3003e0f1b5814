// Package asm implements a line-oriented assembler that turns textual npp
// bytecode into function objects on a heap.
//
// A source file is a top-level script followed or interleaved with function
// blocks:
//
//	.func add 2
//	    get_local 1
//	    get_local 2
//	    add
//	    return
//	.end
//
//	closure add
//	define_global add
//	get_global add
//	constant 1; constant 2
//	call 2
//	print
//
// Mnemonics are the lowercase opcode names. Labels ("loop:") are scoped to
// the enclosing function and are the operands of jump, jump_if_false and
// loop. A body that does not end in return gets an implicit "nil; return".
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/deepnoodle-ai/npp/errz"
	"github.com/deepnoodle-ai/npp/heap"
	"github.com/deepnoodle-ai/npp/value"
)

// Assembler compiles assembly source. It satisfies vm.Compiler.
type Assembler struct {
	filename string
	logger   zerolog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithFilename sets the file name reported in error locations.
func WithFilename(name string) Option {
	return func(a *Assembler) {
		a.filename = name
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Assembler) {
		a.logger = logger
	}
}

// New returns an assembler.
func New(options ...Option) *Assembler {
	a := &Assembler{logger: zerolog.Nop()}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// Assemble compiles source with a default assembler.
func Assemble(h *heap.Heap, source string) (value.Ref, error) {
	return New().Compile(h, source)
}

// Compile assembles source into h and returns the top-level script
// function. All errors found are returned together.
func (a *Assembler) Compile(h *heap.Heap, source string) (value.Ref, error) {
	as := &assembly{
		Assembler: a,
		heap:      h,
		byName:    map[string]*unit{},
	}
	as.parse(source)
	if as.errs != nil {
		return value.Ref{}, as.errs.ErrorOrNil()
	}

	h.AddRootSource(as)
	defer h.RemoveRootSource(as)

	as.declare()
	for _, u := range as.units {
		as.emitUnit(u)
	}
	if err := as.errs.ErrorOrNil(); err != nil {
		return value.Ref{}, err
	}
	script := as.units[0]
	a.logger.Debug().
		Int("functions", len(as.units)-1).
		Int("code", script.fn.Chunk.Len()).
		Msg("assembled")
	return script.ref, nil
}

// unit is one function block, or the top-level script at index 0.
type unit struct {
	name     string
	line     int
	arity    int
	upvalues int
	stmts    []statement
	ref      value.Ref
	fn       *heap.Function
}

type assembly struct {
	*Assembler
	heap   *heap.Heap
	units  []*unit
	byName map[string]*unit
	roots  []value.Value
	errs   *multierror.Error
}

// MarkRoots keeps the functions under construction alive.
func (as *assembly) MarkRoots(m *heap.Marker) {
	for _, v := range as.roots {
		m.MarkValue(v)
	}
}

func (as *assembly) errorf(line int, format string, args ...any) {
	loc := errz.SourceLocation{Filename: as.filename, Line: line}
	as.errs = errz.Append(as.errs, errz.NewStructuredErrorf(errz.ErrCompile, loc, nil, format, args...))
}

// parse splits source into units without touching the heap.
func (as *assembly) parse(source string) {
	script := &unit{line: 1}
	as.units = append(as.units, script)
	current := script
	var lastLine int
	for i, text := range strings.Split(source, "\n") {
		number := i + 1
		lastLine = number
		stmts, err := scanLine(number, text)
		if err != nil {
			as.errorf(number, "%s", err)
			continue
		}
		for _, stmt := range stmts {
			switch stmt.mnemonic {
			case ".func":
				if current != script {
					as.errorf(stmt.line, "nested .func inside '%s'", current.name)
					continue
				}
				u, ok := as.parseHeader(stmt)
				if !ok {
					// Keep collecting so the matching .end is not reported.
					u = &unit{name: "", line: stmt.line}
				} else {
					as.units = append(as.units, u)
				}
				current = u
			case ".end":
				if current == script {
					as.errorf(stmt.line, ".end without .func")
					continue
				}
				if len(stmt.args) > 0 {
					as.errorf(stmt.line, ".end takes no operands")
				}
				current = script
			default:
				current.stmts = append(current.stmts, stmt)
			}
		}
	}
	if current != script {
		as.errorf(lastLine, "missing .end for '%s' opened on line %d", current.name, current.line)
	}
}

func (as *assembly) parseHeader(stmt statement) (*unit, bool) {
	if len(stmt.args) < 2 || len(stmt.args) > 3 {
		as.errorf(stmt.line, ".func expects a name, an arity and an optional upvalue count")
		return nil, false
	}
	u := &unit{name: stmt.args[0].text, line: stmt.line}
	if u.name == "" {
		as.errorf(stmt.line, "function name must not be empty")
		return nil, false
	}
	if prev, ok := as.byName[u.name]; ok {
		as.errorf(stmt.line, "function '%s' already defined on line %d", u.name, prev.line)
		return nil, false
	}
	var ok bool
	if u.arity, ok = as.integer(stmt.line, stmt.args[1], "arity"); !ok {
		return nil, false
	}
	if len(stmt.args) == 3 {
		if u.upvalues, ok = as.integer(stmt.line, stmt.args[2], "upvalue count"); !ok {
			return nil, false
		}
	}
	as.byName[u.name] = u
	return u, true
}

func (as *assembly) integer(line int, tok token, what string) (int, bool) {
	n, err := strconv.Atoi(tok.text)
	if tok.kind != tokenWord || err != nil || n < 0 {
		as.errorf(line, "invalid %s %q", what, tok.text)
		return 0, false
	}
	return n, true
}

// declare allocates every function before any body is emitted, so closure
// operands may refer to functions defined later in the file.
func (as *assembly) declare() {
	for i, u := range as.units {
		var name value.Ref
		if i > 0 {
			name = as.heap.Intern(u.name)
			as.heap.PushRoot(value.Object(name))
		}
		u.ref = as.heap.NewFunction(name, u.arity, u.upvalues, nil)
		if i > 0 {
			as.heap.PopRoot()
		}
		as.roots = append(as.roots, value.Object(u.ref))
		u.fn = heap.MustAs[*heap.Function](as.heap, u.ref)
	}
}

func describe(u *unit) string {
	if u.name == "" {
		return "script"
	}
	return fmt.Sprintf("function '%s'", u.name)
}
