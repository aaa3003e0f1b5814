package errz

import (
	"fmt"
	"strings"
)

// SourceLocation represents a position in source code.
type SourceLocation struct {
	Filename string
	Line     int // 1-based line number
	Column   int // 1-based column number, 0 when unknown
}

// String returns a formatted string representation of the source location.
func (s SourceLocation) String() string {
	var b strings.Builder
	if s.Filename != "" {
		b.WriteString(s.Filename)
		b.WriteString(":")
	}
	fmt.Fprintf(&b, "%d", s.Line)
	if s.Column > 0 {
		fmt.Fprintf(&b, ":%d", s.Column)
	}
	return b.String()
}

// IsZero returns true if the location has not been set.
func (s SourceLocation) IsZero() bool {
	return s.Line == 0 && s.Column == 0
}

// StackFrame is one entry of a backtrace. An empty Function denotes the
// top-level script.
type StackFrame struct {
	Function string
	Line     int
}

// String formats the frame as "[line N] in name()".
func (f StackFrame) String() string {
	if f.Function == "" {
		return fmt.Sprintf("[line %d] in script", f.Line)
	}
	return fmt.Sprintf("[line %d] in %s()", f.Line, f.Function)
}
