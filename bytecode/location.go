package bytecode

import "strconv"

// SourceLocation is the position an instruction word was assembled from.
// Column is optional and zero when unknown.
type SourceLocation struct {
	Line   int
	Column int
}

// String formats the location as "line" or "line:column".
func (s SourceLocation) String() string {
	if s.Column == 0 {
		return strconv.Itoa(s.Line)
	}
	return strconv.Itoa(s.Line) + ":" + strconv.Itoa(s.Column)
}

// IsZero reports whether no location was recorded.
func (s SourceLocation) IsZero() bool {
	return s.Line == 0 && s.Column == 0
}
