package errz

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
)

// Formatter renders errors for terminal display.
type Formatter struct {
	header   *color.Color
	location *color.Color
	stack    *color.Color
}

// NewFormatter creates a formatter. Colors are emitted only when useColor is
// set.
func NewFormatter(useColor bool) *Formatter {
	f := &Formatter{
		header:   color.New(color.FgHiRed, color.Bold),
		location: color.New(color.FgCyan),
		stack:    color.New(color.FgHiBlack),
	}
	for _, c := range []*color.Color{f.header, f.location, f.stack} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return f
}

// Format renders err. Structured errors print their message and backtrace;
// aggregated errors print one entry per error.
func (f *Formatter) Format(err error) string {
	var merr *multierror.Error
	if e, ok := err.(*multierror.Error); ok {
		merr = e
	}
	if merr != nil && len(merr.Errors) > 1 {
		var b strings.Builder
		total := len(merr.Errors)
		for i, e := range merr.Errors {
			b.WriteString(f.formatOne(e, fmt.Sprintf("[%d/%d] ", i+1, total)))
		}
		b.WriteString(f.header.Sprintf("found %d errors", total))
		b.WriteString("\n")
		return b.String()
	}
	if merr != nil && len(merr.Errors) == 1 {
		return f.formatOne(merr.Errors[0], "")
	}
	return f.formatOne(err, "")
}

func (f *Formatter) formatOne(err error, prefix string) string {
	var b strings.Builder
	structured, ok := As(err)
	if !ok {
		b.WriteString(f.header.Sprint(prefix + "error: "))
		b.WriteString(err.Error())
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString(f.header.Sprint(prefix + structured.Kind.String() + ": "))
	b.WriteString(structured.Message)
	if !structured.Location.IsZero() {
		b.WriteString(" ")
		b.WriteString(f.location.Sprintf("(%s)", structured.Location))
	}
	b.WriteString("\n")
	for _, frame := range structured.Stack {
		b.WriteString(f.stack.Sprint("  " + frame.String()))
		b.WriteString("\n")
	}
	return b.String()
}

// ListFormat is a multierror.ErrorFormatFunc that prints one error per line
// without the bullet decoration of the default format.
func ListFormat(errs []error) string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = err.Error()
	}
	return fmt.Sprintf("%d errors occurred:\n%s", len(errs), strings.Join(lines, "\n"))
}

// Append adds err to the aggregate, using ListFormat for display.
func Append(agg *multierror.Error, err error) *multierror.Error {
	agg = multierror.Append(agg, err)
	agg.ErrorFormat = ListFormat
	return agg
}
