package dis

import (
	"io"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Alignment controls how a cell is padded to its column width.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
	AlignCenter
)

// visibleWidth is the printed cell width of s. Color escapes take no
// cells and wide characters take two.
func visibleWidth(s string) int {
	return ansi.StringWidth(s)
}

// table renders rows inside an ASCII box:
//
//	+--------+--------+
//	| HEADER | HEADER |
//	+--------+--------+
//	| cell   |   cell |
//	+--------+--------+
type table struct {
	w           io.Writer
	header      []string
	headerAlign []Alignment
	columnAlign []Alignment
	rows        [][]string
}

func newTable(w io.Writer) *table {
	return &table{w: w}
}

func (t *table) withHeader(header []string, align []Alignment) *table {
	t.header = header
	t.headerAlign = align
	return t
}

func (t *table) withColumnAlignment(align []Alignment) *table {
	t.columnAlign = align
	return t
}

func (t *table) append(row []string) {
	t.rows = append(t.rows, row)
}

func (t *table) widths() []int {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = visibleWidth(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && visibleWidth(cell) > widths[i] {
				widths[i] = visibleWidth(cell)
			}
		}
	}
	return widths
}

func (t *table) render() error {
	widths := t.widths()
	var b strings.Builder

	border := func() {
		b.WriteString("+")
		for _, w := range widths {
			b.WriteString(strings.Repeat("-", w+2))
			b.WriteString("+")
		}
		b.WriteString("\n")
	}
	line := func(cells []string, align []Alignment) {
		b.WriteString("|")
		for i, w := range widths {
			var cell string
			if i < len(cells) {
				cell = cells[i]
			}
			a := AlignLeft
			if i < len(align) {
				a = align[i]
			}
			b.WriteString(" ")
			b.WriteString(pad(cell, w, a))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}

	border()
	line(t.header, t.headerAlign)
	border()
	for _, row := range t.rows {
		line(row, t.columnAlign)
	}
	border()
	_, err := io.WriteString(t.w, b.String())
	return err
}

func pad(s string, width int, align Alignment) string {
	n := width - visibleWidth(s)
	if n <= 0 {
		return s
	}
	switch align {
	case AlignRight:
		return strings.Repeat(" ", n) + s
	case AlignCenter:
		left := n / 2
		return strings.Repeat(" ", left) + s + strings.Repeat(" ", n-left)
	default:
		return s + strings.Repeat(" ", n)
	}
}
