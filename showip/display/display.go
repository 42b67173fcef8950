// Package display provides the renderers of the daemon: an HD44780 character
// LCD behind an MCP23017 I/O expander, a text frame and a renderer that
// discards everything.
package display

import (
	"strings"

	"git.unix.lgbt/diamondburned/showip/showip"
)

// The size of the character LCD, which every renderer mimics.
const (
	Rows    = 2
	Columns = 16
)

var (
	_ showip.Display = (*LCD)(nil)
	_ showip.Display = (*Text)(nil)
	_ showip.Display = Nop{}
)

// Fit pads or truncates line to exactly Columns characters. Characters that
// the LCD cannot show are replaced with '?'.
func Fit(line string) string {
	var b strings.Builder
	b.Grow(Columns)

	n := 0
	for _, r := range line {
		if n == Columns {
			break
		}
		if r < 0x20 || r > 0x7E {
			r = '?'
		}
		b.WriteRune(r)
		n++
	}

	for ; n < Columns; n++ {
		b.WriteByte(' ')
	}

	return b.String()
}

// Nop is a display that accepts and discards everything.
type Nop struct{}

// Render does nothing.
func (Nop) Render(line0, line1 string) error { return nil }
