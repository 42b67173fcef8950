package display

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Text renders a boxed frame of the LCD's size into a writer:
//
//	+----------------+
//	|192.168.1.20    |
//	|                |
//	+----------------+
type Text struct {
	mutex sync.Mutex
	w     io.Writer
}

// NewText creates a new text display.
func NewText(w io.Writer) *Text {
	return &Text{w: w}
}

var textBorder = "+" + strings.Repeat("-", Columns) + "+\n"

// Render writes one frame.
func (t *Text) Render(line0, line1 string) error {
	var buf bytes.Buffer
	buf.Grow(len(textBorder) * (Rows + 2))

	buf.WriteString(textBorder)
	for _, line := range [Rows]string{line0, line1} {
		buf.WriteByte('|')
		buf.WriteString(Fit(line))
		buf.WriteString("|\n")
	}
	buf.WriteString(textBorder)

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, err := t.w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write frame")
	}

	return nil
}
