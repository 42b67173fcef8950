package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type regWrite struct {
	reg, value byte
}

// fakeExpander records every register write.
type fakeExpander struct {
	writes []regWrite
	fail   bool
}

func (e *fakeExpander) WriteRegister(reg, value byte) error {
	if e.fail {
		return errors.New("i2c: remote I/O error")
	}
	e.writes = append(e.writes, regWrite{reg, value})
	return nil
}

type latched struct {
	rs     bool
	nibble byte
}

// nibbles decodes the nibbles latched by falling edges of E on port A.
func (e *fakeExpander) nibbles() []latched {
	var out []latched
	var high bool

	for _, w := range e.writes {
		if w.reg != regOLATA {
			continue
		}

		enable := w.value&pinE != 0
		if high && !enable {
			out = append(out, latched{
				rs:     w.value&pinRS != 0,
				nibble: (w.value >> dataShift) & 0x0F,
			})
		}
		high = enable
	}

	return out
}

type lcdByte struct {
	rs bool
	b  byte
}

func pairNibbles(t *testing.T, nibbles []latched) []lcdByte {
	t.Helper()
	require.Equal(t, 0, len(nibbles)%2, "odd number of nibbles")

	out := make([]lcdByte, 0, len(nibbles)/2)
	for i := 0; i < len(nibbles); i += 2 {
		require.Equal(t, nibbles[i].rs, nibbles[i+1].rs, "RS changed within a byte")
		out = append(out, lcdByte{nibbles[i].rs, nibbles[i].nibble<<4 | nibbles[i+1].nibble})
	}
	return out
}

func expectRow(cmd byte, text string) []lcdByte {
	out := []lcdByte{{false, cmd}}
	for i := 0; i < len(text); i++ {
		out = append(out, lcdByte{true, text[i]})
	}
	return out
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestLCD(dev *fakeExpander) (*LCD, *fakeClock) {
	clock := &fakeClock{time.Date(2021, 4, 13, 0, 0, 0, 0, time.UTC)}

	l := NewLCD(dev)
	l.now = clock.Now
	l.sleep = func(time.Duration) {}

	return l, clock
}

func TestLCDInit(t *testing.T) {
	dev := &fakeExpander{}
	l, _ := newTestLCD(dev)

	require.NoError(t, l.Init())

	assert.Equal(t, []regWrite{
		{regIODIRA, 0x00},
		{regIODIRB, 0x00},
		{regOLATA, 0x00},
	}, dev.writes[:3])

	nibbles := dev.nibbles()
	require.Len(t, nibbles, 4+2*4)

	for i, n := range []byte{0x3, 0x3, 0x3, 0x2} {
		assert.Equal(t, latched{false, n}, nibbles[i], "reset nibble %d", i)
	}

	assert.Equal(t, []lcdByte{
		{false, cmdFunctionSet},
		{false, cmdDisplayOn},
		{false, cmdClear},
		{false, cmdEntryMode},
	}, pairNibbles(t, nibbles[4:]))
}

func TestLCDRender(t *testing.T) {
	dev := &fakeExpander{}
	l, _ := newTestLCD(dev)
	require.NoError(t, l.Init())

	dev.writes = nil
	require.NoError(t, l.Render("192.168.1.20", ""))

	var expect []lcdByte
	expect = append(expect, expectRow(0x80, "192.168.1.20    ")...)
	expect = append(expect, expectRow(0xC0, strings.Repeat(" ", Columns))...)

	assert.Equal(t, expect, pairNibbles(t, dev.nibbles()))

	// RW is never driven high.
	for _, w := range dev.writes {
		assert.Zero(t, w.value&(1<<1), "RW set in %#v", w)
	}
}

func TestLCDRecovery(t *testing.T) {
	dev := &fakeExpander{}
	l, clock := newTestLCD(dev)
	require.NoError(t, l.Init())

	dev.fail = true
	require.Error(t, l.Render("10.0.0.1", ""))

	// The device came back, but the backoff hasn't passed yet.
	dev.fail = false
	dev.writes = nil

	err := l.Render("10.0.0.1", "")
	assert.True(t, errors.Is(err, ErrLCDBroken), "unexpected error %v", err)
	assert.Empty(t, dev.writes, "broken LCD was written to")

	clock.t = clock.t.Add(time.Hour)
	require.NoError(t, l.Render("10.0.0.1", ""))

	// The LCD was initialized again before the rows were written.
	assert.Equal(t, regWrite{regIODIRA, 0x00}, dev.writes[0])

	nibbles := dev.nibbles()
	require.Len(t, nibbles, 4+2*4+2*2*(Columns+1))

	dev.writes = nil
	require.NoError(t, l.Render("10.0.0.1", ""))

	var expect []lcdByte
	expect = append(expect, expectRow(0x80, Fit("10.0.0.1"))...)
	expect = append(expect, expectRow(0xC0, Fit(""))...)
	assert.Equal(t, expect, pairNibbles(t, dev.nibbles()))
}

func TestLCDStartRetries(t *testing.T) {
	dev := &fakeExpander{fail: true}
	l, _ := newTestLCD(dev)

	require.Error(t, l.Start())

	dev.fail = false

	err := l.Render("10.0.0.1", "")
	assert.True(t, errors.Is(err, ErrLCDBroken), "render after failed start: %v", err)

	require.NoError(t, l.Start())
	require.NoError(t, l.Render("10.0.0.1", ""))
}

func TestFit(t *testing.T) {
	tests := map[string]string{
		"":                          "                ",
		"192.168.1.20":              "192.168.1.20    ",
		"0123456789abcdef":          "0123456789abcdef",
		"0123456789abcdefOVERFLOW":  "0123456789abcdef",
		"fe80::1\tgarbage":          "fe80::1?garbage ",
		"café":                      "caf?            ",
		"fe80::dead:beef:cafe:1234": "fe80::dead:beef:",
	}

	for input, expect := range tests {
		assert.Equal(t, expect, Fit(input), "Fit(%q)", input)
		assert.Len(t, Fit(input), Columns)
	}
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	d := NewText(&buf)

	require.NoError(t, d.Render("192.168.1.20", "10.0.0.3"))

	assert.Equal(t, ""+
		"+----------------+\n"+
		"|192.168.1.20    |\n"+
		"|10.0.0.3        |\n"+
		"+----------------+\n", buf.String())
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Render("a", "b"))
}
