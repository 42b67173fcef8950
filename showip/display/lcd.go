package display

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// Registers is a device with byte-wide registers, such as an MCP23017 found
// through package i2c.
type Registers interface {
	WriteRegister(reg, value byte) error
}

// MCP23017 registers, with IOCON.BANK = 0.
const (
	regIODIRA = 0x00
	regIODIRB = 0x01
	regOLATA  = 0x14
)

// Wiring of the HD44780 to port A of the expander. RW (GPA1) is held low,
// the LCD is only ever written to.
const (
	pinRS     = 1 << 0
	pinE      = 1 << 2
	dataShift = 3 // D4..D7 on GPA3..GPA6
)

// HD44780 instructions.
const (
	cmdClear       = 0x01
	cmdEntryMode   = 0x06 // increment, no shift
	cmdDisplayOn   = 0x0C // display on, cursor off, blink off
	cmdFunctionSet = 0x28 // 4-bit bus, 2 lines, 5x8 font
	cmdSetDDRAM    = 0x80
)

var rowOffsets = [Rows]byte{0x00, 0x40}

// ErrLCDBroken is returned by Render while the LCD waits to be initialized
// again after a failed write.
var ErrLCDBroken = errors.New("lcd needs reinitialization")

// LCD is a 16x2 HD44780 character LCD driven in 4-bit mode through port A of
// an MCP23017 expander.
//
// A failed write marks the LCD as broken, since its controller may now be
// out of sync with the 4-bit bus. Later renders initialize it again, but no
// sooner than an exponential backoff allows.
type LCD struct {
	mutex   sync.Mutex
	dev     Registers
	backoff backoff.BackOff
	broken  bool
	retryAt time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// NewLCD creates a new LCD on the given expander. The LCD must be initialized
// using Start or Init before anything shows.
func NewLCD(dev Registers) *LCD {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 5 * time.Minute
	b.MaxElapsedTime = 0 // keep trying for as long as the daemon runs

	return &LCD{
		dev:     dev,
		backoff: b,
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// Start initializes the LCD, retrying a few times in case the expander is
// still powering up.
func (l *LCD) Start() error {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 3)
	if err := backoff.Retry(l.Init, b); err != nil {
		// Renders will keep trying on their own.
		l.mutex.Lock()
		l.markBroken()
		l.mutex.Unlock()
		return err
	}

	return nil
}

// Init resets the expander and the LCD, then clears the screen.
func (l *LCD) Init() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.init()
}

func (l *LCD) init() error {
	for _, reg := range []byte{regIODIRA, regIODIRB} {
		if err := l.dev.WriteRegister(reg, 0x00); err != nil {
			return errors.Wrap(err, "failed to configure expander")
		}
	}

	if err := l.dev.WriteRegister(regOLATA, 0x00); err != nil {
		return errors.Wrap(err, "failed to reset port")
	}

	l.sleep(50 * time.Millisecond)

	// Three times 8-bit mode puts the controller into a known state whatever
	// nibble it was waiting for, then it is switched to 4-bit mode.
	for _, wait := range []time.Duration{5 * time.Millisecond, 200 * time.Microsecond, 200 * time.Microsecond} {
		if err := l.nibble(0x3, false); err != nil {
			return errors.Wrap(err, "failed to reset lcd")
		}
		l.sleep(wait)
	}

	if err := l.nibble(0x2, false); err != nil {
		return errors.Wrap(err, "failed to enter 4-bit mode")
	}

	for _, cmd := range []byte{cmdFunctionSet, cmdDisplayOn, cmdClear, cmdEntryMode} {
		if err := l.command(cmd); err != nil {
			return errors.Wrap(err, "failed to set up lcd")
		}
	}

	l.broken = false
	l.backoff.Reset()
	return nil
}

// Render writes both rows, padded so that no stale characters remain.
func (l *LCD) Render(line0, line1 string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.broken {
		if l.now().Before(l.retryAt) {
			return ErrLCDBroken
		}

		if err := l.init(); err != nil {
			l.markBroken()
			return err
		}
	}

	for row, line := range [Rows]string{line0, line1} {
		if err := l.writeRow(row, Fit(line)); err != nil {
			l.markBroken()
			return errors.Wrapf(err, "failed to write row %d", row)
		}
	}

	return nil
}

func (l *LCD) markBroken() {
	l.broken = true

	next := l.backoff.NextBackOff()
	if next == backoff.Stop {
		next = time.Minute
	}

	l.retryAt = l.now().Add(next)
}

func (l *LCD) writeRow(row int, text string) error {
	if err := l.command(cmdSetDDRAM | rowOffsets[row]); err != nil {
		return err
	}

	for i := 0; i < len(text); i++ {
		if err := l.write(text[i], true); err != nil {
			return err
		}
	}

	return nil
}

func (l *LCD) command(cmd byte) error {
	if err := l.write(cmd, false); err != nil {
		return err
	}

	// Clearing is the only instruction slower than an I2C transaction.
	if cmd == cmdClear {
		l.sleep(2 * time.Millisecond)
	}

	return nil
}

// write writes a byte as two nibbles, high nibble first. rs selects data
// instead of instructions.
func (l *LCD) write(b byte, rs bool) error {
	if err := l.nibble(b>>4, rs); err != nil {
		return err
	}
	return l.nibble(b&0x0F, rs)
}

// nibble latches 4 bits into the LCD by pulsing E.
func (l *LCD) nibble(n byte, rs bool) error {
	out := (n & 0x0F) << dataShift
	if rs {
		out |= pinRS
	}

	if err := l.dev.WriteRegister(regOLATA, out|pinE); err != nil {
		return err
	}

	return l.dev.WriteRegister(regOLATA, out)
}
