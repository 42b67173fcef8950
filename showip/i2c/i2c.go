// Package i2c talks to devices on a Linux I2C bus through /dev/i2c-N.
package i2c

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ioctl request selecting the slave address of later reads and writes.
const i2cSlave = 0x0703

// BusPath returns the device path of the given bus.
func BusPath(bus int) string {
	return fmt.Sprintf("/dev/i2c-%d", bus)
}

// Device is a single slave device on a bus.
type Device struct {
	f    *os.File
	addr uint16
}

// Open opens the device at addr on the given bus.
func Open(bus int, addr uint16) (*Device, error) {
	return OpenPath(BusPath(bus), addr)
}

// OpenPath opens the device at addr on the bus at path.
func OpenPath(path string, addr uint16) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open bus")
	}

	if err := unix.IoctlSetInt(int(f.Fd()), i2cSlave, int(addr)); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to select address 0x%02x", addr)
	}

	return &Device{f: f, addr: addr}, nil
}

// Addr returns the slave address of the device.
func (d *Device) Addr() uint16 { return d.addr }

// Read reads raw bytes from the device.
func (d *Device) Read(b []byte) (int, error) {
	return d.f.Read(b)
}

// Write writes raw bytes to the device.
func (d *Device) Write(b []byte) (int, error) {
	return d.f.Write(b)
}

// WriteRegister writes a single byte into the register reg.
func (d *Device) WriteRegister(reg, value byte) error {
	if _, err := d.f.Write([]byte{reg, value}); err != nil {
		return errors.Wrapf(err, "failed to write register 0x%02x", reg)
	}
	return nil
}

// Close closes the device.
func (d *Device) Close() error {
	return d.f.Close()
}

// Detect returns true if a device acknowledges a one-byte read at addr on the
// given bus.
func Detect(bus int, addr uint16) bool {
	d, err := Open(bus, addr)
	if err != nil {
		return false
	}
	defer d.Close()

	var b [1]byte
	n, err := d.Read(b[:])
	return err == nil && n == 1
}
