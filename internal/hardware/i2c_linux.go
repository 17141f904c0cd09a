//go:build linux

package hardware

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
	"tinygo.org/x/drivers"
)

const (
	i2cRdwrIOCTL = 0x0707 // I2C_RDWR ioctl, combined transfers with REPEATED START
	i2cMsgRD     = 0x0001 // i2c_msg flag: read direction
)

// i2cMsg mirrors struct i2c_msg from linux/i2c.h
type i2cMsg struct {
	addr   uint16
	flags  uint16
	length uint16
	_pad   uint16 // struct alignment
	buf    uintptr
}

// i2cRdwr mirrors struct i2c_rdwr_ioctl_data from linux/i2c-dev.h
type i2cRdwr struct {
	msgs  uintptr
	nmsgs uint32
}

// LinuxI2C is a drivers.I2C port backed by a /dev/i2c-N character device.
// All transfers go through I2C_RDWR so a register-address write and the
// following read share one transaction.
type LinuxI2C struct {
	mu   sync.Mutex
	path string
	fd   int
}

var _ drivers.I2C = (*LinuxI2C)(nil)

// OpenLinuxI2C opens the I2C adapter at path, e.g. "/dev/i2c-1".
func OpenLinuxI2C(path string) (*LinuxI2C, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("i2c: open %s: %w", path, err)
	}
	return &LinuxI2C{path: path, fd: fd}, nil
}

// Tx writes w then reads into r (either may be empty) addressed to addr.
func (d *LinuxI2C) Tx(addr uint16, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return fmt.Errorf("i2c: %s is closed", d.path)
	}

	var msgs [2]i2cMsg
	n := 0
	if len(w) > 0 {
		msgs[n] = i2cMsg{addr: addr, length: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))}
		n++
	}
	if len(r) > 0 {
		msgs[n] = i2cMsg{addr: addr, flags: i2cMsgRD, length: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))}
		n++
	}
	if n == 0 {
		return nil
	}
	rdwr := i2cRdwr{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(n)}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), i2cRdwrIOCTL, uintptr(unsafe.Pointer(&rdwr))); errno != 0 {
		return fmt.Errorf("i2c: I2C_RDWR 0x%02x: %w", addr, errno)
	}
	return nil
}

// Close releases the I2C file descriptor.
func (d *LinuxI2C) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}
