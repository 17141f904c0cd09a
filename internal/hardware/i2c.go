package hardware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
	"tinygo.org/x/drivers"
)

const maxOpsPerSec = 2000

// I2CBus is a Bus over any tinygo drivers.I2C transaction port. Register
// addresses go out big-endian ahead of the data byte; reads use a combined
// write+read with REPEATED START.
type I2CBus struct {
	tx      drivers.I2C
	addr    uint16
	limiter *rate.Limiter
}

// NewI2CBus returns a Bus for the codec at 7-bit address addr on tx.
func NewI2CBus(tx drivers.I2C, addr uint16) *I2CBus {
	return &I2CBus{
		tx:      tx,
		addr:    addr,
		limiter: rate.NewLimiter(rate.Limit(maxOpsPerSec), 32),
	}
}

func (b *I2CBus) Read(ctx context.Context, reg Register) (byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	w := [2]byte{byte(reg >> 8), byte(reg)}
	var r [1]byte
	if err := b.tx.Tx(b.addr, w[:], r[:]); err != nil {
		return 0, fmt.Errorf("i2c: read 0x%02x reg=0x%03x: %w", b.addr, reg, err)
	}
	return r[0], nil
}

func (b *I2CBus) Write(ctx context.Context, reg Register, val byte) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	w := [3]byte{byte(reg >> 8), byte(reg), val}
	if err := b.tx.Tx(b.addr, w[:], nil); err != nil {
		return fmt.Errorf("i2c: write 0x%02x reg=0x%03x: %w", b.addr, reg, err)
	}
	return nil
}
