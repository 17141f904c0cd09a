package codec

import (
	"context"
	"time"

	"github.com/micro-nova/codecd/internal/hardware"
)

type stepOp uint8

const (
	opUpdate stepOp = iota
	opWrite
	opWait
)

// step is one entry of a hardware micro-sequence: a masked update, a full
// register write, or a settle delay.
type step struct {
	op   stepOp
	reg  hardware.Register
	mask byte
	val  byte
	wait time.Duration
}

func update(reg hardware.Register, mask, val byte) step {
	return step{op: opUpdate, reg: reg, mask: mask, val: val}
}

func write(reg hardware.Register, val byte) step {
	return step{op: opWrite, reg: reg, val: val}
}

func settle(d time.Duration) step {
	return step{op: opWait, wait: d}
}

func concat(seqs ...[]step) []step {
	var out []step
	for _, s := range seqs {
		out = append(out, s...)
	}
	return out
}

// run executes seq in order and stops at the first bus error.
func (c *Codec) run(ctx context.Context, seq []step) error {
	for _, s := range seq {
		var err error
		switch s.op {
		case opUpdate:
			err = c.regs.UpdateBits(ctx, s.reg, s.mask, s.val)
		case opWrite:
			err = c.regs.Write(ctx, s.reg, s.val)
		case opWait:
			c.delay(s.wait)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
