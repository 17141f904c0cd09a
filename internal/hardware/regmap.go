package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/micro-nova/codecd/internal/codecerr"
	"github.com/micro-nova/codecd/internal/metrics"
)

// RegMap is the codec's register access port: a Bus plus a shadow cache for
// non-volatile registers.
//
// Every access is bounds-checked against MaxRegister. An out-of-range address
// is a programming error and panics.
type RegMap struct {
	bus Bus

	mu    sync.Mutex // guards cache and valid
	cache []byte
	valid []bool
}

// NewRegMap wraps bus with a shadow cache of cacheSize registers.
// Registers at or beyond cacheSize are never cached.
func NewRegMap(bus Bus, cacheSize int) *RegMap {
	if cacheSize < 0 {
		cacheSize = 0
	}
	return &RegMap{
		bus:   bus,
		cache: make([]byte, cacheSize),
		valid: make([]bool, cacheSize),
	}
}

func checkBounds(op string, reg Register) {
	if reg > MaxRegister {
		panic(&codecerr.Error{
			Kind: codecerr.ResourceExhaustion,
			Op:   op,
			Msg:  fmt.Sprintf("register 0x%03x beyond max 0x%03x", reg, MaxRegister),
		})
	}
}

// Write writes val to reg. Non-volatile registers are also committed to the
// shadow cache; a cache miss is logged and does not fail the write.
func (m *RegMap) Write(ctx context.Context, reg Register, val byte) error {
	checkBounds("regmap write", reg)
	slog.Debug("regmap: write", "reg", fmt.Sprintf("0x%03x", reg), "val", fmt.Sprintf("0x%02x", val))

	if err := m.bus.Write(ctx, reg, val); err != nil {
		metrics.IncBusError("write")
		return codecerr.IO(fmt.Sprintf("write reg 0x%03x", reg), err)
	}
	if !IsVolatile(reg) {
		if err := m.cacheWrite(reg, val); err != nil {
			slog.Warn("regmap: cache write failed", "reg", fmt.Sprintf("0x%03x", reg), "err", err)
		}
	}
	return nil
}

// Read returns the cached value of reg when it is non-volatile, readable and
// inside the cache; otherwise it reads the hardware.
func (m *RegMap) Read(ctx context.Context, reg Register) (byte, error) {
	checkBounds("regmap read", reg)

	cacheable := !IsVolatile(reg) && IsReadable(reg) && int(reg) < len(m.cache)
	if cacheable {
		if val, ok := m.Cached(reg); ok {
			return val, nil
		}
	}

	val, err := m.bus.Read(ctx, reg)
	if err != nil {
		metrics.IncBusError("read")
		return 0, codecerr.IO(fmt.Sprintf("read reg 0x%03x", reg), err)
	}
	slog.Debug("regmap: read", "reg", fmt.Sprintf("0x%03x", reg), "val", fmt.Sprintf("0x%02x", val))
	if cacheable {
		_ = m.cacheWrite(reg, val)
	}
	return val, nil
}

// UpdateBits replaces the bits selected by mask with val. The bus is not
// written when the masked bits already hold val.
func (m *RegMap) UpdateBits(ctx context.Context, reg Register, mask, val byte) error {
	old, err := m.Read(ctx, reg)
	if err != nil {
		return err
	}
	next := (old &^ mask) | (val & mask)
	if next == old {
		return nil
	}
	return m.Write(ctx, reg, next)
}

// Cached returns the shadow copy of reg, if one is held.
func (m *RegMap) Cached(reg Register) (byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(reg) >= len(m.cache) || !m.valid[reg] {
		return 0, false
	}
	return m.cache[reg], true
}

func (m *RegMap) cacheWrite(reg Register, val byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(reg) >= len(m.cache) {
		return fmt.Errorf("register 0x%03x outside cache of %d entries", reg, len(m.cache))
	}
	m.cache[reg] = val
	m.valid[reg] = true
	return nil
}
